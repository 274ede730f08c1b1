package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/coinlens/coinlens/internal/alerts"
	"github.com/coinlens/coinlens/internal/api"
	"github.com/coinlens/coinlens/internal/config"
	"github.com/coinlens/coinlens/internal/market"
	"github.com/coinlens/coinlens/internal/narrative"
	"github.com/coinlens/coinlens/internal/planner"
	"github.com/coinlens/coinlens/internal/risk"
	"github.com/coinlens/coinlens/internal/tools"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	config.InitLogger(cfg.App.LogLevel, cfg.App.LogFormat)
	log.Info().
		Str("name", cfg.App.Name).
		Str("version", cfg.App.Version).
		Str("environment", cfg.App.Environment).
		Msg("Starting coinlens")

	cache := buildCache(cfg)
	historyProvider, priceProvider := buildProviders(cfg, cache)

	registry := tools.NewRegistry()
	registry.MustRegister(
		&tools.HistoryTool{Provider: historyProvider},
		&tools.PricesTool{Provider: priceProvider},
		&tools.RiskTool{Engine: risk.NewEngine()},
		&tools.HealthTool{},
		&tools.AlertsTool{Dispatcher: buildDispatcher(cfg)},
		&tools.RebalanceTool{},
		&tools.NarrativeTool{Summarizer: buildSummarizer(cfg)},
	)

	runner := planner.NewRunner(registry, planner.WithParallelism(cfg.Analysis.Parallelism))

	server := api.NewServer(api.Config{
		Host:        cfg.API.Host,
		Port:        cfg.API.Port,
		Runner:      runner,
		Plans:       api.LoadPlans(cfg.Analysis.PlansDir),
		DefaultPlan: api.DefaultPlanName,
		Defaults: api.Defaults{
			WindowDays:  cfg.Analysis.WindowDays,
			Benchmark:   cfg.Analysis.Benchmark,
			Policy:      cfg.Analysis.Policy,
			Constraints: cfg.Analysis.Constraints,
		},
		EnableMetrics: cfg.Monitoring.EnableMetrics,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatal().Err(err).Msg("Server failed")
		}
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("Graceful shutdown failed")
		}
	}
}

func buildCache(cfg *config.Config) market.Cache {
	if !cfg.Redis.Enabled {
		return market.NewMemoryCache()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Msg("Redis unreachable, falling back to in-memory cache")
		return market.NewMemoryCache()
	}

	log.Info().Str("host", cfg.Redis.Host).Msg("Redis cache connected")
	return market.NewRedisCache(client, "market:")
}

func buildProviders(cfg *config.Config, cache market.Cache) (market.HistoryProvider, market.PriceProvider) {
	if cfg.Market.Provider == "fixture" {
		fixture := market.NewFixtureProvider()
		return fixture, fixture
	}

	client := market.NewCoinGeckoClient(cfg.Market.CoinGeckoURL, cfg.Market.APIKey, cfg.Market.RequestsPerMinute)
	return market.NewCachedHistoryProvider(client, cache, cfg.Market.CacheTTL),
		market.NewCachedPriceProvider(client, cache, cfg.Market.CacheTTL)
}

func buildDispatcher(cfg *config.Config) *alerts.Dispatcher {
	notifiers := []alerts.Notifier{alerts.NewLogNotifier()}

	if cfg.Alerting.Telegram.Enabled {
		telegram, err := alerts.NewTelegramNotifier(cfg.Alerting.Telegram.BotToken, cfg.Alerting.Telegram.ChatIDs)
		if err != nil {
			log.Error().Err(err).Msg("Telegram notifier unavailable, continuing without it")
		} else {
			notifiers = append(notifiers, telegram)
		}
	}

	return alerts.NewDispatcher(notifiers...)
}

func buildSummarizer(cfg *config.Config) narrative.Summarizer {
	if !cfg.Narrative.Enabled {
		return narrative.Noop{}
	}
	return narrative.NewLLMClient(narrative.LLMConfig{
		Endpoint:    cfg.Narrative.Endpoint,
		APIKey:      cfg.Narrative.APIKey,
		Model:       cfg.Narrative.Model,
		Temperature: cfg.Narrative.Temperature,
		MaxTokens:   cfg.Narrative.MaxTokens,
		Timeout:     cfg.Narrative.Timeout,
	})
}
