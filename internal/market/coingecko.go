package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/coinlens/coinlens/internal/metrics"
)

// Circuit breaker settings for the CoinGecko API.
const (
	coinGeckoMinRequests  = 5
	coinGeckoFailureRatio = 0.6
	coinGeckoOpenTimeout  = 30 * time.Second
	coinGeckoHalfOpenReqs = 3
)

// coinGeckoIDs maps ticker symbols to CoinGecko coin ids. Unknown symbols
// are passed through lowercased.
var coinGeckoIDs = map[string]string{
	"BTC":   "bitcoin",
	"ETH":   "ethereum",
	"SOL":   "solana",
	"BNB":   "binancecoin",
	"XRP":   "ripple",
	"ADA":   "cardano",
	"DOGE":  "dogecoin",
	"DOT":   "polkadot",
	"AVAX":  "avalanche-2",
	"LINK":  "chainlink",
	"MATIC": "matic-network",
	"USDT":  "tether",
	"USDC":  "usd-coin",
	"DAI":   "dai",
}

// CoinGeckoClient fetches prices and daily history from the CoinGecko REST
// API. Requests are rate limited client-side and guarded by a circuit
// breaker so a flapping upstream cannot stall analysis requests.
type CoinGeckoClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	logger  zerolog.Logger
}

// NewCoinGeckoClient creates a CoinGecko client. baseURL defaults to the
// public API; requestsPerMinute bounds the client-side request rate.
func NewCoinGeckoClient(baseURL, apiKey string, requestsPerMinute int) *CoinGeckoClient {
	if baseURL == "" {
		baseURL = "https://api.coingecko.com/api/v3"
	}
	if requestsPerMinute <= 0 {
		requestsPerMinute = 30
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "coingecko",
		MaxRequests: coinGeckoHalfOpenReqs,
		Timeout:     coinGeckoOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < coinGeckoMinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= coinGeckoFailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	})

	return &CoinGeckoClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), 2),
		breaker: breaker,
		logger:  log.With().Str("component", "coingecko").Logger(),
	}
}

// Prices implements PriceProvider. Symbols the API does not know are left
// out of the result.
func (c *CoinGeckoClient) Prices(ctx context.Context, symbols []string) (map[string]float64, error) {
	ids := make([]string, 0, len(symbols))
	idToSymbol := make(map[string]string, len(symbols))
	for _, symbol := range symbols {
		id := coinID(symbol)
		ids = append(ids, id)
		idToSymbol[id] = symbol
	}

	query := url.Values{}
	query.Set("ids", strings.Join(ids, ","))
	query.Set("vs_currencies", "usd")

	body, err := c.get(ctx, "/simple/price", query)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch prices: %w", err)
	}

	var payload map[string]map[string]float64
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse price response: %w", err)
	}

	prices := make(map[string]float64, len(payload))
	for id, quote := range payload {
		symbol, ok := idToSymbol[id]
		if !ok {
			continue
		}
		if usd, ok := quote["usd"]; ok {
			prices[symbol] = usd
		}
	}

	c.logger.Debug().
		Int("requested", len(symbols)).
		Int("resolved", len(prices)).
		Msg("Fetched spot prices")

	return prices, nil
}

// History implements HistoryProvider using the market_chart endpoint with
// daily granularity. Per-symbol fetches run concurrently; the shared rate
// limiter keeps the aggregate request rate within bounds.
func (c *CoinGeckoClient) History(ctx context.Context, symbols []string, windowDays int) (History, error) {
	history := make(History, len(symbols))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, symbol := range symbols {
		g.Go(func() error {
			series, err := c.marketChart(gctx, symbol, windowDays)
			if err != nil {
				return fmt.Errorf("failed to fetch history for %s: %w", symbol, err)
			}
			mu.Lock()
			history[symbol] = series
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return history, nil
}

func (c *CoinGeckoClient) marketChart(ctx context.Context, symbol string, days int) (Series, error) {
	query := url.Values{}
	query.Set("vs_currency", "usd")
	query.Set("days", fmt.Sprintf("%d", days))
	query.Set("interval", "daily")

	body, err := c.get(ctx, "/coins/"+coinID(symbol)+"/market_chart", query)
	if err != nil {
		return Series{}, err
	}

	var payload struct {
		Prices [][2]float64 `json:"prices"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return Series{}, fmt.Errorf("failed to parse market chart: %w", err)
	}

	series := Series{
		Timestamps: make([]int64, 0, len(payload.Prices)),
		Prices:     make([]float64, 0, len(payload.Prices)),
	}
	for _, point := range payload.Prices {
		series.Timestamps = append(series.Timestamps, int64(point[0]))
		series.Prices = append(series.Prices, point[1])
	}

	c.logger.Debug().
		Str("symbol", symbol).
		Int("days", days).
		Int("points", series.Len()).
		Msg("Fetched market chart")

	return series, nil
}

func (c *CoinGeckoClient) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+query.Encode(), nil)
		if err != nil {
			return nil, err
		}
		if c.apiKey != "" {
			req.Header.Set("x-cg-demo-api-key", c.apiKey)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			metrics.ProviderRequests.WithLabelValues("coingecko", "error").Inc()
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			metrics.ProviderRequests.WithLabelValues("coingecko", "error").Inc()
			return nil, err
		}

		if resp.StatusCode != http.StatusOK {
			metrics.ProviderRequests.WithLabelValues("coingecko", "error").Inc()
			return nil, fmt.Errorf("coingecko returned %d: %s", resp.StatusCode, truncate(string(body), 200))
		}

		metrics.ProviderRequests.WithLabelValues("coingecko", "success").Inc()
		return body, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

func coinID(symbol string) string {
	if id, ok := coinGeckoIDs[strings.ToUpper(symbol)]; ok {
		return id
	}
	return strings.ToLower(symbol)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
