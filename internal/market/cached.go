package market

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// CachedHistoryProvider wraps a HistoryProvider with a TTL cache. Stale
// entries are served when the upstream fetch fails, so a flapping provider
// degrades to slightly old data instead of a failed analysis.
type CachedHistoryProvider struct {
	upstream HistoryProvider
	cache    Cache
	ttl      time.Duration
}

// NewCachedHistoryProvider creates a caching history provider.
func NewCachedHistoryProvider(upstream HistoryProvider, cache Cache, ttl time.Duration) *CachedHistoryProvider {
	return &CachedHistoryProvider{upstream: upstream, cache: cache, ttl: ttl}
}

func (p *CachedHistoryProvider) History(ctx context.Context, symbols []string, windowDays int) (History, error) {
	key := fmt.Sprintf("history:%s:%d", cacheKeySymbols(symbols), windowDays)

	cached, stale, ok := p.cache.Get(ctx, key)
	if ok && !stale {
		var history History
		if err := json.Unmarshal(cached, &history); err == nil {
			return history, nil
		}
		log.Warn().Str("key", key).Msg("Failed to unmarshal cached history, fetching fresh")
	}

	history, err := p.upstream.History(ctx, symbols, windowDays)
	if err != nil {
		if ok {
			// Upstream down, stale data beats no data.
			var stale History
			if uerr := json.Unmarshal(cached, &stale); uerr == nil {
				log.Warn().Err(err).Str("key", key).Msg("Upstream history fetch failed, serving stale cache")
				return stale, nil
			}
		}
		return nil, err
	}

	if data, merr := json.Marshal(history); merr == nil {
		if cerr := p.cache.Set(ctx, key, data, p.ttl); cerr != nil {
			log.Warn().Err(cerr).Str("key", key).Msg("Failed to cache history")
		}
	}

	return history, nil
}

// CachedPriceProvider wraps a PriceProvider with a TTL cache, with the same
// stale-on-error behavior as CachedHistoryProvider.
type CachedPriceProvider struct {
	upstream PriceProvider
	cache    Cache
	ttl      time.Duration
}

// NewCachedPriceProvider creates a caching price provider.
func NewCachedPriceProvider(upstream PriceProvider, cache Cache, ttl time.Duration) *CachedPriceProvider {
	return &CachedPriceProvider{upstream: upstream, cache: cache, ttl: ttl}
}

func (p *CachedPriceProvider) Prices(ctx context.Context, symbols []string) (map[string]float64, error) {
	key := "prices:" + cacheKeySymbols(symbols)

	cached, stale, ok := p.cache.Get(ctx, key)
	if ok && !stale {
		var prices map[string]float64
		if err := json.Unmarshal(cached, &prices); err == nil {
			return prices, nil
		}
		log.Warn().Str("key", key).Msg("Failed to unmarshal cached prices, fetching fresh")
	}

	prices, err := p.upstream.Prices(ctx, symbols)
	if err != nil {
		if ok {
			var stalePrices map[string]float64
			if uerr := json.Unmarshal(cached, &stalePrices); uerr == nil {
				log.Warn().Err(err).Str("key", key).Msg("Upstream price fetch failed, serving stale cache")
				return stalePrices, nil
			}
		}
		return nil, err
	}

	if data, merr := json.Marshal(prices); merr == nil {
		if cerr := p.cache.Set(ctx, key, data, p.ttl); cerr != nil {
			log.Warn().Err(cerr).Str("key", key).Msg("Failed to cache prices")
		}
	}

	return prices, nil
}

func cacheKeySymbols(symbols []string) string {
	sorted := make([]string, len(symbols))
	copy(sorted, symbols)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}
