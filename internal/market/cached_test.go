package market

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingProvider wraps the fixture provider and counts upstream calls; it
// can be switched to fail.
type countingProvider struct {
	mu      sync.Mutex
	fixture *FixtureProvider
	calls   int
	fail    bool
}

func (p *countingProvider) setFail(fail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fail = fail
}

func (p *countingProvider) History(ctx context.Context, symbols []string, windowDays int) (History, error) {
	p.mu.Lock()
	p.calls++
	fail := p.fail
	p.mu.Unlock()
	if fail {
		return nil, errors.New("upstream down")
	}
	return p.fixture.History(ctx, symbols, windowDays)
}

func (p *countingProvider) Prices(ctx context.Context, symbols []string) (map[string]float64, error) {
	p.mu.Lock()
	p.calls++
	fail := p.fail
	p.mu.Unlock()
	if fail {
		return nil, errors.New("upstream down")
	}
	return p.fixture.Prices(ctx, symbols)
}

func (p *countingProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func TestCachedHistoryProvider_ServesFromCache(t *testing.T) {
	upstream := &countingProvider{fixture: NewFixtureProvider()}
	provider := NewCachedHistoryProvider(upstream, NewMemoryCache(), time.Minute)
	ctx := context.Background()

	first, err := provider.History(ctx, []string{"BTC", "ETH"}, 30)
	require.NoError(t, err)
	second, err := provider.History(ctx, []string{"BTC", "ETH"}, 30)
	require.NoError(t, err)

	assert.Equal(t, 1, upstream.callCount())
	assert.Equal(t, first["BTC"].Prices, second["BTC"].Prices)
}

func TestCachedHistoryProvider_KeyIncludesWindowAndSymbols(t *testing.T) {
	upstream := &countingProvider{fixture: NewFixtureProvider()}
	provider := NewCachedHistoryProvider(upstream, NewMemoryCache(), time.Minute)
	ctx := context.Background()

	_, err := provider.History(ctx, []string{"BTC"}, 30)
	require.NoError(t, err)
	_, err = provider.History(ctx, []string{"BTC"}, 90)
	require.NoError(t, err)
	_, err = provider.History(ctx, []string{"ETH"}, 30)
	require.NoError(t, err)
	// Symbol order must not change the key.
	upstreamBefore := upstream.callCount()
	_, err = provider.History(ctx, []string{"ETH", "BTC"}, 30)
	require.NoError(t, err)
	_, err = provider.History(ctx, []string{"BTC", "ETH"}, 30)
	require.NoError(t, err)

	assert.Equal(t, upstreamBefore+1, upstream.callCount())
}

func TestCachedHistoryProvider_StaleOnUpstreamError(t *testing.T) {
	upstream := &countingProvider{fixture: NewFixtureProvider()}
	provider := NewCachedHistoryProvider(upstream, NewMemoryCache(), 20*time.Millisecond)
	ctx := context.Background()

	fresh, err := provider.History(ctx, []string{"BTC"}, 30)
	require.NoError(t, err)

	// Let the entry go stale without crossing the hard expiry, then break
	// the upstream.
	time.Sleep(30 * time.Millisecond)
	upstream.setFail(true)

	stale, err := provider.History(ctx, []string{"BTC"}, 30)
	require.NoError(t, err)
	assert.Equal(t, fresh["BTC"].Prices, stale["BTC"].Prices)
}

func TestCachedHistoryProvider_ErrorWithoutCache(t *testing.T) {
	upstream := &countingProvider{fixture: NewFixtureProvider(), fail: true}
	provider := NewCachedHistoryProvider(upstream, NewMemoryCache(), time.Minute)

	_, err := provider.History(context.Background(), []string{"BTC"}, 30)
	require.Error(t, err)
}

func TestCachedPriceProvider(t *testing.T) {
	upstream := &countingProvider{fixture: NewFixtureProvider()}
	provider := NewCachedPriceProvider(upstream, NewMemoryCache(), time.Minute)
	ctx := context.Background()

	first, err := provider.Prices(ctx, []string{"BTC", "USDT"})
	require.NoError(t, err)
	require.Contains(t, first, "BTC")

	upstream.setFail(true) // fresh cache absorbs the outage
	second, err := provider.Prices(ctx, []string{"BTC", "USDT"})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, upstream.callCount())
}
