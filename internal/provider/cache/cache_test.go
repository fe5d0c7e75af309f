package cache_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"marketpulse/internal/clock"
	"marketpulse/internal/provider/cache"
)

var epoch = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func newCache(t *testing.T, ttl time.Duration, maxItems int) (*cache.Cache, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(epoch)
	c, err := cache.New(cache.Options{TTL: ttl, MaxItems: maxItems, Clock: clk})
	require.NoError(t, err)
	return c, clk
}

func TestNew_RejectsTTLOutOfRange(t *testing.T) {
	for _, ttl := range []time.Duration{0, 500 * time.Millisecond, 25 * time.Hour} {
		_, err := cache.New(cache.Options{TTL: ttl})
		require.ErrorIs(t, err, cache.ErrInvalidTTL, "ttl=%s", ttl)
	}
	_, err := cache.New(cache.Options{TTL: cache.MinTTL})
	require.NoError(t, err)
}

func TestGetPut_Expiry(t *testing.T) {
	c, clk := newCache(t, 60*time.Second, 0)

	_, ok := c.Get("missing")
	require.False(t, ok)

	c.Put("k", 42)
	clk.Advance(59 * time.Second)
	v, ok := c.Get("k")
	require.True(t, ok)
	require.Equal(t, 42, v)

	clk.Advance(time.Second)
	_, ok = c.Get("k")
	require.False(t, ok, "entry must not be returned at StoredAt+TTL")
	require.Equal(t, 0, c.Len(), "expired entry removed on access")
}

func TestPut_OverwriteRestampsEntry(t *testing.T) {
	c, clk := newCache(t, 10*time.Second, 0)
	c.Put("k", "a")
	clk.Advance(8 * time.Second)
	c.Put("k", "b")
	clk.Advance(8 * time.Second)
	v, ok := c.Get("k")
	require.True(t, ok)
	require.Equal(t, "b", v)
}

func TestSweep(t *testing.T) {
	c, clk := newCache(t, 10*time.Second, 0)
	c.Put("old1", 1)
	c.Put("old2", 2)
	clk.Advance(5 * time.Second)
	c.Put("fresh", 3)
	clk.Advance(5 * time.Second)

	require.Equal(t, 2, c.Sweep())
	require.Equal(t, 1, c.Len())
	require.Equal(t, 0, c.Sweep())
}

func TestMaxItems_EvictsOldest(t *testing.T) {
	c, clk := newCache(t, time.Minute, 2)
	c.Put("a", 1)
	clk.Advance(time.Second)
	c.Put("b", 2)
	clk.Advance(time.Second)
	c.Put("c", 3)

	require.Equal(t, 2, c.Len())
	_, ok := c.Get("a")
	require.False(t, ok)
	_, ok = c.Get("c")
	require.True(t, ok)
}

func TestGetOrFetch_HitSkipsFetch(t *testing.T) {
	c, _ := newCache(t, time.Minute, 0)
	var calls atomic.Int32
	fetch := func(context.Context) (map[string]int, error) {
		calls.Add(1)
		return map[string]int{"btc": 1}, nil
	}

	for range 3 {
		got, err := cache.GetOrFetch(t.Context(), c, "crypto", fetch, nil)
		require.NoError(t, err)
		require.Equal(t, 1, got["btc"])
	}
	require.EqualValues(t, 1, calls.Load())
}

func TestGetOrFetch_ErrorNotStored(t *testing.T) {
	c, _ := newCache(t, time.Minute, 0)
	boom := errors.New("boom")
	_, err := cache.GetOrFetch(t.Context(), c, "k", func(context.Context) (int, error) { return 0, boom }, nil)
	require.ErrorIs(t, err, boom)
	require.Equal(t, 0, c.Len())
}

func TestGetOrFetch_StoreVeto(t *testing.T) {
	c, _ := newCache(t, time.Minute, 0)
	got, err := cache.GetOrFetch(t.Context(), c, "k",
		func(context.Context) (map[string]int, error) { return map[string]int{}, nil },
		func(m map[string]int) bool { return len(m) > 0 })
	require.NoError(t, err)
	require.Empty(t, got)
	require.Equal(t, 0, c.Len())
}

func TestGetOrFetch_CoalescesConcurrentMisses(t *testing.T) {
	c, _ := newCache(t, time.Minute, 0)
	var calls atomic.Int32
	release := make(chan struct{})
	fetch := func(context.Context) (int, error) {
		calls.Add(1)
		<-release
		return 7, nil
	}

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := cache.GetOrFetch(context.Background(), c, "k", fetch, nil)
			require.NoError(t, err)
			require.Equal(t, 7, v)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	require.LessOrEqual(t, calls.Load(), int32(5))
	v, ok := c.Get("k")
	require.True(t, ok)
	require.Equal(t, 7, v)
}

func TestKey(t *testing.T) {
	require.Equal(t, "finnhub", cache.Key("finnhub"))
	require.Equal(t, "finnhub|AAPL,MSFT", cache.Key("finnhub", "AAPL", "MSFT"))
}
