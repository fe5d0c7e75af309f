package binance_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"marketpulse/internal/provider"
	"marketpulse/internal/provider/binance"
	"marketpulse/internal/provider/failover"
)

func fastPolicy() failover.Policy {
	return failover.Policy{MaxRetries: 3, Delay: time.Millisecond}
}

func tickerServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			calls.Add(1)
		}
		require.Equal(t, "/api/v3/ticker/price", r.URL.Path)
		require.Equal(t, `["BTCUSDT","XRPUSDT"]`, r.URL.Query().Get("symbols"))
		_, _ = io.WriteString(w, `[{"symbol":"BTCUSDT","price":"65000.10"},{"symbol":"XRPUSDT","price":"0.52"}]`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetch_Success(t *testing.T) {
	t.Parallel()

	srv := tickerServer(t, nil)
	client := binance.New(
		binance.WithEndpoints(srv.URL),
		binance.WithSymbols(map[string]string{"ripple": "xrpusdt"}),
		binance.WithPolicy(fastPolicy()),
	)

	got, err := client.Fetch(t.Context(), []string{"btc", "ripple"})
	require.NoError(t, err)
	require.True(t, decimal.RequireFromString("65000.10").Equal(got["btc"].Price))
	require.True(t, decimal.RequireFromString("0.52").Equal(got["ripple"].Price))
	require.Equal(t, "USD", got["btc"].Currency)
}

func TestFetch_FailsOverToNextMirror(t *testing.T) {
	t.Parallel()

	// Arrange: first mirror is down, second answers 451, third works.
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	var blockedCalls atomic.Int32
	blocked := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		blockedCalls.Add(1)
		w.WriteHeader(http.StatusUnavailableForLegalReasons)
	}))
	t.Cleanup(blocked.Close)

	var okCalls atomic.Int32
	ok := tickerServer(t, &okCalls)

	client := binance.New(binance.WithEndpoints(deadURL, blocked.URL, ok.URL), binance.WithPolicy(fastPolicy()))

	// Act
	got, err := client.Fetch(t.Context(), []string{"btc", "xrp"})

	// Assert
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.EqualValues(t, 1, blockedCalls.Load())
	require.EqualValues(t, 1, okCalls.Load())
}

func TestFetch_AllMirrorsDown(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	client := binance.New(binance.WithEndpoints(srv.URL, srv.URL), binance.WithPolicy(fastPolicy()))
	_, err := client.Fetch(t.Context(), []string{"btc"})
	require.ErrorIs(t, err, failover.ErrEndpointsExhausted)
	require.Equal(t, provider.KindHTTPStatus, provider.KindOf(err))
}

func TestSymbol_Default(t *testing.T) {
	t.Parallel()
	require.Equal(t, "ETHUSDT", binance.New().Symbol("eth"))
}
