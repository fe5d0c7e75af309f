package exchangerate_test

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
	"marketpulse/internal/provider/exchangerate"
	"marketpulse/internal/provider/failover"
)

func fastPolicy() failover.Policy {
	return failover.Policy{MaxRetries: 2, Delay: time.Millisecond}
}

func TestFetch_Keyed(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v6/KEY/latest/USD", r.URL.Path)
		_, _ = io.WriteString(w, `{"result":"success","base_code":"USD","conversion_rates":{"USD":1,"EUR":0.92,"IDR":16000}}`)
	}))
	t.Cleanup(srv.Close)

	client := exchangerate.New("KEY", exchangerate.WithBaseURL(srv.URL+"/v6"), exchangerate.WithOpenURL(""), exchangerate.WithPolicy(fastPolicy()))
	got, err := client.Fetch(t.Context(), "usd", []string{"EUR", "IDR", "XXX"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.True(t, decimal.RequireFromString("0.92").Equal(got["EUR"]))
	require.True(t, decimal.NewFromInt(16000).Equal(got["IDR"]))
}

func TestFetch_KeylessOnly(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v6/latest/USD", r.URL.Path)
		_, _ = io.WriteString(w, `{"result":"success","rates":{"EUR":0.9}}`)
	}))
	t.Cleanup(srv.Close)

	client := exchangerate.New("", exchangerate.WithOpenURL(srv.URL+"/v6"), exchangerate.WithPolicy(fastPolicy()))
	require.Len(t, client.Endpoints("USD"), 1)

	got, err := client.Fetch(t.Context(), "USD", []string{"EUR"})
	require.NoError(t, err)
	require.True(t, decimal.RequireFromString("0.9").Equal(got["EUR"]))
}

func TestFetch_FallsBackToKeyless(t *testing.T) {
	t.Parallel()

	var keyedCalls atomic.Int32
	keyed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keyedCalls.Add(1)
		_, _ = io.WriteString(w, `{"result":"error","error-type":"invalid-key"}`)
	}))
	t.Cleanup(keyed.Close)
	open := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"result":"success","rates":{"EUR":0.91}}`)
	}))
	t.Cleanup(open.Close)

	client := exchangerate.New("BAD",
		exchangerate.WithBaseURL(keyed.URL),
		exchangerate.WithOpenURL(open.URL),
		exchangerate.WithPolicy(fastPolicy()),
	)
	got, err := client.Fetch(t.Context(), "USD", []string{"EUR"})
	require.NoError(t, err)
	require.True(t, decimal.RequireFromString("0.91").Equal(got["EUR"]))
	require.EqualValues(t, 1, keyedCalls.Load(), "rejection rotates without retrying")
}

func TestFetch_MissingRatesObject(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"result":"success"}`)
	}))
	t.Cleanup(srv.Close)

	client := exchangerate.New("", exchangerate.WithOpenURL(srv.URL), exchangerate.WithPolicy(fastPolicy()))
	_, err := client.Fetch(t.Context(), "USD", []string{"EUR"})
	require.ErrorIs(t, err, failover.ErrEndpointsExhausted)
	require.Equal(t, provider.KindSchemaMismatch, provider.KindOf(err))
}
