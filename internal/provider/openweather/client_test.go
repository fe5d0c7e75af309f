package openweather_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"marketpulse/internal/provider"
	"marketpulse/internal/provider/openweather"
)

func TestFetch_PartialSites(t *testing.T) {
	t.Parallel()

	// Arrange: Jakarta answers, Bandung is unknown to the service.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/data/2.5/weather", r.URL.Path)
		require.Equal(t, "metric", r.URL.Query().Get("units"))
		require.Equal(t, "key", r.URL.Query().Get("appid"))
		switch r.URL.Query().Get("q") {
		case "Jakarta,ID":
			_, _ = io.WriteString(w, `{"name":"Jakarta","dt":1700000000,"main":{"temp":31.4},"weather":[{"description":"scattered clouds"}]}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"cod":"404","message":"city not found"}`)
		}
	}))
	t.Cleanup(srv.Close)

	client := openweather.New("key", openweather.WithBaseURL(srv.URL), openweather.WithDelay(0))

	// Act
	got, err := client.Fetch(t.Context(), []provider.Site{
		{City: "Jakarta", Country: "ID"},
		{City: "Bandung", Country: "ID"},
	})

	// Assert
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.NotNil(t, got["Jakarta,ID"])
	require.True(t, decimal.RequireFromString("31.4").Equal(got["Jakarta,ID"].TemperatureC))
	require.Equal(t, "scattered clouds", got["Jakarta,ID"].Description)
	require.Contains(t, got, "Bandung,ID")
	require.Nil(t, got["Bandung,ID"])
}

func TestCurrent_MissingFields(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"name":"Jakarta","main":{"temp":30}}`)
	}))
	t.Cleanup(srv.Close)

	client := openweather.New("key", openweather.WithBaseURL(srv.URL), openweather.WithDelay(0))
	_, err := client.Current(t.Context(), provider.Site{City: "Jakarta"})
	require.Equal(t, provider.KindSchemaMismatch, provider.KindOf(err))
}
