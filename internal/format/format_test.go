package format_test

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketpulse/internal/aggregate"
	"marketpulse/internal/format"
	"marketpulse/internal/provider"
)

func dp(s string) *decimal.Decimal {
	v := decimal.RequireFromString(s)
	return &v
}

func TestUSD(t *testing.T) {
	assert.Equal(t, "$65000.00", format.USD(dp("65000")))
	assert.Equal(t, "$0.52", format.USD(dp("0.5190")))
	assert.Equal(t, format.NA, format.USD(nil))
}

func TestLocal_IDR(t *testing.T) {
	got := format.Local("idr", dp("1600000"))
	require.True(t, strings.HasPrefix(got, "Rp"), got)
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, got)
	assert.Equal(t, "1600000", digits)
	assert.NotContains(t, got, ",", "no fraction digits for rupiah")
	assert.Equal(t, format.NA, format.Local("IDR", nil))
}

func TestRate(t *testing.T) {
	assert.Equal(t, "0.9200", format.Rate(dp("0.92")))
	assert.Equal(t, format.NA, format.Rate(nil))
}

func sampleSnapshot() aggregate.Snapshot {
	return aggregate.Snapshot{
		GeneratedAt: time.Date(2024, 1, 1, 8, 30, 0, 0, time.UTC),
		Crypto: map[string]aggregate.Priced{
			"bitcoin": {Quote: provider.Quote{Symbol: "bitcoin", Price: decimal.NewFromInt(100)}, Local: dp("1600000")},
		},
		Stocks:        map[string]aggregate.Priced{},
		FXBase:        "USD",
		FX:            map[string]decimal.Decimal{"EUR": decimal.RequireFromString("0.92")},
		Weather:       map[string]*provider.Weather{"Jakarta": {Site: "Jakarta", TemperatureC: decimal.RequireFromString("31.4"), Description: "light rain"}, "Bandung": nil},
		LocalCurrency: "IDR",
		LocalRate:     dp("16000"),
		Unavailable:   map[string]string{"metals": "timeout"},
		Order: map[aggregate.Section][]string{
			aggregate.SectionCrypto:  {"bitcoin", "ethereum"},
			aggregate.SectionStocks:  {"AAPL"},
			aggregate.SectionMetals:  {"XAU"},
			aggregate.SectionFX:      {"EUR", "JPY"},
			aggregate.SectionWeather: {"Jakarta", "Bandung"},
		},
	}
}

func TestBlocks(t *testing.T) {
	blocks := format.Blocks(sampleSnapshot())
	require.Len(t, blocks, 5)

	crypto := blocks[0]
	assert.Equal(t, []string{"Name", "USD", "IDR"}, crypto.Header)
	require.Len(t, crypto.Rows, 2)
	assert.Equal(t, "Bitcoin", crypto.Rows[0][0])
	assert.Equal(t, "$100.00", crypto.Rows[0][1])
	assert.Equal(t, []string{"Ethereum", format.NA, format.NA}, crypto.Rows[1])

	stocks := blocks[1]
	assert.Equal(t, [][]string{{"AAPL", format.NA, format.NA}}, stocks.Rows)

	metals := blocks[2]
	assert.Equal(t, "unavailable (timeout)", metals.Note)

	fx := blocks[3]
	assert.Equal(t, []string{"USD/EUR", "0.9200"}, fx.Rows[0])
	assert.Equal(t, []string{"USD/JPY", format.NA}, fx.Rows[1])
	assert.Equal(t, "USD/IDR", fx.Rows[2][0])

	weather := blocks[4]
	assert.Equal(t, []string{"Jakarta", "31.4°C", "Light Rain"}, weather.Rows[0])
	assert.Equal(t, []string{"Bandung", format.NA, "unavailable"}, weather.Rows[1])
}

func TestBlocks_SkipsUnconfiguredSections(t *testing.T) {
	snap := aggregate.Snapshot{Crypto: map[string]aggregate.Priced{}}
	blocks := format.Blocks(snap)
	require.Len(t, blocks, 1)
	assert.Len(t, blocks[0].Header, 2, "no local column without a local currency")
}

func TestMessage(t *testing.T) {
	msg := format.Message(sampleSnapshot(), time.UTC)
	assert.True(t, strings.HasPrefix(msg, "```text\nMARKET UPDATE - 08:30:00 UTC\n"), msg)
	assert.True(t, strings.HasSuffix(msg, "```"))
	assert.Contains(t, msg, "Precious Metals (per troy oz)\nunavailable (timeout)\n")
	assert.Contains(t, msg, "USD/EUR  0.9200")
	assert.Contains(t, msg, "Bandung")
}
