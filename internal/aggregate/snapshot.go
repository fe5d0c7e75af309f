package aggregate

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"marketpulse/internal/provider"
)

// Section names a part of the Snapshot.
type Section string

const (
	SectionCrypto    Section = "crypto"
	SectionStocks    Section = "stocks"
	SectionMetals    Section = "metals"
	SectionFX        Section = "fx"
	SectionWeather   Section = "weather"
	SectionLocalRate Section = "local_rate"
)

// Priced is a USD quote plus its price in the local currency, when known.
type Priced struct {
	provider.Quote
	Local *decimal.Decimal `json:"local,omitempty"`
}

// Snapshot is everything collected in one cycle. A nil section means its
// provider failed (reason in Unavailable) or is not configured. Snapshots
// are not modified after Collect returns.
type Snapshot struct {
	ID          uuid.UUID `json:"id"`
	GeneratedAt time.Time `json:"generated_at"`

	Crypto  map[string]Priced            `json:"crypto"`
	Stocks  map[string]Priced            `json:"stocks"`
	Metals  map[string]Priced            `json:"metals"`
	FXBase  string                       `json:"fx_base,omitempty"`
	FX      map[string]decimal.Decimal   `json:"fx"`
	Weather map[string]*provider.Weather `json:"weather"`

	LocalCurrency string           `json:"local_currency,omitempty"`
	LocalRate     *decimal.Decimal `json:"local_rate"`

	Unavailable map[string]string `json:"unavailable,omitempty"`

	// Order is the requested key order per section.
	Order map[Section][]string `json:"-"`
}

// Keys returns the keys of a section in requested order, followed by any
// other keys present in present sorted.
func (s Snapshot) Keys(section Section, present []string) []string {
	out := append([]string(nil), s.Order[section]...)
	seen := make(map[string]struct{}, len(out))
	for _, k := range out {
		seen[k] = struct{}{}
	}
	var extra []string
	for _, k := range present {
		if _, ok := seen[k]; !ok {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	return append(out, extra...)
}

// Reason reports why a section is missing, or "" when it is not.
func (s Snapshot) Reason(section Section) string {
	return s.Unavailable[string(section)]
}

// Convert returns price*rate, or nil when either operand is absent.
func Convert(price, rate *decimal.Decimal) *decimal.Decimal {
	if price == nil || rate == nil {
		return nil
	}
	v := price.Mul(*rate)
	return &v
}

func priced(q provider.Quotes, rate *decimal.Decimal) map[string]Priced {
	if q == nil {
		return nil
	}
	out := make(map[string]Priced, len(q))
	for k, v := range q {
		price := v.Price
		out[k] = Priced{Quote: v, Local: Convert(&price, rate)}
	}
	return out
}
