// Package format renders Snapshots as text blocks and money strings.
package format

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"marketpulse/internal/aggregate"
	"marketpulse/internal/provider/metalprice"
)

// NA is shown for any missing value.
const NA = "N/A"

// titleCase builds a Caser per call; Casers are not safe for concurrent use.
func titleCase(s string) string {
	return cases.Title(language.English).String(s)
}

// currencySymbols prefixes local amounts; other currencies use "CODE ".
var currencySymbols = map[string]string{
	"IDR": "Rp",
	"EUR": "€",
	"GBP": "£",
	"JPY": "¥",
}

// currencyLocales picks digit grouping for local amounts.
var currencyLocales = map[string]language.Tag{
	"IDR": language.Indonesian,
	"EUR": language.German,
	"JPY": language.Japanese,
}

// wholeUnits lists currencies shown without fraction digits.
var wholeUnits = map[string]bool{"IDR": true, "JPY": true}

// USD formats a dollar amount with two decimals, "$65000.00".
func USD(v *decimal.Decimal) string {
	if v == nil {
		return NA
	}
	return "$" + v.StringFixed(2)
}

// Local formats an amount in currency with locale grouping, "Rp1.600.000".
func Local(currency string, v *decimal.Decimal) string {
	if v == nil {
		return NA
	}
	currency = strings.ToUpper(currency)
	tag, ok := currencyLocales[currency]
	if !ok {
		tag = language.English
	}
	p := message.NewPrinter(tag)
	sym, ok := currencySymbols[currency]
	if !ok {
		sym = currency + " "
	}
	if wholeUnits[currency] {
		return sym + p.Sprintf("%d", v.Round(0).IntPart())
	}
	f, _ := v.Round(2).Float64()
	return sym + p.Sprintf("%.2f", f)
}

// Rate formats an exchange rate with four decimals.
func Rate(v *decimal.Decimal) string {
	if v == nil {
		return NA
	}
	return v.StringFixed(4)
}

// Block is one titled table of a Snapshot.
type Block struct {
	Title  string
	Header []string
	Rows   [][]string
	// Note replaces the rows when the whole section is unavailable.
	Note string
}

// Blocks lays out every configured section of snap in display order.
func Blocks(snap aggregate.Snapshot) []Block {
	var out []Block
	local := snap.LocalCurrency != ""

	priced := func(section aggregate.Section, name, col string, m map[string]aggregate.Priced, label func(string) string) {
		if m == nil && snap.Reason(section) == "" {
			return
		}
		b := Block{Title: name, Header: []string{col, "USD"}}
		if local {
			b.Header = append(b.Header, snap.LocalCurrency)
		}
		if m == nil {
			b.Note = unavailable(snap.Reason(section))
			out = append(out, b)
			return
		}
		for _, k := range snap.Keys(section, slices.Collect(maps.Keys(m))) {
			row := []string{label(k), NA}
			var loc *decimal.Decimal
			if p, ok := m[k]; ok {
				price := p.Price
				row[1] = USD(&price)
				loc = p.Local
			}
			if local {
				row = append(row, Local(snap.LocalCurrency, loc))
			}
			b.Rows = append(b.Rows, row)
		}
		out = append(out, b)
	}

	priced(aggregate.SectionCrypto, "Crypto", "Name", snap.Crypto, titleCase)
	priced(aggregate.SectionStocks, "US Stocks", "Symbol", snap.Stocks, func(s string) string { return s })
	priced(aggregate.SectionMetals, "Precious Metals (per troy oz)", "Metal", snap.Metals, metalName)

	if snap.FX != nil || snap.Reason(aggregate.SectionFX) != "" || local {
		base := snap.FXBase
		if base == "" {
			base = "USD"
		}
		b := Block{Title: "Exchange Rates", Header: []string{"Pair", "Rate"}}
		switch {
		case snap.FX != nil:
			for _, code := range snap.Keys(aggregate.SectionFX, slices.Collect(maps.Keys(snap.FX))) {
				if code == base {
					continue
				}
				var r *decimal.Decimal
				if v, ok := snap.FX[code]; ok {
					r = &v
				}
				b.Rows = append(b.Rows, []string{base + "/" + code, Rate(r)})
			}
		case snap.Reason(aggregate.SectionFX) != "":
			b.Rows = append(b.Rows, []string{base + "/*", unavailable(snap.Reason(aggregate.SectionFX))})
		}
		if local {
			b.Rows = append(b.Rows, []string{"USD/" + snap.LocalCurrency, Local(snap.LocalCurrency, snap.LocalRate)})
		}
		out = append(out, b)
	}

	if snap.Weather != nil || snap.Reason(aggregate.SectionWeather) != "" {
		b := Block{Title: "Weather", Header: []string{"City", "Temp", "Conditions"}}
		if snap.Weather == nil {
			b.Note = unavailable(snap.Reason(aggregate.SectionWeather))
		}
		for _, site := range snap.Keys(aggregate.SectionWeather, slices.Collect(maps.Keys(snap.Weather))) {
			w := snap.Weather[site]
			if w == nil {
				if snap.Weather != nil {
					b.Rows = append(b.Rows, []string{site, NA, "unavailable"})
				}
				continue
			}
			b.Rows = append(b.Rows, []string{site, w.TemperatureC.StringFixed(1) + "°C", titleCase(w.Description)})
		}
		out = append(out, b)
	}
	return out
}

func metalName(code string) string {
	if n, ok := metalprice.Names[code]; ok {
		return n
	}
	return code
}

func unavailable(reason string) string {
	if reason == "" {
		return "unavailable"
	}
	return "unavailable (" + reason + ")"
}

// Message renders snap as a monospaced chat message in loc's time zone.
func Message(snap aggregate.Snapshot, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	var b strings.Builder
	b.WriteString("```text\n")
	fmt.Fprintf(&b, "MARKET UPDATE - %s\n", snap.GeneratedAt.In(loc).Format("15:04:05 MST"))
	for _, blk := range Blocks(snap) {
		b.WriteString("\n")
		b.WriteString(blk.Title)
		b.WriteString("\n")
		if blk.Note != "" {
			b.WriteString(blk.Note)
			b.WriteString("\n")
			continue
		}
		writeTable(&b, blk.Header, blk.Rows)
	}
	b.WriteString("```")
	return b.String()
}

// writeTable pads every column to its widest cell.
func writeTable(b *strings.Builder, header []string, rows [][]string) {
	widths := make([]int, len(header))
	for _, r := range append([][]string{header}, rows...) {
		for i, c := range r {
			if i < len(widths) && len([]rune(c)) > widths[i] {
				widths[i] = len([]rune(c))
			}
		}
	}
	line := func(r []string) {
		for i, c := range r {
			if i == len(r)-1 {
				b.WriteString(c)
				break
			}
			b.WriteString(c)
			b.WriteString(strings.Repeat(" ", widths[i]-len([]rune(c))+2))
		}
		b.WriteString("\n")
	}
	line(header)
	for _, r := range rows {
		line(r)
	}
}
