// Package money renders amounts for display using explicit currency settings.
package money

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Settings describes how amounts are displayed on the terminal.
type Settings struct {
	Symbol      string
	Locale      string
	Decimals    int
	SymbolAfter bool
}

// DefaultSettings mirrors the backend's stock currency configuration.
func DefaultSettings() Settings {
	return Settings{Symbol: "$", Locale: "en-US", Decimals: 2}
}

// Formatter renders decimal amounts with a fixed set of settings.
type Formatter struct {
	settings Settings
	group    string
	decimal  string
}

// NewFormatter builds a formatter. An unknown locale falls back to English and
// a negative decimal count falls back to two places.
func NewFormatter(settings Settings) *Formatter {
	if settings.Decimals < 0 {
		settings.Decimals = 2
	}
	tag, err := language.Parse(strings.TrimSpace(settings.Locale))
	if err != nil || settings.Locale == "" {
		tag = language.English
	}
	group, dec := separators(message.NewPrinter(tag))
	return &Formatter{settings: settings, group: group, decimal: dec}
}

// separators asks x/text how the locale writes 1234.5 and reads the grouping
// and decimal marks back out of it.
func separators(p *message.Printer) (group, dec string) {
	sample := p.Sprint(number.Decimal(1234.5, number.MinFractionDigits(1), number.MaxFractionDigits(1)))
	head, rest, ok := strings.Cut(sample, "234")
	if !ok || !strings.HasPrefix(head, "1") || !strings.HasSuffix(rest, "5") {
		return ",", "."
	}
	return strings.TrimPrefix(head, "1"), strings.TrimSuffix(rest, "5")
}

// Settings returns the settings the formatter was built with.
func (f *Formatter) Settings() Settings {
	return f.settings
}

// Number renders the amount with locale grouping and the configured number of
// decimals, without a currency symbol.
func (f *Formatter) Number(amount decimal.Decimal) string {
	places := f.settings.Decimals
	rounded := amount.Round(int32(places))
	whole, frac, _ := strings.Cut(rounded.Abs().StringFixed(int32(places)), ".")

	var b strings.Builder
	if rounded.IsNegative() {
		b.WriteByte('-')
	}
	for i, digit := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteString(f.group)
		}
		b.WriteRune(digit)
	}
	if frac != "" {
		b.WriteString(f.decimal)
		b.WriteString(frac)
	}
	return b.String()
}

// Format renders the amount with the currency symbol before or after the number.
func (f *Formatter) Format(amount decimal.Decimal) string {
	value := f.Number(amount)
	sign := ""
	if strings.HasPrefix(value, "-") {
		sign = "-"
		value = value[1:]
	}
	symbol := f.settings.Symbol
	switch {
	case symbol == "":
		return sign + value
	case f.settings.SymbolAfter:
		return sign + value + " " + symbol
	default:
		return sign + symbol + value
	}
}
