package monetary

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Quote is a single exchange rate observation: one unit of From buys Rate
// units of To.
type Quote struct {
	From      Symbol
	To        Symbol
	Rate      decimal.Decimal
	Source    string
	Timestamp time.Time
}

// RateSource resolves exchange rates. Implementations front a price feed and
// must answer from memory; the engine calls them while formatting results.
type RateSource interface {
	Rate(from, to Symbol) (Quote, error)
}

// RateSourceFunc adapts a function to RateSource.
type RateSourceFunc func(from, to Symbol) (Quote, error)

// Rate implements RateSource.
func (f RateSourceFunc) Rate(from, to Symbol) (Quote, error) { return f(from, to) }

// RateEntry is one row of a static rate table.
type RateEntry struct {
	From Symbol
	To   Symbol
	Rate decimal.Decimal
}

// StaticRates is a fixed policy table of exchange rates. Pairs are directional
// and never inverted or defaulted.
type StaticRates struct {
	source string
	asOf   time.Time
	rates  map[string]RateEntry
}

func pairKey(from, to Symbol) string { return from.key() + "/" + to.key() }

// NewStaticRates builds a rate table. Rates must be strictly positive and
// each directional pair may only be listed once.
func NewStaticRates(source string, asOf time.Time, entries ...RateEntry) (*StaticRates, error) {
	table := &StaticRates{
		source: strings.TrimSpace(source),
		asOf:   asOf,
		rates:  make(map[string]RateEntry, len(entries)),
	}
	if table.source == "" {
		table.source = "policy-table"
	}
	for _, entry := range entries {
		if entry.From.key() == "" || entry.To.key() == "" {
			return nil, fmt.Errorf("rate entry requires both currencies")
		}
		if entry.From.key() == entry.To.key() {
			return nil, fmt.Errorf("rate entry %s/%s: identical currencies", entry.From, entry.To)
		}
		if entry.Rate.Sign() <= 0 {
			return nil, fmt.Errorf("rate entry %s/%s: rate must be positive", entry.From, entry.To)
		}
		k := pairKey(entry.From, entry.To)
		if _, dup := table.rates[k]; dup {
			return nil, fmt.Errorf("rate entry %s/%s listed twice", entry.From, entry.To)
		}
		table.rates[k] = entry
	}
	return table, nil
}

// Rate implements RateSource.
func (s *StaticRates) Rate(from, to Symbol) (Quote, error) {
	if s == nil {
		return Quote{}, fmt.Errorf("%w: %s/%s", ErrNoExchangeRate, from, to)
	}
	entry, ok := s.rates[pairKey(from, to)]
	if !ok {
		return Quote{}, fmt.Errorf("%w: %s/%s", ErrNoExchangeRate, from, to)
	}
	return Quote{
		From:      entry.From,
		To:        entry.To,
		Rate:      entry.Rate,
		Source:    s.source,
		Timestamp: s.asOf,
	}, nil
}

// Len reports the number of pairs in the table.
func (s *StaticRates) Len() int {
	if s == nil {
		return 0
	}
	return len(s.rates)
}

type noRates struct{}

func (noRates) Rate(from, to Symbol) (Quote, error) {
	return Quote{}, fmt.Errorf("%w: %s/%s", ErrNoExchangeRate, from, to)
}

// FreshRates rejects quotes older than MaxAge, measured against Now. A zero
// quote timestamp is treated as stale.
type FreshRates struct {
	Source RateSource
	MaxAge time.Duration
	Now    func() time.Time
}

// Rate implements RateSource.
func (f FreshRates) Rate(from, to Symbol) (Quote, error) {
	if f.Source == nil {
		return noRates{}.Rate(from, to)
	}
	quote, err := f.Source.Rate(from, to)
	if err != nil || f.MaxAge <= 0 {
		return quote, err
	}
	now := time.Now
	if f.Now != nil {
		now = f.Now
	}
	if quote.Timestamp.IsZero() || now().Sub(quote.Timestamp) > f.MaxAge {
		return Quote{}, fmt.Errorf("%w: %s/%s quote is stale", ErrNoExchangeRate, from, to)
	}
	return quote, nil
}

// DefaultRateEntries is the built-in policy table for the Stacks currency
// set. Fiat legs are quoted in USD.
func DefaultRateEntries() []RateEntry {
	row := func(from, to Symbol, rate string) RateEntry {
		return RateEntry{From: from, To: to, Rate: decimal.RequireFromString(rate)}
	}
	return []RateEntry{
		row(STX, "USD", "0.50"),
		row(SBTC, "USD", "45000"),
		row(USDH, "USD", "1.00"),
		row(STX, SBTC, "0.000011"),
		row(SBTC, STX, "90000"),
		row(USDH, STX, "2.00"),
		row(STX, USDH, "0.50"),
	}
}
