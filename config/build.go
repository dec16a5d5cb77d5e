package config

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	nativecommon "propertyescrow/native/common"
	"propertyescrow/native/escrow"
	"propertyescrow/native/monetary"
	"propertyescrow/observability/logging"
	"propertyescrow/observability/metrics"
)

func parseDecimal(field, raw string) (decimal.Decimal, error) {
	d, err := monetary.ParseAmount(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%s: %w", field, err)
	}
	return d, nil
}

// Registry builds the currency registry from the currencies section.
func (c *Config) Registry() (*monetary.Registry, error) {
	descs := make([]monetary.Descriptor, 0, len(c.Currencies))
	for _, cur := range c.Currencies {
		minimum, err := parseDecimal(cur.Symbol+" minimum", cur.Minimum)
		if err != nil {
			return nil, err
		}
		descs = append(descs, monetary.Descriptor{
			Symbol:              monetary.Symbol(cur.Symbol),
			Name:                cur.Name,
			Description:         cur.Description,
			Decimals:            cur.Decimals,
			Native:              cur.Native,
			ContractRef:         cur.ContractRef,
			MinimumTransactable: minimum,
		})
	}
	return monetary.NewRegistry(descs...)
}

// FeePolicy builds the fee hint table.
func (c *Config) FeePolicy() (monetary.FeePolicy, error) {
	native, err := parseDecimal("native fee", c.Fees.Native)
	if err != nil {
		return monetary.FeePolicy{}, err
	}
	token, err := parseDecimal("token fee", c.Fees.Token)
	if err != nil {
		return monetary.FeePolicy{}, err
	}
	if native.IsNegative() || token.IsNegative() {
		return monetary.FeePolicy{}, fmt.Errorf("fees must not be negative")
	}
	return monetary.FeePolicy{Native: native, Token: token}, nil
}

// RateTable builds the static exchange rate table.
func (c *Config) RateTable() (*monetary.StaticRates, error) {
	entries := make([]monetary.RateEntry, 0, len(c.Rates.Pairs))
	for _, pair := range c.Rates.Pairs {
		rate, err := parseDecimal(pair.From+"/"+pair.To, pair.Rate)
		if err != nil {
			return nil, err
		}
		entries = append(entries, monetary.RateEntry{
			From: monetary.Symbol(pair.From),
			To:   monetary.Symbol(pair.To),
			Rate: rate,
		})
	}
	return monetary.NewStaticRates(c.Rates.Source, c.Rates.AsOf, entries...)
}

// MonetaryEngine builds the monetary engine. now drives the rate staleness
// check when max_age is set; nil selects the wall clock.
func (c *Config) MonetaryEngine(now func() time.Time) (*monetary.Engine, error) {
	registry, err := c.Registry()
	if err != nil {
		return nil, err
	}
	fees, err := c.FeePolicy()
	if err != nil {
		return nil, err
	}
	table, err := c.RateTable()
	if err != nil {
		return nil, err
	}
	var rates monetary.RateSource = table
	if c.Rates.MaxAge.Duration > 0 {
		rates = monetary.FreshRates{Source: table, MaxAge: c.Rates.MaxAge.Duration, Now: now}
	}
	return monetary.NewEngine(registry,
		monetary.WithFeePolicy(fees),
		monetary.WithRateSource(rates),
		monetary.WithMetrics(metrics.Monetary()),
	)
}

// EscrowPolicy builds the lifecycle policy.
func (c *Config) EscrowPolicy() (escrow.Policy, error) {
	percent, err := parseDecimal("earnest_percent", c.Escrow.EarnestPercent)
	if err != nil {
		return escrow.Policy{}, err
	}
	policy := escrow.Policy{
		EarnestPercent: percent,
		ExpiryWindow:   c.Escrow.ExpiryBlocks,
		MaxConditions:  c.Escrow.MaxConditions,
	}
	if err := policy.Validate(); err != nil {
		return escrow.Policy{}, err
	}
	return policy, nil
}

// LogOptions maps the service and logging sections onto logger options.
func (c *Config) LogOptions() (logging.Options, error) {
	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		return logging.Options{}, err
	}
	return logging.Options{Service: c.Service.Name, Env: c.Service.Env, Level: level}, nil
}

// Pauses returns the operator pause set declared in the service section.
func (c *Config) Pauses() *nativecommon.PauseSet {
	return nativecommon.NewPauseSet(c.Service.Paused...)
}
