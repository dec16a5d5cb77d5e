package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so it can be written as "15m" in both YAML and
// TOML files.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	return d.UnmarshalText([]byte(value.Value))
}

// UnmarshalText implements encoding.TextUnmarshaler for the TOML decoder.
func (d *Duration) UnmarshalText(text []byte) error {
	raw := string(text)
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalText renders the duration in time.Duration notation.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the settlement core configuration.
type Config struct {
	Service    ServiceConfig    `toml:"service" yaml:"service"`
	Logging    LoggingConfig    `toml:"logging" yaml:"logging"`
	Currencies []CurrencyConfig `toml:"currencies" yaml:"currencies"`
	Escrow     EscrowConfig     `toml:"escrow" yaml:"escrow"`
	Fees       FeeConfig        `toml:"fees" yaml:"fees"`
	Rates      RatesConfig      `toml:"rates" yaml:"rates"`
}

// ServiceConfig names the process in logs. Paused lists modules halted by
// the operator.
type ServiceConfig struct {
	Name   string   `toml:"name" yaml:"name"`
	Env    string   `toml:"env" yaml:"env"`
	Paused []string `toml:"paused" yaml:"paused"`
}

// LoggingConfig selects the minimum log level.
type LoggingConfig struct {
	Level string `toml:"level" yaml:"level"`
}

// CurrencyConfig declares one registry entry. Minimum is a decimal string in
// whole units.
type CurrencyConfig struct {
	Symbol      string `toml:"symbol" yaml:"symbol"`
	Name        string `toml:"name" yaml:"name"`
	Description string `toml:"description" yaml:"description"`
	Decimals    uint8  `toml:"decimals" yaml:"decimals"`
	Native      bool   `toml:"native" yaml:"native"`
	ContractRef string `toml:"contract_ref" yaml:"contract_ref"`
	Minimum     string `toml:"minimum" yaml:"minimum"`
}

// EscrowConfig tunes the lifecycle policy.
type EscrowConfig struct {
	EarnestPercent string `toml:"earnest_percent" yaml:"earnest_percent"`
	ExpiryBlocks   uint64 `toml:"expiry_window_blocks" yaml:"expiry_window_blocks"`
	MaxConditions  int    `toml:"max_conditions" yaml:"max_conditions"`
}

// FeeConfig holds the fee hints in native currency units.
type FeeConfig struct {
	Native string `toml:"native" yaml:"native"`
	Token  string `toml:"token" yaml:"token"`
}

// RatesConfig is the static exchange rate table. A positive MaxAge rejects
// quotes older than AsOf + MaxAge.
type RatesConfig struct {
	Source string     `toml:"source" yaml:"source"`
	AsOf   time.Time  `toml:"as_of" yaml:"as_of"`
	MaxAge Duration   `toml:"max_age" yaml:"max_age"`
	Pairs  []RatePair `toml:"pairs" yaml:"pairs"`
}

// RatePair is one directional rate: one unit of From buys Rate units of To.
type RatePair struct {
	From string `toml:"from" yaml:"from"`
	To   string `toml:"to" yaml:"to"`
	Rate string `toml:"rate" yaml:"rate"`
}
