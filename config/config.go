package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"propertyescrow/native/escrow"
	"propertyescrow/native/monetary"
)

const (
	DefaultServiceName = "settlectl"
	DefaultRateSource  = "policy-table"
)

// Format identifies the file syntax of a configuration document.
type Format string

const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
)

// FormatFor infers the format from a file extension.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("config: unsupported file extension %q", filepath.Ext(path))
	}
}

// Default returns the built-in configuration: the Stacks currency set, a ten
// percent earnest deposit and the built-in policy rate table. Loaded files
// only get the rates they list.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	for _, entry := range monetary.DefaultRateEntries() {
		cfg.Rates.Pairs = append(cfg.Rates.Pairs, RatePair{
			From: entry.From.String(),
			To:   entry.To.String(),
			Rate: entry.Rate.String(),
		})
	}
	return cfg
}

// Load reads, defaults and validates the configuration at path.
func Load(path string) (*Config, error) {
	format, err := FormatFor(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a configuration document. Unknown keys are rejected.
func Parse(data []byte, format Format) (*Config, error) {
	cfg := &Config{}
	switch format {
	case FormatTOML:
		meta, err := toml.Decode(string(data), cfg)
		if err != nil {
			return nil, err
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, key := range undecoded {
				keys = append(keys, key.String())
			}
			return nil, fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
		}
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Service.Name) == "" {
		c.Service.Name = DefaultServiceName
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
	if len(c.Currencies) == 0 {
		for _, desc := range monetary.DefaultDescriptors() {
			c.Currencies = append(c.Currencies, CurrencyConfig{
				Symbol:      desc.Symbol.String(),
				Name:        desc.Name,
				Description: desc.Description,
				Decimals:    desc.Decimals,
				Native:      desc.Native,
				ContractRef: desc.ContractRef,
				Minimum:     desc.MinimumTransactable.String(),
			})
		}
	}
	for i := range c.Currencies {
		if strings.TrimSpace(c.Currencies[i].Minimum) == "" {
			c.Currencies[i].Minimum = "0"
		}
	}
	if strings.TrimSpace(c.Escrow.EarnestPercent) == "" {
		c.Escrow.EarnestPercent = fmt.Sprint(monetary.DefaultEarnestPercent)
	}
	if c.Escrow.ExpiryBlocks == 0 {
		c.Escrow.ExpiryBlocks = escrow.DefaultExpiryWindow
	}
	if c.Escrow.MaxConditions == 0 {
		c.Escrow.MaxConditions = escrow.DefaultMaxConditions
	}
	fees := monetary.DefaultFeePolicy()
	if strings.TrimSpace(c.Fees.Native) == "" {
		c.Fees.Native = fees.Native.String()
	}
	if strings.TrimSpace(c.Fees.Token) == "" {
		c.Fees.Token = fees.Token.String()
	}
	if strings.TrimSpace(c.Rates.Source) == "" {
		c.Rates.Source = DefaultRateSource
	}
}

// Validate checks every section by building the objects it describes.
func (c *Config) Validate() error {
	if _, err := c.Registry(); err != nil {
		return fmt.Errorf("currencies: %w", err)
	}
	if _, err := c.EscrowPolicy(); err != nil {
		return fmt.Errorf("escrow: %w", err)
	}
	if _, err := c.FeePolicy(); err != nil {
		return fmt.Errorf("fees: %w", err)
	}
	if _, err := c.RateTable(); err != nil {
		return fmt.Errorf("rates: %w", err)
	}
	if c.Rates.MaxAge.Duration < 0 {
		return errors.New("rates: max_age must not be negative")
	}
	if _, err := c.LogOptions(); err != nil {
		return err
	}
	return nil
}
