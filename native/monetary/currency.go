package monetary

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Symbol identifies a registered currency. Lookups are case-insensitive; the
// registry always hands back the canonical casing.
type Symbol string

const (
	STX  Symbol = "STX"
	SBTC Symbol = "sBTC"
	USDH Symbol = "USDh"
)

// MaxDecimals bounds the precision a currency may declare.
const MaxDecimals = 18

func (s Symbol) String() string { return string(s) }

func (s Symbol) key() string { return strings.ToUpper(strings.TrimSpace(string(s))) }

// Descriptor is the static definition of a currency.
type Descriptor struct {
	Symbol              Symbol
	Name                string
	Description         string
	Decimals            uint8
	Native              bool
	ContractRef         string
	MinimumTransactable decimal.Decimal
}

func (d Descriptor) validate() error {
	if strings.TrimSpace(string(d.Symbol)) == "" {
		return fmt.Errorf("currency symbol required")
	}
	if d.Decimals > MaxDecimals {
		return fmt.Errorf("currency %s: decimals %d exceed %d", d.Symbol, d.Decimals, MaxDecimals)
	}
	ref := strings.TrimSpace(d.ContractRef)
	if d.Native && ref != "" {
		return fmt.Errorf("currency %s: native asset must not carry a contract reference", d.Symbol)
	}
	if !d.Native && ref == "" {
		return fmt.Errorf("currency %s: token requires a contract reference", d.Symbol)
	}
	if d.MinimumTransactable.IsNegative() {
		return fmt.Errorf("currency %s: minimum must be non-negative", d.Symbol)
	}
	return nil
}

// Registry is an immutable set of currency descriptors with exactly one
// native asset.
type Registry struct {
	order  []Symbol
	byKey  map[string]Descriptor
	native Symbol
}

// NewRegistry validates the descriptors and freezes them into a registry.
func NewRegistry(descriptors ...Descriptor) (*Registry, error) {
	if len(descriptors) == 0 {
		return nil, fmt.Errorf("registry requires at least one currency")
	}
	reg := &Registry{
		order: make([]Symbol, 0, len(descriptors)),
		byKey: make(map[string]Descriptor, len(descriptors)),
	}
	for _, desc := range descriptors {
		desc.Symbol = Symbol(strings.TrimSpace(string(desc.Symbol)))
		desc.ContractRef = strings.TrimSpace(desc.ContractRef)
		if err := desc.validate(); err != nil {
			return nil, err
		}
		k := desc.Symbol.key()
		if _, dup := reg.byKey[k]; dup {
			return nil, fmt.Errorf("duplicate currency symbol %s", desc.Symbol)
		}
		if desc.Native {
			if reg.native != "" {
				return nil, fmt.Errorf("registry allows one native currency, got %s and %s", reg.native, desc.Symbol)
			}
			reg.native = desc.Symbol
		}
		reg.byKey[k] = desc
		reg.order = append(reg.order, desc.Symbol)
	}
	if reg.native == "" {
		return nil, fmt.Errorf("registry requires a native currency for fees")
	}
	return reg, nil
}

// DefaultRegistry returns the STX / sBTC / USDh registry used on Stacks.
func DefaultRegistry() *Registry {
	reg, err := NewRegistry(DefaultDescriptors()...)
	if err != nil {
		panic(fmt.Sprintf("monetary: default registry: %v", err))
	}
	return reg
}

// DefaultDescriptors lists the built-in currency definitions in display order.
func DefaultDescriptors() []Descriptor {
	return []Descriptor{
		{
			Symbol:              STX,
			Name:                "Stacks",
			Description:         "Native Stacks token",
			Decimals:            6,
			Native:              true,
			MinimumTransactable: decimal.NewFromInt(100),
		},
		{
			Symbol:              SBTC,
			Name:                "Stacks Bitcoin",
			Description:         "Bitcoin on Stacks",
			Decimals:            8,
			ContractRef:         "SP3DX3H4FEYZJZ586MFBS25ZW3HZDMEW92260R2PR.Wrapped-Bitcoin",
			MinimumTransactable: decimal.New(1, -3),
		},
		{
			Symbol:              USDH,
			Name:                "Hermetica USD",
			Description:         "BTC-backed stablecoin by Hermetica",
			Decimals:            8,
			ContractRef:         "SP2XD7417HGPRTREMKF748VNEQPDRR0RMANB7X1NK.token-usdh",
			MinimumTransactable: decimal.NewFromInt(1000),
		},
	}
}

// Lookup resolves sym to its descriptor.
func (r *Registry) Lookup(sym Symbol) (Descriptor, error) {
	if r == nil {
		return Descriptor{}, fmt.Errorf("%w: %s", ErrUnknownCurrency, sym)
	}
	desc, ok := r.byKey[sym.key()]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %s", ErrUnknownCurrency, sym)
	}
	return desc, nil
}

// Contains reports whether sym is registered.
func (r *Registry) Contains(sym Symbol) bool {
	_, err := r.Lookup(sym)
	return err == nil
}

// Native returns the registry's native currency.
func (r *Registry) Native() Descriptor {
	desc, _ := r.Lookup(r.native)
	return desc
}

// Symbols returns the registered symbols in registration order.
func (r *Registry) Symbols() []Symbol {
	return append([]Symbol(nil), r.order...)
}

// Descriptors returns the registered descriptors in registration order.
func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, sym := range r.order {
		out = append(out, r.byKey[sym.key()])
	}
	return out
}
