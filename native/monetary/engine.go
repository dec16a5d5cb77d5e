package monetary

import (
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultEarnestPercent is the earnest money share of the purchase price.
const DefaultEarnestPercent = 10

// Parsed amounts are bounded so later rescaling stays cheap. 78 integer
// digits covers every 256-bit base-unit value.
const (
	maxFractionDigits = 36
	maxIntegerDigits  = 78
)

// quoteDecimals is the display precision used for quote currencies that are
// not part of the registry, such as fiat "USD".
const quoteDecimals = 8

// Engine performs currency-aware arithmetic against an immutable registry.
// It holds no mutable state and is safe for concurrent use.
type Engine struct {
	registry   *Registry
	rates      RateSource
	fees       FeePolicy
	rejections RejectionRecorder
}

// RejectionRecorder counts failed amount validations by currency and
// failure kind.
type RejectionRecorder interface {
	RecordRejection(currency, kind string)
}

// Option configures an Engine.
type Option func(*Engine)

// WithRateSource installs the exchange rate collaborator used by
// ConvertCurrency. Without one every cross-currency conversion fails with
// ErrNoExchangeRate.
func WithRateSource(src RateSource) Option {
	return func(e *Engine) {
		if src != nil {
			e.rates = src
		}
	}
}

// WithMetrics reports validation rejections to r.
func WithMetrics(r RejectionRecorder) Option {
	return func(e *Engine) { e.rejections = r }
}

// WithFeePolicy overrides the static fee table.
func WithFeePolicy(p FeePolicy) Option {
	return func(e *Engine) { e.fees = p }
}

// NewEngine binds an engine to reg.
func NewEngine(reg *Registry, opts ...Option) (*Engine, error) {
	if reg == nil {
		return nil, fmt.Errorf("monetary: registry required")
	}
	e := &Engine{
		registry: reg,
		rates:    noRates{},
		fees:     DefaultFeePolicy(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	if e.fees.Native.IsNegative() || e.fees.Token.IsNegative() {
		return nil, fmt.Errorf("monetary: fee policy must be non-negative")
	}
	return e, nil
}

// Registry exposes the engine's currency registry.
func (e *Engine) Registry() *Registry { return e.registry }

// Descriptor resolves the descriptor for sym.
func (e *Engine) Descriptor(sym Symbol) (Descriptor, error) { return e.registry.Lookup(sym) }

// Supported lists every registered currency in display order.
func (e *Engine) Supported() []Descriptor { return e.registry.Descriptors() }

// IsSupported reports whether sym is registered.
func (e *Engine) IsSupported(sym Symbol) bool { return e.registry.Contains(sym) }

// IsNative reports whether sym is the chain's native asset. Unknown symbols
// are not native.
func (e *Engine) IsNative(sym Symbol) bool {
	desc, err := e.registry.Lookup(sym)
	return err == nil && desc.Native
}

// ContractRef returns the token contract for sym, or "" for the native asset
// and unknown symbols.
func (e *Engine) ContractRef(sym Symbol) string {
	desc, err := e.registry.Lookup(sym)
	if err != nil {
		return ""
	}
	return desc.ContractRef
}

// NativeCurrency returns the descriptor fees are denominated in.
func (e *Engine) NativeCurrency() Descriptor { return e.registry.Native() }

// ParseAmount parses a human-entered decimal string. Scientific notation is
// accepted; NaN, infinities and empty input are not.
func ParseAmount(raw string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return decimal.Decimal{}, fmt.Errorf("%w: empty amount", ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	if err := checkMagnitude(d); err != nil {
		return decimal.Decimal{}, err
	}
	return d, nil
}

// checkMagnitude rejects amounts whose exponent or digit count would make
// rescaling unbounded.
func checkMagnitude(d decimal.Decimal) error {
	exp := int64(d.Exponent())
	if exp < -maxFractionDigits {
		return fmt.Errorf("%w: more than %d fractional digits", ErrInvalidAmount, maxFractionDigits)
	}
	if d.IsZero() {
		return nil
	}
	digits := int64(len(new(big.Int).Abs(d.Coefficient()).String()))
	if digits+exp > maxIntegerDigits {
		return fmt.Errorf("%w: more than %d integer digits", ErrInvalidAmount, maxIntegerDigits)
	}
	return nil
}

// DecimalFromFloat converts a float amount, rejecting non-finite values.
func DecimalFromFloat(f float64) (decimal.Decimal, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Decimal{}, fmt.Errorf("%w: non-finite %v", ErrInvalidAmount, f)
	}
	d := decimal.NewFromFloat(f)
	if err := checkMagnitude(d); err != nil {
		return decimal.Decimal{}, err
	}
	return d, nil
}

// ToBaseUnits converts a decimal amount into integer base units of sym,
// rounding half-up.
func (e *Engine) ToBaseUnits(amount string, sym Symbol) (*big.Int, error) {
	desc, err := e.registry.Lookup(sym)
	if err != nil {
		return nil, err
	}
	d, err := ParseAmount(amount)
	if err != nil {
		return nil, err
	}
	return toBase(d, desc)
}

// ToBaseUnitsDecimal is ToBaseUnits for an already parsed amount.
func (e *Engine) ToBaseUnitsDecimal(amount decimal.Decimal, sym Symbol) (*big.Int, error) {
	desc, err := e.registry.Lookup(sym)
	if err != nil {
		return nil, err
	}
	return toBase(amount, desc)
}

func toBase(d decimal.Decimal, desc Descriptor) (*big.Int, error) {
	if err := checkMagnitude(d); err != nil {
		return nil, err
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("%w: negative amount %s", ErrInvalidAmount, d.String())
	}
	// Round is half away from zero, which is half-up for non-negative input.
	return d.Shift(int32(desc.Decimals)).Round(0).BigInt(), nil
}

// FromBaseUnits renders base units of sym as a decimal string with exactly
// Decimals fractional digits.
func (e *Engine) FromBaseUnits(amount *big.Int, sym Symbol) (string, error) {
	desc, err := e.registry.Lookup(sym)
	if err != nil {
		return "", err
	}
	if amount == nil {
		return "", fmt.Errorf("%w: nil amount", ErrInvalidAmount)
	}
	if amount.Sign() < 0 {
		return "", fmt.Errorf("%w: negative base units %s", ErrInvalidAmount, amount.String())
	}
	return fromBase(amount, desc), nil
}

func fromBase(amount *big.Int, desc Descriptor) string {
	return decimal.NewFromBigInt(amount, -int32(desc.Decimals)).StringFixed(int32(desc.Decimals))
}

// FormatCurrency renders "<amount> <symbol>". It never fails: unknown
// currencies and unparsable amounts are echoed back as given.
func (e *Engine) FormatCurrency(amount string, sym Symbol, amountIsBaseUnits bool) string {
	fallback := fmt.Sprintf("%s %s", amount, sym)
	desc, err := e.registry.Lookup(sym)
	if err != nil {
		return fallback
	}
	if amountIsBaseUnits {
		units, ok := new(big.Int).SetString(strings.TrimSpace(amount), 10)
		if !ok || units.Sign() < 0 {
			return fallback
		}
		return fmt.Sprintf("%s %s", fromBase(units, desc), desc.Symbol)
	}
	d, err := ParseAmount(amount)
	if err != nil {
		return fallback
	}
	return fmt.Sprintf("%s %s", d.StringFixed(int32(desc.Decimals)), desc.Symbol)
}

// FormatBaseUnits is FormatCurrency for an integer amount already in base units.
func (e *Engine) FormatBaseUnits(amount *big.Int, sym Symbol) string {
	if amount == nil {
		return e.FormatCurrency("0", sym, true)
	}
	return e.FormatCurrency(amount.String(), sym, true)
}

// CalculateEarnestMoney returns round(price * percent / 100), half-up.
func CalculateEarnestMoney(price *big.Int, percent decimal.Decimal) (*big.Int, error) {
	share, err := earnestShare(price, percent)
	if err != nil {
		return nil, err
	}
	return share.Round(0).BigInt(), nil
}

// FloorEarnestMoney returns floor(price * percent / 100).
func FloorEarnestMoney(price *big.Int, percent decimal.Decimal) (*big.Int, error) {
	share, err := earnestShare(price, percent)
	if err != nil {
		return nil, err
	}
	return share.Floor().BigInt(), nil
}

func earnestShare(price *big.Int, percent decimal.Decimal) (decimal.Decimal, error) {
	if price == nil || price.Sign() < 0 {
		return decimal.Decimal{}, fmt.Errorf("%w: purchase price must be non-negative", ErrInvalidAmount)
	}
	if percent.IsNegative() || percent.GreaterThan(decimal.NewFromInt(100)) {
		return decimal.Decimal{}, fmt.Errorf("%w: percentage %s out of range", ErrInvalidAmount, percent.String())
	}
	return decimal.NewFromBigInt(price, 0).Mul(percent).Shift(-2), nil
}

// Validation is the outcome of an escrow amount check. Reason is nil when
// Valid is true; Message is a user-facing explanation.
type Validation struct {
	Valid   bool
	Reason  error
	Message string
}

// Kind returns the failure kind, KindNone when valid.
func (v Validation) Kind() ErrorKind { return Kind(v.Reason) }

// ValidateEscrowAmount checks a human-entered amount against the currency's
// minimum transactable amount.
func (e *Engine) ValidateEscrowAmount(amount string, sym Symbol) Validation {
	desc, err := e.registry.Lookup(sym)
	if err != nil {
		return e.reject(sym, err, fmt.Sprintf("Unsupported currency %s", sym))
	}
	d, err := ParseAmount(amount)
	if err != nil {
		return e.reject(desc.Symbol, err, "Please enter a valid positive amount")
	}
	return e.validateDecimal(d, desc)
}

// ValidateBaseUnits is ValidateEscrowAmount for an amount in base units.
func (e *Engine) ValidateBaseUnits(amount *big.Int, sym Symbol) Validation {
	desc, err := e.registry.Lookup(sym)
	if err != nil {
		return e.reject(sym, err, fmt.Sprintf("Unsupported currency %s", sym))
	}
	if amount == nil {
		return e.reject(desc.Symbol, fmt.Errorf("%w: nil amount", ErrInvalidAmount), "Please enter a valid positive amount")
	}
	return e.validateDecimal(decimal.NewFromBigInt(amount, -int32(desc.Decimals)), desc)
}

func (e *Engine) validateDecimal(d decimal.Decimal, desc Descriptor) Validation {
	if d.Sign() <= 0 {
		return e.reject(desc.Symbol, fmt.Errorf("%w: %s must be positive", ErrInvalidAmount, d.String()), "Please enter a valid positive amount")
	}
	if d.LessThan(desc.MinimumTransactable) {
		return e.reject(desc.Symbol,
			fmt.Errorf("%w: %s < %s %s", ErrBelowMinimum, d.String(), desc.MinimumTransactable.String(), desc.Symbol),
			fmt.Sprintf("Minimum amount is %s %s", desc.MinimumTransactable.String(), desc.Symbol))
	}
	return Validation{Valid: true}
}

func (e *Engine) reject(sym Symbol, reason error, message string) Validation {
	if e.rejections != nil {
		e.rejections.RecordRejection(string(sym), string(Kind(reason)))
	}
	return Validation{Reason: reason, Message: message}
}

// ExchangeRate resolves the rate for from -> to through the configured rate
// source. Identical currencies always have rate 1.
func (e *Engine) ExchangeRate(from, to Symbol) (Quote, error) {
	if !e.registry.Contains(from) && !e.registry.Contains(to) {
		if _, err := e.registry.Lookup(from); err != nil {
			return Quote{}, err
		}
	}
	if from.key() == to.key() {
		return Quote{From: from, To: to, Rate: decimal.NewFromInt(1), Source: "identity"}, nil
	}
	q, err := e.rates.Rate(from, to)
	if err != nil {
		return Quote{}, err
	}
	if q.Rate.Sign() <= 0 {
		return Quote{}, fmt.Errorf("%w: %s/%s has non-positive rate", ErrNoExchangeRate, from, to)
	}
	return q, nil
}

// ConvertCurrency converts a decimal amount of from into to, formatted with
// the target currency's decimals. It fails closed when no rate is known.
func (e *Engine) ConvertCurrency(amount string, from, to Symbol) (string, error) {
	d, err := ParseAmount(amount)
	if err != nil {
		return "", err
	}
	if d.IsNegative() {
		return "", fmt.Errorf("%w: negative amount %s", ErrInvalidAmount, d.String())
	}
	places := e.displayDecimals(to)
	q, err := e.ExchangeRate(from, to)
	if err != nil {
		return "", err
	}
	return d.Mul(q.Rate).StringFixed(places), nil
}

func (e *Engine) displayDecimals(sym Symbol) int32 {
	if desc, err := e.registry.Lookup(sym); err == nil {
		return int32(desc.Decimals)
	}
	return quoteDecimals
}
