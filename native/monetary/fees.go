package monetary

import (
	"math/big"

	"github.com/shopspring/decimal"
)

const (
	nativeFeeDescription = "Standard transaction fee"
	tokenFeeDescription  = "Includes token transfer approval"
)

// FeePolicy holds the flat fee hints, in native currency, for each kind of
// transfer. Token transfers carry an extra approval call and cost more.
type FeePolicy struct {
	Native decimal.Decimal
	Token  decimal.Decimal
}

// DefaultFeePolicy returns the Stacks fee table.
func DefaultFeePolicy() FeePolicy {
	return FeePolicy{
		Native: decimal.New(1, -3),
		Token:  decimal.New(2, -3),
	}
}

// FeeEstimate is an upper-bound fee hint. It is not a guarantee of the fee
// the network will charge.
type FeeEstimate struct {
	FeeCurrency  Symbol
	FeeAmount    string
	FeeBaseUnits *big.Int
	Description  string
}

// EstimateTransactionFee returns the static fee hint for moving sym.
func (e *Engine) EstimateTransactionFee(sym Symbol) (FeeEstimate, error) {
	desc, err := e.registry.Lookup(sym)
	if err != nil {
		return FeeEstimate{}, err
	}
	native := e.registry.Native()
	fee, description := e.fees.Token, tokenFeeDescription
	if desc.Native {
		fee, description = e.fees.Native, nativeFeeDescription
	}
	units := fee.Shift(int32(native.Decimals)).Round(0).BigInt()
	return FeeEstimate{
		FeeCurrency:  native.Symbol,
		FeeAmount:    fee.StringFixed(int32(native.Decimals)),
		FeeBaseUnits: units,
		Description:  description,
	}, nil
}
