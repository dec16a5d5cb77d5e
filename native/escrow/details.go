package escrow

import (
	"fmt"
	"math/big"

	"propertyescrow/native/monetary"
)

// Details is the display summary of an escrow, with every amount formatted
// in its currency.
type Details struct {
	ID                string          `json:"id"`
	PropertyID        string          `json:"propertyId"`
	State             string          `json:"state"`
	Currency          monetary.Symbol `json:"currency"`
	CurrencyName      string          `json:"currencyName"`
	IsNative          bool            `json:"isNative"`
	ContractRef       string          `json:"contractRef,omitempty"`
	PurchasePrice     string          `json:"purchasePrice"`
	EarnestMoney      string          `json:"earnestMoney"`
	FundsDeposited    string          `json:"fundsDeposited"`
	RemainingEarnest  string          `json:"remainingEarnest"`
	FundingPercent    int64           `json:"fundingPercent"`
	Buyer             string          `json:"buyer"`
	Seller            string          `json:"seller,omitempty"`
	BuyerSigned       bool            `json:"buyerSigned"`
	SellerSigned      bool            `json:"sellerSigned"`
	ConditionsMet     int             `json:"conditionsMet"`
	ConditionsTotal   int             `json:"conditionsTotal"`
	ExpiryHeight      uint64          `json:"expiryHeight"`
	BlocksUntilExpiry uint64          `json:"blocksUntilExpiry"`
	FeeHint           string          `json:"feeHint,omitempty"`
	Revision          uint64          `json:"revision"`
}

// Describe builds the display summary of tx at the given height.
func Describe(money *monetary.Engine, tx *Transaction, height uint64) Details {
	d := Details{
		ID:               tx.ID,
		PropertyID:       tx.PropertyID,
		State:            tx.State.String(),
		Currency:         tx.Currency,
		CurrencyName:     tx.Currency.String(),
		PurchasePrice:    money.FormatBaseUnits(tx.PurchasePrice, tx.Currency),
		EarnestMoney:     money.FormatBaseUnits(tx.EarnestMoney, tx.Currency),
		FundsDeposited:   money.FormatBaseUnits(tx.FundsDeposited, tx.Currency),
		RemainingEarnest: money.FormatBaseUnits(tx.RemainingEarnest(), tx.Currency),
		FundingPercent:   fundingPercent(tx),
		Buyer:            tx.Buyer,
		Seller:           tx.Seller,
		BuyerSigned:      tx.BuyerSignature,
		SellerSigned:     tx.SellerSignature,
		ConditionsMet:    tx.ConditionsSatisfied(),
		ConditionsTotal:  len(tx.ConditionsMet),
		ExpiryHeight:     tx.ExpiryHeight,
		Revision:         tx.Revision,
	}
	if desc, err := money.Descriptor(tx.Currency); err == nil {
		d.CurrencyName = desc.Name
		d.IsNative = desc.Native
		d.ContractRef = desc.ContractRef
	}
	if height < tx.ExpiryHeight {
		d.BlocksUntilExpiry = tx.ExpiryHeight - height
	}
	if fee, err := money.EstimateTransactionFee(tx.Currency); err == nil {
		d.FeeHint = fmt.Sprintf("%s %s (%s)", fee.FeeAmount, fee.FeeCurrency, fee.Description)
	}
	return d
}

func fundingPercent(tx *Transaction) int64 {
	earnest := cloneInt(tx.EarnestMoney)
	if earnest.Sign() <= 0 {
		return 0
	}
	pct := new(big.Int).Mul(cloneInt(tx.FundsDeposited), big.NewInt(100))
	pct.Quo(pct, earnest)
	if pct.Cmp(big.NewInt(100)) > 0 {
		return 100
	}
	return pct.Int64()
}

// Details returns the display summary of an escrow at the current height.
func (e *Engine) Details(id string) (Details, error) {
	tx, err := e.Get(id)
	if err != nil {
		return Details{}, err
	}
	return Describe(e.money, tx, e.ordering.CurrentHeight()), nil
}
