package escrow

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

type digestPayload struct {
	ID              string
	PropertyID      string
	Currency        string
	PurchasePrice   *big.Int
	EarnestMoney    *big.Int
	FundsDeposited  *big.Int
	Buyer           string
	Seller          string
	BuyerSignature  bool
	SellerSignature bool
	Conditions      []string
	ConditionsMet   []bool
	State           uint8
	ExpiryHeight    uint64
	CreatedAt       uint64
	Revision        uint64
}

// Encode returns the canonical RLP encoding of the snapshot. UpdatedAt is
// excluded so replicas that apply the same mutations agree on the bytes.
func (t *Transaction) Encode() ([]byte, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: nil transaction", ErrValidationFailed)
	}
	if t.CreatedAt < 0 {
		return nil, fmt.Errorf("%w: negative creation time", ErrValidationFailed)
	}
	payload := digestPayload{
		ID:              t.ID,
		PropertyID:      t.PropertyID,
		Currency:        t.Currency.String(),
		PurchasePrice:   cloneInt(t.PurchasePrice),
		EarnestMoney:    cloneInt(t.EarnestMoney),
		FundsDeposited:  cloneInt(t.FundsDeposited),
		Buyer:           t.Buyer,
		Seller:          t.Seller,
		BuyerSignature:  t.BuyerSignature,
		SellerSignature: t.SellerSignature,
		Conditions:      append([]string{}, t.Conditions...),
		ConditionsMet:   append([]bool{}, t.ConditionsMet...),
		State:           uint8(t.State),
		ExpiryHeight:    t.ExpiryHeight,
		CreatedAt:       uint64(t.CreatedAt),
		Revision:        t.Revision,
	}
	return rlp.EncodeToBytes(&payload)
}

// Digest returns the keccak256 hash of the canonical encoding.
func (t *Transaction) Digest() (common.Hash, error) {
	enc, err := t.Encode()
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(enc), nil
}
