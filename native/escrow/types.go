package escrow

import (
	"fmt"
	"math/big"
	"strings"

	"propertyescrow/native/monetary"
)

// State enumerates the lifecycle phases of a property escrow.
type State uint8

const (
	StatePending State = iota
	StateFunded
	StateCompleted
	StateCancelled
	StateExpired
)

var stateLabels = [...]string{
	StatePending:   "pending",
	StateFunded:    "funded",
	StateCompleted: "completed",
	StateCancelled: "cancelled",
	StateExpired:   "expired",
}

// Valid reports whether the state is one of the known lifecycle phases.
func (s State) Valid() bool { return int(s) < len(stateLabels) }

// Terminal reports whether no further transition is accepted.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateCancelled, StateExpired:
		return true
	default:
		return false
	}
}

// Open reports whether the escrow can still be funded, refunded or have
// conditions recorded.
func (s State) Open() bool { return s == StatePending || s == StateFunded }

func (s State) String() string {
	if !s.Valid() {
		return fmt.Sprintf("state(%d)", uint8(s))
	}
	return stateLabels[s]
}

// ParseState resolves a lowercase label back into a State.
func ParseState(raw string) (State, error) {
	label := strings.ToLower(strings.TrimSpace(raw))
	for i, candidate := range stateLabels {
		if candidate == label {
			return State(i), nil
		}
	}
	return 0, fmt.Errorf("escrow: unknown state %q", raw)
}

// Transaction is a snapshot of a single property purchase escrow. Amounts are
// base units of Currency.
type Transaction struct {
	ID              string
	PropertyID      string
	Currency        monetary.Symbol
	PurchasePrice   *big.Int
	EarnestMoney    *big.Int
	FundsDeposited  *big.Int
	Buyer           string
	Seller          string
	BuyerSignature  bool
	SellerSignature bool
	Conditions      []string
	ConditionsMet   []bool
	State           State
	ExpiryHeight    uint64
	CreatedAt       int64
	UpdatedAt       int64
	Revision        uint64
}

// Clone returns a deep copy of the transaction.
func (t *Transaction) Clone() *Transaction {
	if t == nil {
		return nil
	}
	clone := *t
	clone.PurchasePrice = cloneInt(t.PurchasePrice)
	clone.EarnestMoney = cloneInt(t.EarnestMoney)
	clone.FundsDeposited = cloneInt(t.FundsDeposited)
	clone.Conditions = append([]string(nil), t.Conditions...)
	clone.ConditionsMet = append([]bool(nil), t.ConditionsMet...)
	return &clone
}

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// IsParty reports whether who is the buyer or the assigned seller.
func (t *Transaction) IsParty(who string) bool {
	who = strings.TrimSpace(who)
	if t == nil || who == "" {
		return false
	}
	return who == t.Buyer || (t.Seller != "" && who == t.Seller)
}

// ConditionsSatisfied returns the number of conditions marked met.
func (t *Transaction) ConditionsSatisfied() int {
	n := 0
	for _, met := range t.ConditionsMet {
		if met {
			n++
		}
	}
	return n
}

// AllConditionsMet reports whether every condition has been marked met. An
// escrow without conditions trivially satisfies this.
func (t *Transaction) AllConditionsMet() bool {
	return t.ConditionsSatisfied() == len(t.ConditionsMet)
}

// RemainingEarnest returns how much the buyer still has to deposit before the
// escrow is funded. It never goes negative.
func (t *Transaction) RemainingEarnest() *big.Int {
	remaining := new(big.Int).Sub(cloneInt(t.EarnestMoney), cloneInt(t.FundsDeposited))
	if remaining.Sign() < 0 {
		return big.NewInt(0)
	}
	return remaining
}
