package escrow

import "strings"

// CanFund reports whether requester may deposit into the escrow.
func (t *Transaction) CanFund(requester string) bool {
	return t != nil && t.State == StatePending && strings.TrimSpace(requester) == t.Buyer
}

// CanSign reports whether requester may sign now.
func (t *Transaction) CanSign(requester string) bool {
	if t == nil || t.State != StateFunded || !t.IsParty(requester) {
		return false
	}
	if strings.TrimSpace(requester) == t.Buyer {
		return !t.BuyerSignature
	}
	return !t.SellerSignature
}

// CanComplete reports whether the escrow satisfies every completion
// precondition: funded, both signatures present and all conditions met.
func (t *Transaction) CanComplete() bool {
	return t != nil &&
		t.State == StateFunded &&
		t.BuyerSignature &&
		t.SellerSignature &&
		t.AllConditionsMet()
}

// CanRefund reports whether requester may cancel the escrow.
func (t *Transaction) CanRefund(requester string) bool {
	return t != nil && t.State.Open() && t.IsParty(requester)
}

// Actions lists what a given participant may do with an escrow.
type Actions struct {
	Fund         bool `json:"fund"`
	Sign         bool `json:"sign"`
	Complete     bool `json:"complete"`
	Refund       bool `json:"refund"`
	AssignSeller bool `json:"assignSeller"`
}

// ActionsFor evaluates every permission query for requester.
func (t *Transaction) ActionsFor(requester string) Actions {
	if t == nil {
		return Actions{}
	}
	requester = strings.TrimSpace(requester)
	return Actions{
		Fund:         t.CanFund(requester),
		Sign:         t.CanSign(requester),
		Complete:     t.CanComplete() && t.IsParty(requester),
		Refund:       t.CanRefund(requester),
		AssignSeller: t.State.Open() && t.Seller == "" && requester != "" && requester == t.Buyer,
	}
}
