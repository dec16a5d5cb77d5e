package escrow

import (
	"strconv"
)

const (
	EventTypeCreated        = "escrow.created"
	EventTypeSellerAssigned = "escrow.seller_assigned"
	EventTypePartialFunded  = "escrow.partially_funded"
	EventTypeFunded         = "escrow.funded"
	EventTypeSigned         = "escrow.signed"
	EventTypeConditionMet   = "escrow.condition_met"
	EventTypeCompleted      = "escrow.completed"
	EventTypeRefunded       = "escrow.refunded"
	EventTypeExpired        = "escrow.expired"
)

// Event describes an accepted escrow mutation. Attributes always carry the
// escrow id, state and revision after the change.
type Event struct {
	Type       string
	EscrowID   string
	Attributes map[string]string
}

// EventType implements events.Event.
func (e Event) EventType() string { return e.Type }

// Attr returns a single attribute value.
func (e Event) Attr(key string) string { return e.Attributes[key] }

func newEvent(kind string, tx *Transaction, extra ...string) Event {
	attrs := map[string]string{
		"id":             tx.ID,
		"propertyId":     tx.PropertyID,
		"currency":       tx.Currency.String(),
		"state":          tx.State.String(),
		"revision":       strconv.FormatUint(tx.Revision, 10),
		"fundsDeposited": cloneInt(tx.FundsDeposited).String(),
		"earnestMoney":   cloneInt(tx.EarnestMoney).String(),
	}
	for i := 0; i+1 < len(extra); i += 2 {
		attrs[extra[i]] = extra[i+1]
	}
	return Event{Type: kind, EscrowID: tx.ID, Attributes: attrs}
}
