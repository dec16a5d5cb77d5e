package escrow

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"strings"

	"github.com/holiman/uint256"
	"golang.org/x/text/unicode/norm"

	nativecommon "propertyescrow/native/common"
	"propertyescrow/native/monetary"
	"propertyescrow/observability/logging"
)

// CreateParams describes a new escrow. Seller may be left empty and assigned
// later by the buyer. A zero ExpiryHeight selects the policy window.
type CreateParams struct {
	PropertyID    string
	Currency      monetary.Symbol
	PurchasePrice *big.Int
	Buyer         string
	Seller        string
	Conditions    []string
	ExpiryHeight  uint64
}

func representable(v *big.Int) error {
	if _, overflow := uint256.FromBig(v); overflow {
		return fmt.Errorf("%w: amount %s exceeds 256 bits", ErrValidationFailed, v.String())
	}
	return nil
}

func normalizeConditions(raw []string, limit int) ([]string, error) {
	if len(raw) > limit {
		return nil, fmt.Errorf("%w: %d conditions exceeds limit of %d", ErrValidationFailed, len(raw), limit)
	}
	out := make([]string, 0, len(raw))
	for i, label := range raw {
		label = norm.NFC.String(strings.TrimSpace(label))
		if label == "" {
			return nil, fmt.Errorf("%w: condition %d is blank", ErrValidationFailed, i)
		}
		out = append(out, label)
	}
	return out, nil
}

// Create registers a new pending escrow. Earnest money is the floor of the
// policy percentage of the purchase price.
func (e *Engine) Create(p CreateParams) (*Transaction, error) {
	if err := nativecommon.Guard(e.pauses, ModuleName); err != nil {
		e.rejected("create", "", err)
		return nil, err
	}
	tx, err := e.buildTransaction(p)
	if err != nil {
		e.rejected("create", "", err)
		return nil, err
	}

	e.mu.Lock()
	if _, exists := e.entries[tx.ID]; exists {
		e.mu.Unlock()
		err := fmt.Errorf("escrow: duplicate id %s", tx.ID)
		e.rejected("create", tx.ID, err)
		return nil, err
	}
	e.entries[tx.ID] = &entry{tx: tx}
	e.order = append(e.order, tx.ID)
	e.mu.Unlock()

	snapshot := tx.Clone()
	e.metrics.RecordTransition("new", snapshot.State.String())
	e.logger.Info("escrow created",
		slog.String("escrow_id", snapshot.ID),
		slog.String("property_id", snapshot.PropertyID),
		slog.String("currency", snapshot.Currency.String()),
		logging.Party("buyer", snapshot.Buyer),
		logging.Party("seller", snapshot.Seller),
		slog.Uint64("expiry_height", snapshot.ExpiryHeight),
	)
	e.emitter.Emit(newEvent(EventTypeCreated, snapshot,
		"buyer", snapshot.Buyer,
		"seller", snapshot.Seller,
		"purchasePrice", snapshot.PurchasePrice.String(),
		"expiryHeight", strconv.FormatUint(snapshot.ExpiryHeight, 10),
	))
	return snapshot, nil
}

func (e *Engine) buildTransaction(p CreateParams) (*Transaction, error) {
	property := strings.TrimSpace(p.PropertyID)
	buyer := strings.TrimSpace(p.Buyer)
	if property == "" || buyer == "" {
		return nil, ErrNoPropertyOrBuyer
	}
	desc, err := e.money.Descriptor(p.Currency)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}
	if p.PurchasePrice == nil {
		return nil, fmt.Errorf("%w: %w: purchase price required", ErrValidationFailed, monetary.ErrInvalidAmount)
	}
	if v := e.money.ValidateBaseUnits(p.PurchasePrice, desc.Symbol); !v.Valid {
		return nil, fmt.Errorf("%w: %w", ErrValidationFailed, v.Reason)
	}
	if err := representable(p.PurchasePrice); err != nil {
		return nil, err
	}
	earnest, err := monetary.FloorEarnestMoney(p.PurchasePrice, e.policy.EarnestPercent)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}
	if earnest.Sign() <= 0 {
		return nil, fmt.Errorf("%w: earnest money rounds to zero", ErrValidationFailed)
	}
	seller := strings.TrimSpace(p.Seller)
	if seller == buyer {
		return nil, fmt.Errorf("%w: buyer and seller must differ", ErrValidationFailed)
	}
	conditions, err := normalizeConditions(p.Conditions, e.policy.MaxConditions)
	if err != nil {
		return nil, err
	}

	current := e.ordering.CurrentHeight()
	expiry := p.ExpiryHeight
	if expiry == 0 {
		expiry = current + e.policy.ExpiryWindow
	} else if expiry <= current {
		return nil, fmt.Errorf("%w: expiry height %d is not after current height %d", ErrValidationFailed, expiry, current)
	}

	id := strings.TrimSpace(e.idFn())
	if id == "" {
		return nil, errors.New("escrow: id generator returned empty id")
	}
	now := e.now()
	return &Transaction{
		ID:             id,
		PropertyID:     property,
		Currency:       desc.Symbol,
		PurchasePrice:  new(big.Int).Set(p.PurchasePrice),
		EarnestMoney:   earnest,
		FundsDeposited: big.NewInt(0),
		Buyer:          buyer,
		Seller:         seller,
		Conditions:     conditions,
		ConditionsMet:  make([]bool, len(conditions)),
		State:          StatePending,
		ExpiryHeight:   expiry,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// AssignSeller records the listing owner on an escrow created without one.
// Only the buyer may assign, and only once.
func (e *Engine) AssignSeller(id, requester, seller string) (*Transaction, error) {
	requester = strings.TrimSpace(requester)
	seller = strings.TrimSpace(seller)
	return e.mutate("assign_seller", id, func(tx *Transaction) ([]change, error) {
		if !tx.State.Open() {
			return nil, fmt.Errorf("%w: cannot assign seller to %s escrow", ErrWrongState, tx.State)
		}
		if requester == "" || requester != tx.Buyer {
			return nil, fmt.Errorf("%w: only the buyer can assign the seller", ErrUnauthorized)
		}
		if tx.Seller != "" {
			return nil, ErrSellerAssigned
		}
		if seller == "" || seller == tx.Buyer {
			return nil, fmt.Errorf("%w: seller must be set and differ from buyer", ErrValidationFailed)
		}
		tx.Seller = seller
		return []change{changed(EventTypeSellerAssigned, "seller", seller)}, nil
	})
}

// Fund deposits amount base units from payer. Deposits accumulate; the escrow
// becomes funded once the total reaches the earnest money.
func (e *Engine) Fund(id, payer string, amount *big.Int) (*Transaction, error) {
	payer = strings.TrimSpace(payer)
	tx, err := e.mutate("fund", id, func(tx *Transaction) ([]change, error) {
		if tx.State != StatePending {
			return nil, fmt.Errorf("%w: cannot fund %s escrow", ErrWrongState, tx.State)
		}
		if payer == "" || payer != tx.Buyer {
			return nil, fmt.Errorf("%w: only the buyer can fund", ErrUnauthorized)
		}
		if current := e.ordering.CurrentHeight(); current >= tx.ExpiryHeight {
			return nil, fmt.Errorf("%w: height %d reached expiry %d", ErrExpired, current, tx.ExpiryHeight)
		}
		if amount == nil || amount.Sign() <= 0 {
			return nil, fmt.Errorf("%w: %w: deposit must be positive", ErrValidationFailed, monetary.ErrInvalidAmount)
		}
		total := new(big.Int).Add(tx.FundsDeposited, amount)
		if err := representable(total); err != nil {
			return nil, err
		}
		tx.FundsDeposited = total
		kind := EventTypePartialFunded
		if total.Cmp(tx.EarnestMoney) >= 0 {
			tx.State = StateFunded
			kind = EventTypeFunded
		}
		return []change{changed(kind, "amount", amount.String(), "payer", payer)}, nil
	})
	if err != nil {
		return nil, err
	}
	deposit, _ := new(big.Float).SetInt(amount).Float64()
	e.metrics.RecordDeposit(tx.Currency.String(), deposit)
	return tx, nil
}

// Sign records the signer's approval. Both parties must sign a funded escrow
// before it can complete.
func (e *Engine) Sign(id, signer string) (*Transaction, error) {
	signer = strings.TrimSpace(signer)
	return e.mutate("sign", id, func(tx *Transaction) ([]change, error) {
		if tx.State != StateFunded {
			return nil, fmt.Errorf("%w: cannot sign %s escrow", ErrWrongState, tx.State)
		}
		var role string
		switch {
		case !tx.IsParty(signer):
			return nil, fmt.Errorf("%w: %s is not a party", ErrUnauthorized, logging.ShortParty(signer))
		case signer == tx.Buyer:
			if tx.BuyerSignature {
				return nil, fmt.Errorf("%w: buyer", ErrAlreadySigned)
			}
			tx.BuyerSignature = true
			role = "buyer"
		default:
			if tx.SellerSignature {
				return nil, fmt.Errorf("%w: seller", ErrAlreadySigned)
			}
			tx.SellerSignature = true
			role = "seller"
		}
		return []change{changed(EventTypeSigned, "role", role, "signer", signer)}, nil
	})
}

// MarkCondition records a closing condition as met. Conditions never revert;
// repeating a mark that is already in effect succeeds without a change.
func (e *Engine) MarkCondition(id string, index int, met bool) (*Transaction, error) {
	return e.mutate("mark_condition", id, func(tx *Transaction) ([]change, error) {
		if !tx.State.Open() {
			return nil, fmt.Errorf("%w: cannot update conditions of %s escrow", ErrWrongState, tx.State)
		}
		if index < 0 || index >= len(tx.ConditionsMet) {
			return nil, fmt.Errorf("%w: %d of %d", ErrInvalidCondition, index, len(tx.ConditionsMet))
		}
		current := tx.ConditionsMet[index]
		if current && !met {
			return nil, fmt.Errorf("%w: condition %d", ErrIrreversibleCondition, index)
		}
		if current == met {
			return nil, nil
		}
		tx.ConditionsMet[index] = true
		return []change{changed(EventTypeConditionMet,
			"index", strconv.Itoa(index),
			"condition", tx.Conditions[index],
		)}, nil
	})
}

// Complete releases the escrow to the seller once it is funded, signed by
// both parties and every condition is met.
func (e *Engine) Complete(id, requester string) (*Transaction, error) {
	requester = strings.TrimSpace(requester)
	return e.mutate("complete", id, func(tx *Transaction) ([]change, error) {
		if tx.State.Terminal() {
			return nil, fmt.Errorf("%w: escrow already %s", ErrWrongState, tx.State)
		}
		if !tx.IsParty(requester) {
			return nil, fmt.Errorf("%w: only a party can complete", ErrUnauthorized)
		}
		if !tx.CanComplete() {
			return nil, fmt.Errorf("%w: %s", ErrPreconditionsNotMet, missingPreconditions(tx))
		}
		tx.State = StateCompleted
		return []change{changed(EventTypeCompleted,
			"releasedTo", tx.Seller,
			"amount", tx.FundsDeposited.String(),
		)}, nil
	})
}

func missingPreconditions(tx *Transaction) string {
	var missing []string
	if tx.State != StateFunded {
		missing = append(missing, "escrow is "+tx.State.String())
	}
	if !tx.BuyerSignature {
		missing = append(missing, "buyer signature")
	}
	if !tx.SellerSignature {
		missing = append(missing, "seller signature")
	}
	if n, total := tx.ConditionsSatisfied(), len(tx.ConditionsMet); n < total {
		missing = append(missing, fmt.Sprintf("%d of %d conditions met", n, total))
	}
	return strings.Join(missing, "; ")
}

// Refund cancels an open escrow at the request of either party. Deposited
// funds go back to the buyer.
func (e *Engine) Refund(id, requester string) (*Transaction, error) {
	requester = strings.TrimSpace(requester)
	return e.mutate("refund", id, func(tx *Transaction) ([]change, error) {
		if !tx.State.Open() {
			return nil, fmt.Errorf("%w: cannot refund %s escrow", ErrWrongState, tx.State)
		}
		if !tx.IsParty(requester) {
			return nil, fmt.Errorf("%w: only a party can refund", ErrUnauthorized)
		}
		tx.State = StateCancelled
		return []change{changed(EventTypeRefunded,
			"refundTo", tx.Buyer,
			"amount", tx.FundsDeposited.String(),
			"requester", requester,
		)}, nil
	})
}

// Expire moves every open escrow whose expiry height is at or below current
// into the expired state and returns the transitioned snapshots. Running the
// sweep again at the same height changes nothing.
func (e *Engine) Expire(current uint64) []*Transaction {
	if nativecommon.Guard(e.pauses, ModuleName) != nil {
		return nil
	}
	var expired []*Transaction
	for _, ent := range e.snapshotEntries() {
		ent.mu.Lock()
		if !ent.tx.State.Open() || current < ent.tx.ExpiryHeight {
			ent.mu.Unlock()
			continue
		}
		from := ent.tx.State
		working := ent.tx.Clone()
		working.State = StateExpired
		working.Revision++
		working.UpdatedAt = e.now()
		ent.tx = working
		snapshot := working.Clone()
		ent.mu.Unlock()

		e.accepted("expire", from, snapshot, []change{
			changed(EventTypeExpired, "height", strconv.FormatUint(current, 10)),
		})
		expired = append(expired, snapshot)
	}
	e.metrics.RecordExpired(len(expired))
	return expired
}

// ExpireNow runs the sweep at the ordering source's current height.
func (e *Engine) ExpireNow() []*Transaction {
	return e.Expire(e.ordering.CurrentHeight())
}
