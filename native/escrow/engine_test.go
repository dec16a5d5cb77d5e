package escrow

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"propertyescrow/core/events"
	nativecommon "propertyescrow/native/common"
	"propertyescrow/native/monetary"
	"propertyescrow/observability/metrics"
)

const (
	buyer  = "SP2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKNRV9EJ7"
	seller = "SP3FBR2AGK5H9QBDH3EEN6DF8EK8JY7RX8QJ5SVTE"
	other  = "SP1HTBVD3JG9C05J7HBJTHGR0GGW7KXW28M5JS8QE"
)

type harness struct {
	engine   *Engine
	height   *ManualHeight
	recorder *events.Recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	money, err := monetary.NewEngine(monetary.DefaultRegistry())
	if err != nil {
		t.Fatalf("monetary engine: %v", err)
	}
	height := NewManualHeight(100)
	engine, err := NewEngine(money, height, DefaultPolicy())
	if err != nil {
		t.Fatalf("escrow engine: %v", err)
	}
	rec := &events.Recorder{}
	engine.SetEmitter(rec)
	engine.SetNowFunc(func() time.Time { return time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC) })
	var mu sync.Mutex
	next := 0
	engine.SetIDFunc(func() string {
		mu.Lock()
		defer mu.Unlock()
		next++
		return fmt.Sprintf("escrow-%d", next)
	})
	return &harness{engine: engine, height: height, recorder: rec}
}

func stx(whole int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(whole), big.NewInt(1_000_000))
}

func (h *harness) create(t *testing.T, conditions ...string) *Transaction {
	t.Helper()
	tx, err := h.engine.Create(CreateParams{
		PropertyID:    "prop-001",
		Currency:      monetary.STX,
		PurchasePrice: stx(1000),
		Buyer:         buyer,
		Seller:        seller,
		Conditions:    conditions,
		ExpiryHeight:  200,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return tx
}

func (h *harness) funded(t *testing.T, conditions ...string) *Transaction {
	t.Helper()
	tx := h.create(t, conditions...)
	funded, err := h.engine.Fund(tx.ID, buyer, tx.EarnestMoney)
	if err != nil {
		t.Fatalf("fund: %v", err)
	}
	return funded
}

func TestCreateComputesEarnestMoney(t *testing.T) {
	h := newHarness(t)
	tx, err := h.engine.Create(CreateParams{
		PropertyID:    " prop-001 ",
		Currency:      "stx",
		PurchasePrice: big.NewInt(1_000_000_000),
		Buyer:         buyer,
		Conditions:    []string{"Inspection", "Title search"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if tx.EarnestMoney.Cmp(big.NewInt(100_000_000)) != 0 {
		t.Fatalf("expected earnest 100000000, got %s", tx.EarnestMoney)
	}
	if tx.State != StatePending || tx.FundsDeposited.Sign() != 0 {
		t.Fatalf("unexpected initial state %+v", tx)
	}
	if tx.Currency != monetary.STX || tx.PropertyID != "prop-001" {
		t.Fatalf("expected canonical fields, got %q %q", tx.Currency, tx.PropertyID)
	}
	if tx.ExpiryHeight != 100+DefaultExpiryWindow {
		t.Fatalf("expected default expiry, got %d", tx.ExpiryHeight)
	}
	if len(tx.ConditionsMet) != 2 || tx.ConditionsMet[0] || tx.ConditionsMet[1] {
		t.Fatalf("expected two unmet conditions, got %v", tx.ConditionsMet)
	}
	if tx.Seller != "" || tx.Revision != 0 {
		t.Fatalf("unexpected seller/revision: %q %d", tx.Seller, tx.Revision)
	}
	if got := h.recorder.Types(); len(got) != 1 || got[0] != EventTypeCreated {
		t.Fatalf("expected created event, got %v", got)
	}
}

func TestCreateRequiresPropertyAndBuyer(t *testing.T) {
	h := newHarness(t)
	for _, p := range []CreateParams{
		{PropertyID: "", Currency: monetary.STX, PurchasePrice: stx(1000), Buyer: buyer},
		{PropertyID: "prop", Currency: monetary.STX, PurchasePrice: stx(1000), Buyer: "  "},
	} {
		if _, err := h.engine.Create(p); !errors.Is(err, ErrNoPropertyOrBuyer) {
			t.Fatalf("expected ErrNoPropertyOrBuyer, got %v", err)
		}
	}
}

func TestCreateValidationFailures(t *testing.T) {
	h := newHarness(t)
	base := CreateParams{PropertyID: "prop", Currency: monetary.STX, PurchasePrice: stx(1000), Buyer: buyer}
	huge := new(big.Int).Lsh(big.NewInt(1), 256)
	tooMany := make([]string, DefaultMaxConditions+1)
	for i := range tooMany {
		tooMany[i] = "condition"
	}
	cases := []struct {
		name  string
		edit  func(p *CreateParams)
		inner error
	}{
		{"unknown currency", func(p *CreateParams) { p.Currency = "DOGE" }, monetary.ErrUnknownCurrency},
		{"nil price", func(p *CreateParams) { p.PurchasePrice = nil }, monetary.ErrInvalidAmount},
		{"zero price", func(p *CreateParams) { p.PurchasePrice = big.NewInt(0) }, monetary.ErrInvalidAmount},
		{"below minimum", func(p *CreateParams) { p.PurchasePrice = big.NewInt(99_999_999) }, monetary.ErrBelowMinimum},
		{"overflow", func(p *CreateParams) { p.PurchasePrice = huge }, nil},
		{"seller is buyer", func(p *CreateParams) { p.Seller = buyer }, nil},
		{"blank condition", func(p *CreateParams) { p.Conditions = []string{"ok", " "} }, nil},
		{"too many conditions", func(p *CreateParams) { p.Conditions = tooMany }, nil},
		{"expiry in past", func(p *CreateParams) { p.ExpiryHeight = 100 }, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := base
			tc.edit(&p)
			_, err := h.engine.Create(p)
			if !errors.Is(err, ErrValidationFailed) {
				t.Fatalf("expected ErrValidationFailed, got %v", err)
			}
			if tc.inner != nil && !errors.Is(err, tc.inner) {
				t.Fatalf("expected wrapped %v, got %v", tc.inner, err)
			}
		})
	}
	if n := len(h.engine.List()); n != 0 {
		t.Fatalf("rejected creates must not be stored, found %d", n)
	}
}

func TestCreateNormalizesConditions(t *testing.T) {
	h := newHarness(t)
	tx := h.create(t, "  Cafe\u0301 inspection ")
	if tx.Conditions[0] != "Caf\u00e9 inspection" {
		t.Fatalf("expected NFC-normalized label, got %q", tx.Conditions[0])
	}
}

func TestPartialThenFullFunding(t *testing.T) {
	h := newHarness(t)
	tx := h.create(t)
	mid, err := h.engine.Fund(tx.ID, buyer, big.NewInt(50_000_000))
	if err != nil {
		t.Fatalf("first deposit: %v", err)
	}
	if mid.State != StatePending || mid.FundsDeposited.Cmp(big.NewInt(50_000_000)) != 0 {
		t.Fatalf("expected pending with 50000000, got %s %s", mid.State, mid.FundsDeposited)
	}
	full, err := h.engine.Fund(tx.ID, buyer, big.NewInt(50_000_000))
	if err != nil {
		t.Fatalf("second deposit: %v", err)
	}
	if full.State != StateFunded || full.FundsDeposited.Cmp(big.NewInt(100_000_000)) != 0 {
		t.Fatalf("expected funded with 100000000, got %s %s", full.State, full.FundsDeposited)
	}
	if full.Revision != 2 {
		t.Fatalf("expected revision 2, got %d", full.Revision)
	}
	got := h.recorder.Types()
	want := []string{EventTypeCreated, EventTypePartialFunded, EventTypeFunded}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("unexpected events %v", got)
	}
	if _, err := h.engine.Fund(tx.ID, buyer, big.NewInt(1)); !errors.Is(err, ErrWrongState) {
		t.Fatalf("expected ErrWrongState after funding, got %v", err)
	}
}

func TestFundOverpaymentStillFunds(t *testing.T) {
	h := newHarness(t)
	tx := h.create(t)
	funded, err := h.engine.Fund(tx.ID, buyer, stx(500))
	if err != nil {
		t.Fatalf("fund: %v", err)
	}
	if funded.State != StateFunded || funded.FundsDeposited.Cmp(stx(500)) != 0 {
		t.Fatalf("unexpected result %s %s", funded.State, funded.FundsDeposited)
	}
	if funded.RemainingEarnest().Sign() != 0 {
		t.Fatalf("remaining earnest must clamp at zero")
	}
}

func TestFundRejections(t *testing.T) {
	h := newHarness(t)
	tx := h.create(t)
	if _, err := h.engine.Fund(tx.ID, seller, big.NewInt(1)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := h.engine.Fund(tx.ID, buyer, big.NewInt(0)); !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("expected ErrValidationFailed for zero, got %v", err)
	}
	if _, err := h.engine.Fund(tx.ID, buyer, big.NewInt(-5)); !errors.Is(err, monetary.ErrInvalidAmount) {
		t.Fatalf("expected wrapped ErrInvalidAmount, got %v", err)
	}
	if _, err := h.engine.Fund(tx.ID, buyer, nil); !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("expected ErrValidationFailed for nil, got %v", err)
	}
	h.height.Set(200)
	if _, err := h.engine.Fund(tx.ID, buyer, big.NewInt(1)); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired at expiry height, got %v", err)
	}
	got, err := h.engine.Get(tx.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != StatePending || got.FundsDeposited.Sign() != 0 || got.Revision != 0 {
		t.Fatalf("rejected deposits must not change state: %+v", got)
	}
}

func TestFundRecordsMetrics(t *testing.T) {
	h := newHarness(t)
	tx := h.create(t)
	m := metrics.Escrow()
	deposits := testutil.ToFloat64(m.DepositCounter().WithLabelValues("STX"))
	transitions := testutil.ToFloat64(m.TransitionCounter().WithLabelValues("pending", "funded"))
	rejections := testutil.ToFloat64(m.RejectionCounter().WithLabelValues("fund", string(KindUnauthorized)))

	if _, err := h.engine.Fund(tx.ID, other, big.NewInt(1)); err == nil {
		t.Fatalf("expected rejection")
	}
	if _, err := h.engine.Fund(tx.ID, buyer, tx.EarnestMoney); err != nil {
		t.Fatalf("fund: %v", err)
	}
	if delta := testutil.ToFloat64(m.DepositCounter().WithLabelValues("STX")) - deposits; delta != 1e8 {
		t.Fatalf("expected deposit delta 1e8, got %v", delta)
	}
	if delta := testutil.ToFloat64(m.TransitionCounter().WithLabelValues("pending", "funded")) - transitions; delta != 1 {
		t.Fatalf("expected one transition, got %v", delta)
	}
	if delta := testutil.ToFloat64(m.RejectionCounter().WithLabelValues("fund", string(KindUnauthorized))) - rejections; delta != 1 {
		t.Fatalf("expected one rejection, got %v", delta)
	}
}

func TestDualSignatureGate(t *testing.T) {
	h := newHarness(t)
	tx := h.funded(t)
	if _, err := h.engine.Complete(tx.ID, buyer); !errors.Is(err, ErrPreconditionsNotMet) {
		t.Fatalf("expected ErrPreconditionsNotMet without signatures, got %v", err)
	}
	if _, err := h.engine.Sign(tx.ID, buyer); err != nil {
		t.Fatalf("buyer sign: %v", err)
	}
	if _, err := h.engine.Sign(tx.ID, buyer); !errors.Is(err, ErrAlreadySigned) {
		t.Fatalf("expected ErrAlreadySigned, got %v", err)
	}
	if _, err := h.engine.Complete(tx.ID, seller); !errors.Is(err, ErrPreconditionsNotMet) {
		t.Fatalf("expected ErrPreconditionsNotMet with one signature, got %v", err)
	}
	if _, err := h.engine.Sign(tx.ID, other); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for stranger, got %v", err)
	}
	signed, err := h.engine.Sign(tx.ID, seller)
	if err != nil {
		t.Fatalf("seller sign: %v", err)
	}
	if !signed.BuyerSignature || !signed.SellerSignature || !signed.CanComplete() {
		t.Fatalf("expected completable escrow: %+v", signed)
	}
	if _, err := h.engine.Complete(tx.ID, other); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized completing as stranger, got %v", err)
	}
	done, err := h.engine.Complete(tx.ID, seller)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.State != StateCompleted {
		t.Fatalf("expected completed, got %s", done.State)
	}
}

func TestSignRequiresFunding(t *testing.T) {
	h := newHarness(t)
	tx := h.create(t)
	if _, err := h.engine.Sign(tx.ID, buyer); !errors.Is(err, ErrWrongState) {
		t.Fatalf("expected ErrWrongState signing pending escrow, got %v", err)
	}
}

func TestCompletePendingEscrowFailsPreconditions(t *testing.T) {
	h := newHarness(t)
	tx := h.create(t)
	_, err := h.engine.Complete(tx.ID, buyer)
	if !errors.Is(err, ErrPreconditionsNotMet) {
		t.Fatalf("expected ErrPreconditionsNotMet, got %v", err)
	}
	if Kind(err) != KindPreconditionsNotMet {
		t.Fatalf("unexpected kind %q", Kind(err))
	}
}

func TestConditionsGateCompletion(t *testing.T) {
	h := newHarness(t)
	tx := h.funded(t, "Inspection", "Appraisal")
	for _, who := range []string{buyer, seller} {
		if _, err := h.engine.Sign(tx.ID, who); err != nil {
			t.Fatalf("sign %s: %v", who, err)
		}
	}
	if _, err := h.engine.Complete(tx.ID, buyer); !errors.Is(err, ErrPreconditionsNotMet) {
		t.Fatalf("expected ErrPreconditionsNotMet with open conditions, got %v", err)
	}
	if _, err := h.engine.MarkCondition(tx.ID, 2, true); !errors.Is(err, ErrInvalidCondition) {
		t.Fatalf("expected ErrInvalidCondition, got %v", err)
	}
	if _, err := h.engine.MarkCondition(tx.ID, -1, true); !errors.Is(err, ErrInvalidCondition) {
		t.Fatalf("expected ErrInvalidCondition for negative index, got %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := h.engine.MarkCondition(tx.ID, i, true); err != nil {
			t.Fatalf("mark %d: %v", i, err)
		}
	}
	if _, err := h.engine.Complete(tx.ID, buyer); err != nil {
		t.Fatalf("complete: %v", err)
	}
}

func TestConditionIrreversible(t *testing.T) {
	h := newHarness(t)
	tx := h.create(t, "Inspection")
	if _, err := h.engine.MarkCondition(tx.ID, 0, false); err != nil {
		t.Fatalf("marking unmet as unmet should be a no-op: %v", err)
	}
	marked, err := h.engine.MarkCondition(tx.ID, 0, true)
	if err != nil {
		t.Fatalf("mark: %v", err)
	}
	again, err := h.engine.MarkCondition(tx.ID, 0, true)
	if err != nil {
		t.Fatalf("re-mark should succeed: %v", err)
	}
	if again.Revision != marked.Revision {
		t.Fatalf("re-mark must not bump revision: %d vs %d", again.Revision, marked.Revision)
	}
	if _, err := h.engine.MarkCondition(tx.ID, 0, false); !errors.Is(err, ErrIrreversibleCondition) {
		t.Fatalf("expected ErrIrreversibleCondition, got %v", err)
	}
	got, _ := h.engine.Get(tx.ID)
	if !got.ConditionsMet[0] {
		t.Fatalf("condition must stay met")
	}
}

func TestRefund(t *testing.T) {
	h := newHarness(t)
	tx := h.funded(t)
	if _, err := h.engine.Refund(tx.ID, other); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	refunded, err := h.engine.Refund(tx.ID, seller)
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if refunded.State != StateCancelled {
		t.Fatalf("expected cancelled, got %s", refunded.State)
	}
	evts := h.recorder.Events()
	last := evts[len(evts)-1].(Event)
	if last.Type != EventTypeRefunded || last.Attr("refundTo") != buyer || last.Attr("amount") != "100000000" {
		t.Fatalf("unexpected refund event %+v", last)
	}
}

func TestExpireIsIdempotent(t *testing.T) {
	h := newHarness(t)
	pending := h.create(t)
	funded := h.funded(t)
	later, err := h.engine.Create(CreateParams{
		PropertyID: "prop-002", Currency: monetary.STX, PurchasePrice: stx(1000), Buyer: buyer, ExpiryHeight: 500,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	done := h.funded(t)
	for _, who := range []string{buyer, seller} {
		if _, err := h.engine.Sign(done.ID, who); err != nil {
			t.Fatalf("sign: %v", err)
		}
	}
	if _, err := h.engine.Complete(done.ID, buyer); err != nil {
		t.Fatalf("complete: %v", err)
	}

	if got := h.engine.Expire(199); len(got) != 0 {
		t.Fatalf("nothing should expire before height 200, got %d", len(got))
	}
	expired := h.engine.Expire(200)
	if len(expired) != 2 || expired[0].ID != pending.ID || expired[1].ID != funded.ID {
		t.Fatalf("unexpected expired set %v", expired)
	}
	for _, tx := range expired {
		if tx.State != StateExpired {
			t.Fatalf("expected expired state, got %s", tx.State)
		}
	}
	before := h.recorder.Types()
	if again := h.engine.Expire(200); len(again) != 0 {
		t.Fatalf("second sweep must be a no-op, got %d", len(again))
	}
	if len(h.recorder.Types()) != len(before) {
		t.Fatalf("second sweep must not emit events")
	}
	g, _ := h.engine.Get(later.ID)
	if g.State != StatePending {
		t.Fatalf("later escrow should remain pending, got %s", g.State)
	}
	c, _ := h.engine.Get(done.ID)
	if c.State != StateCompleted {
		t.Fatalf("completed escrow must not expire, got %s", c.State)
	}
}

func TestTerminalStatesRejectEverything(t *testing.T) {
	h := newHarness(t)

	completed := h.funded(t)
	for _, who := range []string{buyer, seller} {
		if _, err := h.engine.Sign(completed.ID, who); err != nil {
			t.Fatalf("sign: %v", err)
		}
	}
	if _, err := h.engine.Complete(completed.ID, buyer); err != nil {
		t.Fatalf("complete: %v", err)
	}
	cancelled := h.create(t, "Inspection")
	if _, err := h.engine.Refund(cancelled.ID, buyer); err != nil {
		t.Fatalf("refund: %v", err)
	}
	expired := h.create(t, "Inspection")
	h.engine.Expire(expired.ExpiryHeight)

	for _, id := range []string{completed.ID, cancelled.ID, expired.ID} {
		before, _ := h.engine.Get(id)
		ops := map[string]func() error{
			"fund":     func() error { _, err := h.engine.Fund(id, buyer, big.NewInt(1)); return err },
			"sign":     func() error { _, err := h.engine.Sign(id, seller); return err },
			"mark":     func() error { _, err := h.engine.MarkCondition(id, 0, true); return err },
			"complete": func() error { _, err := h.engine.Complete(id, buyer); return err },
			"refund":   func() error { _, err := h.engine.Refund(id, buyer); return err },
			"assign":   func() error { _, err := h.engine.AssignSeller(id, buyer, other); return err },
		}
		for name, op := range ops {
			if err := op(); !errors.Is(err, ErrWrongState) {
				t.Fatalf("%s on %s escrow: expected ErrWrongState, got %v", name, before.State, err)
			}
		}
		after, _ := h.engine.Get(id)
		if after.Revision != before.Revision || after.State != before.State {
			t.Fatalf("terminal escrow changed: %+v -> %+v", before, after)
		}
	}
}

func TestAssignSeller(t *testing.T) {
	h := newHarness(t)
	tx, err := h.engine.Create(CreateParams{
		PropertyID: "prop", Currency: monetary.SBTC, PurchasePrice: big.NewInt(10_000_000), Buyer: buyer,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	acts, err := h.engine.Actions(tx.ID, buyer)
	if err != nil || !acts.AssignSeller || !acts.Fund || acts.Sign {
		t.Fatalf("unexpected buyer actions %+v (%v)", acts, err)
	}
	if _, err := h.engine.Refund(tx.ID, seller); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("unassigned seller must not refund, got %v", err)
	}
	if _, err := h.engine.AssignSeller(tx.ID, seller, seller); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := h.engine.AssignSeller(tx.ID, buyer, buyer); !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("expected ErrValidationFailed, got %v", err)
	}
	assigned, err := h.engine.AssignSeller(tx.ID, buyer, seller)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if assigned.Seller != seller {
		t.Fatalf("expected seller assigned, got %q", assigned.Seller)
	}
	if _, err := h.engine.AssignSeller(tx.ID, buyer, other); !errors.Is(err, ErrSellerAssigned) {
		t.Fatalf("expected ErrSellerAssigned, got %v", err)
	}
}

func TestUnknownEscrow(t *testing.T) {
	h := newHarness(t)
	if _, err := h.engine.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := h.engine.Fund("missing", buyer, big.NewInt(1)); Kind(err) != KindNotFound {
		t.Fatalf("expected NotFound kind, got %v", err)
	}
	if _, err := h.engine.Details("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSnapshotsAreIsolated(t *testing.T) {
	h := newHarness(t)
	tx := h.create(t, "Inspection")
	tx.FundsDeposited.SetInt64(999)
	tx.ConditionsMet[0] = true
	tx.State = StateCompleted
	stored, _ := h.engine.Get(tx.ID)
	if stored.FundsDeposited.Sign() != 0 || stored.ConditionsMet[0] || stored.State != StatePending {
		t.Fatalf("caller mutation leaked into engine: %+v", stored)
	}
}

func TestConcurrentDeposits(t *testing.T) {
	h := newHarness(t)
	tx := h.create(t)
	const workers = 100
	deposit := big.NewInt(1_000_000)
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.engine.Fund(tx.ID, buyer, deposit); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("deposit failed: %v", err)
	}
	got, _ := h.engine.Get(tx.ID)
	if got.State != StateFunded || got.FundsDeposited.Cmp(big.NewInt(100_000_000)) != 0 {
		t.Fatalf("expected exact funded total, got %s %s", got.State, got.FundsDeposited)
	}
	if got.Revision != workers {
		t.Fatalf("expected revision %d, got %d", workers, got.Revision)
	}
	funded := 0
	for _, typ := range h.recorder.Types() {
		if typ == EventTypeFunded {
			funded++
		}
	}
	if funded != 1 {
		t.Fatalf("expected exactly one funded event, got %d", funded)
	}
}

func TestConcurrentSignAndRefund(t *testing.T) {
	h := newHarness(t)
	tx := h.funded(t)
	var wg sync.WaitGroup
	results := make(chan error, 3)
	for _, op := range []func() error{
		func() error { _, err := h.engine.Sign(tx.ID, buyer); return err },
		func() error { _, err := h.engine.Sign(tx.ID, seller); return err },
		func() error { _, err := h.engine.Refund(tx.ID, buyer); return err },
	} {
		wg.Add(1)
		go func(op func() error) {
			defer wg.Done()
			results <- op()
		}(op)
	}
	wg.Wait()
	close(results)
	for err := range results {
		if err != nil && !errors.Is(err, ErrWrongState) {
			t.Fatalf("unexpected error %v", err)
		}
	}
	got, _ := h.engine.Get(tx.ID)
	if got.State != StateCancelled && got.State != StateFunded {
		t.Fatalf("unexpected final state %s", got.State)
	}
}

func TestNewEngineValidation(t *testing.T) {
	money, _ := monetary.NewEngine(monetary.DefaultRegistry())
	if _, err := NewEngine(nil, NewManualHeight(0), DefaultPolicy()); err == nil {
		t.Fatalf("expected error without monetary engine")
	}
	if _, err := NewEngine(money, nil, DefaultPolicy()); err == nil {
		t.Fatalf("expected error without ordering source")
	}
	bad := DefaultPolicy()
	bad.ExpiryWindow = 0
	if _, err := NewEngine(money, OrderingFunc(func() uint64 { return 1 }), bad); err == nil {
		t.Fatalf("expected error for zero expiry window")
	}
}

func TestDefaultIDsAreUUIDs(t *testing.T) {
	money, _ := monetary.NewEngine(monetary.DefaultRegistry())
	engine, err := NewEngine(money, NewManualHeight(1), DefaultPolicy())
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	tx, err := engine.Create(CreateParams{PropertyID: "p", Currency: monetary.STX, PurchasePrice: stx(100), Buyer: buyer})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := uuid.Parse(tx.ID); err != nil {
		t.Fatalf("expected uuid id, got %q: %v", tx.ID, err)
	}
}

func TestPausedEngineRejectsMutations(t *testing.T) {
	h := newHarness(t)
	tx := h.create(t)
	pauses := nativecommon.NewPauseSet(ModuleName)
	h.engine.SetPauses(pauses)

	if _, err := h.engine.Fund(tx.ID, buyer, tx.EarnestMoney); Kind(err) != KindModulePaused {
		t.Fatalf("expected paused rejection, got %v", err)
	}
	if _, err := h.engine.Create(CreateParams{PropertyID: "p", Currency: monetary.STX, PurchasePrice: stx(100), Buyer: buyer}); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected paused create, got %v", err)
	}
	if got := h.engine.Expire(tx.ExpiryHeight); len(got) != 0 {
		t.Fatalf("paused sweep must not expire escrows")
	}
	if _, err := h.engine.Get(tx.ID); err != nil {
		t.Fatalf("reads must keep working: %v", err)
	}

	pauses.Resume(ModuleName)
	if _, err := h.engine.Fund(tx.ID, buyer, tx.EarnestMoney); err != nil {
		t.Fatalf("fund after resume: %v", err)
	}
}
