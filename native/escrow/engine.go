package escrow

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"propertyescrow/core/events"
	nativecommon "propertyescrow/native/common"
	"propertyescrow/native/monetary"
	"propertyescrow/observability/logging"
	"propertyescrow/observability/metrics"
)

// ModuleName identifies the lifecycle engine to operator pause controls.
const ModuleName = "escrow"

// DefaultExpiryWindow is the number of blocks an escrow stays open when the
// creator does not pick an explicit expiry, roughly thirty days of Stacks
// blocks.
const DefaultExpiryWindow uint64 = 4320

// DefaultMaxConditions bounds the number of closing conditions per escrow.
const DefaultMaxConditions = 32

// OrderingSource supplies the monotonically increasing value expiry is
// measured against, typically the current block height.
type OrderingSource interface {
	CurrentHeight() uint64
}

// OrderingFunc adapts a function to OrderingSource.
type OrderingFunc func() uint64

// CurrentHeight implements OrderingSource.
func (f OrderingFunc) CurrentHeight() uint64 { return f() }

// ManualHeight is an OrderingSource advanced explicitly by the caller. It is
// used by simulations and tests.
type ManualHeight struct {
	height atomic.Uint64
}

// NewManualHeight returns a source starting at height.
func NewManualHeight(height uint64) *ManualHeight {
	m := &ManualHeight{}
	m.height.Store(height)
	return m
}

// CurrentHeight implements OrderingSource.
func (m *ManualHeight) CurrentHeight() uint64 { return m.height.Load() }

// Set moves the source to height.
func (m *ManualHeight) Set(height uint64) { m.height.Store(height) }

// Advance moves the source forward by n and returns the new height.
func (m *ManualHeight) Advance(n uint64) uint64 { return m.height.Add(n) }

// Policy carries the configurable lifecycle parameters.
type Policy struct {
	EarnestPercent decimal.Decimal
	ExpiryWindow   uint64
	MaxConditions  int
}

// DefaultPolicy returns a ten percent earnest deposit with the default expiry
// window.
func DefaultPolicy() Policy {
	return Policy{
		EarnestPercent: decimal.NewFromInt(monetary.DefaultEarnestPercent),
		ExpiryWindow:   DefaultExpiryWindow,
		MaxConditions:  DefaultMaxConditions,
	}
}

// Validate checks the policy bounds.
func (p Policy) Validate() error {
	if !p.EarnestPercent.IsPositive() || p.EarnestPercent.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("escrow: earnest percent %s must be in (0, 100]", p.EarnestPercent.String())
	}
	if p.ExpiryWindow == 0 {
		return errors.New("escrow: expiry window must be positive")
	}
	if p.MaxConditions <= 0 {
		return errors.New("escrow: max conditions must be positive")
	}
	return nil
}

type entry struct {
	mu sync.Mutex
	tx *Transaction
}

// Engine is the single authority over escrow state. Each escrow is guarded
// by its own mutex; the map lock only protects membership.
type Engine struct {
	money    *monetary.Engine
	ordering OrderingSource
	policy   Policy
	emitter  events.Emitter
	pauses   nativecommon.PauseView
	logger   *slog.Logger
	metrics  *metrics.EscrowMetrics
	nowFn    func() time.Time
	idFn     func() string

	mu      sync.RWMutex
	entries map[string]*entry
	order   []string
}

// NewEngine wires the lifecycle engine to its monetary engine and ordering
// source.
func NewEngine(money *monetary.Engine, ordering OrderingSource, policy Policy) (*Engine, error) {
	if money == nil {
		return nil, errors.New("escrow: monetary engine required")
	}
	if ordering == nil {
		return nil, errors.New("escrow: ordering source required")
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		money:    money,
		ordering: ordering,
		policy:   policy,
		emitter:  events.NoopEmitter{},
		logger:   logging.Discard(),
		metrics:  metrics.Escrow(),
		nowFn:    time.Now,
		idFn:     uuid.NewString,
		entries:  make(map[string]*entry),
	}, nil
}

// SetEmitter configures the event emitter. Configure before use.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

// SetPauses wires the operator pause view. A paused engine rejects every
// mutation and skips expiry sweeps; reads keep working.
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// SetLogger configures the structured logger.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = logging.Discard()
	}
	e.logger = logger
}

// SetNowFunc overrides the wall clock used for CreatedAt and UpdatedAt.
func (e *Engine) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	e.nowFn = now
}

// SetIDFunc overrides the escrow id generator.
func (e *Engine) SetIDFunc(fn func() string) {
	if fn == nil {
		fn = uuid.NewString
	}
	e.idFn = fn
}

// Policy returns the active lifecycle policy.
func (e *Engine) Policy() Policy { return e.policy }

// Monetary exposes the monetary engine amounts are validated against.
func (e *Engine) Monetary() *monetary.Engine { return e.money }

// CurrentHeight reports the ordering source's current value.
func (e *Engine) CurrentHeight() uint64 { return e.ordering.CurrentHeight() }

func (e *Engine) now() int64 { return e.nowFn().UTC().Unix() }

func (e *Engine) lookup(id string) (*entry, error) {
	id = strings.TrimSpace(id)
	e.mu.RLock()
	ent, ok := e.entries[id]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return ent, nil
}

// Get returns a snapshot of the escrow.
func (e *Engine) Get(id string) (*Transaction, error) {
	ent, err := e.lookup(id)
	if err != nil {
		return nil, err
	}
	ent.mu.Lock()
	defer ent.mu.Unlock()
	return ent.tx.Clone(), nil
}

func (e *Engine) snapshotEntries() []*entry {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*entry, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.entries[id])
	}
	return out
}

// List returns snapshots of every escrow in creation order.
func (e *Engine) List() []*Transaction {
	entries := e.snapshotEntries()
	out := make([]*Transaction, 0, len(entries))
	for _, ent := range entries {
		ent.mu.Lock()
		out = append(out, ent.tx.Clone())
		ent.mu.Unlock()
	}
	return out
}

// ListByState returns snapshots in the given state, sorted by id.
func (e *Engine) ListByState(state State) []*Transaction {
	var out []*Transaction
	for _, tx := range e.List() {
		if tx.State == state {
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Actions evaluates requester's permissions against the current snapshot.
func (e *Engine) Actions(id, requester string) (Actions, error) {
	tx, err := e.Get(id)
	if err != nil {
		return Actions{}, err
	}
	return tx.ActionsFor(requester), nil
}

// change names an event to emit once a mutation is stored, with extra
// key/value attributes.
type change struct {
	kind  string
	attrs []string
}

func changed(kind string, attrs ...string) change { return change{kind: kind, attrs: attrs} }

type mutation func(tx *Transaction) ([]change, error)

// mutate runs fn against a working copy while holding the escrow's lock. The
// copy replaces the stored instance only when fn succeeds and reports at
// least one event; an empty event list is an accepted no-op.
func (e *Engine) mutate(op, id string, fn mutation) (*Transaction, error) {
	if err := nativecommon.Guard(e.pauses, ModuleName); err != nil {
		e.rejected(op, id, err)
		return nil, err
	}
	ent, err := e.lookup(id)
	if err != nil {
		e.rejected(op, id, err)
		return nil, err
	}

	ent.mu.Lock()
	from := ent.tx.State
	working := ent.tx.Clone()
	changes, err := fn(working)
	if err != nil {
		ent.mu.Unlock()
		e.rejected(op, id, err)
		return nil, err
	}
	if len(changes) == 0 {
		snapshot := ent.tx.Clone()
		ent.mu.Unlock()
		return snapshot, nil
	}
	working.Revision++
	working.UpdatedAt = e.now()
	ent.tx = working
	snapshot := working.Clone()
	ent.mu.Unlock()

	e.accepted(op, from, snapshot, changes)
	return snapshot, nil
}

func (e *Engine) accepted(op string, from State, tx *Transaction, changes []change) {
	if from != tx.State {
		e.metrics.RecordTransition(from.String(), tx.State.String())
	}
	e.logger.Info("escrow updated",
		slog.String("operation", op),
		slog.String("escrow_id", tx.ID),
		slog.String("from", from.String()),
		slog.String("to", tx.State.String()),
		slog.Uint64("revision", tx.Revision),
	)
	for _, c := range changes {
		e.emitter.Emit(newEvent(c.kind, tx, c.attrs...))
	}
}

func (e *Engine) rejected(op, id string, err error) {
	kind := Kind(err)
	e.metrics.RecordRejection(op, string(kind))
	e.logger.Debug("escrow operation rejected",
		slog.String("operation", op),
		slog.String("escrow_id", id),
		slog.String("kind", string(kind)),
		slog.String("error", err.Error()),
	)
}
