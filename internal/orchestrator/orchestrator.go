// ABOUTME: Generation slot orchestrator: N concurrent capability calls per trigger
// ABOUTME: Tracks each call as a slot with a stable ID, persists successes and retries one slot at a time

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/2389/slotforge/internal/capability"
	"github.com/2389/slotforge/internal/metrics"
	"github.com/2389/slotforge/internal/store"
)

// ErrInvalidCount is returned when a batch is requested with fewer than one slot.
var ErrInvalidCount = errors.New("slot count must be at least 1")

// ErrParentUnavailable is returned when the parent is missing or soft-deleted.
var ErrParentUnavailable = errors.New("parent is missing or deleted")

// ErrBatchInFlight is returned when the parent already has a batch running.
var ErrBatchInFlight = errors.New("a batch is already in flight for this parent")

// ErrSlotNotFound is returned for an unknown or dismissed slot.
var ErrSlotNotFound = errors.New("slot not found")

// ErrSlotNotRetryable is returned when retrying a slot that is not in Error.
var ErrSlotNotRetryable = errors.New("only failed slots can be retried")

// ErrSlotBusy is returned when dismissing a slot that is still loading.
var ErrSlotBusy = errors.New("slot is still loading")

// ErrNilCall is returned when no capability call is bound.
var ErrNilCall = errors.New("capability call is required")

// Status is the lifecycle state of a slot.
type Status string

// Status constants
const (
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Slot tracks one generation request. Exactly one of Artifact (Success) or
// Error (Error) is set once the slot has settled.
type Slot struct {
	ID       string
	BatchID  string
	Index    int
	Kind     store.Kind
	ParentID string
	Status   Status
	Artifact *store.Artifact
	Error    string
	Attempts int
}

// Settled reports whether the slot has left Loading.
func (s Slot) Settled() bool {
	return s.Status != StatusLoading
}

func (s *Slot) snapshot() Slot {
	out := *s
	if s.Artifact != nil {
		a := s.Artifact.Clone()
		out.Artifact = &a
	}
	return out
}

// Result is what a successful capability call produces for one slot.
type Result struct {
	URLs   []string
	Title  string
	Prompt string
}

// Call is a capability invocation bound to one parent. index is the slot's
// position in its batch.
type Call func(ctx context.Context, index int) (Result, error)

// Batch is the set of slots created by one trigger.
type Batch struct {
	ID        string
	Kind      store.Kind
	ParentID  string
	SlotIDs   []string // in index order; fixed at creation
	StartedAt time.Time

	call Call
	done chan struct{}
}

// Done is closed once every slot of the batch has settled for the first time.
func (b *Batch) Done() <-chan struct{} {
	return b.done
}

type parentKey struct {
	kind     store.Kind
	parentID string
}

// Orchestrator runs batches against a store.
type Orchestrator struct {
	store   *store.Store
	logger  *slog.Logger
	metrics *metrics.Metrics
	events  *slotBroadcaster
	newID   func() string
	now     func() time.Time

	mu       sync.Mutex
	slots    map[string]*Slot
	batches  map[string]*Batch
	inFlight map[parentKey]string // -> batch ID
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the orchestrator logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithMetrics records batch and slot metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithIDGenerator overrides slot and batch ID generation.
func WithIDGenerator(newID func() string) Option {
	return func(o *Orchestrator) { o.newID = newID }
}

// New creates an orchestrator persisting into s.
func New(s *store.Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:    s,
		newID:    func() string { return uuid.New().String() },
		now:      func() time.Time { return time.Now().UTC() },
		slots:    make(map[string]*Slot),
		batches:  make(map[string]*Batch),
		inFlight: make(map[parentKey]string),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	o.logger = o.logger.With("component", "orchestrator")
	o.events = newSlotBroadcaster(o.logger)
	return o
}

// Close closes every event subscription.
func (o *Orchestrator) Close() {
	o.events.close()
}

// StartBatch opens count slots for the parent and starts one call per slot.
//
// All slot IDs are registered as Loading before StartBatch returns, so callers
// can render placeholders immediately. The batch is not cancelled with ctx:
// every call runs to success or failure.
func (o *Orchestrator) StartBatch(ctx context.Context, kind store.Kind, parentID string, count int, call Call) (*Batch, error) {
	if count < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidCount, count)
	}
	if call == nil {
		return nil, ErrNilCall
	}

	parent, ok, err := o.store.GetParent(ctx, kind, parentID)
	if err != nil {
		return nil, fmt.Errorf("reading parent: %w", err)
	}
	if !ok || parent.Deleted {
		return nil, fmt.Errorf("%w: %s %s", ErrParentUnavailable, kind, parentID)
	}

	key := parentKey{kind: kind, parentID: parentID}

	o.mu.Lock()
	if running, busy := o.inFlight[key]; busy {
		o.mu.Unlock()
		return nil, fmt.Errorf("%w: batch %s", ErrBatchInFlight, running)
	}

	b := &Batch{
		ID:        o.newID(),
		Kind:      kind,
		ParentID:  parentID,
		SlotIDs:   make([]string, count),
		StartedAt: o.now(),
		call:      call,
		done:      make(chan struct{}),
	}
	created := make([]Slot, count)
	for i := range count {
		slot := &Slot{
			ID:       o.newID(),
			BatchID:  b.ID,
			Index:    i,
			Kind:     kind,
			ParentID: parentID,
			Status:   StatusLoading,
			Attempts: 1,
		}
		o.slots[slot.ID] = slot
		b.SlotIDs[i] = slot.ID
		created[i] = slot.snapshot()
	}
	o.batches[b.ID] = b
	o.inFlight[key] = b.ID
	o.mu.Unlock()

	o.logger.Info("batch started", "batch_id", b.ID, "kind", kind, "parent_id", parentID, "count", count)
	o.metrics.BatchStarted(string(kind))
	for _, s := range created {
		o.events.publish(s)
	}

	go o.run(context.WithoutCancel(ctx), b)

	return b, nil
}

// run settles every slot of b concurrently and then clears the parent guard.
func (o *Orchestrator) run(ctx context.Context, b *Batch) {
	var g errgroup.Group
	for i, slotID := range b.SlotIDs {
		g.Go(func() error {
			o.settle(ctx, b, slotID, i, b.call)
			return nil
		})
	}
	_ = g.Wait()

	o.mu.Lock()
	key := parentKey{kind: b.Kind, parentID: b.ParentID}
	if o.inFlight[key] == b.ID {
		delete(o.inFlight, key)
	}
	o.mu.Unlock()

	o.metrics.BatchSettled(string(b.Kind))
	o.logger.Info("batch settled", "batch_id", b.ID, "kind", b.Kind, "parent_id", b.ParentID)
	close(b.done)
}

// settle performs one call for a slot and records its terminal state.
func (o *Orchestrator) settle(ctx context.Context, b *Batch, slotID string, index int, call Call) Slot {
	res, err := invoke(ctx, call, index)
	if err == nil && len(res.URLs) == 0 {
		err = capability.ErrNoResults
	}
	if err != nil {
		msg := capability.Message(err)
		o.logger.Warn("slot failed", "batch_id", b.ID, "slot_id", slotID, "index", index, "error", err)
		return o.finish(slotID, nil, msg)
	}

	art, err := o.store.AddArtifact(ctx, &store.Artifact{
		Kind:     b.Kind,
		ParentID: b.ParentID,
		Title:    res.Title,
		Prompt:   res.Prompt,
		URLs:     res.URLs,
	})
	if err != nil {
		msg := "saving result failed"
		if errors.Is(err, store.ErrQuotaExceeded) {
			msg = "storage quota exceeded"
		}
		o.logger.Error("slot result not persisted", "batch_id", b.ID, "slot_id", slotID, "error", err)
		return o.finish(slotID, nil, msg)
	}

	return o.finish(slotID, &art, "")
}

// invoke runs call, converting a panic into an error so one misbehaving
// provider cannot take down sibling slots.
func invoke(ctx context.Context, call Call, index int) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("capability panicked: %v", r)
		}
	}()
	return call(ctx, index)
}

// finish moves a slot to Success (art != nil) or Error and publishes it.
func (o *Orchestrator) finish(slotID string, art *store.Artifact, errMsg string) Slot {
	o.mu.Lock()
	slot, ok := o.slots[slotID]
	if !ok {
		o.mu.Unlock()
		return Slot{ID: slotID}
	}
	if art != nil {
		slot.Status = StatusSuccess
		slot.Artifact = art
		slot.Error = ""
	} else {
		slot.Status = StatusError
		slot.Artifact = nil
		slot.Error = errMsg
	}
	snap := slot.snapshot()
	o.mu.Unlock()

	o.metrics.SlotSettled(string(snap.Kind), string(snap.Status))
	o.events.publish(snap)
	return snap
}

// RetrySlot re-runs the call of one failed slot. A nil call reuses the call
// the slot's batch was started with. The returned channel yields the slot's
// terminal state and is then closed. Sibling slots and the parent's batch
// guard are not touched.
func (o *Orchestrator) RetrySlot(ctx context.Context, slotID string, call Call) (<-chan Slot, error) {
	o.mu.Lock()
	slot, ok := o.slots[slotID]
	if !ok {
		o.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrSlotNotFound, slotID)
	}
	if slot.Status != StatusError {
		o.mu.Unlock()
		return nil, fmt.Errorf("%w: slot %s is %s", ErrSlotNotRetryable, slotID, slot.Status)
	}
	b := o.batches[slot.BatchID]
	if call == nil {
		call = b.call
	}

	slot.Status = StatusLoading
	slot.Error = ""
	slot.Attempts++
	snap := slot.snapshot()
	o.mu.Unlock()

	o.logger.Info("retrying slot", "batch_id", b.ID, "slot_id", slotID, "attempt", snap.Attempts)
	o.metrics.SlotRetried(string(b.Kind))
	o.events.publish(snap)

	out := make(chan Slot, 1)
	go func() {
		defer close(out)
		out <- o.settle(context.WithoutCancel(ctx), b, slotID, snap.Index, call)
	}()
	return out, nil
}

// Slot returns a snapshot of one slot.
func (o *Orchestrator) Slot(slotID string) (Slot, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	slot, ok := o.slots[slotID]
	if !ok {
		return Slot{}, false
	}
	return slot.snapshot(), true
}

// Slots returns the batch's remaining (not dismissed) slots in index order.
func (o *Orchestrator) Slots(batchID string) []Slot {
	o.mu.Lock()
	defer o.mu.Unlock()

	b, ok := o.batches[batchID]
	if !ok {
		return nil
	}

	out := make([]Slot, 0, len(b.SlotIDs))
	for _, id := range b.SlotIDs {
		if slot, ok := o.slots[id]; ok {
			out = append(out, slot.snapshot())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// Batch returns a batch by ID.
func (o *Orchestrator) Batch(batchID string) (*Batch, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	b, ok := o.batches[batchID]
	return b, ok
}

// InFlight returns the ID of the batch currently running for a parent.
func (o *Orchestrator) InFlight(kind store.Kind, parentID string) (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	id, ok := o.inFlight[parentKey{kind: kind, parentID: parentID}]
	return id, ok
}

// Dismiss removes a settled slot. Slots are only ever removed this way;
// failed slots stay until dismissed or retried to success.
func (o *Orchestrator) Dismiss(slotID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	slot, ok := o.slots[slotID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSlotNotFound, slotID)
	}
	if slot.Status == StatusLoading {
		return fmt.Errorf("%w: %s", ErrSlotBusy, slotID)
	}
	delete(o.slots, slotID)

	b, ok := o.batches[slot.BatchID]
	if !ok {
		return nil
	}
	for _, id := range b.SlotIDs {
		if _, remaining := o.slots[id]; remaining {
			return nil
		}
	}
	delete(o.batches, b.ID)
	return nil
}

// Subscribe streams slot transitions. batchID "" follows every batch.
// The channel is closed when ctx is done or the orchestrator is closed.
func (o *Orchestrator) Subscribe(ctx context.Context, batchID string) <-chan Slot {
	return o.events.subscribe(ctx, batchID)
}
