// ABOUTME: In-memory fan-out of slot transitions
// ABOUTME: Subscribers follow one batch or every batch; slow subscribers drop events

package orchestrator

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber.
	subscriberBufferSize = 64

	// allBatches is the topic for subscribers that follow every batch.
	allBatches = ""
)

// slotBroadcaster publishes slot snapshots to subscribers keyed by batch ID.
type slotBroadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan Slot // batchID -> subID -> ch
	logger      *slog.Logger
}

func newSlotBroadcaster(logger *slog.Logger) *slotBroadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &slotBroadcaster{
		subscribers: make(map[string]map[string]chan Slot),
		logger:      logger.With("component", "slot_broadcaster"),
	}
}

// subscribe registers for events of batchID (allBatches for every batch).
// The subscription is removed and its channel closed when ctx is done.
func (b *slotBroadcaster) subscribe(ctx context.Context, batchID string) <-chan Slot {
	subID := uuid.New().String()
	ch := make(chan Slot, subscriberBufferSize)

	b.mu.Lock()
	if _, ok := b.subscribers[batchID]; !ok {
		b.subscribers[batchID] = make(map[string]chan Slot)
	}
	b.subscribers[batchID][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "batch_id", batchID, "sub_id", subID)

	go func() {
		<-ctx.Done()
		b.unsubscribe(batchID, subID)
	}()

	return ch
}

// publish delivers slot to subscribers of its batch and of every batch.
// Non-blocking: events are dropped for subscribers whose channels are full.
func (b *slotBroadcaster) publish(slot Slot) {
	b.mu.RLock()
	var targets []chan Slot
	for _, topic := range []string{slot.BatchID, allBatches} {
		for _, ch := range b.subscribers[topic] {
			targets = append(targets, ch)
		}
	}
	// Sends happen under the read lock so unsubscribe cannot close a
	// channel mid-send.
	for _, ch := range targets {
		select {
		case ch <- slot:
		default:
			b.logger.Debug("dropped slot event for slow subscriber",
				"batch_id", slot.BatchID,
				"slot_id", slot.ID,
				"status", slot.Status)
		}
	}
	b.mu.RUnlock()
}

func (b *slotBroadcaster) unsubscribe(batchID, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[batchID]
	if !ok {
		return
	}
	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)

	if len(subs) == 0 {
		delete(b.subscribers, batchID)
	}

	b.logger.Debug("subscriber removed", "batch_id", batchID, "sub_id", subID)
}

// close closes every subscriber channel.
func (b *slotBroadcaster) close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for batchID, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, batchID)
	}
}
