// ABOUTME: Tests for the slot event fan-out
// ABOUTME: Covers topic isolation, the every-batch topic, slow consumers, cleanup and concurrency

package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func makeSlot(id, batchID string) Slot {
	return Slot{ID: id, BatchID: batchID, Status: StatusSuccess}
}

func TestSlotBroadcaster_BatchSubscriberReceivesSlot(t *testing.T) {
	b := newSlotBroadcaster(nil)
	defer b.close()

	ch := b.subscribe(t.Context(), "batch-1")
	b.publish(makeSlot("slot-1", "batch-1"))

	select {
	case received := <-ch:
		assert.Equal(t, "slot-1", received.ID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for slot")
	}
}

func TestSlotBroadcaster_BatchesAreIsolated(t *testing.T) {
	b := newSlotBroadcaster(nil)
	defer b.close()

	ctx := t.Context()
	ch1 := b.subscribe(ctx, "batch-1")
	ch2 := b.subscribe(ctx, "batch-2")

	b.publish(makeSlot("slot-1", "batch-1"))

	select {
	case received := <-ch1:
		assert.Equal(t, "slot-1", received.ID)
	case <-time.After(time.Second):
		t.Fatal("subscriber for batch-1 timed out")
	}

	select {
	case <-ch2:
		t.Fatal("subscriber for batch-2 should not receive slots of batch-1")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSlotBroadcaster_AllBatchesTopic(t *testing.T) {
	b := newSlotBroadcaster(nil)
	defer b.close()

	all := b.subscribe(t.Context(), allBatches)

	b.publish(makeSlot("slot-1", "batch-1"))
	b.publish(makeSlot("slot-2", "batch-2"))

	var got []string
	for range 2 {
		select {
		case s := <-all:
			got = append(got, s.ID)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for slot")
		}
	}
	assert.Equal(t, []string{"slot-1", "slot-2"}, got)
}

func TestSlotBroadcaster_SlowConsumerDoesNotBlockPublisher(t *testing.T) {
	b := newSlotBroadcaster(nil)
	defer b.close()

	ctx := t.Context()
	_ = b.subscribe(ctx, "batch-1") // never read
	ch := b.subscribe(ctx, "batch-1")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range subscriberBufferSize * 2 {
			b.publish(makeSlot("slot", "batch-1"))
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publisher blocked on a full subscriber")
	}
	assert.Len(t, ch, subscriberBufferSize)
}

func TestSlotBroadcaster_ContextCancellationCleansUp(t *testing.T) {
	b := newSlotBroadcaster(nil)
	defer b.close()

	ctx, cancel := context.WithCancel(context.Background())
	ch := b.subscribe(ctx, "batch-1")

	b.mu.RLock()
	assert.Len(t, b.subscribers["batch-1"], 1)
	b.mu.RUnlock()

	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel should be closed after context cancel")
	case <-time.After(time.Second):
		t.Fatal("channel not closed after context cancel")
	}

	b.mu.RLock()
	_, exists := b.subscribers["batch-1"]
	b.mu.RUnlock()
	assert.False(t, exists, "empty topic should be removed")

	// Publishing after cleanup must not panic.
	b.publish(makeSlot("slot-late", "batch-1"))
}

func TestSlotBroadcaster_CloseClosesAllSubscriptions(t *testing.T) {
	b := newSlotBroadcaster(nil)

	ch1 := b.subscribe(t.Context(), "batch-1")
	ch2 := b.subscribe(t.Context(), allBatches)

	b.close()

	for i, ch := range []<-chan Slot{ch1, ch2} {
		select {
		case _, ok := <-ch:
			assert.False(t, ok, "channel %d should be closed after close()", i)
		case <-time.After(time.Second):
			t.Fatalf("channel %d not closed after close()", i)
		}
	}
}

func TestSlotBroadcaster_ConcurrentPublishSubscribe(t *testing.T) {
	b := newSlotBroadcaster(nil)
	defer b.close()

	var wg sync.WaitGroup
	ctx := t.Context()

	for range 10 {
		wg.Go(func() {
			ch := b.subscribe(ctx, "batch-concurrent")
			for range 5 {
				select {
				case <-ch:
				case <-time.After(500 * time.Millisecond):
					return
				}
			}
		})
	}

	for range 10 {
		wg.Go(func() {
			for range 10 {
				b.publish(makeSlot("slot", "batch-concurrent"))
			}
		})
	}

	wg.Wait()
}
