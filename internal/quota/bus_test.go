// ABOUTME: Tests for the quota event bus
// ABOUTME: Covers fan-out, unsubscribe, late subscribers and concurrent publishing

package quota

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBus_PublishReachesAllSubscribers(t *testing.T) {
	b := NewBus(nil)

	var a, c atomic.Int32
	b.Subscribe(func() { a.Add(1) })
	b.Subscribe(func() { c.Add(1) })

	b.Publish()

	assert.Equal(t, int32(1), a.Load())
	assert.Equal(t, int32(1), c.Load())
}

func TestBus_UnsubscribeStopsDelivery(t *testing.T) {
	b := NewBus(nil)

	var calls atomic.Int32
	unsubscribe := b.Subscribe(func() { calls.Add(1) })

	b.Publish()
	unsubscribe()
	b.Publish()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 0, b.Count())

	// second call is a no-op
	unsubscribe()
	assert.Equal(t, 0, b.Count())
}

func TestBus_LateSubscriberMissesEarlierEvents(t *testing.T) {
	b := NewBus(nil)
	b.Publish()

	var calls atomic.Int32
	b.Subscribe(func() { calls.Add(1) })

	assert.Equal(t, int32(0), calls.Load())
}

func TestBus_SubscriberCanUnsubscribeDuringPublish(t *testing.T) {
	b := NewBus(nil)

	var calls atomic.Int32
	var unsubscribe func()
	unsubscribe = b.Subscribe(func() {
		calls.Add(1)
		unsubscribe()
	})

	b.Publish()
	b.Publish()

	assert.Equal(t, int32(1), calls.Load())
}

func TestBus_NilSubscriberIgnored(t *testing.T) {
	b := NewBus(nil)
	unsubscribe := b.Subscribe(nil)
	unsubscribe()
	assert.Equal(t, 0, b.Count())
	b.Publish()
}

func TestBus_ConcurrentPublish(t *testing.T) {
	b := NewBus(nil)

	var calls atomic.Int32
	b.Subscribe(func() { calls.Add(1) })

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Publish()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(50), calls.Load())
}
