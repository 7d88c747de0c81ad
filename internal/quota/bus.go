// ABOUTME: In-process publish/subscribe bus for storage quota notifications
// ABOUTME: Lets the store signal rejected writes without knowing who is listening

package quota

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Bus fans out payload-free quota-exceeded notifications to subscribers.
// Delivery is synchronous, to a snapshot of the subscribers registered at the
// time of Publish. Late subscribers do not see earlier notifications.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]func()
	order       []string
	logger      *slog.Logger
}

// NewBus creates a bus. Pass nil logger for default.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subscribers: make(map[string]func()),
		logger:      logger.With("component", "quota_bus"),
	}
}

// Subscribe registers fn and returns a function that removes it again.
// The returned function is safe to call more than once.
func (b *Bus) Subscribe(fn func()) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}

	subID := uuid.New().String()

	b.mu.Lock()
	b.subscribers[subID] = fn
	b.order = append(b.order, subID)
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "sub_id", subID)

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(subID) })
	}
}

// Publish notifies every current subscriber once.
func (b *Bus) Publish() {
	b.mu.RLock()
	targets := make([]func(), 0, len(b.order))
	for _, id := range b.order {
		targets = append(targets, b.subscribers[id])
	}
	b.mu.RUnlock()

	b.logger.Debug("quota exceeded published", "subscribers", len(targets))

	// Call outside the lock so a subscriber may unsubscribe itself.
	for _, fn := range targets {
		fn()
	}
}

// Count returns the number of registered subscribers.
func (b *Bus) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

func (b *Bus) remove(subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[subID]; !ok {
		return
	}
	delete(b.subscribers, subID)
	for i, id := range b.order {
		if id == subID {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}

	b.logger.Debug("subscriber removed", "sub_id", subID)
}
