// ABOUTME: In-memory Medium implementation with an optional byte quota
// ABOUTME: Allows tests and the memory driver to run without a database file

package store

import (
	"context"
	"fmt"
	"sync"
)

// MemoryMedium is an in-memory Medium. It is safe for concurrent use.
type MemoryMedium struct {
	mu     sync.RWMutex
	data   map[string][]byte
	quota  int64
	closed bool
}

// NewMemoryMedium creates an empty medium. quotaBytes <= 0 disables the quota.
func NewMemoryMedium(quotaBytes int64) *MemoryMedium {
	return &MemoryMedium{
		data:  make(map[string][]byte),
		quota: quotaBytes,
	}
}

// Read returns a copy of the stored value.
func (m *MemoryMedium) Read(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, false, ErrClosed
	}

	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

// Write stores all entries or none of them.
func (m *MemoryMedium) Write(ctx context.Context, entries ...Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	if m.quota > 0 {
		current := make(map[string]int64, len(m.data))
		for k, v := range m.data {
			current[k] = entrySize(k, v)
		}
		if exceedsQuota(m.quota, current, entries) {
			return fmt.Errorf("memory medium: %w (limit %d bytes)", ErrQuotaExceeded, m.quota)
		}
	}

	for _, e := range entries {
		m.data[e.Key] = append([]byte(nil), e.Value...)
	}
	return nil
}

// Delete removes keys.
func (m *MemoryMedium) Delete(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

// SetQuota changes the quota. Existing data is kept even if it is over the new limit.
func (m *MemoryMedium) SetQuota(quotaBytes int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quota = quotaBytes
}

// Usage returns the number of bytes currently counted against the quota.
func (m *MemoryMedium) Usage() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var total int64
	for k, v := range m.data {
		total += entrySize(k, v)
	}
	return total
}

// Close marks the medium closed. Subsequent calls fail with ErrClosed.
func (m *MemoryMedium) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
