// ABOUTME: Storage medium abstraction underneath the versioned store
// ABOUTME: Defines the synchronous key/value contract and shared quota accounting

package store

import (
	"context"
	"errors"
)

// ErrQuotaExceeded is returned when a write would exceed the medium's capacity.
// The medium guarantees that nothing from the rejected write was applied.
var ErrQuotaExceeded = errors.New("storage quota exceeded")

// ErrClosed is returned by a medium after Close.
var ErrClosed = errors.New("storage medium closed")

// ErrLocked is returned when another process already holds the store.
var ErrLocked = errors.New("storage medium locked by another process")

// Entry is a single key/value pair to persist.
type Entry struct {
	Key   string
	Value []byte
}

// Medium is a synchronous, durable key/value storage medium.
type Medium interface {
	// Read returns the stored bytes for key. ok is false when the key is absent.
	Read(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Write stores all entries atomically: either every entry is persisted or
	// none is. A capacity rejection returns an error wrapping ErrQuotaExceeded.
	Write(ctx context.Context, entries ...Entry) error

	// Delete removes keys. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error

	// Close releases any resources held by the medium.
	Close() error
}

// entrySize is the number of bytes a key/value pair counts against a quota.
func entrySize(key string, value []byte) int64 {
	return int64(len(key) + len(value))
}

// projectedUsage returns total usage after entries replace the current values.
// current maps key -> size as returned by entrySize.
func projectedUsage(current map[string]int64, entries []Entry) int64 {
	next := make(map[string]int64, len(current)+len(entries))
	for k, v := range current {
		next[k] = v
	}
	for _, e := range entries {
		next[e.Key] = entrySize(e.Key, e.Value)
	}

	var total int64
	for _, v := range next {
		total += v
	}
	return total
}

// exceedsQuota reports whether applying entries would go over quota.
// A quota of zero or less means unlimited.
func exceedsQuota(quota int64, current map[string]int64, entries []Entry) bool {
	if quota <= 0 {
		return false
	}
	return projectedUsage(current, entries) > quota
}
