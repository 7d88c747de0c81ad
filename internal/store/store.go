// ABOUTME: Versioned local store over a synchronous storage medium
// ABOUTME: Owns typed collections, serializes mutations and reports quota rejections

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/2389/slotforge/internal/quota"
)

// ErrNotFound is returned when a mutation addresses a record that does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateID is returned when creating a record whose ID is already taken
var ErrDuplicateID = errors.New("record already exists")

// ErrUnknownKind is returned for a kind outside Kinds
var ErrUnknownKind = errors.New("unknown kind")

// ErrInvalidFormat is returned when an import payload is rejected
var ErrInvalidFormat = errors.New("invalid format")

// ErrInvalidSettings is returned when settings fail validation
var ErrInvalidSettings = errors.New("invalid settings")

// ErrInvalidRecord is returned when a record is missing required fields
var ErrInvalidRecord = errors.New("invalid record")

// ErrCorrupt is returned when persisted bytes cannot be decoded
var ErrCorrupt = errors.New("corrupt collection")

// Store is the versioned local store. Every collection is persisted as one
// JSON value under its own key; reads migrate older shapes on the fly.
//
// Mutations are read-modify-write cycles over a whole collection. They are
// serialized by mu so concurrent writers cannot lose each other's updates.
type Store struct {
	medium   Medium
	bus      *quota.Bus
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
	validate *validator.Validate

	mu sync.Mutex
	// quotaPending counts rejected writes not yet announced on bus. Guarded
	// by mu; drained by unlockAndNotify after mu is released.
	quotaPending int
}

// Option configures a Store.
type Option func(*Store)

// WithQuotaBus sets the bus notified when a write is rejected for capacity.
func WithQuotaBus(bus *quota.Bus) Option {
	return func(s *Store) { s.bus = bus }
}

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides the record ID generator.
func WithIDGenerator(newID func() string) Option {
	return func(s *Store) { s.newID = newID }
}

// New creates a store on top of medium.
func New(medium Medium, opts ...Option) *Store {
	s := &Store{
		medium:   medium,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    func() string { return uuid.New().String() },
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "store")
	if s.bus == nil {
		s.bus = quota.NewBus(s.logger)
	}
	return s
}

// QuotaBus returns the bus this store publishes quota rejections on.
func (s *Store) QuotaBus() *quota.Bus {
	return s.bus
}

// Close releases the underlying medium.
func (s *Store) Close() error {
	return s.medium.Close()
}

// unlockAndNotify releases mu, then publishes one quota notification per
// write rejected while it was held. Subscribers may call back into the store.
func (s *Store) unlockAndNotify() {
	pending := s.quotaPending
	s.quotaPending = 0
	s.mu.Unlock()

	for range pending {
		s.bus.Publish()
	}
}

// write persists entries atomically. Callers hold mu and release it with
// unlockAndNotify. A capacity rejection leaves the medium untouched, queues
// one quota notification and returns ErrQuotaExceeded. Any other medium
// failure is returned wrapped.
func (s *Store) write(ctx context.Context, entries ...Entry) error {
	err := s.medium.Write(ctx, entries...)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrQuotaExceeded) {
		keys := make([]string, len(entries))
		for i, e := range entries {
			keys[i] = e.Key
		}
		s.logger.Warn("write dropped: storage quota exceeded", "keys", keys)
		s.quotaPending++
		return err
	}
	return fmt.Errorf("writing store: %w", err)
}

// loadRecords reads and migrates every record of collection c.
// An absent key is an empty collection.
func loadRecords[T any](ctx context.Context, s *Store, c Collection) ([]T, error) {
	raw, ok, err := s.medium.Read(ctx, c.Key())
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", c, err)
	}
	if !ok {
		return []T{}, nil
	}

	recs, err := migrateCollection(c, raw)
	if err != nil {
		return nil, err
	}

	out := make([]T, 0, len(recs))
	for _, rec := range recs {
		var v T
		if err := json.Unmarshal(rec, &v); err != nil {
			return nil, fmt.Errorf("%w: decoding %s: %v", ErrCorrupt, c, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// encodeRecords serializes a collection. A nil slice is written as [].
func encodeRecords[T any](c Collection, items []T) (Entry, error) {
	if items == nil {
		items = []T{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return Entry{}, fmt.Errorf("encoding %s: %w", c, err)
	}
	return Entry{Key: c.Key(), Value: data}, nil
}

// mutateCollection runs one serialized read-modify-write cycle on c.
// If fn fails nothing is written. On a quota rejection the returned slice is
// the attempted state and the error wraps ErrQuotaExceeded.
func mutateCollection[T any](ctx context.Context, s *Store, c Collection, fn func([]T) ([]T, error)) ([]T, error) {
	s.mu.Lock()
	defer s.unlockAndNotify()

	items, err := loadRecords[T](ctx, s, c)
	if err != nil {
		return nil, err
	}

	items, err = fn(items)
	if err != nil {
		return nil, err
	}

	entry, err := encodeRecords(c, items)
	if err != nil {
		return nil, err
	}

	if err := s.write(ctx, entry); err != nil {
		return items, err
	}
	return items, nil
}
