// ABOUTME: BadgerDB implementation of the Medium interface
// ABOUTME: Embedded LSM key/value medium with the same quota semantics as SQLite

package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
)

// BadgerOptions configures a Badger medium.
type BadgerOptions struct {
	// Path is the directory for Badger files. Ignored when InMemory is true.
	Path string

	// InMemory keeps everything in RAM. Useful for testing.
	InMemory bool

	// SyncWrites fsyncs each commit.
	SyncWrites bool

	// QuotaBytes caps the total size of stored keys and values. <= 0 is unlimited.
	QuotaBytes int64

	// Logger receives Badger's internal log lines. If nil they are discarded.
	Logger *slog.Logger
}

// BadgerMedium stores each key directly in a Badger database.
type BadgerMedium struct {
	db    *badger.DB
	quota int64
}

// badgerLogger adapts slog.Logger to Badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// OpenBadger opens a Badger medium.
func OpenBadger(opts BadgerOptions) (*BadgerMedium, error) {
	if !opts.InMemory && opts.Path == "" {
		return nil, errors.New("badger path is required for persistent storage")
	}

	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(opts.Path, 0750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", opts.Path, err)
		}
		bopts = badger.DefaultOptions(opts.Path)
	}

	bopts = bopts.WithSyncWrites(opts.SyncWrites)
	bopts = bopts.WithNumVersionsToKeep(1)

	if opts.Logger != nil {
		bopts = bopts.WithLogger(&badgerLogger{logger: opts.Logger.With("component", "badger_medium")})
	} else {
		bopts = bopts.WithLogger(nil)
	}

	db, err := badger.Open(bopts)
	if err != nil {
		// Badger holds a directory lock; a second process fails here.
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	return &BadgerMedium{db: db, quota: opts.QuotaBytes}, nil
}

// Read returns the value stored for key.
func (m *BadgerMedium) Read(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := m.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading key %s: %w", key, err)
	}
	return value, true, nil
}

// Write sets all entries in one transaction.
func (m *BadgerMedium) Write(ctx context.Context, entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}

	err := m.db.Update(func(txn *badger.Txn) error {
		if m.quota > 0 {
			if exceedsQuota(m.quota, usage(txn), entries) {
				return fmt.Errorf("badger medium: %w (limit %d bytes)", ErrQuotaExceeded, m.quota)
			}
		}
		for _, e := range entries {
			if err := txn.Set([]byte(e.Key), e.Value); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, badger.ErrTxnTooBig) {
		return fmt.Errorf("badger medium: %w: %v", ErrQuotaExceeded, err)
	}
	return err
}

func usage(txn *badger.Txn) map[string]int64 {
	iopts := badger.DefaultIteratorOptions
	iopts.PrefetchValues = false

	it := txn.NewIterator(iopts)
	defer it.Close()

	sizes := make(map[string]int64)
	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		sizes[string(item.KeyCopy(nil))] = item.KeySize() + item.ValueSize()
	}
	return sizes
}

// Delete removes keys in one transaction.
func (m *BadgerMedium) Delete(ctx context.Context, keys ...string) error {
	return m.db.Update(func(txn *badger.Txn) error {
		for _, k := range keys {
			if err := txn.Delete([]byte(k)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close closes the database.
func (m *BadgerMedium) Close() error {
	return m.db.Close()
}
