// Package store provides the versioned local store for generated artifacts.
//
// # Architecture
//
// The store is a schema-typed key/value layer over a single synchronous
// storage medium:
//
//   - Medium: Read / Write (atomic, multi-key) / Delete / Close
//   - Store: typed collections, read-side migration, quota signalling
//
// Mediums:
//
//   - SQLiteMedium: key/value table, driver "sqlite" (modernc) or "sqlite3" (cgo)
//   - BadgerMedium: embedded Badger database
//   - MemoryMedium: in-process map, used by tests
//
// # Collections
//
// Each collection is stored as one JSON value under "slotforge:<name>":
//
//   - lyrics, imageSessions, videoScripts: Parent arrays (one per Kind)
//   - songs, images, videoClips: Artifact arrays (one per Kind)
//   - settings: a single Settings object
//
// Records are never physically deleted. Soft-deleted records stay in exports
// but are excluded from default List results (Filter zero value).
//
// # Mutations
//
// Every mutation is a read-modify-write of a whole collection. Mutations are
// serialized by a store-wide lock, so concurrent generation callbacks that each
// append an artifact never lose one another's writes.
//
// # Migrations
//
// Older record shapes are upgraded on every read (see SchemaVersion). The
// migration only adds missing fields to an in-memory copy; persisted bytes are
// not rewritten until a mutation saves the collection.
//
// # Quota
//
// When the medium rejects a write for capacity, the previous bytes stay intact,
// one notification is published on the injected quota.Bus, and the mutation
// returns the attempted value together with an error wrapping ErrQuotaExceeded.
//
// # Error Handling
//
//   - ErrNotFound: mutation of a record that does not exist
//   - ErrQuotaExceeded: write dropped for capacity
//   - ErrInvalidFormat: import payload rejected, nothing written
//   - ErrCorrupt: persisted bytes cannot be decoded
//
// Reads of a possibly-absent record return ok == false rather than an error.
//
// # Testing
//
// Use NewMemoryMedium for unit tests:
//
//	s := store.New(store.NewMemoryMedium(0))
//
// Use OpenSQLite with a t.TempDir() path for integration tests.
package store
