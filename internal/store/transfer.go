// ABOUTME: Export, import and reset for the versioned store
// ABOUTME: Export document keys map 1:1 to collections; imports replace whole collections atomically

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
)

// Snapshot is the full typed content of the store, soft-deleted records and
// secrets included.
type Snapshot struct {
	Lyrics        []Parent   `json:"lyrics"`
	Songs         []Artifact `json:"songs"`
	ImageSessions []Parent   `json:"imageSessions"`
	Images        []Artifact `json:"images"`
	VideoScripts  []Parent   `json:"videoScripts"`
	VideoClips    []Artifact `json:"videoClips"`
	Settings      Settings   `json:"settings"`
}

// Parents returns the snapshot's parents of kind k.
func (snap *Snapshot) Parents(k Kind) []Parent {
	switch k {
	case KindSong:
		return snap.Lyrics
	case KindImage:
		return snap.ImageSessions
	case KindVideo:
		return snap.VideoScripts
	}
	return nil
}

// Artifacts returns the snapshot's artifacts of kind k.
func (snap *Snapshot) Artifacts(k Kind) []Artifact {
	switch k {
	case KindSong:
		return snap.Songs
	case KindImage:
		return snap.Images
	case KindVideo:
		return snap.VideoClips
	}
	return nil
}

func (snap *Snapshot) field(c Collection) any {
	switch c {
	case CollectionLyrics:
		return snap.Lyrics
	case CollectionSongs:
		return snap.Songs
	case CollectionImageSessions:
		return snap.ImageSessions
	case CollectionImages:
		return snap.Images
	case CollectionVideoScripts:
		return snap.VideoScripts
	case CollectionVideoClips:
		return snap.VideoClips
	case CollectionSettings:
		return snap.Settings
	}
	return nil
}

// Encode renders the export document. With no arguments every collection is
// included; otherwise only the named ones, so partial exports (for example
// image data only) can be produced from the same snapshot.
func (snap *Snapshot) Encode(only ...Collection) ([]byte, error) {
	if len(only) == 0 {
		only = Collections
	}

	doc := make(map[string]any, len(only))
	for _, c := range only {
		if !slices.Contains(Collections, c) {
			return nil, fmt.Errorf("unknown collection %q", c)
		}
		doc[string(c)] = snap.field(c)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding export: %w", err)
	}
	return data, nil
}

// Export reads every collection into a snapshot. It runs under the mutation
// lock so the snapshot is consistent across collections.
func (s *Store) Export(ctx context.Context) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := &Snapshot{}
	var err error

	if snap.Lyrics, err = loadRecords[Parent](ctx, s, CollectionLyrics); err != nil {
		return nil, err
	}
	if snap.Songs, err = loadRecords[Artifact](ctx, s, CollectionSongs); err != nil {
		return nil, err
	}
	if snap.ImageSessions, err = loadRecords[Parent](ctx, s, CollectionImageSessions); err != nil {
		return nil, err
	}
	if snap.Images, err = loadRecords[Artifact](ctx, s, CollectionImages); err != nil {
		return nil, err
	}
	if snap.VideoScripts, err = loadRecords[Parent](ctx, s, CollectionVideoScripts); err != nil {
		return nil, err
	}
	if snap.VideoClips, err = loadRecords[Artifact](ctx, s, CollectionVideoClips); err != nil {
		return nil, err
	}
	if snap.Settings, err = s.GetSettings(ctx); err != nil {
		return nil, err
	}

	return snap, nil
}

// ImportResult reports what an import changed.
type ImportResult struct {
	Replaced []Collection // collections overwritten by the payload
	Ignored  []string     // top-level keys that are not collections
}

// Import replaces every collection named by a top-level key of payload.
// Collections absent from the payload are untouched. The payload is fully
// validated before anything is written; a malformed payload changes nothing
// and returns an error wrapping ErrInvalidFormat.
func (s *Store) Import(ctx context.Context, payload []byte) (ImportResult, error) {
	var result ImportResult

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(payload, &doc); err != nil || doc == nil {
		return result, fmt.Errorf("%w: payload is not a JSON object", ErrInvalidFormat)
	}

	var entries []Entry
	for _, c := range Collections {
		raw, ok := doc[string(c)]
		if !ok {
			continue
		}
		entry, err := s.decodeImport(c, raw)
		if err != nil {
			s.logger.Warn("import rejected", "collection", c, "error", err)
			return ImportResult{}, fmt.Errorf("%w: %s: %v", ErrInvalidFormat, c, err)
		}
		entries = append(entries, entry)
		result.Replaced = append(result.Replaced, c)
	}

	for key := range doc {
		if _, err := ParseCollection(key); err != nil {
			result.Ignored = append(result.Ignored, key)
		}
	}
	sort.Strings(result.Ignored)

	if len(entries) == 0 {
		return ImportResult{}, fmt.Errorf("%w: no known collections in payload", ErrInvalidFormat)
	}

	s.mu.Lock()
	defer s.unlockAndNotify()

	if err := s.write(ctx, entries...); err != nil {
		return ImportResult{}, err
	}

	s.logger.Info("import applied", "replaced", result.Replaced, "ignored", result.Ignored)
	return result, nil
}

func (s *Store) decodeImport(c Collection, raw json.RawMessage) (Entry, error) {
	switch {
	case c == CollectionSettings:
		settings, err := decodeSettings(raw)
		if err != nil {
			return Entry{}, err
		}
		if err := s.ValidateSettings(settings); err != nil {
			return Entry{}, err
		}
		data, err := json.Marshal(settings)
		if err != nil {
			return Entry{}, err
		}
		return Entry{Key: c.Key(), Value: data}, nil

	case isParentCollection(c):
		kind, _ := collectionKind(c)
		items, err := decodeImportRecords(c, raw, func(p Parent) (string, error) {
			if p.Kind != kind {
				return "", fmt.Errorf("parent %s has kind %q", p.ID, p.Kind)
			}
			return p.ID, nil
		})
		if err != nil {
			return Entry{}, err
		}
		return encodeRecords(c, items)

	case isArtifactCollection(c):
		kind, _ := collectionKind(c)
		items, err := decodeImportRecords(c, raw, func(a Artifact) (string, error) {
			if a.Kind != kind {
				return "", fmt.Errorf("artifact %s has kind %q", a.ID, a.Kind)
			}
			if a.ParentID == "" {
				return "", fmt.Errorf("artifact %s has no parent", a.ID)
			}
			return a.ID, nil
		})
		if err != nil {
			return Entry{}, err
		}
		return encodeRecords(c, items)
	}
	return Entry{}, fmt.Errorf("unknown collection %q", c)
}

// decodeImportRecords migrates and decodes an imported array, checking each
// record with check (which returns the record ID) and rejecting duplicates.
func decodeImportRecords[T any](c Collection, raw json.RawMessage, check func(T) (string, error)) ([]T, error) {
	recs, err := migrateCollection(c, raw)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(recs))
	out := make([]T, 0, len(recs))
	for i, rec := range recs {
		var v T
		if err := json.Unmarshal(rec, &v); err != nil {
			return nil, fmt.Errorf("record %d: %v", i, err)
		}
		id, err := check(v)
		if err != nil {
			return nil, err
		}
		if id == "" {
			return nil, fmt.Errorf("record %d has no id", i)
		}
		if seen[id] {
			return nil, fmt.Errorf("duplicate id %s", id)
		}
		seen[id] = true
		out = append(out, v)
	}
	return out, nil
}

// Reset removes every collection from the medium.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, len(Collections))
	for i, c := range Collections {
		keys[i] = c.Key()
	}
	if err := s.medium.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("resetting store: %w", err)
	}

	s.logger.Info("store reset")
	return nil
}
