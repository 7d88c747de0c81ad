// ABOUTME: Artifact operations for the versioned store
// ABOUTME: Append, lookup, listing, pinning and soft deletion of generated results

package store

import (
	"context"
	"fmt"
)

// AddArtifact appends a generated result. The store assigns ID (when empty)
// and CreatedAt; Pinned and Deleted start false.
func (s *Store) AddArtifact(ctx context.Context, a *Artifact) (Artifact, error) {
	if a == nil {
		return Artifact{}, fmt.Errorf("%w: nil artifact", ErrInvalidRecord)
	}
	c, err := ArtifactCollection(a.Kind)
	if err != nil {
		return Artifact{}, err
	}
	if a.ParentID == "" {
		return Artifact{}, fmt.Errorf("%w: artifact has no parent", ErrInvalidRecord)
	}
	if len(a.URLs) == 0 {
		return Artifact{}, fmt.Errorf("%w: artifact has no result urls", ErrInvalidRecord)
	}

	rec := a.Clone()
	if rec.ID == "" {
		rec.ID = s.newID()
	}
	rec.CreatedAt = s.now()
	rec.Pinned = false
	rec.Deleted = false

	_, err = mutateCollection(ctx, s, c, func(items []Artifact) ([]Artifact, error) {
		for _, it := range items {
			if it.ID == rec.ID {
				return nil, fmt.Errorf("%w: %s %s", ErrDuplicateID, c, rec.ID)
			}
		}
		return append(items, rec), nil
	})
	if err != nil {
		return rec, err
	}

	s.logger.Debug("artifact added", "kind", rec.Kind, "id", rec.ID, "parent_id", rec.ParentID)
	return rec, nil
}

// GetArtifact returns the artifact with id, including soft-deleted ones.
// ok is false when no such artifact exists.
func (s *Store) GetArtifact(ctx context.Context, kind Kind, id string) (Artifact, bool, error) {
	c, err := ArtifactCollection(kind)
	if err != nil {
		return Artifact{}, false, err
	}
	items, err := loadRecords[Artifact](ctx, s, c)
	if err != nil {
		return Artifact{}, false, err
	}
	for _, it := range items {
		if it.ID == id {
			return it, true, nil
		}
	}
	return Artifact{}, false, nil
}

// ListArtifacts returns artifacts of kind matching f, in arrival order.
func (s *Store) ListArtifacts(ctx context.Context, kind Kind, f Filter) ([]Artifact, error) {
	c, err := ArtifactCollection(kind)
	if err != nil {
		return nil, err
	}
	items, err := loadRecords[Artifact](ctx, s, c)
	if err != nil {
		return nil, err
	}

	out := make([]Artifact, 0, len(items))
	for _, it := range items {
		if f.matchArtifact(it) {
			out = append(out, it)
		}
	}
	return out, nil
}

// SetPinned sets the pinned flag. Setting the current value still writes.
func (s *Store) SetPinned(ctx context.Context, kind Kind, id string, pinned bool) (Artifact, error) {
	return s.modifyArtifact(ctx, kind, id, func(a *Artifact) {
		a.Pinned = pinned
	})
}

// SoftDeleteArtifact marks the artifact deleted. Pinned is left as it was.
func (s *Store) SoftDeleteArtifact(ctx context.Context, kind Kind, id string) (Artifact, error) {
	return s.modifyArtifact(ctx, kind, id, func(a *Artifact) {
		a.Deleted = true
	})
}

func (s *Store) modifyArtifact(ctx context.Context, kind Kind, id string, fn func(*Artifact)) (Artifact, error) {
	c, err := ArtifactCollection(kind)
	if err != nil {
		return Artifact{}, err
	}

	var result Artifact
	_, err = mutateCollection(ctx, s, c, func(items []Artifact) ([]Artifact, error) {
		for i := range items {
			if items[i].ID == id {
				fn(&items[i])
				result = items[i].Clone()
				return items, nil
			}
		}
		return nil, fmt.Errorf("%w: %s %s", ErrNotFound, c, id)
	})
	return result, err
}
