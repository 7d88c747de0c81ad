// ABOUTME: Parent entity operations for the versioned store
// ABOUTME: Lyrics messages, image sessions and video scripts share one code path

package store

import (
	"context"
	"fmt"
)

// CreateParent stores a new parent. ID is generated when empty; timestamps
// are set by the store and Deleted is always false.
func (s *Store) CreateParent(ctx context.Context, p *Parent) (Parent, error) {
	if p == nil {
		return Parent{}, fmt.Errorf("%w: nil parent", ErrInvalidRecord)
	}
	c, err := ParentCollection(p.Kind)
	if err != nil {
		return Parent{}, err
	}

	rec := *p
	if rec.ID == "" {
		rec.ID = s.newID()
	}
	now := s.now()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	rec.Deleted = false

	_, err = mutateCollection(ctx, s, c, func(items []Parent) ([]Parent, error) {
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

	s.logger.Debug("parent created", "kind", rec.Kind, "id", rec.ID)
	return rec, nil
}

// GetParent returns the parent with id, including soft-deleted ones.
// ok is false when no such parent exists.
func (s *Store) GetParent(ctx context.Context, kind Kind, id string) (Parent, bool, error) {
	c, err := ParentCollection(kind)
	if err != nil {
		return Parent{}, false, err
	}
	items, err := loadRecords[Parent](ctx, s, c)
	if err != nil {
		return Parent{}, false, err
	}
	for _, it := range items {
		if it.ID == id {
			return it, true, nil
		}
	}
	return Parent{}, false, nil
}

// ListParents returns parents of kind matching f, in creation order.
func (s *Store) ListParents(ctx context.Context, kind Kind, f Filter) ([]Parent, error) {
	c, err := ParentCollection(kind)
	if err != nil {
		return nil, err
	}
	items, err := loadRecords[Parent](ctx, s, c)
	if err != nil {
		return nil, err
	}

	out := make([]Parent, 0, len(items))
	for _, it := range items {
		if f.matchParent(it) {
			out = append(out, it)
		}
	}
	return out, nil
}

// UpdateParent applies patch to the parent and bumps UpdatedAt.
// ID, Kind, CreatedAt and Deleted cannot be changed through a patch.
func (s *Store) UpdateParent(ctx context.Context, kind Kind, id string, patch func(*Parent)) (Parent, error) {
	return s.modifyParent(ctx, kind, id, func(p *Parent) {
		orig := *p
		if patch != nil {
			patch(p)
		}
		p.ID = orig.ID
		p.Kind = orig.Kind
		p.CreatedAt = orig.CreatedAt
		p.Deleted = orig.Deleted
		p.UpdatedAt = s.now()
	})
}

// SoftDeleteParent marks the parent deleted. No other field changes.
func (s *Store) SoftDeleteParent(ctx context.Context, kind Kind, id string) (Parent, error) {
	return s.modifyParent(ctx, kind, id, func(p *Parent) {
		p.Deleted = true
	})
}

func (s *Store) modifyParent(ctx context.Context, kind Kind, id string, fn func(*Parent)) (Parent, error) {
	c, err := ParentCollection(kind)
	if err != nil {
		return Parent{}, err
	}

	var result Parent
	_, err = mutateCollection(ctx, s, c, func(items []Parent) ([]Parent, error) {
		for i := range items {
			if items[i].ID == id {
				fn(&items[i])
				result = items[i]
				return items, nil
			}
		}
		return nil, fmt.Errorf("%w: %s %s", ErrNotFound, c, id)
	})
	return result, err
}
