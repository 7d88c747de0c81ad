// ABOUTME: Settings record for the versioned store
// ABOUTME: Single-object collection holding credentials and generation parameters

package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// GetSettings returns the saved settings, or DefaultSettings when none exist.
func (s *Store) GetSettings(ctx context.Context) (Settings, error) {
	raw, ok, err := s.medium.Read(ctx, CollectionSettings.Key())
	if err != nil {
		return Settings{}, fmt.Errorf("reading settings: %w", err)
	}
	if !ok {
		return DefaultSettings(), nil
	}
	return decodeSettings(raw)
}

func decodeSettings(raw []byte) (Settings, error) {
	migrated, err := migrateSettings(raw)
	if err != nil {
		return Settings{}, err
	}
	var settings Settings
	if err := json.Unmarshal(migrated, &settings); err != nil {
		return Settings{}, fmt.Errorf("%w: decoding settings: %v", ErrCorrupt, err)
	}
	return settings, nil
}

// ValidateSettings checks settings against their field constraints.
func (s *Store) ValidateSettings(settings Settings) error {
	if err := s.validate.Struct(settings); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	return nil
}

// PutSettings validates and replaces the settings record. On a quota
// rejection the attempted settings are returned with the error.
func (s *Store) PutSettings(ctx context.Context, settings Settings) (Settings, error) {
	s.mu.Lock()
	defer s.unlockAndNotify()
	return s.putSettingsLocked(ctx, settings)
}

// UpdateSettings applies patch to the current settings and saves the result
// as one serialized mutation.
func (s *Store) UpdateSettings(ctx context.Context, patch func(*Settings)) (Settings, error) {
	s.mu.Lock()
	defer s.unlockAndNotify()

	current, err := s.GetSettings(ctx)
	if err != nil {
		return Settings{}, err
	}
	if patch != nil {
		patch(&current)
	}
	return s.putSettingsLocked(ctx, current)
}

func (s *Store) putSettingsLocked(ctx context.Context, settings Settings) (Settings, error) {
	if err := s.ValidateSettings(settings); err != nil {
		return Settings{}, err
	}

	data, err := json.Marshal(settings)
	if err != nil {
		return Settings{}, fmt.Errorf("encoding settings: %w", err)
	}

	if err := s.write(ctx, Entry{Key: CollectionSettings.Key(), Value: data}); err != nil {
		return settings, err
	}
	return settings, nil
}
