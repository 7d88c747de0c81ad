// ABOUTME: Read-side schema migration for persisted records
// ABOUTME: Fills fields missing from older shapes on a copy; stored bytes are never rewritten

package store

import (
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// SchemaVersion is the record shape this build writes.
//
//	v1: artifacts carry a single "url"; no "pinned"; no "deleted" anywhere.
//	v2: artifacts carry "urls"; "pinned" and "deleted" always present;
//	    parents carry "updatedAt"; settings carry "slotCount".
const SchemaVersion = 2

// migration sets path on a record when it is absent, or when it is null and
// nullIsAbsent is set.
type migration struct {
	path         string
	value        func(rec gjson.Result) any
	nullIsAbsent bool
}

func (m migration) needed(rec gjson.Result) bool {
	v := rec.Get(m.path)
	if !v.Exists() {
		return true
	}
	return m.nullIsAbsent && v.Type == gjson.Null
}

func constant(v any) func(gjson.Result) any {
	return func(gjson.Result) any { return v }
}

var commonMigrations = []migration{
	{path: "deleted", value: constant(false)},
}

var parentMigrations = []migration{
	{path: "title", value: constant("")},
	{path: "updatedAt", value: func(rec gjson.Result) any {
		return rec.Get("createdAt").Value()
	}},
}

var artifactMigrations = []migration{
	{path: "urls", value: func(rec gjson.Result) any {
		if url := rec.Get("url"); url.Exists() && url.String() != "" {
			return []string{url.String()}
		}
		return []string{}
	}, nullIsAbsent: true},
	{path: "pinned", value: constant(false)},
}

// migrateRecord upgrades one raw record of collection c. The input slice is
// never modified.
func migrateRecord(c Collection, raw []byte) ([]byte, error) {
	rec := gjson.ParseBytes(raw)
	if !rec.IsObject() {
		return nil, fmt.Errorf("%w: %s record is not an object", ErrCorrupt, c)
	}

	steps := commonMigrations
	switch {
	case isParentCollection(c):
		steps = append(steps[:len(steps):len(steps)], parentMigrations...)
	case isArtifactCollection(c):
		steps = append(steps[:len(steps):len(steps)], artifactMigrations...)
	}

	out := append([]byte(nil), raw...)
	var err error
	for _, m := range steps {
		if !m.needed(rec) {
			continue
		}
		out, err = sjson.SetBytes(out, m.path, m.value(rec))
		if err != nil {
			return nil, fmt.Errorf("migrating %s.%s: %w", c, m.path, err)
		}
	}

	if kind, ok := collectionKind(c); ok && rec.Get("kind").String() == "" {
		out, err = sjson.SetBytes(out, "kind", string(kind))
		if err != nil {
			return nil, fmt.Errorf("migrating %s.kind: %w", c, err)
		}
	}

	return out, nil
}

// migrateCollection splits a persisted JSON array into migrated records.
func migrateCollection(c Collection, raw []byte) ([][]byte, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("%w: %s is not valid JSON", ErrCorrupt, c)
	}
	arr := gjson.ParseBytes(raw)
	if !arr.IsArray() {
		return nil, fmt.Errorf("%w: %s is not an array", ErrCorrupt, c)
	}

	elems := arr.Array()
	out := make([][]byte, 0, len(elems))
	for _, elem := range elems {
		rec, err := migrateRecord(c, []byte(elem.Raw))
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// migrateSettings upgrades the raw settings object.
func migrateSettings(raw []byte) ([]byte, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("%w: settings is not valid JSON", ErrCorrupt)
	}
	rec := gjson.ParseBytes(raw)
	if !rec.IsObject() {
		return nil, fmt.Errorf("%w: settings is not an object", ErrCorrupt)
	}

	out := append([]byte(nil), raw...)
	if rec.Get("slotCount").Int() == 0 {
		var err error
		out, err = sjson.SetBytes(out, "slotCount", DefaultSlotCount)
		if err != nil {
			return nil, fmt.Errorf("migrating settings.slotCount: %w", err)
		}
	}
	return out, nil
}
