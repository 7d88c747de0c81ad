package store

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// populate fills every collection, including pinned and soft-deleted records.
func populate(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()

	for _, kind := range Kinds {
		p, err := s.CreateParent(ctx, &Parent{Kind: kind, Title: string(kind) + " parent", Prompt: "prompt"})
		require.NoError(t, err)

		keep, err := s.AddArtifact(ctx, &Artifact{Kind: kind, ParentID: p.ID, URLs: []string{"https://cdn.example/" + string(kind) + "/1"}})
		require.NoError(t, err)
		drop, err := s.AddArtifact(ctx, &Artifact{Kind: kind, ParentID: p.ID, URLs: []string{"https://cdn.example/" + string(kind) + "/2", "https://cdn.example/" + string(kind) + "/3"}})
		require.NoError(t, err)

		_, err = s.SetPinned(ctx, kind, keep.ID, true)
		require.NoError(t, err)
		_, err = s.SoftDeleteArtifact(ctx, kind, drop.ID)
		require.NoError(t, err)
	}

	_, err := s.PutSettings(ctx, Settings{APIKey: "sk-secret", Model: "dall-e-3", SlotCount: 4})
	require.NoError(t, err)
}

func TestTransfer_ExportImportRoundTrip(t *testing.T) {
	src, _ := setupTestStore(t, 0)
	populate(t, src)
	ctx := context.Background()

	snap, err := src.Export(ctx)
	require.NoError(t, err)
	first, err := snap.Encode()
	require.NoError(t, err)

	dst, _ := setupTestStore(t, 0)
	result, err := dst.Import(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, Collections, result.Replaced)
	assert.Empty(t, result.Ignored)

	snap2, err := dst.Export(ctx)
	require.NoError(t, err)
	second, err := snap2.Encode()
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
}

func TestTransfer_ExportIncludesDeletedAndSecrets(t *testing.T) {
	s, _ := setupTestStore(t, 0)
	populate(t, s)

	snap, err := s.Export(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "sk-secret", snap.Settings.APIKey)
	for _, kind := range Kinds {
		arts := snap.Artifacts(kind)
		require.Len(t, arts, 2, "kind %s", kind)
		assert.True(t, arts[0].Pinned)
		assert.True(t, arts[1].Deleted)
		assert.Len(t, snap.Parents(kind), 1)
	}
}

func TestTransfer_EmptyStoreExportsEveryKey(t *testing.T) {
	s, _ := setupTestStore(t, 0)

	snap, err := s.Export(context.Background())
	require.NoError(t, err)
	data, err := snap.Encode()
	require.NoError(t, err)

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &doc))
	for _, c := range Collections {
		assert.Contains(t, doc, string(c))
	}
	assert.JSONEq(t, `[]`, string(doc["songs"]))
	assert.JSONEq(t, `{"apiKey":"","slotCount":3}`, string(doc["settings"]))
}

func TestTransfer_EncodeSubset(t *testing.T) {
	s, _ := setupTestStore(t, 0)
	populate(t, s)

	snap, err := s.Export(context.Background())
	require.NoError(t, err)
	data, err := snap.Encode(CollectionImageSessions, CollectionImages)
	require.NoError(t, err)

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Len(t, doc, 2)
	assert.Contains(t, doc, "images")
	assert.Contains(t, doc, "imageSessions")

	_, err = snap.Encode("bogus")
	assert.Error(t, err)
}

func TestTransfer_ImportSettingsOnlyLeavesArtifacts(t *testing.T) {
	s, _ := setupTestStore(t, 0)
	ctx := context.Background()
	populate(t, s)

	before, err := s.ListArtifacts(ctx, KindSong, Filter{IncludeDeleted: true})
	require.NoError(t, err)

	result, err := s.Import(ctx, []byte(`{"settings":{"apiKey":"sk-new","slotCount":6}}`))
	require.NoError(t, err)
	assert.Equal(t, []Collection{CollectionSettings}, result.Replaced)

	after, err := s.ListArtifacts(ctx, KindSong, Filter{IncludeDeleted: true})
	require.NoError(t, err)
	assert.Equal(t, before, after)

	settings, err := s.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sk-new", settings.APIKey)
	assert.Equal(t, 6, settings.SlotCount)
}

func TestTransfer_ImportReplacesWholeCollection(t *testing.T) {
	s, _ := setupTestStore(t, 0)
	ctx := context.Background()
	populate(t, s)

	_, err := s.Import(ctx, []byte(`{"images":[{"id":"i-9","parentId":"sess-9","urls":["https://x/9.png"]}]}`))
	require.NoError(t, err)

	images, err := s.ListArtifacts(ctx, KindImage, Filter{IncludeDeleted: true})
	require.NoError(t, err)
	require.Len(t, images, 1)
	assert.Equal(t, "i-9", images[0].ID)
	assert.Equal(t, KindImage, images[0].Kind)

	songs, err := s.ListArtifacts(ctx, KindSong, Filter{IncludeDeleted: true})
	require.NoError(t, err)
	assert.Len(t, songs, 2)
}

func TestTransfer_MalformedImportIsAtomic(t *testing.T) {
	s, medium := setupTestStore(t, 0)
	ctx := context.Background()
	populate(t, s)

	snapshotRaw := func() map[Collection]string {
		out := make(map[Collection]string)
		for _, c := range Collections {
			raw, _, err := medium.Read(ctx, c.Key())
			require.NoError(t, err)
			out[c] = string(raw)
		}
		return out
	}
	before := snapshotRaw()

	payloads := map[string]string{
		"not json":          `{{{`,
		"array root":        `[1,2,3]`,
		"no known keys":     `{"whatever":[]}`,
		"bad second key":    `{"settings":{"slotCount":2},"songs":{"id":"x"}}`,
		"record without id": `{"lyrics":[{"title":"x"}]}`,
		"wrong kind":        `{"images":[{"id":"a","kind":"song","parentId":"p","urls":["u"]}]}`,
		"orphan artifact":   `{"videoClips":[{"id":"a","urls":["u"]}]}`,
		"duplicate ids":     `{"lyrics":[{"id":"a"},{"id":"a"}]}`,
		"invalid settings":  `{"settings":{"slotCount":99}}`,
		"null collection":   `{"songs":null}`,
	}
	for name, payload := range payloads {
		t.Run(name, func(t *testing.T) {
			_, err := s.Import(ctx, []byte(payload))
			assert.ErrorIs(t, err, ErrInvalidFormat)
			assert.Equal(t, before, snapshotRaw())
		})
	}
}

func TestTransfer_ImportReportsIgnoredKeys(t *testing.T) {
	s, _ := setupTestStore(t, 0)

	result, err := s.Import(context.Background(), []byte(`{"lyrics":[],"version":2,"extra":{}}`))
	require.NoError(t, err)
	assert.Equal(t, []Collection{CollectionLyrics}, result.Replaced)
	assert.Equal(t, []string{"extra", "version"}, result.Ignored)
}

func TestTransfer_ImportOverQuotaWritesNothing(t *testing.T) {
	src, _ := setupTestStore(t, 0)
	populate(t, src)
	ctx := context.Background()

	snap, err := src.Export(ctx)
	require.NoError(t, err)
	payload, err := snap.Encode()
	require.NoError(t, err)

	dst, medium := setupTestStore(t, 200)
	var notifications atomic.Int32
	dst.QuotaBus().Subscribe(func() { notifications.Add(1) })

	_, err = dst.Import(ctx, payload)
	require.ErrorIs(t, err, ErrQuotaExceeded)
	assert.Equal(t, int32(1), notifications.Load())
	assert.Equal(t, int64(0), medium.Usage())
}

func TestTransfer_Reset(t *testing.T) {
	s, medium := setupTestStore(t, 0)
	ctx := context.Background()
	populate(t, s)

	require.NoError(t, s.Reset(ctx))
	assert.Equal(t, int64(0), medium.Usage())

	settings, err := s.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), settings)
}
