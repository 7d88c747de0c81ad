// ABOUTME: Record types persisted by the versioned store
// ABOUTME: Defines kinds, collections, Parent, Artifact, Settings and list filters

package store

import (
	"fmt"
	"slices"
	"time"
)

// Kind identifies a generation domain. Each kind has one parent collection
// and one artifact collection.
type Kind string

// Kind constants
const (
	KindSong  Kind = "song"  // lyrics -> songs
	KindImage Kind = "image" // image sessions -> images
	KindVideo Kind = "video" // video scripts -> clips
)

// Kinds lists every supported kind.
var Kinds = []Kind{KindSong, KindImage, KindVideo}

// Collection is the name of a persisted collection. Names double as the
// top-level keys of the export document.
type Collection string

// Collection constants
const (
	CollectionLyrics        Collection = "lyrics"
	CollectionSongs         Collection = "songs"
	CollectionImageSessions Collection = "imageSessions"
	CollectionImages        Collection = "images"
	CollectionVideoScripts  Collection = "videoScripts"
	CollectionVideoClips    Collection = "videoClips"
	CollectionSettings      Collection = "settings"
)

// Collections lists every collection in export order.
var Collections = []Collection{
	CollectionLyrics,
	CollectionSongs,
	CollectionImageSessions,
	CollectionImages,
	CollectionVideoScripts,
	CollectionVideoClips,
	CollectionSettings,
}

// keyPrefix namespaces every key the store writes to the medium.
const keyPrefix = "slotforge:"

// Key returns the medium key for the collection.
func (c Collection) Key() string {
	return keyPrefix + string(c)
}

// ParseCollection validates a collection name.
func ParseCollection(name string) (Collection, error) {
	c := Collection(name)
	if !slices.Contains(Collections, c) {
		return "", fmt.Errorf("unknown collection %q", name)
	}
	return c, nil
}

type kindCollections struct {
	parents   Collection
	artifacts Collection
}

var kindTable = map[Kind]kindCollections{
	KindSong:  {parents: CollectionLyrics, artifacts: CollectionSongs},
	KindImage: {parents: CollectionImageSessions, artifacts: CollectionImages},
	KindVideo: {parents: CollectionVideoScripts, artifacts: CollectionVideoClips},
}

// ParseKind validates a kind name.
func ParseKind(name string) (Kind, error) {
	k := Kind(name)
	if _, ok := kindTable[k]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, name)
	}
	return k, nil
}

// ParentCollection returns the collection holding parents of kind k.
func ParentCollection(k Kind) (Collection, error) {
	kc, ok := kindTable[k]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, k)
	}
	return kc.parents, nil
}

// ArtifactCollection returns the collection holding artifacts of kind k.
func ArtifactCollection(k Kind) (Collection, error) {
	kc, ok := kindTable[k]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, k)
	}
	return kc.artifacts, nil
}

// collectionKind returns the kind a parent or artifact collection belongs to.
func collectionKind(c Collection) (Kind, bool) {
	for k, kc := range kindTable {
		if kc.parents == c || kc.artifacts == c {
			return k, true
		}
	}
	return "", false
}

func isParentCollection(c Collection) bool {
	for _, kc := range kindTable {
		if kc.parents == c {
			return true
		}
	}
	return false
}

func isArtifactCollection(c Collection) bool {
	for _, kc := range kindTable {
		if kc.artifacts == c {
			return true
		}
	}
	return false
}

// Parent is the user-authored entity artifacts are generated from:
// a lyrics message, an image session or a video script.
type Parent struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Title     string    `json:"title"`
	Prompt    string    `json:"prompt"`
	Content   string    `json:"content"`         // lyrics text, session notes or script body
	Style     string    `json:"style,omitempty"` // genre, art style or shot style
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Deleted   bool      `json:"deleted"`
}

// Artifact is a persisted generation result owned by a parent.
// ParentID is a reference only; the store owns both records.
type Artifact struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	ParentID  string    `json:"parentId"`
	Title     string    `json:"title,omitempty"`
	Prompt    string    `json:"prompt,omitempty"`
	URLs      []string  `json:"urls"`
	Pinned    bool      `json:"pinned"`
	Deleted   bool      `json:"deleted"`
	CreatedAt time.Time `json:"createdAt"`
}

// Clone returns a deep copy of the artifact.
func (a Artifact) Clone() Artifact {
	a.URLs = slices.Clone(a.URLs)
	if a.URLs == nil {
		a.URLs = []string{}
	}
	return a
}

// DefaultSlotCount is the number of slots per batch when settings do not say otherwise.
const DefaultSlotCount = 3

// Settings holds provider credentials and generation parameters.
type Settings struct {
	APIKey       string `json:"apiKey"`
	Model        string `json:"model,omitempty"`
	ImageSize    string `json:"imageSize,omitempty" validate:"omitempty,oneof=256x256 512x512 1024x1024 1792x1024 1024x1792"`
	SystemPrompt string `json:"systemPrompt,omitempty" validate:"max=4000"`
	SlotCount    int    `json:"slotCount" validate:"min=1,max=10"`
}

// DefaultSettings returns the settings used before anything is saved.
func DefaultSettings() Settings {
	return Settings{SlotCount: DefaultSlotCount}
}

// Filter narrows list queries. The zero value lists every non-deleted record.
type Filter struct {
	ParentID       string // artifacts only
	IncludeDeleted bool
	PinnedOnly     bool // artifacts only
}

func (f Filter) matchParent(p Parent) bool {
	return f.IncludeDeleted || !p.Deleted
}

func (f Filter) matchArtifact(a Artifact) bool {
	if !f.IncludeDeleted && a.Deleted {
		return false
	}
	if f.ParentID != "" && a.ParentID != f.ParentID {
		return false
	}
	if f.PinnedOnly && !a.Pinned {
		return false
	}
	return true
}
