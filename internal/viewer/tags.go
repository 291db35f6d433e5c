package viewer

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"chatdesk/internal/storage"
)

// TagsStorageKey is the local storage key of the tag map
const TagsStorageKey = "json-chat-viewer-tags"

// TagStore persists the tag map
type TagStore interface {
	Load() (map[string][]string, error)
	Save(map[string][]string) error
}

// LocalTagStore keeps the tag map as JSON in local storage
type LocalTagStore struct {
	kv     storage.Local
	key    string
	logger *slog.Logger
}

// NewLocalTagStore creates a TagStore under TagsStorageKey
func NewLocalTagStore(kv storage.Local, logger *slog.Logger) *LocalTagStore {
	return &LocalTagStore{kv: kv, key: TagsStorageKey, logger: logger}
}

// Load reads the map. Missing or corrupt data loads as empty.
func (s *LocalTagStore) Load() (map[string][]string, error) {
	raw, ok, err := s.kv.GetItem(s.key)
	if err != nil {
		return nil, fmt.Errorf("read tags: %w", err)
	}
	if !ok || raw == "" {
		return map[string][]string{}, nil
	}
	var m map[string][]string
	if err := json.Unmarshal([]byte(raw), &m); err != nil || m == nil {
		s.logger.Warn("ignoring unreadable tag data", "key", s.key, "error", err)
		return map[string][]string{}, nil
	}
	return m, nil
}

// Save writes the map
func (s *LocalTagStore) Save(m map[string][]string) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}
	if err := s.kv.SetItem(s.key, string(data)); err != nil {
		return fmt.Errorf("write tags: %w", err)
	}
	return nil
}

// Tags maps conversation ids to their lowercase tags. Conversations without
// tags have no entry.
type Tags struct {
	byConv map[string][]string
	store  TagStore
}

// LoadTags reads the tag map from store
func LoadTags(store TagStore) (*Tags, error) {
	m, err := store.Load()
	if err != nil {
		return nil, err
	}
	t := &Tags{byConv: make(map[string][]string, len(m)), store: store}
	for id, tags := range m {
		for _, tag := range tags {
			if n := NormalizeTag(tag); n != "" && !contains(t.byConv[id], n) {
				t.byConv[id] = append(t.byConv[id], n)
			}
		}
	}
	return t, nil
}

// NormalizeTag trims and lowercases a tag
func NormalizeTag(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}

// Add tags a conversation. Blank and duplicate tags are ignored.
func (t *Tags) Add(id, tag string) error {
	n := NormalizeTag(tag)
	if n == "" || contains(t.byConv[id], n) {
		return nil
	}
	t.byConv[id] = append(t.byConv[id], n)
	return t.store.Save(t.snapshot())
}

// Remove untags a conversation and drops its entry once it has no tags
func (t *Tags) Remove(id, tag string) error {
	n := NormalizeTag(tag)
	current, ok := t.byConv[id]
	if !ok || !contains(current, n) {
		return nil
	}
	kept := make([]string, 0, len(current))
	for _, existing := range current {
		if existing != n {
			kept = append(kept, existing)
		}
	}
	if len(kept) == 0 {
		delete(t.byConv, id)
	} else {
		t.byConv[id] = kept
	}
	return t.store.Save(t.snapshot())
}

// For returns a conversation's tags
func (t *Tags) For(id string) []string {
	return append([]string(nil), t.byConv[id]...)
}

// Has reports whether a conversation carries exactly this tag
func (t *Tags) Has(id, tag string) bool {
	return contains(t.byConv[id], tag)
}

// Contains reports whether a conversation has an entry at all
func (t *Tags) Contains(id string) bool {
	_, ok := t.byConv[id]
	return ok
}

// All lists the distinct tags in use, sorted
func (t *Tags) All() []string {
	seen := make(map[string]struct{})
	for _, tags := range t.byConv {
		for _, tag := range tags {
			seen[tag] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for tag := range seen {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

func (t *Tags) snapshot() map[string][]string {
	m := make(map[string][]string, len(t.byConv))
	for id, tags := range t.byConv {
		m[id] = append([]string(nil), tags...)
	}
	return m
}

func contains(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}
