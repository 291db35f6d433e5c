// Package viewer is the local JSON conversation viewer: it parses an
// exported conversations file, filters it by text and tag, and tracks the
// selected conversation. Nothing here talks to the backend.
package viewer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"chatdesk/internal/models"
)

// ErrNotArray is returned when the file's top-level value is not an array
var ErrNotArray = errors.New("expected an array of conversations")

// Parse decodes an export file. Anything but a JSON array of conversation
// records is rejected as a whole.
func Parse(data []byte) ([]models.ExportConversation, error) {
	var raw json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return nil, ErrNotArray
	}
	var convs []models.ExportConversation
	if err := json.Unmarshal(raw, &convs); err != nil {
		return nil, fmt.Errorf("failed to parse conversations: %w", err)
	}
	return convs, nil
}

// Viewer holds the loaded conversations and the current filters
type Viewer struct {
	conversations []models.ExportConversation
	selectedID    string
	query         string
	tagFilter     string
	err           error
	tags          *Tags
}

// New creates an empty viewer backed by tags
func New(tags *Tags) *Viewer {
	return &Viewer{tags: tags}
}

// Load replaces the loaded file. On failure the error is kept and no
// conversations remain loaded.
func (v *Viewer) Load(data []byte) error {
	convs, err := Parse(data)
	if err != nil {
		v.err = err
		v.conversations = nil
		v.selectedID = ""
		return err
	}
	sort.SliceStable(convs, func(i, j int) bool {
		return convs[i].UpdatedAt.After(convs[j].UpdatedAt)
	})
	v.err = nil
	v.conversations = convs
	v.selectedID = ""
	if len(convs) > 0 {
		v.selectedID = convs[0].UUID
	}
	v.reconcileSelection()
	return nil
}

// Err returns the last load error, if any
func (v *Viewer) Err() error { return v.err }

// Conversations returns every loaded conversation, newest first
func (v *Viewer) Conversations() []models.ExportConversation {
	return v.conversations
}

// Tags returns the tag index
func (v *Viewer) Tags() *Tags { return v.tags }

// Query returns the active search text
func (v *Viewer) Query() string { return v.query }

// TagFilter returns the active tag filter, "" for all
func (v *Viewer) TagFilter() string { return v.tagFilter }

// SetQuery sets the search text
func (v *Viewer) SetQuery(q string) {
	v.query = q
	v.reconcileSelection()
}

// SetTagFilter restricts the list to one tag; "" shows all
func (v *Viewer) SetTagFilter(tag string) {
	v.tagFilter = NormalizeTag(tag)
	v.reconcileSelection()
}

// Visible returns the conversations passing both filters
func (v *Viewer) Visible() []models.ExportConversation {
	var out []models.ExportConversation
	for _, c := range v.conversations {
		if !MatchesSearch(c, v.query) {
			continue
		}
		if v.tagFilter != "" && !v.tags.Has(c.UUID, v.tagFilter) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Select chooses a conversation by uuid
func (v *Viewer) Select(id string) {
	for _, c := range v.conversations {
		if c.UUID == id {
			v.selectedID = id
			return
		}
	}
}

// SelectedID returns the selected uuid, or ""
func (v *Viewer) SelectedID() string { return v.selectedID }

// Selected returns the selected conversation
func (v *Viewer) Selected() (models.ExportConversation, bool) {
	for _, c := range v.conversations {
		if c.UUID == v.selectedID {
			return c, true
		}
	}
	return models.ExportConversation{}, false
}

// AddTag tags a conversation
func (v *Viewer) AddTag(id, tag string) error {
	return v.tags.Add(id, tag)
}

// RemoveTag untags a conversation; the selection follows the filters
func (v *Viewer) RemoveTag(id, tag string) error {
	err := v.tags.Remove(id, tag)
	v.reconcileSelection()
	return err
}

// AllTags lists every tag in use, sorted
func (v *Viewer) AllTags() []string { return v.tags.All() }

// reconcileSelection falls back to the first visible conversation when the
// selection is filtered out. With nothing visible the selection is kept.
func (v *Viewer) reconcileSelection() {
	visible := v.Visible()
	if len(visible) == 0 {
		return
	}
	for _, c := range visible {
		if c.UUID == v.selectedID {
			return
		}
	}
	if v.selectedID != "" {
		v.selectedID = visible[0].UUID
	}
}

// MatchesSearch is a case-insensitive substring match over the name, the
// summary and every message text. A blank query matches everything.
func MatchesSearch(c models.ExportConversation, query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return true
	}
	if strings.Contains(strings.ToLower(c.Name), q) || strings.Contains(strings.ToLower(c.Summary), q) {
		return true
	}
	for _, m := range c.ChatMessages {
		if strings.Contains(strings.ToLower(m.Text), q) {
			return true
		}
	}
	return false
}
