package models

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// Export senders
const (
	SenderHuman     = "human"
	SenderAssistant = "assistant"
)

// ExportMessage is one message of an exported conversation file
type ExportMessage struct {
	UUID      string    `json:"uuid"`
	Text      string    `json:"text"`
	Sender    string    `json:"sender"`
	CreatedAt time.Time `json:"created_at"`
}

// ExportConversation is a read-only conversation record from an export file
type ExportConversation struct {
	UUID         string          `json:"uuid"`
	Name         string          `json:"name"`
	Summary      string          `json:"summary"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	ChatMessages []ExportMessage `json:"chat_messages"`
}

// DisplayName returns the name or a placeholder
func (c ExportConversation) DisplayName() string {
	if strings.TrimSpace(c.Name) == "" {
		return "Untitled conversation"
	}
	return c.Name
}

// Role maps the export sender onto a chat role
func (m ExportMessage) Role() string {
	if m.Sender == SenderHuman {
		return RoleUser
	}
	return RoleAssistant
}

// exportLayouts are the timestamp formats accepted in export files, tried in order
var exportLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseExportTime reads an export timestamp: a string in one of the common
// layouts (zone-less ones as local time) or epoch milliseconds. Null, empty
// and unrecognized values give the zero time rather than an error, so one
// odd record does not reject the file.
func ParseExportTime(raw json.RawMessage) time.Time {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		var ms float64
		if json.Unmarshal(raw, &ms) == nil {
			return time.UnixMilli(int64(ms))
		}
		return time.Time{}
	}
	s = strings.TrimSpace(s)
	for _, layout := range exportLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t
		}
	}
	return time.Time{}
}

// UnmarshalJSON decodes a message with tolerant timestamps
func (m *ExportMessage) UnmarshalJSON(data []byte) error {
	type plain ExportMessage
	aux := struct {
		*plain
		CreatedAt json.RawMessage `json:"created_at"`
	}{plain: (*plain)(m)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	m.CreatedAt = ParseExportTime(aux.CreatedAt)
	return nil
}

// UnmarshalJSON decodes a conversation with tolerant timestamps
func (c *ExportConversation) UnmarshalJSON(data []byte) error {
	type plain ExportConversation
	aux := struct {
		*plain
		CreatedAt json.RawMessage `json:"created_at"`
		UpdatedAt json.RawMessage `json:"updated_at"`
	}{plain: (*plain)(c)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	c.CreatedAt = ParseExportTime(aux.CreatedAt)
	c.UpdatedAt = ParseExportTime(aux.UpdatedAt)
	return nil
}
