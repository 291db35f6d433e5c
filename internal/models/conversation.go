package models

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/bubbles/list"
)

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// TitleMaxLen is the longest title derived from a first message
const TitleMaxLen = 50

// Message represents a single chat message
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Conversation represents a chat conversation as the backend reports it.
// Title stays nil until the first message is sent.
type Conversation struct {
	ID           string    `json:"id"`
	Title        *string   `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
}

// Settings is the user's backend settings. The full key never leaves the backend.
type Settings struct {
	AnthropicKeySet     bool    `json:"anthropic_key_set"`
	AnthropicKeyPreview *string `json:"anthropic_key_preview"`
}

// ChatReply is the outcome of a send. User is the server's copy of the
// submitted message and may be nil when the backend only returns the reply.
type ChatReply struct {
	User      *Message
	Assistant Message
}

// DisplayTitle returns the title or a placeholder for untitled conversations
func (c Conversation) DisplayTitle() string {
	if c.Title == nil || *c.Title == "" {
		return "New conversation"
	}
	return *c.Title
}

// ListItem adapts a Conversation to the sidebar list
type ListItem struct {
	Conv Conversation
}

// FilterValue implements list.Item interface for the conversation list
func (i ListItem) FilterValue() string { return i.Conv.DisplayTitle() }

// Title implements list.Item interface for the conversation list
func (i ListItem) Title() string { return i.Conv.DisplayTitle() }

// Description implements list.Item interface for the conversation list
func (i ListItem) Description() string {
	date := i.Conv.UpdatedAt.Local().Format("Jan 2 15:04")
	if i.Conv.MessageCount == 1 {
		return fmt.Sprintf("1 message · %s", date)
	}
	return fmt.Sprintf("%d messages · %s", i.Conv.MessageCount, date)
}

var _ list.DefaultItem = ListItem{}

// TitleFromContent derives a conversation title from the first line of a message
func TitleFromContent(content string) string {
	firstLine, _, _ := strings.Cut(content, "\n")
	firstLine = strings.TrimSpace(firstLine)
	if firstLine == "" {
		return "New conversation"
	}
	if utf8.RuneCountInString(firstLine) <= TitleMaxLen {
		return firstLine
	}
	return string([]rune(firstLine)[:TitleMaxLen-3]) + "..."
}

// SortByUpdated sorts conversations most recently updated first
func SortByUpdated(convs []Conversation) {
	sort.SliceStable(convs, func(i, j int) bool {
		return convs[i].UpdatedAt.After(convs[j].UpdatedAt)
	})
}
