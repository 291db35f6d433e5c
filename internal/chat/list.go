// Package chat holds the client-side state of the conversation sidebar and
// the open message thread.
//
// The state holders are owned by the UI's root model and only mutated from
// its Update loop, one message at a time, so they carry no locks. Results of
// asynchronous requests are applied through methods that take the id the
// request was issued for and drop anything that no longer matches.
package chat

import "chatdesk/internal/models"

// Navigation is where the UI should go after a list mutation
type Navigation struct {
	// ConversationID is the conversation to open; empty means the empty state
	ConversationID string
	// Changed is false when the active conversation is unaffected
	Changed bool
}

// ConversationList is the cached, client-sorted conversation list
type ConversationList struct {
	items      []models.Conversation
	activeID   string
	loaded     bool
	redirected bool
}

// NewConversationList creates an empty list with nothing selected
func NewConversationList() *ConversationList {
	return &ConversationList{}
}

// Replace stores a fetched list. The server's order is ignored.
func (l *ConversationList) Replace(convs []models.Conversation) {
	l.items = append(l.items[:0:0], convs...)
	models.SortByUpdated(l.items)
	l.loaded = true
}

// Loaded reports whether at least one fetch has completed
func (l *ConversationList) Loaded() bool { return l.loaded }

// Items returns a copy of the list, most recently updated first
func (l *ConversationList) Items() []models.Conversation {
	return append([]models.Conversation(nil), l.items...)
}

// Len returns the number of conversations
func (l *ConversationList) Len() int { return len(l.items) }

// Get looks a conversation up by id
func (l *ConversationList) Get(id string) (models.Conversation, bool) {
	if i := l.indexOf(id); i >= 0 {
		return l.items[i], true
	}
	return models.Conversation{}, false
}

// ActiveID returns the selected conversation id, or ""
func (l *ConversationList) ActiveID() string { return l.activeID }

// Select makes id the active conversation; "" clears the selection
func (l *ConversationList) Select(id string) { l.activeID = id }

// Insert adds a newly created conversation and selects it
func (l *ConversationList) Insert(conv models.Conversation) {
	if i := l.indexOf(conv.ID); i >= 0 {
		l.items[i] = conv
	} else {
		l.items = append(l.items, conv)
	}
	models.SortByUpdated(l.items)
	l.activeID = conv.ID
}

// Remove drops a deleted conversation. When it was the active one the next
// most recently updated conversation is selected, or the selection is
// cleared when none remain.
func (l *ConversationList) Remove(id string) Navigation {
	if i := l.indexOf(id); i >= 0 {
		l.items = append(l.items[:i:i], l.items[i+1:]...)
	}
	if l.activeID != id {
		return Navigation{ConversationID: l.activeID}
	}
	l.activeID = ""
	if len(l.items) > 0 {
		l.activeID = l.items[0].ID
	}
	return Navigation{ConversationID: l.activeID, Changed: true}
}

// InitialRedirect selects the most recently updated conversation when
// nothing is selected after a load. It fires at most once per list.
func (l *ConversationList) InitialRedirect() (string, bool) {
	if l.redirected || !l.loaded || l.activeID != "" || len(l.items) == 0 {
		return "", false
	}
	l.redirected = true
	l.activeID = l.items[0].ID
	return l.activeID, true
}

func (l *ConversationList) indexOf(id string) int {
	for i := range l.items {
		if l.items[i].ID == id {
			return i
		}
	}
	return -1
}
