package chat

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"chatdesk/internal/api"
	"chatdesk/internal/models"

	"github.com/google/uuid"
)

// TempIDPrefix marks optimistic messages that the server has not confirmed
const TempIDPrefix = "temp-"

var (
	// ErrSendUnavailable is returned when the thread cannot accept a message
	ErrSendUnavailable = errors.New("sending is not available")
	// ErrEmptyMessage is returned for blank input
	ErrEmptyMessage = errors.New("message is empty")
)

// Status is the load state of the open thread
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusReady
	StatusNotFound
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	case StatusNotFound:
		return "not_found"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// KeyState is whether the user has an API key configured
type KeyState int

const (
	KeyUnknown KeyState = iota
	KeyConfigured
	KeyMissing
)

// SendState tracks one optimistic send
type SendState int

const (
	SendPending SendState = iota
	SendCommitted
	SendRolledBack
	// SendDiscarded means the result arrived after the user left the thread
	SendDiscarded
)

func (s SendState) String() string {
	switch s {
	case SendPending:
		return "pending"
	case SendCommitted:
		return "committed"
	case SendRolledBack:
		return "rolled_back"
	case SendDiscarded:
		return "discarded"
	default:
		return "unknown"
	}
}

// PendingSend is an in-flight message submission
type PendingSend struct {
	ConversationID string
	Temp           models.Message
	State          SendState
}

// Thread is the state of the open conversation's message list
type Thread struct {
	conversationID string
	status         Status
	messages       []models.Message
	key            KeyState
	pending        *PendingSend
}

// NewThread creates an idle thread with no conversation open
func NewThread() *Thread {
	return &Thread{}
}

// Open switches to a conversation: messages are cleared and the key state is
// re-checked. An empty id closes the thread.
func (t *Thread) Open(id string) {
	t.conversationID = id
	t.messages = nil
	t.key = KeyUnknown
	t.pending = nil
	t.status = StatusLoading
	if id == "" {
		t.status = StatusIdle
	}
}

// ConversationID returns the open conversation
func (t *Thread) ConversationID() string { return t.conversationID }

// Status returns the load state
func (t *Thread) Status() Status { return t.status }

// Key returns whether an API key is configured
func (t *Thread) Key() KeyState { return t.key }

// Sending reports whether a send is in flight for this thread
func (t *Thread) Sending() bool { return t.pending != nil }

// Messages returns a copy of the visible messages
func (t *Thread) Messages() []models.Message {
	return append([]models.Message(nil), t.messages...)
}

// ApplyMessages applies a message fetch issued for id. A missing
// conversation becomes StatusNotFound; any other error is returned for the
// caller to classify. Results for another conversation are dropped.
func (t *Thread) ApplyMessages(id string, msgs []models.Message, err error) error {
	if id != t.conversationID || t.status != StatusLoading {
		return nil
	}
	if err != nil {
		t.messages = nil
		if api.IsStatus(err, http.StatusNotFound) {
			t.status = StatusNotFound
			return nil
		}
		t.status = StatusFailed
		return err
	}
	t.messages = append([]models.Message(nil), msgs...)
	t.status = StatusReady
	return nil
}

// ApplySettings records whether sending is possible. A failed settings
// check counts as a missing key.
func (t *Thread) ApplySettings(id string, s models.Settings, err error) {
	if id != t.conversationID {
		return
	}
	if err != nil || !s.AnthropicKeySet {
		t.key = KeyMissing
		return
	}
	t.key = KeyConfigured
}

// CanSend reports whether the composer should be enabled
func (t *Thread) CanSend() bool {
	return t.conversationID != "" &&
		t.status == StatusReady &&
		t.key == KeyConfigured &&
		t.pending == nil
}

// BeginSend optimistically appends the user's message under a temporary id
func (t *Thread) BeginSend(content string, now time.Time) (*PendingSend, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyMessage
	}
	if !t.CanSend() {
		return nil, ErrSendUnavailable
	}
	p := &PendingSend{
		ConversationID: t.conversationID,
		Temp: models.Message{
			ID:        TempIDPrefix + uuid.NewString(),
			Role:      models.RoleUser,
			Content:   content,
			CreatedAt: now,
		},
		State: SendPending,
	}
	t.messages = append(t.messages, p.Temp)
	t.pending = p
	return p, nil
}

// Commit reconciles a successful send: the temporary message is removed and
// the confirmed user message and the assistant reply are appended in order.
// It reports false when the send no longer belongs to this thread.
func (t *Thread) Commit(p *PendingSend, reply models.ChatReply) bool {
	if !t.owns(p) {
		p.State = SendDiscarded
		return false
	}
	user := p.Temp
	if reply.User != nil {
		user = *reply.User
	} else {
		user.ID = strings.TrimPrefix(user.ID, TempIDPrefix)
	}
	t.removeMessage(p.Temp.ID)
	t.messages = append(t.messages, user, reply.Assistant)
	t.pending = nil
	p.State = SendCommitted
	return true
}

// Rollback withdraws a failed send, leaving the thread as if it never happened
func (t *Thread) Rollback(p *PendingSend) bool {
	if !t.owns(p) {
		p.State = SendDiscarded
		return false
	}
	t.removeMessage(p.Temp.ID)
	t.pending = nil
	p.State = SendRolledBack
	return true
}

func (t *Thread) owns(p *PendingSend) bool {
	return p != nil && p.State == SendPending && t.pending == p && p.ConversationID == t.conversationID
}

func (t *Thread) removeMessage(id string) {
	for i := range t.messages {
		if t.messages[i].ID == id {
			t.messages = append(t.messages[:i:i], t.messages[i+1:]...)
			return
		}
	}
}

// Reset closes the thread
func (t *Thread) Reset() { t.Open("") }
