// Package mock provides an in-memory stand-in for the chat backend.
//
// A Backend has the same method set as api.Client and mirrors the real API's
// error shapes, so it can be swapped in behind the mock-mode flag (or served
// over HTTP by the dev server) without callers noticing. State lives only as
// long as the Backend value.
package mock

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"chatdesk/internal/api"
	"chatdesk/internal/models"

	"github.com/google/uuid"
)

// Default simulated latency of a chat reply
const (
	DefaultMinDelay = 800 * time.Millisecond
	DefaultMaxDelay = 1500 * time.Millisecond

	// DefaultAPIKey makes a fresh backend report a configured key
	DefaultAPIKey = "sk-ant-mock"
)

// Backend is an in-memory conversation and message store. It is safe for
// concurrent use.
type Backend struct {
	mu            sync.Mutex
	conversations []*models.Conversation
	messages      map[string][]models.Message
	apiKey        string

	responder Responder
	minDelay  time.Duration
	maxDelay  time.Duration
	sleep     func(ctx context.Context, d time.Duration) error
	now       func() time.Time
	logger    *slog.Logger
}

// Option configures a Backend
type Option func(*Backend)

// WithDelay sets the bounds of the simulated reply latency
func WithDelay(min, max time.Duration) Option {
	return func(b *Backend) {
		if max < min {
			max = min
		}
		b.minDelay, b.maxDelay = min, max
	}
}

// WithResponder replaces the canned reply generator
func WithResponder(r Responder) Option {
	return func(b *Backend) { b.responder = r }
}

// WithAPIKey sets the initially stored key; "" starts unconfigured
func WithAPIKey(key string) Option {
	return func(b *Backend) { b.apiKey = key }
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(b *Backend) { b.now = now }
}

// WithSleep overrides how the latency is waited out
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(b *Backend) { b.sleep = sleep }
}

// WithLogger sets the backend's logger
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) { b.logger = logger }
}

// New creates an empty Backend
func New(opts ...Option) *Backend {
	b := &Backend{
		messages:  make(map[string][]models.Message),
		apiKey:    DefaultAPIKey,
		responder: NewCannedResponder(),
		minDelay:  DefaultMinDelay,
		maxDelay:  DefaultMaxDelay,
		sleep:     sleepContext,
		now:       time.Now,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

var _ api.Backend = (*Backend)(nil)

// GetSettings reports whether a key is stored
func (b *Backend) GetSettings(ctx context.Context) (models.Settings, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.settingsLocked(), nil
}

// UpdateAPIKey stores a key
func (b *Backend) UpdateAPIKey(ctx context.Context, apiKey string) (models.Settings, error) {
	if apiKey == "" {
		return models.Settings{}, api.NewError(http.StatusBadRequest, api.CodeBadRequest, "api_key is required")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.apiKey = apiKey
	return b.settingsLocked(), nil
}

// DeleteAPIKey clears the stored key
func (b *Backend) DeleteAPIKey(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.apiKey = ""
	return nil
}

func (b *Backend) settingsLocked() models.Settings {
	if b.apiKey == "" {
		return models.Settings{}
	}
	preview := MaskKey(b.apiKey)
	return models.Settings{AnthropicKeySet: true, AnthropicKeyPreview: &preview}
}

// ListConversations returns all conversations, most recently updated first
func (b *Backend) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]models.Conversation, 0, len(b.conversations))
	for _, c := range b.conversations {
		out = append(out, *c)
	}
	models.SortByUpdated(out)
	return out, nil
}

// CreateConversation adds an untitled conversation
func (b *Backend) CreateConversation(ctx context.Context) (models.Conversation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	conv := &models.Conversation{
		ID:        genID("conv"),
		CreatedAt: now,
		UpdatedAt: now,
	}
	b.conversations = append(b.conversations, conv)
	b.messages[conv.ID] = []models.Message{}
	b.logger.Debug("conversation created", "conversation_id", conv.ID)
	return *conv, nil
}

// GetMessages returns a copy of a conversation's messages
func (b *Backend) GetMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.findLocked(conversationID) == nil {
		return nil, api.ErrNotFound()
	}
	msgs := b.messages[conversationID]
	out := make([]models.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// SendMessage stores the user message, waits out the simulated latency and
// appends the generated assistant reply.
func (b *Backend) SendMessage(ctx context.Context, conversationID, content string) (models.ChatReply, error) {
	b.mu.Lock()
	conv := b.findLocked(conversationID)
	if conv == nil {
		b.mu.Unlock()
		return models.ChatReply{}, api.ErrNotFound()
	}
	if b.apiKey == "" {
		b.mu.Unlock()
		return models.ChatReply{}, api.NewError(http.StatusBadRequest, api.CodeAPIKeyRequired, "Configure your API key to send messages")
	}

	before := *conv
	userMsg := models.Message{
		ID:        genID("msg"),
		Role:      models.RoleUser,
		Content:   content,
		CreatedAt: b.now(),
	}
	b.messages[conversationID] = append(b.messages[conversationID], userMsg)
	if conv.MessageCount == 0 {
		title := models.TitleFromContent(content)
		conv.Title = &title
	}
	conv.MessageCount++
	conv.UpdatedAt = userMsg.CreatedAt

	history := make([]models.Message, len(b.messages[conversationID]))
	copy(history, b.messages[conversationID])
	key := b.apiKey
	delay := b.delayLocked()
	b.mu.Unlock()

	if err := b.sleep(ctx, delay); err != nil {
		b.withdraw(conversationID, userMsg.ID, before)
		return models.ChatReply{}, err
	}

	text, err := b.responder.Reply(ctx, ReplyRequest{APIKey: key, History: history})
	if err != nil {
		b.logger.Warn("reply generation failed", "conversation_id", conversationID, "error", err)
		b.withdraw(conversationID, userMsg.ID, before)
		return models.ChatReply{}, api.NewError(http.StatusBadGateway, api.CodeUpstream, fmt.Sprintf("Failed to generate a reply: %v", err))
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	conv = b.findLocked(conversationID)
	if conv == nil {
		// deleted while the reply was being generated
		return models.ChatReply{}, api.ErrNotFound()
	}
	assistantMsg := models.Message{
		ID:        genID("msg"),
		Role:      models.RoleAssistant,
		Content:   text,
		CreatedAt: b.now(),
	}
	b.messages[conversationID] = append(b.messages[conversationID], assistantMsg)
	conv.MessageCount++
	conv.UpdatedAt = assistantMsg.CreatedAt

	return models.ChatReply{User: &userMsg, Assistant: assistantMsg}, nil
}

// DeleteConversation removes a conversation and its messages
func (b *Backend) DeleteConversation(ctx context.Context, conversationID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, c := range b.conversations {
		if c.ID == conversationID {
			b.conversations = append(b.conversations[:i], b.conversations[i+1:]...)
			delete(b.messages, conversationID)
			b.logger.Debug("conversation deleted", "conversation_id", conversationID)
			return nil
		}
	}
	return api.ErrNotFound()
}

// Has reports whether the conversation exists
func (b *Backend) Has(conversationID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.findLocked(conversationID) != nil
}

// withdraw undoes a user message whose reply never arrived
func (b *Backend) withdraw(conversationID, messageID string, before models.Conversation) {
	b.mu.Lock()
	defer b.mu.Unlock()
	conv := b.findLocked(conversationID)
	if conv == nil {
		return
	}
	msgs := b.messages[conversationID]
	for i, m := range msgs {
		if m.ID == messageID {
			b.messages[conversationID] = append(msgs[:i:i], msgs[i+1:]...)
			break
		}
	}
	conv.Title = before.Title
	conv.MessageCount = before.MessageCount
	conv.UpdatedAt = before.UpdatedAt
}

func (b *Backend) findLocked(id string) *models.Conversation {
	for _, c := range b.conversations {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func (b *Backend) delayLocked() time.Duration {
	if b.maxDelay <= b.minDelay {
		return b.minDelay
	}
	return b.minDelay + time.Duration(rand.Int63n(int64(b.maxDelay-b.minDelay)))
}

// MaskKey renders a key as its prefix and last four characters
func MaskKey(key string) string {
	const prefixLen, suffixLen = 7, 4
	if len(key) <= suffixLen {
		return "..." + key
	}
	prefix := key
	if len(prefix) > prefixLen {
		prefix = prefix[:prefixLen]
	}
	if len(key) <= prefixLen+suffixLen {
		prefix = key[:len(key)-suffixLen]
	}
	return prefix + "..." + key[len(key)-suffixLen:]
}

func genID(prefix string) string {
	return prefix + "_" + uuid.NewString()[:8]
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
