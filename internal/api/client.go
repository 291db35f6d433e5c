// Package api is the typed client for the chat backend's REST contract.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"chatdesk/internal/models"
)

const (
	// DefaultTimeout is the default timeout for API requests.
	DefaultTimeout = 30 * time.Second

	// maxErrorBody bounds how much of an error response is read.
	maxErrorBody = 64 * 1024
)

// Backend is the method set shared by the HTTP client and the mock backend
type Backend interface {
	GetSettings(ctx context.Context) (models.Settings, error)
	UpdateAPIKey(ctx context.Context, apiKey string) (models.Settings, error)
	DeleteAPIKey(ctx context.Context) error
	ListConversations(ctx context.Context) ([]models.Conversation, error)
	CreateConversation(ctx context.Context) (models.Conversation, error)
	GetMessages(ctx context.Context, conversationID string) ([]models.Message, error)
	SendMessage(ctx context.Context, conversationID, content string) (models.ChatReply, error)
	DeleteConversation(ctx context.Context, conversationID string) error
}

// TokenSource provides the bearer token of the current session.
// An empty token means nobody is signed in.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Wire shapes of the REST contract
type (
	errorEnvelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}

	// ConversationList is the body of GET /conversations
	ConversationList struct {
		Conversations []models.Conversation `json:"conversations"`
	}

	// MessageList is the body of GET /conversations/:id/messages
	MessageList struct {
		Messages []models.Message `json:"messages"`
	}

	// ChatRequest is the body of POST /conversations/:id/chat
	ChatRequest struct {
		Message string `json:"message"`
	}

	// ChatResponse is the assistant message, optionally carrying the stored user message
	ChatResponse struct {
		models.Message
		UserMessage *models.Message `json:"user_message,omitempty"`
	}

	// APIKeyRequest is the body of PUT /settings/anthropic-key
	APIKeyRequest struct {
		APIKey string `json:"api_key"`
	}
)

// Client talks to the chat backend over HTTP
type Client struct {
	baseURL string
	tokens  TokenSource
	http    *http.Client
	logger  *slog.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the client's logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates a client for the API rooted at baseURL
func NewClient(baseURL string, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		http:    &http.Client{Timeout: DefaultTimeout},
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ Backend = (*Client)(nil)

// GetSettings fetches the user's settings
func (c *Client) GetSettings(ctx context.Context) (models.Settings, error) {
	var s models.Settings
	err := c.do(ctx, http.MethodGet, "/settings", nil, &s)
	return s, err
}

// UpdateAPIKey stores a new Anthropic key and returns the masked settings
func (c *Client) UpdateAPIKey(ctx context.Context, apiKey string) (models.Settings, error) {
	var s models.Settings
	err := c.do(ctx, http.MethodPut, "/settings/anthropic-key", APIKeyRequest{APIKey: apiKey}, &s)
	return s, err
}

// DeleteAPIKey removes the stored key
func (c *Client) DeleteAPIKey(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/settings/anthropic-key", nil, nil)
}

// ListConversations returns the conversations in server order
func (c *Client) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	var res ConversationList
	if err := c.do(ctx, http.MethodGet, "/conversations", nil, &res); err != nil {
		return nil, err
	}
	return res.Conversations, nil
}

// CreateConversation creates an empty conversation
func (c *Client) CreateConversation(ctx context.Context) (models.Conversation, error) {
	var conv models.Conversation
	err := c.do(ctx, http.MethodPost, "/conversations", nil, &conv)
	return conv, err
}

// GetMessages returns a conversation's messages
func (c *Client) GetMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	var res MessageList
	if err := c.do(ctx, http.MethodGet, conversationPath(conversationID, "messages"), nil, &res); err != nil {
		return nil, err
	}
	return res.Messages, nil
}

// SendMessage posts a user message and waits for the assistant reply
func (c *Client) SendMessage(ctx context.Context, conversationID, content string) (models.ChatReply, error) {
	var res ChatResponse
	if err := c.do(ctx, http.MethodPost, conversationPath(conversationID, "chat"), ChatRequest{Message: content}, &res); err != nil {
		return models.ChatReply{}, err
	}
	return models.ChatReply{User: res.UserMessage, Assistant: res.Message}, nil
}

// DeleteConversation removes a conversation
func (c *Client) DeleteConversation(ctx context.Context, conversationID string) error {
	return c.do(ctx, http.MethodDelete, conversationPath(conversationID, ""), nil, nil)
}

func conversationPath(id, sub string) string {
	p := "/conversations/" + url.PathEscape(id)
	if sub != "" {
		p += "/" + sub
	}
	return p
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("get token: %w", err)
	}
	if token == "" {
		return ErrUnauthenticated
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("request failed", "method", method, "path", path, "error", err)
		// a timed-out request may have reached the server
		if isTimeout(ctx, err) {
			return fmt.Errorf("%w: %w", ErrTimeout, err)
		}
		return &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := parseError(resp)
		c.logger.Info("api error", "method", method, "path", path, "status", apiErr.Status, "code", apiErr.Code)
		return apiErr
	}

	if resp.StatusCode == http.StatusNoContent || out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func parseError(resp *http.Response) *APIError {
	apiErr := NewError(resp.StatusCode, CodeInternal, "Something went wrong")
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return apiErr
	}
	var env errorEnvelope
	// Non-JSON bodies (a gateway's 502 page) keep the generic error
	if json.Unmarshal(data, &env) != nil {
		return apiErr
	}
	if env.Error.Code != "" {
		apiErr.Code = env.Error.Code
	}
	if env.Error.Message != "" {
		apiErr.Message = env.Error.Message
	}
	return apiErr
}

func isTimeout(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr) && urlErr.Timeout()
}
