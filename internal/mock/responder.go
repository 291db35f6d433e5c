package mock

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"

	"chatdesk/internal/models"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sashabaranov/go-openai"
)

// ReplyRequest carries what a responder may use to produce a reply
type ReplyRequest struct {
	// APIKey is the key the user stored through the settings endpoint
	APIKey  string
	History []models.Message
}

// Responder produces the assistant's reply to a conversation
type Responder interface {
	Reply(ctx context.Context, req ReplyRequest) (string, error)
}

// ResponderFunc adapts a function to Responder
type ResponderFunc func(ctx context.Context, req ReplyRequest) (string, error)

// Reply implements Responder
func (f ResponderFunc) Reply(ctx context.Context, req ReplyRequest) (string, error) {
	return f(ctx, req)
}

// StockReplies are the canned assistant replies
var StockReplies = []string{
	"That's a great question! I'd be happy to help with that.",
	"Here's what I think: that could work. Want to go deeper on it?",
	"Good point. Let me suggest a few options and you can pick what fits.",
	"I don't have access to real-time data, but based on general knowledge, here's my take.",
	"Sure thing. One way to approach this is to start with the basics and build up.",
	"Interesting! I'd need a bit more context to give a precise answer, but here's a rough idea.",
	"Thanks for asking. Here's a concise summary you can use.",
	"I'm not sure I have the full picture, but a common approach would be to try this first.",
	"Got it. Here are a couple of paths forward. See which one fits your case.",
	"That makes sense. My suggestion would be to break it down into smaller steps.",
}

// CannedResponder picks a random stock reply
type CannedResponder struct {
	Replies []string
	pick    func(n int) int
}

// NewCannedResponder returns a responder over StockReplies
func NewCannedResponder() *CannedResponder {
	return &CannedResponder{Replies: StockReplies, pick: rand.Intn}
}

// Reply implements Responder
func (r *CannedResponder) Reply(ctx context.Context, req ReplyRequest) (string, error) {
	if len(r.Replies) == 0 {
		return "", errors.New("no canned replies configured")
	}
	return r.Replies[r.pick(len(r.Replies))], nil
}

const systemPrompt = "You are a helpful AI assistant. Provide clear, concise, and helpful responses."

// OpenAIResponder generates replies with an OpenAI-compatible chat completion API
type OpenAIResponder struct {
	client    *openai.Client
	model     string
	maxTokens int
}

// NewOpenAIResponder creates a responder. baseURL may be empty for the default endpoint.
func NewOpenAIResponder(apiKey, baseURL, model string) *OpenAIResponder {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openai.GPT3Dot5Turbo
	}
	return &OpenAIResponder{
		client:    openai.NewClientWithConfig(cfg),
		model:     model,
		maxTokens: 1000,
	}
}

// Reply implements Responder
func (r *OpenAIResponder) Reply(ctx context.Context, req ReplyRequest) (string, error) {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
	}
	for _, msg := range req.History {
		role := openai.ChatMessageRoleAssistant
		if msg.Role == models.RoleUser {
			role = openai.ChatMessageRoleUser
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: msg.Content})
	}

	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     r.model,
		Messages:  messages,
		MaxTokens: r.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no response from API")
	}
	return resp.Choices[0].Message.Content, nil
}

// AnthropicResponder replies through the Anthropic Messages API using the
// key the user stored in settings.
type AnthropicResponder struct {
	model     string
	maxTokens int64
	opts      []option.RequestOption
}

// NewAnthropicResponder creates a responder for the given model
func NewAnthropicResponder(model string, opts ...option.RequestOption) *AnthropicResponder {
	if model == "" {
		model = "claude-3-5-haiku-latest"
	}
	return &AnthropicResponder{model: model, maxTokens: 1024, opts: opts}
}

// Reply implements Responder
func (r *AnthropicResponder) Reply(ctx context.Context, req ReplyRequest) (string, error) {
	if req.APIKey == "" {
		return "", errors.New("anthropic key not configured")
	}
	opts := append([]option.RequestOption{option.WithAPIKey(req.APIKey)}, r.opts...)
	client := anthropic.NewClient(opts...)

	params := make([]anthropic.MessageParam, 0, len(req.History))
	for _, msg := range req.History {
		block := anthropic.NewTextBlock(msg.Content)
		if msg.Role == models.RoleUser {
			params = append(params, anthropic.NewUserMessage(block))
		} else {
			params = append(params, anthropic.NewAssistantMessage(block))
		}
	}

	resp, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(r.model),
		MaxTokens: r.maxTokens,
		Messages:  params,
	})
	if err != nil {
		return "", fmt.Errorf("anthropic messages: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", errors.New("no text in response")
	}
	return sb.String(), nil
}
