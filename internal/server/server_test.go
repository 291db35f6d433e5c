package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"chatdesk/internal/api"
	"chatdesk/internal/mock"
	"chatdesk/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticToken string

func (t staticToken) Token(context.Context) (string, error) { return string(t), nil }

func noSleep(context.Context, time.Duration) error { return nil }

func newTestServer(t *testing.T, opts Options) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts.Logger = logger
	opts.NewBackend = func() *mock.Backend {
		return mock.New(
			mock.WithSleep(noSleep),
			mock.WithLogger(logger),
			mock.WithResponder(mock.ResponderFunc(func(ctx context.Context, req mock.ReplyRequest) (string, error) {
				return "echo: " + req.History[len(req.History)-1].Content, nil
			})),
		)
	}
	ts := httptest.NewServer(New(opts).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func client(ts *httptest.Server, token string) *api.Client {
	return api.NewClient(ts.URL, staticToken(token))
}

func TestServer_ConversationLifecycle(t *testing.T) {
	ts := newTestServer(t, Options{})
	c := client(ts, "alice")
	ctx := context.Background()

	conv, err := c.CreateConversation(ctx)
	require.NoError(t, err)
	assert.Nil(t, conv.Title)

	reply, err := c.SendMessage(ctx, conv.ID, "Plan a trip\nto Lisbon")
	require.NoError(t, err)
	require.NotNil(t, reply.User)
	assert.Equal(t, "Plan a trip\nto Lisbon", reply.User.Content)
	assert.Equal(t, models.RoleAssistant, reply.Assistant.Role)
	assert.Equal(t, "echo: Plan a trip\nto Lisbon", reply.Assistant.Content)

	msgs, err := c.GetMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, reply.User.ID, msgs[0].ID)
	assert.Equal(t, reply.Assistant.ID, msgs[1].ID)

	convs, err := c.ListConversations(ctx)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	require.NotNil(t, convs[0].Title)
	assert.Equal(t, "Plan a trip", *convs[0].Title)

	require.NoError(t, c.DeleteConversation(ctx, conv.ID))
	_, err = c.GetMessages(ctx, conv.ID)
	assert.True(t, api.IsStatus(err, http.StatusNotFound))
}

func TestServer_MissingTokenIsInvalid(t *testing.T) {
	ts := newTestServer(t, Options{})

	resp, err := http.Get(ts.URL + "/conversations")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.JSONEq(t, `{"error":{"code":"invalid_token","message":"Missing bearer token"}}`, string(body))
}

func TestServer_UnknownTokenSignsOut(t *testing.T) {
	ts := newTestServer(t, Options{Tokens: []string{"alice"}})

	_, err := client(ts, "mallory").ListConversations(context.Background())
	require.Error(t, err)
	assert.Equal(t, api.ActionSignOut, api.Classify(err).Kind)

	_, err = client(ts, "alice").ListConversations(context.Background())
	assert.NoError(t, err)
}

func TestServer_OtherUsersConversationIsForbidden(t *testing.T) {
	ts := newTestServer(t, Options{})
	ctx := context.Background()

	conv, err := client(ts, "alice").CreateConversation(ctx)
	require.NoError(t, err)

	_, err = client(ts, "bob").GetMessages(ctx, conv.ID)
	require.Error(t, err)
	apiErr, ok := api.AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Equal(t, api.CodeForbidden, apiErr.Code)
	assert.Equal(t, api.ActionRedirectHome, api.Classify(err).Kind)

	err = client(ts, "bob").DeleteConversation(ctx, conv.ID)
	assert.True(t, api.IsStatus(err, http.StatusForbidden))

	bobs, err := client(ts, "bob").ListConversations(ctx)
	require.NoError(t, err)
	assert.Empty(t, bobs)
}

func TestServer_ChatIsRateLimited(t *testing.T) {
	ts := newTestServer(t, Options{ChatPerMinute: 1})
	c := client(ts, "alice")
	ctx := context.Background()

	conv, err := c.CreateConversation(ctx)
	require.NoError(t, err)

	_, err = c.SendMessage(ctx, conv.ID, "first")
	require.NoError(t, err)

	_, err = c.SendMessage(ctx, conv.ID, "second")
	require.Error(t, err)
	assert.True(t, api.IsStatus(err, http.StatusTooManyRequests))
	action := api.Classify(err)
	assert.Equal(t, api.ActionToast, action.Kind)
	assert.Equal(t, "Please wait a moment", action.Toast)

	msgs, err := c.GetMessages(ctx, conv.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 2, "a limited send stores nothing")
}

func TestServer_SettingsAndMissingKey(t *testing.T) {
	ts := newTestServer(t, Options{})
	c := client(ts, "alice")
	ctx := context.Background()

	settings, err := c.GetSettings(ctx)
	require.NoError(t, err)
	assert.True(t, settings.AnthropicKeySet)

	require.NoError(t, c.DeleteAPIKey(ctx))
	settings, err = c.GetSettings(ctx)
	require.NoError(t, err)
	assert.False(t, settings.AnthropicKeySet)
	assert.Nil(t, settings.AnthropicKeyPreview)

	conv, err := c.CreateConversation(ctx)
	require.NoError(t, err)
	_, err = c.SendMessage(ctx, conv.ID, "hi")
	apiErr, ok := api.AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, api.CodeAPIKeyRequired, apiErr.Code)

	settings, err = c.UpdateAPIKey(ctx, "sk-ant-api03-abcdefgh1234")
	require.NoError(t, err)
	assert.True(t, settings.AnthropicKeySet)
	require.NotNil(t, settings.AnthropicKeyPreview)
	assert.Equal(t, "sk-ant-...1234", *settings.AnthropicKeyPreview)

	_, err = c.UpdateAPIKey(ctx, "   ")
	assert.True(t, api.IsStatus(err, http.StatusBadRequest))
}

func TestServer_BlankChatIsRejected(t *testing.T) {
	ts := newTestServer(t, Options{})
	c := client(ts, "alice")
	ctx := context.Background()

	conv, err := c.CreateConversation(ctx)
	require.NoError(t, err)
	_, err = c.SendMessage(ctx, conv.ID, "  ")
	apiErr, ok := api.AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, api.CodeBadRequest, apiErr.Code)
}
