package ui

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"chatdesk/internal/api"
	"chatdesk/internal/auth"
	"chatdesk/internal/chat"
	"chatdesk/internal/logging"
	"chatdesk/internal/mock"
	"chatdesk/internal/models"
	"chatdesk/internal/storage"
	"chatdesk/internal/viewer"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noSleep(context.Context, time.Duration) error { return nil }

func newTestModel(t *testing.T, signedIn bool, responder mock.Responder) (Model, *mock.Backend, *auth.Session) {
	t.Helper()
	if responder == nil {
		responder = mock.ResponderFunc(func(ctx context.Context, req mock.ReplyRequest) (string, error) {
			return "reply", nil
		})
	}
	backend := mock.New(
		mock.WithSleep(noSleep),
		mock.WithResponder(responder),
		mock.WithAPIKey("sk-ant-test-1234"),
	)

	session, err := auth.NewSession(storage.NewMemory())
	require.NoError(t, err)
	if signedIn {
		require.NoError(t, session.SignIn("token"))
	}
	tags, err := viewer.LoadTags(viewer.NewLocalTagStore(storage.NewMemory(), logging.Discard()))
	require.NoError(t, err)

	m := NewModel(Deps{
		Backend: backend,
		Session: session,
		Viewer:  viewer.New(tags),
		Logger:  logging.Discard(),
	})
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return next.(Model), backend, session
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

// openReady loads the list and makes conv's thread ready to send
func openReady(t *testing.T, m Model, convs ...models.Conversation) Model {
	t.Helper()
	m, _ = update(t, m, conversationsLoadedMsg{convs: convs})
	id := m.thread.ConversationID()
	require.NotEmpty(t, id)
	m, _ = update(t, m, messagesLoadedMsg{conversationID: id})
	m, _ = update(t, m, threadSettingsMsg{conversationID: id, settings: models.Settings{AnthropicKeySet: true}})
	require.True(t, m.thread.CanSend())
	return m
}

func TestModel_StartsAtLoginWhenSignedOut(t *testing.T) {
	m, _, session := newTestModel(t, false, nil)
	assert.Equal(t, ScreenLogin, m.Screen())

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, ScreenLogin, m.Screen())
	assert.ErrorIs(t, m.login.err, auth.ErrEmptyToken)

	m.login.input.SetValue("  secret-token ")
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, ScreenChat, m.Screen())
	assert.NotNil(t, cmd)
	assert.True(t, session.SignedIn())
	token, _ := session.Token(context.Background())
	assert.Equal(t, "secret-token", token)
}

func TestModel_RedirectsToLatestConversation(t *testing.T) {
	m, backend, _ := newTestModel(t, true, nil)
	ctx := context.Background()
	older, err := backend.CreateConversation(ctx)
	require.NoError(t, err)
	newer := older
	newer.ID = "conv_newer"
	newer.UpdatedAt = older.UpdatedAt.Add(time.Hour)

	m, cmd := update(t, m, conversationsLoadedMsg{convs: []models.Conversation{older, newer}})
	assert.NotNil(t, cmd)
	assert.Equal(t, "conv_newer", m.list.ActiveID())
	assert.Equal(t, "conv_newer", m.thread.ConversationID())
	assert.Equal(t, chat.StatusLoading, m.thread.Status())
}

func TestModel_SendCommitsAndRefreshesList(t *testing.T) {
	m, backend, _ := newTestModel(t, true, nil)
	conv, err := backend.CreateConversation(context.Background())
	require.NoError(t, err)
	m = openReady(t, m, conv)

	m.textarea.SetValue("hello there")
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.True(t, m.thread.Sending())
	assert.Empty(t, m.textarea.Value())
	require.Len(t, m.thread.Messages(), 1)
	assert.True(t, strings.HasPrefix(m.thread.Messages()[0].ID, chat.TempIDPrefix))

	m, cmd = update(t, m, cmd())
	msgs := m.thread.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "hello there", msgs[0].Content)
	assert.Equal(t, "reply", msgs[1].Content)
	assert.False(t, m.thread.Sending())

	require.NotNil(t, cmd)
	m, _ = update(t, m, cmd())
	listed, ok := m.list.Get(conv.ID)
	require.True(t, ok)
	assert.Equal(t, "hello there", listed.DisplayTitle())
	assert.Equal(t, 2, listed.MessageCount)
}

func TestModel_FailedSendRollsBackAndRestoresInput(t *testing.T) {
	failing := mock.ResponderFunc(func(ctx context.Context, req mock.ReplyRequest) (string, error) {
		return "", errors.New("model overloaded")
	})
	m, backend, _ := newTestModel(t, true, failing)
	conv, err := backend.CreateConversation(context.Background())
	require.NoError(t, err)
	m = openReady(t, m, conv)

	m.textarea.SetValue("will fail")
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	m, _ = update(t, m, cmd())

	assert.Empty(t, m.thread.Messages())
	assert.True(t, m.thread.CanSend())
	assert.Equal(t, "will fail", m.textarea.Value())
	require.NotNil(t, m.toast)
	assert.True(t, m.toast.isErr)
}

func TestModel_LateReplyForOtherConversationIsDropped(t *testing.T) {
	m, backend, _ := newTestModel(t, true, nil)
	ctx := context.Background()
	a, err := backend.CreateConversation(ctx)
	require.NoError(t, err)
	m = openReady(t, m, a)

	m.textarea.SetValue("to a")
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	result := cmd()

	b, err := backend.CreateConversation(ctx)
	require.NoError(t, err)
	m, _ = update(t, m, conversationCreatedMsg{conv: b})
	m, _ = update(t, m, messagesLoadedMsg{conversationID: b.ID})
	require.Equal(t, b.ID, m.thread.ConversationID())

	m, _ = update(t, m, result)
	assert.Empty(t, m.thread.Messages())
	finished := result.(sendFinishedMsg)
	assert.Equal(t, chat.SendDiscarded, finished.pending.State)
}

func TestModel_InvalidTokenSignsOut(t *testing.T) {
	m, _, session := newTestModel(t, true, nil)
	m, _ = update(t, m, conversationsLoadedMsg{err: api.NewError(http.StatusUnauthorized, api.CodeInvalidToken, "expired")})

	assert.Equal(t, ScreenLogin, m.Screen())
	assert.False(t, session.SignedIn())
}

func TestModel_ForbiddenReturnsHome(t *testing.T) {
	m, backend, _ := newTestModel(t, true, nil)
	conv, err := backend.CreateConversation(context.Background())
	require.NoError(t, err)
	m, _ = update(t, m, conversationsLoadedMsg{convs: []models.Conversation{conv}})
	require.Equal(t, conv.ID, m.thread.ConversationID())

	forbidden := api.NewError(http.StatusForbidden, api.CodeForbidden, "nope")
	m, _ = update(t, m, messagesLoadedMsg{conversationID: conv.ID, err: forbidden})

	assert.Empty(t, m.list.ActiveID())
	assert.Empty(t, m.thread.ConversationID())
	require.NotNil(t, m.toast)
	assert.Equal(t, "You don't have access to this conversation", m.toast.text)
}

func TestModel_NotFoundShowsDedicatedView(t *testing.T) {
	m, backend, _ := newTestModel(t, true, nil)
	conv, err := backend.CreateConversation(context.Background())
	require.NoError(t, err)
	m, _ = update(t, m, conversationsLoadedMsg{convs: []models.Conversation{conv}})
	m, _ = update(t, m, messagesLoadedMsg{conversationID: conv.ID, err: api.ErrNotFound()})

	assert.Equal(t, chat.StatusNotFound, m.thread.Status())
	assert.Nil(t, m.toast)
	assert.Contains(t, m.View(), "Conversation not found")
}

func TestModel_UnreachableServerShowsBanner(t *testing.T) {
	m, _, _ := newTestModel(t, true, nil)
	netErr := &api.NetworkError{Err: errors.New("dial tcp 127.0.0.1:8000: connect: connection refused")}
	m, cmd := update(t, m, conversationsLoadedMsg{err: netErr})

	assert.NotNil(t, cmd)
	assert.True(t, m.unreachable)
	assert.Contains(t, m.View(), "API server not running")
	require.NotNil(t, m.toast)
	assert.Contains(t, m.toast.text, "Cannot reach the API server")

	m, _ = update(t, m, conversationsLoadedMsg{})
	assert.False(t, m.unreachable)
}

func TestModel_DeletingActiveOpensNextMostRecent(t *testing.T) {
	m, _, _ := newTestModel(t, true, nil)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	convs := []models.Conversation{
		{ID: "conv_a", UpdatedAt: base},
		{ID: "conv_b", UpdatedAt: base.Add(2 * time.Hour)},
		{ID: "conv_c", UpdatedAt: base.Add(time.Hour)},
	}
	m, _ = update(t, m, conversationsLoadedMsg{convs: convs})
	require.Equal(t, "conv_b", m.list.ActiveID())

	m, _ = update(t, m, conversationDeletedMsg{id: "conv_b"})
	assert.Equal(t, "conv_c", m.list.ActiveID())
	assert.Equal(t, "conv_c", m.thread.ConversationID())
}

func TestModel_ToastExpires(t *testing.T) {
	m, _, _ := newTestModel(t, true, nil)
	m, _ = update(t, m, conversationsLoadedMsg{err: errors.New("boom")})
	require.NotNil(t, m.toast)

	m, _ = update(t, m, toastExpiredMsg{id: m.toast.id - 1})
	assert.NotNil(t, m.toast, "an older expiry leaves the current toast")
	m, _ = update(t, m, toastExpiredMsg{id: m.toast.id})
	assert.Nil(t, m.toast)
}

func TestModel_ViewerSearchFromKeyboard(t *testing.T) {
	m, _, _ := newTestModel(t, true, nil)
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlO})
	require.Equal(t, ScreenViewer, m.Screen())

	data := `[{"uuid":"a","name":"Trip","summary":"","updated_at":"2024-01-02T00:00:00Z","chat_messages":[{"uuid":"m1","text":"hello world","sender":"human","created_at":"2024-01-02T00:00:00Z"}]},
	          {"uuid":"b","name":"Work","summary":"","updated_at":"2024-01-01T00:00:00Z","chat_messages":[]}]`
	m, _ = update(t, m, exportFileMsg{path: "export.json", data: []byte(data)})
	assert.Equal(t, "a", m.viewer.state.SelectedID())

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("/")})
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("work")})
	visible := m.viewer.state.Visible()
	require.Len(t, visible, 1)
	assert.Equal(t, "b", visible[0].UUID)
	assert.Equal(t, "b", m.viewer.state.SelectedID())

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("t")})
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("Office")})
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, []string{"office"}, m.viewer.state.Tags().For("b"))

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, ScreenChat, m.Screen())
}

func TestModel_ViewerRejectsNonArray(t *testing.T) {
	m, _, _ := newTestModel(t, true, nil)
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlO})
	m, _ = update(t, m, exportFileMsg{path: "bad.json", data: []byte(`{"uuid":"a"}`)})

	assert.ErrorIs(t, m.viewer.state.Err(), viewer.ErrNotArray)
	assert.Empty(t, m.viewer.state.Conversations())
	assert.Contains(t, m.View(), "expected an array of conversations")
}
