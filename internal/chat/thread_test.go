package chat

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"chatdesk/internal/api"
	"chatdesk/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func msg(id, role, content string) models.Message {
	return models.Message{ID: id, Role: role, Content: content, CreatedAt: base}
}

func readyThread(t *testing.T, id string, prior ...models.Message) *Thread {
	t.Helper()
	th := NewThread()
	th.Open(id)
	require.NoError(t, th.ApplyMessages(id, prior, nil))
	th.ApplySettings(id, models.Settings{AnthropicKeySet: true}, nil)
	require.True(t, th.CanSend())
	return th
}

func TestThread_OpenClearsAndLoads(t *testing.T) {
	th := readyThread(t, "a", msg("m1", models.RoleUser, "hi"))
	th.Open("b")

	assert.Equal(t, StatusLoading, th.Status())
	assert.Empty(t, th.Messages())
	assert.Equal(t, KeyUnknown, th.Key())
	assert.False(t, th.CanSend())

	th.Open("")
	assert.Equal(t, StatusIdle, th.Status())
}

func TestThread_DiscardsStaleMessages(t *testing.T) {
	th := NewThread()
	th.Open("a")
	th.Open("b")

	require.NoError(t, th.ApplyMessages("a", []models.Message{msg("m1", models.RoleUser, "from a")}, nil))
	assert.Equal(t, StatusLoading, th.Status())
	assert.Empty(t, th.Messages())

	th.ApplySettings("a", models.Settings{AnthropicKeySet: true}, nil)
	assert.Equal(t, KeyUnknown, th.Key())
}

func TestThread_NotFoundIsDistinct(t *testing.T) {
	th := NewThread()
	th.Open("gone")
	err := th.ApplyMessages("gone", nil, api.ErrNotFound())
	assert.NoError(t, err)
	assert.Equal(t, StatusNotFound, th.Status())
}

func TestThread_OtherLoadErrorsAreReturned(t *testing.T) {
	th := NewThread()
	th.Open("a")
	forbidden := api.NewError(http.StatusForbidden, api.CodeForbidden, "no")
	err := th.ApplyMessages("a", nil, forbidden)
	assert.Equal(t, forbidden, err)
	assert.Equal(t, StatusFailed, th.Status())
	assert.Equal(t, api.ActionRedirectHome, api.Classify(err).Kind)
}

func TestThread_KeyMissingDisablesSend(t *testing.T) {
	th := NewThread()
	th.Open("a")
	require.NoError(t, th.ApplyMessages("a", nil, nil))
	th.ApplySettings("a", models.Settings{}, nil)
	assert.Equal(t, KeyMissing, th.Key())
	assert.False(t, th.CanSend())

	th.Open("b")
	require.NoError(t, th.ApplyMessages("b", nil, nil))
	th.ApplySettings("b", models.Settings{}, errors.New("boom"))
	assert.Equal(t, KeyMissing, th.Key())

	_, err := th.BeginSend("hi", base)
	assert.ErrorIs(t, err, ErrSendUnavailable)
}

func TestThread_BeginSendAppendsTemp(t *testing.T) {
	th := readyThread(t, "a", msg("m1", models.RoleUser, "hi"))

	p, err := th.BeginSend("hello", base)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(p.Temp.ID, TempIDPrefix))
	assert.Equal(t, SendPending, p.State)
	assert.True(t, th.Sending())
	assert.False(t, th.CanSend())

	msgs := th.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, p.Temp.ID, msgs[1].ID)

	_, err = th.BeginSend("again", base)
	assert.ErrorIs(t, err, ErrSendUnavailable)
}

func TestThread_BeginSendRejectsBlank(t *testing.T) {
	th := readyThread(t, "a")
	_, err := th.BeginSend("  \n ", base)
	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.False(t, th.Sending())
}

func TestThread_FailedSendRestoresPriorState(t *testing.T) {
	prior := []models.Message{msg("m1", models.RoleUser, "hi"), msg("m2", models.RoleAssistant, "hello")}
	th := readyThread(t, "a", prior...)
	before := th.Messages()

	p, err := th.BeginSend("will fail", base)
	require.NoError(t, err)
	require.True(t, th.Rollback(p))

	assert.Equal(t, before, th.Messages())
	assert.Equal(t, SendRolledBack, p.State)
	assert.False(t, th.Sending())
	assert.True(t, th.CanSend())
}

func TestThread_FailedSendOnEmptyThread(t *testing.T) {
	th := readyThread(t, "a")
	p, _ := th.BeginSend("first", base)
	th.Rollback(p)
	assert.Empty(t, th.Messages())
}

func TestThread_SuccessfulSendEndsWithUserThenAssistant(t *testing.T) {
	prior := []models.Message{msg("m1", models.RoleUser, "hi"), msg("m2", models.RoleAssistant, "hello")}
	th := readyThread(t, "a", prior...)

	p, err := th.BeginSend("question", base)
	require.NoError(t, err)

	user := msg("m3", models.RoleUser, "question")
	assistant := msg("m4", models.RoleAssistant, "answer")
	require.True(t, th.Commit(p, models.ChatReply{User: &user, Assistant: assistant}))

	assert.Equal(t, append(append([]models.Message{}, prior...), user, assistant), th.Messages())
	assert.Equal(t, SendCommitted, p.State)
	for _, m := range th.Messages() {
		assert.False(t, strings.HasPrefix(m.ID, TempIDPrefix), "temporary id %s left behind", m.ID)
	}
}

func TestThread_CommitWithoutUserEchoPromotesTemp(t *testing.T) {
	th := readyThread(t, "a")
	p, _ := th.BeginSend("question", base)
	assistant := msg("m2", models.RoleAssistant, "answer")
	require.True(t, th.Commit(p, models.ChatReply{Assistant: assistant}))

	msgs := th.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "question", msgs[0].Content)
	assert.Equal(t, models.RoleUser, msgs[0].Role)
	assert.False(t, strings.HasPrefix(msgs[0].ID, TempIDPrefix))
	assert.Equal(t, assistant, msgs[1])
}

func TestThread_CommitRebuildsTailAfterInterleavedMutation(t *testing.T) {
	th := readyThread(t, "a")
	p, _ := th.BeginSend("question", base)

	// the temporary message is no longer at the tail
	th.messages = append(th.messages, msg("late", models.RoleAssistant, "late arrival"))

	user := msg("u", models.RoleUser, "question")
	assistant := msg("r", models.RoleAssistant, "answer")
	require.True(t, th.Commit(p, models.ChatReply{User: &user, Assistant: assistant}))

	msgs := th.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "late", msgs[0].ID)
	assert.Equal(t, "u", msgs[1].ID)
	assert.Equal(t, "r", msgs[2].ID)
}

func TestThread_LateResultForOtherConversationIsDiscarded(t *testing.T) {
	th := readyThread(t, "a")
	p, _ := th.BeginSend("to a", base)

	th.Open("b")
	require.NoError(t, th.ApplyMessages("b", []models.Message{msg("b1", models.RoleUser, "in b")}, nil))

	assistant := msg("r", models.RoleAssistant, "reply for a")
	assert.False(t, th.Commit(p, models.ChatReply{Assistant: assistant}))
	assert.Equal(t, SendDiscarded, p.State)

	msgs := th.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "b1", msgs[0].ID)

	p2, _ := readyThread(t, "c").BeginSend("x", base)
	assert.False(t, th.Rollback(p2))
}

func TestThread_StatusStrings(t *testing.T) {
	assert.Equal(t, "not_found", StatusNotFound.String())
	assert.Equal(t, "rolled_back", SendRolledBack.String())
}
