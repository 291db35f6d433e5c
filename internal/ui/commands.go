package ui

import (
	"context"
	"os"
	"time"

	"chatdesk/internal/api"
	"chatdesk/internal/chat"
	"chatdesk/internal/models"

	tea "github.com/charmbracelet/bubbletea"
)

// Results of asynchronous requests. Everything that belongs to one
// conversation carries the id it was issued for.
type (
	conversationsLoadedMsg struct {
		convs []models.Conversation
		err   error
	}

	conversationCreatedMsg struct {
		conv models.Conversation
		err  error
	}

	conversationDeletedMsg struct {
		id  string
		err error
	}

	messagesLoadedMsg struct {
		conversationID string
		msgs           []models.Message
		err            error
	}

	threadSettingsMsg struct {
		conversationID string
		settings       models.Settings
		err            error
	}

	sendFinishedMsg struct {
		pending *chat.PendingSend
		reply   models.ChatReply
		err     error
	}

	settingsLoadedMsg struct {
		settings models.Settings
		err      error
	}

	keySavedMsg struct {
		settings models.Settings
		err      error
	}

	keyDeletedMsg struct {
		err error
	}

	exportFileMsg struct {
		path string
		data []byte
		err  error
	}

	toastExpiredMsg struct {
		id int
	}
)

// requests issues backend calls as commands. It holds no UI state, so the
// commands can run on their own goroutines.
type requests struct {
	backend api.Backend
	timeout time.Duration
}

func (r *requests) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), r.timeout)
}

func (r *requests) loadConversations() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := r.context()
		defer cancel()
		convs, err := r.backend.ListConversations(ctx)
		return conversationsLoadedMsg{convs: convs, err: err}
	}
}

func (r *requests) createConversation() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := r.context()
		defer cancel()
		conv, err := r.backend.CreateConversation(ctx)
		return conversationCreatedMsg{conv: conv, err: err}
	}
}

func (r *requests) deleteConversation(id string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := r.context()
		defer cancel()
		return conversationDeletedMsg{id: id, err: r.backend.DeleteConversation(ctx, id)}
	}
}

func (r *requests) loadMessages(id string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := r.context()
		defer cancel()
		msgs, err := r.backend.GetMessages(ctx, id)
		return messagesLoadedMsg{conversationID: id, msgs: msgs, err: err}
	}
}

func (r *requests) loadThreadSettings(id string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := r.context()
		defer cancel()
		s, err := r.backend.GetSettings(ctx)
		return threadSettingsMsg{conversationID: id, settings: s, err: err}
	}
}

func (r *requests) sendMessage(p *chat.PendingSend) tea.Cmd {
	id, content := p.ConversationID, p.Temp.Content
	return func() tea.Msg {
		ctx, cancel := r.context()
		defer cancel()
		reply, err := r.backend.SendMessage(ctx, id, content)
		return sendFinishedMsg{pending: p, reply: reply, err: err}
	}
}

func (r *requests) loadSettings() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := r.context()
		defer cancel()
		s, err := r.backend.GetSettings(ctx)
		return settingsLoadedMsg{settings: s, err: err}
	}
}

func (r *requests) saveKey(key string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := r.context()
		defer cancel()
		s, err := r.backend.UpdateAPIKey(ctx, key)
		return keySavedMsg{settings: s, err: err}
	}
}

func (r *requests) deleteKey() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := r.context()
		defer cancel()
		return keyDeletedMsg{err: r.backend.DeleteAPIKey(ctx)}
	}
}

func readExportFile(path string) tea.Cmd {
	return func() tea.Msg {
		data, err := os.ReadFile(path)
		return exportFileMsg{path: path, data: data, err: err}
	}
}

func expireToast(id int, d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg {
		return toastExpiredMsg{id: id}
	})
}
