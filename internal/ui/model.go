package ui

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"chatdesk/internal/api"
	"chatdesk/internal/auth"
	"chatdesk/internal/chat"
	"chatdesk/internal/models"
	"chatdesk/internal/viewer"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Screen is the page currently shown
type Screen int

const (
	ScreenLogin Screen = iota
	ScreenChat
	ScreenSettings
	ScreenViewer
)

type FocusState int

const (
	FocusSidebar FocusState = iota
	FocusChat
)

// Deps are the collaborators the UI is wired with
type Deps struct {
	Backend api.Backend
	Session *auth.Session
	Viewer  *viewer.Viewer
	Logger  *slog.Logger
	Timeout time.Duration
	// BulkUpload enables the upload hint in the JSON viewer
	BulkUpload bool
	// ExportPath opens the JSON viewer on this file at startup
	ExportPath string
	// Mock is shown in the header when the in-memory backend is in use
	Mock bool
}

type toast struct {
	id    int
	text  string
	isErr bool
}

// Model represents the main application state
type Model struct {
	req        *requests
	session    *auth.Session
	logger     *slog.Logger
	mock       bool
	bulkUpload bool

	screen Screen
	focus  FocusState

	list        *chat.ConversationList
	thread      *chat.Thread
	listLoading bool
	// unreachable shows the "API server not running" banner
	unreachable bool

	viewport viewport.Model
	textarea textarea.Model
	convList list.Model
	md       *markdown

	login    loginScreen
	settings settingsScreen
	viewer   viewerScreen

	toast    *toast
	toastSeq int
	startCmd tea.Cmd

	ready        bool
	width        int
	height       int
	sidebarWidth int
}

// NewModel creates a new UI model
func NewModel(deps Deps) *Model {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if deps.Timeout <= 0 {
		deps.Timeout = api.DefaultTimeout
	}

	ta := textarea.New()
	ta.Placeholder = "Type your message..."
	ta.Prompt = "┃ "
	ta.CharLimit = 4000
	ta.SetWidth(50)
	ta.SetHeight(3)
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.ShowLineNumbers = false

	vp := viewport.New(50, 20)

	convList := list.New(nil, list.NewDefaultDelegate(), 30, 20)
	convList.Title = "Conversations"
	convList.SetShowStatusBar(false)
	convList.SetFilteringEnabled(false)
	convList.SetShowHelp(false)

	m := &Model{
		req:          &requests{backend: deps.Backend, timeout: deps.Timeout},
		session:      deps.Session,
		logger:       deps.Logger,
		mock:         deps.Mock,
		bulkUpload:   deps.BulkUpload,
		list:         chat.NewConversationList(),
		thread:       chat.NewThread(),
		viewport:     vp,
		textarea:     ta,
		convList:     convList,
		md:           newMarkdown(46),
		login:        newLoginScreen(),
		settings:     newSettingsScreen(),
		viewer:       newViewerScreen(deps.Viewer),
		focus:        FocusChat,
		sidebarWidth: 30,
	}

	var cmds []tea.Cmd
	if m.session.SignedIn() {
		m.screen = ScreenChat
		m.listLoading = true
		m.textarea.Focus()
		cmds = append(cmds, m.req.loadConversations())
	} else {
		m.screen = ScreenLogin
		cmds = append(cmds, m.login.input.Focus())
	}
	if deps.ExportPath != "" {
		m.screen = ScreenViewer
		cmds = append(cmds, readExportFile(deps.ExportPath))
	}
	m.startCmd = tea.Batch(cmds...)
	m.updateViewport()
	return m
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.startCmd)
}

// Update handles UI events and state changes
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case toastExpiredMsg:
		if m.toast != nil && m.toast.id == msg.id {
			m.toast = nil
		}
		return m, nil

	case conversationsLoadedMsg:
		return m, m.onConversationsLoaded(msg)
	case conversationCreatedMsg:
		return m, m.onConversationCreated(msg)
	case conversationDeletedMsg:
		return m, m.onConversationDeleted(msg)
	case messagesLoadedMsg:
		return m, m.onMessagesLoaded(msg)
	case threadSettingsMsg:
		return m, m.onThreadSettings(msg)
	case sendFinishedMsg:
		return m, m.onSendFinished(msg)
	case settingsLoadedMsg:
		return m, m.onSettingsLoaded(msg)
	case keySavedMsg:
		return m, m.onKeySaved(msg)
	case keyDeletedMsg:
		return m, m.onKeyDeleted(msg)
	case exportFileMsg:
		m.viewer.applyFile(msg, m.md)
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		switch m.screen {
		case ScreenLogin:
			return m, m.updateLogin(msg)
		case ScreenSettings:
			return m, m.updateSettings(msg)
		case ScreenViewer:
			return m, m.updateViewer(msg)
		default:
			return m, m.updateChat(msg)
		}
	}

	return m, m.updateInputs(msg)
}

// updateInputs forwards non-key messages (cursor blink) to the focused input
func (m *Model) updateInputs(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	switch m.screen {
	case ScreenLogin:
		m.login.input, cmd = m.login.input.Update(msg)
	case ScreenSettings:
		m.settings.input, cmd = m.settings.input.Update(msg)
	case ScreenViewer:
		cmd = m.viewer.updateInputs(msg)
	default:
		if m.focus == FocusChat {
			m.textarea, cmd = m.textarea.Update(msg)
		}
	}
	return cmd
}

func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height
	chatWidth := width - m.sidebarWidth - 2
	chatHeight := height - 9
	if chatHeight < 3 {
		chatHeight = 3
	}

	if !m.ready {
		m.viewport = viewport.New(chatWidth, chatHeight)
		m.ready = true
	} else {
		m.viewport.Width = chatWidth
		m.viewport.Height = chatHeight
	}
	m.textarea.SetWidth(chatWidth - 2)
	m.convList.SetSize(m.sidebarWidth-2, chatHeight+4)
	m.md = newMarkdown(chatWidth - 6)
	m.viewer.resize(width, height, m.md)
	m.updateViewport()
}

func (m *Model) updateChat(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "esc":
		return tea.Quit
	case "tab":
		if m.focus == FocusSidebar {
			m.focus = FocusChat
			return m.textarea.Focus()
		}
		m.focus = FocusSidebar
		m.textarea.Blur()
		return nil
	case "ctrl+n":
		return m.req.createConversation()
	case "ctrl+d":
		id := m.list.ActiveID()
		if m.focus == FocusSidebar {
			if item, ok := m.convList.SelectedItem().(models.ListItem); ok {
				id = item.Conv.ID
			}
		}
		if id == "" {
			return nil
		}
		return m.req.deleteConversation(id)
	case "ctrl+r":
		m.listLoading = true
		m.syncList()
		return m.req.loadConversations()
	case "ctrl+s":
		return m.openSettings()
	case "ctrl+o":
		return m.openViewer()
	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return cmd
	case "enter":
		if m.focus == FocusSidebar {
			item, ok := m.convList.SelectedItem().(models.ListItem)
			if !ok {
				return nil
			}
			m.focus = FocusChat
			return tea.Batch(m.textarea.Focus(), m.openConversation(item.Conv.ID))
		}
		return m.send()
	}

	var cmd tea.Cmd
	if m.focus == FocusSidebar {
		m.convList, cmd = m.convList.Update(msg)
	} else {
		m.textarea, cmd = m.textarea.Update(msg)
	}
	return cmd
}

// openConversation switches the thread to id; "" shows the empty state
func (m *Model) openConversation(id string) tea.Cmd {
	m.list.Select(id)
	m.thread.Open(id)
	m.syncList()
	m.updateViewport()
	if id == "" {
		return nil
	}
	return tea.Batch(m.req.loadMessages(id), m.req.loadThreadSettings(id))
}

func (m *Model) send() tea.Cmd {
	p, err := m.thread.BeginSend(m.textarea.Value(), time.Now())
	if err != nil {
		if errors.Is(err, chat.ErrSendUnavailable) && m.thread.Key() == chat.KeyMissing {
			return m.showToast("Configure your API key to send messages (Ctrl+S)", api.ToastDuration, false)
		}
		return nil
	}
	m.textarea.Reset()
	m.updateViewport()
	return m.req.sendMessage(p)
}

func (m *Model) onConversationsLoaded(msg conversationsLoadedMsg) tea.Cmd {
	m.listLoading = false
	if msg.err != nil {
		m.syncList()
		if api.IsNetwork(msg.err) {
			m.unreachable = true
		}
		return m.handleError(msg.err)
	}
	m.unreachable = false
	m.list.Replace(msg.convs)
	m.syncList()
	if id, ok := m.list.InitialRedirect(); ok {
		return m.openConversation(id)
	}
	m.updateViewport()
	return nil
}

func (m *Model) onConversationCreated(msg conversationCreatedMsg) tea.Cmd {
	if msg.err != nil {
		return m.handleError(msg.err)
	}
	m.list.Insert(msg.conv)
	m.focus = FocusChat
	return tea.Batch(m.textarea.Focus(), m.openConversation(msg.conv.ID))
}

func (m *Model) onConversationDeleted(msg conversationDeletedMsg) tea.Cmd {
	if msg.err != nil && !api.IsStatus(msg.err, http.StatusNotFound) {
		return m.handleError(msg.err)
	}
	nav := m.list.Remove(msg.id)
	m.syncList()
	notice := m.showToast("Conversation deleted", api.ToastDuration, false)
	if nav.Changed {
		return tea.Batch(notice, m.openConversation(nav.ConversationID))
	}
	m.updateViewport()
	return notice
}

func (m *Model) onMessagesLoaded(msg messagesLoadedMsg) tea.Cmd {
	err := m.thread.ApplyMessages(msg.conversationID, msg.msgs, msg.err)
	m.updateViewport()
	if err != nil {
		return m.handleError(err)
	}
	return nil
}

func (m *Model) onThreadSettings(msg threadSettingsMsg) tea.Cmd {
	m.thread.ApplySettings(msg.conversationID, msg.settings, msg.err)
	m.updateViewport()
	if msg.err != nil && api.Classify(msg.err).Kind == api.ActionSignOut {
		return m.handleError(msg.err)
	}
	return nil
}

func (m *Model) onSendFinished(msg sendFinishedMsg) tea.Cmd {
	p := msg.pending
	if msg.err == nil {
		if !m.thread.Commit(p, msg.reply) {
			m.logger.Debug("discarding reply for a conversation no longer shown", "conversation_id", p.ConversationID)
		}
		m.updateViewport()
		// titles and ordering changed on the server
		return m.req.loadConversations()
	}

	if !m.thread.Rollback(p) {
		m.logger.Debug("discarding failed send for a conversation no longer shown", "conversation_id", p.ConversationID, "error", msg.err)
		if api.Classify(msg.err).Kind == api.ActionSignOut {
			return m.handleError(msg.err)
		}
		return nil
	}
	if m.textarea.Value() == "" {
		m.textarea.SetValue(p.Temp.Content)
	}
	if apiErr, ok := api.AsAPIError(msg.err); ok && apiErr.Code == api.CodeAPIKeyRequired {
		m.thread.ApplySettings(p.ConversationID, models.Settings{}, nil)
	}
	m.updateViewport()
	return m.handleError(msg.err)
}

// handleError applies the classified reaction to a failed request
func (m *Model) handleError(err error) tea.Cmd {
	action := api.Classify(err)
	m.logger.Warn("request failed", "action", action.Kind.String(), "error", err)
	switch action.Kind {
	case api.ActionNone:
		return nil
	case api.ActionSignOut:
		return m.signOut("Your session has expired. Please sign in again.")
	case api.ActionRedirectHome:
		m.screen = ScreenChat
		m.list.Select("")
		m.thread.Reset()
		m.syncList()
		m.updateViewport()
	}
	return m.showToast(action.Toast, action.Duration, true)
}

func (m *Model) signOut(notice string) tea.Cmd {
	if err := m.session.SignOut(); err != nil {
		m.logger.Error("sign out failed", "error", err)
	}
	m.list = chat.NewConversationList()
	m.thread.Reset()
	m.unreachable = false
	m.settings = newSettingsScreen()
	m.syncList()
	m.updateViewport()
	m.screen = ScreenLogin
	m.textarea.Blur()
	cmds := []tea.Cmd{m.login.input.Focus()}
	if notice != "" {
		cmds = append(cmds, m.showToast(notice, api.ToastDuration, true))
	}
	return tea.Batch(cmds...)
}

func (m *Model) showToast(text string, d time.Duration, isErr bool) tea.Cmd {
	if text == "" {
		return nil
	}
	m.toastSeq++
	m.toast = &toast{id: m.toastSeq, text: text, isErr: isErr}
	return expireToast(m.toastSeq, d)
}

func (m *Model) syncList() {
	convs := m.list.Items()
	items := make([]list.Item, len(convs))
	for i, conv := range convs {
		items[i] = models.ListItem{Conv: conv}
	}
	m.convList.SetItems(items)

	m.convList.Title = "Conversations"
	if m.listLoading {
		m.convList.Title = "Conversations (loading...)"
	}

	// Select current conversation in list
	for i, conv := range convs {
		if conv.ID == m.list.ActiveID() {
			m.convList.Select(i)
			break
		}
	}
}

func (m *Model) updateViewport() {
	var content strings.Builder

	switch {
	case m.thread.ConversationID() == "":
		content.WriteString("Welcome to chatdesk!\n")
		if m.list.Loaded() && m.list.Len() == 0 {
			content.WriteString("No conversations yet. Press Ctrl+N to start one.\n\n")
		} else {
			content.WriteString("Select a conversation or create a new one to start chatting.\n\n")
		}
		content.WriteString(controlsHelp())

	case m.thread.Status() == chat.StatusLoading:
		content.WriteString(LoadingStyle.Render("Loading messages...") + "\n")

	case m.thread.Status() == chat.StatusNotFound:
		content.WriteString(ErrorStyle.Render("Conversation not found") + "\n")
		content.WriteString("It may have been deleted. Press Tab to pick another conversation.\n")

	case m.thread.Status() == chat.StatusFailed:
		content.WriteString(ErrorStyle.Render("Could not load this conversation.") + "\n")
		content.WriteString(HelpStyle.Render("Select it again to retry.") + "\n")

	default:
		msgs := m.thread.Messages()
		if len(msgs) == 0 {
			content.WriteString(HelpStyle.Render("Send a message to start the conversation.") + "\n\n")
		}
		for _, msg := range msgs {
			content.WriteString(renderMessage(m.md, msg) + "\n")
		}
		if m.thread.Sending() {
			content.WriteString(MessageStyle.Render(LoadingStyle.Render("Assistant is typing...")) + "\n")
		}
		if m.thread.Key() == chat.KeyMissing {
			content.WriteString(MessageStyle.Render(
				ErrorStyle.Render("Configure your API key to send messages.") + " " +
					HelpStyle.Render("Press Ctrl+S to open settings."),
			) + "\n")
		}
	}

	m.viewport.SetContent(content.String())
	m.viewport.GotoBottom()
}

// View renders the UI
func (m Model) View() string {
	if !m.ready {
		return "\n  Initializing..."
	}

	var body string
	switch m.screen {
	case ScreenLogin:
		body = m.login.view(m.width, m.height-1)
	case ScreenSettings:
		body = m.settings.view(m.width, m.height-1)
	case ScreenViewer:
		body = m.viewer.view(m.width, m.height-1, m.bulkUpload)
	default:
		body = m.chatView()
	}
	return lipgloss.JoinVertical(lipgloss.Left, body, m.toastView())
}

func (m Model) chatView() string {
	// Create sidebar
	sidebarContent := m.convList.View()
	var sidebar string
	if m.focus == FocusSidebar {
		sidebar = SidebarFocusedStyle.Width(m.sidebarWidth).Height(m.height - 2).Render(sidebarContent)
	} else {
		sidebar = SidebarStyle.Width(m.sidebarWidth).Height(m.height - 2).Render(sidebarContent)
	}

	// Create chat area
	chatWidth := m.width - m.sidebarWidth - 2
	title := "chatdesk"
	if m.mock {
		title += " (mock backend)"
	}
	if conv, ok := m.list.Get(m.list.ActiveID()); ok {
		title += " · " + conv.DisplayTitle()
	}
	rows := []string{TitleStyle.Width(chatWidth).Render(title)}
	if m.unreachable {
		rows = append(rows, BannerStyle.Width(chatWidth).Render("API server not running. Start chatdesk-server or set CHATDESK_API_URL, then press Ctrl+R."))
	}
	rows = append(rows, m.viewport.View())

	if m.thread.CanSend() || m.thread.Sending() {
		rows = append(rows, m.textarea.View())
	} else {
		rows = append(rows, HelpStyle.Render(m.composerHint()))
	}
	rows = append(rows, HelpStyle.Render("Tab focus · Ctrl+N new · Ctrl+D delete · Ctrl+S settings · Ctrl+O viewer · Esc quit"))

	chatArea := ChatStyle.Width(chatWidth).Render(strings.Join(rows, "\n"))

	// Combine sidebar and chat area
	return lipgloss.JoinHorizontal(lipgloss.Top, sidebar, chatArea)
}

func (m Model) composerHint() string {
	switch {
	case m.thread.ConversationID() == "":
		return "Select or create a conversation to start chatting."
	case m.thread.Status() == chat.StatusLoading:
		return "Loading..."
	case m.thread.Key() == chat.KeyMissing:
		return "Configure your API key to send messages."
	case m.thread.Status() != chat.StatusReady:
		return ""
	default:
		return "Checking settings..."
	}
}

func (m Model) toastView() string {
	if m.toast == nil {
		return ""
	}
	if m.toast.isErr {
		return ToastStyle.Foreground(lipgloss.Color("#FF6B6B")).Render(m.toast.text)
	}
	return ToastStyle.Render(m.toast.text)
}

// Screen returns the page currently shown
func (m Model) Screen() Screen { return m.screen }

func (m *Model) openSettings() tea.Cmd {
	m.screen = ScreenSettings
	m.settings.loading = true
	m.settings.err = nil
	m.textarea.Blur()
	return tea.Batch(m.settings.input.Focus(), m.req.loadSettings())
}

func (m *Model) openViewer() tea.Cmd {
	m.screen = ScreenViewer
	m.textarea.Blur()
	return m.viewer.enter()
}

// leaveViewer returns to the chat, or to the login screen when signed out
func (m *Model) leaveViewer() tea.Cmd {
	if !m.session.SignedIn() {
		m.screen = ScreenLogin
		return m.login.input.Focus()
	}
	m.screen = ScreenChat
	if m.focus == FocusChat {
		return m.textarea.Focus()
	}
	return nil
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
