package ui

import (
	"strings"

	"chatdesk/internal/chat"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// loginScreen takes a bearer token issued by the identity provider
type loginScreen struct {
	input textinput.Model
	err   error
}

func newLoginScreen() loginScreen {
	ti := textinput.New()
	ti.Placeholder = "Paste your access token"
	ti.EchoMode = textinput.EchoPassword
	ti.EchoCharacter = '•'
	ti.CharLimit = 4096
	ti.Width = 48
	return loginScreen{input: ti}
}

func (s loginScreen) view(width, height int) string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render("Sign in to chatdesk") + "\n\n")
	b.WriteString("Paste the access token issued by your identity provider.\n\n")
	b.WriteString(s.input.View() + "\n")
	if s.err != nil {
		b.WriteString("\n" + ErrorStyle.Render("Error: "+s.err.Error()) + "\n")
	}
	b.WriteString("\n" + HelpStyle.Render("Enter sign in · Ctrl+O JSON viewer · Esc quit"))
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, PanelStyle.Render(b.String()))
}

func (m *Model) updateLogin(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "esc":
		return tea.Quit
	case "ctrl+o":
		m.login.input.Blur()
		return m.openViewer()
	case "enter":
		if err := m.session.SignIn(m.login.input.Value()); err != nil {
			m.login.err = err
			return nil
		}
		m.logger.Info("signed in")
		m.login.input.Reset()
		m.login.input.Blur()
		m.login.err = nil

		m.screen = ScreenChat
		m.focus = FocusChat
		m.list = chat.NewConversationList()
		m.thread.Reset()
		m.listLoading = true
		m.syncList()
		m.updateViewport()
		return tea.Batch(m.textarea.Focus(), m.req.loadConversations())
	}

	var cmd tea.Cmd
	m.login.input, cmd = m.login.input.Update(msg)
	return cmd
}
