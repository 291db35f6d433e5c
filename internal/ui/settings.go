package ui

import (
	"strings"

	"chatdesk/internal/api"
	"chatdesk/internal/models"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// settingsScreen shows and edits the stored Anthropic key
type settingsScreen struct {
	input    textinput.Model
	settings models.Settings
	loaded   bool
	loading  bool
	saving   bool
	err      error
}

func newSettingsScreen() settingsScreen {
	ti := textinput.New()
	ti.Placeholder = "sk-ant-..."
	ti.EchoMode = textinput.EchoPassword
	ti.EchoCharacter = '•'
	ti.CharLimit = 512
	ti.Width = 48
	return settingsScreen{input: ti}
}

func (s settingsScreen) view(width, height int) string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render("Settings") + "\n\n")

	switch {
	case s.loading:
		b.WriteString(LoadingStyle.Render("Loading settings...") + "\n")
	case !s.loaded:
		b.WriteString(HelpStyle.Render("Settings unavailable.") + "\n")
	case s.settings.AnthropicKeySet:
		preview := "configured"
		if s.settings.AnthropicKeyPreview != nil {
			preview = *s.settings.AnthropicKeyPreview
		}
		b.WriteString("Anthropic API key: " + UserStyle.Render(preview) + "\n")
	default:
		b.WriteString("Anthropic API key: " + ErrorStyle.Render("not configured") + "\n")
		b.WriteString(HelpStyle.Render("Configure your API key to send messages.") + "\n")
	}

	b.WriteString("\nNew key:\n" + s.input.View() + "\n")
	if s.saving {
		b.WriteString("\n" + LoadingStyle.Render("Saving...") + "\n")
	}
	if s.err != nil {
		b.WriteString("\n" + ErrorStyle.Render("Error: "+s.err.Error()) + "\n")
	}
	b.WriteString("\n" + HelpStyle.Render("Enter save key · Ctrl+X remove key · Ctrl+L sign out · Esc back"))
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, PanelStyle.Render(b.String()))
}

func (m *Model) updateSettings(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "esc":
		m.screen = ScreenChat
		m.settings.input.Reset()
		m.settings.input.Blur()
		if m.focus == FocusChat {
			return m.textarea.Focus()
		}
		return nil
	case "enter":
		key := strings.TrimSpace(m.settings.input.Value())
		if key == "" || m.settings.saving {
			return nil
		}
		m.settings.saving = true
		m.settings.err = nil
		return m.req.saveKey(key)
	case "ctrl+x":
		if !m.settings.settings.AnthropicKeySet || m.settings.saving {
			return nil
		}
		m.settings.saving = true
		m.settings.err = nil
		return m.req.deleteKey()
	case "ctrl+l":
		m.logger.Info("signed out")
		return tea.Batch(m.signOut(""), m.showToast("Signed out", api.ToastDuration, false))
	}

	var cmd tea.Cmd
	m.settings.input, cmd = m.settings.input.Update(msg)
	return cmd
}

func (m *Model) onSettingsLoaded(msg settingsLoadedMsg) tea.Cmd {
	m.settings.loading = false
	if msg.err != nil {
		m.settings.err = msg.err
		return m.handleError(msg.err)
	}
	m.settings.loaded = true
	m.settings.settings = msg.settings
	return nil
}

func (m *Model) onKeySaved(msg keySavedMsg) tea.Cmd {
	m.settings.saving = false
	if msg.err != nil {
		m.settings.err = msg.err
		return m.handleError(msg.err)
	}
	m.settings.loaded = true
	m.settings.settings = msg.settings
	m.settings.input.Reset()
	m.thread.ApplySettings(m.thread.ConversationID(), msg.settings, nil)
	m.updateViewport()
	return m.showToast("API key saved", api.ToastDuration, false)
}

func (m *Model) onKeyDeleted(msg keyDeletedMsg) tea.Cmd {
	m.settings.saving = false
	if msg.err != nil {
		m.settings.err = msg.err
		return m.handleError(msg.err)
	}
	m.settings.settings = models.Settings{}
	m.thread.ApplySettings(m.thread.ConversationID(), models.Settings{}, nil)
	m.updateViewport()
	return m.showToast("API key removed", api.ToastDuration, false)
}
