package ui

import "github.com/charmbracelet/lipgloss"

// Styles for the chat interface
var (
	TitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1)

	UserStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#04B575")).
			Bold(true)

	AssistantStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFB347")).
			Bold(true)

	MessageStyle = lipgloss.NewStyle().
			PaddingLeft(2).
			MarginBottom(1)

	// PendingStyle marks an optimistic message the server has not confirmed
	PendingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888"))

	TimeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))

	LoadingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFB347")).
			Italic(true)

	SidebarStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, true, false, false).
			BorderForeground(lipgloss.Color("#444444"))

	SidebarFocusedStyle = lipgloss.NewStyle().
				Border(lipgloss.NormalBorder(), false, true, false, false).
				BorderForeground(lipgloss.Color("#25A065"))

	ChatStyle = lipgloss.NewStyle().
			PaddingLeft(1)

	HelpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666")).
			Italic(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	// BannerStyle is the persistent "API server not running" notice
	BannerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#B33A3A")).
			Padding(0, 1)

	ToastStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#444444")).
			Padding(0, 1)

	TagStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#1A1A1A")).
			Background(lipgloss.Color("#7FB3D5")).
			Padding(0, 1)

	ActiveTagStyle = TagStyle.
			Background(lipgloss.Color("#25A065"))

	SelectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065")).
			Bold(true)

	PanelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(1, 2)
)
