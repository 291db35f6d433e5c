package ui

import (
	"os"
	"path/filepath"
	"strings"

	"chatdesk/internal/api"
	"chatdesk/internal/models"
	"chatdesk/internal/viewer"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type viewerFocus int

const (
	viewerFocusList viewerFocus = iota
	viewerFocusSearch
	viewerFocusAddTag
	viewerFocusRemoveTag
	viewerFocusPath
)

const viewerListWidth = 38

// viewerScreen presents a viewer.Viewer. Filtering, tagging and selection
// all live in the Viewer; this only handles input and layout.
type viewerScreen struct {
	state  *viewer.Viewer
	focus  viewerFocus
	search textinput.Model
	tag    textinput.Model
	path   textinput.Model
	detail viewport.Model
	md     *markdown

	readErr    error
	loadedPath string
}

func newViewerScreen(state *viewer.Viewer) viewerScreen {
	search := textinput.New()
	search.Placeholder = "Search titles, summaries and messages"
	search.Width = 40

	tag := textinput.New()
	tag.Placeholder = "tag"
	tag.CharLimit = 64
	tag.Width = 30

	path := textinput.New()
	path.Placeholder = "path/to/conversations.json"
	path.Width = 60

	return viewerScreen{
		state:  state,
		search: search,
		tag:    tag,
		path:   path,
		detail: viewport.New(40, 20),
	}
}

func (s *viewerScreen) enter() tea.Cmd {
	if len(s.state.Conversations()) == 0 {
		return s.focusInput(viewerFocusPath)
	}
	s.blurInputs()
	s.focus = viewerFocusList
	return nil
}

func (s *viewerScreen) resize(width, height int, md *markdown) {
	s.md = md
	s.detail.Width = width - viewerListWidth - 4
	s.detail.Height = height - 9
	if s.detail.Height < 3 {
		s.detail.Height = 3
	}
	s.refreshDetail()
}

func (s *viewerScreen) blurInputs() {
	s.search.Blur()
	s.tag.Blur()
	s.path.Blur()
}

func (s *viewerScreen) focusInput(f viewerFocus) tea.Cmd {
	s.blurInputs()
	s.focus = f
	switch f {
	case viewerFocusSearch:
		return s.search.Focus()
	case viewerFocusAddTag, viewerFocusRemoveTag:
		s.tag.Reset()
		return s.tag.Focus()
	case viewerFocusPath:
		return s.path.Focus()
	}
	return nil
}

func (s *viewerScreen) updateInputs(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	switch s.focus {
	case viewerFocusSearch:
		s.search, cmd = s.search.Update(msg)
	case viewerFocusAddTag, viewerFocusRemoveTag:
		s.tag, cmd = s.tag.Update(msg)
	case viewerFocusPath:
		s.path, cmd = s.path.Update(msg)
	}
	return cmd
}

func (s *viewerScreen) applyFile(msg exportFileMsg, md *markdown) {
	if md != nil {
		s.md = md
	}
	if msg.err != nil {
		s.readErr = msg.err
		return
	}
	s.readErr = nil
	s.loadedPath = msg.path
	if err := s.state.Load(msg.data); err == nil {
		s.blurInputs()
		s.focus = viewerFocusList
	}
	s.refreshDetail()
}

// move steps the selection through the visible conversations
func (s *viewerScreen) move(delta int) {
	visible := s.state.Visible()
	if len(visible) == 0 {
		return
	}
	idx := indexOfExport(visible, s.state.SelectedID())
	idx += delta
	if idx < 0 {
		idx = 0
	}
	if idx >= len(visible) {
		idx = len(visible) - 1
	}
	s.state.Select(visible[idx].UUID)
	s.refreshDetail()
}

// cycleFilter steps the tag filter through "all" and every tag in use
func (s *viewerScreen) cycleFilter() {
	tags := s.state.AllTags()
	current := s.state.TagFilter()
	next := ""
	if current == "" {
		if len(tags) > 0 {
			next = tags[0]
		}
	} else {
		for i, t := range tags {
			if t == current && i+1 < len(tags) {
				next = tags[i+1]
			}
		}
	}
	s.state.SetTagFilter(next)
	s.refreshDetail()
}

func (s *viewerScreen) refreshDetail() {
	conv, ok := s.state.Selected()
	if !ok {
		s.detail.SetContent("")
		return
	}
	var b strings.Builder
	b.WriteString(SelectedStyle.Render(conv.DisplayName()) + "\n")
	if conv.Summary != "" {
		b.WriteString(HelpStyle.Render(conv.Summary) + "\n")
	}
	if tags := s.state.Tags().For(conv.UUID); len(tags) > 0 {
		b.WriteString(renderTags(tags, s.state.TagFilter()) + "\n")
	}
	b.WriteString("\n")
	if len(conv.ChatMessages) == 0 {
		b.WriteString(HelpStyle.Render("This conversation has no messages.") + "\n")
	}
	for _, msg := range conv.ChatMessages {
		b.WriteString(renderExportMessage(s.md, msg) + "\n")
	}
	s.detail.SetContent(b.String())
	s.detail.GotoTop()
}

func (m *Model) updateViewer(msg tea.KeyMsg) tea.Cmd {
	v := &m.viewer
	if v.focus != viewerFocusList {
		return m.updateViewerInput(msg)
	}

	switch msg.String() {
	case "esc", "q":
		return m.leaveViewer()
	case "up", "k":
		v.move(-1)
	case "down", "j":
		v.move(1)
	case "/":
		return v.focusInput(viewerFocusSearch)
	case "t":
		if _, ok := v.state.Selected(); ok {
			return v.focusInput(viewerFocusAddTag)
		}
	case "T":
		if _, ok := v.state.Selected(); ok {
			return v.focusInput(viewerFocusRemoveTag)
		}
	case "f":
		v.cycleFilter()
	case "o":
		return v.focusInput(viewerFocusPath)
	case "u":
		if m.bulkUpload {
			return m.showToast("Upload to backend is coming soon", api.ToastDuration, false)
		}
	case "pgup", "pgdown":
		var cmd tea.Cmd
		v.detail, cmd = v.detail.Update(msg)
		return cmd
	}
	return nil
}

func (m *Model) updateViewerInput(msg tea.KeyMsg) tea.Cmd {
	v := &m.viewer
	switch msg.String() {
	case "esc":
		v.blurInputs()
		v.focus = viewerFocusList
		return nil
	case "enter":
		var err error
		switch v.focus {
		case viewerFocusPath:
			path := strings.TrimSpace(v.path.Value())
			if path == "" {
				return nil
			}
			return readExportFile(expandHome(path))
		case viewerFocusAddTag:
			err = v.state.AddTag(v.state.SelectedID(), v.tag.Value())
		case viewerFocusRemoveTag:
			err = v.state.RemoveTag(v.state.SelectedID(), v.tag.Value())
			if f := v.state.TagFilter(); f != "" && !contains(v.state.AllTags(), f) {
				v.state.SetTagFilter("")
			}
		}
		v.tag.Reset()
		v.blurInputs()
		v.focus = viewerFocusList
		v.refreshDetail()
		if err != nil {
			m.logger.Error("saving tags failed", "error", err)
			return m.showToast("Could not save tags: "+err.Error(), api.ToastDuration, true)
		}
		return nil
	}

	cmd := v.updateInputs(msg)
	if v.focus == viewerFocusSearch {
		v.state.SetQuery(v.search.Value())
		v.refreshDetail()
	}
	return cmd
}

func (s viewerScreen) view(width, height int, bulkUpload bool) string {
	title := "JSON conversation viewer"
	if s.loadedPath != "" {
		title += " · " + filepath.Base(s.loadedPath)
	}
	rows := []string{TitleStyle.Width(width).Render(title)}

	filter := "all"
	if f := s.state.TagFilter(); f != "" {
		filter = ActiveTagStyle.Render(f)
	}
	rows = append(rows, "Search: "+s.search.View()+"   Tag: "+filter)
	if tags := s.state.AllTags(); len(tags) > 0 {
		rows = append(rows, renderTags(tags, s.state.TagFilter()))
	} else {
		rows = append(rows, HelpStyle.Render("No tags yet"))
	}

	switch {
	case s.readErr != nil:
		rows = append(rows, ErrorStyle.Render("Error: could not read file: "+s.readErr.Error()))
	case s.state.Err() != nil:
		rows = append(rows, ErrorStyle.Render("Error: "+s.state.Err().Error()))
	default:
		rows = append(rows, "")
	}

	listHeight := height - 8
	if listHeight < 2 {
		listHeight = 2
	}
	listCol := lipgloss.NewStyle().Width(viewerListWidth).Height(listHeight).Render(s.listView(listHeight))
	detailCol := ChatStyle.Render(s.detail.View())
	rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, SidebarStyle.Render(listCol), detailCol))

	switch s.focus {
	case viewerFocusPath:
		rows = append(rows, "Open file: "+s.path.View())
	case viewerFocusAddTag:
		rows = append(rows, "Add tag: "+s.tag.View())
	case viewerFocusRemoveTag:
		rows = append(rows, "Remove tag: "+s.tag.View())
	default:
		rows = append(rows, "")
	}

	help := "↑/↓ select · / search · t tag · T untag · f filter · o open · Esc back"
	if bulkUpload {
		help += " · u upload to backend (coming soon)"
	}
	rows = append(rows, HelpStyle.Render(help))
	return strings.Join(rows, "\n")
}

func (s viewerScreen) listView(height int) string {
	if len(s.state.Conversations()) == 0 {
		return HelpStyle.Render("No file loaded.\nPress o to open an exported conversations JSON file.")
	}
	visible := s.state.Visible()
	if len(visible) == 0 {
		return HelpStyle.Render("No conversations match.")
	}

	const linesPerItem = 2
	perPage := height / linesPerItem
	if perPage < 1 {
		perPage = 1
	}
	selected := indexOfExport(visible, s.state.SelectedID())
	start := 0
	if selected >= perPage {
		start = selected - perPage + 1
	}

	var b strings.Builder
	for i := start; i < len(visible) && i < start+perPage; i++ {
		conv := visible[i]
		name := truncate(conv.DisplayName(), viewerListWidth-4)
		if conv.UUID == s.state.SelectedID() {
			b.WriteString(SelectedStyle.Render("▸ "+name) + "\n")
		} else {
			b.WriteString("  " + name + "\n")
		}
		meta := plural(len(conv.ChatMessages), "message") + " · " + conv.UpdatedAt.Local().Format("Jan 2 2006")
		if tags := s.state.Tags().For(conv.UUID); len(tags) > 0 {
			meta += " · " + strings.Join(tags, ", ")
		}
		b.WriteString("  " + HelpStyle.Render(truncate(meta, viewerListWidth-4)) + "\n")
	}
	return b.String()
}

func indexOfExport(convs []models.ExportConversation, id string) int {
	for i, c := range convs {
		if c.UUID == id {
			return i
		}
	}
	return 0
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}

func contains(items []string, want string) bool {
	for _, it := range items {
		if it == want {
			return true
		}
	}
	return false
}

func expandHome(path string) string {
	if rest, ok := strings.CutPrefix(path, "~/"); ok {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, rest)
		}
	}
	return path
}
