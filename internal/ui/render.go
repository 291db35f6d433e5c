package ui

import (
	"strings"
	"time"

	"chatdesk/internal/chat"
	"chatdesk/internal/models"

	"github.com/charmbracelet/glamour"
)

// markdown renders message bodies. A renderer that failed to build falls
// back to plain text.
type markdown struct {
	renderer *glamour.TermRenderer
}

func newMarkdown(width int) *markdown {
	if width < 20 {
		width = 20
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return &markdown{}
	}
	return &markdown{renderer: r}
}

func (md *markdown) render(content string) string {
	if md == nil || md.renderer == nil {
		return content
	}
	out, err := md.renderer.Render(content)
	if err != nil {
		return content
	}
	return strings.Trim(out, "\n")
}

func messageHeading(role string, at time.Time) string {
	name := AssistantStyle.Render("Assistant")
	if role == models.RoleUser {
		name = UserStyle.Render("You")
	}
	return name + " " + TimeStyle.Render("["+at.Local().Format("15:04:05")+"]")
}

func renderMessage(md *markdown, msg models.Message) string {
	body := md.render(msg.Content)
	if strings.HasPrefix(msg.ID, chat.TempIDPrefix) {
		// not confirmed yet: plain text, dimmed
		body = PendingStyle.Render(msg.Content)
	}
	return MessageStyle.Render(messageHeading(msg.Role, msg.CreatedAt) + "\n" + body)
}

func renderExportMessage(md *markdown, msg models.ExportMessage) string {
	return MessageStyle.Render(messageHeading(msg.Role(), msg.CreatedAt) + "\n" + md.render(msg.Text))
}

func renderTags(tags []string, active string) string {
	parts := make([]string, 0, len(tags))
	for _, t := range tags {
		if t == active {
			parts = append(parts, ActiveTagStyle.Render(t))
		} else {
			parts = append(parts, TagStyle.Render(t))
		}
	}
	return strings.Join(parts, " ")
}

func controlsHelp() string {
	var b strings.Builder
	b.WriteString(HelpStyle.Render("Controls:") + "\n")
	b.WriteString(HelpStyle.Render("• Tab - Switch between sidebar and chat") + "\n")
	b.WriteString(HelpStyle.Render("• Ctrl+N - New conversation") + "\n")
	b.WriteString(HelpStyle.Render("• Enter - Send message / Select conversation") + "\n")
	b.WriteString(HelpStyle.Render("• Ctrl+D - Delete conversation") + "\n")
	b.WriteString(HelpStyle.Render("• Ctrl+S - Settings   • Ctrl+O - JSON viewer") + "\n")
	b.WriteString(HelpStyle.Render("• Ctrl+R - Refresh     • Ctrl+C / Esc - Quit") + "\n")
	return b.String()
}
