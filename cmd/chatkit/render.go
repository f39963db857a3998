package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"chatkit/internal/domain"
)

var (
	colorAccent  = lipgloss.AdaptiveColor{Light: "#6a1b9a", Dark: "#ce93d8"}
	colorInfo    = lipgloss.AdaptiveColor{Light: "#0277bd", Dark: "#4fc3f7"}
	colorSuccess = lipgloss.AdaptiveColor{Light: "#2e7d32", Dark: "#66bb6a"}
	colorWarning = lipgloss.AdaptiveColor{Light: "#e65100", Dark: "#ffa726"}
	colorMuted   = lipgloss.AdaptiveColor{Light: "#757575", Dark: "#9e9e9e"}

	styleTitle  = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	styleUser   = lipgloss.NewStyle().Bold(true).Foreground(colorInfo)
	styleBot    = lipgloss.NewStyle().Bold(true).Foreground(colorSuccess)
	styleTool   = lipgloss.NewStyle().Foreground(colorWarning)
	styleMuted  = lipgloss.NewStyle().Foreground(colorMuted)
	styleTag    = lipgloss.NewStyle().Underline(true).Foreground(colorInfo)
	minWrapSize = 20
)

// renderer turns a thread into terminal text. Assistant markdown goes
// through glamour; everything else is styled with lipgloss.
type renderer struct {
	width int
	md    *glamour.TermRenderer
}

func newRenderer(width int) (*renderer, error) {
	width = max(width, minWrapSize)
	md, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil, fmt.Errorf("markdown renderer: %w", err)
	}
	return &renderer{width: width, md: md}, nil
}

func (r *renderer) thread(t domain.Thread) string {
	var sb strings.Builder
	title := t.ID
	if t.Title != nil && *t.Title != "" {
		title = *t.Title + " " + styleMuted.Render("("+t.ID+")")
	}
	sb.WriteString(styleTitle.Render(title))
	if s := domain.StatusOf(t.Status); s.StatusType() != domain.StatusActive {
		sb.WriteString(" " + styleTool.Render("["+string(s.StatusType())+"]"))
	}
	sb.WriteString("\n\n")

	if len(t.Items.Data) == 0 {
		sb.WriteString(styleMuted.Render("  no items") + "\n")
	}
	for _, item := range t.Items.Data {
		sb.WriteString(r.item(item))
		sb.WriteString("\n")
	}
	if t.Items.HasMore && t.Items.After != nil {
		sb.WriteString(styleMuted.Render("more items: --after "+*t.Items.After) + "\n")
	}
	return sb.String()
}

func (r *renderer) item(item domain.ThreadItem) string {
	switch it := item.(type) {
	case domain.UserMessageItem:
		return styleUser.Render("user") + "  " + userText(it.Content) + "\n"
	case domain.AssistantMessageItem:
		return styleBot.Render("assistant") + "\n" + r.assistant(it)
	case domain.ClientToolCallItem:
		return styleTool.Render("tool "+it.Name) + " " + styleMuted.Render(string(it.Status)) + "\n"
	case domain.WidgetItem:
		return styleMuted.Render("widget ") + it.Widget.Type + "\n"
	case domain.TaskItem:
		return styleMuted.Render("task ") + taskLine(it.Task) + "\n"
	case domain.WorkflowItem:
		return styleMuted.Render(fmt.Sprintf("workflow %s (%d tasks)", it.Workflow.Type, len(it.Workflow.Tasks))) + "\n"
	case domain.EndOfTurnItem:
		return styleMuted.Render("-- end of turn --") + "\n"
	}
	return styleMuted.Render(string(item.ItemType())) + "\n"
}

func (r *renderer) assistant(it domain.AssistantMessageItem) string {
	var text strings.Builder
	sources := 0
	for i, part := range it.Content {
		if i > 0 {
			text.WriteString("\n\n")
		}
		text.WriteString(part.Text)
		sources += len(part.Annotations)
	}
	out, err := r.md.Render(text.String())
	if err != nil {
		out = text.String() + "\n"
	}
	if sources > 0 {
		out += styleMuted.Render(fmt.Sprintf("  %d sources", sources)) + "\n"
	}
	return out
}

func userText(content []domain.UserMessageContent) string {
	var sb strings.Builder
	for _, c := range content {
		switch c := c.(type) {
		case domain.UserMessageTextContent:
			sb.WriteString(c.Text)
		case domain.UserMessageTagContent:
			sb.WriteString(styleTag.Render("@" + c.Text))
		}
	}
	return sb.String()
}

func taskLine(t domain.Task) string {
	var title *string
	switch t := t.(type) {
	case domain.CustomTask:
		title = t.Title
	case domain.SearchTask:
		title = t.Title
	case domain.ThoughtTask:
		title = t.Title
	case domain.FileTask:
		title = t.Title
	case domain.ImageTask:
		title = t.Title
	}
	line := string(t.TaskType())
	if title != nil && *title != "" {
		line += ": " + *title
	}
	if ind := t.Indicator(); ind != domain.IndicatorNone {
		line += " " + styleMuted.Render("("+string(ind)+")")
	}
	return line
}
