package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"taskboard/internal/model"
	"taskboard/internal/taskview"
)

const (
	colorAccent  = lipgloss.Color("#4db7ff")
	colorGreen   = lipgloss.Color("#00a352")
	colorRed     = lipgloss.Color("#c42912")
	colorYellow  = lipgloss.Color("#c4b810")
	colorFaded   = lipgloss.Color("#555")
	colorPrimary = lipgloss.Color("#fff")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPrimary).
			Background(colorAccent).
			Padding(0, 1)
	mutedStyle    = lipgloss.NewStyle().Foreground(colorFaded)
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	doneStyle     = lipgloss.NewStyle().Foreground(colorGreen).Strikethrough(true)
	overdueStyle  = lipgloss.NewStyle().Foreground(colorRed)
	pendingStyle  = lipgloss.NewStyle().Foreground(colorYellow)
	statusStyle   = lipgloss.NewStyle().Italic(true)
	boxStyle      = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorAccent).
			Padding(0, 1)
)

const timeLayout = "2006-01-02 15:04"

func (m Model) View() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render(" Taskboard "))
	sb.WriteString("\n\n")

	switch {
	case m.state.Session == nil && m.state.Loading:
		sb.WriteString("Loading…\n")
	case m.state.Session == nil:
		sb.WriteString(m.viewSignIn())
	default:
		sb.WriteString(m.viewList())
	}

	if m.status != "" {
		sb.WriteString("\n")
		sb.WriteString(statusStyle.Render(m.status))
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m Model) viewSignIn() string {
	var sb strings.Builder
	if m.register {
		sb.WriteString("Create an account\n\n")
	} else {
		sb.WriteString("Sign in\n\n")
	}
	sb.WriteString(m.email.View())
	sb.WriteString("\n")
	sb.WriteString(m.password.View())
	sb.WriteString("\n\n")

	toggle := "ctrl+r: create account instead"
	if m.register {
		toggle = "ctrl+r: sign in instead"
	}
	sb.WriteString(mutedStyle.Render("enter: submit · tab: next field · " + toggle))
	sb.WriteString("\n")
	sb.WriteString(mutedStyle.Render("ctrl+f: sign in with provider · ctrl+g: continue as guest · esc: quit"))
	sb.WriteString("\n")
	return sb.String()
}

func (m Model) viewList() string {
	var sb strings.Builder
	sb.WriteString(userHeader(m.state.Session))
	sb.WriteString("\n")

	counts := taskview.Count(taskview.Apply(m.state.Tasks, taskview.DefaultQuery(), m.now))
	sb.WriteString(fmt.Sprintf("Total %d · %s · %s · %s\n",
		counts.Total,
		pendingStyle.Render(fmt.Sprintf("pending %d", counts.Pending)),
		doneStyle.UnsetStrikethrough().Render(fmt.Sprintf("done %d", counts.Done)),
		overdueStyle.Render(fmt.Sprintf("overdue %d", counts.Overdue)),
	))

	queryLine := fmt.Sprintf("filter: %s · sort: %s %s", m.query.Filter, m.query.SortKey, m.query.Direction)
	sb.WriteString(mutedStyle.Render(queryLine))
	sb.WriteString("\n")
	if m.mode == modeSearch {
		sb.WriteString("Search: " + m.search.View() + "\n")
	} else if m.query.Search != "" {
		sb.WriteString(mutedStyle.Render(fmt.Sprintf("search: %q", m.query.Search)) + "\n")
	}
	sb.WriteString("\n")

	switch {
	case m.state.Loading:
		sb.WriteString("Loading tasks…\n")
	case len(m.views) == 0 && counts.Total == 0:
		sb.WriteString("No tasks yet. Press a to add one.\n")
	case len(m.views) == 0:
		sb.WriteString("No tasks match the current search and filter.\n")
	default:
		for i, v := range m.views {
			sb.WriteString(m.renderRow(i, v))
			sb.WriteString("\n")
		}
	}
	if m.state.Err != nil {
		sb.WriteString(overdueStyle.Render("Could not refresh tasks; showing the last known list."))
		sb.WriteString("\n")
	}

	if m.mode == modeForm && m.form != nil {
		sb.WriteString("\n")
		sb.WriteString(m.viewForm())
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	sb.WriteString(mutedStyle.Render("a add · e edit · space toggle · d delete · / search · f filter · s sort · r reverse · o sign out · q quit"))
	sb.WriteString("\n")
	return sb.String()
}

func userHeader(s *model.Session) string {
	var parts []string
	parts = append(parts, selectedStyle.Render(s.Label()))
	if s.Email != nil && s.DisplayName != nil && *s.DisplayName != *s.Email {
		parts = append(parts, *s.Email)
	}
	if s.Anonymous {
		parts = append(parts, "guest account")
	}
	if s.AvatarURL != nil && *s.AvatarURL != "" {
		parts = append(parts, mutedStyle.Render(*s.AvatarURL))
	}
	return strings.Join(parts, " · ")
}

func (m Model) renderRow(i int, v taskview.View) string {
	cursor := "  "
	if i == m.cursor {
		cursor = "> "
	}

	var mark, name string
	switch v.DisplayStatus {
	case model.DisplayDone:
		mark = doneStyle.UnsetStrikethrough().Render("[x]")
		name = doneStyle.Render(v.Name)
	case model.DisplayOverdue:
		mark = overdueStyle.Render("[!]")
		name = overdueStyle.Render(v.Name)
	default:
		mark = "[ ]"
		name = v.Name
	}
	if i == m.cursor {
		name = selectedStyle.Render(v.Name)
	}

	var details []string
	if v.Deadline != nil {
		details = append(details, "due "+v.Deadline.In(m.now.Location()).Format(timeLayout))
	}
	if v.CompletedAt != nil {
		details = append(details, "done "+v.CompletedAt.In(m.now.Location()).Format(timeLayout))
	}
	details = append(details, "created "+v.CreatedAt.In(m.now.Location()).Format(timeLayout))

	return fmt.Sprintf("%s%s %s %s", cursor, mark, name, mutedStyle.Render(strings.Join(details, " · ")))
}

func (m Model) viewForm() string {
	title := "New task"
	if m.form.taskID != "" {
		title = "Edit task"
	}
	body := fmt.Sprintf("%s\n\nName:     %s\nDeadline: %s", title, m.form.name.View(), m.form.deadline.View())
	return boxStyle.Render(body)
}
