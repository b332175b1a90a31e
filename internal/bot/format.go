package bot

import (
	"fmt"
	"html"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"taskboard/internal/model"
	"taskboard/internal/service"
	"taskboard/internal/taskview"
)

const (
	iconDefault = "🟢"
	iconDue     = "⏳"
	iconOverdue = "⚠️"
	iconDone    = "✅"
)

const dateTimeLayout = "2006-01-02 15:04"

// renderList builds the list message and one button row per shown task.
// counts cover the whole unfiltered set.
func renderList(views []taskview.View, counts taskview.Counts, q taskview.Query, now time.Time) (string, [][]tgbotapi.InlineKeyboardButton) {
	var builder strings.Builder
	builder.WriteString("📋 <b>Your tasks</b>\n")
	builder.WriteString(fmt.Sprintf("Total %d · pending %d · done %d · overdue %d\n",
		counts.Total, counts.Pending, counts.Done, counts.Overdue))
	builder.WriteString(fmt.Sprintf("<i>filter %s · sort %s %s", q.Filter, q.SortKey, q.Direction))
	if q.Search != "" {
		builder.WriteString(fmt.Sprintf(" · search «%s»", escape(q.Search)))
	}
	builder.WriteString("</i>\n\n")

	if len(views) == 0 {
		if counts.Total == 0 {
			builder.WriteString("Nothing here yet. Add a task with /new.")
		} else {
			builder.WriteString("No tasks match. Try /filter all or an empty /search.")
		}
		return builder.String(), nil
	}

	var buttons [][]tgbotapi.InlineKeyboardButton
	for i, v := range views {
		if i == maxListed {
			builder.WriteString(fmt.Sprintf("…and %d more. Narrow the list with /search or /filter.", len(views)-maxListed))
			break
		}
		builder.WriteString(formatTask(i+1, v, now))

		toggle := "✅ Done"
		if v.Status == model.StatusDone {
			toggle = "↩️ Undo"
		}
		buttons = append(buttons, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("%s %d · %s", toggle, i+1, shortTitle(v.Name, 20)), cbTogglePrefix+v.ID),
			tgbotapi.NewInlineKeyboardButtonData("🗑 Delete", cbDeletePrefix+v.ID),
		))
	}

	return strings.TrimSpace(builder.String()), buttons
}

func formatTask(n int, v taskview.View, now time.Time) string {
	var b strings.Builder

	icon := iconDefault
	switch v.DisplayStatus {
	case model.DisplayDone:
		icon = iconDone
	case model.DisplayOverdue:
		icon = iconOverdue
	default:
		if v.Deadline != nil && v.Deadline.Sub(now) <= service.DueSoonWindow {
			icon = iconDue
		}
	}

	name := escape(v.Name)
	if v.DisplayStatus == model.DisplayDone {
		name = "<s>" + name + "</s>"
	}
	b.WriteString(fmt.Sprintf("%s <b>%d.</b> %s\n", icon, n, name))

	if v.Deadline != nil {
		d := v.Deadline.In(now.Location())
		if v.DisplayStatus == model.DisplayOverdue {
			b.WriteString(fmt.Sprintf("   ⏰ Deadline: %s · <b>overdue</b>\n", d.Format(dateTimeLayout)))
		} else {
			b.WriteString(fmt.Sprintf("   ⏰ Deadline: %s\n", d.Format(dateTimeLayout)))
		}
	}
	if v.CompletedAt != nil {
		b.WriteString(fmt.Sprintf("   ✔️ Completed: %s\n", v.CompletedAt.In(now.Location()).Format(dateTimeLayout)))
	}
	b.WriteString(fmt.Sprintf("   🕓 Created: %s\n", v.CreatedAt.In(now.Location()).Format(dateTimeLayout)))
	return b.String()
}

func formatDigest(d service.Digest, now time.Time) string {
	if d.Empty() {
		return "🎉 Nothing overdue and nothing due in the next two days."
	}

	var b strings.Builder
	b.WriteString("⏰ <b>Task digest</b>\n")
	if len(d.Overdue) > 0 {
		b.WriteString("\n<b>Overdue</b>\n")
		for _, v := range d.Overdue {
			b.WriteString(fmt.Sprintf("%s %s · %s\n", iconOverdue, escape(v.Name), v.Deadline.In(now.Location()).Format(dateTimeLayout)))
		}
	}
	if len(d.DueSoon) > 0 {
		b.WriteString("\n<b>Due soon</b>\n")
		for _, v := range d.DueSoon {
			b.WriteString(fmt.Sprintf("%s %s · %s\n", iconDue, escape(v.Name), v.Deadline.In(now.Location()).Format(dateTimeLayout)))
		}
	}
	b.WriteString(fmt.Sprintf("\n%d pending of %d.", d.Counts.Pending, d.Counts.Total))
	return b.String()
}

func shortTitle(title string, maxLen int) string {
	clean := strings.TrimSpace(strings.ReplaceAll(title, "\n", " "))
	runes := []rune(clean)
	if len(runes) <= maxLen {
		return clean
	}
	if maxLen <= 1 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-1]) + "…"
}

func escape(s string) string {
	return html.EscapeString(s)
}
