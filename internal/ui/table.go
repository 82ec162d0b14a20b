package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/robsonferreira/tasksync/internal/db"
	"github.com/robsonferreira/tasksync/internal/task"
)

// RenderStatus colors a status by progress.
func RenderStatus(s task.Status) string {
	switch s {
	case task.StatusDone:
		return RenderPass(string(s))
	case task.StatusInProgress:
		return RenderAccent(string(s))
	default:
		return RenderMuted(string(s))
	}
}

// RenderPriority colors a priority by urgency.
func RenderPriority(p task.Priority) string {
	switch p {
	case task.PriorityHigh:
		return RenderFail(string(p))
	case task.PriorityAttention:
		return RenderWarn(string(p))
	default:
		return string(p)
	}
}

// TaskTable renders tasks as aligned columns. Titles are truncated to fit
// maxWidth when it is positive.
func TaskTable(tasks []*task.Task, maxWidth int) string {
	headers := []string{"ID", "TITLE", "STATUS", "PRIORITY", "REMOTE PAGE"}
	rows := make([][]string, 0, len(tasks))
	for _, t := range tasks {
		page := t.RemotePageID
		if page == "" {
			page = "-"
		}
		rows = append(rows, []string{t.ID, t.Title, string(t.Status), string(t.Priority), page})
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, r := range rows {
		for i, c := range r {
			if w := lipgloss.Width(c); w > widths[i] {
				widths[i] = w
			}
		}
	}

	if maxWidth > 0 {
		total := 0
		for _, w := range widths {
			total += w + 2
		}
		if over := total - maxWidth; over > 0 && widths[1]-over >= 10 {
			widths[1] -= over
		}
	}

	var b strings.Builder
	for i, h := range headers {
		b.WriteString(headerStyle.Render(pad(h, widths[i])))
		b.WriteString("  ")
	}
	b.WriteString("\n")

	for _, r := range rows {
		for i, c := range r {
			cell := pad(truncate(c, widths[i]), widths[i])
			switch i {
			case 2:
				cell = RenderStatus(task.Status(c)) + strings.Repeat(" ", widths[i]-lipgloss.Width(c))
			case 3:
				cell = RenderPriority(task.Priority(c)) + strings.Repeat(" ", widths[i]-lipgloss.Width(c))
			}
			b.WriteString(cell)
			b.WriteString("  ")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// TaskDetail renders one task as key/value lines.
func TaskDetail(t *task.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", RenderAccent("Task"), t.Title)
	fmt.Fprintf(&b, "  ID:          %s\n", t.ID)
	fmt.Fprintf(&b, "  Remote page: %s\n", t.RemotePageID)
	fmt.Fprintf(&b, "  Status:      %s (%s)\n", RenderStatus(t.Status), t.Status.Label())
	fmt.Fprintf(&b, "  Priority:    %s (%s)\n", RenderPriority(t.Priority), t.Priority.Label())
	fmt.Fprintf(&b, "  Created:     %s\n", t.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "  Updated:     %s\n", t.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
	return b.String()
}

// DivergenceTable renders open divergence journal entries.
func DivergenceTable(entries []*db.Divergence) string {
	var b strings.Builder
	for _, d := range entries {
		fmt.Fprintf(&b, "%s #%d %s/%s task=%s page=%s\n",
			RenderWarn("⚠"), d.ID, d.Op, d.Kind, orDash(d.TaskID), orDash(d.RemotePageID))
		if d.Detail != "" {
			fmt.Fprintf(&b, "    %s\n", RenderMuted(d.Detail))
		}
		fmt.Fprintf(&b, "    %s\n", RenderMuted(d.CreatedAt.Local().Format("2006-01-02 15:04:05")))
	}
	return b.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func pad(s string, width int) string {
	if w := lipgloss.Width(s); w < width {
		return s + strings.Repeat(" ", width-w)
	}
	return s
}

func truncate(s string, width int) string {
	if lipgloss.Width(s) <= width {
		return s
	}
	r := []rune(s)
	if width <= 1 || len(r) <= width {
		return s
	}
	return string(r[:width-1]) + "…"
}
