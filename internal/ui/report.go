package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// RunSummary carries the counters a sync run reports.
type RunSummary struct {
	RunID        string
	DryRun       bool
	MdTasks      int
	RemTasks     int
	Links        int
	NewLinks     int
	Planned      int
	Applied      int
	Created      int
	Retired      int
	Skipped      int
	Failed       int
	Disposition  string
	ErroredLists []string
}

// PlanRow is one planned field update for display.
type PlanRow struct {
	Field     string
	Direction string
	Old       string
	New       string
	Title     string
}

// RenderRunSummary writes the end-of-run report.
func RenderRunSummary(w io.Writer, s RunSummary) {
	title := "sync"
	if s.DryRun {
		title = "sync (dry run)"
	}
	fmt.Fprintln(w, HeaderStyle.Render(title)+" "+HintStyle.Render(s.RunID))

	t := NewTable(min(GetWidth(), 64)).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == 0 {
				return TableHeaderStyle
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Headers("tasks (md)", "tasks (rem)", "links", "planned", "applied")
	t.Row(
		fmt.Sprintf("%d", s.MdTasks),
		fmt.Sprintf("%d", s.RemTasks),
		fmt.Sprintf("%d (+%d)", s.Links, s.NewLinks),
		fmt.Sprintf("%d", s.Planned),
		fmt.Sprintf("%d", s.Applied),
	)
	fmt.Fprintln(w, t.Render())

	if s.Created > 0 {
		fmt.Fprintln(w, SuccessStyle.Render(fmt.Sprintf("  created %d counterpart(s)", s.Created)))
	}
	if s.Retired > 0 {
		fmt.Fprintln(w, SuccessStyle.Render(fmt.Sprintf("  retired %d duplicate(s)", s.Retired)))
	}
	if s.Skipped > 0 {
		fmt.Fprintln(w, WarningStyle.Render(fmt.Sprintf("  skipped %d", s.Skipped)))
	}
	if s.Failed > 0 {
		fmt.Fprintln(w, ErrorStyle.Render(fmt.Sprintf("  failed %d", s.Failed)))
	}
	for _, list := range s.ErroredLists {
		fmt.Fprintln(w, WarningStyle.Render("  list unavailable: "+list))
	}

	style := SuccessStyle
	switch s.Disposition {
	case "partial":
		style = WarningStyle
	case "failed":
		style = ErrorStyle
	}
	fmt.Fprintln(w, style.Render("  "+s.Disposition))
}

// RenderPlan writes the planned updates, one row per field change.
func RenderPlan(w io.Writer, rows []PlanRow) {
	if len(rows) == 0 {
		fmt.Fprintln(w, HintStyle.Render("nothing to do"))
		return
	}
	t := NewTable(min(GetWidth(), 100)).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == 0 {
				return TableHeaderStyle
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Headers("task", "field", "flow", "old", "new")
	for _, r := range rows {
		t.Row(truncate(r.Title, 32), r.Field, arrow(r.Direction), truncate(r.Old, 20), truncate(r.New, 20))
	}
	fmt.Fprintln(w, t.Render())
}

func arrow(direction string) string {
	switch direction {
	case "md_to_rem":
		return "md → rem"
	case "rem_to_md":
		return "rem → md"
	}
	return direction
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.TrimSpace(s[:n-1]) + "…"
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
