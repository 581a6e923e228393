package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/mpataki/hypcmp/internal/orchestrator"
	"github.com/mpataki/hypcmp/internal/report"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
)

func renderSummary(s *orchestrator.Summary) string {
	var b strings.Builder

	if len(s.Outcomes) > 0 {
		rows := make([][]string, 0, len(s.Outcomes))
		for _, o := range s.Outcomes {
			mean, status := "-", okStyle.Render("ok")
			if o.Mean != nil {
				mean = report.FormatSeconds(*o.Mean)
			}
			if o.Err != nil {
				status = failStyle.Render("failed")
			}
			rows = append(rows, []string{o.Label, status, mean})
		}
		t := table.New().
			Border(lipgloss.NormalBorder()).
			Headers("BENCHMARK", "STATUS", "MEAN").
			Rows(rows...).
			StyleFunc(func(row, col int) lipgloss.Style {
				if row == table.HeaderRow {
					return headerStyle.Padding(0, 1)
				}
				return cellStyle
			})
		b.WriteString(t.String() + "\n")
	}

	for _, o := range s.Failures() {
		fmt.Fprintf(&b, "%s %s: %v\n", failStyle.Render("✗"), o.Label, o.Err)
	}

	if s.Output != "" {
		fmt.Fprintf(&b, "Report:   %s\n", s.Output)
	}
	if s.Published != "" {
		fmt.Fprintf(&b, "Uploaded: %s\n", s.Published)
	}
	if s.PublishErr != nil {
		fmt.Fprintf(&b, "%s %v\n", failStyle.Render("✗"), s.PublishErr)
	}
	if s.SessionID != 0 {
		b.WriteString(dimStyle.Render(fmt.Sprintf("Session #%d (%d checkouts)", s.SessionID, s.Checkouts)) + "\n")
	}
	return b.String()
}

func renderPlan(plan []orchestrator.PlannedRun) string {
	var b strings.Builder
	for _, p := range plan {
		b.WriteString(headerStyle.Render(p.Run.Name) + "\n")
		switch {
		case p.Err != nil:
			fmt.Fprintf(&b, "  %s %v\n", failStyle.Render("✗"), p.Err)
		case len(p.Revisions) == 0 && p.Run.Revisions.Empty():
			b.WriteString(dimStyle.Render("  current working tree") + "\n")
		case len(p.Revisions) == 0:
			b.WriteString(dimStyle.Render("  no matching revisions") + "\n")
		default:
			for _, r := range p.Revisions {
				fmt.Fprintf(&b, "  %s  %s  %s\n", r.Abbrev, r.Time.Local().Format("2006-01-02 15:04"), r.ID())
			}
		}
	}
	return b.String()
}
