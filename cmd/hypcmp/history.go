package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/mpataki/hypcmp/internal/models"
	"github.com/mpataki/hypcmp/internal/report"
	"github.com/mpataki/hypcmp/internal/storage"
)

func newHistoryCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent benchmark sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			sessions, err := store.ListSessions(limit)
			if err != nil {
				return err
			}

			if len(sessions) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No sessions found")
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), renderSessions(sessions))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of sessions to show")
	return cmd
}

func renderSessions(sessions []*models.Session) string {
	rows := make([][]string, 0, len(sessions))
	for _, s := range sessions {
		name := s.Label
		if name == "" {
			name = s.ConfigPath
		}
		rows = append(rows, []string{
			strconv.FormatInt(s.ID, 10),
			string(s.Status),
			storage.FormatTimeAgo(s.CreatedAt),
			truncate(name, 60),
		})
	}
	t := table.New().
		Border(lipgloss.HiddenBorder()).
		Headers("ID", "STATUS", "STARTED", "CONFIG").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle.Padding(0, 1)
			}
			if col == 1 && rows[row][1] == string(models.SessionStatusFailed) {
				return failStyle.Padding(0, 1)
			}
			return cellStyle
		})
	return t.String() + "\n"
}

func newShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show a session and its benchmarks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid session ID: %w", err)
			}

			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			session, err := store.GetSession(id)
			if err != nil {
				return fmt.Errorf("failed to get session: %w", err)
			}
			entries, err := store.GetEntriesForSession(id)
			if err != nil {
				return err
			}

			fmt.Fprint(cmd.OutOrStdout(), renderSession(session, entries))
			return nil
		},
	}
}

func renderSession(session *models.Session, entries []*models.Entry) string {
	s := headerStyle.Render(fmt.Sprintf("Session #%d", session.ID)) + "\n"
	s += fmt.Sprintf("Status:  %s\n", session.Status)
	s += fmt.Sprintf("Config:  %s\n", session.ConfigPath)
	if session.Label != "" {
		s += fmt.Sprintf("Label:   %s\n", session.Label)
	}
	s += fmt.Sprintf("Started: %s\n", session.CreatedAt.Local().Format(time.DateTime))
	if session.OutputPath != "" {
		s += fmt.Sprintf("Report:  %s\n", session.OutputPath)
	}
	if session.Error != "" {
		s += fmt.Sprintf("Error:   %s\n", session.Error)
	}

	if len(entries) > 0 {
		s += "\nBenchmarks:\n"
		for _, e := range entries {
			mean := "-"
			if e.Mean != nil {
				mean = report.FormatSeconds(*e.Mean)
			}
			s += fmt.Sprintf("  %d. %s [%s] %s\n", e.Seq, e.Label, e.Status, mean)
			if e.Error != "" {
				s += dimStyle.Render("     "+e.Error) + "\n"
			}
		}
	}
	return s
}

func newDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a session from history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid session ID: %w", err)
			}

			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.DeleteSession(id); err != nil {
				return fmt.Errorf("failed to delete session: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Deleted session #%d\n", id)
			return nil
		},
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
