package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mpataki/hypcmp/internal/config"
	"github.com/mpataki/hypcmp/internal/logging"
	"github.com/mpataki/hypcmp/internal/storage"
	"github.com/mpataki/hypcmp/internal/tui"
)

// errSilent marks failures that were already reported to the user.
var errSilent = errors.New("")

type globalFlags struct {
	verbose   int
	logFormat string
	logFile   string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		if !errors.Is(err, errSilent) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var flags globalFlags
	var logCloser io.Closer
	var run runFlags

	rootCmd := &cobra.Command{
		Use:   "hypcmp [config]",
		Short: "Benchmark commands across git revisions with hyperfine",
		Long: "hypcmp runs the benchmarks of a config file with hyperfine, checking out\n" +
			"each requested revision in turn, and collects the results into one report.\n" +
			"Without arguments it opens the history browser.",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.New()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			level, err := logging.Level(cfg.LogLevel, flags.verbose)
			if err != nil {
				return fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
			}
			logCloser, err = logging.Setup(level, flags.logFormat, flags.logFile)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logCloser != nil {
				logCloser.Close()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return runBenchmark(cmd, args[0], run)
			}
			return runTUI(cmd, args)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.CountVarP(&flags.verbose, "verbose", "v", "Increase log verbosity (repeatable)")
	pf.StringVar(&flags.logFormat, "log-format", logging.FormatText, "Log format: text or json")
	pf.StringVar(&flags.logFile, "log-file", "", "Also append logs to this file")
	rootCmd.Flags().AddFlagSet(run.flagSet())

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newShowCommand())
	rootCmd.AddCommand(newDeleteCommand())

	return rootCmd
}

func runTUI(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	app := tui.NewApp(store)
	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(cmd.Context()))

	_, err = p.Run()
	return err
}

func openStore() (*storage.Storage, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	store, err := storage.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return store, nil
}

func logger() logrus.FieldLogger {
	return logrus.StandardLogger()
}
