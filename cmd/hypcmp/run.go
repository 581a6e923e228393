package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/mpataki/hypcmp/internal/benchfile"
	"github.com/mpataki/hypcmp/internal/config"
	"github.com/mpataki/hypcmp/internal/executor"
	"github.com/mpataki/hypcmp/internal/models"
	"github.com/mpataki/hypcmp/internal/objectstore"
	"github.com/mpataki/hypcmp/internal/orchestrator"
	"github.com/mpataki/hypcmp/internal/storage"
	"github.com/mpataki/hypcmp/internal/workspace"
)

type runFlags struct {
	dir       string
	output    string
	label     string
	noHistory bool
}

func (f *runFlags) flagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("run", pflag.ContinueOnError)
	fs.StringVarP(&f.dir, "dir", "C", ".", "Repository to benchmark in")
	fs.StringVarP(&f.output, "output", "o", "", "Report path (overrides the config)")
	fs.StringVar(&f.label, "label", "", "Report label (overrides the config)")
	fs.BoolVar(&f.noHistory, "no-history", false, "Do not record the session in history")
	return fs
}

func newRunCommand() *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "run <config>",
		Short: "Run the benchmarks of a config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBenchmark(cmd, args[0], flags)
		},
	}
	cmd.Flags().AddFlagSet(flags.flagSet())
	return cmd
}

func runBenchmark(cmd *cobra.Command, configPath string, flags runFlags) error {
	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	bench, err := benchfile.Load(configPath)
	if err != nil {
		return err
	}
	if abs, err := filepath.Abs(configPath); err == nil {
		configPath = abs
	}
	dir, err := filepath.Abs(flags.dir)
	if err != nil {
		return err
	}
	output := flags.output
	if output != "" {
		// -o is relative to where hypcmp was started, not to -C.
		if output, err = filepath.Abs(output); err != nil {
			return err
		}
	}

	var store *storage.Storage
	if !flags.noHistory {
		store, err = openStore()
		if err != nil {
			logger().WithError(err).Warn("History disabled")
			store = nil
		} else {
			defer store.Close()
		}
	}

	exec := executor.New(cfg.Hyperfine, dir, logger())
	if term.IsTerminal(int(os.Stdout.Fd())) {
		exec.Stdout = os.Stdout
		exec.Stderr = os.Stderr
	}

	orch := orchestrator.New(store, exec, logger())
	if bench.Publish != nil {
		pub, err := newPublisher(bench.Publish)
		if err != nil {
			return err
		}
		orch.SetPublisher(pub)
	}

	summary, err := orch.Run(cmd.Context(), bench, orchestrator.Options{
		ConfigPath: configPath,
		Dir:        dir,
		Output:     output,
		Label:      flags.label,
	})
	if summary != nil {
		fmt.Fprint(cmd.OutOrStdout(), renderSummary(summary))
	}

	var dirty *workspace.DirtyTreeError
	switch {
	case errors.As(err, &dirty):
		return fmt.Errorf("%w; commit or stash your changes first", err)
	case err != nil:
		return err
	case len(summary.Failures()) > 0 || summary.PublishErr != nil:
		return errSilent
	}
	return nil
}

func newPublisher(p *models.Publish) (*objectstore.Publisher, error) {
	cfg, err := objectstore.ConfigFromPublish(p)
	if err != nil {
		return nil, err
	}
	return objectstore.NewPublisher(cfg)
}

func newValidateCommand() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "validate <config>",
		Short: "Check a config file and show which revisions each run would use",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bench, err := benchfile.Load(args[0])
			if err != nil {
				return err
			}

			var plan []orchestrator.PlannedRun
			if bench.Versioned() {
				repo, err := workspace.Open(cmd.Context(), dir, logger())
				if err != nil {
					return err
				}
				plan = orchestrator.Plan(cmd.Context(), bench, repo, logger())
			} else {
				plan = orchestrator.Plan(cmd.Context(), bench, nil, logger())
			}

			fmt.Fprint(cmd.OutOrStdout(), renderPlan(plan))
			for _, p := range plan {
				if p.Err != nil {
					logger().WithFields(logrus.Fields{"run": p.Run.Name}).WithError(p.Err).Error("Invalid revisions")
					return errSilent
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "C", ".", "Repository to resolve revisions in")
	return cmd
}
