// Package cmd provides the CLI commands for vexus.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/vexus/internal/config"
	verrors "github.com/Aman-CERP/vexus/internal/errors"
	"github.com/Aman-CERP/vexus/internal/logging"
	"github.com/Aman-CERP/vexus/internal/profiling"
	"github.com/Aman-CERP/vexus/pkg/version"
)

// globalFlags are the persistent flags shared by every subcommand.
type globalFlags struct {
	dir        string
	keyed      string
	dimensions int
	capacity   int
	debug      bool
	profile    profiling.Options
}

// NewRootCmd creates the root command for the vexus CLI.
func NewRootCmd() *cobra.Command {
	flags := &globalFlags{}
	var loggingCleanup func()
	var stopProfile func() error

	cmd := &cobra.Command{
		Use:   "vexus",
		Short: "Embedded ANN vector store with durable snapshots",
		Long: `vexus stores float32 embeddings in an HNSW index keyed by string tags
or numeric labels, searches them by similarity, and persists them as a
crash-safer snapshot. It can rebuild an index from vectors held in a
SQLite database.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate("vexus version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&flags.dir, "dir", ".vexus", "Data directory holding the index and mapping")
	cmd.PersistentFlags().StringVar(&flags.keyed, "keyed", "", "Store variant: tag or id (default from config: tag)")
	cmd.PersistentFlags().IntVar(&flags.dimensions, "dimensions", 0, "Vector dimension (required when creating an index)")
	cmd.PersistentFlags().IntVar(&flags.capacity, "capacity", 0, "Initial or minimum capacity (default from config)")
	cmd.PersistentFlags().BoolVar(&flags.debug, "debug", false, "Enable debug logging to ~/.vexus/logs/")
	cmd.PersistentFlags().StringVar(&flags.profile.CPU, "cpuprofile", "", "Write a CPU profile to this file")
	cmd.PersistentFlags().StringVar(&flags.profile.Heap, "memprofile", "", "Write a heap profile to this file on exit")
	cmd.PersistentFlags().StringVar(&flags.profile.Trace, "trace", "", "Write an execution trace to this file")

	cmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		cleanup, err := setupLogging(cmd, flags)
		if err != nil {
			return err
		}
		loggingCleanup = cleanup

		if flags.profile.Enabled() {
			stop, err := profiling.Start(flags.profile)
			if err != nil {
				return fmt.Errorf("failed to start profiling: %w", err)
			}
			stopProfile = stop
		}
		return nil
	}
	cmd.PersistentPostRunE = func(_ *cobra.Command, _ []string) error {
		var err error
		if stopProfile != nil {
			err = stopProfile()
			stopProfile = nil
		}
		if loggingCleanup != nil {
			loggingCleanup()
			loggingCleanup = nil
		}
		return err
	}

	cmd.AddCommand(newCreateCmd(flags))
	cmd.AddCommand(newUpsertCmd(flags))
	cmd.AddCommand(newAddCmd(flags))
	cmd.AddCommand(newAddBatchCmd(flags))
	cmd.AddCommand(newSearchCmd(flags))
	cmd.AddCommand(newRemoveCmd(flags))
	cmd.AddCommand(newGetCmd(flags))
	cmd.AddCommand(newStatsCmd(flags))
	cmd.AddCommand(newSaveCmd(flags))
	cmd.AddCommand(newRecoverCmd(flags))
	cmd.AddCommand(newDoctorCmd(flags))
	cmd.AddCommand(newConfigCmd(flags))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// setupLogging installs the default slog logger. With --debug, JSON logs go
// to the configured file; otherwise text logs go to stderr at the
// configured level. A broken config falls back to defaults here and is
// reported when the command loads it.
func setupLogging(cmd *cobra.Command, flags *globalFlags) (func(), error) {
	cfg, err := config.Load(flags.dir)
	if err != nil {
		cfg = config.NewConfig()
	}

	if !flags.debug {
		slog.SetDefault(logging.NewConsole(cmd.ErrOrStderr(), cfg.Logging.Level))
		return func() {}, nil
	}

	logCfg := cfg.LoggingConfig(true)
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to setup debug logging: %w", err)
	}
	slog.SetDefault(logger)
	slog.Info("Debug logging enabled",
		slog.String("log_file", logCfg.FilePath),
		slog.String("version", version.Version))
	return cleanup, nil
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	root := NewRootCmd()
	c, err := root.ExecuteC()
	if err == nil {
		return 0
	}
	if c == nil {
		c = root
	}
	return reportError(c, err)
}

// reportError writes err to the command's stderr, as JSON when the failing
// command was run with --json, and returns 2 for fatal errors, else 1.
func reportError(c *cobra.Command, err error) int {
	slog.Debug("command_failed",
		append([]any{"command", c.CommandPath()}, verrors.LogAttrs(err)...)...)

	if wantsJSON(c) {
		if data, jerr := verrors.FormatJSON(err); jerr == nil {
			_, _ = fmt.Fprintln(c.ErrOrStderr(), string(data))
			return exitCode(err)
		}
	}
	_, _ = fmt.Fprint(c.ErrOrStderr(), verrors.FormatForCLI(err))
	return exitCode(err)
}

func wantsJSON(c *cobra.Command) bool {
	f := c.Flags().Lookup("json")
	return f != nil && f.Value.String() == "true"
}

func exitCode(err error) int {
	if verrors.IsFatal(err) {
		return 2
	}
	return 1
}
