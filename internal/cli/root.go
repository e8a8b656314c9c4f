package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/tasksync/internal/clock"
	"github.com/roach88/tasksync/internal/config"
	"github.com/roach88/tasksync/internal/logging"
	"github.com/roach88/tasksync/internal/task"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigFile string
	DB         string
	Remote     string

	// Config and Logger are filled in before any subcommand runs.
	Config config.Config
	Logger *slog.Logger

	// Clock and IDs override the time source and task id generator (for testing).
	// If nil, the system clock and UUIDv7 ids are used.
	Clock clock.Clock
	IDs   task.IDGenerator

	closeLog func() error
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the tasksync CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasksync",
		Short: "tasksync - offline-first task list",
		Long: `An offline-first task list with a local SQLite replica.

Tasks are created and edited locally without a network connection.
"tasksync sync" pushes local changes to the remote authority and pulls
changes made elsewhere, keeping newer local edits when both sides changed.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Validate format flag
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return opts.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if opts.closeLog != nil {
				return opts.closeLog()
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "config file (default: ./tasksync.yaml or ~/.config/tasksync/tasksync.yaml)")
	cmd.PersistentFlags().StringVar(&opts.DB, "db", "", "path to SQLite database (default: tasksync.db)")
	cmd.PersistentFlags().StringVar(&opts.Remote, "remote", "", "base URL of the remote authority")

	// Add subcommands
	cmd.AddCommand(NewAddCommand(opts))
	cmd.AddCommand(NewEditCommand(opts))
	cmd.AddCommand(NewDoneCommand(opts))
	cmd.AddCommand(NewRemoveCommand(opts))
	cmd.AddCommand(NewShowCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewConflictsCommand(opts))
	cmd.AddCommand(NewPurgeCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))

	return cmd
}

// setup loads configuration and builds the logger.
func (opts *RootOptions) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(config.LoadOptions{
		File:  opts.ConfigFile,
		Flags: cmd.Flags(),
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	opts.Config = cfg

	level := cfg.Log.Level
	if opts.Verbose {
		level = "debug"
	}
	logger, closeLog, err := logging.New(cmd.ErrOrStderr(), logging.Options{
		Level:      level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to configure logging", err)
	}
	opts.Logger = logger
	opts.closeLog = closeLog
	return nil
}

func (opts *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}
}

func (opts *RootOptions) clock() clock.Clock {
	if opts.Clock != nil {
		return opts.Clock
	}
	return clock.System{}
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
