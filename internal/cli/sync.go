package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/tasksync/internal/replica"
	"github.com/roach88/tasksync/internal/store"
	"github.com/roach88/tasksync/internal/task"
)

// SyncOptions holds flags for the sync command.
type SyncOptions struct {
	*RootOptions
	Timeout   time.Duration
	BatchSize int
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Push local changes and pull remote changes",
		Long: `Run one sync session against the remote authority.

Local changes are pushed in batches, then changes made elsewhere are pulled
page by page. When both sides changed a task, the newer local edit is kept
and the task is reported as a conflict.

Example:
  tasksync sync --remote http://localhost:8080`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(opts, cmd)
		},
	}

	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 30*time.Second, "per-request timeout")
	cmd.Flags().IntVar(&opts.BatchSize, "batch-size", 50, "records per push request")

	return cmd
}

func runSync(opts *SyncOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx := commandContext(cmd)
	cfg := opts.Config

	if cfg.Remote.URL == "" {
		return formatter.Fail("cannot sync", replica.ErrNoRemote)
	}

	unlock, err := lockSync(cfg.DB)
	if err != nil {
		return formatter.Fail("cannot sync", err)
	}
	defer unlock()

	r, closeFn, err := openReplica(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer closeFn()

	formatter.VerboseLog("syncing %s with %s", cfg.DB, cfg.Remote.URL)
	res, err := r.Sync(ctx)
	if err != nil {
		return formatter.Fail("sync failed", err)
	}
	return formatter.Success(newSyncView(res, r.State()))
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "status",
		Short:         "Show replica and sync status",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(rootOpts, cmd)
		},
	}
}

func runStatus(opts *RootOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx := commandContext(cmd)
	r, closeFn, err := openReplica(ctx, opts)
	if err != nil {
		return err
	}
	defer closeFn()

	stats, err := r.Stats(ctx)
	if err != nil {
		return formatter.Fail("failed to read status", err)
	}
	view := statusView{
		Database: opts.Config.DB,
		Remote:   opts.Config.Remote.URL,
		Stats:    stats,
		State:    r.State(),
	}
	for key, dst := range map[string]*string{
		store.MetaLastPullAt: &view.LastPullAt,
		store.MetaLastPushAt: &view.LastPushAt,
	} {
		at, err := r.Store().MetaTime(ctx, key)
		if err != nil {
			return formatter.Fail("failed to read status", err)
		}
		*dst = task.FormatTime(at)
	}
	return formatter.Success(view)
}

// NewConflictsCommand creates the conflicts command.
func NewConflictsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "conflicts",
		Short: "List tasks edited locally since their last sync",
		Long: `List tasks that were synced before and have been edited locally since.
They are pushed on the next sync; when the authority refuses the push or holds
an older version, the local edit is kept and the task stays listed here.

Tasks that have never been synced are not listed, even when the authority
refused them because it already holds a task with the same id. "tasksync sync"
reports those ids among its conflicts.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := rootOpts.formatter(cmd)
			ctx := commandContext(cmd)
			r, closeFn, err := openReplica(ctx, rootOpts)
			if err != nil {
				return err
			}
			defer closeFn()

			tasks, err := r.Conflicts(ctx)
			if err != nil {
				return formatter.Fail("failed to list conflicts", err)
			}
			if tasks == nil {
				tasks = []task.Task{}
			}
			return formatter.Success(taskList(tasks))
		},
	}
}

// PurgeOptions holds flags for the purge command.
type PurgeOptions struct {
	*RootOptions
	OlderThan time.Duration
}

// NewPurgeCommand creates the purge command.
func NewPurgeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PurgeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Remove old synced deletions",
		Long: `Physically remove deleted tasks whose deletion has already been synced.
Deletions that still need a push are never removed.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPurge(opts, cmd)
		},
	}

	cmd.Flags().DurationVar(&opts.OlderThan, "older-than", 0, "retention (default: tombstone.retention, 720h)")

	return cmd
}

func runPurge(opts *PurgeOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx := commandContext(cmd)

	retention := opts.OlderThan
	if retention <= 0 {
		retention = opts.Config.Tombstone.Retention
	}

	r, closeFn, err := openReplica(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer closeFn()

	n, err := r.Purge(ctx, retention)
	if err != nil {
		return formatter.Fail("failed to purge", err)
	}
	if formatter.Format == "json" {
		return formatter.Success(map[string]any{"purged": n, "retention": retention.String()})
	}
	return formatter.Success(fmt.Sprintf("Purged %d tombstone(s) older than %s", n, retention))
}
