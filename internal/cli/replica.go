package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/roach88/tasksync/internal/engine"
	"github.com/roach88/tasksync/internal/remote/httpgw"
	"github.com/roach88/tasksync/internal/replica"
	"github.com/roach88/tasksync/internal/store"
)

// errSyncLocked is returned when another process holds the sync lock.
var errSyncLocked = errors.New("another sync is in progress")

// openReplica opens the configured database and, when a remote is
// configured, wires the sync orchestrator. The returned close func must be
// called when the command finishes.
func openReplica(ctx context.Context, opts *RootOptions) (*replica.Replica, func(), error) {
	cfg := opts.Config
	storeOpts := []store.Option{store.WithClock(opts.clock())}
	if opts.IDs != nil {
		storeOpts = append(storeOpts, store.WithIDGenerator(opts.IDs))
	}

	opts.Logger.Debug("opening database", "path", cfg.DB)
	st, err := store.Open(cfg.DB, storeOpts...)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	closeStore := func() {
		if closeErr := st.Close(); closeErr != nil {
			opts.Logger.Error("error closing database", "error", closeErr)
		}
	}

	replicaOpts := []replica.Option{
		replica.WithClock(opts.clock()),
		replica.WithLogger(opts.Logger),
	}
	if cfg.Remote.URL != "" {
		gw, err := httpgw.New(cfg.Remote.URL, httpgw.WithTimeout(cfg.Remote.Timeout))
		if err != nil {
			closeStore()
			return nil, nil, WrapExitError(ExitCommandError, "invalid remote", err)
		}
		orch := engine.New(st, gw,
			engine.WithClock(opts.clock()),
			engine.WithBatchSize(cfg.Sync.BatchSize),
			engine.WithPageSize(cfg.Sync.PageSize),
			engine.WithRetryPolicy(cfg.Sync.RetryPolicy()),
			engine.WithLogger(opts.Logger),
		)
		replicaOpts = append(replicaOpts, replica.WithOrchestrator(orch))
	}

	r := replica.New(st, replicaOpts...)
	if err := r.Init(ctx); err != nil {
		closeStore()
		return nil, nil, WrapExitError(ExitCommandError, "failed to read database", err)
	}
	// The CLI treats a configured remote as reachable; failures surface
	// from the sync session itself.
	r.SetOnline(cfg.Remote.URL != "")
	return r, closeStore, nil
}

// lockSync takes the cross-process sync lock next to the database.
func lockSync(dbPath string) (unlock func(), err error) {
	lock := flock.New(dbPath + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring sync lock: %w", err)
	}
	if !locked {
		return nil, errSyncLocked
	}
	return func() { _ = lock.Unlock() }, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
