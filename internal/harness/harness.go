package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/roach88/tasksync/internal/engine"
	"github.com/roach88/tasksync/internal/remote/memory"
	"github.com/roach88/tasksync/internal/replica"
	"github.com/roach88/tasksync/internal/retry"
	"github.com/roach88/tasksync/internal/store"
	"github.com/roach88/tasksync/internal/task"
	"github.com/roach88/tasksync/internal/testutil"
)

// noWait skips retry delays so failing scenarios finish immediately.
var noWait = retry.SleeperFunc(func(context.Context, time.Duration) error { return nil })

// Harness is the scenario execution environment: named replicas, the
// authority they share and the clock everything reads.
type Harness struct {
	replicas  map[string]*replica.Replica
	authority *memory.Authority
	clock     *testutil.FixedClock
	logger    *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against fresh in-memory databases. The returned error
// covers setup problems and step errors that are not sync failures; sync
// outcomes and assertion failures are reported through Result.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	h, cleanup, err := newHarness(scenario)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.runStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}
	result.Calls = h.authority.Calls()

	for i, a := range scenario.Assertions {
		if err := h.evaluate(ctx, a, result.Calls); err != nil {
			result.AddError(fmt.Sprintf("assertion %d (%s): %v", i, a.Type, err))
		}
	}
	return result, nil
}

func newHarness(scenario *Scenario) (*Harness, func(), error) {
	clk := testutil.NewFixedClock(testutil.DefaultStart)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := &Harness{
		replicas:  make(map[string]*replica.Replica, len(scenario.Replicas)),
		authority: memory.New(memory.WithClock(clk)),
		clock:     clk,
		logger:    logger,
	}

	var stores []*store.Store
	cleanup := func() {
		for _, s := range stores {
			s.Close()
		}
	}

	for _, name := range scenario.Replicas {
		st, err := store.Open(":memory:",
			store.WithClock(clk),
			store.WithIDGenerator(testutil.NewSequenceGenerator(name)),
		)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to open store for %s: %w", name, err)
		}
		stores = append(stores, st)

		orch := engine.New(st, h.authority,
			engine.WithClock(clk),
			engine.WithSleeper(noWait),
			engine.WithSessionIDs(testutil.NewSequenceGenerator(name+"-session")),
			engine.WithBatchSize(scenario.BatchSize),
			engine.WithPageSize(scenario.PageSize),
			engine.WithLogger(logger.With("replica", name)),
		)
		r := replica.New(st,
			replica.WithOrchestrator(orch),
			replica.WithClock(clk),
			replica.WithLogger(logger),
		)
		if err := r.Init(context.Background()); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to init %s: %w", name, err)
		}
		r.SetOnline(true)
		h.replicas[name] = r
	}
	return h, cleanup, nil
}

func (h *Harness) runStep(ctx context.Context, i int, step Step, result *Result) error {
	switch {
	case step.Create != nil:
		_, err := h.replicas[step.Create.Replica].CreateTask(ctx, task.CreateInput{
			Title: step.Create.Title,
			Notes: step.Create.Notes,
		})
		return err

	case step.Update != nil:
		var in task.UpdateInput
		if step.Update.Title != nil {
			in.Title = task.Some(*step.Update.Title)
		}
		if step.Update.Notes != nil {
			in.Notes = task.Some(*step.Update.Notes)
		}
		if step.Update.Done != nil {
			in.IsDone = task.Some(*step.Update.Done)
		}
		_, err := h.replicas[step.Update.Replica].UpdateTask(ctx, step.Update.ID, in)
		return err

	case step.Delete != nil:
		ok, err := h.replicas[step.Delete.Replica].DeleteTask(ctx, step.Delete.ID)
		if err == nil && !ok {
			err = fmt.Errorf("delete %s: no such task", step.Delete.ID)
		}
		return err

	case step.LocalPut != nil:
		now := task.Truncate(h.clock.Now())
		r := h.replicas[step.LocalPut.Replica]
		if err := r.Store().UpsertFromRemote(ctx, task.Task{
			ID:        step.LocalPut.ID,
			Title:     step.LocalPut.Title,
			CreatedAt: now,
			UpdatedAt: now,
			Dirty:     step.LocalPut.Dirty,
		}); err != nil {
			return err
		}
		return r.Init(ctx)

	case step.RemotePut != nil:
		now := task.Truncate(h.clock.Now())
		h.authority.Put(task.Task{
			ID:         step.RemotePut.ID,
			Title:      step.RemotePut.Title,
			Notes:      step.RemotePut.Notes,
			IsDone:     step.RemotePut.Done,
			Deleted:    step.RemotePut.Deleted,
			CreatedAt:  now,
			UpdatedAt:  now,
			LastSyncAt: &now,
		})
		return nil

	case step.Sync != nil:
		r := h.replicas[step.Sync.Replica]
		res, err := r.Sync(ctx)
		if err != nil && engine.IsAlreadyInProgress(err) {
			return err
		}
		if step.Expect != nil {
			for _, msg := range checkSync(step.Expect, res, r) {
				result.AddError(fmt.Sprintf("step %d (sync %s): %s", i, step.Sync.Replica, msg))
			}
		}
		return nil

	case step.Advance != "":
		d, err := time.ParseDuration(step.Advance)
		if err != nil {
			return err
		}
		h.clock.Advance(d)
		return nil

	case step.FailPushes > 0:
		h.authority.FailNextPushes(step.FailPushes)
		return nil

	case step.FailPulls > 0:
		h.authority.FailNextPulls(step.FailPulls)
		return nil

	case step.RejectPushes > 0:
		h.authority.RejectNextPushes(step.RejectPushes)
		return nil
	}
	return fmt.Errorf("empty step")
}

// checkSync compares a sync result with its expectation and returns one
// message per mismatch.
func checkSync(want *SyncExpect, got engine.Result, r *replica.Replica) []string {
	var errs []string
	if want.Success != nil && *want.Success != got.Success {
		errs = append(errs, fmt.Sprintf("success: expected %t, got %t (err: %v)", *want.Success, got.Success, got.Err))
	}
	if want.Pushed != nil && *want.Pushed != got.PushedCount {
		errs = append(errs, fmt.Sprintf("pushed: expected %d, got %d", *want.Pushed, got.PushedCount))
	}
	if want.Pulled != nil && *want.Pulled != got.PulledCount {
		errs = append(errs, fmt.Sprintf("pulled: expected %d, got %d", *want.Pulled, got.PulledCount))
	}
	if want.Conflicts != nil && !slices.Equal(want.Conflicts, got.ConflictedIDs) {
		errs = append(errs, fmt.Sprintf("conflicts: expected %v, got %v", want.Conflicts, got.ConflictedIDs))
	}
	if want.Phase != "" {
		phase, ok := engine.PhaseOf(got.Err)
		if !ok || string(phase) != want.Phase {
			errs = append(errs, fmt.Sprintf("phase: expected %s, got %v", want.Phase, got.Err))
		}
	}
	if want.Status != "" {
		if status := r.State().Status; string(status) != want.Status {
			errs = append(errs, fmt.Sprintf("status: expected %s, got %s", want.Status, status))
		}
	}
	return errs
}
