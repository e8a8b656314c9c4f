package harness

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/roach88/tasksync/internal/remote/memory"
	"github.com/roach88/tasksync/internal/store"
	"github.com/roach88/tasksync/internal/task"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string        // Assertion type for categorization
	Expected string        // Human-readable expected outcome
	Actual   string        // Human-readable actual outcome
	Calls    []memory.Call // Authority calls for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Calls) > 0 {
		fmt.Fprintf(&buf, "\nCalls:\n")
		for i, c := range e.Calls {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, describeCall(c))
		}
	}
	return buf.String()
}

func describeCall(c memory.Call) string {
	switch {
	case c.Error != "":
		return fmt.Sprintf("%s error=%q", c.Op, c.Error)
	case c.Op == "pull":
		return fmt.Sprintf("pull since=%s returned=%v", c.ChangedSince, c.Returned)
	default:
		return fmt.Sprintf("push upserts=%v deletes=%v conflicted=%v", c.Upserts, c.Deletes, c.Conflicted)
	}
}

func (h *Harness) evaluate(ctx context.Context, a Assertion, calls []memory.Call) error {
	switch a.Type {
	case AssertLocalTask:
		t, err := h.replicas[a.Replica].Store().LookupTask(ctx, a.ID)
		if errors.Is(err, store.ErrNotFound) {
			return matchTask(a, nil, calls)
		}
		if err != nil {
			return err
		}
		return matchTask(a, &t, calls)

	case AssertRemoteTask:
		t, ok := h.authority.Get(a.ID)
		if !ok {
			return matchTask(a, nil, calls)
		}
		return matchTask(a, &t, calls)

	case AssertUnsyncedCount:
		n, err := h.replicas[a.Replica].Store().CountDirty(ctx)
		if err != nil {
			return err
		}
		if n != *a.Count {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%d unsynced in %s", *a.Count, a.Replica),
				Actual:   fmt.Sprintf("%d", n),
			}
		}
		return nil

	case AssertCallOrder:
		return assertCallOrder(calls, a)

	case AssertCallCount:
		return assertCallCount(calls, a)
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

// matchTask checks the expected fields of a record (subset semantics).
// A nil t means the record does not exist; only "exists: false" matches it.
func matchTask(a Assertion, t *task.Task, calls []memory.Call) error {
	exists := t != nil
	if want, ok := a.Expect["exists"]; ok {
		if want != exists {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%s exists=%v", a.ID, want),
				Actual:   fmt.Sprintf("exists=%t", exists),
				Calls:    calls,
			}
		}
	}
	if !exists {
		if _, ok := a.Expect["exists"]; ok {
			return nil
		}
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s to exist", a.ID),
			Actual:   "not found",
			Calls:    calls,
		}
	}

	actual := map[string]any{
		"title":      t.Title,
		"notes":      t.Notes,
		"is_done":    t.IsDone,
		"dirty":      t.Dirty,
		"deleted":    t.Deleted,
		"synced":     t.Synced(),
		"conflicted": t.Conflicted(),
	}

	keys := make([]string, 0, len(a.Expect))
	for k := range a.Expect {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if k == "exists" {
			continue
		}
		got, ok := actual[k]
		if !ok {
			return fmt.Errorf("unknown field %q", k)
		}
		if want := a.Expect[k]; want != got {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%s.%s=%v", a.ID, k, want),
				Actual:   fmt.Sprintf("%v", got),
				Calls:    calls,
			}
		}
	}
	return nil
}

// assertCallOrder checks the exact sequence of call kinds.
func assertCallOrder(calls []memory.Call, a Assertion) error {
	ops := make([]string, len(calls))
	for i, c := range calls {
		ops[i] = c.Op
	}
	if !slices.Equal(ops, a.Ops) {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%v", a.Ops),
			Actual:   fmt.Sprintf("%v", ops),
			Calls:    calls,
		}
	}
	return nil
}

// assertCallCount checks how many calls of one kind the authority received.
func assertCallCount(calls []memory.Call, a Assertion) error {
	n := 0
	for _, c := range calls {
		if c.Op == a.Op {
			n++
		}
	}
	if n != *a.Count {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%d %s calls", *a.Count, a.Op),
			Actual:   fmt.Sprintf("%d", n),
			Calls:    calls,
		}
	}
	return nil
}
