package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario defines a sync scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Replicas lists the replica names. Each gets its own store.
	Replicas []string `yaml:"replicas"`

	// BatchSize and PageSize override the orchestrator defaults when set.
	BatchSize int `yaml:"batch_size,omitempty"`
	PageSize  int `yaml:"page_size,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state and the recorded calls.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one scenario action. Exactly one action field is set.
type Step struct {
	Create    *CreateStep `yaml:"create,omitempty"`
	Update    *UpdateStep `yaml:"update,omitempty"`
	Delete    *TaskRef    `yaml:"delete,omitempty"`
	LocalPut  *LocalTask  `yaml:"local_put,omitempty"`
	RemotePut *RemoteTask `yaml:"remote_put,omitempty"`
	Sync      *SyncStep   `yaml:"sync,omitempty"`

	// Advance moves the shared clock, e.g. "1s" or "5m".
	Advance string `yaml:"advance,omitempty"`

	// Fault injection on the authority.
	FailPushes   int `yaml:"fail_pushes,omitempty"`
	FailPulls    int `yaml:"fail_pulls,omitempty"`
	RejectPushes int `yaml:"reject_pushes,omitempty"`

	// Expect checks the outcome of a sync step.
	Expect *SyncExpect `yaml:"expect,omitempty"`
}

// CreateStep creates a task through a replica.
type CreateStep struct {
	Replica string `yaml:"replica"`
	Title   string `yaml:"title"`
	Notes   string `yaml:"notes,omitempty"`
}

// UpdateStep changes fields of a task through a replica. Nil fields are left alone.
type UpdateStep struct {
	Replica string  `yaml:"replica"`
	ID      string  `yaml:"id"`
	Title   *string `yaml:"title,omitempty"`
	Notes   *string `yaml:"notes,omitempty"`
	Done    *bool   `yaml:"done,omitempty"`
}

// TaskRef names a task in a replica.
type TaskRef struct {
	Replica string `yaml:"replica"`
	ID      string `yaml:"id"`
}

// LocalTask is written verbatim into a replica's store, stamped with the
// current clock and never synced.
type LocalTask struct {
	Replica string `yaml:"replica"`
	ID      string `yaml:"id"`
	Title   string `yaml:"title"`
	Dirty   bool   `yaml:"dirty,omitempty"`
}

// RemoteTask is written directly into the authority, as if another client
// had pushed it at the current clock.
type RemoteTask struct {
	ID      string `yaml:"id"`
	Title   string `yaml:"title"`
	Notes   string `yaml:"notes,omitempty"`
	Done    bool   `yaml:"done,omitempty"`
	Deleted bool   `yaml:"deleted,omitempty"`
}

// SyncStep runs one session on a replica.
type SyncStep struct {
	Replica string `yaml:"replica"`
}

// SyncExpect is a subset match on a sync result. Nil fields are not checked.
type SyncExpect struct {
	Success   *bool    `yaml:"success,omitempty"`
	Pushed    *int     `yaml:"pushed,omitempty"`
	Pulled    *int     `yaml:"pulled,omitempty"`
	Conflicts []string `yaml:"conflicts,omitempty"`
	Phase     string   `yaml:"phase,omitempty"`
	Status    string   `yaml:"status,omitempty"`
}

// Assertion validates final state or recorded calls.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Replica selects the replica (local_task, unsynced_count).
	Replica string `yaml:"replica,omitempty"`

	// ID selects the task (local_task, remote_task).
	ID string `yaml:"id,omitempty"`

	// Expect is a subset match on task fields: exists, title, notes,
	// is_done, dirty, deleted, synced, conflicted.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Count is the expected number (unsynced_count, call_count).
	Count *int `yaml:"count,omitempty"`

	// Op is the call kind counted by call_count: push or pull.
	Op string `yaml:"op,omitempty"`

	// Ops is the exact sequence of call kinds (call_order).
	Ops []string `yaml:"ops,omitempty"`
}

// Assertion type constants.
const (
	AssertLocalTask     = "local_task"
	AssertRemoteTask    = "remote_task"
	AssertUnsyncedCount = "unsynced_count"
	AssertCallOrder     = "call_order"
	AssertCallCount     = "call_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and that steps
// only reference declared replicas.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Replicas) == 0 {
		return fmt.Errorf("replicas list is required and must be non-empty")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	replicas := make(map[string]bool, len(s.Replicas))
	for _, name := range s.Replicas {
		if name == "" {
			return fmt.Errorf("replica names must be non-empty")
		}
		if replicas[name] {
			return fmt.Errorf("duplicate replica %q", name)
		}
		replicas[name] = true
	}
	known := func(where, name string) error {
		if !replicas[name] {
			return fmt.Errorf("%s: unknown replica %q", where, name)
		}
		return nil
	}

	for i, step := range s.Steps {
		where := fmt.Sprintf("steps[%d]", i)
		if n := step.actions(); n != 1 {
			return fmt.Errorf("%s: exactly one action is required, got %d", where, n)
		}
		if step.Expect != nil && step.Sync == nil {
			return fmt.Errorf("%s: expect is only valid on sync steps", where)
		}
		var err error
		switch {
		case step.Create != nil:
			err = known(where, step.Create.Replica)
			if err == nil && step.Create.Title == "" {
				err = fmt.Errorf("%s: create.title is required", where)
			}
		case step.Update != nil:
			err = known(where, step.Update.Replica)
		case step.Delete != nil:
			err = known(where, step.Delete.Replica)
		case step.LocalPut != nil:
			err = known(where, step.LocalPut.Replica)
			if err == nil && step.LocalPut.ID == "" {
				err = fmt.Errorf("%s: local_put.id is required", where)
			}
		case step.RemotePut != nil:
			if step.RemotePut.ID == "" {
				err = fmt.Errorf("%s: remote_put.id is required", where)
			}
		case step.Sync != nil:
			err = known(where, step.Sync.Replica)
		case step.Advance != "":
			if d, perr := time.ParseDuration(step.Advance); perr != nil || d < 0 {
				err = fmt.Errorf("%s: invalid advance %q", where, step.Advance)
			}
		}
		if err != nil {
			return err
		}
	}

	for i, a := range s.Assertions {
		where := fmt.Sprintf("assertions[%d]", i)
		switch a.Type {
		case AssertLocalTask:
			if err := known(where, a.Replica); err != nil {
				return err
			}
			if a.ID == "" {
				return fmt.Errorf("%s: id is required", where)
			}
		case AssertRemoteTask:
			if a.ID == "" {
				return fmt.Errorf("%s: id is required", where)
			}
		case AssertUnsyncedCount:
			if err := known(where, a.Replica); err != nil {
				return err
			}
			if a.Count == nil {
				return fmt.Errorf("%s: count is required", where)
			}
		case AssertCallOrder:
			if a.Ops == nil {
				return fmt.Errorf("%s: ops is required", where)
			}
		case AssertCallCount:
			if a.Op == "" || a.Count == nil {
				return fmt.Errorf("%s: op and count are required", where)
			}
		default:
			return fmt.Errorf("%s: unknown assertion type %q", where, a.Type)
		}
	}
	return nil
}

// actions counts the action fields set on a step.
func (s Step) actions() int {
	n := 0
	for _, set := range []bool{
		s.Create != nil,
		s.Update != nil,
		s.Delete != nil,
		s.LocalPut != nil,
		s.RemotePut != nil,
		s.Sync != nil,
		s.Advance != "",
		s.FailPushes > 0,
		s.FailPulls > 0,
		s.RejectPushes > 0,
	} {
		if set {
			n++
		}
	}
	return n
}
