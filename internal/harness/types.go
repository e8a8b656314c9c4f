package harness

import "github.com/roach88/tasksync/internal/remote/memory"

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every sync expectation and assertion held.
	Pass bool `json:"pass"`

	// Calls are the authority calls in the order they were received.
	// Used for call assertions and golden comparison.
	Calls []memory.Call `json:"calls"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Calls:  []memory.Call{},
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
