package task

import "fmt"

// Filter selects tasks by completion state.
type Filter string

const (
	FilterAll       Filter = "all"
	FilterPending   Filter = "pending"
	FilterCompleted Filter = "completed"
)

// ParseFilter parses a filter name. The empty string means FilterAll.
func ParseFilter(s string) (Filter, error) {
	switch Filter(s) {
	case "", FilterAll:
		return FilterAll, nil
	case FilterPending, FilterCompleted:
		return Filter(s), nil
	}
	return "", &ValidationError{Field: "filter", Reason: fmt.Sprintf("unknown filter %q (want all, pending or completed)", s)}
}

// ListOptions controls ListTasks. A zero Limit means no limit.
type ListOptions struct {
	Filter Filter
	Limit  int
	Offset int
}
