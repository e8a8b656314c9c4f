package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"github.com/roach88/tasksync/internal/task"
)

var dueParser = newDueParser()

func newDueParser() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}

// parseDue accepts RFC 3339, a plain date (midnight UTC), or an English
// phrase such as "tomorrow 5pm" relative to now.
func parseDue(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty due date")
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return task.Truncate(t), nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.UTC(), nil
	}

	r, err := dueParser.Parse(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing due date %q: %w", s, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("unrecognized due date %q", s)
	}
	return task.Truncate(r.Time), nil
}
