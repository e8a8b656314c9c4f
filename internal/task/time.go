package task

import (
	"fmt"
	"time"
)

// TimeLayout is the ISO-8601 rendering used for every stored and transmitted
// timestamp. Fixed width and UTC, so lexical order equals time order.
const TimeLayout = "2006-01-02T15:04:05.000Z"

// Epoch is the default pull cursor.
var Epoch = time.Unix(0, 0).UTC()

// Truncate converts t to UTC with millisecond precision.
func Truncate(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

// FormatTime renders t with TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a TimeLayout timestamp. Any RFC 3339 timestamp is accepted
// and normalized to UTC milliseconds.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return Truncate(t), nil
}
