package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSystem_UTCMilliseconds(t *testing.T) {
	now := System{}.Now()
	assert.Equal(t, time.UTC, now.Location())
	assert.Zero(t, now.Nanosecond()%int(time.Millisecond))
}

func TestFunc(t *testing.T) {
	fixed := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	c := Func(func() time.Time { return fixed })
	assert.Equal(t, fixed, c.Now())
}
