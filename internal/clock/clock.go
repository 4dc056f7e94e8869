package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock abstracts wall time so lifecycle and metrics code can be pinned in tests.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// Today returns midnight of now in loc.
func Today(c Clock, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	now := c.Now().In(loc)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
}

var Module = fx.Module("clock",
	fx.Provide(func() Clock { return SystemClock{} }),
)
