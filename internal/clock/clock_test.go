package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTodayUsesLocation(t *testing.T) {
	// 03:00 UTC on the 2nd is still the 1st in Chicago.
	c := NewFakeClock(time.Date(2024, 3, 2, 3, 0, 0, 0, time.UTC))
	chicago, err := time.LoadLocation("America/Chicago")
	assert.NoError(t, err)

	today := Today(c, chicago)
	assert.Equal(t, 1, today.Day())
	assert.Equal(t, 0, today.Hour())

	assert.Equal(t, 2, Today(c, nil).Day())
}

func TestFakeClockAdvance(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewFakeClock(start)
	c.Advance(36 * time.Hour)
	assert.Equal(t, start.Add(36*time.Hour), c.Now())
}
