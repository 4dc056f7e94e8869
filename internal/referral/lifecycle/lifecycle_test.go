package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestEvaluate(t *testing.T) {
	today := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name     string
		install  *time.Time
		verified bool
		want     Status
	}{
		{name: "no date", install: nil, verified: false, want: StatusPending},
		{name: "no date verified", install: nil, verified: true, want: StatusPending},
		{name: "future unverified", install: date(2024, 3, 10), verified: false, want: StatusWaitForInstall},
		{name: "future verified", install: date(2024, 3, 10), verified: true, want: StatusComplete},
		{name: "today", install: date(2024, 3, 1), verified: false, want: StatusComplete},
		{name: "past", install: date(2024, 1, 15), verified: false, want: StatusComplete},
		{name: "tomorrow", install: date(2024, 3, 2), verified: false, want: StatusWaitForInstall},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Evaluate(tc.install, tc.verified, today))
		})
	}
}

func TestEvaluateUsesCalendarDay(t *testing.T) {
	chicago, err := time.LoadLocation("America/Chicago")
	assert.NoError(t, err)

	// Installation at 23:30 local on March 1st is still "today" all day March 1st.
	install := time.Date(2024, 3, 1, 23, 30, 0, 0, chicago)
	morning := time.Date(2024, 3, 1, 0, 0, 0, 0, chicago)
	assert.Equal(t, StatusComplete, Evaluate(&install, false, morning))

	// Stored in UTC it is already March 2nd, but the business day is March 1st.
	installUTC := install.UTC()
	assert.Equal(t, StatusComplete, Evaluate(&installUTC, false, morning))

	dayBefore := time.Date(2024, 2, 29, 0, 0, 0, 0, chicago)
	assert.Equal(t, StatusWaitForInstall, Evaluate(&install, false, dayBefore))
}

func TestDaysBetween(t *testing.T) {
	chicago, err := time.LoadLocation("America/Chicago")
	assert.NoError(t, err)

	start := time.Date(2024, 3, 9, 15, 0, 0, 0, chicago)
	end := time.Date(2024, 3, 11, 1, 0, 0, 0, chicago)
	// Spans the spring-forward change.
	assert.Equal(t, 2, DaysBetween(start, end, chicago))
	assert.Equal(t, 0, DaysBetween(start, start, time.UTC))
	assert.Equal(t, 10, DaysBetween(*date(2024, 1, 1), *date(2024, 1, 11), time.UTC))
}

func TestParseStatus(t *testing.T) {
	s, ok := ParseStatus("wait_for_install")
	assert.True(t, ok)
	assert.Equal(t, StatusWaitForInstall, s)
	_, ok = ParseStatus("done")
	assert.False(t, ok)
}
