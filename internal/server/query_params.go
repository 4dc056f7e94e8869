package server

import (
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

var (
	errInvalidSnowflakeID = errors.New("invalid_snowflake_id")
	errInvalidDate        = errors.New("invalid_date")
)

// parseSnowflakeID rejects zero, which no row ever carries.
func parseSnowflakeID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id <= 0 {
		return 0, errInvalidSnowflakeID
	}
	return id, nil
}

func parseOptionalSnowflakeID(value *string) (*snowflake.ID, error) {
	if value == nil || strings.TrimSpace(*value) == "" {
		return nil, nil
	}
	id, err := parseSnowflakeID(*value)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// parseDate reads an installation date. A bare calendar date is midnight in
// the business location; a full RFC 3339 timestamp is taken as given.
func parseDate(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if day, err := time.ParseInLocation(time.DateOnly, value, loc); err == nil {
		return day, nil
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts, nil
	}
	return time.Time{}, errInvalidDate
}

// parseOptionalTime reads a filter bound. With endOfDay, a bare date covers
// the whole business day so "end_at=2024-03-01" includes events on the 1st.
func parseOptionalTime(value string, loc *time.Location, endOfDay bool) (*time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	if ts, err := time.Parse(time.RFC3339, strings.TrimSpace(value)); err == nil {
		return &ts, nil
	}
	day, err := parseDate(value, loc)
	if err != nil {
		return nil, err
	}
	if endOfDay {
		day = day.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return &day, nil
}
