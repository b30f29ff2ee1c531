package domain

import (
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

const (
	// DateLayout is the calendar date format used in records and provider queries.
	DateLayout = "2006-01-02"

	// RefreshLayout is the layout of the stored last refresh time.
	RefreshLayout = "2006-01-02 15:04:05.000000"
)

// TimeFromMillis converts a provider millisecond epoch into a UTC time.
func TimeFromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// DateFromMillis renders the calendar date of ms in loc. A nil loc means time.Local.
func DateFromMillis(ms int64, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return time.UnixMilli(ms).In(loc).Format(DateLayout)
}

// UTCDateFromMillis returns the UTC calendar date of ms.
func UTCDateFromMillis(ms int64) civil.Date {
	return civil.DateOf(TimeFromMillis(ms))
}

// ParseDate validates a YYYY-MM-DD string.
func ParseDate(s string) (civil.Date, error) {
	d, err := civil.ParseDate(s)
	if err != nil {
		return civil.Date{}, fmt.Errorf("ParseDate: %q is not YYYY-MM-DD: %w", s, ErrInvalidArgument)
	}
	return d, nil
}

// ParseRefreshTime parses a stored "YYYY-MM-DD HH:MM:SS[.fraction]" string as UTC.
// Any number of fractional digits is accepted, including none.
func ParseRefreshTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"2006-01-02 15:04:05.999999999", "2006-01-02 15:04:05", time.RFC3339Nano} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("ParseRefreshTime: %q: %w", s, ErrInvalidArgument)
}

// FormatRefreshTime renders t in the stored last refresh layout, in UTC.
func FormatRefreshTime(t time.Time) string {
	return t.UTC().Format(RefreshLayout)
}
