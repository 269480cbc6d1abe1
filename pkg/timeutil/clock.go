package timeutil

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ClockTime is a wall-clock time of day with minute precision, stored as
// minutes since midnight. All schedule arithmetic happens on ClockTime values
// in the provider location's implied timezone; no timezone conversion is done
// here.
type ClockTime int

// ParseClock parses "HH:MM" or "HH:MM:SS" into a ClockTime. Seconds are
// accepted because Postgres renders TIME columns with them, but they are
// discarded.
func ParseClock(s string) (ClockTime, error) {
	var h, m, sec int
	if _, err := fmt.Sscanf(s, "%d:%d:%d", &h, &m, &sec); err != nil {
		if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
			return 0, fmt.Errorf("invalid clock time %q: expected HH:MM", s)
		}
	}
	// 24:00 is allowed as an exclusive end-of-day bound, matching Postgres TIME.
	if h < 0 || h > 24 || m < 0 || m > 59 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("invalid clock time %q: out of range", s)
	}
	return ClockTime(h*60 + m), nil
}

// MustClock is a fixture helper that panics on invalid input.
func MustClock(s string) ClockTime {
	ct, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return ct
}

// String formats the time as "HH:MM".
func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// Add returns the clock time shifted forward by the given number of minutes.
func (c ClockTime) Add(minutes int) ClockTime {
	return c + ClockTime(minutes)
}

// Before reports whether c is earlier than other.
func (c ClockTime) Before(other ClockTime) bool { return c < other }

// After reports whether c is later than other.
func (c ClockTime) After(other ClockTime) bool { return c > other }

// Minutes returns the minutes-since-midnight value.
func (c ClockTime) Minutes() int { return int(c) }

// Overlaps reports whether the half-open intervals [aStart, aEnd) and
// [bStart, bEnd) share any time. Intervals that merely touch do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd ClockTime) bool {
	return aStart < bEnd && aEnd > bStart
}

// Scan implements sql.Scanner. Postgres TIME columns arrive as time.Time,
// []byte or string depending on driver mode.
func (c *ClockTime) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*c = 0
		return nil
	case time.Time:
		*c = ClockTime(v.Hour()*60 + v.Minute())
		return nil
	case []byte:
		ct, err := ParseClock(string(v))
		if err != nil {
			return err
		}
		*c = ct
		return nil
	case string:
		ct, err := ParseClock(v)
		if err != nil {
			return err
		}
		*c = ct
		return nil
	default:
		return fmt.Errorf("cannot scan %T into ClockTime", src)
	}
}

// Value implements driver.Valuer, rendering a Postgres-compatible TIME literal.
func (c ClockTime) Value() (driver.Value, error) {
	return fmt.Sprintf("%02d:%02d:00", int(c)/60, int(c)%60), nil
}

// MarshalJSON renders the time as "HH:MM".
func (c ClockTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON parses "HH:MM" or "HH:MM:SS".
func (c *ClockTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	ct, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = ct
	return nil
}
