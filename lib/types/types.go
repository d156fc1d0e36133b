// Package types holds the nullable option value types. They follow the
// conventions of gopkg.in/guregu/null.v3, so an unset value stays
// distinguishable from a zero one while configs are layered.
package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration is a time.Duration that is written as a human readable string and
// read from either a string or a number of milliseconds.
type Duration time.Duration

func (d Duration) String() string {
	return time.Duration(d).String()
}

func parseMillis(s string) (time.Duration, bool) {
	ms, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return time.Duration(ms * float64(time.Millisecond)), true
}

// ParseExtendedDuration parses what time.ParseDuration does, plus a leading
// whole number of days ("2d", "1d12h") and bare numbers, which are taken as
// milliseconds.
func ParseExtendedDuration(s string) (time.Duration, error) {
	if d, ok := parseMillis(s); ok {
		return d, nil
	}

	daysStr, rest, hasDays := strings.Cut(s, "d")
	if !hasDays {
		return time.ParseDuration(s)
	}

	days, err := strconv.ParseInt(daysStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number of days in %q: %w", s, err)
	}

	var remainder time.Duration
	if rest != "" {
		if remainder, err = time.ParseDuration(rest); err != nil {
			return 0, err
		}
		if remainder < 0 {
			return 0, fmt.Errorf("invalid time format '%s'", rest)
		}
	}
	if days < 0 {
		remainder = -remainder
	}
	return time.Duration(days)*24*time.Hour + remainder, nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(data []byte) error {
	v, err := ParseExtendedDuration(string(data))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// UnmarshalJSON accepts a duration string or a number of milliseconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || data[0] != '"' {
		v, ok := parseMillis(string(data))
		if !ok {
			return fmt.Errorf("'%s' is not a valid duration value", string(data))
		}
		*d = Duration(v)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// NullDuration is a Duration that may be unset.
type NullDuration struct {
	Duration
	Valid bool
}

// NewNullDuration returns a NullDuration holding d.
func NewNullDuration(d time.Duration, valid bool) NullDuration {
	return NullDuration{Duration: Duration(d), Valid: valid}
}

// NullDurationFrom returns a set NullDuration holding d.
func NullDurationFrom(d time.Duration) NullDuration {
	return NewNullDuration(d, true)
}

// UnmarshalText implements encoding.TextUnmarshaler. Empty text unsets d,
// which is what an empty environment variable or flag means.
func (d *NullDuration) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*d = NullDuration{}
		return nil
	}
	if err := d.Duration.UnmarshalText(data); err != nil {
		return err
	}
	d.Valid = true
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d NullDuration) MarshalText() ([]byte, error) {
	if !d.Valid {
		return []byte{}, nil
	}
	return []byte(d.Duration.String()), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *NullDuration) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte(`null`)) {
		*d = NullDuration{}
		return nil
	}
	if err := d.Duration.UnmarshalJSON(data); err != nil {
		return err
	}
	d.Valid = true
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d NullDuration) MarshalJSON() ([]byte, error) {
	if !d.Valid {
		return []byte(`null`), nil
	}
	return d.Duration.MarshalJSON()
}

// TimeDuration returns the value as a time.Duration, zero when unset.
func (d NullDuration) TimeDuration() time.Duration {
	return time.Duration(d.Duration)
}

// ValueOrZero returns the value if it is set and 0 otherwise.
func (d NullDuration) ValueOrZero() time.Duration {
	if !d.Valid {
		return 0
	}
	return d.TimeDuration()
}
