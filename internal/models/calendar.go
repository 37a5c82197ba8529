package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Day is a calendar date with no time or location. Series are bucketed by Day
// so grouping never depends on how a date string happens to be formatted.
type Day struct {
	Year  int
	Month time.Month
	Day   int
}

// DayOf returns the calendar day of t in t's own location
func DayOf(t time.Time) Day {
	y, m, d := t.Date()
	return Day{Year: y, Month: m, Day: d}
}

// IsZero reports whether d is the zero Day
func (d Day) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

// Time returns midnight UTC of d
func (d Day) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// Weekday returns the day of week (0=Sunday)
func (d Day) Weekday() time.Weekday {
	return d.Time().Weekday()
}

// Before reports whether d is earlier than other
func (d Day) Before(other Day) bool {
	if d.Year != other.Year {
		return d.Year < other.Year
	}
	if d.Month != other.Month {
		return d.Month < other.Month
	}
	return d.Day < other.Day
}

// After reports whether d is later than other
func (d Day) After(other Day) bool {
	return other.Before(d)
}

// MonthOf returns the month containing d
func (d Day) MonthOf() Month {
	return Month{Year: d.Year, Month: d.Month}
}

func (d Day) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// MarshalJSON writes the zero Day as null
func (d Day) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Day) UnmarshalJSON(data []byte) error {
	var s string
	if string(data) == "null" {
		*d = Day{}
		return nil
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*d = Day{}
		return nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return fmt.Errorf("parse day %q: %w", s, err)
	}
	*d = DayOf(t)
	return nil
}

// Month is a (year, month) bucket
type Month struct {
	Year  int
	Month time.Month
}

// Before reports whether m is earlier than other
func (m Month) Before(other Month) bool {
	if m.Year != other.Year {
		return m.Year < other.Year
	}
	return m.Month < other.Month
}

func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

func (m Month) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

func (m *Month) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return fmt.Errorf("parse month %q: %w", s, err)
	}
	*m = Month{Year: t.Year(), Month: t.Month()}
	return nil
}
