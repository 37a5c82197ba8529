package models

import (
	"encoding/json"
	"strings"
	"time"
)

// dateLayouts are tried in order. ISO 8601 first, then common bank export formats.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"2006/01/02",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
}

// Date is a transaction timestamp. It keeps the raw input so a record with an
// unparseable date can still be reported and counted.
type Date struct {
	time.Time
	Raw string
}

// ParseDate parses s with the known layouts. The result is invalid (but keeps
// Raw) when no layout matches.
func ParseDate(s string) Date {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Date{Time: t, Raw: s}
		}
	}
	return Date{Raw: s}
}

// DateOf wraps a time value
func DateOf(t time.Time) Date {
	return Date{Time: t}
}

// Valid reports whether the date parsed
func (d Date) Valid() bool {
	return !d.Time.IsZero()
}

// CalendarDay returns the (year, month, day) tuple of a valid date
func (d Date) CalendarDay() (Day, bool) {
	if !d.Valid() {
		return Day{}, false
	}
	return DayOf(d.Time), true
}

func (d Date) MarshalJSON() ([]byte, error) {
	switch {
	case d.Valid():
		if d.Hour() == 0 && d.Minute() == 0 && d.Second() == 0 && d.Nanosecond() == 0 && d.Location() == time.UTC {
			return json.Marshal(d.Format("2006-01-02"))
		}
		return json.Marshal(d.Format(time.RFC3339))
	case d.Raw != "":
		return json.Marshal(d.Raw)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON never fails on a bad date string; see ParseDate.
func (d *Date) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		*d = Date{Raw: string(data)}
		return nil
	}
	*d = ParseDate(s)
	return nil
}
