package fhir

import (
	"fmt"
	"strconv"
	"time"
)

// CalendarGregorian is the only calendar identifier the formatter accepts.
const CalendarGregorian = "gregorian"

// DateValue is a partial-precision calendar value. Any component may be absent
// (nil). Location carries the timezone the components were decomposed in, and
// Calendar names the calendar system ("" means unspecified).
type DateValue struct {
	Year       *int
	Month      *int
	Day        *int
	Hour       *int
	Minute     *int
	Second     *int
	Nanosecond *int
	Location   *time.Location
	Calendar   string
}

// Int returns a pointer to n, for building DateValues by hand.
func Int(n int) *int { return &n }

// FormatDate renders the date portion of v as YYYY, YYYY-MM or YYYY-MM-DD,
// stopping at the first missing component. It returns "" when the year is absent.
func FormatDate(v DateValue) string {
	if v.Year == nil {
		return ""
	}
	if v.Month == nil {
		return strconv.Itoa(*v.Year)
	}
	if v.Day == nil {
		return fmt.Sprintf("%d-%02d", *v.Year, *v.Month)
	}
	return fmt.Sprintf("%d-%02d-%02d", *v.Year, *v.Month, *v.Day)
}

// FormatDateTime is like FormatDate but appends the time of day when an hour is
// present: YYYY-MM-DDThh:mm:ss[.mmm]TZD. Missing minutes and seconds count as
// zero. Milliseconds are emitted whenever a nanosecond component is present,
// including a zero one.
func FormatDateTime(v DateValue) string {
	if v.Calendar != "" && v.Calendar != CalendarGregorian {
		return ""
	}
	if v.Year == nil || v.Month == nil || v.Day == nil || v.Hour == nil {
		return FormatDate(v)
	}

	minute := valueOr(v.Minute, 0)
	second := valueOr(v.Second, 0)
	tz := timezoneDesignator(v, minute, second)

	if v.Nanosecond != nil {
		return fmt.Sprintf("%d-%02d-%02dT%02d:%02d:%02d.%03d%s",
			*v.Year, *v.Month, *v.Day, *v.Hour, minute, second, *v.Nanosecond/1_000_000, tz)
	}
	return fmt.Sprintf("%d-%02d-%02dT%02d:%02d:%02d%s",
		*v.Year, *v.Month, *v.Day, *v.Hour, minute, second, tz)
}

// timezoneDesignator computes the UTC offset of the instant described by v in
// its own location. No location, or a zero offset, yields "Z".
func timezoneDesignator(v DateValue, minute, second int) string {
	if v.Location == nil {
		return "Z"
	}
	t := time.Date(*v.Year, time.Month(*v.Month), *v.Day, *v.Hour, minute, second,
		valueOr(v.Nanosecond, 0), v.Location)
	_, offset := t.Zone()
	if offset == 0 {
		return "Z"
	}
	sign := '+'
	if offset < 0 {
		sign = '-'
		offset = -offset
	}
	return fmt.Sprintf("%c%02d:%02d", sign, offset/3600, (offset/60)%60)
}

func valueOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}
