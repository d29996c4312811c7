package fhir

import "time"

// Unit selects which components Calendar.Components extracts.
type Unit uint16

const (
	UnitYear Unit = 1 << iota
	UnitMonth
	UnitDay
	UnitHour
	UnitMinute
	UnitSecond
	UnitNanosecond
	UnitTimeZone
	UnitCalendar

	// UnitsDate are the components of a date-only value.
	UnitsDate = UnitYear | UnitMonth | UnitDay
	// UnitsAll are the components FormatInstant decomposes.
	UnitsAll = UnitsDate | UnitHour | UnitMinute | UnitSecond | UnitNanosecond | UnitTimeZone | UnitCalendar
)

// Calendar decomposes instants into DateValues in a fixed location.
type Calendar struct {
	loc *time.Location
}

// ReferenceCalendar is the Gregorian calendar pinned to UTC. All instants
// crossing the wire are decomposed through it, so output never depends on the
// host's local timezone.
var ReferenceCalendar = Calendar{loc: time.UTC}

// Components breaks t down into the requested units, as seen in the
// calendar's location.
func (c Calendar) Components(t time.Time, units Unit) DateValue {
	t = t.In(c.loc)
	var v DateValue
	if units&UnitYear != 0 {
		v.Year = Int(t.Year())
	}
	if units&UnitMonth != 0 {
		v.Month = Int(int(t.Month()))
	}
	if units&UnitDay != 0 {
		v.Day = Int(t.Day())
	}
	if units&UnitHour != 0 {
		v.Hour = Int(t.Hour())
	}
	if units&UnitMinute != 0 {
		v.Minute = Int(t.Minute())
	}
	if units&UnitSecond != 0 {
		v.Second = Int(t.Second())
	}
	if units&UnitNanosecond != 0 {
		v.Nanosecond = Int(t.Nanosecond())
	}
	if units&UnitTimeZone != 0 {
		v.Location = c.loc
	}
	if units&UnitCalendar != 0 {
		v.Calendar = CalendarGregorian
	}
	return v
}

// FormatInstant renders t as a full FHIR dateTime through the reference calendar.
// The zero time renders as "".
func FormatInstant(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return FormatDateTime(ReferenceCalendar.Components(t, UnitsAll))
}

// FormatInstantDate renders the date part of t through the reference calendar.
func FormatInstantDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return FormatDate(ReferenceCalendar.Components(t, UnitsDate))
}
