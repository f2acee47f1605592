package logic

import "time"

// PlausibleAfter is the Unix time below which the wall clock is assumed not
// to have been set yet (2001-09-09).
const PlausibleAfter = 1_000_000_000

// ClockPlausible reports whether t looks like a synchronised wall clock.
func ClockPlausible(t time.Time) bool {
	return t.Unix() > PlausibleAfter
}

// NextTickDelay returns the delay from t to the start of the next minute,
// in (0, 1m]. It is recomputed on every tick so scheduling jitter never
// accumulates.
func NextTickDelay(t time.Time) time.Duration {
	return time.Duration(60-t.Second())*time.Second - time.Duration(t.Nanosecond())
}

// CalendarEvents returns the minute event for t followed by every calendar
// boundary that starts at t. Boundaries are nested: a day start is only
// reported together with an hour start, a year start only with a month start.
func CalendarEvents(t time.Time, firstDay time.Weekday) []Event {
	events := []Event{{Timestamp: t, Type: EventMinute, Field: t.Minute()}}
	if t.Minute() != 0 {
		return events
	}
	events = append(events, Event{Timestamp: t, Type: EventHourStart, Field: t.Hour()})
	if t.Hour() != 0 {
		return events
	}
	events = append(events, Event{Timestamp: t, Type: EventDayStart, Field: t.Day()})
	if t.Weekday() == firstDay {
		events = append(events, Event{Timestamp: t, Type: EventWeekStart, Field: int(t.Weekday())})
	}
	if t.Day() == 1 {
		events = append(events, Event{Timestamp: t, Type: EventMonthStart, Field: int(t.Month())})
		if t.Month() == time.January {
			events = append(events, Event{Timestamp: t, Type: EventYearStart, Field: t.Year()})
		}
	}
	return events
}
