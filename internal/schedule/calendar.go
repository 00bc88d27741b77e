package schedule

import (
	"fmt"
	"slices"
	"time"
)

const DayLayout = "2006-01-02"

// DayKey formats t as the calendar day it falls on in loc.
func DayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DayLayout)
}

// ParseDay parses a YYYY-MM-DD value as midnight in loc.
func ParseDay(s string, loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation(DayLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse day %q: %w", s, err)
	}
	return d, nil
}

func StartOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// GroupByDay buckets entries by the day they start on, each bucket sorted by
// start time.
func GroupByDay[E any](entries []E, startOf func(E) time.Time, loc *time.Location) map[string][]E {
	out := make(map[string][]E)
	for _, e := range entries {
		key := DayKey(startOf(e), loc)
		out[key] = append(out[key], e)
	}
	for key := range out {
		slices.SortStableFunc(out[key], func(a, b E) int {
			return startOf(a).Compare(startOf(b))
		})
	}
	return out
}

// WeekRange returns the seven days (Sunday first) of anchor's week.
func WeekRange(anchor time.Time, loc *time.Location) []time.Time {
	start := StartOfDay(anchor, loc)
	start = start.AddDate(0, 0, -int(start.Weekday()))
	days := make([]time.Time, 7)
	for i := range days {
		days[i] = start.AddDate(0, 0, i)
	}
	return days
}

// MonthGrid returns whole weeks, Sunday first, covering anchor's month.
func MonthGrid(anchor time.Time, loc *time.Location) []time.Time {
	a := anchor.In(loc)
	first := time.Date(a.Year(), a.Month(), 1, 0, 0, 0, 0, loc)
	last := first.AddDate(0, 1, -1)

	start := first.AddDate(0, 0, -int(first.Weekday()))
	end := last.AddDate(0, 0, int(time.Saturday-last.Weekday()))

	var days []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// ComposeDrop keeps original's time of day and moves it onto target's date.
func ComposeDrop(original, target time.Time, loc *time.Location) time.Time {
	o := original.In(loc)
	y, m, d := target.In(loc).Date()
	return time.Date(y, m, d, o.Hour(), o.Minute(), o.Second(), 0, loc)
}
