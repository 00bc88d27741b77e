package schedule

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

type slotOptions struct {
	session time.Duration
	gap     time.Duration
	exclude uuid.UUID
}

type SlotOption func(*slotOptions)

// WithSession overrides the template session length, e.g. for a longer intake.
func WithSession(d time.Duration) SlotOption {
	return func(o *slotOptions) {
		if d > 0 {
			o.session = d
		}
	}
}

// WithExclude ignores the reservation being edited or moved.
func WithExclude(id uuid.UUID) SlotOption {
	return func(o *slotOptions) { o.exclude = id }
}

// GenerateSlots lists candidate start times for date's weekday. Candidates
// step by session+gap of wall-clock time from each window start, must finish
// their session by the window end, and are dropped when the session touches a
// break. Durations are rounded up to whole minutes.
func GenerateSlots(date time.Time, tpl Template, session, gap time.Duration) []time.Time {
	if session <= 0 || gap < 0 {
		return nil
	}
	loc := tpl.Location()
	day := tpl.Day(date.In(loc).Weekday())
	if day == nil {
		return nil
	}

	length := minutesOf(session)
	step := length + minutesOf(gap)
	var out []time.Time
	for _, w := range day.Windows {
		for c := w.Start; c+length <= w.End; c += step {
			t := c.On(date, loc)
			if hitsBreak(day, date, loc, Interval{Start: t, End: (c + length).On(date, loc)}) {
				continue
			}
			out = append(out, t)
		}
	}

	slices.SortFunc(out, func(a, b time.Time) int { return a.Compare(b) })
	return slices.CompactFunc(out, func(a, b time.Time) bool { return a.Equal(b) })
}

func minutesOf(d time.Duration) Clock {
	return Clock((d + time.Minute - 1) / time.Minute)
}

// AvailableSlots is GenerateSlots followed by CheckSlots with the template's
// session and gap.
func AvailableSlots(date time.Time, tpl Template, existing []Reservation, opts ...SlotOption) []Slot {
	o := slotOptions{session: tpl.Session(), gap: tpl.Gap()}
	for _, opt := range opts {
		opt(&o)
	}
	candidates := GenerateSlots(date, tpl, o.session, o.gap)
	return CheckSlots(candidates, o.session, o.gap, existing, o.exclude)
}

func hitsBreak(day *DaySchedule, date time.Time, loc *time.Location, session Interval) bool {
	for _, b := range day.Breaks {
		br := Interval{Start: b.Start.On(date, loc), End: b.End.On(date, loc)}
		if session.Overlaps(br) {
			return true
		}
	}
	return false
}

func insideWindow(day *DaySchedule, date time.Time, loc *time.Location, session Interval) bool {
	for _, w := range day.Windows {
		win := Interval{Start: w.Start.On(date, loc), End: w.End.On(date, loc)}
		if win.Contains(session) {
			return true
		}
	}
	return false
}
