package schedule

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrOutsideWorkingHours = errors.New("requested time is outside working hours")
	ErrWithinBreak         = errors.New("requested time falls inside a break")
	ErrSlotConflict        = errors.New("requested time overlaps an existing reservation")
)

// Violation names the reason a date-time cannot be booked.
type Violation string

const (
	OutsideWorkingHours Violation = "outside_working_hours"
	WithinBreak         Violation = "within_break"
	SlotConflict        Violation = "slot_conflict"
)

// Result is the outcome of Validate. ConflictID is set for SlotConflict.
type Result struct {
	Valid      bool
	Violation  Violation
	ConflictID uuid.UUID
}

// Err returns the sentinel error matching the violation, or nil if valid.
func (r Result) Err() error {
	switch r.Violation {
	case OutsideWorkingHours:
		return ErrOutsideWorkingHours
	case WithinBreak:
		return ErrWithinBreak
	case SlotConflict:
		return ErrSlotConflict
	}
	return nil
}

// Validate decides whether a booking of duration starting at at may be
// written. A non-positive duration means the template session length.
// excludeID is the reservation being edited, so it never conflicts with itself.
//
// Checks run in order: inactive weekday, break, window containment, then
// overlap with existing reservations.
func Validate(at time.Time, duration time.Duration, tpl Template, existing []Reservation, excludeID uuid.UUID) Result {
	if duration <= 0 {
		duration = tpl.Session()
	}
	loc := tpl.Location()
	local := at.In(loc)

	day := tpl.Day(local.Weekday())
	if day == nil {
		return Result{Violation: OutsideWorkingHours}
	}

	session := Interval{Start: local, End: local.Add(duration)}
	if hitsBreak(day, local, loc, session) {
		return Result{Violation: WithinBreak}
	}
	if !insideWindow(day, local, loc, session) {
		return Result{Violation: OutsideWorkingHours}
	}

	if c := Conflicts(local, duration, tpl.Gap(), existing, excludeID); len(c) > 0 {
		return Result{Violation: SlotConflict, ConflictID: c[0].ID}
	}
	return Result{Valid: true}
}
