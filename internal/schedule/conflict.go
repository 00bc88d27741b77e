package schedule

import (
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindAppointment Kind = "appointment"
	KindBlock       Kind = "block"
)

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

func (a Interval) Overlaps(b Interval) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

func (a Interval) Contains(b Interval) bool {
	return !b.Start.Before(a.Start) && !b.End.After(a.End)
}

// Reservation is anything that occupies the calendar: an appointment or a block.
// End is the stored end of the occupied interval; it stays zero for a
// candidate that has not been written yet.
type Reservation struct {
	ID        uuid.UUID
	Kind      Kind
	Start     time.Time
	Duration  time.Duration
	End       time.Time
	Cancelled bool
}

// Occupied returns the interval the reservation holds. A stored End wins, so
// existing bookings keep the gap they were made with. Otherwise appointments
// keep the inter-session gap after them and blocks hold exactly their duration.
func (r Reservation) Occupied(gap time.Duration) Interval {
	if !r.End.IsZero() {
		return Interval{Start: r.Start, End: r.End}
	}
	end := r.Start.Add(r.Duration)
	if r.Kind != KindBlock {
		end = end.Add(gap)
	}
	return Interval{Start: r.Start, End: end}
}

// Slot is a candidate start time and whether it can still be booked.
type Slot struct {
	Time      time.Time
	Available bool
}

// CheckSlots marks every candidate as available or not against the supplied
// reservations. Cancelled reservations and excludeID are ignored.
func CheckSlots(candidates []time.Time, session, gap time.Duration, existing []Reservation, excludeID uuid.UUID) []Slot {
	busy := occupiedIntervals(existing, gap, excludeID)

	slots := make([]Slot, 0, len(candidates))
	for _, c := range candidates {
		occ := Interval{Start: c, End: c.Add(session + gap)}
		slots = append(slots, Slot{Time: c, Available: !overlapsAny(occ, busy)})
	}
	return slots
}

// Conflicts returns the reservations an appointment of length session
// starting at start would collide with.
func Conflicts(start time.Time, session, gap time.Duration, existing []Reservation, excludeID uuid.UUID) []Reservation {
	candidate := Reservation{ID: excludeID, Kind: KindAppointment, Start: start, Duration: session}
	return ConflictsFor(candidate, gap, existing)
}

// ConflictsFor returns the reservations candidate collides with. The
// candidate's own ID is never considered a conflict.
func ConflictsFor(candidate Reservation, gap time.Duration, existing []Reservation) []Reservation {
	occ := candidate.Occupied(gap)

	var out []Reservation
	for _, r := range existing {
		if skip(r, candidate.ID) {
			continue
		}
		if occ.Overlaps(r.Occupied(gap)) {
			out = append(out, r)
		}
	}
	return out
}

func skip(r Reservation, excludeID uuid.UUID) bool {
	return r.Cancelled || (excludeID != uuid.Nil && r.ID == excludeID)
}

func occupiedIntervals(existing []Reservation, gap time.Duration, excludeID uuid.UUID) []Interval {
	out := make([]Interval, 0, len(existing))
	for _, r := range existing {
		if skip(r, excludeID) {
			continue
		}
		out = append(out, r.Occupied(gap))
	}
	return out
}

func overlapsAny(iv Interval, busy []Interval) bool {
	for _, b := range busy {
		if iv.Overlaps(b) {
			return true
		}
	}
	return false
}
