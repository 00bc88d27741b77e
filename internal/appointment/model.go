package appointment

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-calendar/internal/schedule"
)

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusConfirmed Status = "confirmed"
	StatusDone      Status = "done"
	StatusCancelled Status = "cancelled"
)

type Mode string

const (
	ModeInPerson Mode = "in_person"
	ModeOnline   Mode = "online"
)

type BlockType string

const (
	BlockBlocked  BlockType = "blocked"
	BlockPersonal BlockType = "personal"
)

// transitions lists the statuses an entry may move to from each status.
var transitions = map[Status][]Status{
	StatusScheduled: {StatusConfirmed, StatusDone, StatusCancelled},
	StatusConfirmed: {StatusDone, StatusCancelled},
}

func (s Status) CanMoveTo(to Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Editable reports whether the entry may still be rescheduled.
func (s Status) Editable() bool {
	return s == StatusScheduled || s == StatusConfirmed
}

func (m Mode) Valid() bool {
	return m == ModeInPerson || m == ModeOnline
}

func (b BlockType) Valid() bool {
	return b == BlockBlocked || b == BlockPersonal
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Entry is one row of the calendar: an appointment with a patient, or a
// block of personal/blocked time with no patient.
type Entry struct {
	ID              uuid.UUID
	Kind            schedule.Kind
	PatientID       *uuid.UUID
	StartTime       time.Time
	DurationMinutes int
	OccupiedUntil   time.Time
	Status          Status

	// appointment fields
	Mode        Mode
	ServiceType string
	Notes       string

	// block fields
	BlockType BlockType
	Reason    string

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (e Entry) Duration() time.Duration {
	return time.Duration(e.DurationMinutes) * time.Minute
}

func (e Entry) EndTime() time.Time {
	return e.StartTime.Add(e.Duration())
}

func (e Entry) IsBlock() bool {
	return e.Kind == schedule.KindBlock
}

// Reservation converts the entry to the slot engine's view of it.
func (e Entry) Reservation() schedule.Reservation {
	return schedule.Reservation{
		ID:        e.ID,
		Kind:      e.Kind,
		Start:     e.StartTime,
		Duration:  e.Duration(),
		End:       e.OccupiedUntil,
		Cancelled: e.Status == StatusCancelled,
	}
}

// occupiedUntil is the end of the interval e will hold once written with the
// given gap. Any stored end is ignored.
func occupiedUntil(e Entry, gap time.Duration) time.Time {
	r := e.Reservation()
	r.End = time.Time{}
	return r.Occupied(gap).End
}

func reservations(entries []Entry) []schedule.Reservation {
	out := make([]schedule.Reservation, len(entries))
	for i, e := range entries {
		out[i] = e.Reservation()
	}
	return out
}

type EventLog struct {
	ID        int64
	EventType string
	EntryID   *uuid.UUID
	Payload   []byte
	CreatedAt time.Time
}

// CalendarDay is one cell of a month or week view.
type CalendarDay struct {
	Date    string
	Entries []Entry
}

type CalendarView struct {
	From time.Time
	To   time.Time
	Days []CalendarDay
}
