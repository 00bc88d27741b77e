package schedule

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_AroundOneBooking(t *testing.T) {
	tpl := DefaultTemplate()
	existingID := uuid.New()
	existing := []Reservation{{ID: existingID, Kind: KindAppointment, Start: at(monday, "10:00"), Duration: 50 * time.Minute}}

	tests := []struct {
		name  string
		clock string
		want  Violation
	}{
		{"inside occupied interval", "10:30", SlotConflict},
		{"right after gap", "11:00", ""},
		{"one minute before", "09:59", SlotConflict},
		{"session plus gap ends on start", "09:00", ""},
		{"gap would overlap", "09:05", SlotConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Validate(at(monday, tt.clock), 0, tpl, existing, uuid.Nil)
			assert.Equal(t, tt.want, res.Violation)
			assert.Equal(t, tt.want == "", res.Valid)
			if tt.want == SlotConflict {
				assert.Equal(t, existingID, res.ConflictID)
			}
		})
	}
}

func TestValidate_WorkingHoursAndBreaks(t *testing.T) {
	tpl := DefaultTemplate()

	tests := []struct {
		name string
		at   time.Time
		want Violation
	}{
		{"saturday", at(saturday, "10:00"), OutsideWorkingHours},
		{"sunday", at(sunday, "10:00"), OutsideWorkingHours},
		{"before opening", at(monday, "07:30"), OutsideWorkingHours},
		{"runs past closing", at(monday, "17:30"), OutsideWorkingHours},
		{"last session", at(monday, "17:10"), ""},
		{"inside lunch", at(monday, "12:30"), WithinBreak},
		{"runs into lunch", at(monday, "11:30"), WithinBreak},
		{"right after lunch", at(monday, "13:00"), ""},
		{"not slot aligned", at(monday, "14:17"), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Validate(tt.at, 0, tpl, nil, uuid.Nil)
			assert.Equal(t, tt.want, res.Violation)
		})
	}
}

func TestValidate_BreakBetweenWindowsReportsBreak(t *testing.T) {
	tpl := DefaultTemplate()
	tpl.Monday = &DaySchedule{
		Windows: []Window{
			{Start: MustClock("08:00"), End: MustClock("12:00")},
			{Start: MustClock("13:00"), End: MustClock("18:00")},
		},
		Breaks: []Window{{Start: MustClock("12:00"), End: MustClock("13:00")}},
	}

	res := Validate(at(monday, "12:15"), 0, tpl, nil, uuid.Nil)
	assert.Equal(t, WithinBreak, res.Violation)
	assert.True(t, errors.Is(res.Err(), ErrWithinBreak))
}

func TestValidate_SelfExclusion(t *testing.T) {
	tpl := DefaultTemplate()
	id := uuid.New()
	existing := []Reservation{
		{ID: id, Kind: KindAppointment, Start: at(monday, "10:00"), Duration: 50 * time.Minute},
		{ID: uuid.New(), Kind: KindAppointment, Start: at(monday, "14:00"), Duration: 50 * time.Minute},
	}

	assert.Equal(t, SlotConflict, Validate(at(monday, "10:00"), 0, tpl, existing, uuid.Nil).Violation)
	assert.True(t, Validate(at(monday, "10:00"), 0, tpl, existing, id).Valid)
	assert.True(t, Validate(at(monday, "10:20"), 0, tpl, existing, id).Valid)
	assert.Equal(t, SlotConflict, Validate(at(monday, "13:30"), 0, tpl, existing, id).Violation)
}

func TestValidate_CancelledAndBlocks(t *testing.T) {
	tpl := DefaultTemplate()
	existing := []Reservation{
		{ID: uuid.New(), Kind: KindAppointment, Start: at(monday, "09:00"), Duration: 50 * time.Minute, Cancelled: true},
		{ID: uuid.New(), Kind: KindBlock, Start: at(monday, "15:00"), Duration: time.Hour},
	}

	assert.True(t, Validate(at(monday, "09:00"), 0, tpl, existing, uuid.Nil).Valid, "cancelled entries never conflict")
	assert.True(t, Validate(at(monday, "14:00"), 0, tpl, existing, uuid.Nil).Valid, "session and gap end exactly at the block")
	assert.Equal(t, SlotConflict, Validate(at(monday, "14:05"), 0, tpl, existing, uuid.Nil).Violation)
	assert.True(t, Validate(at(monday, "16:00"), 0, tpl, existing, uuid.Nil).Valid, "blocks carry no gap")
}

func TestValidate_DragToAnotherDayUsesTargetTemplate(t *testing.T) {
	tpl := DefaultTemplate()
	tpl.Tuesday = &DaySchedule{
		Windows: []Window{{Start: MustClock("08:00"), End: MustClock("18:00")}},
		Breaks:  []Window{{Start: MustClock("10:00"), End: MustClock("11:00")}},
	}
	moved := Reservation{ID: uuid.New(), Kind: KindAppointment, Start: at(monday, "10:00"), Duration: 50 * time.Minute}
	existing := []Reservation{moved}

	target := ComposeDrop(moved.Start, tuesday, time.UTC)
	require.Equal(t, at(tuesday, "10:00"), target)

	res := Validate(target, moved.Duration, tpl, existing, moved.ID)
	assert.Equal(t, WithinBreak, res.Violation, "Tuesday's break applies, not Monday's")

	tpl.Tuesday.Breaks = nil
	res = Validate(target, moved.Duration, tpl, existing, moved.ID)
	assert.True(t, res.Valid)

	other := Reservation{ID: uuid.New(), Kind: KindAppointment, Start: at(tuesday, "09:30"), Duration: 50 * time.Minute}
	res = Validate(target, moved.Duration, tpl, append(existing, other), moved.ID)
	assert.Equal(t, SlotConflict, res.Violation)
	assert.Equal(t, other.ID, res.ConflictID)
}

func TestValidate_AcceptedBookingsNeverOverlap(t *testing.T) {
	tpl := DefaultTemplate()
	gap := tpl.Gap()

	var accepted []Reservation
	for minute := 0; minute < 24*60; minute += 7 {
		start := monday.Add(time.Duration(minute) * time.Minute)
		if res := Validate(start, 0, tpl, accepted, uuid.Nil); res.Valid {
			accepted = append(accepted, Reservation{ID: uuid.New(), Kind: KindAppointment, Start: start, Duration: tpl.Session()})
		}
	}
	require.NotEmpty(t, accepted)

	for i := range accepted {
		for j := i + 1; j < len(accepted); j++ {
			a, b := accepted[i].Occupied(gap), accepted[j].Occupied(gap)
			assert.False(t, a.Overlaps(b), "%s overlaps %s", accepted[i].Start, accepted[j].Start)
		}
		// re-validating each accepted booking against the rest still passes
		assert.True(t, Validate(accepted[i].Start, 0, tpl, accepted, accepted[i].ID).Valid)
	}
}

func TestResultErr(t *testing.T) {
	assert.NoError(t, Result{Valid: true}.Err())
	assert.ErrorIs(t, Result{Violation: OutsideWorkingHours}.Err(), ErrOutsideWorkingHours)
	assert.ErrorIs(t, Result{Violation: SlotConflict}.Err(), ErrSlotConflict)
}
