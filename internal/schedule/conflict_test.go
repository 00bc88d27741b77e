package schedule

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterval_Overlaps(t *testing.T) {
	a := Interval{Start: at(monday, "10:00"), End: at(monday, "11:00")}

	assert.True(t, a.Overlaps(Interval{Start: at(monday, "10:59"), End: at(monday, "12:00")}))
	assert.True(t, a.Overlaps(Interval{Start: at(monday, "09:00"), End: at(monday, "10:01")}))
	assert.False(t, a.Overlaps(Interval{Start: at(monday, "11:00"), End: at(monday, "12:00")}), "half-open: touching is fine")
	assert.False(t, a.Overlaps(Interval{Start: at(monday, "09:00"), End: at(monday, "10:00")}))
}

func TestCheckSlots(t *testing.T) {
	tpl := DefaultTemplate()
	candidates := GenerateSlots(monday, tpl, tpl.Session(), tpl.Gap())
	editing := uuid.New()
	existing := []Reservation{
		{ID: uuid.New(), Kind: KindAppointment, Start: at(monday, "09:30"), Duration: 50 * time.Minute},
		{ID: uuid.New(), Kind: KindAppointment, Start: at(monday, "14:00"), Duration: 50 * time.Minute, Cancelled: true},
		{ID: uuid.New(), Kind: KindBlock, Start: at(monday, "16:00"), Duration: 2 * time.Hour},
		{ID: editing, Kind: KindAppointment, Start: at(monday, "08:00"), Duration: 50 * time.Minute},
	}

	slots := CheckSlots(candidates, tpl.Session(), tpl.Gap(), existing, editing)
	require.Len(t, slots, len(candidates))

	unavailable := map[string]bool{}
	for _, s := range slots {
		if !s.Available {
			unavailable[s.Time.Format("15:04")] = true
		}
	}
	assert.Equal(t, map[string]bool{"09:00": true, "10:00": true, "16:00": true, "17:00": true}, unavailable)
}

func TestConflictsFor_Block(t *testing.T) {
	gap := 10 * time.Minute
	appt := Reservation{ID: uuid.New(), Kind: KindAppointment, Start: at(monday, "10:00"), Duration: 50 * time.Minute}

	block := Reservation{ID: uuid.New(), Kind: KindBlock, Start: at(monday, "10:55"), Duration: 30 * time.Minute}
	assert.Len(t, ConflictsFor(block, gap, []Reservation{appt}), 1, "block inside the appointment's gap")

	block.Start = at(monday, "11:00")
	assert.Empty(t, ConflictsFor(block, gap, []Reservation{appt}))

	block.Start = at(monday, "09:30")
	assert.Empty(t, ConflictsFor(block, gap, []Reservation{appt}), "block ends exactly when the session starts")

	assert.Empty(t, ConflictsFor(appt, gap, []Reservation{appt}), "never conflicts with itself")
}

func TestOccupied_StoredEndWins(t *testing.T) {
	booked := Reservation{
		ID:       uuid.New(),
		Kind:     KindAppointment,
		Start:    at(monday, "10:00"),
		Duration: 50 * time.Minute,
		End:      at(monday, "11:00"),
	}

	assert.Equal(t, at(monday, "11:00"), booked.Occupied(0).End, "a later gap change does not shrink it")
	assert.Equal(t, at(monday, "11:00"), booked.Occupied(30*time.Minute).End)

	fresh := booked
	fresh.End = time.Time{}
	assert.Equal(t, at(monday, "10:50"), fresh.Occupied(0).End)

	got := Conflicts(at(monday, "10:50"), 50*time.Minute, 0, []Reservation{booked}, uuid.Nil)
	require.Len(t, got, 1)
	assert.Equal(t, booked.ID, got[0].ID)
}
