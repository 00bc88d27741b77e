package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupByDay(t *testing.T) {
	entries := []Reservation{
		{Start: at(tuesday, "15:00")},
		{Start: at(monday, "13:00")},
		{Start: at(monday, "08:00")},
		{Start: at(tuesday, "09:00")},
	}

	got := GroupByDay(entries, func(r Reservation) time.Time { return r.Start }, time.UTC)

	require.Len(t, got, 2)
	require.Len(t, got["2026-10-19"], 2)
	assert.Equal(t, at(monday, "08:00"), got["2026-10-19"][0].Start)
	assert.Equal(t, at(monday, "13:00"), got["2026-10-19"][1].Start)
	assert.Equal(t, at(tuesday, "09:00"), got["2026-10-20"][0].Start)
}

func TestGroupByDay_UsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC-3", -3*3600)
	late := time.Date(2026, 10, 20, 1, 0, 0, 0, time.UTC) // Monday 22:00 at UTC-3

	got := GroupByDay([]time.Time{late}, func(t time.Time) time.Time { return t }, loc)
	assert.Contains(t, got, "2026-10-19")
}

func TestWeekRange(t *testing.T) {
	days := WeekRange(at(tuesday, "15:30"), time.UTC)

	require.Len(t, days, 7)
	assert.Equal(t, time.Sunday, days[0].Weekday())
	assert.Equal(t, "2026-10-18", DayKey(days[0], time.UTC))
	assert.Equal(t, "2026-10-24", DayKey(days[6], time.UTC))
}

func TestMonthGrid(t *testing.T) {
	days := MonthGrid(time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC), time.UTC)

	require.Len(t, days, 35)
	assert.Equal(t, "2026-09-27", DayKey(days[0], time.UTC))
	assert.Equal(t, "2026-10-31", DayKey(days[len(days)-1], time.UTC))
	assert.Zero(t, len(days)%7)
}

func TestComposeDrop(t *testing.T) {
	original := at(monday, "10:40")
	got := ComposeDrop(original, time.Date(2026, 10, 22, 0, 0, 0, 0, time.UTC), time.UTC)
	assert.Equal(t, time.Date(2026, 10, 22, 10, 40, 0, 0, time.UTC), got)
}

func TestParseDay(t *testing.T) {
	d, err := ParseDay("2026-10-19", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, monday, d)

	_, err = ParseDay("19/10/2026", time.UTC)
	assert.Error(t, err)
}
