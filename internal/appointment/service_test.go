package appointment

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-calendar/internal/metrics"
	redisclient "github.com/hackgods/clinic-calendar/internal/redis"
	"github.com/hackgods/clinic-calendar/internal/schedule"
)

type memRepo struct {
	mu        sync.Mutex
	patients  map[uuid.UUID]Patient
	entries   map[uuid.UUID]Entry
	events    []EventLog
	insertErr error
	lastLimit int
}

func newMemRepo() *memRepo {
	return &memRepo{
		patients: map[uuid.UUID]Patient{},
		entries:  map[uuid.UUID]Entry{},
	}
}

func (r *memRepo) addPatient(name string) uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := uuid.New()
	r.patients[id] = Patient{ID: id, Name: name}
	return id
}

func (r *memRepo) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (r *memRepo) GetEntryByID(_ context.Context, id uuid.UUID) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, ErrEntryNotFound
	}
	return &e, nil
}

func (r *memRepo) ListEntriesBetween(_ context.Context, from, to time.Time) ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Entry
	for _, e := range r.entries {
		if e.Status == StatusCancelled {
			continue
		}
		if e.StartTime.Before(to) && e.OccupiedUntil.After(from) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (r *memRepo) ListAppointmentsByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastLimit = limit
	var out []Entry
	for _, e := range r.entries {
		if e.PatientID != nil && *e.PatientID == patientID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memRepo) InsertEntry(_ context.Context, e Entry) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return nil, r.insertErr
	}
	r.entries[e.ID] = e
	return &e, nil
}

func (r *memRepo) UpdateEntrySchedule(_ context.Context, id uuid.UUID, start time.Time, durationMinutes int, occupiedUntil time.Time) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok || !e.Status.Editable() {
		return nil, ErrEntryNotFound
	}
	e.StartTime = start
	e.DurationMinutes = durationMinutes
	e.OccupiedUntil = occupiedUntil
	r.entries[id] = e
	return &e, nil
}

func (r *memRepo) UpdateEntryStatus(_ context.Context, id uuid.UUID, from, to Status) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok || e.Status != from {
		return nil, ErrEntryNotFound
	}
	e.Status = to
	r.entries[id] = e
	return &e, nil
}

func (r *memRepo) FindCompletable(_ context.Context, endedBefore time.Time) ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Entry
	for _, e := range r.entries {
		if !e.IsBlock() && e.Status == StatusConfirmed && e.EndTime().Before(endedBefore) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memRepo) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *memRepo) eventTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.EventType
	}
	return out
}

type memLocker struct {
	mu     sync.Mutex
	busy   map[string]bool
	locked []string
}

func (l *memLocker) WithDayLock(ctx context.Context, day string, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	if l.busy[day] {
		l.mu.Unlock()
		return redisclient.ErrLockNotAcquired
	}
	l.locked = append(l.locked, day)
	l.mu.Unlock()
	return fn(ctx)
}

type staticTemplate struct {
	tpl schedule.Template
}

func (s staticTemplate) Get(context.Context) (schedule.Template, error) {
	return s.tpl, nil
}

var (
	monday   = time.Date(2026, time.October, 19, 0, 0, 0, 0, time.UTC)
	tuesday  = monday.AddDate(0, 0, 1)
	saturday = monday.AddDate(0, 0, 5)
)

func at(day time.Time, clock string) time.Time {
	return schedule.MustClock(clock).On(day, time.UTC)
}

func newTestService(t *testing.T) (*Service, *memRepo, *memLocker) {
	t.Helper()
	repo := newMemRepo()
	locker := &memLocker{busy: map[string]bool{}}
	svc := NewService(repo, locker, staticTemplate{tpl: schedule.DefaultTemplate()}, nil, nil)
	return svc, repo, locker
}

func requireViolation(t *testing.T, err error, want schedule.Violation) *ViolationError {
	t.Helper()
	var ve *ViolationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, want, ve.Result.Violation)
	return ve
}

func TestBook_ThenSlotIsTaken(t *testing.T) {
	svc, repo, locker := newTestService(t)
	ctx := context.Background()
	patient := repo.addPatient("Ana")

	appt, err := svc.Book(ctx, BookRequest{PatientID: patient, Start: at(monday, "09:00")})
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, appt.Status)
	assert.Equal(t, ModeInPerson, appt.Mode)
	assert.Equal(t, 50, appt.DurationMinutes)
	assert.Equal(t, at(monday, "10:00"), appt.OccupiedUntil)
	assert.Equal(t, []string{"2026-10-19"}, locker.locked)
	assert.Equal(t, []string{EventAppointmentBooked}, repo.eventTypes())

	slots, err := svc.AvailableSlots(ctx, SlotQuery{Date: monday})
	require.NoError(t, err)
	require.Len(t, slots, 9)

	free := 0
	for _, s := range slots {
		if s.Time.Equal(at(monday, "09:00")) {
			assert.False(t, s.Available)
			continue
		}
		assert.True(t, s.Available, s.Time.Format("15:04"))
		free++
	}
	assert.Equal(t, 8, free)

	// the freed slot comes back when the booking is excluded
	slots, err = svc.AvailableSlots(ctx, SlotQuery{Date: monday, ExcludeID: appt.ID})
	require.NoError(t, err)
	for _, s := range slots {
		assert.True(t, s.Available)
	}
}

func TestBook_Violations(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	patient := repo.addPatient("Ana")

	first, err := svc.Book(ctx, BookRequest{PatientID: patient, Start: at(monday, "09:00")})
	require.NoError(t, err)

	_, err = svc.Book(ctx, BookRequest{PatientID: patient, Start: at(monday, "12:30")})
	requireViolation(t, err, schedule.WithinBreak)
	assert.ErrorIs(t, err, schedule.ErrWithinBreak)

	_, err = svc.Book(ctx, BookRequest{PatientID: patient, Start: at(saturday, "10:00")})
	requireViolation(t, err, schedule.OutsideWorkingHours)

	_, err = svc.Book(ctx, BookRequest{PatientID: patient, Start: at(monday, "17:30")})
	requireViolation(t, err, schedule.OutsideWorkingHours)

	_, err = svc.Book(ctx, BookRequest{PatientID: patient, Start: at(monday, "09:30")})
	ve := requireViolation(t, err, schedule.SlotConflict)
	assert.Equal(t, first.ID, ve.Result.ConflictID)
	assert.ErrorIs(t, err, schedule.ErrSlotConflict)

	// inside the gap after the first session
	_, err = svc.Book(ctx, BookRequest{PatientID: patient, Start: at(monday, "09:55")})
	requireViolation(t, err, schedule.SlotConflict)

	_, err = svc.Book(ctx, BookRequest{PatientID: patient, Start: at(monday, "10:00")})
	require.NoError(t, err)
}

func TestBook_InputErrors(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	patient := repo.addPatient("Ana")

	_, err := svc.Book(ctx, BookRequest{PatientID: uuid.New(), Start: at(monday, "09:00")})
	assert.ErrorIs(t, err, ErrPatientNotFound)

	_, err = svc.Book(ctx, BookRequest{PatientID: patient, Start: at(monday, "09:00"), Mode: "phone"})
	assert.ErrorIs(t, err, ErrInvalidMode)

	_, err = svc.Book(ctx, BookRequest{PatientID: patient, Start: at(monday, "09:00"), DurationMinutes: -5})
	assert.ErrorIs(t, err, ErrInvalidDuration)

	assert.Empty(t, repo.eventTypes())
}

func TestBook_BusyDayAndDatabaseConflict(t *testing.T) {
	svc, repo, locker := newTestService(t)
	ctx := context.Background()
	patient := repo.addPatient("Ana")

	locker.busy["2026-10-19"] = true
	_, err := svc.Book(ctx, BookRequest{PatientID: patient, Start: at(monday, "09:00")})
	assert.ErrorIs(t, err, ErrCalendarBusy)

	delete(locker.busy, "2026-10-19")
	repo.insertErr = fmt.Errorf("insert: %w (calendar_entries_no_overlap)", schedule.ErrSlotConflict)
	_, err = svc.Book(ctx, BookRequest{PatientID: patient, Start: at(monday, "09:00")})
	requireViolation(t, err, schedule.SlotConflict)

	repo.insertErr = errors.New("connection reset")
	_, err = svc.Book(ctx, BookRequest{PatientID: patient, Start: at(monday, "09:00")})
	require.Error(t, err)
	var ve *ViolationError
	assert.False(t, errors.As(err, &ve))
}

func TestReschedule_ExcludesItself(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	patient := repo.addPatient("Ana")

	appt, err := svc.Book(ctx, BookRequest{PatientID: patient, Start: at(monday, "09:00")})
	require.NoError(t, err)
	other, err := svc.Book(ctx, BookRequest{PatientID: patient, Start: at(monday, "11:00")})
	require.NoError(t, err)

	moved, err := svc.Reschedule(ctx, appt.ID, at(monday, "09:30"))
	require.NoError(t, err)
	assert.Equal(t, at(monday, "09:30"), moved.StartTime)
	assert.Equal(t, at(monday, "10:30"), moved.OccupiedUntil)

	_, err = svc.Reschedule(ctx, appt.ID, at(monday, "10:30"))
	ve := requireViolation(t, err, schedule.SlotConflict)
	assert.Equal(t, other.ID, ve.Result.ConflictID)

	stored, err := svc.GetEntry(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, at(monday, "09:30"), stored.StartTime, "rejected moves write nothing")
}

func TestMoveToDay_DragAndDrop(t *testing.T) {
	svc, repo, locker := newTestService(t)
	ctx := context.Background()
	patient := repo.addPatient("Ana")

	appt, err := svc.Book(ctx, BookRequest{PatientID: patient, Start: at(monday, "16:00")})
	require.NoError(t, err)

	moved, err := svc.MoveToDay(ctx, appt.ID, tuesday)
	require.NoError(t, err)
	assert.Equal(t, at(tuesday, "16:00"), moved.StartTime)
	assert.Equal(t, "2026-10-20", locker.locked[len(locker.locked)-1])

	_, err = svc.MoveToDay(ctx, appt.ID, saturday)
	requireViolation(t, err, schedule.OutsideWorkingHours)

	stored, err := svc.GetEntry(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, at(tuesday, "16:00"), stored.StartTime)

	_, err = svc.MoveToDay(ctx, uuid.New(), tuesday)
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestChangeStatus(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	patient := repo.addPatient("Ana")

	appt, err := svc.Book(ctx, BookRequest{PatientID: patient, Start: at(monday, "09:00")})
	require.NoError(t, err)

	confirmed, err := svc.ChangeStatus(ctx, appt.ID, StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, confirmed.Status)

	_, err = svc.ChangeStatus(ctx, appt.ID, StatusScheduled)
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)

	_, err = svc.ChangeStatus(ctx, appt.ID, StatusCancelled)
	require.NoError(t, err)

	_, err = svc.Reschedule(ctx, appt.ID, at(monday, "10:00"))
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)

	// a cancelled appointment frees its slot
	_, err = svc.Book(ctx, BookRequest{PatientID: patient, Start: at(monday, "09:00")})
	require.NoError(t, err)

	assert.Contains(t, repo.eventTypes(), EventStatusChanged)
}

func TestBlocks(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	patient := repo.addPatient("Ana")

	block, err := svc.CreateBlock(ctx, BlockRequest{Start: at(monday, "10:00"), DurationMinutes: 60, Type: BlockPersonal, Reason: "supervision"})
	require.NoError(t, err)
	assert.Equal(t, schedule.KindBlock, block.Kind)
	assert.Equal(t, at(monday, "11:00"), block.OccupiedUntil)

	_, err = svc.Book(ctx, BookRequest{PatientID: patient, Start: at(monday, "10:30")})
	ve := requireViolation(t, err, schedule.SlotConflict)
	assert.Equal(t, block.ID, ve.Result.ConflictID)

	// the session plus gap ends exactly where the block starts
	_, err = svc.Book(ctx, BookRequest{PatientID: patient, Start: at(monday, "09:00")})
	require.NoError(t, err)

	_, err = svc.CreateBlock(ctx, BlockRequest{Start: at(monday, "09:30"), DurationMinutes: 15, Type: BlockBlocked})
	requireViolation(t, err, schedule.SlotConflict)

	_, err = svc.CreateBlock(ctx, BlockRequest{Start: at(monday, "19:00"), DurationMinutes: 60, Type: BlockBlocked})
	require.NoError(t, err, "blocks may sit outside working hours")

	_, err = svc.CreateBlock(ctx, BlockRequest{Start: at(monday, "20:00"), DurationMinutes: 60, Type: "holiday"})
	assert.ErrorIs(t, err, ErrInvalidBlockType)

	_, err = svc.ChangeStatus(ctx, block.ID, StatusConfirmed)
	assert.ErrorIs(t, err, ErrNotAnAppointment)

	require.NoError(t, svc.RemoveBlock(ctx, block.ID))
	require.NoError(t, svc.RemoveBlock(ctx, block.ID))

	_, err = svc.Book(ctx, BookRequest{PatientID: patient, Start: at(monday, "10:00")})
	require.NoError(t, err)

	assert.Contains(t, repo.eventTypes(), EventBlockRemoved)
}

// staleReadRepo serves a snapshot from GetEntryByID, as if another request
// changed the row between the read and the write.
type staleReadRepo struct {
	*memRepo
	snapshot Entry
}

func (r staleReadRepo) GetEntryByID(context.Context, uuid.UUID) (*Entry, error) {
	e := r.snapshot
	return &e, nil
}

func TestRemoveBlock_ConcurrentCancelLogsOnce(t *testing.T) {
	svc, repo, locker := newTestService(t)
	ctx := context.Background()

	block, err := svc.CreateBlock(ctx, BlockRequest{Start: at(monday, "10:00"), DurationMinutes: 60, Type: BlockBlocked})
	require.NoError(t, err)
	require.NoError(t, svc.RemoveBlock(ctx, block.ID))

	stale := NewService(staleReadRepo{memRepo: repo, snapshot: *block}, locker, staticTemplate{tpl: schedule.DefaultTemplate()}, nil, nil)
	require.NoError(t, stale.RemoveBlock(ctx, block.ID))

	removed := 0
	for _, ev := range repo.eventTypes() {
		if ev == EventBlockRemoved {
			removed++
		}
	}
	assert.Equal(t, 1, removed)
}

func TestRemoveBlock_RejectsAppointments(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	patient := repo.addPatient("Ana")

	appt, err := svc.Book(ctx, BookRequest{PatientID: patient, Start: at(monday, "09:00")})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.RemoveBlock(ctx, appt.ID), ErrNotABlock)
}

func TestValidateAt(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	patient := repo.addPatient("Ana")

	appt, err := svc.Book(ctx, BookRequest{PatientID: patient, Start: at(monday, "14:00")})
	require.NoError(t, err)

	res, err := svc.ValidateAt(ctx, at(monday, "14:20"), 0, uuid.Nil)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, appt.ID, res.ConflictID)

	res, err = svc.ValidateAt(ctx, at(monday, "14:20"), 0, appt.ID)
	require.NoError(t, err)
	assert.True(t, res.Valid)

	_, err = svc.ValidateAt(ctx, at(monday, "14:20"), 9000, uuid.Nil)
	assert.ErrorIs(t, err, ErrInvalidDuration)
}

func TestValidateAt_KeepsStoredGapAfterTemplateChange(t *testing.T) {
	repo := newMemRepo()
	templates := &staticTemplate{tpl: schedule.DefaultTemplate()}
	svc := NewService(repo, &memLocker{busy: map[string]bool{}}, templates, nil, nil)
	ctx := context.Background()
	patient := repo.addPatient("Ana")

	appt, err := svc.Book(ctx, BookRequest{PatientID: patient, Start: at(monday, "10:00")})
	require.NoError(t, err)
	require.Equal(t, at(monday, "11:00"), appt.OccupiedUntil)

	templates.tpl.GapMinutes = 0

	res, err := svc.ValidateAt(ctx, at(monday, "10:50"), 0, uuid.Nil)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, schedule.SlotConflict, res.Violation)
	assert.Equal(t, appt.ID, res.ConflictID)

	for _, sl := range mustSlots(t, svc, monday) {
		if sl.Time.Before(at(monday, "11:00")) && sl.Time.Add(50*time.Minute).After(at(monday, "10:00")) {
			assert.False(t, sl.Available, "slot %s overlaps the stored booking", sl.Time.Format("15:04"))
		}
	}

	_, err = svc.Book(ctx, BookRequest{PatientID: patient, Start: at(monday, "10:50")})
	ve := requireViolation(t, err, schedule.SlotConflict)
	assert.Equal(t, appt.ID, ve.Result.ConflictID)

	next, err := svc.Book(ctx, BookRequest{PatientID: patient, Start: at(monday, "11:00")})
	require.NoError(t, err)
	assert.Equal(t, at(monday, "11:50"), next.OccupiedUntil)
}

func mustSlots(t *testing.T, svc *Service, day time.Time) []schedule.Slot {
	t.Helper()
	slots, err := svc.AvailableSlots(context.Background(), SlotQuery{Date: day})
	require.NoError(t, err)
	return slots
}

func TestCalendar_WeekView(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	patient := repo.addPatient("Ana")

	_, err := svc.Book(ctx, BookRequest{PatientID: patient, Start: at(monday, "15:00")})
	require.NoError(t, err)
	_, err = svc.Book(ctx, BookRequest{PatientID: patient, Start: at(monday, "09:00")})
	require.NoError(t, err)
	_, err = svc.Book(ctx, BookRequest{PatientID: patient, Start: at(tuesday, "09:00")})
	require.NoError(t, err)

	cv, err := svc.Calendar(ctx, "week", tuesday)
	require.NoError(t, err)
	require.Len(t, cv.Days, 7)
	assert.Equal(t, "2026-10-18", cv.Days[0].Date)
	assert.Equal(t, time.Date(2026, time.October, 25, 0, 0, 0, 0, time.UTC), cv.To)

	mon := cv.Days[1]
	assert.Equal(t, "2026-10-19", mon.Date)
	require.Len(t, mon.Entries, 2)
	assert.Equal(t, at(monday, "09:00"), mon.Entries[0].StartTime)
	assert.Equal(t, at(monday, "15:00"), mon.Entries[1].StartTime)
	assert.Len(t, cv.Days[2].Entries, 1)
	assert.Empty(t, cv.Days[0].Entries)

	month, err := svc.Calendar(ctx, "month", monday)
	require.NoError(t, err)
	assert.Len(t, month.Days, 35)

	_, err = svc.Calendar(ctx, "year", monday)
	assert.Error(t, err)
}

func TestListByPatient_ClampsLimit(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.ListByPatient(ctx, uuid.New(), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 20, repo.lastLimit)

	_, err = svc.ListByPatient(ctx, uuid.New(), 500, 0)
	require.NoError(t, err)
	assert.Equal(t, 100, repo.lastLimit)
}

func TestCompletePastSessions(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	patient := repo.addPatient("Ana")

	confirmed, err := svc.Book(ctx, BookRequest{PatientID: patient, Start: at(monday, "09:00")})
	require.NoError(t, err)
	_, err = svc.ChangeStatus(ctx, confirmed.ID, StatusConfirmed)
	require.NoError(t, err)

	pending, err := svc.Book(ctx, BookRequest{PatientID: patient, Start: at(monday, "10:00")})
	require.NoError(t, err)

	svc.now = func() time.Time { return at(monday, "13:00") }

	n, err := svc.CompletePastSessions(ctx, 2*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := svc.GetEntry(ctx, confirmed.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDone, got.Status)

	got, err = svc.GetEntry(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, got.Status)

	n, err = svc.CompletePastSessions(ctx, 2*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestService_RecordsMetrics(t *testing.T) {
	repo := newMemRepo()
	reg := prometheus.NewRegistry()
	m := metrics.NewSchedulingMetrics(reg)
	svc := NewService(repo, &memLocker{busy: map[string]bool{}}, staticTemplate{tpl: schedule.DefaultTemplate()}, m, nil)
	ctx := context.Background()
	patient := repo.addPatient("Ana")

	_, err := svc.Book(ctx, BookRequest{PatientID: patient, Start: at(monday, "09:00")})
	require.NoError(t, err)
	_, err = svc.Book(ctx, BookRequest{PatientID: patient, Start: at(monday, "12:10")})
	require.Error(t, err)

	expected := `
# HELP clinic_calendar_writes_total Calendar writes by operation and outcome
# TYPE clinic_calendar_writes_total counter
clinic_calendar_writes_total{operation="book",result="ok"} 1
clinic_calendar_writes_total{operation="book",result="rejected"} 1
# HELP clinic_calendar_validation_failures_total Rejected date-times by violation
# TYPE clinic_calendar_validation_failures_total counter
clinic_calendar_validation_failures_total{violation="within_break"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"clinic_calendar_writes_total", "clinic_calendar_validation_failures_total"))
}

func TestService_ConcurrentBookingsNeverOverlap(t *testing.T) {
	repo := newMemRepo()
	locker := &serialLocker{}
	svc := NewService(repo, locker, staticTemplate{tpl: schedule.DefaultTemplate()}, nil, nil)
	ctx := context.Background()
	patient := repo.addPatient("Ana")

	starts := []string{"09:00", "09:10", "09:20", "09:30", "09:40", "09:50"}
	var wg sync.WaitGroup
	var mu sync.Mutex
	ok := 0
	for _, s := range starts {
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func(clock string) {
				defer wg.Done()
				if _, err := svc.Book(ctx, BookRequest{PatientID: patient, Start: at(monday, clock)}); err == nil {
					mu.Lock()
					ok++
					mu.Unlock()
				}
			}(s)
		}
	}
	wg.Wait()

	assert.Equal(t, 1, ok)

	live, err := repo.ListEntriesBetween(ctx, monday, tuesday)
	require.NoError(t, err)
	assert.Len(t, live, 1)
}

// serialLocker blocks instead of failing so every goroutine gets its turn.
type serialLocker struct {
	mu sync.Mutex
}

func (l *serialLocker) WithDayLock(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(ctx)
}
