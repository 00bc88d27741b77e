package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-calendar/internal/metrics"
	redisclient "github.com/hackgods/clinic-calendar/internal/redis"
	"github.com/hackgods/clinic-calendar/internal/schedule"
)

const (
	EventAppointmentBooked      = "APPOINTMENT_BOOKED"
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
	EventStatusChanged          = "STATUS_CHANGED"
	EventAppointmentCompleted   = "APPOINTMENT_COMPLETED"
	EventBlockCreated           = "BLOCK_CREATED"
	EventBlockRemoved           = "BLOCK_REMOVED"
)

const maxDurationMinutes = 8 * 60

var (
	ErrCalendarBusy            = errors.New("calendar day is being changed, please retry")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrInvalidDuration         = errors.New("duration must be between 1 and 480 minutes")
	ErrInvalidMode             = errors.New("mode must be in_person or online")
	ErrInvalidBlockType        = errors.New("block type must be blocked or personal")
	ErrNotAnAppointment        = errors.New("entry is not an appointment")
	ErrNotABlock               = errors.New("entry is not a block")
)

// ViolationError carries a rejected validation result back to the caller.
// It unwraps to the schedule sentinel for the violation.
type ViolationError struct {
	Result schedule.Result
}

func (e *ViolationError) Error() string {
	if e.Result.ConflictID != uuid.Nil {
		return fmt.Sprintf("%v (conflicts with %s)", e.Result.Err(), e.Result.ConflictID)
	}
	return e.Result.Err().Error()
}

func (e *ViolationError) Unwrap() error {
	return e.Result.Err()
}

// TemplateSource yields the working-hours template in force.
type TemplateSource interface {
	Get(ctx context.Context) (schedule.Template, error)
}

type Service struct {
	repo      Repository
	locker    redisclient.Locker
	templates TemplateSource
	metrics   *metrics.SchedulingMetrics
	logger    *zap.Logger
	now       func() time.Time
}

func NewService(repo Repository, locker redisclient.Locker, templates TemplateSource, m *metrics.SchedulingMetrics, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:      repo,
		locker:    locker,
		templates: templates,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

type BookRequest struct {
	PatientID       uuid.UUID
	Start           time.Time
	DurationMinutes int // 0 means the template session length
	Mode            Mode
	ServiceType     string
	Notes           string
}

type BlockRequest struct {
	Start           time.Time
	DurationMinutes int
	Type            BlockType
	Reason          string
}

type SlotQuery struct {
	Date            time.Time
	DurationMinutes int
	ExcludeID       uuid.UUID
}

// Template returns the template in force.
func (s *Service) Template(ctx context.Context) (schedule.Template, error) {
	tpl, err := s.templates.Get(ctx)
	if err != nil {
		return schedule.Template{}, fmt.Errorf("load template: %w", err)
	}
	return tpl, nil
}

// AvailableSlots lists the template slots of q.Date with their availability.
func (s *Service) AvailableSlots(ctx context.Context, q SlotQuery) ([]schedule.Slot, error) {
	tpl, err := s.Template(ctx)
	if err != nil {
		return nil, err
	}
	if q.DurationMinutes < 0 || q.DurationMinutes > maxDurationMinutes {
		return nil, ErrInvalidDuration
	}

	existing, err := s.dayEntries(ctx, q.Date, tpl.Location())
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveSlotQuery()
	return schedule.AvailableSlots(q.Date, tpl, reservations(existing),
		schedule.WithSession(time.Duration(q.DurationMinutes)*time.Minute),
		schedule.WithExclude(q.ExcludeID),
	), nil
}

// ValidateAt checks a single date-time against the current calendar. It
// writes nothing; Book and Reschedule run the same check under the day lock.
func (s *Service) ValidateAt(ctx context.Context, at time.Time, durationMinutes int, excludeID uuid.UUID) (schedule.Result, error) {
	tpl, err := s.Template(ctx)
	if err != nil {
		return schedule.Result{}, err
	}
	if durationMinutes < 0 || durationMinutes > maxDurationMinutes {
		return schedule.Result{}, ErrInvalidDuration
	}

	existing, err := s.dayEntries(ctx, at, tpl.Location())
	if err != nil {
		return schedule.Result{}, err
	}

	res := schedule.Validate(at, time.Duration(durationMinutes)*time.Minute, tpl, reservations(existing), excludeID)
	if !res.Valid {
		s.metrics.ObserveViolation(string(res.Violation))
	}
	return res, nil
}

// Book validates and writes a new appointment. The day lock and the
// database exclusion constraint together keep two concurrent bookings from
// both landing on overlapping intervals.
func (s *Service) Book(ctx context.Context, req BookRequest) (*Entry, error) {
	if req.Mode == "" {
		req.Mode = ModeInPerson
	}
	if !req.Mode.Valid() {
		return nil, ErrInvalidMode
	}

	if _, err := s.repo.GetPatientByID(ctx, req.PatientID); err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	tpl, err := s.Template(ctx)
	if err != nil {
		return nil, err
	}
	duration, err := resolveDuration(req.DurationMinutes, tpl)
	if err != nil {
		return nil, err
	}

	patientID := req.PatientID
	entry := Entry{
		ID:              uuid.New(),
		Kind:            schedule.KindAppointment,
		PatientID:       &patientID,
		StartTime:       req.Start,
		DurationMinutes: duration,
		Status:          StatusScheduled,
		Mode:            req.Mode,
		ServiceType:     req.ServiceType,
		Notes:           req.Notes,
	}
	entry.OccupiedUntil = occupiedUntil(entry, tpl.Gap())

	var created *Entry
	err = s.withDay(ctx, req.Start, tpl, func(lockCtx context.Context, existing []Entry) error {
		res := schedule.Validate(req.Start, entry.Duration(), tpl, reservations(existing), uuid.Nil)
		if !res.Valid {
			return &ViolationError{Result: res}
		}

		appt, err := s.repo.InsertEntry(lockCtx, entry)
		if err != nil {
			return fmt.Errorf("insert appointment: %w", err)
		}
		created = appt

		s.logEvent(lockCtx, appt.ID, EventAppointmentBooked, map[string]any{
			"patient_id":       patientID.String(),
			"start_time":       appt.StartTime,
			"duration_minutes": appt.DurationMinutes,
			"mode":             appt.Mode,
		})
		return nil
	})
	if err != nil {
		s.observeWrite("book", err)
		return nil, err
	}

	s.observeWrite("book", nil)
	s.logger.Info("appointment booked",
		zap.String("entry_id", created.ID.String()),
		zap.String("patient_id", patientID.String()),
		zap.Time("start_time", created.StartTime),
	)
	return created, nil
}

// Reschedule moves an appointment or block to newStart, keeping its duration.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, newStart time.Time) (*Entry, error) {
	entry, err := s.repo.GetEntryByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load entry: %w", err)
	}
	return s.reschedule(ctx, entry, newStart, "reschedule")
}

// MoveToDay is the drag-and-drop move: the entry keeps its time of day and
// lands on targetDay. The target day's template and entries decide whether
// the move is legal; on failure nothing is written.
func (s *Service) MoveToDay(ctx context.Context, id uuid.UUID, targetDay time.Time) (*Entry, error) {
	entry, err := s.repo.GetEntryByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load entry: %w", err)
	}
	tpl, err := s.Template(ctx)
	if err != nil {
		return nil, err
	}

	target := schedule.ComposeDrop(entry.StartTime, targetDay, tpl.Location())
	return s.reschedule(ctx, entry, target, "move")
}

func (s *Service) reschedule(ctx context.Context, entry *Entry, newStart time.Time, op string) (*Entry, error) {
	if !entry.Status.Editable() {
		return nil, ErrInvalidStatusTransition
	}

	tpl, err := s.Template(ctx)
	if err != nil {
		return nil, err
	}

	moved := *entry
	moved.StartTime = newStart
	moved.OccupiedUntil = occupiedUntil(moved, tpl.Gap())

	var updated *Entry
	err = s.withDay(ctx, newStart, tpl, func(lockCtx context.Context, existing []Entry) error {
		if err := checkEntry(moved, tpl, existing); err != nil {
			return err
		}

		u, err := s.repo.UpdateEntrySchedule(lockCtx, entry.ID, newStart, entry.DurationMinutes, moved.OccupiedUntil)
		if err != nil {
			if errors.Is(err, ErrEntryNotFound) {
				// status changed under us
				return ErrInvalidStatusTransition
			}
			return fmt.Errorf("update entry schedule: %w", err)
		}
		updated = u

		s.logEvent(lockCtx, u.ID, EventAppointmentRescheduled, map[string]any{
			"from": entry.StartTime,
			"to":   u.StartTime,
			"op":   op,
		})
		return nil
	})
	if err != nil {
		s.observeWrite(op, err)
		return nil, err
	}

	s.observeWrite(op, nil)
	return updated, nil
}

// checkEntry applies the rules for the entry's kind. Appointments go through
// the full validator; blocks may sit outside working hours but must not
// collide with anything.
func checkEntry(e Entry, tpl schedule.Template, existing []Entry) error {
	if !e.IsBlock() {
		res := schedule.Validate(e.StartTime, e.Duration(), tpl, reservations(existing), e.ID)
		if !res.Valid {
			return &ViolationError{Result: res}
		}
		return nil
	}

	if c := schedule.ConflictsFor(e.Reservation(), tpl.Gap(), reservations(existing)); len(c) > 0 {
		return &ViolationError{Result: schedule.Result{Violation: schedule.SlotConflict, ConflictID: c[0].ID}}
	}
	return nil
}

// ChangeStatus applies a status transition (confirm, done, cancel).
func (s *Service) ChangeStatus(ctx context.Context, id uuid.UUID, to Status) (*Entry, error) {
	entry, err := s.repo.GetEntryByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load entry: %w", err)
	}
	if entry.IsBlock() && to != StatusCancelled {
		return nil, ErrNotAnAppointment
	}
	if !entry.Status.CanMoveTo(to) {
		return nil, ErrInvalidStatusTransition
	}

	updated, err := s.repo.UpdateEntryStatus(ctx, entry.ID, entry.Status, to)
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			return nil, ErrInvalidStatusTransition
		}
		return nil, fmt.Errorf("update status: %w", err)
	}

	s.logEvent(ctx, updated.ID, EventStatusChanged, map[string]any{
		"from": entry.Status,
		"to":   to,
	})
	s.observeWrite("status", nil)
	return updated, nil
}

// CreateBlock reserves personal or blocked time.
func (s *Service) CreateBlock(ctx context.Context, req BlockRequest) (*Entry, error) {
	if !req.Type.Valid() {
		return nil, ErrInvalidBlockType
	}
	if req.DurationMinutes <= 0 || req.DurationMinutes > 24*60 {
		return nil, ErrInvalidDuration
	}

	tpl, err := s.Template(ctx)
	if err != nil {
		return nil, err
	}

	entry := Entry{
		ID:              uuid.New(),
		Kind:            schedule.KindBlock,
		StartTime:       req.Start,
		DurationMinutes: req.DurationMinutes,
		Status:          StatusScheduled,
		BlockType:       req.Type,
		Reason:          req.Reason,
	}
	entry.OccupiedUntil = entry.EndTime()

	var created *Entry
	err = s.withDay(ctx, req.Start, tpl, func(lockCtx context.Context, existing []Entry) error {
		if err := checkEntry(entry, tpl, existing); err != nil {
			return err
		}
		b, err := s.repo.InsertEntry(lockCtx, entry)
		if err != nil {
			return fmt.Errorf("insert block: %w", err)
		}
		created = b

		s.logEvent(lockCtx, b.ID, EventBlockCreated, map[string]any{
			"type":   b.BlockType,
			"reason": b.Reason,
		})
		return nil
	})
	if err != nil {
		s.observeWrite("block", err)
		return nil, err
	}

	s.observeWrite("block", nil)
	return created, nil
}

// RemoveBlock cancels a block so it no longer takes part in conflict checks.
func (s *Service) RemoveBlock(ctx context.Context, id uuid.UUID) error {
	entry, err := s.repo.GetEntryByID(ctx, id)
	if err != nil {
		return fmt.Errorf("load entry: %w", err)
	}
	if !entry.IsBlock() {
		return ErrNotABlock
	}
	if entry.Status == StatusCancelled {
		return nil
	}

	if _, err := s.repo.UpdateEntryStatus(ctx, id, entry.Status, StatusCancelled); err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			// cancelled concurrently
			return nil
		}
		return fmt.Errorf("cancel block: %w", err)
	}
	s.logEvent(ctx, id, EventBlockRemoved, map[string]any{})
	return nil
}

// Calendar builds the month or week view around anchor.
func (s *Service) Calendar(ctx context.Context, view string, anchor time.Time) (*CalendarView, error) {
	tpl, err := s.Template(ctx)
	if err != nil {
		return nil, err
	}
	loc := tpl.Location()

	var days []time.Time
	switch view {
	case "week":
		days = schedule.WeekRange(anchor, loc)
	case "month", "":
		days = schedule.MonthGrid(anchor, loc)
	default:
		return nil, fmt.Errorf("unknown calendar view %q", view)
	}

	from := days[0]
	to := days[len(days)-1].AddDate(0, 0, 1)
	entries, err := s.repo.ListEntriesBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("load calendar: %w", err)
	}

	byDay := schedule.GroupByDay(entries, func(e Entry) time.Time { return e.StartTime }, loc)

	cv := &CalendarView{From: from, To: to, Days: make([]CalendarDay, 0, len(days))}
	for _, d := range days {
		key := schedule.DayKey(d, loc)
		cv.Days = append(cv.Days, CalendarDay{Date: key, Entries: byDay[key]})
	}
	return cv, nil
}

// GetEntry retrieves an appointment or block by ID
func (s *Service) GetEntry(ctx context.Context, id uuid.UUID) (*Entry, error) {
	entry, err := s.repo.GetEntryByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
	}
	return entry, nil
}

// ListByPatient retrieves appointments for a specific patient, newest first
func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20 // default
	}
	if limit > 100 {
		limit = 100 // max
	}
	if offset < 0 {
		offset = 0
	}

	entries, err := s.repo.ListAppointmentsByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return entries, nil
}

// CompletePastSessions is intended to be called by the worker periodically.
// Confirmed sessions that ended more than after ago become done.
func (s *Service) CompletePastSessions(ctx context.Context, after time.Duration) (int, error) {
	candidates, err := s.repo.FindCompletable(ctx, s.now().Add(-after))
	if err != nil {
		return 0, fmt.Errorf("find completable appointments: %w", err)
	}

	completed := 0
	for _, e := range candidates {
		_, err := s.repo.UpdateEntryStatus(ctx, e.ID, StatusConfirmed, StatusDone)
		if err != nil {
			if !errors.Is(err, ErrEntryNotFound) {
				s.logger.Warn("failed to complete appointment", zap.String("entry_id", e.ID.String()), zap.Error(err))
			}
			continue
		}
		completed++
		s.logEvent(ctx, e.ID, EventAppointmentCompleted, map[string]any{
			"reason": "worker",
		})
	}

	return completed, nil
}

// withDay runs fn under the lock for at's calendar day with that day's live
// entries loaded inside the critical section.
func (s *Service) withDay(ctx context.Context, at time.Time, tpl schedule.Template, fn func(ctx context.Context, existing []Entry) error) error {
	loc := tpl.Location()
	err := s.locker.WithDayLock(ctx, schedule.DayKey(at, loc), func(lockCtx context.Context) error {
		existing, err := s.dayEntries(lockCtx, at, loc)
		if err != nil {
			return err
		}
		return fn(lockCtx, existing)
	})

	switch {
	case err == nil:
		return nil
	case errors.Is(err, redisclient.ErrLockNotAcquired):
		return ErrCalendarBusy
	case errors.Is(err, schedule.ErrSlotConflict):
		var ve *ViolationError
		if errors.As(err, &ve) {
			return ve
		}
		// rejected by the exclusion constraint
		return &ViolationError{Result: schedule.Result{Violation: schedule.SlotConflict}}
	}
	return err
}

func (s *Service) dayEntries(ctx context.Context, at time.Time, loc *time.Location) ([]Entry, error) {
	from := schedule.StartOfDay(at, loc)
	entries, err := s.repo.ListEntriesBetween(ctx, from, from.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("load day entries: %w", err)
	}
	return entries, nil
}

func resolveDuration(minutes int, tpl schedule.Template) (int, error) {
	if minutes == 0 {
		minutes = tpl.SessionMinutes
	}
	if minutes <= 0 || minutes > maxDurationMinutes {
		return 0, ErrInvalidDuration
	}
	return minutes, nil
}

func (s *Service) observeWrite(op string, err error) {
	var ve *ViolationError
	switch {
	case err == nil:
		s.metrics.ObserveWrite(op, "ok")
	case errors.As(err, &ve):
		s.metrics.ObserveWrite(op, "rejected")
		s.metrics.ObserveViolation(string(ve.Result.Violation))
	case errors.Is(err, ErrCalendarBusy):
		s.metrics.ObserveWrite(op, "busy")
	default:
		s.metrics.ObserveWrite(op, "error")
	}
}

func (s *Service) logEvent(ctx context.Context, entryID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("failed to marshal event payload", zap.String("event_type", eventType), zap.Error(err))
		data = nil
	}

	id := entryID

	ev := EventLog{
		EventType: eventType,
		EntryID:   &id,
		Payload:   data,
		CreatedAt: s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.logger.Warn("failed to insert event log",
			zap.String("event_type", eventType),
			zap.String("entry_id", entryID.String()),
			zap.Error(err),
		)
	}
}
