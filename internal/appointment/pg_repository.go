package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hackgods/clinic-calendar/internal/schedule"
)

// exclusion_violation, raised by calendar_entries_no_overlap
const pgExclusionViolation = "23P01"

// DB is the subset of pgxpool.Pool the repository needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgRepository struct {
	pool DB
}

func NewPgRepository(pool DB) *PgRepository {
	return &PgRepository{pool: pool}
}

const entryColumns = `id, kind, patient_id, start_time, duration_minutes, occupied_until, status,
		       mode, service_type, notes, block_type, reason, created_at, updated_at`

// Helpers

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var email *string

	err := row.Scan(
		&p.ID,
		&p.Name,
		&email,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	p.Email = email
	return &p, nil
}

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	var patientID *uuid.UUID

	err := row.Scan(
		&e.ID,
		&e.Kind,
		&patientID,
		&e.StartTime,
		&e.DurationMinutes,
		&e.OccupiedUntil,
		&e.Status,
		&e.Mode,
		&e.ServiceType,
		&e.Notes,
		&e.BlockType,
		&e.Reason,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, err
	}

	e.PatientID = patientID
	return &e, nil
}

func collectEntries(rows pgx.Rows) ([]Entry, error) {
	defer rows.Close()

	var result []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgExclusionViolation {
		return fmt.Errorf("%w (%s)", schedule.ErrSlotConflict, pgErr.ConstraintName)
	}
	return err
}

// Interface methods

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetEntryByID(ctx context.Context, id uuid.UUID) (*Entry, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+entryColumns+`
		FROM calendar_entries
		WHERE id = $1
	`, id)
	return scanEntry(row)
}

func (r *PgRepository) ListEntriesBetween(ctx context.Context, from, to time.Time) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+entryColumns+`
		FROM calendar_entries
		WHERE status <> 'cancelled'
		  AND start_time < $2
		  AND occupied_until > $1
		ORDER BY start_time
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	return collectEntries(rows)
}

func (r *PgRepository) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+entryColumns+`
		FROM calendar_entries
		WHERE kind = 'appointment'
		  AND patient_id = $1
		ORDER BY start_time DESC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list patient appointments: %w", err)
	}
	return collectEntries(rows)
}

func (r *PgRepository) InsertEntry(ctx context.Context, e Entry) (*Entry, error) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO calendar_entries (
			id, kind, patient_id, start_time, duration_minutes, occupied_until, status,
			mode, service_type, notes, block_type, reason, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now(), now())
		RETURNING `+entryColumns,
		e.ID, e.Kind, e.PatientID, e.StartTime, e.DurationMinutes, e.OccupiedUntil, e.Status,
		e.Mode, e.ServiceType, e.Notes, e.BlockType, e.Reason)

	created, err := scanEntry(row)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return created, nil
}

func (r *PgRepository) UpdateEntrySchedule(ctx context.Context, id uuid.UUID, start time.Time, durationMinutes int, occupiedUntil time.Time) (*Entry, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE calendar_entries
		SET start_time = $2,
		    duration_minutes = $3,
		    occupied_until = $4,
		    updated_at = now()
		WHERE id = $1
		  AND status IN ('scheduled', 'confirmed')
		RETURNING `+entryColumns,
		id, start, durationMinutes, occupiedUntil)

	updated, err := scanEntry(row)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return updated, nil
}

func (r *PgRepository) UpdateEntryStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Entry, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE calendar_entries
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+entryColumns,
		id, to, from)

	return scanEntry(row)
}

func (r *PgRepository) FindCompletable(ctx context.Context, endedBefore time.Time) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+entryColumns+`
		FROM calendar_entries
		WHERE kind = 'appointment'
		  AND status = 'confirmed'
		  AND start_time + make_interval(mins => duration_minutes) < $1
	`, endedBefore)
	if err != nil {
		return nil, fmt.Errorf("find completable: %w", err)
	}
	return collectEntries(rows)
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, entry_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.EntryID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
