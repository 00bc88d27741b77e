package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrPatientNotFound = errors.New("patient not found")
	ErrEntryNotFound   = errors.New("calendar entry not found")
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)

	GetEntryByID(ctx context.Context, id uuid.UUID) (*Entry, error)

	// For conflict checks: every non-cancelled entry whose occupied interval
	// intersects [from, to).
	ListEntriesBetween(ctx context.Context, from, to time.Time) ([]Entry, error)
	ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Entry, error)

	// Creation and updates. Writes that would overlap another live entry
	// fail with schedule.ErrSlotConflict.
	InsertEntry(ctx context.Context, e Entry) (*Entry, error)
	UpdateEntrySchedule(ctx context.Context, id uuid.UUID, start time.Time, durationMinutes int, occupiedUntil time.Time) (*Entry, error)
	UpdateEntryStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Entry, error)

	// Completion worker
	FindCompletable(ctx context.Context, endedBefore time.Time) ([]Entry, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
