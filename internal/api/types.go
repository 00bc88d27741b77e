package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-calendar/internal/appointment"
	"github.com/hackgods/clinic-calendar/internal/schedule"
)

type BookAppointmentRequest struct {
	PatientID       string    `json:"patient_id"`
	Start           time.Time `json:"start"`
	DurationMinutes int       `json:"duration_minutes,omitempty"`
	Mode            string    `json:"mode,omitempty"`
	ServiceType     string    `json:"service_type,omitempty"`
	Notes           string    `json:"notes,omitempty"`
}

type RescheduleRequest struct {
	Start time.Time `json:"start"`
}

// MoveRequest is sent when an entry is dropped on another calendar day.
type MoveRequest struct {
	Date string `json:"date"`
}

type StatusRequest struct {
	Status string `json:"status"`
}

type CreateBlockRequest struct {
	Start           time.Time `json:"start"`
	DurationMinutes int       `json:"duration_minutes"`
	Type            string    `json:"type"`
	Reason          string    `json:"reason,omitempty"`
}

type ValidateRequest struct {
	Start           time.Time `json:"start"`
	DurationMinutes int       `json:"durationMinutes,omitempty"`
	ExcludeID       string    `json:"excludeId,omitempty"`
}

type ValidateResponse struct {
	IsValid    bool       `json:"isValid"`
	Error      string     `json:"error,omitempty"`
	ConflictID *uuid.UUID `json:"conflictId,omitempty"`
}

type SlotResponse struct {
	Time        string    `json:"time"`
	Start       time.Time `json:"start"`
	IsAvailable bool      `json:"isAvailable"`
}

type EntryResponse struct {
	ID              uuid.UUID  `json:"id"`
	Kind            string     `json:"kind"`
	PatientID       *uuid.UUID `json:"patient_id,omitempty"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         time.Time  `json:"end_time"`
	DurationMinutes int        `json:"duration_minutes"`
	Status          string     `json:"status"`
	Mode            string     `json:"mode,omitempty"`
	ServiceType     string     `json:"service_type,omitempty"`
	Notes           string     `json:"notes,omitempty"`
	BlockType       string     `json:"block_type,omitempty"`
	Reason          string     `json:"reason,omitempty"`
}

type CalendarDayResponse struct {
	Date    string          `json:"date"`
	Entries []EntryResponse `json:"entries"`
}

type CalendarResponse struct {
	From time.Time             `json:"from"`
	To   time.Time             `json:"to"`
	Days []CalendarDayResponse `json:"days"`
}

type ErrorResponse struct {
	Error      string     `json:"error"`
	Details    string     `json:"details,omitempty"`
	ConflictID *uuid.UUID `json:"conflictId,omitempty"`
}

func toEntryResponse(e *appointment.Entry) EntryResponse {
	return EntryResponse{
		ID:              e.ID,
		Kind:            string(e.Kind),
		PatientID:       e.PatientID,
		StartTime:       e.StartTime,
		EndTime:         e.EndTime(),
		DurationMinutes: e.DurationMinutes,
		Status:          string(e.Status),
		Mode:            string(e.Mode),
		ServiceType:     e.ServiceType,
		Notes:           e.Notes,
		BlockType:       string(e.BlockType),
		Reason:          e.Reason,
	}
}

func toEntryResponses(entries []appointment.Entry) []EntryResponse {
	out := make([]EntryResponse, 0, len(entries))
	for i := range entries {
		out = append(out, toEntryResponse(&entries[i]))
	}
	return out
}

func toSlotResponses(slots []schedule.Slot) []SlotResponse {
	out := make([]SlotResponse, 0, len(slots))
	for _, s := range slots {
		out = append(out, SlotResponse{
			Time:        s.Time.Format("15:04"),
			Start:       s.Time,
			IsAvailable: s.Available,
		})
	}
	return out
}

func toValidateResponse(res schedule.Result) ValidateResponse {
	if res.Valid {
		return ValidateResponse{IsValid: true}
	}
	resp := ValidateResponse{Error: string(res.Violation)}
	if res.ConflictID != uuid.Nil {
		id := res.ConflictID
		resp.ConflictID = &id
	}
	return resp
}

func toCalendarResponse(cv *appointment.CalendarView) CalendarResponse {
	resp := CalendarResponse{From: cv.From, To: cv.To, Days: make([]CalendarDayResponse, 0, len(cv.Days))}
	for _, d := range cv.Days {
		resp.Days = append(resp.Days, CalendarDayResponse{Date: d.Date, Entries: toEntryResponses(d.Entries)})
	}
	return resp
}
