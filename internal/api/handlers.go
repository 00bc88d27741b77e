package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-calendar/internal/appointment"
	"github.com/hackgods/clinic-calendar/internal/schedule"
)

func availableSlotsHandler(svc CalendarService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tpl, err := svc.Template(r.Context())
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		q := r.URL.Query()
		date, err := schedule.ParseDay(q.Get("date"), tpl.Location())
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		query := appointment.SlotQuery{Date: date}
		if raw := q.Get("exclude"); raw != "" {
			if query.ExcludeID, err = uuid.Parse(raw); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_exclude_id", "exclude must be a valid UUID")
				return
			}
		}
		if raw := q.Get("duration"); raw != "" {
			if query.DurationMinutes, err = strconv.Atoi(raw); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_duration", "duration must be a number of minutes")
				return
			}
		}

		slots, err := svc.AvailableSlots(r.Context(), query)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toSlotResponses(slots))
	}
}

func validateHandler(svc CalendarService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ValidateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if req.Start.IsZero() {
			writeError(w, http.StatusBadRequest, "invalid_start", "start is required")
			return
		}

		var exclude uuid.UUID
		if req.ExcludeID != "" {
			var err error
			if exclude, err = uuid.Parse(req.ExcludeID); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_exclude_id", "excludeId must be a valid UUID")
				return
			}
		}

		res, err := svc.ValidateAt(r.Context(), req.Start, req.DurationMinutes, exclude)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toValidateResponse(res))
	}
}

func getTemplateHandler(svc CalendarService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tpl, err := svc.Template(r.Context())
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, tpl)
	}
}

func putTemplateHandler(store TemplateWriter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var tpl schedule.Template
		if err := json.NewDecoder(r.Body).Decode(&tpl); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
			return
		}

		if err := store.Set(r.Context(), tpl); err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, tpl)
	}
}

func calendarHandler(svc CalendarService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		view := q.Get("view")
		if view == "" {
			view = "month"
		}
		if view != "month" && view != "week" {
			writeError(w, http.StatusBadRequest, "invalid_view", "view must be month or week")
			return
		}

		tpl, err := svc.Template(r.Context())
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		anchor, err := schedule.ParseDay(q.Get("date"), tpl.Location())
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		cv, err := svc.Calendar(r.Context(), view, anchor)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toCalendarResponse(cv))
	}
}

func bookAppointmentHandler(svc CalendarService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}
		if req.Start.IsZero() {
			writeError(w, http.StatusBadRequest, "invalid_start", "start is required")
			return
		}

		appt, err := svc.Book(r.Context(), appointment.BookRequest{
			PatientID:       patientID,
			Start:           req.Start,
			DurationMinutes: req.DurationMinutes,
			Mode:            appointment.Mode(req.Mode),
			ServiceType:     req.ServiceType,
			Notes:           req.Notes,
		})
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, toEntryResponse(appt))
	}
}

func getAppointmentHandler(svc CalendarService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		entry, err := svc.GetEntry(r.Context(), id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toEntryResponse(entry))
	}
}

func listAppointmentsHandler(svc CalendarService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		patientID, err := uuid.Parse(q.Get("patient_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}

		limit, okLimit := queryInt(q.Get("limit"))
		offset, okOffset := queryInt(q.Get("offset"))
		if !okLimit || !okOffset || limit < 0 || offset < 0 {
			writeError(w, http.StatusBadRequest, "invalid_pagination", "limit and offset must be non-negative integers")
			return
		}

		entries, err := svc.ListByPatient(r.Context(), patientID, limit, offset)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toEntryResponses(entries))
	}
}

func rescheduleHandler(svc CalendarService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		var req RescheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Start.IsZero() {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "start is required")
			return
		}

		entry, err := svc.Reschedule(r.Context(), id, req.Start)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toEntryResponse(entry))
	}
}

func moveHandler(svc CalendarService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		var req MoveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		tpl, err := svc.Template(r.Context())
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		day, err := schedule.ParseDay(req.Date, tpl.Location())
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		entry, err := svc.MoveToDay(r.Context(), id, day)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toEntryResponse(entry))
	}
}

func changeStatusHandler(svc CalendarService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		var req StatusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		entry, err := svc.ChangeStatus(r.Context(), id, appointment.Status(req.Status))
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toEntryResponse(entry))
	}
}

func createBlockHandler(svc CalendarService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateBlockRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if req.Start.IsZero() {
			writeError(w, http.StatusBadRequest, "invalid_start", "start is required")
			return
		}

		block, err := svc.CreateBlock(r.Context(), appointment.BlockRequest{
			Start:           req.Start,
			DurationMinutes: req.DurationMinutes,
			Type:            appointment.BlockType(req.Type),
			Reason:          req.Reason,
		})
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, toEntryResponse(block))
	}
}

func removeBlockHandler(svc CalendarService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		if err := svc.RemoveBlock(r.Context(), id); err != nil {
			handleServiceError(w, r, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// queryInt parses an optional integer query value; empty means zero.
func queryInt(raw string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	return n, err == nil
}

func parseIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *appointment.ViolationError
	if errors.As(err, &ve) {
		resp := ErrorResponse{Error: string(ve.Result.Violation), Details: ve.Result.Err().Error()}
		if ve.Result.ConflictID != uuid.Nil {
			id := ve.Result.ConflictID
			resp.ConflictID = &id
		}
		status := http.StatusUnprocessableEntity
		if ve.Result.Violation == schedule.SlotConflict {
			status = http.StatusConflict
		}
		writeJSON(w, status, resp)
		return
	}

	switch {
	case errors.Is(err, appointment.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, appointment.ErrEntryNotFound):
		writeError(w, http.StatusNotFound, "entry_not_found", err.Error())
	case errors.Is(err, appointment.ErrCalendarBusy):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusConflict, "calendar_busy", err.Error())
	case errors.Is(err, appointment.ErrInvalidStatusTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, appointment.ErrInvalidDuration),
		errors.Is(err, appointment.ErrInvalidMode),
		errors.Is(err, appointment.ErrInvalidBlockType),
		errors.Is(err, appointment.ErrNotAnAppointment),
		errors.Is(err, appointment.ErrNotABlock),
		errors.Is(err, schedule.ErrInvalidTemplate),
		errors.Is(err, schedule.ErrInvalidWindow),
		errors.Is(err, schedule.ErrInvalidClock):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		zap.L().Error("request failed",
			zap.String("request_id", GetRequestID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
