package api

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-calendar/internal/appointment"
	"github.com/hackgods/clinic-calendar/internal/metrics"
	"github.com/hackgods/clinic-calendar/internal/schedule"
)

// CalendarService is the part of appointment.Service the HTTP layer uses.
type CalendarService interface {
	Template(ctx context.Context) (schedule.Template, error)
	AvailableSlots(ctx context.Context, q appointment.SlotQuery) ([]schedule.Slot, error)
	ValidateAt(ctx context.Context, at time.Time, durationMinutes int, excludeID uuid.UUID) (schedule.Result, error)
	Calendar(ctx context.Context, view string, anchor time.Time) (*appointment.CalendarView, error)

	Book(ctx context.Context, req appointment.BookRequest) (*appointment.Entry, error)
	GetEntry(ctx context.Context, id uuid.UUID) (*appointment.Entry, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]appointment.Entry, error)
	Reschedule(ctx context.Context, id uuid.UUID, newStart time.Time) (*appointment.Entry, error)
	MoveToDay(ctx context.Context, id uuid.UUID, targetDay time.Time) (*appointment.Entry, error)
	ChangeStatus(ctx context.Context, id uuid.UUID, to appointment.Status) (*appointment.Entry, error)

	CreateBlock(ctx context.Context, req appointment.BlockRequest) (*appointment.Entry, error)
	RemoveBlock(ctx context.Context, id uuid.UUID) error
}

// TemplateWriter replaces the working-hours template.
type TemplateWriter interface {
	Set(ctx context.Context, tpl schedule.Template) error
}

type RouterConfig struct {
	Service        CalendarService
	Templates      TemplateWriter
	Logger         *zap.Logger
	Metrics        *metrics.SchedulingMetrics
	MetricsHandler http.Handler
	PostgresPing   PingFunc
	RedisPing      PingFunc
	RateLimitRPS   float64
	RateLimitBurst int
	TrustedProxies []*net.IPNet
	Env            string
	Version        string
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger, cfg.Metrics))

	// Health endpoints
	health := NewHealthHandler(cfg.PostgresPing, cfg.RedisPing, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	// Read endpoints
	r.Get("/schedule/slots", availableSlotsHandler(cfg.Service))
	r.Post("/schedule/validate", validateHandler(cfg.Service))
	r.Get("/schedule/template", getTemplateHandler(cfg.Service))
	r.Get("/calendar", calendarHandler(cfg.Service))
	r.Get("/appointments", listAppointmentsHandler(cfg.Service))
	r.Get("/appointments/{id}", getAppointmentHandler(cfg.Service))

	// Write endpoints
	r.Group(func(r chi.Router) {
		if cfg.RateLimitRPS > 0 {
			r.Use(NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, logger, WithTrustedProxies(cfg.TrustedProxies)).Middleware)
		}

		r.Post("/appointments", bookAppointmentHandler(cfg.Service))
		r.Patch("/appointments/{id}/reschedule", rescheduleHandler(cfg.Service))
		r.Post("/appointments/{id}/move", moveHandler(cfg.Service))
		r.Post("/appointments/{id}/status", changeStatusHandler(cfg.Service))

		r.Post("/blocks", createBlockHandler(cfg.Service))
		r.Delete("/blocks/{id}", removeBlockHandler(cfg.Service))

		if cfg.Templates != nil {
			r.Put("/schedule/template", putTemplateHandler(cfg.Templates))
		}
	})

	return r
}
