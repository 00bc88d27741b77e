package main

import (
	"context"
	"errors"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-calendar/internal/appointment"
	"github.com/hackgods/clinic-calendar/internal/config"
	"github.com/hackgods/clinic-calendar/internal/db"
	"github.com/hackgods/clinic-calendar/internal/logging"
	redisclient "github.com/hackgods/clinic-calendar/internal/redis"
	"github.com/hackgods/clinic-calendar/internal/schedule"
)

const (
	patientCount = 200
	bookingRatio = 0.6
)

var serviceTypes = []string{
	"Individual therapy",
	"Couples therapy",
	"Initial assessment",
	"Follow-up",
	"Family session",
}

var sessionNotes = []string{
	"",
	"First session after referral",
	"Prefers afternoon sessions",
	"Review homework from last week",
	"Bring intake questionnaire",
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("config load error: " + err.Error())
	}

	logger := logging.Must(cfg.Env, cfg.LogLevel).Named("seed")
	defer func() { _ = logger.Sync() }()
	logger.Info("seed starting")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, logger)
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redisclient.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		logger.Fatal("connect redis", zap.Error(err))
	}
	defer func() { _ = rdb.Close() }()

	fallback, err := config.LoadTemplate(cfg.TemplateFile)
	if err != nil {
		logger.Fatal("template load error", zap.Error(err))
	}

	patients, err := seedPatients(ctx, pool, patientCount, logger)
	if err != nil {
		logger.Fatal("seed patients", zap.Error(err))
	}

	// Bookings go through the service so every seeded entry passes validation.
	repo := appointment.NewPgRepository(pool)
	locker := redisclient.NewRedisDayLocker(rdb, cfg.LockTTL)
	templates := redisclient.NewTemplateStore(rdb, fallback)
	svc := appointment.NewService(repo, locker, templates, nil, logger)

	if err := seedWeek(ctx, svc, patients, logger); err != nil {
		logger.Fatal("seed bookings", zap.Error(err))
	}

	logger.Info("seed complete")
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int, logger *zap.Logger) ([]uuid.UUID, error) {
	logger.Info("seeding patients", zap.Int("count", count))

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		_, err := tx.Exec(ctx, `
			INSERT INTO patients (id, name, email, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, gofakeit.Name(), gofakeit.Email())
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return ids, nil
}

// seedWeek fills roughly bookingRatio of next week's slots and blocks one
// supervision hour per active day.
func seedWeek(ctx context.Context, svc *appointment.Service, patients []uuid.UUID, logger *zap.Logger) error {
	tpl, err := svc.Template(ctx)
	if err != nil {
		return err
	}
	loc := tpl.Location()

	nextWeek := time.Now().In(loc).AddDate(0, 0, 7)
	booked, skipped := 0, 0

	for _, day := range schedule.WeekRange(nextWeek, loc) {
		if !tpl.IsActive(day.Weekday()) {
			continue
		}

		slots, err := svc.AvailableSlots(ctx, appointment.SlotQuery{Date: day})
		if err != nil {
			return err
		}
		if len(slots) == 0 {
			continue
		}

		last := slots[len(slots)-1]
		if last.Available {
			_, err := svc.CreateBlock(ctx, appointment.BlockRequest{
				Start:           last.Time,
				DurationMinutes: tpl.SessionMinutes,
				Type:            appointment.BlockPersonal,
				Reason:          "Clinical supervision",
			})
			if err != nil && !isRejection(err) {
				return err
			}
			slots = slots[:len(slots)-1]
		}

		for _, slot := range slots {
			if !slot.Available || gofakeit.Float64Range(0, 1) > bookingRatio {
				continue
			}

			mode := appointment.ModeInPerson
			if gofakeit.Bool() {
				mode = appointment.ModeOnline
			}

			_, err := svc.Book(ctx, appointment.BookRequest{
				PatientID:   patients[gofakeit.Number(0, len(patients)-1)],
				Start:       slot.Time,
				Mode:        mode,
				ServiceType: serviceTypes[gofakeit.Number(0, len(serviceTypes)-1)],
				Notes:       gofakeit.RandomString(sessionNotes),
			})
			if err != nil {
				if isRejection(err) {
					skipped++
					continue
				}
				return err
			}
			booked++
		}
	}

	logger.Info("bookings seeded", zap.Int("booked", booked), zap.Int("skipped", skipped))
	return nil
}

func isRejection(err error) bool {
	var ve *appointment.ViolationError
	return errors.As(err, &ve) || errors.Is(err, appointment.ErrCalendarBusy)
}
