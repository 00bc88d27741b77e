package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/clinic-calendar/internal/appointment"
	"github.com/hackgods/clinic-calendar/internal/config"
	"github.com/hackgods/clinic-calendar/internal/db"
	"github.com/hackgods/clinic-calendar/internal/logging"
	redisclient "github.com/hackgods/clinic-calendar/internal/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("config load error: " + err.Error())
	}

	logger := logging.Must(cfg.Env, cfg.LogLevel).Named("completion-worker")
	defer func() { _ = logger.Sync() }()

	logger.Info("completion worker starting up",
		zap.String("env", cfg.Env),
		zap.Duration("interval", cfg.WorkerInterval),
		zap.Duration("complete_after", cfg.CompleteAfter),
	)

	fallback, err := config.LoadTemplate(cfg.TemplateFile)
	if err != nil {
		logger.Fatal("template load error", zap.Error(err))
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, logger)
	cancelPg()
	if err != nil {
		logger.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()

	rdb, err := redisclient.NewRedisClient(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		logger.Fatal("redis connection error", zap.Error(err))
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Warn("error closing redis", zap.Error(err))
		}
	}()

	repo := appointment.NewPgRepository(pgPool)
	locker := redisclient.NewRedisDayLocker(rdb, cfg.LockTTL)
	templates := redisclient.NewTemplateStore(rdb, fallback)
	svc := appointment.NewService(repo, locker, templates, nil, logger)

	// Run once at startup
	runOnce(rootCtx, svc, cfg.CompleteAfter, logger)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info("shutdown signal received, stopping completion worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, cfg.CompleteAfter, logger)
		}
	}
}

func runOnce(ctx context.Context, svc *appointment.Service, after time.Duration, logger *zap.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	n, err := svc.CompletePastSessions(runCtx, after)
	if err != nil {
		logger.Error("completion run error", zap.Error(err))
		return
	}
	logger.Info("completion run complete", zap.Int("completed", n), zap.Duration("took", time.Since(start)))
}
