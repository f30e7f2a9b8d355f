package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/teleconsulta/teleconsulta-backend/internal/appointment"
	"github.com/teleconsulta/teleconsulta-backend/internal/config"
	"github.com/teleconsulta/teleconsulta-backend/internal/db"
	"github.com/teleconsulta/teleconsulta-backend/internal/logging"
	"github.com/teleconsulta/teleconsulta-backend/internal/payments"
	redisclient "github.com/teleconsulta/teleconsulta-backend/internal/redis"
)

// The reconcile worker periodically sweeps appointments stuck in
// pending_payment and asks the gateway whether their payment actually went
// through. It covers lost webhooks; the API process itself runs no
// background scheduling.
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("config load error: " + err.Error())
	}

	logger := logging.NewLogger(cfg.Env)
	defer func() { _ = logger.Sync() }()

	logger.Info("reconcile-worker starting up",
		zap.String("env", cfg.Env),
		zap.Duration("interval", cfg.WorkerInterval),
		zap.Duration("pending_ttl", cfg.PendingPaymentTTL))

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.Connect(pgCtx, db.Options{
		DSN:      cfg.PostgresDSN,
		MaxConns: cfg.PgMaxConns,
		MinConns: cfg.PgMinConns,
	})
	cancelPg()
	if err != nil {
		logger.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	var locker redisclient.Locker
	if cfg.RedisAddr != "" {
		rdb, err := redisclient.Connect(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			logger.Fatal("redis connection error", zap.Error(err))
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Warn("error closing redis", zap.Error(err))
			}
		}()
		locker = redisclient.NewRedisAppointmentLocker(rdb, cfg.LockTTL)
		logger.Info("connected to Redis")
	}

	gateway := payments.NewMercadoPagoClient(
		cfg.MPAccessToken, cfg.MPBaseURL, cfg.NotificationURL(), cfg.FrontendURL, logger)
	if !gateway.Configured() {
		logger.Fatal("MP_ACCESS_TOKEN is required for the reconcile worker")
	}

	store := appointment.NewPgStore(pgPool)
	reconciler := payments.NewReconciler(store, gateway, gateway, nil, locker, cfg.VerifyWebhooks, logger)

	runOnce(rootCtx, reconciler, cfg.PendingPaymentTTL, logger)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info("shutdown signal received, stopping reconcile worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, reconciler, cfg.PendingPaymentTTL, logger)
		}
	}
}

func runOnce(ctx context.Context, rec *payments.Reconciler, olderThan time.Duration, logger *zap.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	stats, err := rec.SweepPending(runCtx, olderThan)
	if err != nil {
		logger.Error("sweep run error", zap.Error(err))
		return
	}
	logger.Info("sweep run complete",
		zap.Int("checked", stats.Checked),
		zap.Int("promoted", stats.Promoted),
		zap.Int("failures", stats.Failures),
		zap.Duration("took", time.Since(start)))
}
