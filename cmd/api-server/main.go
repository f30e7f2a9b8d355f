package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/teleconsulta/teleconsulta-backend/internal/api"
	"github.com/teleconsulta/teleconsulta-backend/internal/appointment"
	"github.com/teleconsulta/teleconsulta-backend/internal/catalog"
	"github.com/teleconsulta/teleconsulta-backend/internal/config"
	"github.com/teleconsulta/teleconsulta-backend/internal/db"
	"github.com/teleconsulta/teleconsulta-backend/internal/logging"
	"github.com/teleconsulta/teleconsulta-backend/internal/observability/metrics"
	"github.com/teleconsulta/teleconsulta-backend/internal/payments"
	redisclient "github.com/teleconsulta/teleconsulta-backend/internal/redis"
	"github.com/teleconsulta/teleconsulta-backend/internal/video"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("config load error: " + err.Error())
	}

	logger := logging.NewLogger(cfg.Env)
	defer func() { _ = logger.Sync() }()

	logger.Info("api-server starting up",
		zap.String("env", cfg.Env),
		zap.String("http_port", cfg.HTTPPort),
		zap.String("store_backend", cfg.StoreBackend))

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Storage
	var (
		pgPool *pgxpool.Pool
		store  appointment.Store
		types  catalog.Repository
	)
	if cfg.StoreBackend == "memory" {
		logger.Warn("using in-memory store, nothing survives a restart")
		store = appointment.NewMemoryStore()
		types = catalog.NewStaticRepository(catalog.Defaults())
	} else {
		pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
		pgPool, err = db.Connect(pgCtx, db.Options{
			DSN:      cfg.PostgresDSN,
			MaxConns: cfg.PgMaxConns,
			MinConns: cfg.PgMinConns,
		})
		cancelPg()
		if err != nil {
			logger.Fatal("postgres connection error", zap.Error(err))
		}
		defer pgPool.Close()

		if err := db.Migrate(rootCtx, pgPool); err != nil {
			logger.Fatal("migration error", zap.Error(err))
		}
		logger.Info("connected to Postgres, migrations applied")

		store = appointment.NewPgStore(pgPool)
		types = catalog.NewPgRepository(pgPool)
	}

	// Redis backs the per-appointment lock and webhook dedup; both are
	// optional layers on top of the store's compare-and-set.
	var (
		rdb       *redis.Client
		locker    redisclient.Locker
		processed payments.ProcessedTracker
	)
	if cfg.RedisAddr != "" {
		rdb, err = redisclient.Connect(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			logger.Fatal("redis connection error", zap.Error(err))
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Warn("error closing redis", zap.Error(err))
			}
		}()
		locker = redisclient.NewRedisAppointmentLocker(rdb, cfg.LockTTL)
		processed = redisclient.NewProcessedEventTracker(rdb, cfg.ProcessedEventTTL)
		logger.Info("connected to Redis")
	} else {
		logger.Warn("redis not configured, webhook dedup relies on the store alone")
	}

	// Payment gateway
	gateway := payments.NewMercadoPagoClient(
		cfg.MPAccessToken, cfg.MPBaseURL, cfg.NotificationURL(), cfg.FrontendURL, logger)
	if !gateway.Configured() {
		logger.Warn("mercado pago access token missing, checkout is disabled")
	}

	rooms := video.NewRoomBuilder(cfg.VideoBaseURL, cfg.VideoRoomPrefix)
	svc := appointment.NewService(store, gateway, rooms, cfg, logger)
	reconciler := payments.NewReconciler(store, gateway, gateway, processed, locker, cfg.VerifyWebhooks, logger)
	bookingMetrics := metrics.NewBookingMetrics(nil)

	handler := api.NewRouter(api.RouterConfig{
		Appointments:   svc,
		Reconciler:     reconciler,
		Catalog:        types,
		Metrics:        bookingMetrics,
		PgPool:         pgPool,
		Redis:          rdb,
		AllowedOrigins: cfg.AllowedOrigins,
		Env:            cfg.Env,
		Version:        version,
		Logger:         logger,
	})

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-rootCtx.Done()

	logger.Info("shutting down api-server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
