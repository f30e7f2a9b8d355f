package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/teleconsulta/teleconsulta-backend/internal/appointment"
	"github.com/teleconsulta/teleconsulta-backend/internal/catalog"
	"github.com/teleconsulta/teleconsulta-backend/internal/observability/metrics"
	"github.com/teleconsulta/teleconsulta-backend/internal/payments"
)

type RouterConfig struct {
	Appointments   *appointment.Service
	Reconciler     *payments.Reconciler
	Catalog        catalog.Repository
	Metrics        *metrics.BookingMetrics
	PgPool         *pgxpool.Pool // nil in memory mode
	Redis          *redis.Client // nil when Redis is not configured
	AllowedOrigins []string
	Env            string
	Version        string
	Logger         *zap.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(CORSMiddleware(cfg.AllowedOrigins))

	// Health and metrics
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Handle("/metrics", promhttp.Handler())

	// Booking flow
	r.Post("/appointments", createAppointmentHandler(cfg.Appointments, cfg.Metrics))
	r.Get("/appointments/{id}", getAppointmentHandler(cfg.Appointments))
	r.Get("/appointments/{id}/join", joinAppointmentHandler(cfg.Appointments))

	// Payment gateway callback
	r.Post("/payments/webhook", paymentWebhookHandler(cfg.Reconciler, cfg.Metrics, logger))

	// Consultation catalog
	r.Get("/services", listServicesHandler(cfg.Catalog))

	return r
}
