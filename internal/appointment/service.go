package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teleconsulta/teleconsulta-backend/internal/config"
	"github.com/teleconsulta/teleconsulta-backend/internal/video"
)

const (
	EventAppointmentCreated      = "APPOINTMENT_CREATED"
	EventAppointmentPaid         = "APPOINTMENT_PAID"
	EventCheckoutFailed          = "CHECKOUT_FAILED"
	EventAppointmentUnreconciled = "APPOINTMENT_UNRECONCILED"
)

var ErrPaymentPending = errors.New("payment not confirmed yet")

// ValidationError reports a bad request value. It is never retried by the
// system itself; the caller has to fix the input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

type CreateParams struct {
	PatientName     string
	PatientEmail    string
	Reason          string
	Price           int64
	DurationMinutes int
	ScheduledAt     time.Time
}

// CreateResult carries the checkout URL next to the persisted appointment.
// Unreconciled is set when the gateway produced a session but the store
// write failed; the URL is still delivered to the caller and the anomaly is
// left in the event log for the reconcile pass.
type CreateResult struct {
	Appointment  *Appointment
	CheckoutURL  string
	Unreconciled bool
}

type Service struct {
	store   Store
	gateway CheckoutGateway
	rooms   *video.RoomBuilder
	cfg     config.Config
	logger  *zap.Logger
}

func NewService(store Store, gateway CheckoutGateway, rooms *video.RoomBuilder, cfg config.Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:   store,
		gateway: gateway,
		rooms:   rooms,
		cfg:     cfg,
		logger:  logger,
	}
}

// CreateAppointment validates the booking request, obtains a checkout session
// from the gateway and persists the appointment. The gateway call happens
// before any store write, so a timed-out checkout never leaves a half-written
// pending_payment row behind.
func (s *Service) CreateAppointment(ctx context.Context, params CreateParams) (*CreateResult, error) {
	if err := s.validate(params); err != nil {
		return nil, err
	}

	appt := &Appointment{
		ID:              uuid.New(),
		PatientName:     strings.TrimSpace(params.PatientName),
		PatientEmail:    strings.TrimSpace(params.PatientEmail),
		Reason:          strings.TrimSpace(params.Reason),
		Price:           params.Price,
		Currency:        "ARS",
		DurationMinutes: params.DurationMinutes,
		ScheduledAt:     params.ScheduledAt,
		Status:          StatusCreated,
	}

	if s.gateway == nil {
		return nil, ErrGatewayUnavailable
	}

	session, err := s.gateway.CreateCheckout(ctx, CheckoutRequest{
		AppointmentID: appt.ID,
		Title:         checkoutTitle(appt),
		PayerEmail:    appt.PatientEmail,
		Price:         appt.Price,
		Currency:      appt.Currency,
	})
	if err != nil {
		// Keep the row, tagged error, so it is excluded from payment
		// expectations instead of lingering as a silent partial success.
		appt.Status = StatusError
		if putErr := s.store.Put(ctx, appt); putErr != nil {
			s.logger.Error("failed to persist errored appointment",
				zap.String("appointment_id", appt.ID.String()),
				zap.Error(putErr))
		}
		s.logEvent(ctx, appt.ID, EventCheckoutFailed, map[string]any{
			"error": err.Error(),
		})
		return nil, err
	}

	ref := session.ProviderReference
	appt.ProviderReference = &ref

	if err := s.store.Put(ctx, appt); err != nil {
		// The gateway side exists but our record does not. Deliver the
		// checkout URL anyway and flag the appointment for repair.
		s.logger.Error("appointment persisted nowhere after successful checkout",
			zap.String("appointment_id", appt.ID.String()),
			zap.Error(err))
		s.logEvent(ctx, appt.ID, EventAppointmentUnreconciled, map[string]any{
			"provider_reference": ref,
			"error":              err.Error(),
		})
		return &CreateResult{
			Appointment:  appt,
			CheckoutURL:  session.CheckoutURL,
			Unreconciled: true,
		}, nil
	}

	s.logEvent(ctx, appt.ID, EventAppointmentCreated, map[string]any{
		"price":              appt.Price,
		"duration_minutes":   appt.DurationMinutes,
		"provider_reference": ref,
	})

	return &CreateResult{
		Appointment: appt,
		CheckoutURL: session.CheckoutURL,
	}, nil
}

func (s *Service) validate(params CreateParams) error {
	if strings.TrimSpace(params.PatientName) == "" {
		return &ValidationError{Field: "patient_name", Message: "must not be empty"}
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(params.PatientEmail)); err != nil {
		return &ValidationError{Field: "patient_email", Message: "must be a valid email address"}
	}
	if strings.TrimSpace(params.Reason) == "" {
		return &ValidationError{Field: "reason", Message: "must not be empty"}
	}
	if params.Price < s.cfg.MinPriceARS {
		return &ValidationError{
			Field:   "price",
			Message: fmt.Sprintf("must be at least %d ARS", s.cfg.MinPriceARS),
		}
	}
	if params.DurationMinutes < s.cfg.MinDurationMins || params.DurationMinutes > s.cfg.MaxDurationMins {
		return &ValidationError{
			Field:   "duration_minutes",
			Message: fmt.Sprintf("must be between %d and %d", s.cfg.MinDurationMins, s.cfg.MaxDurationMins),
		}
	}
	if params.ScheduledAt.IsZero() {
		return &ValidationError{Field: "scheduled_at", Message: "must be provided"}
	}
	return nil
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return appt, nil
}

// ResolveJoinLink returns the video room URL for a paid appointment. The URL
// itself is deterministic; the store lookup only exists for payment gating.
func (s *Service) ResolveJoinLink(ctx context.Context, id uuid.UUID) (string, error) {
	appt, err := s.store.GetByID(ctx, id)
	if err != nil {
		return "", err
	}

	if appt.Status != StatusPaid && !s.cfg.AllowUnpaidJoin {
		return "", ErrPaymentPending
	}

	return s.rooms.JoinURL(appt.ID), nil
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("failed to marshal event payload",
			zap.String("event_type", eventType), zap.Error(err))
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     time.Now(),
	}

	if err := s.store.InsertEvent(ctx, ev); err != nil {
		s.logger.Warn("failed to insert event log",
			zap.String("event_type", eventType),
			zap.String("appointment_id", appointmentID.String()),
			zap.Error(err))
	}
}

func checkoutTitle(appt *Appointment) string {
	return fmt.Sprintf("Teleconsulta %d min - %s", appt.DurationMinutes, appt.PatientName)
}
