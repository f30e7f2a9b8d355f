package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teleconsulta/teleconsulta-backend/internal/appointment"
	"github.com/teleconsulta/teleconsulta-backend/internal/catalog"
	"github.com/teleconsulta/teleconsulta-backend/internal/observability/metrics"
	"github.com/teleconsulta/teleconsulta-backend/internal/payments"
)

func createAppointmentHandler(svc *appointment.Service, m *metrics.BookingMetrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		result, err := svc.CreateAppointment(r.Context(), appointment.CreateParams{
			PatientName:     req.PatientName,
			PatientEmail:    req.PatientEmail,
			Reason:          req.Reason,
			Price:           req.Price,
			DurationMinutes: req.DurationMinutes,
			ScheduledAt:     req.ScheduledAt,
		})
		if err != nil {
			m.ObserveCheckout("error")
			handleCreateError(w, err)
			return
		}

		m.ObserveCheckout("ok")

		appt := result.Appointment
		writeJSON(w, http.StatusCreated, AppointmentResponse{
			ID:              appt.ID,
			Status:          string(appt.Status),
			CheckoutURL:     result.CheckoutURL,
			Price:           appt.Price,
			Currency:        appt.Currency,
			DurationMinutes: appt.DurationMinutes,
			ScheduledAt:     appt.ScheduledAt,
		})
	}
}

func getAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			if errors.Is(err, appointment.ErrAppointmentNotFound) {
				writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		writeJSON(w, http.StatusOK, AppointmentResponse{
			ID:              appt.ID,
			Status:          string(appt.Status),
			Price:           appt.Price,
			Currency:        appt.Currency,
			DurationMinutes: appt.DurationMinutes,
			ScheduledAt:     appt.ScheduledAt,
		})
	}
}

func joinAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		joinURL, err := svc.ResolveJoinLink(r.Context(), id)
		if err != nil {
			switch {
			case errors.Is(err, appointment.ErrAppointmentNotFound):
				writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
			case errors.Is(err, appointment.ErrPaymentPending):
				writeError(w, http.StatusPaymentRequired, "payment_required", "the appointment has not been paid yet")
			default:
				writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			}
			return
		}

		writeJSON(w, http.StatusOK, JoinResponse{JoinURL: joinURL})
	}
}

// paymentWebhookHandler always acknowledges with 200 so the gateway stops
// retrying; even a structurally unparseable body gets a success response.
// Whatever can be salvaged from body and query string is handed to the
// reconciler.
func paymentWebhookHandler(rec *payments.Reconciler, m *metrics.BookingMetrics, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		n := notificationFromRequest(r, logger)
		result := rec.Handle(r.Context(), n)

		m.ObserveWebhook(string(result.Outcome), time.Since(start).Seconds())
		logger.Info("payment webhook handled",
			zap.String("outcome", string(result.Outcome)),
			zap.String("reason", result.Reason),
			zap.String("appointment_id", result.AppointmentID.String()),
			zap.Bool("applied", result.Applied),
		)

		writeJSON(w, http.StatusOK, WebhookAck{Status: "ok"})
	}
}

// webhookBody mirrors the gateway's notification shape loosely; every field
// is optional because the body is untrusted input. Ids arrive sometimes as
// numbers and sometimes as strings, hence flexString.
type webhookBody struct {
	ID     flexString `json:"id"`
	Type   string     `json:"type"`
	Topic  string     `json:"topic"`
	Action string     `json:"action"`
	Data   struct {
		ID                flexString     `json:"id"`
		Status            string         `json:"status"`
		ExternalReference string         `json:"external_reference"`
		Metadata          map[string]any `json:"metadata"`
	} `json:"data"`
}

type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

func notificationFromRequest(r *http.Request, logger *zap.Logger) payments.Notification {
	q := r.URL.Query()

	n := payments.Notification{
		EventID:   q.Get("id"),
		Topic:     firstNonEmpty(q.Get("type"), q.Get("topic")),
		PaymentID: q.Get("data.id"),
		QueryHint: firstNonEmpty(q.Get("appointment_id"), q.Get("external_reference")),
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil || len(raw) == 0 {
		return n
	}

	var body webhookBody
	if err := json.Unmarshal(raw, &body); err != nil {
		logger.Warn("unparseable webhook body", zap.Error(err))
		return n
	}

	if s := string(body.ID); s != "" {
		n.EventID = s
	}
	if t := firstNonEmpty(body.Type, body.Topic); t != "" {
		n.Topic = t
	}
	if s := string(body.Data.ID); s != "" {
		n.PaymentID = s
	}
	n.ExternalReference = body.Data.ExternalReference
	n.ClaimedStatus = body.Data.Status
	if v, ok := body.Data.Metadata["appointment_id"].(string); ok {
		n.MetadataAppointmentID = v
	}

	return n
}

func listServicesHandler(repo catalog.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		types, err := repo.List(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		out := make([]ConsultationTypeResponse, 0, len(types))
		for _, ct := range types {
			out = append(out, ConsultationTypeResponse{
				ID:              ct.ID,
				Title:           ct.Title,
				Price:           ct.Price,
				Currency:        ct.Currency,
				DurationMinutes: ct.DurationMinutes,
			})
		}

		writeJSON(w, http.StatusOK, out)
	}
}

func handleCreateError(w http.ResponseWriter, err error) {
	var verr *appointment.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusUnprocessableEntity, "validation_error", verr.Error())
	case errors.Is(err, appointment.ErrGatewayUnavailable):
		writeError(w, http.StatusServiceUnavailable, "gateway_unavailable", "payment service is not available, try again later")
	case errors.Is(err, appointment.ErrGatewayRejected):
		writeError(w, http.StatusBadGateway, "gateway_rejected", "payment service rejected the checkout request")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
