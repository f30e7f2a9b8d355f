package payments

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teleconsulta/teleconsulta-backend/internal/appointment"
	redisclient "github.com/teleconsulta/teleconsulta-backend/internal/redis"
)

const (
	ProviderMercadoPago = "mercadopago"

	EventWebhookAnomaly = "WEBHOOK_ANOMALY"
)

// ProcessedTracker short-circuits exact webhook redeliveries by event id.
// A nil tracker is fine: the store's compare-and-set transition already
// absorbs duplicates.
type ProcessedTracker interface {
	AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, provider, eventID string) (bool, error)
}

// Notification is the defensively-parsed shape of an inbound gateway
// notification. Delivery is at-least-once, possibly out of order, so none
// of the fields can be assumed present.
type Notification struct {
	EventID               string // gateway event id, used for dedup only
	Topic                 string // "payment" is the only topic acted upon
	PaymentID             string
	ExternalReference     string
	MetadataAppointmentID string
	ClaimedStatus         string // status asserted by the body, untrusted
	QueryHint             string // appointment id hint from the query string
}

// CorrelationKey picks the value used to map the notification back to an
// appointment: round-trip metadata first, then the provider-supplied
// external reference, then the query-string hint.
func (n Notification) CorrelationKey() string {
	if n.MetadataAppointmentID != "" {
		return n.MetadataAppointmentID
	}
	if n.ExternalReference != "" {
		return n.ExternalReference
	}
	return n.QueryHint
}

type Outcome string

const (
	OutcomePaid      Outcome = "paid"
	OutcomePending   Outcome = "pending"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeAnomaly   Outcome = "anomaly"
)

const (
	AnomalyNoCorrelation           = "no_correlation"
	AnomalyUnknownAppointment      = "unknown_appointment"
	AnomalyUnverifiable            = "unverifiable"
	AnomalyVerificationUnavailable = "verification_unavailable"
	AnomalyCorrelationMismatch     = "correlation_mismatch"
	AnomalyStoreFailure            = "store_failure"
	AnomalyUnparseable             = "unparseable"
)

// Result describes what a notification did. It never carries an error: the
// webhook surface acknowledges everything, anomalies included.
type Result struct {
	Outcome       Outcome
	Reason        string
	AppointmentID uuid.UUID
	Applied       bool
}

// Reconciler applies payment notifications to the appointment store exactly
// once per logical payment event. Safe under arbitrary replay and
// reordering: the absorbing paid state plus the store's compare-and-set
// make every redelivery a no-op.
type Reconciler struct {
	store     appointment.Store
	verifier  Verifier
	searcher  Searcher
	processed ProcessedTracker
	locker    redisclient.Locker
	verify    bool
	logger    *zap.Logger
}

func NewReconciler(store appointment.Store, verifier Verifier, searcher Searcher, processed ProcessedTracker, locker redisclient.Locker, verify bool, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		store:     store,
		verifier:  verifier,
		searcher:  searcher,
		processed: processed,
		locker:    locker,
		verify:    verify,
		logger:    logger,
	}
}

func (r *Reconciler) Handle(ctx context.Context, n Notification) Result {
	if n.Topic != "" && n.Topic != "payment" {
		return Result{Outcome: OutcomeIgnored, Reason: "topic " + n.Topic}
	}

	if n.EventID != "" && r.processed != nil {
		seen, err := r.processed.AlreadyProcessed(ctx, ProviderMercadoPago, n.EventID)
		if err != nil {
			// Dedup is an optimization; fall through to the CAS path.
			r.logger.Warn("processed lookup failed", zap.Error(err))
		} else if seen {
			return Result{Outcome: OutcomeDuplicate, Reason: "event already processed"}
		}
	}

	key := n.CorrelationKey()
	if key == "" {
		return r.anomaly(ctx, nil, AnomalyNoCorrelation, n)
	}

	appt, err := r.resolve(ctx, key)
	if err != nil {
		if errors.Is(err, appointment.ErrAppointmentNotFound) {
			return r.anomaly(ctx, nil, AnomalyUnknownAppointment, n)
		}
		r.logger.Error("appointment lookup failed", zap.String("correlation_key", key), zap.Error(err))
		return r.anomaly(ctx, nil, AnomalyStoreFailure, n)
	}

	status, res := r.effectiveStatus(ctx, appt, n)
	if res != nil {
		return *res
	}

	var target appointment.Status
	switch status {
	case PaymentStatusApproved:
		target = appointment.StatusPaid
	case PaymentStatusPending, PaymentStatusInProcess:
		target = appointment.StatusPendingPayment
	default:
		result := Result{Outcome: OutcomeIgnored, Reason: "payment status " + status, AppointmentID: appt.ID}
		r.markProcessed(ctx, n)
		return result
	}

	result := r.apply(ctx, appt, target, n)
	r.markProcessed(ctx, n)
	return result
}

func (r *Reconciler) resolve(ctx context.Context, key string) (*appointment.Appointment, error) {
	if id, err := uuid.Parse(key); err == nil {
		appt, err := r.store.GetByID(ctx, id)
		if err == nil {
			return appt, nil
		}
		if !errors.Is(err, appointment.ErrAppointmentNotFound) {
			return nil, err
		}
	}
	// The key may be a provider reference rather than one of our ids.
	return r.store.GetByProviderReference(ctx, key)
}

// effectiveStatus decides which payment status to act on. With verification
// enabled the gateway is the only source of truth; the claimed status is
// used solely when verification has been explicitly switched off.
func (r *Reconciler) effectiveStatus(ctx context.Context, appt *appointment.Appointment, n Notification) (string, *Result) {
	if !r.verify || r.verifier == nil {
		return n.ClaimedStatus, nil
	}

	if n.PaymentID == "" {
		res := r.anomaly(ctx, appt, AnomalyUnverifiable, n)
		return "", &res
	}

	p, err := r.verifier.GetPayment(ctx, n.PaymentID)
	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) {
			res := r.anomaly(ctx, appt, AnomalyUnverifiable, n)
			return "", &res
		}
		// Do not mark processed: the gateway will redeliver and a later
		// attempt can verify successfully.
		r.logger.Warn("payment verification unavailable",
			zap.String("payment_id", n.PaymentID), zap.Error(err))
		res := Result{Outcome: OutcomeAnomaly, Reason: AnomalyVerificationUnavailable, AppointmentID: appt.ID}
		return "", &res
	}

	if p.ExternalReference != "" && p.ExternalReference != appt.ID.String() {
		res := r.anomaly(ctx, appt, AnomalyCorrelationMismatch, n)
		return "", &res
	}

	return p.Status, nil
}

// apply runs the resolve-and-update step, optionally serialized per
// appointment. The lock is a politeness measure against duplicated work;
// correctness comes from the store's compare-and-set, so a failed
// acquisition degrades to the unlocked path.
func (r *Reconciler) apply(ctx context.Context, appt *appointment.Appointment, target appointment.Status, n Notification) Result {
	do := func(ctx context.Context) Result {
		if appt.ProviderReference == nil && n.PaymentID != "" {
			if err := r.store.SetProviderReference(ctx, appt.ID, n.PaymentID); err != nil {
				r.logger.Warn("failed to backfill provider reference",
					zap.String("appointment_id", appt.ID.String()), zap.Error(err))
			}
		}

		applied, err := r.store.UpdateStatus(ctx, appt.ID, target)
		if err != nil {
			r.logger.Error("status transition failed",
				zap.String("appointment_id", appt.ID.String()),
				zap.String("target", string(target)),
				zap.Error(err))
			return r.anomaly(ctx, appt, AnomalyStoreFailure, n)
		}

		outcome := OutcomePending
		if target == appointment.StatusPaid {
			outcome = OutcomePaid
		}
		if !applied {
			return Result{Outcome: OutcomeDuplicate, Reason: "transition already applied", AppointmentID: appt.ID}
		}

		if target == appointment.StatusPaid {
			r.logEvent(ctx, &appt.ID, appointment.EventAppointmentPaid, map[string]any{
				"payment_id": n.PaymentID,
			})
		}
		return Result{Outcome: outcome, AppointmentID: appt.ID, Applied: true}
	}

	if r.locker != nil {
		var result Result
		err := r.locker.WithAppointmentLock(ctx, appt.ID, func(lockCtx context.Context) error {
			result = do(lockCtx)
			return nil
		})
		if err == nil {
			return result
		}
		if !errors.Is(err, redisclient.ErrLockNotAcquired) {
			r.logger.Warn("appointment lock failed, applying unlocked", zap.Error(err))
		}
	}

	return do(ctx)
}

func (r *Reconciler) anomaly(ctx context.Context, appt *appointment.Appointment, reason string, n Notification) Result {
	result := Result{Outcome: OutcomeAnomaly, Reason: reason}

	var apptID *uuid.UUID
	if appt != nil {
		result.AppointmentID = appt.ID
		id := appt.ID
		apptID = &id
	}

	r.logger.Warn("webhook anomaly",
		zap.String("reason", reason),
		zap.String("event_id", n.EventID),
		zap.String("payment_id", n.PaymentID),
		zap.String("correlation_key", n.CorrelationKey()))

	r.logEvent(ctx, apptID, EventWebhookAnomaly, map[string]any{
		"reason":     reason,
		"event_id":   n.EventID,
		"payment_id": n.PaymentID,
	})

	// A store failure is transient; leave the event unmarked so the
	// gateway's redelivery can complete once the store recovers.
	if reason != AnomalyStoreFailure {
		r.markProcessed(ctx, n)
	}
	return result
}

func (r *Reconciler) markProcessed(ctx context.Context, n Notification) {
	if n.EventID == "" || r.processed == nil {
		return
	}
	if _, err := r.processed.MarkProcessed(ctx, ProviderMercadoPago, n.EventID); err != nil {
		r.logger.Warn("failed to mark event processed", zap.String("event_id", n.EventID), zap.Error(err))
	}
}

func (r *Reconciler) logEvent(ctx context.Context, appointmentID *uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		data = nil
	}

	ev := appointment.EventLog{
		EventType:     eventType,
		AppointmentID: appointmentID,
		Payload:       data,
		CreatedAt:     time.Now(),
	}
	if err := r.store.InsertEvent(ctx, ev); err != nil {
		r.logger.Warn("failed to insert event log", zap.String("event_type", eventType), zap.Error(err))
	}
}
