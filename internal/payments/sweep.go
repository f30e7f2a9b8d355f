package payments

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/teleconsulta/teleconsulta-backend/internal/appointment"
)

// SweepStats summarizes one reconcile pass over stale pending payments.
type SweepStats struct {
	Checked  int
	Promoted int
	Failures int
}

// SweepPending re-queries the gateway for appointments stuck in
// pending_payment longer than olderThan. It covers the window where a
// webhook was lost or an appointment was flagged unreconciled at creation.
func (r *Reconciler) SweepPending(ctx context.Context, olderThan time.Duration) (SweepStats, error) {
	var stats SweepStats

	if r.searcher == nil {
		return stats, fmt.Errorf("no payment searcher configured")
	}

	cutoff := time.Now().Add(-olderThan)
	stale, err := r.store.FindStalePending(ctx, cutoff)
	if err != nil {
		return stats, fmt.Errorf("find stale pending appointments: %w", err)
	}

	for _, appt := range stale {
		stats.Checked++

		results, err := r.searcher.SearchPaymentsByReference(ctx, appt.ID.String())
		if err != nil {
			stats.Failures++
			r.logger.Warn("payment search failed during sweep",
				zap.String("appointment_id", appt.ID.String()), zap.Error(err))
			continue
		}

		var approved *Payment
		for i := range results {
			if results[i].Status == PaymentStatusApproved {
				approved = &results[i]
				break
			}
		}
		if approved == nil {
			continue
		}

		a := appt
		result := r.apply(ctx, &a, appointment.StatusPaid, Notification{
			PaymentID:         approved.ID,
			ExternalReference: approved.ExternalReference,
		})
		if result.Applied {
			stats.Promoted++
			r.logger.Info("promoted stale pending appointment",
				zap.String("appointment_id", appt.ID.String()),
				zap.String("payment_id", approved.ID))
		}
	}

	return stats, nil
}
