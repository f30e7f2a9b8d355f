package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrAppointmentNotFound = errors.New("appointment not found")

// Store is the durable keyed record of appointments. Implementations must
// make UpdateStatus atomic with respect to the legality check so that two
// concurrent webhook deliveries cannot both win the same transition.
type Store interface {
	Put(ctx context.Context, appt *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// GetByProviderReference resolves an appointment via the checkout
	// preference id, the webhook fallback when metadata went missing.
	GetByProviderReference(ctx context.Context, ref string) (*Appointment, error)

	// UpdateStatus applies the transition only if it is a legal forward move.
	// It returns (false, nil) when the target state was already reached or
	// passed; callers treat that as a clean duplicate, not an error.
	UpdateStatus(ctx context.Context, id uuid.UUID, to Status) (applied bool, err error)

	// SetProviderReference records the reference once; later calls with a
	// different value keep the first one.
	SetProviderReference(ctx context.Context, id uuid.UUID, ref string) error

	// FindStalePending returns pending_payment appointments last touched
	// before the cutoff, for the reconcile worker.
	FindStalePending(ctx context.Context, cutoff time.Time) ([]Appointment, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}
