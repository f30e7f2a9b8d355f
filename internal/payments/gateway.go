// Package payments integrates with the Mercado Pago checkout API and
// reconciles its asynchronous payment notifications against the appointment
// store.
package payments

import (
	"context"
	"errors"
)

var ErrPaymentNotFound = errors.New("payment not found at gateway")

// Mercado Pago payment statuses this service cares about. Anything else is
// ignored by reconciliation.
const (
	PaymentStatusApproved  = "approved"
	PaymentStatusPending   = "pending"
	PaymentStatusInProcess = "in_process"
	PaymentStatusRejected  = "rejected"
)

// Payment is the authoritative gateway-side view of a single payment.
type Payment struct {
	ID                string
	Status            string
	ExternalReference string
	Metadata          map[string]string
}

// Verifier queries the gateway for ground truth before a notification body
// is trusted.
type Verifier interface {
	GetPayment(ctx context.Context, paymentID string) (*Payment, error)
}

// Searcher looks up payments by the external reference we planted at
// checkout time; the reconcile worker uses it for appointments whose webhook
// never arrived.
type Searcher interface {
	SearchPaymentsByReference(ctx context.Context, externalReference string) ([]Payment, error)
}
