package appointment

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrGatewayUnavailable covers an unreachable or unconfigured payment
	// gateway. The feature degrades; the process does not crash.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")

	// ErrGatewayRejected covers a reachable gateway that refused the
	// checkout request or returned no usable checkout URL.
	ErrGatewayRejected = errors.New("payment gateway rejected checkout")
)

// CheckoutRequest is the provider-agnostic payment request built from an
// appointment. The appointment id rides along as round-trip metadata so the
// gateway can echo it back in webhook notifications; it is the sole
// mechanism for mapping a notification back to an appointment.
type CheckoutRequest struct {
	AppointmentID uuid.UUID
	Title         string
	PayerEmail    string
	Price         int64
	Currency      string
}

// CheckoutSession is the gateway-side record of an intent to pay.
type CheckoutSession struct {
	CheckoutURL       string
	ProviderReference string
}

// CheckoutGateway is the external collaborator that turns a payment request
// into a hosted checkout URL.
type CheckoutGateway interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
}
