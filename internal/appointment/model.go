package appointment

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusCreated        Status = "created"
	StatusPendingPayment Status = "pending_payment"
	StatusPaid           Status = "paid"
	StatusError          Status = "error"
)

// statusRank orders the forward progression created -> pending_payment -> paid.
// StatusError sits outside the chain and is handled explicitly.
var statusRank = map[Status]int{
	StatusCreated:        0,
	StatusPendingPayment: 1,
	StatusPaid:           2,
}

// TransitionPredecessors lists the statuses from which a transition to the
// given target is legal. An empty slice means nothing may ever move there,
// which is what makes replayed and out-of-order notifications no-ops: once an
// appointment is paid, no inbound transition has paid among its predecessors.
func TransitionPredecessors(to Status) []Status {
	switch to {
	case StatusPendingPayment:
		return []Status{StatusCreated}
	case StatusPaid:
		return []Status{StatusCreated, StatusPendingPayment}
	case StatusError:
		// Only checkout failure handling moves here, never a webhook.
		return []Status{StatusCreated, StatusPendingPayment}
	default:
		return nil
	}
}

// IsForwardTransition reports whether moving from -> to makes progress on the
// main chain. Used by the in-memory store; the Postgres store enforces the
// same rule through a guarded UPDATE.
func IsForwardTransition(from, to Status) bool {
	for _, p := range TransitionPredecessors(to) {
		if p == from {
			return true
		}
	}
	return false
}

type Appointment struct {
	ID                uuid.UUID
	PatientName       string
	PatientEmail      string
	Reason            string
	Price             int64 // whole ARS, no minor units
	Currency          string
	DurationMinutes   int
	ScheduledAt       time.Time
	Status            Status
	ProviderReference *string // checkout preference id, set once
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
