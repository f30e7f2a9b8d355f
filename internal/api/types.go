package api

import (
	"time"

	"github.com/google/uuid"
)

type CreateAppointmentRequest struct {
	PatientName     string    `json:"patient_name"`
	PatientEmail    string    `json:"patient_email"`
	Reason          string    `json:"reason"`
	Price           int64     `json:"price"`
	DurationMinutes int       `json:"duration_minutes"`
	ScheduledAt     time.Time `json:"scheduled_at"`
}

type AppointmentResponse struct {
	ID              uuid.UUID `json:"id"`
	Status          string    `json:"status"`
	CheckoutURL     string    `json:"checkout_url,omitempty"`
	Price           int64     `json:"price"`
	Currency        string    `json:"currency"`
	DurationMinutes int       `json:"duration_minutes"`
	ScheduledAt     time.Time `json:"scheduled_at"`
}

type JoinResponse struct {
	JoinURL string `json:"join_url"`
}

type ConsultationTypeResponse struct {
	ID              uuid.UUID `json:"id"`
	Title           string    `json:"title"`
	Price           int64     `json:"price"`
	Currency        string    `json:"currency"`
	DurationMinutes int       `json:"duration_minutes"`
}

type WebhookAck struct {
	Status string `json:"status"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
