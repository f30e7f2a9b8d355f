package payments

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/teleconsulta/teleconsulta-backend/internal/appointment"
)

func checkoutRequest() appointment.CheckoutRequest {
	return appointment.CheckoutRequest{
		AppointmentID: uuid.New(),
		Title:         "Consulta pediátrica",
		PayerEmail:    "ana@example.com",
		Price:         40000,
		Currency:      "ARS",
	}
}

func TestCreateCheckout(t *testing.T) {
	req := checkoutRequest()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/checkout/preferences", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, req.AppointmentID.String(), r.Header.Get("X-Idempotency-Key"))

		var body struct {
			Items []struct {
				Title     string `json:"title"`
				UnitPrice int64  `json:"unit_price"`
			} `json:"items"`
			ExternalReference string            `json:"external_reference"`
			Metadata          map[string]string `json:"metadata"`
			NotificationURL   string            `json:"notification_url"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Items, 1)
		assert.Equal(t, int64(40000), body.Items[0].UnitPrice)
		assert.Equal(t, req.AppointmentID.String(), body.ExternalReference)
		assert.Equal(t, req.AppointmentID.String(), body.Metadata["appointment_id"])
		assert.Equal(t, "https://api.example.com/payments/webhook", body.NotificationURL)

		json.NewEncoder(w).Encode(map[string]string{
			"id":         "pref-123",
			"init_point": "https://mp.example.com/checkout/pref-123",
		})
	}))
	defer srv.Close()

	client := NewMercadoPagoClient("test-token", srv.URL,
		"https://api.example.com/payments/webhook", "https://front.example.com", zap.NewNop())

	session, err := client.CreateCheckout(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "https://mp.example.com/checkout/pref-123", session.CheckoutURL)
	assert.Equal(t, "pref-123", session.ProviderReference)
}

func TestCreateCheckoutSandboxFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"id":                 "pref-sbx",
			"sandbox_init_point": "https://sandbox.mp.example.com/checkout/pref-sbx",
		})
	}))
	defer srv.Close()

	client := NewMercadoPagoClient("test-token", srv.URL, "", "https://front.example.com", zap.NewNop())

	session, err := client.CreateCheckout(context.Background(), checkoutRequest())
	require.NoError(t, err)
	assert.Equal(t, "https://sandbox.mp.example.com/checkout/pref-sbx", session.CheckoutURL)
}

func TestCreateCheckoutRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"message": "invalid unit_price"})
	}))
	defer srv.Close()

	client := NewMercadoPagoClient("test-token", srv.URL, "", "", zap.NewNop())

	_, err := client.CreateCheckout(context.Background(), checkoutRequest())
	assert.ErrorIs(t, err, appointment.ErrGatewayRejected)
}

func TestCreateCheckoutUnconfigured(t *testing.T) {
	client := NewMercadoPagoClient("", "https://api.mercadopago.com", "", "", zap.NewNop())
	assert.False(t, client.Configured())

	_, err := client.CreateCheckout(context.Background(), checkoutRequest())
	assert.ErrorIs(t, err, appointment.ErrGatewayUnavailable)
}

func TestCreateCheckoutUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client := NewMercadoPagoClient("test-token", srv.URL, "", "", zap.NewNop())

	_, err := client.CreateCheckout(context.Background(), checkoutRequest())
	assert.ErrorIs(t, err, appointment.ErrGatewayUnavailable)
}

func TestGetPayment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payments/12345", r.URL.Path)

		// Numeric id, the way the live API serializes payments.
		json.NewEncoder(w).Encode(map[string]any{
			"id":                 12345,
			"status":             "approved",
			"external_reference": "appt-1",
			"metadata":           map[string]any{"appointment_id": "appt-1"},
		})
	}))
	defer srv.Close()

	client := NewMercadoPagoClient("test-token", srv.URL, "", "", zap.NewNop())

	p, err := client.GetPayment(context.Background(), "12345")
	require.NoError(t, err)
	assert.Equal(t, "12345", p.ID)
	assert.Equal(t, PaymentStatusApproved, p.Status)
	assert.Equal(t, "appt-1", p.ExternalReference)
	assert.Equal(t, "appt-1", p.Metadata["appointment_id"])
}

func TestGetPaymentNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewMercadoPagoClient("test-token", srv.URL, "", "", zap.NewNop())

	_, err := client.GetPayment(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrPaymentNotFound)
}

func TestSearchPaymentsByReference(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payments/search", r.URL.Path)
		assert.Equal(t, "appt-1", r.URL.Query().Get("external_reference"))

		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"id": 1, "status": "rejected", "external_reference": "appt-1"},
				{"id": 2, "status": "approved", "external_reference": "appt-1"},
			},
		})
	}))
	defer srv.Close()

	client := NewMercadoPagoClient("test-token", srv.URL, "", "", zap.NewNop())

	results, err := client.SearchPaymentsByReference(context.Background(), "appt-1")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "2", results[1].ID)
	assert.Equal(t, PaymentStatusApproved, results[1].Status)
}
