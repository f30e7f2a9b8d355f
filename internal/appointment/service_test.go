package appointment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/teleconsulta/teleconsulta-backend/internal/config"
	"github.com/teleconsulta/teleconsulta-backend/internal/video"
)

type fakeGateway struct {
	err      error
	sessions []CheckoutRequest
}

func (g *fakeGateway) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	g.sessions = append(g.sessions, req)
	if g.err != nil {
		return nil, g.err
	}
	return &CheckoutSession{
		CheckoutURL:       "https://pay.example.com/" + req.AppointmentID.String(),
		ProviderReference: "pref-" + req.AppointmentID.String(),
	}, nil
}

func testConfig() config.Config {
	return config.Config{
		MinPriceARS:     100,
		MinDurationMins: 10,
		MaxDurationMins: 180,
	}
}

func validParams() CreateParams {
	return CreateParams{
		PatientName:     "Ana García",
		PatientEmail:    "ana@example.com",
		Reason:          "Fiebre persistente",
		Price:           40000,
		DurationMinutes: 30,
		ScheduledAt:     time.Now().Add(48 * time.Hour),
	}
}

func newTestService(store Store, gw CheckoutGateway, cfg config.Config) *Service {
	rooms := video.NewRoomBuilder("https://meet.jit.si", "teleconsulta")
	return NewService(store, gw, rooms, cfg, zap.NewNop())
}

func TestCreateAppointment(t *testing.T) {
	store := NewMemoryStore()
	gw := &fakeGateway{}
	svc := newTestService(store, gw, testConfig())

	result, err := svc.CreateAppointment(context.Background(), validParams())
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.NotEmpty(t, result.CheckoutURL)
	assert.False(t, result.Unreconciled)
	assert.Equal(t, StatusCreated, result.Appointment.Status)

	// The gateway request must carry the appointment id as round-trip
	// metadata; it is the only way webhooks find their way back.
	require.Len(t, gw.sessions, 1)
	assert.Equal(t, result.Appointment.ID, gw.sessions[0].AppointmentID)
	assert.Equal(t, "ARS", gw.sessions[0].Currency)

	stored, err := store.GetByID(context.Background(), result.Appointment.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ProviderReference)
	assert.Equal(t, "pref-"+result.Appointment.ID.String(), *stored.ProviderReference)
}

func TestCreateAppointmentValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*CreateParams)
		field  string
	}{
		{"empty name", func(p *CreateParams) { p.PatientName = "  " }, "patient_name"},
		{"bad email", func(p *CreateParams) { p.PatientEmail = "not-an-email" }, "patient_email"},
		{"empty reason", func(p *CreateParams) { p.Reason = "" }, "reason"},
		{"price below minimum", func(p *CreateParams) { p.Price = 50 }, "price"},
		{"duration too short", func(p *CreateParams) { p.DurationMinutes = 5 }, "duration_minutes"},
		{"duration too long", func(p *CreateParams) { p.DurationMinutes = 240 }, "duration_minutes"},
		{"missing schedule", func(p *CreateParams) { p.ScheduledAt = time.Time{} }, "scheduled_at"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewMemoryStore()
			gw := &fakeGateway{}
			svc := newTestService(store, gw, testConfig())

			params := validParams()
			tt.mutate(&params)

			_, err := svc.CreateAppointment(context.Background(), params)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)

			// Nothing persisted, no gateway call made.
			assert.Empty(t, gw.sessions)
		})
	}
}

func TestCreateAppointmentGatewayRejected(t *testing.T) {
	store := NewMemoryStore()
	gw := &fakeGateway{err: ErrGatewayRejected}
	svc := newTestService(store, gw, testConfig())

	_, err := svc.CreateAppointment(context.Background(), validParams())
	require.ErrorIs(t, err, ErrGatewayRejected)

	// The appointment exists but is tagged error so it never counts as a
	// payment expectation.
	events := store.Events()
	require.NotEmpty(t, events)
	var failedID *EventLog
	for i := range events {
		if events[i].EventType == EventCheckoutFailed {
			failedID = &events[i]
		}
	}
	require.NotNil(t, failedID)

	stored, err := store.GetByID(context.Background(), *failedID.AppointmentID)
	require.NoError(t, err)
	assert.Equal(t, StatusError, stored.Status)
	assert.Nil(t, stored.ProviderReference)
}

func TestCreateAppointmentGatewayUnconfigured(t *testing.T) {
	store := NewMemoryStore()
	svc := newTestService(store, nil, testConfig())

	_, err := svc.CreateAppointment(context.Background(), validParams())
	assert.ErrorIs(t, err, ErrGatewayUnavailable)
}

type failingPutStore struct {
	*MemoryStore
}

func (s *failingPutStore) Put(ctx context.Context, appt *Appointment) error {
	if appt.Status != StatusError {
		return errors.New("disk on fire")
	}
	return s.MemoryStore.Put(ctx, appt)
}

func TestCreateAppointmentStoreFailureStillDeliversCheckoutURL(t *testing.T) {
	store := &failingPutStore{MemoryStore: NewMemoryStore()}
	gw := &fakeGateway{}
	svc := newTestService(store, gw, testConfig())

	result, err := svc.CreateAppointment(context.Background(), validParams())
	require.NoError(t, err)
	assert.NotEmpty(t, result.CheckoutURL)
	assert.True(t, result.Unreconciled)

	var unreconciled bool
	for _, ev := range store.Events() {
		if ev.EventType == EventAppointmentUnreconciled {
			unreconciled = true
		}
	}
	assert.True(t, unreconciled, "expected an unreconciled anomaly event")
}

func TestResolveJoinLinkGating(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	svc := newTestService(store, &fakeGateway{}, testConfig())

	result, err := svc.CreateAppointment(ctx, validParams())
	require.NoError(t, err)
	id := result.Appointment.ID

	_, err = svc.ResolveJoinLink(ctx, id)
	assert.ErrorIs(t, err, ErrPaymentPending)

	applied, err := store.UpdateStatus(ctx, id, StatusPaid)
	require.NoError(t, err)
	require.True(t, applied)

	url1, err := svc.ResolveJoinLink(ctx, id)
	require.NoError(t, err)
	url2, err := svc.ResolveJoinLink(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, url1, url2, "join url must be deterministic")
	assert.Contains(t, url1, id.String())
}

func TestResolveJoinLinkWaivedGating(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	cfg := testConfig()
	cfg.AllowUnpaidJoin = true
	svc := newTestService(store, &fakeGateway{}, cfg)

	result, err := svc.CreateAppointment(ctx, validParams())
	require.NoError(t, err)

	url, err := svc.ResolveJoinLink(ctx, result.Appointment.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, url)
}

func TestResolveJoinLinkNotFound(t *testing.T) {
	store := NewMemoryStore()
	svc := newTestService(store, &fakeGateway{}, testConfig())

	_, err := svc.ResolveJoinLink(context.Background(), newTestAppointment().ID)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}
