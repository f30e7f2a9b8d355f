package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var providerRef *string

	err := row.Scan(
		&a.ID,
		&a.PatientName,
		&a.PatientEmail,
		&a.Reason,
		&a.Price,
		&a.Currency,
		&a.DurationMinutes,
		&a.ScheduledAt,
		&a.Status,
		&providerRef,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.ProviderReference = providerRef
	return &a, nil
}

const appointmentColumns = `
	id, patient_name, patient_email, reason, price, currency,
	duration_minutes, scheduled_at, status, provider_reference,
	created_at, updated_at`

func (s *PgStore) Put(ctx context.Context, appt *Appointment) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO appointments (
			id, patient_name, patient_email, reason, price, currency,
			duration_minutes, scheduled_at, status, provider_reference,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
		ON CONFLICT (id) DO UPDATE SET
			patient_name = EXCLUDED.patient_name,
			patient_email = EXCLUDED.patient_email,
			reason = EXCLUDED.reason,
			price = EXCLUDED.price,
			currency = EXCLUDED.currency,
			duration_minutes = EXCLUDED.duration_minutes,
			scheduled_at = EXCLUDED.scheduled_at,
			status = EXCLUDED.status,
			provider_reference = EXCLUDED.provider_reference,
			updated_at = now()
	`, appt.ID, appt.PatientName, appt.PatientEmail, appt.Reason, appt.Price,
		appt.Currency, appt.DurationMinutes, appt.ScheduledAt, appt.Status,
		appt.ProviderReference)
	if err != nil {
		return fmt.Errorf("put appointment: %w", err)
	}
	return nil
}

func (s *PgStore) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (s *PgStore) GetByProviderReference(ctx context.Context, ref string) (*Appointment, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE provider_reference = $1
	`, ref)
	return scanAppointment(row)
}

// UpdateStatus is a compare-and-set: the row only changes when its current
// status is a legal predecessor of the target, so concurrent and replayed
// transitions race harmlessly.
func (s *PgStore) UpdateStatus(ctx context.Context, id uuid.UUID, to Status) (bool, error) {
	preds := TransitionPredecessors(to)
	if len(preds) == 0 {
		return false, nil
	}

	from := make([]string, len(preds))
	for i, p := range preds {
		from[i] = string(p)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = ANY($3)
	`, id, to, from)
	if err != nil {
		return false, fmt.Errorf("update appointment status: %w", err)
	}

	if tag.RowsAffected() == 0 {
		// Either a no-op transition or an unknown id; distinguish them so
		// reconciliation can report unknown appointments.
		var exists bool
		if err := s.pool.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM appointments WHERE id = $1)
		`, id).Scan(&exists); err != nil {
			return false, fmt.Errorf("check appointment exists: %w", err)
		}
		if !exists {
			return false, ErrAppointmentNotFound
		}
		return false, nil
	}

	return true, nil
}

func (s *PgStore) SetProviderReference(ctx context.Context, id uuid.UUID, ref string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE appointments
		SET provider_reference = $2,
		    updated_at = now()
		WHERE id = $1
		  AND provider_reference IS NULL
	`, id, ref)
	if err != nil {
		return fmt.Errorf("set provider reference: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Already set or unknown id; set-once means this is not an error
		// unless the appointment does not exist at all.
		var exists bool
		if err := s.pool.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM appointments WHERE id = $1)
		`, id).Scan(&exists); err != nil {
			return fmt.Errorf("check appointment exists: %w", err)
		}
		if !exists {
			return ErrAppointmentNotFound
		}
	}
	return nil
}

func (s *PgStore) FindStalePending(ctx context.Context, cutoff time.Time) ([]Appointment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'pending_payment'
		  AND updated_at < $1
	`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (s *PgStore) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
