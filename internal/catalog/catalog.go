// Package catalog serves the list of bookable consultation types.
package catalog

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ConsultationType struct {
	ID              uuid.UUID
	Title           string
	Price           int64
	Currency        string
	DurationMinutes int
}

type Repository interface {
	List(ctx context.Context) ([]ConsultationType, error)
}

// Defaults is the consultation menu used to seed new databases and to back
// the in-memory demo mode.
func Defaults() []ConsultationType {
	return []ConsultationType{
		{ID: uuid.New(), Title: "Teleconsulta pediátrica", Price: 40000, Currency: "ARS", DurationMinutes: 30},
		{ID: uuid.New(), Title: "Consulta de control", Price: 30000, Currency: "ARS", DurationMinutes: 30},
		{ID: uuid.New(), Title: "Asesoramiento por síntomas", Price: 35000, Currency: "ARS", DurationMinutes: 20},
	}
}

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) List(ctx context.Context) ([]ConsultationType, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, title, price, currency, duration_minutes
		FROM consultation_types
		ORDER BY title
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ConsultationType
	for rows.Next() {
		var ct ConsultationType
		if err := rows.Scan(&ct.ID, &ct.Title, &ct.Price, &ct.Currency, &ct.DurationMinutes); err != nil {
			return nil, err
		}
		result = append(result, ct)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// StaticRepository serves a fixed list, used in memory mode and tests.
type StaticRepository struct {
	types []ConsultationType
}

func NewStaticRepository(types []ConsultationType) *StaticRepository {
	return &StaticRepository{types: types}
}

func (r *StaticRepository) List(ctx context.Context) ([]ConsultationType, error) {
	out := make([]ConsultationType, len(r.types))
	copy(out, r.types)
	return out, nil
}
