package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/teleconsulta/teleconsulta-backend/internal/catalog"
	"github.com/teleconsulta/teleconsulta-backend/internal/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.Connect(ctx, db.Options{DSN: dsn})
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	if err := db.Migrate(context.Background(), pool); err != nil {
		log.Fatalf("apply migrations: %v", err)
	}

	gofakeit.Seed(time.Now().UnixNano())

	if err := seedConsultationTypes(context.Background(), pool); err != nil {
		log.Fatalf("seed consultation types: %v", err)
	}
	if err := seedDemoAppointments(context.Background(), pool, 25); err != nil {
		log.Fatalf("seed demo appointments: %v", err)
	}

	log.Println("seed complete")
}

func seedConsultationTypes(ctx context.Context, pool *pgxpool.Pool) error {
	types := catalog.Defaults()
	log.Printf("seeding %d consultation types", len(types))

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, ct := range types {
		_, err := tx.Exec(ctx, `
			INSERT INTO consultation_types (id, title, price, currency, duration_minutes)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO NOTHING
		`, ct.ID, ct.Title, ct.Price, ct.Currency, ct.DurationMinutes)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func seedDemoAppointments(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d demo appointments", count)

	reasons := []string{
		"Control pediátrico",
		"Fiebre persistente",
		"Consulta por alergia",
		"Seguimiento de tratamiento",
		"Dolor abdominal",
	}
	durations := []int{20, 30, 45}
	statuses := []string{"created", "pending_payment", "paid"}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		id := uuid.New()
		scheduled := time.Now().Add(time.Duration(gofakeit.Number(1, 14*24)) * time.Hour)
		status := statuses[gofakeit.Number(0, len(statuses)-1)]

		var providerRef *string
		if status != "created" {
			ref := gofakeit.UUID()
			providerRef = &ref
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO appointments (
				id, patient_name, patient_email, reason, price, currency,
				duration_minutes, scheduled_at, status, provider_reference,
				created_at, updated_at
			)
			VALUES ($1, $2, $3, $4, $5, 'ARS', $6, $7, $8, $9, now(), now())
		`, id,
			gofakeit.Name(),
			gofakeit.Email(),
			reasons[gofakeit.Number(0, len(reasons)-1)],
			int64(gofakeit.Number(30000, 45000)),
			durations[gofakeit.Number(0, len(durations)-1)],
			scheduled,
			status,
			providerRef,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}
