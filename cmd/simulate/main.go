// Simulates booking traffic against a running api-server: concurrent
// appointment creation, duplicated webhook deliveries for the same payment,
// and join polling. Meant to be pointed at a deployment running with
// VERIFY_WEBHOOKS=false and a sandbox gateway, where duplicate and
// out-of-order notifications can be produced at will.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
)

type SimConfig struct {
	APIBaseURL        string
	Bookings          int
	Workers           int
	WebhookDuplicates int
}

type OperationMetrics struct {
	Total   int64
	Success int64
	Error   int64
}

func (om *OperationMetrics) Record(success bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg := SimConfig{
		APIBaseURL:        getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Bookings:          getEnvInt("SIM_BOOKINGS", 50),
		Workers:           getEnvInt("SIM_WORKERS", 8),
		WebhookDuplicates: getEnvInt("SIM_WEBHOOK_DUPLICATES", 3),
	}

	log.Printf("simulate starting base_url=%s bookings=%d workers=%d duplicates=%d",
		cfg.APIBaseURL, cfg.Bookings, cfg.Workers, cfg.WebhookDuplicates)

	gofakeit.Seed(time.Now().UnixNano())

	var (
		createMetrics  OperationMetrics
		webhookMetrics OperationMetrics
		joinMetrics    OperationMetrics
	)

	jobs := make(chan int)
	var wg sync.WaitGroup

	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}
			for range jobs {
				runBooking(client, cfg, &createMetrics, &webhookMetrics, &joinMetrics)
			}
		}()
	}

	start := time.Now()
	for i := 0; i < cfg.Bookings; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	log.Printf("simulate complete in %s", time.Since(start))
	report("create", &createMetrics)
	report("webhook", &webhookMetrics)
	report("join", &joinMetrics)
}

func runBooking(client *http.Client, cfg SimConfig, create, webhook, join *OperationMetrics) {
	apptID, ok := createAppointment(client, cfg.APIBaseURL)
	create.Record(ok)
	if !ok {
		return
	}

	// Fire the same logical payment event several times concurrently; the
	// backend must land on exactly one transition to paid.
	paymentID := strconv.Itoa(rand.Intn(1_000_000_000))
	var whWg sync.WaitGroup
	for i := 0; i < cfg.WebhookDuplicates; i++ {
		whWg.Add(1)
		go func() {
			defer whWg.Done()
			webhook.Record(sendWebhook(client, cfg.APIBaseURL, apptID, paymentID))
		}()
	}
	whWg.Wait()

	join.Record(checkJoin(client, cfg.APIBaseURL, apptID))
}

func createAppointment(client *http.Client, baseURL string) (string, bool) {
	body, _ := json.Marshal(map[string]any{
		"patient_name":     gofakeit.Name(),
		"patient_email":    gofakeit.Email(),
		"reason":           "Consulta de control",
		"price":            40000,
		"duration_minutes": 30,
		"scheduled_at":     time.Now().Add(48 * time.Hour).Format(time.RFC3339),
	})

	resp, err := client.Post(baseURL+"/appointments", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return "", false
	}

	var parsed struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil || parsed.ID == "" {
		return "", false
	}
	return parsed.ID, true
}

func sendWebhook(client *http.Client, baseURL, apptID, paymentID string) bool {
	body, _ := json.Marshal(map[string]any{
		"id":   paymentID,
		"type": "payment",
		"data": map[string]any{
			"id":                 paymentID,
			"status":             "approved",
			"external_reference": apptID,
			"metadata": map[string]any{
				"appointment_id": apptID,
			},
		},
	})

	resp, err := client.Post(baseURL+"/payments/webhook", "application/json", bytes.NewReader(body))
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func checkJoin(client *http.Client, baseURL, apptID string) bool {
	resp, err := client.Get(fmt.Sprintf("%s/appointments/%s/join", baseURL, apptID))
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func report(name string, m *OperationMetrics) {
	log.Printf("%-8s total=%d success=%d error=%d", name,
		atomic.LoadInt64(&m.Total), atomic.LoadInt64(&m.Success), atomic.LoadInt64(&m.Error))
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
