package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teleconsulta/teleconsulta-backend/internal/appointment"
)

// MercadoPagoClient talks to the Mercado Pago REST API. An empty access
// token leaves the client in an unconfigured state where every call returns
// ErrGatewayUnavailable instead of crashing the process.
type MercadoPagoClient struct {
	accessToken string
	baseURL     string
	notifyURL   string
	frontendURL string
	httpClient  *http.Client
	logger      *zap.Logger
}

func NewMercadoPagoClient(accessToken, baseURL, notifyURL, frontendURL string, logger *zap.Logger) *MercadoPagoClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MercadoPagoClient{
		accessToken: accessToken,
		baseURL:     strings.TrimRight(baseURL, "/"),
		notifyURL:   notifyURL,
		frontendURL: frontendURL,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		logger:      logger,
	}
}

// Configured reports whether an access token is present.
func (c *MercadoPagoClient) Configured() bool {
	return c.accessToken != ""
}

// CreateCheckout creates a checkout preference. The appointment id goes into
// both external_reference and metadata so at least one of them survives into
// the webhook notification.
func (c *MercadoPagoClient) CreateCheckout(ctx context.Context, req appointment.CheckoutRequest) (*appointment.CheckoutSession, error) {
	if !c.Configured() {
		return nil, appointment.ErrGatewayUnavailable
	}

	body := map[string]any{
		"items": []map[string]any{
			{
				"title":       req.Title,
				"quantity":    1,
				"unit_price":  req.Price,
				"currency_id": req.Currency,
			},
		},
		"payer": map[string]any{
			"email": req.PayerEmail,
		},
		"external_reference": req.AppointmentID.String(),
		"metadata": map[string]string{
			"appointment_id": req.AppointmentID.String(),
		},
		"back_urls": map[string]string{
			"success": c.frontendURL + "/pago/exito",
			"failure": c.frontendURL + "/pago/error",
			"pending": c.frontendURL + "/pago/pendiente",
		},
		"auto_return": "approved",
	}
	if c.notifyURL != "" {
		body["notification_url"] = c.notifyURL
	}

	reqBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal preference payload: %w", err)
	}

	apiURL := c.baseURL + "/checkout/preferences"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("build preference request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.accessToken)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Idempotency-Key", req.AppointmentID.String())

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", appointment.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: status %d: %s",
			appointment.ErrGatewayRejected, resp.StatusCode, string(detail))
	}

	var parsed struct {
		ID               string `json:"id"`
		InitPoint        string `json:"init_point"`
		SandboxInitPoint string `json:"sandbox_init_point"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", appointment.ErrGatewayRejected, err)
	}

	checkoutURL := parsed.InitPoint
	if checkoutURL == "" {
		checkoutURL = parsed.SandboxInitPoint
	}
	if checkoutURL == "" {
		return nil, fmt.Errorf("%w: response carries no checkout url", appointment.ErrGatewayRejected)
	}

	return &appointment.CheckoutSession{
		CheckoutURL:       checkoutURL,
		ProviderReference: parsed.ID,
	}, nil
}

// GetPayment fetches the authoritative status of a single payment.
func (c *MercadoPagoClient) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	if !c.Configured() {
		return nil, appointment.ErrGatewayUnavailable
	}

	apiURL := fmt.Sprintf("%s/v1/payments/%s", c.baseURL, url.PathEscape(paymentID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build payment request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", appointment.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrPaymentNotFound
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("payment lookup status %d: %s", resp.StatusCode, string(detail))
	}

	var parsed paymentPayload
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode payment: %w", err)
	}

	return parsed.toPayment(), nil
}

// SearchPaymentsByReference finds payments carrying our external reference.
func (c *MercadoPagoClient) SearchPaymentsByReference(ctx context.Context, externalReference string) ([]Payment, error) {
	if !c.Configured() {
		return nil, appointment.ErrGatewayUnavailable
	}

	apiURL := fmt.Sprintf("%s/v1/payments/search?external_reference=%s",
		c.baseURL, url.QueryEscape(externalReference))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", appointment.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("payment search status %d: %s", resp.StatusCode, string(detail))
	}

	var parsed struct {
		Results []paymentPayload `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search results: %w", err)
	}

	out := make([]Payment, 0, len(parsed.Results))
	for _, p := range parsed.Results {
		out = append(out, *p.toPayment())
	}
	return out, nil
}

type paymentPayload struct {
	ID                json.Number    `json:"id"`
	Status            string         `json:"status"`
	ExternalReference string         `json:"external_reference"`
	Metadata          map[string]any `json:"metadata"`
}

func (p paymentPayload) toPayment() *Payment {
	meta := make(map[string]string, len(p.Metadata))
	for k, v := range p.Metadata {
		if s, ok := v.(string); ok {
			meta[k] = s
		}
	}
	return &Payment{
		ID:                p.ID.String(),
		Status:            p.Status,
		ExternalReference: p.ExternalReference,
		Metadata:          meta,
	}
}
