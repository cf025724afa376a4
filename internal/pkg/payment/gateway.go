package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rafflemaster/rafflemaster/internal/pkg/env"
)

const defaultPixAPIBaseURL = "https://api.mercadopago.com"

// Charge statuses reported by the PIX gateway.
const (
	ChargeStatusPending     = "pending"
	ChargeStatusApproved    = "approved"
	ChargeStatusRejected    = "rejected"
	ChargeStatusCancelled   = "cancelled"
	ChargeStatusRefunded    = "refunded"
	ChargeStatusChargedBack = "charged_back"
)

// Charge is the gateway's view of one PIX charge.
type Charge struct {
	ID     string
	PayURL string
	Status string
}

// CreateChargeRequest carries everything the gateway needs for a new charge.
type CreateChargeRequest struct {
	Amount         float64
	Description    string
	PayerEmail     string
	ExpiresAt      time.Time
	IdempotencyKey string
}

// GatewayClient is the narrow contract the core has with the external PIX
// provider.
type GatewayClient interface {
	CreateCharge(ctx context.Context, req CreateChargeRequest) (*Charge, error)
	GetCharge(ctx context.Context, chargeID string) (*Charge, error)
}

// PixClient talks to a MercadoPago-compatible PIX API.
type PixClient struct {
	AccessToken     string
	APIBaseURL      string
	NotificationURL string

	HTTPClient *http.Client
}

// NewPixClientFromEnv builds a PIX client from environment configuration.
func NewPixClientFromEnv() *PixClient {
	base := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", ""), "/")
	notificationURL := strings.TrimSpace(env.GetEnv("PIX_NOTIFICATION_URL", ""))
	if notificationURL == "" && base != "" {
		notificationURL = base + "/api/v1/payment-notifications"
	}

	return &PixClient{
		AccessToken:     strings.TrimSpace(env.GetEnv("PIX_ACCESS_TOKEN", "")),
		APIBaseURL:      strings.TrimRight(env.GetEnv("PIX_API_BASE_URL", defaultPixAPIBaseURL), "/"),
		NotificationURL: notificationURL,
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type pixChargeBody struct {
	TransactionAmount float64      `json:"transaction_amount"`
	Description       string       `json:"description"`
	PaymentMethodID   string       `json:"payment_method_id"`
	NotificationURL   string       `json:"notification_url,omitempty"`
	DateOfExpiration  string       `json:"date_of_expiration"`
	Payer             pixPayerBody `json:"payer"`
}

type pixPayerBody struct {
	Email string `json:"email"`
}

type pixChargeResponse struct {
	ID                 json.Number `json:"id"`
	Status             string      `json:"status"`
	PointOfInteraction struct {
		TransactionData struct {
			TicketURL string `json:"ticket_url"`
		} `json:"transaction_data"`
	} `json:"point_of_interaction"`
}

// CreateCharge requests a new PIX charge. The idempotency key makes retries
// of the same purchase attempt safe on the gateway side.
func (c *PixClient) CreateCharge(ctx context.Context, req CreateChargeRequest) (*Charge, error) {
	if strings.TrimSpace(c.AccessToken) == "" {
		return nil, errors.New("PIX_ACCESS_TOKEN is not configured")
	}
	if strings.TrimSpace(req.PayerEmail) == "" {
		return nil, errors.New("payer email is required")
	}

	body := pixChargeBody{
		TransactionAmount: req.Amount,
		Description:       req.Description,
		PaymentMethodID:   "pix",
		NotificationURL:   c.NotificationURL,
		DateOfExpiration:  req.ExpiresAt.UTC().Format(time.RFC3339),
		Payer:             pixPayerBody{Email: req.PayerEmail},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIBaseURL+"/v1/payments", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.AccessToken)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if strings.TrimSpace(req.IdempotencyKey) != "" {
		httpReq.Header.Set("X-Idempotency-Key", req.IdempotencyKey)
	}

	return c.doCharge(httpReq)
}

// GetCharge re-queries the gateway for the current status of a charge.
func (c *PixClient) GetCharge(ctx context.Context, chargeID string) (*Charge, error) {
	if strings.TrimSpace(c.AccessToken) == "" {
		return nil, errors.New("PIX_ACCESS_TOKEN is not configured")
	}
	if strings.TrimSpace(chargeID) == "" {
		return nil, errors.New("charge id is required")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.APIBaseURL+"/v1/payments/"+chargeID, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.AccessToken)
	httpReq.Header.Set("Accept", "application/json")

	return c.doCharge(httpReq)
}

func (c *PixClient) doCharge(req *http.Request) (*Charge, error) {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("pix gateway returned status=%d body=%s", resp.StatusCode, string(body))
	}

	var out pixChargeResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}
	if out.ID.String() == "" {
		return nil, errors.New("pix gateway returned empty charge id")
	}
	return &Charge{
		ID:     out.ID.String(),
		PayURL: out.PointOfInteraction.TransactionData.TicketURL,
		Status: out.Status,
	}, nil
}
