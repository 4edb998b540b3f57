package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/jafarshop/orderengine/internal/config"
	apperrors "github.com/jafarshop/orderengine/pkg/errors"
)

const defaultTimeout = 30 * time.Second

// Intent statuses reported by the gateway
const (
	IntentStatusRequiresPayment = "requires_payment_method"
	IntentStatusProcessing      = "processing"
	IntentStatusSucceeded       = "succeeded"
	IntentStatusCanceled        = "canceled"
)

// Intent is a payment intent as the gateway reports it. Amount is in minor units.
type Intent struct {
	ID           string            `json:"id"`
	Status       string            `json:"status"`
	ClientSecret string            `json:"client_secret,omitempty"`
	Amount       int64             `json:"amount"`
	Currency     string            `json:"currency"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Succeeded reports whether the payment has been captured
func (i *Intent) Succeeded() bool {
	return i.Status == IntentStatusSucceeded
}

type Client struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
	logger     *zap.Logger
	group      singleflight.Group
}

// NewClient creates a new payment gateway REST client
func NewClient(cfg config.GatewayConfig, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		baseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
		secretKey: cfg.SecretKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}
}

// ToMinorUnits converts a decimal currency amount to integer cents
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// FromMinorUnits converts integer cents back to a decimal amount
func FromMinorUnits(amount int64) decimal.Decimal {
	return decimal.New(amount, -2)
}

type createIntentRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// CreateIntent opens a payment intent for amount. metadata["order_id"], when
// present, is also sent as the Idempotency-Key so a retried checkout reuses
// the same intent.
func (c *Client) CreateIntent(ctx context.Context, amount decimal.Decimal, currency string, metadata map[string]string) (*Intent, error) {
	body := createIntentRequest{
		Amount:   ToMinorUnits(amount),
		Currency: strings.ToLower(currency),
		Metadata: metadata,
	}

	headers := map[string]string{}
	if orderID := metadata["order_id"]; orderID != "" {
		headers["Idempotency-Key"] = "intent-" + orderID
	}

	var intent Intent
	if err := c.do(ctx, http.MethodPost, "/v1/payment_intents", body, headers, &intent); err != nil {
		return nil, err
	}

	c.logger.Info("Created payment intent",
		zap.String("intent_id", intent.ID),
		zap.Int64("amount", intent.Amount),
		zap.String("currency", intent.Currency),
	)
	return &intent, nil
}

// RetrieveIntent fetches the current state of an intent. Concurrent lookups of
// the same intent share one request. The shared request is detached from any
// single caller and bounded by the client timeout; each caller still stops
// waiting when its own context ends.
func (c *Client) RetrieveIntent(ctx context.Context, intentID string) (*Intent, error) {
	ch := c.group.DoChan(intentID, func() (interface{}, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.httpClient.Timeout)
		defer cancel()

		var intent Intent
		if err := c.do(shared, http.MethodGet, "/v1/payment_intents/"+intentID, nil, nil, &intent); err != nil {
			return nil, err
		}
		return &intent, nil
	})

	select {
	case <-ctx.Done():
		return nil, apperrors.Transient("gateway retrieve intent", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		intent := *res.Val.(*Intent)
		return &intent, nil
	}
}

// CancelIntent voids an intent that will never be paid
func (c *Client) CancelIntent(ctx context.Context, intentID string) error {
	var intent Intent
	return c.do(ctx, http.MethodPost, "/v1/payment_intents/"+intentID+"/cancel", struct{}{}, nil, &intent)
}

// APIError is a non-retryable rejection from the gateway
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway API error: status %d, body: %s", e.StatusCode, e.Body)
}

func (c *Client) do(ctx context.Context, method, path string, reqBody interface{}, headers map[string]string, out interface{}) error {
	var body io.Reader
	if reqBody != nil {
		jsonData, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("Gateway request failed", zap.String("path", path), zap.Error(err))
		return apperrors.Transient("gateway "+method+" "+path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperrors.Transient("gateway read response", err)
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return apperrors.Transient("gateway "+method+" "+path, &APIError{StatusCode: resp.StatusCode, Body: string(respBody)})
	}
	if resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}
