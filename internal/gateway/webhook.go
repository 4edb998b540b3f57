package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/jafarshop/orderengine/pkg/errors"
)

// SignatureHeader carries "t=<unix>,v1=<hex hmac>" where the HMAC-SHA256 is
// computed over "<t>.<raw body>".
const SignatureHeader = "Gateway-Signature"

// EventPaymentSucceeded is the only event type that changes order state
const EventPaymentSucceeded = "payment_intent.succeeded"

// Event is an inbound gateway webhook delivery
type Event struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object Intent `json:"object"`
	} `json:"data"`
}

// Intent returns the payment intent the event refers to
func (e *Event) Intent() *Intent {
	return &e.Data.Object
}

// WebhookVerifier authenticates webhook payloads
type WebhookVerifier struct {
	secret    string
	tolerance time.Duration
	now       func() time.Time
}

// NewWebhookVerifier creates a verifier. A zero tolerance disables the
// timestamp age check.
func NewWebhookVerifier(secret string, tolerance time.Duration) *WebhookVerifier {
	return &WebhookVerifier{secret: secret, tolerance: tolerance, now: time.Now}
}

// ParseEvent verifies the signature header and decodes the payload
func (v *WebhookVerifier) ParseEvent(payload []byte, header string) (*Event, error) {
	if err := v.Verify(payload, header); err != nil {
		return nil, err
	}

	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, &apperrors.ErrValidation{Field: "payload", Message: "malformed webhook event"}
	}
	if event.ID == "" || event.Type == "" {
		return nil, &apperrors.ErrValidation{Field: "payload", Message: "webhook event is missing id or type"}
	}
	return &event, nil
}

// Verify checks the signature header against payload
func (v *WebhookVerifier) Verify(payload []byte, header string) error {
	if header == "" {
		return &apperrors.ErrGatewaySignatureInvalid{Reason: "missing signature header"}
	}

	var timestamp string
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case "v1":
			signatures = append(signatures, kv[1])
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return &apperrors.ErrGatewaySignatureInvalid{Reason: "malformed signature header"}
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return &apperrors.ErrGatewaySignatureInvalid{Reason: "malformed timestamp"}
	}
	if v.tolerance > 0 {
		age := v.now().Sub(time.Unix(ts, 0))
		if age > v.tolerance || age < -v.tolerance {
			return &apperrors.ErrGatewaySignatureInvalid{Reason: "timestamp outside tolerance"}
		}
	}

	expected := computeSignature(payload, timestamp, v.secret)
	for _, sig := range signatures {
		decoded, err := hex.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(decoded, expected) {
			return nil
		}
	}
	return &apperrors.ErrGatewaySignatureInvalid{Reason: "no matching signature"}
}

// Sign produces a signature header for payload. Used by tests and the
// local webhook replay tooling.
func Sign(payload []byte, secret string, at time.Time) string {
	timestamp := strconv.FormatInt(at.Unix(), 10)
	return fmt.Sprintf("t=%s,v1=%s", timestamp, hex.EncodeToString(computeSignature(payload, timestamp, secret)))
}

func computeSignature(payload []byte, timestamp, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	return mac.Sum(nil)
}
