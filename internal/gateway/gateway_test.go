package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jafarshop/orderengine/internal/config"
	apperrors "github.com/jafarshop/orderengine/pkg/errors"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.GatewayConfig{
		BaseURL:   srv.URL,
		SecretKey: "sk_test",
		Timeout:   2 * time.Second,
	}, zap.NewNop())
}

func TestToMinorUnits(t *testing.T) {
	assert.Equal(t, int64(3500), ToMinorUnits(decimal.RequireFromString("35")))
	assert.Equal(t, int64(1999), ToMinorUnits(decimal.RequireFromString("19.99")))
	assert.Equal(t, int64(1000), ToMinorUnits(decimal.RequireFromString("9.995")))
	assert.True(t, FromMinorUnits(1999).Equal(decimal.RequireFromString("19.99")))
}

func TestCreateIntent(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/payment_intents", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		assert.Equal(t, "intent-order-1", r.Header.Get("Idempotency-Key"))

		var body createIntentRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, int64(4250), body.Amount)
		assert.Equal(t, "usd", body.Currency)
		assert.Equal(t, "order-1", body.Metadata["order_id"])

		json.NewEncoder(w).Encode(Intent{
			ID:           "pi_1",
			Status:       IntentStatusRequiresPayment,
			ClientSecret: "pi_1_secret",
			Amount:       body.Amount,
			Currency:     body.Currency,
		})
	})

	intent, err := client.CreateIntent(context.Background(), decimal.RequireFromString("42.50"), "USD", map[string]string{"order_id": "order-1"})
	require.NoError(t, err)
	assert.Equal(t, "pi_1", intent.ID)
	assert.Equal(t, "pi_1_secret", intent.ClientSecret)
	assert.False(t, intent.Succeeded())
}

func TestRetrieveIntent_ServerErrorIsTransient(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := client.RetrieveIntent(context.Background(), "pi_1")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeTransient))
}

func TestRetrieveIntent_ClientErrorIsNotTransient(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"no such intent"}`))
	})

	_, err := client.RetrieveIntent(context.Background(), "pi_missing")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.False(t, apperrors.HasCode(err, apperrors.CodeTransient))
}

func TestRetrieveIntent_CoalescesConcurrentLookups(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		<-release
		json.NewEncoder(w).Encode(Intent{ID: "pi_1", Status: IntentStatusSucceeded})
	})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			intent, err := client.RetrieveIntent(context.Background(), "pi_1")
			assert.NoError(t, err)
			assert.True(t, intent.Succeeded())
		}()
	}

	// give every goroutine time to join the in-flight call
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestRetrieveIntent_CallerCancellationDoesNotFailOthers(t *testing.T) {
	var calls int32
	started := make(chan struct{})
	release := make(chan struct{})
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(started)
		}
		<-release
		json.NewEncoder(w).Encode(Intent{ID: "pi_1", Status: IntentStatusSucceeded})
	})

	impatient, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := client.RetrieveIntent(impatient, "pi_1")
		firstErr <- err
	}()
	<-started

	second := make(chan *Intent, 1)
	go func() {
		intent, err := client.RetrieveIntent(context.Background(), "pi_1")
		assert.NoError(t, err)
		second <- intent
	}()
	time.Sleep(50 * time.Millisecond)

	cancel()
	err := <-firstErr
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeTransient))

	close(release)
	intent := <-second
	require.NotNil(t, intent)
	assert.True(t, intent.Succeeded())
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestWebhookVerifier(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1","status":"succeeded","metadata":{"order_id":"o1"}}}}`)
	now := time.Unix(1700000000, 0)
	verifier := NewWebhookVerifier("whsec", 5*time.Minute)
	verifier.now = func() time.Time { return now }

	t.Run("valid", func(t *testing.T) {
		event, err := verifier.ParseEvent(payload, Sign(payload, "whsec", now))
		require.NoError(t, err)
		assert.Equal(t, EventPaymentSucceeded, event.Type)
		assert.Equal(t, "pi_1", event.Intent().ID)
		assert.Equal(t, "o1", event.Intent().Metadata["order_id"])
	})

	t.Run("wrong secret", func(t *testing.T) {
		_, err := verifier.ParseEvent(payload, Sign(payload, "other", now))
		assert.True(t, apperrors.HasCode(err, apperrors.CodeGatewaySignatureInvalid))
	})

	t.Run("tampered payload", func(t *testing.T) {
		header := Sign(payload, "whsec", now)
		_, err := verifier.ParseEvent(append([]byte(nil), payload[:len(payload)-1]...), header)
		assert.True(t, apperrors.HasCode(err, apperrors.CodeGatewaySignatureInvalid))
	})

	t.Run("stale timestamp", func(t *testing.T) {
		_, err := verifier.ParseEvent(payload, Sign(payload, "whsec", now.Add(-10*time.Minute)))
		assert.True(t, apperrors.HasCode(err, apperrors.CodeGatewaySignatureInvalid))
	})

	t.Run("missing header", func(t *testing.T) {
		_, err := verifier.ParseEvent(payload, "")
		assert.True(t, apperrors.HasCode(err, apperrors.CodeGatewaySignatureInvalid))
	})
}
