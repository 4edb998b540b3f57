package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/orderengine/internal/cache"
	"github.com/jafarshop/orderengine/internal/domain"
	"github.com/jafarshop/orderengine/internal/events"
	"github.com/jafarshop/orderengine/internal/gateway"
	"github.com/jafarshop/orderengine/internal/metrics"
	"github.com/jafarshop/orderengine/internal/repository"
	apperrors "github.com/jafarshop/orderengine/pkg/errors"
)

const webhookDedupeTTL = 72 * time.Hour

// Confirmation sources, used in logs and metrics
const (
	SourceExplicit = "explicit"
	SourceWebhook  = "webhook"
	SourceOperator = "operator"
)

// WebhookVerifier authenticates and decodes raw webhook deliveries
type WebhookVerifier interface {
	ParseEvent(payload []byte, header string) (*gateway.Event, error)
}

// ConfirmResult reports the order after confirmation. AlreadyPaid is true
// when an earlier confirmation had already applied the transition.
type ConfirmResult struct {
	Order       *domain.Order
	AlreadyPaid bool
}

// WebhookOutcome describes what a webhook delivery did
type WebhookOutcome string

const (
	WebhookApplied   WebhookOutcome = "applied"
	WebhookDuplicate WebhookOutcome = "duplicate"
	WebhookIgnored   WebhookOutcome = "ignored"
)

type WebhookResult struct {
	EventID string
	OrderID uuid.UUID
	Outcome WebhookOutcome
}

type paymentService struct {
	repos     *repository.Repositories
	gateway   PaymentGateway
	verifier  WebhookVerifier
	cache     cache.Cache
	publisher events.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewPaymentService creates the payment confirmation handler. c may be nil,
// in which case webhook deduplication relies on the database alone.
func NewPaymentService(
	repos *repository.Repositories,
	gw PaymentGateway,
	verifier WebhookVerifier,
	c cache.Cache,
	publisher events.Publisher,
	logger *zap.Logger,
) *paymentService {
	return &paymentService{
		repos:     repos,
		gateway:   gw,
		verifier:  verifier,
		cache:     c,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// ConfirmPayment is the explicit confirmation path called by the buyer's
// client after completing payment. intentID must match the order's intent.
func (s *paymentService) ConfirmPayment(ctx context.Context, actor Actor, orderID uuid.UUID, intentID string) (*ConfirmResult, error) {
	order, err := s.repos.Order.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !actor.ownsOrder(order) {
		return nil, &apperrors.ErrForbidden{Message: "access denied"}
	}
	if order.PaymentMethod != domain.PaymentMethodCard || order.PaymentGatewayRef == nil {
		return nil, &apperrors.ErrValidation{Field: "payment_intent_id", Message: "order is not paid by card"}
	}
	if intentID != "" && intentID != *order.PaymentGatewayRef {
		return nil, &apperrors.ErrValidation{Field: "payment_intent_id", Message: "does not match the order's payment intent"}
	}

	return s.ConfirmIntent(ctx, order, SourceExplicit)
}

// ConfirmIntent asks the gateway whether order's intent has succeeded and, if
// so, applies the PAID transition. Also used by the operator CLI.
func (s *paymentService) ConfirmIntent(ctx context.Context, order *domain.Order, source string) (*ConfirmResult, error) {
	if order.IsPaid() {
		metrics.RecordDuplicateConfirmation(source)
		return &ConfirmResult{Order: order, AlreadyPaid: true}, nil
	}
	if order.PaymentGatewayRef == nil {
		return nil, &apperrors.ErrValidation{Field: "payment_intent_id", Message: "order has no payment intent"}
	}

	intent, err := s.gateway.RetrieveIntent(ctx, *order.PaymentGatewayRef)
	if err != nil {
		s.logger.Error("Failed to retrieve payment intent",
			zap.String("order_id", order.ID.String()),
			zap.String("intent_id", *order.PaymentGatewayRef),
			zap.Error(err),
		)
		return nil, err
	}
	if !intent.Succeeded() {
		return nil, &apperrors.ErrPaymentNotCompleted{IntentID: intent.ID, IntentStatus: intent.Status}
	}

	return s.markPaid(ctx, order.ID, source)
}

// HandleWebhook verifies and applies a gateway delivery. Duplicate deliveries
// and events for orders that were cancelled meanwhile succeed without effect.
func (s *paymentService) HandleWebhook(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	event, err := s.verifier.ParseEvent(payload, signature)
	if err != nil {
		s.logger.Warn("Rejected webhook", zap.Error(err))
		return nil, err
	}

	result := &WebhookResult{EventID: event.ID, Outcome: WebhookIgnored}
	if event.Type != gateway.EventPaymentSucceeded {
		s.logger.Debug("Ignoring webhook event", zap.String("event_id", event.ID), zap.String("type", event.Type))
		return result, nil
	}

	dedupeKey := ""
	if s.cache != nil {
		dedupeKey = s.cache.GenerateKey("webhook", event.ID)
		seen, err := s.cache.Get(ctx, dedupeKey)
		if err != nil {
			s.logger.Warn("Webhook dedupe lookup failed", zap.String("event_id", event.ID), zap.Error(err))
		} else if seen != "" {
			metrics.RecordDuplicateConfirmation(SourceWebhook)
			result.Outcome = WebhookDuplicate
			if id, err := uuid.Parse(seen); err == nil {
				result.OrderID = id
			}
			return result, nil
		}
	}

	order, err := s.findOrder(ctx, event.Intent())
	if err != nil {
		// not found is returned so the gateway retries; the checkout
		// transaction may not have committed yet
		return nil, err
	}
	result.OrderID = order.ID

	confirmed, err := s.markPaid(ctx, order.ID, SourceWebhook)
	switch {
	case apperrors.HasCode(err, apperrors.CodeOrderAlreadyFinalized):
		s.logger.Warn("Payment succeeded for a finalized order",
			zap.String("order_id", order.ID.String()),
			zap.String("intent_id", event.Intent().ID),
			zap.Error(err),
		)
		return result, nil
	case err != nil:
		return nil, err
	}

	if confirmed.AlreadyPaid {
		result.Outcome = WebhookDuplicate
	} else {
		result.Outcome = WebhookApplied
	}

	if dedupeKey != "" {
		if err := s.cache.Set(ctx, dedupeKey, order.ID.String(), webhookDedupeTTL); err != nil {
			s.logger.Warn("Failed to record processed webhook", zap.String("event_id", event.ID), zap.Error(err))
		}
	}
	return result, nil
}

func (s *paymentService) findOrder(ctx context.Context, intent *gateway.Intent) (*domain.Order, error) {
	order, err := s.repos.Order.GetByGatewayRef(ctx, intent.ID)
	if err == nil || !apperrors.HasCode(err, apperrors.CodeNotFound) {
		return order, err
	}

	orderID, parseErr := uuid.Parse(intent.Metadata["order_id"])
	if parseErr != nil {
		return nil, err
	}
	order, err = s.repos.Order.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.PaymentGatewayRef == nil || *order.PaymentGatewayRef != intent.ID {
		return nil, &apperrors.ErrNotFound{Resource: "order", ID: intent.ID}
	}
	return order, nil
}

// markPaid is the single idempotent PAID transition both entry points use.
// The order row lock serializes concurrent confirmations; the loser sees the
// order already paid and returns without appending an event.
func (s *paymentService) markPaid(ctx context.Context, orderID uuid.UUID, source string) (*ConfirmResult, error) {
	var result *ConfirmResult
	err := s.repos.WithTx(ctx, func(tx *repository.Repositories) error {
		order, err := tx.Order.GetByIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order.IsPaid() {
			result = &ConfirmResult{Order: order, AlreadyPaid: true}
			return nil
		}
		if order.Status.IsTerminal() {
			return &apperrors.ErrOrderAlreadyFinalized{OrderID: order.ID, Status: order.Status}
		}

		now := s.now()
		applied, err := tx.Order.MarkPaid(ctx, orderID, now)
		if err != nil {
			return err
		}
		if !applied {
			result = &ConfirmResult{Order: order, AlreadyPaid: true}
			return nil
		}
		order.PaymentStatus = domain.PaymentStatusPaid
		order.PaidAt = &now

		if order.Status == domain.OrderStatusPending {
			if err := appendTransition(ctx, tx, order, &domain.TrackingEvent{
				Status:      domain.OrderStatusProcessing,
				Description: "Payment confirmed",
			}, now); err != nil {
				return err
			}
		}
		result = &ConfirmResult{Order: order}
		return nil
	})
	metrics.RecordOrderOperation("payment_confirm", err == nil)
	if err != nil {
		return nil, err
	}

	if result.AlreadyPaid {
		metrics.RecordDuplicateConfirmation(source)
		s.logger.Info("Payment already confirmed", zap.String("order_id", orderID.String()), zap.String("source", source))
		return result, nil
	}

	s.logger.Info("Payment confirmed", zap.String("order_id", orderID.String()), zap.String("source", source))
	publish(ctx, s.publisher, s.logger, events.OrderPaymentConfirmed, result.Order)
	return result, nil
}
