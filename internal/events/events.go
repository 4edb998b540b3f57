// Package events defines the domain events the order engine emits for
// notification, email and chat collaborators. Delivery is best effort: a
// publish failure is logged and never undoes the state change it reports.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jafarshop/orderengine/internal/domain"
)

// Event types, also used as routing keys
const (
	OrderPlaced           = "order.placed"
	OrderPaymentConfirmed = "order.payment_confirmed"
	OrderCancelled        = "order.cancelled"
	OrderStatusChanged    = "order.status_changed"
)

// OrderEvent is the payload published for every order lifecycle change
type OrderEvent struct {
	ID            uuid.UUID            `json:"id"`
	Type          string               `json:"type"`
	OrderID       uuid.UUID            `json:"order_id"`
	BuyerID       uuid.UUID            `json:"buyer_id"`
	Status        domain.OrderStatus   `json:"status"`
	PaymentStatus domain.PaymentStatus `json:"payment_status"`
	Total         decimal.Decimal      `json:"total"`
	OccurredAt    time.Time            `json:"occurred_at"`
}

// NewOrderEvent builds an event from the order's state after the change
func NewOrderEvent(eventType string, order *domain.Order) OrderEvent {
	return OrderEvent{
		ID:            uuid.New(),
		Type:          eventType,
		OrderID:       order.ID,
		BuyerID:       order.BuyerID,
		Status:        order.Status,
		PaymentStatus: order.PaymentStatus,
		Total:         order.Total,
		OccurredAt:    time.Now().UTC(),
	}
}

// Publisher delivers order events to subscribers
type Publisher interface {
	Publish(ctx context.Context, event OrderEvent) error
}

type logPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher returns a publisher that only logs. Used when no broker
// is configured.
func NewLogPublisher(logger *zap.Logger) Publisher {
	return &logPublisher{logger: logger}
}

func (p *logPublisher) Publish(ctx context.Context, event OrderEvent) error {
	p.logger.Info("Order event",
		zap.String("type", event.Type),
		zap.String("order_id", event.OrderID.String()),
		zap.String("status", string(event.Status)),
	)
	return nil
}
