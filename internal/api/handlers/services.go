package handlers

import (
	"context"

	"github.com/google/uuid"

	"github.com/jafarshop/orderengine/internal/domain"
	"github.com/jafarshop/orderengine/internal/service"
)

// The handlers depend on these narrow views of the service layer.

type CheckoutService interface {
	Checkout(ctx context.Context, buyer service.Actor, req service.CheckoutRequest) (*service.CheckoutResult, error)
}

type OrderService interface {
	GetOrder(ctx context.Context, actor service.Actor, orderID uuid.UUID) (*service.OrderDetails, error)
	ListOrders(ctx context.Context, actor service.Actor, q service.ListOrdersQuery) ([]*domain.Order, error)
}

type PaymentService interface {
	ConfirmPayment(ctx context.Context, actor service.Actor, orderID uuid.UUID, intentID string) (*service.ConfirmResult, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) (*service.WebhookResult, error)
}

type CancellationService interface {
	Cancel(ctx context.Context, actor service.Actor, orderID uuid.UUID, reason string) (*domain.Order, error)
}

type TrackingService interface {
	AppendEvent(ctx context.Context, actor service.Actor, orderID uuid.UUID, req service.TrackingUpdateRequest) (*domain.TrackingEvent, error)
	History(ctx context.Context, actor service.Actor, orderID uuid.UUID) ([]*domain.TrackingEvent, error)
	Refund(ctx context.Context, actor service.Actor, orderID uuid.UUID, reason string) (*domain.Order, error)
}
