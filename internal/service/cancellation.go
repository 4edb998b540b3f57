package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/orderengine/internal/domain"
	"github.com/jafarshop/orderengine/internal/events"
	"github.com/jafarshop/orderengine/internal/metrics"
	"github.com/jafarshop/orderengine/internal/repository"
	apperrors "github.com/jafarshop/orderengine/pkg/errors"
)

type cancellationService struct {
	repos     *repository.Repositories
	gateway   PaymentGateway
	publisher events.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewCancellationService creates the cancellation handler
func NewCancellationService(repos *repository.Repositories, gw PaymentGateway, publisher events.Publisher, logger *zap.Logger) *cancellationService {
	return &cancellationService{
		repos:     repos,
		gateway:   gw,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Cancel moves a PENDING or PROCESSING order to CANCELLED and returns every
// line item's quantity to stock and to its flash-sale pool. The status check
// runs under the order row lock, so a second cancel fails with
// ErrOrderNotCancellable and releases nothing. Voucher usage is not restored.
func (s *cancellationService) Cancel(ctx context.Context, actor Actor, orderID uuid.UUID, reason string) (*domain.Order, error) {
	description := "Order cancelled"
	if reason != "" {
		description = reason
	}

	var order *domain.Order
	err := s.repos.WithTx(ctx, func(tx *repository.Repositories) error {
		var err error
		order, err = tx.Order.GetByIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		items, err := tx.OrderItem.GetByOrderID(ctx, orderID)
		if err != nil {
			return err
		}
		if err := actor.canView(order, items); err != nil {
			return err
		}

		if !order.Status.IsCancellable() {
			return &apperrors.ErrOrderNotCancellable{OrderID: order.ID, Status: order.Status}
		}

		if err := appendTransition(ctx, tx, order, &domain.TrackingEvent{
			Status:      domain.OrderStatusCancelled,
			Description: description,
			ActorID:     actorRef(actor),
		}, s.now()); err != nil {
			return err
		}

		for _, item := range items {
			if err := tx.Inventory.Release(ctx, item.ProductID, item.Quantity); err != nil {
				return err
			}
			if item.FlashSaleProductID != nil {
				if err := tx.FlashSale.ReleasePool(ctx, *item.FlashSaleProductID, item.Quantity); err != nil {
					return err
				}
			}
		}
		return nil
	})
	metrics.RecordOrderOperation("cancel", err == nil)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Order cancelled",
		zap.String("order_id", orderID.String()),
		zap.String("actor_id", actor.ID.String()),
		zap.String("role", string(actor.Role)),
	)

	if order.PaymentMethod == domain.PaymentMethodCard && !order.IsPaid() && order.PaymentGatewayRef != nil {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		if err := s.gateway.CancelIntent(ctx, *order.PaymentGatewayRef); err != nil {
			s.logger.Warn("Failed to cancel payment intent",
				zap.String("order_id", orderID.String()),
				zap.String("intent_id", *order.PaymentGatewayRef),
				zap.Error(err),
			)
		}
		cancel()
	}

	publish(ctx, s.publisher, s.logger, events.OrderCancelled, order)
	return order, nil
}
