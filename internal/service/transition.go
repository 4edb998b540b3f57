package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/orderengine/internal/domain"
	"github.com/jafarshop/orderengine/internal/events"
	"github.com/jafarshop/orderengine/internal/repository"
	apperrors "github.com/jafarshop/orderengine/pkg/errors"
)

const publishTimeout = 5 * time.Second

// appendTransition is the only way an order changes status. It must run
// inside a transaction that has locked the order row. On success order.Status
// reflects the new event.
func appendTransition(ctx context.Context, tx *repository.Repositories, order *domain.Order, event *domain.TrackingEvent, at time.Time) error {
	if order.Status.IsTerminal() {
		return &apperrors.ErrOrderAlreadyFinalized{OrderID: order.ID, Status: order.Status}
	}
	if !order.Status.CanTransitionTo(event.Status) {
		return &apperrors.ErrInvalidStateTransition{From: order.Status, To: event.Status}
	}

	event.OrderID = order.ID
	event.CreatedAt = at
	if err := tx.Tracking.Append(ctx, event); err != nil {
		return err
	}

	if event.Status == domain.OrderStatusDelivered {
		if err := tx.Order.SetDeliveredAt(ctx, order.ID, at); err != nil {
			return err
		}
		order.DeliveredAt = &at
	}

	order.Status = event.Status
	order.UpdatedAt = at
	return nil
}

func actorRef(actor Actor) *uuid.UUID {
	if actor.ID == uuid.Nil {
		return nil
	}
	id := actor.ID
	return &id
}

// publish emits an order event after commit. Failures are logged only.
func publish(ctx context.Context, publisher events.Publisher, logger *zap.Logger, eventType string, order *domain.Order) {
	if publisher == nil {
		return
	}
	// the order is committed; a caller hanging up must not drop the event
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := publisher.Publish(ctx, events.NewOrderEvent(eventType, order)); err != nil {
		logger.Warn("Failed to publish order event",
			zap.String("type", eventType),
			zap.String("order_id", order.ID.String()),
			zap.Error(err),
		)
	}
}
