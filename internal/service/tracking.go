package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/orderengine/internal/domain"
	"github.com/jafarshop/orderengine/internal/events"
	"github.com/jafarshop/orderengine/internal/metrics"
	"github.com/jafarshop/orderengine/internal/repository"
	apperrors "github.com/jafarshop/orderengine/pkg/errors"
)

type trackingService struct {
	repos     *repository.Repositories
	publisher events.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewTrackingService creates the tracking ledger service
func NewTrackingService(repos *repository.Repositories, publisher events.Publisher, logger *zap.Logger) *trackingService {
	return &trackingService{
		repos:     repos,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// AppendEvent records a seller or admin status update
func (s *trackingService) AppendEvent(ctx context.Context, actor Actor, orderID uuid.UUID, req TrackingUpdateRequest) (*domain.TrackingEvent, error) {
	event, order, err := s.appendEvent(ctx, actor, orderID, req)
	metrics.RecordOrderOperation("tracking_append", err == nil)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Tracking event appended",
		zap.String("order_id", orderID.String()),
		zap.String("status", string(event.Status)),
		zap.String("actor_id", actor.ID.String()),
	)
	publish(ctx, s.publisher, s.logger, events.OrderStatusChanged, order)
	return event, nil
}

func (s *trackingService) appendEvent(ctx context.Context, actor Actor, orderID uuid.UUID, req TrackingUpdateRequest) (*domain.TrackingEvent, *domain.Order, error) {
	status := domain.OrderStatus(strings.ToUpper(req.Status))
	if !status.IsValid() {
		return nil, nil, &apperrors.ErrValidation{Field: "status", Message: "unknown status " + req.Status}
	}
	if status == domain.OrderStatusRefunded && !actor.IsAdmin() {
		return nil, nil, &apperrors.ErrForbidden{Message: "only admins can refund orders"}
	}

	event := &domain.TrackingEvent{
		Status:            status,
		Carrier:           req.Carrier,
		Description:       req.Description,
		TrackingNumber:    req.TrackingNumber,
		EstimatedDelivery: req.EstimatedDelivery,
		Location:          req.Location,
		ActorID:           actorRef(actor),
	}

	var order *domain.Order
	err := s.repos.WithTx(ctx, func(tx *repository.Repositories) error {
		var err error
		order, err = tx.Order.GetByIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}

		if !actor.IsAdmin() {
			items, err := tx.OrderItem.GetByOrderID(ctx, orderID)
			if err != nil {
				return err
			}
			if !actor.sellsOn(items) {
				return &apperrors.ErrForbidden{Message: "only the seller or an admin can update tracking"}
			}
		}

		if order.Status.IsTerminal() {
			return &apperrors.ErrOrderAlreadyFinalized{OrderID: order.ID, Status: order.Status}
		}
		if status == domain.OrderStatusCancelled {
			return &apperrors.ErrValidation{Field: "status", Message: "use the cancel operation to cancel an order"}
		}

		// a card order leaves PENDING only through payment confirmation
		if order.Status == domain.OrderStatusPending &&
			order.PaymentMethod == domain.PaymentMethodCard &&
			!order.IsPaid() &&
			status != domain.OrderStatusRefunded {
			return &apperrors.ErrPaymentNotCompleted{IntentID: stringValue(order.PaymentGatewayRef)}
		}

		return appendTransition(ctx, tx, order, event, s.now())
	})
	if err != nil {
		return nil, nil, err
	}
	return event, order, nil
}

// Refund moves a non-terminal order to REFUNDED. Inventory is not restocked.
func (s *trackingService) Refund(ctx context.Context, actor Actor, orderID uuid.UUID, reason string) (*domain.Order, error) {
	if !actor.IsAdmin() {
		return nil, &apperrors.ErrForbidden{Message: "only admins can refund orders"}
	}

	description := "Refunded by admin"
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
		return appendTransition(ctx, tx, order, &domain.TrackingEvent{
			Status:      domain.OrderStatusRefunded,
			Description: description,
			ActorID:     actorRef(actor),
		}, s.now())
	})
	metrics.RecordOrderOperation("refund", err == nil)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Order refunded", zap.String("order_id", orderID.String()), zap.String("actor_id", actor.ID.String()))
	publish(ctx, s.publisher, s.logger, events.OrderStatusChanged, order)
	return order, nil
}

// History returns the order's tracking events, oldest first
func (s *trackingService) History(ctx context.Context, actor Actor, orderID uuid.UUID) ([]*domain.TrackingEvent, error) {
	order, err := s.repos.Order.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	items, err := s.repos.OrderItem.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := actor.canView(order, items); err != nil {
		return nil, err
	}
	return s.repos.Tracking.ListByOrderID(ctx, orderID)
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
