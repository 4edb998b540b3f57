package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/orderengine/internal/domain"
	"github.com/jafarshop/orderengine/internal/repository"
	apperrors "github.com/jafarshop/orderengine/pkg/errors"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// OrderDetails is an order with its line items and full tracking history
type OrderDetails struct {
	Order    *domain.Order
	Items    []*domain.OrderLineItem
	Tracking []*domain.TrackingEvent
}

// ListOrdersQuery filters an order listing
type ListOrdersQuery struct {
	Status string `form:"status"`
	Limit  int    `form:"limit" binding:"omitempty,min=1,max=100"`
	Offset int    `form:"offset" binding:"omitempty,min=0"`
}

type orderQueryService struct {
	repos  *repository.Repositories
	logger *zap.Logger
}

// NewOrderQueryService creates the read side for orders
func NewOrderQueryService(repos *repository.Repositories, logger *zap.Logger) *orderQueryService {
	return &orderQueryService{
		repos:  repos,
		logger: logger,
	}
}

// GetOrder returns the order if the actor is its buyer, one of its sellers or an admin
func (s *orderQueryService) GetOrder(ctx context.Context, actor Actor, orderID uuid.UUID) (*OrderDetails, error) {
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

	tracking, err := s.repos.Tracking.ListByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	return &OrderDetails{Order: order, Items: items, Tracking: tracking}, nil
}

// ListOrders returns a buyer's own orders, newest first. Admins list across
// buyers filtered by status.
func (s *orderQueryService) ListOrders(ctx context.Context, actor Actor, q ListOrdersQuery) ([]*domain.Order, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	switch actor.Role {
	case domain.RoleBuyer:
		orders, err := s.repos.Order.ListByBuyerID(ctx, actor.ID, limit, offset)
		if err != nil || q.Status == "" {
			return orders, err
		}
		status := domain.OrderStatus(strings.ToUpper(q.Status))
		filtered := make([]*domain.Order, 0, len(orders))
		for _, order := range orders {
			if order.Status == status {
				filtered = append(filtered, order)
			}
		}
		return filtered, nil
	case domain.RoleAdmin:
		status := domain.OrderStatus(strings.ToUpper(q.Status))
		if !status.IsValid() {
			return nil, &apperrors.ErrValidation{Field: "status", Message: "a valid status filter is required"}
		}
		return s.repos.Order.ListByStatus(ctx, status, limit, offset)
	default:
		return nil, &apperrors.ErrForbidden{Message: "order listing is available to buyers and admins"}
	}
}
