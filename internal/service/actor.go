package service

import (
	"github.com/google/uuid"

	"github.com/jafarshop/orderengine/internal/domain"
	apperrors "github.com/jafarshop/orderengine/pkg/errors"
)

// Actor is the authenticated principal performing an operation
type Actor struct {
	ID     uuid.UUID
	Role   domain.Role
	ShopID *uuid.UUID
}

func (a Actor) IsAdmin() bool {
	return a.Role == domain.RoleAdmin
}

// ownsOrder reports whether the actor is the order's buyer
func (a Actor) ownsOrder(order *domain.Order) bool {
	return a.Role == domain.RoleBuyer && a.ID == order.BuyerID
}

// sellsOn reports whether the actor's shop supplied any of the line items
func (a Actor) sellsOn(items []*domain.OrderLineItem) bool {
	if a.Role != domain.RoleSeller || a.ShopID == nil {
		return false
	}
	for _, item := range items {
		if item.ShopID == *a.ShopID {
			return true
		}
	}
	return false
}

// canView allows the buyer, any seller on the order, and admins
func (a Actor) canView(order *domain.Order, items []*domain.OrderLineItem) error {
	if a.IsAdmin() || a.ownsOrder(order) || a.sellsOn(items) {
		return nil
	}
	return &apperrors.ErrForbidden{Message: "access denied"}
}
