package service

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jafarshop/orderengine/internal/domain"
	apperrors "github.com/jafarshop/orderengine/pkg/errors"
)

// CheckoutRequest represents the checkout payload
type CheckoutRequest struct {
	AddressID     string         `json:"address_id" binding:"required,uuid"`
	Items         []CheckoutItem `json:"items" binding:"required,min=1,max=100,dive"`
	VoucherCode   string         `json:"voucher_code,omitempty" binding:"max=64"`
	PaymentMethod string         `json:"payment_method" binding:"required,oneof=CARD COD"`
}

type CheckoutItem struct {
	ProductID string `json:"product_id" binding:"required,uuid"`
	Quantity  int    `json:"quantity" binding:"required,min=1,max=1000"`
}

// cartLine is a validated, merged cart entry
type cartLine struct {
	ProductID uuid.UUID
	Quantity  int
}

// checkoutInput is CheckoutRequest after boundary validation
type checkoutInput struct {
	AddressID     uuid.UUID
	Lines         []cartLine
	VoucherCode   string
	PaymentMethod domain.PaymentMethod
}

// normalize re-validates the request independent of the HTTP binding and
// merges repeated products into one line.
func (r CheckoutRequest) normalize() (*checkoutInput, error) {
	addressID, err := uuid.Parse(r.AddressID)
	if err != nil {
		return nil, &apperrors.ErrValidation{Field: "address_id", Message: "must be a UUID"}
	}

	method := domain.PaymentMethod(strings.ToUpper(r.PaymentMethod))
	if !method.IsValid() {
		return nil, &apperrors.ErrValidation{Field: "payment_method", Message: "must be CARD or COD"}
	}

	if len(r.Items) == 0 {
		return nil, &apperrors.ErrValidation{Field: "items", Message: "cart is empty"}
	}

	index := make(map[uuid.UUID]int, len(r.Items))
	lines := make([]cartLine, 0, len(r.Items))
	for _, item := range r.Items {
		productID, err := uuid.Parse(item.ProductID)
		if err != nil {
			return nil, &apperrors.ErrValidation{Field: "items.product_id", Message: "must be a UUID"}
		}
		if item.Quantity <= 0 {
			return nil, &apperrors.ErrValidation{Field: "items.quantity", Message: "must be greater than zero"}
		}
		if i, seen := index[productID]; seen {
			lines[i].Quantity += item.Quantity
			continue
		}
		index[productID] = len(lines)
		lines = append(lines, cartLine{ProductID: productID, Quantity: item.Quantity})
	}

	return &checkoutInput{
		AddressID:     addressID,
		Lines:         lines,
		VoucherCode:   strings.TrimSpace(r.VoucherCode),
		PaymentMethod: method,
	}, nil
}

// ConfirmPaymentRequest is the explicit payment confirmation payload
type ConfirmPaymentRequest struct {
	PaymentIntentID string `json:"payment_intent_id" binding:"required"`
}

// TrackingUpdateRequest is a seller or admin tracking append
type TrackingUpdateRequest struct {
	Status            string     `json:"status" binding:"required"`
	Carrier           string     `json:"carrier" binding:"max=100"`
	Description       string     `json:"description" binding:"max=500"`
	TrackingNumber    *string    `json:"tracking_number,omitempty"`
	EstimatedDelivery *time.Time `json:"estimated_delivery,omitempty"`
	Location          *string    `json:"location,omitempty"`
}

// CancelRequest carries an optional cancellation reason
type CancelRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

// RefundRequest carries the admin's refund note
type RefundRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}
