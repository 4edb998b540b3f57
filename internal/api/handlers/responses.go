package handlers

import (
	"time"

	"github.com/jafarshop/orderengine/internal/domain"
	"github.com/jafarshop/orderengine/internal/service"
)

const timeFormat = time.RFC3339

// OrderResponse represents an order. Amounts are decimal strings.
type OrderResponse struct {
	ID              string                 `json:"id"`
	BuyerID         string                 `json:"buyer_id"`
	Status          domain.OrderStatus     `json:"status"`
	PaymentMethod   domain.PaymentMethod   `json:"payment_method"`
	PaymentStatus   domain.PaymentStatus   `json:"payment_status"`
	PaymentIntentID *string                `json:"payment_intent_id,omitempty"`
	ShippingAddress map[string]interface{} `json:"shipping_address"`
	Subtotal        string                 `json:"subtotal"`
	Discount        string                 `json:"discount"`
	ShippingFee     string                 `json:"shipping_fee"`
	Total           string                 `json:"total"`
	VoucherCode     *string                `json:"voucher_code,omitempty"`
	PaidAt          *string                `json:"paid_at,omitempty"`
	DeliveredAt     *string                `json:"delivered_at,omitempty"`
	Items           []OrderItemResponse    `json:"items,omitempty"`
	Tracking        []TrackingResponse     `json:"tracking,omitempty"`
	CreatedAt       string                 `json:"created_at"`
	UpdatedAt       string                 `json:"updated_at"`
}

type OrderItemResponse struct {
	ProductID    string             `json:"product_id"`
	ShopID       string             `json:"shop_id"`
	ProductName  string             `json:"product_name"`
	ProductImage *string            `json:"product_image,omitempty"`
	Quantity     int                `json:"quantity"`
	UnitPrice    string             `json:"unit_price"`
	LineTotal    string             `json:"line_total"`
	PriceSource  domain.PriceSource `json:"price_source"`
}

type TrackingResponse struct {
	Seq               int64              `json:"seq"`
	Status            domain.OrderStatus `json:"status"`
	Carrier           string             `json:"carrier,omitempty"`
	Description       string             `json:"description,omitempty"`
	TrackingNumber    *string            `json:"tracking_number,omitempty"`
	EstimatedDelivery *string            `json:"estimated_delivery,omitempty"`
	Location          *string            `json:"location,omitempty"`
	CreatedAt         string             `json:"created_at"`
}

// CheckoutResponse is returned by POST /v1/checkout
type CheckoutResponse struct {
	Order        OrderResponse `json:"order"`
	ClientSecret string        `json:"client_secret,omitempty"`
	Replayed     bool          `json:"replayed,omitempty"`
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(timeFormat)
	return &s
}

func newOrderResponse(order *domain.Order) OrderResponse {
	return OrderResponse{
		ID:              order.ID.String(),
		BuyerID:         order.BuyerID.String(),
		Status:          order.Status,
		PaymentMethod:   order.PaymentMethod,
		PaymentStatus:   order.PaymentStatus,
		PaymentIntentID: order.PaymentGatewayRef,
		ShippingAddress: order.ShippingAddress,
		Subtotal:        order.Subtotal.StringFixed(2),
		Discount:        order.Discount.StringFixed(2),
		ShippingFee:     order.ShippingFee.StringFixed(2),
		Total:           order.Total.StringFixed(2),
		VoucherCode:     order.VoucherCode,
		PaidAt:          formatTime(order.PaidAt),
		DeliveredAt:     formatTime(order.DeliveredAt),
		CreatedAt:       order.CreatedAt.Format(timeFormat),
		UpdatedAt:       order.UpdatedAt.Format(timeFormat),
	}
}

func newOrderDetailsResponse(details *service.OrderDetails) OrderResponse {
	resp := newOrderResponse(details.Order)
	resp.Items = newItemResponses(details.Items)
	resp.Tracking = newTrackingResponses(details.Tracking)
	return resp
}

func newItemResponses(items []*domain.OrderLineItem) []OrderItemResponse {
	out := make([]OrderItemResponse, len(items))
	for i, item := range items {
		out[i] = OrderItemResponse{
			ProductID:    item.ProductID.String(),
			ShopID:       item.ShopID.String(),
			ProductName:  item.ProductName,
			ProductImage: item.ProductImage,
			Quantity:     item.Quantity,
			UnitPrice:    item.UnitPrice.StringFixed(2),
			LineTotal:    item.LineTotal().StringFixed(2),
			PriceSource:  item.PriceSource,
		}
	}
	return out
}

func newTrackingResponses(events []*domain.TrackingEvent) []TrackingResponse {
	out := make([]TrackingResponse, len(events))
	for i, e := range events {
		out[i] = newTrackingResponse(e)
	}
	return out
}

func newTrackingResponse(e *domain.TrackingEvent) TrackingResponse {
	return TrackingResponse{
		Seq:               e.Seq,
		Status:            e.Status,
		Carrier:           e.Carrier,
		Description:       e.Description,
		TrackingNumber:    e.TrackingNumber,
		EstimatedDelivery: formatTime(e.EstimatedDelivery),
		Location:          e.Location,
		CreatedAt:         e.CreatedAt.Format(timeFormat),
	}
}
