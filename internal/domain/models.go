package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product is the catalogue entry a line item is priced from. Stock and
// SoldCount are only ever changed through the inventory ledger.
type Product struct {
	ID            uuid.UUID
	ShopID        uuid.UUID
	Name          string
	ImageURL      *string
	Price         decimal.Decimal
	DiscountPrice *decimal.Decimal
	Stock         int
	SoldCount     int
	IsActive      bool
	FreeShipping  bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Order represents a buyer order. Status is projected from the latest
// tracking event and is never written on its own.
type Order struct {
	ID                uuid.UUID
	BuyerID           uuid.UUID
	ShippingAddress   map[string]interface{} // JSONB snapshot
	Subtotal          decimal.Decimal
	Discount          decimal.Decimal
	ShippingFee       decimal.Decimal
	Total             decimal.Decimal
	VoucherID         *uuid.UUID
	VoucherCode       *string
	PaymentMethod     PaymentMethod
	PaymentStatus     PaymentStatus
	Status            OrderStatus
	PaymentGatewayRef *string
	PaidAt            *time.Time
	DeliveredAt       *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// IsPaid reports whether the payment has been collected
func (o *Order) IsPaid() bool {
	return o.PaymentStatus == PaymentStatusPaid
}

// OrderTotal computes max(0, subtotal - discount) + shippingFee
func OrderTotal(subtotal, discount, shippingFee decimal.Decimal) decimal.Decimal {
	net := subtotal.Sub(discount)
	if net.IsNegative() {
		net = decimal.Zero
	}
	return net.Add(shippingFee)
}

// OrderLineItem is an immutable snapshot of a purchased product
type OrderLineItem struct {
	ID                 uuid.UUID
	OrderID            uuid.UUID
	ProductID          uuid.UUID
	ShopID             uuid.UUID
	ProductName        string
	ProductImage       *string
	Quantity           int
	UnitPrice          decimal.Decimal
	PriceSource        PriceSource
	FlashSaleProductID *uuid.UUID
	CreatedAt          time.Time
}

// LineTotal is UnitPrice * Quantity
func (i *OrderLineItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Voucher is a discount code with eligibility and usage constraints
type Voucher struct {
	ID             uuid.UUID
	Code           string
	DiscountType   DiscountType
	DiscountValue  decimal.Decimal
	MaxDiscount    *decimal.Decimal
	MinOrderAmount decimal.Decimal
	UsageLimit     *int
	UsedCount      int
	ExpiresAt      *time.Time
	IsActive       bool
	CreatedAt      time.Time
}

// FlashSaleWindow is a time-bounded [StartTime, EndTime) sale
type FlashSaleWindow struct {
	ID        uuid.UUID
	Name      string
	StartTime time.Time
	EndTime   time.Time
	IsActive  bool
}

// Contains reports whether t falls inside [StartTime, EndTime)
func (w *FlashSaleWindow) Contains(t time.Time) bool {
	return w.IsActive && !t.Before(w.StartTime) && t.Before(w.EndTime)
}

// FlashSaleProduct is a product's price override and bounded stock pool
// within one flash-sale window.
type FlashSaleProduct struct {
	ID          uuid.UUID
	FlashSaleID uuid.UUID
	ProductID   uuid.UUID
	SalePrice   decimal.Decimal
	StockLimit  int
	SoldCount   int
	Window      FlashSaleWindow
}

// HasCapacity reports whether the pool can still cover quantity units
func (f *FlashSaleProduct) HasCapacity(quantity int) bool {
	return f.SoldCount+quantity <= f.StockLimit
}

// TrackingEvent is an append-only shipment/status record. Seq orders events
// within an order; the highest Seq is the order's current status.
type TrackingEvent struct {
	ID                uuid.UUID
	OrderID           uuid.UUID
	Seq               int64
	Status            OrderStatus
	Carrier           string
	Description       string
	TrackingNumber    *string
	EstimatedDelivery *time.Time
	Location          *string
	ActorID           *uuid.UUID
	CreatedAt         time.Time
}

// Address is a buyer's saved delivery address
type Address struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	RecipientName string
	Phone         string
	Street        string
	City          string
	State         *string
	PostalCode    string
	Country       string
}

// Snapshot returns the JSONB representation stored on the order
func (a *Address) Snapshot() map[string]interface{} {
	snapshot := map[string]interface{}{
		"address_id":     a.ID.String(),
		"recipient_name": a.RecipientName,
		"phone":          a.Phone,
		"street":         a.Street,
		"city":           a.City,
		"postal_code":    a.PostalCode,
		"country":        a.Country,
	}
	if a.State != nil {
		snapshot["state"] = *a.State
	}
	return snapshot
}

// StaffAccount is an API-key principal for admin and ops integrations
type StaffAccount struct {
	ID         uuid.UUID
	Name       string
	APIKeyHash string
	Role       Role
	ShopID     *uuid.UUID
	IsActive   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
