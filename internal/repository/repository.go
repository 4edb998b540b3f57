package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jafarshop/orderengine/internal/domain"
)

// Repositories bundles every repository bound to one connection or
// transaction. Repositories handed to a WithTx callback share that transaction.
type Repositories struct {
	Product   ProductRepository
	Inventory InventoryRepository
	FlashSale FlashSaleRepository
	Voucher   VoucherRepository
	Order     OrderRepository
	OrderItem OrderItemRepository
	Tracking  TrackingRepository
	Address   AddressRepository
	Staff     StaffRepository
	Tx        TxRunner
}

// WithTx runs fn inside a single all-or-nothing transaction. If fn returns
// an error every write made through the tx-bound repositories is rolled back.
func (r *Repositories) WithTx(ctx context.Context, fn func(tx *Repositories) error) error {
	return r.Tx.WithTx(ctx, fn)
}

// TxRunner opens transactions
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *Repositories) error) error
}

// ProductRepository reads catalogue products
type ProductRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.Product, error)
}

// InventoryRepository is the inventory ledger. Both operations are single
// atomic statements; Reserve never lets stock go below zero.
type InventoryRepository interface {
	// Reserve decrements stock and increments sold count when stock >= quantity,
	// otherwise it fails with ErrInsufficientStock.
	Reserve(ctx context.Context, productID uuid.UUID, quantity int) error
	// Release restores stock and decrements sold count, clamped at zero.
	Release(ctx context.Context, productID uuid.UUID, quantity int) error
}

// FlashSaleRepository reads flash-sale entries and guards their stock pools
type FlashSaleRepository interface {
	// GetActiveForProduct returns the entry active at the given instant, or nil.
	GetActiveForProduct(ctx context.Context, productID uuid.UUID, at time.Time) (*domain.FlashSaleProduct, error)
	ReservePool(ctx context.Context, flashSaleProductID uuid.UUID, quantity int) error
	ReleasePool(ctx context.Context, flashSaleProductID uuid.UUID, quantity int) error
}

// VoucherRepository reads vouchers and counts redemptions
type VoucherRepository interface {
	GetByCode(ctx context.Context, code string) (*domain.Voucher, error)
	// Redeem increments used count unless the usage limit is reached.
	Redeem(ctx context.Context, voucherID uuid.UUID) error
}

// OrderRepository persists orders. Every read projects Status from the
// latest tracking event.
type OrderRepository interface {
	Create(ctx context.Context, order *domain.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	// GetByIDForUpdate locks the order row for the rest of the transaction.
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	GetByGatewayRef(ctx context.Context, ref string) (*domain.Order, error)
	// MarkPaid flips UNPAID to PAID and reports whether this call did it.
	MarkPaid(ctx context.Context, id uuid.UUID, paidAt time.Time) (bool, error)
	SetDeliveredAt(ctx context.Context, id uuid.UUID, deliveredAt time.Time) error
	ListByBuyerID(ctx context.Context, buyerID uuid.UUID, limit, offset int) ([]*domain.Order, error)
	ListByStatus(ctx context.Context, status domain.OrderStatus, limit, offset int) ([]*domain.Order, error)
}

// OrderItemRepository persists immutable line items
type OrderItemRepository interface {
	CreateBatch(ctx context.Context, items []*domain.OrderLineItem) error
	GetByOrderID(ctx context.Context, orderID uuid.UUID) ([]*domain.OrderLineItem, error)
}

// TrackingRepository is the append-only tracking log
type TrackingRepository interface {
	Append(ctx context.Context, event *domain.TrackingEvent) error
	ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]*domain.TrackingEvent, error)
}

// AddressRepository reads buyer addresses
type AddressRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Address, error)
}

// StaffRepository manages API-key principals
type StaffRepository interface {
	GetByAPIKey(ctx context.Context, apiKey string) (*domain.StaffAccount, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.StaffAccount, error)
	Create(ctx context.Context, staff *domain.StaffAccount) error
}
