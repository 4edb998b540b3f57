package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/orderengine/internal/domain"
	apperrors "github.com/jafarshop/orderengine/pkg/errors"
)

// orderSelect projects status from the newest tracking event
const orderSelect = `
	SELECT o.id, o.buyer_id, o.shipping_address, o.subtotal, o.discount, o.shipping_fee, o.total,
	       o.voucher_id, o.voucher_code, o.payment_method, o.payment_status, o.payment_gateway_ref,
	       o.paid_at, o.delivered_at, o.created_at, o.updated_at,
	       COALESCE(t.status, '') AS status
	FROM orders o
	LEFT JOIN LATERAL (
		SELECT te.status FROM tracking_events te
		WHERE te.order_id = o.id
		ORDER BY te.seq DESC
		LIMIT 1
	) t ON true
`

type orderRepository struct {
	db     querier
	logger *zap.Logger
}

// NewOrderRepository creates a new order repository
func NewOrderRepository(db querier, logger *zap.Logger) *orderRepository {
	return &orderRepository{
		db:     db,
		logger: logger,
	}
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var order domain.Order
	var addressJSON []byte
	var voucherID uuid.NullUUID
	var voucherCode, gatewayRef sql.NullString
	var paidAt, deliveredAt sql.NullTime

	err := row.Scan(
		&order.ID,
		&order.BuyerID,
		&addressJSON,
		&order.Subtotal,
		&order.Discount,
		&order.ShippingFee,
		&order.Total,
		&voucherID,
		&voucherCode,
		&order.PaymentMethod,
		&order.PaymentStatus,
		&gatewayRef,
		&paidAt,
		&deliveredAt,
		&order.CreatedAt,
		&order.UpdatedAt,
		&order.Status,
	)
	if err != nil {
		return nil, err
	}

	if len(addressJSON) > 0 {
		if err := json.Unmarshal(addressJSON, &order.ShippingAddress); err != nil {
			return nil, fmt.Errorf("failed to unmarshal shipping address: %w", err)
		}
	}
	if voucherID.Valid {
		order.VoucherID = &voucherID.UUID
	}
	if voucherCode.Valid {
		order.VoucherCode = &voucherCode.String
	}
	if gatewayRef.Valid {
		order.PaymentGatewayRef = &gatewayRef.String
	}
	if paidAt.Valid {
		order.PaidAt = &paidAt.Time
	}
	if deliveredAt.Valid {
		order.DeliveredAt = &deliveredAt.Time
	}
	return &order, nil
}

func (r *orderRepository) Create(ctx context.Context, order *domain.Order) error {
	query := `
		INSERT INTO orders (
			id, buyer_id, shipping_address, subtotal, discount, shipping_fee, total,
			voucher_id, voucher_code, payment_method, payment_status, payment_gateway_ref,
			paid_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	now := time.Now()
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = now
	}

	addressJSON, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return fmt.Errorf("failed to marshal shipping address: %w", err)
	}

	_, err = r.db.ExecContext(ctx, query,
		order.ID,
		order.BuyerID,
		addressJSON,
		order.Subtotal,
		order.Discount,
		order.ShippingFee,
		order.Total,
		order.VoucherID,
		order.VoucherCode,
		order.PaymentMethod,
		order.PaymentStatus,
		order.PaymentGatewayRef,
		order.PaidAt,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create order", zap.Error(err))
		return apperrors.Transient("create order", err)
	}
	return nil
}

func (r *orderRepository) getOne(ctx context.Context, query, id string, args ...interface{}) (*domain.Order, error) {
	order, err := scanOrder(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &apperrors.ErrNotFound{Resource: "order", ID: id}
	}
	if err != nil {
		r.logger.Error("Failed to get order", zap.String("order", id), zap.Error(err))
		return nil, apperrors.Transient("get order", err)
	}
	return order, nil
}

func (r *orderRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return r.getOne(ctx, orderSelect+` WHERE o.id = $1`, id.String(), id)
}

// GetByIDForUpdate locks the order row, then reads it in a second statement.
// Status lives in tracking_events and does not touch the orders row, so a
// single locking SELECT would project the status from the snapshot taken
// before the lock wait. The follow-up read sees every transition committed
// by the previous lock holder.
func (r *orderRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	var locked uuid.UUID
	err := r.db.QueryRowContext(ctx, `SELECT id FROM orders WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &apperrors.ErrNotFound{Resource: "order", ID: id.String()}
	}
	if err != nil {
		r.logger.Error("Failed to lock order", zap.String("order_id", id.String()), zap.Error(err))
		return nil, apperrors.Transient("lock order", err)
	}
	return r.GetByID(ctx, id)
}

func (r *orderRepository) GetByGatewayRef(ctx context.Context, ref string) (*domain.Order, error) {
	return r.getOne(ctx, orderSelect+` WHERE o.payment_gateway_ref = $1`, ref, ref)
}

// MarkPaid only matches an UNPAID row, so of two racing confirmations
// exactly one sees applied == true.
func (r *orderRepository) MarkPaid(ctx context.Context, id uuid.UUID, paidAt time.Time) (bool, error) {
	query := `
		UPDATE orders
		SET payment_status = 'PAID', paid_at = $2, updated_at = $2
		WHERE id = $1 AND payment_status = 'UNPAID'
	`

	result, err := r.db.ExecContext(ctx, query, id, paidAt)
	if err != nil {
		r.logger.Error("Failed to mark order paid", zap.String("order_id", id.String()), zap.Error(err))
		return false, apperrors.Transient("mark order paid", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, apperrors.Transient("mark order paid", err)
	}
	return rows == 1, nil
}

func (r *orderRepository) SetDeliveredAt(ctx context.Context, id uuid.UUID, deliveredAt time.Time) error {
	query := `UPDATE orders SET delivered_at = $2, updated_at = $2 WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, id, deliveredAt); err != nil {
		r.logger.Error("Failed to set delivered_at", zap.String("order_id", id.String()), zap.Error(err))
		return apperrors.Transient("set delivered_at", err)
	}
	return nil
}

func (r *orderRepository) ListByBuyerID(ctx context.Context, buyerID uuid.UUID, limit, offset int) ([]*domain.Order, error) {
	query := orderSelect + ` WHERE o.buyer_id = $1 ORDER BY o.created_at DESC LIMIT $2 OFFSET $3`
	return r.list(ctx, query, buyerID, limit, offset)
}

func (r *orderRepository) ListByStatus(ctx context.Context, status domain.OrderStatus, limit, offset int) ([]*domain.Order, error) {
	query := orderSelect + ` WHERE COALESCE(t.status, '') = $1 ORDER BY o.created_at DESC LIMIT $2 OFFSET $3`
	return r.list(ctx, query, string(status), limit, offset)
}

func (r *orderRepository) list(ctx context.Context, query string, args ...interface{}) ([]*domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list orders", zap.Error(err))
		return nil, apperrors.Transient("list orders", err)
	}
	defer rows.Close()

	orders := []*domain.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			r.logger.Error("Failed to scan order", zap.Error(err))
			return nil, apperrors.Transient("scan order", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Transient("iterate orders", err)
	}
	return orders, nil
}
