package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jafarshop/orderengine/internal/domain"
	apperrors "github.com/jafarshop/orderengine/pkg/errors"
)

type voucherRepository struct {
	db     querier
	logger *zap.Logger
}

// NewVoucherRepository creates a new voucher repository
func NewVoucherRepository(db querier, logger *zap.Logger) *voucherRepository {
	return &voucherRepository{
		db:     db,
		logger: logger,
	}
}

func (r *voucherRepository) GetByCode(ctx context.Context, code string) (*domain.Voucher, error) {
	query := `
		SELECT id, code, discount_type, discount_value, max_discount, min_order_amount,
		       usage_limit, used_count, expires_at, is_active, created_at
		FROM vouchers
		WHERE code = $1
	`

	var v domain.Voucher
	var maxDiscount decimal.NullDecimal
	var usageLimit sql.NullInt64
	var expiresAt sql.NullTime

	err := r.db.QueryRowContext(ctx, query, code).Scan(
		&v.ID,
		&v.Code,
		&v.DiscountType,
		&v.DiscountValue,
		&maxDiscount,
		&v.MinOrderAmount,
		&usageLimit,
		&v.UsedCount,
		&expiresAt,
		&v.IsActive,
		&v.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &apperrors.ErrNotFound{Resource: "voucher", ID: code}
	}
	if err != nil {
		r.logger.Error("Failed to get voucher", zap.String("code", code), zap.Error(err))
		return nil, apperrors.Transient("get voucher", err)
	}

	if maxDiscount.Valid {
		v.MaxDiscount = &maxDiscount.Decimal
	}
	if usageLimit.Valid {
		limit := int(usageLimit.Int64)
		v.UsageLimit = &limit
	}
	if expiresAt.Valid {
		v.ExpiresAt = &expiresAt.Time
	}
	return &v, nil
}

// Redeem counts one use. The usage cap is enforced by the WHERE clause so
// two checkouts racing for the last use cannot both succeed.
func (r *voucherRepository) Redeem(ctx context.Context, voucherID uuid.UUID) error {
	query := `
		UPDATE vouchers
		SET used_count = used_count + 1
		WHERE id = $1 AND (usage_limit IS NULL OR used_count < usage_limit)
		RETURNING code
	`

	var code string
	err := r.db.QueryRowContext(ctx, query, voucherID).Scan(&code)
	if errors.Is(err, sql.ErrNoRows) {
		return &apperrors.ErrVoucherExhausted{VoucherCode: voucherID.String()}
	}
	if err != nil {
		r.logger.Error("Failed to redeem voucher", zap.String("voucher_id", voucherID.String()), zap.Error(err))
		return apperrors.Transient("redeem voucher", err)
	}
	return nil
}
