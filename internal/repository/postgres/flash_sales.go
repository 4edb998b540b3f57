package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/orderengine/internal/domain"
	apperrors "github.com/jafarshop/orderengine/pkg/errors"
)

type flashSaleRepository struct {
	db     querier
	logger *zap.Logger
}

// NewFlashSaleRepository creates a new flash sale repository
func NewFlashSaleRepository(db querier, logger *zap.Logger) *flashSaleRepository {
	return &flashSaleRepository{
		db:     db,
		logger: logger,
	}
}

func (r *flashSaleRepository) GetActiveForProduct(ctx context.Context, productID uuid.UUID, at time.Time) (*domain.FlashSaleProduct, error) {
	query := `
		SELECT fp.id, fp.flash_sale_id, fp.product_id, fp.sale_price, fp.stock_limit, fp.sold_count,
		       fs.id, fs.name, fs.start_time, fs.end_time, fs.is_active
		FROM flash_sale_products fp
		JOIN flash_sales fs ON fs.id = fp.flash_sale_id
		WHERE fp.product_id = $1
		  AND fs.is_active = true
		  AND fs.start_time <= $2 AND fs.end_time > $2
		ORDER BY fs.start_time
		LIMIT 1
	`

	var f domain.FlashSaleProduct
	err := r.db.QueryRowContext(ctx, query, productID, at).Scan(
		&f.ID,
		&f.FlashSaleID,
		&f.ProductID,
		&f.SalePrice,
		&f.StockLimit,
		&f.SoldCount,
		&f.Window.ID,
		&f.Window.Name,
		&f.Window.StartTime,
		&f.Window.EndTime,
		&f.Window.IsActive,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get active flash sale", zap.String("product_id", productID.String()), zap.Error(err))
		return nil, apperrors.Transient("get flash sale", err)
	}
	return &f, nil
}

func (r *flashSaleRepository) ReservePool(ctx context.Context, flashSaleProductID uuid.UUID, quantity int) error {
	query := `
		UPDATE flash_sale_products
		SET sold_count = sold_count + $2
		WHERE id = $1 AND sold_count + $2 <= stock_limit
		RETURNING product_id
	`

	var productID uuid.UUID
	err := r.db.QueryRowContext(ctx, query, flashSaleProductID, quantity).Scan(&productID)
	if errors.Is(err, sql.ErrNoRows) {
		return &apperrors.ErrInsufficientStock{Requested: quantity, FlashSale: true}
	}
	if err != nil {
		r.logger.Error("Failed to reserve flash sale pool", zap.String("flash_sale_product_id", flashSaleProductID.String()), zap.Error(err))
		return apperrors.Transient("reserve flash sale pool", err)
	}
	return nil
}

func (r *flashSaleRepository) ReleasePool(ctx context.Context, flashSaleProductID uuid.UUID, quantity int) error {
	query := `
		UPDATE flash_sale_products
		SET sold_count = GREATEST(sold_count - $2, 0)
		WHERE id = $1
	`

	if _, err := r.db.ExecContext(ctx, query, flashSaleProductID, quantity); err != nil {
		r.logger.Error("Failed to release flash sale pool", zap.String("flash_sale_product_id", flashSaleProductID.String()), zap.Error(err))
		return apperrors.Transient("release flash sale pool", err)
	}
	return nil
}
