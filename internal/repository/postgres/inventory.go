package postgres

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/jafarshop/orderengine/pkg/errors"
)

type inventoryRepository struct {
	db     querier
	logger *zap.Logger
}

// NewInventoryRepository creates the inventory ledger
func NewInventoryRepository(db querier, logger *zap.Logger) *inventoryRepository {
	return &inventoryRepository{
		db:     db,
		logger: logger,
	}
}

// Reserve is a single compare-and-decrement. Concurrent reservations on the
// same product serialize on the row lock taken by the UPDATE and each one
// re-evaluates the stock guard against the committed value.
func (r *inventoryRepository) Reserve(ctx context.Context, productID uuid.UUID, quantity int) error {
	query := `
		UPDATE products
		SET stock = stock - $2, sold_count = sold_count + $2, updated_at = NOW()
		WHERE id = $1 AND stock >= $2
	`

	result, err := r.db.ExecContext(ctx, query, productID, quantity)
	if err != nil {
		r.logger.Error("Failed to reserve stock", zap.String("product_id", productID.String()), zap.Error(err))
		return apperrors.Transient("reserve stock", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return apperrors.Transient("reserve stock", err)
	}
	if rows == 0 {
		return &apperrors.ErrInsufficientStock{ProductID: productID, Requested: quantity}
	}
	return nil
}

// Release returns stock. It does not require the product to exist.
func (r *inventoryRepository) Release(ctx context.Context, productID uuid.UUID, quantity int) error {
	query := `
		UPDATE products
		SET stock = stock + $2, sold_count = GREATEST(sold_count - $2, 0), updated_at = NOW()
		WHERE id = $1
	`

	if _, err := r.db.ExecContext(ctx, query, productID, quantity); err != nil {
		r.logger.Error("Failed to release stock", zap.String("product_id", productID.String()), zap.Error(err))
		return apperrors.Transient("release stock", err)
	}
	return nil
}
