package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/orderengine/internal/domain"
	apperrors "github.com/jafarshop/orderengine/pkg/errors"
)

type orderItemRepository struct {
	db     querier
	logger *zap.Logger
}

// NewOrderItemRepository creates a new order item repository
func NewOrderItemRepository(db querier, logger *zap.Logger) *orderItemRepository {
	return &orderItemRepository{
		db:     db,
		logger: logger,
	}
}

func (r *orderItemRepository) CreateBatch(ctx context.Context, items []*domain.OrderLineItem) error {
	query := `
		INSERT INTO order_items (
			id, order_id, product_id, shop_id, product_name, product_image,
			quantity, unit_price, price_source, flash_sale_product_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	now := time.Now()
	for _, item := range items {
		if item.ID == uuid.Nil {
			item.ID = uuid.New()
		}
		if item.CreatedAt.IsZero() {
			item.CreatedAt = now
		}

		_, err := r.db.ExecContext(ctx, query,
			item.ID,
			item.OrderID,
			item.ProductID,
			item.ShopID,
			item.ProductName,
			item.ProductImage,
			item.Quantity,
			item.UnitPrice,
			item.PriceSource,
			item.FlashSaleProductID,
			item.CreatedAt,
		)
		if err != nil {
			r.logger.Error("Failed to create order item", zap.String("order_id", item.OrderID.String()), zap.Error(err))
			return apperrors.Transient("create order item", err)
		}
	}

	return nil
}

func (r *orderItemRepository) GetByOrderID(ctx context.Context, orderID uuid.UUID) ([]*domain.OrderLineItem, error) {
	query := `
		SELECT id, order_id, product_id, shop_id, product_name, product_image,
		       quantity, unit_price, price_source, flash_sale_product_id, created_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY created_at, id
	`

	rows, err := r.db.QueryContext(ctx, query, orderID)
	if err != nil {
		r.logger.Error("Failed to query order items", zap.Error(err))
		return nil, apperrors.Transient("get order items", err)
	}
	defer rows.Close()

	items := []*domain.OrderLineItem{}
	for rows.Next() {
		var item domain.OrderLineItem
		var image sql.NullString
		var flashSaleID uuid.NullUUID

		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.ShopID,
			&item.ProductName,
			&image,
			&item.Quantity,
			&item.UnitPrice,
			&item.PriceSource,
			&flashSaleID,
			&item.CreatedAt,
		)
		if err != nil {
			r.logger.Error("Failed to scan order item", zap.Error(err))
			return nil, apperrors.Transient("scan order item", err)
		}

		if image.Valid {
			item.ProductImage = &image.String
		}
		if flashSaleID.Valid {
			item.FlashSaleProductID = &flashSaleID.UUID
		}
		items = append(items, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Transient("iterate order items", err)
	}

	return items, nil
}
