package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jafarshop/orderengine/internal/domain"
	apperrors "github.com/jafarshop/orderengine/pkg/errors"
)

const productColumns = `id, shop_id, name, image_url, price, discount_price, stock, sold_count,
		is_active, free_shipping, created_at, updated_at`

type productRepository struct {
	db     querier
	logger *zap.Logger
}

// NewProductRepository creates a new product repository
func NewProductRepository(db querier, logger *zap.Logger) *productRepository {
	return &productRepository{
		db:     db,
		logger: logger,
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	var p domain.Product
	var imageURL sql.NullString
	var discountPrice decimal.NullDecimal

	err := row.Scan(
		&p.ID,
		&p.ShopID,
		&p.Name,
		&imageURL,
		&p.Price,
		&discountPrice,
		&p.Stock,
		&p.SoldCount,
		&p.IsActive,
		&p.FreeShipping,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if imageURL.Valid {
		p.ImageURL = &imageURL.String
	}
	if discountPrice.Valid {
		p.DiscountPrice = &discountPrice.Decimal
	}
	return &p, nil
}

func (r *productRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	p, err := scanProduct(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &apperrors.ErrNotFound{Resource: "product", ID: id.String()}
	}
	if err != nil {
		r.logger.Error("Failed to get product by ID", zap.Error(err))
		return nil, apperrors.Transient("get product", err)
	}
	return p, nil
}

// GetByIDs loads every listed product in one round trip. Missing ids are
// simply absent from the result.
func (r *productRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.Product, error) {
	out := make(map[uuid.UUID]*domain.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	strIDs := make([]string, len(ids))
	for i, id := range ids {
		strIDs[i] = id.String()
	}

	query := `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1::uuid[])`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(strIDs))
	if err != nil {
		r.logger.Error("Failed to query products", zap.Error(err))
		return nil, apperrors.Transient("get products", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			r.logger.Error("Failed to scan product", zap.Error(err))
			return nil, apperrors.Transient("scan product", err)
		}
		out[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Transient("iterate products", err)
	}

	return out, nil
}
