package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/orderengine/internal/domain"
	apperrors "github.com/jafarshop/orderengine/pkg/errors"
)

type addressRepository struct {
	db     querier
	logger *zap.Logger
}

// NewAddressRepository creates a new address repository
func NewAddressRepository(db querier, logger *zap.Logger) *addressRepository {
	return &addressRepository{
		db:     db,
		logger: logger,
	}
}

func (r *addressRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Address, error) {
	query := `
		SELECT id, user_id, recipient_name, phone, street, city, state, postal_code, country
		FROM addresses
		WHERE id = $1
	`

	var a domain.Address
	var state sql.NullString

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&a.ID,
		&a.UserID,
		&a.RecipientName,
		&a.Phone,
		&a.Street,
		&a.City,
		&state,
		&a.PostalCode,
		&a.Country,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &apperrors.ErrNotFound{Resource: "address", ID: id.String()}
	}
	if err != nil {
		r.logger.Error("Failed to get address", zap.Error(err))
		return nil, apperrors.Transient("get address", err)
	}

	if state.Valid {
		a.State = &state.String
	}
	return &a, nil
}
