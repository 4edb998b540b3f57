package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/jafarshop/orderengine/internal/domain"
	apperrors "github.com/jafarshop/orderengine/pkg/errors"
)

type staffRepository struct {
	db     querier
	logger *zap.Logger
}

// NewStaffRepository creates a new staff account repository
func NewStaffRepository(db querier, logger *zap.Logger) *staffRepository {
	return &staffRepository{
		db:     db,
		logger: logger,
	}
}

func scanStaff(row rowScanner) (*domain.StaffAccount, error) {
	var s domain.StaffAccount
	var shopID uuid.NullUUID

	err := row.Scan(
		&s.ID,
		&s.Name,
		&s.APIKeyHash,
		&s.Role,
		&shopID,
		&s.IsActive,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if shopID.Valid {
		s.ShopID = &shopID.UUID
	}
	return &s, nil
}

// GetByAPIKey checks the key against every active account. bcrypt hashes are
// salted, so there is no indexable lookup value.
func (r *staffRepository) GetByAPIKey(ctx context.Context, apiKey string) (*domain.StaffAccount, error) {
	query := `
		SELECT id, name, api_key_hash, role, shop_id, is_active, created_at, updated_at
		FROM staff_accounts
		WHERE is_active = true
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		r.logger.Error("Failed to query staff accounts", zap.Error(err))
		return nil, apperrors.Transient("get staff accounts", err)
	}
	defer rows.Close()

	for rows.Next() {
		staff, err := scanStaff(rows)
		if err != nil {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(staff.APIKeyHash), []byte(apiKey)) == nil {
			return staff, nil
		}
	}

	return nil, &apperrors.ErrUnauthorized{Message: "invalid API key"}
}

func (r *staffRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.StaffAccount, error) {
	query := `
		SELECT id, name, api_key_hash, role, shop_id, is_active, created_at, updated_at
		FROM staff_accounts
		WHERE id = $1
	`

	staff, err := scanStaff(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &apperrors.ErrNotFound{Resource: "staff account", ID: id.String()}
	}
	if err != nil {
		r.logger.Error("Failed to get staff account by ID", zap.Error(err))
		return nil, apperrors.Transient("get staff account", err)
	}
	return staff, nil
}

func (r *staffRepository) Create(ctx context.Context, staff *domain.StaffAccount) error {
	query := `
		INSERT INTO staff_accounts (id, name, api_key_hash, role, shop_id, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	now := time.Now()
	if staff.ID == uuid.Nil {
		staff.ID = uuid.New()
	}
	if staff.CreatedAt.IsZero() {
		staff.CreatedAt = now
	}
	if staff.UpdatedAt.IsZero() {
		staff.UpdatedAt = now
	}

	_, err := r.db.ExecContext(ctx, query,
		staff.ID,
		staff.Name,
		staff.APIKeyHash,
		staff.Role,
		staff.ShopID,
		staff.IsActive,
		staff.CreatedAt,
		staff.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create staff account", zap.Error(err))
		return apperrors.Transient("create staff account", err)
	}

	return nil
}
