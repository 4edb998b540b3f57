package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/jafarshop/orderengine/internal/config"
	"github.com/jafarshop/orderengine/internal/repository"
)

//go:embed schema.sql
var schema string

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// NewConnection opens and pings a Postgres connection pool
func NewConnection(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxOpenConns / 2)
	}
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// Migrate applies the embedded schema. Every statement is idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// NewRepositories wires every repository to the connection pool
func NewRepositories(db *sql.DB, logger *zap.Logger) *repository.Repositories {
	repos := bind(db, logger)
	repos.Tx = &txRunner{db: db, logger: logger}
	return repos
}

func bind(q querier, logger *zap.Logger) *repository.Repositories {
	return &repository.Repositories{
		Product:   NewProductRepository(q, logger),
		Inventory: NewInventoryRepository(q, logger),
		FlashSale: NewFlashSaleRepository(q, logger),
		Voucher:   NewVoucherRepository(q, logger),
		Order:     NewOrderRepository(q, logger),
		OrderItem: NewOrderItemRepository(q, logger),
		Tracking:  NewTrackingRepository(q, logger),
		Address:   NewAddressRepository(q, logger),
		Staff:     NewStaffRepository(q, logger),
	}
}
