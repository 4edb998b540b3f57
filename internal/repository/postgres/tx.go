package postgres

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/jafarshop/orderengine/internal/repository"
	apperrors "github.com/jafarshop/orderengine/pkg/errors"
)

type txRunner struct {
	db     *sql.DB
	logger *zap.Logger
}

// WithTx runs fn in a READ COMMITTED transaction. Row-level guards in the
// conditional updates and FOR UPDATE locks make that isolation sufficient.
func (r *txRunner) WithTx(ctx context.Context, fn func(tx *repository.Repositories) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		r.logger.Error("Failed to begin transaction", zap.Error(err))
		return apperrors.Transient("begin transaction", err)
	}

	repos := bind(tx, r.logger)
	repos.Tx = joinedTx{repos: repos}

	if err := fn(repos); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			r.logger.Error("Failed to roll back transaction", zap.Error(rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		r.logger.Error("Failed to commit transaction", zap.Error(err))
		return apperrors.Transient("commit transaction", err)
	}
	return nil
}

// joinedTx reuses the enclosing transaction
type joinedTx struct {
	repos *repository.Repositories
}

func (j joinedTx) WithTx(_ context.Context, fn func(tx *repository.Repositories) error) error {
	return fn(j.repos)
}
