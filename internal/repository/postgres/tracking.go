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

type trackingRepository struct {
	db     querier
	logger *zap.Logger
}

// NewTrackingRepository creates the append-only tracking log
func NewTrackingRepository(db querier, logger *zap.Logger) *trackingRepository {
	return &trackingRepository{
		db:     db,
		logger: logger,
	}
}

func (r *trackingRepository) Append(ctx context.Context, event *domain.TrackingEvent) error {
	query := `
		INSERT INTO tracking_events (
			id, order_id, status, carrier, description, tracking_number,
			estimated_delivery, location, actor_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING seq
	`

	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	err := r.db.QueryRowContext(ctx, query,
		event.ID,
		event.OrderID,
		event.Status,
		event.Carrier,
		event.Description,
		event.TrackingNumber,
		event.EstimatedDelivery,
		event.Location,
		event.ActorID,
		event.CreatedAt,
	).Scan(&event.Seq)
	if err != nil {
		r.logger.Error("Failed to append tracking event",
			zap.String("order_id", event.OrderID.String()),
			zap.String("status", string(event.Status)),
			zap.Error(err),
		)
		return apperrors.Transient("append tracking event", err)
	}
	return nil
}

func (r *trackingRepository) ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]*domain.TrackingEvent, error) {
	query := `
		SELECT id, order_id, seq, status, carrier, description, tracking_number,
		       estimated_delivery, location, actor_id, created_at
		FROM tracking_events
		WHERE order_id = $1
		ORDER BY seq
	`

	rows, err := r.db.QueryContext(ctx, query, orderID)
	if err != nil {
		r.logger.Error("Failed to query tracking events", zap.Error(err))
		return nil, apperrors.Transient("list tracking events", err)
	}
	defer rows.Close()

	events := []*domain.TrackingEvent{}
	for rows.Next() {
		var e domain.TrackingEvent
		var trackingNumber, location sql.NullString
		var estimated sql.NullTime
		var actorID uuid.NullUUID

		err := rows.Scan(
			&e.ID,
			&e.OrderID,
			&e.Seq,
			&e.Status,
			&e.Carrier,
			&e.Description,
			&trackingNumber,
			&estimated,
			&location,
			&actorID,
			&e.CreatedAt,
		)
		if err != nil {
			r.logger.Error("Failed to scan tracking event", zap.Error(err))
			return nil, apperrors.Transient("scan tracking event", err)
		}

		if trackingNumber.Valid {
			e.TrackingNumber = &trackingNumber.String
		}
		if estimated.Valid {
			e.EstimatedDelivery = &estimated.Time
		}
		if location.Valid {
			e.Location = &location.String
		}
		if actorID.Valid {
			e.ActorID = &actorID.UUID
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Transient("iterate tracking events", err)
	}

	return events, nil
}
