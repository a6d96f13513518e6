package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/halcyonhq/halcyon/internal/model"
)

// InsertOperations bulk-inserts operations using the COPY protocol.
// Callers assign IDs and positions before calling; the input order is the
// display order.
func (db *DB) InsertOperations(ctx context.Context, ops []model.Operation) error {
	if len(ops) == 0 {
		return nil
	}

	now := time.Now().UTC()
	rows := make([][]any, len(ops))
	for i, op := range ops {
		createdAt := op.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		rows[i] = []any{op.ID, op.UserID, op.Title, op.Description, op.Position, op.MetricID, createdAt}
	}

	_, err := db.pool.CopyFrom(ctx,
		pgx.Identifier{"operations"},
		[]string{"id", "user_id", "title", "description", "position", "metric_id", "created_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("storage: insert operations: %w", err)
	}
	return nil
}

// SetOperationMetric points an operation at its primary numeric metric.
func (db *DB) SetOperationMetric(ctx context.Context, userID, operationID, metricID uuid.UUID) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE operations SET metric_id = $1 WHERE id = $2 AND user_id = $3`,
		metricID, operationID, userID,
	)
	if err != nil {
		return fmt.Errorf("storage: set operation metric: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: set operation metric: %w", ErrNotFound)
	}
	return nil
}

// DeleteOperations removes operations by id. Used only by the abort
// compensation path.
func (db *DB) DeleteOperations(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := db.pool.Exec(ctx,
		`DELETE FROM operations WHERE user_id = $1 AND id = ANY($2)`, userID, ids)
	if err != nil {
		return fmt.Errorf("storage: delete operations: %w", err)
	}
	return nil
}

// GetOperationsByUser returns a user's operations in display order.
func (db *DB) GetOperationsByUser(ctx context.Context, userID uuid.UUID) ([]model.Operation, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, user_id, title, description, position, metric_id, created_at
		 FROM operations WHERE user_id = $1
		 ORDER BY position`, userID)
	if err != nil {
		return nil, fmt.Errorf("storage: get operations: %w", err)
	}
	defer rows.Close()

	var ops []model.Operation
	for rows.Next() {
		var op model.Operation
		if err := rows.Scan(&op.ID, &op.UserID, &op.Title, &op.Description, &op.Position, &op.MetricID, &op.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan operation: %w", err)
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}
