package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/halcyonhq/halcyon/internal/model"
)

// InsertMetrics bulk-inserts metrics using the COPY protocol. One call per
// kind pass: numeric metrics and boolean habits go through the same table
// with the kind discriminator set by the caller.
func (db *DB) InsertMetrics(ctx context.Context, metrics []model.Metric) error {
	if len(metrics) == 0 {
		return nil
	}

	now := time.Now().UTC()
	rows := make([][]any, len(metrics))
	for i, m := range metrics {
		createdAt := m.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		rows[i] = []any{
			m.ID, m.UserID, m.Name, string(m.Kind),
			m.Unit, m.OptimalValue, m.MinimumValue, m.Comparator,
			m.Position, createdAt,
		}
	}

	_, err := db.pool.CopyFrom(ctx,
		pgx.Identifier{"metrics"},
		[]string{"id", "user_id", "name", "kind", "unit", "optimal_value", "minimum_value", "comparator", "position", "created_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("storage: insert metrics: %w", err)
	}
	return nil
}

// InsertOperationHabits bulk-inserts habit↔operation association rows.
func (db *DB) InsertOperationHabits(ctx context.Context, links []model.OperationHabit) error {
	if len(links) == 0 {
		return nil
	}

	rows := make([][]any, len(links))
	for i, l := range links {
		rows[i] = []any{l.OperationID, l.MetricID}
	}

	_, err := db.pool.CopyFrom(ctx,
		pgx.Identifier{"operation_habits"},
		[]string{"operation_id", "metric_id"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("storage: insert operation habits: %w", err)
	}
	return nil
}

// DeleteMetrics removes metrics by id. Association rows cascade. Used only
// by the abort compensation path.
func (db *DB) DeleteMetrics(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := db.pool.Exec(ctx,
		`DELETE FROM metrics WHERE user_id = $1 AND id = ANY($2)`, userID, ids)
	if err != nil {
		return fmt.Errorf("storage: delete metrics: %w", err)
	}
	return nil
}

// GetMetricsByUser returns a user's metrics of the given kind in display order.
func (db *DB) GetMetricsByUser(ctx context.Context, userID uuid.UUID, kind model.MetricKind) ([]model.Metric, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, user_id, name, kind, unit, optimal_value, minimum_value, comparator, position, created_at
		 FROM metrics WHERE user_id = $1 AND kind = $2
		 ORDER BY position`, userID, string(kind))
	if err != nil {
		return nil, fmt.Errorf("storage: get metrics: %w", err)
	}
	defer rows.Close()

	var metrics []model.Metric
	for rows.Next() {
		var m model.Metric
		if err := rows.Scan(&m.ID, &m.UserID, &m.Name, &m.Kind, &m.Unit, &m.OptimalValue, &m.MinimumValue, &m.Comparator, &m.Position, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan metric: %w", err)
		}
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

// GetOperationHabits returns the habit association rows for one operation.
func (db *DB) GetOperationHabits(ctx context.Context, operationID uuid.UUID) ([]model.OperationHabit, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT operation_id, metric_id FROM operation_habits WHERE operation_id = $1`, operationID)
	if err != nil {
		return nil, fmt.Errorf("storage: get operation habits: %w", err)
	}
	defer rows.Close()

	var links []model.OperationHabit
	for rows.Next() {
		var l model.OperationHabit
		if err := rows.Scan(&l.OperationID, &l.MetricID); err != nil {
			return nil, fmt.Errorf("storage: scan operation habit: %w", err)
		}
		links = append(links, l)
	}
	return links, rows.Err()
}
