package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/halcyonhq/halcyon/internal/model"
)

// CreateGoal inserts a single goal and returns it with defaults filled in.
// Goals are inserted one at a time because each carries individually resolved
// references and the engine aborts on the first goal that fails.
func (db *DB) CreateGoal(ctx context.Context, g model.Goal) (model.Goal, error) {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO goals (id, user_id, title, goal_type, operation_id, metric_id,
		 target_value, initial_value, target_date, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		g.ID, g.UserID, g.Title, string(g.Type), g.OperationID, g.MetricID,
		g.TargetValue, g.InitialValue, g.TargetDate, g.CreatedAt,
	)
	if err != nil {
		return model.Goal{}, fmt.Errorf("storage: create goal: %w", err)
	}
	return g, nil
}

// InsertSubgoals bulk-inserts the checklist entries of one goal using COPY.
// Callers set positions to the list index before calling.
func (db *DB) InsertSubgoals(ctx context.Context, subgoals []model.Subgoal) error {
	if len(subgoals) == 0 {
		return nil
	}

	now := time.Now().UTC()
	rows := make([][]any, len(subgoals))
	for i, sg := range subgoals {
		id := sg.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		createdAt := sg.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		rows[i] = []any{id, sg.GoalID, sg.Title, sg.Completed, sg.Position, createdAt}
	}

	_, err := db.pool.CopyFrom(ctx,
		pgx.Identifier{"subgoals"},
		[]string{"id", "goal_id", "title", "completed", "position", "created_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("storage: insert subgoals: %w", err)
	}
	return nil
}

// DeleteGoals removes goals by id; subgoals cascade. Used only by the abort
// compensation path.
func (db *DB) DeleteGoals(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := db.pool.Exec(ctx,
		`DELETE FROM goals WHERE user_id = $1 AND id = ANY($2)`, userID, ids)
	if err != nil {
		return fmt.Errorf("storage: delete goals: %w", err)
	}
	return nil
}

// GetGoalsByUser returns a user's goals in creation order.
func (db *DB) GetGoalsByUser(ctx context.Context, userID uuid.UUID) ([]model.Goal, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, user_id, title, goal_type, operation_id, metric_id,
		 target_value, initial_value, target_date, created_at
		 FROM goals WHERE user_id = $1
		 ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("storage: get goals: %w", err)
	}
	defer rows.Close()

	var goals []model.Goal
	for rows.Next() {
		var g model.Goal
		if err := rows.Scan(&g.ID, &g.UserID, &g.Title, &g.Type, &g.OperationID, &g.MetricID,
			&g.TargetValue, &g.InitialValue, &g.TargetDate, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan goal: %w", err)
		}
		goals = append(goals, g)
	}
	return goals, rows.Err()
}

// GetSubgoalsByGoal returns a goal's subgoals ordered by position.
func (db *DB) GetSubgoalsByGoal(ctx context.Context, goalID uuid.UUID) ([]model.Subgoal, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, goal_id, title, completed, position, created_at
		 FROM subgoals WHERE goal_id = $1
		 ORDER BY position`, goalID)
	if err != nil {
		return nil, fmt.Errorf("storage: get subgoals: %w", err)
	}
	defer rows.Close()

	var subgoals []model.Subgoal
	for rows.Next() {
		var sg model.Subgoal
		if err := rows.Scan(&sg.ID, &sg.GoalID, &sg.Title, &sg.Completed, &sg.Position, &sg.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan subgoal: %w", err)
		}
		subgoals = append(subgoals, sg)
	}
	return subgoals, rows.Err()
}
