// Package setup implements the finalization engine that turns an AI-drafted
// system (operations, metrics, habits, goals, schedule) into persisted,
// cross-linked rows.
//
// One engine serves both HTTP entry points: /finalize runs it directly and
// /claim runs it behind the at-most-once claim gate. Writes are partitioned
// into load-bearing ones (operations, both metric passes, each goal), whose
// failure aborts the run and rolls back prior load-bearing writes, and
// best-effort ones (links, subgoals, schedule, onboarding state), whose
// failure is logged and skipped.
package setup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/halcyonhq/halcyon/internal/model"
	"github.com/halcyonhq/halcyon/internal/storage"
	"github.com/halcyonhq/halcyon/internal/telemetry"
)

var (
	// ErrAlreadyClaimed is returned when the draft id was claimed by a
	// previous (or concurrent) run. No writes happen after this.
	ErrAlreadyClaimed = errors.New("setup: draft has already been claimed")

	// ErrInvalidDraft wraps structural validation failures of the incoming
	// draft. No writes happen after this.
	ErrInvalidDraft = errors.New("setup: invalid draft")
)

// Service is the finalization engine.
type Service struct {
	db     *storage.DB
	logger *slog.Logger

	finalizeDuration metric.Float64Histogram
}

// New creates the engine.
func New(db *storage.DB, logger *slog.Logger) *Service {
	meter := telemetry.Meter("halcyon/setup")
	dur, _ := meter.Float64Histogram("halcyon.setup.finalize.duration",
		metric.WithDescription("Time to finalize a drafted system (ms)"),
		metric.WithUnit("ms"),
	)
	return &Service{db: db, logger: logger, finalizeDuration: dur}
}

// Params selects the entry-point behavior of one run.
type Params struct {
	// DraftID identifies the pre-auth draft on the claim path; empty on the
	// finalize path.
	DraftID string
	// RequireClaim gates the run behind the at-most-once claim reservation.
	RequireClaim bool
}

// Result carries the entity counts of a completed run.
type Result struct {
	Operations int `json:"operations"`
	Goals      int `json:"goals"`
	Habits     int `json:"habits"`
	Metrics    int `json:"metrics"`
}

// undoLog accumulates load-bearing writes so an aborted run can delete them
// again. Best-effort: compensation failures are logged, never returned.
type undoLog struct {
	operationIDs []uuid.UUID
	metricIDs    []uuid.UUID
	goalIDs      []uuid.UUID
}

// Finalize materializes a drafted system for one user. The draft is
// normalized and validated, then written in dependency order; identifiers
// assigned here replace every ephemeral draft id. Returns the entity counts
// of a clean (or soft-degraded) run.
func (s *Service) Finalize(ctx context.Context, userID uuid.UUID, draft model.DraftSystem, p Params) (Result, error) {
	start := time.Now()
	defer func() {
		s.finalizeDuration.Record(ctx, float64(time.Since(start).Milliseconds()))
	}()

	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.String("halcyon.user_id", userID.String()),
		attribute.Bool("halcyon.setup.claimed", p.RequireClaim),
	)
	if p.DraftID != "" {
		span.SetAttributes(attribute.String("halcyon.draft_id", p.DraftID))
	}

	model.NormalizeDraft(&draft)
	if err := model.ValidateDraft(draft); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidDraft, err)
	}

	// Claim gate (claim path only). A single conditional insert: the loser
	// of a concurrent claim is rejected here with no writes performed.
	if p.RequireClaim {
		err := storage.WithRetry(ctx, 3, 10*time.Millisecond, func() error {
			return s.db.ClaimDraft(ctx, p.DraftID, userID)
		})
		if errors.Is(err, storage.ErrDraftAlreadyClaimed) {
			return Result{}, ErrAlreadyClaimed
		}
		if err != nil {
			return Result{}, fmt.Errorf("setup: reserve claim: %w", err)
		}
	}

	undo := &undoLog{}

	// 1. Operations. Load-bearing: nothing downstream can link without them.
	ids := newIdentityMap()
	ops := make([]model.Operation, len(draft.Operations))
	for i, d := range draft.Operations {
		ops[i] = model.Operation{
			ID:          uuid.New(),
			UserID:      userID,
			Title:       d.Title,
			Description: d.Description,
			Position:    i,
		}
		ids.put(refOperation, d.ID, ops[i].ID)
	}
	if err := s.db.InsertOperations(ctx, ops); err != nil {
		return Result{}, s.abort(ctx, userID, p, undo, fmt.Errorf("insert operations: %w", err))
	}
	for _, op := range ops {
		undo.operationIDs = append(undo.operationIDs, op.ID)
	}

	// 2. Numeric metrics. Display order continues after the habit count so
	// habits and metrics share one ordering space.
	habitCount := len(draft.Habits)
	numeric := make([]model.Metric, len(draft.Metrics))
	for i, d := range draft.Metrics {
		numeric[i] = model.Metric{
			ID:           uuid.New(),
			UserID:       userID,
			Name:         d.Name,
			Kind:         model.MetricKindNumeric,
			Unit:         &d.Unit,
			OptimalValue: &d.OptimalValue,
			MinimumValue: &d.MinimumValue,
			Comparator:   &d.Comparator,
			Position:     habitCount + i,
		}
		ids.put(refMetric, d.Name, numeric[i].ID)
	}
	if err := s.db.InsertMetrics(ctx, numeric); err != nil {
		return Result{}, s.abort(ctx, userID, p, undo, fmt.Errorf("insert metrics: %w", err))
	}
	for _, m := range numeric {
		undo.metricIDs = append(undo.metricIDs, m.ID)
	}

	// 3. Metric → operation links. Best-effort: an unlinked metric is still
	// a valid standalone record.
	for i, d := range draft.Metrics {
		if d.OperationID == "" {
			continue
		}
		opID, ok := ids.resolve(refOperation, d.OperationID)
		if !ok {
			s.logger.Warn("setup: metric references unknown operation, skipping link",
				"metric", d.Name, "operation_ref", d.OperationID, "user_id", userID)
			continue
		}
		if err := s.db.SetOperationMetric(ctx, userID, opID, numeric[i].ID); err != nil {
			s.logger.Warn("setup: metric link failed, skipping",
				"metric", d.Name, "operation_id", opID, "error", err)
		}
	}

	// 4. Goals, each load-bearing. A dangling metric or operation reference
	// degrades to a null column; a failed insert aborts the run.
	for _, d := range draft.Goals {
		goal := model.Goal{
			UserID:     userID,
			Title:      d.Title,
			Type:       d.Type,
			TargetDate: d.TargetDate,
		}
		if d.Type == model.GoalTypeMetric {
			goal.TargetValue = d.TargetValue
			goal.InitialValue = d.InitialValue
			if metricID, ok := ids.resolve(refMetric, d.MetricName); ok {
				goal.MetricID = &metricID
			} else {
				s.logger.Warn("setup: goal references unknown metric, persisting unlinked",
					"goal", d.Title, "metric_name", d.MetricName, "user_id", userID)
			}
		}
		if d.OperationID != "" {
			if opID, ok := ids.resolve(refOperation, d.OperationID); ok {
				goal.OperationID = &opID
			}
		}

		created, err := s.db.CreateGoal(ctx, goal)
		if err != nil {
			return Result{}, s.abort(ctx, userID, p, undo, fmt.Errorf("insert goal %q: %w", d.Title, err))
		}
		undo.goalIDs = append(undo.goalIDs, created.ID)

		// Subgoals ride along with their parent; a failed batch loses the
		// checklist but keeps the goal.
		if d.Type == model.GoalTypeSubgoal {
			subgoals := make([]model.Subgoal, len(d.Subgoals))
			for i, title := range d.Subgoals {
				subgoals[i] = model.Subgoal{
					ID:       uuid.New(),
					GoalID:   created.ID,
					Title:    title,
					Position: i,
				}
			}
			if err := s.db.InsertSubgoals(ctx, subgoals); err != nil {
				s.logger.Warn("setup: subgoal batch failed, goal kept without checklist",
					"goal_id", created.ID, "count", len(subgoals), "error", err)
			}
		}
	}

	// 5. Boolean habits. Load-bearing, same table as metrics.
	habits := make([]model.Metric, len(draft.Habits))
	for i, d := range draft.Habits {
		habits[i] = model.Metric{
			ID:       uuid.New(),
			UserID:   userID,
			Name:     d.Name,
			Kind:     model.MetricKindBoolean,
			Position: i,
		}
	}
	if err := s.db.InsertMetrics(ctx, habits); err != nil {
		return Result{}, s.abort(ctx, userID, p, undo, fmt.Errorf("insert habits: %w", err))
	}
	for _, h := range habits {
		undo.metricIDs = append(undo.metricIDs, h.ID)
	}

	// 6. Habit → operation links. Best-effort bulk insert.
	var links []model.OperationHabit
	for i, d := range draft.Habits {
		if d.OperationID == "" {
			continue
		}
		opID, ok := ids.resolve(refOperation, d.OperationID)
		if !ok {
			s.logger.Warn("setup: habit references unknown operation, skipping link",
				"habit", d.Name, "operation_ref", d.OperationID, "user_id", userID)
			continue
		}
		links = append(links, model.OperationHabit{OperationID: opID, MetricID: habits[i].ID})
	}
	if err := s.db.InsertOperationHabits(ctx, links); err != nil {
		s.logger.Warn("setup: habit links failed, skipping", "count", len(links), "error", err)
	}

	// 7. Schedule onto the user row.
	if draft.Schedule != nil {
		if err := s.db.UpdateUserSchedule(ctx, userID, draft.Schedule.WakeHour, draft.Schedule.SleepHour); err != nil {
			s.logger.Warn("setup: schedule update failed, skipping", "user_id", userID, "error", err)
		}
	}

	// 8. Onboarding phase. Idempotent upsert.
	if err := s.db.UpsertOnboardingPhase(ctx, userID, model.OnboardingPhaseComplete); err != nil {
		s.logger.Warn("setup: onboarding phase upsert failed, skipping", "user_id", userID, "error", err)
	}

	// 9. Seal the claim. The pending row already blocks rivals, so a failed
	// update here degrades to a stale-looking but still effective gate.
	if p.RequireClaim {
		if err := s.db.CompleteClaim(ctx, p.DraftID); err != nil {
			s.logger.Warn("setup: complete claim failed", "draft_id", p.DraftID, "error", err)
		}
	}

	result := Result{
		Operations: len(ops),
		Goals:      len(draft.Goals),
		Habits:     len(habits),
		Metrics:    len(numeric),
	}

	// 10. Terminal analytics event. Never load-bearing.
	s.recordEvent(ctx, userID, p, true, map[string]any{
		"operations": result.Operations,
		"goals":      result.Goals,
		"habits":     result.Habits,
		"metrics":    result.Metrics,
	})

	span.SetAttributes(
		attribute.Int("halcyon.setup.operations", result.Operations),
		attribute.Int("halcyon.setup.goals", result.Goals),
		attribute.Int("halcyon.setup.habits", result.Habits),
		attribute.Int("halcyon.setup.metrics", result.Metrics),
	)
	return result, nil
}

// abort handles a failed load-bearing write: it deletes the load-bearing rows
// created so far (reverse dependency order), releases the claim so the draft
// can be retried, and records a failure event. All of that is best-effort —
// the original error is always what the caller gets back.
func (s *Service) abort(ctx context.Context, userID uuid.UUID, p Params, undo *undoLog, cause error) error {
	s.logger.Error("setup: finalization aborted",
		"user_id", userID,
		"draft_id", p.DraftID,
		"operations_created", len(undo.operationIDs),
		"metrics_created", len(undo.metricIDs),
		"goals_created", len(undo.goalIDs),
		"error", cause,
	)

	if err := s.db.DeleteGoals(ctx, userID, undo.goalIDs); err != nil {
		s.logger.Error("setup: compensation delete goals failed", "ids", undo.goalIDs, "error", err)
	}
	if err := s.db.DeleteMetrics(ctx, userID, undo.metricIDs); err != nil {
		s.logger.Error("setup: compensation delete metrics failed", "ids", undo.metricIDs, "error", err)
	}
	if err := s.db.DeleteOperations(ctx, userID, undo.operationIDs); err != nil {
		s.logger.Error("setup: compensation delete operations failed", "ids", undo.operationIDs, "error", err)
	}

	if p.RequireClaim {
		if err := s.db.ReleaseClaim(ctx, p.DraftID); err != nil {
			s.logger.Error("setup: release claim failed", "draft_id", p.DraftID, "error", err)
		}
	}

	s.recordEvent(ctx, userID, p, false, map[string]any{"error": cause.Error()})

	return fmt.Errorf("setup: %w", cause)
}

// recordEvent writes the terminal analytics event. A failure to record is
// logged and swallowed so it can never mask the run's own outcome.
func (s *Service) recordEvent(ctx context.Context, userID uuid.UUID, p Params, success bool, payload map[string]any) {
	event := model.SetupEvent{
		UserID:    userID,
		EventType: model.SetupEventFinalized,
		Success:   success,
		Payload:   payload,
	}
	if p.RequireClaim {
		event.EventType = model.SetupEventClaimed
		draftID := p.DraftID
		event.DraftID = &draftID
	}
	if err := s.db.InsertSetupEvent(ctx, event); err != nil {
		s.logger.Error("setup: record terminal event failed",
			"user_id", userID, "success", success, "error", err)
	}
}
