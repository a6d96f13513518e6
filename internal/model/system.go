package model

import (
	"time"

	"github.com/google/uuid"
)

// Operation is a persisted life area. Created once during finalization and
// never updated by the setup engine afterwards; MetricID is the back-link
// written by the link resolution step.
type Operation struct {
	ID          uuid.UUID  `json:"id"`
	UserID      uuid.UUID  `json:"user_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Position    int        `json:"position"`
	MetricID    *uuid.UUID `json:"metric_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Metric is a persisted tracked value. Kind is fixed at creation: numeric
// metrics carry unit/optimal/minimum/comparator, boolean metrics (habits)
// carry none of those.
type Metric struct {
	ID           uuid.UUID         `json:"id"`
	UserID       uuid.UUID         `json:"user_id"`
	Name         string            `json:"name"`
	Kind         MetricKind        `json:"kind"`
	Unit         *string           `json:"unit,omitempty"`
	OptimalValue *float64          `json:"optimal_value,omitempty"`
	MinimumValue *float64          `json:"minimum_value,omitempty"`
	Comparator   *MetricComparator `json:"comparator,omitempty"`
	Position     int               `json:"position"`
	CreatedAt    time.Time         `json:"created_at"`
}

// Goal is a persisted objective. OperationID and MetricID are nullable:
// a dangling draft reference degrades to an unlinked goal.
type Goal struct {
	ID           uuid.UUID  `json:"id"`
	UserID       uuid.UUID  `json:"user_id"`
	Title        string     `json:"title"`
	Type         GoalType   `json:"type"`
	OperationID  *uuid.UUID `json:"operation_id,omitempty"`
	MetricID     *uuid.UUID `json:"metric_id,omitempty"`
	TargetValue  *float64   `json:"target_value,omitempty"`
	InitialValue *float64   `json:"initial_value,omitempty"`
	TargetDate   *time.Time `json:"target_date,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Subgoal is a checklist entry owned by exactly one subgoal-based goal.
type Subgoal struct {
	ID        uuid.UUID `json:"id"`
	GoalID    uuid.UUID `json:"goal_id"`
	Title     string    `json:"title"`
	Completed bool      `json:"completed"`
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"created_at"`
}

// OperationHabit links a boolean metric to the operation it belongs to.
type OperationHabit struct {
	OperationID uuid.UUID `json:"operation_id"`
	MetricID    uuid.UUID `json:"metric_id"`
}

// User is the account row. Wake/sleep hours are nullable until a drafted
// schedule is applied.
type User struct {
	ID         uuid.UUID `json:"id"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	APIKeyHash *string   `json:"-"`
	WakeHour   *int      `json:"wake_hour,omitempty"`
	SleepHour  *int      `json:"sleep_hour,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// OnboardingPhaseComplete is the terminal onboarding phase.
const OnboardingPhaseComplete = "complete"

// SetupEventType tags terminal analytics events written by the engine.
type SetupEventType string

const (
	SetupEventFinalized SetupEventType = "system_finalized"
	SetupEventClaimed   SetupEventType = "draft_claimed"
)

// SetupEvent is the terminal analytics record of one finalization run.
// DraftID is set only on the claim path.
type SetupEvent struct {
	ID        uuid.UUID      `json:"id"`
	UserID    uuid.UUID      `json:"user_id"`
	DraftID   *string        `json:"draft_id,omitempty"`
	EventType SetupEventType `json:"event_type"`
	Success   bool           `json:"success"`
	Payload   map[string]any `json:"payload"`
	CreatedAt time.Time      `json:"created_at"`
}
