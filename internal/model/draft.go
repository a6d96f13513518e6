// Package model defines the core domain types for Halcyon.
//
// Draft* types mirror the JSON the onboarding client submits; the rest
// correspond directly to database tables. Draft identifiers are ephemeral
// client-side strings and must never be persisted.
package model

import (
	"fmt"
	"time"
)

// MetricKind discriminates the two metric subtypes stored in one table.
type MetricKind string

const (
	MetricKindNumeric MetricKind = "numeric"
	MetricKindBoolean MetricKind = "boolean"
)

// MetricComparator describes how a numeric metric compares against its optimum.
type MetricComparator string

const (
	CompareAtLeast MetricComparator = "at_least"
	CompareAtMost  MetricComparator = "at_most"
	CompareExactly MetricComparator = "exactly"
)

// GoalType discriminates metric-tracking goals from checklist goals.
type GoalType string

const (
	GoalTypeMetric  GoalType = "metric_based"
	GoalTypeSubgoal GoalType = "subgoal_based"
)

// DraftOperation is a top-level life area in the drafted system.
type DraftOperation struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// DraftMetric is a numeric metric in the drafted system. The target operation
// may be referenced by ephemeral id or by title; NormalizeDraft rewrites the
// latter into the former.
type DraftMetric struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	Unit          string           `json:"unit,omitempty"`
	OptimalValue  float64          `json:"optimalValue"`
	MinimumValue  float64          `json:"minimumValue"`
	Comparator    MetricComparator `json:"comparator"`
	OperationID   string           `json:"operationId,omitempty"`
	OperationName string           `json:"operationName,omitempty"`
}

// DraftHabit is a boolean metric in the drafted system.
type DraftHabit struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	OperationID   string `json:"operationId,omitempty"`
	OperationName string `json:"operationName,omitempty"`
}

// DraftGoal is a drafted goal. Exactly one of the metric linkage
// (MetricName + target/initial values) or the subgoal list is populated,
// matching Type.
type DraftGoal struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Type          GoalType   `json:"type"`
	MetricName    string     `json:"metricName,omitempty"`
	TargetValue   *float64   `json:"targetValue,omitempty"`
	InitialValue  *float64   `json:"initialValue,omitempty"`
	OperationID   string     `json:"operationId,omitempty"`
	OperationName string     `json:"operationName,omitempty"`
	TargetDate    *time.Time `json:"targetDate,omitempty"`
	Subgoals      []string   `json:"subgoals,omitempty"`
}

// DraftSchedule carries the drafted wake/sleep preference, hours in [0,23].
type DraftSchedule struct {
	WakeHour  int `json:"wakeHour"`
	SleepHour int `json:"sleepHour"`
}

// DraftSystem is the full drafted operating system handed to finalization.
// Immutable from the engine's point of view once normalized.
type DraftSystem struct {
	Operations []DraftOperation `json:"operations"`
	Goals      []DraftGoal      `json:"goals"`
	Habits     []DraftHabit     `json:"habits"`
	Metrics    []DraftMetric    `json:"metrics"`
	Schedule   *DraftSchedule   `json:"schedule,omitempty"`
}

// NormalizeDraft canonicalizes cross-references so the engine only ever
// resolves operations by ephemeral id. Name-based references are rewritten to
// the id of the first operation with a matching title; names that match no
// operation are dropped (the link is optional and will simply be omitted).
func NormalizeDraft(d *DraftSystem) {
	byTitle := make(map[string]string, len(d.Operations))
	for _, op := range d.Operations {
		if _, ok := byTitle[op.Title]; !ok {
			byTitle[op.Title] = op.ID
		}
	}

	resolve := func(id, name string) string {
		if id != "" {
			return id
		}
		return byTitle[name]
	}

	for i := range d.Metrics {
		d.Metrics[i].OperationID = resolve(d.Metrics[i].OperationID, d.Metrics[i].OperationName)
		d.Metrics[i].OperationName = ""
	}
	for i := range d.Habits {
		d.Habits[i].OperationID = resolve(d.Habits[i].OperationID, d.Habits[i].OperationName)
		d.Habits[i].OperationName = ""
	}
	for i := range d.Goals {
		d.Goals[i].OperationID = resolve(d.Goals[i].OperationID, d.Goals[i].OperationName)
		d.Goals[i].OperationName = ""
	}
}

// ValidateDraft checks structural invariants before any write happens.
// Link targets are not validated here — a dangling reference degrades to an
// unlinked row, it does not reject the draft.
func ValidateDraft(d DraftSystem) error {
	for i, op := range d.Operations {
		if op.Title == "" {
			return fmt.Errorf("operations[%d]: title is required", i)
		}
	}
	for i, m := range d.Metrics {
		if m.Name == "" {
			return fmt.Errorf("metrics[%d]: name is required", i)
		}
		switch m.Comparator {
		case CompareAtLeast, CompareAtMost, CompareExactly:
		default:
			return fmt.Errorf("metrics[%d]: invalid comparator %q", i, m.Comparator)
		}
	}
	for i, h := range d.Habits {
		if h.Name == "" {
			return fmt.Errorf("habits[%d]: name is required", i)
		}
	}
	for i, g := range d.Goals {
		if g.Title == "" {
			return fmt.Errorf("goals[%d]: title is required", i)
		}
		switch g.Type {
		case GoalTypeMetric:
			if g.MetricName == "" {
				return fmt.Errorf("goals[%d]: metric-based goal requires metricName", i)
			}
			if len(g.Subgoals) > 0 {
				return fmt.Errorf("goals[%d]: metric-based goal must not carry subgoals", i)
			}
		case GoalTypeSubgoal:
			if len(g.Subgoals) == 0 {
				return fmt.Errorf("goals[%d]: subgoal-based goal requires a non-empty subgoal list", i)
			}
			if g.MetricName != "" || g.TargetValue != nil || g.InitialValue != nil {
				return fmt.Errorf("goals[%d]: subgoal-based goal must not carry metric fields", i)
			}
		default:
			return fmt.Errorf("goals[%d]: invalid type %q", i, g.Type)
		}
	}
	if s := d.Schedule; s != nil {
		if s.WakeHour < 0 || s.WakeHour > 23 || s.SleepHour < 0 || s.SleepHour > 23 {
			return fmt.Errorf("schedule: hours must be within [0,23]")
		}
	}
	return nil
}
