package models

import "time"

// ExecutionStatus is the state of a single workflow run.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// IsTerminal reports whether no further transition is allowed out of s.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed || s == ExecutionStatusCancelled
}

// Valid reports whether s is a known status.
func (s ExecutionStatus) Valid() bool {
	switch s {
	case ExecutionStatusPending, ExecutionStatusRunning, ExecutionStatusCompleted, ExecutionStatusFailed, ExecutionStatusCancelled:
		return true
	}

	return false
}

var executionTransitions = map[ExecutionStatus][]ExecutionStatus{
	ExecutionStatusPending: {
		ExecutionStatusRunning,
		ExecutionStatusCompleted,
		ExecutionStatusFailed,
		ExecutionStatusCancelled,
	},
	ExecutionStatusRunning: {
		ExecutionStatusCompleted,
		ExecutionStatusFailed,
		ExecutionStatusCancelled,
	},
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to ExecutionStatus) bool {
	for _, allowed := range executionTransitions[from] {
		if allowed == to {
			return true
		}
	}

	return false
}

// LogOutcome is the result recorded for one action attempt.
type LogOutcome string

const (
	LogOutcomeSucceeded LogOutcome = "succeeded"
	LogOutcomeFailed    LogOutcome = "failed"
	LogOutcomeSuspended LogOutcome = "suspended"
	LogOutcomeSkipped   LogOutcome = "skipped"
)

// ExecutionLogEntry is one append-only record of an action attempt.
type ExecutionLogEntry struct {
	ActionID   string     `json:"action_id"`
	ActionType ActionType `json:"action_type"`
	Index      int        `json:"index"`
	Path       string     `json:"path"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    time.Time  `json:"ended_at"`
	Outcome    LogOutcome `json:"outcome"`
	Output     any        `json:"output,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// WorkflowExecution is one run of a definition triggered by one stimulus.
type WorkflowExecution struct {
	ID           string              `json:"id"`
	WorkflowID   string              `json:"workflow_id"`
	OwnerID      string              `json:"owner_id"`
	TriggeredBy  TriggeredBy         `json:"triggered_by"`
	TriggerData  map[string]any      `json:"trigger_data"`
	Status       ExecutionStatus     `json:"status"`
	StartedAt    *time.Time          `json:"started_at,omitempty"`
	CompletedAt  *time.Time          `json:"completed_at,omitempty"`
	Error        string              `json:"error,omitempty"`
	ErrorDetails map[string]any      `json:"error_details,omitempty"`
	ExecutionLog []ExecutionLogEntry `json:"execution_log"`
	Results      map[string]any      `json:"results"`
	DedupKey     string              `json:"dedup_key,omitempty"`
	Version      int64               `json:"version"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}
