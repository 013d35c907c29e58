package models

import "time"

// Continuation is the durable record of a suspended execution. The resumer
// re-enters the executor at Cursor once ResumeAt has passed.
type Continuation struct {
	ID          string    `json:"id"`
	ExecutionID string    `json:"execution_id"`
	WorkflowID  string    `json:"workflow_id"`
	OwnerID     string    `json:"owner_id"`
	ResumeAt    time.Time `json:"resume_at"`
	NextIndex   int       `json:"next_index"`
	Cursor      Cursor    `json:"cursor"`
	CreatedAt   time.Time `json:"created_at"`
}
