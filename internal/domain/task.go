package domain

import "time"

// TaskStatus represents the state of a batch consolidation job
type TaskStatus string

const (
	TaskStatusQueued     TaskStatus = "QUEUED"
	TaskStatusProcessing TaskStatus = "PROCESSING"
	TaskStatusCompleted  TaskStatus = "COMPLETED"
	TaskStatusFailed     TaskStatus = "FAILED"
)

// IsTerminal returns true once the task has reached its final state.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// ConsolidationTask is a pollable batch job record. Lives only in process
// memory; created at trigger time, updated per processed group, terminal
// exactly once.
type ConsolidationTask struct {
	ID                 string
	Status             TaskStatus
	ProgressPercentage int
	Message            string
	Errors             []string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
