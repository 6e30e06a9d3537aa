package models

import "time"

// TaskStatus represents the lifecycle state of a file read task.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusSucceeded TaskStatus = "succeeded"
	TaskStatusFailed    TaskStatus = "failed"
	// TaskStatusStale marks a successful read whose batch was cleared before it could append.
	TaskStatusStale TaskStatus = "stale"
)

// Done reports whether the status is terminal.
func (s TaskStatus) Done() bool {
	return s != TaskStatusPending
}

// TaskInfo is the diagnostic record of one file read task.
type TaskInfo struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Epoch       uint64     `json:"epoch"`
	Status      TaskStatus `json:"status"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}
