package models

import (
	"strings"
	"time"
)

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	StatusPending TaskStatus = "PENDING"
	StatusSuccess TaskStatus = "SUCCESS"
	StatusFailed  TaskStatus = "FAILED"
)

// ParseTaskStatus maps a stored status cell back to a TaskStatus. Anything
// unrecognised is treated as pending.
func ParseTaskStatus(s string) TaskStatus {
	switch TaskStatus(strings.ToUpper(strings.TrimSpace(s))) {
	case StatusSuccess:
		return StatusSuccess
	case StatusFailed:
		return StatusFailed
	default:
		return StatusPending
	}
}

// Task is one unit of work read from a task source.
type Task struct {
	// Position is the 1-based position in the source order.
	Position int
	Category string
	Content  string

	// Metadata carries every other source column through untouched.
	Metadata map[string]string

	// Result fields, mutated as the batch runs.
	OutputName   string
	Seed         *uint64
	Status       TaskStatus
	ErrorMessage string
	Timestamp    time.Time
}

// Done reports whether the task already finished successfully.
func (t *Task) Done() bool {
	return t.Status == StatusSuccess
}
