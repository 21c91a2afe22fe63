package models

import "time"

// Outcome is the structured record of one processed task.
type Outcome struct {
	RunID      string     `json:"run_id"`
	Position   int        `json:"position"`
	Category   string     `json:"category"`
	Content    string     `json:"content"`
	Status     TaskStatus `json:"status"`
	OutputName string     `json:"output_name,omitempty"`
	OutputDir  string     `json:"output_dir,omitempty"`
	Seed       *uint64    `json:"seed"`
	Attempts   int        `json:"attempts"`
	Error      *TaskError `json:"error"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    time.Time  `json:"ended_at"`
	ElapsedSec float64    `json:"elapsed_sec"`
}

// Succeeded reports whether the outcome is a success.
func (o Outcome) Succeeded() bool {
	return o.Status == StatusSuccess
}
