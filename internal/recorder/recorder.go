// Package recorder owns the mutable task list of a batch. It applies outcomes,
// fans them out to sinks and writes checkpoints and reports.
package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/spachava753/promptbatch/internal/metrics"
	"github.com/spachava753/promptbatch/internal/models"
	"github.com/spachava753/promptbatch/internal/task"
)

// Snapshotter persists a full snapshot of the task list.
type Snapshotter interface {
	Save(tasks []models.Task) error
}

// OutcomeSink receives every recorded outcome.
type OutcomeSink interface {
	Append(ctx context.Context, o models.Outcome) error
}

// Recorder is safe for use by concurrent workers.
type Recorder struct {
	mu       sync.Mutex
	tasks    []models.Task
	outcomes []models.Outcome

	store       Snapshotter
	reportPath  string
	reportSheet string
	sinks       []OutcomeSink
	metrics     *metrics.Metrics

	checkpoints   int
	persistErrors []string
}

// Options configures a Recorder.
type Options struct {
	// Store receives checkpoints. When nil, checkpoints write the report.
	Store       Snapshotter
	ReportPath  string
	ReportSheet string
	Sinks       []OutcomeSink
	Metrics     *metrics.Metrics
}

// New creates a recorder over tasks, which must be ordered by position.
func New(tasks []models.Task, opts Options) *Recorder {
	sheet := opts.ReportSheet
	if sheet == "" {
		sheet = "Report"
	}
	return &Recorder{
		tasks:       tasks,
		store:       opts.Store,
		reportPath:  opts.ReportPath,
		reportSheet: sheet,
		sinks:       opts.Sinks,
		metrics:     opts.Metrics,
	}
}

// Record applies an outcome to its task and forwards it to every sink. Sink
// failures are logged and kept for the report.
func (r *Recorder) Record(ctx context.Context, o models.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if i := o.Position - 1; i >= 0 && i < len(r.tasks) {
		t := &r.tasks[i]
		t.Status = o.Status
		// Output name, seed and date describe an accepted artifact only.
		if o.Succeeded() {
			t.Seed = o.Seed
			t.OutputName = o.OutputName
			t.Timestamp = o.EndedAt
		} else {
			t.Seed = nil
			t.OutputName = ""
			t.Timestamp = time.Time{}
		}
		t.ErrorMessage = ""
		if o.Error != nil {
			t.ErrorMessage = o.Error.Error()
		}
	}
	r.outcomes = append(r.outcomes, o)
	r.metrics.TaskFinished(string(o.Status))

	for _, sink := range r.sinks {
		if err := sink.Append(ctx, o); err != nil {
			slog.Warn("recording outcome", "position", o.Position, "error", err)
			r.persistErrors = append(r.persistErrors, err.Error())
		}
	}
}

// Checkpoint writes a full snapshot of the current task list. A failure is
// returned as a *models.PersistenceError and kept for the report.
func (r *Recorder) Checkpoint() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var err error
	path := r.reportPath
	if r.store != nil {
		if p, ok := r.store.(interface{ Path() string }); ok {
			path = p.Path()
		}
		err = r.store.Save(slices.Clone(r.tasks))
	} else {
		err = r.writeReport()
	}
	r.metrics.CheckpointWritten(err)

	if err != nil {
		perr := &models.PersistenceError{Path: path, Err: err}
		r.persistErrors = append(r.persistErrors, perr.Error())
		slog.Error("checkpoint failed", "path", path, "error", err)
		return perr
	}
	r.checkpoints++
	slog.Info("checkpoint written", "path", path, "count", r.checkpoints)
	return nil
}

// Flush writes the outcome report. Flushing twice without new outcomes
// produces the same file.
func (r *Recorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.writeReport(); err != nil {
		perr := &models.PersistenceError{Path: r.reportPath, Err: err}
		r.persistErrors = append(r.persistErrors, perr.Error())
		return perr
	}
	return nil
}

// ReportPath returns where Flush writes, which may be empty.
func (r *Recorder) ReportPath() string {
	return r.reportPath
}

// Tasks returns a copy of the task list.
func (r *Recorder) Tasks() []models.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.tasks)
}

// Outcomes returns the recorded outcomes ordered by position.
func (r *Recorder) Outcomes() []models.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return sortedOutcomes(r.outcomes)
}

// CheckpointWrites returns the number of successful checkpoints.
func (r *Recorder) CheckpointWrites() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.checkpoints
}

// PersistErrors returns every persistence problem seen so far.
func (r *Recorder) PersistErrors() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.persistErrors)
}

var reportHeader = []string{
	"position", "category", "content", "status", "output_name", "output_dir",
	"seed", "attempts", "error", "started_at", "elapsed_sec",
}

func (r *Recorder) writeReport() error {
	if r.reportPath == "" {
		return fmt.Errorf("no report path configured")
	}

	t := &task.Table{Header: reportHeader}
	for _, o := range sortedOutcomes(r.outcomes) {
		var seed, errMsg, started string
		if o.Seed != nil {
			seed = strconv.FormatUint(*o.Seed, 10)
		}
		if o.Error != nil {
			errMsg = o.Error.Error()
		}
		if !o.StartedAt.IsZero() {
			started = o.StartedAt.Format("2006-01-02 15:04:05")
		}
		t.Rows = append(t.Rows, []string{
			strconv.Itoa(o.Position), o.Category, o.Content, string(o.Status),
			o.OutputName, o.OutputDir, seed, strconv.Itoa(o.Attempts), errMsg,
			started, strconv.FormatFloat(o.ElapsedSec, 'f', 2, 64),
		})
	}
	return task.WriteNewTable(r.reportPath, r.reportSheet, t)
}

func sortedOutcomes(in []models.Outcome) []models.Outcome {
	out := slices.Clone(in)
	slices.SortStableFunc(out, func(a, b models.Outcome) int {
		return a.Position - b.Position
	})
	return out
}
