package executor

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/errgroup"

	"github.com/spachava753/promptbatch/internal/models"
	"github.com/spachava753/promptbatch/internal/recorder"
	"github.com/spachava753/promptbatch/internal/workflow"
)

// BatchRunner drives every task of a batch through a TaskProcessor and
// checkpoints progress through a Recorder.
type BatchRunner struct {
	processor       TaskProcessor
	recorder        *recorder.Recorder
	clock           clock.Clock
	checkpointEvery int
	workers         int
	skipCompleted   bool
	runID           string
	name            string
	dateStamp       string
}

// RunnerOptions configures a BatchRunner.
type RunnerOptions struct {
	Processor       TaskProcessor
	Recorder        *recorder.Recorder
	Clock           clock.Clock
	CheckpointEvery int
	Workers         int
	SkipCompleted   bool
	RunID           string
	Name            string
	DateStamp       string
}

// NewBatchRunner creates a runner. Workers below 1 run sequentially.
func NewBatchRunner(opts RunnerOptions) *BatchRunner {
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &BatchRunner{
		processor:       opts.Processor,
		recorder:        opts.Recorder,
		clock:           clk,
		checkpointEvery: opts.CheckpointEvery,
		workers:         max(opts.Workers, 1),
		skipCompleted:   opts.SkipCompleted,
		runID:           opts.RunID,
		name:            opts.Name,
		dateStamp:       opts.DateStamp,
	}
}

// Run processes every task held by the recorder against template, which must
// already carry its static bindings. template itself is never mutated.
//
// A final snapshot is always written, including after cancellation.
func (r *BatchRunner) Run(ctx context.Context, template *workflow.Graph) *models.BatchReport {
	startTime := r.clock.Now()
	tasks := r.recorder.Tasks()

	var st runState
	if r.workers == 1 {
		st = r.runSequential(ctx, tasks, template)
	} else {
		st = r.runConcurrent(ctx, tasks, template)
	}

	if err := r.recorder.Checkpoint(); err != nil {
		slog.Error("final save failed", "error", err)
	}
	if r.recorder.ReportPath() != "" {
		if err := r.recorder.Flush(); err != nil {
			slog.Warn("writing report", "error", err)
		}
	}

	report := r.aggregateResults(startTime)
	report.Skipped = st.skipped
	report.Cancelled = st.cancelled || ctx.Err() != nil
	return report
}

type runState struct {
	skipped   int
	cancelled bool
}

// runSequential processes tasks strictly in source order. Checkpoints land
// between tasks, at every position divisible by the cadence.
func (r *BatchRunner) runSequential(ctx context.Context, tasks []models.Task, template *workflow.Graph) runState {
	var st runState
	g := template.Clone()
	total := len(tasks)

	for _, t := range tasks {
		if ctx.Err() != nil {
			st.cancelled = true
			break
		}

		if r.skipCompleted && t.Done() {
			st.skipped++
			slog.Debug("skipping completed task", "position", t.Position, "total", total)
		} else {
			out := r.processor.Process(ctx, t, g)
			if out.Error != nil && out.Error.Type == models.ErrCancelled {
				// Left pending so a later run picks it up.
				st.cancelled = true
				break
			}
			r.recorder.Record(ctx, out)
			logProgress(out, total)
		}

		if r.checkpointEvery > 0 && t.Position%r.checkpointEvery == 0 {
			r.recorder.Checkpoint()
		}
	}
	return st
}

// runConcurrent fans tasks out to a bounded set of workers. Each task binds
// into its own clone of the template; checkpoints are taken every K completed
// tasks and serialised by the recorder.
func (r *BatchRunner) runConcurrent(ctx context.Context, tasks []models.Task, template *workflow.Graph) runState {
	var (
		st        runState
		mu        sync.Mutex
		completed atomic.Int64
		eg        errgroup.Group
	)
	eg.SetLimit(r.workers)
	total := len(tasks)

	for _, t := range tasks {
		if ctx.Err() != nil {
			st.cancelled = true
			break
		}
		if r.skipCompleted && t.Done() {
			st.skipped++
			continue
		}

		eg.Go(func() error {
			out := r.processor.Process(ctx, t, template.Clone())
			if out.Error != nil && out.Error.Type == models.ErrCancelled {
				mu.Lock()
				st.cancelled = true
				mu.Unlock()
				return nil
			}
			r.recorder.Record(ctx, out)
			logProgress(out, total)

			if n := completed.Add(1); r.checkpointEvery > 0 && n%int64(r.checkpointEvery) == 0 {
				r.recorder.Checkpoint()
			}
			return nil
		})
	}
	eg.Wait()
	return st
}

func logProgress(out models.Outcome, total int) {
	attrs := []any{
		"position", out.Position,
		"total", total,
		"status", out.Status,
		"elapsed", out.ElapsedSec,
	}
	if out.Seed != nil {
		attrs = append(attrs, "seed", *out.Seed)
	}
	if out.Error != nil {
		slog.Warn("task failed", append(attrs, "error", out.Error.Error())...)
		return
	}
	slog.Info("task completed", append(attrs, "output", out.OutputName)...)
}

func (r *BatchRunner) aggregateResults(startTime time.Time) *models.BatchReport {
	tasks := r.recorder.Tasks()
	outcomes := r.recorder.Outcomes()

	report := &models.BatchReport{
		RunID:            r.runID,
		Name:             r.name,
		DateStamp:        r.dateStamp,
		Total:            len(tasks),
		CheckpointWrites: r.recorder.CheckpointWrites(),
		PersistErrors:    r.recorder.PersistErrors(),
		StartedAt:        startTime,
		EndedAt:          r.clock.Now(),
		Categories:       make(map[string]models.CategorySummary),
		Outcomes:         outcomes,
	}
	report.TotalDurationSec = report.EndedAt.Sub(report.StartedAt).Seconds()

	for _, t := range tasks {
		if t.Status == models.StatusPending {
			report.Pending++
		}
	}

	for _, o := range outcomes {
		cs := report.Categories[o.Category]
		cs.Total++
		switch o.Status {
		case models.StatusSuccess:
			report.Succeeded++
			cs.Succeeded++
		case models.StatusFailed:
			report.Failed++
			cs.Failed++
		}
		report.Categories[o.Category] = cs
	}

	return report
}
