package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"runtime/debug"

	"github.com/benbjohnson/clock"

	"github.com/spachava753/promptbatch/internal/dispatch"
	"github.com/spachava753/promptbatch/internal/models"
	"github.com/spachava753/promptbatch/internal/naming"
	"github.com/spachava753/promptbatch/internal/workflow"
)

// TaskProcessor runs a single task against a graph it is free to mutate and
// returns its outcome. Task-level failures are reported in the outcome, never
// as a panic or error.
type TaskProcessor interface {
	Process(ctx context.Context, task models.Task, g *workflow.Graph) models.Outcome
}

// Validator checks that a task carries what is needed to dispatch it.
type Validator interface {
	ValidateTask(task *models.Task) error
}

// DefaultTaskProcessor validates, names, binds and dispatches one task.
type DefaultTaskProcessor struct {
	Binder     *workflow.Binder
	Dispatcher dispatch.Dispatcher
	Seeds      *naming.SeedSource
	Validator  Validator
	Clock      clock.Clock
	Output     models.OutputConfig
	DateStamp  string
	RunID      string
}

// Process runs the task through validation, seed drawing, naming, binding and
// dispatch.
func (p *DefaultTaskProcessor) Process(ctx context.Context, task models.Task, g *workflow.Graph) (out models.Outcome) {
	out = models.Outcome{
		RunID:     p.RunID,
		Position:  task.Position,
		Category:  task.Category,
		Content:   task.Content,
		Status:    models.StatusFailed,
		StartedAt: p.Clock.Now(),
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("task panicked", "position", task.Position, "panic", r, "stack", string(debug.Stack()))
			out.Status = models.StatusFailed
			out.Error = &models.TaskError{
				Type:    models.ErrInternalError,
				Message: fmt.Sprintf("panic: %v", r),
			}
		}
		out.EndedAt = p.Clock.Now()
		out.ElapsedSec = out.EndedAt.Sub(out.StartedAt).Seconds()
	}()

	if err := p.Validator.ValidateTask(&task); err != nil {
		out.Error = asTaskError(err, models.ErrTaskInvalid)
		return out
	}

	seed := p.Seeds.Draw()
	base := naming.Sanitize(task.Content, p.Output.MaxNameLength)
	segment := naming.Segment(task.Category)

	// The engine writes relative to its own output root, so the prefix it
	// receives mirrors the local layout under Output.Root.
	prefixParts := []string{p.DateStamp}
	if p.Output.NamespaceByCategory && segment != "" {
		prefixParts = append(prefixParts, segment)
	}
	outputDir := filepath.Join(append([]string{p.Output.Root}, prefixParts...)...)
	prefix := path.Join(append(prefixParts, naming.OutputName(base, seed, ""))...)

	out.Seed = &seed
	out.OutputName = naming.OutputName(base, seed, p.Output.Extension)
	out.OutputDir = outputDir

	if p.Output.CreateDirs {
		if err := os.MkdirAll(outputDir, 0755); err != nil {
			out.Error = &models.TaskError{
				Type:    models.ErrInternalError,
				Message: fmt.Sprintf("creating output directory: %s", err),
			}
			return out
		}
	}

	err := p.Binder.BindDynamic(g, workflow.Values{
		Category:     task.Category,
		Content:      task.Content,
		Seed:         seed,
		OutputPrefix: prefix,
	})
	if err != nil {
		out.Error = asTaskError(err, models.ErrBindFailed)
		return out
	}

	res, err := p.Dispatcher.Dispatch(ctx, g)
	out.Attempts = res.Attempts
	if err != nil {
		if ctx.Err() != nil {
			out.Status = models.StatusPending
			out.Error = &models.TaskError{
				Type:    models.ErrCancelled,
				Message: ctx.Err().Error(),
			}
			return out
		}
		out.Error = asTaskError(err, models.ErrDispatchFailed)
		return out
	}

	out.Status = models.StatusSuccess
	return out
}

func asTaskError(err error, fallback models.ErrorType) *models.TaskError {
	var te *models.TaskError
	if errors.As(err, &te) {
		return te
	}
	return &models.TaskError{Type: fallback, Message: err.Error()}
}
