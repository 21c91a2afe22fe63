package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/spachava753/promptbatch/internal/config"
	"github.com/spachava753/promptbatch/internal/dataset"
	"github.com/spachava753/promptbatch/internal/dispatch"
	"github.com/spachava753/promptbatch/internal/ledger"
	"github.com/spachava753/promptbatch/internal/metrics"
	"github.com/spachava753/promptbatch/internal/models"
	"github.com/spachava753/promptbatch/internal/naming"
	"github.com/spachava753/promptbatch/internal/recorder"
	"github.com/spachava753/promptbatch/internal/task"
	"github.com/spachava753/promptbatch/internal/workflow"
)

// Plan is a batch resolved from configuration: a statically bound template,
// its role index and binder, and the tasks to run.
type Plan struct {
	Config    models.BatchConfig
	Template  *workflow.Graph
	Index     *workflow.RoleIndex
	Binder    *workflow.Binder
	Tasks     []models.Task
	Store     *task.Store // nil for list sources
	Validator *task.Loader
}

// Prepare loads and checks everything a batch needs. Every configuration
// problem surfaces here, before any task is processed.
func Prepare(ctx context.Context, cfg models.BatchConfig) (*Plan, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	g, err := workflow.LoadGraph(cfg.WorkflowPath)
	if err != nil {
		return nil, &models.ConfigError{
			Kind:  models.InvalidConfig,
			Items: []string{cfg.WorkflowPath},
			Err:   err,
		}
	}

	index, err := workflow.BuildRoleIndex(g, cfg.Roles, cfg.RequiredRoles, cfg.StrictRoles)
	if err != nil {
		return nil, err
	}

	binder := workflow.NewBinder(index, cfg.Static, cfg.Bindings)
	if err := binder.Validate(g); err != nil {
		return nil, err
	}
	if err := binder.BindStatic(g); err != nil {
		return nil, err
	}

	plan := &Plan{
		Config:    cfg,
		Template:  g,
		Index:     index,
		Binder:    binder,
		Validator: task.NewLoader(cfg.Source.Columns, cfg.Source.Sheet, cfg.Output.DateFormat),
	}

	if cfg.Source.IsList() {
		plan.Tasks, err = dataset.NewLoader().LoadLists(ctx, cfg.Source.CategoriesPath, cfg.Source.ContentsPath)
	} else {
		plan.Store, plan.Tasks, err = plan.Validator.LoadTasks(ctx, cfg.Source.Path)
	}
	if err != nil {
		return nil, fmt.Errorf("loading tasks: %w", err)
	}

	slog.Info("batch prepared",
		"workflow", cfg.WorkflowPath,
		"nodes", g.Len(),
		"roles", index.Roles(),
		"tasks", len(plan.Tasks))
	return plan, nil
}

// Deps are the collaborators Execute would otherwise build from configuration.
type Deps struct {
	// Dispatcher defaults to an HTTP client for cfg.Engine.
	Dispatcher dispatch.Dispatcher
	Clock      clock.Clock
	// Rand seeds the seed source; nil draws from a random generator.
	Rand    *rand.Rand
	Metrics *metrics.Metrics
}

// Execute runs a prepared plan to completion or cancellation.
func Execute(ctx context.Context, plan *Plan, deps Deps) (*models.BatchReport, error) {
	cfg := plan.Config

	clk := deps.Clock
	if clk == nil {
		clk = clock.New()
	}
	runID := uuid.NewString()
	dateStamp := clk.Now().Format(cfg.Output.DateFormat)
	name := clk.Now().Format("2006-01-02__15-04-05")
	if cfg.Name != nil {
		name = *cfg.Name
	}

	dispatcher := deps.Dispatcher
	if dispatcher == nil {
		clientID := cfg.Engine.ClientID
		if clientID == "" {
			clientID = runID
		}
		client, err := dispatch.NewClient(dispatch.Options{
			Endpoint:       cfg.Engine.Endpoint,
			RequestTimeout: time.Duration(cfg.Engine.RequestTimeoutSec * float64(time.Second)),
			MaxRetries:     cfg.Engine.MaxRetries,
			BackoffBase:    cfg.Engine.BackoffBase,
			ClientID:       clientID,
			Metrics:        deps.Metrics,
		})
		if err != nil {
			return nil, fmt.Errorf("creating dispatch client: %w", err)
		}
		dispatcher = client
	}

	seeds, err := naming.NewSeedSource(cfg.SeedRange[0], cfg.SeedRange[1], deps.Rand)
	if err != nil {
		return nil, fmt.Errorf("creating seed source: %w", err)
	}

	var (
		sinks   []recorder.OutcomeSink
		closers []io.Closer
	)
	defer func() {
		for _, c := range closers {
			c.Close()
		}
	}()
	if cfg.Report.AuditLog != "" {
		audit, err := recorder.OpenAuditLog(cfg.Report.AuditLog)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, audit)
		closers = append(closers, audit)
	}
	if cfg.Report.LedgerPath != "" {
		l, err := ledger.Open(ctx, cfg.Report.LedgerPath)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, l)
		closers = append(closers, l)
	}

	var reportPath string
	if cfg.Report.Dir != "" {
		reportPath = filepath.Join(cfg.Report.Dir, fmt.Sprintf("processing_report_%s.%s", dateStamp, cfg.Report.Format))
	}

	var store recorder.Snapshotter
	if plan.Store != nil {
		store = plan.Store
	}
	rec := recorder.New(plan.Tasks, recorder.Options{
		Store:      store,
		ReportPath: reportPath,
		Sinks:      sinks,
		Metrics:    deps.Metrics,
	})

	runner := NewBatchRunner(RunnerOptions{
		Processor: &DefaultTaskProcessor{
			Binder:     plan.Binder,
			Dispatcher: dispatcher,
			Seeds:      seeds,
			Validator:  plan.Validator,
			Clock:      clk,
			Output:     cfg.Output,
			DateStamp:  dateStamp,
			RunID:      runID,
		},
		Recorder:        rec,
		Clock:           clk,
		CheckpointEvery: cfg.CheckpointEvery,
		Workers:         cfg.Workers,
		SkipCompleted:   cfg.SkipCompleted,
		RunID:           runID,
		Name:            name,
		DateStamp:       dateStamp,
	})

	slog.Info("batch started", "run_id", runID, "name", name, "tasks", len(plan.Tasks), "workers", cfg.Workers)
	report := runner.Run(ctx, plan.Template)
	slog.Info("batch finished",
		"run_id", runID,
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"pending", report.Pending,
		"cancelled", report.Cancelled,
		"duration_sec", report.TotalDurationSec)
	return report, nil
}

// RunFromConfig loads a batch config file and executes the batch.
func RunFromConfig(ctx context.Context, configPath string) (*models.BatchReport, error) {
	cfg, err := config.LoadBatchConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading batch config: %w", err)
	}

	plan, err := Prepare(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return Execute(ctx, plan, Deps{})
}

// LastRun reads the most recent run's outcomes from the ledger at path. A
// missing ledger yields an empty run ID and is not created.
func LastRun(ctx context.Context, path string) (string, []models.Outcome, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return "", nil, nil
	}
	l, err := ledger.Open(ctx, path)
	if err != nil {
		return "", nil, err
	}
	defer l.Close()

	runID, err := l.LastRunID(ctx)
	if err != nil || runID == "" {
		return "", nil, err
	}
	outcomes, err := l.Outcomes(ctx, runID)
	if err != nil {
		return "", nil, err
	}
	return runID, outcomes, nil
}
