package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spachava753/promptbatch/internal/config"
	"github.com/spachava753/promptbatch/internal/dispatch"
	"github.com/spachava753/promptbatch/internal/executor"
	"github.com/spachava753/promptbatch/internal/metrics"
	"github.com/spachava753/promptbatch/internal/models"
)

var errTasksFailed = errors.New("batch finished with failed or unprocessed tasks")

var rootCmd = &cobra.Command{
	Use:   "promptbatch",
	Short: "Dispatch a templated workflow once per task row",
	Long: `promptbatch fills a workflow template with values from each task of a
table or list source, submits it to a remote engine and records the result
back into the source.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errTasksFailed) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("PROMPTBATCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "batch.yaml", "batch config file (.yaml or .toml)")
	flags.String("log-level", "", "log level: debug, info, warn or error")
	flags.String("endpoint", "", "engine endpoint (overrides config)")
	flags.String("source", "", "tabular task source (overrides config)")
	flags.Int("workers", 0, "concurrent workers (overrides config)")
	flags.Bool("skip-completed", false, "leave tasks already marked SUCCESS untouched")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address")
	for _, name := range []string{"config", "log-level", "endpoint", "source", "workers", "skip-completed", "metrics-addr"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(validateCmd())
}

// loadConfig reads the config file and applies flag and environment overrides.
func loadConfig() (models.BatchConfig, error) {
	cfg, err := config.LoadBatchConfig(viper.GetString("config"))
	if err != nil {
		return cfg, err
	}

	if v := viper.GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if v := viper.GetString("endpoint"); v != "" {
		cfg.Engine.Endpoint = v
	}
	if v := viper.GetString("source"); v != "" {
		cfg.Source.Path = v
		cfg.Source.CategoriesPath = ""
		cfg.Source.ContentsPath = ""
	}
	if v := viper.GetInt("workers"); v > 0 {
		cfg.Workers = v
	}
	if viper.GetBool("skip-completed") {
		cfg.SkipCompleted = true
	}
	if v := viper.GetString("metrics-addr"); v != "" {
		cfg.MetricsAddr = v
	}

	setupLogging(cfg.LogLevel)
	return cfg, nil
}

func setupLogging(level string) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the batch",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			plan, err := executor.Prepare(ctx, cfg)
			if err != nil {
				return err
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			m := metrics.New(reg)

			metricsCtx, stopMetrics := context.WithCancel(context.Background())
			defer stopMetrics()
			if cfg.MetricsAddr != "" {
				go func() {
					if err := metrics.Serve(metricsCtx, cfg.MetricsAddr, reg); err != nil {
						slog.Error("metrics server failed", "error", err)
					}
				}()
			}

			report, err := executor.Execute(ctx, plan, executor.Deps{Metrics: m})
			if err != nil {
				return err
			}

			if report.Cancelled {
				slog.Info("interrupted, progress saved", "pending", report.Pending)
			}
			printSummary(report)
			if report.Failed > 0 || report.Pending > 0 || report.Cancelled {
				return errTasksFailed
			}
			return nil
		},
	}
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check config, template, bindings and task source without dispatching",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			plan, err := executor.Prepare(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Role", "Node", "Type", "Duplicates"})
			dups := plan.Index.Duplicates()
			for _, role := range plan.Index.Roles() {
				id, _ := plan.Index.Resolve(role)
				n, _ := plan.Template.Node(id)
				tw.AppendRow(table.Row{role, id, n.ClassType, strings.Join(dups[role], ", ")})
			}
			tw.Render()

			var done int
			for _, t := range plan.Tasks {
				if t.Done() {
					done++
				}
			}
			fmt.Printf("\nTemplate: %s (%d nodes)\n", cfg.WorkflowPath, plan.Template.Len())
			fmt.Printf("Tasks: %d (%d already complete)\n", len(plan.Tasks), done)
			fmt.Printf("Worst-case backoff per task: %v\n", dispatch.TotalWait(cfg.Engine.BackoffBase, cfg.Engine.MaxRetries))

			if cfg.Report.LedgerPath == "" {
				return nil
			}
			runID, outcomes, err := executor.LastRun(cmd.Context(), cfg.Report.LedgerPath)
			if err != nil {
				return err
			}
			if runID != "" {
				var failed int
				for _, o := range outcomes {
					if !o.Succeeded() {
						failed++
					}
				}
				fmt.Printf("Last run: %s (%d outcomes, %d failed)\n", runID, len(outcomes), failed)
			}
			return nil
		},
	}
}

func printSummary(r *models.BatchReport) {
	fmt.Printf("\nBatch: %s (run %s)\n", r.Name, r.RunID)

	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Category", "Total", "Succeeded", "Failed"})
	categories := make([]string, 0, len(r.Categories))
	for c := range r.Categories {
		categories = append(categories, c)
	}
	slices.Sort(categories)
	for _, c := range categories {
		cs := r.Categories[c]
		tw.AppendRow(table.Row{c, cs.Total, cs.Succeeded, cs.Failed})
	}
	tw.AppendFooter(table.Row{"All", r.Total, r.Succeeded, r.Failed})
	tw.Render()

	fmt.Printf("Pending: %d  Skipped: %d  Checkpoints: %d\n", r.Pending, r.Skipped, r.CheckpointWrites)
	fmt.Printf("Duration: %.2fs\n", r.TotalDurationSec)
	if r.Cancelled {
		fmt.Println("Cancelled before all tasks were processed")
	}
	for _, e := range r.PersistErrors {
		fmt.Println("Persistence error:", e)
	}
}
