package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the batch collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	TasksTotal *prometheus.CounterVec

	DispatchAttemptsTotal *prometheus.CounterVec

	// Buckets: 50ms .. ~100s
	DispatchDurationSeconds prometheus.Histogram

	CheckpointsTotal *prometheus.CounterVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TasksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "promptbatch_tasks_total",
				Help: "Tasks finished, by final status",
			},
			[]string{"status"}, // SUCCESS, FAILED
		),
		DispatchAttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "promptbatch_dispatch_attempts_total",
				Help: "Submissions to the engine, by result",
			},
			[]string{"result"}, // accepted, rejected, error
		),
		DispatchDurationSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "promptbatch_dispatch_duration_seconds",
				Help:    "Duration of a single engine submission",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
			},
		),
		CheckpointsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "promptbatch_checkpoints_total",
				Help: "Snapshot writes of the task collection, by result",
			},
			[]string{"result"}, // ok, error
		),
	}
}

// ObserveAttempt records one engine submission.
func (m *Metrics) ObserveAttempt(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.DispatchAttemptsTotal.WithLabelValues(result).Inc()
	m.DispatchDurationSeconds.Observe(d.Seconds())
}

// TaskFinished records a task's final status.
func (m *Metrics) TaskFinished(status string) {
	if m == nil {
		return
	}
	m.TasksTotal.WithLabelValues(status).Inc()
}

// CheckpointWritten records a snapshot write.
func (m *Metrics) CheckpointWritten(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.CheckpointsTotal.WithLabelValues(result).Inc()
}

// Serve exposes g on addr under /metrics until ctx is done.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
