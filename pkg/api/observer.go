package api

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Observer receives callbacks from the workflow engine for logging and
// metrics.
//
// Implementations should be fast and non-blocking; heavy work should be
// done asynchronously so as not to delay workflow execution.
type Observer interface {
	// OnRunStart is called once when a run begins, before the first stage.
	OnRunStart(ctx context.Context, run *Run)

	// OnRunCompleted is called when a run reaches END.
	OnRunCompleted(ctx context.Context, run *Run)

	// OnRunFailed is called when a run halts in the ERROR state.
	OnRunFailed(ctx context.Context, run *Run, err error)

	// OnStageStart is called before each stage invocation.
	// attempt is 1-based and counts retries of the same stage.
	OnStageStart(ctx context.Context, run *Run, stage string, attempt int)

	// OnStageCompleted is called after each stage invocation, for all
	// result statuses.
	OnStageCompleted(ctx context.Context, run *Run, stage string, attempt int, status Status, duration time.Duration)

	// OnStageSkipped is called when resumption skips an already-committed
	// stage.
	OnStageSkipped(ctx context.Context, run *Run, stage string)

	// OnRetrieval is called after the context assembler resolves a stage's
	// retrieval query.
	OnRetrieval(ctx context.Context, run *Run, stage string, q RetrievalQuery, hits int)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnRunStart(ctx context.Context, run *Run)                  {}
func (NoopObserver) OnRunCompleted(ctx context.Context, run *Run)              {}
func (NoopObserver) OnRunFailed(ctx context.Context, run *Run, err error)      {}
func (NoopObserver) OnStageStart(ctx context.Context, run *Run, stage string, attempt int) {
}
func (NoopObserver) OnStageCompleted(ctx context.Context, run *Run, stage string, attempt int, status Status, d time.Duration) {
}
func (NoopObserver) OnStageSkipped(ctx context.Context, run *Run, stage string) {}
func (NoopObserver) OnRetrieval(ctx context.Context, run *Run, stage string, q RetrievalQuery, hits int) {
}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnRunStart(ctx context.Context, run *Run) {
	for _, o := range c.observers {
		o.OnRunStart(ctx, run)
	}
}

func (c *CompositeObserver) OnRunCompleted(ctx context.Context, run *Run) {
	for _, o := range c.observers {
		o.OnRunCompleted(ctx, run)
	}
}

func (c *CompositeObserver) OnRunFailed(ctx context.Context, run *Run, err error) {
	for _, o := range c.observers {
		o.OnRunFailed(ctx, run, err)
	}
}

func (c *CompositeObserver) OnStageStart(ctx context.Context, run *Run, stage string, attempt int) {
	for _, o := range c.observers {
		o.OnStageStart(ctx, run, stage, attempt)
	}
}

func (c *CompositeObserver) OnStageCompleted(ctx context.Context, run *Run, stage string, attempt int, status Status, d time.Duration) {
	for _, o := range c.observers {
		o.OnStageCompleted(ctx, run, stage, attempt, status, d)
	}
}

func (c *CompositeObserver) OnStageSkipped(ctx context.Context, run *Run, stage string) {
	for _, o := range c.observers {
		o.OnStageSkipped(ctx, run, stage)
	}
}

func (c *CompositeObserver) OnRetrieval(ctx context.Context, run *Run, stage string, q RetrievalQuery, hits int) {
	for _, o := range c.observers {
		o.OnRetrieval(ctx, run, stage, q, hits)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs run / stage lifecycle
// events using the provided slog.Logger. If logger is nil, slog.Default()
// is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnRunStart(ctx context.Context, run *Run) {
	o.Logger.InfoContext(ctx, "run_start",
		slog.String("graph", run.Graph),
		slog.String("run_id", run.ID),
		slog.Bool("resumed", run.Resumed),
	)
}

func (o *LoggingObserver) OnRunCompleted(ctx context.Context, run *Run) {
	o.Logger.InfoContext(ctx, "run_completed",
		slog.String("graph", run.Graph),
		slog.String("run_id", run.ID),
		slog.Int("invocations", run.Invocations),
	)
}

func (o *LoggingObserver) OnRunFailed(ctx context.Context, run *Run, err error) {
	o.Logger.ErrorContext(ctx, "run_failed",
		slog.String("graph", run.Graph),
		slog.String("run_id", run.ID),
		slog.String("node", run.Node),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnStageStart(ctx context.Context, run *Run, stage string, attempt int) {
	o.Logger.DebugContext(ctx, "stage_start",
		slog.String("run_id", run.ID),
		slog.String("stage", stage),
		slog.Int("attempt", attempt),
	)
}

func (o *LoggingObserver) OnStageCompleted(ctx context.Context, run *Run, stage string, attempt int, status Status, d time.Duration) {
	level := slog.LevelDebug
	if status == StatusFatal {
		level = slog.LevelError
	} else if status == StatusRetryable {
		level = slog.LevelWarn
	}
	o.Logger.Log(ctx, level, "stage_completed",
		slog.String("run_id", run.ID),
		slog.String("stage", stage),
		slog.Int("attempt", attempt),
		slog.String("status", string(status)),
		slog.Duration("duration", d),
	)
}

func (o *LoggingObserver) OnStageSkipped(ctx context.Context, run *Run, stage string) {
	o.Logger.InfoContext(ctx, "stage_skipped",
		slog.String("run_id", run.ID),
		slog.String("stage", stage),
	)
}

func (o *LoggingObserver) OnRetrieval(ctx context.Context, run *Run, stage string, q RetrievalQuery, hits int) {
	o.Logger.DebugContext(ctx, "retrieval",
		slog.String("run_id", run.ID),
		slog.String("stage", stage),
		slog.String("mode", string(q.Mode)),
		slog.Int("top_k", q.TopK),
		slog.Int("hits", hits),
	)
}

// BasicMetrics collects simple counters and aggregate stage durations.
// It implements Observer, and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	runsStarted   atomic.Int64
	runsCompleted atomic.Int64
	runsFailed    atomic.Int64
	stagesSkipped atomic.Int64
	retrievals    atomic.Int64

	stagesCompleted    atomic.Int64
	totalStageDuration atomic.Int64 // nanoseconds
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	RunsStarted   int64
	RunsCompleted int64
	RunsFailed    int64
	StagesSkipped int64
	Retrievals    int64

	StagesCompleted  int64
	AvgStageDuration time.Duration
}

func (m *BasicMetrics) OnRunStart(ctx context.Context, run *Run) {
	m.runsStarted.Add(1)
}

func (m *BasicMetrics) OnRunCompleted(ctx context.Context, run *Run) {
	m.runsCompleted.Add(1)
}

func (m *BasicMetrics) OnRunFailed(ctx context.Context, run *Run, err error) {
	m.runsFailed.Add(1)
}

func (m *BasicMetrics) OnStageSkipped(ctx context.Context, run *Run, stage string) {
	m.stagesSkipped.Add(1)
}

func (m *BasicMetrics) OnRetrieval(ctx context.Context, run *Run, stage string, q RetrievalQuery, hits int) {
	m.retrievals.Add(1)
}

func (m *BasicMetrics) OnStageCompleted(ctx context.Context, run *Run, stage string, attempt int, status Status, d time.Duration) {
	// Only count successful stages for average duration.
	if status == StatusSuccess {
		m.stagesCompleted.Add(1)
		m.totalStageDuration.Add(d.Nanoseconds())
	}
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	stages := m.stagesCompleted.Load()
	totalNs := m.totalStageDuration.Load()

	var avg time.Duration
	if stages > 0 {
		avg = time.Duration(totalNs / stages)
	}

	return BasicMetricsSnapshot{
		RunsStarted:      m.runsStarted.Load(),
		RunsCompleted:    m.runsCompleted.Load(),
		RunsFailed:       m.runsFailed.Load(),
		StagesSkipped:    m.stagesSkipped.Load(),
		Retrievals:       m.retrievals.Load(),
		StagesCompleted:  stages,
		AvgStageDuration: avg,
	}
}
