package pipeline

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jengzang/region-insights-go/internal/analysis"
	"github.com/jengzang/region-insights-go/internal/anomaly"
	"github.com/jengzang/region-insights-go/internal/merge"
	"github.com/jengzang/region-insights-go/internal/metrics"
	"github.com/jengzang/region-insights-go/internal/models"
	"github.com/jengzang/region-insights-go/internal/normalize"
	"github.com/jengzang/region-insights-go/internal/observability"
	"github.com/jengzang/region-insights-go/internal/spatial"
)

const tracerName = "github.com/jengzang/region-insights-go/internal/pipeline"

// Stage names, used for spans, log lines and the duration histogram
const (
	StageMerge    = "merge"
	StageMetrics  = "metrics"
	StageAnomaly  = "anomaly"
	StageAnalysis = "analysis"
	StageGeo      = "geo"
)

// Sources are the three raw record families. A nil source is read as empty.
type Sources struct {
	Enrolment   iter.Seq[models.RawRecord]
	Demographic iter.Seq[models.RawRecord]
	Biometric   iter.Seq[models.RawRecord]
}

// Result is everything one run produces
type Result struct {
	RunID       string
	StartedAt   time.Time
	CompletedAt time.Time

	Diagnostics merge.Diagnostics
	Merged      *merge.Table
	Metrics     *metrics.Table
	Anomalies   *anomaly.Result
	// Patterns holds analyzer reports keyed by analyzer name; empty when analysis is disabled
	Patterns map[string]analysis.Report
	// Coverage holds boundary matches per level, filled by AttachBoundaries
	Coverage map[spatial.Level]*spatial.MatchResult
}

// Engine runs merge, metrics and anomaly classification in order
type Engine struct {
	merger     *merge.Merger
	classifier *anomaly.Engine
	matcher    *spatial.Matcher
	analyze    bool

	metrics *observability.Metrics
	tracer  trace.Tracer
	logger  *slog.Logger
}

// Config carries the tuning for each stage
type Config struct {
	Normalizer *normalize.Normalizer
	Thresholds anomaly.Thresholds
	Matcher    spatial.MatcherOptions
	Workers    int
	// Analyze runs every registered analyzer after classification
	Analyze bool
}

// Option customizes an Engine
type Option func(*Engine)

// WithMetrics records stage durations and run outcomes
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithTracer overrides the tracer taken from the global provider
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

// NewEngine wires the stages
func NewEngine(cfg Config, opts ...Option) (*Engine, error) {
	if cfg.Normalizer == nil {
		return nil, fmt.Errorf("failed to create pipeline: normalizer is required")
	}
	e := &Engine{
		analyze: cfg.Analyze,
		tracer:  otel.Tracer(tracerName),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.merger = merge.NewMerger(cfg.Normalizer, e.logger)
	e.classifier = anomaly.NewEngine(cfg.Thresholds, anomaly.WithWorkers(cfg.Workers), anomaly.WithLogger(e.logger))
	e.matcher = spatial.NewMatcher(cfg.Normalizer, cfg.Matcher, e.logger)
	e.logger = e.logger.With("component", "pipeline")
	return e, nil
}

// Run executes one reconciliation run. Cancellation is checked between stages.
func (e *Engine) Run(ctx context.Context, src Sources) (*Result, error) {
	res := &Result{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Coverage:  make(map[spatial.Level]*spatial.MatchResult),
	}
	ctx, span := e.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(attribute.String("run.id", res.RunID)))
	defer span.End()
	log := e.logger.With("run_id", res.RunID)

	err := e.stage(ctx, log, StageMerge, func(context.Context) error {
		res.Merged, res.Diagnostics = e.merger.Merge(src.Enrolment, src.Demographic, src.Biometric)
		return nil
	})
	if err != nil {
		return nil, e.fail(span, err)
	}
	e.recordDiagnostics(res.Diagnostics)

	err = e.stage(ctx, log, StageMetrics, func(context.Context) error {
		var err error
		res.Metrics, err = metrics.Compute(res.Merged)
		return err
	})
	if err != nil {
		return nil, e.fail(span, err)
	}

	err = e.stage(ctx, log, StageAnomaly, func(context.Context) error {
		var err error
		res.Anomalies, err = e.classifier.Classify(res.Metrics)
		return err
	})
	if err != nil {
		return nil, e.fail(span, err)
	}
	e.recordAnomalies(res.Anomalies.Summary())

	if e.analyze {
		err = e.stage(ctx, log, StageAnalysis, func(ctx context.Context) error {
			var err error
			res.Patterns, err = analysis.RunAll(ctx, res.Metrics, e.logger)
			return err
		})
		if err != nil {
			return nil, e.fail(span, err)
		}
	}

	res.CompletedAt = time.Now().UTC()
	summary := res.Anomalies.Summary()
	span.SetAttributes(
		attribute.Int("rows", res.Metrics.Len()),
		attribute.Int("anomalies.critical", summary.Critical),
	)
	log.Info("run complete",
		"rows", res.Metrics.Len(),
		"skipped", res.Diagnostics.TotalSkipped(),
		"unresolved_states", res.Diagnostics.UnresolvedStates,
		"unresolved_districts", res.Diagnostics.UnresolvedDistricts,
		"critical", summary.Critical,
		"warning", summary.Warning,
		"duration", res.CompletedAt.Sub(res.StartedAt),
	)
	return res, nil
}

// AttachBoundaries matches the run's rows to boundaries at a level and stores the
// result on res. Degraded coverage is not an error.
func (e *Engine) AttachBoundaries(ctx context.Context, res *Result, boundaries []spatial.BoundaryRecord, level spatial.Level) (*spatial.MatchResult, error) {
	if res == nil || !res.Metrics.Computed() {
		return nil, fmt.Errorf("failed to attach boundaries: %w", metrics.ErrNilTable)
	}
	var match *spatial.MatchResult
	err := e.stage(ctx, e.logger.With("run_id", res.RunID), StageGeo, func(context.Context) error {
		var err error
		match, err = e.matcher.Attach(res.Metrics.Rows(), boundaries, level)
		return err
	})
	if err != nil {
		return nil, err
	}
	if res.Coverage == nil {
		res.Coverage = make(map[spatial.Level]*spatial.MatchResult)
	}
	res.Coverage[level] = match
	e.metrics.SetCoverage(string(level), match.Coverage)
	return match, nil
}

// Index builds a point lookup index over boundaries at a level
func (e *Engine) Index(boundaries []spatial.BoundaryRecord, level spatial.Level) (*spatial.Index, error) {
	return e.matcher.Index(boundaries, level)
}

func (e *Engine) stage(ctx context.Context, log *slog.Logger, name string, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s stage: %w", name, err)
	}
	ctx, span := e.tracer.Start(ctx, "pipeline."+name)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)
	e.metrics.ObserveStage(name, elapsed)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error("stage failed", "stage", name, "duration", elapsed, "error", err)
		return fmt.Errorf("%s stage: %w", name, err)
	}
	log.Info("stage complete", "stage", name, "duration", elapsed)
	return nil
}

func (e *Engine) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func (e *Engine) recordDiagnostics(d merge.Diagnostics) {
	for _, c := range models.Categories {
		e.metrics.AddIngested(string(c), d.Ingested[c])
		e.metrics.AddSkipped(string(c), d.Skipped[c])
	}
	e.metrics.AddUnresolved("state", d.UnresolvedStates)
	e.metrics.AddUnresolved("district", d.UnresolvedDistricts)
}

func (e *Engine) recordAnomalies(s anomaly.Summary) {
	e.metrics.SetAnomalies(map[string]int{
		string(models.SeverityNormal):   s.Normal,
		string(models.SeverityWarning):  s.Warning,
		string(models.SeverityCritical): s.Critical,
	})
}
