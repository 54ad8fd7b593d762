package anomaly

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/jengzang/region-insights-go/internal/metrics"
	"github.com/jengzang/region-insights-go/internal/models"
	"github.com/jengzang/region-insights-go/internal/stats"
)

// ErrMetricsNotComputed is returned when Classify runs before metrics exist
var ErrMetricsNotComputed = errors.New("metrics table has not been computed")

// Engine classifies metrics rows against their state cohort
type Engine struct {
	thresholds Thresholds
	rules      []Rule
	workers    int
	logger     *slog.Logger
}

// Option customizes an Engine
type Option func(*Engine)

// WithRules replaces the ordered rule list
func WithRules(rules []Rule) Option {
	return func(e *Engine) { e.rules = rules }
}

// WithWorkers bounds the goroutines used for cohort statistics
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine creates an engine with the default rule order
func NewEngine(th Thresholds, opts ...Option) *Engine {
	e := &Engine{
		thresholds: th,
		rules:      DefaultRules(),
		workers:    runtime.GOMAXPROCS(0),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "anomaly")
	return e
}

// Classify runs Engine.Classify with default thresholds
func Classify(t *metrics.Table) (*Result, error) {
	return NewEngine(DefaultThresholds()).Classify(t)
}

type cohortKey struct {
	state  string
	period models.Period
}

// Classify labels and scores every row. Data problems never fail: degenerate
// cohorts are reported on the result and their rows still get a record.
func (e *Engine) Classify(t *metrics.Table) (*Result, error) {
	if !t.Computed() {
		return nil, fmt.Errorf("failed to classify anomalies: %w", ErrMetricsNotComputed)
	}

	rows := t.Rows()
	baselines, degenerate := e.baselines(rows)

	maxDeviation := 0.0
	for i, r := range rows {
		maxDeviation = math.Max(maxDeviation, math.Abs(r.UpdateRatio-baselines[i].Mean))
	}

	records := make([]models.AnomalyRecord, len(rows))
	for i, r := range rows {
		in := Input{Row: r, Baseline: baselines[i], Thresholds: e.thresholds}
		rec := models.AnomalyRecord{
			Key:      r.Key,
			Severity: models.SeverityNormal,
			Rule:     RuleNormal,
			Score:    Score(r, baselines[i].Mean, maxDeviation, e.thresholds),
		}
		for _, rule := range e.rules {
			if sev, ok := rule.Match(in); ok {
				rec.Severity, rec.Rule = sev, rule.ID
				break
			}
		}
		if !baselines[i].Statistical {
			rec.Note = degenerateNote(r.Key, baselines[i], e.thresholds)
		}
		records[i] = rec
	}

	res := newResult(records, degenerate)
	summary := res.Summary()
	e.logger.Info("classified regions",
		"rows", summary.Total,
		"critical", summary.Critical,
		"warning", summary.Warning,
		"degenerate_cohorts", len(degenerate),
	)
	return res, nil
}

func degenerateNote(key models.CanonicalKey, b Baseline, th Thresholds) string {
	if !key.Resolved() {
		return "unresolved state: cohort rules skipped"
	}
	return fmt.Sprintf("cohort of %d below minimum %d: cohort rules skipped", b.Peers+1, th.MinCohortSize)
}

// baselines computes each row's leave-one-out peer statistics, one cohort per task.
// Rows outside a usable cohort fall back to the mean of their period.
func (e *Engine) baselines(rows []models.RegionMetricsRow) ([]Baseline, []Cohort) {
	cohorts := make(map[cohortKey][]int)
	periodRatios := make(map[models.Period][]float64)
	for i, r := range rows {
		periodRatios[r.Key.Period] = append(periodRatios[r.Key.Period], r.UpdateRatio)
		if r.Key.Resolved() {
			k := cohortKey{r.Key.State, r.Key.Period}
			cohorts[k] = append(cohorts[k], i)
		}
	}

	out := make([]Baseline, len(rows))
	for i, r := range rows {
		out[i] = Baseline{Mean: stats.Mean(periodRatios[r.Key.Period])}
	}

	var degenerate []Cohort
	var g errgroup.Group
	g.SetLimit(e.workers)
	for k, members := range cohorts {
		if len(members) < e.thresholds.MinCohortSize {
			degenerate = append(degenerate, Cohort{State: k.state, Period: k.period, Size: len(members)})
			for _, i := range members {
				out[i].Peers = len(members) - 1
			}
			continue
		}
		// each task writes only its own members' slots
		g.Go(func() error {
			peerBaselines(rows, members, out)
			return nil
		})
	}
	_ = g.Wait()

	sortCohorts(degenerate)
	return out, degenerate
}

func peerBaselines(rows []models.RegionMetricsRow, members []int, out []Baseline) {
	peers := make([]float64, 0, len(members)-1)
	for _, i := range members {
		peers = peers[:0]
		for _, j := range members {
			if j != i {
				peers = append(peers, rows[j].UpdateRatio)
			}
		}
		out[i] = Baseline{
			Mean:        stats.Mean(peers),
			StdDev:      stats.Finite(stats.StdDev(peers)),
			Peers:       len(peers),
			Statistical: true,
		}
	}
}
