package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jengzang/region-insights-go/internal/config"
	"github.com/jengzang/region-insights-go/internal/loader"
	"github.com/jengzang/region-insights-go/internal/logger"
	"github.com/jengzang/region-insights-go/internal/normalize"
	"github.com/jengzang/region-insights-go/internal/observability"
	"github.com/jengzang/region-insights-go/internal/pipeline"
	"github.com/jengzang/region-insights-go/internal/spatial"
)

// app holds what every subcommand builds from the configuration
type app struct {
	cfg          *config.Config
	logger       *slog.Logger
	metrics      *observability.Metrics
	normalizer   *normalize.Normalizer
	engine       *pipeline.Engine
	skipAnalysis bool
}

// bindInputFlags registers the flags shared by analyze and serve
func bindInputFlags(cmd *cobra.Command) {
	cmd.Flags().String("data-dir", "", "directory holding enrolment/, demographic/ and biometric/ CSVs (env DATA_DIR)")
	cmd.Flags().String("boundaries", "", "GeoJSON boundary file (env BOUNDARY_PATH)")
	cmd.Flags().String("level", "", "boundary level: state or district (env BOUNDARY_LEVEL)")
	cmd.Flags().Bool("no-analysis", false, "skip the pattern analyzers")
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if v, _ := cmd.Flags().GetString("data-dir"); v != "" {
		cfg.DataDir = v
	}
	if v, _ := cmd.Flags().GetString("boundaries"); v != "" {
		cfg.BoundaryPath = v
	}
	if v, _ := cmd.Flags().GetString("level"); v != "" {
		if _, err := spatial.ParseLevel(v); err != nil {
			return nil, err
		}
		cfg.BoundaryLevel = v
	}
	skipAnalysis, _ := cmd.Flags().GetBool("no-analysis")

	log := logger.New(cfg.LogLevel, cfg.LogFormat, nil)
	slog.SetDefault(log)

	g, err := cfg.Gazetteer()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: log, metrics: observability.New(), skipAnalysis: skipAnalysis}
	if err := a.build(g); err != nil {
		return nil, err
	}
	return a, nil
}

// build (re)creates the normalizer and the engine over g
func (a *app) build(g *normalize.Gazetteer) error {
	n, err := normalize.New(g, a.cfg.NormalizeOptions())
	if err != nil {
		return err
	}
	engine, err := pipeline.NewEngine(pipeline.Config{
		Normalizer: n,
		Thresholds: a.cfg.Thresholds(),
		Matcher:    a.cfg.MatcherOptions(),
		Workers:    a.cfg.Workers,
		Analyze:    !a.skipAnalysis,
	}, pipeline.WithMetrics(a.metrics), pipeline.WithLogger(a.logger))
	if err != nil {
		return err
	}
	a.normalizer, a.engine = n, engine
	return nil
}

// loadBoundaries reads the configured boundary file and lets open states
// adopt its district names before anything is merged
func (a *app) loadBoundaries() ([]spatial.BoundaryRecord, error) {
	if a.cfg.BoundaryPath == "" {
		return nil, nil
	}
	boundaries, err := loader.LoadBoundaries(a.cfg.BoundaryPath, loader.DefaultPropertyKeys(), a.logger)
	if err != nil {
		return nil, err
	}
	g, adopted, err := spatial.AdoptBoundaryDistricts(a.normalizer, boundaries)
	if err != nil {
		return nil, err
	}
	if adopted > 0 {
		a.logger.Info("adopted boundary district names for open states", "count", adopted)
		if err := a.build(g); err != nil {
			return nil, err
		}
	}
	return boundaries, nil
}

// run loads the dataset, executes one run and attaches boundaries when configured.
// The returned boundaries are nil when no boundary file is set.
func (a *app) run(ctx context.Context) (*pipeline.Result, []spatial.BoundaryRecord, error) {
	boundaries, err := a.loadBoundaries()
	if err != nil {
		return nil, nil, err
	}

	ds, err := loader.OpenDir(a.cfg.DataDir, a.logger)
	if err != nil {
		return nil, nil, err
	}
	a.logger.Info("dataset opened", "dir", a.cfg.DataDir, "files", ds.Files())

	res, err := a.engine.Run(ctx, pipeline.Sources{
		Enrolment:   ds.Enrolment.Records(),
		Demographic: ds.Demographic.Records(),
		Biometric:   ds.Biometric.Records(),
	})
	if err != nil {
		return nil, nil, err
	}
	if err := ds.Err(); err != nil {
		// Unreadable files are skipped, the run is still usable
		a.logger.Warn("some source files could not be read", "error", err)
	}

	if boundaries == nil {
		return res, nil, nil
	}
	level := spatial.Level(a.cfg.BoundaryLevel)
	match, err := a.engine.AttachBoundaries(ctx, res, boundaries, level)
	if err != nil {
		return nil, nil, err
	}
	if match.Degraded {
		a.logger.Warn("boundary coverage below floor, maps fall back to tables",
			"level", level, "coverage", match.Coverage, "floor", match.Floor)
	}
	return res, boundaries, nil
}
