package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jengzang/region-insights-go/internal/metrics"
)

// ErrUnknownAnalyzer is returned when no analyzer is registered under a name
var ErrUnknownAnalyzer = errors.New("unknown analyzer")

// Analyzer is the interface that all pattern analyzers must implement
type Analyzer interface {
	// Analyze derives a report from computed metrics
	Analyze(ctx context.Context, t *metrics.Table) (Report, error)

	// GetName returns the name of the analyzer
	GetName() string
}

// Report is the output of one analyzer
type Report interface {
	// Name returns the analyzer that produced the report
	Name() string
	// Summary counts regions per label
	Summary() map[string]int
}

// BaseAnalyzer provides common functionality for all analyzers
type BaseAnalyzer struct {
	Name   string
	Logger *slog.Logger
}

// NewBaseAnalyzer creates a new base analyzer
func NewBaseAnalyzer(name string, logger *slog.Logger) *BaseAnalyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &BaseAnalyzer{
		Name:   name,
		Logger: logger.With("component", "analysis", "analyzer", name),
	}
}

// GetName returns the analyzer name
func (a *BaseAnalyzer) GetName() string {
	return a.Name
}

// AnalyzerFactory is a function that creates an analyzer instance
type AnalyzerFactory func(logger *slog.Logger) Analyzer

var (
	registryMu sync.RWMutex
	// AnalyzerRegistry maps analyzer names to factories
	AnalyzerRegistry = make(map[string]AnalyzerFactory)
)

// RegisterAnalyzer registers an analyzer factory under a name
func RegisterAnalyzer(name string, factory AnalyzerFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	AnalyzerRegistry[name] = factory
}

// GetAnalyzer creates the analyzer registered under name
func GetAnalyzer(name string, logger *slog.Logger) (Analyzer, error) {
	registryMu.RLock()
	factory, ok := AnalyzerRegistry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAnalyzer, name)
	}
	return factory(logger), nil
}

// Names lists registered analyzers in sorted order
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return slices.Sorted(maps.Keys(AnalyzerRegistry))
}

// RunAll runs every registered analyzer concurrently over the same table.
// The first failure cancels the rest.
func RunAll(ctx context.Context, t *metrics.Table, logger *slog.Logger) (map[string]Report, error) {
	if !t.Computed() {
		return nil, fmt.Errorf("failed to run analyzers: %w", metrics.ErrNilTable)
	}

	names := Names()
	reports := make([]Report, len(names))

	g, ctx := errgroup.WithContext(ctx)
	for i, name := range names {
		g.Go(func() error {
			a, err := GetAnalyzer(name, logger)
			if err != nil {
				return err
			}
			report, err := a.Analyze(ctx, t)
			if err != nil {
				return fmt.Errorf("analyzer %s: %w", name, err)
			}
			reports[i] = report
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]Report, len(names))
	for i, name := range names {
		out[name] = reports[i]
	}
	return out, nil
}
