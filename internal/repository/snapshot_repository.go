package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jengzang/region-insights-go/internal/database"
	"github.com/jengzang/region-insights-go/internal/merge"
	"github.com/jengzang/region-insights-go/internal/pipeline"
)

var (
	// ErrNoSnapshot is returned when no run has been stored yet
	ErrNoSnapshot = errors.New("no snapshot stored")
	// ErrNotFound is returned when a region, level or report is absent from a run
	ErrNotFound = errors.New("not found")
)

// RunInfo describes a stored run
type RunInfo struct {
	ID                  string            `json:"run_id"`
	StartedAt           time.Time         `json:"started_at"`
	CompletedAt         time.Time         `json:"completed_at"`
	Rows                int               `json:"rows"`
	Ingested            int               `json:"ingested"`
	Skipped             int               `json:"skipped"`
	UnresolvedStates    int               `json:"unresolved_states"`
	UnresolvedDistricts int               `json:"unresolved_districts"`
	Diagnostics         merge.Diagnostics `json:"diagnostics"`
}

// SnapshotRepository persists pipeline runs and answers read queries against them
type SnapshotRepository struct {
	db *sql.DB
}

// NewSnapshotRepository creates a new snapshot repository
func NewSnapshotRepository(db *sql.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// SaveRun writes a run and everything it produced in one transaction
func (r *SnapshotRepository) SaveRun(ctx context.Context, res *pipeline.Result) error {
	if res == nil || !res.Metrics.Computed() || res.Anomalies == nil {
		return fmt.Errorf("failed to save run: incomplete result")
	}

	diag, err := json.Marshal(res.Diagnostics)
	if err != nil {
		return fmt.Errorf("failed to encode diagnostics: %w", err)
	}
	ingested := 0
	for _, n := range res.Diagnostics.Ingested {
		ingested += n
	}

	return database.WithTx(r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO runs (id, started_at, completed_at, row_count, ingested, skipped,
				unresolved_states, unresolved_districts, diagnostics)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			res.RunID, res.StartedAt, res.CompletedAt, res.Metrics.Len(), ingested, res.Diagnostics.TotalSkipped(),
			res.Diagnostics.UnresolvedStates, res.Diagnostics.UnresolvedDistricts, string(diag),
		)
		if err != nil {
			return fmt.Errorf("failed to insert run: %w", err)
		}

		if err := insertMetrics(ctx, tx, res); err != nil {
			return err
		}
		if err := insertAnomalies(ctx, tx, res); err != nil {
			return err
		}
		if err := insertCoverage(ctx, tx, res); err != nil {
			return err
		}
		return insertPatterns(ctx, tx, res)
	})
}

func insertMetrics(ctx context.Context, tx *sql.Tx, res *pipeline.Result) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO region_metrics (run_id, period, state, district,
			total_holders, total_updates, demographic_updates, biometric_updates,
			update_ratio, biometric_compliance, demo_update_ratio, bio_update_ratio,
			activity_score, quality_score, growth_rate)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare metrics insert: %w", err)
	}
	defer stmt.Close()

	for row := range res.Metrics.All() {
		var growth sql.NullFloat64
		if row.GrowthRate != nil {
			growth = sql.NullFloat64{Float64: *row.GrowthRate, Valid: true}
		}
		_, err := stmt.ExecContext(ctx, res.RunID, row.Key.Period.String(), row.Key.State, row.Key.District,
			row.TotalHolders, row.TotalUpdates, row.DemographicUpdates, row.BiometricUpdates,
			row.UpdateRatio, row.BiometricCompliance, row.DemoUpdateRatio, row.BioUpdateRatio,
			row.ActivityScore, row.QualityScore, growth)
		if err != nil {
			return fmt.Errorf("failed to insert metrics for %s: %w", row.Key, err)
		}
	}
	return nil
}

func insertAnomalies(ctx context.Context, tx *sql.Tx, res *pipeline.Result) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO anomalies (run_id, period, state, district, severity, anomaly_score, triggering_rule, note)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare anomaly insert: %w", err)
	}
	defer stmt.Close()

	for _, a := range res.Anomalies.Records {
		_, err := stmt.ExecContext(ctx, res.RunID, a.Key.Period.String(), a.Key.State, a.Key.District,
			string(a.Severity), a.Score, a.Rule, a.Note)
		if err != nil {
			return fmt.Errorf("failed to insert anomaly for %s: %w", a.Key, err)
		}
	}
	return nil
}

func insertCoverage(ctx context.Context, tx *sql.Tx, res *pipeline.Result) error {
	for level, m := range res.Coverage {
		unmatched, err := json.Marshal(m.UnmatchedBoundaries)
		if err != nil {
			return fmt.Errorf("failed to encode unmatched boundaries: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO boundary_coverage (run_id, level, matched, total, coverage_ratio, coverage_floor,
				degraded, presentation, unmatched_boundaries)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			res.RunID, string(level), m.Matched, m.Total, m.Coverage, m.Floor,
			m.Degraded, string(m.Presentation()), string(unmatched))
		if err != nil {
			return fmt.Errorf("failed to insert %s coverage: %w", level, err)
		}
	}
	return nil
}

func insertPatterns(ctx context.Context, tx *sql.Tx, res *pipeline.Result) error {
	for name, report := range res.Patterns {
		summary, err := json.Marshal(report.Summary())
		if err != nil {
			return fmt.Errorf("failed to encode %s summary: %w", name, err)
		}
		payload, err := json.Marshal(report)
		if err != nil {
			return fmt.Errorf("failed to encode %s report: %w", name, err)
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO pattern_reports (run_id, name, summary, payload) VALUES (?, ?, ?, ?)`,
			res.RunID, name, string(summary), string(payload))
		if err != nil {
			return fmt.Errorf("failed to insert %s report: %w", name, err)
		}
	}
	return nil
}

// LatestRunID returns the most recently completed run
func (r *SnapshotRepository) LatestRunID(ctx context.Context) (string, error) {
	var id string
	err := r.db.QueryRowContext(ctx, `SELECT id FROM runs ORDER BY completed_at DESC, rowid DESC LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNoSnapshot
	}
	if err != nil {
		return "", fmt.Errorf("failed to get latest run: %w", err)
	}
	return id, nil
}

// GetRun returns a stored run's bookkeeping
func (r *SnapshotRepository) GetRun(ctx context.Context, runID string) (*RunInfo, error) {
	info := &RunInfo{ID: runID}
	var diag sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT started_at, completed_at, row_count, ingested, skipped,
			unresolved_states, unresolved_districts, diagnostics
		FROM runs WHERE id = ?`, runID).Scan(
		&info.StartedAt, &info.CompletedAt, &info.Rows, &info.Ingested, &info.Skipped,
		&info.UnresolvedStates, &info.UnresolvedDistricts, &diag,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	if diag.Valid {
		if err := json.Unmarshal([]byte(diag.String), &info.Diagnostics); err != nil {
			return nil, fmt.Errorf("failed to decode diagnostics: %w", err)
		}
	}
	return info, nil
}
