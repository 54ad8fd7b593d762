package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jengzang/region-insights-go/internal/anomaly"
	"github.com/jengzang/region-insights-go/internal/metrics"
	"github.com/jengzang/region-insights-go/internal/models"
	"github.com/jengzang/region-insights-go/internal/spatial"
	"github.com/jengzang/region-insights-go/internal/stats"
)

const metricsColumns = `period, state, district,
	total_holders, total_updates, demographic_updates, biometric_updates,
	update_ratio, biometric_compliance, demo_update_ratio, bio_update_ratio,
	activity_score, quality_score, growth_rate`

// StateOverview lists one state of a run
type StateOverview struct {
	State     string `json:"state"`
	Districts int    `json:"districts"`
	Periods   int    `json:"periods"`
}

// Coverage is a stored boundary match summary
type Coverage struct {
	Level               spatial.Level        `json:"level"`
	Matched             int                  `json:"matched"`
	Total               int                  `json:"total"`
	Ratio               float64              `json:"coverage_ratio"`
	Floor               float64              `json:"coverage_floor"`
	Degraded            bool                 `json:"degraded"`
	Presentation        spatial.Presentation `json:"presentation"`
	UnmatchedBoundaries []string             `json:"unmatched_boundaries"`
}

// PatternReport is a stored analyzer report
type PatternReport struct {
	Name    string          `json:"name"`
	Summary map[string]int  `json:"summary"`
	Payload json.RawMessage `json:"report"`
}

// LoadMetrics reloads every metrics row of a run as a computed table
func (r *SnapshotRepository) LoadMetrics(ctx context.Context, runID string) (*metrics.Table, error) {
	rows, err := r.queryMetrics(ctx, `SELECT `+metricsColumns+` FROM region_metrics WHERE run_id = ?`, runID)
	if err != nil {
		return nil, err
	}
	return metrics.FromRows(rows...), nil
}

// ListStates returns the canonical states of a run, the unresolved bucket excluded
func (r *SnapshotRepository) ListStates(ctx context.Context, runID string) ([]StateOverview, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT state, COUNT(DISTINCT NULLIF(district, '')), COUNT(DISTINCT period)
		FROM region_metrics
		WHERE run_id = ? AND state != ?
		GROUP BY state
		ORDER BY state`, runID, models.UnresolvedState)
	if err != nil {
		return nil, fmt.Errorf("failed to list states: %w", err)
	}
	defer rows.Close()

	var out []StateOverview
	for rows.Next() {
		var s StateOverview
		if err := rows.Scan(&s.State, &s.Districts, &s.Periods); err != nil {
			return nil, fmt.Errorf("failed to scan state: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListDistricts returns the canonical districts of a state in a run
func (r *SnapshotRepository) ListDistricts(ctx context.Context, runID, state string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT district FROM region_metrics
		WHERE run_id = ? AND state = ? AND district != ''
		ORDER BY district`, runID, state)
	if err != nil {
		return nil, fmt.Errorf("failed to list districts: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("failed to scan district: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("state %q: %w", state, ErrNotFound)
	}
	return out, nil
}

// GetRegion returns a district's metrics rows in period order
func (r *SnapshotRepository) GetRegion(ctx context.Context, runID, state, district string) ([]models.RegionMetricsRow, error) {
	rows, err := r.queryMetrics(ctx, `SELECT `+metricsColumns+` FROM region_metrics
		WHERE run_id = ? AND state = ? AND district = ? ORDER BY period`, runID, state, district)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("region %s/%s: %w", state, district, ErrNotFound)
	}
	return rows, nil
}

// StateSeries sums a state's rows per period and recomputes its ratios from the totals
func (r *SnapshotRepository) StateSeries(ctx context.Context, runID, state string) ([]metrics.StateSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT period, COUNT(NULLIF(district, '')), SUM(total_holders), SUM(total_updates),
			SUM(demographic_updates), SUM(biometric_updates)
		FROM region_metrics
		WHERE run_id = ? AND state = ?
		GROUP BY period
		ORDER BY period`, runID, state)
	if err != nil {
		return nil, fmt.Errorf("failed to query state series: %w", err)
	}
	defer rows.Close()

	var out []metrics.StateSummary
	for rows.Next() {
		s := metrics.StateSummary{State: state}
		var period string
		if err := rows.Scan(&period, &s.Districts, &s.TotalHolders, &s.TotalUpdates, &s.DemographicUpdates, &s.BiometricUpdates); err != nil {
			return nil, fmt.Errorf("failed to scan state series: %w", err)
		}
		if s.Period, err = models.ParsePeriod(period); err != nil {
			return nil, err
		}
		s.UpdateRatio = stats.SafeDiv(float64(s.TotalUpdates), float64(s.TotalHolders))
		s.BiometricCompliance = stats.SafeDiv(float64(s.BiometricUpdates), float64(s.TotalUpdates))
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("state %q: %w", state, ErrNotFound)
	}
	return out, nil
}

// RegionAnomalies returns a district's anomaly records in period order
func (r *SnapshotRepository) RegionAnomalies(ctx context.Context, runID, state, district string) ([]models.AnomalyRecord, error) {
	return r.queryAnomalies(ctx, `SELECT period, state, district, severity, anomaly_score, triggering_rule, note
		FROM anomalies WHERE run_id = ? AND state = ? AND district = ? ORDER BY period`, runID, state, district)
}

// TopAnomalies returns the n highest-scoring records, ties broken by key
func (r *SnapshotRepository) TopAnomalies(ctx context.Context, runID string, n int) ([]models.AnomalyRecord, error) {
	if n <= 0 {
		return nil, nil
	}
	return r.queryAnomalies(ctx, `SELECT period, state, district, severity, anomaly_score, triggering_rule, note
		FROM anomalies WHERE run_id = ?
		ORDER BY anomaly_score DESC, period, state, district
		LIMIT ?`, runID, n)
}

// AnomalySummary counts a run's records by severity and rule
func (r *SnapshotRepository) AnomalySummary(ctx context.Context, runID string) (anomaly.Summary, error) {
	summary := anomaly.Summary{ByRule: make(map[string]int)}
	rows, err := r.db.QueryContext(ctx, `
		SELECT severity, triggering_rule, COUNT(*) FROM anomalies
		WHERE run_id = ? GROUP BY severity, triggering_rule`, runID)
	if err != nil {
		return summary, fmt.Errorf("failed to summarize anomalies: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var sev, rule string
		var n int
		if err := rows.Scan(&sev, &rule, &n); err != nil {
			return summary, fmt.Errorf("failed to scan anomaly summary: %w", err)
		}
		summary.Total += n
		summary.ByRule[rule] += n
		switch models.Severity(sev) {
		case models.SeverityCritical:
			summary.Critical += n
		case models.SeverityWarning:
			summary.Warning += n
		default:
			summary.Normal += n
		}
	}
	return summary, rows.Err()
}

// Coverage returns the stored boundary coverage of a level
func (r *SnapshotRepository) Coverage(ctx context.Context, runID string, level spatial.Level) (*Coverage, error) {
	c := &Coverage{Level: level}
	var presentation string
	var unmatched sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT matched, total, coverage_ratio, coverage_floor, degraded, presentation, unmatched_boundaries
		FROM boundary_coverage WHERE run_id = ? AND level = ?`, runID, string(level)).Scan(
		&c.Matched, &c.Total, &c.Ratio, &c.Floor, &c.Degraded, &presentation, &unmatched,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("coverage for %s: %w", level, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get coverage: %w", err)
	}
	c.Presentation = spatial.Presentation(presentation)
	if unmatched.Valid && unmatched.String != "" {
		if err := json.Unmarshal([]byte(unmatched.String), &c.UnmatchedBoundaries); err != nil {
			return nil, fmt.Errorf("failed to decode unmatched boundaries: %w", err)
		}
	}
	return c, nil
}

// Pattern returns a stored analyzer report
func (r *SnapshotRepository) Pattern(ctx context.Context, runID, name string) (*PatternReport, error) {
	p := &PatternReport{Name: name}
	var summary, payload string
	err := r.db.QueryRowContext(ctx, `SELECT summary, payload FROM pattern_reports WHERE run_id = ? AND name = ?`,
		runID, name).Scan(&summary, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("pattern %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pattern: %w", err)
	}
	if err := json.Unmarshal([]byte(summary), &p.Summary); err != nil {
		return nil, fmt.Errorf("failed to decode pattern summary: %w", err)
	}
	p.Payload = json.RawMessage(payload)
	return p, nil
}

func (r *SnapshotRepository) queryMetrics(ctx context.Context, query string, args ...any) ([]models.RegionMetricsRow, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query metrics: %w", err)
	}
	defer rows.Close()

	var out []models.RegionMetricsRow
	for rows.Next() {
		var m models.RegionMetricsRow
		var period string
		var growth sql.NullFloat64
		err := rows.Scan(&period, &m.Key.State, &m.Key.District,
			&m.TotalHolders, &m.TotalUpdates, &m.DemographicUpdates, &m.BiometricUpdates,
			&m.UpdateRatio, &m.BiometricCompliance, &m.DemoUpdateRatio, &m.BioUpdateRatio,
			&m.ActivityScore, &m.QualityScore, &growth)
		if err != nil {
			return nil, fmt.Errorf("failed to scan metrics: %w", err)
		}
		if m.Key.Period, err = models.ParsePeriod(period); err != nil {
			return nil, err
		}
		if growth.Valid {
			g := growth.Float64
			m.GrowthRate = &g
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *SnapshotRepository) queryAnomalies(ctx context.Context, query string, args ...any) ([]models.AnomalyRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query anomalies: %w", err)
	}
	defer rows.Close()

	var out []models.AnomalyRecord
	for rows.Next() {
		var a models.AnomalyRecord
		var period, severity string
		if err := rows.Scan(&period, &a.Key.State, &a.Key.District, &severity, &a.Score, &a.Rule, &a.Note); err != nil {
			return nil, fmt.Errorf("failed to scan anomaly: %w", err)
		}
		if a.Key.Period, err = models.ParsePeriod(period); err != nil {
			return nil, err
		}
		a.Severity = models.Severity(severity)
		out = append(out, a)
	}
	return out, rows.Err()
}
