package anomaly

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/jengzang/region-insights-go/internal/metrics"
	"github.com/jengzang/region-insights-go/internal/models"
)

var period = models.Period{Year: 2025, Month: time.March}

func key(state, district string) models.CanonicalKey {
	return models.CanonicalKey{Period: period, State: state, District: district}
}

func row(state, district string, ratio, compliance float64) models.RegionMetricsRow {
	return models.RegionMetricsRow{
		Key:                 key(state, district),
		TotalHolders:        100,
		TotalUpdates:        10,
		UpdateRatio:         ratio,
		BiometricCompliance: compliance,
	}
}

func cohort(state string, ratios ...float64) []models.RegionMetricsRow {
	rows := make([]models.RegionMetricsRow, len(ratios))
	for i, r := range ratios {
		rows[i] = row(state, fmt.Sprintf("D%02d", i), r, 0.5)
	}
	return rows
}

type EngineSuite struct {
	suite.Suite
	engine *Engine
}

func (s *EngineSuite) SetupTest() {
	s.engine = NewEngine(DefaultThresholds(), WithWorkers(2))
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) classify(rows ...models.RegionMetricsRow) *Result {
	res, err := s.engine.Classify(metrics.FromRows(rows...))
	s.Require().NoError(err)
	s.Require().Len(res.Records, len(rows), "one record per row")
	return res
}

func (s *EngineSuite) TestRequiresComputedMetrics() {
	_, err := s.engine.Classify(nil)
	s.ErrorIs(err, ErrMetricsNotComputed)

	_, err = s.engine.Classify(&metrics.Table{})
	s.ErrorIs(err, ErrMetricsNotComputed)

	_, err = Classify(nil)
	s.ErrorIs(err, ErrMetricsNotComputed)
}

func (s *EngineSuite) TestExtremeRatioAgainstPeers() {
	res := s.classify(cohort("Goa", 1, 1, 1, 1, 50)...)

	outlier, ok := res.Get(key("Goa", "D04"))
	s.Require().True(ok)
	s.Equal(models.SeverityCritical, outlier.Severity)
	s.Equal(RuleExtremeRatio, outlier.Rule)

	for _, d := range []string{"D00", "D01", "D02", "D03"} {
		rec, _ := res.Get(key("Goa", d))
		s.Equal(models.SeverityNormal, rec.Severity, d)
		s.Equal(RuleNormal, rec.Rule)
	}
}

func (s *EngineSuite) TestExtremeRatioOutranksLowCompliance() {
	rows := cohort("Goa", 1, 1, 1, 1)
	both := row("Goa", "Both", 50, 0.01)
	res := s.classify(append(rows, both)...)

	rec, _ := res.Get(both.Key)
	s.Equal(models.SeverityCritical, rec.Severity)
	s.Equal(RuleExtremeRatio, rec.Rule)
}

func (s *EngineSuite) TestZeroActivityOutranksLowCompliance() {
	dead := row("Goa", "Dead", 0, 0)
	dead.TotalHolders = 5000
	dead.TotalUpdates = 0
	res := s.classify(append(cohort("Goa", 1, 1, 1), dead)...)

	rec, _ := res.Get(dead.Key)
	s.Equal(models.SeverityCritical, rec.Severity)
	s.Equal(RuleZeroActivity, rec.Rule)
}

func (s *EngineSuite) TestLowCompliance() {
	low := row("Goa", "Low", 1, 0.05)
	res := s.classify(append(cohort("Goa", 1, 1, 1), low)...)

	rec, _ := res.Get(low.Key)
	s.Equal(models.SeverityWarning, rec.Severity)
	s.Equal(RuleLowCompliance, rec.Rule)
}

func (s *EngineSuite) TestStatisticalOutlier() {
	peers := []float64{1.0, 1.2, 1.0, 1.2, 1.0, 1.2, 1.0, 1.2, 1.0, 1.2}

	warn := row("Kerala", "Warn", 1.5, 0.5)
	crit := row("Punjab", "Crit", 1.7, 0.5)
	rows := append(cohort("Kerala", peers...), warn)
	rows = append(rows, cohort("Punjab", peers...)...)
	rows = append(rows, crit)

	res := s.classify(rows...)

	rec, _ := res.Get(warn.Key)
	s.Equal(models.SeverityWarning, rec.Severity)
	s.Equal(RuleStatisticalOutlier, rec.Rule)

	rec, _ = res.Get(crit.Key)
	s.Equal(models.SeverityCritical, rec.Severity)
	s.Equal(RuleStatisticalOutlier, rec.Rule)

	rec, _ = res.Get(key("Kerala", "D00"))
	s.Equal(models.SeverityNormal, rec.Severity)
}

func (s *EngineSuite) TestSmallCohortKeepsAbsoluteRules() {
	lax := row("Goa", "Lax", 1, 0.05)
	idle := row("Goa", "Idle", 0, 0.5)
	idle.TotalHolders = 2000
	idle.TotalUpdates = 0

	res := s.classify(lax, idle)
	s.Require().Len(res.Degenerate, 1)

	rec, ok := res.Get(lax.Key)
	s.Require().True(ok)
	s.Equal(models.SeverityWarning, rec.Severity)
	s.Equal(RuleLowCompliance, rec.Rule)
	s.Contains(rec.Note, "below minimum")

	rec, ok = res.Get(idle.Key)
	s.Require().True(ok)
	s.Equal(models.SeverityCritical, rec.Severity)
	s.Equal(RuleZeroActivity, rec.Rule)
}

func (s *EngineSuite) TestZeroVarianceCohortSkipsOutlierRule() {
	res := s.classify(cohort("Goa", 2, 2, 2)...)
	for _, rec := range res.Records {
		s.Equal(models.SeverityNormal, rec.Severity)
		s.False(math.IsNaN(rec.Score))
	}
}

func (s *EngineSuite) TestDegenerateCohorts() {
	small := cohort("Goa", 1, 40)
	dead := row("Goa", "Dead", 0, 0)
	dead.TotalHolders = 5000
	dead.TotalUpdates = 0
	stray := row(models.UnresolvedState, "", 90, 0.5)

	rows := append(cohort("Kerala", 1, 1, 1), small...)
	rows = append(rows, stray)
	res := s.classify(rows...)

	s.Require().Len(res.Degenerate, 1)
	s.Equal(Cohort{State: "Goa", Period: period, Size: 2}, res.Degenerate[0])

	rec, _ := res.Get(key("Goa", "D01"))
	s.Equal(models.SeverityNormal, rec.Severity, "cohort rules skipped")
	s.Contains(rec.Note, "below minimum")

	rec, _ = res.Get(stray.Key)
	s.Equal(models.SeverityNormal, rec.Severity)
	s.Contains(rec.Note, "unresolved")

	rec, _ = res.Get(key("Kerala", "D00"))
	s.Empty(rec.Note)

	res = s.classify(dead, row("Goa", "Other", 1, 0.5))
	rec, _ = res.Get(dead.Key)
	s.Equal(RuleZeroActivity, rec.Rule, "absolute rules still apply")
}

func (s *EngineSuite) TestScoresAreBoundedAndRankable() {
	rows := cohort("Goa", 1, 1, 1, 1, 2, 3, 4)
	res := s.classify(append(rows, row(models.UnresolvedState, "", 0, 0))...)

	for _, rec := range res.Records {
		s.GreaterOrEqual(rec.Score, 0.0)
		s.LessOrEqual(rec.Score, 1.0)
	}

	res = s.classify(rows...)
	a, _ := res.Get(key("Goa", "D04"))
	b, _ := res.Get(key("Goa", "D05"))
	c, _ := res.Get(key("Goa", "D06"))
	s.Less(a.Score, b.Score)
	s.Less(b.Score, c.Score)

	top := res.Top(2)
	s.Require().Len(top, 2)
	s.Equal(key("Goa", "D06"), top[0].Key)
	s.GreaterOrEqual(top[0].Score, top[1].Score)
}

func (s *EngineSuite) TestCustomRules() {
	always := Rule{ID: "always", Match: func(Input) (models.Severity, bool) {
		return models.SeverityWarning, true
	}}
	engine := NewEngine(DefaultThresholds(), WithRules([]Rule{always}))
	res, err := engine.Classify(metrics.FromRows(cohort("Goa", 1, 1, 1)...))
	s.Require().NoError(err)
	s.Equal(3, res.Summary().ByRule["always"])
}

func TestScore(t *testing.T) {
	th := DefaultThresholds()

	assert.Equal(t, 0.0, Score(models.RegionMetricsRow{UpdateRatio: 1, BiometricCompliance: 1}, 1, 0, th))
	assert.InDelta(t, 0.3, Score(models.RegionMetricsRow{UpdateRatio: 1, BiometricCompliance: 0}, 1, 0, th), 1e-12)
	assert.InDelta(t, 0.4, Score(models.RegionMetricsRow{UpdateRatio: 3, BiometricCompliance: 1}, 1, 2, th), 1e-12)
	assert.InDelta(t, 0.3, Score(models.RegionMetricsRow{UpdateRatio: 20, BiometricCompliance: 7}, 20, 5, th), 1e-12)
	assert.InDelta(t, 1.0, Score(models.RegionMetricsRow{UpdateRatio: 40, BiometricCompliance: 0}, 0, 40, th), 1e-12)
	assert.False(t, math.IsNaN(Score(models.RegionMetricsRow{UpdateRatio: math.NaN()}, 0, 1, th)))
}

func TestResultSummaryAndTop(t *testing.T) {
	res := NewResult([]models.AnomalyRecord{
		{Key: key("B", ""), Severity: models.SeverityWarning, Score: 0.5, Rule: RuleLowCompliance},
		{Key: key("A", ""), Severity: models.SeverityWarning, Score: 0.5, Rule: RuleLowCompliance},
		{Key: key("C", ""), Severity: models.SeverityCritical, Score: 0.9, Rule: RuleExtremeRatio},
		{Key: key("D", ""), Severity: models.SeverityNormal, Score: 0.1, Rule: RuleNormal},
	})

	summary := res.Summary()
	assert.Equal(t, Summary{Total: 4, Normal: 1, Warning: 2, Critical: 1, ByRule: map[string]int{
		RuleLowCompliance: 2, RuleExtremeRatio: 1, RuleNormal: 1,
	}}, summary)

	top := res.Top(3)
	require.Len(t, top, 3)
	assert.Equal(t, "C", top[0].Key.State)
	assert.Equal(t, "A", top[1].Key.State, "ties break on key")
	assert.Equal(t, "B", top[2].Key.State)

	assert.Len(t, res.Top(10), 4)
	assert.Nil(t, res.Top(0))
	assert.Len(t, res.BySeverity(models.SeverityWarning), 2)
}
