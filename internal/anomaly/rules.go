package anomaly

import (
	"math"

	"github.com/jengzang/region-insights-go/internal/models"
)

// Rule identifiers recorded on AnomalyRecord.Rule
const (
	RuleExtremeRatio       = "extreme_ratio"
	RuleZeroActivity       = "zero_activity"
	RuleLowCompliance      = "low_compliance"
	RuleStatisticalOutlier = "statistical_outlier"
	RuleNormal             = "normal"
)

// Thresholds holds the classification and scoring constants
type Thresholds struct {
	ExtremeRatioMultiple float64 // rule 1: ratio above this multiple of the peer mean
	PopulatedFloor       int64   // rule 2: holders above this with no updates
	LowCompliance        float64 // rule 3: compliance below this
	OutlierWarningSigma  float64 // rule 4: warning beyond this many peer std devs
	OutlierCriticalSigma float64 // rule 4: critical beyond this many
	MinCohortSize        int     // cohorts below this skip rules 1 and 4

	ExtremeScoreFloor float64 // ratios above this add to the extremity component
	ExtremeScoreScale float64 // ratio at which the extremity component saturates
}

// DefaultThresholds returns the production thresholds
func DefaultThresholds() Thresholds {
	return Thresholds{
		ExtremeRatioMultiple: 10,
		PopulatedFloor:       1000,
		LowCompliance:        0.1,
		OutlierWarningSigma:  3,
		OutlierCriticalSigma: 5,
		MinCohortSize:        3,
		ExtremeScoreFloor:    5,
		ExtremeScoreScale:    10,
	}
}

// Baseline describes the peers a row is compared against
type Baseline struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Peers  int     `json:"peers"`
	// Statistical is false for the Unresolved bucket and for cohorts below MinCohortSize
	Statistical bool `json:"statistical"`
}

// Input is what a rule sees for one row
type Input struct {
	Row        models.RegionMetricsRow
	Baseline   Baseline
	Thresholds Thresholds
}

// Rule is one predicate of the ordered classification list
type Rule struct {
	ID    string
	Match func(Input) (models.Severity, bool)
}

// DefaultRules returns the classification order. The first matching rule wins,
// so an extreme ratio outranks low compliance on the same row.
func DefaultRules() []Rule {
	return []Rule{
		{ID: RuleExtremeRatio, Match: extremeRatio},
		{ID: RuleZeroActivity, Match: zeroActivity},
		{ID: RuleLowCompliance, Match: lowCompliance},
		{ID: RuleStatisticalOutlier, Match: statisticalOutlier},
	}
}

func extremeRatio(in Input) (models.Severity, bool) {
	b := in.Baseline
	if !b.Statistical || b.Mean <= 0 {
		return "", false
	}
	return models.SeverityCritical, in.Row.UpdateRatio > in.Thresholds.ExtremeRatioMultiple*b.Mean
}

func zeroActivity(in Input) (models.Severity, bool) {
	return models.SeverityCritical, in.Row.TotalHolders > in.Thresholds.PopulatedFloor && in.Row.TotalUpdates == 0
}

func lowCompliance(in Input) (models.Severity, bool) {
	return models.SeverityWarning, in.Row.BiometricCompliance < in.Thresholds.LowCompliance
}

func statisticalOutlier(in Input) (models.Severity, bool) {
	b := in.Baseline
	if !b.Statistical || b.StdDev <= 0 || math.IsNaN(b.StdDev) {
		return "", false
	}
	deviation := math.Abs(in.Row.UpdateRatio - b.Mean)
	switch {
	case deviation > in.Thresholds.OutlierCriticalSigma*b.StdDev:
		return models.SeverityCritical, true
	case deviation > in.Thresholds.OutlierWarningSigma*b.StdDev:
		return models.SeverityWarning, true
	}
	return "", false
}
