package anomaly

import (
	"math"

	"github.com/jengzang/region-insights-go/internal/models"
	"github.com/jengzang/region-insights-go/internal/stats"
)

// Score component weights
const (
	DeviationWeight  = 0.4
	ComplianceWeight = 0.3
	ExtremityWeight  = 0.3
)

// Score blends deviation from the baseline mean (relative to the largest
// deviation in the run), compliance deficit and ratio extremity into [0, 1].
// It does not depend on the assigned label.
func Score(row models.RegionMetricsRow, baselineMean, maxDeviation float64, th Thresholds) float64 {
	var deviation float64
	if maxDeviation > 0 {
		deviation = stats.Clamp(math.Abs(row.UpdateRatio-baselineMean)/maxDeviation, 0, 1)
	}

	deficit := 1 - stats.Clamp(row.BiometricCompliance, 0, 1)

	var extremity float64
	if row.UpdateRatio > th.ExtremeScoreFloor && th.ExtremeScoreScale > 0 {
		extremity = stats.Clamp(row.UpdateRatio/th.ExtremeScoreScale, 0, 1)
	}

	score := DeviationWeight*stats.Finite(deviation) + ComplianceWeight*stats.Finite(deficit) + ExtremityWeight*extremity
	return stats.Clamp(stats.Finite(score), 0, 1)
}
