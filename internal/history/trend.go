package history

import (
	"math"

	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/domain"
)

// TrendChange flags a period whose value moved more than the threshold
// relative to the previous recorded period.
type TrendChange struct {
	Period         string  `json:"period"`
	PreviousPeriod string  `json:"previous_period"`
	Previous       float64 `json:"previous"`
	Current        float64 `json:"current"`
	RelativeDelta  float64 `json:"relative_delta"`
}

// TrendChanges compares each point with the one before it. A move away
// from zero counts as a full (100%) change.
func TrendChanges(series []domain.HistoricalDataPoint, threshold float64) []TrendChange {
	var out []TrendChange
	for i := 1; i < len(series); i++ {
		prev, cur := series[i-1], series[i]
		var delta float64
		switch {
		case prev.Value == cur.Value:
			continue
		case prev.Value == 0:
			delta = math.Copysign(1, cur.Value)
		default:
			delta = (cur.Value - prev.Value) / math.Abs(prev.Value)
		}
		if math.Abs(delta) <= threshold {
			continue
		}
		out = append(out, TrendChange{
			Period:         cur.Period,
			PreviousPeriod: prev.Period,
			Previous:       prev.Value,
			Current:        cur.Value,
			RelativeDelta:  math.Round(delta*10000) / 10000,
		})
	}
	return out
}
