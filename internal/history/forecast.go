package history

import (
	"fmt"
	"math"
	"time"

	"github.com/ANIKETSHETTY47/energy-grid-analytics-go/aggregator"

	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/algorithm"
	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/domain"
)

// Aging describes the equipment behind an age-driven series. AgeFraction
// is the age-multiplied fraction of service life consumed at the last
// observed period.
type Aging struct {
	AgeFraction      float64
	ServiceLifeYears float64
	AgeMultiplier    float64
}

type ForecastPoint struct {
	Period string  `json:"period"`
	Value  float64 `json:"value"`
	// AgingAdjustment is the part of Value added by the end-of-life curve.
	AgingAdjustment float64 `json:"aging_adjustment,omitempty"`
}

// Forecast is only meaningful against the algorithm version it names.
type Forecast struct {
	EntityID         string            `json:"entity_id"`
	EntityKind       domain.EntityKind `json:"entity_kind"`
	Metric           string            `json:"metric"`
	Model            string            `json:"model"`
	AlgorithmVersion string            `json:"algorithm_version"`
	Baseline         float64           `json:"baseline"`
	History          int               `json:"history_points"`
	Points           []ForecastPoint   `json:"points"`
}

// Project produces horizon monthly points after the last period in series.
// aging is nil for series that are not driven by equipment age.
func Project(key SeriesKey, series []domain.HistoricalDataPoint, horizon int, v algorithm.Version, aging *Aging) (Forecast, error) {
	if horizon <= 0 {
		return Forecast{}, fmt.Errorf("%w: horizon must be positive, got %d", domain.ErrValidation, horizon)
	}
	if len(series) == 0 {
		return Forecast{}, fmt.Errorf("%w: no history for %s %s %s@%s", domain.ErrNotFound, key.EntityKind, key.EntityID, key.Metric, key.AlgorithmVersion)
	}
	last, err := time.Parse(domain.PeriodLayout, series[len(series)-1].Period)
	if err != nil {
		return Forecast{}, fmt.Errorf("parse period %q: %w", series[len(series)-1].Period, err)
	}

	p := v.Params.Forecast
	points := make([]aggregator.Point, 0, len(series))
	values := make([]float64, 0, len(series))
	for _, pt := range series {
		points = append(points, aggregator.Point{Value: pt.Value, Timestamp: pt.RecordedAt})
		values = append(values, pt.Value)
	}

	model := p.Model
	if model == "" {
		model = algorithm.ModelHoltLinear
	}
	var project func(h int) float64
	switch model {
	case algorithm.ModelSimpleExponential:
		level := simpleExponential(values, p.Alpha)
		project = func(int) float64 { return level }
	case algorithm.ModelMovingAverage:
		level := movingAverage(points, p.MovingAverageWindow)
		project = func(int) float64 { return level }
	case algorithm.ModelHoltLinear:
		level, trend := holtLinear(values, p.Alpha, p.Beta)
		project = func(h int) float64 { return level + float64(h)*trend }
	default:
		return Forecast{}, fmt.Errorf("%w: unknown forecast model %q", domain.ErrValidation, model)
	}

	weight := agingWeight(key.Metric, v)
	out := Forecast{
		EntityID:         key.EntityID,
		EntityKind:       key.EntityKind,
		Metric:           key.Metric,
		Model:            model,
		AlgorithmVersion: key.AlgorithmVersion,
		Baseline:         round2(aggregator.Average(points)),
		History:          len(series),
		Points:           make([]ForecastPoint, 0, horizon),
	}
	for h := 1; h <= horizon; h++ {
		adj := 0.0
		if aging != nil && weight > 0 {
			adj = weight * agingAdjustment(*aging, h, p.AgingExponent)
		}
		out.Points = append(out.Points, ForecastPoint{
			Period:          last.AddDate(0, h, 0).Format(domain.PeriodLayout),
			Value:           round2(clamp(project(h) + adj)),
			AgingAdjustment: round2(adj),
		})
	}
	return out, nil
}

// holtLinear returns the final level and trend of double exponential
// smoothing. A single observation has no trend.
func holtLinear(values []float64, alpha, beta float64) (float64, float64) {
	level, trend := values[0], 0.0
	if len(values) > 1 {
		trend = values[1] - values[0]
	}
	for _, y := range values[1:] {
		prev := level
		level = alpha*y + (1-alpha)*(level+trend)
		trend = beta*(level-prev) + (1-beta)*trend
	}
	return level, trend
}

func simpleExponential(values []float64, alpha float64) float64 {
	level := values[0]
	for _, y := range values[1:] {
		level = alpha*y + (1-alpha)*level
	}
	return level
}

func movingAverage(points []aggregator.Point, window int) float64 {
	if window <= 0 || window > len(points) {
		return aggregator.Average(points)
	}
	ma := aggregator.MovingAverage(points, window)
	if len(ma) == 0 {
		return aggregator.Average(points)
	}
	return ma[len(ma)-1]
}

// agingWeight is how much of the metric the age factor drives.
func agingWeight(metric string, v algorithm.Version) float64 {
	switch metric {
	case domain.MetricRiskScore:
		return v.Weights.Age
	case domain.MetricAgeScore:
		return 1
	default:
		return 0
	}
}

// agingAdjustment is A(f_h) - A(f_0) with A(f) = min(100, 100*f^k), the
// excess of the end-of-life curve over the starting point h months ahead.
func agingAdjustment(a Aging, h int, k float64) float64 {
	if a.ServiceLifeYears <= 0 {
		return 0
	}
	mult := a.AgeMultiplier
	if mult <= 0 {
		mult = 1
	}
	f0 := a.AgeFraction
	fh := f0 + float64(h)/12/a.ServiceLifeYears*mult
	curve := func(f float64) float64 { return math.Min(100, 100*math.Pow(f, k)) }
	return curve(fh) - curve(f0)
}

func clamp(x float64) float64 {
	return math.Max(0, math.Min(100, x))
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
