// Package aggregate derives facility summaries from equipment results.
package aggregate

import (
	"math"
	"sort"
	"time"

	"github.com/ANIKETSHETTY47/energy-grid-analytics-go/aggregator"

	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/algorithm"
	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/compliance"
	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/domain"
)

// MaxThreats bounds the top-threat list.
const MaxThreats = 5

// EquipmentResult is the current cached result pair for one equipment item.
type EquipmentResult struct {
	Assessment domain.RiskAssessment
	Compliance domain.ComplianceReport
}

// Summarize is a pure function of its inputs: the same facility, results,
// version and asOf always yield the same summary, regardless of input order.
func Summarize(facility domain.Facility, results []EquipmentResult, v algorithm.Version, asOf time.Time) domain.FacilitySummary {
	sorted := make([]EquipmentResult, len(results))
	copy(sorted, results)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Assessment.EquipmentID < sorted[j].Assessment.EquipmentID
	})

	out := domain.FacilitySummary{
		FacilityID:       facility.ID,
		AlgorithmVersion: v.Version,
		EquipmentCount:   len(sorted),
		ByType:           map[domain.EquipmentType]domain.CategoryBreakdown{},
		ByRating: map[domain.RiskRating]int{
			domain.RatingLow:      0,
			domain.RatingMedium:   0,
			domain.RatingHigh:     0,
			domain.RatingCritical: 0,
		},
		TopThreats: []domain.Threat{},
		ComputedAt: asOf.UTC(),
	}

	byType := map[domain.EquipmentType][]aggregator.Point{}
	reports := make([]domain.ComplianceReport, 0, len(sorted))
	var weighted, importance float64
	for _, r := range sorted {
		a := r.Assessment
		w := Importance(v, a.EquipmentType)
		weighted += a.RiskScore * w
		importance += w
		out.ByRating[a.RiskRating]++
		byType[a.EquipmentType] = append(byType[a.EquipmentType], aggregator.Point{Value: a.RiskScore, Timestamp: a.ComputedAt})
		reports = append(reports, r.Compliance)
	}

	for t, points := range byType {
		out.ByType[t] = domain.CategoryBreakdown{
			Count:            len(points),
			MeanScore:        round2(aggregator.Average(points)),
			ImportanceFactor: Importance(v, t),
		}
	}

	if importance > 0 {
		out.RiskScore = round2(weighted / importance)
	}
	out.RiskLevel = v.Rate(out.RiskScore)
	out.TopThreats = TopThreats(sorted)
	out.Compliance = compliance.RollUp(facility, reports, v, asOf)
	return out
}

// Importance returns the version's importance factor for t. Types without
// a profile fall back to the "other" row.
func Importance(v algorithm.Version, t domain.EquipmentType) float64 {
	if p, ok := v.Profile(t); ok {
		return p.ImportanceFactor
	}
	if p, ok := v.Profile(domain.EquipmentOther); ok {
		return p.ImportanceFactor
	}
	return 0
}

// TopThreats keeps High and Critical items, highest score first. When
// scores tie, an equipment type not yet listed goes first, then the lower
// id.
func TopThreats(results []EquipmentResult) []domain.Threat {
	var pool []domain.Threat
	for _, r := range results {
		a := r.Assessment
		if !a.RiskRating.Severe() {
			continue
		}
		pool = append(pool, domain.Threat{
			EquipmentID: a.EquipmentID,
			Type:        a.EquipmentType,
			RiskScore:   a.RiskScore,
			RiskRating:  a.RiskRating,
		})
	}
	sort.Slice(pool, func(i, j int) bool {
		if pool[i].RiskScore != pool[j].RiskScore {
			return pool[i].RiskScore > pool[j].RiskScore
		}
		return pool[i].EquipmentID < pool[j].EquipmentID
	})

	out := []domain.Threat{}
	seen := map[domain.EquipmentType]bool{}
	for len(out) < MaxThreats && len(pool) > 0 {
		pick := 0
		for i := 0; i < len(pool) && pool[i].RiskScore == pool[0].RiskScore; i++ {
			if !seen[pool[i].Type] {
				pick = i
				break
			}
		}
		t := pool[pick]
		pool = append(pool[:pick], pool[pick+1:]...)
		seen[t.Type] = true
		out = append(out, t)
	}
	return out
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
