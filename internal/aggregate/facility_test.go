package aggregate

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/algorithm"
	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/domain"
)

var asOf = time.Date(2025, time.May, 20, 0, 0, 0, 0, time.UTC)

func result(v algorithm.Version, id string, typ domain.EquipmentType, score float64) EquipmentResult {
	return EquipmentResult{
		Assessment: domain.RiskAssessment{
			EquipmentID:      id,
			EquipmentType:    typ,
			AlgorithmVersion: v.Version,
			RiskScore:        score,
			RiskRating:       v.Rate(score),
			ComputedAt:       asOf,
		},
		Compliance: domain.ComplianceReport{
			EntityID: id,
			NFPA70B:  domain.ComplianceEvaluation{Percentage: 80},
			NFPA70E:  domain.ComplianceEvaluation{Percentage: 100, Detail: domain.ComplianceDetail{Labeling: 100}},
		},
	}
}

// sixtyItems builds 2 Critical, 5 High, 29 Medium and 24 Low items, with
// the severe items on high-importance equipment.
func sixtyItems(v algorithm.Version) []EquipmentResult {
	var out []EquipmentResult
	add := func(n int, typ domain.EquipmentType, score func(i int) float64) {
		for i := 0; i < n; i++ {
			out = append(out, result(v, fmt.Sprintf("%s-%02d-%d", typ, len(out), i), typ, score(i)))
		}
	}
	add(2, domain.EquipmentTransformer, func(i int) float64 { return 90 + float64(i)*2 })
	add(5, domain.EquipmentSwitchboard, func(i int) float64 { return 72 + float64(i)*2 })
	add(29, domain.EquipmentPanel, func(int) float64 { return 50 })
	add(12, domain.EquipmentBreaker, func(int) float64 { return 30 })
	add(12, domain.EquipmentOther, func(int) float64 { return 20 })
	return out
}

func TestSummarizeImportanceWeighting(t *testing.T) {
	v := algorithm.DefaultVersion()
	items := sixtyItems(v)
	require.Len(t, items, 60)

	s := Summarize(domain.Facility{ID: "fac-1"}, items, v, asOf)

	var sum, critSum float64
	critN := 0
	for _, it := range items {
		sum += it.Assessment.RiskScore
		if Importance(v, it.Assessment.EquipmentType) == 3.0 {
			critSum += it.Assessment.RiskScore
			critN++
		}
	}
	unweighted := sum / float64(len(items))
	favouringCritical := critSum / float64(critN)

	assert.Greater(t, s.RiskScore, unweighted)
	assert.Less(t, s.RiskScore, favouringCritical)
	assert.Equal(t, 53.18, s.RiskScore)
	assert.Equal(t, domain.RatingMedium, s.RiskLevel)

	assert.Equal(t, 2, s.ByRating[domain.RatingCritical])
	assert.Equal(t, 5, s.ByRating[domain.RatingHigh])
	assert.Equal(t, 29, s.ByRating[domain.RatingMedium])
	assert.Equal(t, 24, s.ByRating[domain.RatingLow])
	assert.Equal(t, 60, s.EquipmentCount)
	assert.Equal(t, domain.CategoryBreakdown{Count: 2, MeanScore: 91, ImportanceFactor: 3}, s.ByType[domain.EquipmentTransformer])
	assert.Equal(t, 0.5, s.ByType[domain.EquipmentOther].ImportanceFactor)

	require.Len(t, s.TopThreats, MaxThreats)
	assert.Equal(t, 92.0, s.TopThreats[0].RiskScore)
	assert.Equal(t, 90.0, s.TopThreats[1].RiskScore)
	for i := 1; i < len(s.TopThreats); i++ {
		assert.LessOrEqual(t, s.TopThreats[i].RiskScore, s.TopThreats[i-1].RiskScore)
	}

	assert.Equal(t, 80.0, s.Compliance.NFPA70B.Percentage)
	assert.Equal(t, 60, s.Compliance.NFPA70B.Detail.EquipmentCount)
}

func TestSummarizeIsPure(t *testing.T) {
	v := algorithm.DefaultVersion()
	items := sixtyItems(v)
	facility := domain.Facility{ID: "fac-1"}

	first := Summarize(facility, items, v, asOf)
	second := Summarize(facility, items, v, asOf)
	assert.Equal(t, first, second)

	reversed := make([]EquipmentResult, len(items))
	for i, it := range items {
		reversed[len(items)-1-i] = it
	}
	assert.Equal(t, first, Summarize(facility, reversed, v, asOf))
	assert.Equal(t, "transformer-00-0", items[0].Assessment.EquipmentID, "input must not be reordered")
}

func TestTopThreatsPreferUnseenTypeOnTies(t *testing.T) {
	v := algorithm.DefaultVersion()
	items := []EquipmentResult{
		result(v, "a", domain.EquipmentPanel, 88),
		result(v, "b", domain.EquipmentPanel, 80),
		result(v, "c", domain.EquipmentPanel, 80),
		result(v, "d", domain.EquipmentBreaker, 80),
		result(v, "e", domain.EquipmentPanel, 40),
	}

	got := TopThreats(items)
	ids := make([]string, 0, len(got))
	for _, th := range got {
		ids = append(ids, th.EquipmentID)
	}
	assert.Equal(t, []string{"a", "d", "b", "c"}, ids)
}

func TestTopThreatsCapsAtFive(t *testing.T) {
	v := algorithm.DefaultVersion()
	var items []EquipmentResult
	for i := 0; i < 8; i++ {
		items = append(items, result(v, fmt.Sprintf("x%d", i), domain.EquipmentTransformer, 75+float64(i)))
	}
	got := TopThreats(items)
	require.Len(t, got, MaxThreats)
	assert.Equal(t, "x7", got[0].EquipmentID)
}

func TestSummarizeEmptyFacility(t *testing.T) {
	v := algorithm.DefaultVersion()
	s := Summarize(domain.Facility{ID: "empty"}, nil, v, asOf)

	assert.Equal(t, 0.0, s.RiskScore)
	assert.Equal(t, domain.RatingLow, s.RiskLevel)
	assert.Empty(t, s.TopThreats)
	assert.Equal(t, 0.0, s.Compliance.NFPA70B.Percentage)
}
