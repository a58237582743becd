package jobs

import "github.com/ANIKETSHETTY47/grid-risk-engine/internal/domain"

// Summarize builds the compact notification summary. Score highlights
// only consider equipment items.
func Summarize(j domain.CalculationJob) domain.JobSummary {
	s := domain.JobSummary{Total: len(j.Items)}
	for _, it := range j.Items {
		switch it.State {
		case domain.ItemSucceeded:
			s.Succeeded++
		case domain.ItemFailed:
			s.Failed++
			continue
		default:
			continue
		}
		if it.EntityKind != domain.EntityEquipment {
			continue
		}
		switch it.RiskRating {
		case domain.RatingCritical:
			s.CriticalCount++
		case domain.RatingHigh:
			s.HighCount++
		}
		if s.MaxRiskEntity == "" || it.RiskScore > s.MaxRiskScore {
			s.MaxRiskScore = it.RiskScore
			s.MaxRiskEntity = it.EntityID
			s.MaxRiskRating = it.RiskRating
		}
	}
	return s
}
