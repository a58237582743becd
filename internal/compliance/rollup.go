package compliance

import (
	"time"

	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/algorithm"
	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/domain"
)

// RollUp combines equipment reports into the facility report. Every item
// weighs the same, so the facility figure is the equipment-count-weighted
// average of its equipment percentages.
func RollUp(facility domain.Facility, reports []domain.ComplianceReport, v algorithm.Version, asOf time.Time) domain.ComplianceReport {
	p := v.Params.Compliance
	b := domain.ComplianceEvaluation{
		EntityID:         facility.ID,
		EntityKind:       domain.EntityFacility,
		Standard:         domain.NFPA70B,
		AlgorithmVersion: v.Version,
		ComputedAt:       asOf.UTC(),
	}
	e := b
	e.Standard = domain.NFPA70E

	n := len(reports)
	b.Detail.EquipmentCount = n
	e.Detail.EquipmentCount = n
	e.Detail.StudyRecency = StudyRecency(facility.ArcFlashStudy, p, asOf)
	if n == 0 {
		b.Detail.Note = "no equipment evaluated"
		e.Detail.Note = "no equipment evaluated"
		return domain.ComplianceReport{EntityID: facility.ID, NFPA70B: finish(b, 0, p), NFPA70E: finish(e, 0, p)}
	}

	var sumB, sumE, labeled float64
	for _, r := range reports {
		sumB += r.NFPA70B.Percentage
		sumE += r.NFPA70E.Percentage
		b.Detail.EligibleIntervals += r.NFPA70B.Detail.EligibleIntervals
		b.Detail.MissedIntervals += r.NFPA70B.Detail.MissedIntervals
		b.Detail.RecordCount += r.NFPA70B.Detail.RecordCount
		if r.NFPA70E.Detail.Labeling > 0 {
			labeled++
		}
	}
	e.Detail.Labeling = labeled / float64(n) * 100

	return domain.ComplianceReport{
		EntityID: facility.ID,
		NFPA70B:  finish(b, sumB/float64(n), p),
		NFPA70E:  finish(e, sumE/float64(n), p),
	}
}

// Weighted is one facility's contribution to a portfolio roll-up.
type Weighted struct {
	EquipmentCount int
	Report         domain.ComplianceReport
}

// Portfolio averages facility percentages weighted by equipment count, so
// larger facilities move the result proportionally more.
func Portfolio(items []Weighted, v algorithm.Version, asOf time.Time) domain.ComplianceReport {
	p := v.Params.Compliance
	b := domain.ComplianceEvaluation{
		EntityKind:       domain.EntityFacility,
		Standard:         domain.NFPA70B,
		AlgorithmVersion: v.Version,
		ComputedAt:       asOf.UTC(),
	}
	e := b
	e.Standard = domain.NFPA70E

	total := 0
	var sumB, sumE float64
	for _, it := range items {
		total += it.EquipmentCount
		sumB += it.Report.NFPA70B.Percentage * float64(it.EquipmentCount)
		sumE += it.Report.NFPA70E.Percentage * float64(it.EquipmentCount)
	}
	b.Detail.EquipmentCount = total
	e.Detail.EquipmentCount = total
	if total == 0 {
		return domain.ComplianceReport{NFPA70B: finish(b, 0, p), NFPA70E: finish(e, 0, p)}
	}
	return domain.ComplianceReport{
		NFPA70B: finish(b, sumB/float64(total), p),
		NFPA70E: finish(e, sumE/float64(total), p),
	}
}
