package history

import (
	"time"

	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/domain"
)

// EquipmentPoints are the metrics tracked per equipment calculation.
func EquipmentPoints(a domain.RiskAssessment, c domain.ComplianceReport, recordedAt time.Time) []domain.HistoricalDataPoint {
	mk := point(a.EquipmentID, domain.EntityEquipment, a.AlgorithmVersion, recordedAt)
	return []domain.HistoricalDataPoint{
		mk(domain.MetricRiskScore, a.RiskScore),
		mk(domain.MetricAgeScore, a.SubScore(domain.FactorAge)),
		mk(domain.MetricCompliance70B, c.NFPA70B.Percentage),
		mk(domain.MetricCompliance70E, c.NFPA70E.Percentage),
	}
}

// FacilityPoints are the metrics tracked per facility aggregation.
func FacilityPoints(s domain.FacilitySummary, recordedAt time.Time) []domain.HistoricalDataPoint {
	mk := point(s.FacilityID, domain.EntityFacility, s.AlgorithmVersion, recordedAt)
	return []domain.HistoricalDataPoint{
		mk(domain.MetricRiskScore, s.RiskScore),
		mk(domain.MetricCompliance70B, s.Compliance.NFPA70B.Percentage),
		mk(domain.MetricCompliance70E, s.Compliance.NFPA70E.Percentage),
	}
}

func point(id string, kind domain.EntityKind, version string, at time.Time) func(string, float64) domain.HistoricalDataPoint {
	return func(metric string, value float64) domain.HistoricalDataPoint {
		return domain.HistoricalDataPoint{
			EntityID:         id,
			EntityKind:       kind,
			Metric:           metric,
			Period:           domain.PeriodOf(at),
			Value:            value,
			AlgorithmVersion: version,
			RecordedAt:       at.UTC(),
		}
	}
}
