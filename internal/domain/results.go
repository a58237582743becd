package domain

import "time"

type RiskRating string

const (
	RatingLow      RiskRating = "Low"
	RatingMedium   RiskRating = "Medium"
	RatingHigh     RiskRating = "High"
	RatingCritical RiskRating = "Critical"
)

// Severe reports whether the rating is High or Critical.
func (r RiskRating) Severe() bool { return r == RatingHigh || r == RatingCritical }

type Factor string

const (
	FactorAge           Factor = "age"
	FactorMaterial      Factor = "material"
	FactorMaintenance   Factor = "maintenance"
	FactorEnvironmental Factor = "environmental"
	FactorCondition     Factor = "condition"
)

// Factors is the fixed evaluation and reporting order.
var Factors = []Factor{FactorAge, FactorMaterial, FactorMaintenance, FactorEnvironmental, FactorCondition}

type FactorContribution struct {
	Factor       Factor  `json:"factor"`
	SubScore     float64 `json:"sub_score"`
	Weight       float64 `json:"weight"`
	Contribution float64 `json:"contribution"`
	Description  string  `json:"description"`
}

type RiskAssessment struct {
	EquipmentID      string               `json:"equipment_id"`
	EquipmentType    EquipmentType        `json:"equipment_type"`
	AlgorithmVersion string               `json:"algorithm_version"`
	RiskScore        float64              `json:"risk_score"`
	RiskRating       RiskRating           `json:"risk_rating"`
	Factors          []FactorContribution `json:"factors"`
	ComputedAt       time.Time            `json:"computed_at"`
}

// SubScore returns the sub-score recorded for f, or 0.
func (a RiskAssessment) SubScore(f Factor) float64 {
	for _, c := range a.Factors {
		if c.Factor == f {
			return c.SubScore
		}
	}
	return 0
}

type ComplianceStandard string

const (
	NFPA70B ComplianceStandard = "70B"
	NFPA70E ComplianceStandard = "70E"
)

type ComplianceStatus string

const (
	StatusCompliant       ComplianceStatus = "Compliant"
	StatusWarning         ComplianceStatus = "Warning"
	StatusOutOfCompliance ComplianceStatus = "OutOfCompliance"
)

type EntityKind string

const (
	EntityEquipment EntityKind = "equipment"
	EntityFacility  EntityKind = "facility"
)

type ComplianceDetail struct {
	EligibleIntervals int        `json:"eligible_intervals,omitempty"`
	MissedIntervals   int        `json:"missed_intervals,omitempty"`
	RecordCount       int        `json:"record_count,omitempty"`
	LastServiceDate   *time.Time `json:"last_service_date,omitempty"`
	NextServiceDue    *time.Time `json:"next_service_due,omitempty"`
	StudyRecency      float64    `json:"study_recency,omitempty"`
	Labeling          float64    `json:"labeling,omitempty"`
	EquipmentCount    int        `json:"equipment_count,omitempty"`
	Note              string     `json:"note,omitempty"`
}

type ComplianceEvaluation struct {
	EntityID         string             `json:"entity_id"`
	EntityKind       EntityKind         `json:"entity_kind"`
	Standard         ComplianceStandard `json:"standard"`
	Percentage       float64            `json:"percentage"`
	Status           ComplianceStatus   `json:"status"`
	Detail           ComplianceDetail   `json:"detail"`
	AlgorithmVersion string             `json:"algorithm_version"`
	ComputedAt       time.Time          `json:"computed_at"`
}

// ComplianceReport bundles both standards for one entity.
type ComplianceReport struct {
	EntityID string               `json:"entity_id"`
	NFPA70B  ComplianceEvaluation `json:"nfpa_70b"`
	NFPA70E  ComplianceEvaluation `json:"nfpa_70e"`
}

type CategoryBreakdown struct {
	Count            int     `json:"count"`
	MeanScore        float64 `json:"mean_score"`
	ImportanceFactor float64 `json:"importance_factor"`
}

type Threat struct {
	EquipmentID string        `json:"equipment_id"`
	Type        EquipmentType `json:"type"`
	RiskScore   float64       `json:"risk_score"`
	RiskRating  RiskRating    `json:"risk_rating"`
}

// FacilitySummary is derived from cached equipment results and is never
// authoritative on its own.
type FacilitySummary struct {
	FacilityID       string                              `json:"facility_id"`
	AlgorithmVersion string                              `json:"algorithm_version"`
	RiskScore        float64                             `json:"risk_score"`
	RiskLevel        RiskRating                          `json:"risk_level"`
	EquipmentCount   int                                 `json:"equipment_count"`
	ByType           map[EquipmentType]CategoryBreakdown `json:"by_type"`
	ByRating         map[RiskRating]int                  `json:"by_rating"`
	Compliance       ComplianceReport                    `json:"compliance"`
	TopThreats       []Threat                            `json:"top_threats"`
	ComputedAt       time.Time                           `json:"computed_at"`
}

const (
	MetricRiskScore     = "risk_score"
	MetricAgeScore      = "age_score"
	MetricCompliance70B = "compliance_70b"
	MetricCompliance70E = "compliance_70e"
)

// HistoricalDataPoint is immutable once written.
type HistoricalDataPoint struct {
	EntityID         string     `json:"entity_id" db:"entity_id"`
	EntityKind       EntityKind `json:"entity_kind" db:"entity_kind"`
	Metric           string     `json:"metric" db:"metric"`
	Period           string     `json:"period" db:"period"`
	Value            float64    `json:"value" db:"value"`
	AlgorithmVersion string     `json:"algorithm_version" db:"algorithm_version"`
	RecordedAt       time.Time  `json:"recorded_at" db:"recorded_at"`
}

// PeriodLayout formats monthly periods.
const PeriodLayout = "2006-01"

func PeriodOf(t time.Time) string { return t.UTC().Format(PeriodLayout) }
