package algorithm

import (
	"time"

	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/domain"
)

const (
	DefaultVersionID = "1.0.0"

	ModelHoltLinear        = "holt-linear"
	ModelSimpleExponential = "simple-exponential"
	ModelMovingAverage     = "moving-average"
)

// DefaultVersion is the bootstrap definition seeded into an empty store.
// The aging curve (exponent 2.0) and the smoothing constants
// (alpha 0.5, beta 0.3) are chosen here rather than fixed in code.
func DefaultVersion() Version {
	return Version{
		Version:       DefaultVersionID,
		EffectiveDate: time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
		Description:   "reference weights and NFPA 70B/70E policy",
		Weights: Weights{
			Age:           0.35,
			Maintenance:   0.25,
			Material:      0.20,
			Environmental: 0.10,
			Condition:     0.10,
		},
		Types: map[domain.EquipmentType]TypeProfile{
			domain.EquipmentPanel:       {ServiceLifeYears: 35, AgeMultiplier: 1.0, ImportanceFactor: 1.0},
			domain.EquipmentTransformer: {ServiceLifeYears: 30, AgeMultiplier: 1.2, ImportanceFactor: 3.0},
			domain.EquipmentSwitchboard: {ServiceLifeYears: 40, AgeMultiplier: 1.0, ImportanceFactor: 3.0},
			domain.EquipmentBreaker:     {ServiceLifeYears: 30, AgeMultiplier: 1.1, ImportanceFactor: 1.0},
			domain.EquipmentOther:       {ServiceLifeYears: 30, AgeMultiplier: 1.0, ImportanceFactor: 0.5},
		},
		Params: Params{
			Material: MaterialParams{
				Base: map[domain.ConductorMaterial]float64{
					domain.MaterialAluminum:           85,
					domain.MaterialCopperCladAluminum: 60,
					domain.MaterialCopper:             25,
					domain.MaterialUnknown:            50,
				},
				DissimilarSurcharge: 15,
			},
			Maintenance: MaintenanceParams{
				WithinIntervalMax: 40,
				OverdueBase:       50,
				OverdueGrowth:     0.1,
			},
			Environment: EnvironmentParams{
				HumidityThresholdPct:  60,
				TemperatureThresholdC: 35,
				TemperatureCeilingC:   60,
				HumidityWeight:        0.4,
				TemperatureWeight:     0.3,
				ExposureWeight:        0.3,
				Exposure: map[domain.ExposureClass]float64{
					domain.ExposureIndoor:    20,
					domain.ExposureSheltered: 50,
					domain.ExposureOutdoor:   80,
					domain.ExposureCorrosive: 100,
				},
				DefaultExposure: domain.ExposureIndoor,
			},
			Condition: ConditionParams{
				Scale: map[domain.Severity]float64{
					domain.SeverityNone:     0,
					domain.SeverityMinimal:  25,
					domain.SeverityModerate: 60,
					domain.SeveritySevere:   100,
				},
				CorrosionWeight: 0.4,
				RustWeight:      0.3,
				WearWeight:      0.3,
			},
			Compliance: ComplianceParams{
				LookbackYears:      5,
				StudyValidityYears: 5,
				StudyWeight:        0.7,
				LabelWeight:        0.3,
				CompliantAt:        90,
				WarningAt:          75,
			},
			Forecast: ForecastParams{
				Model:               ModelHoltLinear,
				Alpha:               0.5,
				Beta:                0.3,
				AgingExponent:       2.0,
				TrendThreshold:      0.10,
				MovingAverageWindow: 3,
			},
		},
	}
}
