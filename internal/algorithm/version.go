package algorithm

import (
	"fmt"
	"math"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/hashicorp/go-multierror"

	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/domain"
)

// WeightTolerance bounds how far factor weights may drift from 1.0.
const WeightTolerance = 1e-9

type Weights struct {
	Age           float64 `json:"age"`
	Material      float64 `json:"material"`
	Maintenance   float64 `json:"maintenance"`
	Environmental float64 `json:"environmental"`
	Condition     float64 `json:"condition"`
}

func (w Weights) Sum() float64 {
	return w.Age + w.Material + w.Maintenance + w.Environmental + w.Condition
}

func (w Weights) For(f domain.Factor) float64 {
	switch f {
	case domain.FactorAge:
		return w.Age
	case domain.FactorMaterial:
		return w.Material
	case domain.FactorMaintenance:
		return w.Maintenance
	case domain.FactorEnvironmental:
		return w.Environmental
	case domain.FactorCondition:
		return w.Condition
	}
	return 0
}

// TypeProfile is the per-equipment-type lookup row.
type TypeProfile struct {
	ServiceLifeYears float64 `json:"service_life_years"`
	AgeMultiplier    float64 `json:"age_multiplier"`
	ImportanceFactor float64 `json:"importance_factor"`
}

type MaterialParams struct {
	Base                map[domain.ConductorMaterial]float64 `json:"base"`
	DissimilarSurcharge float64                              `json:"dissimilar_surcharge"`
}

type MaintenanceParams struct {
	// WithinIntervalMax is the sub-score reached exactly at the end of the
	// recommended interval.
	WithinIntervalMax float64 `json:"within_interval_max"`
	OverdueBase       float64 `json:"overdue_base"`
	// OverdueGrowth is the exponential rate per overdue month.
	OverdueGrowth float64 `json:"overdue_growth"`
}

type EnvironmentParams struct {
	HumidityThresholdPct  float64                          `json:"humidity_threshold_pct"`
	TemperatureThresholdC float64                          `json:"temperature_threshold_c"`
	TemperatureCeilingC   float64                          `json:"temperature_ceiling_c"`
	HumidityWeight        float64                          `json:"humidity_weight"`
	TemperatureWeight     float64                          `json:"temperature_weight"`
	ExposureWeight        float64                          `json:"exposure_weight"`
	Exposure              map[domain.ExposureClass]float64 `json:"exposure"`
	DefaultExposure       domain.ExposureClass             `json:"default_exposure"`
}

type ConditionParams struct {
	Scale           map[domain.Severity]float64 `json:"scale"`
	CorrosionWeight float64                     `json:"corrosion_weight"`
	RustWeight      float64                     `json:"rust_weight"`
	WearWeight      float64                     `json:"wear_weight"`
}

type ComplianceParams struct {
	LookbackYears      int     `json:"lookback_years"`
	StudyValidityYears int     `json:"study_validity_years"`
	StudyWeight        float64 `json:"study_weight"`
	LabelWeight        float64 `json:"label_weight"`
	CompliantAt        float64 `json:"compliant_at"`
	WarningAt          float64 `json:"warning_at"`
}

// ForecastParams carries the smoothing constants and the end-of-life aging
// curve A(f) = min(100, 100*f^AgingExponent), f = age / service life.
type ForecastParams struct {
	Model               string  `json:"model"`
	Alpha               float64 `json:"alpha"`
	Beta                float64 `json:"beta"`
	AgingExponent       float64 `json:"aging_exponent"`
	TrendThreshold      float64 `json:"trend_threshold"`
	MovingAverageWindow int     `json:"moving_average_window"`
}

type Params struct {
	Material    MaterialParams    `json:"material"`
	Maintenance MaintenanceParams `json:"maintenance"`
	Environment EnvironmentParams `json:"environment"`
	Condition   ConditionParams   `json:"condition"`
	Compliance  ComplianceParams  `json:"compliance"`
	Forecast    ForecastParams    `json:"forecast"`
}

// RatingThresholds are the lower bounds of each band above Low.
type RatingThresholds struct {
	Medium   float64 `json:"medium"`
	High     float64 `json:"high"`
	Critical float64 `json:"critical"`
}

var DefaultRatingThresholds = RatingThresholds{Medium: 41, High: 71, Critical: 86}

func (t RatingThresholds) Rate(score float64) domain.RiskRating {
	switch {
	case score >= t.Critical:
		return domain.RatingCritical
	case score >= t.High:
		return domain.RatingHigh
	case score >= t.Medium:
		return domain.RatingMedium
	default:
		return domain.RatingLow
	}
}

// Version is a published, immutable scoring definition. Values handed out
// by the Repository are deep copies.
type Version struct {
	Version        string                               `json:"version"`
	EffectiveDate  time.Time                            `json:"effective_date"`
	PublishedAt    time.Time                            `json:"published_at"`
	Description    string                               `json:"description,omitempty"`
	Weights        Weights                              `json:"weights"`
	Params         Params                               `json:"params"`
	Types          map[domain.EquipmentType]TypeProfile `json:"types"`
	RatingOverride *RatingThresholds                    `json:"rating_override,omitempty"`
}

func (v Version) Profile(t domain.EquipmentType) (TypeProfile, bool) {
	p, ok := v.Types[t]
	return p, ok
}

func (v Version) Thresholds() RatingThresholds {
	if v.RatingOverride != nil {
		return *v.RatingOverride
	}
	return DefaultRatingThresholds
}

func (v Version) Rate(score float64) domain.RiskRating {
	return v.Thresholds().Rate(score)
}

func (v Version) Clone() Version {
	out := v
	out.Types = make(map[domain.EquipmentType]TypeProfile, len(v.Types))
	for k, p := range v.Types {
		out.Types[k] = p
	}
	out.Params.Material.Base = make(map[domain.ConductorMaterial]float64, len(v.Params.Material.Base))
	for k, b := range v.Params.Material.Base {
		out.Params.Material.Base[k] = b
	}
	out.Params.Environment.Exposure = make(map[domain.ExposureClass]float64, len(v.Params.Environment.Exposure))
	for k, e := range v.Params.Environment.Exposure {
		out.Params.Environment.Exposure[k] = e
	}
	out.Params.Condition.Scale = make(map[domain.Severity]float64, len(v.Params.Condition.Scale))
	for k, s := range v.Params.Condition.Scale {
		out.Params.Condition.Scale[k] = s
	}
	if v.RatingOverride != nil {
		r := *v.RatingOverride
		out.RatingOverride = &r
	}
	return out
}

func (v Version) semver() (*semver.Version, error) {
	return semver.StrictNewVersion(v.Version)
}

// Validate checks a definition before it is published. Weight problems
// are reported as ErrInvalidWeights, everything else as ErrValidation.
func (v Version) Validate() error {
	if _, err := v.semver(); err != nil {
		return fmt.Errorf("%w: version %q is not a semantic version: %v", domain.ErrValidation, v.Version, err)
	}

	var werr *multierror.Error
	for _, f := range domain.Factors {
		w := v.Weights.For(f)
		if w < 0 || w > 1 || math.IsNaN(w) {
			werr = multierror.Append(werr, fmt.Errorf("weight %s=%v outside [0,1]", f, w))
		}
	}
	if sum := v.Weights.Sum(); math.Abs(sum-1.0) > WeightTolerance {
		werr = multierror.Append(werr, fmt.Errorf("weights sum to %v, want 1.0", sum))
	}
	if werr != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidWeights, werr)
	}

	var verr *multierror.Error
	for _, t := range domain.EquipmentTypes {
		p, ok := v.Types[t]
		if !ok {
			verr = multierror.Append(verr, fmt.Errorf("missing type profile for %s", t))
			continue
		}
		if p.ServiceLifeYears <= 0 {
			verr = multierror.Append(verr, fmt.Errorf("%s: service life must be positive", t))
		}
		if p.AgeMultiplier <= 0 {
			verr = multierror.Append(verr, fmt.Errorf("%s: age multiplier must be positive", t))
		}
		if p.ImportanceFactor <= 0 {
			verr = multierror.Append(verr, fmt.Errorf("%s: importance factor must be positive", t))
		}
	}
	for _, err := range v.Params.validate() {
		verr = multierror.Append(verr, err)
	}
	fp := v.Params.Forecast
	if fp.Alpha <= 0 || fp.Alpha > 1 {
		verr = multierror.Append(verr, fmt.Errorf("forecast alpha %v outside (0,1]", fp.Alpha))
	}
	if fp.Beta < 0 || fp.Beta > 1 {
		verr = multierror.Append(verr, fmt.Errorf("forecast beta %v outside [0,1]", fp.Beta))
	}
	if v.RatingOverride != nil {
		r := v.RatingOverride
		if !(0 < r.Medium && r.Medium < r.High && r.High < r.Critical && r.Critical <= 100) {
			verr = multierror.Append(verr, fmt.Errorf("rating thresholds must increase within (0,100]"))
		}
	}
	if verr != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, verr)
	}
	return nil
}

// validate checks the lookup tables and bounds the calculators index into,
// so a published version can score every valid equipment record.
func (p Params) validate() []error {
	var errs []error
	for _, m := range domain.ConductorMaterials {
		if _, ok := p.Material.Base[m]; !ok {
			errs = append(errs, fmt.Errorf("material table missing %s", m))
		}
	}
	for _, s := range domain.Severities {
		if _, ok := p.Condition.Scale[s]; !ok {
			errs = append(errs, fmt.Errorf("condition scale missing %s", s))
		}
	}
	for _, x := range domain.ExposureClasses {
		if _, ok := p.Environment.Exposure[x]; !ok {
			errs = append(errs, fmt.Errorf("exposure table missing %s", x))
		}
	}
	if _, ok := p.Environment.Exposure[p.Environment.DefaultExposure]; !ok {
		errs = append(errs, fmt.Errorf("default exposure %q has no score", p.Environment.DefaultExposure))
	}
	if p.Maintenance.OverdueBase <= 0 {
		errs = append(errs, fmt.Errorf("maintenance overdue base must be positive"))
	}
	c := p.Compliance
	if c.LookbackYears <= 0 || c.StudyValidityYears <= 0 {
		errs = append(errs, fmt.Errorf("compliance lookback and study validity must be positive"))
	}
	if math.Abs(c.StudyWeight+c.LabelWeight-1.0) > WeightTolerance {
		errs = append(errs, fmt.Errorf("70E study and label weights sum to %v, want 1.0", c.StudyWeight+c.LabelWeight))
	}
	if !(0 < c.WarningAt && c.WarningAt < c.CompliantAt && c.CompliantAt <= 100) {
		errs = append(errs, fmt.Errorf("compliance thresholds must satisfy 0 < warning_at < compliant_at <= 100"))
	}
	if p.Forecast.AgingExponent <= 0 {
		errs = append(errs, fmt.Errorf("forecast aging exponent must be positive"))
	}
	if p.Forecast.MovingAverageWindow < 1 {
		errs = append(errs, fmt.Errorf("forecast moving average window must be at least 1"))
	}
	return errs
}
