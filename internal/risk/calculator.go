// Package risk scores a single equipment item against one algorithm version.
package risk

import (
	"fmt"
	"math"
	"time"

	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/algorithm"
	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/domain"
)

const (
	daysPerYear  = 365.25
	daysPerMonth = daysPerYear / 12
)

// Input is the snapshot scored by Calculate. Facility and LatestMaintenance
// are optional: the facility environment fills missing observations and a
// maintenance record newer than the equipment summary wins.
type Input struct {
	Equipment         domain.Equipment
	Facility          *domain.Facility
	LatestMaintenance *domain.MaintenanceRecord
}

// Calculate is a pure function of (in, v, asOf). ComputedAt is asOf, so the
// same snapshot and version always yield an identical assessment.
func Calculate(in Input, v algorithm.Version, asOf time.Time) (domain.RiskAssessment, error) {
	eq := in.Equipment
	if eq.ID == "" {
		return domain.RiskAssessment{}, domain.Incomplete("<unknown>", "id")
	}
	profile, ok := v.Profile(eq.Type)
	if !ok {
		return domain.RiskAssessment{}, domain.Incomplete(eq.ID, "type")
	}
	if eq.InstallDate.IsZero() {
		return domain.RiskAssessment{}, domain.Incomplete(eq.ID, "install_date")
	}
	if eq.ConductorMaterial == "" {
		return domain.RiskAssessment{}, domain.Incomplete(eq.ID, "conductor_material")
	}
	if eq.Maintenance.IntervalMonths <= 0 {
		return domain.RiskAssessment{}, domain.Incomplete(eq.ID, "maintenance.interval_months")
	}

	age, ageDesc := ageScore(eq, profile, asOf)
	material, materialDesc, err := materialScore(eq, v.Params.Material)
	if err != nil {
		return domain.RiskAssessment{}, err
	}
	maint, maintDesc := maintenanceScore(eq, in.LatestMaintenance, v.Params.Maintenance, asOf)
	env, envDesc, err := environmentalScore(eq, in.Facility, v.Params.Environment)
	if err != nil {
		return domain.RiskAssessment{}, err
	}
	cond, condDesc, err := conditionScore(eq, v.Params.Condition)
	if err != nil {
		return domain.RiskAssessment{}, err
	}

	subs := map[domain.Factor]struct {
		score float64
		desc  string
	}{
		domain.FactorAge:           {age, ageDesc},
		domain.FactorMaterial:      {material, materialDesc},
		domain.FactorMaintenance:   {maint, maintDesc},
		domain.FactorEnvironmental: {env, envDesc},
		domain.FactorCondition:     {cond, condDesc},
	}

	factors := make([]domain.FactorContribution, 0, len(domain.Factors))
	total := 0.0
	for _, f := range domain.Factors {
		s := subs[f]
		w := v.Weights.For(f)
		contribution := s.score * w
		total += contribution
		factors = append(factors, domain.FactorContribution{
			Factor:       f,
			SubScore:     round2(s.score),
			Weight:       w,
			Contribution: round2(contribution),
			Description:  s.desc,
		})
	}

	score := round2(clamp(total))
	return domain.RiskAssessment{
		EquipmentID:      eq.ID,
		EquipmentType:    eq.Type,
		AlgorithmVersion: v.Version,
		RiskScore:        score,
		RiskRating:       v.Rate(score),
		Factors:          factors,
		ComputedAt:       asOf.UTC(),
	}, nil
}

// AgeYears is the equipment age at asOf, never negative.
func AgeYears(install, asOf time.Time) float64 {
	years := asOf.Sub(install).Hours() / 24 / daysPerYear
	return math.Max(0, years)
}

func ageScore(eq domain.Equipment, p algorithm.TypeProfile, asOf time.Time) (float64, string) {
	years := AgeYears(eq.InstallDate, asOf)
	score := math.Min(100, years/p.ServiceLifeYears*100*p.AgeMultiplier)
	return score, fmt.Sprintf("%.1f years against %.0f year service life (x%.2f)", years, p.ServiceLifeYears, p.AgeMultiplier)
}

func materialScore(eq domain.Equipment, p algorithm.MaterialParams) (float64, string, error) {
	base, ok := p.Base[eq.ConductorMaterial]
	if !ok {
		return 0, "", domain.Incomplete(eq.ID, "conductor_material")
	}
	desc := fmt.Sprintf("%s conductors", eq.ConductorMaterial)
	if eq.DissimilarMetals {
		base += p.DissimilarSurcharge
		desc += " with dissimilar-metal connections"
	}
	return math.Min(100, base), desc, nil
}

// lastService picks the most recent service date known for eq, falling back
// to the install date for equipment never serviced.
func lastService(eq domain.Equipment, latest *domain.MaintenanceRecord) time.Time {
	last := eq.InstallDate
	if eq.Maintenance.LastServiceDate != nil && eq.Maintenance.LastServiceDate.After(last) {
		last = *eq.Maintenance.LastServiceDate
	}
	if latest != nil && latest.Date.After(last) {
		last = latest.Date
	}
	return last
}

func maintenanceScore(eq domain.Equipment, latest *domain.MaintenanceRecord, p algorithm.MaintenanceParams, asOf time.Time) (float64, string) {
	last := lastService(eq, latest)
	elapsed := math.Max(0, asOf.Sub(last).Hours()/24/daysPerMonth)
	interval := float64(eq.Maintenance.IntervalMonths)

	if elapsed <= interval {
		return p.WithinIntervalMax * elapsed / interval,
			fmt.Sprintf("serviced %.1f months ago, within %d month interval", elapsed, eq.Maintenance.IntervalMonths)
	}
	overdue := elapsed - interval
	score := math.Min(100, p.OverdueBase*math.Exp(p.OverdueGrowth*overdue))
	return score, fmt.Sprintf("%.1f months overdue on %d month interval", overdue, eq.Maintenance.IntervalMonths)
}

func environmentalScore(eq domain.Equipment, f *domain.Facility, p algorithm.EnvironmentParams) (float64, string, error) {
	var humidity, temperature float64
	exposure := p.DefaultExposure

	switch {
	case eq.Condition.HumidityPct != nil:
		humidity = *eq.Condition.HumidityPct
	case f != nil:
		humidity = f.Environment.AvgHumidityPct
	default:
		return 0, "", domain.Incomplete(eq.ID, "condition.humidity_pct")
	}
	switch {
	case eq.Condition.TemperatureC != nil:
		temperature = *eq.Condition.TemperatureC
	case f != nil:
		temperature = f.Environment.AvgTemperatureC
	default:
		return 0, "", domain.Incomplete(eq.ID, "condition.temperature_c")
	}
	if f != nil && f.Environment.Exposure != "" {
		exposure = f.Environment.Exposure
	}

	hf := thresholdFactor(humidity, p.HumidityThresholdPct, 100)
	tf := thresholdFactor(temperature, p.TemperatureThresholdC, p.TemperatureCeilingC)
	ef := p.Exposure[exposure]

	wsum := p.HumidityWeight + p.TemperatureWeight + p.ExposureWeight
	if wsum <= 0 {
		return 0, "no environmental weights", nil
	}
	score := (p.HumidityWeight*hf + p.TemperatureWeight*tf + p.ExposureWeight*ef) / wsum
	return clamp(score), fmt.Sprintf("humidity %.0f%%, temperature %.1fC, %s exposure", humidity, temperature, exposure), nil
}

// thresholdFactor maps a reading to 0..50 below its threshold and 50..100
// between the threshold and the ceiling.
func thresholdFactor(value, threshold, ceiling float64) float64 {
	if threshold <= 0 {
		return 0
	}
	if value <= threshold {
		return 50 * math.Max(0, value) / threshold
	}
	span := ceiling - threshold
	if span <= 0 {
		return 100
	}
	return 50 + 50*math.Min(1, (value-threshold)/span)
}

func conditionScore(eq domain.Equipment, p algorithm.ConditionParams) (float64, string, error) {
	ratings := []struct {
		field  string
		level  domain.Severity
		weight float64
	}{
		{"condition.corrosion", eq.Condition.Corrosion, p.CorrosionWeight},
		{"condition.rust", eq.Condition.Rust, p.RustWeight},
		{"condition.wear", eq.Condition.Wear, p.WearWeight},
	}

	score, wsum := 0.0, 0.0
	for _, r := range ratings {
		value, ok := p.Scale[r.level]
		if r.level == "" || !ok {
			return 0, "", domain.Incomplete(eq.ID, r.field)
		}
		score += value * r.weight
		wsum += r.weight
	}
	if wsum > 0 {
		score /= wsum
	}
	return clamp(score), fmt.Sprintf("corrosion %s, rust %s, wear %s", eq.Condition.Corrosion, eq.Condition.Rust, eq.Condition.Wear), nil
}

func clamp(x float64) float64 {
	return math.Max(0, math.Min(100, x))
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
