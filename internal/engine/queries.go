package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/algorithm"
	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/cache"
	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/compliance"
	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/domain"
	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/history"
	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/risk"
)

func checkKind(kind domain.EntityKind) error {
	if kind != domain.EntityEquipment && kind != domain.EntityFacility {
		return fmt.Errorf("%w: unknown entity kind %q", domain.ErrValidation, kind)
	}
	return nil
}

// GetResult returns the cached result, stale or not, or computes it
// synchronously on a miss. version "" means the current version.
func (e *Engine) GetResult(ctx context.Context, entityID string, kind domain.EntityKind, version string) (cache.Entry, error) {
	if err := checkKind(kind); err != nil {
		return cache.Entry{}, err
	}
	v, err := e.algorithms.Get(version)
	if err != nil {
		return cache.Entry{}, err
	}
	key := cache.Key{EntityID: entityID, Kind: kind, Version: v.Version}
	return e.cache.Load(ctx, key, func(ctx context.Context) (cache.Result, error) {
		r, err := e.compute(ctx, key, v)
		if err != nil {
			return cache.Result{}, err
		}
		e.remember(ctx, r)
		return r, nil
	})
}

// PublishAlgorithmVersion fails with ErrInvalidWeights or
// ErrVersionConflict. Cached results of older versions stay valid under
// their own keys.
func (e *Engine) PublishAlgorithmVersion(ctx context.Context, def algorithm.Version) (algorithm.Version, error) {
	return e.algorithms.Publish(ctx, def)
}

func (e *Engine) AlgorithmVersion(ref string) (algorithm.Version, error) {
	return e.algorithms.Get(ref)
}

func (e *Engine) AlgorithmVersions() []algorithm.Version {
	return e.algorithms.List()
}

// Forecast projects horizon months of metric for an entity under one
// algorithm version. horizon 0 uses the configured default.
func (e *Engine) Forecast(ctx context.Context, entityID string, kind domain.EntityKind, metric string, horizon int, version string) (history.Forecast, error) {
	if err := checkKind(kind); err != nil {
		return history.Forecast{}, err
	}
	v, err := e.algorithms.Get(version)
	if err != nil {
		return history.Forecast{}, err
	}
	if horizon == 0 {
		horizon = e.settings.ForecastHorizon
	}
	key := history.SeriesKey{EntityID: entityID, EntityKind: kind, Metric: metric, AlgorithmVersion: v.Version}
	series, err := e.history.Series(ctx, key)
	if err != nil {
		return history.Forecast{}, fmt.Errorf("failed to read %s series: %w", metric, err)
	}

	var aging *history.Aging
	if kind == domain.EntityEquipment && len(series) > 0 {
		aging = e.aging(entityID, v, series[len(series)-1].RecordedAt)
	}
	return history.Project(key, series, horizon, v, aging)
}

// aging describes how far through its service life the equipment was at
// the last observed point, or nil when the equipment is unknown.
func (e *Engine) aging(equipmentID string, v algorithm.Version, at time.Time) *history.Aging {
	eq, ok := e.inventory.Equipment(equipmentID)
	if !ok || eq.InstallDate.IsZero() {
		return nil
	}
	p, ok := v.Profile(eq.Type)
	if !ok || p.ServiceLifeYears <= 0 {
		return nil
	}
	return &history.Aging{
		AgeFraction:      risk.AgeYears(eq.InstallDate, at) * p.AgeMultiplier / p.ServiceLifeYears,
		ServiceLifeYears: p.ServiceLifeYears,
		AgeMultiplier:    p.AgeMultiplier,
	}
}

// TrendChanges flags month-over-month moves above the version's threshold.
func (e *Engine) TrendChanges(ctx context.Context, entityID string, kind domain.EntityKind, metric, version string) ([]history.TrendChange, error) {
	if err := checkKind(kind); err != nil {
		return nil, err
	}
	v, err := e.algorithms.Get(version)
	if err != nil {
		return nil, err
	}
	series, err := e.history.Series(ctx, history.SeriesKey{EntityID: entityID, EntityKind: kind, Metric: metric, AlgorithmVersion: v.Version})
	if err != nil {
		return nil, fmt.Errorf("failed to read %s series: %w", metric, err)
	}
	return history.TrendChanges(series, v.Params.Forecast.TrendThreshold), nil
}

// AssessmentHistory returns stored assessments exactly as computed. An
// empty version returns every version.
func (e *Engine) AssessmentHistory(ctx context.Context, equipmentID, version string) ([]domain.RiskAssessment, error) {
	return e.history.Assessments(ctx, equipmentID, version)
}

// PortfolioCompliance rolls facility compliance up across facilityIDs, or
// across every known facility when none are named.
func (e *Engine) PortfolioCompliance(ctx context.Context, facilityIDs []string, version string) (domain.ComplianceReport, error) {
	v, err := e.algorithms.Get(version)
	if err != nil {
		return domain.ComplianceReport{}, err
	}
	if len(facilityIDs) == 0 {
		facilityIDs = e.inventory.FacilityIDs()
	}
	items := make([]compliance.Weighted, 0, len(facilityIDs))
	for _, id := range facilityIDs {
		entry, err := e.GetResult(ctx, id, domain.EntityFacility, v.Version)
		if err != nil {
			return domain.ComplianceReport{}, fmt.Errorf("facility %s: %w", id, err)
		}
		s := entry.Result.Summary
		items = append(items, compliance.Weighted{EquipmentCount: s.EquipmentCount, Report: s.Compliance})
	}
	return compliance.Portfolio(items, v, e.now().UTC()), nil
}
