package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/aggregate"
	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/algorithm"
	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/cache"
	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/compliance"
	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/domain"
	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/history"
	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/jobs"
	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/risk"
)

var (
	_ jobs.Processor  = (*Engine)(nil)
	_ cache.Refresher = (*Engine)(nil)
)

// ProcessEquipment scores one equipment item for a job and caches the
// result.
func (e *Engine) ProcessEquipment(ctx context.Context, equipmentID, version string) (domain.ItemResult, error) {
	v, err := e.algorithms.Get(version)
	if err != nil {
		return domain.ItemResult{}, err
	}
	key := cache.Key{EntityID: equipmentID, Kind: domain.EntityEquipment, Version: v.Version}
	r, err := e.computeEquipment(ctx, equipmentID, v)
	if err != nil {
		return domain.ItemResult{}, err
	}
	e.cache.Put(key, r)
	e.remember(ctx, r)
	return domain.ItemResult{
		EntityID:   equipmentID,
		EntityKind: domain.EntityEquipment,
		State:      domain.ItemSucceeded,
		RiskScore:  r.Assessment.RiskScore,
		RiskRating: r.Assessment.RiskRating,
		ResultRefs: []string{key.String()},
	}, nil
}

// AggregateFacility summarizes a facility from its members' cached
// results. Members without a usable fresh result are recomputed first.
func (e *Engine) AggregateFacility(ctx context.Context, facilityID, version string) (domain.ItemResult, error) {
	v, err := e.algorithms.Get(version)
	if err != nil {
		return domain.ItemResult{}, err
	}
	key := cache.Key{EntityID: facilityID, Kind: domain.EntityFacility, Version: v.Version}
	r, err := e.computeFacility(ctx, facilityID, v)
	if err != nil {
		return domain.ItemResult{}, err
	}
	e.cache.Put(key, r)
	e.remember(ctx, r)
	return domain.ItemResult{
		EntityID:   facilityID,
		EntityKind: domain.EntityFacility,
		State:      domain.ItemSucceeded,
		RiskScore:  r.Summary.RiskScore,
		RiskRating: r.Summary.RiskLevel,
		ResultRefs: []string{key.String()},
	}, nil
}

func (e *Engine) AffectedFacilities(equipmentIDs []string) []string {
	seen := map[string]struct{}{}
	for _, id := range equipmentIDs {
		if fid, ok := e.inventory.FacilityOf(id); ok {
			seen[fid] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for fid := range seen {
		out = append(out, fid)
	}
	sort.Strings(out)
	return out
}

// Refresh recomputes a cache entry in the background. The cache stores
// the returned result itself.
func (e *Engine) Refresh(ctx context.Context, key cache.Key) (cache.Result, error) {
	v, err := e.algorithms.Get(key.Version)
	if err != nil {
		return cache.Result{}, err
	}
	r, err := e.compute(ctx, key, v)
	if err != nil {
		return cache.Result{}, err
	}
	e.remember(ctx, r)
	return r, nil
}

func (e *Engine) compute(ctx context.Context, key cache.Key, v algorithm.Version) (cache.Result, error) {
	switch key.Kind {
	case domain.EntityEquipment:
		return e.computeEquipment(ctx, key.EntityID, v)
	case domain.EntityFacility:
		return e.computeFacility(ctx, key.EntityID, v)
	}
	return cache.Result{}, fmt.Errorf("%w: unknown entity kind %q", domain.ErrValidation, key.Kind)
}

func (e *Engine) computeEquipment(ctx context.Context, id string, v algorithm.Version) (cache.Result, error) {
	eq, ok := e.inventory.Equipment(id)
	if !ok {
		return cache.Result{}, fmt.Errorf("%w: equipment %s", domain.ErrNotFound, id)
	}
	var facility *domain.Facility
	if fid, ok := e.inventory.FacilityOf(id); ok {
		if f, ok := e.inventory.Facility(fid); ok {
			facility = &f
		}
	}

	asOf := e.now().UTC()
	a, err := risk.Calculate(risk.Input{
		Equipment:         eq,
		Facility:          facility,
		LatestMaintenance: e.inventory.LatestMaintenance(id),
	}, v, asOf)
	if err != nil {
		return cache.Result{}, err
	}

	in := compliance.Input{Equipment: eq, Records: e.inventory.Maintenance(id)}
	if facility != nil {
		in.Study = facility.ArcFlashStudy
	}
	c := compliance.Evaluate(in, v, asOf)

	if err := ctx.Err(); err != nil {
		return cache.Result{}, err
	}
	return cache.Result{Assessment: &a, Compliance: &c}, nil
}

func (e *Engine) computeFacility(ctx context.Context, id string, v algorithm.Version) (cache.Result, error) {
	f, ok := e.inventory.Facility(id)
	if !ok {
		return cache.Result{}, fmt.Errorf("%w: facility %s", domain.ErrNotFound, id)
	}

	members := e.inventory.FacilityEquipmentIDs(id)
	results := make([]*aggregate.EquipmentResult, len(members))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.settings.RecomputeLimit)
	for i, eid := range members {
		i, eid := i, eid
		e.cache.Link(eid, id)
		g.Go(func() error {
			r, err := e.memberResult(gctx, eid, v)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return cache.Result{}, err
	}

	scored := make([]aggregate.EquipmentResult, 0, len(results))
	for _, r := range results {
		if r != nil {
			scored = append(scored, *r)
		}
	}
	if skipped := len(members) - len(scored); skipped > 0 {
		e.logger.Debug().Str("facility_id", id).Int("skipped", skipped).Msg("members without a result left out of aggregate")
	}

	s := aggregate.Summarize(f, scored, v, membersAsOf(scored, e.now))
	return cache.Result{Summary: &s}, nil
}

// membersAsOf is the latest ComputedAt among the members, so a facility
// whose members did not change aggregates to the same summary. A facility
// with no scored members falls back to now.
func membersAsOf(members []aggregate.EquipmentResult, now func() time.Time) time.Time {
	var latest time.Time
	for _, m := range members {
		if m.Assessment.ComputedAt.After(latest) {
			latest = m.Assessment.ComputedAt
		}
	}
	if latest.IsZero() {
		return now().UTC()
	}
	return latest
}

// memberResult returns the cached result of a facility member, recomputing
// it when missing or stale. A member that cannot be scored is left out
// (nil) unless a stale result is available.
func (e *Engine) memberResult(ctx context.Context, id string, v algorithm.Version) (*aggregate.EquipmentResult, error) {
	key := cache.Key{EntityID: id, Kind: domain.EntityEquipment, Version: v.Version}
	entry, cached := e.cache.Peek(key)
	if cached && !entry.IsStale() {
		return asMember(entry.Result), nil
	}

	r, err := e.computeEquipment(ctx, id, v)
	switch {
	case err == nil:
		e.cache.Put(key, r)
		e.remember(ctx, r)
		return asMember(r), nil
	case cached:
		e.logger.Warn().Err(err).Str("equipment_id", id).Msg("aggregating stale member result")
		return asMember(entry.Result), nil
	case errors.Is(err, domain.ErrIncompleteInput), errors.Is(err, domain.ErrNotFound):
		return nil, nil
	}
	return nil, err
}

func asMember(r cache.Result) *aggregate.EquipmentResult {
	if r.Assessment == nil || r.Compliance == nil {
		return nil
	}
	return &aggregate.EquipmentResult{Assessment: *r.Assessment, Compliance: *r.Compliance}
}

// remember appends the history points of a completed calculation. History
// failures are logged; the result itself stays valid.
func (e *Engine) remember(ctx context.Context, r cache.Result) {
	at := r.ComputedAt()
	var points []domain.HistoricalDataPoint
	switch {
	case r.Summary != nil:
		points = history.FacilityPoints(*r.Summary, at)
	case r.Assessment != nil && r.Compliance != nil:
		if err := e.history.AppendAssessment(ctx, *r.Assessment); err != nil {
			e.logger.Error().Err(err).Str("equipment_id", r.Assessment.EquipmentID).Msg("record assessment")
		}
		points = history.EquipmentPoints(*r.Assessment, *r.Compliance, at)
	}
	if len(points) == 0 {
		return
	}
	if err := e.history.Append(ctx, points...); err != nil {
		e.logger.Error().Err(err).Str("entity_id", points[0].EntityID).Msg("record history")
	}
}
