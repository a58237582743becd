// Package history keeps the append-only metric series and assessment log,
// and projects series forward.
package history

import (
	"context"
	"sort"
	"sync"

	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/domain"
)

// SeriesKey selects one metric series. Series are always read for a single
// algorithm version because values from different versions do not compare.
type SeriesKey struct {
	EntityID         string
	EntityKind       domain.EntityKind
	Metric           string
	AlgorithmVersion string
}

// Store is implemented by the memory, PostgreSQL and DynamoDB backends.
// Nothing written is ever updated or removed.
type Store interface {
	Append(ctx context.Context, points ...domain.HistoricalDataPoint) error
	// Series returns one point per period, oldest first. When a period holds
	// several points the most recently recorded wins.
	Series(ctx context.Context, key SeriesKey) ([]domain.HistoricalDataPoint, error)
	AppendAssessment(ctx context.Context, a domain.RiskAssessment) error
	// Assessments returns the stored assessments for an equipment item in
	// the order they were computed. An empty version returns all versions.
	Assessments(ctx context.Context, equipmentID, version string) ([]domain.RiskAssessment, error)
}

// Latest collapses raw points to the newest per period, sorted by period.
// Backends that cannot do this in the query share it.
func Latest(points []domain.HistoricalDataPoint) []domain.HistoricalDataPoint {
	byPeriod := make(map[string]domain.HistoricalDataPoint, len(points))
	for _, p := range points {
		cur, ok := byPeriod[p.Period]
		if !ok || p.RecordedAt.After(cur.RecordedAt) || p.RecordedAt.Equal(cur.RecordedAt) {
			byPeriod[p.Period] = p
		}
	}
	out := make([]domain.HistoricalDataPoint, 0, len(byPeriod))
	for _, p := range byPeriod {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period < out[j].Period })
	return out
}

type MemoryStore struct {
	mu          sync.RWMutex
	points      map[SeriesKey][]domain.HistoricalDataPoint
	assessments map[string][]domain.RiskAssessment
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		points:      map[SeriesKey][]domain.HistoricalDataPoint{},
		assessments: map[string][]domain.RiskAssessment{},
	}
}

func (s *MemoryStore) Append(_ context.Context, points ...domain.HistoricalDataPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range points {
		k := SeriesKey{EntityID: p.EntityID, EntityKind: p.EntityKind, Metric: p.Metric, AlgorithmVersion: p.AlgorithmVersion}
		s.points[k] = append(s.points[k], p)
	}
	return nil
}

func (s *MemoryStore) Series(_ context.Context, key SeriesKey) ([]domain.HistoricalDataPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Latest(s.points[key]), nil
}

func (s *MemoryStore) AppendAssessment(_ context.Context, a domain.RiskAssessment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assessments[a.EquipmentID] = append(s.assessments[a.EquipmentID], cloneAssessment(a))
	return nil
}

func (s *MemoryStore) Assessments(_ context.Context, equipmentID, version string) ([]domain.RiskAssessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.RiskAssessment
	for _, a := range s.assessments[equipmentID] {
		if version == "" || a.AlgorithmVersion == version {
			out = append(out, cloneAssessment(a))
		}
	}
	return out, nil
}

func cloneAssessment(a domain.RiskAssessment) domain.RiskAssessment {
	a.Factors = append([]domain.FactorContribution(nil), a.Factors...)
	return a
}
