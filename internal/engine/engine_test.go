package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/algorithm"
	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/cache"
	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/domain"
	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/history"
	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/jobs"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type recorder struct {
	mu     sync.Mutex
	events []domain.JobEvent
}

func (r *recorder) Notify(_ context.Context, ev domain.JobEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ptr[T any](v T) *T { return &v }

func panel() domain.Equipment {
	return domain.Equipment{
		ID:                "panel-1980",
		FacilityID:        "fac-1",
		Type:              domain.EquipmentPanel,
		InstallDate:       date(1980, time.March, 15),
		ConductorMaterial: domain.MaterialAluminum,
		Condition: domain.Condition{
			Corrosion:    domain.SeverityModerate,
			Rust:         domain.SeverityMinimal,
			Wear:         domain.SeverityModerate,
			TemperatureC: ptr(30.0),
			HumidityPct:  ptr(75.0),
		},
		Maintenance: domain.MaintenanceSummary{
			LastServiceDate: ptr(date(2022, time.August, 5)),
			IntervalMonths:  12,
		},
		Labeled: true,
	}
}

func facility() domain.Facility {
	return domain.Facility{
		ID:           "fac-1",
		Name:         "North substation",
		Environment:  domain.Environment{AvgHumidityPct: 55, AvgTemperatureC: 22, Exposure: domain.ExposureOutdoor},
		EquipmentIDs: []string{"panel-1980", "breaker-7"},
		ArcFlashStudy: &domain.ArcFlashStudy{
			LastStudyDate: date(2023, time.June, 1),
		},
	}
}

func newEngine(t *testing.T, c *clock, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithClock(c.Now)}, opts...)
	e, err := New(context.Background(), Settings{
		Jobs:  jobs.Settings{Workers: 2, QueueSize: 8, ItemTimeout: 5 * time.Second},
		Cache: cache.Settings{EquipmentTTL: 24 * time.Hour, FacilityTTL: time.Hour, RefreshTimeout: 5 * time.Second},
	}, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = e.Shutdown(ctx)
	})
	return e
}

func waitJob(t *testing.T, e *Engine, id string) domain.CalculationJob {
	t.Helper()
	done, err := e.JobDone(id)
	require.NoError(t, err)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("job %s did not finish", id)
	}
	job, err := e.JobStatus(context.Background(), id)
	require.NoError(t, err)
	return job
}

func TestSubmitRejectsInvalidInputBeforeJobExists(t *testing.T) {
	e := newEngine(t, &clock{t: date(2025, time.May, 20)})

	_, err := e.SubmitCalculation(context.Background(), Submission{})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = e.SubmitCalculation(context.Background(), Submission{
		Equipment:   []domain.Equipment{{Type: "reactor"}},
		Maintenance: []domain.MaintenanceRecord{{EquipmentID: "panel-1980"}},
		WebhookURL:  "not a url",
	})
	require.ErrorIs(t, err, domain.ErrValidation)
	assert.Contains(t, err.Error(), "Submission.Equipment[0].ID")
	assert.Contains(t, err.Error(), "Submission.Equipment[0].Type")
	assert.Contains(t, err.Error(), "Submission.Maintenance[0].Date")
	assert.Contains(t, err.Error(), "Submission.WebhookURL")
}

func TestJobCompletesWithPartialFailureAndFacilityAggregate(t *testing.T) {
	c := &clock{t: date(2025, time.May, 20)}
	notes := &recorder{}
	e := newEngine(t, c, WithNotifier(notes))
	e.Start()
	ctx := context.Background()

	broken := domain.Equipment{
		ID: "breaker-7", FacilityID: "fac-1", Type: domain.EquipmentBreaker,
		ConductorMaterial: domain.MaterialCopper,
		Maintenance:       domain.MaintenanceSummary{IntervalMonths: 12},
	}
	id, err := e.SubmitCalculation(ctx, Submission{
		Facilities: []domain.Facility{facility()},
		Equipment:  []domain.Equipment{panel(), broken},
		Maintenance: []domain.MaintenanceRecord{
			{EquipmentID: "panel-1980", Date: date(2022, time.August, 5), Findings: "torque check"},
		},
	})
	require.NoError(t, err)

	job := waitJob(t, e, id)
	assert.Equal(t, domain.JobCompleted, job.State)
	require.Len(t, job.Items, 3)

	failures := job.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "breaker-7", failures[0].EntityID)
	assert.Equal(t, "incomplete_input", failures[0].ErrorCode)
	assert.Contains(t, failures[0].Error, "install_date")

	byID := map[string]domain.ItemResult{}
	for _, it := range job.Items {
		byID[it.EntityID] = it
	}
	assert.Equal(t, domain.ItemSucceeded, byID["panel-1980"].State)
	assert.Equal(t, domain.RatingCritical, byID["panel-1980"].RiskRating)
	assert.Equal(t, domain.ItemSucceeded, byID["fac-1"].State)
	assert.Equal(t, []string{"facility/fac-1@1.0.0"}, byID["fac-1"].ResultRefs)

	entry, err := e.GetResult(ctx, "fac-1", domain.EntityFacility, "")
	require.NoError(t, err)
	require.NotNil(t, entry.Result.Summary)
	assert.False(t, entry.IsStale())
	assert.Equal(t, 1, entry.Result.Summary.EquipmentCount)
	assert.Equal(t, byID["panel-1980"].RiskScore, entry.Result.Summary.RiskScore)

	series, err := e.history.Series(ctx, history.SeriesKey{EntityID: "panel-1980", EntityKind: domain.EntityEquipment, Metric: domain.MetricRiskScore, AlgorithmVersion: "1.0.0"})
	require.NoError(t, err)
	require.Len(t, series, 1)
	assert.Equal(t, "2025-05", series[0].Period)

	portfolio, err := e.PortfolioCompliance(ctx, nil, "")
	require.NoError(t, err)
	assert.InDelta(t, entry.Result.Summary.Compliance.NFPA70B.Percentage, portfolio.NFPA70B.Percentage, 1e-9)

	notes.mu.Lock()
	defer notes.mu.Unlock()
	require.Len(t, notes.events, 1)
	assert.Equal(t, id, notes.events[0].JobID)
	assert.Equal(t, 1, notes.events[0].Summary.Failed)
	assert.Equal(t, "jobs/"+id, notes.events[0].ResultsRef)
}

func TestUnknownVersionFailsTheJob(t *testing.T) {
	e := newEngine(t, &clock{t: date(2025, time.May, 20)})
	e.Start()

	id, err := e.SubmitCalculation(context.Background(), Submission{
		Equipment:        []domain.Equipment{panel()},
		AlgorithmVersion: "9.9.9",
	})
	require.NoError(t, err)

	job := waitJob(t, e, id)
	assert.Equal(t, domain.JobFailed, job.State)
	assert.Equal(t, "unknown_algorithm_version", job.ErrorCode)
	require.Len(t, job.Items, 1)
	assert.Equal(t, domain.ItemFailed, job.Items[0].State)
}

func TestFacilityRecomputeWithoutMemberChangeIsIdentical(t *testing.T) {
	c := &clock{t: date(2025, time.May, 20)}
	e := newEngine(t, c)
	ctx := context.Background()

	_, err := e.SubmitCalculation(ctx, Submission{Facilities: []domain.Facility{facility()}, Equipment: []domain.Equipment{panel()}})
	require.NoError(t, err)

	key := cache.Key{EntityID: "fac-1", Kind: domain.EntityFacility, Version: "1.0.0"}
	_, err = e.AggregateFacility(ctx, "fac-1", "")
	require.NoError(t, err)
	first, ok := e.cache.Peek(key)
	require.True(t, ok)

	c.Set(date(2025, time.May, 20).Add(time.Minute))
	_, err = e.AggregateFacility(ctx, "fac-1", "")
	require.NoError(t, err)
	second, ok := e.cache.Peek(key)
	require.True(t, ok)

	require.NotNil(t, first.Result.Summary)
	assert.Equal(t, *first.Result.Summary, *second.Result.Summary)
	assert.Equal(t, date(2025, time.May, 20), second.Result.Summary.ComputedAt)
}

type memArchive struct {
	mu   sync.Mutex
	jobs map[string]domain.CalculationJob
}

func (a *memArchive) Store(_ context.Context, j domain.CalculationJob) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.jobs[j.ID] = j
	return "mem://" + j.ID, nil
}

func (a *memArchive) Load(_ context.Context, id string) (domain.CalculationJob, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	j, ok := a.jobs[id]
	if !ok {
		return domain.CalculationJob{}, domain.ErrNotFound
	}
	return j, nil
}

func TestEvictedJobIsReadFromArchive(t *testing.T) {
	c := &clock{t: date(2025, time.May, 20)}
	a := &memArchive{jobs: map[string]domain.CalculationJob{}}
	e, err := New(context.Background(), Settings{
		Jobs:  jobs.Settings{Workers: 1, QueueSize: 2, ItemTimeout: 5 * time.Second, Retention: 100 * time.Millisecond},
		Cache: cache.Settings{EquipmentTTL: 24 * time.Hour, FacilityTTL: time.Hour},
	}, WithClock(c.Now), WithArchive(a))
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Shutdown(context.Background()) })
	e.Start()
	ctx := context.Background()

	id, err := e.SubmitCalculation(ctx, Submission{Equipment: []domain.Equipment{panel()}})
	require.NoError(t, err)
	waitJob(t, e, id)

	require.Eventually(t, func() bool {
		_, err := e.jobs.Get(id)
		return errors.Is(err, domain.ErrNotFound)
	}, 2*time.Second, 5*time.Millisecond)

	job, err := e.JobStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.JobCompleted, job.State)
	assert.Equal(t, "panel-1980", job.Items[0].EntityID)

	_, err = e.JobStatus(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestChangedSnapshotServesStaleThenRefreshes(t *testing.T) {
	c := &clock{t: date(2025, time.May, 20)}
	e := newEngine(t, c)
	ctx := context.Background()

	// Workers are not started: submissions only update inventory and cache.
	_, err := e.SubmitCalculation(ctx, Submission{Facilities: []domain.Facility{facility()}, Equipment: []domain.Equipment{panel()}})
	require.NoError(t, err)

	first, err := e.GetResult(ctx, "panel-1980", domain.EntityEquipment, "")
	require.NoError(t, err)
	assert.False(t, first.IsStale())
	_, err = e.GetResult(ctx, "fac-1", domain.EntityFacility, "")
	require.NoError(t, err)

	moved := panel()
	moved.Condition.Wear = domain.SeveritySevere
	_, err = e.SubmitCalculation(ctx, Submission{Equipment: []domain.Equipment{moved}})
	require.NoError(t, err)

	facilityKey := cache.Key{EntityID: "fac-1", Kind: domain.EntityFacility, Version: "1.0.0"}
	fac, ok := e.cache.Peek(facilityKey)
	require.True(t, ok)
	_, reason := fac.Describe()
	assert.Equal(t, cache.ReasonSourceChanged, reason)

	stale, err := e.GetResult(ctx, "panel-1980", domain.EntityEquipment, "")
	require.NoError(t, err)
	assert.True(t, stale.IsStale())
	assert.Equal(t, first.Result.Assessment.RiskScore, stale.Result.Assessment.RiskScore)

	key := cache.Key{EntityID: "panel-1980", Kind: domain.EntityEquipment, Version: "1.0.0"}
	require.Eventually(t, func() bool {
		got, ok := e.cache.Peek(key)
		return ok && !got.IsStale()
	}, 5*time.Second, 10*time.Millisecond)

	fresh, _ := e.cache.Peek(key)
	assert.Greater(t, fresh.Result.Assessment.RiskScore, first.Result.Assessment.RiskScore)
}

func TestPublishingNewVersionLeavesEarlierAssessmentsIntact(t *testing.T) {
	c := &clock{t: date(2025, time.May, 20)}
	e := newEngine(t, c)
	ctx := context.Background()

	_, err := e.SubmitCalculation(ctx, Submission{Facilities: []domain.Facility{facility()}, Equipment: []domain.Equipment{panel()}})
	require.NoError(t, err)

	v12 := algorithm.DefaultVersion()
	v12.Version = "1.2.0"
	_, err = e.PublishAlgorithmVersion(ctx, v12)
	require.NoError(t, err)

	res12, err := e.ProcessEquipment(ctx, "panel-1980", "1.2.0")
	require.NoError(t, err)
	before, err := e.AssessmentHistory(ctx, "panel-1980", "1.2.0")
	require.NoError(t, err)
	require.Len(t, before, 1)

	c.Set(date(2025, time.June, 20))
	v13 := algorithm.DefaultVersion()
	v13.Version = "1.3.0"
	v13.Weights.Age, v13.Weights.Environmental = 0.45, 0
	_, err = e.PublishAlgorithmVersion(ctx, v13)
	require.NoError(t, err)
	assert.Equal(t, "1.3.0", e.algorithms.Current().Version)

	res13, err := e.ProcessEquipment(ctx, "panel-1980", "")
	require.NoError(t, err)
	assert.NotEqual(t, res12.RiskScore, res13.RiskScore)

	after, err := e.AssessmentHistory(ctx, "panel-1980", "1.2.0")
	require.NoError(t, err)
	assert.Equal(t, before, after)

	cached, ok := e.cache.Peek(cache.Key{EntityID: "panel-1980", Kind: domain.EntityEquipment, Version: "1.2.0"})
	require.True(t, ok)
	assert.Equal(t, before[0], *cached.Result.Assessment)

	all, err := e.AssessmentHistory(ctx, "panel-1980", "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestPublishRejectsBadDefinitions(t *testing.T) {
	e := newEngine(t, &clock{t: date(2025, time.May, 20)})
	ctx := context.Background()

	bad := algorithm.DefaultVersion()
	bad.Version = "2.0.0"
	bad.Weights.Age = 0.5
	_, err := e.PublishAlgorithmVersion(ctx, bad)
	assert.ErrorIs(t, err, domain.ErrInvalidWeights)

	_, err = e.PublishAlgorithmVersion(ctx, algorithm.DefaultVersion())
	assert.ErrorIs(t, err, domain.ErrVersionConflict)
	assert.Len(t, e.AlgorithmVersions(), 1)
}

func TestForecastFromMonthlyHistory(t *testing.T) {
	c := &clock{t: date(2025, time.January, 15)}
	e := newEngine(t, c)
	ctx := context.Background()

	_, err := e.SubmitCalculation(ctx, Submission{Facilities: []domain.Facility{facility()}, Equipment: []domain.Equipment{panel()}})
	require.NoError(t, err)
	for m := time.January; m <= time.June; m++ {
		c.Set(date(2025, m, 15))
		_, err := e.ProcessEquipment(ctx, "panel-1980", "")
		require.NoError(t, err)
	}

	f, err := e.Forecast(ctx, "panel-1980", domain.EntityEquipment, domain.MetricRiskScore, 3, "")
	require.NoError(t, err)
	assert.Equal(t, algorithm.ModelHoltLinear, f.Model)
	assert.Equal(t, "1.0.0", f.AlgorithmVersion)
	assert.Equal(t, 6, f.History)
	require.Len(t, f.Points, 3)
	assert.Equal(t, "2025-07", f.Points[0].Period)
	assert.Equal(t, "2025-09", f.Points[2].Period)
	for _, p := range f.Points {
		assert.GreaterOrEqual(t, p.Value, 0.0)
		assert.LessOrEqual(t, p.Value, 100.0)
	}

	def, err := e.Forecast(ctx, "panel-1980", domain.EntityEquipment, domain.MetricCompliance70B, 0, "")
	require.NoError(t, err)
	assert.Len(t, def.Points, 6)

	_, err = e.TrendChanges(ctx, "panel-1980", domain.EntityEquipment, domain.MetricRiskScore, "")
	require.NoError(t, err)

	_, err = e.Forecast(ctx, "nobody", domain.EntityEquipment, domain.MetricRiskScore, 3, "")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = e.Forecast(ctx, "panel-1980", "building", domain.MetricRiskScore, 3, "")
	assert.ErrorIs(t, err, domain.ErrValidation)
}
