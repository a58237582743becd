package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/domain"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// blockingRefresher holds every refresh until release is closed.
type blockingRefresher struct {
	calls   atomic.Int32
	release chan struct{}
	at      time.Time
	err     error
}

func (r *blockingRefresher) Refresh(ctx context.Context, key Key) (Result, error) {
	r.calls.Add(1)
	select {
	case <-r.release:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
	if r.err != nil {
		return Result{}, r.err
	}
	return equipmentResult(key.EntityID, r.at, 55), nil
}

func equipmentResult(id string, at time.Time, score float64) Result {
	return Result{Assessment: &domain.RiskAssessment{EquipmentID: id, RiskScore: score, ComputedAt: at}}
}

func settings() Settings {
	return Settings{EquipmentTTL: 24 * time.Hour, FacilityTTL: time.Hour, Retention: 720 * time.Hour, RefreshTimeout: 5 * time.Second}
}

func eqKey(id string) Key {
	return Key{EntityID: id, Kind: domain.EntityEquipment, Version: "1.0.0"}
}

func TestStaleEntryIsServedAndRefreshedInBackground(t *testing.T) {
	clk := &clock{now: time.Date(2025, time.May, 20, 0, 0, 0, 0, time.UTC)}
	ref := &blockingRefresher{release: make(chan struct{}), at: clk.Now().Add(time.Minute)}
	c := New(settings(), WithRefresher(ref), WithClock(clk.Now))
	defer c.Close()

	k := eqKey("eq-1")
	require.True(t, c.Put(k, equipmentResult("eq-1", clk.Now(), 40)))
	c.Invalidate("eq-1", domain.EntityEquipment)

	start := time.Now()
	e, ok := c.Get(k)
	require.True(t, ok)
	assert.Less(t, time.Since(start), time.Second, "read must not wait for the refresh")
	assert.True(t, e.IsStale())
	state, reason := e.Describe()
	assert.Equal(t, "stale", state)
	assert.Equal(t, ReasonSourceChanged, reason)
	assert.Equal(t, 40.0, e.Result.Assessment.RiskScore)

	// Repeated stale reads share one refresh.
	c.Get(k)
	c.Get(k)
	close(ref.release)

	assert.Eventually(t, func() bool {
		e, ok := c.Peek(k)
		return ok && !e.IsStale()
	}, 2*time.Second, 5*time.Millisecond)

	e, _ = c.Peek(k)
	assert.Equal(t, 55.0, e.Result.Assessment.RiskScore)
	assert.Equal(t, 1, e.Refreshes)
	assert.Equal(t, int32(1), ref.calls.Load())
}

func TestTTLExpiryIsReportedAsStale(t *testing.T) {
	clk := &clock{now: time.Date(2025, time.May, 20, 0, 0, 0, 0, time.UTC)}
	c := New(settings(), WithClock(clk.Now))
	defer c.Close()

	eq := eqKey("eq-1")
	fac := Key{EntityID: "fac-1", Kind: domain.EntityFacility, Version: "1.0.0"}
	c.Put(eq, equipmentResult("eq-1", clk.Now(), 40))
	c.Put(fac, Result{Summary: &domain.FacilitySummary{FacilityID: "fac-1", ComputedAt: clk.Now()}})

	clk.Advance(2 * time.Hour)
	e, _ := c.Get(eq)
	assert.False(t, e.IsStale())
	f, _ := c.Get(fac)
	require.True(t, f.IsStale())
	assert.Equal(t, ReasonTTL, f.State.(Stale).Reason)

	clk.Advance(23 * time.Hour)
	e, _ = c.Get(eq)
	assert.True(t, e.IsStale())
}

func TestInvalidationPropagatesToLinkedFacilities(t *testing.T) {
	c := New(settings())
	defer c.Close()
	now := time.Now()

	c.Put(eqKey("eq-1"), equipmentResult("eq-1", now, 40))
	c.Put(Key{EntityID: "eq-1", Kind: domain.EntityEquipment, Version: "2.0.0"}, equipmentResult("eq-1", now, 41))
	c.Put(eqKey("eq-10"), equipmentResult("eq-10", now, 40))
	fac := Key{EntityID: "fac-1", Kind: domain.EntityFacility, Version: "1.0.0"}
	other := Key{EntityID: "fac-2", Kind: domain.EntityFacility, Version: "1.0.0"}
	c.Put(fac, Result{Summary: &domain.FacilitySummary{FacilityID: "fac-1", ComputedAt: now}})
	c.Put(other, Result{Summary: &domain.FacilitySummary{FacilityID: "fac-2", ComputedAt: now}})
	c.Link("eq-1", "fac-1")

	touched := c.Invalidate("eq-1", domain.EntityEquipment)
	assert.Len(t, touched, 3)

	for _, k := range []Key{eqKey("eq-1"), fac} {
		e, ok := c.Peek(k)
		require.True(t, ok)
		assert.True(t, e.IsStale(), k.String())
	}
	for _, k := range []Key{eqKey("eq-10"), other} {
		e, ok := c.Peek(k)
		require.True(t, ok)
		assert.False(t, e.IsStale(), k.String())
	}
}

func TestPutIsLastWriterWinsByComputedAt(t *testing.T) {
	c := New(settings())
	defer c.Close()
	k := eqKey("eq-1")
	t0 := time.Date(2025, time.May, 20, 0, 0, 0, 0, time.UTC)

	require.True(t, c.Put(k, equipmentResult("eq-1", t0.Add(time.Hour), 60)))
	assert.False(t, c.Put(k, equipmentResult("eq-1", t0, 10)), "older calculation must not overwrite")
	assert.True(t, c.Put(k, equipmentResult("eq-1", t0.Add(time.Hour), 60)), "identical recompute is accepted")

	e, _ := c.Peek(k)
	assert.Equal(t, 60.0, e.Result.Assessment.RiskScore)
}

func TestLoadComputesOnceOnMiss(t *testing.T) {
	c := New(settings())
	defer c.Close()
	k := eqKey("eq-1")
	var calls atomic.Int32
	gate := make(chan struct{})

	compute := func(context.Context) (Result, error) {
		calls.Add(1)
		<-gate
		return equipmentResult("eq-1", time.Now(), 33), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e, err := c.Load(context.Background(), k, compute)
			assert.NoError(t, err)
			assert.Equal(t, 33.0, e.Result.Assessment.RiskScore)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()

	assert.LessOrEqual(t, calls.Load(), int32(4))
	assert.GreaterOrEqual(t, calls.Load(), int32(1))
	assert.Equal(t, 1, c.Len())

	_, err := c.Load(context.Background(), eqKey("bad"), func(context.Context) (Result, error) {
		return Result{}, errors.New("boom")
	})
	assert.Error(t, err)
	_, ok := c.Peek(eqKey("bad"))
	assert.False(t, ok)
}

func TestFailedRefreshKeepsStaleEntry(t *testing.T) {
	ref := &blockingRefresher{release: make(chan struct{}), err: errors.New("source unavailable")}
	close(ref.release)
	c := New(settings(), WithRefresher(ref))
	k := eqKey("eq-1")
	c.Put(k, equipmentResult("eq-1", time.Now(), 40))
	c.Invalidate("eq-1", domain.EntityEquipment)

	c.Get(k)
	c.Close()

	e, ok := c.Peek(k)
	require.True(t, ok)
	assert.True(t, e.IsStale())
	assert.Equal(t, int32(1), ref.calls.Load())
}
