// Package cache holds the latest computed result per (entity, kind,
// algorithm version). Entries are never dropped on invalidation; they turn
// Stale and keep being served while a refresh runs in the background.
package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/domain"
)

type Key struct {
	EntityID string
	Kind     domain.EntityKind
	Version  string
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s@%s", k.Kind, k.EntityID, k.Version)
}

// Result is the cached value. Equipment entries carry Assessment and
// Compliance; facility entries carry Summary.
type Result struct {
	Assessment *domain.RiskAssessment   `json:"assessment,omitempty"`
	Compliance *domain.ComplianceReport `json:"compliance,omitempty"`
	Summary    *domain.FacilitySummary  `json:"summary,omitempty"`
}

func (r Result) ComputedAt() time.Time {
	switch {
	case r.Summary != nil:
		return r.Summary.ComputedAt
	case r.Assessment != nil:
		return r.Assessment.ComputedAt
	case r.Compliance != nil:
		return r.Compliance.NFPA70B.ComputedAt
	}
	return time.Time{}
}

type StaleReason string

const (
	ReasonTTL           StaleReason = "ttl"
	ReasonSourceChanged StaleReason = "source_changed"
)

// Freshness is either Fresh or Stale.
type Freshness interface {
	freshness()
}

type Fresh struct{}

type Stale struct {
	Reason StaleReason
	Since  time.Time
}

func (Fresh) freshness() {}
func (Stale) freshness() {}

type Entry struct {
	Key       Key
	Result    Result
	State     Freshness
	StoredAt  time.Time
	Refreshes int
}

// Describe flattens the state for transport: "fresh", or "stale" plus the
// reason.
func (e Entry) Describe() (string, StaleReason) {
	if s, ok := e.State.(Stale); ok {
		return "stale", s.Reason
	}
	return "fresh", ""
}

func (e Entry) IsStale() bool {
	_, ok := e.State.(Stale)
	return ok
}

// Refresher recomputes one entry. The engine implements it.
type Refresher interface {
	Refresh(ctx context.Context, key Key) (Result, error)
}

type Settings struct {
	EquipmentTTL time.Duration
	FacilityTTL  time.Duration
	// Retention evicts entries that have not been written for this long.
	Retention      time.Duration
	RefreshTimeout time.Duration
}

type Option func(*Cache)

func WithRefresher(r Refresher) Option {
	return func(c *Cache) { c.refresher = r }
}

func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Cache) { c.logger = l.With().Str("component", "cache").Logger() }
}

type Cache struct {
	mu       sync.Mutex
	items    *gocache.Cache
	settings Settings
	// links maps an equipment id to the facilities that aggregate it.
	links map[string]map[string]struct{}

	refresher Refresher
	group     singleflight.Group
	pending   map[string]bool
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc

	now    func() time.Time
	logger zerolog.Logger
}

func New(s Settings, opts ...Option) *Cache {
	if s.Retention <= 0 {
		s.Retention = gocache.NoExpiration
	}
	if s.RefreshTimeout <= 0 {
		s.RefreshTimeout = 30 * time.Second
	}
	cleanup := time.Hour
	if s.Retention > 0 && s.Retention < cleanup {
		cleanup = s.Retention
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Cache{
		items:    gocache.New(s.Retention, cleanup),
		settings: s,
		links:    map[string]map[string]struct{}{},
		pending:  map[string]bool{},
		ctx:      ctx,
		cancel:   cancel,
		now:      time.Now,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) ttl(kind domain.EntityKind) time.Duration {
	if kind == domain.EntityFacility {
		return c.settings.FacilityTTL
	}
	return c.settings.EquipmentTTL
}

// Get never blocks on a refresh. A stale hit schedules one background
// refresh for the key.
func (c *Cache) Get(key Key) (Entry, bool) {
	c.mu.Lock()
	e, ok := c.lookupLocked(key)
	c.mu.Unlock()
	if !ok {
		return Entry{}, false
	}
	if e.IsStale() {
		c.scheduleRefresh(key)
	}
	return e, true
}

// Peek is Get without scheduling anything.
func (c *Cache) Peek(key Key) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lookupLocked(key)
}

func (c *Cache) lookupLocked(key Key) (Entry, bool) {
	v, ok := c.items.Get(key.String())
	if !ok {
		return Entry{}, false
	}
	e := v.(Entry)
	if _, fresh := e.State.(Fresh); fresh {
		if ttl := c.ttl(key.Kind); ttl > 0 && c.now().Sub(e.StoredAt) > ttl {
			e.State = Stale{Reason: ReasonTTL, Since: e.StoredAt.Add(ttl)}
		}
	}
	return e, true
}

// Put stores r as a fresh entry unless the key already holds a result
// computed later than r. It reports whether r was stored.
func (c *Cache) Put(key Key, r Result) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev, ok := c.items.Get(key.String())
	refreshes := 0
	if ok {
		pe := prev.(Entry)
		if pe.Result.ComputedAt().After(r.ComputedAt()) {
			return false
		}
		refreshes = pe.Refreshes
		if pe.IsStale() {
			refreshes++
		}
	}
	c.items.SetDefault(key.String(), Entry{Key: key, Result: r, State: Fresh{}, StoredAt: c.now(), Refreshes: refreshes})
	return true
}

// Link records that facilityID aggregates equipmentID.
func (c *Cache) Link(equipmentID, facilityID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.links[equipmentID]
	if !ok {
		set = map[string]struct{}{}
		c.links[equipmentID] = set
	}
	set[facilityID] = struct{}{}
}

// Invalidate marks every version of the entity stale, and for equipment
// also every facility linked to it. It returns the keys it touched.
func (c *Cache) Invalidate(entityID string, kind domain.EntityKind) []Key {
	c.mu.Lock()
	defer c.mu.Unlock()

	targets := map[string]bool{fmt.Sprintf("%s/%s@", kind, entityID): true}
	if kind == domain.EntityEquipment {
		for fid := range c.links[entityID] {
			targets[fmt.Sprintf("%s/%s@", domain.EntityFacility, fid)] = true
		}
	}

	var touched []Key
	since := c.now()
	for k, item := range c.items.Items() {
		at := strings.LastIndex(k, "@")
		if at < 0 || !targets[k[:at+1]] {
			continue
		}
		e := item.Object.(Entry)
		if s, ok := e.State.(Stale); ok && s.Reason == ReasonSourceChanged {
			continue
		}
		e.State = Stale{Reason: ReasonSourceChanged, Since: since}
		c.items.Set(k, e, c.remaining(item))
		touched = append(touched, e.Key)
	}
	if len(touched) > 0 {
		c.logger.Debug().Str("entity_id", entityID).Str("kind", string(kind)).Int("entries", len(touched)).Msg("marked stale")
	}
	return touched
}

// remaining keeps the retention deadline of an item across a rewrite.
func (c *Cache) remaining(item gocache.Item) time.Duration {
	if item.Expiration == 0 {
		return gocache.NoExpiration
	}
	d := time.Until(time.Unix(0, item.Expiration))
	if d <= 0 {
		return time.Nanosecond
	}
	return d
}

// Load returns the entry for key, computing it on a miss. Concurrent
// callers for the same key share one computation.
func (c *Cache) Load(ctx context.Context, key Key, compute func(context.Context) (Result, error)) (Entry, error) {
	if e, ok := c.Get(key); ok {
		return e, nil
	}
	v, err, _ := c.group.Do(key.String(), func() (interface{}, error) {
		r, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.Put(key, r)
		return r, nil
	})
	if err != nil {
		return Entry{}, err
	}
	if e, ok := c.Peek(key); ok {
		return e, nil
	}
	return Entry{Key: key, Result: v.(Result), State: Fresh{}, StoredAt: c.now()}, nil
}

func (c *Cache) scheduleRefresh(key Key) {
	if c.refresher == nil {
		return
	}
	id := key.String()
	c.mu.Lock()
	if c.pending[id] || c.ctx.Err() != nil {
		c.mu.Unlock()
		return
	}
	c.pending[id] = true
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		defer func() {
			c.mu.Lock()
			delete(c.pending, id)
			c.mu.Unlock()
		}()

		ctx, cancel := context.WithTimeout(c.ctx, c.settings.RefreshTimeout)
		defer cancel()
		_, err, _ := c.group.Do(id, func() (interface{}, error) {
			r, err := c.refresher.Refresh(ctx, key)
			if err != nil {
				return nil, err
			}
			c.Put(key, r)
			return r, nil
		})
		if err != nil {
			c.logger.Warn().Err(err).Str("key", id).Msg("background refresh failed")
			return
		}
		c.logger.Debug().Str("key", id).Msg("refreshed")
	}()
}

// Len is the number of retained entries.
func (c *Cache) Len() int {
	return c.items.ItemCount()
}

// Close stops scheduling refreshes and waits for those in flight.
func (c *Cache) Close() {
	c.mu.Lock()
	c.cancel()
	c.mu.Unlock()
	c.wg.Wait()
}
