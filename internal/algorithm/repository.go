package algorithm

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/domain"
)

// Latest resolves to the current version in Get.
const Latest = "latest"

// Store is the durable, append-only backing of the Repository.
type Store interface {
	Append(ctx context.Context, v Version) error
	LoadAll(ctx context.Context) ([]Version, error)
}

// Repository holds every published Version and the pointer to the current
// one. Calculators never read the pointer directly; they resolve a Version
// through Get and keep using that copy.
type Repository struct {
	mu       sync.RWMutex
	store    Store
	versions map[string]Version
	current  string
	logger   zerolog.Logger
	now      func() time.Time
}

// Open loads every stored version and seeds DefaultVersion when the store
// is empty.
func Open(ctx context.Context, store Store, logger zerolog.Logger) (*Repository, error) {
	r := &Repository{
		store:    store,
		versions: make(map[string]Version),
		logger:   logger.With().Str("component", "algorithm").Logger(),
		now:      time.Now,
	}

	stored, err := store.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load algorithm versions: %w", err)
	}
	for _, v := range stored {
		r.admitLocked(v)
	}

	if len(r.versions) == 0 {
		if _, err := r.Publish(ctx, DefaultVersion()); err != nil {
			return nil, fmt.Errorf("failed to seed default algorithm version: %w", err)
		}
	}

	r.logger.Info().Int("versions", len(r.versions)).Str("current", r.current).Msg("algorithm repository ready")
	return r, nil
}

// Get returns a copy of the named version. An empty ref or Latest returns
// the current version.
func (r *Repository) Get(ref string) (Version, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if ref == "" || ref == Latest {
		ref = r.current
	}
	v, ok := r.versions[ref]
	if !ok {
		return Version{}, fmt.Errorf("%w: %q", domain.ErrUnknownAlgorithmVersion, ref)
	}
	return v.Clone(), nil
}

func (r *Repository) Current() Version {
	v, _ := r.Get(Latest)
	return v
}

// Resolve maps a requested version (possibly empty) to a concrete id.
func (r *Repository) Resolve(ref string) (string, error) {
	v, err := r.Get(ref)
	if err != nil {
		return "", err
	}
	return v.Version, nil
}

// Publish validates def, persists it and only then makes it visible. The
// current pointer moves when def sorts above the current version.
func (r *Repository) Publish(ctx context.Context, def Version) (Version, error) {
	if err := def.Validate(); err != nil {
		return Version{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.versions[def.Version]; exists {
		return Version{}, fmt.Errorf("%w: %s already published", domain.ErrVersionConflict, def.Version)
	}

	v := def.Clone()
	if v.PublishedAt.IsZero() {
		v.PublishedAt = r.now().UTC()
	}
	if v.EffectiveDate.IsZero() {
		v.EffectiveDate = v.PublishedAt
	}

	if err := r.store.Append(ctx, v); err != nil {
		return Version{}, fmt.Errorf("failed to persist algorithm version %s: %w", v.Version, err)
	}
	r.admitLocked(v)

	r.logger.Info().Str("version", v.Version).Str("current", r.current).Msg("algorithm version published")
	return v.Clone(), nil
}

func (r *Repository) admitLocked(v Version) {
	r.versions[v.Version] = v
	if r.current == "" || less(r.current, v.Version) {
		r.current = v.Version
	}
}

// List returns every version ordered by semantic version, newest last.
func (r *Repository) List() []Version {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Version, 0, len(r.versions))
	for _, v := range r.versions {
		out = append(out, v.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i].Version, out[j].Version) })
	return out
}

func less(a, b string) bool {
	va, errA := Version{Version: a}.semver()
	vb, errB := Version{Version: b}.semver()
	if errA != nil || errB != nil {
		return a < b
	}
	return va.LessThan(vb)
}

// MemoryStore keeps versions in process memory.
type MemoryStore struct {
	mu       sync.Mutex
	versions []Version
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Append(_ context.Context, v Version) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.versions {
		if existing.Version == v.Version {
			return fmt.Errorf("%w: %s", domain.ErrVersionConflict, v.Version)
		}
	}
	s.versions = append(s.versions, v.Clone())
	return nil
}

func (s *MemoryStore) LoadAll(_ context.Context) ([]Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Version, len(s.versions))
	for i, v := range s.versions {
		out[i] = v.Clone()
	}
	return out, nil
}
