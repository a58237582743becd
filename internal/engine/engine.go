// Package engine wires the algorithm repository, calculators, cache,
// history and job orchestrator into the operations callers use.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/algorithm"
	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/cache"
	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/domain"
	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/history"
	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/inventory"
	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/jobs"
)

// Archive stores terminal jobs and reads them back once the orchestrator
// no longer holds them.
type Archive interface {
	jobs.Archive
	Load(ctx context.Context, jobID string) (domain.CalculationJob, error)
}

type Settings struct {
	Jobs            jobs.Settings
	Cache           cache.Settings
	ForecastHorizon int
	// RecomputeLimit bounds concurrent equipment recomputation inside one
	// facility aggregation.
	RecomputeLimit int
}

type Option func(*Engine)

func WithAlgorithmStore(s algorithm.Store) Option {
	return func(e *Engine) { e.algorithmStore = s }
}

func WithHistoryStore(s history.Store) Option {
	return func(e *Engine) { e.history = s }
}

func WithNotifier(n jobs.Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

func WithArchive(a Archive) Option {
	return func(e *Engine) { e.archive = a }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

type Engine struct {
	settings Settings

	algorithmStore algorithm.Store
	algorithms     *algorithm.Repository
	inventory      *inventory.Store
	history        history.Store
	cache          *cache.Cache
	jobs           *jobs.Orchestrator
	notifier       jobs.Notifier
	archive        Archive
	validate       *validator.Validate

	now    func() time.Time
	logger zerolog.Logger
}

// New opens the algorithm repository and builds every component. Call
// Start before submitting work.
func New(ctx context.Context, s Settings, opts ...Option) (*Engine, error) {
	if s.ForecastHorizon <= 0 {
		s.ForecastHorizon = 6
	}
	if s.RecomputeLimit <= 0 {
		s.RecomputeLimit = 4
	}
	e := &Engine{
		settings:       s,
		algorithmStore: algorithm.NewMemoryStore(),
		history:        history.NewMemoryStore(),
		inventory:      inventory.New(),
		validate:       validator.New(validator.WithRequiredStructEnabled()),
		now:            time.Now,
		logger:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}

	repo, err := algorithm.Open(ctx, e.algorithmStore, e.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open algorithm repository: %w", err)
	}
	e.algorithms = repo

	e.cache = cache.New(s.Cache,
		cache.WithRefresher(e),
		cache.WithClock(e.now),
		cache.WithLogger(e.logger),
	)

	jobOpts := []jobs.Option{jobs.WithClock(e.now), jobs.WithLogger(e.logger)}
	if e.notifier != nil {
		jobOpts = append(jobOpts, jobs.WithNotifier(e.notifier))
	}
	if e.archive != nil {
		jobOpts = append(jobOpts, jobs.WithArchive(e.archive))
	}
	e.jobs = jobs.New(e, e.algorithms.Resolve, s.Jobs, jobOpts...)

	e.logger = e.logger.With().Str("component", "engine").Logger()
	return e, nil
}

func (e *Engine) Start() {
	e.jobs.Start()
}

// Shutdown stops the worker pool, then background cache refreshes.
func (e *Engine) Shutdown(ctx context.Context) error {
	err := e.jobs.Shutdown(ctx)
	e.cache.Close()
	return err
}
