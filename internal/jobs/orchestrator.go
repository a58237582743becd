// Package jobs runs calculation batches as asynchronous jobs on a bounded
// worker pool shared by every job.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/domain"
)

// Processor performs the work behind each item. The engine implements it.
type Processor interface {
	ProcessEquipment(ctx context.Context, equipmentID, version string) (domain.ItemResult, error)
	AggregateFacility(ctx context.Context, facilityID, version string) (domain.ItemResult, error)
	// AffectedFacilities lists the facilities to re-aggregate after the
	// given equipment items were recomputed.
	AffectedFacilities(equipmentIDs []string) []string
}

// Notifier delivers the single terminal event of a job.
type Notifier interface {
	Notify(ctx context.Context, ev domain.JobEvent) error
}

// Archive persists the full results of a terminal job and returns a
// pointer to them.
type Archive interface {
	Store(ctx context.Context, job domain.CalculationJob) (string, error)
}

// Resolver turns a requested version ("" or "latest" for current) into a
// concrete one.
type Resolver func(ref string) (string, error)

type Request struct {
	EquipmentIDs     []string
	FacilityIDs      []string
	AlgorithmVersion string
	WebhookURL       string
}

type Settings struct {
	Workers     int
	QueueSize   int
	ItemTimeout time.Duration
	// Retention is how long a terminal job stays in memory once its
	// results are archived. Zero keeps jobs until restart; without an
	// archive they are always kept.
	Retention   time.Duration
}

type Option func(*Orchestrator)

func WithNotifier(n Notifier) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

func WithArchive(a Archive) Option {
	return func(o *Orchestrator) { o.archive = a }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l.With().Str("component", "jobs").Logger() }
}

type job struct {
	domain.CalculationJob
	facilityIDs []string
	// equipment is the number of leading Items that are equipment rows.
	equipment   int
	cancel      bool
	done        chan struct{}
}

type task struct {
	job    *job
	slot   int
	kind   domain.EntityKind
	entity string
	wg     *sync.WaitGroup
}

type Orchestrator struct {
	mu   sync.Mutex
	jobs map[string]*job

	processor Processor
	resolve   Resolver
	notifier  Notifier
	archive   Archive
	settings  Settings

	queue chan *job
	tasks chan task
	wg    sync.WaitGroup
	ctx   context.Context
	stop  context.CancelFunc

	now    func() time.Time
	logger zerolog.Logger
}

func New(p Processor, resolve Resolver, s Settings, opts ...Option) *Orchestrator {
	if s.Workers <= 0 {
		s.Workers = 1
	}
	if s.QueueSize <= 0 {
		s.QueueSize = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		jobs:      map[string]*job{},
		processor: p,
		resolve:   resolve,
		settings:  s,
		queue:     make(chan *job, s.QueueSize),
		tasks:     make(chan task),
		ctx:       ctx,
		stop:      cancel,
		now:       time.Now,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Start launches the worker pool and the dispatcher.
func (o *Orchestrator) Start() {
	for i := 0; i < o.settings.Workers; i++ {
		o.wg.Add(1)
		go o.worker()
	}
	o.wg.Add(1)
	go o.dispatch()
	o.logger.Info().Int("workers", o.settings.Workers).Int("queue_size", o.settings.QueueSize).Msg("job orchestrator started")
}

// Shutdown stops accepting work and waits for running jobs to finish or
// ctx to expire.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.stop()
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit creates a job. A job whose algorithm version cannot be resolved
// is created directly in state Failed.
func (o *Orchestrator) Submit(ctx context.Context, req Request) (string, error) {
	j := &job{
		CalculationJob: domain.CalculationJob{
			ID:               uuid.NewString(),
			SubmittedAt:      o.now().UTC(),
			AlgorithmVersion: req.AlgorithmVersion,
			State:            domain.JobQueued,
			WebhookURL:       req.WebhookURL,
		},
		facilityIDs: dedupe(req.FacilityIDs),
		done:        make(chan struct{}),
	}
	for _, id := range dedupe(req.EquipmentIDs) {
		j.ItemIDs = append(j.ItemIDs, id)
		j.Items = append(j.Items, domain.ItemResult{EntityID: id, EntityKind: domain.EntityEquipment, State: domain.ItemPending})
	}
	j.equipment = len(j.Items)
	for _, id := range j.facilityIDs {
		j.ItemIDs = append(j.ItemIDs, id)
		j.Items = append(j.Items, domain.ItemResult{EntityID: id, EntityKind: domain.EntityFacility, State: domain.ItemPending})
	}

	version, err := o.resolve(req.AlgorithmVersion)
	if err != nil {
		o.mu.Lock()
		o.jobs[j.ID] = j
		o.finishLocked(j, domain.JobFailed, err)
		o.mu.Unlock()
		o.logger.Warn().Err(err).Str("job_id", j.ID).Str("algorithm_version", req.AlgorithmVersion).Msg("job failed before scheduling")
		o.emit(ctx, j)
		return j.ID, nil
	}
	j.AlgorithmVersion = version

	o.mu.Lock()
	select {
	case o.queue <- j:
		o.jobs[j.ID] = j
		o.mu.Unlock()
	default:
		o.mu.Unlock()
		return "", fmt.Errorf("%w: %d jobs waiting", domain.ErrQueueFull, o.settings.QueueSize)
	}
	o.logger.Info().Str("job_id", j.ID).Int("equipment", j.equipment).Int("facilities", len(j.facilityIDs)).Str("algorithm_version", version).Msg("job queued")
	return j.ID, nil
}

// Get returns a snapshot of the job.
func (o *Orchestrator) Get(id string) (domain.CalculationJob, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	j, ok := o.jobs[id]
	if !ok {
		return domain.CalculationJob{}, fmt.Errorf("%w: job %s", domain.ErrNotFound, id)
	}
	return snapshot(j), nil
}

// Done is closed once the job is terminal.
func (o *Orchestrator) Done(id string) (<-chan struct{}, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	j, ok := o.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: job %s", domain.ErrNotFound, id)
	}
	return j.done, nil
}

// Cancel ends a queued job at once. A processing job finishes the items
// already running and skips the rest. Cancelling a terminal job changes
// nothing. A Cancelled job reads like a Completed one with partial items:
// items that ran keep their results, the others fail with code cancelled.
func (o *Orchestrator) Cancel(ctx context.Context, id string) (domain.CalculationJob, error) {
	o.mu.Lock()
	j, ok := o.jobs[id]
	if !ok {
		o.mu.Unlock()
		return domain.CalculationJob{}, fmt.Errorf("%w: job %s", domain.ErrNotFound, id)
	}
	var emit bool
	switch j.State {
	case domain.JobQueued:
		o.finishLocked(j, domain.JobCancelled, nil)
		emit = true
	case domain.JobProcessing:
		j.cancel = true
	}
	out := snapshot(j)
	o.mu.Unlock()

	if emit {
		o.logger.Info().Str("job_id", id).Msg("queued job cancelled")
		o.emit(ctx, j)
	}
	return out, nil
}

func (o *Orchestrator) dispatch() {
	defer o.wg.Done()
	var running sync.WaitGroup
	defer running.Wait()
	for {
		select {
		case <-o.ctx.Done():
			return
		case j := <-o.queue:
			running.Add(1)
			go func() {
				defer running.Done()
				o.run(j)
			}()
		}
	}
}

func (o *Orchestrator) worker() {
	defer o.wg.Done()
	for {
		select {
		case <-o.ctx.Done():
			return
		case t := <-o.tasks:
			o.execute(t)
		}
	}
}

// run drives one job through Processing to a terminal state. Facility
// aggregation starts only after every equipment item is terminal.
func (o *Orchestrator) run(j *job) {
	o.mu.Lock()
	if j.State != domain.JobQueued {
		o.mu.Unlock()
		return
	}
	started := o.now().UTC()
	j.State = domain.JobProcessing
	j.StartedAt = &started
	equipment := append([]string(nil), j.ItemIDs[:j.equipment]...)
	o.mu.Unlock()
	o.logger.Info().Str("job_id", j.ID).Msg("job processing")

	o.fanOut(j, domain.EntityEquipment, equipment, 0)

	// Requested facilities already hold rows right after the equipment;
	// affected ones found now are appended behind them.
	facilities := dedupe(append(append([]string(nil), j.facilityIDs...), o.processor.AffectedFacilities(o.succeeded(j))...))
	o.mu.Lock()
	for _, id := range facilities[len(j.facilityIDs):] {
		j.Items = append(j.Items, domain.ItemResult{EntityID: id, EntityKind: domain.EntityFacility, State: domain.ItemPending})
	}
	o.mu.Unlock()
	o.fanOut(j, domain.EntityFacility, facilities, j.equipment)

	o.mu.Lock()
	state := domain.JobCompleted
	if j.cancel {
		state = domain.JobCancelled
	}
	o.finishLocked(j, state, nil)
	failures := len(j.Failures())
	o.mu.Unlock()

	o.logger.Info().Str("job_id", j.ID).Str("state", string(state)).Int("failures", failures).Msg("job finished")
	o.emit(context.WithoutCancel(o.ctx), j)
}

// fanOut hands ids to the pool as slots first..first+len(ids)-1 and waits
// for all of them.
func (o *Orchestrator) fanOut(j *job, kind domain.EntityKind, ids []string, first int) {
	var wg sync.WaitGroup
	for i, id := range ids {
		slot := first + i
		if o.cancelled(j) {
			o.record(j, slot, domain.ItemResult{}, fmt.Errorf("%w: job cancelled before %s ran", domain.ErrCancelled, id))
			continue
		}
		wg.Add(1)
		select {
		case o.tasks <- task{job: j, slot: slot, kind: kind, entity: id, wg: &wg}:
		case <-o.ctx.Done():
			wg.Done()
			o.record(j, slot, domain.ItemResult{}, fmt.Errorf("%w: shutting down", domain.ErrCancelled))
		}
	}
	wg.Wait()
}

// execute runs one item under the per-item timeout. A timed-out item is
// recorded as failed; its goroutine result is discarded.
func (o *Orchestrator) execute(t task) {
	defer t.wg.Done()
	ctx := o.ctx
	var cancel context.CancelFunc
	if o.settings.ItemTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, o.settings.ItemTimeout)
		defer cancel()
	}

	type outcome struct {
		res domain.ItemResult
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		var res domain.ItemResult
		var err error
		if t.kind == domain.EntityFacility {
			res, err = o.processor.AggregateFacility(ctx, t.entity, t.job.AlgorithmVersion)
		} else {
			res, err = o.processor.ProcessEquipment(ctx, t.entity, t.job.AlgorithmVersion)
		}
		ch <- outcome{res, err}
	}()

	select {
	case out := <-ch:
		o.record(t.job, t.slot, out.res, out.err)
	case <-ctx.Done():
		err := fmt.Errorf("%w: %s interrupted by shutdown", domain.ErrCancelled, t.entity)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %s exceeded %s", domain.ErrCalculationTimeout, t.entity, o.settings.ItemTimeout)
		}
		o.record(t.job, t.slot, domain.ItemResult{}, err)
	}
}

func (o *Orchestrator) record(j *job, slot int, res domain.ItemResult, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	it := &j.Items[slot]
	if err != nil {
		it.State = domain.ItemFailed
		it.ErrorCode = domain.ErrorCode(err)
		it.Error = err.Error()
		o.logger.Debug().Err(err).Str("job_id", j.ID).Str("entity_id", it.EntityID).Msg("item failed")
		return
	}
	it.State = domain.ItemSucceeded
	it.RiskScore = res.RiskScore
	it.RiskRating = res.RiskRating
	it.ResultRefs = res.ResultRefs
}

func (o *Orchestrator) cancelled(j *job) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return j.cancel
}

func (o *Orchestrator) succeeded(j *job) []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	var ids []string
	for _, it := range j.Items {
		if it.EntityKind == domain.EntityEquipment && it.State == domain.ItemSucceeded {
			ids = append(ids, it.EntityID)
		}
	}
	return ids
}

// finishLocked moves j to a terminal state. Items never started are
// recorded as cancelled so every submitted item has an outcome.
func (o *Orchestrator) finishLocked(j *job, state domain.JobState, err error) {
	for i := range j.Items {
		it := &j.Items[i]
		if it.State != domain.ItemPending {
			continue
		}
		it.State = domain.ItemFailed
		cause := err
		if cause == nil {
			cause = fmt.Errorf("%w: job %s", domain.ErrCancelled, state)
		}
		it.ErrorCode = domain.ErrorCode(cause)
		it.Error = cause.Error()
	}
	finished := o.now().UTC()
	j.State = state
	j.FinishedAt = &finished
	if err != nil {
		j.Error = err.Error()
		j.ErrorCode = domain.ErrorCode(err)
	}
}

// emit archives the results and sends the one notification for j, then
// releases Done waiters. Neither step changes the job state when it fails.
func (o *Orchestrator) emit(ctx context.Context, j *job) {
	o.mu.Lock()
	snap := snapshot(j)
	o.mu.Unlock()

	ref := "jobs/" + snap.ID
	if o.archive != nil {
		if r, err := o.archive.Store(ctx, snap); err != nil {
			o.logger.Error().Err(err).Str("job_id", snap.ID).Msg("archive results")
		} else {
			ref = r
			if o.settings.Retention > 0 {
				time.AfterFunc(o.settings.Retention, func() { o.evict(snap.ID) })
			}
		}
	}

	o.mu.Lock()
	j.ResultsRef = ref
	snap.ResultsRef = ref
	o.mu.Unlock()
	defer close(j.done)

	if o.notifier == nil {
		return
	}
	ev := domain.JobEvent{
		JobID:      snap.ID,
		State:      snap.State,
		Summary:    Summarize(snap),
		ResultsRef: ref,
		WebhookURL: snap.WebhookURL,
		OccurredAt: o.now().UTC(),
	}
	if err := o.notifier.Notify(ctx, ev); err != nil {
		o.logger.Error().Err(err).Str("job_id", snap.ID).Msg("notify job completion")
	}
}

// evict drops an archived terminal job. Later lookups go to the archive.
func (o *Orchestrator) evict(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.jobs, id)
	o.logger.Debug().Str("job_id", id).Msg("archived job evicted")
}

func snapshot(j *job) domain.CalculationJob {
	out := j.CalculationJob
	out.ItemIDs = append([]string(nil), j.ItemIDs...)
	out.Items = make([]domain.ItemResult, len(j.Items))
	for i, it := range j.Items {
		it.ResultRefs = append([]string(nil), it.ResultRefs...)
		out.Items[i] = it
	}
	return out
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
