package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-multierror"

	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/domain"
	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/jobs"
)

// Submission carries record snapshots plus the ids to (re)compute. Every
// submitted equipment item and every equipment item with new maintenance
// is computed even when EquipmentIDs does not name it.
type Submission struct {
	Equipment        []domain.Equipment         `json:"equipment,omitempty" validate:"dive"`
	Facilities       []domain.Facility          `json:"facilities,omitempty" validate:"dive"`
	Maintenance      []domain.MaintenanceRecord `json:"maintenance,omitempty" validate:"dive"`
	EquipmentIDs     []string                   `json:"equipment_ids,omitempty" validate:"dive,required"`
	FacilityIDs      []string                   `json:"facility_ids,omitempty" validate:"dive,required"`
	AlgorithmVersion string                     `json:"algorithm_version,omitempty"`
	WebhookURL       string                     `json:"webhook_url,omitempty" validate:"omitempty,url"`
}

func (s Submission) empty() bool {
	return len(s.Equipment) == 0 && len(s.Facilities) == 0 && len(s.Maintenance) == 0 &&
		len(s.EquipmentIDs) == 0 && len(s.FacilityIDs) == 0
}

// Validate reports every malformed field at once, wrapped in
// ErrValidation.
func (e *Engine) Validate(s Submission) error {
	var result *multierror.Error
	if s.empty() {
		result = multierror.Append(result, errors.New("submission contains no items"))
	}
	if err := e.validate.Struct(s); err != nil {
		var fields validator.ValidationErrors
		if !errors.As(err, &fields) {
			return fmt.Errorf("%w: %v", domain.ErrValidation, err)
		}
		for _, fe := range fields {
			result = multierror.Append(result, fmt.Errorf("%s fails %q", fe.Namespace(), fe.Tag()))
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	return nil
}

// SubmitCalculation validates s, stores its snapshots and queues a job.
// Invalid submissions are rejected before any job exists; an unknown
// algorithm version yields a job that is already Failed.
func (e *Engine) SubmitCalculation(ctx context.Context, s Submission) (string, error) {
	if err := e.Validate(s); err != nil {
		return "", err
	}

	equipmentIDs := append([]string(nil), s.EquipmentIDs...)
	facilityIDs := append([]string(nil), s.FacilityIDs...)

	for _, f := range s.Facilities {
		facilityIDs = append(facilityIDs, f.ID)
		if !e.inventory.UpsertFacility(f) {
			continue
		}
		// Environment and arc-flash study feed every member's results.
		for _, id := range e.inventory.FacilityEquipmentIDs(f.ID) {
			e.cache.Link(id, f.ID)
			e.cache.Invalidate(id, domain.EntityEquipment)
		}
		e.cache.Invalidate(f.ID, domain.EntityFacility)
	}
	for _, eq := range s.Equipment {
		equipmentIDs = append(equipmentIDs, eq.ID)
		if !e.inventory.UpsertEquipment(eq) {
			continue
		}
		if fid, ok := e.inventory.FacilityOf(eq.ID); ok {
			e.cache.Link(eq.ID, fid)
		}
		e.cache.Invalidate(eq.ID, domain.EntityEquipment)
	}
	for _, r := range s.Maintenance {
		equipmentIDs = append(equipmentIDs, r.EquipmentID)
		if e.inventory.AppendMaintenance(r) {
			e.cache.Invalidate(r.EquipmentID, domain.EntityEquipment)
		}
	}

	id, err := e.jobs.Submit(ctx, jobs.Request{
		EquipmentIDs:     equipmentIDs,
		FacilityIDs:      facilityIDs,
		AlgorithmVersion: s.AlgorithmVersion,
		WebhookURL:       s.WebhookURL,
	})
	if err != nil {
		return "", err
	}
	e.logger.Debug().Str("job_id", id).Int("equipment", len(s.Equipment)).Int("facilities", len(s.Facilities)).Int("maintenance", len(s.Maintenance)).Msg("submission accepted")
	return id, nil
}

// JobStatus falls back to the result archive for jobs the orchestrator
// no longer holds.
func (e *Engine) JobStatus(ctx context.Context, id string) (domain.CalculationJob, error) {
	job, err := e.jobs.Get(id)
	if err == nil || e.archive == nil || !errors.Is(err, domain.ErrNotFound) {
		return job, err
	}
	return e.archive.Load(ctx, id)
}

func (e *Engine) CancelJob(ctx context.Context, id string) (domain.CalculationJob, error) {
	return e.jobs.Cancel(ctx, id)
}

// JobDone is closed once the job reaches a terminal state.
func (e *Engine) JobDone(id string) (<-chan struct{}, error) {
	return e.jobs.Done(id)
}
