// Package compliance evaluates NFPA 70B maintenance and NFPA 70E arc-flash
// compliance for equipment and rolls the results up to facilities.
package compliance

import (
	"math"
	"sort"
	"time"

	"github.com/ANIKETSHETTY47/energy-grid-analytics-go/maintenance"

	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/algorithm"
	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/domain"
)

const hoursPerMonth = 365.25 * 24 / 12

// Input is one equipment item with its maintenance history and the arc-flash
// study of the facility it belongs to (nil when none is on file).
type Input struct {
	Equipment domain.Equipment
	Records   []domain.MaintenanceRecord
	Study     *domain.ArcFlashStudy
}

// Evaluate computes both standards for one equipment item.
func Evaluate(in Input, v algorithm.Version, asOf time.Time) domain.ComplianceReport {
	return domain.ComplianceReport{
		EntityID: in.Equipment.ID,
		NFPA70B:  Evaluate70B(in, v, asOf),
		NFPA70E:  Evaluate70E(in, v, asOf),
	}
}

// Evaluate70B is 100 minus the share of complete maintenance intervals in the
// lookback window that have no service on record. No history at all is
// the worst case, 0.
func Evaluate70B(in Input, v algorithm.Version, asOf time.Time) domain.ComplianceEvaluation {
	p := v.Params.Compliance
	eq := in.Equipment
	out := domain.ComplianceEvaluation{
		EntityID:         eq.ID,
		EntityKind:       domain.EntityEquipment,
		Standard:         domain.NFPA70B,
		AlgorithmVersion: v.Version,
		ComputedAt:       asOf.UTC(),
	}

	evidence := serviceDates(eq, in.Records, asOf)
	out.Detail.RecordCount = len(evidence)
	if len(evidence) == 0 {
		out.Detail.Note = "no maintenance history"
		return finish(out, 0, p)
	}
	last := evidence[len(evidence)-1]
	out.Detail.LastServiceDate = &last
	out.Detail.NextServiceDue = nextDue(eq, in.Records, last)

	interval := eq.Maintenance.IntervalMonths
	if interval <= 0 {
		out.Detail.Note = "no maintenance interval defined"
		return finish(out, 0, p)
	}

	start := asOf.AddDate(-p.LookbackYears, 0, 0)
	if !eq.InstallDate.IsZero() && eq.InstallDate.After(start) {
		start = eq.InstallDate
	}

	eligible, missed := 0, 0
	for k := 0; ; k++ {
		from := start.AddDate(0, k*interval, 0)
		to := start.AddDate(0, (k+1)*interval, 0)
		if to.After(asOf) {
			break
		}
		eligible++
		if !serviced(evidence, from, to) {
			missed++
		}
	}
	out.Detail.EligibleIntervals = eligible
	out.Detail.MissedIntervals = missed

	if eligible == 0 {
		out.Detail.Note = "no complete interval due yet"
		return finish(out, 100, p)
	}
	return finish(out, 100-float64(missed)/float64(eligible)*100, p)
}

// Evaluate70E blends arc-flash study recency (binary) with labeling.
func Evaluate70E(in Input, v algorithm.Version, asOf time.Time) domain.ComplianceEvaluation {
	p := v.Params.Compliance
	out := domain.ComplianceEvaluation{
		EntityID:         in.Equipment.ID,
		EntityKind:       domain.EntityEquipment,
		Standard:         domain.NFPA70E,
		AlgorithmVersion: v.Version,
		ComputedAt:       asOf.UTC(),
	}

	study := StudyRecency(in.Study, p, asOf)
	label := 0.0
	if in.Equipment.Labeled {
		label = 100
	}
	out.Detail.StudyRecency = study
	out.Detail.Labeling = label
	if in.Study == nil {
		out.Detail.Note = "no arc-flash study on file"
	}
	return finish(out, p.StudyWeight*study+p.LabelWeight*label, p)
}

// StudyRecency is 100 when the study is within its validity window, else 0.
func StudyRecency(s *domain.ArcFlashStudy, p algorithm.ComplianceParams, asOf time.Time) float64 {
	if s == nil || s.LastStudyDate.IsZero() {
		return 0
	}
	if asOf.After(s.LastStudyDate.AddDate(p.StudyValidityYears, 0, 0)) {
		return 0
	}
	return 100
}

func Status(pct float64, p algorithm.ComplianceParams) domain.ComplianceStatus {
	switch {
	case pct >= p.CompliantAt:
		return domain.StatusCompliant
	case pct >= p.WarningAt:
		return domain.StatusWarning
	default:
		return domain.StatusOutOfCompliance
	}
}

func finish(e domain.ComplianceEvaluation, pct float64, p algorithm.ComplianceParams) domain.ComplianceEvaluation {
	e.Percentage = math.Round(math.Max(0, math.Min(100, pct))*100) / 100
	e.Status = Status(e.Percentage, p)
	return e
}

// serviceDates collects every service date known for eq up to asOf, sorted.
func serviceDates(eq domain.Equipment, records []domain.MaintenanceRecord, asOf time.Time) []time.Time {
	var dates []time.Time
	for _, r := range records {
		if r.EquipmentID == eq.ID && !r.Date.IsZero() && !r.Date.After(asOf) {
			dates = append(dates, r.Date)
		}
	}
	if d := eq.Maintenance.LastServiceDate; d != nil && !d.After(asOf) {
		dates = append(dates, *d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

func serviced(sorted []time.Time, from, to time.Time) bool {
	i := sort.Search(len(sorted), func(i int) bool { return !sorted[i].Before(from) })
	return i < len(sorted) && sorted[i].Before(to)
}

// nextDue prefers the due date written on the latest record and otherwise
// projects one from the last service.
func nextDue(eq domain.Equipment, records []domain.MaintenanceRecord, last time.Time) *time.Time {
	var latest *domain.MaintenanceRecord
	for i := range records {
		r := &records[i]
		if r.EquipmentID != eq.ID {
			continue
		}
		if latest == nil || r.Date.After(latest.Date) {
			latest = r
		}
	}
	if latest != nil && latest.NextServiceDue != nil && !latest.Date.Before(last) {
		due := *latest.NextServiceDue
		return &due
	}
	if eq.Maintenance.IntervalMonths <= 0 {
		return nil
	}
	due := maintenance.NextServiceDate(maintenance.AssetHealth{
		LastService:     last,
		ServiceInterval: time.Duration(float64(eq.Maintenance.IntervalMonths) * hoursPerMonth * float64(time.Hour)),
	})
	return &due
}
