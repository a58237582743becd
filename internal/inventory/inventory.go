// Package inventory keeps the latest ingested snapshot of every equipment
// item and facility plus the append-only maintenance log. Calculations read
// copies, never live records.
package inventory

import (
	"reflect"
	"sort"
	"sync"

	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/domain"
)

type Store struct {
	mu          sync.RWMutex
	equipment   map[string]domain.Equipment
	facilities  map[string]domain.Facility
	maintenance map[string][]domain.MaintenanceRecord
}

func New() *Store {
	return &Store{
		equipment:   map[string]domain.Equipment{},
		facilities:  map[string]domain.Facility{},
		maintenance: map[string][]domain.MaintenanceRecord{},
	}
}

// UpsertEquipment stores e and reports whether it differs from the
// previous snapshot.
func (s *Store) UpsertEquipment(e domain.Equipment) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.equipment[e.ID]
	if ok && reflect.DeepEqual(prev, e) {
		return false
	}
	s.equipment[e.ID] = cloneEquipment(e)
	return true
}

func (s *Store) UpsertFacility(f domain.Facility) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.facilities[f.ID]
	if ok && reflect.DeepEqual(prev, f) {
		return false
	}
	s.facilities[f.ID] = cloneFacility(f)
	return true
}

// AppendMaintenance adds r to the log. Resubmitting an identical record
// is a no-op and reports false.
func (s *Store) AppendMaintenance(r domain.MaintenanceRecord) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.maintenance[r.EquipmentID] {
		if reflect.DeepEqual(existing, r) {
			return false
		}
	}
	s.maintenance[r.EquipmentID] = append(s.maintenance[r.EquipmentID], r)
	return true
}

func (s *Store) Equipment(id string) (domain.Equipment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.equipment[id]
	return cloneEquipment(e), ok
}

func (s *Store) Facility(id string) (domain.Facility, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.facilities[id]
	return cloneFacility(f), ok
}

// Maintenance returns the log for one equipment item, oldest first.
func (s *Store) Maintenance(equipmentID string) []domain.MaintenanceRecord {
	s.mu.RLock()
	out := append([]domain.MaintenanceRecord(nil), s.maintenance[equipmentID]...)
	s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

func (s *Store) LatestMaintenance(equipmentID string) *domain.MaintenanceRecord {
	records := s.Maintenance(equipmentID)
	if len(records) == 0 {
		return nil
	}
	r := records[len(records)-1]
	return &r
}

// FacilityEquipmentIDs is the union of the facility's declared list and
// any equipment that names the facility, sorted.
func (s *Store) FacilityEquipmentIDs(facilityID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := map[string]struct{}{}
	if f, ok := s.facilities[facilityID]; ok {
		for _, id := range f.EquipmentIDs {
			set[id] = struct{}{}
		}
	}
	for id, e := range s.equipment {
		if e.FacilityID == facilityID {
			set[id] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// FacilityOf returns the facility an equipment item belongs to, if any
// facility claims it.
func (s *Store) FacilityOf(equipmentID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.equipment[equipmentID]; ok && e.FacilityID != "" {
		return e.FacilityID, true
	}
	for id, f := range s.facilities {
		for _, eid := range f.EquipmentIDs {
			if eid == equipmentID {
				return id, true
			}
		}
	}
	return "", false
}

func (s *Store) FacilityIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.facilities))
	for id := range s.facilities {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func cloneEquipment(e domain.Equipment) domain.Equipment {
	if e.Maintenance.LastServiceDate != nil {
		d := *e.Maintenance.LastServiceDate
		e.Maintenance.LastServiceDate = &d
	}
	if e.Condition.HumidityPct != nil {
		h := *e.Condition.HumidityPct
		e.Condition.HumidityPct = &h
	}
	if e.Condition.TemperatureC != nil {
		t := *e.Condition.TemperatureC
		e.Condition.TemperatureC = &t
	}
	return e
}

func cloneFacility(f domain.Facility) domain.Facility {
	f.EquipmentIDs = append([]string(nil), f.EquipmentIDs...)
	if f.ArcFlashStudy != nil {
		s := *f.ArcFlashStudy
		f.ArcFlashStudy = &s
	}
	return f
}
