package domain

import "time"

type EquipmentType string

const (
	EquipmentPanel       EquipmentType = "panel"
	EquipmentTransformer EquipmentType = "transformer"
	EquipmentSwitchboard EquipmentType = "switchboard"
	EquipmentBreaker     EquipmentType = "breaker"
	EquipmentOther       EquipmentType = "other"
)

// EquipmentTypes lists every supported type in a stable order.
var EquipmentTypes = []EquipmentType{
	EquipmentPanel,
	EquipmentTransformer,
	EquipmentSwitchboard,
	EquipmentBreaker,
	EquipmentOther,
}

type ConductorMaterial string

const (
	MaterialCopper             ConductorMaterial = "copper"
	MaterialAluminum           ConductorMaterial = "aluminum"
	MaterialCopperCladAluminum ConductorMaterial = "copper_clad_aluminum"
	MaterialUnknown            ConductorMaterial = "unknown"
)

var ConductorMaterials = []ConductorMaterial{MaterialCopper, MaterialAluminum, MaterialCopperCladAluminum, MaterialUnknown}

// Severity is the ordinal scale used for condition observations.
type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityMinimal  Severity = "minimal"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
)

var Severities = []Severity{SeverityNone, SeverityMinimal, SeverityModerate, SeveritySevere}

type ExposureClass string

const (
	ExposureIndoor    ExposureClass = "indoor"
	ExposureSheltered ExposureClass = "sheltered"
	ExposureOutdoor   ExposureClass = "outdoor"
	ExposureCorrosive ExposureClass = "corrosive"
)

var ExposureClasses = []ExposureClass{ExposureIndoor, ExposureSheltered, ExposureOutdoor, ExposureCorrosive}

type Specs struct {
	VoltageRating  float64 `json:"voltage_rating,omitempty"`
	AmperageRating float64 `json:"amperage_rating,omitempty"`
	Phases         int     `json:"phases,omitempty" validate:"omitempty,oneof=1 3"`
	Manufacturer   string  `json:"manufacturer,omitempty"`
	Model          string  `json:"model,omitempty"`
}

// Condition holds the latest field observations. Nil temperature or
// humidity means "not observed"; the facility environment is used instead.
type Condition struct {
	Corrosion    Severity `json:"corrosion" validate:"omitempty,oneof=none minimal moderate severe"`
	Rust         Severity `json:"rust" validate:"omitempty,oneof=none minimal moderate severe"`
	Wear         Severity `json:"wear" validate:"omitempty,oneof=none minimal moderate severe"`
	TemperatureC *float64 `json:"temperature_c,omitempty"`
	HumidityPct  *float64 `json:"humidity_pct,omitempty" validate:"omitempty,gte=0,lte=100"`
}

type MaintenanceSummary struct {
	LastServiceDate *time.Time `json:"last_service_date,omitempty"`
	IntervalMonths  int        `json:"interval_months" validate:"gte=0"`
}

// Equipment is an ingested snapshot. The engine never mutates it.
type Equipment struct {
	ID                string             `json:"id" validate:"required"`
	FacilityID        string             `json:"facility_id"`
	Type              EquipmentType      `json:"type" validate:"required,oneof=panel transformer switchboard breaker other"`
	InstallDate       time.Time          `json:"install_date"`
	ConductorMaterial ConductorMaterial  `json:"conductor_material" validate:"omitempty,oneof=copper aluminum copper_clad_aluminum unknown"`
	DissimilarMetals  bool               `json:"dissimilar_metals"`
	Specs             Specs              `json:"specs"`
	Location          string             `json:"location,omitempty"`
	Condition         Condition          `json:"condition"`
	Maintenance       MaintenanceSummary `json:"maintenance"`
	Labeled           bool               `json:"labeled"`
}

type Environment struct {
	AvgHumidityPct  float64       `json:"avg_humidity_pct" validate:"gte=0,lte=100"`
	AvgTemperatureC float64       `json:"avg_temperature_c"`
	Exposure        ExposureClass `json:"exposure" validate:"omitempty,oneof=indoor sheltered outdoor corrosive"`
}

type ArcFlashStudy struct {
	LastStudyDate time.Time `json:"last_study_date" validate:"required"`
	Engineer      string    `json:"engineer,omitempty"`
}

type Facility struct {
	ID            string         `json:"id" validate:"required"`
	Name          string         `json:"name"`
	Environment   Environment    `json:"environment"`
	YearBuilt     int            `json:"year_built,omitempty" validate:"omitempty,gte=1800"`
	EquipmentIDs  []string       `json:"equipment_ids"`
	ArcFlashStudy *ArcFlashStudy `json:"arc_flash_study,omitempty"`
}

// MaintenanceRecord is append-only.
type MaintenanceRecord struct {
	EquipmentID    string     `json:"equipment_id" validate:"required"`
	Date           time.Time  `json:"date" validate:"required"`
	Findings       string     `json:"findings,omitempty"`
	NextServiceDue *time.Time `json:"next_service_due,omitempty"`
}
