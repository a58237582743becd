package main

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/config"
	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/domain"
	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/engine"
)

var (
	materials  = []domain.ConductorMaterial{domain.MaterialCopper, domain.MaterialAluminum, domain.MaterialCopperCladAluminum}
	severities = []domain.Severity{domain.SeverityNone, domain.SeverityMinimal, domain.SeverityModerate, domain.SeveritySevere}
	exposures  = []domain.ExposureClass{domain.ExposureIndoor, domain.ExposureSheltered, domain.ExposureOutdoor, domain.ExposureCorrosive}
)

// facility builds one facility with n equipment items and a little
// maintenance history each.
func facility(rng *rand.Rand, idx, n int, now time.Time) engine.Submission {
	fid := fmt.Sprintf("facility-%03d", idx)
	f := domain.Facility{
		ID:   fid,
		Name: fmt.Sprintf("Site %d", idx),
		Environment: domain.Environment{
			AvgHumidityPct:  30 + rng.Float64()*50,
			AvgTemperatureC: 15 + rng.Float64()*25,
			Exposure:        exposures[rng.Intn(len(exposures))],
		},
		YearBuilt: 1960 + rng.Intn(60),
	}
	if rng.Intn(3) > 0 {
		f.ArcFlashStudy = &domain.ArcFlashStudy{LastStudyDate: now.AddDate(-rng.Intn(8), -rng.Intn(12), 0)}
	}

	s := engine.Submission{}
	for i := 0; i < n; i++ {
		t := domain.EquipmentTypes[rng.Intn(len(domain.EquipmentTypes))]
		interval := []int{6, 12, 24}[rng.Intn(3)]
		last := now.AddDate(0, -rng.Intn(interval*3), 0)
		eq := domain.Equipment{
			ID:                fmt.Sprintf("%s-%s-%02d", fid, t, i),
			FacilityID:        fid,
			Type:              t,
			InstallDate:       now.AddDate(-5-rng.Intn(45), -rng.Intn(12), 0),
			ConductorMaterial: materials[rng.Intn(len(materials))],
			DissimilarMetals:  rng.Intn(5) == 0,
			Condition: domain.Condition{
				Corrosion: severities[rng.Intn(len(severities))],
				Rust:      severities[rng.Intn(len(severities))],
				Wear:      severities[rng.Intn(len(severities))],
			},
			Maintenance: domain.MaintenanceSummary{LastServiceDate: &last, IntervalMonths: interval},
			Labeled:     rng.Intn(4) > 0,
		}
		f.EquipmentIDs = append(f.EquipmentIDs, eq.ID)
		s.Equipment = append(s.Equipment, eq)
		for d := last; d.After(now.AddDate(-5, 0, 0)); d = d.AddDate(0, -interval, 0) {
			s.Maintenance = append(s.Maintenance, domain.MaintenanceRecord{EquipmentID: eq.ID, Date: d, Findings: "routine"})
		}
	}
	s.Facilities = []domain.Facility{f}
	return s
}

func main() {
	if err := config.Load(); err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	opts := mqtt.NewClientOptions().AddBroker(config.MQTTBroker()).SetClientID("grid-risk-simulator")
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.Fatal().Err(token.Error()).Msg("mqtt connect")
	}
	defer client.Disconnect(250)

	topic := config.MQTTSubmitTopic()
	for i := 0; i < 20; i++ {
		payload, err := json.Marshal(facility(rng, i, 10+rng.Intn(50), time.Now().UTC()))
		if err != nil {
			log.Fatal().Err(err).Msg("marshal submission")
		}
		token := client.Publish(topic, 1, false, payload)
		token.Wait()
		if err := token.Error(); err != nil {
			log.Error().Err(err).Int("facility", i).Msg("publish failed")
		}
		time.Sleep(500 * time.Millisecond)
	}
	log.Info().Str("topic", topic).Msg("simulation done")
}
