// Package notify delivers job completion events.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"

	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/domain"
	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/jobs"
)

// Publisher is the slice of the paho client the MQTT notifier needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTT publishes each event as JSON to topic/<job id>.
type MQTT struct {
	client  Publisher
	topic   string
	timeout time.Duration
}

func NewMQTT(client Publisher, topic string) *MQTT {
	return &MQTT{client: client, topic: topic, timeout: 5 * time.Second}
}

func (m *MQTT) Notify(ctx context.Context, ev domain.JobEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal job event: %w", err)
	}
	token := m.client.Publish(m.topic+"/"+ev.JobID, 1, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(m.timeout):
		return fmt.Errorf("publish job event %s: timed out after %s", ev.JobID, m.timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish job event %s: %w", ev.JobID, err)
	}
	return nil
}

// Log writes each event to the logger. It is the fallback when no broker
// or topic is configured.
type Log struct {
	logger zerolog.Logger
}

func NewLog(l zerolog.Logger) *Log {
	return &Log{logger: l}
}

func (n *Log) Notify(_ context.Context, ev domain.JobEvent) error {
	n.logger.Info().
		Str("job_id", ev.JobID).
		Str("state", string(ev.State)).
		Int("total", ev.Summary.Total).
		Int("failed", ev.Summary.Failed).
		Int("critical", ev.Summary.CriticalCount).
		Float64("max_risk_score", ev.Summary.MaxRiskScore).
		Str("results_ref", ev.ResultsRef).
		Msg("job event")
	return nil
}

// Fanout delivers to every notifier and reports all failures together.
type Fanout []jobs.Notifier

func (f Fanout) Notify(ctx context.Context, ev domain.JobEvent) error {
	var result *multierror.Error
	for _, n := range f {
		if err := n.Notify(ctx, ev); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
