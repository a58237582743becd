package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ANIKETSHETTY47/grid-risk-engine/internal/domain"
)

type doneToken struct {
	err  error
	done chan struct{}
}

func newToken(err error) *doneToken {
	t := &doneToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *doneToken) Wait() bool                     { return true }
func (t *doneToken) WaitTimeout(time.Duration) bool { return true }
func (t *doneToken) Done() <-chan struct{}          { return t.done }
func (t *doneToken) Error() error                   { return t.err }

type fakePublisher struct {
	topic   string
	payload []byte
	err     error
}

func (p *fakePublisher) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	p.topic = topic
	p.payload = payload.([]byte)
	return newToken(p.err)
}

func event() domain.JobEvent {
	return domain.JobEvent{
		JobID:      "job-1",
		State:      domain.JobCompleted,
		Summary:    domain.JobSummary{Total: 3, Succeeded: 3, MaxRiskScore: 91.5},
		ResultsRef: "s3://bucket/jobs/job-1.json",
	}
}

func TestMQTTPublishesCompactEvent(t *testing.T) {
	p := &fakePublisher{}
	n := NewMQTT(p, "grid/risk/jobs")

	require.NoError(t, n.Notify(context.Background(), event()))
	assert.Equal(t, "grid/risk/jobs/job-1", p.topic)

	var got domain.JobEvent
	require.NoError(t, json.Unmarshal(p.payload, &got))
	assert.Equal(t, "s3://bucket/jobs/job-1.json", got.ResultsRef)
	assert.Equal(t, 91.5, got.Summary.MaxRiskScore)
}

func TestMQTTReportsBrokerError(t *testing.T) {
	n := NewMQTT(&fakePublisher{err: errors.New("not connected")}, "t")
	err := n.Notify(context.Background(), event())
	assert.ErrorContains(t, err, "not connected")
}

func TestFanoutDeliversToAllAndJoinsErrors(t *testing.T) {
	var buf bytes.Buffer
	good := &fakePublisher{}
	f := Fanout{
		NewMQTT(&fakePublisher{err: errors.New("broker down")}, "a"),
		NewLog(zerolog.New(&buf)),
		NewMQTT(good, "b"),
	}

	err := f.Notify(context.Background(), event())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
	assert.Equal(t, "b/job-1", good.topic)
	assert.Contains(t, buf.String(), `"job_id":"job-1"`)

	assert.NoError(t, Fanout{NewLog(zerolog.Nop())}.Notify(context.Background(), event()))
}
