package stats

import (
	"errors"
	"testing"
	"time"

	"github.com/luxops/luxfleet/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestMonitorCountsByKind(t *testing.T) {
	m := NewMonitor()
	m.Add(models.Outcome{Kind: models.OutcomeOk, Latency: 5 * time.Millisecond})
	m.Add(models.Outcome{Kind: models.OutcomeOk, Latency: 10 * time.Millisecond})
	m.Add(models.Outcome{Kind: models.OutcomeTimeout, Brief: "roundtrip failed", Err: errors.New("x")})
	m.Add(models.Outcome{Kind: models.OutcomeErr, Brief: "boom", Err: errors.New("boom")})
	m.BatchDone(4)

	rep := m.Snapshot()
	assert.Equal(t, int64(4), rep.Total)
	assert.Equal(t, int64(2), rep.OkCount)
	assert.Equal(t, int64(1), rep.TimeoutCount)
	assert.Equal(t, int64(1), rep.ErrCount)
	assert.Equal(t, 50.0, rep.SuccessRate)
	assert.Equal(t, 1, rep.Batches)
	assert.GreaterOrEqual(t, rep.P50, 5*time.Millisecond)
}

func TestMonitorAggregatesSimilarErrors(t *testing.T) {
	m := NewMonitor()
	for i := 0; i < 3; i++ {
		m.Add(models.Outcome{
			Kind:  models.OutcomeTimeout,
			Brief: "<10.0.0.1:4028>: roundtrip failed: dial tcp 10.0.0.1:4028: connect: connection refused",
			Err:   errors.New("refused"),
		})
	}
	m.Add(models.Outcome{
		Kind:  models.OutcomeTimeout,
		Brief: "<10.0.0.2:4028>: roundtrip failed: dial tcp 10.0.0.2:4028: connect: connection refused",
		Err:   errors.New("refused"),
	})

	rep := m.Snapshot()
	// Per-device addresses are stripped so the four failures share a bucket.
	assert.Len(t, rep.Errors, 1)
	for _, count := range rep.Errors {
		assert.Equal(t, 4, count)
	}
}

func TestSanitizeError(t *testing.T) {
	in := "read tcp 127.0.0.1:54321->127.0.0.1:4028: i/o timeout"
	out := sanitizeError(in)
	assert.NotContains(t, out, "54321")
	assert.Contains(t, out, "[CONN_TUPLE]")
}
