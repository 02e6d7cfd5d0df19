// Package stats aggregates per-device outcomes during a fleet run into the
// final report: counters, latency percentiles and an error breakdown.
package stats

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/luxops/luxfleet/pkg/models"
)

// Monitor collects fleet run metrics using atomic counters and an HDR
// histogram. Safe for concurrent Add from all jobs of a batch.
type Monitor struct {
	total    int64
	ok       int64
	timeouts int64
	errs     int64
	batches  int64

	errors sync.Map // map[string]int, sanitized error text

	mu        sync.Mutex
	histogram *hdrhistogram.Histogram

	startTime time.Time
}

func NewMonitor() *Monitor {
	return &Monitor{
		startTime: time.Now(),
		// min 1µs, max 5min (in µs), 3 significant figures
		histogram: hdrhistogram.New(1, 300000000, 3),
	}
}

// Add records a single device outcome.
func (m *Monitor) Add(o models.Outcome) {
	atomic.AddInt64(&m.total, 1)

	switch o.Kind {
	case models.OutcomeOk:
		atomic.AddInt64(&m.ok, 1)
	case models.OutcomeTimeout:
		atomic.AddInt64(&m.timeouts, 1)
	default:
		atomic.AddInt64(&m.errs, 1)
	}

	if o.Err != nil {
		errStr := sanitizeError(o.Brief)
		m.mu.Lock()
		count, _ := m.errors.LoadOrStore(errStr, 0)
		m.errors.Store(errStr, count.(int)+1)
		m.mu.Unlock()
	}

	// Latency only means "device answered" for successful outcomes;
	// immediate refusals would skew the minimum.
	if o.Kind == models.OutcomeOk && o.Latency > 0 {
		m.mu.Lock()
		_ = m.histogram.RecordValue(o.Latency.Microseconds())
		m.mu.Unlock()
	}
}

// BatchDone counts one completed batch.
func (m *Monitor) BatchDone(int) {
	atomic.AddInt64(&m.batches, 1)
}

// Counts returns the current counters (for progress displays).
func (m *Monitor) Counts() (total, ok, timeouts, errs int64) {
	return atomic.LoadInt64(&m.total),
		atomic.LoadInt64(&m.ok),
		atomic.LoadInt64(&m.timeouts),
		atomic.LoadInt64(&m.errs)
}

// Snapshot returns a report of the metrics so far.
func (m *Monitor) Snapshot() models.Report {
	total, ok, timeouts, errs := m.Counts()

	successRate := 0.0
	if total > 0 {
		successRate = float64(ok) / float64(total) * 100
	}

	m.mu.Lock()
	h := m.histogram
	p50 := time.Duration(h.ValueAtQuantile(50)) * time.Microsecond
	p90 := time.Duration(h.ValueAtQuantile(90)) * time.Microsecond
	p95 := time.Duration(h.ValueAtQuantile(95)) * time.Microsecond
	p99 := time.Duration(h.ValueAtQuantile(99)) * time.Microsecond
	max := time.Duration(h.Max()) * time.Microsecond
	min := time.Duration(h.Min()) * time.Microsecond
	m.mu.Unlock()

	errorMap := make(map[string]int)
	m.errors.Range(func(key, value interface{}) bool {
		errorMap[key.(string)] = value.(int)
		return true
	})

	return models.Report{
		Total:        total,
		OkCount:      ok,
		TimeoutCount: timeouts,
		ErrCount:     errs,
		SuccessRate:  successRate,
		Duration:     time.Since(m.startTime),
		Batches:      int(atomic.LoadInt64(&m.batches)),
		P50:          p50,
		P90:          p90,
		P95:          p95,
		P99:          p99,
		Min:          min,
		Max:          max,
		Errors:       errorMap,
	}
}
