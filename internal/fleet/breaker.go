package fleet

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/luxops/luxfleet/pkg/models"
)

// Breaker watches the per-device failure rate of a run and trips when the
// configured threshold is exceeded, so a bad broadcast stops before it
// reaches the whole fleet.
type Breaker struct {
	rule    *models.AbortRule
	tripped int32 // atomic: 0 = closed, 1 = open
	reason  string
	mu      sync.Mutex
}

// NewBreaker builds a breaker from an abort rule.
func NewBreaker(rule *models.AbortRule) (*Breaker, error) {
	if rule == nil {
		return nil, nil
	}
	if err := ParseAbortCondition(rule); err != nil {
		return nil, err
	}
	if rule.MinSamples <= 0 {
		rule.MinSamples = 10 // cold start: one bad device must not stop a run
	}
	return &Breaker{rule: rule}, nil
}

// conditionPattern matches expressions like "errors > 10%" or "error_rate > 0.1"
var conditionPattern = regexp.MustCompile(`(?i)(errors?|error_rate|failures?)\s*([><=]+)\s*([\d.]+)(%)?`)

// ParseAbortCondition parses the stop_if expression into the rule fields.
func ParseAbortCondition(rule *models.AbortRule) error {
	expr := strings.TrimSpace(rule.StopIf)
	if expr == "" {
		return fmt.Errorf("empty abort condition")
	}

	matches := conditionPattern.FindStringSubmatch(expr)
	if matches == nil {
		return fmt.Errorf("invalid abort condition '%s'. Expected format: 'errors > 10%%' or 'failures > 50'", expr)
	}

	rule.Metric = strings.ToLower(matches[1])
	rule.Operator = matches[2]

	threshold, err := strconv.ParseFloat(matches[3], 64)
	if err != nil {
		return fmt.Errorf("invalid threshold value '%s': %w", matches[3], err)
	}
	rule.Threshold = threshold
	rule.IsPercent = matches[4] == "%"

	switch rule.Metric {
	case "error", "errors":
		rule.Metric = "errors"
	case "failure", "failures":
		rule.Metric = "failures"
	}
	return nil
}

// Check evaluates the rule against the counters so far. Returns true once
// the breaker has tripped.
func (b *Breaker) Check(total, failed int64) bool {
	if b == nil || b.rule == nil {
		return false
	}
	if atomic.LoadInt32(&b.tripped) == 1 {
		return true
	}
	if total < b.rule.MinSamples {
		return false
	}

	var current float64
	switch b.rule.Metric {
	case "errors", "error_rate":
		if b.rule.IsPercent {
			current = float64(failed) / float64(total) * 100
		} else {
			current = float64(failed) / float64(total)
		}
	case "failures":
		current = float64(failed)
	default:
		return false
	}

	shouldTrip := false
	switch b.rule.Operator {
	case ">":
		shouldTrip = current > b.rule.Threshold
	case ">=":
		shouldTrip = current >= b.rule.Threshold
	case "<":
		shouldTrip = current < b.rule.Threshold
	case "<=":
		shouldTrip = current <= b.rule.Threshold
	}

	if shouldTrip {
		b.mu.Lock()
		if atomic.CompareAndSwapInt32(&b.tripped, 0, 1) {
			if b.rule.IsPercent {
				b.reason = fmt.Sprintf("run aborted: %s (%.1f%%) exceeded threshold (%.1f%%)",
					b.rule.Metric, current, b.rule.Threshold)
			} else {
				b.reason = fmt.Sprintf("run aborted: %s (%.3f) exceeded threshold (%.3f)",
					b.rule.Metric, current, b.rule.Threshold)
			}
		}
		b.mu.Unlock()
		return true
	}
	return false
}

// IsTripped returns whether the breaker has tripped.
func (b *Breaker) IsTripped() bool {
	if b == nil {
		return false
	}
	return atomic.LoadInt32(&b.tripped) == 1
}

// Reason returns why the breaker tripped (empty if it has not).
func (b *Breaker) Reason() string {
	if b == nil {
		return ""
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reason
}
