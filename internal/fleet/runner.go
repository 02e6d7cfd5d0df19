// Package fleet evaluates a per-device routine across an address list with
// bounded concurrency: all jobs of one batch run together, batches run in
// sequence, and every device gets a typed outcome in input order.
package fleet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/luxops/luxfleet/internal/rexec"
	"github.com/luxops/luxfleet/pkg/models"
	"golang.org/x/time/rate"
)

// Call is the user routine evaluated once per device.
type Call func(ctx context.Context, host string, port int) (any, error)

// Options tunes one Launch run.
type Options struct {
	// Batch bounds how many jobs run concurrently; 0 runs everything at
	// once (the caller keeps the fanout reasonable).
	Batch int
	// BatchDelay sleeps between batches.
	BatchDelay time.Duration
	// Rate caps job starts per second across the whole run; 0 = unlimited.
	Rate float64
	// Progress is called once per completed batch with the number of
	// addresses finished in that batch. Must be cheap and callable under
	// concurrency.
	Progress func(doneInBatch int)
	// OnOutcome is called as each job finishes, in completion order. Used
	// by the live dashboard and the stats monitor.
	OnOutcome func(models.Outcome)
	// Abort stops launching further batches once the observed failure
	// rate trips the rule. Devices never started are reported as errors.
	Abort *models.AbortRule
}

// Launch runs call against every address. The returned slice is parallel in
// position to addrs regardless of batching or completion order. Job
// failures are captured per device, never raised: a timeout becomes
// OutcomeTimeout, anything else OutcomeErr. Cancelling ctx cancels the jobs
// of the current batch and skips all later batches.
func Launch(ctx context.Context, addrs []models.Address, call Call, opts Options) []models.Outcome {
	outcomes := make([]models.Outcome, len(addrs))

	var limiter *rate.Limiter
	if opts.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.Rate), 1)
	}

	var breaker *Breaker
	if opts.Abort != nil {
		b, err := NewBreaker(opts.Abort)
		if err != nil {
			slog.Warn("ignoring invalid abort rule", "stop_if", opts.Abort.StopIf, "error", err)
		} else {
			breaker = b
		}
	}

	batch := opts.Batch
	if batch <= 0 || batch > len(addrs) {
		batch = len(addrs)
	}

	var total, failed int64
	for start := 0; start < len(addrs); start += batch {
		end := start + batch
		if end > len(addrs) {
			end = len(addrs)
		}

		if ctx.Err() != nil || (breaker != nil && breaker.IsTripped()) {
			markSkipped(ctx, addrs, outcomes, start, breaker, opts.OnOutcome)
			return outcomes
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			if limiter != nil {
				if err := limiter.Wait(ctx); err != nil {
					break
				}
			}
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				outcomes[i] = runOne(ctx, addrs[i], call)
				if opts.OnOutcome != nil {
					opts.OnOutcome(outcomes[i])
				}
			}(i)
		}
		wg.Wait()

		// Fill in jobs the limiter never released (canceled mid-batch).
		for i := start; i < end; i++ {
			if outcomes[i].Address == (models.Address{}) {
				outcomes[i] = canceledOutcome(addrs[i], context.Cause(ctx))
				if opts.OnOutcome != nil {
					opts.OnOutcome(outcomes[i])
				}
			}
		}

		if opts.Progress != nil {
			opts.Progress(end - start)
		}

		if breaker != nil {
			for i := start; i < end; i++ {
				total++
				if !outcomes[i].Ok() {
					failed++
				}
			}
			breaker.Check(total, failed)
		}

		if opts.BatchDelay > 0 && end < len(addrs) {
			select {
			case <-ctx.Done():
			case <-time.After(opts.BatchDelay):
			}
		}
	}

	return outcomes
}

// runOne wraps a single job so nothing escapes: errors and panics become
// tagged outcomes and never cancel sibling jobs.
func runOne(ctx context.Context, addr models.Address, call Call) (out models.Outcome) {
	start := time.Now()
	out = models.Outcome{Address: addr, Kind: models.OutcomeOk}

	defer func() {
		out.Latency = time.Since(start)
		if r := recover(); r != nil {
			out.Kind = models.OutcomeErr
			out.Brief = fmt.Sprintf("panic: %v", r)
			out.Trace = string(debug.Stack())
			out.Err = fmt.Errorf("panic: %v", r)
		}
	}()

	value, err := call(ctx, addr.Host, addr.Port)
	if err != nil {
		out.Err = err
		out.Brief = rexec.BriefError(err)
		out.Trace = errorTrace(err)
		if rexec.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded) {
			out.Kind = models.OutcomeTimeout
		} else {
			out.Kind = models.OutcomeErr
		}
		return out
	}

	out.Value = value
	return out
}

// errorTrace renders the full unwrap chain, one cause per line.
func errorTrace(err error) string {
	var sb []byte
	depth := 0
	for e := err; e != nil; e = errors.Unwrap(e) {
		for i := 0; i < depth; i++ {
			sb = append(sb, ' ', ' ')
		}
		sb = append(sb, e.Error()...)
		sb = append(sb, '\n')
		depth++
	}
	return string(sb)
}

func canceledOutcome(addr models.Address, cause error) models.Outcome {
	if cause == nil {
		cause = context.Canceled
	}
	return models.Outcome{
		Address: addr,
		Kind:    models.OutcomeErr,
		Brief:   cause.Error(),
		Err:     cause,
	}
}

// AbortError marks outcomes of devices skipped because the abort rule
// tripped mid-run.
type AbortError struct{ Reason string }

func (e *AbortError) Error() string { return e.Reason }

// AbortedReason returns the breaker reason when the run was cut short, or ""
// for a run that reached every device.
func AbortedReason(outcomes []models.Outcome) string {
	for _, o := range outcomes {
		var abort *AbortError
		if errors.As(o.Err, &abort) {
			return abort.Reason
		}
	}
	return ""
}

// markSkipped records never-started devices after a cancel or a tripped
// abort rule.
func markSkipped(ctx context.Context, addrs []models.Address, outcomes []models.Outcome, from int, breaker *Breaker, onOutcome func(models.Outcome)) {
	cause := context.Cause(ctx)
	if cause == nil && breaker != nil && breaker.IsTripped() {
		cause = &AbortError{Reason: breaker.Reason()}
	}
	for i := from; i < len(addrs); i++ {
		outcomes[i] = canceledOutcome(addrs[i], cause)
		if onOutcome != nil {
			onOutcome(outcomes[i])
		}
	}
}
