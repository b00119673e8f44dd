package probe

import (
	"context"
	"time"
)

// ProbeResult is the immutable outcome of one (resolver, domain) probe
// after the retry budget is spent. Exactly one is produced per pair per
// run; the outcome and latency are those of the final attempt.
type ProbeResult struct {
	Resolver     string    `json:"resolver"`
	Domain       string    `json:"domain"`
	Success      bool      `json:"success"`
	LatencyMs    float64   `json:"latency_ms"`
	AttemptCount int       `json:"attempt_count"`
	Outcome      Outcome   `json:"outcome_code"`
	Precision    Precision `json:"timing_precision"`
}

// Executor runs probes with a fixed retry budget. It never returns an
// error: every outcome, including internal faults, is a ProbeResult
// with Success=false.
type Executor struct {
	Resolver   Resolver
	Timing     TimingSource
	Timeout    time.Duration
	MaxRetries int
}

func NewExecutor(resolver Resolver, timing TimingSource, timeout time.Duration, maxRetries int) *Executor {
	return &Executor{
		Resolver:   resolver,
		Timing:     timing,
		Timeout:    timeout,
		MaxRetries: maxRetries,
	}
}

// Probe attempts resolution up to MaxRetries+1 times, stopping at the
// first success. Cancelling ctx aborts the in-flight attempt and
// suppresses further retries.
func (e *Executor) Probe(ctx context.Context, server, domain string) ProbeResult {
	result := ProbeResult{
		Resolver:  server,
		Domain:    domain,
		Outcome:   OutcomeServerFailure,
		Precision: e.Timing.Precision(),
	}

	for attempt := 0; attempt <= e.MaxRetries; attempt++ {
		result.AttemptCount = attempt + 1

		attemptCtx, cancel := context.WithTimeout(ctx, e.Timeout)
		stop := e.Timing.Start()
		reply, err := e.Resolver.Resolve(attemptCtx, server, domain)
		result.LatencyMs = stop()
		cancel()

		result.Outcome = Classify(reply, err)
		if result.Outcome == OutcomeOK {
			result.Success = true
			return result
		}

		if ctx.Err() != nil {
			return result
		}
	}

	return result
}
