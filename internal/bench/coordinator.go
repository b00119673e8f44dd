package bench

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/iaserrat/nsbench/internal/analysis"
	"github.com/iaserrat/nsbench/internal/probe"
	"github.com/iaserrat/nsbench/internal/stats"
)

// ErrRunNotFound is returned by lookups and cancellations for unknown
// run ids.
var ErrRunNotFound = errors.New("run not found")

// Sink receives terminal runs for durable storage. The handoff is
// asynchronous; a sink failure is the sink's problem and never touches
// the run's state machine.
type Sink interface {
	PersistRun(snap Snapshot)
}

// Observer is notified of run registration and of every probe's start
// and finish, so progress reporting can name the actual in-flight
// probes instead of inferring them.
type Observer interface {
	RunRegistered(runID string)
	ProbeStarted(runID, resolver, domain string)
	ProbeFinished(runID, resolver, domain string)
}

// Analyzer is the post-completion failure analysis step, mockable in
// tests because it performs network probes of its own.
type Analyzer interface {
	Analyze(ctx context.Context, results []probe.ProbeResult, domains []string) []analysis.FailureFinding
}

// Coordinator starts, tracks, and cancels benchmark runs.
type Coordinator struct {
	registry *Registry
	resolver probe.Resolver
	timing   probe.TimingSource
	analyzer Analyzer
	sink     Sink
	observer Observer
	pinger   *probe.Pinger
}

func NewCoordinator(registry *Registry, resolver probe.Resolver, timing probe.TimingSource, analyzer Analyzer, sink Sink, observer Observer) *Coordinator {
	return &Coordinator{
		registry: registry,
		resolver: resolver,
		timing:   timing,
		analyzer: analyzer,
		sink:     sink,
		observer: observer,
		pinger:   &probe.Pinger{Timeout: 2 * time.Second},
	}
}

// StartRun validates the inputs, registers a new run, and launches it
// asynchronously. The returned id is valid for lookup immediately.
func (c *Coordinator) StartRun(resolvers, domains []string, opts Options) (string, error) {
	resolvers = dedupe(resolvers)
	if err := validateInputs(resolvers, domains); err != nil {
		return "", err
	}
	opts = opts.Clamped()

	ctx, cancel := context.WithCancel(context.Background())
	r := &run{
		id:          uuid.NewString(),
		state:       StatePending,
		startedAt:   time.Now().UTC(),
		resolvers:   resolvers,
		domains:     append([]string(nil), domains...),
		options:     opts,
		totalProbes: len(resolvers) * len(domains),
		cancel:      cancel,
	}
	c.registry.add(r)
	r.setState(StateRunning)

	if c.observer != nil {
		c.observer.RunRegistered(r.id)
	}

	go c.execute(ctx, r)

	return r.id, nil
}

// GetRun returns a snapshot of the run, or ErrRunNotFound.
func (c *Coordinator) GetRun(id string) (Snapshot, error) {
	snap, ok := c.registry.Snapshot(id)
	if !ok {
		return Snapshot{}, ErrRunNotFound
	}
	return snap, nil
}

// ActiveRuns lists the ids of runs that have not reached a terminal
// state.
func (c *Coordinator) ActiveRuns() []string {
	return c.registry.ActiveIDs()
}

// CancelRun aborts a running run: no new batches are scheduled and the
// cancellation propagates into every in-flight resolution attempt.
// Cancelling a terminal run is a no-op.
func (c *Coordinator) CancelRun(id string) error {
	r, ok := c.registry.get(id)
	if !ok {
		return ErrRunNotFound
	}
	if r.currentState().Terminal() {
		return nil
	}
	r.cancel()
	return nil
}

type probeTask struct {
	resolver string
	domain   string
}

func (c *Coordinator) execute(ctx context.Context, r *run) {
	defer r.cancel()

	if r.options.PreflightPing {
		r.setReachability(c.preflight(r.resolvers))
	}

	executor := probe.NewExecutor(c.resolver, c.timing, r.options.Timeout, r.options.MaxRetries)

	tasks := make([]probeTask, 0, r.totalProbes)
	for _, resolver := range r.resolvers {
		for _, domain := range r.domains {
			tasks = append(tasks, probeTask{resolver: resolver, domain: domain})
		}
	}

	for start := 0; start < len(tasks); start += r.options.MaxConcurrency {
		if ctx.Err() != nil {
			break
		}

		end := start + r.options.MaxConcurrency
		if end > len(tasks) {
			end = len(tasks)
		}

		var g errgroup.Group
		for _, task := range tasks[start:end] {
			task := task
			g.Go(func() error {
				if c.observer != nil {
					c.observer.ProbeStarted(r.id, task.resolver, task.domain)
				}
				res := executor.Probe(ctx, task.resolver, task.domain)
				// A probe aborted by cancellation is abandoned, not
				// recorded as a failure it never really had.
				if ctx.Err() == nil || res.Success {
					r.appendResult(res)
				}
				if c.observer != nil {
					c.observer.ProbeFinished(r.id, task.resolver, task.domain)
				}
				return nil
			})
		}
		_ = g.Wait()

		if end < len(tasks) && r.options.InterBatchDelay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(r.options.InterBatchDelay):
			}
		}
	}

	if ctx.Err() != nil {
		c.terminate(r, StateCancelled, "")
		return
	}

	if err := c.finalize(ctx, r); err != nil {
		c.terminate(r, StateFailed, err.Error())
		return
	}

	if ctx.Err() != nil {
		// Cancelled during the analysis tail.
		c.terminate(r, StateCancelled, "")
		return
	}

	c.terminate(r, StateCompleted, "")
}

// finalize aggregates statistics and runs failure analysis. A panic in
// either is a run-level fault, not a crash: it is caught and becomes
// the run's single error string.
func (c *Coordinator) finalize(ctx context.Context, r *run) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("result aggregation failed: %v", p)
		}
	}()

	snap := r.snapshot()
	resolverStats := stats.Aggregate(snap.Results, snap.Resolvers)

	var findings []analysis.FailureFinding
	if c.analyzer != nil {
		findings = c.analyzer.Analyze(ctx, snap.Results, snap.Domains)
	}

	r.setOutputs(resolverStats, findings)
	return nil
}

func (c *Coordinator) terminate(r *run, state State, errMsg string) {
	r.finish(state, errMsg)

	if c.sink != nil {
		// Handed off on its own goroutine so a slow sink cannot block
		// the state transition that just happened.
		snap := r.snapshot()
		go c.sink.PersistRun(snap)
	}
}

func (c *Coordinator) preflight(resolvers []string) map[string]bool {
	reachability := make(map[string]bool, len(resolvers))
	for _, resolver := range resolvers {
		ok, err := c.pinger.Reachable(resolver)
		if err != nil {
			// No privilege for raw ICMP or a local socket error:
			// pre-flight is best-effort, skip it entirely.
			return nil
		}
		reachability[resolver] = ok
	}
	return reachability
}

func validateInputs(resolvers, domains []string) error {
	var errs []string

	if len(resolvers) == 0 {
		errs = append(errs, "resolver list must not be empty")
	}
	if len(domains) == 0 {
		errs = append(errs, "domain list must not be empty")
	}
	for _, r := range resolvers {
		if net.ParseIP(r) == nil {
			errs = append(errs, fmt.Sprintf("resolver %q is not an IP literal", r))
		}
	}
	for i, d := range domains {
		if strings.TrimSpace(d) == "" {
			errs = append(errs, fmt.Sprintf("domains[%d] is empty", i))
		}
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
