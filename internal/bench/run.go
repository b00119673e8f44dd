// Package bench owns benchmark runs: the run state machine, the
// process-wide run registry, and the coordinator that drives a
// resolver×domain probe matrix to a terminal state.
package bench

import (
	"context"
	"sync"
	"time"

	"github.com/iaserrat/nsbench/internal/analysis"
	"github.com/iaserrat/nsbench/internal/probe"
	"github.com/iaserrat/nsbench/internal/stats"
)

// State is the run lifecycle: pending → running → one terminal state.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Terminal reports whether a run in this state will never mutate again.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Options are the per-run knobs. Out-of-range values are clamped, not
// rejected; only empty or malformed inputs fail a StartRun.
type Options struct {
	Timeout         time.Duration
	MaxRetries      int
	MaxConcurrency  int
	InterBatchDelay time.Duration
	PreflightPing   bool
}

const (
	minTimeout     = 1000 * time.Millisecond
	maxTimeout     = 10000 * time.Millisecond
	maxRetryLimit  = 5
	maxConcurrency = 10
)

// Clamped returns a copy with every knob forced into its sane range.
func (o Options) Clamped() Options {
	if o.Timeout < minTimeout {
		o.Timeout = minTimeout
	}
	if o.Timeout > maxTimeout {
		o.Timeout = maxTimeout
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.MaxRetries > maxRetryLimit {
		o.MaxRetries = maxRetryLimit
	}
	if o.MaxConcurrency < 1 {
		o.MaxConcurrency = 1
	}
	if o.MaxConcurrency > maxConcurrency {
		o.MaxConcurrency = maxConcurrency
	}
	if o.InterBatchDelay < 0 {
		o.InterBatchDelay = 0
	}
	return o
}

// Snapshot is an immutable view of a run at one instant. Readers only
// ever see snapshots; the live run is private to its coordinator.
type Snapshot struct {
	ID           string                    `json:"run_id"`
	State        State                     `json:"state"`
	StartedAt    time.Time                 `json:"started_at"`
	CompletedAt  *time.Time                `json:"completed_at,omitempty"`
	Resolvers    []string                  `json:"resolvers"`
	Domains      []string                  `json:"domains"`
	Options      Options                   `json:"-"`
	TotalProbes  int                       `json:"total_probe_count"`
	Completed    int                       `json:"completed_probe_count"`
	Progress     float64                   `json:"progress"`
	Results      []probe.ProbeResult       `json:"-"`
	Stats        []stats.ResolverStat      `json:"-"`
	Findings     []analysis.FailureFinding `json:"-"`
	Reachability map[string]bool           `json:"-"`
	Err          string                    `json:"error,omitempty"`
}

type run struct {
	mu sync.Mutex

	id          string
	state       State
	startedAt   time.Time
	completedAt *time.Time
	resolvers   []string
	domains     []string
	options     Options
	totalProbes int

	results      []probe.ProbeResult
	stats        []stats.ResolverStat
	findings     []analysis.FailureFinding
	reachability map[string]bool
	errMsg       string

	cancel context.CancelFunc
}

func (r *run) snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := Snapshot{
		ID:          r.id,
		State:       r.state,
		StartedAt:   r.startedAt,
		Resolvers:   r.resolvers,
		Domains:     r.domains,
		Options:     r.options,
		TotalProbes: r.totalProbes,
		Completed:   len(r.results),
		Err:         r.errMsg,
	}

	if r.completedAt != nil {
		t := *r.completedAt
		snap.CompletedAt = &t
	}

	snap.Results = append([]probe.ProbeResult(nil), r.results...)
	snap.Stats = append([]stats.ResolverStat(nil), r.stats...)
	snap.Findings = append([]analysis.FailureFinding(nil), r.findings...)
	if r.reachability != nil {
		snap.Reachability = make(map[string]bool, len(r.reachability))
		for k, v := range r.reachability {
			snap.Reachability[k] = v
		}
	}

	snap.Progress = progressLocked(r.state, len(r.results), r.totalProbes)

	return snap
}

// progressLocked caps in-flight progress at 99 so 100 is only ever
// reported by a completed run; the aggregation and analysis tail run
// after the last probe lands.
func progressLocked(state State, completed, total int) float64 {
	if state == StateCompleted {
		return 100
	}
	if total == 0 {
		return 0
	}
	pct := float64(completed) / float64(total) * 100
	if pct > 99 {
		pct = 99
	}
	return pct
}

func (r *run) appendResult(res probe.ProbeResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
}

func (r *run) setReachability(m map[string]bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reachability = m
}

func (r *run) setOutputs(resolverStats []stats.ResolverStat, findings []analysis.FailureFinding) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats = resolverStats
	r.findings = findings
}

func (r *run) finish(state State, errMsg string) {
	now := time.Now().UTC()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = state
	r.completedAt = &now
	r.errMsg = errMsg
}

func (r *run) setState(state State) {
	r.mu.Lock()
	r.state = state
	r.mu.Unlock()
}

func (r *run) currentState() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}
