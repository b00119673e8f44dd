// Package broadcast decouples probe execution speed from observer
// update frequency: a sampler goroutine per run reads registry
// snapshots on a fixed interval and fans events out to subscribers.
package broadcast

import (
	"sync"
	"time"

	"github.com/iaserrat/nsbench/internal/bench"
	"github.com/iaserrat/nsbench/internal/stats"
)

type EventType string

const (
	EventProgress EventType = "progress"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// ProbeRef names one in-flight probe.
type ProbeRef struct {
	Resolver string `json:"resolver"`
	Domain   string `json:"domain"`
}

// Event is one push to a subscriber. Progress events carry partial
// per-resolver stats recomputed over the probes finished so far; the
// terminal event carries the run's final stats.
type Event struct {
	Type       EventType            `json:"type"`
	RunID      string               `json:"run_id"`
	Time       time.Time            `json:"time"`
	State      bench.State          `json:"state"`
	Progress   float64              `json:"progress"`
	Completed  int                  `json:"completed"`
	Total      int                  `json:"total"`
	InFlight   []ProbeRef           `json:"in_flight,omitempty"`
	Stats      []stats.ResolverStat `json:"stats,omitempty"`
	ETASeconds float64              `json:"eta_seconds"`
	Err        string               `json:"error,omitempty"`
}

// Broadcaster implements bench.Observer. It tolerates zero subscribers
// and never blocks on a slow one: events that do not fit a subscriber's
// buffer are dropped for that subscriber.
type Broadcaster struct {
	registry *bench.Registry
	interval time.Duration
	grace    time.Duration
	quit     chan struct{}
	once     sync.Once

	mu       sync.RWMutex
	subs     map[string]map[chan Event]struct{}
	inflight map[string]map[ProbeRef]struct{}
}

func New(registry *bench.Registry, interval time.Duration) *Broadcaster {
	if interval <= 0 {
		interval = time.Second
	}
	return &Broadcaster{
		registry: registry,
		interval: interval,
		grace:    2 * interval,
		quit:     make(chan struct{}),
		subs:     make(map[string]map[chan Event]struct{}),
		inflight: make(map[string]map[ProbeRef]struct{}),
	}
}

// Subscribe registers interest in one run's events. The returned cancel
// func is idempotent with the broadcaster's own retirement of the run.
func (b *Broadcaster) Subscribe(runID string, buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	if b.subs[runID] == nil {
		b.subs[runID] = make(map[chan Event]struct{})
	}
	b.subs[runID][ch] = struct{}{}
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if set, ok := b.subs[runID]; ok {
			if _, ok := set[ch]; ok {
				delete(set, ch)
				close(ch)
			}
		}
	}
}

// Close stops every sampler. Subscriber channels are closed as their
// runs retire or on the samplers observing quit.
func (b *Broadcaster) Close() {
	b.once.Do(func() { close(b.quit) })
}

// RunRegistered starts the sampling loop for a new run.
func (b *Broadcaster) RunRegistered(runID string) {
	go b.sample(runID)
}

func (b *Broadcaster) ProbeStarted(runID, resolver, domain string) {
	b.mu.Lock()
	if b.inflight[runID] == nil {
		b.inflight[runID] = make(map[ProbeRef]struct{})
	}
	b.inflight[runID][ProbeRef{Resolver: resolver, Domain: domain}] = struct{}{}
	b.mu.Unlock()
}

func (b *Broadcaster) ProbeFinished(runID, resolver, domain string) {
	b.mu.Lock()
	delete(b.inflight[runID], ProbeRef{Resolver: resolver, Domain: domain})
	b.mu.Unlock()
}

func (b *Broadcaster) sample(runID string) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-b.quit:
			b.retire(runID)
			return
		case <-ticker.C:
		}

		snap, ok := b.registry.Snapshot(runID)
		if !ok {
			// The run vanished from the registry mid-sampling; tell
			// observers and stop.
			b.publish(runID, Event{
				Type:  EventError,
				RunID: runID,
				Time:  time.Now().UTC(),
				Err:   "run disappeared from registry",
			})
			b.retire(runID)
			return
		}

		if snap.State.Terminal() {
			b.publish(runID, terminalEvent(snap))
			// Grace window so slow observers catch the final event
			// before their channels close.
			select {
			case <-b.quit:
			case <-time.After(b.grace):
			}
			b.retire(runID)
			return
		}

		b.publish(runID, b.progressEvent(snap))
	}
}

func (b *Broadcaster) progressEvent(snap bench.Snapshot) Event {
	ev := Event{
		Type:       EventProgress,
		RunID:      snap.ID,
		Time:       time.Now().UTC(),
		State:      snap.State,
		Progress:   snap.Progress,
		Completed:  snap.Completed,
		Total:      snap.TotalProbes,
		Stats:      stats.Aggregate(snap.Results, snap.Resolvers),
		ETASeconds: eta(snap),
	}

	b.mu.RLock()
	for ref := range b.inflight[snap.ID] {
		ev.InFlight = append(ev.InFlight, ref)
	}
	b.mu.RUnlock()

	return ev
}

func terminalEvent(snap bench.Snapshot) Event {
	ev := Event{
		Type:      EventComplete,
		RunID:     snap.ID,
		Time:      time.Now().UTC(),
		State:     snap.State,
		Progress:  snap.Progress,
		Completed: snap.Completed,
		Total:     snap.TotalProbes,
		Stats:     snap.Stats,
	}
	if snap.State == bench.StateFailed {
		ev.Type = EventError
		ev.Err = snap.Err
	}
	return ev
}

func eta(snap bench.Snapshot) float64 {
	if snap.Progress <= 0 {
		return -1
	}
	elapsed := time.Since(snap.StartedAt).Seconds()
	return elapsed / snap.Progress * (100 - snap.Progress)
}

func (b *Broadcaster) publish(runID string, ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subs[runID] {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (b *Broadcaster) retire(runID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subs[runID] {
		close(ch)
	}
	delete(b.subs, runID)
	delete(b.inflight, runID)
}
