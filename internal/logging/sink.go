package logging

import (
	"fmt"
	"os"
	"time"

	"github.com/iaserrat/nsbench/internal/bench"
)

// RunSink persists terminal run snapshots. It implements bench.Sink; a
// write failure is reported on stderr and otherwise dropped, never
// surfaced to the run.
type RunSink struct {
	logger *Logger
}

func NewRunSink(logger *Logger) *RunSink {
	return &RunSink{logger: logger}
}

// PersistRun writes the run header, one record per resolver stat, the
// raw probe matrix, and the failure findings.
func (s *RunSink) PersistRun(snap bench.Snapshot) {
	summary := &RunSummary{
		BaseRecord:        BaseRecord{Type: "run_summary", RunID: snap.ID},
		State:             string(snap.State),
		StartedAt:         snap.StartedAt.Format(time.RFC3339Nano),
		Resolvers:         snap.Resolvers,
		Domains:           snap.Domains,
		TotalProbes:       snap.TotalProbes,
		CompletedProbes:   snap.Completed,
		TimeoutMs:         snap.Options.Timeout.Milliseconds(),
		MaxRetries:        snap.Options.MaxRetries,
		MaxConcurrency:    snap.Options.MaxConcurrency,
		InterBatchDelayMs: snap.Options.InterBatchDelay.Milliseconds(),
		Error:             snap.Err,
	}
	if snap.CompletedAt != nil {
		summary.CompletedAt = snap.CompletedAt.Format(time.RFC3339Nano)
	}
	s.emit(summary)

	for _, st := range snap.Stats {
		rec := &ResolverStatRecord{
			BaseRecord:   BaseRecord{Type: "resolver_stat", RunID: snap.ID},
			ResolverStat: st,
		}
		if snap.Reachability != nil {
			if reachable, ok := snap.Reachability[st.Resolver]; ok {
				v := reachable
				rec.Reachable = &v
			}
		}
		s.emit(rec)
	}

	for _, res := range snap.Results {
		s.emit(&ProbeRecord{
			BaseRecord:  BaseRecord{Type: "probe_result", RunID: snap.ID},
			ProbeResult: res,
		})
	}

	for _, finding := range snap.Findings {
		s.emit(&FindingRecord{
			BaseRecord:     BaseRecord{Type: "failure_finding", RunID: snap.ID},
			FailureFinding: finding,
		})
	}
}

func (s *RunSink) emit(record Emittable) {
	if err := s.logger.Emit(record); err != nil {
		fmt.Fprintf(os.Stderr, "nsbench: persist %s: %v\n", record.Base().Type, err)
	}
}
