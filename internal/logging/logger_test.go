package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/iaserrat/nsbench/internal/analysis"
	"github.com/iaserrat/nsbench/internal/probe"
	"github.com/iaserrat/nsbench/internal/stats"
)

func TestEmitPopulatesBaseFields(t *testing.T) {
	dir := t.TempDir()
	logger, err := New(Config{
		Dir:         dir,
		MaxMB:       1,
		MaxFiles:    1,
		ToolName:    "nsbench",
		ToolVersion: "test",
		HostID:      "host-1",
	})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	defer logger.Close()

	records := []Emittable{
		&RunSummary{
			BaseRecord:      BaseRecord{Type: "run_summary", RunID: "run-1"},
			State:           "completed",
			StartedAt:       time.Unix(1, 0).UTC().Format(time.RFC3339Nano),
			CompletedAt:     time.Unix(2, 0).UTC().Format(time.RFC3339Nano),
			Resolvers:       []string{"8.8.8.8"},
			Domains:         []string{"example.com"},
			TotalProbes:     1,
			CompletedProbes: 1,
			TimeoutMs:       3000,
			MaxConcurrency:  5,
		},
		&ResolverStatRecord{
			BaseRecord: BaseRecord{Type: "resolver_stat", RunID: "run-1"},
			ResolverStat: stats.ResolverStat{
				Resolver:    "8.8.8.8",
				Queries:     1,
				Successes:   1,
				SuccessRate: 100,
				AvgMs:       12.5,
				MinMs:       12.5,
				MaxMs:       12.5,
				MedianMs:    12.5,
				Rank:        1,
			},
		},
		&ProbeRecord{
			BaseRecord: BaseRecord{Type: "probe_result", RunID: "run-1"},
			ProbeResult: probe.ProbeResult{
				Resolver:     "8.8.8.8",
				Domain:       "example.com",
				Success:      true,
				LatencyMs:    12.5,
				AttemptCount: 1,
				Outcome:      probe.OutcomeOK,
				Precision:    probe.PrecisionHigh,
			},
		},
		&FindingRecord{
			BaseRecord: BaseRecord{Type: "failure_finding", RunID: "run-1"},
			FailureFinding: analysis.FailureFinding{
				Kind:              analysis.FindingSystemicDomain,
				Domain:            "blocked.example",
				ConsistentFailure: true,
				Pattern:           analysis.PatternConsistentFailure,
			},
		},
	}

	for _, rec := range records {
		if err := logger.Emit(rec); err != nil {
			t.Fatalf("emit: %v", err)
		}
	}

	logPath := filepath.Join(dir, "nsbench.jsonl")
	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != len(records) {
		t.Fatalf("expected %d log lines, got %d", len(records), len(lines))
	}

	var lastSeq float64
	for _, line := range lines {
		var payload map[string]any
		if err := json.Unmarshal([]byte(line), &payload); err != nil {
			t.Fatalf("unmarshal log line: %v", err)
		}

		tsUTC, ok := payload["ts_utc"].(string)
		if !ok || tsUTC == "" || tsUTC == "0001-01-01T00:00:00Z" {
			t.Fatalf("invalid ts_utc: %v", payload["ts_utc"])
		}
		if _, err := time.Parse(time.RFC3339Nano, tsUTC); err != nil {
			t.Fatalf("ts_utc not RFC3339Nano: %v", err)
		}

		tsUnix, ok := payload["ts_unix_ms"].(float64)
		if !ok || tsUnix == 0 {
			t.Fatalf("invalid ts_unix_ms: %v", payload["ts_unix_ms"])
		}

		seq, ok := payload["seq"].(float64)
		if !ok || seq <= lastSeq {
			t.Fatalf("seq not monotonically increasing: %v after %v", payload["seq"], lastSeq)
		}
		lastSeq = seq

		if payload["type"] == "" || payload["run_id"] != "run-1" {
			t.Fatalf("missing required identifiers: %#v", payload)
		}
		if payload["schema_version"] != float64(1) {
			t.Fatalf("expected schema_version 1, got %v", payload["schema_version"])
		}
		if payload["tool_name"] != "nsbench" {
			t.Fatalf("expected tool_name nsbench, got %v", payload["tool_name"])
		}
		if payload["tool_version"] != "test" {
			t.Fatalf("expected tool_version test, got %v", payload["tool_version"])
		}
		if payload["host_id"] != "host-1" {
			t.Fatalf("expected host_id host-1, got %v", payload["host_id"])
		}
		if payload["clock_source"] != "system" {
			t.Fatalf("expected clock_source system, got %v", payload["clock_source"])
		}
	}
}

func TestEmitOnUninitializedLogger(t *testing.T) {
	var logger *Logger
	if err := logger.Emit(&RunSummary{}); err == nil {
		t.Fatal("expected error from nil logger")
	}
}
