package logging

import (
	"github.com/iaserrat/nsbench/internal/analysis"
	"github.com/iaserrat/nsbench/internal/probe"
	"github.com/iaserrat/nsbench/internal/stats"
)

// BaseRecord is the envelope shared by every JSONL record. Emit fills
// the timestamp, sequence, and tool identity fields.
type BaseRecord struct {
	TSUTC         string `json:"ts_utc"`
	TSUnixMS      int64  `json:"ts_unix_ms"`
	Seq           uint64 `json:"seq"`
	Type          string `json:"type"`
	RunID         string `json:"run_id"`
	SchemaVersion int    `json:"schema_version"`
	ToolName      string `json:"tool_name"`
	ToolVersion   string `json:"tool_version"`
	HostID        string `json:"host_id"`
	ClockSource   string `json:"clock_source"`
}

func (b *BaseRecord) Base() *BaseRecord {
	return b
}

// Emittable is any record carrying the common envelope.
type Emittable interface {
	Base() *BaseRecord
}

// RunSummary is the one-per-run header record.
type RunSummary struct {
	BaseRecord
	State             string   `json:"state"`
	StartedAt         string   `json:"started_at"`
	CompletedAt       string   `json:"completed_at,omitempty"`
	Resolvers         []string `json:"resolvers"`
	Domains           []string `json:"domains"`
	TotalProbes       int      `json:"total_probe_count"`
	CompletedProbes   int      `json:"completed_probe_count"`
	TimeoutMs         int64    `json:"timeout_ms"`
	MaxRetries        int      `json:"max_retries"`
	MaxConcurrency    int      `json:"max_concurrency"`
	InterBatchDelayMs int64    `json:"inter_batch_delay_ms"`
	Error             string   `json:"error,omitempty"`
}

// ResolverStatRecord carries one resolver's final statistics, plus its
// ICMP reachability when the pre-flight ran.
type ResolverStatRecord struct {
	BaseRecord
	stats.ResolverStat
	Reachable *bool `json:"reachable,omitempty"`
}

// ProbeRecord is one raw matrix entry.
type ProbeRecord struct {
	BaseRecord
	probe.ProbeResult
}

// FindingRecord is one failure-analysis finding.
type FindingRecord struct {
	BaseRecord
	analysis.FailureFinding
}
