// Package analysis post-processes a completed run to separate domains
// that fail everywhere from resolver-specific failure clusters. It
// re-probes candidate domains against a trusted validation panel, so it
// performs extra network traffic and must only run after the primary
// matrix is done.
package analysis

import (
	"context"
	"sync"
	"time"

	"github.com/iaserrat/nsbench/internal/probe"
)

// Pattern labels a failure finding. For resolver findings whose failed
// probes all share one outcome code, the pattern is that code verbatim.
type Pattern string

const (
	PatternConsistentFailure Pattern = "CONSISTENT_FAILURE"
	PatternUnresolvable      Pattern = "UNRESOLVABLE"
	PatternMostlyNXDomain    Pattern = "MOSTLY_NXDOMAIN"
	PatternMostlyServfail    Pattern = "MOSTLY_SERVFAIL"
	PatternMixedFailures     Pattern = "MIXED_FAILURES"
)

const (
	// systemicThreshold flags a domain when at least this share of all
	// probes against it failed.
	systemicThreshold = 0.8
	// dominantShare is the fraction above which one outcome code
	// characterizes a resolver's failures.
	dominantShare = 0.7
)

// FindingKind separates the two finding shapes sharing one record type.
type FindingKind string

const (
	FindingSystemicDomain FindingKind = "systemic_domain"
	FindingResolver       FindingKind = "resolver"
)

// FailureFinding is either a systemic-domain finding (Domain,
// ConsistentFailure, UpstreamShouldResolve set) or a resolver-specific
// one (Resolver, Domains set).
type FailureFinding struct {
	Kind                  FindingKind `json:"kind"`
	Domain                string      `json:"domain,omitempty"`
	Resolver              string      `json:"resolver,omitempty"`
	Domains               []string    `json:"domains,omitempty"`
	ConsistentFailure     bool        `json:"consistent_failure,omitempty"`
	UpstreamShouldResolve bool        `json:"upstream_should_resolve,omitempty"`
	Pattern               Pattern     `json:"pattern"`
}

// Analyzer validates candidate systemic failures against a trusted
// resolver panel, distinct from the run's own resolver list.
type Analyzer struct {
	executor *probe.Executor
	panel    []string
}

// DefaultPanel are independent public resolvers used as ground truth
// for "should this domain resolve at all".
var DefaultPanel = []string{"8.8.8.8", "1.1.1.1", "9.9.9.9"}

func NewAnalyzer(panel []string, resolver probe.Resolver, timing probe.TimingSource, timeout time.Duration) *Analyzer {
	if len(panel) == 0 {
		panel = DefaultPanel
	}
	return &Analyzer{
		// One retry and a generous timeout: the panel answers a yes/no
		// question, its latency is not part of the benchmark.
		executor: probe.NewExecutor(resolver, timing, timeout, 1),
		panel:    panel,
	}
}

// Analyze runs both passes over a completed result set. domains is the
// run's probe-domain list; results must cover the full matrix.
func (a *Analyzer) Analyze(ctx context.Context, results []probe.ProbeResult, domains []string) []FailureFinding {
	var findings []FailureFinding
	findings = append(findings, a.systemicDomains(ctx, results, domains)...)
	findings = append(findings, resolverClusters(results)...)
	return findings
}

func (a *Analyzer) systemicDomains(ctx context.Context, results []probe.ProbeResult, domains []string) []FailureFinding {
	total := make(map[string]int, len(domains))
	failed := make(map[string]int, len(domains))
	for _, r := range results {
		total[r.Domain]++
		if !r.Success {
			failed[r.Domain]++
		}
	}

	var findings []FailureFinding
	for _, domain := range domains {
		if total[domain] == 0 {
			continue
		}
		rate := float64(failed[domain]) / float64(total[domain])
		if rate < systemicThreshold {
			continue
		}

		finding := FailureFinding{
			Kind:              FindingSystemicDomain,
			Domain:            domain,
			ConsistentFailure: true,
			Pattern:           PatternUnresolvable,
		}
		if a.panelResolves(ctx, domain) {
			finding.UpstreamShouldResolve = true
			finding.Pattern = PatternConsistentFailure
		}
		findings = append(findings, finding)
	}

	return findings
}

// panelResolves probes every panel member concurrently and reports
// whether a majority succeeded.
func (a *Analyzer) panelResolves(ctx context.Context, domain string) bool {
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)

	for _, server := range a.panel {
		wg.Add(1)
		go func(server string) {
			defer wg.Done()
			res := a.executor.Probe(ctx, server, domain)
			if res.Success {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}(server)
	}
	wg.Wait()

	return successes > len(a.panel)/2
}

func resolverClusters(results []probe.ProbeResult) []FailureFinding {
	var order []string
	failures := make(map[string][]probe.ProbeResult)
	for _, r := range results {
		if r.Success {
			continue
		}
		if _, seen := failures[r.Resolver]; !seen {
			order = append(order, r.Resolver)
		}
		failures[r.Resolver] = append(failures[r.Resolver], r)
	}

	var findings []FailureFinding
	for _, resolver := range order {
		cluster := failures[resolver]
		domains := make([]string, 0, len(cluster))
		counts := make(map[probe.Outcome]int)
		for _, r := range cluster {
			domains = append(domains, r.Domain)
			counts[r.Outcome]++
		}

		findings = append(findings, FailureFinding{
			Kind:     FindingResolver,
			Resolver: resolver,
			Domains:  domains,
			Pattern:  classifyCluster(counts, len(cluster)),
		})
	}

	return findings
}

func classifyCluster(counts map[probe.Outcome]int, total int) Pattern {
	if len(counts) == 1 {
		for code := range counts {
			return Pattern(code)
		}
	}
	if float64(counts[probe.OutcomeDomainNotFound])/float64(total) > dominantShare {
		return PatternMostlyNXDomain
	}
	if float64(counts[probe.OutcomeServerFailure])/float64(total) > dominantShare {
		return PatternMostlyServfail
	}
	return PatternMixedFailures
}
