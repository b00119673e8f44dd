package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iaserrat/nsbench/internal/analysis"
	"github.com/iaserrat/nsbench/internal/bench"
	"github.com/iaserrat/nsbench/internal/broadcast"
	"github.com/iaserrat/nsbench/internal/config"
	"github.com/iaserrat/nsbench/internal/logging"
	"github.com/iaserrat/nsbench/internal/probe"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "/etc/nsbench/config.toml", "Path to config file")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Close()

	timing := probe.MonotonicTiming{}
	registry := bench.NewRegistry()
	broadcaster := broadcast.New(registry, time.Duration(cfg.Broadcast.SampleIntervalMS)*time.Millisecond)
	defer broadcaster.Close()

	validationTimeout := time.Duration(cfg.Analysis.ValidationTimeoutMS) * time.Millisecond
	analyzer := analysis.NewAnalyzer(
		cfg.Analysis.ValidationResolvers,
		probe.NewDNSResolver(validationTimeout),
		timing,
		validationTimeout,
	)

	opts := bench.Options{
		Timeout:         time.Duration(cfg.Bench.TimeoutMS) * time.Millisecond,
		MaxRetries:      cfg.Bench.MaxRetries,
		MaxConcurrency:  cfg.Bench.MaxConcurrency,
		InterBatchDelay: time.Duration(cfg.Bench.InterBatchDelayMS) * time.Millisecond,
		PreflightPing:   cfg.Bench.PreflightPing,
	}.Clamped()

	coordinator := bench.NewCoordinator(
		registry,
		probe.NewDNSResolver(opts.Timeout),
		timing,
		analyzer,
		logging.NewRunSink(logger),
		broadcaster,
	)

	runID, err := coordinator.StartRun(cfg.Resolvers, cfg.Domains, opts)
	if err != nil {
		return err
	}

	events, unsubscribe := broadcaster.Subscribe(runID, 64)
	defer unsubscribe()

	fmt.Printf("benchmarking %d resolvers x %d domains (run %s)\n",
		len(cfg.Resolvers), len(cfg.Domains), runID)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "cancelling run")
			if err := coordinator.CancelRun(runID); err != nil {
				return err
			}
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			switch ev.Type {
			case broadcast.EventProgress:
				printProgress(ev)
			case broadcast.EventComplete:
				printFinal(ev)
				return nil
			case broadcast.EventError:
				return fmt.Errorf("run %s failed: %s", ev.RunID, ev.Err)
			}
		}
	}
}

func printProgress(ev broadcast.Event) {
	eta := "n/a"
	if ev.ETASeconds >= 0 {
		eta = fmt.Sprintf("%.0fs", ev.ETASeconds)
	}
	fmt.Printf("  %5.1f%%  %d/%d probes  eta %s\n", ev.Progress, ev.Completed, ev.Total, eta)
}

func printFinal(ev broadcast.Event) {
	fmt.Printf("run %s: %s (%d/%d probes)\n", ev.RunID, ev.State, ev.Completed, ev.Total)
	for _, st := range ev.Stats {
		if st.Measured() {
			fmt.Printf("  #%d %-15s  avg %.2fms  min %.2fms  max %.2fms  median %.2fms  success %.1f%%\n",
				st.Rank, st.Resolver, st.AvgMs, st.MinMs, st.MaxMs, st.MedianMs, st.SuccessRate)
		} else {
			fmt.Printf("  #%d %-15s  unmeasured  success 0%%\n", st.Rank, st.Resolver)
		}
	}
}

func newLogger(cfg config.Config) (*logging.Logger, error) {
	hostID, err := os.Hostname()
	if err != nil || hostID == "" {
		hostID = "unknown"
	}
	return logging.New(logging.Config{
		Dir:         cfg.Logging.Dir,
		MaxMB:       cfg.Logging.MaxMB,
		MaxFiles:    cfg.Logging.MaxFiles,
		ToolName:    "nsbench",
		ToolVersion: version,
		HostID:      hostID,
	})
}
