// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package cmd

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"grimm.is/flowshape/internal/capture"
	"grimm.is/flowshape/internal/clock"
	"grimm.is/flowshape/internal/config"
	"grimm.is/flowshape/internal/logging"
	"grimm.is/flowshape/internal/metrics"
	"grimm.is/flowshape/internal/packet"
)

// ReplaySummary is the last line replay prints.
type ReplaySummary struct {
	Cycles               int                `json:"cycles"`
	Packets              int                `json:"packets"`
	Statistics           metrics.Statistics `json:"statistics"`
	BandwidthUtilization map[string]float64 `json:"bandwidth_utilization"`
	LatencyMetrics       *metrics.Latency   `json:"latency_metrics,omitempty"`
}

// RunReplay implements 'flowshape replay <file.pcap>': push a capture through
// the pipeline offline, one cycle per max_batch packets, and print each
// snapshot as a JSON line. Time follows the capture timestamps.
func RunReplay(args []string) error {
	fs := flag.NewFlagSet("replay", flag.ExitOnError)
	var common commonFlags
	common.register(fs)
	out := fs.String("o", "-", "Write snapshots here (- for stdout)")
	summaryOnly := fs.Bool("summary", false, "Print only the final summary")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: flowshape replay [flags] <file.pcap>")
	}
	if common.database == "" {
		// History from a replay is rarely wanted.
		common.database = ":memory:"
	}

	cfg, err := common.load()
	if err != nil {
		return err
	}
	logger := setupLogging(cfg)

	w := io.Writer(os.Stdout)
	if *out != "-" {
		f, err := os.Create(*out)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", *out, err)
		}
		defer f.Close()
		w = f
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := replay(ctx, cfg, logger, fs.Arg(0), w, !*summaryOnly)
	if err != nil {
		return err
	}
	return json.NewEncoder(w).Encode(summary)
}

// replay drives the pipeline from a pcap file. Snapshots are written to w
// when emit is set.
func replay(ctx context.Context, cfg *config.Config, logger *logging.Logger, path string, w io.Writer, emit bool) (*ReplaySummary, error) {
	clk := clock.NewMockClock(clock.Now())
	rt, err := newRuntime(ctx, cfg, logger, clk)
	if err != nil {
		return nil, err
	}
	defer rt.Close()

	enc := json.NewEncoder(w)
	summary := &ReplaySummary{}
	var writeErr error
	cycle := func() {
		snap, _ := rt.driver.RunCycle(ctx)
		summary.Cycles++
		if emit && writeErr == nil {
			writeErr = enc.Encode(snap)
		}
	}

	buf := rt.driver.Buffer()
	sink := func(r packet.Record) {
		if !r.Timestamp.IsZero() {
			clk.Set(r.Timestamp)
		}
		summary.Packets++
		rt.driver.Enqueue(r)
		if buf.Len() >= cfg.MaxBatch {
			cycle()
		}
	}

	src := &capture.PcapFileSource{Path: path}
	if err := src.Run(ctx, sink); err != nil {
		return nil, err
	}
	// Drain the tail, and give deferred packets a chance once time moves on.
	for buf.Len() > 0 || (rt.limiter != nil && rt.limiter.PendingTotal() > 0 && summary.Cycles < maxTailCycles(summary.Packets)) {
		clk.Advance(cfg.Interval())
		cycle()
	}
	if writeErr != nil {
		return nil, fmt.Errorf("failed to write snapshot: %w", writeErr)
	}
	if rt.collector != nil {
		if err := rt.collector.Flush(ctx); err != nil {
			logger.Warn("Analytics flush failed", "error", err)
		}
	}

	summary.Statistics = rt.metrics.Statistics()
	summary.BandwidthUtilization = rt.metrics.BandwidthUtilization()
	summary.LatencyMetrics = rt.metrics.LatencyMetrics()
	logger.Info("Replay complete", "file", path, "packets", summary.Packets, "cycles", summary.Cycles)
	return summary, nil
}

// maxTailCycles bounds the cycles spent flushing rate-limited backlog.
func maxTailCycles(packets int) int {
	return packets + 16
}
