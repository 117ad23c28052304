// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package cmd implements the flowshape subcommands.
package cmd

import (
	"context"
	"database/sql"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
	"grimm.is/flowshape/internal/analytics"
	"grimm.is/flowshape/internal/api"
	"grimm.is/flowshape/internal/capture"
	"grimm.is/flowshape/internal/clock"
	"grimm.is/flowshape/internal/config"
	"grimm.is/flowshape/internal/engine"
	"grimm.is/flowshape/internal/errors"
	"grimm.is/flowshape/internal/logging"
	"grimm.is/flowshape/internal/metrics"
	"grimm.is/flowshape/internal/optimizer"
	"grimm.is/flowshape/internal/patterns"
	"grimm.is/flowshape/internal/qos"
	"grimm.is/flowshape/internal/ratelimit"
	"grimm.is/flowshape/internal/state"
)

// pruneEvery is how often idle rate-limiter sources are evicted.
const pruneEvery = time.Minute

// runtime is one assembled pipeline and everything around it.
type runtime struct {
	cfg    *config.Config
	logger *logging.Logger
	clock  clock.Clock

	db        *sql.DB
	rules     *qos.Service
	registry  *prometheus.Registry
	exporter  *metrics.Exporter
	metrics   *metrics.Engine
	limiter   *ratelimit.Limiter
	hub       *engine.Hub
	collector *analytics.Collector
	driver    *engine.Driver
	source    capture.Source
}

// newRuntime opens storage, restores the rule table and wires the cycle
// driver. Callers must Close the result.
func newRuntime(ctx context.Context, cfg *config.Config, logger *logging.Logger, clk clock.Clock) (*runtime, error) {
	if clk == nil {
		clk = clock.Real
	}
	rt := &runtime{cfg: cfg, logger: logger, clock: clk}

	db, err := state.Open(cfg.Database)
	if err != nil {
		return nil, errors.Attr(err, "database", cfg.Database)
	}
	rt.db = db

	store, err := qos.NewSQLiteStore(db)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.rules = qos.NewService(qos.NewTable(clk), store, logger.WithComponent("qos"))
	if err := rt.rules.Load(ctx); err != nil {
		rt.Close()
		return nil, err
	}
	if n := rt.rules.Seed(cfg.SeedPolicies()); n > 0 {
		logger.Info("Seeded QoS policies from configuration", "count", n)
	}

	rt.registry = prometheus.NewRegistry()
	rt.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rt.exporter = metrics.NewExporter()
	if err := rt.exporter.Register(rt.registry); err != nil {
		rt.Close()
		return nil, errors.Wrap(err, errors.KindInternal, "register exporter")
	}
	rt.metrics = metrics.NewEngine(clk, metrics.Options{MaxSamples: cfg.MetricsMaxSamples, Exporter: rt.exporter})

	if cfg.RateLimiting {
		rt.limiter = ratelimit.New(ratelimit.Config{
			Rate:       cfg.DefaultRate,
			Overrides:  cfg.RateOverrides(),
			MaxPending: cfg.MaxPending,
		}, clk)
	}

	if cfg.Analytics.Enabled {
		as, err := analytics.NewStore(db)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.collector = analytics.NewCollector(as, cfg.Analytics.BucketDuration(), clk, logger.WithComponent("analytics"))
	}

	opt := cfg.Optimization
	rt.hub = engine.NewHub(engine.DefaultSubscriberQueue)
	rt.driver = engine.NewDriver(engine.Config{
		Interval: cfg.Interval(),
		MaxBatch: cfg.MaxBatch,
	}, engine.Deps{
		Buffer:   engine.NewBuffer(cfg.IngestCapacity),
		Policies: rt.rules.Table(),
		Metrics:  rt.metrics,
		Limiter:  rt.limiter,
		Estimator: optimizer.NewSizeEstimator(optimizer.Settings{
			HeaderCompression:  opt.HeaderCompression,
			ContentCompression: opt.ContentCompression,
			Caching:            opt.Caching,
		}, nil),
		Analyzer:  patterns.NewAnalyzer(nil),
		Analytics: rt.collector,
		Exporter:  rt.exporter,
		Hub:       rt.hub,
		Clock:     clk,
		Logger:    logger.WithComponent("engine"),
	})

	rt.source = sourceFor(cfg.Capture)
	return rt, nil
}

// sourceFor picks the capture source. A pcap file wins over an interface.
func sourceFor(c *config.CaptureConfig) capture.Source {
	switch {
	case c == nil:
		return nil
	case c.PcapFile != "":
		return &capture.PcapFileSource{Path: c.PcapFile, Paced: c.Paced}
	case c.Interface != "":
		return &capture.LiveSource{Interface: c.Interface, Promiscuous: c.Promiscuous, Snaplen: c.Snaplen}
	}
	return nil
}

// newServer builds the API server over the runtime.
func (rt *runtime) newServer() (*api.Server, error) {
	opts := api.ServerOptions{
		Rules:     rt.rules,
		Metrics:   rt.metrics,
		Snapshots: rt.driver,
		Hub:       rt.hub,
		Gatherer:  rt.registry,
		Logger:    rt.logger.WithComponent("api"),
	}
	// A nil *Store in the interface would look enabled.
	if rt.collector != nil {
		opts.History = rt.collector.Store()
	}
	return api.NewServer(opts)
}

// serve runs every long-lived component until ctx is cancelled or one of
// them fails.
func (rt *runtime) serve(ctx context.Context, server *api.Server) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return rt.driver.Run(gctx)
	})

	if rt.source != nil {
		sup := &capture.Supervisor{Source: rt.source, Logger: rt.logger.WithComponent("capture")}
		g.Go(func() error {
			return sup.Run(gctx, rt.driver.Enqueue)
		})
	} else {
		rt.logger.Warn("No capture source configured; only the API is live")
	}

	if rt.collector != nil {
		a := rt.cfg.Analytics
		g.Go(func() error {
			rt.collector.Run(gctx, a.FlushEvery(), a.RetentionPeriod())
			return nil
		})
	}

	if rt.limiter != nil {
		g.Go(func() error {
			ticker := time.NewTicker(pruneEvery)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					if n := rt.limiter.Prune(ratelimit.DefaultIdleEviction); n > 0 {
						rt.logger.Debug("Evicted idle rate-limit sources", "count", n)
					}
				}
			}
		})
	}

	if server != nil {
		g.Go(func() error {
			return server.ListenAndServe(gctx, rt.cfg.Listen)
		})
	}

	return g.Wait()
}

// Close releases storage. Pending rule writes are flushed first.
func (rt *runtime) Close() {
	if rt.rules != nil {
		rt.rules.Close()
	}
	if rt.hub != nil {
		rt.hub.CloseAll()
	}
	if rt.db != nil {
		if err := rt.db.Close(); err != nil {
			rt.logger.Warn("Failed to close database", "error", err)
		}
	}
}
