// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"grimm.is/flowshape/internal/config"
	"grimm.is/flowshape/internal/logging"
)

// commonFlags are shared by serve and replay.
type commonFlags struct {
	configPath string
	logLevel   string
	logJSON    bool
	database   string
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "c", "", "Path to configuration file (.hcl, .json, .yaml)")
	fs.StringVar(&c.logLevel, "log-level", "", "Override log level (debug, info, warn, error)")
	fs.BoolVar(&c.logJSON, "log-json", false, "Log in JSON")
	fs.StringVar(&c.database, "db", "", "Override SQLite database path")
}

// load reads the configuration file, or the defaults when none was given,
// and applies flag overrides.
func (c *commonFlags) load() (*config.Config, error) {
	var cfg *config.Config
	if c.configPath == "" {
		cfg = config.DefaultConfig()
	} else {
		var err error
		if cfg, err = config.LoadFile(c.configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", c.configPath, err)
		}
	}
	if c.logLevel != "" {
		if _, ok := logging.LookupLevel(c.logLevel); !ok {
			return nil, fmt.Errorf("unknown log level %q", c.logLevel)
		}
		cfg.LogLevel = c.logLevel
	}
	if c.logJSON {
		cfg.LogJSON = true
	}
	if c.database != "" {
		cfg.Database = c.database
	}
	return cfg, nil
}

// setupLogging installs the process logger described by cfg.
func setupLogging(cfg *config.Config) *logging.Logger {
	lc := logging.DefaultConfig()
	lc.Level = logging.ParseLevel(cfg.LogLevel)
	lc.JSON = cfg.LogJSON
	logger := logging.New(lc)
	logging.SetDefault(logger)
	return logger
}

// RunServe implements 'flowshape serve': capture, shape and serve the API
// until interrupted.
func RunServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	var common commonFlags
	common.register(fs)
	listen := fs.String("listen", "", "Override API listen address")
	iface := fs.String("i", "", "Capture from this interface")
	pcapFile := fs.String("pcap", "", "Replay this pcap file as the capture source")
	paced := fs.Bool("paced", false, "Pace pcap replay by capture timestamps")
	rateLimit := fs.Bool("rate-limit", false, "Enable per-source rate limiting")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := common.load()
	if err != nil {
		return err
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *iface != "" {
		cfg.Capture.Interface = *iface
	}
	if *pcapFile != "" {
		cfg.Capture.PcapFile = *pcapFile
		cfg.Capture.Paced = cfg.Capture.Paced || *paced
	}
	if *rateLimit {
		cfg.RateLimiting = true
	}
	verr := cfg.Validate()
	if verr.HasErrors() {
		return fmt.Errorf("invalid configuration: %w", verr)
	}

	logger := setupLogging(cfg)
	for _, w := range verr.Warnings() {
		logger.Warn("Configuration warning", "field", w.Field, "message", w.Message)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer rt.Close()

	server, err := rt.newServer()
	if err != nil {
		return err
	}

	logger.Info("flowshape starting",
		"listen", cfg.Listen,
		"database", cfg.Database,
		"interval", cfg.Interval(),
		"rate_limiting", cfg.RateLimiting,
		"analytics", cfg.Analytics.Enabled,
		"policies", rt.rules.Table().Len())
	if err := rt.serve(ctx, server); err != nil {
		return err
	}
	logger.Info("flowshape stopped")
	return nil
}
