// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package config loads the flowshape configuration from HCL, JSON or YAML.
package config

import (
	"time"

	"grimm.is/flowshape/internal/qos"
)

// Defaults applied to fields left unset.
const (
	DefaultListen         = ":8000"
	DefaultLogLevel       = "info"
	DefaultDatabase       = "flowshape.db"
	DefaultCycleInterval  = "2s"
	DefaultMaxBatch       = 100
	DefaultIngestCapacity = 10000
	DefaultRate           = 10.0
	DefaultMaxPending     = 1000
	DefaultSnaplen        = 65536
	DefaultBucket         = "1m"
	DefaultFlushInterval  = "30s"
	DefaultRetention      = "168h"
)

// Config is the top-level configuration.
type Config struct {
	Listen   string `hcl:"listen,optional" json:"listen,omitempty" yaml:"listen,omitempty"`
	LogLevel string `hcl:"log_level,optional" json:"log_level,omitempty" yaml:"log_level,omitempty"`
	LogJSON  bool   `hcl:"log_json,optional" json:"log_json,omitempty" yaml:"log_json,omitempty"`

	// Database is the SQLite path; ":memory:" keeps everything in process.
	Database string `hcl:"database,optional" json:"database,omitempty" yaml:"database,omitempty"`

	CycleInterval     string  `hcl:"cycle_interval,optional" json:"cycle_interval,omitempty" yaml:"cycle_interval,omitempty"`
	MaxBatch          int     `hcl:"max_batch,optional" json:"max_batch,omitempty" yaml:"max_batch,omitempty"`
	IngestCapacity    int     `hcl:"ingest_capacity,optional" json:"ingest_capacity,omitempty" yaml:"ingest_capacity,omitempty"`
	MetricsMaxSamples int     `hcl:"metrics_max_samples,optional" json:"metrics_max_samples,omitempty" yaml:"metrics_max_samples,omitempty"`
	RateLimiting      bool    `hcl:"rate_limiting,optional" json:"rate_limiting,omitempty" yaml:"rate_limiting,omitempty"`
	DefaultRate       float64 `hcl:"default_rate,optional" json:"default_rate,omitempty" yaml:"default_rate,omitempty"`
	MaxPending        int     `hcl:"max_pending,optional" json:"max_pending,omitempty" yaml:"max_pending,omitempty"`

	Capture      *CaptureConfig      `hcl:"capture,block" json:"capture,omitempty" yaml:"capture,omitempty"`
	Optimization *OptimizationConfig `hcl:"optimization,block" json:"optimization,omitempty" yaml:"optimization,omitempty"`
	Analytics    *AnalyticsConfig    `hcl:"analytics,block" json:"analytics,omitempty" yaml:"analytics,omitempty"`

	Policies []PolicyConfig `hcl:"qos_policy,block" json:"qos_policies,omitempty" yaml:"qos_policies,omitempty"`
	Rates    []RateConfig   `hcl:"rate,block" json:"rates,omitempty" yaml:"rates,omitempty"`
}

// CaptureConfig selects the packet source. PcapFile wins over Interface.
type CaptureConfig struct {
	Interface   string `hcl:"interface,optional" json:"interface,omitempty" yaml:"interface,omitempty"`
	PcapFile    string `hcl:"pcap_file,optional" json:"pcap_file,omitempty" yaml:"pcap_file,omitempty"`
	Paced       bool   `hcl:"paced,optional" json:"paced,omitempty" yaml:"paced,omitempty"`
	Promiscuous bool   `hcl:"promiscuous,optional" json:"promiscuous,omitempty" yaml:"promiscuous,omitempty"`
	Snaplen     int    `hcl:"snaplen,optional" json:"snaplen,omitempty" yaml:"snaplen,omitempty"`
}

// OptimizationConfig toggles the optimized-size estimate.
type OptimizationConfig struct {
	HeaderCompression  bool `hcl:"header_compression,optional" json:"header_compression,omitempty" yaml:"header_compression,omitempty"`
	ContentCompression bool `hcl:"content_compression,optional" json:"content_compression,omitempty" yaml:"content_compression,omitempty"`
	Caching            bool `hcl:"caching,optional" json:"caching,omitempty" yaml:"caching,omitempty"`
}

// AnalyticsConfig controls the SQLite traffic history.
type AnalyticsConfig struct {
	Enabled       bool   `hcl:"enabled,optional" json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Bucket        string `hcl:"bucket,optional" json:"bucket,omitempty" yaml:"bucket,omitempty"`
	FlushInterval string `hcl:"flush_interval,optional" json:"flush_interval,omitempty" yaml:"flush_interval,omitempty"`
	Retention     string `hcl:"retention,optional" json:"retention,omitempty" yaml:"retention,omitempty"`
}

// PolicyConfig seeds a QoS policy for protocols that have none stored.
type PolicyConfig struct {
	Protocol       string `hcl:"protocol,label" json:"protocol" yaml:"protocol"`
	Priority       int    `hcl:"priority,optional" json:"priority,omitempty" yaml:"priority,omitempty"`
	BandwidthLimit *int64 `hcl:"bandwidth_limit,optional" json:"bandwidth_limit,omitempty" yaml:"bandwidth_limit,omitempty"`
}

// RateConfig overrides the packet rate of one source address.
type RateConfig struct {
	Source           string  `hcl:"source,label" json:"source" yaml:"source"`
	PacketsPerSecond float64 `hcl:"packets_per_second" json:"packets_per_second" yaml:"packets_per_second"`
}

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *Config {
	c := &Config{}
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.Database == "" {
		c.Database = DefaultDatabase
	}
	if c.CycleInterval == "" {
		c.CycleInterval = DefaultCycleInterval
	}
	if c.MaxBatch == 0 {
		c.MaxBatch = DefaultMaxBatch
	}
	if c.IngestCapacity == 0 {
		c.IngestCapacity = DefaultIngestCapacity
	}
	if c.DefaultRate == 0 {
		c.DefaultRate = DefaultRate
	}
	if c.MaxPending == 0 {
		c.MaxPending = DefaultMaxPending
	}
	if c.Capture == nil {
		c.Capture = &CaptureConfig{}
	}
	if c.Capture.Snaplen == 0 {
		c.Capture.Snaplen = DefaultSnaplen
	}
	if c.Optimization == nil {
		c.Optimization = &OptimizationConfig{}
	}
	if c.Analytics == nil {
		c.Analytics = &AnalyticsConfig{}
	}
	if c.Analytics.Bucket == "" {
		c.Analytics.Bucket = DefaultBucket
	}
	if c.Analytics.FlushInterval == "" {
		c.Analytics.FlushInterval = DefaultFlushInterval
	}
	if c.Analytics.Retention == "" {
		c.Analytics.Retention = DefaultRetention
	}
}

// Interval returns the parsed cycle interval. Call Validate first.
func (c *Config) Interval() time.Duration {
	return mustDuration(c.CycleInterval, DefaultCycleInterval)
}

// BucketDuration returns the analytics bucket width.
func (a *AnalyticsConfig) BucketDuration() time.Duration {
	return mustDuration(a.Bucket, DefaultBucket)
}

// FlushEvery returns the analytics flush interval.
func (a *AnalyticsConfig) FlushEvery() time.Duration {
	return mustDuration(a.FlushInterval, DefaultFlushInterval)
}

// RetentionPeriod returns how long analytics buckets are kept.
func (a *AnalyticsConfig) RetentionPeriod() time.Duration {
	return mustDuration(a.Retention, DefaultRetention)
}

// SeedPolicies converts the configured policies.
func (c *Config) SeedPolicies() []qos.Policy {
	out := make([]qos.Policy, 0, len(c.Policies))
	for _, p := range c.Policies {
		out = append(out, qos.Policy{Protocol: p.Protocol, Priority: p.Priority, BandwidthLimit: p.BandwidthLimit})
	}
	return out
}

// RateOverrides returns the per-source rates keyed by address.
func (c *Config) RateOverrides() map[string]float64 {
	if len(c.Rates) == 0 {
		return nil
	}
	out := make(map[string]float64, len(c.Rates))
	for _, r := range c.Rates {
		out[r.Source] = r.PacketsPerSecond
	}
	return out
}

func mustDuration(s, fallback string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}
