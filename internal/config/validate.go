// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package config

import (
	"fmt"
	"strings"
	"time"

	"grimm.is/flowshape/internal/logging"
	"grimm.is/flowshape/internal/qos"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field    string
	Message  string
	Severity string // "error" (default), "warning"
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if any entry is not a warning.
func (e ValidationErrors) HasErrors() bool {
	for _, err := range e {
		if err.Severity != "warning" {
			return true
		}
	}
	return false
}

// Warnings returns only the warning entries.
func (e ValidationErrors) Warnings() ValidationErrors {
	var out ValidationErrors
	for _, err := range e {
		if err.Severity == "warning" {
			out = append(out, err)
		}
	}
	return out
}

// Validate checks the configuration. Call ApplyDefaults first.
func (c *Config) Validate() ValidationErrors {
	var errs ValidationErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}
	warn := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...), Severity: "warning"})
	}

	if _, ok := logging.LookupLevel(c.LogLevel); !ok {
		add("log_level", "unknown level %q", c.LogLevel)
	}
	if d, err := time.ParseDuration(c.CycleInterval); err != nil {
		add("cycle_interval", "invalid duration %q", c.CycleInterval)
	} else if d <= 0 {
		add("cycle_interval", "must be positive")
	}
	if c.MaxBatch < 0 {
		add("max_batch", "must be >= 0, got %d", c.MaxBatch)
	}
	if c.IngestCapacity < 0 {
		add("ingest_capacity", "must be >= 0, got %d", c.IngestCapacity)
	}
	if c.MaxBatch > c.IngestCapacity {
		warn("max_batch", "exceeds ingest_capacity (%d > %d)", c.MaxBatch, c.IngestCapacity)
	}
	if c.MetricsMaxSamples < 0 {
		add("metrics_max_samples", "must be >= 0, got %d", c.MetricsMaxSamples)
	}
	if c.DefaultRate <= 0 {
		add("default_rate", "must be positive")
	}
	if c.MaxPending < 0 {
		add("max_pending", "must be >= 0, got %d", c.MaxPending)
	}

	if c.Capture != nil {
		if c.Capture.Snaplen < 0 {
			add("capture.snaplen", "must be >= 0, got %d", c.Capture.Snaplen)
		}
		if c.Capture.PcapFile != "" && c.Capture.Interface != "" {
			warn("capture", "both pcap_file and interface set; pcap_file is used")
		}
	}

	if a := c.Analytics; a != nil {
		for field, v := range map[string]string{
			"analytics.bucket":         a.Bucket,
			"analytics.flush_interval": a.FlushInterval,
			"analytics.retention":      a.Retention,
		} {
			if d, err := time.ParseDuration(v); err != nil || d <= 0 {
				add(field, "invalid duration %q", v)
			}
		}
		if a.Enabled && c.Database == "" {
			add("analytics.enabled", "requires database")
		}
	}

	seen := make(map[string]bool)
	for i, p := range c.Policies {
		field := fmt.Sprintf("qos_policy[%d]", i)
		if err := qos.Validate(p.Protocol, p.Priority, p.BandwidthLimit); err != nil {
			add(field, "%v", err)
			continue
		}
		if seen[p.Protocol] {
			add(field, "duplicate policy for %q", p.Protocol)
		}
		seen[p.Protocol] = true
	}

	sources := make(map[string]bool)
	for i, r := range c.Rates {
		field := fmt.Sprintf("rate[%d]", i)
		if r.Source == "" {
			add(field, "source is required")
		}
		if r.PacketsPerSecond <= 0 {
			add(field, "packets_per_second must be positive")
		}
		if sources[r.Source] {
			add(field, "duplicate rate for %q", r.Source)
		}
		sources[r.Source] = true
	}

	return errs
}
