// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package packet defines the immutable packet records consumed by the shaping
// pipeline and the per-batch annotations attached to them.
package packet

import (
	"strings"
	"time"
)

// TCPInfo is the TCP-specific detail of a record.
type TCPInfo struct {
	SrcPort uint16 `json:"sport"`
	DstPort uint16 `json:"dport"`
	Flags   uint8  `json:"flags"`
	Window  uint16 `json:"window"`
}

// UDPInfo is the UDP-specific detail of a record.
type UDPInfo struct {
	SrcPort uint16 `json:"sport"`
	DstPort uint16 `json:"dport"`
	Length  uint16 `json:"len"`
}

// TCP flag bits as carried in TCPInfo.Flags.
const (
	FlagFIN uint8 = 1 << iota
	FlagSYN
	FlagRST
	FlagPSH
	FlagACK
	FlagURG
	FlagECE
	FlagCWR
)

// Record is one observed packet. Records are treated as immutable once built.
// Protocols lists layer names outermost first, e.g. Ethernet, IPv4, TCP.
type Record struct {
	Source      string    `json:"src"`
	Destination string    `json:"dst"`
	Protocols   []string  `json:"protocols"`
	Length      int       `json:"length"`
	Timestamp   time.Time `json:"timestamp"`
	Summary     string    `json:"summary,omitempty"`
	TCP         *TCPInfo  `json:"tcp_info,omitempty"`
	UDP         *UDPInfo  `json:"udp_info,omitempty"`
}

// Valid reports whether the record can take part in deduplication and shaping.
func (r Record) Valid() bool {
	return r.Source != "" && r.Destination != "" && len(r.Protocols) > 0 && r.Length >= 0
}

// Depth is the number of protocol layers.
func (r Record) Depth() int {
	return len(r.Protocols)
}

// HasProtocol reports whether name appears in the stack (case-sensitive).
func (r Record) HasProtocol(name string) bool {
	for _, p := range r.Protocols {
		if p == name {
			return true
		}
	}
	return false
}

// Key is the structural identity used for deduplication.
type Key struct {
	Source      string
	Destination string
	Stack       string
}

// stackSep cannot appear in a layer name.
const stackSep = "\x1f"

// Key returns the dedup key and whether the record has one.
func (r Record) Key() (Key, bool) {
	if !r.Valid() {
		return Key{}, false
	}
	return Key{
		Source:      r.Source,
		Destination: r.Destination,
		Stack:       strings.Join(r.Protocols, stackSep),
	}, true
}

// Shaped is a Record plus the annotations computed for one batch. Shaped
// values are never persisted.
type Shaped struct {
	Record
	Priority        int  `json:"priority"`
	Throttled       bool `json:"throttled"`
	ClusterID       *int `json:"cluster_id,omitempty"`
	OptimizedLength *int `json:"optimized_length,omitempty"`
}

// NewShaped wraps r with zero annotations.
func NewShaped(r Record) Shaped {
	return Shaped{Record: r}
}

// SetCluster attaches a cluster id.
func (s *Shaped) SetCluster(id int) {
	s.ClusterID = &id
}

// SetOptimizedLength attaches a size-optimization estimate.
func (s *Shaped) SetOptimizedLength(n int) {
	s.OptimizedLength = &n
}
