// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package capture produces packet records from a live interface or a pcap
// file and feeds them to a sink. Capture failures restart the source after a
// backoff; they never stop the process.
package capture

import (
	"context"
	"time"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"grimm.is/flowshape/internal/logging"
	"grimm.is/flowshape/internal/packet"
)

// Sink receives every decoded record. It must not block.
type Sink func(packet.Record)

// Source produces records until ctx is done or an error occurs. A nil error
// means the source is exhausted.
type Source interface {
	Name() string
	Run(ctx context.Context, sink Sink) error
}

// packetReader is the subset of pcapgo readers and handles the sources use.
type packetReader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
}

func decode(data []byte, ci gopacket.CaptureInfo, link layers.LinkType) packet.Record {
	pkt := gopacket.NewPacket(data, link, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
	md := pkt.Metadata()
	md.CaptureInfo = ci
	return packet.FromGopacket(pkt)
}

// Backoff bounds for Supervise.
const (
	DefaultMinBackoff = time.Second
	DefaultMaxBackoff = 30 * time.Second
)

// Supervisor restarts a source after failures, doubling the delay up to a
// ceiling. A source that ran cleanly for longer than MaxBackoff resets the
// delay.
type Supervisor struct {
	Source     Source
	Logger     *logging.Logger
	MinBackoff time.Duration
	MaxBackoff time.Duration
	// Restart also restarts sources that finished without error.
	Restart bool
}

// Run drives the source until ctx is done. It returns nil on cancellation, or
// when the source finishes cleanly and Restart is false.
func (s *Supervisor) Run(ctx context.Context, sink Sink) error {
	logger := s.Logger
	if logger == nil {
		logger = logging.WithComponent("capture")
	}
	minB, maxB := s.MinBackoff, s.MaxBackoff
	if minB <= 0 {
		minB = DefaultMinBackoff
	}
	if maxB < minB {
		maxB = max(DefaultMaxBackoff, minB)
	}

	backoff := minB
	for {
		started := time.Now()
		logger.Info("Capture source starting", "source", s.Source.Name())
		err := s.Source.Run(ctx, sink)

		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			logger.Info("Capture source finished", "source", s.Source.Name())
			if !s.Restart {
				return nil
			}
		} else {
			logger.Error("Capture source failed", "source", s.Source.Name(), "error", err, "retry_in", backoff)
		}

		if time.Since(started) > maxB {
			backoff = minB
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxB)
	}
}
