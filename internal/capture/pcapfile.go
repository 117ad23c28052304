// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package capture

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/gopacket/gopacket/pcapgo"
	"grimm.is/flowshape/internal/errors"
)

// PcapFileSource replays a pcap file.
type PcapFileSource struct {
	Path string
	// Paced sleeps between packets to reproduce the original capture timing.
	Paced bool
	// Speed scales pacing; values <= 0 mean real time.
	Speed float64
}

// Name implements Source.
func (s *PcapFileSource) Name() string {
	return "pcap:" + s.Path
}

// Run implements Source.
func (s *PcapFileSource) Run(ctx context.Context, sink Sink) error {
	f, err := os.Open(s.Path)
	if err != nil {
		return errors.Wrapf(err, errors.KindNotFound, "failed to open pcap file %s", s.Path)
	}
	defer f.Close()
	return s.replay(ctx, f, sink)
}

func (s *PcapFileSource) replay(ctx context.Context, r io.Reader, sink Sink) error {
	reader, err := pcapgo.NewReader(r)
	if err != nil {
		return errors.Wrap(err, errors.KindValidation, "invalid pcap header")
	}
	link := reader.LinkType()

	speed := s.Speed
	if speed <= 0 {
		speed = 1
	}

	var prev time.Time
	for {
		if ctx.Err() != nil {
			return nil
		}
		data, ci, err := reader.ReadPacketData()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, errors.KindInternal, "failed to read pcap record")
		}

		if s.Paced && !prev.IsZero() {
			if gap := ci.Timestamp.Sub(prev); gap > 0 {
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(time.Duration(float64(gap) / speed)):
				}
			}
		}
		prev = ci.Timestamp

		sink(decode(data, ci, link))
	}
}
