// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build linux

package capture

import (
	"context"
	"sync"

	"github.com/gopacket/gopacket/layers"
	"github.com/gopacket/gopacket/pcapgo"
	"grimm.is/flowshape/internal/errors"
)

// LiveSource reads an interface through an AF_PACKET socket.
type LiveSource struct {
	Interface   string
	Promiscuous bool
	Snaplen     int
}

// Name implements Source.
func (s *LiveSource) Name() string {
	return "live:" + s.Interface
}

// Run implements Source.
func (s *LiveSource) Run(ctx context.Context, sink Sink) error {
	handle, err := pcapgo.NewEthernetHandle(s.Interface)
	if err != nil {
		return errors.Wrapf(err, errors.KindUnavailable, "failed to open interface %s", s.Interface)
	}

	var closeOnce sync.Once
	closeHandle := func() { closeOnce.Do(func() { _ = handle.Close() }) }
	defer closeHandle()

	if s.Promiscuous {
		if err := handle.SetPromiscuous(true); err != nil {
			return errors.Wrapf(err, errors.KindUnavailable, "failed to enable promiscuous mode on %s", s.Interface)
		}
	}
	if s.Snaplen > 0 {
		if err := handle.SetCaptureLength(s.Snaplen); err != nil {
			return errors.Wrap(err, errors.KindValidation, "invalid snaplen")
		}
	}

	// Closing the handle makes the pending read fail.
	stop := context.AfterFunc(ctx, closeHandle)
	defer stop()

	return readLoop(ctx, handle, layers.LinkTypeEthernet, sink)
}

func readLoop(ctx context.Context, r packetReader, link layers.LinkType, sink Sink) error {
	for {
		data, ci, err := r.ReadPacketData()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, errors.KindUnavailable, "capture read failed")
		}
		sink(decode(data, ci, link))
	}
}
