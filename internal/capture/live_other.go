// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build !linux

package capture

import (
	"context"

	"grimm.is/flowshape/internal/errors"
)

// LiveSource reads an interface. Live capture is only supported on Linux.
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
	return errors.New(errors.KindUnavailable, "live capture requires linux")
}
