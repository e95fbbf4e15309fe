// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package xproxy

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/bureau-foundation/xreparent/lib/xwire"
)

// Tracer receives every message header a Loop decodes. xtrace.Recorder
// implements it.
type Tracer interface {
	Record(connection uint64, message xwire.Message, payload []byte)
}

// proxyConnection serves one accepted client: it connects to the
// upstream display, relays the setup exchange, and forwards the
// stream until either side closes. client and the upstream connection
// are closed when it returns, and as soon as ctx is cancelled.
func (s *Supervisor) proxyConnection(ctx context.Context, id uint64, client net.Conn) error {
	logger := s.logger().With("connection_id", id)

	server, err := s.Upstream.Dial(ctx)
	if err != nil {
		client.Close()
		return fmt.Errorf("connecting to upstream display %s: %w", s.Upstream, err)
	}
	closeBoth := func() {
		client.Close()
		server.Close()
	}
	stop := context.AfterFunc(ctx, closeBoth)
	defer stop()
	defer closeBoth()

	setup, err := Negotiate(client, server)
	if err != nil {
		return err
	}
	logger.Debug("connection setup complete",
		"vendor", setup.Vendor,
		"release", setup.Release,
		"root", fmt.Sprintf("%#x", setup.Root()),
		"screens", len(setup.Roots),
	)

	loop := &Loop{
		Codec: &xwire.Codec{
			Order:  setup.Order,
			Roots:  setup.Roots,
			Target: s.Target,
		},
		BufferSize: s.BufferSize,
		IOTimeout:  s.IOTimeout,
		Logger:     logger,
	}
	if s.Tracer != nil {
		loop.Trace = func(message xwire.Message, payload []byte) {
			s.Tracer.Record(id, message, payload)
		}
	}
	err = loop.Run(client, server)

	stats := loop.Stats()
	logger.Debug("connection closed",
		"client_bytes", stats.ClientBytes,
		"server_bytes", stats.ServerBytes,
		"requests", stats.Requests,
		"rewrites", stats.Rewrites,
		"anomalies", stats.Anomalies,
	)
	if errors.Is(err, ErrIdleTimeout) {
		logger.Info("closed idle connection", "io_timeout", s.IOTimeout, "reason", err)
		return nil
	}
	return err
}
