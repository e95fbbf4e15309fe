// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package xproxy

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/bureau-foundation/xreparent/lib/netutil"
	"github.com/bureau-foundation/xreparent/lib/xwire"
)

// DefaultBufferSize is the read buffer of each direction when
// Loop.BufferSize is zero.
const DefaultBufferSize = 64 << 10

// ErrIdleTimeout ends a Loop whose connection saw no traffic in one
// direction for Loop.IOTimeout.
var ErrIdleTimeout = errors.New("connection idle timeout")

// minBufferSize leaves room to read past the longest held-back header.
const minBufferSize = 2 * xwire.MaxHeldBack

// Loop forwards the protocol stream of one connection after setup.
// Client requests pass through the codec, which rewrites root-parented
// CreateWindow requests. Server messages are decoded for diagnostics
// only and forwarded unchanged.
type Loop struct {
	// Codec carries the connection's byte order, root windows and
	// rewrite target, as learned from Negotiate.
	Codec *xwire.Codec

	// BufferSize is the read buffer size per direction.
	// DefaultBufferSize when zero.
	BufferSize int

	// Trace, if set, is called for every message header found in
	// either direction, after any rewrite. payload starts at the
	// message and holds whatever part of it the current read has. It
	// is called from both direction goroutines concurrently.
	Trace func(message xwire.Message, payload []byte)

	// IOTimeout, if positive, bounds every read and write. A
	// connection idle for longer is closed.
	IOTimeout time.Duration

	Logger *slog.Logger

	stats loopCounters
}

// Stats counts what a Loop forwarded.
type Stats struct {
	ClientBytes int64
	ServerBytes int64
	Requests    int64
	Replies     int64
	Rewrites    int64
	Anomalies   int64
}

type loopCounters struct {
	clientBytes atomic.Int64
	serverBytes atomic.Int64
	requests    atomic.Int64
	replies     atomic.Int64
	rewrites    atomic.Int64
	anomalies   atomic.Int64
}

// Stats returns the counters so far. It is safe to call while Run is
// in progress.
func (l *Loop) Stats() Stats {
	return Stats{
		ClientBytes: l.stats.clientBytes.Load(),
		ServerBytes: l.stats.serverBytes.Load(),
		Requests:    l.stats.requests.Load(),
		Replies:     l.stats.replies.Load(),
		Rewrites:    l.stats.rewrites.Load(),
		Anomalies:   l.stats.anomalies.Load(),
	}
}

// Run forwards in both directions until either side closes or fails.
// Both connections are closed when Run returns. A peer closing its end
// is a normal return with a nil error.
func (l *Loop) Run(client, server net.Conn) error {
	if l.Codec == nil {
		client.Close()
		server.Close()
		return errors.New("xproxy: Loop has no codec")
	}
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	size := l.BufferSize
	if size == 0 {
		size = DefaultBufferSize
	}
	size = max(size, minBufferSize)

	requests := &pump{
		loop:      l,
		direction: xwire.ClientToServer,
		source:    client,
		sink:      server,
		framer:    xwire.NewFramer(xwire.ClientToServer, l.Codec),
		buf:       make([]byte, size),
		bytes:     &l.stats.clientBytes,
		messages:  &l.stats.requests,
		logger:    logger,
	}
	replies := &pump{
		loop:      l,
		direction: xwire.ServerToClient,
		source:    server,
		sink:      client,
		framer:    xwire.NewFramer(xwire.ServerToClient, l.Codec),
		buf:       make([]byte, size),
		bytes:     &l.stats.serverBytes,
		messages:  &l.stats.replies,
		logger:    logger,
	}
	return netutil.Bridge(client, server, requests.run, replies.run)
}

// pump moves one direction's bytes. The first held bytes of buf are
// the incomplete header left by the previous read.
type pump struct {
	loop      *Loop
	direction xwire.Direction
	source    net.Conn
	sink      net.Conn
	framer    *xwire.Framer
	buf       []byte
	held      int
	pending   PendingTransfer
	bytes     *atomic.Int64
	messages  *atomic.Int64
	logger    *slog.Logger
}

// run forwards until the source or sink fails. A panic in the framer
// or the trace hook ends the direction with a *panicError.
func (p *pump) run() (err error) {
	defer recoverPanic(&err)
	for {
		if p.loop.IOTimeout > 0 {
			p.source.SetReadDeadline(time.Now().Add(p.loop.IOTimeout))
		}
		count, readErr := p.source.Read(p.buf[p.held:])
		if count > 0 {
			data := p.buf[:p.held+count]
			forward := p.framer.Frame(data, func(message xwire.Message) {
				p.observe(message, data[message.Offset:])
			})
			if err := p.send(data[:forward]); err != nil {
				return err
			}
			p.held = copy(p.buf, data[forward:])
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) && p.held > 0 {
				// The peer closed inside a header; pass the fragment on
				// as received.
				if err := p.send(p.buf[:p.held]); err != nil {
					return err
				}
				p.held = 0
			}
			if netutil.IsTimeout(readErr) {
				return fmt.Errorf("%s read: %w", p.direction, ErrIdleTimeout)
			}
			return fmt.Errorf("%s read: %w", p.direction, readErr)
		}
	}
}

func (p *pump) send(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if p.loop.IOTimeout > 0 {
		p.sink.SetWriteDeadline(time.Now().Add(p.loop.IOTimeout))
	}
	p.pending.Load(data)
	written, err := p.pending.Drain(p.sink)
	p.bytes.Add(int64(written))
	if netutil.IsTimeout(err) {
		return fmt.Errorf("%s write: %w", p.direction, ErrIdleTimeout)
	}
	if err != nil {
		return fmt.Errorf("%s write: %w", p.direction, err)
	}
	return nil
}

func (p *pump) observe(message xwire.Message, payload []byte) {
	p.messages.Add(1)
	if message.Request.Rewritten {
		p.loop.stats.rewrites.Add(1)
		p.logger.Debug("rewrote CreateWindow parent",
			"parent", fmt.Sprintf("%#x", message.Request.Parent),
			"target", fmt.Sprintf("%#x", p.loop.Codec.Target),
		)
	}
	if message.Anomaly != nil {
		p.loop.stats.anomalies.Add(1)
		p.logger.Debug("protocol anomaly",
			"direction", p.direction.String(),
			"message", message.Name(),
			"error", message.Anomaly,
		)
	}
	if p.loop.Trace != nil {
		p.loop.Trace(message, payload)
	}
}
