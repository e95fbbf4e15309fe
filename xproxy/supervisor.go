// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package xproxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jpillora/backoff"

	"github.com/bureau-foundation/xreparent/lib/clock"
	"github.com/bureau-foundation/xreparent/lib/display"
)

// ErrHandlerPanicked is wrapped by Serve's error when a connection
// handler panicked.
var ErrHandlerPanicked = errors.New("connection handler panicked")

// panicError is a panic recovered on one of a connection's goroutines.
type panicError struct {
	value any
	stack []byte
}

func (p *panicError) Error() string {
	return fmt.Sprintf("panic: %v\n%s", p.value, p.stack)
}

// recoverPanic stores a recovered panic in *err. It must be deferred
// directly.
func recoverPanic(err *error) {
	if recovered := recover(); recovered != nil {
		*err = &panicError{value: recovered, stack: debug.Stack()}
	}
}

// Accept failures other than the listener being closed, such as
// running out of file descriptors, are retried with exponential
// backoff between these bounds.
const (
	acceptRetryMin = 10 * time.Millisecond
	acceptRetryMax = time.Second
)

// Supervisor owns the synthetic display socket. It accepts clients,
// runs each connection in its own goroutine, and stops once the
// workload has exited and every connection it served has closed.
//
// Set the exported fields before calling Listen.
type Supervisor struct {
	// Upstream is the real display every client is relayed to.
	Upstream display.Address

	// Target replaces root windows as CreateWindow parent.
	Target uint32

	// Tracer, if set, records every forwarded message.
	Tracer Tracer

	// BufferSize and IOTimeout configure each connection's Loop.
	BufferSize int
	IOTimeout  time.Duration

	// OrphanTimeout, if positive, stops the supervisor when the
	// workload has exited and no client connects within this long.
	// Zero waits for a first client forever.
	OrphanTimeout time.Duration

	// Clock defaults to the real clock.
	Clock clock.Clock

	Logger *slog.Logger

	// handle serves one connection. Tests replace it.
	handle func(ctx context.Context, id uint64, client net.Conn) error

	initOnce     sync.Once
	shutdown     chan struct{}
	shutdownOnce sync.Once

	listener   *net.UnixListener
	socketPath string
	closeOnce  sync.Once

	active atomic.Int64
	served atomic.Uint64
}

func (s *Supervisor) init() {
	s.initOnce.Do(func() {
		s.shutdown = make(chan struct{})
		if s.handle == nil {
			s.handle = s.proxyConnection
		}
	})
}

func (s *Supervisor) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s *Supervisor) clock() clock.Clock {
	if s.Clock == nil {
		return clock.Real()
	}
	return s.Clock
}

// Listen creates the socket for address and starts listening on it.
// The socket directory is created if missing. An existing file at the
// socket path is removed only if it is a socket.
func (s *Supervisor) Listen(address display.Address) error {
	s.init()
	if s.listener != nil {
		return errors.New("xproxy: Listen called twice")
	}

	directory := filepath.Dir(address.Path)
	if _, err := os.Stat(directory); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(directory, 0o755); err != nil {
			return fmt.Errorf("creating socket directory: %w", err)
		}
	}

	if info, err := os.Lstat(address.Path); err == nil {
		if info.Mode().Type() != os.ModeSocket {
			return fmt.Errorf("%s exists and is not a socket", address.Path)
		}
		if err := os.Remove(address.Path); err != nil {
			return fmt.Errorf("removing stale socket %s: %w", address.Path, err)
		}
		s.logger().Debug("removed stale socket", "path", address.Path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("checking socket path: %w", err)
	}

	listener, err := net.ListenUnix("unix", &net.UnixAddr{Name: address.Path, Net: "unix"})
	if err != nil {
		return fmt.Errorf("listening on %s: %w", address.Path, err)
	}
	s.listener = listener
	s.socketPath = address.Path
	s.logger().Info("listening", "display", address.String(), "path", address.Path)
	return nil
}

// WorkloadExited records that the supervised workload has finished.
// Serve stops once no connections remain, provided it has served at
// least one. It is safe to call from any goroutine, more than once,
// and before Serve.
func (s *Supervisor) WorkloadExited() {
	s.init()
	s.shutdownOnce.Do(func() { close(s.shutdown) })
}

// Active returns the number of connections currently being served.
func (s *Supervisor) Active() int64 {
	return s.active.Load()
}

// Served returns the number of connections accepted so far.
func (s *Supervisor) Served() uint64 {
	return s.served.Load()
}

type completion struct {
	id       uint64
	err      error
	panicked bool
}

// Serve accepts and serves connections until the supervisor shuts
// down, then waits for every connection to finish.
//
// Shutdown happens when the workload has exited and the last
// connection closes, when OrphanTimeout expires, or when ctx is
// cancelled. Cancelling ctx also closes every active connection.
//
// Connection failures are logged. Serve returns an error only when a
// connection handler panicked.
func (s *Supervisor) Serve(ctx context.Context) error {
	s.init()
	if s.listener == nil {
		return errors.New("xproxy: Serve called before Listen")
	}
	logger := s.logger()

	accepted := make(chan net.Conn)
	go s.acceptLoop(accepted)

	completions := make(chan completion)
	shutdown := s.shutdown
	done := ctx.Done()
	var (
		active       int64
		counted      bool
		shuttingDown bool
		orphan       <-chan time.Time
		panics       []error
		nextID       uint64
	)
	listening := true
	stopListening := func(reason string) {
		if listening {
			listening = false
			orphan = nil
			logger.Info("closing listener", "reason", reason, "active", active)
			s.closeListener()
		}
	}

	for accepted != nil || active > 0 {
		select {
		case conn, ok := <-accepted:
			if !ok {
				accepted = nil
				listening = false
				continue
			}
			if !listening {
				conn.Close()
				continue
			}
			nextID++
			active++
			s.active.Store(active)
			s.served.Add(1)
			counted = true
			orphan = nil
			logger.Debug("client connected", "connection_id", nextID, "active", active)
			go s.run(ctx, nextID, conn, completions)

		case result := <-completions:
			active--
			s.active.Store(active)
			switch {
			case result.panicked:
				logger.Error("connection handler panicked", "connection_id", result.id, "error", result.err)
				panics = append(panics, result.err)
			case result.err != nil:
				logger.Warn("connection ended with error", "connection_id", result.id, "error", result.err)
			default:
				logger.Debug("connection finished", "connection_id", result.id, "active", active)
			}
			if shuttingDown && counted && active == 0 {
				stopListening("workload exited and last connection closed")
			}

		case <-shutdown:
			shutdown = nil
			shuttingDown = true
			switch {
			case counted && active == 0:
				stopListening("workload exited and no connections remain")
			case !counted && s.OrphanTimeout > 0:
				logger.Info("workload exited before any client connected", "orphan_timeout", s.OrphanTimeout)
				orphan = s.clock().After(s.OrphanTimeout)
			case !counted:
				logger.Info("workload exited before any client connected, waiting for one")
			default:
				logger.Info("workload exited, waiting for connections to close", "active", active)
			}

		case <-orphan:
			stopListening("no client connected before the orphan timeout")

		case <-done:
			done = nil
			stopListening("cancelled")
		}
	}

	if len(panics) > 0 {
		return fmt.Errorf("%w: %w", ErrHandlerPanicked, errors.Join(panics...))
	}
	return nil
}

// run serves one connection and reports its completion. A panic in
// the handler, or in a forwarding goroutine it started, is reported as
// a failed completion.
func (s *Supervisor) run(ctx context.Context, id uint64, conn net.Conn, completions chan<- completion) {
	result := completion{id: id}
	defer func() { completions <- result }()

	err := s.handleRecovering(ctx, id, conn)
	var recovered *panicError
	if errors.As(err, &recovered) {
		conn.Close()
		result.panicked = true
		err = fmt.Errorf("connection %d: %w", id, err)
	}
	result.err = err
}

func (s *Supervisor) handleRecovering(ctx context.Context, id uint64, conn net.Conn) (err error) {
	defer recoverPanic(&err)
	return s.handle(ctx, id, conn)
}

// acceptLoop feeds accepted connections to Serve until the listener
// is closed, then closes accepted.
func (s *Supervisor) acceptLoop(accepted chan<- net.Conn) {
	defer close(accepted)
	retry := &backoff.Backoff{Min: acceptRetryMin, Max: acceptRetryMax, Factor: 2}
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			delay := retry.Duration()
			s.logger().Error("accept failed", "error", err, "retry_in", delay)
			<-s.clock().After(delay)
			continue
		}
		retry.Reset()
		accepted <- conn
	}
}

func (s *Supervisor) closeListener() {
	s.closeOnce.Do(func() {
		s.listener.Close()
	})
}

// Close stops listening, if Serve has not already, and removes the
// socket file.
func (s *Supervisor) Close() error {
	if s.listener == nil {
		return nil
	}
	s.closeListener()
	if err := os.Remove(s.socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing socket %s: %w", s.socketPath, err)
	}
	return nil
}
