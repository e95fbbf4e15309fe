// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// ErrNoCommand is returned by StartWorkload for an empty argv.
var ErrNoCommand = errors.New("no workload command")

// Workload is a running child command.
type Workload struct {
	cmd  *exec.Cmd
	done chan struct{}

	mu  sync.Mutex
	err error
}

// StartWorkload starts argv[0] with the remaining arguments, inheriting
// the standard streams and the environment plus extraEnv. Entries in
// extraEnv override inherited variables of the same name.
func StartWorkload(argv []string, extraEnv ...string) (*Workload, error) {
	if len(argv) == 0 {
		return nil, ErrNoCommand
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	// exec.Cmd keeps the last of duplicate keys.
	cmd.Env = append(os.Environ(), extraEnv...)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting workload %q: %w", argv[0], err)
	}

	workload := &Workload{cmd: cmd, done: make(chan struct{})}
	go workload.wait()
	return workload, nil
}

func (w *Workload) wait() {
	err := w.cmd.Wait()
	w.mu.Lock()
	w.err = err
	w.mu.Unlock()
	close(w.done)
}

// Done is closed when the workload has exited and been reaped.
func (w *Workload) Done() <-chan struct{} {
	return w.done
}

// Err returns the wait result once Done is closed: nil for a zero exit
// status, an *exec.ExitError for a non-zero status or a signal, and any
// other error when the wait itself failed. Before Done it returns nil.
func (w *Workload) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// ExitCode returns the exit status, or -1 if the workload has not
// exited or was killed by a signal.
func (w *Workload) ExitCode() int {
	select {
	case <-w.done:
		return w.cmd.ProcessState.ExitCode()
	default:
		return -1
	}
}

// Pid returns the workload's process id.
func (w *Workload) Pid() int {
	return w.cmd.Process.Pid
}

// Signal delivers sig to the workload. Signalling a workload that has
// already exited is not an error.
func (w *Workload) Signal(sig os.Signal) error {
	select {
	case <-w.done:
		return nil
	default:
	}
	err := w.cmd.Process.Signal(sig)
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

// Stop sends SIGTERM and waits for the workload to exit. A workload
// still running after grace is sent SIGKILL. Stop returns once the
// workload has been reaped.
func (w *Workload) Stop(grace time.Duration) error {
	if err := w.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("terminating workload: %w", err)
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-w.done:
		return nil
	case <-timer.C:
	}
	if err := w.Signal(syscall.SIGKILL); err != nil {
		return fmt.Errorf("killing workload after %s: %w", grace, err)
	}
	<-w.done
	return nil
}

// WaitFailed reports whether err, as returned by Err, means the wait
// itself failed rather than the workload exiting.
func WaitFailed(err error) bool {
	if err == nil {
		return false
	}
	var exitErr *exec.ExitError
	return !errors.As(err, &exitErr)
}
