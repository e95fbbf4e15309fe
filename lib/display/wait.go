// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package display

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// WaitForSocket blocks until the display's socket exists or ctx is
// done. It watches the socket directory rather than polling, and also
// covers a socket directory that does not exist yet, as on a machine
// where no X server has started since boot.
func (a Address) WaitForSocket(ctx context.Context) error {
	if isSocket(a.Path) {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watching for display %s: %w", a.Spec, err)
	}
	defer watcher.Close()

	directory := filepath.Dir(a.Path)
	if err := watcher.Add(directory); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("watching %s: %w", directory, err)
		}
		if err := watcher.Add(filepath.Dir(directory)); err != nil {
			return fmt.Errorf("watching %s: %w", filepath.Dir(directory), err)
		}
		// The directory may have been created between the two calls.
		watcher.Add(directory)
	}

	// The socket may have appeared before the watch was in place.
	if isSocket(a.Path) {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for display %s: %w", a.Spec, ctx.Err())

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("waiting for display %s: watcher closed", a.Spec)
			}
			if !event.Has(fsnotify.Create) {
				continue
			}
			if event.Name == directory {
				if err := watcher.Add(directory); err != nil && !errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("watching %s: %w", directory, err)
				}
			}
			if isSocket(a.Path) {
				return nil
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("waiting for display %s: watcher closed", a.Spec)
			}
			return fmt.Errorf("waiting for display %s: %w", a.Spec, err)
		}
	}
}

func isSocket(path string) bool {
	info, err := os.Lstat(path)
	return err == nil && info.Mode().Type() == os.ModeSocket
}
