// Copyright 2026 The Realityctl Authors
// SPDX-License-Identifier: Apache-2.0

// Package lockfile serializes reconcile runs with an advisory flock.
//
// The lock file lives in the state directory and records the holder's
// PID for diagnostics. The kernel releases the flock automatically if
// the holder dies, so a crashed run never wedges the lock. The file
// itself is never removed: unlinking a locked file races with other
// acquirers opening it.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"golang.org/x/sys/unix"

	"github.com/Sanchoz2022/realityctl/lib/clock"
)

// ErrBusy means another process holds the lock and the acquisition
// timeout elapsed.
var ErrBusy = errors.New("another reconcile run holds the lock")

// retryInterval is the poll interval while waiting for a held lock.
const retryInterval = 100 * time.Millisecond

// Lock is a held lock. Release it when the run finishes.
type Lock struct {
	file *os.File
	path string
}

// Acquire takes an exclusive flock on path, waiting up to timeout for
// a holder to release it. A zero timeout makes a single non-blocking
// attempt. Returns ErrBusy (wrapped) when the lock stays held.
func Acquire(path string, timeout time.Duration, clk clock.Clock) (*Lock, error) {
	if clk == nil {
		clk = clock.Real()
	}

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("opening lock file %s: %w", path, err)
	}

	deadline := clk.Now().Add(timeout)
	for {
		err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			break
		}
		if !errors.Is(err, unix.EWOULDBLOCK) {
			file.Close()
			return nil, fmt.Errorf("locking %s: %w", path, err)
		}
		if !clk.Now().Before(deadline) {
			file.Close()
			return nil, fmt.Errorf("lock file %s: %w", path, ErrBusy)
		}
		clk.Sleep(retryInterval)
	}

	// Record the holder for humans inspecting a stuck run. Best
	// effort: the flock, not the content, is the lock.
	file.Truncate(0)
	file.Seek(0, 0)
	file.WriteString(strconv.Itoa(os.Getpid()) + "\n")

	return &Lock{file: file, path: path}, nil
}

// Release drops the lock. Safe to call once per Acquire.
func (l *Lock) Release() error {
	if err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN); err != nil {
		l.file.Close()
		return fmt.Errorf("unlocking %s: %w", l.path, err)
	}
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("closing lock file %s: %w", l.path, err)
	}
	return nil
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }
