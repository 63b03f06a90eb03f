// Copyright 2026 The Realityctl Authors
// SPDX-License-Identifier: Apache-2.0

package lockfile

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func TestAcquireAndRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reconcile.lock")

	lock, err := Acquire(path, 0, nil)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	// The holder PID is recorded.
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading lock file: %v", err)
	}
	if strings.TrimSpace(string(content)) != strconv.Itoa(os.Getpid()) {
		t.Errorf("lock file content = %q, want our PID", content)
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
}

func TestSecondAcquireIsBusy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reconcile.lock")

	first, err := Acquire(path, 0, nil)
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	defer first.Release()

	if _, err := Acquire(path, 0, nil); !errors.Is(err, ErrBusy) {
		t.Fatalf("second Acquire error = %v, want ErrBusy", err)
	}
}

func TestAcquireAfterRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reconcile.lock")

	first, err := Acquire(path, 0, nil)
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	if err := first.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	second, err := Acquire(path, 0, nil)
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	second.Release()
}
