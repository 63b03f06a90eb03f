// Copyright 2026 The Realityctl Authors
// SPDX-License-Identifier: Apache-2.0

package atomicfile

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteCreatesAndReplaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	if err := Write(path, []byte(`{"v":1}`), 0600); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := Write(path, []byte(`{"v":2}`), 0600); err != nil {
		t.Fatalf("Write replace: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading back: %v", err)
	}
	if string(content) != `{"v":2}` {
		t.Errorf("content = %s, want the replacement", content)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temporary file left behind: %v", err)
	}
}

func TestWriteFailureLeavesTargetUntouched(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	if err := Write(path, []byte(`{"v":1}`), 0600); err != nil {
		t.Fatalf("Write: %v", err)
	}

	// A directory squatting on the temp path blocks the write before
	// the target is touched.
	if err := os.Mkdir(path+".tmp", 0755); err != nil {
		t.Fatalf("blocking temp path: %v", err)
	}
	if err := Write(path, []byte(`{"v":2}`), 0600); err == nil {
		t.Fatal("Write succeeded with the temp path blocked")
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading back: %v", err)
	}
	if string(content) != `{"v":1}` {
		t.Errorf("content = %s, want the original", content)
	}
}
