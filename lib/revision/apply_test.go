// Copyright 2026 The Realityctl Authors
// SPDX-License-Identifier: Apache-2.0

package revision

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// applyDraft synthesizes, validates, and applies one revision.
func applyDraft(t *testing.T, store *Store, activePath, content string) Revision {
	t.Helper()
	draft, err := store.NewDraft([]byte(content))
	if err != nil {
		t.Fatalf("NewDraft: %v", err)
	}
	if err := store.MarkValidated(draft.ID); err != nil {
		t.Fatalf("MarkValidated: %v", err)
	}
	if err := store.Apply(draft.ID, activePath); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	return draft
}

func TestApplyInstallsAndTracksActive(t *testing.T) {
	store, _ := testStore(t)
	activePath := filepath.Join(t.TempDir(), "config.json")

	draft := applyDraft(t, store, activePath, `{"v":1}`)

	installed, err := os.ReadFile(activePath)
	if err != nil {
		t.Fatalf("reading active config: %v", err)
	}
	if string(installed) != `{"v":1}` {
		t.Errorf("active config = %s", installed)
	}

	active, ok := store.Active()
	if !ok || active.ID != draft.ID {
		t.Fatalf("Active() = %+v, %v", active, ok)
	}
	if store.ActiveChecksum() != Checksum([]byte(`{"v":1}`)) {
		t.Error("ActiveChecksum does not match installed content")
	}
}

func TestApplyRequiresValidation(t *testing.T) {
	store, _ := testStore(t)
	activePath := filepath.Join(t.TempDir(), "config.json")

	draft, err := store.NewDraft([]byte(`{}`))
	if err != nil {
		t.Fatalf("NewDraft: %v", err)
	}
	if err := store.Apply(draft.ID, activePath); err == nil {
		t.Error("Apply accepted an unvalidated draft")
	}
}

func TestApplySnapshotsPreviousActive(t *testing.T) {
	store, fake := testStore(t)
	activePath := filepath.Join(t.TempDir(), "config.json")

	first := applyDraft(t, store, activePath, `{"v":1}`)
	fake.Advance(time.Minute)
	applyDraft(t, store, activePath, `{"v":2}`)

	// The first revision is demoted to backup with a durable snapshot.
	var backup Revision
	for _, revision := range store.Revisions() {
		if revision.ID == first.ID {
			backup = revision
		}
	}
	if backup.Status != StatusBackup {
		t.Fatalf("first revision status = %s, want backup", backup.Status)
	}
	snapshot, err := os.ReadFile(filepath.Join(store.dir, backup.Path))
	if err != nil {
		t.Fatalf("reading snapshot: %v", err)
	}
	if string(snapshot) != `{"v":1}` {
		t.Errorf("snapshot = %s, want the previous active content", snapshot)
	}
}

func TestApplyImportsUnmanagedActiveConfig(t *testing.T) {
	store, _ := testStore(t)
	activePath := filepath.Join(t.TempDir(), "config.json")

	// A config written by hand before realityctl took over.
	if err := os.WriteFile(activePath, []byte(`{"handmade":true}`), 0644); err != nil {
		t.Fatalf("seeding active config: %v", err)
	}

	applyDraft(t, store, activePath, `{"v":1}`)

	restored, err := store.Rollback(activePath, "testing import")
	if err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if restored.Cause != "imported pre-existing active config" {
		t.Errorf("restored revision = %+v, want the imported snapshot", restored)
	}
	content, err := os.ReadFile(activePath)
	if err != nil {
		t.Fatalf("reading active config: %v", err)
	}
	if string(content) != `{"handmade":true}` {
		t.Errorf("active config = %s, want the hand-written original", content)
	}
}

func TestFailedApplyKeepsPreviousActive(t *testing.T) {
	store, fake := testStore(t)
	activePath := filepath.Join(t.TempDir(), "config.json")

	good := applyDraft(t, store, activePath, `{"v":1}`)
	fake.Advance(time.Minute)

	// A directory squatting on the temp path makes the atomic write
	// fail before the active file is touched.
	if err := os.Mkdir(activePath+".tmp", 0755); err != nil {
		t.Fatalf("blocking temp path: %v", err)
	}

	candidate, err := store.NewDraft([]byte(`{"v":2}`))
	if err != nil {
		t.Fatalf("NewDraft: %v", err)
	}
	if err := store.MarkValidated(candidate.ID); err != nil {
		t.Fatalf("MarkValidated: %v", err)
	}

	var applyError *ApplyError
	if err := store.Apply(candidate.ID, activePath); !errors.As(err, &applyError) {
		t.Fatalf("Apply error = %v, want ApplyError", err)
	}
	if !applyError.RolledBack() {
		t.Error("RolledBack() = false, but the active file was never disturbed")
	}

	content, err := os.ReadFile(activePath)
	if err != nil {
		t.Fatalf("reading active config: %v", err)
	}
	if string(content) != `{"v":1}` {
		t.Errorf("active config = %s, want the previous good config", content)
	}

	active, ok := store.Active()
	if !ok {
		t.Fatal("no active revision after failed apply")
	}
	if active.ID != good.ID {
		t.Errorf("active revision = %s, want %s re-promoted", active.ID, good.ID)
	}

	for _, revision := range store.Revisions() {
		if revision.ID == candidate.ID && revision.Status != StatusDiscarded {
			t.Errorf("failed candidate status = %s, want discarded", revision.Status)
		}
	}

	// With the obstruction cleared the store recovers on the next run.
	if err := os.RemoveAll(activePath + ".tmp"); err != nil {
		t.Fatalf("clearing temp path: %v", err)
	}
	fake.Advance(time.Minute)
	applyDraft(t, store, activePath, `{"v":3}`)
}

func TestApplyDemotesStaleActiveAfterFileRemoval(t *testing.T) {
	store, fake := testStore(t)
	activePath := filepath.Join(t.TempDir(), "config.json")

	first := applyDraft(t, store, activePath, `{"v":1}`)
	if err := os.Remove(activePath); err != nil {
		t.Fatalf("removing active config: %v", err)
	}
	fake.Advance(time.Minute)
	second := applyDraft(t, store, activePath, `{"v":2}`)

	actives := 0
	for _, revision := range store.Revisions() {
		if revision.Status == StatusActive {
			actives++
			if revision.ID != second.ID {
				t.Errorf("active revision = %s, want %s", revision.ID, second.ID)
			}
		}
		if revision.ID == first.ID && revision.Status != StatusDiscarded {
			t.Errorf("stale revision status = %s, want discarded", revision.Status)
		}
	}
	if actives != 1 {
		t.Errorf("active revisions = %d, want exactly 1", actives)
	}
}

func TestRollbackRestoresBackupAndArchivesBadConfig(t *testing.T) {
	store, fake := testStore(t)
	activePath := filepath.Join(t.TempDir(), "config.json")

	applyDraft(t, store, activePath, `{"v":1}`)
	fake.Advance(time.Minute)
	bad := applyDraft(t, store, activePath, `{"v":2}`)

	restored, err := store.Rollback(activePath, "service failed to start")
	if err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if restored.Status != StatusActive {
		t.Errorf("restored status = %s, want active", restored.Status)
	}

	content, err := os.ReadFile(activePath)
	if err != nil {
		t.Fatalf("reading active config: %v", err)
	}
	if string(content) != `{"v":1}` {
		t.Errorf("active config after rollback = %s, want {\"v\":1}", content)
	}

	// The bad revision is archived with its cause recorded.
	var discarded Revision
	for _, revision := range store.Revisions() {
		if revision.ID == bad.ID {
			discarded = revision
		}
	}
	if discarded.Status != StatusDiscarded || discarded.Cause != "service failed to start" {
		t.Errorf("bad revision = %+v", discarded)
	}
	archived, err := store.ReadContent(bad.ID)
	if err != nil {
		t.Fatalf("ReadContent of archived revision: %v", err)
	}
	if string(archived) != `{"v":2}` {
		t.Errorf("archived content = %s", archived)
	}
}

func TestRollbackWithoutBackupFails(t *testing.T) {
	store, _ := testStore(t)
	activePath := filepath.Join(t.TempDir(), "config.json")

	applyDraft(t, store, activePath, `{"v":1}`)

	_, err := store.Rollback(activePath, "no snapshot yet")
	var rollbackError *RollbackError
	if !errors.As(err, &rollbackError) {
		t.Fatalf("error = %v, want RollbackError", err)
	}
}

func TestPruneKeepsRetainedBackups(t *testing.T) {
	store, fake := testStore(t) // retain = 2
	activePath := filepath.Join(t.TempDir(), "config.json")

	for i := 1; i <= 5; i++ {
		applyDraft(t, store, activePath, fmt.Sprintf(`{"v":%d}`, i))
		fake.Advance(time.Minute)
	}

	backups := 0
	for _, revision := range store.Revisions() {
		if revision.Status == StatusBackup {
			backups++
			if _, err := os.Stat(filepath.Join(store.dir, revision.Path)); err != nil {
				t.Errorf("backup %s has no snapshot file: %v", revision.ID, err)
			}
		}
	}
	if backups != 2 {
		t.Errorf("retained backups = %d, want 2", backups)
	}
}
