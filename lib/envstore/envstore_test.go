// Copyright 2026 The Realityctl Authors
// SPDX-License-Identifier: Apache-2.0

package envstore

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Sanchoz2022/realityctl/lib/clock"
)

func testRecord() Record {
	return Record{
		PrivateKey: "yJ2SMnqyllYk53kSkCJWIXHvnricz1nkMvNpW-ttcFc",
		PublicKey:  "S0FMPJXM1Da1QpklvH_0rE1cOCj0jIGVhiSQrUC8RBU",
		ShortIDs:   []string{"", "ab12cd34ef56ab78"},
		ServerIP:   "203.0.113.10",
	}
}

func testStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	store := New(path, dir, clock.Fake(time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)), nil)
	return store, path
}

func TestSyncCreatesMissingFile(t *testing.T) {
	store, path := testStore(t)

	changed, err := store.Sync(testRecord(), false)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if !changed {
		t.Error("Sync reported no change for a fresh file")
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading .env: %v", err)
	}
	for _, want := range []string{
		"XRAY_REALITY_PRIVKEY=yJ2SMnqyllYk53kSkCJWIXHvnricz1nkMvNpW-ttcFc",
		"XRAY_REALITY_PUBKEY=S0FMPJXM1Da1QpklvH_0rE1cOCj0jIGVhiSQrUC8RBU",
		`XRAY_REALITY_SHORT_IDS=["","ab12cd34ef56ab78"]`,
		"SERVER_IP=203.0.113.10",
	} {
		if !strings.Contains(string(content), want+"\n") {
			t.Errorf(".env missing line %q:\n%s", want, content)
		}
	}
}

func TestSyncPreservesForeignLines(t *testing.T) {
	store, path := testStore(t)

	original := "# bot settings\nTELEGRAM_TOKEN=abc:123\n\nXRAY_REALITY_PRIVKEY=oldkey\nADMIN_IDS=1,2,3\n"
	if err := os.WriteFile(path, []byte(original), 0600); err != nil {
		t.Fatalf("seeding .env: %v", err)
	}

	if _, err := store.Sync(testRecord(), false); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading .env: %v", err)
	}
	lines := strings.Split(string(content), "\n")

	// Foreign lines keep their content and position.
	if lines[0] != "# bot settings" || lines[1] != "TELEGRAM_TOKEN=abc:123" || lines[2] != "" {
		t.Errorf("leading foreign lines disturbed: %q", lines[:3])
	}
	// The managed key is replaced in place, not appended.
	if lines[3] != "XRAY_REALITY_PRIVKEY="+testRecord().PrivateKey {
		t.Errorf("line 4 = %q, want the updated private key in place", lines[3])
	}
	if lines[4] != "ADMIN_IDS=1,2,3" {
		t.Errorf("line 5 = %q, want ADMIN_IDS untouched", lines[4])
	}

	// The pre-sync content is backed up.
	backup, err := os.ReadFile(path + ".bak")
	if err != nil {
		t.Fatalf("reading backup: %v", err)
	}
	if string(backup) != original {
		t.Error("backup does not match the pre-sync content")
	}
}

func TestSyncDropsDuplicateManagedLines(t *testing.T) {
	store, path := testStore(t)

	seed := "SERVER_IP=198.51.100.1\nSERVER_IP=198.51.100.2\n"
	if err := os.WriteFile(path, []byte(seed), 0600); err != nil {
		t.Fatalf("seeding .env: %v", err)
	}

	if _, err := store.Sync(testRecord(), false); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading .env: %v", err)
	}
	if count := strings.Count(string(content), "SERVER_IP="); count != 1 {
		t.Errorf("SERVER_IP appears %d times, want 1:\n%s", count, content)
	}
}

func TestSyncIsIdempotent(t *testing.T) {
	store, path := testStore(t)

	if _, err := store.Sync(testRecord(), false); err != nil {
		t.Fatalf("first Sync: %v", err)
	}
	first, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading .env: %v", err)
	}

	changed, err := store.Sync(testRecord(), false)
	if err != nil {
		t.Fatalf("second Sync: %v", err)
	}
	if changed {
		t.Error("second Sync with identical record reported a change")
	}
	second, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading .env: %v", err)
	}
	if string(first) != string(second) {
		t.Error("second Sync rewrote the file")
	}
}

func TestSyncDetectsDrift(t *testing.T) {
	store, path := testStore(t)

	if _, err := store.Sync(testRecord(), false); err != nil {
		t.Fatalf("first Sync: %v", err)
	}

	// Hand-edit a managed key between syncs.
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading .env: %v", err)
	}
	edited := strings.Replace(string(content), "SERVER_IP=203.0.113.10", "SERVER_IP=10.0.0.1", 1)
	if err := os.WriteFile(path, []byte(edited), 0600); err != nil {
		t.Fatalf("editing .env: %v", err)
	}

	record := testRecord()
	record.ServerIP = "203.0.113.99"
	_, err = store.Sync(record, false)

	var driftError *DriftError
	if !errors.As(err, &driftError) {
		t.Fatalf("error = %v, want DriftError", err)
	}
	if len(driftError.Drifts) != 1 || driftError.Drifts[0].Key != KeyServerIP {
		t.Errorf("drifts = %+v, want one on SERVER_IP", driftError.Drifts)
	}

	// The drifted value is untouched.
	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading .env: %v", err)
	}
	if !strings.Contains(string(after), "SERVER_IP=10.0.0.1") {
		t.Error("drifted value was overwritten despite the error")
	}

	// Force overrides the guard and re-baselines.
	if _, err := store.Sync(record, true); err != nil {
		t.Fatalf("forced Sync: %v", err)
	}
	if _, err := store.Sync(record, false); err != nil {
		t.Fatalf("Sync after force: %v", err)
	}
}

func TestFirstSyncOverPreexistingFileIsNotDrift(t *testing.T) {
	store, path := testStore(t)

	// Values written before realityctl ever ran: no baseline, so this
	// is adoption, not drift.
	if err := os.WriteFile(path, []byte("XRAY_REALITY_PRIVKEY=handwritten\n"), 0600); err != nil {
		t.Fatalf("seeding .env: %v", err)
	}

	if _, err := store.Sync(testRecord(), false); err != nil {
		t.Fatalf("Sync: %v", err)
	}
}

func TestReadReturnsManagedValues(t *testing.T) {
	store, path := testStore(t)

	seed := "export SERVER_IP=198.51.100.7\nOTHER=x\n"
	if err := os.WriteFile(path, []byte(seed), 0600); err != nil {
		t.Fatalf("seeding .env: %v", err)
	}

	values, err := store.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if values[KeyServerIP] != "198.51.100.7" {
		t.Errorf("SERVER_IP = %q", values[KeyServerIP])
	}
	if _, ok := values["OTHER"]; ok {
		t.Error("Read returned an unmanaged key")
	}
}
