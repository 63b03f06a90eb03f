// Copyright 2026 The Realityctl Authors
// SPDX-License-Identifier: Apache-2.0

// Package envstore synchronizes Reality credentials into the bot's
// .env file.
//
// The .env file is shared with another consumer, so the store only
// owns four keys and treats every other line as opaque bytes:
// comments, blank lines, unknown keys, and their order all survive a
// sync untouched. Managed lines are replaced in place; a key the file
// lacks is appended at the end.
//
// Drift detection guards against silently clobbering hand edits. The
// value of each managed key at the time of the last sync is persisted
// as a baseline; when a later sync finds a managed value that differs
// from that baseline, the sync stops with a DriftError unless forced.
// The first sync has no baseline and never reports drift.
package envstore

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Sanchoz2022/realityctl/lib/atomicfile"
	"github.com/Sanchoz2022/realityctl/lib/clock"
)

// Managed keys. Everything else in the file is preserved verbatim.
const (
	KeyPrivateKey = "XRAY_REALITY_PRIVKEY"
	KeyPublicKey  = "XRAY_REALITY_PUBKEY"
	KeyShortIDs   = "XRAY_REALITY_SHORT_IDS"
	KeyServerIP   = "SERVER_IP"
)

// managedKeys is the write order for keys appended to the file.
var managedKeys = []string{KeyPrivateKey, KeyPublicKey, KeyShortIDs, KeyServerIP}

// Record is the credential set to synchronize.
type Record struct {
	PrivateKey string
	PublicKey  string
	ShortIDs   []string
	ServerIP   string
}

// values renders the record as managed key → file value. Short IDs
// are stored as a JSON array, the format the bot parses.
func (r Record) values() (map[string]string, error) {
	shortIDs, err := json.Marshal(r.ShortIDs)
	if err != nil {
		return nil, fmt.Errorf("encoding short IDs: %w", err)
	}
	return map[string]string{
		KeyPrivateKey: r.PrivateKey,
		KeyPublicKey:  r.PublicKey,
		KeyShortIDs:   string(shortIDs),
		KeyServerIP:   r.ServerIP,
	}, nil
}

// Drift is one managed key whose file value no longer matches the
// last-synced baseline.
type Drift struct {
	Key      string
	Baseline string
	Found    string
}

// DriftError reports managed keys changed out-of-band since the last
// sync. The file is left untouched.
type DriftError struct {
	Drifts []Drift
}

func (e *DriftError) Error() string {
	keys := make([]string, 0, len(e.Drifts))
	for _, drift := range e.Drifts {
		keys = append(keys, drift.Key)
	}
	return fmt.Sprintf("credential store drifted since last sync (keys: %s); re-run with --force to overwrite",
		strings.Join(keys, ", "))
}

// baseline is the persisted record of the last sync.
type baseline struct {
	SyncedAt time.Time         `json:"synced_at"`
	Values   map[string]string `json:"values"`
}

// Store synchronizes one .env file.
type Store struct {
	path         string
	baselinePath string
	clock        clock.Clock
	logger       *slog.Logger
}

// New returns a Store for the .env file at path, keeping its sync
// baseline under stateDir.
func New(path, stateDir string, clk clock.Clock, logger *slog.Logger) *Store {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		path:         path,
		baselinePath: filepath.Join(stateDir, "envsync.json"),
		clock:        clk,
		logger:       logger,
	}
}

// Read returns the current managed values found in the file. Missing
// file yields an empty map.
func (s *Store) Read() (map[string]string, error) {
	content, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", s.path, err)
	}
	return extractManaged(splitLines(string(content))), nil
}

// Sync writes the record's managed keys into the file. Returns true
// when the file was modified. A *DriftError is returned (and nothing
// written) when a managed key changed out-of-band since the last
// sync, unless force is set.
func (s *Store) Sync(record Record, force bool) (bool, error) {
	desired, err := record.values()
	if err != nil {
		return false, err
	}

	var lines []string
	exists := true
	content, err := os.ReadFile(s.path)
	switch {
	case os.IsNotExist(err):
		exists = false
	case err != nil:
		return false, fmt.Errorf("reading %s: %w", s.path, err)
	default:
		lines = splitLines(string(content))
	}

	current := extractManaged(lines)

	if !force {
		if err := s.checkDrift(current); err != nil {
			return false, err
		}
	}

	changed := false
	if !exists || !valuesEqual(current, desired) {
		if exists {
			if err := os.WriteFile(s.path+".bak", content, 0600); err != nil {
				return false, fmt.Errorf("writing %s.bak: %w", s.path, err)
			}
		}
		updated := renderLines(lines, desired)
		if err := atomicfile.Write(s.path, []byte(updated), 0600); err != nil {
			return false, fmt.Errorf("writing %s: %w", s.path, err)
		}
		changed = true
		s.logger.Info("credential store synced", "path", s.path)
	}

	if err := s.saveBaseline(desired); err != nil {
		return changed, err
	}
	return changed, nil
}

// checkDrift compares current managed values against the last-synced
// baseline. No baseline means no drift.
func (s *Store) checkDrift(current map[string]string) error {
	data, err := os.ReadFile(s.baselinePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading sync baseline: %w", err)
	}

	var last baseline
	if err := json.Unmarshal(data, &last); err != nil {
		return fmt.Errorf("parsing sync baseline %s: %w", s.baselinePath, err)
	}

	var drifts []Drift
	for _, key := range managedKeys {
		found, present := current[key]
		expected, tracked := last.Values[key]
		if present && tracked && found != expected {
			drifts = append(drifts, Drift{Key: key, Baseline: expected, Found: found})
		}
	}
	if len(drifts) > 0 {
		return &DriftError{Drifts: drifts}
	}
	return nil
}

func (s *Store) saveBaseline(values map[string]string) error {
	data, err := json.MarshalIndent(baseline{SyncedAt: s.clock.Now(), Values: values}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling sync baseline: %w", err)
	}
	data = append(data, '\n')
	if err := atomicfile.Write(s.baselinePath, data, 0600); err != nil {
		return fmt.Errorf("writing sync baseline: %w", err)
	}
	return nil
}

// splitLines splits file content into lines without their newline
// bytes. A trailing newline does not produce an empty final line.
func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	content = strings.TrimSuffix(content, "\n")
	return strings.Split(content, "\n")
}

// keyOf returns the managed key a line assigns, or "".
func keyOf(line string) string {
	trimmed := strings.TrimSpace(line)
	trimmed = strings.TrimPrefix(trimmed, "export ")
	for _, key := range managedKeys {
		if strings.HasPrefix(trimmed, key+"=") {
			return key
		}
	}
	return ""
}

// extractManaged returns the managed values currently in the file.
// With duplicate assignments the last one wins, matching how dotenv
// loaders resolve them.
func extractManaged(lines []string) map[string]string {
	values := make(map[string]string)
	for _, line := range lines {
		if key := keyOf(line); key != "" {
			trimmed := strings.TrimPrefix(strings.TrimSpace(line), "export ")
			values[key] = strings.TrimPrefix(trimmed, key+"=")
		}
	}
	return values
}

// renderLines rewrites managed assignments in place, drops duplicate
// managed lines, and appends keys the file lacks. Every other line
// passes through byte-identical.
func renderLines(lines []string, desired map[string]string) string {
	written := make(map[string]bool, len(desired))
	var out []string
	for _, line := range lines {
		key := keyOf(line)
		if key == "" {
			out = append(out, line)
			continue
		}
		if written[key] {
			// Duplicate managed assignment, dropped.
			continue
		}
		out = append(out, key+"="+desired[key])
		written[key] = true
	}
	for _, key := range managedKeys {
		if !written[key] {
			out = append(out, key+"="+desired[key])
		}
	}
	return strings.Join(out, "\n") + "\n"
}

func valuesEqual(current, desired map[string]string) bool {
	for _, key := range managedKeys {
		if current[key] != desired[key] {
			return false
		}
	}
	return true
}
