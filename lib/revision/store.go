// Copyright 2026 The Realityctl Authors
// SPDX-License-Identifier: Apache-2.0

package revision

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/zstd"

	"github.com/Sanchoz2022/realityctl/lib/atomicfile"
	"github.com/Sanchoz2022/realityctl/lib/clock"
)

const (
	manifestName = "manifest.json"
	draftsDir    = "drafts"
	backupsDir   = "backups"
	discardedDir = "discarded"
)

// manifest is the on-disk revision index.
type manifest struct {
	Revisions []Revision `json:"revisions"`
}

// Store manages revisions under a state directory.
type Store struct {
	dir      string
	retain   int
	clock    clock.Clock
	logger   *slog.Logger
	manifest manifest
}

// Open opens (creating if necessary) the revision store at dir.
// retain is how many backup generations survive pruning.
func Open(dir string, retain int, clk clock.Clock, logger *slog.Logger) (*Store, error) {
	if retain < 1 {
		return nil, fmt.Errorf("revision store: retain must be at least 1, got %d", retain)
	}
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}

	for _, sub := range []string{"", draftsDir, backupsDir, discardedDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0700); err != nil {
			return nil, fmt.Errorf("creating revision store directory: %w", err)
		}
	}

	store := &Store{dir: dir, retain: retain, clock: clk, logger: logger}

	data, err := os.ReadFile(store.manifestPath())
	switch {
	case os.IsNotExist(err):
		// Fresh store.
	case err != nil:
		return nil, fmt.Errorf("reading revision manifest: %w", err)
	default:
		if err := json.Unmarshal(data, &store.manifest); err != nil {
			return nil, fmt.Errorf("parsing revision manifest %s: %w", store.manifestPath(), err)
		}
	}
	return store, nil
}

func (s *Store) manifestPath() string { return filepath.Join(s.dir, manifestName) }

// save writes the manifest atomically.
func (s *Store) save() error {
	data, err := json.MarshalIndent(s.manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling revision manifest: %w", err)
	}
	data = append(data, '\n')
	if err := atomicfile.Write(s.manifestPath(), data, 0600); err != nil {
		return fmt.Errorf("writing revision manifest: %w", err)
	}
	return nil
}

// find returns a pointer into the manifest, or nil.
func (s *Store) find(id string) *Revision {
	for i := range s.manifest.Revisions {
		if s.manifest.Revisions[i].ID == id {
			return &s.manifest.Revisions[i]
		}
	}
	return nil
}

// Revisions returns a copy of the manifest entries, newest first.
func (s *Store) Revisions() []Revision {
	out := make([]Revision, len(s.manifest.Revisions))
	copy(out, s.manifest.Revisions)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}

// Active returns the active revision, if any.
func (s *Store) Active() (Revision, bool) {
	for _, revision := range s.manifest.Revisions {
		if revision.Status == StatusActive {
			return revision, true
		}
	}
	return Revision{}, false
}

// ActiveChecksum returns the recorded checksum of the active
// revision, or "" when no revision is active. Comparing it against
// Checksum of the live file detects out-of-band edits.
func (s *Store) ActiveChecksum() string {
	active, ok := s.Active()
	if !ok {
		return ""
	}
	return active.Checksum
}

// NewDraft records a candidate as a draft revision and writes its
// content under drafts/.
func (s *Store) NewDraft(candidate []byte) (Revision, error) {
	now := s.clock.Now()
	checksum := Checksum(candidate)
	revision := Revision{
		ID:        newID(now, checksum),
		Timestamp: now,
		Checksum:  checksum,
		Status:    StatusDraft,
		Path:      filepath.Join(draftsDir, newID(now, checksum)+".json"),
	}

	if err := atomicfile.Write(filepath.Join(s.dir, revision.Path), candidate, 0600); err != nil {
		return Revision{}, fmt.Errorf("writing draft %s: %w", revision.ID, err)
	}

	s.manifest.Revisions = append(s.manifest.Revisions, revision)
	if err := s.save(); err != nil {
		return Revision{}, err
	}
	s.logger.Debug("draft recorded", "revision", revision.ID, "checksum", checksum)
	return revision, nil
}

// MarkValidated promotes a draft that passed validation.
func (s *Store) MarkValidated(id string) error {
	revision := s.find(id)
	if revision == nil {
		return fmt.Errorf("revision %s not in manifest", id)
	}
	if revision.Status != StatusDraft {
		return fmt.Errorf("revision %s is %s, only drafts can be validated", id, revision.Status)
	}
	revision.Status = StatusValidated
	return s.save()
}

// Discard archives a revision's content compressed under discarded/
// and records the cause. The uncompressed backing file is removed.
func (s *Store) Discard(id, cause string) error {
	revision := s.find(id)
	if revision == nil {
		return fmt.Errorf("revision %s not in manifest", id)
	}

	if revision.Path != "" {
		content, err := os.ReadFile(filepath.Join(s.dir, revision.Path))
		if err != nil {
			return fmt.Errorf("reading %s for archival: %w", revision.ID, err)
		}
		archivePath := filepath.Join(discardedDir, revision.ID+".json.zst")
		if err := atomicfile.Write(filepath.Join(s.dir, archivePath), compress(content), 0600); err != nil {
			return fmt.Errorf("archiving %s: %w", revision.ID, err)
		}
		if err := os.Remove(filepath.Join(s.dir, revision.Path)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing %s backing file: %w", revision.ID, err)
		}
		revision.Path = archivePath
	}

	revision.Status = StatusDiscarded
	revision.Cause = cause
	if err := s.save(); err != nil {
		return err
	}
	s.logger.Info("revision discarded", "revision", id, "cause", cause)
	return nil
}

// ReadContent returns a revision's config content, decompressing
// discarded archives transparently.
func (s *Store) ReadContent(id string) ([]byte, error) {
	revision := s.find(id)
	if revision == nil {
		return nil, fmt.Errorf("revision %s not in manifest", id)
	}
	if revision.Path == "" {
		return nil, fmt.Errorf("revision %s has no backing file", id)
	}
	data, err := os.ReadFile(filepath.Join(s.dir, revision.Path))
	if err != nil {
		return nil, fmt.Errorf("reading revision %s: %w", id, err)
	}
	if filepath.Ext(revision.Path) == ".zst" {
		return decompress(data)
	}
	return data, nil
}

// latestBackup returns the most recent revision with a backup
// snapshot, or nil.
func (s *Store) latestBackup() *Revision {
	var latest *Revision
	for i := range s.manifest.Revisions {
		revision := &s.manifest.Revisions[i]
		if revision.Status != StatusBackup || revision.Path == "" {
			continue
		}
		if latest == nil || revision.Timestamp.After(latest.Timestamp) {
			latest = revision
		}
	}
	return latest
}

// pruneBackups discards backup generations beyond the retain count,
// oldest first. Called after a successful apply or rollback, never on
// the apply critical path.
func (s *Store) pruneBackups() {
	var backups []*Revision
	for i := range s.manifest.Revisions {
		if s.manifest.Revisions[i].Status == StatusBackup {
			backups = append(backups, &s.manifest.Revisions[i])
		}
	}
	if len(backups) <= s.retain {
		return
	}
	sort.SliceStable(backups, func(i, j int) bool {
		return backups[i].Timestamp.Before(backups[j].Timestamp)
	})
	for _, stale := range backups[:len(backups)-s.retain] {
		if err := s.Discard(stale.ID, "pruned: retained backup count exceeded"); err != nil {
			s.logger.Warn("pruning backup failed", "revision", stale.ID, "error", err)
		}
	}
}

// zstd codec for discarded archives. Encoder and Decoder are safe for
// concurrent use and reused for the process lifetime.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("revision: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("revision: zstd decoder initialization failed: " + err.Error())
	}
}

func compress(data []byte) []byte {
	return zstdEncoder.EncodeAll(data, nil)
}

func decompress(data []byte) ([]byte, error) {
	result, err := zstdDecoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing archived revision: %w", err)
	}
	return result, nil
}
