// Copyright 2026 The Realityctl Authors
// SPDX-License-Identifier: Apache-2.0

package revision

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Sanchoz2022/realityctl/lib/atomicfile"
)

// ApplyError reports a failed apply. When the rename into the active
// path fails the store restores the pre-apply snapshot if the write
// disturbed it; RollbackErr records whether the active file could be
// brought back to the previous good config.
type ApplyError struct {
	RevisionID  string
	Err         error
	RollbackErr error
}

func (e *ApplyError) Error() string {
	if e.RollbackErr != nil {
		return fmt.Sprintf("applying %s: %v (rollback also failed: %v)", e.RevisionID, e.Err, e.RollbackErr)
	}
	return fmt.Sprintf("applying %s: %v (previous good config in place)", e.RevisionID, e.Err)
}

func (e *ApplyError) Unwrap() error { return e.Err }

// RolledBack reports whether the previous config was restored.
func (e *ApplyError) RolledBack() bool { return e.RollbackErr == nil }

// RollbackError reports a rollback that could not restore service.
type RollbackError struct {
	Cause string
	Err   error
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("rollback (%s) failed: %v", e.Cause, e.Err)
}

func (e *RollbackError) Unwrap() error { return e.Err }

// Apply installs a validated revision at activePath.
//
// Ordering is the crash-safety contract: the current active file is
// first snapshotted durably under backups/ (file and directory both
// fsynced), and only then is the active file replaced atomically. A
// crash at any point leaves either the old config or the new one at
// activePath, never a mix, and always leaves a restorable snapshot.
func (s *Store) Apply(id, activePath string) error {
	revision := s.find(id)
	if revision == nil {
		return fmt.Errorf("revision %s not in manifest", id)
	}
	if revision.Status != StatusValidated {
		return fmt.Errorf("revision %s is %s, only validated revisions can be applied", id, revision.Status)
	}

	content, err := os.ReadFile(filepath.Join(s.dir, revision.Path))
	if err != nil {
		return fmt.Errorf("reading revision %s: %w", id, err)
	}

	// Snapshot the current active file before touching it.
	var backupContent []byte
	previous, err := os.ReadFile(activePath)
	switch {
	case os.IsNotExist(err):
		// Nothing on disk to snapshot. An active file removed
		// out-of-band still leaves a stale manifest pointer; demote it
		// so the manifest never carries two active revisions.
		if active := s.activePointer(); active != nil {
			active.Status = StatusDiscarded
			active.Cause = "active config removed out-of-band"
			if err := s.save(); err != nil {
				return err
			}
		}
	case err != nil:
		return fmt.Errorf("reading active config for backup: %w", err)
	default:
		backupContent = previous
		if err := s.snapshotActive(previous); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(activePath), 0755); err != nil {
		return fmt.Errorf("creating active config directory: %w", err)
	}
	if err := atomicfile.Write(activePath, content, 0644); err != nil {
		applyError := &ApplyError{RevisionID: id, Err: err}
		if backupContent != nil {
			applyError.RollbackErr = restoreActive(activePath, backupContent)
		}
		s.repairAfterFailedApply(id, applyError)
		s.logger.Error("apply failed", "revision", id, "error", applyError)
		return applyError
	}

	// The draft file is superseded by the active path. Re-find the
	// entry: snapshotActive may have grown the manifest slice.
	revision = s.find(id)
	if revision.Path != "" {
		os.Remove(filepath.Join(s.dir, revision.Path))
		revision.Path = ""
	}
	revision.Status = StatusActive
	if err := s.save(); err != nil {
		return err
	}
	s.pruneBackups()
	s.logger.Info("revision applied", "revision", id, "path", activePath)
	return nil
}

// restoreActive brings the active file back to the previous good
// content after a failed write. A failed atomic write usually never
// disturbed the file at all, so the on-disk content is checked before
// anything is rewritten: a write failure that left the good config in
// place is not a failed rollback.
func restoreActive(activePath string, previous []byte) error {
	onDisk, err := os.ReadFile(activePath)
	if err == nil && bytes.Equal(onDisk, previous) {
		return nil
	}
	return atomicfile.Write(activePath, previous, 0644)
}

// repairAfterFailedApply undoes the manifest bookkeeping of a failed
// apply: the snapshot phase already demoted the previous active
// revision to backup, so it is promoted back, and the failed candidate
// is discarded with the apply error as its cause.
func (s *Store) repairAfterFailedApply(id string, cause error) {
	if backup := s.latestBackup(); backup != nil {
		backup.Status = StatusActive
	}
	if err := s.Discard(id, fmt.Sprintf("apply failed: %v", cause)); err != nil {
		s.logger.Warn("discarding failed candidate", "revision", id, "error", err)
		if err := s.save(); err != nil {
			s.logger.Warn("saving revision manifest after failed apply", "error", err)
		}
	}
}

// snapshotActive writes a durable backup of the current active
// content and demotes the active revision to backup status.
func (s *Store) snapshotActive(content []byte) error {
	checksum := Checksum(content)
	name := fmt.Sprintf("config-%s-%s.json.bak",
		s.clock.Now().UTC().Format("20060102T150405"), checksum[:8])
	backupPath := filepath.Join(backupsDir, name)

	if err := atomicfile.Write(filepath.Join(s.dir, backupPath), content, 0600); err != nil {
		return fmt.Errorf("writing backup snapshot: %w", err)
	}

	active := s.activePointer()
	if active == nil {
		// The active file predates realityctl. Track it so rollback
		// still has a target.
		s.manifest.Revisions = append(s.manifest.Revisions, Revision{
			ID:        newID(s.clock.Now(), checksum),
			Timestamp: s.clock.Now(),
			Checksum:  checksum,
			Status:    StatusBackup,
			Path:      backupPath,
			Cause:     "imported pre-existing active config",
		})
		return s.save()
	}

	if active.Path != "" && active.Path != backupPath {
		os.Remove(filepath.Join(s.dir, active.Path))
	}
	active.Status = StatusBackup
	active.Path = backupPath
	return s.save()
}

func (s *Store) activePointer() *Revision {
	for i := range s.manifest.Revisions {
		if s.manifest.Revisions[i].Status == StatusActive {
			return &s.manifest.Revisions[i]
		}
	}
	return nil
}

// Rollback restores the most recent backup snapshot over activePath.
// The revision being rolled back is archived under discarded/ with
// the given cause. Returns the restored revision.
func (s *Store) Rollback(activePath, cause string) (Revision, error) {
	backup := s.latestBackup()
	if backup == nil {
		return Revision{}, &RollbackError{Cause: cause, Err: fmt.Errorf("no backup snapshot available")}
	}

	restored, err := os.ReadFile(filepath.Join(s.dir, backup.Path))
	if err != nil {
		return Revision{}, &RollbackError{Cause: cause, Err: fmt.Errorf("reading backup snapshot: %w", err)}
	}

	// Capture the bad config before overwriting it, for the archive.
	badContent, readErr := os.ReadFile(activePath)

	if err := atomicfile.Write(activePath, restored, 0644); err != nil {
		return Revision{}, &RollbackError{Cause: cause, Err: err}
	}

	if active := s.activePointer(); active != nil {
		active.Status = StatusDiscarded
		active.Cause = cause
		if readErr == nil {
			archivePath := filepath.Join(discardedDir, active.ID+".json.zst")
			if err := atomicfile.Write(filepath.Join(s.dir, archivePath), compress(badContent), 0600); err != nil {
				s.logger.Warn("archiving rolled-back config failed", "revision", active.ID, "error", err)
			} else {
				active.Path = archivePath
			}
		}
	}

	backup.Status = StatusActive
	if err := s.save(); err != nil {
		return Revision{}, &RollbackError{Cause: cause, Err: err}
	}
	s.pruneBackups()
	s.logger.Info("rolled back", "revision", backup.ID, "cause", cause)
	return *backup, nil
}
