// Copyright 2026 The Realityctl Authors
// SPDX-License-Identifier: Apache-2.0

// Package revision tracks config generations and performs the atomic
// apply and rollback of the active Xray config file.
//
// Every candidate becomes a revision with a content checksum and a
// lifecycle status. The store keeps a JSON manifest plus three kinds
// of files under the state directory:
//
//	drafts/     candidates awaiting validation or apply
//	backups/    durable snapshots of the active file taken before apply
//	discarded/  zstd-compressed candidates that were rejected or
//	            rolled back, kept for post-mortem inspection
//
// Apply is ordered for crash safety: the backup snapshot is fsynced
// to disk before the active file is touched, and the active file is
// replaced by write-to-temp, fsync, rename. At no point can a reader
// of the active path observe a partial config.
package revision

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/zeebo/blake3"
)

// Status is a revision's lifecycle state.
type Status string

const (
	// StatusDraft is a synthesized candidate not yet validated.
	StatusDraft Status = "draft"

	// StatusValidated passed both validation phases and may be applied.
	StatusValidated Status = "validated"

	// StatusActive is the revision currently installed at the active
	// config path. At most one revision is active.
	StatusActive Status = "active"

	// StatusBackup was active before a later apply and has a snapshot
	// in backups/.
	StatusBackup Status = "backup"

	// StatusDiscarded was rejected by validation, failed its health
	// check, or was pruned. Its content lives compressed in discarded/.
	StatusDiscarded Status = "discarded"
)

// Revision is one tracked config generation.
type Revision struct {
	// ID is the stable identifier: rev-<UTC timestamp>-<checksum prefix>.
	ID string `json:"id"`

	// Timestamp is when the revision was created.
	Timestamp time.Time `json:"timestamp"`

	// Checksum is the hex keyed-BLAKE3 digest of the config content.
	Checksum string `json:"checksum"`

	// Status is the lifecycle state.
	Status Status `json:"status"`

	// Path is the backing file, relative to the state directory.
	// Empty once the content only exists at the active config path.
	Path string `json:"path,omitempty"`

	// Cause records why a revision was discarded or rolled back.
	Cause string `json:"cause,omitempty"`
}

// checksumDomainKey is the 32-byte key for BLAKE3 keyed hashing.
// Keyed mode separates these checksums from any other BLAKE3 use of
// the same bytes. The value is the ASCII domain name zero-padded to
// 32 bytes so it stays readable in hex dumps; changing it invalidates
// every checksum in the manifest.
var checksumDomainKey = [32]byte{
	'r', 'e', 'a', 'l', 'i', 't', 'y', 'c', 't', 'l', '.',
	'r', 'e', 'v', 'i', 's', 'i', 'o', 'n',
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// Checksum computes the hex keyed-BLAKE3 digest of config content.
func Checksum(data []byte) string {
	hasher, err := blake3.NewKeyed(checksumDomainKey[:])
	if err != nil {
		panic("revision: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	return hex.EncodeToString(hasher.Sum(nil))
}

// newID derives the revision identifier from creation time and
// content checksum.
func newID(timestamp time.Time, checksum string) string {
	return fmt.Sprintf("rev-%s-%s", timestamp.UTC().Format("20060102T150405"), checksum[:12])
}
