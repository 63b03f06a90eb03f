// Copyright 2026 The Realityctl Authors
// SPDX-License-Identifier: Apache-2.0

package keygen

import (
	"fmt"
	"regexp"
)

// ShortIDSet is an ordered, duplicate-free sequence of Reality short
// IDs. The empty string is a valid member: it is the wildcard that
// lets clients omit the short ID entirely, not the absence of a set.
type ShortIDSet []string

// shortIDPattern matches a short ID: 0–16 lowercase hex characters.
// Xray requires even length, but accepts the empty wildcard.
var shortIDPattern = regexp.MustCompile(`^[0-9a-f]{0,16}$`)

// Validate checks set membership rules: at least one entry, each a
// lowercase hex string of at most 16 characters, no duplicates.
func (s ShortIDSet) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("short ID set must contain at least one entry")
	}
	seen := make(map[string]bool, len(s))
	for i, id := range s {
		if !shortIDPattern.MatchString(id) {
			return fmt.Errorf("short ID %d (%q) is not 0-16 lowercase hex characters", i, id)
		}
		if seen[id] {
			return fmt.Errorf("duplicate short ID %q", id)
		}
		seen[id] = true
	}
	return nil
}

// Contains reports whether id is a member.
func (s ShortIDSet) Contains(id string) bool {
	for _, member := range s {
		if member == id {
			return true
		}
	}
	return false
}
