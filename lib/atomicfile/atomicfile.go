// Copyright 2026 The Realityctl Authors
// SPDX-License-Identifier: Apache-2.0

// Package atomicfile writes files so that readers never observe a
// partial state: content goes to a temporary file in the same
// directory, is fsynced, and is renamed into place, followed by a
// parent directory sync so the rename survives power loss.
package atomicfile

import (
	"fmt"
	"os"
	"path/filepath"
)

// Write atomically replaces the file at path with data. The file is
// created with the given mode when it does not exist. The parent
// directory must already exist.
func Write(path string, data []byte, mode os.FileMode) error {
	temporaryPath := path + ".tmp"

	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("creating temporary file: %w", err)
	}

	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing temporary file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing temporary file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary file: %w", err)
	}

	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming into place: %w", err)
	}

	parentDirectory, err := os.Open(filepath.Dir(path))
	if err == nil {
		parentDirectory.Sync()
		parentDirectory.Close()
	}
	return nil
}
