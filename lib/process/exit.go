// Copyright 2026 The Realityctl Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"fmt"
	"os"
)

// Exit codes of the reconcile command surface. These are an external
// contract: operators and automation branch on them.
const (
	// ExitSuccess: the reconcile converged. The active config and the
	// credential store both carry the desired identity.
	ExitSuccess = 0

	// ExitValidationFailed: generation or validation failed before any
	// mutation. The active config is provably untouched.
	ExitValidationFailed = 1

	// ExitRolledBack: apply or the health check failed. Where the
	// failure was config-caused the previous good state was restored.
	ExitRolledBack = 2

	// ExitRollbackFailed: rollback itself failed. The system cannot
	// self-heal further; manual intervention is required.
	ExitRollbackFailed = 3
)

// ExitError carries a process exit code alongside the originating
// error. main() unwraps it via the ExitCode method to set the process
// exit status.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit code %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// ExitCode returns the process exit status for this error.
func (e *ExitError) ExitCode() int { return e.Code }

// Exit wraps err with the given exit code.
func Exit(code int, err error) *ExitError {
	return &ExitError{Code: code, Err: err}
}

// Fatal writes "error: err" to stderr and exits with code 1. Use it in
// main() for errors from run() where the structured logger may not be
// initialized.
func Fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
