// Copyright 2026 The Realityctl Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides binary entrypoint helpers: the pre-logger
// fatal error path and the typed exit codes of the reconcile command
// surface.
//
// Exit codes are part of the external contract — scripts driving
// realityctl branch on them — so they live here as named constants
// rather than scattered literals:
//
//	0  success
//	1  validation failed, no mutation occurred
//	2  apply or health check failed
//	3  rollback failed, manual intervention required
package process
