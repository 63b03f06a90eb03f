// Copyright 2026 The Realityctl Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports the realityctl build version.
package version

import "runtime/debug"

// version is overridden at release time via -ldflags.
var version = "0.1.0-dev"

// Info returns the version string, with the VCS revision appended when
// the binary was built from a checkout with build info available.
func Info() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return version
	}
	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" && len(setting.Value) >= 12 {
			return version + "+" + setting.Value[:12]
		}
	}
	return version
}
