// Copyright 2026 The Realityctl Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the realityctl command tree.
package commands

import (
	"github.com/Sanchoz2022/realityctl/lib/cli"
)

// Root returns the realityctl root command.
func Root() *cli.Command {
	return &cli.Command{
		Name:    "realityctl",
		Summary: "Reconcile an Xray Reality deployment to its desired state",
		Description: "realityctl converges an Xray server to a desired Reality identity:\n" +
			"key material, the server config, the running service, and the bot's\n" +
			"credential store. Every change is validated before it lands and rolled\n" +
			"back if the service refuses it.",
		Subcommands: []*cli.Command{
			reconcileCommand(),
			rollbackCommand(),
			statusCommand(),
			syncCommand(),
			keygenCommand(),
			linkCommand(),
			revisionsCommand(),
			versionCommand(),
		},
	}
}
