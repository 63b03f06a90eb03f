// Copyright 2026 The Realityctl Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/Sanchoz2022/realityctl/cmd/realityctl/commands"
)

func main() {
	if err := run(); err != nil {
		// Reconcile outcomes carry their own exit code (validation
		// failed, rolled back, rollback failed); the message was
		// already logged or printed by the command.
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	return commands.Root().Execute(os.Args[1:])
}
