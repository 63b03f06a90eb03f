// Copyright 2026 The Realityctl Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/Sanchoz2022/realityctl/lib/cli"
	"github.com/Sanchoz2022/realityctl/lib/reconcile"
)

func reconcileCommand() *cli.Command {
	var (
		common      commonFlags
		rotateKeys  bool
		shortIDs    []string
		force       bool
		lockTimeout time.Duration
	)

	return &cli.Command{
		Name:    "reconcile",
		Summary: "Converge key material, config, service, and credential store",
		Description: "Reconcile runs the full convergence: resolve the keypair (reusing an\n" +
			"existing private key unless --rotate-keys), synthesize the config\n" +
			"preserving everything realityctl does not manage, validate it, apply it\n" +
			"atomically, restart and verify the service, and sync the .env file.\n\n" +
			"Exit codes: 0 converged, 1 validation failed (nothing touched),\n" +
			"2 rolled back or drift detected, 3 rollback failed.",
		Examples: []cli.Example{
			{Description: "converge to the configured state", Command: "realityctl reconcile"},
			{Description: "rotate the Reality keypair and short IDs", Command: "realityctl reconcile --rotate-keys"},
			{Description: "overwrite hand edits in the credential store", Command: "realityctl reconcile --force"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("reconcile", pflag.ContinueOnError)
			common.register(flagSet)
			flagSet.BoolVar(&rotateKeys, "rotate-keys", false,
				"generate a fresh keypair and short ID set")
			flagSet.StringArrayVar(&shortIDs, "short-id", nil,
				"explicit short ID (repeatable; empty string allowed for the wildcard)")
			flagSet.BoolVar(&force, "force", false,
				"overwrite credential store values that drifted since the last sync")
			flagSet.DurationVar(&lockTimeout, "lock-timeout", 30*time.Second,
				"how long to wait for a concurrent run to finish")
			return flagSet
		},
		Run: func(args []string) error {
			cfg, logger, err := common.setup()
			if err != nil {
				return err
			}
			deps, err := buildDeps(cfg, logger)
			if err != nil {
				return err
			}

			result, err := reconcile.Run(context.Background(), deps, reconcile.Options{
				RotateKeys:  rotateKeys,
				ShortIDs:    shortIDs,
				Force:       force,
				LockTimeout: lockTimeout,
			})
			if err != nil {
				return err
			}

			fmt.Printf("revision:    %s\n", result.Revision.ID)
			fmt.Printf("public key:  %s\n", result.KeyPair.PublicKey)
			fmt.Printf("short ids:   %v\n", []string(result.ShortIDs))
			if result.EnvChanged {
				fmt.Printf("env file:    updated\n")
			} else {
				fmt.Printf("env file:    already in sync\n")
			}
			return nil
		},
	}
}
