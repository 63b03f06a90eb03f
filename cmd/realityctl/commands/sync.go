// Copyright 2026 The Realityctl Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/Sanchoz2022/realityctl/lib/cli"
	"github.com/Sanchoz2022/realityctl/lib/envstore"
	"github.com/Sanchoz2022/realityctl/lib/process"
	"github.com/Sanchoz2022/realityctl/lib/xrayconf"
)

func syncCommand() *cli.Command {
	var (
		common commonFlags
		force  bool
	)

	return &cli.Command{
		Name:    "sync",
		Summary: "Sync credentials from the active config into the .env file",
		Description: "Sync reads the Reality identity out of the active config, re-derives\n" +
			"the public key, and writes the managed keys into the bot's .env file.\n" +
			"Values changed by hand since the last sync stop the run unless --force.",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("sync", pflag.ContinueOnError)
			common.register(flagSet)
			flagSet.BoolVar(&force, "force", false,
				"overwrite credential store values that drifted since the last sync")
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

			data, err := os.ReadFile(cfg.Paths.ActiveConfig)
			if err != nil {
				return fmt.Errorf("reading active config: %w", err)
			}
			document, err := xrayconf.Parse(data)
			if err != nil {
				return fmt.Errorf("parsing active config: %w", err)
			}
			privateKey := document.PrivateKey()
			if privateKey == "" {
				return fmt.Errorf("active config has no managed Reality inbound to sync from")
			}

			publicKey, err := deps.Keys.DerivePublicKey(context.Background(), privateKey)
			if err != nil {
				return err
			}

			changed, err := deps.Env.Sync(envstore.Record{
				PrivateKey: privateKey,
				PublicKey:  publicKey,
				ShortIDs:   document.ShortIDs(),
				ServerIP:   cfg.Reality.ServerIP,
			}, force)
			if err != nil {
				if _, ok := err.(*envstore.DriftError); ok {
					return process.Exit(process.ExitRolledBack, err)
				}
				return err
			}

			if changed {
				fmt.Printf("env file:  updated\n")
			} else {
				fmt.Printf("env file:  already in sync\n")
			}
			return nil
		},
	}
}
