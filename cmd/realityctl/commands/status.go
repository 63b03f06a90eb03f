// Copyright 2026 The Realityctl Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/Sanchoz2022/realityctl/lib/cli"
	"github.com/Sanchoz2022/realityctl/lib/envstore"
	"github.com/Sanchoz2022/realityctl/lib/revision"
)

func statusCommand() *cli.Command {
	var common commonFlags

	return &cli.Command{
		Name:    "status",
		Summary: "Report service health, active revision, and sync state",
		Description: "Status reports the systemd unit state, per-port reachability, the\n" +
			"active revision, whether the live config matches it byte-for-byte, and\n" +
			"which managed credential keys the .env file carries. Read-only.",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("status", pflag.ContinueOnError)
			common.register(flagSet)
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

			report, err := deps.Supervisor.Status(context.Background(), cfg.Reality.Ports())
			if err != nil {
				return err
			}
			fmt.Printf("unit:      %s (%s)\n", cfg.Service.Unit, report.State)
			for _, port := range cfg.Reality.Ports() {
				state := "closed"
				if report.Ports[port] {
					state = "open"
				}
				fmt.Printf("port:      %d %s\n", port, state)
			}

			if active, ok := deps.Store.Active(); ok {
				fmt.Printf("revision:  %s (applied %s)\n",
					active.ID, active.Timestamp.UTC().Format("2006-01-02T15:04:05Z"))
				fmt.Printf("config:    %s\n", configSyncState(cfg.Paths.ActiveConfig, active))
			} else {
				fmt.Printf("revision:  none (config not yet managed)\n")
			}

			values, err := deps.Env.Read()
			if err != nil {
				return err
			}
			var missing []string
			for _, key := range []string{
				envstore.KeyPrivateKey, envstore.KeyPublicKey,
				envstore.KeyShortIDs, envstore.KeyServerIP,
			} {
				if values[key] == "" {
					missing = append(missing, key)
				}
			}
			if len(missing) == 0 {
				fmt.Printf("env:       all managed keys present\n")
			} else {
				fmt.Printf("env:       missing %s\n", strings.Join(missing, ", "))
			}
			return nil
		},
	}
}

// configSyncState compares the live file against the active
// revision's recorded checksum.
func configSyncState(path string, active revision.Revision) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Sprintf("unreadable (%v)", err)
	}
	if revision.Checksum(data) == active.Checksum {
		return "in sync with active revision"
	}
	return "MODIFIED out-of-band since last apply"
}
