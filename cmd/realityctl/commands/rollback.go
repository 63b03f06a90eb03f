// Copyright 2026 The Realityctl Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/Sanchoz2022/realityctl/lib/cli"
	"github.com/Sanchoz2022/realityctl/lib/lockfile"
	"github.com/Sanchoz2022/realityctl/lib/process"
	"github.com/Sanchoz2022/realityctl/lib/revision"
)

func rollbackCommand() *cli.Command {
	var (
		common      commonFlags
		lockTimeout time.Duration
	)

	return &cli.Command{
		Name:    "rollback",
		Summary: "Restore the previous config revision and restart the service",
		Description: "Rollback restores the most recent backup snapshot over the active\n" +
			"config, archives the replaced config for inspection, and restarts the\n" +
			"service on the restored revision.",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("rollback", pflag.ContinueOnError)
			common.register(flagSet)
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

			lock, err := lockfile.Acquire(cfg.Paths.LockFile, lockTimeout, nil)
			if err != nil {
				return err
			}
			defer lock.Release()

			restored, err := deps.Store.Rollback(cfg.Paths.ActiveConfig, "manual rollback requested")
			if err != nil {
				var rollbackError *revision.RollbackError
				if errors.As(err, &rollbackError) {
					return process.Exit(process.ExitRollbackFailed, err)
				}
				return err
			}
			fmt.Printf("restored:  %s\n", restored.ID)

			ctx, cancel := context.WithTimeout(context.Background(),
				time.Duration(cfg.Health.TimeoutSeconds)*time.Second)
			defer cancel()
			if err := deps.Supervisor.RestartAndVerify(ctx, cfg.Reality.Ports()); err != nil {
				return fmt.Errorf("service unhealthy on restored revision: %w", err)
			}
			fmt.Printf("service:   healthy\n")
			return nil
		},
	}
}
