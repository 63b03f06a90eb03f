// Copyright 2026 The Realityctl Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"log/slog"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/Sanchoz2022/realityctl/lib/config"
	"github.com/Sanchoz2022/realityctl/lib/envstore"
	"github.com/Sanchoz2022/realityctl/lib/health"
	"github.com/Sanchoz2022/realityctl/lib/keygen"
	"github.com/Sanchoz2022/realityctl/lib/reconcile"
	"github.com/Sanchoz2022/realityctl/lib/revision"
	"github.com/Sanchoz2022/realityctl/lib/validate"
)

// probeTimeout is the per-port dial timeout for health probes.
const probeTimeout = 2 * time.Second

// commonFlags are shared by every command that touches the deployment.
type commonFlags struct {
	configPath string
	verbose    bool
}

func (f *commonFlags) register(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&f.configPath, "config", "",
		"config file path (default: $REALITYCTL_CONFIG)")
	flagSet.BoolVarP(&f.verbose, "verbose", "v", false,
		"enable debug logging")
}

// setup loads the config and builds the structured logger. Logs go to
// stderr so stdout stays parseable command output.
func (f *commonFlags) setup() (*config.Config, *slog.Logger, error) {
	level := slog.LevelInfo
	if f.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// buildDeps wires the full reconcile dependency set from config.
func buildDeps(cfg *config.Config, logger *slog.Logger) (reconcile.Deps, error) {
	store, err := revision.Open(cfg.Paths.StateDir, cfg.Revisions.RetainBackups, nil, logger)
	if err != nil {
		return reconcile.Deps{}, err
	}

	systemd := health.NewSystemd(cfg.Service.Unit, cfg.Service.SystemctlBinary, cfg.Service.JournalctlBinary)
	supervisor := health.NewSupervisor(systemd, health.NewProber(probeTimeout), health.SupervisorOptions{
		Attempts: cfg.Health.Attempts,
		Backoff:  time.Duration(cfg.Health.BackoffSeconds) * time.Second,
		Logger:   logger,
	})

	return reconcile.Deps{
		Config:     cfg,
		Keys:       keygen.New(cfg.Service.XrayBinary, logger),
		Validator:  validate.New(cfg.Service.XrayBinary, logger),
		Store:      store,
		Supervisor: supervisor,
		Env:        envstore.New(cfg.Paths.EnvFile, cfg.Paths.StateDir, nil, logger),
		Logger:     logger,
	}, nil
}
