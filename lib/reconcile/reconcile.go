// Copyright 2026 The Realityctl Authors
// SPDX-License-Identifier: Apache-2.0

// Package reconcile drives the full convergence run: key material,
// config synthesis, validation, atomic apply, service verification,
// and credential store sync, in that order.
//
// The run is transactional in spirit: nothing observable mutates
// until the candidate has passed both validation phases, and any
// config-caused service failure after apply triggers a rollback to
// the previous good revision. The whole run holds an exclusive flock
// so concurrent invocations (operator plus timer unit, say) cannot
// interleave.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/Sanchoz2022/realityctl/lib/clock"
	"github.com/Sanchoz2022/realityctl/lib/config"
	"github.com/Sanchoz2022/realityctl/lib/envstore"
	"github.com/Sanchoz2022/realityctl/lib/health"
	"github.com/Sanchoz2022/realityctl/lib/keygen"
	"github.com/Sanchoz2022/realityctl/lib/lockfile"
	"github.com/Sanchoz2022/realityctl/lib/process"
	"github.com/Sanchoz2022/realityctl/lib/revision"
	"github.com/Sanchoz2022/realityctl/lib/validate"
	"github.com/Sanchoz2022/realityctl/lib/xrayconf"
)

// Deps are the collaborators a run needs. All of them are required
// except Clock and Logger.
type Deps struct {
	Config     *config.Config
	Keys       *keygen.Generator
	Validator  *validate.Validator
	Store      *revision.Store
	Supervisor *health.Supervisor
	Env        *envstore.Store
	Clock      clock.Clock
	Logger     *slog.Logger
}

// Options tune one run.
type Options struct {
	// RotateKeys forces a fresh keypair and short ID set even when the
	// active config already carries valid ones.
	RotateKeys bool

	// ShortIDs overrides the short ID set. Empty means reuse the
	// active set, or generate a wildcard plus one random ID.
	ShortIDs []string

	// Force overrides the credential store drift guard.
	Force bool

	// LockTimeout bounds the wait for a concurrent run to finish.
	// Zero makes a single non-blocking attempt.
	LockTimeout time.Duration
}

// Result reports what a successful run converged to.
type Result struct {
	Revision   revision.Revision
	KeyPair    keygen.KeyPair
	ShortIDs   keygen.ShortIDSet
	EnvChanged bool
}

// Run executes one reconcile. The returned error is a
// *process.ExitError for the outcomes operators branch on:
// validation failure (1), rolled back or drift (2), rollback
// failure (3).
func Run(ctx context.Context, deps Deps, options Options) (Result, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	lock, err := lockfile.Acquire(deps.Config.Paths.LockFile, options.LockTimeout, deps.Clock)
	if err != nil {
		return Result{}, err
	}
	defer lock.Release()

	prior, err := readActive(deps.Config.Paths.ActiveConfig)
	if err != nil {
		return Result{}, process.Exit(process.ExitValidationFailed, err)
	}

	keyPair, shortIDs, err := resolveIdentity(ctx, deps, options, prior)
	if err != nil {
		return Result{}, process.Exit(process.ExitValidationFailed, err)
	}

	candidate, err := synthesize(deps.Config, prior, keyPair, shortIDs)
	if err != nil {
		return Result{}, process.Exit(process.ExitValidationFailed, err)
	}

	draft, err := deps.Store.NewDraft(candidate)
	if err != nil {
		return Result{}, err
	}

	if err := deps.Validator.Validate(ctx, candidate); err != nil {
		if discardErr := deps.Store.Discard(draft.ID, err.Error()); discardErr != nil {
			logger.Warn("discarding rejected draft failed", "revision", draft.ID, "error", discardErr)
		}
		return Result{}, process.Exit(process.ExitValidationFailed, err)
	}
	if err := deps.Store.MarkValidated(draft.ID); err != nil {
		return Result{}, err
	}

	if err := deps.Store.Apply(draft.ID, deps.Config.Paths.ActiveConfig); err != nil {
		if applyError, ok := err.(*revision.ApplyError); ok {
			if applyError.RolledBack() {
				return Result{}, process.Exit(process.ExitRolledBack, applyError)
			}
			return Result{}, process.Exit(process.ExitRollbackFailed, applyError)
		}
		return Result{}, err
	}

	if err := verifyService(ctx, deps, logger); err != nil {
		return Result{}, err
	}

	envChanged, err := syncCredentials(deps, keyPair, shortIDs, options.Force)
	if err != nil {
		return Result{}, err
	}

	result := Result{
		Revision:   mustFindActive(deps.Store),
		KeyPair:    keyPair,
		ShortIDs:   shortIDs,
		EnvChanged: envChanged,
	}
	logger.Info("reconcile converged",
		"revision", result.Revision.ID,
		"public_key", keyPair.PublicKey,
		"env_changed", envChanged)
	return result, nil
}

// readActive parses the live config, or returns nil when none exists.
// An unreadable or unparseable active file aborts the run: clobbering
// a file we cannot understand would destroy whatever it holds.
func readActive(path string) (*xrayconf.Document, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading active config: %w", err)
	}
	document, err := xrayconf.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("active config %s is not parseable; repair or remove it: %w", path, err)
	}
	return document, nil
}

// resolveIdentity decides the keypair and short ID set for this run.
// An existing private key is kept (public key re-derived, never
// regenerated) unless rotation is requested.
func resolveIdentity(ctx context.Context, deps Deps, options Options, prior *xrayconf.Document) (keygen.KeyPair, keygen.ShortIDSet, error) {
	var keyPair keygen.KeyPair

	existing := ""
	if prior != nil {
		existing = prior.PrivateKey()
	}

	switch {
	case !options.RotateKeys && keygen.ValidKey(existing):
		publicKey, err := deps.Keys.DerivePublicKey(ctx, existing)
		if err != nil {
			return keygen.KeyPair{}, nil, err
		}
		keyPair = keygen.KeyPair{PrivateKey: existing, PublicKey: publicKey}
	default:
		pair, err := deps.Keys.Generate(ctx)
		if err != nil {
			return keygen.KeyPair{}, nil, err
		}
		keyPair = pair
	}

	var shortIDs keygen.ShortIDSet
	switch {
	case len(options.ShortIDs) > 0:
		shortIDs = keygen.ShortIDSet(options.ShortIDs)
	case !options.RotateKeys && prior != nil && len(prior.ShortIDs()) > 0:
		shortIDs = keygen.ShortIDSet(prior.ShortIDs())
	default:
		// Wildcard entry plus one random ID, the set new deployments
		// start with.
		shortIDs = keygen.ShortIDSet{"", keygen.DeriveShortID()}
	}
	if err := shortIDs.Validate(); err != nil {
		return keygen.KeyPair{}, nil, err
	}

	return keyPair, shortIDs, nil
}

// synthesize builds and encodes the candidate document.
func synthesize(cfg *config.Config, prior *xrayconf.Document, keyPair keygen.KeyPair, shortIDs keygen.ShortIDSet) ([]byte, error) {
	profiles := make([]xrayconf.ListenProfile, 0, len(cfg.Reality.ListenProfiles))
	for _, profile := range cfg.Reality.ListenProfiles {
		profiles = append(profiles, xrayconf.ListenProfile{Port: profile.Port, Primary: profile.Primary})
	}

	document, err := xrayconf.Synthesize(prior, xrayconf.Params{
		KeyPair:     keyPair,
		ShortIDs:    shortIDs,
		Dest:        cfg.Reality.Dest,
		ServerNames: cfg.Reality.ServerNames,
		Listen:      cfg.Reality.Listen,
		Profiles:    profiles,
	})
	if err != nil {
		return nil, err
	}
	return document.Encode()
}

// verifyService restarts the unit and maps health failures to exit
// semantics: config-caused failures roll back (and the restored
// config is restarted best-effort), a port conflict does not.
func verifyService(ctx context.Context, deps Deps, logger *slog.Logger) error {
	timeout := time.Duration(deps.Config.Health.TimeoutSeconds) * time.Second
	verifyCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ports := deps.Config.Reality.Ports()
	err := deps.Supervisor.RestartAndVerify(verifyCtx, ports)
	if err == nil {
		return nil
	}

	checkError, ok := err.(*health.CheckError)
	if !ok {
		return err
	}
	if checkError.LogTail != "" {
		logger.Error("service unhealthy", "class", checkError.Class, "log_tail", checkError.LogTail)
	}

	if !checkError.RollbackAdvised() {
		// The config is not the problem; rolling back would not free
		// the port.
		return process.Exit(process.ExitRolledBack, checkError)
	}

	restored, rollbackErr := deps.Store.Rollback(deps.Config.Paths.ActiveConfig, checkError.Error())
	if rollbackErr != nil {
		return process.Exit(process.ExitRollbackFailed, rollbackErr)
	}
	logger.Warn("rolled back to previous revision", "revision", restored.ID)

	// Bring the service back up on the restored config. Best effort:
	// the run already failed, this only limits the outage.
	restartCtx, cancelRestart := context.WithTimeout(ctx, timeout)
	defer cancelRestart()
	if restartErr := deps.Supervisor.RestartAndVerify(restartCtx, ports); restartErr != nil {
		logger.Error("restart on restored config failed", "error", restartErr)
	}

	return process.Exit(process.ExitRolledBack, checkError)
}

// syncCredentials propagates the converged identity into the .env
// file. Drift maps to the rolled-back exit code: the system is not in
// the converged state the operator asked for.
func syncCredentials(deps Deps, keyPair keygen.KeyPair, shortIDs keygen.ShortIDSet, force bool) (bool, error) {
	changed, err := deps.Env.Sync(envstore.Record{
		PrivateKey: keyPair.PrivateKey,
		PublicKey:  keyPair.PublicKey,
		ShortIDs:   shortIDs,
		ServerIP:   deps.Config.Reality.ServerIP,
	}, force)
	if err != nil {
		if _, ok := err.(*envstore.DriftError); ok {
			return false, process.Exit(process.ExitRolledBack, err)
		}
		return false, err
	}
	return changed, nil
}

func mustFindActive(store *revision.Store) revision.Revision {
	active, _ := store.Active()
	return active
}
