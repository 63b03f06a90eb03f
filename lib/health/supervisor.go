// Copyright 2026 The Realityctl Authors
// SPDX-License-Identifier: Apache-2.0

package health

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Sanchoz2022/realityctl/lib/clock"
)

// FailureClass says why a restart did not produce a healthy service,
// which determines whether rolling back the config can help.
type FailureClass string

const (
	// ClassConfigRejected means the unit failed outright: the engine
	// refused the config at startup. Rollback advised.
	ClassConfigRejected FailureClass = "config-rejected"

	// ClassSlowStart means the unit reports active but the listen
	// ports never came up within the verification window. Rollback
	// advised: the config may be subtly broken.
	ClassSlowStart FailureClass = "slow-start"

	// ClassPortConflict means another process holds a managed port.
	// Rollback would not free the port, so it is not advised.
	ClassPortConflict FailureClass = "port-conflict"
)

// logTailLines is how much journal context a failure carries.
const logTailLines = 50

// CheckError is a failed restart verification.
type CheckError struct {
	Class   FailureClass
	Detail  string
	LogTail string
}

func (e *CheckError) Error() string {
	return fmt.Sprintf("service unhealthy after restart (%s): %s", e.Class, e.Detail)
}

// RollbackAdvised reports whether restoring the previous config is
// likely to recover the service.
func (e *CheckError) RollbackAdvised() bool {
	return e.Class != ClassPortConflict
}

// SupervisorOptions tune the verification loop.
type SupervisorOptions struct {
	// Attempts bounds the poll loop. Default: 3.
	Attempts int

	// Backoff is the delay between poll attempts. Default: 2s.
	Backoff time.Duration

	Clock  clock.Clock
	Logger *slog.Logger
}

// Supervisor restarts the managed unit and verifies its health.
type Supervisor struct {
	systemd  Systemd
	prober   Prober
	attempts int
	backoff  time.Duration
	clock    clock.Clock
	logger   *slog.Logger
}

// NewSupervisor returns a Supervisor over the given unit control and
// port prober.
func NewSupervisor(systemd Systemd, prober Prober, options SupervisorOptions) *Supervisor {
	if options.Attempts < 1 {
		options.Attempts = 3
	}
	if options.Backoff <= 0 {
		options.Backoff = 2 * time.Second
	}
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	return &Supervisor{
		systemd:  systemd,
		prober:   prober,
		attempts: options.Attempts,
		backoff:  options.Backoff,
		clock:    options.Clock,
		logger:   options.Logger,
	}
}

// RestartAndVerify stops the unit, checks the managed ports are free,
// starts the unit, and polls until it is active with every port
// accepting connections. Returns nil on health, a *CheckError on a
// classified failure, or the context error when ctx expires first.
func (s *Supervisor) RestartAndVerify(ctx context.Context, ports []int) error {
	if err := s.systemd.Stop(ctx); err != nil {
		return fmt.Errorf("stopping unit: %w", err)
	}

	// With the unit down, a port that still answers belongs to
	// someone else. Starting would fail and rollback would not help.
	for _, port := range ports {
		if s.prober.Probe(ctx, port) {
			return &CheckError{
				Class:  ClassPortConflict,
				Detail: fmt.Sprintf("port %d is held by another process", port),
			}
		}
	}

	startErr := s.systemd.Start(ctx)
	if startErr != nil {
		s.logger.Warn("unit start reported an error", "error", startErr)
	}

	for attempt := 1; attempt <= s.attempts; attempt++ {
		healthy, err := s.check(ctx, ports)
		if err != nil {
			return err
		}
		if healthy {
			s.logger.Info("service healthy", "attempt", attempt)
			return nil
		}
		if attempt < s.attempts {
			select {
			case <-s.clock.After(s.backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return s.classify(ctx, startErr)
}

// check reports whether the unit is active and every port answers.
func (s *Supervisor) check(ctx context.Context, ports []int) (bool, error) {
	state, err := s.systemd.State(ctx)
	if err != nil {
		return false, err
	}
	if state != UnitActive {
		return false, nil
	}
	for _, port := range ports {
		if !s.prober.Probe(ctx, port) {
			return false, nil
		}
	}
	return true, nil
}

// classify builds the CheckError after the poll loop is exhausted.
func (s *Supervisor) classify(ctx context.Context, startErr error) error {
	tail, tailErr := s.systemd.LogTail(ctx, logTailLines)
	if tailErr != nil {
		s.logger.Warn("reading unit log tail failed", "error", tailErr)
	}

	state, err := s.systemd.State(ctx)
	if err != nil {
		return err
	}

	if state == UnitFailed || state == UnitInactive || startErr != nil {
		detail := "unit did not reach active state"
		if startErr != nil {
			detail = startErr.Error()
		}
		return &CheckError{Class: ClassConfigRejected, Detail: detail, LogTail: tail}
	}
	return &CheckError{
		Class:   ClassSlowStart,
		Detail:  "unit is active but managed ports never came up",
		LogTail: tail,
	}
}

// Status is a point-in-time health report.
type Status struct {
	State UnitState
	Ports map[int]bool
}

// Status reports the unit state and per-port reachability without
// restarting anything.
func (s *Supervisor) Status(ctx context.Context, ports []int) (Status, error) {
	state, err := s.systemd.State(ctx)
	if err != nil {
		return Status{}, err
	}
	status := Status{State: state, Ports: make(map[int]bool, len(ports))}
	for _, port := range ports {
		status.Ports[port] = s.prober.Probe(ctx, port)
	}
	return status, nil
}
