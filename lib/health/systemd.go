// Copyright 2026 The Realityctl Authors
// SPDX-License-Identifier: Apache-2.0

// Package health restarts the managed proxy service and verifies it
// actually came back: the systemd unit must report active and every
// managed listen port must accept connections. Failures are
// classified so the caller knows whether rolling back the config
// would help.
package health

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// UnitState is the systemd ActiveState of the managed unit.
type UnitState string

const (
	UnitActive   UnitState = "active"
	UnitInactive UnitState = "inactive"
	UnitFailed   UnitState = "failed"
	UnitUnknown  UnitState = "unknown"
)

// Systemd is the control surface over the managed unit.
type Systemd interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	State(ctx context.Context) (UnitState, error)

	// LogTail returns the last few journal lines of the unit, for
	// inclusion in failure diagnostics.
	LogTail(ctx context.Context, lines int) (string, error)
}

// execSystemd shells out to systemctl and journalctl.
type execSystemd struct {
	unit       string
	systemctl  string
	journalctl string
}

// NewSystemd returns a Systemd controlling the given unit through the
// systemctl and journalctl executables.
func NewSystemd(unit, systemctl, journalctl string) Systemd {
	return &execSystemd{unit: unit, systemctl: systemctl, journalctl: journalctl}
}

// run executes an external command and returns stdout. Stderr is
// captured separately and included in error messages on failure.
func run(ctx context.Context, binary string, args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	command := exec.CommandContext(ctx, binary, args...)
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return "", fmt.Errorf("%s %s: %w (stderr: %s)",
			binary, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

func (s *execSystemd) Start(ctx context.Context) error {
	_, err := run(ctx, s.systemctl, "start", s.unit)
	return err
}

func (s *execSystemd) Stop(ctx context.Context) error {
	_, err := run(ctx, s.systemctl, "stop", s.unit)
	return err
}

func (s *execSystemd) State(ctx context.Context) (UnitState, error) {
	// is-active exits nonzero for anything but "active", so the exit
	// code is not an error here; the printed state is the answer.
	var stdout bytes.Buffer
	command := exec.CommandContext(ctx, s.systemctl, "is-active", s.unit)
	command.Stdout = &stdout
	err := command.Run()

	state := strings.TrimSpace(stdout.String())
	switch state {
	case "active", "activating":
		return UnitActive, nil
	case "inactive", "deactivating":
		return UnitInactive, nil
	case "failed":
		return UnitFailed, nil
	}
	if err != nil && state == "" {
		return UnitUnknown, fmt.Errorf("querying unit %s state: %w", s.unit, err)
	}
	return UnitUnknown, nil
}

func (s *execSystemd) LogTail(ctx context.Context, lines int) (string, error) {
	output, err := run(ctx, s.journalctl,
		"-u", s.unit, "-n", strconv.Itoa(lines), "--no-pager", "--output", "short-iso")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(output), nil
}
