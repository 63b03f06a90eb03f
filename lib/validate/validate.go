// Copyright 2026 The Realityctl Authors
// SPDX-License-Identifier: Apache-2.0

// Package validate checks a candidate Xray config in two phases
// without touching the live one.
//
// Phase 1 (structural) parses the candidate and asserts the managed
// fields realityctl is responsible for are well-formed. Phase 2
// (semantic) hands a private temporary copy to the engine's own
// dry-run mode (`xray run -test`), which is the only authority on
// whether the engine will accept the file at startup. The live active
// file is never read for mutation nor written here.
package validate

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/Sanchoz2022/realityctl/lib/keygen"
	"github.com/Sanchoz2022/realityctl/lib/xrayconf"
)

// Phase identifies which validation phase rejected a candidate.
type Phase string

const (
	PhaseStructural Phase = "structural"
	PhaseSemantic   Phase = "semantic"
)

// ValidationError describes a rejected candidate.
type ValidationError struct {
	Phase  Phase
	Detail string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s validation failed: %s", e.Phase, e.Detail)
	}
	return fmt.Sprintf("%s validation failed: %v", e.Phase, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Engine abstracts the Xray executable's dry-run capability.
type Engine interface {
	// Test runs the engine's config test against the file at path and
	// returns its combined output. A non-nil error means the engine
	// rejected the file (nonzero exit).
	Test(ctx context.Context, path string) (string, error)
}

// execEngine shells out to `xray run -test -c <path>`.
type execEngine struct {
	binary string
}

func (e execEngine) Test(ctx context.Context, path string) (string, error) {
	var output bytes.Buffer
	command := exec.CommandContext(ctx, e.binary, "run", "-test", "-c", path)
	command.Stdout = &output
	command.Stderr = &output

	err := command.Run()
	return output.String(), err
}

// Validator validates candidate documents.
type Validator struct {
	engine Engine
	logger *slog.Logger
}

// New returns a Validator using the given Xray binary for the
// semantic phase.
func New(xrayBinary string, logger *slog.Logger) *Validator {
	return NewWithEngine(execEngine{binary: xrayBinary}, logger)
}

// NewWithEngine returns a Validator with an injected Engine.
func NewWithEngine(engine Engine, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{engine: engine, logger: logger}
}

// Validate checks candidate structurally, then semantically via the
// engine's dry run. Returns nil or a *ValidationError.
func (v *Validator) Validate(ctx context.Context, candidate []byte) error {
	document, err := xrayconf.Parse(candidate)
	if err != nil {
		return &ValidationError{Phase: PhaseStructural, Err: err}
	}
	if err := checkManaged(document); err != nil {
		return &ValidationError{Phase: PhaseStructural, Detail: err.Error()}
	}

	// The engine only takes a file path, so the candidate goes to a
	// private temporary copy, removed afterwards.
	directory, err := os.MkdirTemp("", "realityctl-validate-")
	if err != nil {
		return &ValidationError{Phase: PhaseSemantic, Err: fmt.Errorf("creating temporary directory: %w", err)}
	}
	defer os.RemoveAll(directory)

	temporaryPath := filepath.Join(directory, "candidate.json")
	if err := os.WriteFile(temporaryPath, candidate, 0600); err != nil {
		return &ValidationError{Phase: PhaseSemantic, Err: fmt.Errorf("writing temporary candidate: %w", err)}
	}

	output, err := v.engine.Test(ctx, temporaryPath)
	if err != nil {
		detail := strings.TrimSpace(output)
		if detail == "" {
			detail = err.Error()
		}
		v.logger.Debug("engine rejected candidate", "detail", detail)
		return &ValidationError{Phase: PhaseSemantic, Detail: detail, Err: err}
	}

	return nil
}

// checkManaged asserts the managed fields are well-formed: at least
// one managed inbound, each with a listen address, a valid port, a
// 43-character private key, a non-empty short ID set, and the Reality
// handshake parameters.
func checkManaged(document *xrayconf.Document) error {
	managed, err := document.ManagedInbounds()
	if err != nil {
		return err
	}
	if len(managed) == 0 {
		return fmt.Errorf("no managed Reality inbound present")
	}

	for _, inbound := range managed {
		reality := inbound.StreamSettings.RealitySettings
		switch {
		case inbound.Listen == "":
			return fmt.Errorf("inbound %s: listen address missing", inbound.Tag)
		case inbound.Port < 1 || inbound.Port > 65535:
			return fmt.Errorf("inbound %s: port %d out of range", inbound.Tag, inbound.Port)
		case inbound.Protocol != "vless":
			return fmt.Errorf("inbound %s: protocol %q, want vless", inbound.Tag, inbound.Protocol)
		case inbound.StreamSettings.Security != "reality":
			return fmt.Errorf("inbound %s: security %q, want reality", inbound.Tag, inbound.StreamSettings.Security)
		case !keygen.ValidKey(reality.PrivateKey):
			return fmt.Errorf("inbound %s: private key is not a 43-character base64url string", inbound.Tag)
		case reality.Dest == "":
			return fmt.Errorf("inbound %s: realitySettings.dest missing", inbound.Tag)
		case len(reality.ServerNames) == 0:
			return fmt.Errorf("inbound %s: realitySettings.serverNames empty", inbound.Tag)
		}
		if err := keygen.ShortIDSet(reality.ShortIDs).Validate(); err != nil {
			return fmt.Errorf("inbound %s: %w", inbound.Tag, err)
		}
	}
	return nil
}
