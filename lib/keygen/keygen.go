// Copyright 2026 The Realityctl Authors
// SPDX-License-Identifier: Apache-2.0

// Package keygen produces and validates Reality key material by
// driving the Xray executable. The keypair itself is never computed
// here — X25519 is delegated to `xray x25519` so the keys realityctl
// deploys are exactly the keys the engine accepts.
//
// The executable's output format has changed across Xray versions.
// Old builds print "Private key:" / "Public key:"; newer builds print
// "PrivateKey:" / "Password:" (where "Password" is the public key).
// Parsing is an ordered list of pure format matchers tried in
// sequence, so supporting a future format is one more matcher, with
// no change to calling code.
package keygen

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"
	"strings"
)

// KeyPair is a Reality X25519 keypair in the 43-character URL-safe
// base64 form Xray prints and consumes.
type KeyPair struct {
	PrivateKey string
	PublicKey  string
}

// keyPattern matches a raw 32-byte value in unpadded URL-safe base64.
var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{43}$`)

// ValidKey reports whether s has the shape of a Reality key.
func ValidKey(s string) bool { return keyPattern.MatchString(s) }

// GenerationError means no valid keypair was obtainable from the
// engine. RawOutput carries the unparseable engine output for
// diagnostics; it is empty when the executable itself failed.
type GenerationError struct {
	Op        string
	RawOutput string
	Err       error
}

func (e *GenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: unrecognized key generator output: %q", e.Op, e.RawOutput)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Runner abstracts the Xray executable for tests.
type Runner interface {
	// Run executes the engine with the given arguments and returns
	// its stdout.
	Run(ctx context.Context, args ...string) (string, error)
}

// execRunner invokes a local executable, capturing stderr separately
// so failures carry the diagnostic text.
type execRunner struct {
	binary string
}

func (r execRunner) Run(ctx context.Context, args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	command := exec.CommandContext(ctx, r.binary, args...)
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return "", fmt.Errorf("%s %s: %w (stderr: %s)",
			r.binary, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// Generator produces key material via the engine executable.
type Generator struct {
	runner Runner
	logger *slog.Logger
}

// New returns a Generator driving the given Xray binary.
func New(xrayBinary string, logger *slog.Logger) *Generator {
	return NewWithRunner(execRunner{binary: xrayBinary}, logger)
}

// NewWithRunner returns a Generator with an injected Runner.
func NewWithRunner(runner Runner, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{runner: runner, logger: logger}
}

// Generate produces a fresh keypair via `xray x25519`.
func (g *Generator) Generate(ctx context.Context) (KeyPair, error) {
	output, err := g.runner.Run(ctx, "x25519")
	if err != nil {
		return KeyPair{}, &GenerationError{Op: "generating keypair", Err: err}
	}

	pair, ok := parseKeyPair(output)
	if !ok {
		return KeyPair{}, &GenerationError{Op: "generating keypair", RawOutput: output}
	}
	g.logger.Debug("generated keypair", "public_key", pair.PublicKey)
	return pair, nil
}

// DerivePublicKey re-derives the public key for an existing private
// key via `xray x25519 -i`. Used when a deployment already has a
// private key fixed: the pair must stay related, so this never falls
// back to generating a fresh unrelated pair.
func (g *Generator) DerivePublicKey(ctx context.Context, privateKey string) (string, error) {
	if !ValidKey(privateKey) {
		return "", &GenerationError{Op: "deriving public key", Err: fmt.Errorf("private key is not a 43-character base64url string")}
	}

	output, err := g.runner.Run(ctx, "x25519", "-i", privateKey)
	if err != nil {
		return "", &GenerationError{Op: "deriving public key", Err: err}
	}

	publicKey, ok := parsePublicKey(output)
	if !ok {
		return "", &GenerationError{Op: "deriving public key", RawOutput: output}
	}
	g.logger.Debug("derived public key", "public_key", publicKey)
	return publicKey, nil
}

// DeriveShortID returns a fresh 16-character lowercase hex short ID
// from a cryptographically strong random source.
func DeriveShortID() string {
	var raw [8]byte
	if _, err := rand.Read(raw[:]); err != nil {
		// crypto/rand never fails on supported platforms.
		panic(fmt.Sprintf("reading random bytes: %v", err))
	}
	return hex.EncodeToString(raw[:])
}
