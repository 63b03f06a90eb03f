// Copyright 2026 The Realityctl Authors
// SPDX-License-Identifier: Apache-2.0

package keygen

import "strings"

// matcher is a pure text → (KeyPair, ok) format recognizer. Matchers
// are tried in order; the first to yield two well-formed keys wins.
type matcher func(output string) (KeyPair, bool)

// pairMatchers covers the known `xray x25519` output shapes, newest
// first. "Password" is the public key in the new format.
var pairMatchers = []matcher{
	labeledPair("PrivateKey:", "Password:"),
	labeledPair("Private key:", "Public key:"),
}

// publicLabels covers the labels under which a derived public key has
// appeared across versions of `xray x25519 -i`.
var publicLabels = []string{"Password:", "Public key:", "PublicKey:"}

// labeledPair builds a matcher for output carrying the two given line
// labels.
func labeledPair(privateLabel, publicLabel string) matcher {
	return func(output string) (KeyPair, bool) {
		privateKey, okPrivate := labeledValue(output, privateLabel)
		publicKey, okPublic := labeledValue(output, publicLabel)
		if !okPrivate || !okPublic {
			return KeyPair{}, false
		}
		return KeyPair{PrivateKey: privateKey, PublicKey: publicKey}, true
	}
}

// labeledValue scans output for a line starting with label and returns
// the first whitespace-delimited token after it, provided it is a
// well-formed key.
func labeledValue(output, label string) (string, bool) {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, label) {
			continue
		}
		value := strings.TrimSpace(strings.TrimPrefix(line, label))
		if i := strings.IndexAny(value, " \t"); i >= 0 {
			value = value[:i]
		}
		if ValidKey(value) {
			return value, true
		}
	}
	return "", false
}

// parseKeyPair applies the ordered matcher list to engine output.
func parseKeyPair(output string) (KeyPair, bool) {
	for _, match := range pairMatchers {
		if pair, ok := match(output); ok {
			return pair, true
		}
	}
	return KeyPair{}, false
}

// parsePublicKey extracts a derived public key from `xray x25519 -i`
// output, whichever label this engine version uses.
func parsePublicKey(output string) (string, bool) {
	for _, label := range publicLabels {
		if value, ok := labeledValue(output, label); ok {
			return value, true
		}
	}
	return "", false
}
