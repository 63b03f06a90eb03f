// Copyright 2026 The Realityctl Authors
// SPDX-License-Identifier: Apache-2.0

package xrayconf

import (
	"encoding/json"
	"fmt"

	"github.com/Sanchoz2022/realityctl/lib/keygen"
)

// ListenProfile describes one managed inbound variant.
type ListenProfile struct {
	// Port the inbound listens on.
	Port int

	// Primary marks the main inbound. Exactly one profile must be
	// primary; secondaries are fallback ports.
	Primary bool
}

// Params are the managed values synthesis writes into the document.
type Params struct {
	KeyPair     keygen.KeyPair
	ShortIDs    keygen.ShortIDSet
	Dest        string
	ServerNames []string
	Listen      string
	Profiles    []ListenProfile
}

func (p Params) validate() error {
	if !keygen.ValidKey(p.KeyPair.PrivateKey) {
		return fmt.Errorf("private key is not a 43-character base64url string")
	}
	if err := p.ShortIDs.Validate(); err != nil {
		return err
	}
	if p.Dest == "" {
		return fmt.Errorf("dest must not be empty")
	}
	if len(p.ServerNames) == 0 {
		return fmt.Errorf("serverNames must list at least one SNI")
	}
	primaries := 0
	for _, profile := range p.Profiles {
		if profile.Port < 1 || profile.Port > 65535 {
			return fmt.Errorf("listen profile port %d out of range", profile.Port)
		}
		if profile.Primary {
			primaries++
		}
	}
	if primaries != 1 {
		return fmt.Errorf("listen profiles must have exactly one primary, got %d", primaries)
	}
	return nil
}

// managedTag returns the inbound tag for a profile: the bare prefix
// for the primary, prefix-port for secondaries.
func managedTag(profile ListenProfile) string {
	if profile.Primary {
		return ManagedTagPrefix
	}
	return fmt.Sprintf("%s-%d", ManagedTagPrefix, profile.Port)
}

// Synthesize builds a candidate document from the given parameters.
//
// When prior is non-nil, every unmanaged section — routing, outbounds,
// log, api, stats, policy, unknown top-level keys, and any inbound
// whose tag is not realityctl's — is carried over verbatim; so are
// unknown keys inside the managed inbounds themselves (clients,
// sniffing, whatever a future Xray adds). When prior is nil, the
// unmanaged scaffolding comes from fixed defaults.
//
// Synthesis is pure: identical inputs produce a byte-identical
// Encode() result. All randomness (short IDs) is the caller's.
func Synthesize(prior *Document, p Params) (*Document, error) {
	if p.Listen == "" {
		p.Listen = "0.0.0.0"
	}
	if err := p.validate(); err != nil {
		return nil, fmt.Errorf("synthesizing config: %w", err)
	}

	base := prior
	if base == nil {
		var err error
		base, err = Parse([]byte(defaultDocument))
		if err != nil {
			panic(fmt.Sprintf("parsing built-in default document: %v", err))
		}
	}

	root := make(map[string]json.RawMessage, len(base.root))
	for key, value := range base.root {
		root[key] = value
	}

	priorList, err := base.inboundList()
	if err != nil {
		return nil, err
	}

	// Index the prior managed inbounds by tag so rebuilt inbounds
	// inherit their unmanaged keys, and keep every foreign inbound in
	// its original relative order.
	priorManaged := make(map[string]map[string]json.RawMessage)
	var unmanaged []json.RawMessage
	for i, raw := range priorList {
		object, err := decodeObject(raw)
		if err != nil {
			return nil, fmt.Errorf("decoding inbound %d: %w", i, err)
		}
		tag := stringValue(object["tag"])
		if isManagedTag(tag) {
			priorManaged[tag] = object
		} else {
			unmanaged = append(unmanaged, raw)
		}
	}

	// Managed inbounds lead (profile order), foreign inbounds follow.
	inbounds := make([]json.RawMessage, 0, len(p.Profiles)+len(unmanaged))
	for _, profile := range p.Profiles {
		tag := managedTag(profile)
		built, err := buildManagedInbound(priorManaged[tag], p, profile, tag)
		if err != nil {
			return nil, err
		}
		inbounds = append(inbounds, built)
	}
	inbounds = append(inbounds, unmanaged...)
	root["inbounds"] = mustRaw(inbounds)

	return &Document{root: root}, nil
}

// buildManagedInbound writes the managed fields of one inbound,
// preserving every other key of the prior object at every level.
func buildManagedInbound(prior map[string]json.RawMessage, p Params, profile ListenProfile, tag string) (json.RawMessage, error) {
	inbound := make(map[string]json.RawMessage, len(prior)+5)
	for key, value := range prior {
		inbound[key] = value
	}

	inbound["tag"] = mustRaw(tag)
	inbound["listen"] = mustRaw(p.Listen)
	inbound["port"] = mustRaw(profile.Port)
	inbound["protocol"] = mustRaw("vless")
	if _, ok := inbound["settings"]; !ok {
		inbound["settings"] = json.RawMessage(`{"clients":[],"decryption":"none"}`)
	}

	stream, err := decodeObject(inbound["streamSettings"])
	if err != nil {
		return nil, fmt.Errorf("decoding streamSettings of %s: %w", tag, err)
	}
	stream["network"] = mustRaw("tcp")
	stream["security"] = mustRaw("reality")

	reality, err := decodeObject(stream["realitySettings"])
	if err != nil {
		return nil, fmt.Errorf("decoding realitySettings of %s: %w", tag, err)
	}
	if _, ok := reality["show"]; !ok {
		reality["show"] = mustRaw(false)
	}
	if _, ok := reality["xver"]; !ok {
		reality["xver"] = mustRaw(0)
	}
	reality["dest"] = mustRaw(p.Dest)
	reality["serverNames"] = mustRaw(p.ServerNames)
	reality["privateKey"] = mustRaw(p.KeyPair.PrivateKey)
	reality["shortIds"] = mustRaw([]string(p.ShortIDs))

	stream["realitySettings"] = mustRaw(reality)
	inbound["streamSettings"] = mustRaw(stream)

	return mustRaw(inbound), nil
}

// stringValue decodes a raw JSON string, returning "" for anything
// else.
func stringValue(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}
