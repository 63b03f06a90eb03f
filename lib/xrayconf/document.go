// Copyright 2026 The Realityctl Authors
// SPDX-License-Identifier: Apache-2.0

// Package xrayconf models the Xray JSON configuration document.
//
// The document is held as a tree of json.RawMessage values: managed
// fields (the Reality inbounds and their key material) are edited
// structurally, everything else — routing rules, outbounds, logging,
// stats, unknown keys at any level — passes through untouched. This is
// what makes synthesis safe against config features realityctl does
// not know about.
//
// Input is tolerant: Xray itself accepts JSONC (comments, trailing
// commas), so Parse strips those before decoding. Output is canonical
// two-space-indented JSON with sorted keys, so synthesis is
// deterministic byte-for-byte given identical inputs.
package xrayconf

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/jsonc"
)

// ManagedTagPrefix marks inbounds owned by realityctl. Inbounds with
// any other tag are preserved verbatim across synthesis.
const ManagedTagPrefix = "vless-reality"

// Document is a parsed Xray config.
type Document struct {
	root map[string]json.RawMessage
}

// Parse decodes an Xray config document, accepting JSONC.
func Parse(data []byte) (*Document, error) {
	plain := jsonc.ToJSON(data)

	var root map[string]json.RawMessage
	if err := json.Unmarshal(plain, &root); err != nil {
		return nil, fmt.Errorf("parsing config document: %w", err)
	}
	if root == nil {
		root = make(map[string]json.RawMessage)
	}
	return &Document{root: root}, nil
}

// Encode serializes the document as two-space-indented JSON with a
// trailing newline. Key order is sorted (encoding/json map order), so
// the same document always encodes to the same bytes.
func (d *Document) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(d.root, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding config document: %w", err)
	}
	return append(data, '\n'), nil
}

// Section returns the raw value of a top-level section, for callers
// that need to compare unmanaged content (tests, drift checks).
func (d *Document) Section(name string) (json.RawMessage, bool) {
	raw, ok := d.root[name]
	return raw, ok
}

// Inbound is a read-only typed view of one inbound.
type Inbound struct {
	Tag      string `json:"tag"`
	Listen   string `json:"listen"`
	Port     int    `json:"port"`
	Protocol string `json:"protocol"`

	StreamSettings struct {
		Network         string `json:"network"`
		Security        string `json:"security"`
		RealitySettings struct {
			Dest        string   `json:"dest"`
			ServerNames []string `json:"serverNames"`
			PrivateKey  string   `json:"privateKey"`
			ShortIDs    []string `json:"shortIds"`
		} `json:"realitySettings"`
	} `json:"streamSettings"`
}

// Managed reports whether this inbound is owned by realityctl.
func (i Inbound) Managed() bool { return isManagedTag(i.Tag) }

func isManagedTag(tag string) bool {
	return tag == ManagedTagPrefix || strings.HasPrefix(tag, ManagedTagPrefix+"-")
}

// Inbounds decodes typed views of every inbound, in document order.
func (d *Document) Inbounds() ([]Inbound, error) {
	raws, err := d.inboundList()
	if err != nil {
		return nil, err
	}
	inbounds := make([]Inbound, 0, len(raws))
	for i, raw := range raws {
		var inbound Inbound
		if err := json.Unmarshal(raw, &inbound); err != nil {
			return nil, fmt.Errorf("decoding inbound %d: %w", i, err)
		}
		inbounds = append(inbounds, inbound)
	}
	return inbounds, nil
}

// ManagedInbounds returns the typed views of realityctl-owned
// inbounds, primary first (document order).
func (d *Document) ManagedInbounds() ([]Inbound, error) {
	all, err := d.Inbounds()
	if err != nil {
		return nil, err
	}
	var managed []Inbound
	for _, inbound := range all {
		if inbound.Managed() {
			managed = append(managed, inbound)
		}
	}
	return managed, nil
}

// Ports returns the listen ports of the managed inbounds.
func (d *Document) Ports() ([]int, error) {
	managed, err := d.ManagedInbounds()
	if err != nil {
		return nil, err
	}
	ports := make([]int, 0, len(managed))
	for _, inbound := range managed {
		ports = append(ports, inbound.Port)
	}
	return ports, nil
}

// PrivateKey returns the Reality private key of the primary managed
// inbound, or "" when the document has no managed inbound.
func (d *Document) PrivateKey() string {
	managed, err := d.ManagedInbounds()
	if err != nil || len(managed) == 0 {
		return ""
	}
	return managed[0].StreamSettings.RealitySettings.PrivateKey
}

// ShortIDs returns the short ID set of the primary managed inbound.
func (d *Document) ShortIDs() []string {
	managed, err := d.ManagedInbounds()
	if err != nil || len(managed) == 0 {
		return nil
	}
	return managed[0].StreamSettings.RealitySettings.ShortIDs
}

// inboundList returns the raw inbound array.
func (d *Document) inboundList() ([]json.RawMessage, error) {
	raw, ok := d.root["inbounds"]
	if !ok {
		return nil, nil
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("decoding inbounds array: %w", err)
	}
	return list, nil
}

// decodeObject unwraps a JSON object into a key → raw value map. A
// missing (nil) raw decodes to an empty map.
func decodeObject(raw json.RawMessage) (map[string]json.RawMessage, error) {
	if raw == nil {
		return make(map[string]json.RawMessage), nil
	}
	var object map[string]json.RawMessage
	if err := json.Unmarshal(raw, &object); err != nil {
		return nil, err
	}
	if object == nil {
		object = make(map[string]json.RawMessage)
	}
	return object, nil
}

// mustRaw marshals a plain value that cannot fail (strings, numbers,
// bools, string slices).
func mustRaw(value any) json.RawMessage {
	data, err := json.Marshal(value)
	if err != nil {
		panic(fmt.Sprintf("marshaling %T: %v", value, err))
	}
	return data
}

// equalJSON reports whether two raw values carry the same JSON
// content, ignoring formatting.
func equalJSON(a, b json.RawMessage) bool {
	var compactA, compactB bytes.Buffer
	if err := json.Compact(&compactA, a); err != nil {
		return false
	}
	if err := json.Compact(&compactB, b); err != nil {
		return false
	}
	return bytes.Equal(compactA.Bytes(), compactB.Bytes())
}
