// Copyright 2026 The Realityctl Authors
// SPDX-License-Identifier: Apache-2.0

// Package vless renders VLESS Reality share links in the form client
// apps import.
package vless

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Params describe one client connection.
type Params struct {
	// UUID is the client identity.
	UUID string

	// Address is the server's public IP or hostname.
	Address string

	// Port is the Reality inbound port.
	Port int

	// SNI is the server name presented in the TLS handshake.
	SNI string

	// PublicKey is the Reality public key (the "pbk" parameter).
	PublicKey string

	// ShortID is the short ID the client presents. May be empty for
	// the wildcard entry.
	ShortID string

	// Fingerprint is the uTLS fingerprint. Default: chrome.
	Fingerprint string

	// Label becomes the URL fragment, shown as the connection name in
	// client apps.
	Label string
}

func (p Params) validate() error {
	switch {
	case p.UUID == "":
		return fmt.Errorf("uuid must not be empty")
	case p.Address == "":
		return fmt.Errorf("address must not be empty")
	case p.Port < 1 || p.Port > 65535:
		return fmt.Errorf("port %d out of range", p.Port)
	case p.SNI == "":
		return fmt.Errorf("sni must not be empty")
	case p.PublicKey == "":
		return fmt.Errorf("public key must not be empty")
	}
	return nil
}

// Link renders the vless:// share URL. Query parameters appear in the
// order client apps conventionally emit them, so links are stable and
// diffable.
func Link(p Params) (string, error) {
	if err := p.validate(); err != nil {
		return "", fmt.Errorf("building share link: %w", err)
	}
	if p.Fingerprint == "" {
		p.Fingerprint = "chrome"
	}

	host := p.Address
	if strings.Contains(host, ":") {
		// Bare IPv6 literals need brackets in the authority.
		host = "[" + host + "]"
	}

	query := strings.Join([]string{
		"encryption=none",
		"flow=xtls-rprx-vision",
		"security=reality",
		"sni=" + url.QueryEscape(p.SNI),
		"fp=" + url.QueryEscape(p.Fingerprint),
		"pbk=" + url.QueryEscape(p.PublicKey),
		"sid=" + url.QueryEscape(p.ShortID),
		"type=tcp",
	}, "&")

	link := "vless://" + p.UUID + "@" + host + ":" + strconv.Itoa(p.Port) + "?" + query
	if p.Label != "" {
		link += "#" + url.PathEscape(p.Label)
	}
	return link, nil
}
