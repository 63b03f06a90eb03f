// Copyright 2026 The Realityctl Authors
// SPDX-License-Identifier: Apache-2.0

package health

import (
	"context"
	"net"
	"strconv"
	"time"
)

// Prober checks whether a local TCP port accepts connections.
type Prober interface {
	Probe(ctx context.Context, port int) bool
}

// dialProber connects to the loopback address. Reality inbounds bind
// 0.0.0.0, so loopback reaches them without traversing the network.
type dialProber struct {
	timeout time.Duration
}

// NewProber returns a Prober that dials 127.0.0.1:<port> with the
// given per-attempt timeout.
func NewProber(timeout time.Duration) Prober {
	return dialProber{timeout: timeout}
}

func (p dialProber) Probe(ctx context.Context, port int) bool {
	dialer := net.Dialer{Timeout: p.timeout}
	connection, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		return false
	}
	connection.Close()
	return true
}
