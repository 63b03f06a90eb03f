// Copyright 2026 The Realityctl Authors
// SPDX-License-Identifier: Apache-2.0

package xrayconf

// defaultDocument is the unmanaged scaffolding used when no prior
// config exists: logging to /var/log/xray, the stats/policy/api wiring
// the bot's traffic accounting expects (gRPC API on 50051), direct and
// blackhole outbounds, and a private-address block rule.
const defaultDocument = `{
  "log": {
    "loglevel": "warning",
    "access": "/var/log/xray/access.log",
    "error": "/var/log/xray/error.log"
  },
  "api": {
    "tag": "api",
    "services": ["HandlerService", "LoggerService", "StatsService"]
  },
  "stats": {},
  "policy": {
    "levels": {
      "0": {"statsUserUplink": true, "statsUserDownlink": true}
    },
    "system": {"statsInboundUplink": true, "statsInboundDownlink": true}
  },
  "inbounds": [
    {
      "tag": "api",
      "listen": "127.0.0.1",
      "port": 50051,
      "protocol": "dokodemo-door",
      "settings": {"address": "127.0.0.1"}
    }
  ],
  "outbounds": [
    {"tag": "direct", "protocol": "freedom"},
    {"tag": "blocked", "protocol": "blackhole"}
  ],
  "routing": {
    "rules": [
      {"type": "field", "inboundTag": ["api"], "outboundTag": "api"},
      {"type": "field", "ip": ["geoip:private"], "outboundTag": "blocked"}
    ]
  }
}`
