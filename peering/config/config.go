// Copyright 2025 The peermgr authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config describes the peermgr service configuration, loaded from
// a TOML file.
package config

import (
	"io"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/peermgr/peermgr/pkg/bgp"
	"github.com/peermgr/peermgr/pkg/log"
	"github.com/peermgr/peermgr/pkg/private/serrors"
)

// Duration is a time.Duration that (un)marshals as a string like "30s".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return serrors.WrapStr("parsing duration", err, "value", string(text))
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Duration returns the standard library representation.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Config is the root peermgr configuration.
type Config struct {
	Logging   log.Config `toml:"logging,omitempty"`
	API       API        `toml:"api,omitempty"`
	DB        DB         `toml:"db,omitempty"`
	PeeringDB PeeringDB  `toml:"peeringdb,omitempty"`
	Peering   Peering    `toml:"peering,omitempty"`
}

// API configures the management API listener.
type API struct {
	// Addr is the listen address of the management API.
	Addr string `toml:"addr,omitempty"`
	// Token authorizes requests. Requests without it are rejected.
	Token string `toml:"token,omitempty"`
	// AllowedOrigins is the CORS allow-list. Empty allows none.
	AllowedOrigins []string `toml:"allowed_origins,omitempty"`
}

// DB configures the sqlite database.
type DB struct {
	// Connection is the path of the database file.
	Connection string `toml:"connection,omitempty"`
}

// PeeringDB configures the registry client.
type PeeringDB struct {
	BaseURL  string   `toml:"base_url,omitempty"`
	APIKey   string   `toml:"api_key,omitempty"`
	CacheTTL Duration `toml:"cache_ttl,omitempty"`
}

// SSH is the management credential set used for every router.
type SSH struct {
	Username       string `toml:"username,omitempty"`
	Password       string `toml:"password,omitempty"`
	PrivateKeyFile string `toml:"private_key_file,omitempty"`
}

// Peering configures the operator's network and the device interactions.
type Peering struct {
	// ASN is the operator's AS number.
	ASN bgp.ASN `toml:"asn"`
	// DeviceTimeout bounds every single device interaction.
	DeviceTimeout Duration `toml:"device_timeout,omitempty"`
	// PollInterval is the period of the background session-state poll.
	// Zero disables the poller.
	PollInterval Duration `toml:"poll_interval,omitempty"`
	// SyncInterval is the period of the registry refresh of keep-synced
	// AS records. Zero disables the refresh.
	SyncInterval Duration `toml:"sync_interval,omitempty"`
	SSH          SSH      `toml:"ssh,omitempty"`
}

// InitDefaults fills in defaults for unset values.
func (cfg *Config) InitDefaults() {
	cfg.Logging.InitDefaults()
	if cfg.API.Addr == "" {
		cfg.API.Addr = ":8480"
	}
	if cfg.DB.Connection == "" {
		cfg.DB.Connection = "peermgr.db"
	}
	if cfg.PeeringDB.CacheTTL == 0 {
		cfg.PeeringDB.CacheTTL = Duration(15 * time.Minute)
	}
	if cfg.Peering.DeviceTimeout == 0 {
		cfg.Peering.DeviceTimeout = Duration(30 * time.Second)
	}
	if cfg.Peering.PollInterval == 0 {
		cfg.Peering.PollInterval = Duration(5 * time.Minute)
	}
	if cfg.Peering.SyncInterval == 0 {
		cfg.Peering.SyncInterval = Duration(24 * time.Hour)
	}
}

// Validate checks the configuration is usable.
func (cfg *Config) Validate() error {
	if err := cfg.Logging.Validate(); err != nil {
		return err
	}
	if cfg.Peering.ASN == 0 {
		return serrors.New("peering.asn must be set")
	}
	if cfg.API.Token == "" {
		return serrors.New("api.token must be set")
	}
	if cfg.Peering.DeviceTimeout.Duration() < 0 ||
		cfg.Peering.PollInterval.Duration() < 0 ||
		cfg.Peering.SyncInterval.Duration() < 0 {
		return serrors.New("intervals must not be negative")
	}
	return nil
}

// Load reads, defaults and validates the configuration at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, serrors.WrapStr("reading config", err, "file", path)
	}
	var cfg Config
	if err := toml.Unmarshal(raw, &cfg); err != nil {
		return nil, serrors.WrapStr("parsing config", err, "file", path)
	}
	cfg.InitDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, serrors.WrapStr("validating config", err, "file", path)
	}
	return &cfg, nil
}

// Sample is a documented configuration with the defaults spelled out.
const Sample = `[logging]
# Console logging level: debug|info|error. (default info)
level = "info"
# Encoding of the logs: human|json. (default human)
format = "human"

[api]
# Address the management API listens on. (default :8480)
addr = ":8480"
# Bearer token authorizing management API requests. Required.
token = ""
# CORS allow-list for browser clients. (default none)
allowed_origins = []

[db]
# Path of the sqlite database file. (default peermgr.db)
connection = "peermgr.db"

[peeringdb]
# Base URL of the registry API. (default https://www.peeringdb.com/api)
base_url = "https://www.peeringdb.com/api"
# API key for authenticated registry access. (optional)
api_key = ""
# How long registry answers are cached. (default 15m)
cache_ttl = "15m"

[peering]
# The operator's AS number. Required.
asn = 64500
# Upper bound for a single device interaction. (default 30s)
device_timeout = "30s"
# Period of the background session-state poll, 0 disables. (default 5m)
poll_interval = "5m"
# Period of the registry refresh of keep-synced AS records, 0 disables.
# (default 24h)
sync_interval = "24h"

[peering.ssh]
# Management credentials used for every router.
username = "peermgr"
password = ""
private_key_file = ""
`

// WriteSample writes the sample configuration.
func WriteSample(dst io.Writer) error {
	_, err := io.WriteString(dst, Sample)
	return err
}
