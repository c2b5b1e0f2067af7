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

package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peermgr/peermgr/peering/config"
	"github.com/peermgr/peermgr/pkg/bgp"
)

func TestSampleParses(t *testing.T) {
	var cfg config.Config
	require.NoError(t, toml.Unmarshal([]byte(config.Sample), &cfg))
	cfg.InitDefaults()

	// The sample spells out exactly the defaults.
	var defaulted config.Config
	defaulted.InitDefaults()
	defaulted.Peering.ASN = 64500
	defaulted.Peering.SSH.Username = "peermgr"
	defaulted.API.AllowedOrigins = []string{}
	assert.Equal(t, defaulted, cfg)
}

func TestSampleValidatesWithToken(t *testing.T) {
	var cfg config.Config
	require.NoError(t, toml.Unmarshal([]byte(config.Sample), &cfg))
	cfg.InitDefaults()
	assert.Error(t, cfg.Validate(), "sample has no token")

	cfg.API.Token = "secret"
	assert.NoError(t, cfg.Validate())
}

func TestInitDefaults(t *testing.T) {
	var cfg config.Config
	cfg.InitDefaults()
	assert.Equal(t, ":8480", cfg.API.Addr)
	assert.Equal(t, "peermgr.db", cfg.DB.Connection)
	assert.Equal(t, 15*time.Minute, cfg.PeeringDB.CacheTTL.Duration())
	assert.Equal(t, 30*time.Second, cfg.Peering.DeviceTimeout.Duration())
	assert.Equal(t, 5*time.Minute, cfg.Peering.PollInterval.Duration())
	assert.Equal(t, 24*time.Hour, cfg.Peering.SyncInterval.Duration())
}

func TestValidate(t *testing.T) {
	var cfg config.Config
	cfg.InitDefaults()
	cfg.API.Token = "secret"
	assert.Error(t, cfg.Validate(), "asn unset")

	cfg.Peering.ASN = 64500
	assert.NoError(t, cfg.Validate())

	cfg.API.Token = ""
	assert.Error(t, cfg.Validate(), "token unset")
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "peermgr.toml")
	content := `
[api]
token = "secret"

[peering]
asn = 64500
device_timeout = "10s"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, bgp.ASN(64500), cfg.Peering.ASN)
	assert.Equal(t, 10*time.Second, cfg.Peering.DeviceTimeout.Duration())
	assert.Equal(t, ":8480", cfg.API.Addr)

	_, err = config.Load(filepath.Join(dir, "missing.toml"))
	assert.Error(t, err)
}
