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

package device_test

import (
	"context"
	"errors"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peermgr/peermgr/peering"
	"github.com/peermgr/peermgr/peering/device"
	"github.com/peermgr/peermgr/pkg/bgp"
)

func staticOpener(d device.Driver) device.Factory {
	return func(*peering.Router, device.Auth, time.Duration) (device.Driver, error) {
		return d, nil
	}
}

func TestStaticDriverDryRunRepeatable(t *testing.T) {
	d := device.NewStaticDriver()
	d.Running = "hostname r1\n"

	for i := 0; i < 3; i++ {
		result, err := d.PushConfig(context.Background(), "hostname r2\n", false)
		require.NoError(t, err)
		assert.True(t, result.Changed)
		assert.NotEmpty(t, result.Diff)
		assert.Equal(t, "hostname r1\n", d.Running)
	}

	result, err := d.PushConfig(context.Background(), "hostname r2\n", true)
	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.Equal(t, "hostname r2\n", d.Running)

	result, err = d.PushConfig(context.Background(), "hostname r2\n", true)
	require.NoError(t, err)
	assert.False(t, result.Changed)
	assert.Empty(t, result.Diff)
}

func TestGatewayUnsupportedPlatform(t *testing.T) {
	g := device.NewGateway(time.Second, device.Auth{})
	router := &peering.Router{ID: 1, Hostname: "r1.example.net", Platform: "vms"}

	_, err := g.FetchSessionStates(context.Background(), router)
	assert.ErrorIs(t, err, peering.ErrUnsupportedPlatform)

	router.Platform = ""
	_, err = g.PushConfiguration(context.Background(), router, "config", false)
	assert.ErrorIs(t, err, peering.ErrUnsupportedPlatform)
}

func TestGatewayNoRouter(t *testing.T) {
	g := device.NewGateway(time.Second, device.Auth{})
	_, err := g.PushConfiguration(context.Background(), nil, "config", true)
	assert.ErrorIs(t, err, peering.ErrNoRouterConfigured)
}

func TestGatewayTranslatesFailures(t *testing.T) {
	d := device.NewStaticDriver()
	d.FailWith = context.DeadlineExceeded
	g := device.NewGateway(time.Second, device.Auth{},
		device.WithOpener(staticOpener(d)))
	router := &peering.Router{ID: 1, Hostname: "r1.example.net", Platform: "junos"}

	err := g.TestConnectivity(context.Background(), router)
	assert.ErrorIs(t, err, peering.ErrDeviceUnreachable)
}

// Two pushes against the same router must not interleave.
type sequencedDriver struct {
	*device.StaticDriver
	mu     sync.Mutex
	active int
	peak   int
}

func (d *sequencedDriver) PushConfig(ctx context.Context, config string,
	commit bool) (device.PushResult, error) {

	d.mu.Lock()
	d.active++
	if d.active > d.peak {
		d.peak = d.active
	}
	d.mu.Unlock()

	time.Sleep(20 * time.Millisecond)

	d.mu.Lock()
	d.active--
	d.mu.Unlock()
	return d.StaticDriver.PushConfig(ctx, config, commit)
}

func TestGatewaySerializesPerRouter(t *testing.T) {
	d := &sequencedDriver{StaticDriver: device.NewStaticDriver()}
	g := device.NewGateway(time.Second, device.Auth{},
		device.WithOpener(staticOpener(d)))
	router := &peering.Router{ID: 7, Hostname: "r7.example.net", Platform: "junos"}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := g.PushConfiguration(context.Background(), router, "c", true)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, d.peak)
}

func TestGatewayClearSession(t *testing.T) {
	d := device.NewStaticDriver()
	ip := netip.MustParseAddr("192.0.2.10")
	d.SetSession(ip, bgp.StateEstablished, 120)
	g := device.NewGateway(time.Second, device.Auth{},
		device.WithOpener(staticOpener(d)))
	router := &peering.Router{ID: 1, Hostname: "r1.example.net", Platform: "eos"}

	out, err := g.ClearSession(context.Background(), router, ip)
	require.NoError(t, err)
	assert.NotEmpty(t, out)

	sessions, err := g.FetchSessionStates(context.Background(), router)
	require.NoError(t, err)
	assert.Equal(t, bgp.StateIdle, sessions[ip].State)
	assert.Equal(t, []netip.Addr{ip}, d.Cleared)
}

func TestGatewayPassesThroughDomainErrors(t *testing.T) {
	d := device.NewStaticDriver()
	d.FailWith = errors.New("some device error")
	g := device.NewGateway(time.Second, device.Auth{},
		device.WithOpener(staticOpener(d)))
	router := &peering.Router{ID: 1, Hostname: "r1.example.net", Platform: "iosxr"}

	err := g.TestConnectivity(context.Background(), router)
	require.Error(t, err)
	assert.NotErrorIs(t, err, peering.ErrDeviceUnreachable)
}

func TestParsePlatforms(t *testing.T) {
	assert.Subset(t, device.Platforms(), []string{"junos", "iosxr", "eos"})
}
