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

// Package device provides a uniform interface to managed routers: fetching
// live BGP session state, pushing rendered configuration with an explicit
// dry-run/commit distinction, reachability tests and session clears.
// Platform support is a registration table of drivers keyed by the router's
// platform identifier.
package device

import (
	"context"
	"net/netip"
	"sort"
	"sync"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/peermgr/peermgr/peering"
	"github.com/peermgr/peermgr/pkg/bgp"
	"github.com/peermgr/peermgr/pkg/private/serrors"
)

// BGPSession is the live state of one session as reported by a device.
type BGPSession struct {
	State            bgp.State
	ReceivedPrefixes int64
}

// PushResult is the outcome of a configuration push.
type PushResult struct {
	// Changed reports whether the device configuration differs (dry run)
	// or was changed (commit).
	Changed bool
	// Diff is the device-reported difference the push applies or would
	// apply.
	Diff string
}

// Driver talks to one router. Implementations are not required to be safe
// for concurrent use; the gateway serializes access per router.
type Driver interface {
	// FetchBGPSessions returns the live BGP sessions keyed by peer IP.
	FetchBGPSessions(ctx context.Context) (map[netip.Addr]BGPSession, error)
	// PushConfig loads the configuration on the device. With commit false
	// the change is computed and discarded; the device is left untouched.
	PushConfig(ctx context.Context, config string, commit bool) (PushResult, error)
	// TestConnection verifies the device answers.
	TestConnection(ctx context.Context) error
	// ClearBGPSession forcibly resets the session to the given peer.
	ClearBGPSession(ctx context.Context, ip netip.Addr) (string, error)
	// Close releases the connection to the device.
	Close() error
}

// Auth carries the management credentials shared by all drivers.
type Auth struct {
	Username       string
	Password       string
	PrivateKeyFile string
}

// Factory creates a driver connected to the given router. Connecting must
// not take longer than timeout.
type Factory func(router *peering.Router, auth Auth,
	timeout time.Duration) (Driver, error)

var drivers = struct {
	sync.RWMutex
	m map[string]Factory
}{m: make(map[string]Factory)}

// Register makes a driver available under the given platform identifier.
// It panics when the platform is already taken.
func Register(platform string, factory Factory) {
	drivers.Lock()
	defer drivers.Unlock()
	if _, dup := drivers.m[platform]; dup {
		panic("device: duplicate driver registration: " + platform)
	}
	drivers.m[platform] = factory
}

// Platforms returns the registered platform identifiers sorted.
func Platforms() []string {
	drivers.RLock()
	defer drivers.RUnlock()
	platforms := make([]string, 0, len(drivers.m))
	for platform := range drivers.m {
		platforms = append(platforms, platform)
	}
	sort.Strings(platforms)
	return platforms
}

// Open connects a driver for the router's platform. It fails with
// peering.ErrUnsupportedPlatform before any network contact when the
// platform is unset or has no registered driver.
func Open(router *peering.Router, auth Auth,
	timeout time.Duration) (Driver, error) {

	if router.Platform == "" {
		return nil, serrors.JoinNoStack(peering.ErrUnsupportedPlatform, nil,
			"router", router.Hostname, "reason", "platform unset")
	}
	drivers.RLock()
	factory, ok := drivers.m[router.Platform]
	drivers.RUnlock()
	if !ok {
		return nil, serrors.JoinNoStack(peering.ErrUnsupportedPlatform, nil,
			"router", router.Hostname, "platform", router.Platform)
	}
	return factory(router, auth, timeout)
}

// Diff renders the difference between two configurations in patch form.
func Diff(before, after string) string {
	if before == after {
		return ""
	}
	dmp := diffmatchpatch.New()
	return dmp.PatchToText(dmp.PatchMake(before, after))
}
