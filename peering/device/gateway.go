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

package device

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/peermgr/peermgr/peering"
	"github.com/peermgr/peermgr/pkg/private/serrors"
)

// Gateway is the single entry point the core uses to talk to routers. It
// selects the driver by platform, serializes all calls against the same
// router, and bounds every call with a timeout. Timeouts and network
// failures surface as peering.ErrDeviceUnreachable.
//
// The zero value is not usable, construct with NewGateway.
type Gateway struct {
	timeout time.Duration
	auth    Auth
	open    Factory

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// Option configures the gateway.
type Option func(*Gateway)

// WithOpener overrides how drivers are obtained. Used by tests to inject
// fake drivers.
func WithOpener(open Factory) Option {
	return func(g *Gateway) { g.open = open }
}

// NewGateway creates a gateway. Every driver call is bounded by timeout.
func NewGateway(timeout time.Duration, auth Auth, opts ...Option) *Gateway {
	g := &Gateway{
		timeout: timeout,
		auth:    auth,
		open:    Open,
		locks:   make(map[int64]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// routerLock returns the mutex serializing operations on one router.
func (g *Gateway) routerLock(routerID int64) *sync.Mutex {
	g.mu.Lock()
	defer g.mu.Unlock()
	lock, ok := g.locks[routerID]
	if !ok {
		lock = &sync.Mutex{}
		g.locks[routerID] = lock
	}
	return lock
}

// FetchSessionStates returns the live BGP sessions on the router keyed by
// peer IP.
func (g *Gateway) FetchSessionStates(ctx context.Context,
	router *peering.Router) (map[netip.Addr]BGPSession, error) {

	var sessions map[netip.Addr]BGPSession
	err := g.withDriver(ctx, router, func(ctx context.Context, d Driver) error {
		var err error
		sessions, err = d.FetchBGPSessions(ctx)
		return err
	})
	return sessions, err
}

// PushConfiguration loads the given configuration text on the router. A
// dry run (commit false) has no effect on the device and reports the diff
// that would apply; a commit is atomic from the caller's perspective.
func (g *Gateway) PushConfiguration(ctx context.Context, router *peering.Router,
	config string, commit bool) (PushResult, error) {

	var result PushResult
	err := g.withDriver(ctx, router, func(ctx context.Context, d Driver) error {
		var err error
		result, err = d.PushConfig(ctx, config, commit)
		return err
	})
	return result, err
}

// TestConnectivity verifies the router answers. A nil error means
// reachable.
func (g *Gateway) TestConnectivity(ctx context.Context, router *peering.Router) error {
	return g.withDriver(ctx, router, func(ctx context.Context, d Driver) error {
		return d.TestConnection(ctx)
	})
}

// ClearSession forcibly resets the BGP session to the given peer on the
// router and returns the device's response.
func (g *Gateway) ClearSession(ctx context.Context, router *peering.Router,
	ip netip.Addr) (string, error) {

	var result string
	err := g.withDriver(ctx, router, func(ctx context.Context, d Driver) error {
		var err error
		result, err = d.ClearBGPSession(ctx, ip)
		return err
	})
	return result, err
}

// withDriver serializes on the router, opens its driver, runs the call
// within the gateway timeout, and translates transport failures.
func (g *Gateway) withDriver(ctx context.Context, router *peering.Router,
	call func(context.Context, Driver) error) error {

	if router == nil {
		return serrors.JoinNoStack(peering.ErrNoRouterConfigured, nil)
	}
	lock := g.routerLock(router.ID)
	lock.Lock()
	defer lock.Unlock()

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	driver, err := g.open(router, g.auth, g.timeout)
	if err != nil {
		return translate(err, router)
	}
	defer driver.Close()
	if err := call(ctx, driver); err != nil {
		return translate(err, router)
	}
	return nil
}

func translate(err error, router *peering.Router) error {
	switch {
	case errors.Is(err, peering.ErrUnsupportedPlatform),
		errors.Is(err, peering.ErrDeviceUnreachable):
		return err
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		serrors.IsTimeout(err),
		isNetError(err):
		return serrors.Join(peering.ErrDeviceUnreachable, err,
			"router", router.Hostname)
	default:
		return err
	}
}

func isNetError(err error) bool {
	var netErr net.Error
	var opErr *net.OpError
	return errors.As(err, &netErr) || errors.As(err, &opErr)
}
