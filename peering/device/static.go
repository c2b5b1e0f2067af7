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
	"net/netip"
	"sync"

	"github.com/peermgr/peermgr/pkg/bgp"
)

// StaticDriver is an in-memory driver used in tests and lab setups. It
// holds a session table and a running configuration, honors the
// dry-run/commit contract, and can be forced to fail.
type StaticDriver struct {
	mu sync.Mutex
	// Sessions is the live session table the driver reports.
	Sessions map[netip.Addr]BGPSession
	// Running is the device configuration.
	Running string
	// FailWith, when set, makes every call fail with this error.
	FailWith error
	// Cleared records the session clears received, in order.
	Cleared []netip.Addr
}

var _ Driver = (*StaticDriver)(nil)

// NewStaticDriver creates an empty static driver.
func NewStaticDriver() *StaticDriver {
	return &StaticDriver{Sessions: make(map[netip.Addr]BGPSession)}
}

// SetSession sets one live session entry.
func (d *StaticDriver) SetSession(ip netip.Addr, state bgp.State, prefixes int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Sessions[ip] = BGPSession{State: state, ReceivedPrefixes: prefixes}
}

// FetchBGPSessions implements Driver.
func (d *StaticDriver) FetchBGPSessions(
	ctx context.Context) (map[netip.Addr]BGPSession, error) {

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailWith != nil {
		return nil, d.FailWith
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sessions := make(map[netip.Addr]BGPSession, len(d.Sessions))
	for ip, session := range d.Sessions {
		sessions[ip] = session
	}
	return sessions, nil
}

// PushConfig implements Driver.
func (d *StaticDriver) PushConfig(ctx context.Context, config string,
	commit bool) (PushResult, error) {

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailWith != nil {
		return PushResult{}, d.FailWith
	}
	if err := ctx.Err(); err != nil {
		return PushResult{}, err
	}
	result := PushResult{
		Changed: d.Running != config,
		Diff:    Diff(d.Running, config),
	}
	if commit && result.Changed {
		d.Running = config
	}
	return result, nil
}

// TestConnection implements Driver.
func (d *StaticDriver) TestConnection(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailWith != nil {
		return d.FailWith
	}
	return ctx.Err()
}

// ClearBGPSession implements Driver.
func (d *StaticDriver) ClearBGPSession(ctx context.Context,
	ip netip.Addr) (string, error) {

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailWith != nil {
		return "", d.FailWith
	}
	if _, ok := d.Sessions[ip]; ok {
		d.Sessions[ip] = BGPSession{State: bgp.StateIdle}
	}
	d.Cleared = append(d.Cleared, ip)
	return "session cleared", nil
}

// Close implements Driver. The static driver keeps its state across
// open/close cycles.
func (d *StaticDriver) Close() error { return nil }
