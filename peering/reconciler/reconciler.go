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

// Package reconciler keeps the modeled peering state aligned with the
// registry and the live routers: it discovers candidate sessions, polls
// observed BGP state, imports sessions configured out-of-band, and
// refreshes AS records from the registry.
package reconciler

import (
	"context"
	"errors"
	"net/netip"
	"time"

	"github.com/peermgr/peermgr/peering"
	"github.com/peermgr/peermgr/peering/device"
	"github.com/peermgr/peermgr/peeringdb"
	"github.com/peermgr/peermgr/pkg/bgp"
	"github.com/peermgr/peermgr/pkg/log"
	"github.com/peermgr/peermgr/pkg/private/serrors"
	"github.com/peermgr/peermgr/private/storage"
)

// Registry is the peering registry surface the reconciler consumes.
type Registry interface {
	LookupNetwork(ctx context.Context, asn bgp.ASN) (*peeringdb.Network, error)
	NetworkIXLANs(ctx context.Context, asn bgp.ASN) ([]peeringdb.NetworkIXLAN, error)
	ExchangeLANs(ctx context.Context, ixID int64) ([]peeringdb.NetworkIXLAN, error)
	ExchangePrefixes(ctx context.Context, ixID int64) ([]peeringdb.IXPrefix, error)
	AvailablePeers(ctx context.Context, ixID int64) ([]peeringdb.PeerRecord, error)
}

// Gateway is the device surface the reconciler consumes.
type Gateway interface {
	FetchSessionStates(ctx context.Context,
		router *peering.Router) (map[netip.Addr]device.BGPSession, error)
	TestConnectivity(ctx context.Context, router *peering.Router) error
	ClearSession(ctx context.Context, router *peering.Router,
		ip netip.Addr) (string, error)
}

// Reconciler ties storage, registry and device gateway together.
type Reconciler struct {
	db       storage.DB
	registry Registry
	gateway  Gateway
	localASN bgp.ASN
}

// New creates a reconciler for the operator's AS.
func New(db storage.DB, registry Registry, gateway Gateway,
	localASN bgp.ASN) *Reconciler {

	return &Reconciler{
		db:       db,
		registry: registry,
		gateway:  gateway,
		localASN: localASN,
	}
}

// SynchronizeWithPeeringDB refreshes the stored AS record from the
// registry: name, IRR AS-SET and prefix limits. ErrNotFound is returned
// when the registry has no record for the ASN.
func (r *Reconciler) SynchronizeWithPeeringDB(ctx context.Context,
	asn bgp.ASN) (*peering.AutonomousSystem, error) {

	as, err := r.db.AutonomousSystem(ctx, asn)
	if err != nil {
		return nil, err
	}
	network, err := r.registry.LookupNetwork(ctx, asn)
	if err != nil {
		return nil, err
	}
	as.Name = network.Name
	as.IRRASSet = network.IRRASSet
	as.IPv4MaxPrefixes = network.InfoPrefixes4
	as.IPv6MaxPrefixes = network.InfoPrefixes6
	as.PeeringDBID = network.ID
	as.LastSynchronized = time.Now().UTC()
	if err := r.db.UpdateAutonomousSystem(ctx, as); err != nil {
		return nil, err
	}
	metrics.syncTotal.Inc()
	return as, nil
}

// SynchronizeExchange refreshes the exchange's peering LAN prefixes from
// the registry. An exchange not linked to the registry cannot be
// synchronized and fails with ErrNotFound.
func (r *Reconciler) SynchronizeExchange(ctx context.Context,
	exchangeID int64) (*peering.InternetExchange, error) {

	ix, err := r.db.Exchange(ctx, exchangeID)
	if err != nil {
		return nil, err
	}
	if ix.PeeringDBID == 0 {
		return nil, serrors.JoinNoStack(peering.ErrNotFound, nil,
			"exchange", ix.Slug, "reason", "no registry identifier")
	}
	prefixes, err := r.registry.ExchangePrefixes(ctx, ix.PeeringDBID)
	if err != nil {
		return nil, err
	}
	for _, prefix := range prefixes {
		if _, err := netip.ParsePrefix(prefix.Prefix); err != nil {
			log.FromCtx(ctx).Debug("Skipping malformed registry prefix",
				"exchange", ix.Slug, "prefix", prefix.Prefix)
			continue
		}
		switch prefix.Protocol {
		case "IPv4":
			ix.IPv4Prefix = prefix.Prefix
		case "IPv6":
			ix.IPv6Prefix = prefix.Prefix
		}
	}
	if err := r.db.UpdateExchange(ctx, ix); err != nil {
		return nil, err
	}
	metrics.ixSyncTotal.Inc()
	return ix, nil
}

// FindPotentialSessions creates, for every exchange the peer shares with
// the operator according to the registry, disabled idle sessions for the
// peer's advertised addresses that have no session yet. The operation is
// idempotent: sessions are keyed by (exchange, peer ASN, IP). It returns
// the sessions created in this run.
func (r *Reconciler) FindPotentialSessions(ctx context.Context,
	asn bgp.ASN) ([]*peering.InternetExchangePeeringSession, error) {

	lans, err := r.registry.NetworkIXLANs(ctx, asn)
	if err != nil {
		return nil, err
	}
	exchanges, err := r.exchangesByRegistryID(ctx)
	if err != nil {
		return nil, err
	}

	var created []*peering.InternetExchangePeeringSession
	var as *peering.AutonomousSystem
	for _, lan := range lans {
		ix, ok := exchanges[lan.IXID]
		if !ok {
			continue
		}
		for _, ip := range lan.Addrs() {
			_, err := r.db.ExchangeSessionByKey(ctx, ix.ID, asn, ip)
			switch {
			case err == nil:
				continue
			case !errors.Is(err, peering.ErrNotFound):
				return created, err
			}
			if as == nil {
				if as, _, err = r.ensureAS(ctx, asn); err != nil {
					return created, err
				}
			}
			session := &peering.InternetExchangePeeringSession{
				ExchangeID:    ix.ID,
				ASID:          as.ID,
				IP:            ip,
				IsRouteServer: lan.IsRSPeer,
				Enabled:       false,
				BGPState:      bgp.StateIdle,
			}
			if err := r.db.InsertExchangeSession(ctx, session); err != nil {
				return created, err
			}
			created = append(created, session)
		}
	}
	metrics.discoveryTotal.Inc()
	metrics.discoveredSessions.Add(float64(len(created)))
	return created, nil
}

// PollExchange overwrites the observed state of every session on the
// exchange with what the exchange's router reports. Sessions absent on
// the device become idle; sessions only the device knows are ignored. On
// gateway failure no session changes and ErrPollFailed wraps the cause.
func (r *Reconciler) PollExchange(ctx context.Context, exchangeID int64) error {
	ix, err := r.db.Exchange(ctx, exchangeID)
	if err != nil {
		return err
	}
	if !ix.HasRouter() {
		metrics.pollTotal.WithLabelValues("exchange", "err_no_router").Inc()
		return serrors.JoinNoStack(peering.ErrPollFailed,
			peering.ErrNoRouterConfigured, "exchange", ix.Slug)
	}
	router, err := r.db.Router(ctx, ix.RouterID)
	if err != nil {
		return err
	}
	live, err := r.gateway.FetchSessionStates(ctx, router)
	if err != nil {
		metrics.pollTotal.WithLabelValues("exchange", "err_device").Inc()
		return serrors.JoinNoStack(peering.ErrPollFailed, err,
			"exchange", ix.Slug, "router", router.Hostname)
	}
	sessions, err := r.db.ExchangeSessionsForExchange(ctx, ix.ID)
	if err != nil {
		return err
	}
	updates := make([]storage.SessionStateUpdate, 0, len(sessions))
	for _, session := range sessions {
		updates = append(updates, stateUpdate(storage.KindExchange, session.ID,
			session.BGPState, session.LastEstablished, live[session.IP]))
	}
	if err := r.db.SetSessionStates(ctx, updates); err != nil {
		metrics.pollTotal.WithLabelValues("exchange", "err_db").Inc()
		return serrors.JoinNoStack(peering.ErrPollFailed, err,
			"exchange", ix.Slug)
	}
	metrics.pollTotal.WithLabelValues("exchange", "ok").Inc()
	return nil
}

// PollGroup overwrites the observed state of the group's direct sessions.
// The group may span routers; each is queried once, and a failure on any
// of them aborts the poll before anything is written. A group whose
// sessions carry no router at all cannot be observed and fails with
// ErrPollFailed.
func (r *Reconciler) PollGroup(ctx context.Context, groupID int64) error {
	group, err := r.db.Group(ctx, groupID)
	if err != nil {
		return err
	}
	sessions, err := r.db.DirectSessionsForGroup(ctx, group.ID)
	if err != nil {
		return err
	}
	live := make(map[int64]map[netip.Addr]device.BGPSession)
	for _, session := range sessions {
		if session.RouterID == 0 {
			continue
		}
		if _, done := live[session.RouterID]; done {
			continue
		}
		router, err := r.db.Router(ctx, session.RouterID)
		if err != nil {
			return err
		}
		states, err := r.gateway.FetchSessionStates(ctx, router)
		if err != nil {
			metrics.pollTotal.WithLabelValues("group", "err_device").Inc()
			return serrors.JoinNoStack(peering.ErrPollFailed, err,
				"group", group.Slug, "router", router.Hostname)
		}
		live[session.RouterID] = states
	}
	if len(sessions) > 0 && len(live) == 0 {
		metrics.pollTotal.WithLabelValues("group", "err_no_router").Inc()
		return serrors.JoinNoStack(peering.ErrPollFailed,
			peering.ErrNoRouterConfigured, "group", group.Slug)
	}
	updates := make([]storage.SessionStateUpdate, 0, len(sessions))
	for _, session := range sessions {
		states, ok := live[session.RouterID]
		if !ok {
			continue
		}
		updates = append(updates, stateUpdate(storage.KindDirect, session.ID,
			session.BGPState, session.LastEstablished, states[session.IP]))
	}
	if err := r.db.SetSessionStates(ctx, updates); err != nil {
		metrics.pollTotal.WithLabelValues("group", "err_db").Inc()
		return serrors.JoinNoStack(peering.ErrPollFailed, err,
			"group", group.Slug)
	}
	metrics.pollTotal.WithLabelValues("group", "ok").Inc()
	return nil
}

// stateUpdate derives the observed-state overwrite for one session. A
// session the device does not report is idle with no prefixes. The
// established timestamp is kept unless the session transitions into
// established now.
func stateUpdate(kind storage.SessionKind, id int64, oldState bgp.State,
	lastEstablished time.Time, live device.BGPSession) storage.SessionStateUpdate {

	update := storage.SessionStateUpdate{
		Kind:                kind,
		ID:                  id,
		State:               live.State,
		ReceivedPrefixCount: live.ReceivedPrefixes,
		LastEstablished:     lastEstablished,
	}
	if live.State.Established() && !oldState.Established() {
		update.LastEstablished = time.Now().UTC()
	}
	return update
}

func (r *Reconciler) exchangesByRegistryID(
	ctx context.Context) (map[int64]*peering.InternetExchange, error) {

	exchanges, err := r.db.ListExchanges(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]*peering.InternetExchange)
	for _, ix := range exchanges {
		if ix.PeeringDBID != 0 {
			byID[ix.PeeringDBID] = ix
		}
	}
	return byID, nil
}

// ensureAS returns the stored AS for the ASN, creating it from the
// registry when absent. A network unknown to the registry still gets a
// minimal record. The second return reports whether a record was created.
func (r *Reconciler) ensureAS(ctx context.Context,
	asn bgp.ASN) (*peering.AutonomousSystem, bool, error) {

	as, err := r.db.AutonomousSystem(ctx, asn)
	if err == nil {
		return as, false, nil
	}
	if !errors.Is(err, peering.ErrNotFound) {
		return nil, false, err
	}
	as = &peering.AutonomousSystem{ASN: asn}
	if network, err := r.registry.LookupNetwork(ctx, asn); err == nil {
		as.Name = network.Name
		as.IRRASSet = network.IRRASSet
		as.IPv4MaxPrefixes = network.InfoPrefixes4
		as.IPv6MaxPrefixes = network.InfoPrefixes6
		as.PeeringDBID = network.ID
		as.LastSynchronized = time.Now().UTC()
	} else if peering.Transient(err) {
		return nil, false, err
	} else {
		log.FromCtx(ctx).Debug("Peer AS unknown to registry", "asn", asn)
	}
	if err := r.db.InsertAutonomousSystem(ctx, as); err != nil {
		return nil, false, err
	}
	return as, true, nil
}
