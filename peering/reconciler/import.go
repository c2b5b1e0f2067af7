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

package reconciler

import (
	"context"
	"errors"
	"fmt"
	"net/netip"

	"github.com/peermgr/peermgr/peering"
	"github.com/peermgr/peermgr/peeringdb"
	"github.com/peermgr/peermgr/pkg/bgp"
	"github.com/peermgr/peermgr/pkg/log"
	"github.com/peermgr/peermgr/pkg/private/serrors"
)

// IgnoredAS names a peer AS skipped by an import and why.
type IgnoredAS struct {
	ASN    bgp.ASN `json:"asn"`
	Reason string  `json:"reason"`
}

// ImportReport summarizes one ImportFromRouter run.
type ImportReport struct {
	AutonomousSystems int         `json:"autonomous_systems"`
	Sessions          int         `json:"sessions"`
	Ignored           []IgnoredAS `json:"ignored"`
}

// IgnoredASNs returns just the skipped AS numbers.
func (r ImportReport) IgnoredASNs() []bgp.ASN {
	asns := make([]bgp.ASN, 0, len(r.Ignored))
	for _, ignored := range r.Ignored {
		asns = append(asns, ignored.ASN)
	}
	return asns
}

// ImportFromRouter models the sessions that exist on the exchange's
// router but not in storage. Peer ASNs are resolved through the
// exchange's registry LAN records; addresses the registry cannot
// attribute are skipped. Missing AS records are created from the
// registry. A failure on one peer never aborts the batch; such peers are
// reported as ignored.
func (r *Reconciler) ImportFromRouter(ctx context.Context,
	exchangeID int64) (ImportReport, error) {

	var report ImportReport
	ix, err := r.db.Exchange(ctx, exchangeID)
	if err != nil {
		return report, err
	}
	if !ix.HasRouter() {
		return report, serrors.JoinNoStack(peering.ErrNoRouterConfigured, nil,
			"exchange", ix.Slug)
	}
	router, err := r.db.Router(ctx, ix.RouterID)
	if err != nil {
		return report, err
	}
	live, err := r.gateway.FetchSessionStates(ctx, router)
	if err != nil {
		return report, err
	}
	lans, err := r.registry.ExchangeLANs(ctx, ix.PeeringDBID)
	if err != nil {
		return report, err
	}
	byAddr := make(map[netip.Addr]peeringdb.NetworkIXLAN)
	for _, lan := range lans {
		for _, ip := range lan.Addrs() {
			byAddr[ip] = lan
		}
	}

	logger := log.FromCtx(ctx)
	ignored := make(map[bgp.ASN]struct{})
	skip := func(asn bgp.ASN, reason string) {
		if _, dup := ignored[asn]; dup {
			return
		}
		ignored[asn] = struct{}{}
		report.Ignored = append(report.Ignored, IgnoredAS{ASN: asn, Reason: reason})
	}
	knownAS := make(map[bgp.ASN]*peering.AutonomousSystem)
	for ip, state := range live {
		lan, ok := byAddr[ip]
		if !ok {
			logger.Debug("Live session not attributable via registry",
				"exchange", ix.Slug, "ip", ip)
			continue
		}
		switch {
		case lan.ASN == r.localASN:
			skip(lan.ASN, "local network")
			continue
		case privateASN(lan.ASN):
			skip(lan.ASN, "private ASN")
			continue
		}
		if _, err := r.db.ExchangeSessionByKey(ctx, ix.ID, lan.ASN, ip); err == nil {
			continue
		} else if !errors.Is(err, peering.ErrNotFound) {
			skip(lan.ASN, fmt.Sprintf("session lookup failed: %v", err))
			continue
		}
		as, ok := knownAS[lan.ASN]
		if !ok {
			var asCreated bool
			var err error
			if as, asCreated, err = r.ensureAS(ctx, lan.ASN); err != nil {
				skip(lan.ASN, fmt.Sprintf("creating AS record failed: %v", err))
				continue
			}
			knownAS[lan.ASN] = as
			if asCreated {
				report.AutonomousSystems++
			}
		}
		session := &peering.InternetExchangePeeringSession{
			ExchangeID:          ix.ID,
			ASID:                as.ID,
			IP:                  ip,
			IsRouteServer:       lan.IsRSPeer,
			Enabled:             false,
			BGPState:            state.State,
			ReceivedPrefixCount: state.ReceivedPrefixes,
		}
		if err := r.db.InsertExchangeSession(ctx, session); err != nil {
			skip(lan.ASN, fmt.Sprintf("storing session failed: %v", err))
			continue
		}
		report.Sessions++
	}
	metrics.importTotal.Inc()
	return report, nil
}

// AvailablePeers returns the registry peer records at the exchange for
// which no session is modeled yet, excluding the operator's own entries.
func (r *Reconciler) AvailablePeers(ctx context.Context,
	exchangeID int64) ([]peeringdb.PeerRecord, error) {

	ix, err := r.db.Exchange(ctx, exchangeID)
	if err != nil {
		return nil, err
	}
	if ix.PeeringDBID == 0 {
		return nil, nil
	}
	records, err := r.registry.AvailablePeers(ctx, ix.PeeringDBID)
	if err != nil {
		return nil, err
	}
	available := make([]peeringdb.PeerRecord, 0, len(records))
	for _, record := range records {
		if record.NetworkIXLAN.ASN == r.localASN {
			continue
		}
		modeled := true
		for _, ip := range record.NetworkIXLAN.Addrs() {
			_, err := r.db.ExchangeSessionByKey(ctx, ix.ID,
				record.NetworkIXLAN.ASN, ip)
			if errors.Is(err, peering.ErrNotFound) {
				modeled = false
				continue
			}
			if err != nil {
				return nil, err
			}
		}
		if !modeled {
			available = append(available, record)
		}
	}
	return available, nil
}

// CommonExchanges returns the operator's exchanges the peer is also
// present on according to the registry.
func (r *Reconciler) CommonExchanges(ctx context.Context,
	asn bgp.ASN) ([]*peering.InternetExchange, error) {

	exchanges, err := r.exchangesByRegistryID(ctx)
	if err != nil {
		return nil, err
	}
	lans, err := r.registry.NetworkIXLANs(ctx, asn)
	if err != nil {
		return nil, err
	}
	var common []*peering.InternetExchange
	seen := make(map[int64]struct{})
	for _, lan := range lans {
		ix, ok := exchanges[lan.IXID]
		if !ok {
			continue
		}
		if _, dup := seen[ix.ID]; dup {
			continue
		}
		seen[ix.ID] = struct{}{}
		common = append(common, ix)
	}
	return common, nil
}

// ClearExchangeSession resets one exchange session on the exchange's
// router and returns the device output.
func (r *Reconciler) ClearExchangeSession(ctx context.Context,
	sessionID int64) (string, error) {

	session, err := r.db.ExchangeSession(ctx, sessionID)
	if err != nil {
		return "", err
	}
	ix, err := r.db.Exchange(ctx, session.ExchangeID)
	if err != nil {
		return "", err
	}
	if !ix.HasRouter() {
		return "", serrors.JoinNoStack(peering.ErrNoRouterConfigured, nil,
			"exchange", ix.Slug)
	}
	router, err := r.db.Router(ctx, ix.RouterID)
	if err != nil {
		return "", err
	}
	return r.gateway.ClearSession(ctx, router, session.IP)
}

// ClearDirectSession resets one direct session on its router and returns
// the device output.
func (r *Reconciler) ClearDirectSession(ctx context.Context,
	sessionID int64) (string, error) {

	session, err := r.db.DirectSession(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if session.RouterID == 0 {
		return "", serrors.JoinNoStack(peering.ErrNoRouterConfigured, nil,
			"session", session.ID)
	}
	router, err := r.db.Router(ctx, session.RouterID)
	if err != nil {
		return "", err
	}
	return r.gateway.ClearSession(ctx, router, session.IP)
}

// TestRouterConnection verifies the router answers on its management
// connection.
func (r *Reconciler) TestRouterConnection(ctx context.Context,
	routerID int64) error {

	router, err := r.db.Router(ctx, routerID)
	if err != nil {
		return err
	}
	return r.gateway.TestConnectivity(ctx, router)
}

// privateASN reports whether the ASN is from a private range (RFC 6996).
func privateASN(asn bgp.ASN) bool {
	return (asn >= 64512 && asn <= 65534) || asn >= 4200000000
}
