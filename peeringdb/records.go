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

package peeringdb

import (
	"net/netip"

	"github.com/peermgr/peermgr/pkg/bgp"
)

// Network is the registry record of an autonomous system.
type Network struct {
	ID            int64   `json:"id"`
	ASN           bgp.ASN `json:"asn"`
	Name          string  `json:"name"`
	IRRASSet      string  `json:"irr_as_set"`
	InfoPrefixes4 int     `json:"info_prefixes4"`
	InfoPrefixes6 int     `json:"info_prefixes6"`
}

// NetworkIXLAN is the registry record of a network's presence on an
// exchange LAN: which addresses the network answers on at that fabric.
type NetworkIXLAN struct {
	ID       int64   `json:"id"`
	ASN      bgp.ASN `json:"asn"`
	Name     string  `json:"name"`
	IPAddr4  string  `json:"ipaddr4"`
	IPAddr6  string  `json:"ipaddr6"`
	IsRSPeer bool    `json:"is_rs_peer"`
	IXID     int64   `json:"ix_id"`
	IXLANID  int64   `json:"ixlan_id"`
}

// Addrs returns the valid peering addresses of the record. Either address
// family may be absent.
func (l NetworkIXLAN) Addrs() []netip.Addr {
	var addrs []netip.Addr
	for _, raw := range []string{l.IPAddr4, l.IPAddr6} {
		if ip, err := netip.ParseAddr(raw); err == nil {
			addrs = append(addrs, ip)
		}
	}
	return addrs
}

// PeerRecord pairs a network with its presence on a particular exchange
// LAN. It is the unit of peer discovery.
type PeerRecord struct {
	Network      Network
	NetworkIXLAN NetworkIXLAN
}

// IXPrefix is the registry record of a peering LAN prefix. Protocol is
// "IPv4" or "IPv6".
type IXPrefix struct {
	ID       int64  `json:"id"`
	IXLANID  int64  `json:"ixlan_id"`
	Protocol string `json:"protocol"`
	Prefix   string `json:"prefix"`
}
