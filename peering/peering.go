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

// Package peering defines the entities managed by peermgr: autonomous
// systems, BGP groups, internet exchanges, routers, peering sessions, and
// the configuration-time objects referenced when generating device
// configuration.
package peering

import (
	"net/netip"
	"time"

	"github.com/peermgr/peermgr/pkg/bgp"
)

// AutonomousSystem is a network peermgr knows about, local or remote.
// The ASN is unique. PeeringDBID links the AS to its registry record and is
// zero for networks unknown to the registry.
type AutonomousSystem struct {
	ID               int64
	ASN              bgp.ASN
	Name             string
	IRRASSet         string
	PeeringDBID      int64
	ContactName      string
	ContactPhone     string
	ContactEmail     string
	IPv4MaxPrefixes  int
	IPv6MaxPrefixes  int
	KeepSynced       bool
	ImportPolicyIDs  []int64
	ExportPolicyIDs  []int64
	Comments         string
	LastSynchronized time.Time
}

// BGPGroup collects direct peering sessions that share policy and community
// defaults. Sessions reference the group, not vice versa.
type BGPGroup struct {
	ID              int64
	Name            string
	Slug            string
	ImportPolicyIDs []int64
	ExportPolicyIDs []int64
	CommunityIDs    []int64
	Comments        string
}

// InternetExchange is a peering fabric the operator participates in. An
// exchange has at most one managed router. PeeringDBID is the registry
// identifier of the exchange LAN, zero when unknown.
type InternetExchange struct {
	ID                    int64
	Name                  string
	Slug                  string
	PeeringDBID           int64
	RouterID              int64
	TemplateID            int64
	IPv4Prefix            string
	IPv6Prefix            string
	ImportPolicyIDs       []int64
	ExportPolicyIDs       []int64
	CommunityIDs          []int64
	CheckBGPSessionStates bool
	Comments              string
}

// HasRouter returns whether the exchange has a managed router.
func (ix *InternetExchange) HasRouter() bool {
	return ix.RouterID != 0
}

// Router is a managed device. Platform selects the device driver and is
// required for any configuration or state operation.
type Router struct {
	ID         int64
	Name       string
	Hostname   string
	Platform   string
	TemplateID int64
	Comments   string
}

// Credentials holds a session password in plaintext and/or platform
// encrypted form. The vault owns the transition from one to the other.
type Credentials struct {
	Password          string
	EncryptedPassword string
}

// DirectPeeringSession is a BGP session established outside any exchange
// fabric, for example over a PNI or a transit link. Direct sessions carry
// their own router reference.
type DirectPeeringSession struct {
	ID           int64
	ASID         int64
	GroupID      int64
	RouterID     int64
	IP           netip.Addr
	Relationship bgp.Relationship
	MultihopTTL  int
	Credentials
	Enabled             bool
	BGPState            bgp.State
	ReceivedPrefixCount int64
	LastEstablished     time.Time
	Comments            string
}

// InternetExchangePeeringSession is a BGP session over an exchange fabric.
// Together with the exchange and the remote AS, the IP address is the
// natural key of the session.
type InternetExchangePeeringSession struct {
	ID            int64
	ExchangeID    int64
	ASID          int64
	IP            netip.Addr
	IsRouteServer bool
	Credentials
	Enabled             bool
	BGPState            bgp.State
	ReceivedPrefixCount int64
	LastEstablished     time.Time
	Comments            string
}

// RoutingPolicy types.
const (
	PolicyTypeImport = "import-policy"
	PolicyTypeExport = "export-policy"
)

// RoutingPolicy is a named routing policy referenced when generating
// configuration.
type RoutingPolicy struct {
	ID            int64
	Name          string
	Slug          string
	Type          string
	Weight        int
	AddressFamily int
}

// Community types.
const (
	CommunityTypeIngress = "ingress"
	CommunityTypeEgress  = "egress"
)

// Community is a BGP community attached on ingress or egress.
type Community struct {
	ID    int64
	Name  string
	Value string
	Type  string
}

// Template types.
const (
	TemplateTypeConfiguration = "configuration"
	TemplateTypeEmail         = "email"
)

// Template is a named template used to render device configuration or
// peering request e-mails.
type Template struct {
	ID   int64
	Name string
	Type string
	Body string
}
