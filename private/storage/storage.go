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

// Package storage defines the repository interfaces through which the core
// reads and writes persisted peering state. Backends live in sub-packages.
package storage

import (
	"context"
	"io"
	"net/netip"
	"time"

	"github.com/peermgr/peermgr/peering"
	"github.com/peermgr/peermgr/pkg/bgp"
)

// SessionKind discriminates the two session tables in mixed operations.
type SessionKind string

// The session kinds.
const (
	KindDirect   SessionKind = "direct"
	KindExchange SessionKind = "exchange"
)

// SessionStateUpdate is one observed-state overwrite produced by a poll.
// All updates of a poll are applied in a single transaction.
type SessionStateUpdate struct {
	Kind                SessionKind
	ID                  int64
	State               bgp.State
	ReceivedPrefixCount int64
	// LastEstablished is stored as-is; the reconciler sets it when a
	// session transitions into established.
	LastEstablished time.Time
}

// AutonomousSystems provides access to the AS table.
type AutonomousSystems interface {
	AutonomousSystem(ctx context.Context, asn bgp.ASN) (*peering.AutonomousSystem, error)
	AutonomousSystemByID(ctx context.Context, id int64) (*peering.AutonomousSystem, error)
	ListAutonomousSystems(ctx context.Context) ([]*peering.AutonomousSystem, error)
	// InsertAutonomousSystem stores a new AS and sets its ID.
	InsertAutonomousSystem(ctx context.Context, as *peering.AutonomousSystem) error
	UpdateAutonomousSystem(ctx context.Context, as *peering.AutonomousSystem) error
}

// Groups provides access to BGP groups.
type Groups interface {
	Group(ctx context.Context, id int64) (*peering.BGPGroup, error)
	ListGroups(ctx context.Context) ([]*peering.BGPGroup, error)
	InsertGroup(ctx context.Context, group *peering.BGPGroup) error
}

// Exchanges provides access to internet exchanges.
type Exchanges interface {
	Exchange(ctx context.Context, id int64) (*peering.InternetExchange, error)
	ListExchanges(ctx context.Context) ([]*peering.InternetExchange, error)
	ExchangesForRouter(ctx context.Context, routerID int64) ([]*peering.InternetExchange, error)
	InsertExchange(ctx context.Context, ix *peering.InternetExchange) error
	UpdateExchange(ctx context.Context, ix *peering.InternetExchange) error
}

// Routers provides access to managed routers.
type Routers interface {
	Router(ctx context.Context, id int64) (*peering.Router, error)
	ListRouters(ctx context.Context) ([]*peering.Router, error)
	InsertRouter(ctx context.Context, router *peering.Router) error
	// DeleteRouter fails if the router is still referenced by an exchange
	// or a session.
	DeleteRouter(ctx context.Context, id int64) error
}

// DirectSessions provides access to direct peering sessions.
type DirectSessions interface {
	DirectSession(ctx context.Context, id int64) (*peering.DirectPeeringSession, error)
	DirectSessionsForGroup(ctx context.Context, groupID int64) ([]*peering.DirectPeeringSession, error)
	DirectSessionsForRouter(ctx context.Context, routerID int64) ([]*peering.DirectPeeringSession, error)
	InsertDirectSession(ctx context.Context, s *peering.DirectPeeringSession) error
	UpdateDirectSession(ctx context.Context, s *peering.DirectPeeringSession) error
}

// ExchangeSessions provides access to internet exchange peering sessions.
type ExchangeSessions interface {
	ExchangeSession(ctx context.Context, id int64) (*peering.InternetExchangePeeringSession, error)
	ExchangeSessionsForExchange(ctx context.Context,
		exchangeID int64) ([]*peering.InternetExchangePeeringSession, error)
	// ExchangeSessionByKey looks a session up by its natural key.
	ExchangeSessionByKey(ctx context.Context, exchangeID int64, asn bgp.ASN,
		ip netip.Addr) (*peering.InternetExchangePeeringSession, error)
	InsertExchangeSession(ctx context.Context, s *peering.InternetExchangePeeringSession) error
	UpdateExchangeSession(ctx context.Context, s *peering.InternetExchangePeeringSession) error
}

// SessionStates applies observed-state overwrites.
type SessionStates interface {
	// SetSessionStates applies all updates in one transaction. Either all
	// observed states change or none does.
	SetSessionStates(ctx context.Context, updates []SessionStateUpdate) error
}

// ConfigObjects provides access to the configuration-time entities.
type ConfigObjects interface {
	Template(ctx context.Context, id int64) (*peering.Template, error)
	InsertTemplate(ctx context.Context, t *peering.Template) error
	// DeleteTemplate fails if the template is still assigned.
	DeleteTemplate(ctx context.Context, id int64) error
	RoutingPolicies(ctx context.Context, ids []int64) ([]*peering.RoutingPolicy, error)
	InsertRoutingPolicy(ctx context.Context, p *peering.RoutingPolicy) error
	Communities(ctx context.Context, ids []int64) ([]*peering.Community, error)
	InsertCommunity(ctx context.Context, c *peering.Community) error
}

// DB is the full repository surface the core operates on.
type DB interface {
	AutonomousSystems
	Groups
	Exchanges
	Routers
	DirectSessions
	ExchangeSessions
	SessionStates
	ConfigObjects
	io.Closer
}
