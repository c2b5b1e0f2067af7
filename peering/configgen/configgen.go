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

// Package configgen renders device configuration from templates and the
// persisted peering state, and deploys the result through the device
// gateway.
package configgen

import (
	"context"

	"github.com/peermgr/peermgr/peering"
	"github.com/peermgr/peermgr/peering/device"
	"github.com/peermgr/peermgr/pkg/bgp"
	"github.com/peermgr/peermgr/pkg/private/serrors"
	"github.com/peermgr/peermgr/private/storage"
)

// Context is the data a configuration template renders against. Router
// templates see every group and exchange the router serves; exchange
// templates see a single exchange.
type Context struct {
	LocalASN  bgp.ASN
	Router    *peering.Router
	Groups    []GroupContext
	Exchanges []ExchangeContext
}

// GroupContext is one BGP group with its direct sessions and resolved
// policy objects. Group is nil for sessions not assigned to any group.
type GroupContext struct {
	Group          *peering.BGPGroup
	Sessions       []DirectSessionContext
	ImportPolicies []*peering.RoutingPolicy
	ExportPolicies []*peering.RoutingPolicy
	Communities    []*peering.Community
}

// DirectSessionContext pairs a direct session with its remote AS.
type DirectSessionContext struct {
	Session *peering.DirectPeeringSession
	AS      *peering.AutonomousSystem
}

// ExchangeContext is one exchange with its sessions and resolved policy
// objects.
type ExchangeContext struct {
	Exchange       *peering.InternetExchange
	Sessions       []ExchangeSessionContext
	ImportPolicies []*peering.RoutingPolicy
	ExportPolicies []*peering.RoutingPolicy
	Communities    []*peering.Community
}

// ExchangeSessionContext pairs an exchange session with its remote AS.
type ExchangeSessionContext struct {
	Session *peering.InternetExchangePeeringSession
	AS      *peering.AutonomousSystem
}

// Pusher is the gateway surface the generator deploys through.
type Pusher interface {
	PushConfiguration(ctx context.Context, router *peering.Router,
		config string, commit bool) (device.PushResult, error)
}

// Generator assembles template contexts from storage and renders them.
// Generation is pure: it never talks to a device.
type Generator struct {
	db       storage.DB
	gateway  Pusher
	renderer Renderer
	localASN bgp.ASN
}

// Option configures a Generator.
type Option func(*Generator)

// WithRenderer overrides the template engine.
func WithRenderer(r Renderer) Option {
	return func(g *Generator) { g.renderer = r }
}

// NewGenerator creates a generator over the given storage and gateway.
func NewGenerator(db storage.DB, gateway Pusher, localASN bgp.ASN,
	opts ...Option) *Generator {

	g := &Generator{
		db:       db,
		gateway:  gateway,
		renderer: TemplateRenderer{},
		localASN: localASN,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// RouterConfiguration renders the full configuration of a router from its
// assigned template.
func (g *Generator) RouterConfiguration(ctx context.Context,
	routerID int64) (string, error) {

	router, err := g.db.Router(ctx, routerID)
	if err != nil {
		return "", err
	}
	config, _, err := g.renderRouter(ctx, router)
	return config, err
}

// ExchangeConfiguration renders the configuration fragment of a single
// exchange from the exchange's template.
func (g *Generator) ExchangeConfiguration(ctx context.Context,
	exchangeID int64) (string, error) {

	ix, err := g.db.Exchange(ctx, exchangeID)
	if err != nil {
		return "", err
	}
	return g.renderExchange(ctx, ix)
}

// DeployRouter renders the router's configuration and pushes it. With
// commit false the device reports the would-be diff and keeps running
// unchanged. Render failures never reach the gateway.
func (g *Generator) DeployRouter(ctx context.Context, routerID int64,
	commit bool) (device.PushResult, error) {

	router, err := g.db.Router(ctx, routerID)
	if err != nil {
		return device.PushResult{}, err
	}
	config, _, err := g.renderRouter(ctx, router)
	if err != nil {
		return device.PushResult{}, err
	}
	return g.gateway.PushConfiguration(ctx, router, config, commit)
}

// DeployExchange renders the exchange's configuration and pushes it to
// the exchange's router.
func (g *Generator) DeployExchange(ctx context.Context, exchangeID int64,
	commit bool) (device.PushResult, error) {

	ix, err := g.db.Exchange(ctx, exchangeID)
	if err != nil {
		return device.PushResult{}, err
	}
	if !ix.HasRouter() {
		return device.PushResult{}, serrors.JoinNoStack(
			peering.ErrNoRouterConfigured, nil, "exchange", ix.Slug)
	}
	config, err := g.renderExchange(ctx, ix)
	if err != nil {
		return device.PushResult{}, err
	}
	router, err := g.db.Router(ctx, ix.RouterID)
	if err != nil {
		return device.PushResult{}, err
	}
	return g.gateway.PushConfiguration(ctx, router, config, commit)
}

func (g *Generator) renderRouter(ctx context.Context,
	router *peering.Router) (string, *Context, error) {

	if router.TemplateID == 0 {
		return "", nil, serrors.JoinNoStack(peering.ErrNoTemplateAssigned, nil,
			"router", router.Hostname)
	}
	tmpl, err := g.db.Template(ctx, router.TemplateID)
	if err != nil {
		return "", nil, err
	}
	tc, err := g.routerContext(ctx, router)
	if err != nil {
		return "", nil, err
	}
	config, err := g.renderer.Render(tmpl.Body, tc)
	return config, tc, err
}

func (g *Generator) renderExchange(ctx context.Context,
	ix *peering.InternetExchange) (string, error) {

	if ix.TemplateID == 0 {
		return "", serrors.JoinNoStack(peering.ErrNoTemplateAssigned, nil,
			"exchange", ix.Slug)
	}
	tmpl, err := g.db.Template(ctx, ix.TemplateID)
	if err != nil {
		return "", err
	}
	ec, err := g.exchangeContext(ctx, ix, newASCache(g.db))
	if err != nil {
		return "", err
	}
	var router *peering.Router
	if ix.HasRouter() {
		if router, err = g.db.Router(ctx, ix.RouterID); err != nil {
			return "", err
		}
	}
	tc := &Context{
		LocalASN:  g.localASN,
		Router:    router,
		Exchanges: []ExchangeContext{*ec},
	}
	return g.renderer.Render(tmpl.Body, tc)
}

func (g *Generator) routerContext(ctx context.Context,
	router *peering.Router) (*Context, error) {

	cache := newASCache(g.db)
	tc := &Context{LocalASN: g.localASN, Router: router}

	sessions, err := g.db.DirectSessionsForRouter(ctx, router.ID)
	if err != nil {
		return nil, err
	}
	// Sessions keep their storage order inside each group; groups appear
	// in first-session order.
	groups := make(map[int64]*GroupContext)
	var order []int64
	for _, session := range sessions {
		gc, ok := groups[session.GroupID]
		if !ok {
			gc = &GroupContext{}
			if session.GroupID != 0 {
				group, err := g.db.Group(ctx, session.GroupID)
				if err != nil {
					return nil, err
				}
				gc.Group = group
				if err := g.resolveObjects(ctx, group.ImportPolicyIDs,
					group.ExportPolicyIDs, group.CommunityIDs,
					&gc.ImportPolicies, &gc.ExportPolicies,
					&gc.Communities); err != nil {
					return nil, err
				}
			}
			groups[session.GroupID] = gc
			order = append(order, session.GroupID)
		}
		as, err := cache.get(ctx, session.ASID)
		if err != nil {
			return nil, err
		}
		gc.Sessions = append(gc.Sessions,
			DirectSessionContext{Session: session, AS: as})
	}
	for _, id := range order {
		tc.Groups = append(tc.Groups, *groups[id])
	}

	exchanges, err := g.db.ExchangesForRouter(ctx, router.ID)
	if err != nil {
		return nil, err
	}
	for _, ix := range exchanges {
		ec, err := g.exchangeContext(ctx, ix, cache)
		if err != nil {
			return nil, err
		}
		tc.Exchanges = append(tc.Exchanges, *ec)
	}
	return tc, nil
}

func (g *Generator) exchangeContext(ctx context.Context,
	ix *peering.InternetExchange, cache *asCache) (*ExchangeContext, error) {

	ec := &ExchangeContext{Exchange: ix}
	if err := g.resolveObjects(ctx, ix.ImportPolicyIDs, ix.ExportPolicyIDs,
		ix.CommunityIDs, &ec.ImportPolicies, &ec.ExportPolicies,
		&ec.Communities); err != nil {
		return nil, err
	}
	sessions, err := g.db.ExchangeSessionsForExchange(ctx, ix.ID)
	if err != nil {
		return nil, err
	}
	for _, session := range sessions {
		as, err := cache.get(ctx, session.ASID)
		if err != nil {
			return nil, err
		}
		ec.Sessions = append(ec.Sessions,
			ExchangeSessionContext{Session: session, AS: as})
	}
	return ec, nil
}

func (g *Generator) resolveObjects(ctx context.Context,
	importIDs, exportIDs, communityIDs []int64,
	imports, exports *[]*peering.RoutingPolicy,
	communities *[]*peering.Community) error {

	var err error
	if *imports, err = g.db.RoutingPolicies(ctx, importIDs); err != nil {
		return err
	}
	if *exports, err = g.db.RoutingPolicies(ctx, exportIDs); err != nil {
		return err
	}
	*communities, err = g.db.Communities(ctx, communityIDs)
	return err
}

// asCache avoids re-reading the same AS row for every session that
// references it.
type asCache struct {
	db storage.AutonomousSystems
	m  map[int64]*peering.AutonomousSystem
}

func newASCache(db storage.AutonomousSystems) *asCache {
	return &asCache{db: db, m: make(map[int64]*peering.AutonomousSystem)}
}

func (c *asCache) get(ctx context.Context,
	id int64) (*peering.AutonomousSystem, error) {

	if as, ok := c.m[id]; ok {
		return as, nil
	}
	as, err := c.db.AutonomousSystemByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.m[id] = as
	return as, nil
}
