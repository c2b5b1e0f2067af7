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

package configgen_test

import (
	"context"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peermgr/peermgr/peering"
	"github.com/peermgr/peermgr/peering/configgen"
	"github.com/peermgr/peermgr/peering/device"
	"github.com/peermgr/peermgr/pkg/bgp"
	"github.com/peermgr/peermgr/private/storage"
	"github.com/peermgr/peermgr/private/storage/sqlite"
)

type fakePusher struct {
	calls  int
	config string
	commit bool
	result device.PushResult
	err    error
}

func (p *fakePusher) PushConfiguration(_ context.Context, _ *peering.Router,
	config string, commit bool) (device.PushResult, error) {

	p.calls++
	p.config = config
	p.commit = commit
	return p.result, p.err
}

// seed populates an in-memory database with one router serving one
// exchange session and one direct session.
func seed(t *testing.T) (storage.DB, *peering.Router, *peering.InternetExchange) {
	t.Helper()
	db, err := sqlite.New("file::memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	ctx := context.Background()

	tmpl := &peering.Template{
		Name: "edge",
		Type: peering.TemplateTypeConfiguration,
		Body: "router bgp {{ .LocalASN }}\n" +
			"{{ range .Groups }}{{ range .Sessions }}" +
			"neighbor {{ .Session.IP }} remote-as {{ .AS.ASN }} # direct\n" +
			"{{ end }}{{ end }}" +
			"{{ range .Exchanges }}{{ range .Sessions }}" +
			"neighbor {{ .Session.IP }} remote-as {{ .AS.ASN }} # ixp\n" +
			"{{ end }}{{ end }}",
	}
	require.NoError(t, db.InsertTemplate(ctx, tmpl))

	router := &peering.Router{
		Name:       "edge1",
		Hostname:   "edge1.example.net",
		Platform:   "junos",
		TemplateID: tmpl.ID,
	}
	require.NoError(t, db.InsertRouter(ctx, router))

	as := &peering.AutonomousSystem{ASN: 64501, Name: "Peer One"}
	require.NoError(t, db.InsertAutonomousSystem(ctx, as))

	group := &peering.BGPGroup{Name: "Transit", Slug: "transit"}
	require.NoError(t, db.InsertGroup(ctx, group))
	require.NoError(t, db.InsertDirectSession(ctx, &peering.DirectPeeringSession{
		ASID:         as.ID,
		GroupID:      group.ID,
		RouterID:     router.ID,
		IP:           netip.MustParseAddr("203.0.113.9"),
		Relationship: bgp.TransitProvider,
		Enabled:      true,
	}))

	ix := &peering.InternetExchange{
		Name:       "IX-1",
		Slug:       "ix-1",
		RouterID:   router.ID,
		TemplateID: tmpl.ID,
	}
	require.NoError(t, db.InsertExchange(ctx, ix))
	require.NoError(t, db.InsertExchangeSession(ctx,
		&peering.InternetExchangePeeringSession{
			ExchangeID: ix.ID,
			ASID:       as.ID,
			IP:         netip.MustParseAddr("192.0.2.10"),
			Enabled:    true,
		}))
	return db, router, ix
}

func TestRouterConfiguration(t *testing.T) {
	db, router, _ := seed(t)
	g := configgen.NewGenerator(db, &fakePusher{}, 64500)

	config, err := g.RouterConfiguration(context.Background(), router.ID)
	require.NoError(t, err)
	assert.Contains(t, config, "router bgp AS64500")
	assert.Contains(t, config, "neighbor 203.0.113.9 remote-as AS64501 # direct")
	assert.Contains(t, config, "neighbor 192.0.2.10 remote-as AS64501 # ixp")
}

func TestExchangeConfiguration(t *testing.T) {
	db, _, ix := seed(t)
	g := configgen.NewGenerator(db, &fakePusher{}, 64500)

	config, err := g.ExchangeConfiguration(context.Background(), ix.ID)
	require.NoError(t, err)
	assert.Contains(t, config, "neighbor 192.0.2.10 remote-as AS64501 # ixp")
	assert.NotContains(t, config, "# direct")
}

func TestNoTemplateAssigned(t *testing.T) {
	db, _, _ := seed(t)
	ctx := context.Background()
	bare := &peering.Router{Name: "bare", Hostname: "bare.example.net",
		Platform: "junos"}
	require.NoError(t, db.InsertRouter(ctx, bare))

	g := configgen.NewGenerator(db, &fakePusher{}, 64500)
	_, err := g.RouterConfiguration(ctx, bare.ID)
	assert.ErrorIs(t, err, peering.ErrNoTemplateAssigned)
}

func TestRenderErrorSkipsGateway(t *testing.T) {
	db, _, _ := seed(t)
	ctx := context.Background()
	broken := &peering.Template{
		Name: "broken",
		Type: peering.TemplateTypeConfiguration,
		Body: "neighbor {{ .NoSuchField }}",
	}
	require.NoError(t, db.InsertTemplate(ctx, broken))
	router := &peering.Router{Name: "edge2", Hostname: "edge2.example.net",
		Platform: "junos", TemplateID: broken.ID}
	require.NoError(t, db.InsertRouter(ctx, router))

	pusher := &fakePusher{}
	g := configgen.NewGenerator(db, pusher, 64500)

	_, err := g.DeployRouter(ctx, router.ID, false)
	assert.ErrorIs(t, err, peering.ErrRender)
	assert.Zero(t, pusher.calls)
}

func TestDeployRouter(t *testing.T) {
	db, router, _ := seed(t)
	pusher := &fakePusher{result: device.PushResult{Changed: true, Diff: "+x"}}
	g := configgen.NewGenerator(db, pusher, 64500)

	result, err := g.DeployRouter(context.Background(), router.ID, true)
	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.Equal(t, 1, pusher.calls)
	assert.True(t, pusher.commit)
	assert.Contains(t, pusher.config, "router bgp AS64500")
}

func TestDeployExchangeNoRouter(t *testing.T) {
	db, _, _ := seed(t)
	ctx := context.Background()
	orphan := &peering.InternetExchange{Name: "IX-2", Slug: "ix-2"}
	require.NoError(t, db.InsertExchange(ctx, orphan))

	pusher := &fakePusher{}
	g := configgen.NewGenerator(db, pusher, 64500)

	_, err := g.DeployExchange(ctx, orphan.ID, true)
	assert.ErrorIs(t, err, peering.ErrNoRouterConfigured)
	assert.Zero(t, pusher.calls)
}
