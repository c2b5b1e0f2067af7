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

package mgmtapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peermgr/peermgr/peering"
	"github.com/peermgr/peermgr/peering/configgen"
	"github.com/peermgr/peermgr/peering/device"
	"github.com/peermgr/peermgr/peering/mgmtapi"
	"github.com/peermgr/peermgr/peering/reconciler"
	"github.com/peermgr/peermgr/peeringdb"
	"github.com/peermgr/peermgr/pkg/bgp"
	"github.com/peermgr/peermgr/private/storage"
	"github.com/peermgr/peermgr/private/storage/sqlite"
)

type fakeRegistry struct {
	networks map[bgp.ASN]*peeringdb.Network
}

func (f *fakeRegistry) LookupNetwork(_ context.Context,
	asn bgp.ASN) (*peeringdb.Network, error) {

	network, ok := f.networks[asn]
	if !ok {
		return nil, peering.ErrNotFound
	}
	return network, nil
}

func (f *fakeRegistry) NetworkIXLANs(context.Context,
	bgp.ASN) ([]peeringdb.NetworkIXLAN, error) {

	return nil, nil
}

func (f *fakeRegistry) ExchangeLANs(context.Context,
	int64) ([]peeringdb.NetworkIXLAN, error) {

	return nil, nil
}

func (f *fakeRegistry) ExchangePrefixes(context.Context,
	int64) ([]peeringdb.IXPrefix, error) {

	return []peeringdb.IXPrefix{
		{ID: 1, Protocol: "IPv4", Prefix: "192.0.2.0/24"},
	}, nil
}

func (f *fakeRegistry) AvailablePeers(context.Context,
	int64) ([]peeringdb.PeerRecord, error) {

	return nil, nil
}

type fakeGateway struct {
	states map[netip.Addr]device.BGPSession
	err    error
	result device.PushResult
}

func (f *fakeGateway) FetchSessionStates(_ context.Context,
	_ *peering.Router) (map[netip.Addr]device.BGPSession, error) {

	return f.states, f.err
}

func (f *fakeGateway) TestConnectivity(context.Context, *peering.Router) error {
	return f.err
}

func (f *fakeGateway) ClearSession(_ context.Context, _ *peering.Router,
	_ netip.Addr) (string, error) {

	return "session cleared", f.err
}

func (f *fakeGateway) PushConfiguration(_ context.Context, _ *peering.Router,
	_ string, _ bool) (device.PushResult, error) {

	return f.result, f.err
}

type fixture struct {
	db      storage.DB
	gateway *fakeGateway
	server  *httptest.Server
	router  *peering.Router
	ix      *peering.InternetExchange
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := sqlite.New("file::memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	ctx := context.Background()

	tmpl := &peering.Template{Name: "edge",
		Type: peering.TemplateTypeConfiguration, Body: "asn {{ .LocalASN }}"}
	require.NoError(t, db.InsertTemplate(ctx, tmpl))
	router := &peering.Router{Name: "edge1", Hostname: "edge1.example.net",
		Platform: "junos", TemplateID: tmpl.ID}
	require.NoError(t, db.InsertRouter(ctx, router))
	ix := &peering.InternetExchange{Name: "IX-1", Slug: "ix-1",
		PeeringDBID: 10, RouterID: router.ID}
	require.NoError(t, db.InsertExchange(ctx, ix))

	registry := &fakeRegistry{networks: map[bgp.ASN]*peeringdb.Network{}}
	gateway := &fakeGateway{}
	rec := reconciler.New(db, registry, gateway, 64500)
	gen := configgen.NewGenerator(db, gateway, 64500)
	api := mgmtapi.New(db, rec, gen, "secret", nil)
	server := httptest.NewServer(api.Handler())
	t.Cleanup(server.Close)
	return &fixture{db: db, gateway: gateway, server: server,
		router: router, ix: ix}
}

func (f *fixture) do(t *testing.T, method, path, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.server.URL+path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestAuthorization(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/v1/routers/1/test-connection", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "application/problem+json",
		resp.Header.Get("Content-Type"))

	resp = f.do(t, http.MethodPost, "/v1/routers/1/test-connection", "wrong")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/v1/routers/1/test-connection", "secret")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsWithoutToken(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSynchronizeNotFound(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodPost,
		"/v1/autonomous-systems/64501/synchronize", "secret")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "application/problem+json",
		resp.Header.Get("Content-Type"))
}

func TestSynchronizeExchange(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/v1/exchanges/1/synchronize", "secret")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, "192.0.2.0/24", body["ipv4_prefix"])

	stored, err := f.db.Exchange(context.Background(), f.ix.ID)
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.0/24", stored.IPv4Prefix)
}

func TestPollFailure(t *testing.T) {
	f := newFixture(t)
	f.gateway.err = peering.ErrDeviceUnreachable

	resp := f.do(t, http.MethodPost, "/v1/exchanges/1/poll", "secret")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
	body := decode(t, resp)
	assert.Equal(t, "Cannot update peering session states.", body["detail"])
}

func TestDeployDryRun(t *testing.T) {
	f := newFixture(t)
	f.gateway.result = device.PushResult{Changed: true, Diff: "+asn AS64500"}

	resp := f.do(t, http.MethodGet, "/v1/routers/1/deploy", "secret")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, true, body["changed"])
	assert.Equal(t, "+asn AS64500", body["changes"])
}

func TestDeployNoTemplate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bare := &peering.Router{Name: "bare", Hostname: "bare.example.net",
		Platform: "junos"}
	require.NoError(t, f.db.InsertRouter(ctx, bare))

	resp := f.do(t, http.MethodGet,
		"/v1/routers/"+idString(bare.ID)+"/deploy", "secret")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestEncryptPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	as := &peering.AutonomousSystem{ASN: 64501, Name: "Peer One"}
	require.NoError(t, f.db.InsertAutonomousSystem(ctx, as))
	session := &peering.InternetExchangePeeringSession{
		ExchangeID: f.ix.ID, ASID: as.ID,
		IP:          netip.MustParseAddr("192.0.2.10"),
		Credentials: peering.Credentials{Password: "hunter2"},
	}
	require.NoError(t, f.db.InsertExchangeSession(ctx, session))

	resp := f.do(t, http.MethodPost,
		"/v1/sessions/exchange/"+idString(session.ID)+"/encrypt-password",
		"secret")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Contains(t, body["encrypted_password"], "$9$")

	stored, err := f.db.ExchangeSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, body["encrypted_password"], stored.EncryptedPassword)
}

func TestInvalidIdentifier(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodPost, "/v1/exchanges/nope/poll", "secret")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func idString(id int64) string {
	return strconv.FormatInt(id, 10)
}
