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

package peeringdb_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peermgr/peermgr/peering"
	"github.com/peermgr/peermgr/peeringdb"
	"github.com/peermgr/peermgr/pkg/bgp"
)

func TestLookupNetwork(t *testing.T) {
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			requests.Add(1)
			assert.Equal(t, "/net", r.URL.Path)
			assert.Equal(t, "64501", r.URL.Query().Get("asn"))
			assert.Equal(t, "Api-Key test-key", r.Header.Get("Authorization"))
			w.Write([]byte(`{"data": [{"id": 99, "asn": 64501,
				"name": "Peer One", "irr_as_set": "AS-PEERONE",
				"info_prefixes4": 100, "info_prefixes6": 20}]}`))
		}))
	defer server.Close()

	client := peeringdb.NewClient(peeringdb.Config{
		BaseURL: server.URL, APIKey: "test-key"})
	network, err := client.LookupNetwork(context.Background(), 64501)
	require.NoError(t, err)
	assert.Equal(t, bgp.ASN(64501), network.ASN)
	assert.Equal(t, "Peer One", network.Name)
	assert.Equal(t, "AS-PEERONE", network.IRRASSet)
	assert.Equal(t, 100, network.InfoPrefixes4)

	// Served from the cache, no second request.
	_, err = client.LookupNetwork(context.Background(), 64501)
	require.NoError(t, err)
	assert.Equal(t, int64(1), requests.Load())
}

func TestLookupNetworkUnknown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"data": []}`))
		}))
	defer server.Close()

	client := peeringdb.NewClient(peeringdb.Config{BaseURL: server.URL})
	_, err := client.LookupNetwork(context.Background(), 64501)
	assert.ErrorIs(t, err, peering.ErrNotFound)
}

func TestServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
	defer server.Close()

	client := peeringdb.NewClient(peeringdb.Config{BaseURL: server.URL})
	_, err := client.LookupNetwork(context.Background(), 64501)
	assert.ErrorIs(t, err, peering.ErrRegistryUnavailable)
	assert.True(t, peering.Transient(err))

	// Unreachable server maps the same way.
	down := peeringdb.NewClient(peeringdb.Config{
		BaseURL: "http://127.0.0.1:1"})
	_, err = down.LookupNetwork(context.Background(), 64501)
	assert.ErrorIs(t, err, peering.ErrRegistryUnavailable)
}

func TestAvailablePeersOrdering(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/netixlan":
				assert.Equal(t, "10", r.URL.Query().Get("ix_id"))
				w.Write([]byte(`{"data": [
					{"asn": 64503, "ipaddr4": "192.0.2.30", "ix_id": 10},
					{"asn": 64501, "ipaddr4": "192.0.2.10", "ix_id": 10,
						"is_rs_peer": true},
					{"asn": 64502, "ipaddr4": "192.0.2.20", "ix_id": 10}]}`))
			case "/net":
				w.Write([]byte(`{"data": []}`))
			default:
				t.Errorf("unexpected path %s", r.URL.Path)
			}
		}))
	defer server.Close()

	client := peeringdb.NewClient(peeringdb.Config{BaseURL: server.URL})
	records, err := client.AvailablePeers(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, bgp.ASN(64501), records[0].NetworkIXLAN.ASN)
	assert.Equal(t, bgp.ASN(64502), records[1].NetworkIXLAN.ASN)
	assert.Equal(t, bgp.ASN(64503), records[2].NetworkIXLAN.ASN)
	assert.True(t, records[0].NetworkIXLAN.IsRSPeer)
}

func TestCommonExchanges(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "64501", r.URL.Query().Get("asn"))
			w.Write([]byte(`{"data": [
				{"asn": 64501, "ix_id": 10},
				{"asn": 64501, "ix_id": 20},
				{"asn": 64501, "ix_id": 30}]}`))
		}))
	defer server.Close()

	client := peeringdb.NewClient(peeringdb.Config{BaseURL: server.URL})
	common, err := client.CommonExchanges(context.Background(), 64501,
		[]int64{30, 10, 40})
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 30}, common)
}

func TestExchangePrefixes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/ixpfx", r.URL.Path)
			assert.Equal(t, "10", r.URL.Query().Get("ixlan_id"))
			w.Write([]byte(`{"data": [
				{"id": 1, "ixlan_id": 10, "protocol": "IPv4", "prefix": "192.0.2.0/24"},
				{"id": 2, "ixlan_id": 10, "protocol": "IPv6", "prefix": "2001:db8::/64"}]}`))
		}))
	defer server.Close()

	client := peeringdb.NewClient(peeringdb.Config{BaseURL: server.URL})
	prefixes, err := client.ExchangePrefixes(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, prefixes, 2)
	assert.Equal(t, "IPv4", prefixes[0].Protocol)
	assert.Equal(t, "192.0.2.0/24", prefixes[0].Prefix)
	assert.Equal(t, "2001:db8::/64", prefixes[1].Prefix)
}

func TestAddrs(t *testing.T) {
	lan := peeringdb.NetworkIXLAN{
		IPAddr4: "192.0.2.10",
		IPAddr6: "2001:db8::10",
	}
	assert.Len(t, lan.Addrs(), 2)

	assert.Empty(t, peeringdb.NetworkIXLAN{}.Addrs())
	assert.Len(t, peeringdb.NetworkIXLAN{IPAddr4: "192.0.2.10"}.Addrs(), 1)
}
