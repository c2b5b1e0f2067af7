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

// Package peeringdb implements a client for the PeeringDB HTTP API. It is
// the discovery source for peer candidates and registry-linked AS data.
// Registry data changes infrequently; successful responses are cached for a
// configurable short duration, and the client is safe for concurrent use.
package peeringdb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/peermgr/peermgr/peering"
	"github.com/peermgr/peermgr/pkg/bgp"
	"github.com/peermgr/peermgr/pkg/private/serrors"
)

// DefaultBaseURL is the public PeeringDB API endpoint.
const DefaultBaseURL = "https://www.peeringdb.com/api"

// Config configures the PeeringDB client.
type Config struct {
	// BaseURL of the registry API. Defaults to the public PeeringDB.
	BaseURL string
	// APIKey is sent as authorization if set. Anonymous access works but
	// is rate limited more aggressively.
	APIKey string
	// CacheTTL bounds how long responses are reused. Defaults to 15
	// minutes; registry data changes infrequently.
	CacheTTL time.Duration
	// Timeout bounds each HTTP request. Defaults to 10 seconds.
	Timeout time.Duration
}

// Client queries the PeeringDB API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	cache      *gocache.Cache
}

// NewClient creates a registry client.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 15 * time.Minute
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cache:      gocache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
	}
}

// LookupNetwork returns the registry record of the given AS, or
// peering.ErrNotFound if the AS is unknown to the registry.
func (c *Client) LookupNetwork(ctx context.Context, asn bgp.ASN) (*Network, error) {
	key := fmt.Sprintf("net:%d", asn)
	if cached, ok := c.cache.Get(key); ok {
		return cached.(*Network), nil
	}
	var networks []Network
	if err := c.get(ctx, fmt.Sprintf("/net?asn=%d", asn), &networks); err != nil {
		return nil, err
	}
	if len(networks) == 0 {
		return nil, serrors.JoinNoStack(peering.ErrNotFound, nil, "asn", asn)
	}
	network := networks[0]
	c.cache.SetDefault(key, &network)
	return &network, nil
}

// NetworkIXLANs returns the exchange LAN presences of the given AS. An AS
// without any presence yields an empty slice, not an error.
func (c *Client) NetworkIXLANs(ctx context.Context, asn bgp.ASN) ([]NetworkIXLAN, error) {
	key := fmt.Sprintf("netixlan:asn:%d", asn)
	if cached, ok := c.cache.Get(key); ok {
		return cached.([]NetworkIXLAN), nil
	}
	var lans []NetworkIXLAN
	if err := c.get(ctx, fmt.Sprintf("/netixlan?asn=%d", asn), &lans); err != nil {
		return nil, err
	}
	c.cache.SetDefault(key, lans)
	return lans, nil
}

// ExchangeLANs returns all presences on the exchange with the given
// registry identifier.
func (c *Client) ExchangeLANs(ctx context.Context, ixID int64) ([]NetworkIXLAN, error) {
	key := fmt.Sprintf("netixlan:ix:%d", ixID)
	if cached, ok := c.cache.Get(key); ok {
		return cached.([]NetworkIXLAN), nil
	}
	var lans []NetworkIXLAN
	if err := c.get(ctx, fmt.Sprintf("/netixlan?ix_id=%d", ixID), &lans); err != nil {
		return nil, err
	}
	c.cache.SetDefault(key, lans)
	return lans, nil
}

// ExchangePrefixes returns the peering LAN prefixes of the exchange with
// the given registry identifier. PeeringDB keys prefixes by LAN; modern
// records use the exchange identifier for the LAN as well.
func (c *Client) ExchangePrefixes(ctx context.Context, ixID int64) ([]IXPrefix, error) {
	key := fmt.Sprintf("ixpfx:%d", ixID)
	if cached, ok := c.cache.Get(key); ok {
		return cached.([]IXPrefix), nil
	}
	var prefixes []IXPrefix
	if err := c.get(ctx, fmt.Sprintf("/ixpfx?ixlan_id=%d", ixID), &prefixes); err != nil {
		return nil, err
	}
	c.cache.SetDefault(key, prefixes)
	return prefixes, nil
}

// CommonExchanges returns the registry exchange identifiers the peer shares
// with the operator, computed by intersecting the operator's configured
// exchanges with the peer's registry-reported memberships. The result is
// sorted ascending for determinism.
func (c *Client) CommonExchanges(ctx context.Context, peer bgp.ASN,
	configured []int64) ([]int64, error) {

	lans, err := c.NetworkIXLANs(ctx, peer)
	if err != nil {
		return nil, err
	}
	present := make(map[int64]struct{}, len(lans))
	for _, lan := range lans {
		present[lan.IXID] = struct{}{}
	}
	var common []int64
	seen := make(map[int64]struct{})
	for _, id := range configured {
		if _, ok := present[id]; !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		common = append(common, id)
	}
	sort.Slice(common, func(i, j int) bool { return common[i] < common[j] })
	return common, nil
}

// AvailablePeers returns the peer records present at the exchange with the
// given registry identifier, ordered by AS number ascending. An exchange
// without registry data yields an empty slice, not an error. Filtering out
// peers that already have sessions is the caller's concern.
func (c *Client) AvailablePeers(ctx context.Context, ixID int64) ([]PeerRecord, error) {
	lans, err := c.ExchangeLANs(ctx, ixID)
	if err != nil {
		return nil, err
	}
	records := make([]PeerRecord, 0, len(lans))
	for _, lan := range lans {
		record := PeerRecord{NetworkIXLAN: lan}
		// The network lookup is best effort: a LAN entry whose network
		// record is missing still names a valid candidate.
		if network, err := c.LookupNetwork(ctx, lan.ASN); err == nil {
			record.Network = *network
		} else if peering.Transient(err) {
			return nil, err
		}
		records = append(records, record)
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].NetworkIXLAN.ASN < records[j].NetworkIXLAN.ASN
	})
	return records, nil
}

type envelope struct {
	Data json.RawMessage `json:"data"`
}

func (c *Client) get(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return serrors.WrapStr("building registry request", err, "path", path)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Api-Key "+c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return serrors.Join(peering.ErrRegistryUnavailable, err, "path", path)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		// PeeringDB answers an empty data list for unknown objects on
		// list endpoints; a 404 means the endpoint itself is off.
		return serrors.Join(peering.ErrRegistryUnavailable, nil,
			"path", path, "status", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return serrors.Join(peering.ErrRegistryUnavailable, nil,
			"path", path, "status", resp.StatusCode)
	}
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return serrors.Join(peering.ErrRegistryUnavailable, err, "path", path)
	}
	if err := json.Unmarshal(env.Data, result); err != nil {
		return serrors.WrapStr("decoding registry response", err, "path", path)
	}
	return nil
}
