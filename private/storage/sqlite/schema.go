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

package sqlite

const (
	// SchemaVersion is the version of the SQLite schema understood by this
	// backend. Whenever changes to the schema are made, this version number
	// has to be increased to prevent silent data corruption.
	SchemaVersion = 1
	// Schema is the SQLite database layout.
	Schema = `
	CREATE TABLE templates (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		type TEXT NOT NULL DEFAULT 'configuration',
		body TEXT NOT NULL
	);
	CREATE TABLE routing_policies (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		slug TEXT NOT NULL UNIQUE,
		type TEXT NOT NULL,
		weight INTEGER NOT NULL DEFAULT 0,
		address_family INTEGER NOT NULL DEFAULT 0
	);
	CREATE TABLE communities (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		value TEXT NOT NULL,
		type TEXT NOT NULL DEFAULT 'egress'
	);
	CREATE TABLE autonomous_systems (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		asn INTEGER NOT NULL UNIQUE,
		name TEXT NOT NULL,
		irr_as_set TEXT NOT NULL DEFAULT '',
		peeringdb_id INTEGER NOT NULL DEFAULT 0,
		contact_name TEXT NOT NULL DEFAULT '',
		contact_phone TEXT NOT NULL DEFAULT '',
		contact_email TEXT NOT NULL DEFAULT '',
		ipv4_max_prefixes INTEGER NOT NULL DEFAULT 0,
		ipv6_max_prefixes INTEGER NOT NULL DEFAULT 0,
		keep_synced INTEGER NOT NULL DEFAULT 0,
		comments TEXT NOT NULL DEFAULT '',
		last_synchronized TIMESTAMP
	);
	CREATE TABLE routers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		hostname TEXT NOT NULL UNIQUE,
		platform TEXT NOT NULL DEFAULT '',
		template_id INTEGER REFERENCES templates (id),
		comments TEXT NOT NULL DEFAULT ''
	);
	CREATE TABLE bgp_groups (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		slug TEXT NOT NULL UNIQUE,
		comments TEXT NOT NULL DEFAULT ''
	);
	CREATE TABLE internet_exchanges (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		slug TEXT NOT NULL UNIQUE,
		peeringdb_id INTEGER NOT NULL DEFAULT 0,
		router_id INTEGER REFERENCES routers (id),
		template_id INTEGER REFERENCES templates (id),
		ipv4_prefix TEXT NOT NULL DEFAULT '',
		ipv6_prefix TEXT NOT NULL DEFAULT '',
		check_bgp_session_states INTEGER NOT NULL DEFAULT 0,
		comments TEXT NOT NULL DEFAULT ''
	);
	CREATE TABLE direct_peering_sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		as_id INTEGER NOT NULL REFERENCES autonomous_systems (id),
		group_id INTEGER REFERENCES bgp_groups (id),
		router_id INTEGER REFERENCES routers (id),
		ip TEXT NOT NULL,
		relationship TEXT NOT NULL,
		multihop_ttl INTEGER NOT NULL DEFAULT 1,
		password TEXT NOT NULL DEFAULT '',
		encrypted_password TEXT NOT NULL DEFAULT '',
		enabled INTEGER NOT NULL DEFAULT 1,
		bgp_state TEXT NOT NULL DEFAULT 'idle',
		received_prefix_count INTEGER NOT NULL DEFAULT 0,
		last_established TIMESTAMP,
		comments TEXT NOT NULL DEFAULT '',
		UNIQUE (group_id, as_id, ip)
	);
	CREATE TABLE internet_exchange_peering_sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		exchange_id INTEGER NOT NULL REFERENCES internet_exchanges (id),
		as_id INTEGER NOT NULL REFERENCES autonomous_systems (id),
		ip TEXT NOT NULL,
		is_route_server INTEGER NOT NULL DEFAULT 0,
		password TEXT NOT NULL DEFAULT '',
		encrypted_password TEXT NOT NULL DEFAULT '',
		enabled INTEGER NOT NULL DEFAULT 0,
		bgp_state TEXT NOT NULL DEFAULT 'idle',
		received_prefix_count INTEGER NOT NULL DEFAULT 0,
		last_established TIMESTAMP,
		comments TEXT NOT NULL DEFAULT '',
		UNIQUE (exchange_id, as_id, ip)
	);
	CREATE TABLE policy_refs (
		object_type TEXT NOT NULL,
		object_id INTEGER NOT NULL,
		policy_id INTEGER NOT NULL REFERENCES routing_policies (id),
		direction TEXT NOT NULL,
		PRIMARY KEY (object_type, object_id, policy_id, direction)
	);
	CREATE TABLE community_refs (
		object_type TEXT NOT NULL,
		object_id INTEGER NOT NULL,
		community_id INTEGER NOT NULL REFERENCES communities (id),
		PRIMARY KEY (object_type, object_id, community_id)
	);
	CREATE INDEX idx_direct_sessions_group ON direct_peering_sessions (group_id);
	CREATE INDEX idx_direct_sessions_router ON direct_peering_sessions (router_id);
	CREATE INDEX idx_exchange_sessions_exchange
		ON internet_exchange_peering_sessions (exchange_id);
	`
)
