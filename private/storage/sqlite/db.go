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

// Package sqlite implements the storage interfaces on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"net/netip"
	"sync"
	"time"

	"github.com/peermgr/peermgr/peering"
	"github.com/peermgr/peermgr/pkg/bgp"
	"github.com/peermgr/peermgr/pkg/private/serrors"
	"github.com/peermgr/peermgr/private/storage"
	"github.com/peermgr/peermgr/private/storage/db"
)

var _ storage.DB = (*Backend)(nil)

// Backend is the SQLite implementation of storage.DB.
type Backend struct {
	db *sql.DB
	*executor
}

// New returns a new SQLite backend opening a database at the given path. If
// no database exists a new database is created. If the schema version of
// the stored database is different from the one in schema.go, an error is
// returned.
func New(path string) (*Backend, error) {
	conn, err := db.NewSqlite(path, Schema, SchemaVersion)
	if err != nil {
		return nil, err
	}
	return &Backend{
		executor: &executor{db: conn},
		db:       conn,
	}, nil
}

// Close closes the database.
func (b *Backend) Close() error {
	return b.db.Close()
}

type executor struct {
	sync.RWMutex
	db *sql.DB
}

const (
	objectAS       = "as"
	objectGroup    = "group"
	objectExchange = "exchange"
)

func nullID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

func fromNullTime(t sql.NullTime) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time
}

func parseAddr(raw string) (netip.Addr, error) {
	ip, err := netip.ParseAddr(raw)
	if err != nil {
		return netip.Addr{}, db.NewDataError("parsing stored IP", err, "raw", raw)
	}
	return ip, nil
}

func notFound(entity string, ctx ...any) error {
	return serrors.JoinNoStack(peering.ErrNotFound, nil,
		append([]any{"entity", entity}, ctx...)...)
}

// AutonomousSystem returns the AS with the given ASN.
func (e *executor) AutonomousSystem(ctx context.Context,
	asn bgp.ASN) (*peering.AutonomousSystem, error) {

	e.RLock()
	defer e.RUnlock()
	return e.autonomousSystem(ctx, `asn = ?`, int64(asn))
}

// AutonomousSystemByID returns the AS with the given row ID.
func (e *executor) AutonomousSystemByID(ctx context.Context,
	id int64) (*peering.AutonomousSystem, error) {

	e.RLock()
	defer e.RUnlock()
	return e.autonomousSystem(ctx, `id = ?`, id)
}

const asColumns = `id, asn, name, irr_as_set, peeringdb_id, contact_name,
	contact_phone, contact_email, ipv4_max_prefixes, ipv6_max_prefixes,
	keep_synced, comments, last_synchronized`

func (e *executor) autonomousSystem(ctx context.Context, cond string,
	arg any) (*peering.AutonomousSystem, error) {

	query := `SELECT ` + asColumns + ` FROM autonomous_systems WHERE ` + cond
	as, err := scanAS(e.db.QueryRowContext(ctx, query, arg))
	if err == sql.ErrNoRows {
		return nil, notFound("autonomous system", "cond", cond, "arg", arg)
	}
	if err != nil {
		return nil, db.NewReadError("selecting autonomous system", err)
	}
	if err := e.loadPolicyRefs(ctx, objectAS, as.ID,
		&as.ImportPolicyIDs, &as.ExportPolicyIDs); err != nil {
		return nil, err
	}
	return as, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAS(row rowScanner) (*peering.AutonomousSystem, error) {
	var as peering.AutonomousSystem
	var asn int64
	var synced sql.NullTime
	err := row.Scan(&as.ID, &asn, &as.Name, &as.IRRASSet, &as.PeeringDBID,
		&as.ContactName, &as.ContactPhone, &as.ContactEmail,
		&as.IPv4MaxPrefixes, &as.IPv6MaxPrefixes, &as.KeepSynced,
		&as.Comments, &synced)
	if err != nil {
		return nil, err
	}
	as.ASN = bgp.ASN(asn)
	as.LastSynchronized = fromNullTime(synced)
	return &as, nil
}

// ListAutonomousSystems returns all known ASes ordered by ASN.
func (e *executor) ListAutonomousSystems(
	ctx context.Context) ([]*peering.AutonomousSystem, error) {

	e.RLock()
	defer e.RUnlock()
	query := `SELECT ` + asColumns + ` FROM autonomous_systems ORDER BY asn ASC`
	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		return nil, db.NewReadError("selecting autonomous systems", err)
	}
	defer rows.Close()
	var ases []*peering.AutonomousSystem
	for rows.Next() {
		as, err := scanAS(rows)
		if err != nil {
			return nil, db.NewReadError("scanning autonomous system", err)
		}
		ases = append(ases, as)
	}
	if err := rows.Err(); err != nil {
		return nil, db.NewReadError("iterating autonomous systems", err)
	}
	return ases, nil
}

// InsertAutonomousSystem stores a new AS and sets its ID.
func (e *executor) InsertAutonomousSystem(ctx context.Context,
	as *peering.AutonomousSystem) error {

	e.Lock()
	defer e.Unlock()
	query := `INSERT INTO autonomous_systems (asn, name, irr_as_set,
		peeringdb_id, contact_name, contact_phone, contact_email,
		ipv4_max_prefixes, ipv6_max_prefixes, keep_synced, comments,
		last_synchronized)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := e.db.ExecContext(ctx, query, int64(as.ASN), as.Name,
		as.IRRASSet, as.PeeringDBID, as.ContactName, as.ContactPhone,
		as.ContactEmail, as.IPv4MaxPrefixes, as.IPv6MaxPrefixes,
		as.KeepSynced, as.Comments, nullTime(as.LastSynchronized))
	if err != nil {
		return db.NewWriteError("inserting autonomous system", err,
			"asn", as.ASN)
	}
	if as.ID, err = res.LastInsertId(); err != nil {
		return db.NewWriteError("fetching autonomous system id", err)
	}
	return e.storePolicyRefs(ctx, objectAS, as.ID,
		as.ImportPolicyIDs, as.ExportPolicyIDs)
}

// UpdateAutonomousSystem persists changes to an existing AS.
func (e *executor) UpdateAutonomousSystem(ctx context.Context,
	as *peering.AutonomousSystem) error {

	e.Lock()
	defer e.Unlock()
	query := `UPDATE autonomous_systems SET asn = ?, name = ?,
		irr_as_set = ?, peeringdb_id = ?, contact_name = ?,
		contact_phone = ?, contact_email = ?, ipv4_max_prefixes = ?,
		ipv6_max_prefixes = ?, keep_synced = ?, comments = ?,
		last_synchronized = ? WHERE id = ?`
	res, err := e.db.ExecContext(ctx, query, int64(as.ASN), as.Name,
		as.IRRASSet, as.PeeringDBID, as.ContactName, as.ContactPhone,
		as.ContactEmail, as.IPv4MaxPrefixes, as.IPv6MaxPrefixes,
		as.KeepSynced, as.Comments, nullTime(as.LastSynchronized), as.ID)
	if err != nil {
		return db.NewWriteError("updating autonomous system", err,
			"asn", as.ASN)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("autonomous system", "id", as.ID)
	}
	return e.storePolicyRefs(ctx, objectAS, as.ID,
		as.ImportPolicyIDs, as.ExportPolicyIDs)
}

// Group returns the BGP group with the given ID.
func (e *executor) Group(ctx context.Context, id int64) (*peering.BGPGroup, error) {
	e.RLock()
	defer e.RUnlock()
	query := `SELECT id, name, slug, comments FROM bgp_groups WHERE id = ?`
	var g peering.BGPGroup
	err := e.db.QueryRowContext(ctx, query, id).Scan(
		&g.ID, &g.Name, &g.Slug, &g.Comments)
	if err == sql.ErrNoRows {
		return nil, notFound("bgp group", "id", id)
	}
	if err != nil {
		return nil, db.NewReadError("selecting bgp group", err)
	}
	if err := e.loadPolicyRefs(ctx, objectGroup, g.ID,
		&g.ImportPolicyIDs, &g.ExportPolicyIDs); err != nil {
		return nil, err
	}
	if err := e.loadCommunityRefs(ctx, objectGroup, g.ID, &g.CommunityIDs); err != nil {
		return nil, err
	}
	return &g, nil
}

// ListGroups returns all BGP groups ordered by name.
func (e *executor) ListGroups(ctx context.Context) ([]*peering.BGPGroup, error) {
	e.RLock()
	defer e.RUnlock()
	query := `SELECT id, name, slug, comments FROM bgp_groups ORDER BY name ASC`
	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		return nil, db.NewReadError("selecting bgp groups", err)
	}
	defer rows.Close()
	var groups []*peering.BGPGroup
	for rows.Next() {
		var g peering.BGPGroup
		if err := rows.Scan(&g.ID, &g.Name, &g.Slug, &g.Comments); err != nil {
			return nil, db.NewReadError("scanning bgp group", err)
		}
		groups = append(groups, &g)
	}
	if err := rows.Err(); err != nil {
		return nil, db.NewReadError("iterating bgp groups", err)
	}
	return groups, nil
}

// InsertGroup stores a new BGP group and sets its ID.
func (e *executor) InsertGroup(ctx context.Context, g *peering.BGPGroup) error {
	e.Lock()
	defer e.Unlock()
	query := `INSERT INTO bgp_groups (name, slug, comments) VALUES (?, ?, ?)`
	res, err := e.db.ExecContext(ctx, query, g.Name, g.Slug, g.Comments)
	if err != nil {
		return db.NewWriteError("inserting bgp group", err, "slug", g.Slug)
	}
	if g.ID, err = res.LastInsertId(); err != nil {
		return db.NewWriteError("fetching bgp group id", err)
	}
	if err := e.storePolicyRefs(ctx, objectGroup, g.ID,
		g.ImportPolicyIDs, g.ExportPolicyIDs); err != nil {
		return err
	}
	return e.storeCommunityRefs(ctx, objectGroup, g.ID, g.CommunityIDs)
}

const ixColumns = `id, name, slug, peeringdb_id, router_id, template_id,
	ipv4_prefix, ipv6_prefix, check_bgp_session_states, comments`

func scanExchange(row rowScanner) (*peering.InternetExchange, error) {
	var ix peering.InternetExchange
	var routerID, templateID sql.NullInt64
	err := row.Scan(&ix.ID, &ix.Name, &ix.Slug, &ix.PeeringDBID, &routerID,
		&templateID, &ix.IPv4Prefix, &ix.IPv6Prefix,
		&ix.CheckBGPSessionStates, &ix.Comments)
	if err != nil {
		return nil, err
	}
	ix.RouterID = routerID.Int64
	ix.TemplateID = templateID.Int64
	return &ix, nil
}

// Exchange returns the internet exchange with the given ID.
func (e *executor) Exchange(ctx context.Context,
	id int64) (*peering.InternetExchange, error) {

	e.RLock()
	defer e.RUnlock()
	query := `SELECT ` + ixColumns + ` FROM internet_exchanges WHERE id = ?`
	ix, err := scanExchange(e.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, notFound("internet exchange", "id", id)
	}
	if err != nil {
		return nil, db.NewReadError("selecting internet exchange", err)
	}
	if err := e.loadPolicyRefs(ctx, objectExchange, ix.ID,
		&ix.ImportPolicyIDs, &ix.ExportPolicyIDs); err != nil {
		return nil, err
	}
	if err := e.loadCommunityRefs(ctx, objectExchange, ix.ID, &ix.CommunityIDs); err != nil {
		return nil, err
	}
	return ix, nil
}

// ListExchanges returns all internet exchanges ordered by name.
func (e *executor) ListExchanges(
	ctx context.Context) ([]*peering.InternetExchange, error) {

	e.RLock()
	defer e.RUnlock()
	return e.exchanges(ctx, ``)
}

// ExchangesForRouter returns the exchanges whose managed router is the
// given one.
func (e *executor) ExchangesForRouter(ctx context.Context,
	routerID int64) ([]*peering.InternetExchange, error) {

	e.RLock()
	defer e.RUnlock()
	return e.exchanges(ctx, `WHERE router_id = ?`, routerID)
}

func (e *executor) exchanges(ctx context.Context, cond string,
	args ...any) ([]*peering.InternetExchange, error) {

	query := `SELECT ` + ixColumns + ` FROM internet_exchanges ` + cond +
		` ORDER BY name ASC`
	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, db.NewReadError("selecting internet exchanges", err)
	}
	defer rows.Close()
	var ixps []*peering.InternetExchange
	for rows.Next() {
		ix, err := scanExchange(rows)
		if err != nil {
			return nil, db.NewReadError("scanning internet exchange", err)
		}
		ixps = append(ixps, ix)
	}
	if err := rows.Err(); err != nil {
		return nil, db.NewReadError("iterating internet exchanges", err)
	}
	return ixps, nil
}

// InsertExchange stores a new internet exchange and sets its ID.
func (e *executor) InsertExchange(ctx context.Context,
	ix *peering.InternetExchange) error {

	e.Lock()
	defer e.Unlock()
	query := `INSERT INTO internet_exchanges (name, slug, peeringdb_id,
		router_id, template_id, ipv4_prefix, ipv6_prefix,
		check_bgp_session_states, comments)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := e.db.ExecContext(ctx, query, ix.Name, ix.Slug, ix.PeeringDBID,
		nullID(ix.RouterID), nullID(ix.TemplateID), ix.IPv4Prefix,
		ix.IPv6Prefix, ix.CheckBGPSessionStates, ix.Comments)
	if err != nil {
		return db.NewWriteError("inserting internet exchange", err,
			"slug", ix.Slug)
	}
	if ix.ID, err = res.LastInsertId(); err != nil {
		return db.NewWriteError("fetching internet exchange id", err)
	}
	if err := e.storePolicyRefs(ctx, objectExchange, ix.ID,
		ix.ImportPolicyIDs, ix.ExportPolicyIDs); err != nil {
		return err
	}
	return e.storeCommunityRefs(ctx, objectExchange, ix.ID, ix.CommunityIDs)
}

// UpdateExchange persists changes to an existing exchange.
func (e *executor) UpdateExchange(ctx context.Context,
	ix *peering.InternetExchange) error {

	e.Lock()
	defer e.Unlock()
	query := `UPDATE internet_exchanges SET name = ?, slug = ?,
		peeringdb_id = ?, router_id = ?, template_id = ?, ipv4_prefix = ?,
		ipv6_prefix = ?, check_bgp_session_states = ?, comments = ?
		WHERE id = ?`
	res, err := e.db.ExecContext(ctx, query, ix.Name, ix.Slug, ix.PeeringDBID,
		nullID(ix.RouterID), nullID(ix.TemplateID), ix.IPv4Prefix,
		ix.IPv6Prefix, ix.CheckBGPSessionStates, ix.Comments, ix.ID)
	if err != nil {
		return db.NewWriteError("updating internet exchange", err,
			"slug", ix.Slug)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("internet exchange", "id", ix.ID)
	}
	if err := e.storePolicyRefs(ctx, objectExchange, ix.ID,
		ix.ImportPolicyIDs, ix.ExportPolicyIDs); err != nil {
		return err
	}
	return e.storeCommunityRefs(ctx, objectExchange, ix.ID, ix.CommunityIDs)
}

// Router returns the router with the given ID.
func (e *executor) Router(ctx context.Context, id int64) (*peering.Router, error) {
	e.RLock()
	defer e.RUnlock()
	query := `SELECT id, name, hostname, platform, template_id, comments
		FROM routers WHERE id = ?`
	var r peering.Router
	var templateID sql.NullInt64
	err := e.db.QueryRowContext(ctx, query, id).Scan(&r.ID, &r.Name,
		&r.Hostname, &r.Platform, &templateID, &r.Comments)
	if err == sql.ErrNoRows {
		return nil, notFound("router", "id", id)
	}
	if err != nil {
		return nil, db.NewReadError("selecting router", err)
	}
	r.TemplateID = templateID.Int64
	return &r, nil
}

// ListRouters returns all routers ordered by name.
func (e *executor) ListRouters(ctx context.Context) ([]*peering.Router, error) {
	e.RLock()
	defer e.RUnlock()
	query := `SELECT id, name, hostname, platform, template_id, comments
		FROM routers ORDER BY name ASC`
	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		return nil, db.NewReadError("selecting routers", err)
	}
	defer rows.Close()
	var routers []*peering.Router
	for rows.Next() {
		var r peering.Router
		var templateID sql.NullInt64
		if err := rows.Scan(&r.ID, &r.Name, &r.Hostname, &r.Platform,
			&templateID, &r.Comments); err != nil {
			return nil, db.NewReadError("scanning router", err)
		}
		r.TemplateID = templateID.Int64
		routers = append(routers, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, db.NewReadError("iterating routers", err)
	}
	return routers, nil
}

// InsertRouter stores a new router and sets its ID.
func (e *executor) InsertRouter(ctx context.Context, r *peering.Router) error {
	e.Lock()
	defer e.Unlock()
	query := `INSERT INTO routers (name, hostname, platform, template_id,
		comments) VALUES (?, ?, ?, ?, ?)`
	res, err := e.db.ExecContext(ctx, query, r.Name, r.Hostname, r.Platform,
		nullID(r.TemplateID), r.Comments)
	if err != nil {
		return db.NewWriteError("inserting router", err, "hostname", r.Hostname)
	}
	if r.ID, err = res.LastInsertId(); err != nil {
		return db.NewWriteError("fetching router id", err)
	}
	return nil
}

// DeleteRouter removes a router. The foreign key constraints reject the
// delete while an exchange or session still references it.
func (e *executor) DeleteRouter(ctx context.Context, id int64) error {
	e.Lock()
	defer e.Unlock()
	res, err := e.db.ExecContext(ctx, `DELETE FROM routers WHERE id = ?`, id)
	if err != nil {
		return db.NewWriteError("deleting router", err, "id", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("router", "id", id)
	}
	return nil
}

func (e *executor) loadPolicyRefs(ctx context.Context, objectType string,
	objectID int64, imports, exports *[]int64) error {

	query := `SELECT policy_id, direction FROM policy_refs
		WHERE object_type = ? AND object_id = ? ORDER BY policy_id ASC`
	rows, err := e.db.QueryContext(ctx, query, objectType, objectID)
	if err != nil {
		return db.NewReadError("selecting policy refs", err)
	}
	defer rows.Close()
	for rows.Next() {
		var policyID int64
		var direction string
		if err := rows.Scan(&policyID, &direction); err != nil {
			return db.NewReadError("scanning policy ref", err)
		}
		if direction == "import" {
			*imports = append(*imports, policyID)
		} else {
			*exports = append(*exports, policyID)
		}
	}
	return rows.Err()
}

func (e *executor) storePolicyRefs(ctx context.Context, objectType string,
	objectID int64, imports, exports []int64) error {

	query := `DELETE FROM policy_refs WHERE object_type = ? AND object_id = ?`
	if _, err := e.db.ExecContext(ctx, query, objectType, objectID); err != nil {
		return db.NewWriteError("clearing policy refs", err)
	}
	insert := `INSERT INTO policy_refs (object_type, object_id, policy_id,
		direction) VALUES (?, ?, ?, ?)`
	for _, id := range imports {
		if _, err := e.db.ExecContext(ctx, insert, objectType, objectID,
			id, "import"); err != nil {
			return db.NewWriteError("inserting policy ref", err, "policy", id)
		}
	}
	for _, id := range exports {
		if _, err := e.db.ExecContext(ctx, insert, objectType, objectID,
			id, "export"); err != nil {
			return db.NewWriteError("inserting policy ref", err, "policy", id)
		}
	}
	return nil
}

func (e *executor) loadCommunityRefs(ctx context.Context, objectType string,
	objectID int64, communities *[]int64) error {

	query := `SELECT community_id FROM community_refs
		WHERE object_type = ? AND object_id = ? ORDER BY community_id ASC`
	rows, err := e.db.QueryContext(ctx, query, objectType, objectID)
	if err != nil {
		return db.NewReadError("selecting community refs", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return db.NewReadError("scanning community ref", err)
		}
		*communities = append(*communities, id)
	}
	return rows.Err()
}

func (e *executor) storeCommunityRefs(ctx context.Context, objectType string,
	objectID int64, communities []int64) error {

	query := `DELETE FROM community_refs WHERE object_type = ? AND object_id = ?`
	if _, err := e.db.ExecContext(ctx, query, objectType, objectID); err != nil {
		return db.NewWriteError("clearing community refs", err)
	}
	insert := `INSERT INTO community_refs (object_type, object_id,
		community_id) VALUES (?, ?, ?)`
	for _, id := range communities {
		if _, err := e.db.ExecContext(ctx, insert, objectType, objectID,
			id); err != nil {
			return db.NewWriteError("inserting community ref", err,
				"community", id)
		}
	}
	return nil
}
