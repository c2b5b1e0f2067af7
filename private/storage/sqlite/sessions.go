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

import (
	"context"
	"database/sql"
	"net/netip"

	"github.com/peermgr/peermgr/peering"
	"github.com/peermgr/peermgr/pkg/bgp"
	"github.com/peermgr/peermgr/private/storage"
	"github.com/peermgr/peermgr/private/storage/db"
)

const directColumns = `id, as_id, group_id, router_id, ip, relationship,
	multihop_ttl, password, encrypted_password, enabled, bgp_state,
	received_prefix_count, last_established, comments`

func scanDirectSession(row rowScanner) (*peering.DirectPeeringSession, error) {
	var s peering.DirectPeeringSession
	var groupID, routerID sql.NullInt64
	var rawIP, rawState, relationship string
	var established sql.NullTime
	err := row.Scan(&s.ID, &s.ASID, &groupID, &routerID, &rawIP,
		&relationship, &s.MultihopTTL, &s.Password, &s.EncryptedPassword,
		&s.Enabled, &rawState, &s.ReceivedPrefixCount, &established,
		&s.Comments)
	if err != nil {
		return nil, err
	}
	s.GroupID = groupID.Int64
	s.RouterID = routerID.Int64
	s.Relationship = bgp.Relationship(relationship)
	s.LastEstablished = fromNullTime(established)
	if s.IP, err = parseAddr(rawIP); err != nil {
		return nil, err
	}
	state, err := bgp.ParseState(rawState)
	if err != nil {
		return nil, db.NewDataError("parsing stored BGP state", err)
	}
	s.BGPState = state
	return &s, nil
}

// DirectSession returns the direct peering session with the given ID.
func (e *executor) DirectSession(ctx context.Context,
	id int64) (*peering.DirectPeeringSession, error) {

	e.RLock()
	defer e.RUnlock()
	query := `SELECT ` + directColumns + ` FROM direct_peering_sessions
		WHERE id = ?`
	s, err := scanDirectSession(e.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, notFound("direct peering session", "id", id)
	}
	if err != nil {
		return nil, db.NewReadError("selecting direct session", err)
	}
	return s, nil
}

// DirectSessionsForGroup returns the direct sessions of a BGP group ordered
// by IP.
func (e *executor) DirectSessionsForGroup(ctx context.Context,
	groupID int64) ([]*peering.DirectPeeringSession, error) {

	e.RLock()
	defer e.RUnlock()
	return e.directSessions(ctx, `WHERE group_id = ?`, groupID)
}

// DirectSessionsForRouter returns the direct sessions terminating on the
// given router ordered by IP.
func (e *executor) DirectSessionsForRouter(ctx context.Context,
	routerID int64) ([]*peering.DirectPeeringSession, error) {

	e.RLock()
	defer e.RUnlock()
	return e.directSessions(ctx, `WHERE router_id = ?`, routerID)
}

func (e *executor) directSessions(ctx context.Context, cond string,
	args ...any) ([]*peering.DirectPeeringSession, error) {

	query := `SELECT ` + directColumns + ` FROM direct_peering_sessions ` +
		cond + ` ORDER BY ip ASC`
	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, db.NewReadError("selecting direct sessions", err)
	}
	defer rows.Close()
	var sessions []*peering.DirectPeeringSession
	for rows.Next() {
		s, err := scanDirectSession(rows)
		if err != nil {
			return nil, db.NewReadError("scanning direct session", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, db.NewReadError("iterating direct sessions", err)
	}
	return sessions, nil
}

// InsertDirectSession stores a new direct session and sets its ID.
func (e *executor) InsertDirectSession(ctx context.Context,
	s *peering.DirectPeeringSession) error {

	e.Lock()
	defer e.Unlock()
	query := `INSERT INTO direct_peering_sessions (as_id, group_id,
		router_id, ip, relationship, multihop_ttl, password,
		encrypted_password, enabled, bgp_state, received_prefix_count,
		last_established, comments)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := e.db.ExecContext(ctx, query, s.ASID, nullID(s.GroupID),
		nullID(s.RouterID), s.IP.String(), string(s.Relationship),
		s.MultihopTTL, s.Password, s.EncryptedPassword, s.Enabled,
		s.BGPState.String(), s.ReceivedPrefixCount,
		nullTime(s.LastEstablished), s.Comments)
	if err != nil {
		return db.NewWriteError("inserting direct session", err, "ip", s.IP)
	}
	if s.ID, err = res.LastInsertId(); err != nil {
		return db.NewWriteError("fetching direct session id", err)
	}
	return nil
}

// UpdateDirectSession persists changes to an existing direct session.
func (e *executor) UpdateDirectSession(ctx context.Context,
	s *peering.DirectPeeringSession) error {

	e.Lock()
	defer e.Unlock()
	query := `UPDATE direct_peering_sessions SET as_id = ?, group_id = ?,
		router_id = ?, ip = ?, relationship = ?, multihop_ttl = ?,
		password = ?, encrypted_password = ?, enabled = ?, bgp_state = ?,
		received_prefix_count = ?, last_established = ?, comments = ?
		WHERE id = ?`
	res, err := e.db.ExecContext(ctx, query, s.ASID, nullID(s.GroupID),
		nullID(s.RouterID), s.IP.String(), string(s.Relationship),
		s.MultihopTTL, s.Password, s.EncryptedPassword, s.Enabled,
		s.BGPState.String(), s.ReceivedPrefixCount,
		nullTime(s.LastEstablished), s.Comments, s.ID)
	if err != nil {
		return db.NewWriteError("updating direct session", err, "id", s.ID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("direct peering session", "id", s.ID)
	}
	return nil
}

const exchangeColumns = `id, exchange_id, as_id, ip, is_route_server,
	password, encrypted_password, enabled, bgp_state,
	received_prefix_count, last_established, comments`

func scanExchangeSession(
	row rowScanner) (*peering.InternetExchangePeeringSession, error) {

	var s peering.InternetExchangePeeringSession
	var rawIP, rawState string
	var established sql.NullTime
	err := row.Scan(&s.ID, &s.ExchangeID, &s.ASID, &rawIP, &s.IsRouteServer,
		&s.Password, &s.EncryptedPassword, &s.Enabled, &rawState,
		&s.ReceivedPrefixCount, &established, &s.Comments)
	if err != nil {
		return nil, err
	}
	s.LastEstablished = fromNullTime(established)
	if s.IP, err = parseAddr(rawIP); err != nil {
		return nil, err
	}
	state, err := bgp.ParseState(rawState)
	if err != nil {
		return nil, db.NewDataError("parsing stored BGP state", err)
	}
	s.BGPState = state
	return &s, nil
}

// ExchangeSession returns the exchange session with the given ID.
func (e *executor) ExchangeSession(ctx context.Context,
	id int64) (*peering.InternetExchangePeeringSession, error) {

	e.RLock()
	defer e.RUnlock()
	query := `SELECT ` + exchangeColumns +
		` FROM internet_exchange_peering_sessions WHERE id = ?`
	s, err := scanExchangeSession(e.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, notFound("exchange peering session", "id", id)
	}
	if err != nil {
		return nil, db.NewReadError("selecting exchange session", err)
	}
	return s, nil
}

// ExchangeSessionsForExchange returns all sessions on an exchange ordered
// by IP.
func (e *executor) ExchangeSessionsForExchange(ctx context.Context,
	exchangeID int64) ([]*peering.InternetExchangePeeringSession, error) {

	e.RLock()
	defer e.RUnlock()
	query := `SELECT ` + exchangeColumns +
		` FROM internet_exchange_peering_sessions WHERE exchange_id = ?
		ORDER BY ip ASC`
	rows, err := e.db.QueryContext(ctx, query, exchangeID)
	if err != nil {
		return nil, db.NewReadError("selecting exchange sessions", err)
	}
	defer rows.Close()
	var sessions []*peering.InternetExchangePeeringSession
	for rows.Next() {
		s, err := scanExchangeSession(rows)
		if err != nil {
			return nil, db.NewReadError("scanning exchange session", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, db.NewReadError("iterating exchange sessions", err)
	}
	return sessions, nil
}

// ExchangeSessionByKey looks a session up by its natural key (exchange,
// peer AS, IP).
func (e *executor) ExchangeSessionByKey(ctx context.Context, exchangeID int64,
	asn bgp.ASN, ip netip.Addr) (*peering.InternetExchangePeeringSession, error) {

	e.RLock()
	defer e.RUnlock()
	query := `SELECT s.id, s.exchange_id, s.as_id, s.ip, s.is_route_server,
			s.password, s.encrypted_password, s.enabled, s.bgp_state,
			s.received_prefix_count, s.last_established, s.comments
		FROM internet_exchange_peering_sessions s
		JOIN autonomous_systems a ON a.id = s.as_id
		WHERE s.exchange_id = ? AND a.asn = ? AND s.ip = ?`
	s, err := scanExchangeSession(
		e.db.QueryRowContext(ctx, query, exchangeID, int64(asn), ip.String()))
	if err == sql.ErrNoRows {
		return nil, notFound("exchange peering session",
			"exchange", exchangeID, "asn", asn, "ip", ip)
	}
	if err != nil {
		return nil, db.NewReadError("selecting exchange session by key", err)
	}
	return s, nil
}

// InsertExchangeSession stores a new exchange session and sets its ID.
func (e *executor) InsertExchangeSession(ctx context.Context,
	s *peering.InternetExchangePeeringSession) error {

	e.Lock()
	defer e.Unlock()
	query := `INSERT INTO internet_exchange_peering_sessions (exchange_id,
		as_id, ip, is_route_server, password, encrypted_password, enabled,
		bgp_state, received_prefix_count, last_established, comments)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := e.db.ExecContext(ctx, query, s.ExchangeID, s.ASID,
		s.IP.String(), s.IsRouteServer, s.Password, s.EncryptedPassword,
		s.Enabled, s.BGPState.String(), s.ReceivedPrefixCount,
		nullTime(s.LastEstablished), s.Comments)
	if err != nil {
		return db.NewWriteError("inserting exchange session", err, "ip", s.IP)
	}
	if s.ID, err = res.LastInsertId(); err != nil {
		return db.NewWriteError("fetching exchange session id", err)
	}
	return nil
}

// UpdateExchangeSession persists changes to an existing exchange session.
func (e *executor) UpdateExchangeSession(ctx context.Context,
	s *peering.InternetExchangePeeringSession) error {

	e.Lock()
	defer e.Unlock()
	query := `UPDATE internet_exchange_peering_sessions SET exchange_id = ?,
		as_id = ?, ip = ?, is_route_server = ?, password = ?,
		encrypted_password = ?, enabled = ?, bgp_state = ?,
		received_prefix_count = ?, last_established = ?, comments = ?
		WHERE id = ?`
	res, err := e.db.ExecContext(ctx, query, s.ExchangeID, s.ASID,
		s.IP.String(), s.IsRouteServer, s.Password, s.EncryptedPassword,
		s.Enabled, s.BGPState.String(), s.ReceivedPrefixCount,
		nullTime(s.LastEstablished), s.Comments, s.ID)
	if err != nil {
		return db.NewWriteError("updating exchange session", err, "id", s.ID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("exchange peering session", "id", s.ID)
	}
	return nil
}

// SetSessionStates applies all observed-state updates in one transaction.
// Either all of them are applied or, on any failure, none is.
func (e *executor) SetSessionStates(ctx context.Context,
	updates []storage.SessionStateUpdate) error {

	if len(updates) == 0 {
		return nil
	}
	e.Lock()
	defer e.Unlock()
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return db.NewTxError("starting state update", err)
	}
	for _, u := range updates {
		table := "direct_peering_sessions"
		if u.Kind == storage.KindExchange {
			table = "internet_exchange_peering_sessions"
		}
		query := `UPDATE ` + table + ` SET bgp_state = ?,
			received_prefix_count = ?, last_established = ? WHERE id = ?`
		res, err := tx.ExecContext(ctx, query, u.State.String(),
			u.ReceivedPrefixCount, nullTime(u.LastEstablished), u.ID)
		if err != nil {
			tx.Rollback()
			return db.NewWriteError("updating session state", err, "id", u.ID)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			tx.Rollback()
			return notFound("session", "kind", u.Kind, "id", u.ID)
		}
	}
	if err := tx.Commit(); err != nil {
		return db.NewTxError("committing state update", err)
	}
	return nil
}
