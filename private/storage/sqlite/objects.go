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
	"strings"

	"github.com/peermgr/peermgr/peering"
	"github.com/peermgr/peermgr/private/storage/db"
)

// Template returns the template with the given ID.
func (e *executor) Template(ctx context.Context, id int64) (*peering.Template, error) {
	e.RLock()
	defer e.RUnlock()
	query := `SELECT id, name, type, body FROM templates WHERE id = ?`
	var t peering.Template
	err := e.db.QueryRowContext(ctx, query, id).Scan(&t.ID, &t.Name, &t.Type, &t.Body)
	if err == sql.ErrNoRows {
		return nil, notFound("template", "id", id)
	}
	if err != nil {
		return nil, db.NewReadError("selecting template", err)
	}
	return &t, nil
}

// InsertTemplate stores a new template and sets its ID.
func (e *executor) InsertTemplate(ctx context.Context, t *peering.Template) error {
	e.Lock()
	defer e.Unlock()
	query := `INSERT INTO templates (name, type, body) VALUES (?, ?, ?)`
	res, err := e.db.ExecContext(ctx, query, t.Name, t.Type, t.Body)
	if err != nil {
		return db.NewWriteError("inserting template", err, "name", t.Name)
	}
	if t.ID, err = res.LastInsertId(); err != nil {
		return db.NewWriteError("fetching template id", err)
	}
	return nil
}

// DeleteTemplate removes a template. Foreign key constraints reject the
// delete while a router or an exchange still has it assigned.
func (e *executor) DeleteTemplate(ctx context.Context, id int64) error {
	e.Lock()
	defer e.Unlock()
	res, err := e.db.ExecContext(ctx, `DELETE FROM templates WHERE id = ?`, id)
	if err != nil {
		return db.NewWriteError("deleting template", err, "id", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("template", "id", id)
	}
	return nil
}

// RoutingPolicies returns the policies with the given IDs ordered by
// descending weight.
func (e *executor) RoutingPolicies(ctx context.Context,
	ids []int64) ([]*peering.RoutingPolicy, error) {

	if len(ids) == 0 {
		return nil, nil
	}
	e.RLock()
	defer e.RUnlock()
	query := `SELECT id, name, slug, type, weight, address_family
		FROM routing_policies WHERE id IN (` + placeholders(len(ids)) + `)
		ORDER BY weight DESC, slug ASC`
	rows, err := e.db.QueryContext(ctx, query, int64Args(ids)...)
	if err != nil {
		return nil, db.NewReadError("selecting routing policies", err)
	}
	defer rows.Close()
	var policies []*peering.RoutingPolicy
	for rows.Next() {
		var p peering.RoutingPolicy
		if err := rows.Scan(&p.ID, &p.Name, &p.Slug, &p.Type, &p.Weight,
			&p.AddressFamily); err != nil {
			return nil, db.NewReadError("scanning routing policy", err)
		}
		policies = append(policies, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, db.NewReadError("iterating routing policies", err)
	}
	return policies, nil
}

// InsertRoutingPolicy stores a new routing policy and sets its ID.
func (e *executor) InsertRoutingPolicy(ctx context.Context,
	p *peering.RoutingPolicy) error {

	e.Lock()
	defer e.Unlock()
	query := `INSERT INTO routing_policies (name, slug, type, weight,
		address_family) VALUES (?, ?, ?, ?, ?)`
	res, err := e.db.ExecContext(ctx, query, p.Name, p.Slug, p.Type,
		p.Weight, p.AddressFamily)
	if err != nil {
		return db.NewWriteError("inserting routing policy", err, "slug", p.Slug)
	}
	if p.ID, err = res.LastInsertId(); err != nil {
		return db.NewWriteError("fetching routing policy id", err)
	}
	return nil
}

// Communities returns the communities with the given IDs.
func (e *executor) Communities(ctx context.Context,
	ids []int64) ([]*peering.Community, error) {

	if len(ids) == 0 {
		return nil, nil
	}
	e.RLock()
	defer e.RUnlock()
	query := `SELECT id, name, value, type FROM communities
		WHERE id IN (` + placeholders(len(ids)) + `) ORDER BY value ASC`
	rows, err := e.db.QueryContext(ctx, query, int64Args(ids)...)
	if err != nil {
		return nil, db.NewReadError("selecting communities", err)
	}
	defer rows.Close()
	var communities []*peering.Community
	for rows.Next() {
		var c peering.Community
		if err := rows.Scan(&c.ID, &c.Name, &c.Value, &c.Type); err != nil {
			return nil, db.NewReadError("scanning community", err)
		}
		communities = append(communities, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, db.NewReadError("iterating communities", err)
	}
	return communities, nil
}

// InsertCommunity stores a new community and sets its ID.
func (e *executor) InsertCommunity(ctx context.Context, c *peering.Community) error {
	e.Lock()
	defer e.Unlock()
	query := `INSERT INTO communities (name, value, type) VALUES (?, ?, ?)`
	res, err := e.db.ExecContext(ctx, query, c.Name, c.Value, c.Type)
	if err != nil {
		return db.NewWriteError("inserting community", err, "value", c.Value)
	}
	if c.ID, err = res.LastInsertId(); err != nil {
		return db.NewWriteError("fetching community id", err)
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
