// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/opentrusty/farmgate/internal/identity"
	"github.com/opentrusty/farmgate/internal/rbac"
)

// PrincipalRepository implements identity.Repository and identity.EdgeRepository
type PrincipalRepository struct {
	db *DB
}

// NewPrincipalRepository creates a new principal repository
func NewPrincipalRepository(db *DB) *PrincipalRepository {
	return &PrincipalRepository{db: db}
}

var (
	_ identity.Repository     = (*PrincipalRepository)(nil)
	_ identity.EdgeRepository = (*PrincipalRepository)(nil)
)

// Create persists p and assigns its ID when zero
func (r *PrincipalRepository) Create(ctx context.Context, p *identity.Principal) error {
	return insertPrincipal(ctx, r.db.pool, p)
}

// CreateDelegate persists a delegate unless its tenant already holds limit
// delegates. The tenant row is locked for the duration of the check.
func (r *PrincipalRepository) CreateDelegate(ctx context.Context, p *identity.Principal, limit int) error {
	tid, ok := p.HomeTenant()
	if !ok {
		return identity.ErrHomeTenantRequired
	}

	return r.db.withTx(ctx, func(tx pgx.Tx) error {
		var locked int64
		err := tx.QueryRow(ctx, `SELECT id FROM tenants WHERE id = $1 FOR UPDATE`, tid).Scan(&locked)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("home tenant %d does not exist", tid)
			}
			return fmt.Errorf("failed to lock tenant: %w", err)
		}

		n, err := countByHomeTenant(ctx, tx, tid, identity.LevelTenantDelegate)
		if err != nil {
			return err
		}
		if n >= limit {
			return identity.ErrCapacityExceeded
		}
		return insertPrincipal(ctx, tx, p)
	})
}

func insertPrincipal(ctx context.Context, q querier, p *identity.Principal) error {
	if err := p.Validate(); err != nil {
		return err
	}
	attrs, err := identity.MarshalAttributes(p.Attributes)
	if err != nil {
		return fmt.Errorf("failed to encode attributes: %w", err)
	}
	if attrs == nil {
		attrs = []byte("{}")
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
		p.UpdatedAt = p.CreatedAt
	}

	var idArg any
	if p.ID != 0 {
		idArg = p.ID
	}
	err = q.QueryRow(ctx, `
		INSERT INTO principals (
			id, level, home_tenant_id, active, username, email, display_name,
			attributes, created_at, updated_at
		) VALUES (COALESCE($1, nextval('principals_id_seq')), $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`,
		idArg, string(p.Level), p.HomeTenantID, p.Active, p.Username, p.Email, p.DisplayName,
		attrs, p.CreatedAt, p.UpdatedAt,
	).Scan(&p.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return identity.ErrPrincipalAlreadyExists
		}
		return fmt.Errorf("failed to insert principal: %w", err)
	}

	if p.RoleIDs == nil {
		p.RoleIDs = identity.IDSet{}
	}
	if p.PermissionIDs == nil {
		p.PermissionIDs = identity.IDSet{}
	}
	for _, roleID := range p.RoleIDs.Slice() {
		if err := addEdge(ctx, q, principalRoleEdge, p.ID, roleID); err != nil {
			return err
		}
	}
	for _, permID := range p.PermissionIDs.Slice() {
		if err := addEdge(ctx, q, principalPermissionEdge, p.ID, permID); err != nil {
			return err
		}
	}
	return nil
}

// GetByID retrieves a principal with its role and permission edges
func (r *PrincipalRepository) GetByID(ctx context.Context, id int64) (*identity.Principal, error) {
	var (
		p     identity.Principal
		level string
		attrs []byte
	)
	err := r.db.pool.QueryRow(ctx, `
		SELECT id, level, home_tenant_id, active, username, email, display_name,
			attributes, created_at, updated_at
		FROM principals
		WHERE id = $1
	`, id).Scan(
		&p.ID, &level, &p.HomeTenantID, &p.Active, &p.Username, &p.Email, &p.DisplayName,
		&attrs, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, identity.ErrPrincipalNotFound
		}
		return nil, fmt.Errorf("failed to get principal: %w", err)
	}

	p.Level, err = identity.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	p.Attributes, err = identity.UnmarshalAttributes(p.Level, attrs)
	if err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("stored principal %d is invalid: %w", id, err)
	}

	if p.RoleIDs, err = r.loadEdges(ctx, `SELECT role_id FROM principal_roles WHERE principal_id = $1`, id); err != nil {
		return nil, err
	}
	if p.PermissionIDs, err = r.loadEdges(ctx, `SELECT permission_id FROM principal_permissions WHERE principal_id = $1`, id); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PrincipalRepository) loadEdges(ctx context.Context, query string, id int64) (identity.IDSet, error) {
	rows, err := r.db.pool.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load edges: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("failed to scan edges: %w", err)
	}
	return identity.NewIDSet(ids...), nil
}

// SetActive flips the active flag
func (r *PrincipalRepository) SetActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.db.pool.Exec(ctx, `
		UPDATE principals SET active = $2, updated_at = NOW() WHERE id = $1
	`, id, active)
	if err != nil {
		return fmt.Errorf("failed to update principal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return identity.ErrPrincipalNotFound
	}
	return nil
}

// CountByHomeTenant counts principals of a level in a tenant
func (r *PrincipalRepository) CountByHomeTenant(ctx context.Context, tenantID int64, level identity.Level) (int, error) {
	return countByHomeTenant(ctx, r.db.pool, tenantID, level)
}

func countByHomeTenant(ctx context.Context, q querier, tenantID int64, level identity.Level) (int, error) {
	var n int
	err := q.QueryRow(ctx, `
		SELECT COUNT(*) FROM principals WHERE home_tenant_id = $1 AND level = $2
	`, tenantID, string(level)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count principals: %w", err)
	}
	return n, nil
}

type edgeTable struct {
	table  string
	column string
}

var (
	principalRoleEdge       = edgeTable{table: "principal_roles", column: "role_id"}
	principalPermissionEdge = edgeTable{table: "principal_permissions", column: "permission_id"}
)

func addEdge(ctx context.Context, q querier, e edgeTable, principalID, targetID int64) error {
	_, err := q.Exec(ctx,
		`INSERT INTO `+e.table+` (principal_id, `+e.column+`) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		principalID, targetID,
	)
	if err == nil {
		return nil
	}
	if constraint, ok := foreignKeyConstraint(err); ok {
		switch {
		case strings.Contains(constraint, "principal_id"):
			return identity.ErrPrincipalNotFound
		case e == principalRoleEdge:
			return rbac.ErrRoleNotFound
		default:
			return rbac.ErrPermissionNotFound
		}
	}
	return fmt.Errorf("failed to insert %s edge: %w", e.table, err)
}

func (r *PrincipalRepository) removeEdge(ctx context.Context, e edgeTable, principalID, targetID int64) error {
	_, err := r.db.pool.Exec(ctx,
		`DELETE FROM `+e.table+` WHERE principal_id = $1 AND `+e.column+` = $2`,
		principalID, targetID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete %s edge: %w", e.table, err)
	}
	return nil
}

func (r *PrincipalRepository) AddRole(ctx context.Context, principalID, roleID int64) error {
	return addEdge(ctx, r.db.pool, principalRoleEdge, principalID, roleID)
}

func (r *PrincipalRepository) RemoveRole(ctx context.Context, principalID, roleID int64) error {
	return r.removeEdge(ctx, principalRoleEdge, principalID, roleID)
}

func (r *PrincipalRepository) AddPermission(ctx context.Context, principalID, permissionID int64) error {
	return addEdge(ctx, r.db.pool, principalPermissionEdge, principalID, permissionID)
}

func (r *PrincipalRepository) RemovePermission(ctx context.Context, principalID, permissionID int64) error {
	return r.removeEdge(ctx, principalPermissionEdge, principalID, permissionID)
}
