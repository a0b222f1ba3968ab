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
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/opentrusty/farmgate/internal/identity"
	"github.com/opentrusty/farmgate/internal/rbac"
)

// RoleRepository implements rbac.RoleRepository
type RoleRepository struct {
	db *DB
}

// NewRoleRepository creates a new role repository
func NewRoleRepository(db *DB) *RoleRepository {
	return &RoleRepository{db: db}
}

var _ rbac.RoleRepository = (*RoleRepository)(nil)

const roleColumns = `id, name, display_name, description, is_system_role, active, created_at, updated_at`

// Create creates a role and assigns its ID
func (r *RoleRepository) Create(ctx context.Context, role *rbac.Role) error {
	now := time.Now()
	return r.db.withTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO roles (name, display_name, description, is_system_role, active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $6)
			RETURNING id
		`, role.Name, role.DisplayName, role.Description, role.IsSystemRole, role.Active, now).Scan(&role.ID)
		if err != nil {
			if isUniqueViolation(err) {
				return rbac.ErrRoleAlreadyExists
			}
			return fmt.Errorf("failed to create role: %w", err)
		}
		role.CreatedAt, role.UpdatedAt = now, now
		if role.PermissionIDs == nil {
			role.PermissionIDs = identity.IDSet{}
		}
		for _, permID := range role.PermissionIDs.Slice() {
			if err := addRolePermission(ctx, tx, role.ID, permID); err != nil {
				return err
			}
		}
		return nil
	})
}

func scanRole(row pgx.Row) (*rbac.Role, error) {
	var role rbac.Role
	err := row.Scan(
		&role.ID, &role.Name, &role.DisplayName, &role.Description,
		&role.IsSystemRole, &role.Active, &role.CreatedAt, &role.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	role.PermissionIDs = identity.IDSet{}
	return &role, nil
}

func (r *RoleRepository) getOne(ctx context.Context, where string, arg any) (*rbac.Role, error) {
	role, err := scanRole(r.db.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE `+where, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, rbac.ErrRoleNotFound
		}
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	if err := r.attachPermissions(ctx, []*rbac.Role{role}); err != nil {
		return nil, err
	}
	return role, nil
}

// GetByID retrieves a role
func (r *RoleRepository) GetByID(ctx context.Context, id int64) (*rbac.Role, error) {
	return r.getOne(ctx, `id = $1`, id)
}

// GetByName retrieves a role by name
func (r *RoleRepository) GetByName(ctx context.Context, name string) (*rbac.Role, error) {
	return r.getOne(ctx, `name = $1`, name)
}

// ListByIDs retrieves the existing roles among ids
func (r *RoleRepository) ListByIDs(ctx context.Context, ids []int64) ([]*rbac.Role, error) {
	if len(ids) == 0 {
		return []*rbac.Role{}, nil
	}
	return r.list(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = ANY($1) ORDER BY name`, ids)
}

// List retrieves all roles ordered by name
func (r *RoleRepository) List(ctx context.Context) ([]*rbac.Role, error) {
	return r.list(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY name`)
}

func (r *RoleRepository) list(ctx context.Context, query string, args ...any) ([]*rbac.Role, error) {
	rows, err := r.db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	roles := []*rbac.Role{}
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	rows.Close()

	if err := r.attachPermissions(ctx, roles); err != nil {
		return nil, err
	}
	return roles, nil
}

func (r *RoleRepository) attachPermissions(ctx context.Context, roles []*rbac.Role) error {
	if len(roles) == 0 {
		return nil
	}
	byID := make(map[int64]*rbac.Role, len(roles))
	ids := make([]int64, 0, len(roles))
	for _, role := range roles {
		byID[role.ID] = role
		ids = append(ids, role.ID)
	}

	rows, err := r.db.pool.Query(ctx, `
		SELECT role_id, permission_id FROM role_permissions WHERE role_id = ANY($1)
	`, ids)
	if err != nil {
		return fmt.Errorf("failed to load role permissions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var roleID, permID int64
		if err := rows.Scan(&roleID, &permID); err != nil {
			return fmt.Errorf("failed to scan role permission: %w", err)
		}
		byID[roleID].PermissionIDs.Add(permID)
	}
	return rows.Err()
}

// Delete removes a role; principal and permission edges cascade
func (r *RoleRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.pool.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return rbac.ErrRoleNotFound
	}
	return nil
}

// AddPermission links a permission to a role
func (r *RoleRepository) AddPermission(ctx context.Context, roleID, permissionID int64) error {
	if err := addRolePermission(ctx, r.db.pool, roleID, permissionID); err != nil {
		return err
	}
	_, err := r.db.pool.Exec(ctx, `UPDATE roles SET updated_at = NOW() WHERE id = $1`, roleID)
	return err
}

func addRolePermission(ctx context.Context, q querier, roleID, permissionID int64) error {
	_, err := q.Exec(ctx, `
		INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, roleID, permissionID)
	if err == nil {
		return nil
	}
	if constraint, ok := foreignKeyConstraint(err); ok {
		if constraint == "role_permissions_role_id_fkey" {
			return rbac.ErrRoleNotFound
		}
		return rbac.ErrPermissionNotFound
	}
	return fmt.Errorf("failed to link permission: %w", err)
}

// RemovePermission unlinks a permission from a role
func (r *RoleRepository) RemovePermission(ctx context.Context, roleID, permissionID int64) error {
	tag, err := r.db.pool.Exec(ctx, `UPDATE roles SET updated_at = NOW() WHERE id = $1`, roleID)
	if err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return rbac.ErrRoleNotFound
	}
	_, err = r.db.pool.Exec(ctx, `
		DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = $2
	`, roleID, permissionID)
	if err != nil {
		return fmt.Errorf("failed to unlink permission: %w", err)
	}
	return nil
}

// PermissionRepository implements rbac.PermissionRepository
type PermissionRepository struct {
	db *DB
}

// NewPermissionRepository creates a new permission repository
func NewPermissionRepository(db *DB) *PermissionRepository {
	return &PermissionRepository{db: db}
}

var _ rbac.PermissionRepository = (*PermissionRepository)(nil)

const permissionColumns = `id, name, category, level, description, is_system_permission, active, created_at`

// Create creates a permission and assigns its ID
func (r *PermissionRepository) Create(ctx context.Context, p *rbac.Permission) error {
	p.CreatedAt = time.Now()
	err := r.db.pool.QueryRow(ctx, `
		INSERT INTO permissions (name, category, level, description, is_system_permission, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, p.Name, string(p.Category), string(p.Level), p.Description, p.IsSystemPermission, p.Active, p.CreatedAt).Scan(&p.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return rbac.ErrPermissionAlreadyExists
		}
		return fmt.Errorf("failed to create permission: %w", err)
	}
	return nil
}

func scanPermission(row pgx.Row) (*rbac.Permission, error) {
	var (
		p               rbac.Permission
		category, level string
	)
	err := row.Scan(&p.ID, &p.Name, &category, &level, &p.Description, &p.IsSystemPermission, &p.Active, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	p.Category = rbac.Category(category)
	p.Level = rbac.PermissionLevel(level)
	return &p, nil
}

// GetByName retrieves a permission by name
func (r *PermissionRepository) GetByName(ctx context.Context, name string) (*rbac.Permission, error) {
	p, err := scanPermission(r.db.pool.QueryRow(ctx, `SELECT `+permissionColumns+` FROM permissions WHERE name = $1`, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, rbac.ErrPermissionNotFound
		}
		return nil, fmt.Errorf("failed to get permission: %w", err)
	}
	return p, nil
}

// ListByIDs retrieves the existing permissions among ids
func (r *PermissionRepository) ListByIDs(ctx context.Context, ids []int64) ([]*rbac.Permission, error) {
	if len(ids) == 0 {
		return []*rbac.Permission{}, nil
	}
	return r.list(ctx, `SELECT `+permissionColumns+` FROM permissions WHERE id = ANY($1) ORDER BY name`, ids)
}

// List retrieves all permissions ordered by name
func (r *PermissionRepository) List(ctx context.Context) ([]*rbac.Permission, error) {
	return r.list(ctx, `SELECT `+permissionColumns+` FROM permissions ORDER BY name`)
}

func (r *PermissionRepository) list(ctx context.Context, query string, args ...any) ([]*rbac.Permission, error) {
	rows, err := r.db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	defer rows.Close()

	out := []*rbac.Permission{}
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
