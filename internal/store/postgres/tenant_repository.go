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
	"github.com/opentrusty/farmgate/internal/tenant"
)

// TenantRepository implements tenant.Repository
type TenantRepository struct {
	db *DB
}

// NewTenantRepository creates a new tenant repository
func NewTenantRepository(db *DB) *TenantRepository {
	return &TenantRepository{db: db}
}

var _ tenant.Repository = (*TenantRepository)(nil)

const tenantColumns = `id, name, COALESCE(owner_principal_id, 0), status, created_at, updated_at`

// CreateWithOwner inserts the tenant and its owner in one transaction
func (r *TenantRepository) CreateWithOwner(ctx context.Context, t *tenant.Tenant, owner *identity.Principal) error {
	return r.db.withTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO tenants (name, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4)
			RETURNING id
		`, t.Name, t.Status, t.CreatedAt, t.UpdatedAt).Scan(&t.ID)
		if err != nil {
			if isUniqueViolation(err) {
				return tenant.ErrTenantAlreadyExists
			}
			return fmt.Errorf("failed to insert tenant: %w", err)
		}

		home := t.ID
		owner.HomeTenantID = &home
		if err := insertPrincipal(ctx, tx, owner); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `
			UPDATE tenants SET owner_principal_id = $2 WHERE id = $1
		`, t.ID, owner.ID); err != nil {
			return fmt.Errorf("failed to set tenant owner: %w", err)
		}
		t.OwnerPrincipalID = owner.ID
		return nil
	})
}

func scanTenant(row pgx.Row) (*tenant.Tenant, error) {
	var t tenant.Tenant
	if err := row.Scan(&t.ID, &t.Name, &t.OwnerPrincipalID, &t.Status, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TenantRepository) getOne(ctx context.Context, where string, arg any) (*tenant.Tenant, error) {
	t, err := scanTenant(r.db.pool.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE `+where, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tenant.ErrTenantNotFound
		}
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return t, nil
}

// GetByID retrieves a tenant
func (r *TenantRepository) GetByID(ctx context.Context, id int64) (*tenant.Tenant, error) {
	return r.getOne(ctx, `id = $1`, id)
}

// GetByName retrieves a tenant by name
func (r *TenantRepository) GetByName(ctx context.Context, name string) (*tenant.Tenant, error) {
	return r.getOne(ctx, `name = $1`, name)
}

// UpdateStatus sets the tenant status
func (r *TenantRepository) UpdateStatus(ctx context.Context, id int64, status string, at time.Time) error {
	tag, err := r.db.pool.Exec(ctx, `
		UPDATE tenants SET status = $2, updated_at = $3 WHERE id = $1
	`, id, status, at)
	if err != nil {
		return fmt.Errorf("failed to update tenant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return tenant.ErrTenantNotFound
	}
	return nil
}

// List lists tenants ordered by ID
func (r *TenantRepository) List(ctx context.Context, limit, offset int) ([]*tenant.Tenant, error) {
	var limitArg any
	if limit > 0 {
		limitArg = limit
	}
	rows, err := r.db.pool.Query(ctx, `
		SELECT `+tenantColumns+`
		FROM tenants
		ORDER BY id
		LIMIT $1 OFFSET $2
	`, limitArg, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	tenants := []*tenant.Tenant{}
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}
