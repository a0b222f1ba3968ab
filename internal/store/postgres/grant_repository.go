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

	"github.com/opentrusty/farmgate/internal/grant"
)

// GrantRepository implements grant.Repository
type GrantRepository struct {
	db *DB
}

// NewGrantRepository creates a new grant repository
func NewGrantRepository(db *DB) *GrantRepository {
	return &GrantRepository{db: db}
}

var _ grant.Repository = (*GrantRepository)(nil)

const grantColumns = `id, tenant_id, professional_id, granted_by, granted_at, updated_at,
	expires_at, revoked_at, active, capabilities, notes`

func scanGrant(row pgx.Row) (*grant.TenantGrant, error) {
	var (
		g    grant.TenantGrant
		caps []string
	)
	err := row.Scan(
		&g.ID, &g.TenantID, &g.ProfessionalID, &g.GrantedBy, &g.GrantedAt, &g.UpdatedAt,
		&g.ExpiresAt, &g.RevokedAt, &g.Active, &caps, &g.Notes,
	)
	if err != nil {
		return nil, err
	}
	// Unknown stored values are kept so the row still round-trips; Has never matches them.
	g.Capabilities = make(grant.CapabilitySet, len(caps))
	for _, c := range caps {
		g.Capabilities[grant.Capability(c)] = struct{}{}
	}
	return &g, nil
}

// FindActive returns the row flagged active for the pair
func (r *GrantRepository) FindActive(ctx context.Context, tenantID, professionalID int64) (*grant.TenantGrant, error) {
	g, err := scanGrant(r.db.pool.QueryRow(ctx, `
		SELECT `+grantColumns+`
		FROM tenant_grants
		WHERE tenant_id = $1 AND professional_id = $2 AND active
	`, tenantID, professionalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, grant.ErrGrantNotFound
		}
		return nil, fmt.Errorf("failed to get grant: %w", err)
	}
	return g, nil
}

// Create inserts a new active row. The partial unique index on active pairs
// turns a concurrent insert into ErrGrantConflict.
func (r *GrantRepository) Create(ctx context.Context, g *grant.TenantGrant) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO tenant_grants (
			id, tenant_id, professional_id, granted_by, granted_at, updated_at,
			expires_at, revoked_at, active, capabilities, notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		g.ID, g.TenantID, g.ProfessionalID, g.GrantedBy, g.GrantedAt, g.UpdatedAt,
		g.ExpiresAt, g.RevokedAt, g.Active, g.Capabilities.Strings(), g.Notes,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return grant.ErrGrantConflict
		}
		return fmt.Errorf("failed to insert grant: %w", err)
	}
	return nil
}

// Update rewrites the mutable columns of an active row
func (r *GrantRepository) Update(ctx context.Context, g *grant.TenantGrant) error {
	tag, err := r.db.pool.Exec(ctx, `
		UPDATE tenant_grants SET
			capabilities = $2,
			expires_at = $3,
			granted_by = $4,
			notes = $5,
			updated_at = $6
		WHERE id = $1 AND active
	`, g.ID, g.Capabilities.Strings(), g.ExpiresAt, g.GrantedBy, g.Notes, g.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update grant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return grant.ErrGrantNotFound
	}
	return nil
}

// Deactivate flips an active row to inactive; inactive rows are left alone
func (r *GrantRepository) Deactivate(ctx context.Context, id string, at time.Time) error {
	var exists bool
	err := r.db.pool.QueryRow(ctx, `
		WITH updated AS (
			UPDATE tenant_grants SET active = FALSE, revoked_at = $2, updated_at = $2
			WHERE id = $1 AND active
			RETURNING id
		)
		SELECT EXISTS (SELECT 1 FROM tenant_grants WHERE id = $1)
	`, id, at).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to deactivate grant: %w", err)
	}
	if !exists {
		return grant.ErrGrantNotFound
	}
	return nil
}

// ListActiveByTenant returns active rows for a tenant
func (r *GrantRepository) ListActiveByTenant(ctx context.Context, tenantID int64) ([]*grant.TenantGrant, error) {
	return r.list(ctx, `tenant_id = $1`, tenantID)
}

// ListActiveByProfessional returns active rows for a professional
func (r *GrantRepository) ListActiveByProfessional(ctx context.Context, professionalID int64) ([]*grant.TenantGrant, error) {
	return r.list(ctx, `professional_id = $1`, professionalID)
}

func (r *GrantRepository) list(ctx context.Context, where string, arg int64) ([]*grant.TenantGrant, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT `+grantColumns+`
		FROM tenant_grants
		WHERE `+where+` AND active
		ORDER BY granted_at
	`, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}
	defer rows.Close()

	grants := []*grant.TenantGrant{}
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan grant: %w", err)
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

// SweepExpired deactivates active rows whose expiry is at or before now
func (r *GrantRepository) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.pool.Exec(ctx, `
		UPDATE tenant_grants SET active = FALSE, updated_at = $1
		WHERE active AND expires_at IS NOT NULL AND expires_at <= $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep grants: %w", err)
	}
	return tag.RowsAffected(), nil
}
