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

package memory

import (
	"context"
	"sort"
	"time"

	"github.com/opentrusty/farmgate/internal/grant"
)

// GrantRepository implements grant.Repository. Inactive rows are retained.
type GrantRepository struct {
	s *Store
}

var _ grant.Repository = (*GrantRepository)(nil)

// FindActive returns the active row for the pair
func (r *GrantRepository) FindActive(ctx context.Context, tenantID, professionalID int64) (*grant.TenantGrant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if g := r.s.activeGrantLocked(tenantID, professionalID); g != nil {
		return g.Clone(), nil
	}
	return nil, grant.ErrGrantNotFound
}

func (s *Store) activeGrantLocked(tenantID, professionalID int64) *grant.TenantGrant {
	for _, g := range s.grants {
		if g.Active && g.TenantID == tenantID && g.ProfessionalID == professionalID {
			return g
		}
	}
	return nil
}

// Create inserts an active row unless the pair already has one
func (r *GrantRepository) Create(ctx context.Context, g *grant.TenantGrant) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.activeGrantLocked(g.TenantID, g.ProfessionalID) != nil {
		return grant.ErrGrantConflict
	}
	r.s.grants[g.ID] = g.Clone()
	return nil
}

// Update rewrites the mutable columns of an active row
func (r *GrantRepository) Update(ctx context.Context, g *grant.TenantGrant) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	row, ok := r.s.grants[g.ID]
	if !ok || !row.Active {
		return grant.ErrGrantNotFound
	}
	next := g.Clone()
	row.Capabilities = next.Capabilities
	row.ExpiresAt = next.ExpiresAt
	row.GrantedBy = next.GrantedBy
	row.Notes = next.Notes
	row.UpdatedAt = next.UpdatedAt
	return nil
}

// Deactivate flips an active row to inactive; inactive rows are left alone
func (r *GrantRepository) Deactivate(ctx context.Context, id string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	row, ok := r.s.grants[id]
	if !ok {
		return grant.ErrGrantNotFound
	}
	if row.Active {
		row.Active = false
		revokedAt := at
		row.RevokedAt = &revokedAt
		row.UpdatedAt = at
	}
	return nil
}

func (r *GrantRepository) listActive(match func(*grant.TenantGrant) bool) []*grant.TenantGrant {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := []*grant.TenantGrant{}
	for _, g := range r.s.grants {
		if g.Active && match(g) {
			out = append(out, g.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GrantedAt.Before(out[j].GrantedAt) })
	return out
}

// ListActiveByTenant returns active rows for a tenant
func (r *GrantRepository) ListActiveByTenant(ctx context.Context, tenantID int64) ([]*grant.TenantGrant, error) {
	return r.listActive(func(g *grant.TenantGrant) bool { return g.TenantID == tenantID }), nil
}

// ListActiveByProfessional returns active rows for a professional
func (r *GrantRepository) ListActiveByProfessional(ctx context.Context, professionalID int64) ([]*grant.TenantGrant, error) {
	return r.listActive(func(g *grant.TenantGrant) bool { return g.ProfessionalID == professionalID }), nil
}

// SweepExpired deactivates active rows whose expiry is at or before now
func (r *GrantRepository) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, g := range r.s.grants {
		if g.Active && g.ExpiresAt != nil && !g.ExpiresAt.After(now) {
			g.Active = false
			g.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

// Count returns the total number of rows, active or not
func (r *GrantRepository) Count() int {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return len(r.s.grants)
}
