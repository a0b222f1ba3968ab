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

	"github.com/opentrusty/farmgate/internal/identity"
	"github.com/opentrusty/farmgate/internal/tenant"
)

// TenantRepository implements tenant.Repository
type TenantRepository struct {
	s *Store
}

var _ tenant.Repository = (*TenantRepository)(nil)

// CreateWithOwner stores the tenant and its owner under one lock
func (r *TenantRepository) CreateWithOwner(ctx context.Context, t *tenant.Tenant, owner *identity.Principal) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.tenants {
		if existing.Name == t.Name {
			return tenant.ErrTenantAlreadyExists
		}
	}

	tenantID := r.s.nextTenantID
	home := tenantID
	owner.HomeTenantID = &home
	if err := r.s.insertPrincipalLocked(owner); err != nil {
		return err
	}

	r.s.nextTenantID++
	t.ID = tenantID
	t.OwnerPrincipalID = owner.ID
	c := *t
	r.s.tenants[t.ID] = &c
	return nil
}

// GetByID retrieves a tenant
func (r *TenantRepository) GetByID(ctx context.Context, id int64) (*tenant.Tenant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	t, ok := r.s.tenants[id]
	if !ok {
		return nil, tenant.ErrTenantNotFound
	}
	c := *t
	return &c, nil
}

// GetByName retrieves a tenant by name
func (r *TenantRepository) GetByName(ctx context.Context, name string) (*tenant.Tenant, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, t := range r.s.tenants {
		if t.Name == name {
			c := *t
			return &c, nil
		}
	}
	return nil, tenant.ErrTenantNotFound
}

// UpdateStatus sets the tenant status
func (r *TenantRepository) UpdateStatus(ctx context.Context, id int64, status string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tenants[id]
	if !ok {
		return tenant.ErrTenantNotFound
	}
	t.Status = status
	t.UpdatedAt = at
	return nil
}

// List lists tenants ordered by ID
func (r *TenantRepository) List(ctx context.Context, limit, offset int) ([]*tenant.Tenant, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	all := make([]*tenant.Tenant, 0, len(r.s.tenants))
	for _, t := range r.s.tenants {
		c := *t
		all = append(all, &c)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	if offset >= len(all) {
		return []*tenant.Tenant{}, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}
