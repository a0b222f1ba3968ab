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
	"time"

	"github.com/opentrusty/farmgate/internal/identity"
	"github.com/opentrusty/farmgate/internal/rbac"
)

// PrincipalRepository implements identity.Repository and identity.EdgeRepository
type PrincipalRepository struct {
	s *Store
}

var (
	_ identity.Repository     = (*PrincipalRepository)(nil)
	_ identity.EdgeRepository = (*PrincipalRepository)(nil)
)

// Create persists p and assigns its ID when zero
func (r *PrincipalRepository) Create(ctx context.Context, p *identity.Principal) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.insertPrincipalLocked(p)
}

func (s *Store) insertPrincipalLocked(p *identity.Principal) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.ID == 0 {
		p.ID = s.nextPrincipalID
	}
	if _, exists := s.principals[p.ID]; exists {
		return identity.ErrPrincipalAlreadyExists
	}
	if p.ID >= s.nextPrincipalID {
		s.nextPrincipalID = p.ID + 1
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
		p.UpdatedAt = p.CreatedAt
	}
	if p.RoleIDs == nil {
		p.RoleIDs = identity.IDSet{}
	}
	if p.PermissionIDs == nil {
		p.PermissionIDs = identity.IDSet{}
	}
	s.principals[p.ID] = p.Clone()
	return nil
}

// CreateDelegate persists a delegate unless its tenant is at limit
func (r *PrincipalRepository) CreateDelegate(ctx context.Context, p *identity.Principal, limit int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tid, ok := p.HomeTenant()
	if !ok {
		return identity.ErrHomeTenantRequired
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.countLocked(tid, identity.LevelTenantDelegate) >= limit {
		return identity.ErrCapacityExceeded
	}
	return r.s.insertPrincipalLocked(p)
}

// GetByID retrieves a principal
func (r *PrincipalRepository) GetByID(ctx context.Context, id int64) (*identity.Principal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.principals[id]
	if !ok {
		return nil, identity.ErrPrincipalNotFound
	}
	return p.Clone(), nil
}

// SetActive flips the active flag
func (r *PrincipalRepository) SetActive(ctx context.Context, id int64, active bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.principals[id]
	if !ok {
		return identity.ErrPrincipalNotFound
	}
	p.Active = active
	p.UpdatedAt = time.Now()
	return nil
}

// CountByHomeTenant counts principals of a level in a tenant
func (r *PrincipalRepository) CountByHomeTenant(ctx context.Context, tenantID int64, level identity.Level) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.countLocked(tenantID, level), nil
}

func (s *Store) countLocked(tenantID int64, level identity.Level) int {
	n := 0
	for _, p := range s.principals {
		if tid, ok := p.HomeTenant(); ok && tid == tenantID && p.Level == level {
			n++
		}
	}
	return n
}

func (r *PrincipalRepository) AddRole(ctx context.Context, principalID, roleID int64) error {
	return r.edit(principalID, func(p *identity.Principal) error {
		if _, ok := r.s.roles[roleID]; !ok {
			return rbac.ErrRoleNotFound
		}
		p.RoleIDs.Add(roleID)
		return nil
	})
}

func (r *PrincipalRepository) RemoveRole(ctx context.Context, principalID, roleID int64) error {
	return r.edit(principalID, func(p *identity.Principal) error {
		p.RoleIDs.Remove(roleID)
		return nil
	})
}

func (r *PrincipalRepository) AddPermission(ctx context.Context, principalID, permissionID int64) error {
	return r.edit(principalID, func(p *identity.Principal) error {
		if _, ok := r.s.permissions[permissionID]; !ok {
			return rbac.ErrPermissionNotFound
		}
		p.PermissionIDs.Add(permissionID)
		return nil
	})
}

func (r *PrincipalRepository) RemovePermission(ctx context.Context, principalID, permissionID int64) error {
	return r.edit(principalID, func(p *identity.Principal) error {
		p.PermissionIDs.Remove(permissionID)
		return nil
	})
}

func (r *PrincipalRepository) edit(principalID int64, fn func(p *identity.Principal) error) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.principals[principalID]
	if !ok {
		return identity.ErrPrincipalNotFound
	}
	return fn(p)
}
