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
	"github.com/opentrusty/farmgate/internal/rbac"
)

// RoleRepository implements rbac.RoleRepository
type RoleRepository struct {
	s *Store
}

var _ rbac.RoleRepository = (*RoleRepository)(nil)

func cloneRole(r *rbac.Role) *rbac.Role {
	c := *r
	c.PermissionIDs = r.PermissionIDs.Clone()
	return &c
}

// Create creates a role and assigns its ID
func (r *RoleRepository) Create(ctx context.Context, role *rbac.Role) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.roles {
		if existing.Name == role.Name {
			return rbac.ErrRoleAlreadyExists
		}
	}
	if role.PermissionIDs == nil {
		role.PermissionIDs = identity.IDSet{}
	}
	role.ID = r.s.nextRoleID
	r.s.nextRoleID++
	now := time.Now()
	role.CreatedAt, role.UpdatedAt = now, now
	r.s.roles[role.ID] = cloneRole(role)
	return nil
}

// GetByID retrieves a role
func (r *RoleRepository) GetByID(ctx context.Context, id int64) (*rbac.Role, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	role, ok := r.s.roles[id]
	if !ok {
		return nil, rbac.ErrRoleNotFound
	}
	return cloneRole(role), nil
}

// GetByName retrieves a role by name
func (r *RoleRepository) GetByName(ctx context.Context, name string) (*rbac.Role, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, role := range r.s.roles {
		if role.Name == name {
			return cloneRole(role), nil
		}
	}
	return nil, rbac.ErrRoleNotFound
}

// ListByIDs retrieves the existing roles among ids
func (r *RoleRepository) ListByIDs(ctx context.Context, ids []int64) ([]*rbac.Role, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*rbac.Role, 0, len(ids))
	for _, id := range ids {
		if role, ok := r.s.roles[id]; ok {
			out = append(out, cloneRole(role))
		}
	}
	return out, nil
}

// List retrieves all roles ordered by name
func (r *RoleRepository) List(ctx context.Context) ([]*rbac.Role, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*rbac.Role, 0, len(r.s.roles))
	for _, role := range r.s.roles {
		out = append(out, cloneRole(role))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Delete removes a role and every principal edge to it
func (r *RoleRepository) Delete(ctx context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.roles[id]; !ok {
		return rbac.ErrRoleNotFound
	}
	delete(r.s.roles, id)
	for _, p := range r.s.principals {
		p.RoleIDs.Remove(id)
	}
	return nil
}

// AddPermission links a permission to a role
func (r *RoleRepository) AddPermission(ctx context.Context, roleID, permissionID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	role, ok := r.s.roles[roleID]
	if !ok {
		return rbac.ErrRoleNotFound
	}
	if _, ok := r.s.permissions[permissionID]; !ok {
		return rbac.ErrPermissionNotFound
	}
	role.PermissionIDs.Add(permissionID)
	role.UpdatedAt = time.Now()
	return nil
}

// RemovePermission unlinks a permission from a role
func (r *RoleRepository) RemovePermission(ctx context.Context, roleID, permissionID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	role, ok := r.s.roles[roleID]
	if !ok {
		return rbac.ErrRoleNotFound
	}
	role.PermissionIDs.Remove(permissionID)
	role.UpdatedAt = time.Now()
	return nil
}

// PermissionRepository implements rbac.PermissionRepository
type PermissionRepository struct {
	s *Store
}

var _ rbac.PermissionRepository = (*PermissionRepository)(nil)

// Create creates a permission and assigns its ID
func (r *PermissionRepository) Create(ctx context.Context, p *rbac.Permission) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.permissions {
		if existing.Name == p.Name {
			return rbac.ErrPermissionAlreadyExists
		}
	}
	p.ID = r.s.nextPermissionID
	r.s.nextPermissionID++
	p.CreatedAt = time.Now()
	c := *p
	r.s.permissions[p.ID] = &c
	return nil
}

// GetByName retrieves a permission by name
func (r *PermissionRepository) GetByName(ctx context.Context, name string) (*rbac.Permission, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, p := range r.s.permissions {
		if p.Name == name {
			c := *p
			return &c, nil
		}
	}
	return nil, rbac.ErrPermissionNotFound
}

// ListByIDs retrieves the existing permissions among ids
func (r *PermissionRepository) ListByIDs(ctx context.Context, ids []int64) ([]*rbac.Permission, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*rbac.Permission, 0, len(ids))
	for _, id := range ids {
		if p, ok := r.s.permissions[id]; ok {
			c := *p
			out = append(out, &c)
		}
	}
	return out, nil
}

// List retrieves all permissions ordered by name
func (r *PermissionRepository) List(ctx context.Context) ([]*rbac.Permission, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*rbac.Permission, 0, len(r.s.permissions))
	for _, p := range r.s.permissions {
		c := *p
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
