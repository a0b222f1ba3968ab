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

// Package memory implements the repositories over process memory. All
// repositories built from one Store share its lock, so multi-entity writes
// such as tenant signup are atomic.
package memory

import (
	"sync"

	"github.com/opentrusty/farmgate/internal/grant"
	"github.com/opentrusty/farmgate/internal/identity"
	"github.com/opentrusty/farmgate/internal/rbac"
	"github.com/opentrusty/farmgate/internal/tenant"
)

// Store holds every entity
type Store struct {
	mu sync.RWMutex

	principals  map[int64]*identity.Principal
	roles       map[int64]*rbac.Role
	permissions map[int64]*rbac.Permission
	tenants     map[int64]*tenant.Tenant
	grants      map[string]*grant.TenantGrant

	nextPrincipalID  int64
	nextRoleID       int64
	nextPermissionID int64
	nextTenantID     int64
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		principals:       make(map[int64]*identity.Principal),
		roles:            make(map[int64]*rbac.Role),
		permissions:      make(map[int64]*rbac.Permission),
		tenants:          make(map[int64]*tenant.Tenant),
		grants:           make(map[string]*grant.TenantGrant),
		nextPrincipalID:  1,
		nextRoleID:       1,
		nextPermissionID: 1,
		nextTenantID:     1,
	}
}

// Principals returns the principal repository
func (s *Store) Principals() *PrincipalRepository { return &PrincipalRepository{s: s} }

// Roles returns the role repository
func (s *Store) Roles() *RoleRepository { return &RoleRepository{s: s} }

// Permissions returns the permission repository
func (s *Store) Permissions() *PermissionRepository { return &PermissionRepository{s: s} }

// Tenants returns the tenant repository
func (s *Store) Tenants() *TenantRepository { return &TenantRepository{s: s} }

// Grants returns the grant repository
func (s *Store) Grants() *GrantRepository { return &GrantRepository{s: s} }
