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

package tenant

import (
	"context"
	"errors"
	"time"

	"github.com/opentrusty/farmgate/internal/identity"
)

var (
	ErrTenantNotFound      = errors.New("tenant not found")
	ErrTenantAlreadyExists = errors.New("tenant already exists")
	ErrInvalidTenant       = errors.New("invalid tenant")
	ErrTenantSuspended     = errors.New("tenant is suspended")
	ErrNotPermitted        = errors.New("actor is not permitted to manage this tenant")
)

// Repository defines the interface for tenant storage
type Repository interface {
	// CreateWithOwner atomically persists the tenant and its owner principal,
	// assigning both IDs and linking owner.HomeTenantID to the new tenant.
	CreateWithOwner(ctx context.Context, tenant *Tenant, owner *identity.Principal) error
	GetByID(ctx context.Context, id int64) (*Tenant, error)
	GetByName(ctx context.Context, name string) (*Tenant, error)
	UpdateStatus(ctx context.Context, id int64, status string, at time.Time) error
	List(ctx context.Context, limit, offset int) ([]*Tenant, error)
}

// RoleAssigner links a named role to a principal
type RoleAssigner interface {
	AssignRole(ctx context.Context, actorID string, p *identity.Principal, roleName string) error
}
