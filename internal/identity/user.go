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

package identity

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
)

// Domain errors
var (
	ErrPrincipalNotFound      = errors.New("principal not found")
	ErrPrincipalAlreadyExists = errors.New("principal already exists")
	ErrInvalidLevel           = errors.New("invalid principal level")
	ErrHomeTenantRequired     = errors.New("home tenant is required for tenant-scoped principals")
	ErrHomeTenantNotAllowed   = errors.New("home tenant is not allowed for this principal level")
	ErrAttributesMismatch     = errors.New("attributes do not match principal level")
	ErrCapacityExceeded       = errors.New("tenant delegate capacity exceeded")
	ErrNotPermitted           = errors.New("actor cannot manage target principal")
)

// IDSet is an unordered set of numeric identifiers.
type IDSet map[int64]struct{}

// NewIDSet builds a set from ids.
func NewIDSet(ids ...int64) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Has reports membership.
func (s IDSet) Has(id int64) bool {
	_, ok := s[id]
	return ok
}

// Add inserts id and reports whether the set changed.
func (s IDSet) Add(id int64) bool {
	if s.Has(id) {
		return false
	}
	s[id] = struct{}{}
	return true
}

// Remove deletes id and reports whether the set changed.
func (s IDSet) Remove(id int64) bool {
	if !s.Has(id) {
		return false
	}
	delete(s, id)
	return true
}

// Slice returns the ids in ascending order.
func (s IDSet) Slice() []int64 {
	out := make([]int64, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Clone returns an independent copy.
func (s IDSet) Clone() IDSet {
	c := make(IDSet, len(s))
	for id := range s {
		c[id] = struct{}{}
	}
	return c
}

// Principal represents an authenticated actor.
// HomeTenantID is present exactly when RequiresHomeTenant(Level).
type Principal struct {
	ID            int64
	Level         Level
	HomeTenantID  *int64
	Active        bool
	Username      string
	Email         string
	DisplayName   string
	Attributes    Attributes
	RoleIDs       IDSet
	PermissionIDs IDSet
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewPrincipal validates the level/home-tenant invariant and returns an active principal.
func NewPrincipal(id int64, level Level, homeTenantID *int64, attrs Attributes) (*Principal, error) {
	p := &Principal{
		ID:            id,
		Level:         level,
		Active:        true,
		Attributes:    attrs,
		RoleIDs:       IDSet{},
		PermissionIDs: IDSet{},
	}
	if homeTenantID != nil {
		tid := *homeTenantID
		p.HomeTenantID = &tid
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks the construction invariants. Repositories call it on every load.
func (p *Principal) Validate() error {
	if !p.Level.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidLevel, p.Level)
	}
	if RequiresHomeTenant(p.Level) && p.HomeTenantID == nil {
		return ErrHomeTenantRequired
	}
	if !RequiresHomeTenant(p.Level) && p.HomeTenantID != nil {
		return ErrHomeTenantNotAllowed
	}
	if p.Attributes != nil && p.Attributes.Level() != p.Level {
		return fmt.Errorf("%w: %s attributes on %s principal", ErrAttributesMismatch, p.Attributes.Level(), p.Level)
	}
	return nil
}

// HomeTenant returns the home tenant id, if any.
func (p *Principal) HomeTenant() (int64, bool) {
	if p.HomeTenantID == nil {
		return 0, false
	}
	return *p.HomeTenantID, true
}

// Clone returns a deep copy so callers can hold a stable snapshot.
func (p *Principal) Clone() *Principal {
	c := *p
	if p.HomeTenantID != nil {
		tid := *p.HomeTenantID
		c.HomeTenantID = &tid
	}
	c.RoleIDs = p.RoleIDs.Clone()
	c.PermissionIDs = p.PermissionIDs.Clone()
	return &c
}

// Repository defines the interface for principal persistence
type Repository interface {
	// Create persists a new principal and assigns its ID when zero
	Create(ctx context.Context, p *Principal) error

	// CreateDelegate persists a tenant delegate unless its home tenant already
	// holds limit delegates, in which case ErrCapacityExceeded is returned.
	CreateDelegate(ctx context.Context, p *Principal, limit int) error

	// GetByID retrieves a principal with its role and permission edges
	GetByID(ctx context.Context, id int64) (*Principal, error)

	// SetActive flips the active flag
	SetActive(ctx context.Context, id int64, active bool) error

	// CountByHomeTenant counts principals of a level belonging to a tenant
	CountByHomeTenant(ctx context.Context, tenantID int64, level Level) (int, error)
}

// EdgeRepository persists principal↔role and principal↔permission edges.
// All methods are idempotent.
type EdgeRepository interface {
	AddRole(ctx context.Context, principalID, roleID int64) error
	RemoveRole(ctx context.Context, principalID, roleID int64) error
	AddPermission(ctx context.Context, principalID, permissionID int64) error
	RemovePermission(ctx context.Context, principalID, permissionID int64) error
}
