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

package grant

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
)

// Domain errors
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrGrantNotFound     = errors.New("grant not found")
	ErrGrantConflict     = errors.New("an active grant already exists for this pair")
	ErrUnknownCapability = errors.New("unknown capability")
)

// Capability is an atomic action a tenant grant can authorize.
type Capability string

const (
	CapViewLivestock  Capability = "view-livestock"
	CapEditLivestock  Capability = "edit-livestock"
	CapViewMedical    Capability = "view-medical"
	CapEditMedical    Capability = "edit-medical"
	CapAddVaccination Capability = "add-vaccination"
	CapViewBreeding   Capability = "view-breeding"
	CapEditBreeding   Capability = "edit-breeding"
	CapViewWeight     Capability = "view-weight"
	CapAddWeight      Capability = "add-weight"
	CapViewNotes      Capability = "view-notes"
	CapAddNotes       Capability = "add-notes"
)

// AllCapabilities lists the closed capability set.
var AllCapabilities = []Capability{
	CapViewLivestock,
	CapEditLivestock,
	CapViewMedical,
	CapEditMedical,
	CapAddVaccination,
	CapViewBreeding,
	CapEditBreeding,
	CapViewWeight,
	CapAddWeight,
	CapViewNotes,
	CapAddNotes,
}

// Valid reports whether c is in the closed set.
func (c Capability) Valid() bool {
	for _, known := range AllCapabilities {
		if c == known {
			return true
		}
	}
	return false
}

func (c Capability) String() string { return string(c) }

// ParseCapability converts a wire value into a Capability.
func ParseCapability(s string) (Capability, error) {
	c := Capability(s)
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownCapability, s)
	}
	return c, nil
}

// CapabilitySet is an unordered set of capabilities.
type CapabilitySet map[Capability]struct{}

// NewCapabilitySet builds a set from caps.
func NewCapabilitySet(caps ...Capability) CapabilitySet {
	s := make(CapabilitySet, len(caps))
	for _, c := range caps {
		s[c] = struct{}{}
	}
	return s
}

// ParseCapabilitySet parses wire values. Duplicates collapse.
func ParseCapabilitySet(values []string) (CapabilitySet, error) {
	s := make(CapabilitySet, len(values))
	for _, v := range values {
		c, err := ParseCapability(v)
		if err != nil {
			return nil, err
		}
		s[c] = struct{}{}
	}
	return s, nil
}

// Has reports membership.
func (s CapabilitySet) Has(c Capability) bool {
	_, ok := s[c]
	return ok
}

// Slice returns the capabilities sorted.
func (s CapabilitySet) Slice() []Capability {
	out := make([]Capability, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Strings returns the capabilities as sorted wire values.
func (s CapabilitySet) Strings() []string {
	caps := s.Slice()
	out := make([]string, len(caps))
	for i, c := range caps {
		out[i] = string(c)
	}
	return out
}

// Clone returns an independent copy.
func (s CapabilitySet) Clone() CapabilitySet {
	c := make(CapabilitySet, len(s))
	for k := range s {
		c[k] = struct{}{}
	}
	return c
}

// TenantGrant is a time-bounded, capability-scoped permit for a cross-tenant
// professional to act on one tenant. At most one active row exists per pair.
type TenantGrant struct {
	ID             string
	TenantID       int64
	ProfessionalID int64
	GrantedBy      int64
	GrantedAt      time.Time
	UpdatedAt      time.Time
	ExpiresAt      *time.Time
	RevokedAt      *time.Time
	Active         bool
	Capabilities   CapabilitySet
	Notes          string
}

// IsEffective reports whether the grant is in force at now. Expiry is derived
// here on every call and never depends on a sweep having run.
func (g *TenantGrant) IsEffective(now time.Time) bool {
	if g == nil || !g.Active {
		return false
	}
	return g.ExpiresAt == nil || g.ExpiresAt.After(now)
}

// Clone returns a deep copy.
func (g *TenantGrant) Clone() *TenantGrant {
	c := *g
	if g.ExpiresAt != nil {
		t := *g.ExpiresAt
		c.ExpiresAt = &t
	}
	if g.RevokedAt != nil {
		t := *g.RevokedAt
		c.RevokedAt = &t
	}
	c.Capabilities = g.Capabilities.Clone()
	return &c
}

// Repository defines the interface for grant persistence
type Repository interface {
	// FindActive returns the row flagged active for the pair, effective or not.
	// Returns ErrGrantNotFound when there is none.
	FindActive(ctx context.Context, tenantID, professionalID int64) (*TenantGrant, error)

	// Create inserts a new active row. Returns ErrGrantConflict when another
	// active row for the pair already exists.
	Create(ctx context.Context, g *TenantGrant) error

	// Update rewrites capabilities, expiry, notes, granter and updated_at of an active row
	Update(ctx context.Context, g *TenantGrant) error

	// Deactivate flips an active row to inactive
	Deactivate(ctx context.Context, id string, at time.Time) error

	// ListActiveByTenant returns active rows for a tenant
	ListActiveByTenant(ctx context.Context, tenantID int64) ([]*TenantGrant, error)

	// ListActiveByProfessional returns active rows for a professional
	ListActiveByProfessional(ctx context.Context, professionalID int64) ([]*TenantGrant, error)

	// SweepExpired deactivates active rows with expires_at <= now and returns the count
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
}
