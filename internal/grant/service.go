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
	"log/slog"
	"time"

	"github.com/opentrusty/farmgate/internal/audit"
	"github.com/opentrusty/farmgate/internal/id"
	"github.com/opentrusty/farmgate/internal/identity"
	"github.com/opentrusty/farmgate/internal/tenant"
)

// TenantReader resolves tenants referenced by a grant
type TenantReader interface {
	GetByID(ctx context.Context, id int64) (*tenant.Tenant, error)
}

// PrincipalReader resolves the grantee of a grant
type PrincipalReader interface {
	GetByID(ctx context.Context, id int64) (*identity.Principal, error)
}

// Service is the tenant grant store. Writes for one (tenant, professional)
// pair are serialized; reads always see a whole row.
type Service struct {
	repo        Repository
	tenants     TenantReader
	principals  PrincipalReader
	auditLogger audit.Logger
	locks       *pairLocks
}

// NewService creates a new grant service
func NewService(repo Repository, tenants TenantReader, principals PrincipalReader, auditLogger audit.Logger) *Service {
	return &Service{
		repo:        repo,
		tenants:     tenants,
		principals:  principals,
		auditLogger: auditLogger,
		locks:       newPairLocks(),
	}
}

// GrantRequest describes the desired state of a grant
type GrantRequest struct {
	TenantID       int64
	ProfessionalID int64
	Capabilities   CapabilitySet
	ExpiresAt      *time.Time
	GrantedBy      int64
	Notes          string
}

// Grant creates the pair's grant, or updates the effective one in place.
// A row that is still flagged active but has lapsed is retired and replaced.
func (s *Service) Grant(ctx context.Context, req GrantRequest, now time.Time) (*TenantGrant, error) {
	if err := validateRequest(req, now); err != nil {
		return nil, err
	}
	if err := s.checkReferents(ctx, req.TenantID, req.ProfessionalID); err != nil {
		return nil, err
	}

	unlock := s.locks.lock(req.TenantID, req.ProfessionalID)
	defer unlock()

	g, created, err := s.upsertLocked(ctx, req, now)
	if errors.Is(err, ErrGrantConflict) {
		// Another process inserted the pair's row between our read and write.
		g, created, err = s.upsertLocked(ctx, req, now)
	}
	if err != nil {
		return nil, err
	}

	eventType := audit.TypeGrantUpdated
	if created {
		eventType = audit.TypeGrantCreated
	}
	s.auditLogger.Log(ctx, audit.Event{
		Type:     eventType,
		TenantID: audit.FormatID(g.TenantID),
		ActorID:  audit.FormatID(g.GrantedBy),
		Resource: g.ID,
		Metadata: map[string]any{
			"professional_id": g.ProfessionalID,
			"capabilities":    g.Capabilities.Strings(),
			"expires_at":      g.ExpiresAt,
		},
	})
	return g.Clone(), nil
}

func (s *Service) upsertLocked(ctx context.Context, req GrantRequest, now time.Time) (*TenantGrant, bool, error) {
	existing, err := s.repo.FindActive(ctx, req.TenantID, req.ProfessionalID)
	switch {
	case errors.Is(err, ErrGrantNotFound):
		existing = nil
	case err != nil:
		return nil, false, fmt.Errorf("failed to load grant: %w", err)
	}

	if existing != nil && existing.IsEffective(now) {
		existing.Capabilities = req.Capabilities.Clone()
		existing.ExpiresAt = copyTime(req.ExpiresAt)
		existing.GrantedBy = req.GrantedBy
		existing.Notes = req.Notes
		existing.UpdatedAt = now
		if err := s.repo.Update(ctx, existing); err != nil {
			return nil, false, fmt.Errorf("failed to update grant: %w", err)
		}
		return existing, false, nil
	}

	if existing != nil {
		if err := s.repo.Deactivate(ctx, existing.ID, now); err != nil {
			return nil, false, fmt.Errorf("failed to retire lapsed grant: %w", err)
		}
	}

	g := &TenantGrant{
		ID:             id.NewUUIDv7(),
		TenantID:       req.TenantID,
		ProfessionalID: req.ProfessionalID,
		GrantedBy:      req.GrantedBy,
		GrantedAt:      now,
		UpdatedAt:      now,
		ExpiresAt:      copyTime(req.ExpiresAt),
		Active:         true,
		Capabilities:   req.Capabilities.Clone(),
		Notes:          req.Notes,
	}
	if err := s.repo.Create(ctx, g); err != nil {
		if errors.Is(err, ErrGrantConflict) {
			return nil, false, err
		}
		return nil, false, fmt.Errorf("failed to create grant: %w", err)
	}
	return g, true, nil
}

// Revoke deactivates the pair's active grant. It is a no-op when none exists.
func (s *Service) Revoke(ctx context.Context, tenantID, professionalID, revokedBy int64, now time.Time) error {
	unlock := s.locks.lock(tenantID, professionalID)
	defer unlock()

	existing, err := s.repo.FindActive(ctx, tenantID, professionalID)
	if errors.Is(err, ErrGrantNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load grant: %w", err)
	}
	if err := s.repo.Deactivate(ctx, existing.ID, now); err != nil {
		return fmt.Errorf("failed to revoke grant: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeGrantRevoked,
		TenantID: audit.FormatID(tenantID),
		ActorID:  audit.FormatID(revokedBy),
		Resource: existing.ID,
		Metadata: map[string]any{"professional_id": professionalID},
	})
	return nil
}

// EffectiveGrant returns the pair's grant iff it is active and unexpired at now.
func (s *Service) EffectiveGrant(ctx context.Context, tenantID, professionalID int64, now time.Time) (*TenantGrant, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	g, err := s.repo.FindActive(ctx, tenantID, professionalID)
	if errors.Is(err, ErrGrantNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load grant: %w", err)
	}
	if !g.IsEffective(now) {
		return nil, false, nil
	}
	return g, true, nil
}

// HasCapability reports whether the pair's effective grant includes capability.
func (s *Service) HasCapability(ctx context.Context, tenantID, professionalID int64, capability Capability, now time.Time) (bool, error) {
	g, ok, err := s.EffectiveGrant(ctx, tenantID, professionalID, now)
	if err != nil || !ok {
		return false, err
	}
	return g.Capabilities.Has(capability), nil
}

// SweepExpired deactivates every active grant whose expiry is at or before now.
// Authorization never depends on it having run.
func (s *Service) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	n, err := s.repo.SweepExpired(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep grants: %w", err)
	}
	if n > 0 {
		s.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeGrantsSwept,
			ActorID:  audit.ActorSystem,
			Metadata: map[string]any{"count": n, "as_of": now},
		})
	}
	slog.DebugContext(ctx, "grant sweep finished", slog.Int64("deactivated", n))
	return n, nil
}

// ListForTenant returns the effective grants on a tenant
func (s *Service) ListForTenant(ctx context.Context, tenantID int64, now time.Time) ([]*TenantGrant, error) {
	rows, err := s.repo.ListActiveByTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}
	return effectiveOnly(rows, now), nil
}

// ListForProfessional returns the effective grants held by a professional
func (s *Service) ListForProfessional(ctx context.Context, professionalID int64, now time.Time) ([]*TenantGrant, error) {
	rows, err := s.repo.ListActiveByProfessional(ctx, professionalID)
	if err != nil {
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}
	return effectiveOnly(rows, now), nil
}

// CanAdministerGrants reports whether actor may create or revoke grants on
// tenantID: the tenant's own TenantPrincipal, or a system operator.
func CanAdministerGrants(actor *identity.Principal, tenantID int64) bool {
	if actor == nil || !actor.Active {
		return false
	}
	switch actor.Level {
	case identity.LevelSystemOperator:
		return true
	case identity.LevelTenantPrincipal:
		home, ok := actor.HomeTenant()
		return ok && home == tenantID
	default:
		return false
	}
}

func (s *Service) checkReferents(ctx context.Context, tenantID, professionalID int64) error {
	if _, err := s.tenants.GetByID(ctx, tenantID); err != nil {
		if errors.Is(err, tenant.ErrTenantNotFound) {
			return fmt.Errorf("%w: tenant %d", ErrNotFound, tenantID)
		}
		return fmt.Errorf("failed to load tenant: %w", err)
	}

	p, err := s.principals.GetByID(ctx, professionalID)
	if err != nil {
		if errors.Is(err, identity.ErrPrincipalNotFound) {
			return fmt.Errorf("%w: principal %d", ErrNotFound, professionalID)
		}
		return fmt.Errorf("failed to load principal: %w", err)
	}
	if p.Level != identity.LevelCrossTenantProfessional {
		return fmt.Errorf("%w: principal %d is %s, not a cross-tenant professional", ErrInvalidArgument, professionalID, p.Level)
	}
	return nil
}

func validateRequest(req GrantRequest, now time.Time) error {
	if len(req.Capabilities) == 0 {
		return fmt.Errorf("%w: at least one capability is required", ErrInvalidArgument)
	}
	for c := range req.Capabilities {
		if !c.Valid() {
			return fmt.Errorf("%w: %w: %q", ErrInvalidArgument, ErrUnknownCapability, c)
		}
	}
	if req.ExpiresAt != nil && !req.ExpiresAt.After(now) {
		return fmt.Errorf("%w: expiry must be in the future", ErrInvalidArgument)
	}
	return nil
}

func effectiveOnly(rows []*TenantGrant, now time.Time) []*TenantGrant {
	out := make([]*TenantGrant, 0, len(rows))
	for _, g := range rows {
		if g.IsEffective(now) {
			out = append(out, g)
		}
	}
	return out
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
