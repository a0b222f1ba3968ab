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
	"fmt"
	"strings"
	"time"

	"github.com/opentrusty/farmgate/internal/audit"
	"github.com/opentrusty/farmgate/internal/identity"
	"github.com/opentrusty/farmgate/internal/rbac"
)

// Service provides tenant management business logic
type Service struct {
	repo        Repository
	principals  identity.Repository
	roles       RoleAssigner
	auditLogger audit.Logger
}

// NewService creates a new tenant service
func NewService(repo Repository, principals identity.Repository, roles RoleAssigner, auditLogger audit.Logger) *Service {
	return &Service{
		repo:        repo,
		principals:  principals,
		roles:       roles,
		auditLogger: auditLogger,
	}
}

// SignupRequest describes a new farm account and its owner
type SignupRequest struct {
	TenantName  string
	Username    string
	Email       string
	DisplayName string
	FarmName    string
	Phone       string
}

// Signup creates a tenant together with its TenantPrincipal owner and gives
// the owner the CUSTOMER role.
func (s *Service) Signup(ctx context.Context, req SignupRequest, now time.Time) (*Tenant, *identity.Principal, error) {
	name := strings.TrimSpace(req.TenantName)
	if name == "" {
		return nil, nil, fmt.Errorf("%w: tenant name is required", ErrInvalidTenant)
	}

	if _, err := s.repo.GetByName(ctx, name); err == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrTenantAlreadyExists, name)
	} else if !errors.Is(err, ErrTenantNotFound) {
		return nil, nil, fmt.Errorf("failed to check tenant name: %w", err)
	}

	t := &Tenant{
		Name:      name,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	// The home tenant id is assigned by CreateWithOwner.
	placeholder := int64(0)
	owner, err := identity.NewPrincipal(0, identity.LevelTenantPrincipal, &placeholder, identity.OwnerAttributes{
		FarmName: req.FarmName,
		Phone:    req.Phone,
	})
	if err != nil {
		return nil, nil, err
	}
	owner.Username = req.Username
	owner.Email = strings.TrimSpace(strings.ToLower(req.Email))
	owner.DisplayName = req.DisplayName
	owner.CreatedAt = now
	owner.UpdatedAt = now

	if err := s.repo.CreateWithOwner(ctx, t, owner); err != nil {
		return nil, nil, fmt.Errorf("failed to create tenant: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeTenantCreated,
		TenantID: audit.FormatID(t.ID),
		ActorID:  audit.FormatID(owner.ID),
		Resource: t.Name,
	})

	if err := s.roles.AssignRole(ctx, audit.ActorSystem, owner, rbac.RoleCustomer); err != nil {
		err = fmt.Errorf("failed to assign owner role: %w", err)
		return nil, nil, s.quarantine(ctx, audit.ActorSystem, owner, t.ID, true, now, err)
	}

	return t, owner, nil
}

// GetTenant retrieves a tenant by ID
func (s *Service) GetTenant(ctx context.Context, id int64) (*Tenant, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: tenant id is required", ErrInvalidTenant)
	}
	return s.repo.GetByID(ctx, id)
}

// ListTenants lists tenants with pagination
func (s *Service) ListTenants(ctx context.Context, limit, offset int) ([]*Tenant, error) {
	return s.repo.List(ctx, limit, offset)
}

// Suspend marks a tenant suspended. Only system operators may do so.
func (s *Service) Suspend(ctx context.Context, actor *identity.Principal, tenantID int64, now time.Time) error {
	return s.setStatus(ctx, actor, tenantID, StatusSuspended, audit.TypeTenantSuspended, now)
}

// Reactivate lifts a suspension. Only system operators may do so.
func (s *Service) Reactivate(ctx context.Context, actor *identity.Principal, tenantID int64, now time.Time) error {
	return s.setStatus(ctx, actor, tenantID, StatusActive, audit.TypeTenantReactivated, now)
}

func (s *Service) setStatus(ctx context.Context, actor *identity.Principal, tenantID int64, status, eventType string, now time.Time) error {
	if actor == nil || !actor.Active || actor.Level != identity.LevelSystemOperator {
		return ErrNotPermitted
	}
	t, err := s.repo.GetByID(ctx, tenantID)
	if err != nil {
		return err
	}
	if t.Status == status {
		return nil
	}
	if err := s.repo.UpdateStatus(ctx, tenantID, status, now); err != nil {
		return fmt.Errorf("failed to update tenant status: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     eventType,
		TenantID: audit.FormatID(tenantID),
		ActorID:  audit.FormatID(actor.ID),
		Resource: t.Name,
	})
	return nil
}

// DelegateRequest describes a new account employee
type DelegateRequest struct {
	Username    string
	Email       string
	DisplayName string
	JobTitle    string
}

// AddDelegate creates a TenantDelegate in tenantID with the ACCOUNT_USER role.
// The actor must own the tenant or be a system operator. The tenant must be
// active and hold fewer than MaxDelegates delegates.
func (s *Service) AddDelegate(ctx context.Context, actor *identity.Principal, tenantID int64, req DelegateRequest, now time.Time) (*identity.Principal, error) {
	if !canAdministerTenant(actor, tenantID) {
		return nil, ErrNotPermitted
	}
	t, err := s.repo.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !t.IsActive() {
		return nil, ErrTenantSuspended
	}

	delegate, err := identity.NewPrincipal(0, identity.LevelTenantDelegate, &t.ID, identity.DelegateAttributes{
		JobTitle: req.JobTitle,
	})
	if err != nil {
		return nil, err
	}
	delegate.Username = req.Username
	delegate.Email = strings.TrimSpace(strings.ToLower(req.Email))
	delegate.DisplayName = req.DisplayName
	delegate.CreatedAt = now
	delegate.UpdatedAt = now

	if err := s.principals.CreateDelegate(ctx, delegate, MaxDelegates); err != nil {
		if errors.Is(err, identity.ErrCapacityExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create delegate: %w", err)
	}

	actorID := audit.FormatID(actor.ID)
	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeDelegateAdded,
		TenantID: audit.FormatID(tenantID),
		ActorID:  actorID,
		Resource: audit.FormatID(delegate.ID),
	})

	if err := s.roles.AssignRole(ctx, actorID, delegate, rbac.RoleAccountUser); err != nil {
		err = fmt.Errorf("failed to assign delegate role: %w", err)
		return nil, s.quarantine(ctx, actorID, delegate, tenantID, false, now, err)
	}
	return delegate, nil
}

// quarantine leaves a principal whose role assignment failed unable to
// authenticate. On signup the new tenant is suspended as well, so an operator
// can finish or discard the account. The returned error wraps cause and any
// compensation failure.
func (s *Service) quarantine(ctx context.Context, actorID string, p *identity.Principal, tenantID int64, suspendTenant bool, now time.Time, cause error) error {
	errs := []error{cause}
	if err := s.principals.SetActive(ctx, p.ID, false); err != nil {
		errs = append(errs, fmt.Errorf("failed to deactivate principal %d: %w", p.ID, err))
	}
	if suspendTenant {
		if err := s.repo.UpdateStatus(ctx, tenantID, StatusSuspended, now); err != nil {
			errs = append(errs, fmt.Errorf("failed to suspend tenant %d: %w", tenantID, err))
		}
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeProvisioningFailed,
		TenantID: audit.FormatID(tenantID),
		ActorID:  actorID,
		Resource: audit.FormatID(p.ID),
		Metadata: map[string]any{
			"level":            string(p.Level),
			"tenant_suspended": suspendTenant,
			"error":            cause.Error(),
		},
	})
	return errors.Join(errs...)
}

// CountDelegates returns how many delegates the tenant holds
func (s *Service) CountDelegates(ctx context.Context, tenantID int64) (int, error) {
	return s.principals.CountByHomeTenant(ctx, tenantID, identity.LevelTenantDelegate)
}

func canAdministerTenant(actor *identity.Principal, tenantID int64) bool {
	if actor == nil || !actor.Active {
		return false
	}
	if actor.Level == identity.LevelSystemOperator {
		return true
	}
	home, ok := actor.HomeTenant()
	return ok && actor.Level == identity.LevelTenantPrincipal && home == tenantID
}
