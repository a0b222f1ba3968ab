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
	"fmt"
	"strings"

	"github.com/opentrusty/farmgate/internal/audit"
)

// Service provides principal management business logic
type Service struct {
	repo        Repository
	auditLogger audit.Logger
}

// NewService creates a new identity service
func NewService(repo Repository, auditLogger audit.Logger) *Service {
	return &Service{
		repo:        repo,
		auditLogger: auditLogger,
	}
}

// Register validates and persists a new principal.
// createdBy is the acting principal id, or audit.ActorSystem.
func (s *Service) Register(ctx context.Context, p *Principal, createdBy string) (*Principal, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	p.Email = strings.TrimSpace(strings.ToLower(p.Email))
	if p.RoleIDs == nil {
		p.RoleIDs = IDSet{}
	}
	if p.PermissionIDs == nil {
		p.PermissionIDs = IDSet{}
	}

	if err := s.repo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to create principal: %w", err)
	}

	tenantID := ""
	if tid, ok := p.HomeTenant(); ok {
		tenantID = audit.FormatID(tid)
	}
	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypePrincipalCreated,
		TenantID: tenantID,
		ActorID:  createdBy,
		Resource: audit.FormatID(p.ID),
		Metadata: map[string]any{"level": string(p.Level)},
	})

	return p, nil
}

// Get retrieves a principal by ID
func (s *Service) Get(ctx context.Context, id int64) (*Principal, error) {
	return s.repo.GetByID(ctx, id)
}

// SetActive activates or deactivates target on behalf of actor.
// The actor must outrank the target.
func (s *Service) SetActive(ctx context.Context, actor *Principal, targetID int64, active bool) error {
	target, err := s.repo.GetByID(ctx, targetID)
	if err != nil {
		return err
	}
	if !actor.Active || !CanManage(actor.Level, target.Level) {
		return ErrNotPermitted
	}
	if target.Active == active {
		return nil
	}
	if err := s.repo.SetActive(ctx, targetID, active); err != nil {
		return fmt.Errorf("failed to update principal: %w", err)
	}

	eventType := audit.TypePrincipalDeactivated
	if active {
		eventType = audit.TypePrincipalActivated
	}
	s.auditLogger.Log(ctx, audit.Event{
		Type:     eventType,
		ActorID:  audit.FormatID(actor.ID),
		Resource: audit.FormatID(targetID),
	})
	return nil
}
