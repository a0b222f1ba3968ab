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

package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/opentrusty/farmgate/internal/audit"
	"github.com/opentrusty/farmgate/internal/identity"
)

// Graph provides role and permission business logic over the principal edges.
type Graph struct {
	roles       RoleRepository
	permissions PermissionRepository
	edges       identity.EdgeRepository
	auditLogger audit.Logger
}

// NewGraph creates a new RBAC graph service
func NewGraph(
	roles RoleRepository,
	permissions PermissionRepository,
	edges identity.EdgeRepository,
	auditLogger audit.Logger,
) *Graph {
	return &Graph{
		roles:       roles,
		permissions: permissions,
		edges:       edges,
		auditLogger: auditLogger,
	}
}

// EffectivePermissions returns the names of the active permissions reachable
// from p's active roles and p's custom permissions. Inactive principals hold none.
func (g *Graph) EffectivePermissions(ctx context.Context, p *identity.Principal) (PermissionSet, error) {
	out := PermissionSet{}
	if p == nil || !p.Active {
		return out, nil
	}

	permIDs := p.PermissionIDs.Clone()
	if permIDs == nil {
		permIDs = identity.IDSet{}
	}

	if len(p.RoleIDs) > 0 {
		roles, err := g.roles.ListByIDs(ctx, p.RoleIDs.Slice())
		if err != nil {
			return nil, fmt.Errorf("failed to load roles: %w", err)
		}
		for _, r := range roles {
			if !r.Active {
				continue
			}
			for id := range r.PermissionIDs {
				permIDs.Add(id)
			}
		}
	}

	if len(permIDs) == 0 {
		return out, nil
	}

	perms, err := g.permissions.ListByIDs(ctx, permIDs.Slice())
	if err != nil {
		return nil, fmt.Errorf("failed to load permissions: %w", err)
	}
	for _, perm := range perms {
		if perm.Active {
			out[perm.Name] = struct{}{}
		}
	}
	return out, nil
}

// HasPermission reports whether name is among p's effective permissions.
// An unknown name yields false with no error.
func (g *Graph) HasPermission(ctx context.Context, p *identity.Principal, name string) (bool, error) {
	set, err := g.EffectivePermissions(ctx, p)
	if err != nil {
		return false, err
	}
	return set.Has(name), nil
}

// AssignRole links the named role to p. Assigning a held role is a no-op.
func (g *Graph) AssignRole(ctx context.Context, actorID string, p *identity.Principal, roleName string) error {
	role, err := g.roles.GetByName(ctx, roleName)
	if err != nil {
		return fmt.Errorf("failed to resolve role %q: %w", roleName, err)
	}
	if p.RoleIDs == nil {
		p.RoleIDs = identity.IDSet{}
	}
	if p.RoleIDs.Has(role.ID) {
		return nil
	}
	if err := g.edges.AddRole(ctx, p.ID, role.ID); err != nil {
		return fmt.Errorf("failed to assign role: %w", err)
	}
	p.RoleIDs.Add(role.ID)

	g.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeRoleAssigned,
		TenantID: homeTenant(p),
		ActorID:  actorID,
		Resource: audit.FormatID(p.ID),
		Metadata: map[string]any{"role": role.Name},
	})
	return nil
}

// RevokeRole unlinks the named role from p. Revoking an unheld role is a no-op.
func (g *Graph) RevokeRole(ctx context.Context, actorID string, p *identity.Principal, roleName string) error {
	role, err := g.roles.GetByName(ctx, roleName)
	if err != nil {
		return fmt.Errorf("failed to resolve role %q: %w", roleName, err)
	}
	if !p.RoleIDs.Has(role.ID) {
		return nil
	}
	if err := g.edges.RemoveRole(ctx, p.ID, role.ID); err != nil {
		return fmt.Errorf("failed to revoke role: %w", err)
	}
	p.RoleIDs.Remove(role.ID)

	g.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeRoleRevoked,
		TenantID: homeTenant(p),
		ActorID:  actorID,
		Resource: audit.FormatID(p.ID),
		Metadata: map[string]any{"role": role.Name},
	})
	return nil
}

// GrantCustomPermission links the named permission directly to p.
func (g *Graph) GrantCustomPermission(ctx context.Context, actorID string, p *identity.Principal, permissionName string) error {
	perm, err := g.permissions.GetByName(ctx, permissionName)
	if err != nil {
		return fmt.Errorf("failed to resolve permission %q: %w", permissionName, err)
	}
	if p.PermissionIDs == nil {
		p.PermissionIDs = identity.IDSet{}
	}
	if p.PermissionIDs.Has(perm.ID) {
		return nil
	}
	if err := g.edges.AddPermission(ctx, p.ID, perm.ID); err != nil {
		return fmt.Errorf("failed to grant permission: %w", err)
	}
	p.PermissionIDs.Add(perm.ID)

	g.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypePermissionGranted,
		TenantID: homeTenant(p),
		ActorID:  actorID,
		Resource: audit.FormatID(p.ID),
		Metadata: map[string]any{"permission": perm.Name},
	})
	return nil
}

// RevokeCustomPermission unlinks a directly held permission from p.
// Permissions reachable through roles are unaffected.
func (g *Graph) RevokeCustomPermission(ctx context.Context, actorID string, p *identity.Principal, permissionName string) error {
	perm, err := g.permissions.GetByName(ctx, permissionName)
	if err != nil {
		return fmt.Errorf("failed to resolve permission %q: %w", permissionName, err)
	}
	if !p.PermissionIDs.Has(perm.ID) {
		return nil
	}
	if err := g.edges.RemovePermission(ctx, p.ID, perm.ID); err != nil {
		return fmt.Errorf("failed to revoke permission: %w", err)
	}
	p.PermissionIDs.Remove(perm.ID)

	g.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypePermissionRevoked,
		TenantID: homeTenant(p),
		ActorID:  actorID,
		Resource: audit.FormatID(p.ID),
		Metadata: map[string]any{"permission": perm.Name},
	})
	return nil
}

// CreateRoleRequest describes a custom role
type CreateRoleRequest struct {
	Name        string
	DisplayName string
	Description string
	Permissions []string
}

// CreateRole creates a non-system role holding the named permissions.
func (g *Graph) CreateRole(ctx context.Context, actorID string, req CreateRoleRequest) (*Role, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidRole)
	}

	permIDs := identity.IDSet{}
	for _, pn := range req.Permissions {
		perm, err := g.permissions.GetByName(ctx, pn)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve permission %q: %w", pn, err)
		}
		permIDs.Add(perm.ID)
	}

	role := &Role{
		Name:          name,
		DisplayName:   req.DisplayName,
		Description:   req.Description,
		Active:        true,
		PermissionIDs: permIDs,
	}
	if err := g.roles.Create(ctx, role); err != nil {
		return nil, fmt.Errorf("failed to create role: %w", err)
	}

	g.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeRoleCreated,
		ActorID:  actorID,
		Resource: role.Name,
		Metadata: map[string]any{"permissions": len(permIDs)},
	})
	return role, nil
}

// GrantPermissionToRole adds a permission to a role; idempotent.
func (g *Graph) GrantPermissionToRole(ctx context.Context, actorID, roleName, permissionName string) error {
	role, perm, err := g.resolvePair(ctx, roleName, permissionName)
	if err != nil {
		return err
	}
	if role.PermissionIDs.Has(perm.ID) {
		return nil
	}
	if err := g.roles.AddPermission(ctx, role.ID, perm.ID); err != nil {
		return fmt.Errorf("failed to add permission to role: %w", err)
	}
	g.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeRolePermissionAdded,
		ActorID:  actorID,
		Resource: role.Name,
		Metadata: map[string]any{"permission": perm.Name},
	})
	return nil
}

// RevokePermissionFromRole removes a permission from a role; idempotent.
func (g *Graph) RevokePermissionFromRole(ctx context.Context, actorID, roleName, permissionName string) error {
	role, perm, err := g.resolvePair(ctx, roleName, permissionName)
	if err != nil {
		return err
	}
	if !role.PermissionIDs.Has(perm.ID) {
		return nil
	}
	if err := g.roles.RemovePermission(ctx, role.ID, perm.ID); err != nil {
		return fmt.Errorf("failed to remove permission from role: %w", err)
	}
	g.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeRolePermissionRemove,
		ActorID:  actorID,
		Resource: role.Name,
		Metadata: map[string]any{"permission": perm.Name},
	})
	return nil
}

// DeleteRole deletes a custom role. System roles are rejected with ErrSystemRole.
func (g *Graph) DeleteRole(ctx context.Context, actorID, roleName string) error {
	role, err := g.roles.GetByName(ctx, roleName)
	if err != nil {
		return fmt.Errorf("failed to resolve role %q: %w", roleName, err)
	}
	if role.IsSystemRole {
		return ErrSystemRole
	}
	if err := g.roles.Delete(ctx, role.ID); err != nil {
		return fmt.Errorf("failed to delete role: %w", err)
	}
	g.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeRoleDeleted,
		ActorID:  actorID,
		Resource: role.Name,
	})
	return nil
}

// ListRoles returns every role
func (g *Graph) ListRoles(ctx context.Context) ([]*Role, error) {
	return g.roles.List(ctx)
}

// SeedSystemCatalog ensures the system permissions and roles exist with their
// bundles. Running it again changes nothing.
func (g *Graph) SeedSystemCatalog(ctx context.Context) error {
	byName := make(map[string]int64, len(SystemPermissions))
	for _, def := range SystemPermissions {
		perm, err := g.permissions.GetByName(ctx, def.Name)
		if errors.Is(err, ErrPermissionNotFound) {
			perm = &Permission{
				Name:               def.Name,
				Category:           def.Category,
				Level:              def.Level,
				Description:        def.Description,
				IsSystemPermission: true,
				Active:             true,
			}
			err = g.permissions.Create(ctx, perm)
		}
		if err != nil {
			return fmt.Errorf("failed to seed permission %s: %w", def.Name, err)
		}
		byName[def.Name] = perm.ID
	}

	for _, def := range SystemRoles() {
		role, err := g.roles.GetByName(ctx, def.Name)
		if errors.Is(err, ErrRoleNotFound) {
			role = &Role{
				Name:          def.Name,
				DisplayName:   def.DisplayName,
				IsSystemRole:  true,
				Active:        true,
				PermissionIDs: identity.IDSet{},
			}
			err = g.roles.Create(ctx, role)
		}
		if err != nil {
			return fmt.Errorf("failed to seed role %s: %w", def.Name, err)
		}
		for _, pn := range def.Permissions {
			pid := byName[pn]
			if role.PermissionIDs.Has(pid) {
				continue
			}
			if err := g.roles.AddPermission(ctx, role.ID, pid); err != nil {
				return fmt.Errorf("failed to seed %s on %s: %w", pn, def.Name, err)
			}
		}
	}

	slog.InfoContext(ctx, "rbac catalog seeded",
		slog.Int("permissions", len(SystemPermissions)),
		slog.Int("roles", len(SystemRoles())),
	)
	return nil
}

// RoleIDByName resolves a role name to its ID.
func (g *Graph) RoleIDByName(ctx context.Context, name string) (int64, error) {
	role, err := g.roles.GetByName(ctx, name)
	if err != nil {
		return 0, err
	}
	return role.ID, nil
}

func (g *Graph) resolvePair(ctx context.Context, roleName, permissionName string) (*Role, *Permission, error) {
	role, err := g.roles.GetByName(ctx, roleName)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve role %q: %w", roleName, err)
	}
	perm, err := g.permissions.GetByName(ctx, permissionName)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve permission %q: %w", permissionName, err)
	}
	return role, perm, nil
}

func homeTenant(p *identity.Principal) string {
	if tid, ok := p.HomeTenant(); ok {
		return audit.FormatID(tid)
	}
	return ""
}
