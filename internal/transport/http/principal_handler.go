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

package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opentrusty/farmgate/internal/audit"
	"github.com/opentrusty/farmgate/internal/identity"
	"github.com/opentrusty/farmgate/internal/rbac"
	"github.com/opentrusty/farmgate/internal/requestctx"
)

// Edge editing rules:
//   - a system operator edits any principal it outranks
//   - a tenant principal edits its own delegates, may assign only ACCOUNT_USER
//     and may hand out only custom permissions it holds itself
//   - nobody else edits edges

type edgeKind int

const (
	roleEdge edgeKind = iota
	permissionEdge
)

// AssignRole gives a principal a role
// @Summary Assign role
// @Tags RBAC
// @Security BearerAuth
// @Param principalID path int true "Principal ID"
// @Param roleName path string true "Role name"
// @Success 204
// @Router /principals/{principalID}/roles/{roleName} [put]
func (h *Handler) AssignRole(w http.ResponseWriter, r *http.Request) {
	h.editEdge(w, r, roleEdge, "roleName", h.graph.AssignRole)
}

// RevokeRole removes a role from a principal
// @Summary Revoke role
// @Tags RBAC
// @Security BearerAuth
// @Param principalID path int true "Principal ID"
// @Param roleName path string true "Role name"
// @Success 204
// @Router /principals/{principalID}/roles/{roleName} [delete]
func (h *Handler) RevokeRole(w http.ResponseWriter, r *http.Request) {
	h.editEdge(w, r, roleEdge, "roleName", h.graph.RevokeRole)
}

// GrantPermission gives a principal a custom permission
// @Summary Grant custom permission
// @Tags RBAC
// @Security BearerAuth
// @Param principalID path int true "Principal ID"
// @Param permissionName path string true "Permission name"
// @Success 204
// @Router /principals/{principalID}/permissions/{permissionName} [put]
func (h *Handler) GrantPermission(w http.ResponseWriter, r *http.Request) {
	h.editEdge(w, r, permissionEdge, "permissionName", h.graph.GrantCustomPermission)
}

// RevokePermission removes a custom permission from a principal
// @Summary Revoke custom permission
// @Tags RBAC
// @Security BearerAuth
// @Param principalID path int true "Principal ID"
// @Param permissionName path string true "Permission name"
// @Success 204
// @Router /principals/{principalID}/permissions/{permissionName} [delete]
func (h *Handler) RevokePermission(w http.ResponseWriter, r *http.Request) {
	h.editEdge(w, r, permissionEdge, "permissionName", h.graph.RevokeCustomPermission)
}

type edgeOp func(ctx context.Context, actorID string, p *identity.Principal, name string) error

func (h *Handler) editEdge(w http.ResponseWriter, r *http.Request, kind edgeKind, param string, op edgeOp) {
	target, ok := h.loadTarget(w, r)
	if !ok {
		return
	}
	name := chi.URLParam(r, param)
	tc := tenantContext(r)
	actor := tc.Principal()

	if !canManagePrincipal(actor, target) {
		respondError(w, http.StatusForbidden, "not permitted to manage this principal")
		return
	}
	if !h.withinAuthority(w, r, tc, kind, name) {
		return
	}

	if err := op(r.Context(), audit.FormatID(actor.ID), target, name); err != nil {
		respondServiceError(r, w, err, "failed to update principal")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// withinAuthority checks that the actor may hand out name
func (h *Handler) withinAuthority(w http.ResponseWriter, r *http.Request, tc requestctx.TenantContext, kind edgeKind, name string) bool {
	if tc.Level() == identity.LevelSystemOperator {
		return h.requirePermission(w, r, tc, rbac.PermSystemManageRoles)
	}

	if !h.requirePermission(w, r, tc, rbac.PermAccountManageUsers) {
		return false
	}
	switch kind {
	case roleEdge:
		if name != rbac.RoleAccountUser {
			respondError(w, http.StatusForbidden, "tenant owners may only assign "+rbac.RoleAccountUser)
			return false
		}
		return true
	default:
		return h.requirePermission(w, r, tc, name)
	}
}

// ListPrincipalPermissions returns a principal's effective permission names
// @Summary List effective permissions
// @Tags RBAC
// @Produce json
// @Security BearerAuth
// @Param principalID path int true "Principal ID"
// @Success 200 {object} map[string][]string
// @Router /principals/{principalID}/permissions [get]
func (h *Handler) ListPrincipalPermissions(w http.ResponseWriter, r *http.Request) {
	target, ok := h.loadTarget(w, r)
	if !ok {
		return
	}
	tc := tenantContext(r)
	actor := tc.Principal()

	if actor.ID != target.ID && !tc.IsSystemLevel() && !canManagePrincipal(actor, target) {
		respondError(w, http.StatusForbidden, "not permitted to view this principal")
		return
	}

	perms, err := h.graph.EffectivePermissions(r.Context(), target)
	if err != nil {
		respondServiceError(r, w, err, "failed to resolve permissions")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"principal_id": target.ID,
		"permissions":  perms.Names(),
	})
}

func (h *Handler) loadTarget(w http.ResponseWriter, r *http.Request) (*identity.Principal, bool) {
	id, ok := pathID(w, r, "principalID")
	if !ok {
		return nil, false
	}
	p, err := h.principals.GetByID(r.Context(), id)
	if err != nil {
		respondServiceError(r, w, err, "failed to load principal")
		return nil, false
	}
	return p, true
}

func canManagePrincipal(actor, target *identity.Principal) bool {
	if actor == nil || target == nil || !actor.Active {
		return false
	}
	switch actor.Level {
	case identity.LevelSystemOperator:
		return identity.CanManage(actor.Level, target.Level)
	case identity.LevelTenantPrincipal:
		if target.Level != identity.LevelTenantDelegate {
			return false
		}
		home, ok := actor.HomeTenant()
		targetHome, targetOK := target.HomeTenant()
		return ok && targetOK && home == targetHome
	default:
		return false
	}
}

// RegisterPrincipalRequest describes an operator-created principal
type RegisterPrincipalRequest struct {
	Level       string          `json:"level" validate:"required,oneof=support_operator cross_tenant_professional" example:"cross_tenant_professional"`
	Username    string          `json:"username" validate:"required,max=100"`
	Email       string          `json:"email" validate:"omitempty,email"`
	DisplayName string          `json:"display_name" validate:"max=200"`
	Attributes  json.RawMessage `json:"attributes,omitempty" swaggertype:"object"`
	Roles       []string        `json:"roles" validate:"dive,required"`
}

// defaultRoles are assigned when a registration names no roles
var defaultRoles = map[identity.Level]string{
	identity.LevelSupportOperator:         rbac.RoleSupportAdmin,
	identity.LevelCrossTenantProfessional: rbac.RoleVeterinarian,
}

// RegisterPrincipal creates a support operator or a cross-tenant professional.
// Tenant-scoped principals are created through signup and delegates.
// @Summary Register principal
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body RegisterPrincipalRequest true "Principal"
// @Success 201 {object} PrincipalResponse
// @Failure 403 {object} map[string]string
// @Router /admin/principals [post]
func (h *Handler) RegisterPrincipal(w http.ResponseWriter, r *http.Request) {
	tc := tenantContext(r)
	if tc.Level() != identity.LevelSystemOperator {
		respondError(w, http.StatusForbidden, "only system operators may register principals")
		return
	}
	if !h.requirePermission(w, r, tc, rbac.PermSystemManageRoles) {
		return
	}

	var req RegisterPrincipalRequest
	if !h.decode(w, r, &req) {
		return
	}
	level := identity.Level(req.Level)

	attrs, err := identity.UnmarshalAttributes(level, req.Attributes)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid attributes")
		return
	}
	if attrs == nil && level == identity.LevelSupportOperator {
		attrs = identity.OperatorAttributes{Support: true}
	}

	p, err := identity.NewPrincipal(0, level, nil, attrs)
	if err != nil {
		respondServiceError(r, w, err, "failed to register principal")
		return
	}
	now := h.now()
	p.Username = req.Username
	p.Email = req.Email
	p.DisplayName = req.DisplayName
	p.CreatedAt = now
	p.UpdatedAt = now

	actorID := audit.FormatID(tc.PrincipalID())
	if _, err := h.identity.Register(r.Context(), p, actorID); err != nil {
		respondServiceError(r, w, err, "failed to register principal")
		return
	}

	roles := req.Roles
	if len(roles) == 0 {
		roles = []string{defaultRoles[level]}
	}
	for _, role := range roles {
		if err := h.graph.AssignRole(r.Context(), actorID, p, role); err != nil {
			respondServiceError(r, w, err, "failed to assign role")
			return
		}
	}

	respondJSON(w, http.StatusCreated, principalResponse(p))
}

// ActivatePrincipal re-enables a principal
// @Summary Activate principal
// @Tags Admin
// @Security BearerAuth
// @Param principalID path int true "Principal ID"
// @Success 204
// @Router /principals/{principalID}/activate [post]
func (h *Handler) ActivatePrincipal(w http.ResponseWriter, r *http.Request) {
	h.setPrincipalActive(w, r, true)
}

// DeactivatePrincipal disables a principal. Its next request is rejected.
// @Summary Deactivate principal
// @Tags Admin
// @Security BearerAuth
// @Param principalID path int true "Principal ID"
// @Success 204
// @Router /principals/{principalID}/deactivate [post]
func (h *Handler) DeactivatePrincipal(w http.ResponseWriter, r *http.Request) {
	h.setPrincipalActive(w, r, false)
}

func (h *Handler) setPrincipalActive(w http.ResponseWriter, r *http.Request, active bool) {
	id, ok := pathID(w, r, "principalID")
	if !ok {
		return
	}
	tc := tenantContext(r)
	if !h.requirePermission(w, r, tc, rbac.PermSystemManageRoles) {
		return
	}
	if err := h.identity.SetActive(r.Context(), tc.Principal(), id, active); err != nil {
		respondServiceError(r, w, err, "failed to update principal")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
