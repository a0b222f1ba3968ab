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
	"log/slog"
	"net/http"
	"time"

	"github.com/opentrusty/farmgate/internal/grant"
	"github.com/opentrusty/farmgate/internal/identity"
	"github.com/opentrusty/farmgate/internal/observability/logger"
	"github.com/opentrusty/farmgate/internal/rbac"
	"github.com/opentrusty/farmgate/internal/tenant"
)

// AddDelegateRequest represents a new account employee
type AddDelegateRequest struct {
	Username    string `json:"username" validate:"required,max=100" example:"farmhand"`
	Email       string `json:"email" validate:"omitempty,email" example:"hand@example.com"`
	DisplayName string `json:"display_name" validate:"max=200"`
	JobTitle    string `json:"job_title" validate:"max=100"`
}

// AddDelegate creates a delegate in a tenant
// @Summary Add delegate
// @Description Creates a TenantDelegate with the ACCOUNT_USER role. A tenant holds at most five.
// @Tags Tenant
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param tenantID path int true "Tenant ID"
// @Param request body AddDelegateRequest true "Delegate"
// @Success 201 {object} PrincipalResponse
// @Failure 403 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /tenants/{tenantID}/delegates [post]
func (h *Handler) AddDelegate(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathID(w, r, "tenantID")
	if !ok {
		return
	}
	var req AddDelegateRequest
	if !h.decode(w, r, &req) {
		return
	}

	tc := tenantContext(r)
	now := h.now()
	d := h.engine.AuthorizeAction(r.Context(), tc, tenantID, grant.CapEditLivestock, rbac.PermAccountManageUsers, now)
	if !respondDecision(r, w, d) {
		return
	}

	delegate, err := h.tenants.AddDelegate(r.Context(), tc.Principal(), tenantID, tenant.DelegateRequest{
		Username:    req.Username,
		Email:       req.Email,
		DisplayName: req.DisplayName,
		JobTitle:    req.JobTitle,
	}, now)
	if err != nil {
		respondServiceError(r, w, err, "failed to add delegate")
		return
	}

	slog.InfoContext(r.Context(), "delegate added",
		logger.TenantID(tenantID),
		logger.PrincipalID(delegate.ID),
	)
	respondJSON(w, http.StatusCreated, principalResponse(delegate))
}

// SuspendTenant suspends a tenant
// @Summary Suspend tenant
// @Tags Admin
// @Security BearerAuth
// @Param tenantID path int true "Tenant ID"
// @Success 204
// @Router /admin/tenants/{tenantID}/suspend [post]
func (h *Handler) SuspendTenant(w http.ResponseWriter, r *http.Request) {
	h.setTenantStatus(w, r, h.tenants.Suspend)
}

// ReactivateTenant lifts a tenant suspension
// @Summary Reactivate tenant
// @Tags Admin
// @Security BearerAuth
// @Param tenantID path int true "Tenant ID"
// @Success 204
// @Router /admin/tenants/{tenantID}/reactivate [post]
func (h *Handler) ReactivateTenant(w http.ResponseWriter, r *http.Request) {
	h.setTenantStatus(w, r, h.tenants.Reactivate)
}

func (h *Handler) setTenantStatus(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, actor *identity.Principal, tenantID int64, now time.Time) error) {
	tenantID, ok := pathID(w, r, "tenantID")
	if !ok {
		return
	}
	tc := tenantContext(r)
	if !h.requirePermission(w, r, tc, rbac.PermSystemManageTenants) {
		return
	}
	if err := apply(r.Context(), tc.Principal(), tenantID, h.now()); err != nil {
		respondServiceError(r, w, err, "failed to update tenant")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
