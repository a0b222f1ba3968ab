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
	"log/slog"
	"net/http"
	"time"

	"github.com/opentrusty/farmgate/internal/authz"
	"github.com/opentrusty/farmgate/internal/grant"
	"github.com/opentrusty/farmgate/internal/identity"
	"github.com/opentrusty/farmgate/internal/observability/logger"
	"github.com/opentrusty/farmgate/internal/rbac"
	"github.com/opentrusty/farmgate/internal/requestctx"
)

// AccessResponse reports an authorization decision
type AccessResponse struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// CheckAccess evaluates whether the caller may reach a tenant with a capability
// @Summary Check tenant access
// @Tags Access
// @Produce json
// @Security BearerAuth
// @Param tenantID path int true "Tenant ID"
// @Param capability query string true "Capability"
// @Success 200 {object} AccessResponse
// @Failure 403 {object} AccessResponse
// @Router /tenants/{tenantID}/access [get]
func (h *Handler) CheckAccess(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathID(w, r, "tenantID")
	if !ok {
		return
	}
	capability, err := grant.ParseCapability(r.URL.Query().Get("capability"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	d := h.engine.Authorize(r.Context(), tenantContext(r), tenantID, capability, h.now())
	status := http.StatusOK
	switch {
	case d.Allowed:
	case d.Reason == authz.ReasonPrincipalInactive:
		status = http.StatusUnauthorized
	case d.Reason == authz.ReasonEvaluationFailed:
		status = http.StatusServiceUnavailable
	default:
		status = http.StatusForbidden
	}
	respondJSON(w, status, AccessResponse{Allowed: d.Allowed, Reason: string(d.Reason)})
}

// ListTenantGrants lists the effective grants on a tenant. A professional
// only sees its own grant.
// @Summary List tenant grants
// @Tags Grants
// @Produce json
// @Security BearerAuth
// @Param tenantID path int true "Tenant ID"
// @Success 200 {array} GrantResponse
// @Router /tenants/{tenantID}/grants [get]
func (h *Handler) ListTenantGrants(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathID(w, r, "tenantID")
	if !ok {
		return
	}
	tc := tenantContext(r)
	now := h.now()

	if !respondDecision(r, w, h.engine.Authorize(r.Context(), tc, tenantID, grant.CapViewLivestock, now)) {
		return
	}

	grants, err := h.grants.ListForTenant(r.Context(), tenantID, now)
	if err != nil {
		respondServiceError(r, w, err, "failed to list grants")
		return
	}
	if tc.IsCrossTenantProfessional() {
		own := grants[:0]
		for _, g := range grants {
			if g.ProfessionalID == tc.PrincipalID() {
				own = append(own, g)
			}
		}
		grants = own
	}
	respondJSON(w, http.StatusOK, grantResponses(grants))
}

// UpsertGrantRequest is the desired state of a grant
type UpsertGrantRequest struct {
	Capabilities []string   `json:"capabilities" validate:"required,min=1,dive,required"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	Notes        string     `json:"notes" validate:"max=1000"`
}

// UpsertGrant creates or updates a professional's grant on a tenant
// @Summary Grant access to a professional
// @Tags Grants
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param tenantID path int true "Tenant ID"
// @Param professionalID path int true "Professional principal ID"
// @Param request body UpsertGrantRequest true "Grant"
// @Success 200 {object} GrantResponse
// @Router /tenants/{tenantID}/grants/{professionalID} [put]
func (h *Handler) UpsertGrant(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathID(w, r, "tenantID")
	if !ok {
		return
	}
	professionalID, ok := pathID(w, r, "professionalID")
	if !ok {
		return
	}
	var req UpsertGrantRequest
	if !h.decode(w, r, &req) {
		return
	}
	caps, err := grant.ParseCapabilitySet(req.Capabilities)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	tc := tenantContext(r)
	now := h.now()
	if !h.authorizeGrantAdmin(w, r, tc, tenantID, now) {
		return
	}

	g, err := h.grants.Grant(r.Context(), grant.GrantRequest{
		TenantID:       tenantID,
		ProfessionalID: professionalID,
		Capabilities:   caps,
		ExpiresAt:      req.ExpiresAt,
		GrantedBy:      tc.PrincipalID(),
		Notes:          req.Notes,
	}, now)
	if err != nil {
		respondServiceError(r, w, err, "failed to save grant")
		return
	}
	respondJSON(w, http.StatusOK, grantResponse(g))
}

// RevokeGrant deactivates a professional's grant on a tenant
// @Summary Revoke a professional's access
// @Tags Grants
// @Security BearerAuth
// @Param tenantID path int true "Tenant ID"
// @Param professionalID path int true "Professional principal ID"
// @Success 204
// @Router /tenants/{tenantID}/grants/{professionalID} [delete]
func (h *Handler) RevokeGrant(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathID(w, r, "tenantID")
	if !ok {
		return
	}
	professionalID, ok := pathID(w, r, "professionalID")
	if !ok {
		return
	}

	tc := tenantContext(r)
	now := h.now()
	if !h.authorizeGrantAdmin(w, r, tc, tenantID, now) {
		return
	}

	if err := h.grants.Revoke(r.Context(), tenantID, professionalID, tc.PrincipalID(), now); err != nil {
		respondServiceError(r, w, err, "failed to revoke grant")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) authorizeGrantAdmin(w http.ResponseWriter, r *http.Request, tc requestctx.TenantContext, tenantID int64, now time.Time) bool {
	if !grant.CanAdministerGrants(tc.Principal(), tenantID) {
		respondError(w, http.StatusForbidden, "not permitted to manage grants on this tenant")
		return false
	}
	d := h.engine.AuthorizeAction(r.Context(), tc, tenantID, grant.CapEditLivestock, rbac.PermAccountManageVetAccess, now)
	return respondDecision(r, w, d)
}

// ListMyGrants lists the caller's effective grants
// @Summary List my grants
// @Tags Grants
// @Produce json
// @Security BearerAuth
// @Success 200 {array} GrantResponse
// @Router /me/grants [get]
func (h *Handler) ListMyGrants(w http.ResponseWriter, r *http.Request) {
	tc := tenantContext(r)
	grants, err := h.grants.ListForProfessional(r.Context(), tc.PrincipalID(), h.now())
	if err != nil {
		respondServiceError(r, w, err, "failed to list grants")
		return
	}
	respondJSON(w, http.StatusOK, grantResponses(grants))
}

// SweepGrants deactivates every lapsed grant
// @Summary Sweep expired grants
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]int64
// @Router /admin/grants/sweep [post]
func (h *Handler) SweepGrants(w http.ResponseWriter, r *http.Request) {
	tc := tenantContext(r)
	if tc.Level() != identity.LevelSystemOperator {
		respondError(w, http.StatusForbidden, "system operators only")
		return
	}
	if !h.requirePermission(w, r, tc, rbac.PermSystemMaintenance) {
		return
	}

	n, err := h.grants.SweepExpired(r.Context(), h.now())
	if err != nil {
		respondServiceError(r, w, err, "failed to sweep grants")
		return
	}
	slog.InfoContext(r.Context(), "grant sweep requested",
		logger.PrincipalID(tc.PrincipalID()),
		logger.RowsAffected(n),
	)
	respondJSON(w, http.StatusOK, map[string]int64{"deactivated": n})
}

// requirePermission writes 403 and returns false unless the caller holds name
func (h *Handler) requirePermission(w http.ResponseWriter, r *http.Request, tc requestctx.TenantContext, name string) bool {
	ok, err := h.graph.HasPermission(r.Context(), tc.Principal(), name)
	if err != nil {
		respondServiceError(r, w, err, "failed to check permission")
		return false
	}
	if !ok {
		respondError(w, http.StatusForbidden, string(authz.ReasonPermissionMissing))
		return false
	}
	return true
}
