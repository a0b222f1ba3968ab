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
	"encoding/json"
	"time"

	"github.com/opentrusty/farmgate/internal/grant"
	"github.com/opentrusty/farmgate/internal/identity"
	"github.com/opentrusty/farmgate/internal/tenant"
)

// PrincipalResponse is the wire form of a principal
type PrincipalResponse struct {
	ID           int64           `json:"id"`
	Level        string          `json:"level"`
	HomeTenantID *int64          `json:"home_tenant_id,omitempty"`
	Active       bool            `json:"active"`
	Username     string          `json:"username,omitempty"`
	Email        string          `json:"email,omitempty"`
	DisplayName  string          `json:"display_name,omitempty"`
	Attributes   json.RawMessage `json:"attributes,omitempty" swaggertype:"object"`
}

func principalResponse(p *identity.Principal) PrincipalResponse {
	// Attribute structs hold only strings and bools, so encoding cannot fail.
	attrs, _ := identity.MarshalAttributes(p.Attributes)
	return PrincipalResponse{
		ID:           p.ID,
		Level:        string(p.Level),
		HomeTenantID: p.HomeTenantID,
		Active:       p.Active,
		Username:     p.Username,
		Email:        p.Email,
		DisplayName:  p.DisplayName,
		Attributes:   attrs,
	}
}

// TenantResponse is the wire form of a tenant
type TenantResponse struct {
	ID               int64     `json:"id"`
	Name             string    `json:"name"`
	OwnerPrincipalID int64     `json:"owner_principal_id"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
}

func tenantResponse(t *tenant.Tenant) TenantResponse {
	return TenantResponse{
		ID:               t.ID,
		Name:             t.Name,
		OwnerPrincipalID: t.OwnerPrincipalID,
		Status:           t.Status,
		CreatedAt:        t.CreatedAt,
	}
}

// GrantResponse is the wire form of a tenant grant
type GrantResponse struct {
	ID             string     `json:"id"`
	TenantID       int64      `json:"tenant_id"`
	ProfessionalID int64      `json:"professional_id"`
	GrantedBy      int64      `json:"granted_by"`
	GrantedAt      time.Time  `json:"granted_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	Capabilities   []string   `json:"capabilities"`
	Notes          string     `json:"notes,omitempty"`
}

func grantResponse(g *grant.TenantGrant) GrantResponse {
	return GrantResponse{
		ID:             g.ID,
		TenantID:       g.TenantID,
		ProfessionalID: g.ProfessionalID,
		GrantedBy:      g.GrantedBy,
		GrantedAt:      g.GrantedAt,
		UpdatedAt:      g.UpdatedAt,
		ExpiresAt:      g.ExpiresAt,
		Capabilities:   g.Capabilities.Strings(),
		Notes:          g.Notes,
	}
}

func grantResponses(gs []*grant.TenantGrant) []GrantResponse {
	out := make([]GrantResponse, 0, len(gs))
	for _, g := range gs {
		out = append(out, grantResponse(g))
	}
	return out
}
