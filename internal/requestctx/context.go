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

// Package requestctx carries the identity of the principal behind one inbound
// request. A TenantContext is built once and never mutated.
package requestctx

import (
	"context"
	"errors"

	"github.com/opentrusty/farmgate/internal/identity"
)

// ErrContextAlreadyPopulated signals that a context already carries a
// TenantContext. Reaching it means identity would leak between requests.
var ErrContextAlreadyPopulated = errors.New("request context already carries a tenant context")

// TenantContext is the immutable per-request view of the current principal.
type TenantContext struct {
	principal *identity.Principal
}

// New snapshots p. Later changes to p are not visible through the result.
func New(p *identity.Principal) TenantContext {
	if p == nil {
		return TenantContext{}
	}
	return TenantContext{principal: p.Clone()}
}

// IsZero reports whether no principal was supplied.
func (tc TenantContext) IsZero() bool {
	return tc.principal == nil
}

// PrincipalID returns the current principal id, or 0.
func (tc TenantContext) PrincipalID() int64 {
	if tc.principal == nil {
		return 0
	}
	return tc.principal.ID
}

// Level returns the current principal level, or the empty level.
func (tc TenantContext) Level() identity.Level {
	if tc.principal == nil {
		return ""
	}
	return tc.principal.Level
}

// TenantID returns the principal's home tenant, if it has one.
func (tc TenantContext) TenantID() (int64, bool) {
	if tc.principal == nil {
		return 0, false
	}
	return tc.principal.HomeTenant()
}

// Active reports whether the principal is active. A zero context is inactive.
func (tc TenantContext) Active() bool {
	return tc.principal != nil && tc.principal.Active
}

// Principal returns a copy of the snapshot.
func (tc TenantContext) Principal() *identity.Principal {
	if tc.principal == nil {
		return nil
	}
	return tc.principal.Clone()
}

func (tc TenantContext) IsSystemLevel() bool {
	return identity.IsSystemLevel(tc.Level())
}

func (tc TenantContext) IsCrossTenantProfessional() bool {
	return tc.Level() == identity.LevelCrossTenantProfessional
}

func (tc TenantContext) IsTenantScoped() bool {
	return identity.RequiresHomeTenant(tc.Level())
}

type contextKey struct{}

// WithTenantContext attaches tc to ctx. It panics with
// ErrContextAlreadyPopulated if ctx already carries one.
func WithTenantContext(ctx context.Context, tc TenantContext) context.Context {
	if _, ok := ctx.Value(contextKey{}).(TenantContext); ok {
		panic(ErrContextAlreadyPopulated)
	}
	return context.WithValue(ctx, contextKey{}, tc)
}

// FromContext retrieves the TenantContext attached by WithTenantContext.
func FromContext(ctx context.Context) (TenantContext, bool) {
	tc, ok := ctx.Value(contextKey{}).(TenantContext)
	return tc, ok
}
