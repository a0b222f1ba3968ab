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

// Package authz decides whether the principal behind a request may reach a
// tenant with a capability. Authorize establishes tenant reachability;
// AuthorizeAction additionally requires an RBAC permission.
package authz

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/opentrusty/farmgate/internal/audit"
	"github.com/opentrusty/farmgate/internal/grant"
	"github.com/opentrusty/farmgate/internal/identity"
	"github.com/opentrusty/farmgate/internal/observability/logger"
	"github.com/opentrusty/farmgate/internal/observability/tracing"
	"github.com/opentrusty/farmgate/internal/requestctx"
)

const instrumentationName = "github.com/opentrusty/farmgate/internal/authz"

// CapabilityChecker answers grant lookups for cross-tenant professionals
type CapabilityChecker interface {
	HasCapability(ctx context.Context, tenantID, professionalID int64, capability grant.Capability, now time.Time) (bool, error)
}

// PermissionChecker answers RBAC permission lookups
type PermissionChecker interface {
	HasPermission(ctx context.Context, p *identity.Principal, name string) (bool, error)
}

// Engine evaluates authorization decisions. It holds no per-request state.
type Engine struct {
	grants      CapabilityChecker
	permissions PermissionChecker
	auditLogger audit.Logger
	tracer      trace.Tracer
	decisions   metric.Int64Counter
}

// Option configures an Engine
type Option func(*engineOptions)

type engineOptions struct {
	meter  metric.Meter
	tracer trace.Tracer
}

// WithMeter records decision counts on meter instead of the global provider
func WithMeter(m metric.Meter) Option {
	return func(o *engineOptions) { o.meter = m }
}

// WithTracer creates decision spans on t instead of the global provider
func WithTracer(t trace.Tracer) Option {
	return func(o *engineOptions) { o.tracer = t }
}

// NewEngine creates a decision engine
func NewEngine(grants CapabilityChecker, permissions PermissionChecker, auditLogger audit.Logger, opts ...Option) (*Engine, error) {
	o := engineOptions{
		meter:  otel.Meter(instrumentationName),
		tracer: otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(&o)
	}

	decisions, err := o.meter.Int64Counter(
		"farmgate.authz.decisions",
		metric.WithDescription("Authorization decisions by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create decisions counter: %w", err)
	}

	return &Engine{
		grants:      grants,
		permissions: permissions,
		auditLogger: auditLogger,
		tracer:      o.tracer,
		decisions:   decisions,
	}, nil
}

// Authorize decides whether tc's principal may reach targetTenantID with
// capability at now. Rules apply in order and the first match wins:
//
//  1. inactive principal: deny principal_inactive
//  2. system or support operator: allow
//  3. tenant-scoped principal: allow only its home tenant, else wrong_tenant
//  4. cross-tenant professional: allow iff an effective grant holds capability
//  5. anything else: deny unknown_principal_class
//
// Cancellation or a failed grant lookup yields evaluation_failed.
func (e *Engine) Authorize(ctx context.Context, tc requestctx.TenantContext, targetTenantID int64, capability grant.Capability, now time.Time) Decision {
	ctx, span := e.tracer.Start(ctx, "authz.Authorize", trace.WithAttributes(
		attribute.Int64("farmgate.principal_id", tc.PrincipalID()),
		attribute.String("farmgate.principal_level", string(tc.Level())),
		attribute.Int64("farmgate.target_tenant_id", targetTenantID),
		attribute.String("farmgate.capability", string(capability)),
	))
	defer span.End()

	d := e.decide(ctx, tc, targetTenantID, capability, now)
	e.record(ctx, span, tc, d)
	return d
}

func (e *Engine) decide(ctx context.Context, tc requestctx.TenantContext, targetTenantID int64, capability grant.Capability, now time.Time) Decision {
	if err := ctx.Err(); err != nil {
		return evaluationFailed(err)
	}

	if !tc.Active() {
		return Deny(ReasonPrincipalInactive)
	}

	if tc.IsSystemLevel() {
		e.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeSystemBypass,
			TenantID: audit.FormatID(targetTenantID),
			ActorID:  audit.FormatID(tc.PrincipalID()),
			Resource: string(capability),
			Metadata: map[string]any{"level": string(tc.Level())},
		})
		return Allow()
	}

	if tc.IsTenantScoped() {
		home, ok := tc.TenantID()
		if ok && home == targetTenantID {
			return Allow()
		}
		return Deny(ReasonWrongTenant)
	}

	if tc.IsCrossTenantProfessional() {
		ok, err := e.grants.HasCapability(ctx, targetTenantID, tc.PrincipalID(), capability, now)
		if err != nil {
			return evaluationFailed(err)
		}
		if err := ctx.Err(); err != nil {
			return evaluationFailed(err)
		}
		if ok {
			return Allow()
		}
		return Deny(ReasonGrantMissingOrExpired)
	}

	slog.ErrorContext(ctx, "principal matches no authorization class",
		logger.Component("authz"),
		logger.PrincipalID(tc.PrincipalID()),
		logger.Level(string(tc.Level())),
		logger.TenantID(targetTenantID),
	)
	e.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeInvariantViolation,
		TenantID: audit.FormatID(targetTenantID),
		ActorID:  audit.FormatID(tc.PrincipalID()),
		Resource: "authz",
		Metadata: map[string]any{"level": string(tc.Level())},
	})
	return Deny(ReasonUnknownPrincipalClass)
}

// AuthorizeAction requires both tenant reachability and the named RBAC
// permission. Mutating operations go through here.
func (e *Engine) AuthorizeAction(ctx context.Context, tc requestctx.TenantContext, targetTenantID int64, capability grant.Capability, permission string, now time.Time) Decision {
	ctx, span := e.tracer.Start(ctx, "authz.AuthorizeAction", trace.WithAttributes(
		attribute.Int64("farmgate.principal_id", tc.PrincipalID()),
		attribute.String("farmgate.principal_level", string(tc.Level())),
		attribute.Int64("farmgate.target_tenant_id", targetTenantID),
		attribute.String("farmgate.capability", string(capability)),
		attribute.String("farmgate.permission", permission),
	))
	defer span.End()

	d := e.decide(ctx, tc, targetTenantID, capability, now)
	if d.Allowed {
		d = e.checkPermission(ctx, tc, permission)
	}
	e.record(ctx, span, tc, d)
	return d
}

func (e *Engine) checkPermission(ctx context.Context, tc requestctx.TenantContext, permission string) Decision {
	ok, err := e.permissions.HasPermission(ctx, tc.Principal(), permission)
	switch {
	case err != nil:
		return evaluationFailed(err)
	case ctx.Err() != nil:
		return evaluationFailed(ctx.Err())
	case !ok:
		return Deny(ReasonPermissionMissing)
	}
	return Allow()
}

func (e *Engine) record(ctx context.Context, span trace.Span, tc requestctx.TenantContext, d Decision) {
	span.SetAttributes(
		attribute.Bool("farmgate.allowed", d.Allowed),
		attribute.String("farmgate.reason", string(d.Reason)),
	)
	tracing.RecordError(span, d.Err)

	e.decisions.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("allowed", d.Allowed),
		attribute.String("reason", string(d.Reason)),
		attribute.String("level", string(tc.Level())),
	))

	if d.Err != nil {
		slog.WarnContext(ctx, "authorization could not be evaluated",
			logger.Component("authz"),
			logger.PrincipalID(tc.PrincipalID()),
			logger.Error(d.Err),
		)
	}
}
