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

package audit

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// Event types
const (
	TypePrincipalCreated     = "principal_created"
	TypePrincipalActivated   = "principal_activated"
	TypePrincipalDeactivated = "principal_deactivated"
	TypeRoleAssigned         = "role_assigned"
	TypeRoleRevoked          = "role_revoked"
	TypePermissionGranted    = "permission_granted"
	TypePermissionRevoked    = "permission_revoked"
	TypeRoleCreated          = "role_created"
	TypeRoleDeleted          = "role_deleted"
	TypeRolePermissionAdded  = "role_permission_added"
	TypeRolePermissionRemove = "role_permission_removed"
	TypeTenantCreated        = "tenant_created"
	TypeTenantSuspended      = "tenant_suspended"
	TypeTenantReactivated    = "tenant_reactivated"
	TypeDelegateAdded        = "delegate_added"
	TypeGrantCreated         = "grant_created"
	TypeGrantUpdated         = "grant_updated"
	TypeGrantRevoked         = "grant_revoked"
	TypeGrantsSwept          = "grants_swept"
	TypeSystemBypass         = "system_bypass"
	TypeInvariantViolation   = "invariant_violation"
	TypeProvisioningFailed   = "provisioning_failed"
)

// Actor used when no principal drives the action (maintenance jobs, seeding).
const ActorSystem = "system"

// Event represents an auditable action
type Event struct {
	Type      string
	TenantID  string
	ActorID   string
	Resource  string
	Metadata  map[string]any
	Timestamp time.Time
	IPAddress string
	UserAgent string
}

// Logger defines the interface for audit logging
type Logger interface {
	Log(ctx context.Context, event Event)
}

// FormatID renders a numeric id for the string-typed event fields.
func FormatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// SlogLogger implements Logger using slog
type SlogLogger struct{}

// NewSlogLogger creates a new audit logger
func NewSlogLogger() *SlogLogger {
	return &SlogLogger{}
}

// Log records an audit event
func (l *SlogLogger) Log(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	attrs := []any{
		slog.String("audit_type", event.Type),
		slog.String("tenant_id", event.TenantID),
		slog.String("actor_id", event.ActorID),
		slog.String("resource", event.Resource),
		slog.Time("timestamp", event.Timestamp),
	}

	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", event.UserAgent))
	}

	// Flatten metadata
	if len(event.Metadata) > 0 {
		group := []any{}
		for k, v := range event.Metadata {
			if isSecret(k) {
				v = "[REDACTED]"
			}
			group = append(group, slog.Any(k, v))
		}
		attrs = append(attrs, slog.Group("metadata", group...))
	}

	slog.InfoContext(ctx, "AUDIT_EVENT", append(attrs, slog.String("component", "audit"))...)
}

// NopLogger drops every event.
type NopLogger struct{}

func (NopLogger) Log(context.Context, Event) {}

// isSecret checks if a key likely contains a secret
func isSecret(key string) bool {
	k := strings.ToLower(key)
	secrets := []string{"password", "secret", "token", "key", "authorization", "hash", "credential"}
	for _, s := range secrets {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}
