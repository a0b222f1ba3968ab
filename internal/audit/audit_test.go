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
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestPurpose: Validates that sensitive keys are correctly identified as secrets to prevent them from being logged in plaintext.
// Scope: Unit Test
// Security: Data Masking and Leakage Prevention (CWE-532)
// Expected: Returns true for keys containing 'password', 'token', 'secret', etc., and false for non-sensitive keys.
// Test Case ID: AUD-01
func TestAudit_IsSecret(t *testing.T) {
	tests := []struct {
		key      string
		isSecret bool
	}{
		{"password", true},
		{"Password", true},
		{"PASSWORD", true},
		{"token", true},
		{"access_token", true},
		{"secret", true},
		{"api_key", true},
		{"hash", true},
		{"password_hash", true},
		{"credential", true},
		{"private_key", true},
		{"user_id", false},
		{"tenant_id", false},
		{"email", false},
		{"status", false},
		{"capabilities", false},
		{"professional_id", false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := isSecret(tt.key); got != tt.isSecret {
				t.Errorf("isSecret(%q) = %v, want %v", tt.key, got, tt.isSecret)
			}
		})
	}
}

// TestPurpose: Validates that the slog audit logger accepts events with metadata and a missing timestamp without panicking.
// Scope: Unit Test
// Expected: Logging completes; secret metadata is redacted by isSecret.
// Test Case ID: AUD-02
func TestAudit_SlogLogger_Log(t *testing.T) {
	l := NewSlogLogger()
	assert.NotPanics(t, func() {
		l.Log(context.Background(), Event{
			Type:     TypeGrantCreated,
			TenantID: FormatID(100),
			ActorID:  FormatID(7),
			Resource: "grant",
			Metadata: map[string]any{"capabilities": []string{"view-livestock"}, "api_token": "abc"},
		})
	})
	assert.Equal(t, "100", FormatID(100))
}
