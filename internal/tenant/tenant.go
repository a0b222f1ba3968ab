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

package tenant

import (
	"time"
)

// Tenant represents a farm account; the isolation boundary for its data
type Tenant struct {
	ID               int64     `json:"id"`
	Name             string    `json:"name"`
	OwnerPrincipalID int64     `json:"owner_principal_id"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// MaxDelegates is the number of tenant delegates an account may hold
const MaxDelegates = 5

// Status constants
const (
	StatusActive    = "active"
	StatusSuspended = "suspended"
)

// IsActive reports whether the account is not suspended
func (t *Tenant) IsActive() bool {
	return t.Status == StatusActive
}
