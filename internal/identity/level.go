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

package identity

import "fmt"

// Level is the hierarchical class of a principal.
// It is fixed when the principal is created.
type Level string

// -----------------------------------------------------------------------------
// Principal Levels
// Lower rank means more authority.
// -----------------------------------------------------------------------------

const (
	// LevelSystemOperator is the platform super administrator (rank 1).
	LevelSystemOperator Level = "system_operator"

	// LevelSupportOperator is the platform support administrator (rank 2).
	LevelSupportOperator Level = "support_operator"

	// LevelTenantPrincipal is the owner of a farm account (rank 3).
	// Home tenant: required
	LevelTenantPrincipal Level = "tenant_principal"

	// LevelTenantDelegate is an employee of a farm account (rank 3).
	// Home tenant: required
	LevelTenantDelegate Level = "tenant_delegate"

	// LevelCrossTenantProfessional is a veterinarian reaching accounts through grants (rank 4).
	LevelCrossTenantProfessional Level = "cross_tenant_professional"
)

// AllLevels lists every known level in rank order.
var AllLevels = []Level{
	LevelSystemOperator,
	LevelSupportOperator,
	LevelTenantPrincipal,
	LevelTenantDelegate,
	LevelCrossTenantProfessional,
}

// ParseLevel converts a stored level name into a Level.
func ParseLevel(s string) (Level, error) {
	l := Level(s)
	if !l.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidLevel, s)
	}
	return l, nil
}

// Valid reports whether l is one of the known levels.
func (l Level) Valid() bool {
	return Rank(l) != 0
}

func (l Level) String() string {
	return string(l)
}

// Rank returns the authority rank of a level. Unknown levels rank 0.
func Rank(l Level) int {
	switch l {
	case LevelSystemOperator:
		return 1
	case LevelSupportOperator:
		return 2
	case LevelTenantPrincipal, LevelTenantDelegate:
		return 3
	case LevelCrossTenantProfessional:
		return 4
	default:
		return 0
	}
}

// CanManage reports whether a principal at level a may manage one at level b.
// The relation is strict: equal ranks never manage each other.
func CanManage(a, b Level) bool {
	ra, rb := Rank(a), Rank(b)
	if ra == 0 || rb == 0 {
		return false
	}
	return ra < rb
}

// IsSystemLevel reports whether l bypasses tenant boundaries.
func IsSystemLevel(l Level) bool {
	return l == LevelSystemOperator || l == LevelSupportOperator
}

// RequiresHomeTenant reports whether principals at level l belong to exactly one tenant.
func RequiresHomeTenant(l Level) bool {
	return l == LevelTenantPrincipal || l == LevelTenantDelegate
}
