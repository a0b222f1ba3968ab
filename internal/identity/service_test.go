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

import (
	"context"
	"errors"
	"testing"

	"github.com/opentrusty/farmgate/internal/audit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockPrincipalRepository is a simple in-memory implementation of Repository
type MockPrincipalRepository struct {
	principals map[int64]*Principal
	nextID     int64
}

func NewMockPrincipalRepository() *MockPrincipalRepository {
	return &MockPrincipalRepository{
		principals: make(map[int64]*Principal),
		nextID:     1,
	}
}

func (m *MockPrincipalRepository) Create(ctx context.Context, p *Principal) error {
	if p.ID == 0 {
		p.ID = m.nextID
		m.nextID++
	}
	if _, ok := m.principals[p.ID]; ok {
		return ErrPrincipalAlreadyExists
	}
	m.principals[p.ID] = p.Clone()
	return nil
}

func (m *MockPrincipalRepository) CreateDelegate(ctx context.Context, p *Principal, limit int) error {
	tid, _ := p.HomeTenant()
	n, _ := m.CountByHomeTenant(ctx, tid, LevelTenantDelegate)
	if n >= limit {
		return ErrCapacityExceeded
	}
	return m.Create(ctx, p)
}

func (m *MockPrincipalRepository) GetByID(ctx context.Context, id int64) (*Principal, error) {
	p, ok := m.principals[id]
	if !ok {
		return nil, ErrPrincipalNotFound
	}
	return p.Clone(), nil
}

func (m *MockPrincipalRepository) SetActive(ctx context.Context, id int64, active bool) error {
	p, ok := m.principals[id]
	if !ok {
		return ErrPrincipalNotFound
	}
	p.Active = active
	return nil
}

func (m *MockPrincipalRepository) CountByHomeTenant(ctx context.Context, tenantID int64, level Level) (int, error) {
	n := 0
	for _, p := range m.principals {
		if tid, ok := p.HomeTenant(); ok && tid == tenantID && p.Level == level {
			n++
		}
	}
	return n, nil
}

func int64Ptr(v int64) *int64 { return &v }

// TestPurpose: Validates that the level rank table orders authority as operator < support < tenant < professional.
// Scope: Unit Test
// Security: Hierarchy model correctness (vertical privilege boundaries)
// Expected: Ranks 1,2,3,3,4 and 0 for unknown levels.
// Test Case ID: IDN-01
func TestIdentity_Rank(t *testing.T) {
	assert.Equal(t, 1, Rank(LevelSystemOperator))
	assert.Equal(t, 2, Rank(LevelSupportOperator))
	assert.Equal(t, 3, Rank(LevelTenantPrincipal))
	assert.Equal(t, 3, Rank(LevelTenantDelegate))
	assert.Equal(t, 4, Rank(LevelCrossTenantProfessional))
	assert.Equal(t, 0, Rank(Level("root")))
}

// TestPurpose: Validates that CanManage is a strict ordering with no self-management and no mutual management at equal rank.
// Scope: Unit Test
// Security: Vertical privilege escalation prevention
// Expected: Only strictly higher authority manages lower authority.
// Test Case ID: IDN-02
func TestIdentity_CanManage(t *testing.T) {
	tests := []struct {
		a, b Level
		want bool
	}{
		{LevelSystemOperator, LevelSupportOperator, true},
		{LevelSystemOperator, LevelCrossTenantProfessional, true},
		{LevelSupportOperator, LevelTenantPrincipal, true},
		{LevelTenantPrincipal, LevelCrossTenantProfessional, true},
		{LevelTenantPrincipal, LevelTenantDelegate, false},
		{LevelTenantDelegate, LevelTenantPrincipal, false},
		{LevelSystemOperator, LevelSystemOperator, false},
		{LevelCrossTenantProfessional, LevelTenantDelegate, false},
		{Level("bogus"), LevelCrossTenantProfessional, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.a)+"->"+string(tt.b), func(t *testing.T) {
			assert.Equal(t, tt.want, CanManage(tt.a, tt.b))
		})
	}

	assert.True(t, IsSystemLevel(LevelSupportOperator))
	assert.False(t, IsSystemLevel(LevelTenantPrincipal))
	assert.True(t, RequiresHomeTenant(LevelTenantDelegate))
	assert.False(t, RequiresHomeTenant(LevelCrossTenantProfessional))
}

// TestPurpose: Validates that principal construction enforces the home-tenant invariant for every level.
// Scope: Unit Test
// Security: Tenant isolation data-model invariant
// Expected: Tenant levels require a home tenant, all other levels reject one, unknown levels fail.
// Test Case ID: IDN-03
func TestIdentity_NewPrincipal_HomeTenantInvariant(t *testing.T) {
	_, err := NewPrincipal(1, LevelTenantPrincipal, nil, nil)
	assert.ErrorIs(t, err, ErrHomeTenantRequired)

	_, err = NewPrincipal(1, LevelTenantDelegate, nil, nil)
	assert.ErrorIs(t, err, ErrHomeTenantRequired)

	_, err = NewPrincipal(1, LevelCrossTenantProfessional, int64Ptr(100), nil)
	assert.ErrorIs(t, err, ErrHomeTenantNotAllowed)

	_, err = NewPrincipal(1, LevelSystemOperator, int64Ptr(100), nil)
	assert.ErrorIs(t, err, ErrHomeTenantNotAllowed)

	_, err = NewPrincipal(1, Level("farmer"), nil, nil)
	assert.ErrorIs(t, err, ErrInvalidLevel)

	p, err := NewPrincipal(1, LevelTenantPrincipal, int64Ptr(100), OwnerAttributes{FarmName: "Green Acres"})
	require.NoError(t, err)
	tid, ok := p.HomeTenant()
	assert.True(t, ok)
	assert.Equal(t, int64(100), tid)
	assert.True(t, p.Active)
}

// TestPurpose: Validates that level-specific attributes must match the principal level.
// Scope: Unit Test
// Expected: Veterinarian attributes on an owner are rejected; matching attributes round-trip through storage encoding.
// Test Case ID: IDN-04
func TestIdentity_Attributes_MatchLevel(t *testing.T) {
	_, err := NewPrincipal(2, LevelTenantPrincipal, int64Ptr(100), VeterinarianAttributes{LicenseNumber: "V-1"})
	assert.ErrorIs(t, err, ErrAttributesMismatch)

	_, err = NewPrincipal(3, LevelSupportOperator, nil, OperatorAttributes{Support: true})
	assert.NoError(t, err)

	vet := VeterinarianAttributes{LicenseNumber: "V-1", ClinicName: "Valley Vets"}
	raw, err := MarshalAttributes(vet)
	require.NoError(t, err)
	decoded, err := UnmarshalAttributes(LevelCrossTenantProfessional, raw)
	require.NoError(t, err)
	assert.Equal(t, vet, decoded)

	none, err := UnmarshalAttributes(LevelTenantDelegate, nil)
	assert.NoError(t, err)
	assert.Nil(t, none)
}

// TestPurpose: Validates that only strictly higher-ranked, active actors can deactivate a principal.
// Scope: Unit Test
// Security: Account management authorization
// Expected: Support operator can deactivate a veterinarian; a tenant principal cannot deactivate a delegate.
// Test Case ID: IDN-05
func TestIdentity_Service_SetActive(t *testing.T) {
	repo := NewMockPrincipalRepository()
	s := NewService(repo, audit.NewSlogLogger())
	ctx := context.Background()

	support, _ := NewPrincipal(0, LevelSupportOperator, nil, nil)
	_, err := s.Register(ctx, support, audit.ActorSystem)
	require.NoError(t, err)

	vet, _ := NewPrincipal(0, LevelCrossTenantProfessional, nil, nil)
	_, err = s.Register(ctx, vet, audit.ActorSystem)
	require.NoError(t, err)

	owner, _ := NewPrincipal(0, LevelTenantPrincipal, int64Ptr(100), nil)
	_, err = s.Register(ctx, owner, audit.ActorSystem)
	require.NoError(t, err)

	delegate, _ := NewPrincipal(0, LevelTenantDelegate, int64Ptr(100), nil)
	_, err = s.Register(ctx, delegate, audit.ActorSystem)
	require.NoError(t, err)

	require.NoError(t, s.SetActive(ctx, support, vet.ID, false))
	got, err := s.Get(ctx, vet.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)

	err = s.SetActive(ctx, owner, delegate.ID, false)
	assert.True(t, errors.Is(err, ErrNotPermitted))

	_, err = s.Get(ctx, 999)
	assert.ErrorIs(t, err, ErrPrincipalNotFound)
}

// TestPurpose: Validates that IDSet add/remove report changes so edge operations can stay idempotent.
// Scope: Unit Test
// Expected: Second add and second remove report no change.
// Test Case ID: IDN-06
func TestIdentity_IDSet(t *testing.T) {
	s := NewIDSet(3, 1)
	assert.True(t, s.Add(2))
	assert.False(t, s.Add(2))
	assert.Equal(t, []int64{1, 2, 3}, s.Slice())
	assert.True(t, s.Remove(1))
	assert.False(t, s.Remove(1))

	c := s.Clone()
	c.Add(9)
	assert.False(t, s.Has(9))
}
