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
	"context"
	"testing"
	"time"

	"github.com/opentrusty/farmgate/internal/audit"
	"github.com/opentrusty/farmgate/internal/identity"
	"github.com/opentrusty/farmgate/internal/rbac"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) CreateWithOwner(ctx context.Context, t *Tenant, owner *identity.Principal) error {
	args := m.Called(ctx, t, owner)
	return args.Error(0)
}

func (m *mockRepo) GetByID(ctx context.Context, id int64) (*Tenant, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(*Tenant), args.Error(1)
}

func (m *mockRepo) GetByName(ctx context.Context, name string) (*Tenant, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(*Tenant), args.Error(1)
}

func (m *mockRepo) UpdateStatus(ctx context.Context, id int64, status string, at time.Time) error {
	args := m.Called(ctx, id, status, at)
	return args.Error(0)
}

func (m *mockRepo) List(ctx context.Context, limit, offset int) ([]*Tenant, error) {
	args := m.Called(ctx, limit, offset)
	return args.Get(0).([]*Tenant), args.Error(1)
}

type mockRoleAssigner struct {
	mock.Mock
}

func (m *mockRoleAssigner) AssignRole(ctx context.Context, actorID string, p *identity.Principal, roleName string) error {
	args := m.Called(actorID, p.ID, roleName)
	return args.Error(0)
}

type mockAudit struct {
	mock.Mock
}

func (m *mockAudit) Log(ctx context.Context, event audit.Event) {
	m.Called(ctx, event)
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// TestPurpose: Validates that signup creates the tenant and its owner together and gives the owner the CUSTOMER role.
// Scope: Unit Test
// Security: Tenant bootstrap integrity
// Expected: Owner is a TenantPrincipal whose home tenant is the new tenant.
// Test Case ID: TEN-01
func TestTenant_Service_Signup(t *testing.T) {
	repo := new(mockRepo)
	roles := new(mockRoleAssigner)
	auditLogger := new(mockAudit)
	auditLogger.On("Log", mock.Anything, mock.Anything).Return()
	service := NewService(repo, nil, roles, auditLogger)
	ctx := context.Background()

	repo.On("GetByName", ctx, "Green Acres").Return((*Tenant)(nil), ErrTenantNotFound)
	repo.On("CreateWithOwner", ctx, mock.AnythingOfType("*tenant.Tenant"), mock.AnythingOfType("*identity.Principal")).
		Run(func(args mock.Arguments) {
			tn := args.Get(1).(*Tenant)
			owner := args.Get(2).(*identity.Principal)
			tn.ID = 100
			owner.ID = 7
			*owner.HomeTenantID = tn.ID
			tn.OwnerPrincipalID = owner.ID
		}).Return(nil)
	roles.On("AssignRole", audit.ActorSystem, int64(7), rbac.RoleCustomer).Return(nil)

	tn, owner, err := service.Signup(ctx, SignupRequest{
		TenantName: " Green Acres ",
		Username:   "jane",
		Email:      "Jane@Example.com",
		FarmName:   "Green Acres",
	}, fixedNow)
	require.NoError(t, err)

	assert.Equal(t, int64(100), tn.ID)
	assert.Equal(t, StatusActive, tn.Status)
	assert.Equal(t, identity.LevelTenantPrincipal, owner.Level)
	home, ok := owner.HomeTenant()
	assert.True(t, ok)
	assert.Equal(t, tn.ID, home)
	assert.Equal(t, "jane@example.com", owner.Email)

	repo.AssertExpectations(t)
	roles.AssertExpectations(t)
}

// TestPurpose: Validates that signup rejects empty and duplicate tenant names.
// Scope: Unit Test
// Expected: ErrInvalidTenant for blank names, ErrTenantAlreadyExists for duplicates.
// Test Case ID: TEN-02
func TestTenant_Service_Signup_Rejects(t *testing.T) {
	repo := new(mockRepo)
	service := NewService(repo, nil, new(mockRoleAssigner), audit.NopLogger{})
	ctx := context.Background()

	_, _, err := service.Signup(ctx, SignupRequest{TenantName: "  "}, fixedNow)
	assert.ErrorIs(t, err, ErrInvalidTenant)

	repo.On("GetByName", ctx, "Taken").Return(&Tenant{ID: 1, Name: "Taken"}, nil)
	_, _, err = service.Signup(ctx, SignupRequest{TenantName: "Taken"}, fixedNow)
	assert.ErrorIs(t, err, ErrTenantAlreadyExists)
	repo.AssertNotCalled(t, "CreateWithOwner", mock.Anything, mock.Anything, mock.Anything)
}

// TestPurpose: Validates that only active system operators can suspend or reactivate a tenant.
// Scope: Unit Test
// Security: Vertical privilege boundary on account lifecycle
// Expected: Support operator and tenant owner get ErrNotPermitted; system operator succeeds; repeated suspend is a no-op.
// Test Case ID: TEN-03
func TestTenant_Service_Suspend_SystemOperatorOnly(t *testing.T) {
	repo := new(mockRepo)
	auditLogger := new(mockAudit)
	auditLogger.On("Log", mock.Anything, mock.MatchedBy(func(e audit.Event) bool {
		return e.Type == audit.TypeTenantSuspended
	})).Return().Once()
	service := NewService(repo, nil, new(mockRoleAssigner), auditLogger)
	ctx := context.Background()

	support, _ := identity.NewPrincipal(2, identity.LevelSupportOperator, nil, nil)
	tid := int64(100)
	owner, _ := identity.NewPrincipal(3, identity.LevelTenantPrincipal, &tid, nil)
	operator, _ := identity.NewPrincipal(1, identity.LevelSystemOperator, nil, nil)

	assert.ErrorIs(t, service.Suspend(ctx, support, 100, fixedNow), ErrNotPermitted)
	assert.ErrorIs(t, service.Suspend(ctx, owner, 100, fixedNow), ErrNotPermitted)

	repo.On("GetByID", ctx, int64(100)).Return(&Tenant{ID: 100, Status: StatusActive}, nil).Once()
	repo.On("UpdateStatus", ctx, int64(100), StatusSuspended, fixedNow).Return(nil).Once()
	require.NoError(t, service.Suspend(ctx, operator, 100, fixedNow))

	repo.On("GetByID", ctx, int64(100)).Return(&Tenant{ID: 100, Status: StatusSuspended}, nil).Once()
	require.NoError(t, service.Suspend(ctx, operator, 100, fixedNow))

	repo.AssertNumberOfCalls(t, "UpdateStatus", 1)
	auditLogger.AssertExpectations(t)
}
