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
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/opentrusty/farmgate/internal/audit"
	"github.com/opentrusty/farmgate/internal/identity"
	"github.com/opentrusty/farmgate/internal/rbac"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// fakePrincipals is an in-memory identity.Repository
type fakePrincipals struct {
	mu     sync.Mutex
	byID   map[int64]*identity.Principal
	nextID int64
}

func newFakePrincipals() *fakePrincipals {
	return &fakePrincipals{byID: map[int64]*identity.Principal{}, nextID: 10}
}

func (f *fakePrincipals) Create(ctx context.Context, p *identity.Principal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.createLocked(p)
}

func (f *fakePrincipals) createLocked(p *identity.Principal) error {
	if p.ID == 0 {
		p.ID = f.nextID
		f.nextID++
	}
	f.byID[p.ID] = p.Clone()
	return nil
}

func (f *fakePrincipals) CreateDelegate(ctx context.Context, p *identity.Principal, limit int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	tid, _ := p.HomeTenant()
	n := 0
	for _, q := range f.byID {
		if h, ok := q.HomeTenant(); ok && h == tid && q.Level == identity.LevelTenantDelegate {
			n++
		}
	}
	if n >= limit {
		return identity.ErrCapacityExceeded
	}
	return f.createLocked(p)
}

func (f *fakePrincipals) GetByID(ctx context.Context, id int64) (*identity.Principal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byID[id]
	if !ok {
		return nil, identity.ErrPrincipalNotFound
	}
	return p.Clone(), nil
}

func (f *fakePrincipals) SetActive(ctx context.Context, id int64, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byID[id]
	if !ok {
		return identity.ErrPrincipalNotFound
	}
	p.Active = active
	return nil
}

func (f *fakePrincipals) CountByHomeTenant(ctx context.Context, tenantID int64, level identity.Level) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, q := range f.byID {
		if h, ok := q.HomeTenant(); ok && h == tenantID && q.Level == level {
			n++
		}
	}
	return n, nil
}

func newDelegateFixture(t *testing.T, status string) (*Service, *fakePrincipals, *identity.Principal) {
	t.Helper()
	repo := new(mockRepo)
	repo.On("GetByID", mock.Anything, int64(100)).Return(&Tenant{ID: 100, Status: status}, nil)
	roles := new(mockRoleAssigner)
	roles.On("AssignRole", mock.Anything, mock.Anything, rbac.RoleAccountUser).Return(nil)
	principals := newFakePrincipals()
	tid := int64(100)
	owner, err := identity.NewPrincipal(1, identity.LevelTenantPrincipal, &tid, nil)
	require.NoError(t, err)
	return NewService(repo, principals, roles, audit.NopLogger{}), principals, owner
}

// TestPurpose: Validates that a tenant holds at most MaxDelegates delegates.
// Scope: Unit Test
// Security: Account capacity enforcement
// Expected: Five delegates succeed, the sixth returns ErrCapacityExceeded.
// Test Case ID: TEN-04
func TestTenant_Isolation_DelegateCapacity(t *testing.T) {
	service, _, owner := newDelegateFixture(t, StatusActive)
	ctx := context.Background()

	for i := 0; i < MaxDelegates; i++ {
		d, err := service.AddDelegate(ctx, owner, 100, DelegateRequest{Username: fmt.Sprintf("hand-%d", i)}, fixedNow)
		require.NoError(t, err)
		assert.Equal(t, identity.LevelTenantDelegate, d.Level)
	}

	_, err := service.AddDelegate(ctx, owner, 100, DelegateRequest{Username: "one-too-many"}, fixedNow)
	assert.ErrorIs(t, err, identity.ErrCapacityExceeded)

	n, err := service.CountDelegates(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, MaxDelegates, n)
}

// TestPurpose: Validates that concurrent delegate creation cannot overshoot the capacity.
// Scope: Unit Test
// Security: Race-free capacity enforcement
// Expected: Exactly MaxDelegates of twenty concurrent attempts succeed.
// Test Case ID: TEN-05
func TestTenant_Isolation_DelegateCapacity_Concurrent(t *testing.T) {
	service, _, owner := newDelegateFixture(t, StatusActive)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := service.AddDelegate(ctx, owner, 100, DelegateRequest{Username: fmt.Sprintf("c-%d", i)}, fixedNow); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, MaxDelegates, ok)
}

// TestPurpose: Validates that only the owner of a tenant or a system operator can add delegates, and never to a suspended tenant.
// Scope: Unit Test
// Security: Cross-tenant write prevention
// Expected: Owner of another tenant and delegates are refused; suspended tenant returns ErrTenantSuspended.
// Test Case ID: TEN-06
func TestTenant_Isolation_AddDelegate_Permissions(t *testing.T) {
	service, _, _ := newDelegateFixture(t, StatusActive)
	ctx := context.Background()

	other := int64(200)
	foreignOwner, _ := identity.NewPrincipal(2, identity.LevelTenantPrincipal, &other, nil)
	_, err := service.AddDelegate(ctx, foreignOwner, 100, DelegateRequest{}, fixedNow)
	assert.ErrorIs(t, err, ErrNotPermitted)

	home := int64(100)
	delegate, _ := identity.NewPrincipal(3, identity.LevelTenantDelegate, &home, nil)
	_, err = service.AddDelegate(ctx, delegate, 100, DelegateRequest{}, fixedNow)
	assert.ErrorIs(t, err, ErrNotPermitted)

	operator, _ := identity.NewPrincipal(4, identity.LevelSystemOperator, nil, nil)
	_, err = service.AddDelegate(ctx, operator, 100, DelegateRequest{Username: "by-operator"}, fixedNow)
	assert.NoError(t, err)

	suspended, _, owner := newDelegateFixture(t, StatusSuspended)
	_, err = suspended.AddDelegate(ctx, owner, 100, DelegateRequest{}, fixedNow)
	assert.ErrorIs(t, err, ErrTenantSuspended)

	_, err = service.GetTenant(ctx, 0)
	assert.ErrorIs(t, err, ErrInvalidTenant)
}

// TestPurpose: Validates that a signup whose owner role cannot be assigned leaves no usable account behind.
// Scope: Unit Test
// Security: No principal without its role bundle can authenticate
// Expected: Error wraps the cause; owner is inactive, tenant suspended, provisioning_failed audited.
// Test Case ID: TEN-07
func TestTenant_Signup_RoleFailureQuarantines(t *testing.T) {
	ctx := context.Background()
	principals := newFakePrincipals()
	repo := new(mockRepo)
	repo.On("GetByName", ctx, "Broken Farm").Return((*Tenant)(nil), ErrTenantNotFound)
	repo.On("CreateWithOwner", ctx, mock.AnythingOfType("*tenant.Tenant"), mock.AnythingOfType("*identity.Principal")).
		Run(func(args mock.Arguments) {
			tn := args.Get(1).(*Tenant)
			owner := args.Get(2).(*identity.Principal)
			tn.ID = 300
			*owner.HomeTenantID = tn.ID
			require.NoError(t, principals.Create(ctx, owner))
		}).Return(nil)
	repo.On("UpdateStatus", ctx, int64(300), StatusSuspended, fixedNow).Return(nil)

	cause := errors.New("edge store down")
	roles := new(mockRoleAssigner)
	roles.On("AssignRole", audit.ActorSystem, mock.Anything, rbac.RoleCustomer).Return(cause)

	auditLogger := new(mockAudit)
	auditLogger.On("Log", mock.Anything, mock.Anything).Return()

	service := NewService(repo, principals, roles, auditLogger)
	_, _, err := service.Signup(ctx, SignupRequest{TenantName: "Broken Farm", Username: "bob"}, fixedNow)
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)

	owner, err := principals.GetByID(ctx, 10)
	require.NoError(t, err)
	assert.False(t, owner.Active)
	repo.AssertExpectations(t)
	auditLogger.AssertCalled(t, "Log", mock.Anything, mock.MatchedBy(func(e audit.Event) bool {
		return e.Type == audit.TypeProvisioningFailed && e.Resource == "10"
	}))
}

// TestPurpose: Validates that a delegate whose role cannot be assigned is deactivated.
// Scope: Unit Test
// Security: No principal without its role bundle can authenticate
// Expected: Error wraps the cause; delegate is inactive; tenant status is untouched.
// Test Case ID: TEN-08
func TestTenant_AddDelegate_RoleFailureQuarantines(t *testing.T) {
	ctx := context.Background()
	repo := new(mockRepo)
	repo.On("GetByID", mock.Anything, int64(100)).Return(&Tenant{ID: 100, Status: StatusActive}, nil)
	cause := errors.New("edge store down")
	roles := new(mockRoleAssigner)
	roles.On("AssignRole", mock.Anything, mock.Anything, rbac.RoleAccountUser).Return(cause)
	principals := newFakePrincipals()
	tid := int64(100)
	owner, err := identity.NewPrincipal(1, identity.LevelTenantPrincipal, &tid, nil)
	require.NoError(t, err)

	service := NewService(repo, principals, roles, audit.NopLogger{})
	_, err = service.AddDelegate(ctx, owner, 100, DelegateRequest{Username: "hand"}, fixedNow)
	assert.ErrorIs(t, err, cause)

	delegate, err := principals.GetByID(ctx, 10)
	require.NoError(t, err)
	assert.False(t, delegate.Active)
	repo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
