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

package grant

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/opentrusty/farmgate/internal/audit"
	"github.com/opentrusty/farmgate/internal/identity"
	"github.com/opentrusty/farmgate/internal/tenant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRepo is an in-memory Repository that keeps every row, active or not.
type fakeRepo struct {
	mu      sync.RWMutex
	rows    map[string]*TenantGrant
	creates int
	updates int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{rows: map[string]*TenantGrant{}}
}

func (f *fakeRepo) FindActive(ctx context.Context, tenantID, professionalID int64) (*TenantGrant, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, g := range f.rows {
		if g.Active && g.TenantID == tenantID && g.ProfessionalID == professionalID {
			return g.Clone(), nil
		}
	}
	return nil, ErrGrantNotFound
}

func (f *fakeRepo) Create(ctx context.Context, g *TenantGrant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.Active && r.TenantID == g.TenantID && r.ProfessionalID == g.ProfessionalID {
			return ErrGrantConflict
		}
	}
	f.rows[g.ID] = g.Clone()
	f.creates++
	return nil
}

func (f *fakeRepo) Update(ctx context.Context, g *TenantGrant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[g.ID]
	if !ok || !r.Active {
		return ErrGrantNotFound
	}
	f.rows[g.ID] = g.Clone()
	f.updates++
	return nil
}

func (f *fakeRepo) Deactivate(ctx context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.rows[id]; ok && r.Active {
		r.Active = false
		r.RevokedAt = &at
	}
	return nil
}

func (f *fakeRepo) list(match func(*TenantGrant) bool) []*TenantGrant {
	f.mu.RLock()
	defer f.mu.RUnlock()
	var out []*TenantGrant
	for _, g := range f.rows {
		if g.Active && match(g) {
			out = append(out, g.Clone())
		}
	}
	return out
}

func (f *fakeRepo) ListActiveByTenant(ctx context.Context, tenantID int64) ([]*TenantGrant, error) {
	return f.list(func(g *TenantGrant) bool { return g.TenantID == tenantID }), nil
}

func (f *fakeRepo) ListActiveByProfessional(ctx context.Context, professionalID int64) ([]*TenantGrant, error) {
	return f.list(func(g *TenantGrant) bool { return g.ProfessionalID == professionalID }), nil
}

func (f *fakeRepo) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, g := range f.rows {
		if g.Active && g.ExpiresAt != nil && !g.ExpiresAt.After(now) {
			g.Active = false
			n++
		}
	}
	return n, nil
}

func (f *fakeRepo) inactiveIDs() map[string]bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := map[string]bool{}
	for id, g := range f.rows {
		if !g.Active {
			out[id] = true
		}
	}
	return out
}

type fakeTenants map[int64]*tenant.Tenant

func (f fakeTenants) GetByID(ctx context.Context, id int64) (*tenant.Tenant, error) {
	t, ok := f[id]
	if !ok {
		return nil, tenant.ErrTenantNotFound
	}
	return t, nil
}

type fakePrincipals map[int64]*identity.Principal

func (f fakePrincipals) GetByID(ctx context.Context, id int64) (*identity.Principal, error) {
	p, ok := f[id]
	if !ok {
		return nil, identity.ErrPrincipalNotFound
	}
	return p, nil
}

const (
	tenantA  = int64(100)
	tenantB  = int64(200)
	vetID    = int64(501)
	ownerAID = int64(11)
)

var t0 = time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *fakeRepo) {
	t.Helper()
	repo := newFakeRepo()
	home := tenantA
	owner, err := identity.NewPrincipal(ownerAID, identity.LevelTenantPrincipal, &home, nil)
	require.NoError(t, err)
	vet, err := identity.NewPrincipal(vetID, identity.LevelCrossTenantProfessional, nil, identity.VeterinarianAttributes{LicenseNumber: "V-77"})
	require.NoError(t, err)

	tenants := fakeTenants{
		tenantA: {ID: tenantA, Name: "Green Acres", Status: tenant.StatusActive},
		tenantB: {ID: tenantB, Name: "Hill Farm", Status: tenant.StatusActive},
	}
	principals := fakePrincipals{ownerAID: owner, vetID: vet}
	return NewService(repo, tenants, principals, audit.NopLogger{}), repo
}

func at(d time.Duration) *time.Time {
	v := t0.Add(d)
	return &v
}

// TestPurpose: Validates that a grant exposes exactly the capabilities it was given.
// Scope: Unit Test
// Security: Least-privilege cross-tenant access
// Expected: view-livestock true, edit-livestock false, other tenant false.
// Test Case ID: GRT-01
func TestGrant_HasCapability_ScopedToGrant(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Grant(ctx, GrantRequest{
		TenantID:       tenantA,
		ProfessionalID: vetID,
		Capabilities:   NewCapabilitySet(CapViewLivestock),
		GrantedBy:      ownerAID,
	}, t0)
	require.NoError(t, err)

	ok, err := svc.HasCapability(ctx, tenantA, vetID, CapViewLivestock, t0)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.HasCapability(ctx, tenantA, vetID, CapEditLivestock, t0)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = svc.HasCapability(ctx, tenantB, vetID, CapViewLivestock, t0)
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestPurpose: Validates that expiry is evaluated at read time without a sweep.
// Scope: Unit Test
// Security: Time-bounded access cannot outlive its expiry
// Expected: Effective at t0, not effective at t0+61s, with no store writes between the reads.
// Test Case ID: GRT-02
func TestGrant_Expiry_IsLive(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	_, err := svc.Grant(ctx, GrantRequest{
		TenantID:       tenantA,
		ProfessionalID: vetID,
		Capabilities:   NewCapabilitySet(CapViewMedical),
		ExpiresAt:      at(60 * time.Second),
		GrantedBy:      ownerAID,
	}, t0)
	require.NoError(t, err)
	writes := repo.creates + repo.updates

	_, ok, err := svc.EffectiveGrant(ctx, tenantA, vetID, t0)
	require.NoError(t, err)
	assert.True(t, ok)

	_, ok, err = svc.EffectiveGrant(ctx, tenantA, vetID, t0.Add(61*time.Second))
	require.NoError(t, err)
	assert.False(t, ok)

	has, err := svc.HasCapability(ctx, tenantA, vetID, CapViewMedical, t0.Add(61*time.Second))
	require.NoError(t, err)
	assert.False(t, has)

	_, ok, err = svc.EffectiveGrant(ctx, tenantA, vetID, t0.Add(60*time.Second))
	require.NoError(t, err)
	assert.False(t, ok, "expiry instant itself is not effective")

	assert.Equal(t, writes, repo.creates+repo.updates)
}

// TestPurpose: Validates that re-granting the same pair updates the single effective grant in place.
// Scope: Unit Test
// Security: No duplicate or stale capability sets for a pair
// Expected: One row, same ID, capability set and expiry replaced.
// Test Case ID: GRT-03
func TestGrant_Upsert_InPlace(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	first, err := svc.Grant(ctx, GrantRequest{
		TenantID: tenantA, ProfessionalID: vetID, GrantedBy: ownerAID,
		Capabilities: NewCapabilitySet(CapViewLivestock),
		ExpiresAt:    at(time.Hour),
	}, t0)
	require.NoError(t, err)

	second, err := svc.Grant(ctx, GrantRequest{
		TenantID: tenantA, ProfessionalID: vetID, GrantedBy: ownerAID,
		Capabilities: NewCapabilitySet(CapViewWeight),
		ExpiresAt:    at(2 * time.Hour),
	}, t0.Add(time.Minute))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, repo.rows, 1)

	g, ok, err := svc.EffectiveGrant(ctx, tenantA, vetID, t0.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []Capability{CapViewWeight}, g.Capabilities.Slice())
	assert.Equal(t, t0.Add(2*time.Hour), *g.ExpiresAt)

	list, err := svc.ListForTenant(ctx, tenantA, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

// TestPurpose: Validates that granting over a lapsed row retires it and creates a fresh grant.
// Scope: Unit Test
// Expected: Two rows, the old one inactive, the new one effective with a new ID.
// Test Case ID: GRT-04
func TestGrant_Upsert_ReplacesLapsedRow(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	old, err := svc.Grant(ctx, GrantRequest{
		TenantID: tenantA, ProfessionalID: vetID, GrantedBy: ownerAID,
		Capabilities: NewCapabilitySet(CapViewNotes),
		ExpiresAt:    at(time.Minute),
	}, t0)
	require.NoError(t, err)

	later := t0.Add(time.Hour)
	fresh, err := svc.Grant(ctx, GrantRequest{
		TenantID: tenantA, ProfessionalID: vetID, GrantedBy: ownerAID,
		Capabilities: NewCapabilitySet(CapAddNotes),
	}, later)
	require.NoError(t, err)

	assert.NotEqual(t, old.ID, fresh.ID)
	assert.Len(t, repo.rows, 2)
	assert.False(t, repo.rows[old.ID].Active)
	assert.Nil(t, fresh.ExpiresAt)
}

// TestPurpose: Validates grant request validation and referent checks.
// Scope: Unit Test
// Security: Grants only reach cross-tenant professionals on existing tenants
// Expected: ErrNotFound for unknown tenant or principal, ErrInvalidArgument for non-professional grantee, empty or unknown capabilities, and past expiry.
// Test Case ID: GRT-05
func TestGrant_Validation(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	caps := NewCapabilitySet(CapViewLivestock)

	tests := []struct {
		name string
		req  GrantRequest
		want error
	}{
		{"unknown tenant", GrantRequest{TenantID: 999, ProfessionalID: vetID, Capabilities: caps}, ErrNotFound},
		{"unknown professional", GrantRequest{TenantID: tenantA, ProfessionalID: 999, Capabilities: caps}, ErrNotFound},
		{"non-professional grantee", GrantRequest{TenantID: tenantA, ProfessionalID: ownerAID, Capabilities: caps}, ErrInvalidArgument},
		{"empty capabilities", GrantRequest{TenantID: tenantA, ProfessionalID: vetID, Capabilities: CapabilitySet{}}, ErrInvalidArgument},
		{"unknown capability", GrantRequest{TenantID: tenantA, ProfessionalID: vetID, Capabilities: NewCapabilitySet("milk-cows")}, ErrInvalidArgument},
		{"expiry in the past", GrantRequest{TenantID: tenantA, ProfessionalID: vetID, Capabilities: caps, ExpiresAt: at(-time.Second)}, ErrInvalidArgument},
		{"expiry equal to now", GrantRequest{TenantID: tenantA, ProfessionalID: vetID, Capabilities: caps, ExpiresAt: at(0)}, ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Grant(ctx, tt.req, t0)
			assert.ErrorIs(t, err, tt.want)
			assert.False(t, errors.Is(err, ErrNotFound) && errors.Is(err, ErrInvalidArgument))
		})
	}
	assert.Empty(t, repo.rows)
}

// TestPurpose: Validates that revoke deactivates the effective grant and is a no-op without one.
// Scope: Unit Test
// Security: Immediate access withdrawal
// Expected: No effective grant after revoke; second revoke succeeds without change.
// Test Case ID: GRT-06
func TestGrant_Revoke(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Revoke(ctx, tenantA, vetID, ownerAID, t0))

	_, err := svc.Grant(ctx, GrantRequest{
		TenantID: tenantA, ProfessionalID: vetID, GrantedBy: ownerAID,
		Capabilities: NewCapabilitySet(CapViewLivestock),
	}, t0)
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(ctx, tenantA, vetID, ownerAID, t0.Add(time.Second)))
	_, ok, err := svc.EffectiveGrant(ctx, tenantA, vetID, t0.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, svc.Revoke(ctx, tenantA, vetID, ownerAID, t0.Add(2*time.Second)))

	mine, err := svc.ListForProfessional(ctx, vetID, t0.Add(time.Second))
	require.NoError(t, err)
	assert.Empty(t, mine)
}

// TestPurpose: Validates that the expiry sweep is idempotent and never reactivates a grant.
// Scope: Unit Test
// Expected: Second sweep with the same now deactivates nothing and leaves the same inactive set.
// Test Case ID: GRT-07
func TestGrant_SweepExpired_Idempotent(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	_, err := svc.Grant(ctx, GrantRequest{
		TenantID: tenantA, ProfessionalID: vetID, GrantedBy: ownerAID,
		Capabilities: NewCapabilitySet(CapViewLivestock), ExpiresAt: at(time.Minute),
	}, t0)
	require.NoError(t, err)
	_, err = svc.Grant(ctx, GrantRequest{
		TenantID: tenantB, ProfessionalID: vetID, GrantedBy: ownerAID,
		Capabilities: NewCapabilitySet(CapViewLivestock),
	}, t0)
	require.NoError(t, err)

	now := t0.Add(time.Hour)
	n, err := svc.SweepExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	afterOnce := repo.inactiveIDs()

	n, err = svc.SweepExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	assert.Equal(t, afterOnce, repo.inactiveIDs())

	ok, err := svc.HasCapability(ctx, tenantB, vetID, CapViewLivestock, now)
	require.NoError(t, err)
	assert.True(t, ok)
}

// TestPurpose: Validates that concurrent grants and revokes on one pair never produce two active rows or a torn capability set.
// Scope: Unit Test
// Security: Linearizable per-pair writes
// Expected: At most one active row; every observed capability set equals one that was written.
// Test Case ID: GRT-08
func TestGrant_Concurrent_SamePair(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	sets := []CapabilitySet{
		NewCapabilitySet(CapViewLivestock, CapEditLivestock),
		NewCapabilitySet(CapViewMedical, CapEditMedical, CapAddVaccination),
		NewCapabilitySet(CapViewWeight),
	}
	valid := map[string]bool{}
	for _, s := range sets {
		valid[capKey(s)] = true
	}

	var wg sync.WaitGroup
	for i := 0; i < 60; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			switch i % 4 {
			case 3:
				_ = svc.Revoke(ctx, tenantA, vetID, ownerAID, t0)
			default:
				_, err := svc.Grant(ctx, GrantRequest{
					TenantID: tenantA, ProfessionalID: vetID, GrantedBy: ownerAID,
					Capabilities: sets[i%3],
				}, t0)
				assert.NoError(t, err)
			}
			if g, ok, err := svc.EffectiveGrant(ctx, tenantA, vetID, t0); err == nil && ok {
				assert.True(t, valid[capKey(g.Capabilities)])
			}
		}(i)
	}
	wg.Wait()

	active := 0
	for _, g := range repo.rows {
		if g.Active {
			active++
		}
	}
	assert.LessOrEqual(t, active, 1)
	assert.Equal(t, 0, svc.locks.size())
}

// TestPurpose: Validates which actors may administer grants on a tenant.
// Scope: Unit Test
// Security: Only the account owner or a system operator controls vet access
// Expected: Owner of the tenant and system operator true; others false.
// Test Case ID: GRT-09
func TestGrant_CanAdministerGrants(t *testing.T) {
	home := tenantA
	owner, _ := identity.NewPrincipal(1, identity.LevelTenantPrincipal, &home, nil)
	delegate, _ := identity.NewPrincipal(2, identity.LevelTenantDelegate, &home, nil)
	operator, _ := identity.NewPrincipal(3, identity.LevelSystemOperator, nil, nil)
	support, _ := identity.NewPrincipal(4, identity.LevelSupportOperator, nil, nil)
	vet, _ := identity.NewPrincipal(5, identity.LevelCrossTenantProfessional, nil, nil)

	assert.True(t, CanAdministerGrants(owner, tenantA))
	assert.False(t, CanAdministerGrants(owner, tenantB))
	assert.False(t, CanAdministerGrants(delegate, tenantA))
	assert.True(t, CanAdministerGrants(operator, tenantB))
	assert.False(t, CanAdministerGrants(support, tenantA))
	assert.False(t, CanAdministerGrants(vet, tenantA))

	owner.Active = false
	assert.False(t, CanAdministerGrants(owner, tenantA))
}

// TestPurpose: Validates that a cancelled context fails capability checks closed.
// Scope: Unit Test
// Security: Cancellation never yields access
// Expected: HasCapability returns false with context.Canceled.
// Test Case ID: GRT-10
func TestGrant_HasCapability_Cancelled(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Grant(context.Background(), GrantRequest{
		TenantID: tenantA, ProfessionalID: vetID, GrantedBy: ownerAID,
		Capabilities: NewCapabilitySet(CapViewLivestock),
	}, t0)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ok, err := svc.HasCapability(ctx, tenantA, vetID, CapViewLivestock, t0)
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCapability_Parse(t *testing.T) {
	set, err := ParseCapabilitySet([]string{"view-livestock", "add-notes", "view-livestock"})
	require.NoError(t, err)
	assert.Equal(t, []string{"add-notes", "view-livestock"}, set.Strings())

	_, err = ParseCapability("fly")
	assert.ErrorIs(t, err, ErrUnknownCapability)
	assert.Len(t, AllCapabilities, 11)
}

func capKey(s CapabilitySet) string {
	out := ""
	for _, c := range s.Strings() {
		out += c + ","
	}
	return out
}
