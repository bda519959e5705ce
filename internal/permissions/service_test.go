package permissions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyagedesk/voyagedesk/internal/audit"
)

type mockProfileRepo struct {
	profiles map[string]*UserProfile

	// Error injection
	getErr    error
	createErr error
	saveErr   error
}

func newMockProfileRepo() *mockProfileRepo {
	return &mockProfileRepo{profiles: make(map[string]*UserProfile)}
}

func (m *mockProfileRepo) Get(_ context.Context, userID string) (*UserProfile, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	p, ok := m.profiles[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	return p.Clone(), nil
}

func (m *mockProfileRepo) Create(_ context.Context, profile *UserProfile) error {
	if m.createErr != nil {
		return m.createErr
	}
	if _, ok := m.profiles[profile.UserID]; ok {
		return ErrProfileExists
	}
	m.profiles[profile.UserID] = profile.Clone()
	return nil
}

func (m *mockProfileRepo) Save(_ context.Context, profile *UserProfile) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	current, ok := m.profiles[profile.UserID]
	if !ok {
		return ErrUserNotFound
	}
	if current.Version != profile.Version {
		return ErrVersionConflict
	}
	profile.Version++
	m.profiles[profile.UserID] = profile.Clone()
	return nil
}

type mockRecorder struct {
	entries   []audit.Entry
	recordErr error
}

func (m *mockRecorder) Record(_ context.Context, entry audit.Entry) error {
	if m.recordErr != nil {
		return m.recordErr
	}
	m.entries = append(m.entries, entry)
	return nil
}

type mockInvalidator struct {
	invalidated []string
	err         error
}

func (m *mockInvalidator) Invalidate(_ context.Context, userID string) error {
	if m.err != nil {
		return m.err
	}
	m.invalidated = append(m.invalidated, userID)
	return nil
}

var serviceNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestService(repo *mockProfileRepo, rec *mockRecorder, opts ...func(*ServiceConfig)) *Service {
	cfg := ServiceConfig{
		Repo:                repo,
		Audit:               rec,
		Now:                 func() time.Time { return serviceNow },
		AuditExpiredCleanup: true,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return NewService(cfg)
}

func TestCreateProfileSeedsDefaults(t *testing.T) {
	repo := newMockProfileRepo()
	rec := &mockRecorder{}
	svc := newTestService(repo, rec)

	profile, err := svc.CreateProfile(context.Background(), "u1", RoleSupport, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), profile.Version)
	assert.Equal(t, RoleSupport, profile.Role)
	require.Len(t, profile.Modules, 3)

	byModule := map[Module][]Action{}
	for _, g := range profile.Modules {
		assert.True(t, g.Enabled)
		byModule[g.Module] = g.Actions
	}
	assert.Equal(t, []Action{ActionView, ActionCreate, ActionEdit}, byModule[ModuleBooking])
	assert.Equal(t, []Action{ActionView, ActionCreate, ActionEdit}, byModule[ModuleCustomer])
	// Tools only supports view and manage, so seeding intersects down.
	assert.Equal(t, []Action{ActionView}, byModule[ModuleTools])

	require.Len(t, rec.entries, 1)
	assert.Equal(t, audit.ActionUpdated, rec.entries[0].Action)
	assert.Equal(t, "profile", rec.entries[0].Module)
	assert.Equal(t, "admin-1", rec.entries[0].PerformedBy)
}

func TestCreateProfileUnknownRole(t *testing.T) {
	svc := newTestService(newMockProfileRepo(), &mockRecorder{})

	_, err := svc.CreateProfile(context.Background(), "u1", Role("owner"), "admin-1")
	assert.ErrorIs(t, err, ErrUnknownRole)
}

func TestCreateProfileDuplicate(t *testing.T) {
	repo := newMockProfileRepo()
	svc := newTestService(repo, &mockRecorder{})

	_, err := svc.CreateProfile(context.Background(), "u1", RoleGuest, "admin-1")
	require.NoError(t, err)
	_, err = svc.CreateProfile(context.Background(), "u1", RoleGuest, "admin-1")
	assert.ErrorIs(t, err, ErrProfileExists)
}

func TestGrantTemporaryAccess(t *testing.T) {
	repo := newMockProfileRepo()
	rec := &mockRecorder{}
	svc := newTestService(repo, rec)

	_, err := svc.CreateProfile(context.Background(), "u1", RoleSupport, "admin-1")
	require.NoError(t, err)

	profile, err := svc.GrantTemporaryAccess(context.Background(), "u1", ModuleFinance, []Action{ActionView, ActionExport}, 24*time.Hour, "covering month end", "admin-1")
	require.NoError(t, err)
	require.Len(t, profile.CustomGrants, 1)

	grant := profile.CustomGrants[0]
	assert.NotEmpty(t, grant.ID)
	assert.Equal(t, ModuleFinance, grant.Module)
	require.NotNil(t, grant.ExpiresAt)
	assert.True(t, grant.ExpiresAt.Equal(serviceNow.Add(24*time.Hour)))
	assert.Equal(t, "admin-1", grant.GrantedBy)
	assert.Equal(t, "covering month end", grant.Reason)

	// The mutation was persisted, not just returned.
	stored, err := svc.GetProfile(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, stored.CustomGrants, 1)
	assert.Equal(t, int64(2), stored.Version)

	last := rec.entries[len(rec.entries)-1]
	assert.Equal(t, audit.ActionGranted, last.Action)
	assert.Equal(t, "finance", last.Module)
	assert.Equal(t, []string{"view", "export"}, last.Actions)
	require.NotNil(t, last.ExpiresAt)
}

func TestGrantTemporaryAccessRejectsInvalidAction(t *testing.T) {
	repo := newMockProfileRepo()
	svc := newTestService(repo, &mockRecorder{})
	_, err := svc.CreateProfile(context.Background(), "u1", RoleSupport, "admin-1")
	require.NoError(t, err)

	_, err = svc.GrantTemporaryAccess(context.Background(), "u1", ModuleTools, []Action{ActionDelete}, time.Hour, "", "admin-1")
	assert.ErrorIs(t, err, ErrInvalidAction)

	_, err = svc.GrantTemporaryAccess(context.Background(), "u1", Module("payroll"), []Action{ActionView}, time.Hour, "", "admin-1")
	assert.ErrorIs(t, err, ErrUnknownModule)
}

func TestGrantTemporaryAccessUnknownUser(t *testing.T) {
	svc := newTestService(newMockProfileRepo(), &mockRecorder{})

	_, err := svc.GrantTemporaryAccess(context.Background(), "missing", ModuleFinance, []Action{ActionView}, time.Hour, "", "admin-1")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestRevokeAccessRemovesBothLayers(t *testing.T) {
	repo := newMockProfileRepo()
	rec := &mockRecorder{}
	svc := newTestService(repo, rec)

	_, err := svc.CreateProfile(context.Background(), "u1", RoleSupport, "admin-1")
	require.NoError(t, err)
	_, err = svc.GrantTemporaryAccess(context.Background(), "u1", ModuleBooking, []Action{ActionDelete}, time.Hour, "", "admin-1")
	require.NoError(t, err)

	profile, err := svc.RevokeAccess(context.Background(), "u1", ModuleBooking, "admin-2")
	require.NoError(t, err)

	for _, g := range profile.Modules {
		assert.NotEqual(t, ModuleBooking, g.Module)
	}
	assert.Empty(t, profile.CustomGrants)

	d, err := HasAction(profile, ModuleBooking, ActionView, serviceNow)
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	last := rec.entries[len(rec.entries)-1]
	assert.Equal(t, audit.ActionRevoked, last.Action)
	assert.Equal(t, "booking", last.Module)
	// Union of both removed layers, deduplicated.
	assert.ElementsMatch(t, []string{"view", "create", "edit", "delete"}, last.Actions)
}

func TestRevokeAccessUnknownModule(t *testing.T) {
	svc := newTestService(newMockProfileRepo(), &mockRecorder{})

	_, err := svc.RevokeAccess(context.Background(), "u1", Module("payroll"), "admin-1")
	assert.ErrorIs(t, err, ErrUnknownModule)
}

func TestApplyTemplateReplacesStandingGrants(t *testing.T) {
	repo := newMockProfileRepo()
	rec := &mockRecorder{}
	svc := newTestService(repo, rec)

	_, err := svc.CreateProfile(context.Background(), "u1", RoleAccountant, "admin-1")
	require.NoError(t, err)
	_, err = svc.GrantTemporaryAccess(context.Background(), "u1", ModuleMarketing, []Action{ActionView}, time.Hour, "", "admin-1")
	require.NoError(t, err)

	profile, err := svc.ApplyTemplate(context.Background(), "u1", "support-basic", "admin-1")
	require.NoError(t, err)

	var modules []Module
	for _, g := range profile.Modules {
		modules = append(modules, g.Module)
	}
	assert.Equal(t, []Module{ModuleBooking, ModuleCustomer, ModuleTools}, modules)
	// Custom grants survive template application untouched.
	require.Len(t, profile.CustomGrants, 1)

	// Applying the same template twice is idempotent over the modules list.
	again, err := svc.ApplyTemplate(context.Background(), "u1", "support-basic", "admin-1")
	require.NoError(t, err)
	assert.Equal(t, profile.Modules, again.Modules)

	last := rec.entries[len(rec.entries)-1]
	assert.Equal(t, audit.ActionUpdated, last.Action)
	assert.Equal(t, "support-basic", last.Reason)
}

func TestApplyTemplateUnknown(t *testing.T) {
	repo := newMockProfileRepo()
	svc := newTestService(repo, &mockRecorder{})
	_, err := svc.CreateProfile(context.Background(), "u1", RoleGuest, "admin-1")
	require.NoError(t, err)

	_, err = svc.ApplyTemplate(context.Background(), "u1", "nonexistent", "admin-1")
	assert.ErrorIs(t, err, ErrTemplateNotFound)
}

func TestUpdatePermissionsReplacesBothLayers(t *testing.T) {
	repo := newMockProfileRepo()
	rec := &mockRecorder{}
	svc := newTestService(repo, rec)

	_, err := svc.CreateProfile(context.Background(), "u1", RoleSupport, "admin-1")
	require.NoError(t, err)

	exp := serviceNow.Add(48 * time.Hour)
	profile, err := svc.UpdatePermissions(context.Background(), "u1",
		[]ModuleGrant{{Module: ModuleReports, Actions: []Action{ActionView, ActionExport}, Enabled: true}},
		[]CustomGrant{{Module: ModuleFinance, Actions: []Action{ActionView}, ExpiresAt: &exp}},
		"admin-2",
	)
	require.NoError(t, err)

	require.Len(t, profile.Modules, 1)
	assert.Equal(t, ModuleReports, profile.Modules[0].Module)
	require.Len(t, profile.CustomGrants, 1)
	// Bookkeeping fields are filled in when the caller omits them.
	assert.NotEmpty(t, profile.CustomGrants[0].ID)
	assert.Equal(t, "admin-2", profile.CustomGrants[0].GrantedBy)
	assert.True(t, profile.CustomGrants[0].GrantedAt.Equal(serviceNow))
	assert.Equal(t, "admin-2", profile.UpdatedBy)
}

func TestUpdatePermissionsValidatesActions(t *testing.T) {
	repo := newMockProfileRepo()
	svc := newTestService(repo, &mockRecorder{})
	_, err := svc.CreateProfile(context.Background(), "u1", RoleSupport, "admin-1")
	require.NoError(t, err)

	_, err = svc.UpdatePermissions(context.Background(), "u1",
		[]ModuleGrant{{Module: ModuleReports, Actions: []Action{ActionImport}, Enabled: true}},
		nil, "admin-1")
	assert.ErrorIs(t, err, ErrInvalidAction)
}

func TestCleanupExpired(t *testing.T) {
	repo := newMockProfileRepo()
	rec := &mockRecorder{}
	svc := newTestService(repo, rec)

	_, err := svc.CreateProfile(context.Background(), "u1", RoleSupport, "admin-1")
	require.NoError(t, err)

	gone := serviceNow.Add(-time.Hour)
	live := serviceNow.Add(time.Hour)
	_, err = svc.UpdatePermissions(context.Background(), "u1", nil, []CustomGrant{
		{Module: ModuleFinance, Actions: []Action{ActionView}, ExpiresAt: &gone},
		{Module: ModuleFinance, Actions: []Action{ActionExport}, ExpiresAt: &gone},
		{Module: ModuleMarketing, Actions: []Action{ActionView}, ExpiresAt: &live},
	}, "admin-1")
	require.NoError(t, err)
	auditBefore := len(rec.entries)

	profile, removed, err := svc.CleanupExpired(context.Background(), "u1", "system:expiry-sweep")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	require.Len(t, profile.CustomGrants, 1)
	assert.Equal(t, ModuleMarketing, profile.CustomGrants[0].Module)

	// One expired entry per swept module.
	swept := rec.entries[auditBefore:]
	require.Len(t, swept, 1)
	assert.Equal(t, audit.ActionExpired, swept[0].Action)
	assert.Equal(t, "finance", swept[0].Module)
	assert.ElementsMatch(t, []string{"view", "export"}, swept[0].Actions)
	assert.Equal(t, "system:expiry-sweep", swept[0].PerformedBy)
}

func TestCleanupExpiredNothingToSweep(t *testing.T) {
	repo := newMockProfileRepo()
	rec := &mockRecorder{}
	svc := newTestService(repo, rec)

	_, err := svc.CreateProfile(context.Background(), "u1", RoleSupport, "admin-1")
	require.NoError(t, err)
	versionBefore := repo.profiles["u1"].Version

	_, removed, err := svc.CleanupExpired(context.Background(), "u1", "system:expiry-sweep")
	require.NoError(t, err)
	assert.Zero(t, removed)
	// No write when there is nothing to remove.
	assert.Equal(t, versionBefore, repo.profiles["u1"].Version)
}

func TestCleanupExpiredAuditDisabled(t *testing.T) {
	repo := newMockProfileRepo()
	rec := &mockRecorder{}
	svc := newTestService(repo, rec, func(cfg *ServiceConfig) { cfg.AuditExpiredCleanup = false })

	_, err := svc.CreateProfile(context.Background(), "u1", RoleSupport, "admin-1")
	require.NoError(t, err)
	gone := serviceNow.Add(-time.Hour)
	_, err = svc.UpdatePermissions(context.Background(), "u1", nil, []CustomGrant{
		{Module: ModuleFinance, Actions: []Action{ActionView}, ExpiresAt: &gone},
	}, "admin-1")
	require.NoError(t, err)
	auditBefore := len(rec.entries)

	_, removed, err := svc.CleanupExpired(context.Background(), "u1", "system:expiry-sweep")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Len(t, rec.entries, auditBefore)
}

func TestSavePropagatesVersionConflict(t *testing.T) {
	repo := newMockProfileRepo()
	svc := newTestService(repo, &mockRecorder{})

	_, err := svc.CreateProfile(context.Background(), "u1", RoleSupport, "admin-1")
	require.NoError(t, err)
	repo.saveErr = ErrVersionConflict

	_, err = svc.GrantTemporaryAccess(context.Background(), "u1", ModuleFinance, []Action{ActionView}, time.Hour, "", "admin-1")
	assert.ErrorIs(t, err, ErrVersionConflict)
}

func TestMutationsInvalidateCache(t *testing.T) {
	repo := newMockProfileRepo()
	inv := &mockInvalidator{}
	svc := newTestService(repo, &mockRecorder{}, func(cfg *ServiceConfig) { cfg.Cache = inv })

	_, err := svc.CreateProfile(context.Background(), "u1", RoleSupport, "admin-1")
	require.NoError(t, err)
	_, err = svc.GrantTemporaryAccess(context.Background(), "u1", ModuleFinance, []Action{ActionView}, time.Hour, "", "admin-1")
	require.NoError(t, err)
	_, err = svc.RevokeAccess(context.Background(), "u1", ModuleFinance, "admin-1")
	require.NoError(t, err)

	assert.Equal(t, []string{"u1", "u1"}, inv.invalidated)
}

func TestMutationFailsWhenAuditFails(t *testing.T) {
	repo := newMockProfileRepo()
	rec := &mockRecorder{}
	svc := newTestService(repo, rec)

	_, err := svc.CreateProfile(context.Background(), "u1", RoleSupport, "admin-1")
	require.NoError(t, err)

	rec.recordErr = errors.New("audit store down")
	_, err = svc.GrantTemporaryAccess(context.Background(), "u1", ModuleFinance, []Action{ActionView}, time.Hour, "", "admin-1")
	assert.EqualError(t, err, "audit store down")
}
