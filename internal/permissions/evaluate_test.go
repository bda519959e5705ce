package permissions

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var evalNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func supportProfile(custom ...CustomGrant) *UserProfile {
	return &UserProfile{
		UserID: "u-support",
		Role:   RoleSupport,
		Modules: []ModuleGrant{
			{Module: ModuleBooking, Actions: []Action{ActionView, ActionCreate, ActionEdit}, Enabled: true},
			{Module: ModuleCustomer, Actions: []Action{ActionView, ActionEdit}, Enabled: true},
			{Module: ModuleTools, Actions: []Action{ActionView}, Enabled: true},
			{Module: ModuleMarketing, Actions: []Action{ActionView}, Enabled: false},
		},
		CustomGrants: custom,
		Version:      1,
	}
}

func expiresIn(d time.Duration) *time.Time {
	t := evalNow.Add(d)
	return &t
}

func TestHasActionStandingGrant(t *testing.T) {
	p := supportProfile()

	d, err := HasAction(p, ModuleBooking, ActionCreate, evalNow)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Nil(t, d.ExpiresAt)

	d, err = HasAction(p, ModuleBooking, ActionDelete, evalNow)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, "action not permitted", d.Reason)
}

func TestHasActionNoModuleAccess(t *testing.T) {
	p := supportProfile()

	// No grant at all.
	d, err := HasAction(p, ModuleFinance, ActionView, evalNow)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, "no module access", d.Reason)

	// A disabled standing grant does not open the module.
	d, err = HasAction(p, ModuleMarketing, ActionView, evalNow)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, "no module access", d.Reason)
}

func TestHasActionUnknownInputs(t *testing.T) {
	p := supportProfile()

	_, err := HasAction(p, Module("payroll"), ActionView, evalNow)
	assert.ErrorIs(t, err, ErrUnknownModule)

	// Tools only supports view and manage.
	_, err = HasAction(p, ModuleTools, ActionDelete, evalNow)
	assert.ErrorIs(t, err, ErrInvalidAction)
}

func TestHasActionCustomGrantUnion(t *testing.T) {
	exp := expiresIn(2 * time.Hour)
	p := supportProfile(CustomGrant{
		ID:        "g1",
		Module:    ModuleFinance,
		Actions:   []Action{ActionView, ActionExport},
		ExpiresAt: exp,
		GrantedBy: "admin-1",
		GrantedAt: evalNow.Add(-time.Hour),
	})

	d, err := HasAction(p, ModuleFinance, ActionExport, evalNow)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	require.NotNil(t, d.ExpiresAt)
	assert.True(t, d.ExpiresAt.Equal(*exp))

	// The custom layer never removes standing access.
	d, err = HasAction(p, ModuleBooking, ActionView, evalNow)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestHasActionExpiryBoundary(t *testing.T) {
	boundary := evalNow
	p := supportProfile(CustomGrant{
		ID:        "g1",
		Module:    ModuleFinance,
		Actions:   []Action{ActionView},
		ExpiresAt: &boundary,
	})

	// expiresAt equal to the evaluation instant is already inert.
	d, err := HasAction(p, ModuleFinance, ActionView, evalNow)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, "no module access", d.Reason)

	// One nanosecond earlier it was still live.
	d, err = HasAction(p, ModuleFinance, ActionView, evalNow.Add(-time.Nanosecond))
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestHasActionEarliestExpiryReported(t *testing.T) {
	soon := expiresIn(time.Hour)
	later := expiresIn(6 * time.Hour)
	p := supportProfile(
		CustomGrant{ID: "g1", Module: ModuleFinance, Actions: []Action{ActionView}, ExpiresAt: later},
		CustomGrant{ID: "g2", Module: ModuleFinance, Actions: []Action{ActionView}, ExpiresAt: soon},
	)

	d, err := HasAction(p, ModuleFinance, ActionView, evalNow)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	require.NotNil(t, d.ExpiresAt)
	assert.True(t, d.ExpiresAt.Equal(*soon))
}

func TestHasActionPermanentCustomGrant(t *testing.T) {
	soon := expiresIn(time.Hour)
	p := supportProfile(
		CustomGrant{ID: "g1", Module: ModuleFinance, Actions: []Action{ActionView}, ExpiresAt: soon},
		CustomGrant{ID: "g2", Module: ModuleFinance, Actions: []Action{ActionView}},
	)

	// A grant without expiry dominates: the allow never lapses.
	d, err := HasAction(p, ModuleFinance, ActionView, evalNow)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Nil(t, d.ExpiresAt)
}

func TestHasActionManageExpands(t *testing.T) {
	p := &UserProfile{
		UserID: "u-ops",
		Role:   RoleAdmin,
		Modules: []ModuleGrant{
			{Module: ModuleBooking, Actions: []Action{ActionManage}, Enabled: true},
		},
		Version: 1,
	}

	for _, a := range []Action{ActionView, ActionCreate, ActionEdit, ActionDelete, ActionExport, ActionImport} {
		d, err := HasAction(p, ModuleBooking, a, evalNow)
		require.NoError(t, err)
		assert.True(t, d.Allowed, "manage should cover %s", a)
	}
}

func TestHasAllAndAnyActions(t *testing.T) {
	p := supportProfile()

	all, err := HasAllActions(p, ModuleBooking, []Action{ActionView, ActionCreate}, evalNow)
	require.NoError(t, err)
	assert.True(t, all)

	all, err = HasAllActions(p, ModuleBooking, []Action{ActionView, ActionDelete}, evalNow)
	require.NoError(t, err)
	assert.False(t, all)

	any, err := HasAnyAction(p, ModuleBooking, []Action{ActionDelete, ActionView}, evalNow)
	require.NoError(t, err)
	assert.True(t, any)

	any, err = HasAnyAction(p, ModuleBooking, []Action{ActionDelete, ActionExport}, evalNow)
	require.NoError(t, err)
	assert.False(t, any)
}

func TestAccessibleModules(t *testing.T) {
	p := supportProfile(CustomGrant{
		ID:        "g1",
		Module:    ModuleFinance,
		Actions:   []Action{ActionView},
		ExpiresAt: expiresIn(time.Hour),
	})

	mods := AccessibleModules(p, evalNow)
	assert.Equal(t, []Module{ModuleBooking, ModuleCustomer, ModuleFinance, ModuleTools}, mods)

	// Once the finance grant lapses the module drops out again.
	mods = AccessibleModules(p, evalNow.Add(2*time.Hour))
	assert.Equal(t, []Module{ModuleBooking, ModuleCustomer, ModuleTools}, mods)
}

func TestAvailableActionsUnion(t *testing.T) {
	p := supportProfile(CustomGrant{
		ID:        "g1",
		Module:    ModuleBooking,
		Actions:   []Action{ActionDelete, ActionExport},
		ExpiresAt: expiresIn(time.Hour),
	})

	actions, err := AvailableActions(p, ModuleBooking, evalNow)
	require.NoError(t, err)
	assert.Equal(t, []Action{ActionView, ActionCreate, ActionEdit, ActionDelete, ActionExport}, actions)

	// After expiry only the standing set remains.
	actions, err = AvailableActions(p, ModuleBooking, evalNow.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []Action{ActionView, ActionCreate, ActionEdit}, actions)
}

func TestAvailableActionsManage(t *testing.T) {
	p := &UserProfile{
		Modules: []ModuleGrant{
			{Module: ModuleSettings, Actions: []Action{ActionManage}, Enabled: true},
		},
	}
	actions, err := AvailableActions(p, ModuleSettings, evalNow)
	require.NoError(t, err)
	assert.Equal(t, []Action{ActionView, ActionEdit, ActionManage}, actions)

	_, err = AvailableActions(p, Module("payroll"), evalNow)
	assert.ErrorIs(t, err, ErrUnknownModule)
}

func TestExpiringGrantsOrderedSoonestFirst(t *testing.T) {
	p := supportProfile(
		CustomGrant{ID: "later", Module: ModuleFinance, Actions: []Action{ActionView}, ExpiresAt: expiresIn(20 * time.Hour)},
		CustomGrant{ID: "soon", Module: ModuleMarketing, Actions: []Action{ActionView}, ExpiresAt: expiresIn(2 * time.Hour)},
		CustomGrant{ID: "outside", Module: ModuleReports, Actions: []Action{ActionView}, ExpiresAt: expiresIn(48 * time.Hour)},
		CustomGrant{ID: "gone", Module: ModuleFinance, Actions: []Action{ActionView}, ExpiresAt: expiresIn(-time.Hour)},
		CustomGrant{ID: "forever", Module: ModuleFinance, Actions: []Action{ActionView}},
	)

	got := ExpiringGrants(p, 24*time.Hour, evalNow)
	require.Len(t, got, 2)
	assert.Equal(t, "soon", got[0].ID)
	assert.Equal(t, "later", got[1].ID)
}

func TestExpiredGrants(t *testing.T) {
	p := supportProfile(
		CustomGrant{ID: "gone", Module: ModuleFinance, Actions: []Action{ActionView}, ExpiresAt: expiresIn(-time.Hour)},
		CustomGrant{ID: "live", Module: ModuleFinance, Actions: []Action{ActionView}, ExpiresAt: expiresIn(time.Hour)},
		CustomGrant{ID: "forever", Module: ModuleFinance, Actions: []Action{ActionView}},
	)

	got := ExpiredGrants(p, evalNow)
	require.Len(t, got, 1)
	assert.Equal(t, "gone", got[0].ID)
}

func TestHasModuleAccessNilProfile(t *testing.T) {
	assert.False(t, HasModuleAccess(nil, ModuleBooking, evalNow))
}
