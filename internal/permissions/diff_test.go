package permissions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiff(t *testing.T) {
	before := &UserProfile{
		Modules: []ModuleGrant{
			{Module: ModuleBooking, Actions: []Action{ActionView, ActionCreate}, Enabled: true},
			{Module: ModuleCustomer, Actions: []Action{ActionView}, Enabled: true},
			{Module: ModuleTools, Actions: []Action{ActionView}, Enabled: true},
		},
	}
	after := &UserProfile{
		Modules: []ModuleGrant{
			{Module: ModuleBooking, Actions: []Action{ActionView, ActionCreate, ActionDelete}, Enabled: true},
			{Module: ModuleCustomer, Actions: []Action{ActionView}, Enabled: true},
			{Module: ModuleReports, Actions: []Action{ActionView}, Enabled: true},
		},
	}

	report := Diff(before, after)
	assert.Equal(t, []Module{ModuleReports}, report.Added)
	assert.Equal(t, []Module{ModuleTools}, report.Removed)
	require.Len(t, report.Modified, 1)
	assert.Equal(t, ModuleBooking, report.Modified[0].Module)
	assert.Equal(t, []Action{ActionView, ActionCreate}, report.Modified[0].Before)
	assert.Equal(t, []Action{ActionView, ActionCreate, ActionDelete}, report.Modified[0].After)
}

func TestDiffIgnoresDisabledAndCustom(t *testing.T) {
	before := &UserProfile{
		Modules: []ModuleGrant{
			{Module: ModuleBooking, Actions: []Action{ActionView}, Enabled: true},
			{Module: ModuleFinance, Actions: []Action{ActionView}, Enabled: false},
		},
	}
	after := &UserProfile{
		Modules: []ModuleGrant{
			{Module: ModuleBooking, Actions: []Action{ActionView}, Enabled: true},
			{Module: ModuleFinance, Actions: []Action{ActionView}, Enabled: true},
		},
		CustomGrants: []CustomGrant{
			{Module: ModuleMarketing, Actions: []Action{ActionView}},
		},
	}

	report := Diff(before, after)
	// The disabled grant counts as absent, so enabling it reports an add.
	assert.Equal(t, []Module{ModuleFinance}, report.Added)
	assert.Empty(t, report.Removed)
	assert.Empty(t, report.Modified)
}

func TestDiffActionOrderInsensitive(t *testing.T) {
	before := &UserProfile{
		Modules: []ModuleGrant{
			{Module: ModuleBooking, Actions: []Action{ActionView, ActionEdit}, Enabled: true},
		},
	}
	after := &UserProfile{
		Modules: []ModuleGrant{
			{Module: ModuleBooking, Actions: []Action{ActionEdit, ActionView}, Enabled: true},
		},
	}

	report := Diff(before, after)
	assert.Empty(t, report.Added)
	assert.Empty(t, report.Removed)
	assert.Empty(t, report.Modified)
}

func TestDiffNilProfiles(t *testing.T) {
	after := &UserProfile{
		Modules: []ModuleGrant{
			{Module: ModuleBooking, Actions: []Action{ActionView}, Enabled: true},
		},
	}
	report := Diff(nil, after)
	assert.Equal(t, []Module{ModuleBooking}, report.Added)

	report = Diff(after, nil)
	assert.Equal(t, []Module{ModuleBooking}, report.Removed)
}
