package permissions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModulesOrderedByLabel(t *testing.T) {
	infos := Modules()
	require.Len(t, infos, 8)

	labels := make([]string, len(infos))
	for i, info := range infos {
		labels[i] = info.Label
	}
	assert.Equal(t, []string{
		"Bookings", "Customers", "Finance", "Marketing",
		"Reports", "Settings", "Tools", "User Management",
	}, labels)
}

func TestModulesReturnsIsolatedCopy(t *testing.T) {
	first := Modules()
	first[0] = ModuleInfo{}

	second := Modules()
	require.Len(t, second, 8)
	assert.Equal(t, "Bookings", second[0].Label)
}

func TestInfo(t *testing.T) {
	info, err := Info(ModuleTools)
	require.NoError(t, err)
	assert.Equal(t, []Action{ActionView, ActionManage}, info.AvailableActions)

	_, err = Info(Module("payroll"))
	assert.ErrorIs(t, err, ErrUnknownModule)
	assert.False(t, KnownModule(Module("payroll")))
}

func TestActionAvailable(t *testing.T) {
	assert.True(t, ActionAvailable(ModuleBooking, ActionImport))
	assert.False(t, ActionAvailable(ModuleSettings, ActionDelete))
	assert.False(t, ActionAvailable(ModuleReports, ActionCreate))
	assert.True(t, ActionAvailable(ModuleReports, ActionExport))
	assert.False(t, ActionAvailable(Module("payroll"), ActionView))
}

func TestValidateActions(t *testing.T) {
	err := ValidateActions(ModuleBooking, []Action{ActionView, ActionManage})
	assert.NoError(t, err)

	err = ValidateActions(ModuleTools, []Action{ActionView, ActionEdit})
	assert.ErrorIs(t, err, ErrInvalidAction)

	err = ValidateActions(Module("payroll"), []Action{ActionView})
	assert.ErrorIs(t, err, ErrUnknownModule)
}

func TestNormalizeActions(t *testing.T) {
	got := normalizeActions([]Action{ActionView, ActionEdit, ActionView, ActionEdit, ActionCreate})
	assert.Equal(t, []Action{ActionView, ActionEdit, ActionCreate}, got)
	assert.Empty(t, normalizeActions(nil))
}
