// Package permissions implements the two-layer permission model for the
// voyagedesk back office: a static role catalog plus per-user standing and
// temporary grants, evaluated as an additive union.
package permissions

import (
	"fmt"
	"sort"
	"sync"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Module identifies a back-office capability area.
type Module string

const (
	ModuleBooking        Module = "booking"
	ModuleCustomer       Module = "customer"
	ModuleMarketing      Module = "marketing"
	ModuleFinance        Module = "finance"
	ModuleTools          Module = "tools"
	ModuleSettings       Module = "settings"
	ModuleUserManagement Module = "user_management"
	ModuleReports        Module = "reports"
)

// Action identifies an operation type within a module.
type Action string

const (
	ActionView   Action = "view"
	ActionCreate Action = "create"
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
	ActionExport Action = "export"
	ActionImport Action = "import"
	// ActionManage implies every action the module supports.
	ActionManage Action = "manage"
)

// ModuleInfo describes a module and the actions that are meaningful for it.
type ModuleInfo struct {
	Module           Module   `json:"module"`
	Label            string   `json:"label"`
	Description      string   `json:"description"`
	AvailableActions []Action `json:"availableActions"`
}

var allActions = []Action{ActionView, ActionCreate, ActionEdit, ActionDelete, ActionExport, ActionImport, ActionManage}

var moduleCatalog = map[Module]ModuleInfo{
	ModuleBooking: {
		Module:           ModuleBooking,
		Label:            "Bookings",
		Description:      "Tour bookings, calendar and reservation lifecycle",
		AvailableActions: allActions,
	},
	ModuleCustomer: {
		Module:           ModuleCustomer,
		Label:            "Customers",
		Description:      "Customer records and CRM views",
		AvailableActions: allActions,
	},
	ModuleMarketing: {
		Module:           ModuleMarketing,
		Label:            "Marketing",
		Description:      "Promo codes, campaigns and email templates",
		AvailableActions: []Action{ActionView, ActionCreate, ActionEdit, ActionDelete, ActionExport, ActionManage},
	},
	ModuleFinance: {
		Module:           ModuleFinance,
		Label:            "Finance",
		Description:      "Invoices, payments and refunds",
		AvailableActions: []Action{ActionView, ActionCreate, ActionEdit, ActionExport, ActionManage},
	},
	ModuleTools: {
		Module:           ModuleTools,
		Label:            "Tools",
		Description:      "Operational utilities and diagnostics",
		AvailableActions: []Action{ActionView, ActionManage},
	},
	ModuleSettings: {
		Module:           ModuleSettings,
		Label:            "Settings",
		Description:      "Business configuration and integrations",
		AvailableActions: []Action{ActionView, ActionEdit, ActionManage},
	},
	ModuleUserManagement: {
		Module:           ModuleUserManagement,
		Label:            "User Management",
		Description:      "Staff accounts, roles and permission profiles",
		AvailableActions: []Action{ActionView, ActionCreate, ActionEdit, ActionDelete, ActionManage},
	},
	ModuleReports: {
		Module:           ModuleReports,
		Label:            "Reports",
		Description:      "Operational and revenue reporting",
		AvailableActions: []Action{ActionView, ActionExport, ActionManage},
	},
}

// Info returns the taxonomy entry for a module.
func Info(m Module) (ModuleInfo, error) {
	info, ok := moduleCatalog[m]
	if !ok {
		return ModuleInfo{}, fmt.Errorf("%w: %q", ErrUnknownModule, m)
	}
	return info, nil
}

// KnownModule reports whether m is part of the taxonomy.
func KnownModule(m Module) bool {
	_, ok := moduleCatalog[m]
	return ok
}

// labelCollator orders user-facing labels. Collators carry mutable iterator
// state, so every use goes through the mutex.
var (
	labelCollator   = collate.New(language.English)
	labelCollatorMu sync.Mutex
)

func compareLabels(a, b string) int {
	labelCollatorMu.Lock()
	defer labelCollatorMu.Unlock()
	return labelCollator.CompareString(a, b)
}

// The taxonomy is static, so its collated order is computed once.
var modulesByLabel = func() []ModuleInfo {
	infos := make([]ModuleInfo, 0, len(moduleCatalog))
	for _, info := range moduleCatalog {
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool {
		return compareLabels(infos[i].Label, infos[j].Label) < 0
	})
	return infos
}()

// Modules lists every taxonomy entry ordered by collated label.
func Modules() []ModuleInfo {
	out := make([]ModuleInfo, len(modulesByLabel))
	copy(out, modulesByLabel)
	return out
}

// ActionAvailable reports whether the module supports the action.
func ActionAvailable(m Module, a Action) bool {
	info, ok := moduleCatalog[m]
	if !ok {
		return false
	}
	for _, candidate := range info.AvailableActions {
		if candidate == a {
			return true
		}
	}
	return false
}

// ValidateActions rejects actions the module does not support.
func ValidateActions(m Module, actions []Action) error {
	if _, ok := moduleCatalog[m]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownModule, m)
	}
	for _, a := range actions {
		if !ActionAvailable(m, a) {
			return fmt.Errorf("%w: %q on %q", ErrInvalidAction, a, m)
		}
	}
	return nil
}

// normalizeActions deduplicates an action list preserving a stable order.
func normalizeActions(actions []Action) []Action {
	seen := make(map[Action]struct{}, len(actions))
	out := make([]Action, 0, len(actions))
	for _, a := range actions {
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out
}

func actionSet(actions []Action) map[Action]struct{} {
	set := make(map[Action]struct{}, len(actions))
	for _, a := range actions {
		set[a] = struct{}{}
	}
	return set
}
