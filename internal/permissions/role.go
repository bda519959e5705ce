package permissions

import (
	"fmt"
	"sort"
	"strings"
)

// Role is a fixed staff identity category. Roles are defined at compile time
// and determine default permissions and role-creation authority.
type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleAdmin      Role = "admin"
	RoleSupport    Role = "support"
	RoleAccountant Role = "accountant"
	RoleDeveloper  Role = "developer"
	RoleCustomer   Role = "customer"
	RoleGuest      Role = "guest"
)

// RoleProfile is the static definition of a role: display metadata, authority
// level, which roles it may create, and its boolean capability matrix.
type RoleProfile struct {
	Role        Role            `json:"role"`
	Label       string          `json:"label"`
	Description string          `json:"description"`
	Level       int             `json:"level"`
	CanCreate   []Role          `json:"canCreate"`
	Flags       map[string]bool `json:"flags"`
}

// flagKeys enumerates the full capability matrix. Every role must populate
// every key; init panics on an incomplete catalog.
var flagKeys = []string{
	"bookings.view", "bookings.create", "bookings.edit", "bookings.delete",
	"bookings.cancel", "bookings.refund", "bookings.export",

	"customers.view", "customers.create", "customers.edit", "customers.delete",
	"customers.export", "customers.import", "customers.notes",

	"tours.view", "tours.create", "tours.edit", "tours.delete",
	"tours.publish", "tours.pricing", "tours.schedule",

	"finance.view", "finance.invoices", "finance.payments", "finance.refunds",
	"finance.export", "finance.reconcile", "finance.reports",

	"marketing.view", "marketing.promos_create", "marketing.promos_edit",
	"marketing.promos_delete", "marketing.email_templates", "marketing.email_send",
	"marketing.campaigns",

	"users.view", "users.create", "users.edit", "users.delete",
	"users.assign_roles", "users.manage_permissions", "users.impersonate",

	"settings.view", "settings.edit", "settings.integrations",
	"settings.notifications", "settings.api_keys", "settings.backup",

	"system.view_logs", "system.export_logs", "system.view_health",
	"system.clear_cache", "system.manage_jobs", "system.view_audit",

	"reports.view", "reports.bookings", "reports.revenue", "reports.customers",
	"reports.export", "reports.schedule",
}

func fullMatrix() map[string]bool {
	m := make(map[string]bool, len(flagKeys))
	for _, k := range flagKeys {
		m[k] = true
	}
	return m
}

func emptyMatrix() map[string]bool {
	m := make(map[string]bool, len(flagKeys))
	for _, k := range flagKeys {
		m[k] = false
	}
	return m
}

// matrixWith enables every flag in the named groups plus any extra keys.
func matrixWith(groups []string, extra ...string) map[string]bool {
	m := emptyMatrix()
	for _, k := range flagKeys {
		for _, g := range groups {
			if strings.HasPrefix(k, g+".") {
				m[k] = true
			}
		}
	}
	for _, k := range extra {
		m[k] = true
	}
	return m
}

func matrixWithout(keys ...string) map[string]bool {
	m := fullMatrix()
	for _, k := range keys {
		m[k] = false
	}
	return m
}

var roleCatalog = map[Role]RoleProfile{
	RoleSuperAdmin: {
		Role:        RoleSuperAdmin,
		Label:       "Super Admin",
		Description: "Unrestricted access to every capability",
		Level:       100,
		CanCreate:   []Role{RoleAdmin, RoleSupport, RoleAccountant, RoleDeveloper, RoleCustomer, RoleGuest},
		Flags:       fullMatrix(),
	},
	RoleAdmin: {
		Role:        RoleAdmin,
		Label:       "Admin",
		Description: "Day-to-day administration of the back office",
		Level:       80,
		CanCreate:   []Role{RoleSupport, RoleAccountant, RoleDeveloper, RoleCustomer, RoleGuest},
		Flags:       matrixWithout("users.impersonate", "settings.backup", "system.clear_cache"),
	},
	RoleSupport: {
		Role:        RoleSupport,
		Label:       "Support",
		Description: "Handles bookings and customer enquiries",
		Level:       60,
		CanCreate:   []Role{RoleCustomer, RoleGuest},
		Flags: matrixWith([]string{"bookings", "customers"},
			"tours.view", "reports.view", "reports.bookings", "system.view_health"),
	},
	RoleAccountant: {
		Role:        RoleAccountant,
		Label:       "Accountant",
		Description: "Finance operations and revenue reporting",
		Level:       50,
		CanCreate:   nil,
		Flags: matrixWith([]string{"finance", "reports"},
			"bookings.view", "bookings.export", "customers.view"),
	},
	RoleDeveloper: {
		Role:        RoleDeveloper,
		Label:       "Developer",
		Description: "Platform maintenance, integrations and diagnostics",
		Level:       40,
		CanCreate:   nil,
		Flags: matrixWith([]string{"system"},
			"settings.view", "settings.integrations", "settings.api_keys",
			"reports.view", "reports.export"),
	},
	RoleCustomer: {
		Role:        RoleCustomer,
		Label:       "Customer",
		Description: "Self-service portal account",
		Level:       20,
		CanCreate:   nil,
		Flags:       matrixWith(nil, "bookings.view"),
	},
	RoleGuest: {
		Role:        RoleGuest,
		Label:       "Guest",
		Description: "Unauthenticated visitor",
		Level:       10,
		CanCreate:   nil,
		Flags:       emptyMatrix(),
	},
}

// roleDefaultModules lists the module areas a fresh profile is seeded with.
var roleDefaultModules = map[Role][]Module{
	RoleSuperAdmin: {ModuleBooking, ModuleCustomer, ModuleMarketing, ModuleFinance, ModuleTools, ModuleSettings, ModuleUserManagement, ModuleReports},
	RoleAdmin:      {ModuleBooking, ModuleCustomer, ModuleMarketing, ModuleFinance, ModuleTools, ModuleSettings, ModuleUserManagement, ModuleReports},
	RoleSupport:    {ModuleBooking, ModuleCustomer, ModuleTools},
	RoleAccountant: {ModuleFinance, ModuleReports, ModuleBooking},
	RoleDeveloper:  {ModuleTools, ModuleSettings, ModuleReports},
	RoleCustomer:   {ModuleBooking},
	RoleGuest:      nil,
}

func init() {
	keys := make(map[string]struct{}, len(flagKeys))
	for _, k := range flagKeys {
		keys[k] = struct{}{}
	}
	for role, profile := range roleCatalog {
		if len(profile.Flags) != len(flagKeys) {
			panic(fmt.Sprintf("permissions: role %q has %d flags, want %d", role, len(profile.Flags), len(flagKeys)))
		}
		for k := range profile.Flags {
			if _, ok := keys[k]; !ok {
				panic(fmt.Sprintf("permissions: role %q has unknown flag %q", role, k))
			}
		}
	}
}

// LookupRole returns the static profile of a role.
func LookupRole(r Role) (RoleProfile, error) {
	profile, ok := roleCatalog[r]
	if !ok {
		return RoleProfile{}, fmt.Errorf("%w: %q", ErrUnknownRole, r)
	}
	return profile, nil
}

// KnownRole reports whether r is part of the catalog.
func KnownRole(r Role) bool {
	_, ok := roleCatalog[r]
	return ok
}

// Roles lists the catalog ordered by descending authority level.
func Roles() []RoleProfile {
	out := make([]RoleProfile, 0, len(roleCatalog))
	for _, p := range roleCatalog {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Level > out[j].Level })
	return out
}

// CanCreateRole reports whether actor may create accounts with the target role.
func CanCreateRole(actor, target Role) bool {
	profile, ok := roleCatalog[actor]
	if !ok {
		return false
	}
	for _, r := range profile.CanCreate {
		if r == target {
			return true
		}
	}
	return false
}

// CompareRoles orders roles by authority level: -1 when a is lower than b,
// 0 when equal, 1 when higher.
func CompareRoles(a, b Role) int {
	pa, pb := roleCatalog[a], roleCatalog[b]
	switch {
	case pa.Level < pb.Level:
		return -1
	case pa.Level > pb.Level:
		return 1
	default:
		return 0
	}
}

// DefaultModules builds the standing grants a fresh profile starts with:
// View, Create and Edit on each of the role's default modules, intersected
// with what the module actually supports.
func DefaultModules(r Role) ([]ModuleGrant, error) {
	if !KnownRole(r) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRole, r)
	}
	seeded := []Action{ActionView, ActionCreate, ActionEdit}
	grants := make([]ModuleGrant, 0, len(roleDefaultModules[r]))
	for _, m := range roleDefaultModules[r] {
		actions := make([]Action, 0, len(seeded))
		for _, a := range seeded {
			if ActionAvailable(m, a) {
				actions = append(actions, a)
			}
		}
		grants = append(grants, ModuleGrant{Module: m, Actions: actions, Enabled: true})
	}
	return grants, nil
}
