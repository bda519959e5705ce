package permissions

import (
	"fmt"
	"sort"
	"time"
)

// Decision is the outcome of an action permission check. Denial is a value,
// not an error: callers branch on Allowed and surface Reason to the UI.
// ExpiresAt is set when the allow came from a temporary grant.
type Decision struct {
	Allowed   bool       `json:"allowed"`
	Reason    string     `json:"reason,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

const (
	reasonNoModuleAccess     = "no module access"
	reasonActionNotPermitted = "action not permitted"
)

// Every evaluation function takes an explicit instant so a single query sees
// one consistent "now". Callers snapshot time.Now() once per request.

// HasModuleAccess reports whether the profile can reach the module at all:
// an enabled standing grant or any non-expired custom grant suffices.
func HasModuleAccess(p *UserProfile, m Module, at time.Time) bool {
	if p == nil {
		return false
	}
	if g, ok := p.moduleGrant(m); ok && g.Enabled {
		return true
	}
	for _, g := range p.CustomGrants {
		if g.Module == m && !g.Expired(at) {
			return true
		}
	}
	return false
}

// HasAction decides a (module, action) query. Standing and custom grants are
// an additive union: a custom grant never revokes a standing one. Asking
// about an action the module does not support is a programming error and
// fails loudly rather than returning a denial.
func HasAction(p *UserProfile, m Module, a Action, at time.Time) (Decision, error) {
	if !KnownModule(m) {
		return Decision{}, fmt.Errorf("%w: %q", ErrUnknownModule, m)
	}
	if !ActionAvailable(m, a) {
		return Decision{}, fmt.Errorf("%w: %q on %q", ErrInvalidAction, a, m)
	}
	if !HasModuleAccess(p, m, at) {
		return Decision{Reason: reasonNoModuleAccess}, nil
	}
	if g, ok := p.moduleGrant(m); ok && g.Enabled && grantsAction(g.Actions, a) {
		return Decision{Allowed: true}, nil
	}
	var earliest *time.Time
	matched := false
	for _, g := range p.CustomGrants {
		if g.Module != m || g.Expired(at) || !grantsAction(g.Actions, a) {
			continue
		}
		matched = true
		if g.ExpiresAt == nil {
			earliest = nil
			break
		}
		if earliest == nil || g.ExpiresAt.Before(*earliest) {
			exp := *g.ExpiresAt
			earliest = &exp
		}
	}
	if matched {
		return Decision{Allowed: true, ExpiresAt: earliest}, nil
	}
	return Decision{Reason: reasonActionNotPermitted}, nil
}

// HasAllActions reports whether every listed action is allowed.
func HasAllActions(p *UserProfile, m Module, actions []Action, at time.Time) (bool, error) {
	for _, a := range actions {
		d, err := HasAction(p, m, a, at)
		if err != nil {
			return false, err
		}
		if !d.Allowed {
			return false, nil
		}
	}
	return true, nil
}

// HasAnyAction reports whether at least one listed action is allowed.
func HasAnyAction(p *UserProfile, m Module, actions []Action, at time.Time) (bool, error) {
	for _, a := range actions {
		d, err := HasAction(p, m, a, at)
		if err != nil {
			return false, err
		}
		if d.Allowed {
			return true, nil
		}
	}
	return false, nil
}

// AccessibleModules returns the modules the profile can reach at the given
// instant, in taxonomy order.
func AccessibleModules(p *UserProfile, at time.Time) []Module {
	out := make([]Module, 0, len(moduleCatalog))
	for _, info := range Modules() {
		if HasModuleAccess(p, info.Module, at) {
			out = append(out, info.Module)
		}
	}
	return out
}

// AvailableActions unions the enabled standing grant's actions with those of
// every non-expired custom grant for the module. Manage expands to the full
// set the module supports.
func AvailableActions(p *UserProfile, m Module, at time.Time) ([]Action, error) {
	info, err := Info(m)
	if err != nil {
		return nil, err
	}
	union := make(map[Action]struct{})
	if g, ok := p.moduleGrant(m); ok && g.Enabled {
		collectActions(union, g.Actions, info.AvailableActions)
	}
	for _, g := range p.CustomGrants {
		if g.Module == m && !g.Expired(at) {
			collectActions(union, g.Actions, info.AvailableActions)
		}
	}
	out := make([]Action, 0, len(union))
	for _, a := range info.AvailableActions {
		if _, ok := union[a]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

// ExpiringGrants returns custom grants that are still live but expire within
// the window, soonest first.
func ExpiringGrants(p *UserProfile, within time.Duration, at time.Time) []CustomGrant {
	cutoff := at.Add(within)
	var out []CustomGrant
	for _, g := range p.CustomGrants {
		if g.ExpiresAt == nil || g.Expired(at) {
			continue
		}
		if !g.ExpiresAt.After(cutoff) {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(*out[j].ExpiresAt) })
	return out
}

// ExpiredGrants returns custom grants that are already inert.
func ExpiredGrants(p *UserProfile, at time.Time) []CustomGrant {
	var out []CustomGrant
	for _, g := range p.CustomGrants {
		if g.Expired(at) {
			out = append(out, g)
		}
	}
	return out
}

// grantsAction reports whether the action list covers a, directly or via Manage.
func grantsAction(actions []Action, a Action) bool {
	for _, candidate := range actions {
		if candidate == a || candidate == ActionManage {
			return true
		}
	}
	return false
}

func collectActions(into map[Action]struct{}, actions, available []Action) {
	for _, a := range actions {
		if a == ActionManage {
			for _, expanded := range available {
				into[expanded] = struct{}{}
			}
			return
		}
		into[a] = struct{}{}
	}
}
