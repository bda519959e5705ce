package permissions

import "time"

// ModuleGrant is a standing module-level permission, normally derived from
// the user's role but individually toggleable.
type ModuleGrant struct {
	Module  Module   `json:"module"`
	Actions []Action `json:"actions"`
	Enabled bool     `json:"enabled"`
}

// CustomGrant is a temporary or role-independent override layered on top of
// the standing grants. A populated ExpiresAt in the past makes the grant
// inert; it may linger in storage until an explicit cleanup.
type CustomGrant struct {
	ID        string     `json:"id"`
	Module    Module     `json:"module"`
	Actions   []Action   `json:"actions"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	GrantedBy string     `json:"grantedBy"`
	GrantedAt time.Time  `json:"grantedAt"`
	Reason    string     `json:"reason,omitempty"`
}

// Expired reports whether the grant is inert at the given instant.
func (g CustomGrant) Expired(at time.Time) bool {
	return g.ExpiresAt != nil && !g.ExpiresAt.After(at)
}

// UserProfile holds one user's complete permission state. Mutating services
// always return a fresh value; callers never see partial in-place updates.
type UserProfile struct {
	UserID       string        `json:"userId"`
	Role         Role          `json:"roleId"`
	Modules      []ModuleGrant `json:"modules"`
	CustomGrants []CustomGrant `json:"customPermissions"`
	Version      int64         `json:"version"`
	LastUpdated  time.Time     `json:"lastUpdated"`
	UpdatedBy    string        `json:"updatedBy,omitempty"`
}

// Clone deep-copies the profile so mutations never alias the input.
func (p *UserProfile) Clone() *UserProfile {
	if p == nil {
		return nil
	}
	out := *p
	out.Modules = make([]ModuleGrant, len(p.Modules))
	for i, g := range p.Modules {
		g.Actions = append([]Action(nil), g.Actions...)
		out.Modules[i] = g
	}
	out.CustomGrants = make([]CustomGrant, len(p.CustomGrants))
	for i, g := range p.CustomGrants {
		g.Actions = append([]Action(nil), g.Actions...)
		if g.ExpiresAt != nil {
			exp := *g.ExpiresAt
			g.ExpiresAt = &exp
		}
		out.CustomGrants[i] = g
	}
	return &out
}

// moduleGrant finds the standing grant for a module, if any.
func (p *UserProfile) moduleGrant(m Module) (ModuleGrant, bool) {
	for _, g := range p.Modules {
		if g.Module == m {
			return g, true
		}
	}
	return ModuleGrant{}, false
}

// Template is a named, reusable bundle of standing grants applicable to any
// user in one operation. Templates carry no per-user data.
type Template struct {
	Name    string        `json:"name"`
	Label   string        `json:"label"`
	Modules []ModuleGrant `json:"modules"`
}
