package permissions

// ModuleChange describes how one module's standing action set changed.
type ModuleChange struct {
	Module Module   `json:"module"`
	Before []Action `json:"before"`
	After  []Action `json:"after"`
}

// DiffReport is the set difference between two permission snapshots over
// their enabled standing grants.
type DiffReport struct {
	Added    []Module       `json:"added"`
	Removed  []Module       `json:"removed"`
	Modified []ModuleChange `json:"modified"`
}

// Diff compares enabled standing grants of two profiles: Added lists modules
// enabled only in the new profile, Removed only in the old, Modified those
// present in both with differing action sets. Custom grants are ignored —
// the diff reports administrative configuration, not temporary overrides.
func Diff(oldProfile, newProfile *UserProfile) DiffReport {
	oldGrants := enabledGrants(oldProfile)
	newGrants := enabledGrants(newProfile)

	report := DiffReport{}
	for _, info := range Modules() {
		m := info.Module
		before, inOld := oldGrants[m]
		after, inNew := newGrants[m]
		switch {
		case inNew && !inOld:
			report.Added = append(report.Added, m)
		case inOld && !inNew:
			report.Removed = append(report.Removed, m)
		case inOld && inNew && !sameActions(before, after):
			report.Modified = append(report.Modified, ModuleChange{Module: m, Before: before, After: after})
		}
	}
	return report
}

func enabledGrants(p *UserProfile) map[Module][]Action {
	out := make(map[Module][]Action)
	if p == nil {
		return out
	}
	for _, g := range p.Modules {
		if g.Enabled {
			out[g.Module] = normalizeActions(g.Actions)
		}
	}
	return out
}

func sameActions(a, b []Action) bool {
	if len(a) != len(b) {
		return false
	}
	set := actionSet(a)
	for _, action := range b {
		if _, ok := set[action]; !ok {
			return false
		}
	}
	return true
}
