package permissions

import (
	"context"
	"fmt"
	"sort"
)

// TemplateStore resolves named permission templates.
type TemplateStore interface {
	Get(ctx context.Context, name string) (Template, error)
	List(ctx context.Context) ([]Template, error)
}

// BuiltinTemplates returns the predefined bundles shipped with the service.
// Admin-defined templates live in the repository-backed store; built-ins are
// merged in by MemoryTemplateStore and the SQL store alike.
func BuiltinTemplates() []Template {
	return []Template{
		{
			Name:  "support-basic",
			Label: "Support (basic)",
			Modules: []ModuleGrant{
				{Module: ModuleBooking, Actions: []Action{ActionView, ActionCreate, ActionEdit}, Enabled: true},
				{Module: ModuleCustomer, Actions: []Action{ActionView, ActionEdit}, Enabled: true},
				{Module: ModuleTools, Actions: []Action{ActionView}, Enabled: true},
			},
		},
		{
			Name:  "operations-full",
			Label: "Operations (full)",
			Modules: []ModuleGrant{
				{Module: ModuleBooking, Actions: []Action{ActionManage}, Enabled: true},
				{Module: ModuleCustomer, Actions: []Action{ActionManage}, Enabled: true},
				{Module: ModuleMarketing, Actions: []Action{ActionView, ActionCreate, ActionEdit}, Enabled: true},
				{Module: ModuleReports, Actions: []Action{ActionView, ActionExport}, Enabled: true},
				{Module: ModuleTools, Actions: []Action{ActionView, ActionManage}, Enabled: true},
			},
		},
		{
			Name:  "finance-readonly",
			Label: "Finance (read only)",
			Modules: []ModuleGrant{
				{Module: ModuleFinance, Actions: []Action{ActionView, ActionExport}, Enabled: true},
				{Module: ModuleReports, Actions: []Action{ActionView, ActionExport}, Enabled: true},
				{Module: ModuleBooking, Actions: []Action{ActionView}, Enabled: true},
			},
		},
	}
}

// MemoryTemplateStore serves templates from memory. Used by tests and as the
// fallback when no database-backed store is configured.
type MemoryTemplateStore struct {
	templates map[string]Template
}

// NewMemoryTemplateStore builds a store seeded with the built-ins plus extras.
func NewMemoryTemplateStore(extra ...Template) *MemoryTemplateStore {
	store := &MemoryTemplateStore{templates: make(map[string]Template)}
	for _, t := range BuiltinTemplates() {
		store.templates[t.Name] = t
	}
	for _, t := range extra {
		store.templates[t.Name] = t
	}
	return store
}

// Get resolves a template by name.
func (s *MemoryTemplateStore) Get(_ context.Context, name string) (Template, error) {
	t, ok := s.templates[name]
	if !ok {
		return Template{}, fmt.Errorf("%w: %q", ErrTemplateNotFound, name)
	}
	return t, nil
}

// List returns every known template in collated label order.
func (s *MemoryTemplateStore) List(_ context.Context) ([]Template, error) {
	out := make([]Template, 0, len(s.templates))
	for _, t := range s.templates {
		out = append(out, t)
	}
	sortTemplates(out)
	return out, nil
}

func sortTemplates(templates []Template) {
	sort.Slice(templates, func(i, j int) bool {
		return compareLabels(templates[i].Label, templates[j].Label) < 0
	})
}
