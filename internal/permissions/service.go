package permissions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/voyagedesk/voyagedesk/internal/audit"
)

// Repository owns durability for permission profiles. Save performs an
// optimistic compare-and-swap on the profile version so concurrent mutations
// to the same user surface as ErrVersionConflict instead of lost updates.
type Repository interface {
	Get(ctx context.Context, userID string) (*UserProfile, error)
	Create(ctx context.Context, profile *UserProfile) error
	Save(ctx context.Context, profile *UserProfile) error
}

// Invalidator drops cached copies of a profile after a mutation.
type Invalidator interface {
	Invalidate(ctx context.Context, userID string) error
}

// ServiceConfig collects the service dependencies.
type ServiceConfig struct {
	Repo      Repository
	Audit     audit.Recorder
	Templates TemplateStore
	Cache     Invalidator
	// Now is the clock source; defaults to time.Now.
	Now func() time.Time
	// AuditExpiredCleanup controls whether CleanupExpired appends audit
	// entries for the grants it purges.
	AuditExpiredCleanup bool
}

// Service applies grant/revoke/template mutations to permission profiles.
// Every mutation persists a fresh profile value and appends exactly one
// audit entry; callers never observe partial updates.
type Service struct {
	repo         Repository
	audit        audit.Recorder
	templates    TemplateStore
	cache        Invalidator
	now          func() time.Time
	auditCleanup bool
}

// NewService constructs a Service.
func NewService(cfg ServiceConfig) *Service {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	templates := cfg.Templates
	if templates == nil {
		templates = NewMemoryTemplateStore()
	}
	return &Service{
		repo:         cfg.Repo,
		audit:        cfg.Audit,
		templates:    templates,
		cache:        cfg.Cache,
		now:          now,
		auditCleanup: cfg.AuditExpiredCleanup,
	}
}

// GetProfile loads a profile from the backing store.
func (s *Service) GetProfile(ctx context.Context, userID string) (*UserProfile, error) {
	return s.repo.Get(ctx, userID)
}

// CreateProfile seeds a new profile from the role's default module list.
func (s *Service) CreateProfile(ctx context.Context, userID string, role Role, createdBy string) (*UserProfile, error) {
	modules, err := DefaultModules(role)
	if err != nil {
		return nil, err
	}
	now := s.now()
	profile := &UserProfile{
		UserID:       userID,
		Role:         role,
		Modules:      modules,
		CustomGrants: []CustomGrant{},
		Version:      1,
		LastUpdated:  now,
		UpdatedBy:    createdBy,
	}
	if err := s.repo.Create(ctx, profile); err != nil {
		return nil, err
	}
	err = s.record(ctx, audit.Entry{
		UserID:      userID,
		Action:      audit.ActionUpdated,
		Module:      "profile",
		Actions:     moduleNames(modules),
		PerformedBy: createdBy,
		PerformedAt: now,
		Reason:      fmt.Sprintf("profile created from %s defaults", role),
	})
	if err != nil {
		return nil, err
	}
	return profile, nil
}

// GrantTemporaryAccess appends a time-bounded custom grant. Overlapping
// grants for the same module may coexist; evaluation unions all of them.
func (s *Service) GrantTemporaryAccess(ctx context.Context, userID string, m Module, actions []Action, duration time.Duration, reason, grantedBy string) (*UserProfile, error) {
	actions = normalizeActions(actions)
	if err := ValidateActions(m, actions); err != nil {
		return nil, err
	}
	profile, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	expiresAt := now.Add(duration)
	next := profile.Clone()
	next.CustomGrants = append(next.CustomGrants, CustomGrant{
		ID:        uuid.NewString(),
		Module:    m,
		Actions:   actions,
		ExpiresAt: &expiresAt,
		GrantedBy: grantedBy,
		GrantedAt: now,
		Reason:    reason,
	})
	if err := s.save(ctx, next, now, grantedBy); err != nil {
		return nil, err
	}
	err = s.record(ctx, audit.Entry{
		UserID:      userID,
		Action:      audit.ActionGranted,
		Module:      string(m),
		Actions:     actionNames(actions),
		PerformedBy: grantedBy,
		PerformedAt: now,
		Reason:      reason,
		ExpiresAt:   &expiresAt,
	})
	if err != nil {
		return nil, err
	}
	return next, nil
}

// RevokeAccess removes both permission layers for a module: the standing
// grant and every custom grant. There is deliberately no per-action revoke.
func (s *Service) RevokeAccess(ctx context.Context, userID string, m Module, revokedBy string) (*UserProfile, error) {
	if !KnownModule(m) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModule, m)
	}
	profile, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	next := profile.Clone()
	var revoked []Action
	modules := next.Modules[:0]
	for _, g := range next.Modules {
		if g.Module == m {
			revoked = append(revoked, g.Actions...)
			continue
		}
		modules = append(modules, g)
	}
	next.Modules = modules
	custom := next.CustomGrants[:0]
	for _, g := range next.CustomGrants {
		if g.Module == m {
			revoked = append(revoked, g.Actions...)
			continue
		}
		custom = append(custom, g)
	}
	next.CustomGrants = custom
	if err := s.save(ctx, next, now, revokedBy); err != nil {
		return nil, err
	}
	err = s.record(ctx, audit.Entry{
		UserID:      userID,
		Action:      audit.ActionRevoked,
		Module:      string(m),
		Actions:     actionNames(normalizeActions(revoked)),
		PerformedBy: revokedBy,
		PerformedAt: now,
	})
	if err != nil {
		return nil, err
	}
	return next, nil
}

// ApplyTemplate replaces the standing grants wholesale with the template's
// bundle. Custom grants are untouched. Applying the same template twice is
// idempotent over the modules list.
func (s *Service) ApplyTemplate(ctx context.Context, userID, templateName, appliedBy string) (*UserProfile, error) {
	template, err := s.templates.Get(ctx, templateName)
	if err != nil {
		return nil, err
	}
	profile, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	next := profile.Clone()
	next.Modules = cloneGrants(template.Modules)
	if err := s.save(ctx, next, now, appliedBy); err != nil {
		return nil, err
	}
	err = s.record(ctx, audit.Entry{
		UserID:      userID,
		Action:      audit.ActionUpdated,
		Module:      "profile",
		Actions:     moduleNames(template.Modules),
		PerformedBy: appliedBy,
		PerformedAt: now,
		Reason:      template.Name,
	})
	if err != nil {
		return nil, err
	}
	return next, nil
}

// UpdatePermissions replaces both layers at once.
func (s *Service) UpdatePermissions(ctx context.Context, userID string, modules []ModuleGrant, custom []CustomGrant, updatedBy string) (*UserProfile, error) {
	for _, g := range modules {
		if err := ValidateActions(g.Module, g.Actions); err != nil {
			return nil, err
		}
	}
	for _, g := range custom {
		if err := ValidateActions(g.Module, g.Actions); err != nil {
			return nil, err
		}
	}
	profile, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	next := profile.Clone()
	next.Modules = cloneGrants(modules)
	next.CustomGrants = cloneCustomGrants(custom, now, updatedBy)
	if err := s.save(ctx, next, now, updatedBy); err != nil {
		return nil, err
	}
	err = s.record(ctx, audit.Entry{
		UserID:      userID,
		Action:      audit.ActionUpdated,
		Module:      "profile",
		Actions:     moduleNames(modules),
		PerformedBy: updatedBy,
		PerformedAt: now,
	})
	if err != nil {
		return nil, err
	}
	return next, nil
}

// CleanupExpired drops inert custom grants from storage. Returns the fresh
// profile and how many grants were removed. Audit behavior follows the
// service configuration; when enabled, one entry per swept module.
func (s *Service) CleanupExpired(ctx context.Context, userID, performedBy string) (*UserProfile, int, error) {
	profile, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	now := s.now()
	next := profile.Clone()
	expiredByModule := make(map[Module][]Action)
	kept := next.CustomGrants[:0]
	for _, g := range next.CustomGrants {
		if g.Expired(now) {
			expiredByModule[g.Module] = append(expiredByModule[g.Module], g.Actions...)
			continue
		}
		kept = append(kept, g)
	}
	removed := len(next.CustomGrants) - len(kept)
	if removed == 0 {
		return profile, 0, nil
	}
	next.CustomGrants = kept
	if err := s.save(ctx, next, now, performedBy); err != nil {
		return nil, 0, err
	}
	if s.auditCleanup {
		for _, info := range Modules() {
			actions, ok := expiredByModule[info.Module]
			if !ok {
				continue
			}
			err := s.record(ctx, audit.Entry{
				UserID:      userID,
				Action:      audit.ActionExpired,
				Module:      string(info.Module),
				Actions:     actionNames(normalizeActions(actions)),
				PerformedBy: performedBy,
				PerformedAt: now,
				Reason:      "expired grant cleanup",
			})
			if err != nil {
				return nil, 0, err
			}
		}
	}
	return next, removed, nil
}

// Templates lists the known permission templates.
func (s *Service) Templates(ctx context.Context) ([]Template, error) {
	return s.templates.List(ctx)
}

func (s *Service) save(ctx context.Context, profile *UserProfile, now time.Time, actor string) error {
	profile.LastUpdated = now
	profile.UpdatedBy = actor
	if err := s.repo.Save(ctx, profile); err != nil {
		return err
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, profile.UserID); err != nil {
			return fmt.Errorf("permissions: invalidate cache: %w", err)
		}
	}
	return nil
}

func (s *Service) record(ctx context.Context, entry audit.Entry) error {
	if s.audit == nil {
		return nil
	}
	return s.audit.Record(ctx, entry)
}

func cloneGrants(grants []ModuleGrant) []ModuleGrant {
	out := make([]ModuleGrant, len(grants))
	for i, g := range grants {
		g.Actions = normalizeActions(g.Actions)
		out[i] = g
	}
	return out
}

// cloneCustomGrants fills in ids and bookkeeping for grants supplied by a
// full update, preserving fields the caller already set.
func cloneCustomGrants(grants []CustomGrant, now time.Time, actor string) []CustomGrant {
	out := make([]CustomGrant, len(grants))
	for i, g := range grants {
		g.Actions = normalizeActions(g.Actions)
		if g.ID == "" {
			g.ID = uuid.NewString()
		}
		if g.GrantedAt.IsZero() {
			g.GrantedAt = now
		}
		if g.GrantedBy == "" {
			g.GrantedBy = actor
		}
		if g.ExpiresAt != nil {
			exp := *g.ExpiresAt
			g.ExpiresAt = &exp
		}
		out[i] = g
	}
	return out
}

func actionNames(actions []Action) []string {
	out := make([]string, len(actions))
	for i, a := range actions {
		out[i] = string(a)
	}
	return out
}

func moduleNames(grants []ModuleGrant) []string {
	out := make([]string, 0, len(grants))
	for _, g := range grants {
		out = append(out, string(g.Module))
	}
	return out
}
