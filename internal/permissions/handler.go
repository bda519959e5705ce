package permissions

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/voyagedesk/voyagedesk/internal/platform/httpx"
	"github.com/voyagedesk/voyagedesk/internal/shared"
)

// IdempotencyStore dedupes mutation retries by client-provided key.
type IdempotencyStore interface {
	CheckAndInsert(ctx context.Context, key, scope string) error
	Delete(ctx context.Context, key string) error
}

// Handler exposes the permission admin API.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	profiles  ProfileSource
	idem      IdempotencyStore
	guard     Guard
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, profiles ProfileSource, idem IdempotencyStore, guard Guard) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		profiles:  profiles,
		idem:      idem,
		guard:     guard,
		validator: validator.New(),
	}
}

// MountRoutes registers the permission routes. Reading profiles needs the
// View capability on user management; mutating them needs Edit and rides a
// tighter rate limit.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/permissions/{userID}", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.guard.RequireAction(ModuleUserManagement, ActionView))
			r.Get("/", h.getProfile)
			r.Get("/check", h.check)
			r.Get("/modules", h.accessibleModules)
			r.Get("/expiring", h.expiring)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.guard.RequireAction(ModuleUserManagement, ActionEdit))
			r.Use(httprate.LimitByIP(60, time.Minute))
			r.Post("/", h.createProfile)
			r.Put("/", h.updatePermissions)
			r.Post("/grants", h.grantTemporary)
			r.Delete("/modules/{module}", h.revoke)
			r.Post("/template", h.applyTemplate)
		})
	})
	r.Route("/meta", func(r chi.Router) {
		r.Use(h.guard.RequireAction(ModuleUserManagement, ActionView))
		r.Get("/modules", h.listModules)
		r.Get("/roles", h.listRoles)
		r.Get("/templates", h.listTemplates)
	})
}

type createProfileRequest struct {
	Role string `json:"role" validate:"required"`
}

func (h *Handler) createProfile(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	var req createProfileRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	profile, err := h.service.CreateProfile(r.Context(), userID, Role(req.Role), shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, profile)
}

func (h *Handler) getProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.profiles.Get(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, profile)
}

func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	profile, err := h.profiles.Get(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	module := Module(r.URL.Query().Get("module"))
	action := Action(r.URL.Query().Get("action"))
	decision, err := HasAction(profile, module, action, time.Now())
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, decision)
}

type accessibleModulesResponse struct {
	Modules []Module            `json:"modules"`
	Actions map[Module][]Action `json:"actions"`
}

func (h *Handler) accessibleModules(w http.ResponseWriter, r *http.Request) {
	profile, err := h.profiles.Get(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	now := time.Now()
	modules := AccessibleModules(profile, now)
	actions := make(map[Module][]Action, len(modules))
	for _, m := range modules {
		available, err := AvailableActions(profile, m, now)
		if err != nil {
			h.respondError(w, err)
			return
		}
		actions[m] = available
	}
	httpx.JSON(w, http.StatusOK, accessibleModulesResponse{Modules: modules, Actions: actions})
}

func (h *Handler) expiring(w http.ResponseWriter, r *http.Request) {
	profile, err := h.profiles.Get(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	withinHours := 24
	if raw := r.URL.Query().Get("withinHours"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "withinHours must be a positive integer")
			return
		}
		withinHours = parsed
	}
	grants := ExpiringGrants(profile, time.Duration(withinHours)*time.Hour, time.Now())
	if grants == nil {
		grants = []CustomGrant{}
	}
	httpx.JSON(w, http.StatusOK, grants)
}

type grantRequest struct {
	Module        string   `json:"module" validate:"required"`
	Actions       []string `json:"actions" validate:"required,min=1"`
	DurationHours int      `json:"durationHours" validate:"required,gt=0"`
	Reason        string   `json:"reason"`
}

func (h *Handler) grantTemporary(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	var req grantRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	// Grants append audit entries, so retried requests must be deduped
	// before the mutation happens.
	key := r.Header.Get("Idempotency-Key")
	insertedKey := false
	if key != "" && h.idem != nil {
		if err := h.idem.CheckAndInsert(r.Context(), key, "permissions.grant"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				httpx.Problem(w, http.StatusConflict, "Duplicate", "request already processed")
				return
			}
			h.respondError(w, err)
			return
		}
		insertedKey = true
	}
	actions := make([]Action, len(req.Actions))
	for i, a := range req.Actions {
		actions[i] = Action(a)
	}
	profile, err := retryOnConflict(func() (*UserProfile, error) {
		return h.service.GrantTemporaryAccess(
			r.Context(), userID, Module(req.Module), actions,
			time.Duration(req.DurationHours)*time.Hour,
			req.Reason, shared.ActorFromContext(r.Context()))
	})
	if err != nil {
		// An unapplied grant must stay retryable under the same key.
		if insertedKey {
			_ = h.idem.Delete(r.Context(), key)
		}
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, profile)
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	profile, err := retryOnConflict(func() (*UserProfile, error) {
		return h.service.RevokeAccess(
			r.Context(), chi.URLParam(r, "userID"), Module(chi.URLParam(r, "module")),
			shared.ActorFromContext(r.Context()))
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, profile)
}

type applyTemplateRequest struct {
	Template string `json:"template" validate:"required"`
}

func (h *Handler) applyTemplate(w http.ResponseWriter, r *http.Request) {
	var req applyTemplateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	profile, err := retryOnConflict(func() (*UserProfile, error) {
		return h.service.ApplyTemplate(r.Context(), chi.URLParam(r, "userID"), req.Template, shared.ActorFromContext(r.Context()))
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, profile)
}

type updateRequest struct {
	Modules      []ModuleGrant `json:"modules" validate:"required"`
	CustomGrants []CustomGrant `json:"customPermissions"`
}

type updateResponse struct {
	Profile *UserProfile `json:"profile"`
	Diff    DiffReport   `json:"diff"`
}

func (h *Handler) updatePermissions(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	var req updateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	before, err := h.service.GetProfile(r.Context(), userID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	profile, err := retryOnConflict(func() (*UserProfile, error) {
		return h.service.UpdatePermissions(r.Context(), userID, req.Modules, req.CustomGrants, shared.ActorFromContext(r.Context()))
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updateResponse{Profile: profile, Diff: Diff(before, profile)})
}

func (h *Handler) listModules(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, Modules())
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, Roles())
}

func (h *Handler) listTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.service.Templates(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, templates)
}

// retryOnConflict re-runs a mutation once when a concurrent write bumped the
// profile version mid-flight. A second conflict surfaces to the client as 409.
func retryOnConflict(fn func() (*UserProfile, error)) (*UserProfile, error) {
	profile, err := fn()
	if errors.Is(err, ErrVersionConflict) {
		return fn()
	}
	return profile, err
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrUserNotFound), errors.Is(err, ErrTemplateNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrUnknownRole), errors.Is(err, ErrUnknownModule), errors.Is(err, ErrInvalidAction):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrProfileExists):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrVersionConflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", "profile changed concurrently, retry")
	default:
		h.logger.Error("permissions request failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
