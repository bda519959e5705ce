package permissions

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/voyagedesk/voyagedesk/internal/observability"
	"github.com/voyagedesk/voyagedesk/internal/shared"
)

// ProfileSource loads the profile the guards evaluate against.
type ProfileSource interface {
	Get(ctx context.Context, userID string) (*UserProfile, error)
}

// Guard wires permission checks into the HTTP middleware chain. It reads a
// consistent profile snapshot per request and never mutates anything.
type Guard struct {
	Profiles ProfileSource
	Logger   *slog.Logger
	Metrics  *observability.Metrics
}

// RequireAction ensures the current admin may perform the action on the
// module before the request reaches the handler.
func (g Guard) RequireAction(m Module, a Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := shared.ActorFromContext(r.Context())
			if actor == "" {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			profile, err := g.Profiles.Get(r.Context(), actor)
			if err != nil {
				if g.Logger != nil {
					g.Logger.Error("guard load profile", slog.String("actor", actor), slog.Any("error", err))
				}
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			decision, err := HasAction(profile, m, a, time.Now())
			if err != nil {
				if g.Logger != nil {
					g.Logger.Error("guard evaluate", slog.Any("error", err))
				}
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			g.Metrics.ObserveDecision(string(m), decision.Allowed)
			if !decision.Allowed {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireModule ensures the current admin can reach the module at all.
func (g Guard) RequireModule(m Module) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := shared.ActorFromContext(r.Context())
			if actor == "" {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			profile, err := g.Profiles.Get(r.Context(), actor)
			if err != nil {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			if !HasModuleAccess(profile, m, time.Now()) {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
