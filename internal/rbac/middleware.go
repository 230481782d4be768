package rbac

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/trackline-erp/trackline/internal/platform/httpx"
	"github.com/trackline-erp/trackline/internal/shared"
)

// Middleware wires token authorization for HTTP handlers. Collaborator
// services identify their acting user with X-User-ID; privileged
// operations additionally present the admin bearer token, which is
// verified against a bcrypt hash so the clear token never sits in config
// files.
type Middleware struct {
	AdminTokenHash string // bcrypt hash of the admin bearer token
	Logger         *slog.Logger
}

// Authenticate resolves the acting user and elevation and stores both in
// the request context. It never rejects; route guards decide.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := shared.Actor{}
		if raw := strings.TrimSpace(r.Header.Get("X-User-ID")); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				if m.Logger != nil {
					m.Logger.Warn("rbac parse user id", slog.String("value", raw))
				}
			} else {
				actor.ID = id
			}
		}
		if token := bearerToken(r); token != "" && m.AdminTokenHash != "" {
			if bcrypt.CompareHashAndPassword([]byte(m.AdminTokenHash), []byte(token)) == nil {
				actor.Elevated = true
			} else if m.Logger != nil {
				m.Logger.Warn("rbac bad admin token", slog.String("path", r.URL.Path))
			}
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), actor)))
	})
}

// RequireElevated guards privileged, irreversible routes.
func (m Middleware) RequireElevated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := shared.ActorFromContext(r.Context())
		if !actor.Elevated {
			if m.Logger != nil {
				m.Logger.Warn("rbac forbidden", slog.String("path", r.URL.Path), slog.Int64("actor_id", actor.ID))
			}
			httpx.RespondError(w, shared.ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireUser guards routes that need an identified acting user.
func (m Middleware) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if shared.ActorFromContext(r.Context()).ID == 0 {
			httpx.RespondError(w, shared.ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) > len(prefix) && strings.EqualFold(auth[:len(prefix)], prefix) {
		return strings.TrimSpace(auth[len(prefix):])
	}
	return ""
}
