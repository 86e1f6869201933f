package auth

import (
	"log/slog"
	"net/http"

	"github.com/forecourt-io/forecourt/internal/platform/httpx"
	"github.com/forecourt-io/forecourt/internal/shared"
)

// Middleware resolves the bearer token into an Actor on the request context.
// Requests without a valid session are rejected before reaching the core.
type Middleware struct {
	Sessions *shared.SessionManager
	Logger   *slog.Logger
}

// Require rejects unauthenticated requests.
func (m Middleware) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := BearerToken(r)
		if token == "" {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing bearer token")
			return
		}
		actor, err := m.Sessions.Resolve(r.Context(), token)
		if err != nil {
			if m.Logger != nil {
				m.Logger.Debug("resolve session", slog.Any("error", err))
			}
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid or expired session")
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), actor)))
	})
}
