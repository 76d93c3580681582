package auth

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/JaimeStill/tally/pkg/handlers"
)

// Middleware resolves the request Scope from the gateway headers, verifies
// membership, and stores the Scope on the request context.
// Requests without a valid scope are rejected with 401; non-members with 403.
func Middleware(resolver Resolver, logger *slog.Logger) func(http.Handler) http.Handler {
	logger = logger.With("middleware", "auth")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenant, err := uuid.Parse(r.Header.Get(HeaderTenant))
			scope := Scope{TenantID: tenant, ActorID: r.Header.Get(HeaderActor)}
			if err != nil || scope.Validate() != nil {
				handlers.RespondError(w, logger, http.StatusUnauthorized, ErrMissingScope)
				return
			}

			ok, err := resolver.IsMember(r.Context(), scope.TenantID, scope.ActorID)
			if err != nil {
				handlers.RespondError(w, logger, http.StatusInternalServerError, err)
				return
			}
			if !ok {
				handlers.RespondError(w, logger, http.StatusForbidden, ErrForbidden)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithScope(r.Context(), scope)))
		})
	}
}

// Require extracts the Scope placed by Middleware. Handlers call it first and
// return when ok is false; the 401 response has already been written.
func Require(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (Scope, bool) {
	s, ok := FromContext(r.Context())
	if !ok {
		handlers.RespondError(w, logger, http.StatusUnauthorized, ErrMissingScope)
		return Scope{}, false
	}
	return s, true
}
