package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sakif/contacts-api/internal/apperror"
	"github.com/sakif/contacts-api/internal/model"
)

// contextKey is the type of this package's context keys.
//
// WHY A CUSTOM TYPE FOR CONTEXT KEYS?
// context.WithValue compares keys by type and value. A plain string key like
// "principal" could be read or shadowed by any package that picks the same
// string. Only this package can build a contextKey, so only this package can
// store or read the principal.
type contextKey string

const principalKey contextKey = "principal"

// Resolver turns a bearer token into the authenticated principal.
type Resolver interface {
	Resolve(ctx context.Context, bearer string) (*model.Principal, error)
}

// RequireAuth rejects requests without a valid "Authorization: Bearer"
// header and stores the resolved principal in the request context.
//
// Domain failures answer 401 with a WWW-Authenticate challenge. Anything
// else (the database being down, say) is a 500.
//
// MIDDLEWARE PATTERN:
// A middleware takes the next handler and returns one that wraps it. It may
// stop the chain by writing a response and returning, or continue with
// next.ServeHTTP, optionally passing a request with a richer context:
//
//	r.Group(func(r chi.Router) {
//		r.Use(auth.RequireAuth(resolver, logger))
//		r.Get("/users/me", h.Me)
//	})
func RequireAuth(resolver Resolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				unauthorized(w)
				return
			}

			principal, err := resolver.Resolve(r.Context(), token)
			if err != nil {
				var appErr *apperror.AppError
				if errors.As(err, &appErr) {
					unauthorized(w)
					return
				}
				logger.ErrorContext(r.Context(), "resolving principal", "error", err)
				writeError(w, http.StatusInternalServerError, "internal_error", "an unexpected error occurred")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}

// RequireRole must run after RequireAuth. It answers 403 unless the
// principal has the given role.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				unauthorized(w)
				return
			}
			if p.Role != role {
				writeError(w, http.StatusForbidden, "forbidden", role+" access required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *model.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the principal stored by RequireAuth.
func PrincipalFromContext(ctx context.Context) (*model.Principal, bool) {
	p, ok := ctx.Value(principalKey).(*model.Principal)
	return p, ok && p != nil
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header. The scheme is matched case-insensitively.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeError(w, http.StatusUnauthorized, "unauthorized", apperror.Unauthenticated().Message)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code, "message": message})
}
