package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/solarafrica/solarplanner/internal/storage"
)

type contextKey string

const (
	TokenContextKey contextKey = "token"
)

// DenyFunc writes an error response for a rejected request.
type DenyFunc func(w http.ResponseWriter, r *http.Request, status int, msg string)

func plainDeny(w http.ResponseWriter, _ *http.Request, status int, msg string) {
	http.Error(w, msg, status)
}

// TokenFromContext returns the validated token attached by Middleware.
func TokenFromContext(ctx context.Context) (*storage.Token, bool) {
	t, ok := ctx.Value(TokenContextKey).(*storage.Token)
	return t, ok && t != nil
}

// UserID returns the authenticated user's id, or "" for anonymous requests.
func UserID(ctx context.Context) string {
	if t, ok := TokenFromContext(ctx); ok {
		return t.UserID
	}
	return ""
}

// Middleware attaches the bearer token to the request context when one is
// sent. Requests without an Authorization header pass through anonymously;
// a malformed or unknown token is rejected.
func (s *Service) Middleware(deny DenyFunc) func(http.Handler) http.Handler {
	if deny == nil {
		deny = plainDeny
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				next.ServeHTTP(w, r)
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				deny(w, r, http.StatusUnauthorized, "Invalid authorization header")
				return
			}

			token, err := s.ValidateToken(r.Context(), parts[1])
			switch {
			case errors.Is(err, ErrInvalidToken), errors.Is(err, ErrTokenExpired):
				deny(w, r, http.StatusUnauthorized, "Invalid or expired token")
				return
			case err != nil:
				zerolog.Ctx(r.Context()).Error().Err(err).Msg("token lookup failed")
				deny(w, r, http.StatusInternalServerError, "Internal server error")
				return
			}

			ctx := context.WithValue(r.Context(), TokenContextKey, token)
			logger := zerolog.Ctx(ctx).With().Str("user_id", token.UserID).Logger()
			ctx = logger.WithContext(ctx)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePermission rejects anonymous requests with 401 and requests whose
// user may not perform act on obj with 403.
func (s *Service) RequirePermission(obj, act string, deny DenyFunc) func(http.Handler) http.Handler {
	if deny == nil {
		deny = plainDeny
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := TokenFromContext(r.Context())
			if !ok {
				deny(w, r, http.StatusUnauthorized, "Authentication required")
				return
			}

			allowed, err := s.Enforce(token.UserID, obj, act)
			if err != nil {
				zerolog.Ctx(r.Context()).Error().Err(err).Msg("rbac enforce failed")
				deny(w, r, http.StatusInternalServerError, "Internal Server Error")
				return
			}
			if !allowed {
				deny(w, r, http.StatusForbidden, "Forbidden")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
