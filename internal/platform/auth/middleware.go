package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

type contextKey string

const identityKey contextKey = "therapist_identity"

// Skipper decides whether a request bypasses session validation (health,
// login, register).
type Skipper func(c echo.Context) bool

// DefaultSkipper skips the public endpoints.
func DefaultSkipper(c echo.Context) bool {
	path := c.Request().URL.Path
	if path == "/health" {
		return true
	}
	return strings.HasPrefix(path, "/api/v1/auth/login") ||
		strings.HasPrefix(path, "/api/v1/auth/register")
}

// Middleware validates the bearer token on every request and attaches the
// therapist identity to the request context.
func Middleware(sessions *Sessions, skipper Skipper) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if skipper != nil && skipper(c) {
				return next(c)
			}

			token, err := BearerToken(c)
			if err != nil {
				return err
			}
			id, err := sessions.Validate(token)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired session")
			}

			c.SetRequest(c.Request().WithContext(ContextWithIdentity(c.Request().Context(), id)))
			return next(c)
		}
	}
}

// ContextWithIdentity attaches the therapist identity to ctx.
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// BearerToken extracts the bearer token from the Authorization header.
func BearerToken(c echo.Context) (string, error) {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
	}
	return parts[1], nil
}

// IdentityFromContext returns the authenticated therapist, or nil.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey).(*Identity)
	return id
}
