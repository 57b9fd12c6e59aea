package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

type identityKey struct{}

// ContextWithIdentity attaches the caller identity to a context.
func ContextWithIdentity(ctx context.Context, identity *CallerIdentity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFromContext returns the caller identity, or nil outside an
// authenticated request.
func IdentityFromContext(ctx context.Context) *CallerIdentity {
	identity, _ := ctx.Value(identityKey{}).(*CallerIdentity)
	return identity
}

// Middleware returns an echo middleware that rejects requests without a valid
// bearer token and stores the caller identity on the request context.
func Middleware(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			tokenString, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || tokenString == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}

			identity, err := ParseToken(secret, tokenString)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			ctx := ContextWithIdentity(c.Request().Context(), identity)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}
