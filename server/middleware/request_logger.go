package middleware

import (
	"log/slog"

	"github.com/labstack/echo/v4"

	"github.com/refound-dev/refound/internal/observability"
	"github.com/refound-dev/refound/server/auth"
)

// RequestLogger attaches a request-scoped logging context and emits one
// structured line per completed request.
func RequestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			reqCtx := observability.NewRequestContext(slog.Default(), "api", "")
			ctx := observability.WithRequestContext(c.Request().Context(), reqCtx)
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)

			// The auth middleware runs after us and swaps the request, so the
			// identity is only visible here once the handler returns.
			if identity := auth.IdentityFromContext(c.Request().Context()); identity != nil {
				reqCtx.UserID = identity.UserID
			}

			status := c.Response().Status
			if httpErr, ok := err.(*echo.HTTPError); ok {
				status = httpErr.Code
			}
			reqCtx.Info("request completed",
				slog.String("method", c.Request().Method),
				slog.String("path", c.Request().URL.Path),
				slog.Int("status", status),
				slog.Int64(observability.LogFieldDuration, reqCtx.DurationMs()),
			)
			return err
		}
	}
}
