package v1

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/refound-dev/refound/server/auth"
	apperrors "github.com/refound-dev/refound/server/internal/errors"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// respondError maps service errors to their HTTP status and a stable error
// code clients can branch on.
func respondError(c echo.Context, err error) error {
	if domainErr, ok := err.(*apperrors.DomainError); ok {
		if domainErr.Code == apperrors.ErrCodeInternal {
			slog.Error("request failed", "path", c.Path(), "error", err)
		}
		return c.JSON(domainErr.HTTPStatus(), errorResponse{
			Code:    string(domainErr.Code),
			Message: domainErr.Message,
		})
	}
	slog.Error("request failed", "path", c.Path(), "error", err)
	return c.JSON(http.StatusInternalServerError, errorResponse{
		Code:    string(apperrors.ErrCodeInternal),
		Message: "internal server error",
	})
}

// callerIdentity returns the authenticated identity set by the auth
// middleware.
func callerIdentity(c echo.Context) *auth.CallerIdentity {
	return auth.IdentityFromContext(c.Request().Context())
}
