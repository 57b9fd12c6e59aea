package v1

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/refound-dev/refound/server/auth"
	apperrors "github.com/refound-dev/refound/server/internal/errors"
	"github.com/refound-dev/refound/store"
)

type userResponse struct {
	UID              string `json:"uid"`
	Name             string `json:"name"`
	Email            string `json:"email"`
	OrganizationType string `json:"organizationType"`
}

func convertUser(u *store.User) *userResponse {
	return &userResponse{
		UID:              u.UID,
		Name:             u.Name,
		Email:            u.Email,
		OrganizationType: string(u.OrganizationType),
	}
}

type registerUserRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// registerUser stores the caller's display profile. The identity itself
// comes from the token; this only backs attribution on listings.
func (s *APIV1Service) registerUser(c echo.Context) error {
	req := &registerUserRequest{}
	if err := c.Bind(req); err != nil {
		return respondError(c, apperrors.InvalidArgument("malformed request body"))
	}
	if req.Name == "" {
		return respondError(c, apperrors.InvalidArgument("name is required"))
	}

	identity := callerIdentity(c)
	existing, err := s.Store.GetUserByUID(c.Request().Context(), identity.UserID)
	if err != nil {
		return respondError(c, apperrors.Internal("failed to look up user", err))
	}
	if existing != nil {
		return c.JSON(http.StatusOK, convertUser(existing))
	}

	user, err := s.Store.CreateUser(c.Request().Context(), &store.User{
		UID:              identity.UserID,
		Name:             req.Name,
		Email:            req.Email,
		OrganizationType: identity.OrganizationType,
		CollegeID:        identity.CollegeID,
		SocietyID:        identity.SocietyID,
	})
	if err != nil {
		return respondError(c, apperrors.Internal("failed to create user", err))
	}
	return c.JSON(http.StatusCreated, convertUser(user))
}

func (s *APIV1Service) currentUser(c echo.Context) error {
	identity := callerIdentity(c)
	user, err := s.Store.GetUserByUID(c.Request().Context(), identity.UserID)
	if err != nil {
		return respondError(c, apperrors.Internal("failed to look up user", err))
	}
	if user == nil {
		return respondError(c, apperrors.NotFound("user not registered"))
	}
	return c.JSON(http.StatusOK, convertUser(user))
}

type devTokenRequest struct {
	UserID           string `json:"userId"`
	OrganizationType string `json:"organizationType"`
	CollegeID        string `json:"collegeId,omitempty"`
	SocietyID        string `json:"societyId,omitempty"`
}

// issueDevToken mints an identity token locally. Registered only in dev and
// demo modes where no external login service exists.
func (s *APIV1Service) issueDevToken(c echo.Context) error {
	req := &devTokenRequest{}
	if err := c.Bind(req); err != nil {
		return respondError(c, apperrors.InvalidArgument("malformed request body"))
	}
	if req.UserID == "" {
		return respondError(c, apperrors.InvalidArgument("userId is required"))
	}

	identity := &auth.CallerIdentity{
		UserID:           req.UserID,
		OrganizationType: store.OrganizationType(req.OrganizationType),
	}
	if req.CollegeID != "" {
		identity.CollegeID = &req.CollegeID
	}
	if req.SocietyID != "" {
		identity.SocietyID = &req.SocietyID
	}

	token, err := auth.GenerateToken(s.Secret, identity, 24*time.Hour)
	if err != nil {
		return respondError(c, apperrors.Internal("failed to sign token", err))
	}
	return c.JSON(http.StatusOK, map[string]string{"token": token})
}
