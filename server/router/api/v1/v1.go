// Package v1 exposes the JSON API.
package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/refound-dev/refound/internal/profile"
	"github.com/refound-dev/refound/server/auth"
	apperrors "github.com/refound-dev/refound/server/internal/errors"
	"github.com/refound-dev/refound/server/middleware"
	"github.com/refound-dev/refound/server/service/item"
	"github.com/refound-dev/refound/server/service/photo"
	"github.com/refound-dev/refound/store"
)

type APIV1Service struct {
	Secret  string
	Profile *profile.Profile
	Store   *store.Store

	ItemService  *item.Service
	PhotoService *photo.Service

	rateLimiter *middleware.RateLimiter
}

func NewAPIV1Service(secret string, profile *profile.Profile, store *store.Store, itemService *item.Service, photoService *photo.Service) *APIV1Service {
	return &APIV1Service{
		Secret:       secret,
		Profile:      profile,
		Store:        store,
		ItemService:  itemService,
		PhotoService: photoService,
		rateLimiter:  middleware.NewRateLimiter(10, 20),
	}
}

// Register mounts the API routes on the echo server.
func (s *APIV1Service) Register(echoServer *echo.Echo) {
	echoServer.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	if s.PhotoService != nil {
		echoServer.Static("/uploads", s.PhotoService.UploadsDir())
	}

	api := echoServer.Group("/api/v1")
	if s.Profile.IsDev() {
		api.POST("/auth/dev-token", s.issueDevToken)
	}

	authed := api.Group("", auth.Middleware(s.Secret), s.rateLimitMiddleware)

	authed.POST("/users", s.registerUser)
	authed.GET("/users/me", s.currentUser)

	authed.POST("/items", s.createItem)
	authed.GET("/items", s.listItems)
	authed.GET("/items/posted", s.listPostedItems)
	authed.GET("/items/claimed", s.listClaimedItems)
	authed.GET("/items/:uid", s.getItem)
	authed.DELETE("/items/:uid", s.deleteItem)
	authed.POST("/items/:uid/qr", s.generateQR)
	authed.GET("/qr/:token", s.verifyQR)
	authed.POST("/qr/:token/claim", s.claimItem)
}

func (s *APIV1Service) rateLimitMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		identity := auth.IdentityFromContext(c.Request().Context())
		if identity != nil && !s.rateLimiter.Allow(identity.UserID) {
			return respondError(c, apperrors.RateLimitExceeded("too many requests"))
		}
		return next(c)
	}
}
