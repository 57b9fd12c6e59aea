// Package server assembles the HTTP server, services, and background
// runners.
package server

import (
	"context"
	"fmt"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/refound-dev/refound/internal/profile"
	"github.com/refound-dev/refound/plugin/vision"
	"github.com/refound-dev/refound/server/middleware"
	matchrunner "github.com/refound-dev/refound/server/runner/match"
	apiv1 "github.com/refound-dev/refound/server/router/api/v1"
	"github.com/refound-dev/refound/server/service/item"
	"github.com/refound-dev/refound/server/service/match"
	"github.com/refound-dev/refound/server/service/photo"
	"github.com/refound-dev/refound/store"
)

type Server struct {
	Profile *profile.Profile
	Store   *store.Store

	echoServer  *echo.Echo
	matchRunner *matchrunner.Runner
}

func NewServer(ctx context.Context, profile *profile.Profile, store *store.Store) (*Server, error) {
	secret := profile.Secret
	if secret == "" {
		if !profile.IsDev() {
			return nil, errors.New("a token secret is required in prod mode")
		}
		secret = "refound-dev"
	}

	echoServer := echo.New()
	echoServer.Debug = profile.IsDev()
	echoServer.HideBanner = true
	echoServer.HidePort = true
	echoServer.Use(echomiddleware.RecoverWithConfig(echomiddleware.RecoverConfig{
		DisablePrintStack: !profile.IsDev(),
	}))
	echoServer.Use(echomiddleware.CORS())
	echoServer.Use(echomiddleware.BodyLimit("32M"))
	echoServer.Use(middleware.RequestLogger())

	// The provider stays a nil interface when vision is disabled; assigning a
	// nil *vision.Provider instead would defeat the engine's nil check.
	var provider match.EmbeddingProvider
	if profile.IsVisionEnabled() {
		cfg := vision.DefaultConfig()
		cfg.BaseURL = profile.VisionBaseURL
		provider = vision.NewProvider(cfg)
	}

	engine := match.NewEngine(store, provider, profile.InstanceURL)
	matchRunner := matchrunner.NewRunner(engine, store)

	photoService, err := photo.NewService(profile.Data)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create photo service")
	}

	itemService := item.NewService(store, matchRunner, photoService)

	apiV1Service := apiv1.NewAPIV1Service(secret, profile, store, itemService, photoService)
	apiV1Service.Register(echoServer)

	return &Server{
		Profile:     profile,
		Store:       store,
		echoServer:  echoServer,
		matchRunner: matchRunner,
	}, nil
}

// Start launches the background runner and begins serving. It blocks until
// the listener fails or is shut down.
func (s *Server) Start(ctx context.Context) error {
	go s.matchRunner.Run(ctx)

	address := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	return s.echoServer.Start(address)
}

// Shutdown gracefully stops the server and closes the store.
func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := s.echoServer.Shutdown(ctx); err != nil {
		fmt.Printf("failed to shutdown server, error: %+v\n", err)
	}
	if err := s.Store.Close(); err != nil {
		fmt.Printf("failed to close store, error: %+v\n", err)
	}
}
