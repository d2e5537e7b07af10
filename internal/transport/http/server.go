// Package http provides the HTTP server for the evaluation service.
package http

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/domusnext/eval/internal/feed"
	"github.com/domusnext/eval/internal/service"
	v1 "github.com/domusnext/eval/internal/transport/http/v1"
)

// NewServer creates and configures the HTTP server. feedServer may be nil,
// in which case the websocket feed route is not registered.
func NewServer(svc *service.Service, feedServer *feed.Server, logger *zap.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Handlers
	v1Handler := v1.NewHandler(svc, logger)

	// Register Routes
	v1Handler.RegisterRoutes(e)
	if feedServer != nil {
		e.GET("/evaluations/versions/:versionId/feed", feedServer.HandleWebSocket)
	}

	return e
}
