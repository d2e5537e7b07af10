// Package v1 provides the JSON handlers of the evaluation API.
package v1

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/domusnext/eval/internal/domain"
	"github.com/domusnext/eval/internal/logging"
	"github.com/domusnext/eval/internal/service"
)

const (
	errExpectedJSON = "Expected JSON body"
	errInternal     = "Internal server error"
)

// Handler handles HTTP requests.
type Handler struct {
	service *service.Service
	logger  *zap.Logger
}

// NewHandler creates a new handler.
func NewHandler(service *service.Service, logger *zap.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logging.OrNop(logger),
	}
}

// RegisterRoutes registers the API routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/evaluations/tree", h.GetTree)

	e.POST("/evaluations/versions", h.CreateVersion)
	e.PATCH("/evaluations/versions/:id", h.UpdateVersion)
	e.DELETE("/evaluations/versions/:id", h.DeleteVersion)
	e.POST("/evaluations/versions/:id/duplicate", h.DuplicateVersion)

	e.POST("/evaluations/contexts", h.CreateContext)
	e.PATCH("/evaluations/contexts/:id", h.UpdateContext)
	e.DELETE("/evaluations/contexts/:id", h.DeleteContext)

	e.POST("/evaluations/cases", h.CreateCase)
	e.PATCH("/evaluations/cases/:id", h.UpdateCase)
	e.DELETE("/evaluations/cases/:id", h.DeleteCase)

	e.POST("/evaluations/run", h.QueueRun)
	e.GET("/evaluations/runs/:runId/results", h.GetRunResults)

	e.POST("/uploads", h.Upload)
	e.GET("/uploads/*", h.ServeUpload)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}

func isJSON(c echo.Context) bool {
	return strings.Contains(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEApplicationJSON)
}

// bindLenient decodes the request body into v. An empty or malformed body
// leaves v untouched, as if {} had been sent.
func bindLenient(c echo.Context, v any) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return err
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 || !json.Valid(body) || body[0] != '{' {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return domain.ValidationError("Invalid request body: %v", err)
	}
	return nil
}

// fail maps err onto the error envelope: validation errors are 400,
// everything else is 500.
func (h *Handler) fail(c echo.Context, err error) error {
	if errors.Is(err, domain.ErrValidation) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	msg := err.Error()
	if msg == "" {
		msg = errInternal
	}
	h.logger.Error("request failed",
		zap.String("method", c.Request().Method),
		zap.String("path", c.Path()),
		zap.Error(err))
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": msg})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, map[string]string{"error": msg})
}

func created(c echo.Context, id string) error {
	return c.JSON(http.StatusCreated, map[string]any{"data": map[string]string{"id": id}})
}

func success(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

func data(c echo.Context, v any) error {
	return c.JSON(http.StatusOK, map[string]any{"data": v})
}
