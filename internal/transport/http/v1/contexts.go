package v1

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/domusnext/eval/internal/domain"
)

// CreateContext creates a context.
// POST /evaluations/contexts
func (h *Handler) CreateContext(c echo.Context) error {
	if !isJSON(c) {
		return badRequest(c, errExpectedJSON)
	}
	var in domain.ContextInput
	if err := bindLenient(c, &in); err != nil {
		return h.fail(c, err)
	}
	id, err := h.service.CreateContext(c.Request().Context(), in)
	if err != nil {
		return h.fail(c, err)
	}
	return created(c, id)
}

// UpdateContext patches a context.
// PATCH /evaluations/contexts/:id
func (h *Handler) UpdateContext(c echo.Context) error {
	if !isJSON(c) {
		return badRequest(c, errExpectedJSON)
	}
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return badRequest(c, "Missing contextId")
	}
	var patch domain.ContextPatch
	if err := bindLenient(c, &patch); err != nil {
		return h.fail(c, err)
	}
	if err := h.service.UpdateContext(c.Request().Context(), id, patch); err != nil {
		return h.fail(c, err)
	}
	return success(c)
}

// DeleteContext deletes a context with its cases.
// DELETE /evaluations/contexts/:id
func (h *Handler) DeleteContext(c echo.Context) error {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return badRequest(c, "Missing contextId")
	}
	if err := h.service.DeleteContext(c.Request().Context(), id); err != nil {
		return h.fail(c, err)
	}
	return success(c)
}
