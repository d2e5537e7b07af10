package v1

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/domusnext/eval/internal/domain"
)

// CreateCase creates a case under a context.
// POST /evaluations/cases
func (h *Handler) CreateCase(c echo.Context) error {
	if !isJSON(c) {
		return badRequest(c, errExpectedJSON)
	}
	var in domain.CaseInput
	if err := bindLenient(c, &in); err != nil {
		return h.fail(c, err)
	}
	if strings.TrimSpace(in.ContextID) == "" {
		return badRequest(c, "Missing contextId")
	}
	id, err := h.service.CreateCase(c.Request().Context(), in)
	if err != nil {
		return h.fail(c, err)
	}
	return created(c, id)
}

// UpdateCase patches a case.
// PATCH /evaluations/cases/:id
func (h *Handler) UpdateCase(c echo.Context) error {
	if !isJSON(c) {
		return badRequest(c, errExpectedJSON)
	}
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return badRequest(c, "Missing caseId")
	}
	var patch domain.CasePatch
	if err := bindLenient(c, &patch); err != nil {
		return h.fail(c, err)
	}
	if err := h.service.UpdateCase(c.Request().Context(), id, patch); err != nil {
		return h.fail(c, err)
	}
	return success(c)
}

// DeleteCase deletes a case.
// DELETE /evaluations/cases/:id
func (h *Handler) DeleteCase(c echo.Context) error {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return badRequest(c, "Missing caseId")
	}
	if err := h.service.DeleteCase(c.Request().Context(), id); err != nil {
		return h.fail(c, err)
	}
	return success(c)
}
