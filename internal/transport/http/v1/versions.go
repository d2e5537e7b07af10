package v1

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/domusnext/eval/internal/domain"
)

// GetTree returns every version with its contexts, cases and last run summaries.
// GET /evaluations/tree
func (h *Handler) GetTree(c echo.Context) error {
	tree, err := h.service.FetchTree(c.Request().Context())
	if err != nil {
		return h.fail(c, err)
	}
	return data(c, tree)
}

// CreateVersion creates a version. Any body is accepted.
// POST /evaluations/versions
func (h *Handler) CreateVersion(c echo.Context) error {
	var in domain.VersionInput
	if err := bindLenient(c, &in); err != nil {
		return h.fail(c, err)
	}
	id, err := h.service.CreateVersion(c.Request().Context(), in)
	if err != nil {
		return h.fail(c, err)
	}
	return created(c, id)
}

// UpdateVersion patches a version.
// PATCH /evaluations/versions/:id
func (h *Handler) UpdateVersion(c echo.Context) error {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return badRequest(c, "Missing versionId")
	}
	var patch domain.VersionPatch
	if err := bindLenient(c, &patch); err != nil {
		return h.fail(c, err)
	}
	if err := h.service.UpdateVersion(c.Request().Context(), id, patch); err != nil {
		return h.fail(c, err)
	}
	return success(c)
}

// DeleteVersion deletes a version and its results.
// DELETE /evaluations/versions/:id
func (h *Handler) DeleteVersion(c echo.Context) error {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return badRequest(c, "Missing versionId")
	}
	if err := h.service.DeleteVersion(c.Request().Context(), id); err != nil {
		return h.fail(c, err)
	}
	return success(c)
}

// DuplicateVersion copies a version's metadata.
// POST /evaluations/versions/:id/duplicate
func (h *Handler) DuplicateVersion(c echo.Context) error {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return badRequest(c, "Missing id")
	}
	newID, err := h.service.DuplicateVersion(c.Request().Context(), id)
	if err != nil {
		return h.fail(c, err)
	}
	return created(c, newID)
}
