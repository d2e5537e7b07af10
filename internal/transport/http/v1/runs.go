package v1

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/domusnext/eval/internal/domain"
)

// runBody is decoded loosely: fields of the wrong type are ignored.
type runBody map[string]any

func (b runBody) str(key string) string {
	s, _ := b[key].(string)
	return strings.TrimSpace(s)
}

func (b runBody) ids(key string) []string {
	items, ok := b[key].([]any)
	if !ok || len(items) == 0 {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (b runBody) num(key string) int {
	f, _ := b[key].(float64)
	return int(f)
}

// QueueRun queues a run for a version.
// POST /evaluations/run
func (h *Handler) QueueRun(c echo.Context) error {
	if !isJSON(c) {
		return badRequest(c, errExpectedJSON)
	}
	body := runBody{}
	if err := bindLenient(c, &body); err != nil {
		return h.fail(c, err)
	}
	versionID := body.str("versionId")
	if versionID == "" {
		return badRequest(c, "Missing versionId")
	}

	ticket, err := h.service.QueueRun(c.Request().Context(), domain.RunRequest{
		VersionID:          versionID,
		ContextIDs:         body.ids("contextIds"),
		CaseIDs:            body.ids("caseIds"),
		MaxCasesPerRun:     body.num("maxCasesPerRun"),
		ConcurrentRequests: body.num("concurrentRequests"),
	})
	if err != nil {
		return h.fail(c, err)
	}
	return data(c, ticket)
}

// GetRunResults lists the results written by one run.
// GET /evaluations/runs/:runId/results
func (h *Handler) GetRunResults(c echo.Context) error {
	runID := strings.TrimSpace(c.Param("runId"))
	if runID == "" {
		return badRequest(c, "Missing id")
	}
	results, err := h.service.ListRunResults(c.Request().Context(), runID)
	if err != nil {
		return h.fail(c, err)
	}
	return data(c, results)
}
