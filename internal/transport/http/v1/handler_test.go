package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/domusnext/eval/internal/adapter/blob"
	"github.com/domusnext/eval/internal/config"
	"github.com/domusnext/eval/internal/policy"
	store "github.com/domusnext/eval/internal/repository"
	"github.com/domusnext/eval/internal/service"
	"github.com/domusnext/eval/tests/helpers"
)

func newTestHandler(t *testing.T) (*echo.Echo, *store.SQLiteStore) {
	t.Helper()
	return newTestHandlerWithPolicy(t, nil)
}

func newTestHandlerWithPolicy(t *testing.T, runPolicy service.RunPolicy) (*echo.Echo, *store.SQLiteStore) {
	t.Helper()
	db := helpers.NewTestSQLiteStore(t)
	bucket, err := blob.NewDirBucket(t.TempDir())
	if err != nil {
		t.Fatalf("NewDirBucket failed: %v", err)
	}
	svc := service.New(db, service.NewSyntheticExecutor(db, nil, nil), runPolicy, nil, bucket, config.Default(), nil)

	e := echo.New()
	NewHandler(svc, nil).RegisterRoutes(e)
	return e, db
}

func doJSON(t *testing.T, e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeID(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Data.ID == "" {
		t.Fatalf("expected id in response: %s", rec.Body.String())
	}
	return resp.Data.ID
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return resp["error"]
}

type treeResponse struct {
	Data []struct {
		ID       string `json:"id"`
		Label    string `json:"label"`
		Contexts []struct {
			ID    string `json:"id"`
			Name  string `json:"name"`
			Cases []struct {
				ID               string          `json:"id"`
				AssistantMessage json.RawMessage `json:"assistantMessage"`
				LastRunSummary   *struct {
					Status string `json:"status"`
				} `json:"lastRunSummary"`
			} `json:"cases"`
		} `json:"contexts"`
	} `json:"data"`
}

func getTree(t *testing.T, e *echo.Echo) treeResponse {
	t.Helper()
	rec := doJSON(t, e, http.MethodGet, "/evaluations/tree", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var tree treeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &tree); err != nil {
		t.Fatalf("decode tree: %v", err)
	}
	return tree
}

func TestTreeEmpty(t *testing.T) {
	e, _ := newTestHandler(t)

	rec := doJSON(t, e, http.MethodGet, "/evaluations/tree", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if strings.TrimSpace(rec.Body.String()) != `{"data":[]}` {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestRunEndToEnd(t *testing.T) {
	e, _ := newTestHandler(t)

	versionID := decodeID(t, doJSON(t, e, http.MethodPost, "/evaluations/versions", ""))
	contextID := decodeID(t, doJSON(t, e, http.MethodPost, "/evaluations/contexts", `{}`))
	caseID := decodeID(t, doJSON(t, e, http.MethodPost, "/evaluations/cases",
		`{"contextId":"`+contextID+`","userMessage":{"role":"user","content":"ping"}}`))

	rec := doJSON(t, e, http.MethodPost, "/evaluations/run",
		`{"versionId":"`+versionID+`","contextIds":["`+contextID+`"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var run struct {
		Data struct {
			RunID     string `json:"runId"`
			CaseCount int    `json:"caseCount"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &run); err != nil {
		t.Fatalf("decode run: %v", err)
	}
	if run.Data.CaseCount != 1 || run.Data.RunID == "" {
		t.Fatalf("unexpected run response: %s", rec.Body.String())
	}

	tree := getTree(t, e)
	if len(tree.Data) != 1 || tree.Data[0].Label != "New Version" {
		t.Fatalf("unexpected tree: %+v", tree)
	}
	cases := tree.Data[0].Contexts[0].Cases
	if len(cases) != 1 || cases[0].ID != caseID {
		t.Fatalf("unexpected cases: %+v", cases)
	}
	if cases[0].LastRunSummary == nil || cases[0].LastRunSummary.Status != "succeeded" {
		t.Fatalf("expected succeeded summary, got %+v", cases[0].LastRunSummary)
	}

	rec = doJSON(t, e, http.MethodGet, "/evaluations/runs/"+run.Data.RunID+"/results", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), caseID) {
		t.Fatalf("unexpected results response %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRunWithDefaultPolicyAcceptsHighConcurrency(t *testing.T) {
	engine, err := policy.NewEngineFromFile(context.Background(), "")
	if err != nil {
		t.Fatalf("NewEngineFromFile failed: %v", err)
	}
	e, _ := newTestHandlerWithPolicy(t, engine)

	versionID := decodeID(t, doJSON(t, e, http.MethodPost, "/evaluations/versions", ""))
	contextID := decodeID(t, doJSON(t, e, http.MethodPost, "/evaluations/contexts", `{}`))
	decodeID(t, doJSON(t, e, http.MethodPost, "/evaluations/cases", `{"contextId":"`+contextID+`"}`))

	rec := doJSON(t, e, http.MethodPost, "/evaluations/run",
		`{"versionId":"`+versionID+`","concurrentRequests":100}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"caseCount":1`) {
		t.Fatalf("unexpected run response: %s", rec.Body.String())
	}
}

func TestPatchCaseNullAssistantMessage(t *testing.T) {
	e, _ := newTestHandler(t)

	decodeID(t, doJSON(t, e, http.MethodPost, "/evaluations/versions", `{"label":"V"}`))
	contextID := decodeID(t, doJSON(t, e, http.MethodPost, "/evaluations/contexts", `{"name":"C"}`))
	caseID := decodeID(t, doJSON(t, e, http.MethodPost, "/evaluations/cases",
		`{"contextId":"`+contextID+`","assistantMessage":{"role":"assistant","content":[{"type":"text","text":"pong"}]}}`))

	rec := doJSON(t, e, http.MethodPatch, "/evaluations/cases/"+caseID, `{"assistantMessage":null}`)
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != `{"success":true}` {
		t.Fatalf("unexpected patch response %d: %s", rec.Code, rec.Body.String())
	}

	tree := getTree(t, e)
	if got := tree.Data[0].Contexts[0].Cases[0].AssistantMessage; got != nil {
		t.Fatalf("expected assistantMessage absent, got %s", got)
	}
}

func TestContentTypeRequired(t *testing.T) {
	e, _ := newTestHandler(t)

	for _, target := range []string{"/evaluations/contexts", "/evaluations/cases", "/evaluations/run"} {
		req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(`{}`))
		req.Header.Set(echo.HeaderContentType, echo.MIMETextPlain)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", target, rec.Code)
		}
		if msg := decodeError(t, rec); msg != "Expected JSON body" {
			t.Fatalf("%s: unexpected error %q", target, msg)
		}
	}

	// Versions accept any body.
	req := httptest.NewRequest(http.MethodPost, "/evaluations/versions", strings.NewReader("not json"))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	decodeID(t, rec)
}

func TestValidationErrors(t *testing.T) {
	e, _ := newTestHandler(t)

	tests := []struct {
		name   string
		method string
		target string
		body   string
		code   int
		want   string
	}{
		{"case without context", http.MethodPost, "/evaluations/cases", `{"title":"x"}`, http.StatusBadRequest, "Missing contextId"},
		{"malformed case body", http.MethodPost, "/evaluations/cases", `{not json`, http.StatusBadRequest, "Missing contextId"},
		{"run without version", http.MethodPost, "/evaluations/run", `{"contextIds":["a"]}`, http.StatusBadRequest, "Missing versionId"},
		{"duplicate missing version", http.MethodPost, "/evaluations/versions/nope/duplicate", ``, http.StatusInternalServerError, "Version not found"},
		{"run missing version", http.MethodPost, "/evaluations/run", `{"versionId":"nope"}`, http.StatusInternalServerError, "Version not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, e, tt.method, tt.target, tt.body)
			if rec.Code != tt.code {
				t.Fatalf("expected %d, got %d: %s", tt.code, rec.Code, rec.Body.String())
			}
			if msg := decodeError(t, rec); msg != tt.want {
				t.Fatalf("expected error %q, got %q", tt.want, msg)
			}
		})
	}
}

func TestRunIgnoresNonArrayScopes(t *testing.T) {
	e, _ := newTestHandler(t)

	versionID := decodeID(t, doJSON(t, e, http.MethodPost, "/evaluations/versions", `{}`))
	contextID := decodeID(t, doJSON(t, e, http.MethodPost, "/evaluations/contexts", `{}`))
	decodeID(t, doJSON(t, e, http.MethodPost, "/evaluations/cases", `{"contextId":"`+contextID+`"}`))
	decodeID(t, doJSON(t, e, http.MethodPost, "/evaluations/cases", `{"contextId":"`+contextID+`"}`))

	rec := doJSON(t, e, http.MethodPost, "/evaluations/run",
		`{"versionId":"`+versionID+`","contextIds":"all","caseIds":[],"maxCasesPerRun":1}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"caseCount":1`) {
		t.Fatalf("expected one case, got %s", rec.Body.String())
	}
}

func multipartUpload(t *testing.T, fields map[string]string, filename, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}
	if filename != "" {
		part, err := w.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		part.Write([]byte(content))
	}
	w.Close()

	req := httptest.NewRequest(http.MethodPost, "/uploads", &buf)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	return req
}

func TestUploadRoundTrip(t *testing.T) {
	e, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, multipartUpload(t, map[string]string{"type": "file"}, "report.txt", "hello world"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var res service.UploadResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode upload: %v", err)
	}
	if res.Name != "report.txt" || res.Size != int64(len("hello world")) || res.URL != "/"+res.Key {
		t.Fatalf("unexpected upload result: %+v", res)
	}

	req := httptest.NewRequest(http.MethodGet, res.URL, nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 serving upload, got %d", rec.Code)
	}
	if rec.Body.String() != "hello world" {
		t.Fatalf("unexpected upload body: %q", rec.Body.String())
	}
	if got := rec.Header().Get(echo.HeaderContentDisposition); got != `inline; filename="report.txt"` {
		t.Fatalf("unexpected disposition: %q", got)
	}
}

func TestServeUploadCorruptMetadata(t *testing.T) {
	db := helpers.NewTestSQLiteStore(t)
	root := t.TempDir()
	bucket, err := blob.NewDirBucket(root)
	if err != nil {
		t.Fatalf("NewDirBucket failed: %v", err)
	}
	svc := service.New(db, service.NewSyntheticExecutor(db, nil, nil), nil, nil, bucket, config.Default(), nil)
	e := echo.New()
	NewHandler(svc, nil).RegisterRoutes(e)

	if _, err := bucket.Put(context.Background(), "uploads/file/1-a.txt", strings.NewReader("hello"), "text/plain", ""); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "uploads", "file", "1-a.txt.meta.json"), []byte("{broken"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/uploads/file/1-a.txt", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestUploadErrors(t *testing.T) {
	e, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, multipartUpload(t, map[string]string{"type": "video"}, "a.mp4", "x"))
	if rec.Code != http.StatusBadRequest || decodeError(t, rec) != "Invalid upload type" {
		t.Fatalf("unexpected response %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, multipartUpload(t, map[string]string{"type": "video"}, "", ""))
	if rec.Code != http.StatusBadRequest || decodeError(t, rec) != "Missing file upload" {
		t.Fatalf("unexpected response %d: %s", rec.Code, rec.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/uploads/file/missing.txt", nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
