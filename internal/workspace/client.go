package workspace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/domusnext/eval/internal/domain"
)

// APIError is a non-2xx response from the evaluation API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// Patch is a partial update body. A nil value sends an explicit null.
type Patch map[string]any

// Upload describes a stored attachment.
type Upload struct {
	URL      string `json:"url"`
	Key      string `json:"key"`
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType"`
	Name     string `json:"name"`
}

// Client calls the evaluation API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// NewClientWithHTTP creates a client around an existing http.Client.
func NewClientWithHTTP(baseURL string, httpClient *http.Client) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var envelope struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(data, &envelope)
		msg := envelope.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		if msg == "" {
			msg = "Request failed"
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

type idEnvelope struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

func (c *Client) create(ctx context.Context, path string, body any) (string, error) {
	var resp idEnvelope
	if err := c.do(ctx, http.MethodPost, path, body, &resp); err != nil {
		return "", err
	}
	return resp.Data.ID, nil
}

// Tree fetches every version with its contexts and cases.
func (c *Client) Tree(ctx context.Context) ([]domain.Version, error) {
	var resp struct {
		Data []domain.Version `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/evaluations/tree", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Data == nil {
		resp.Data = []domain.Version{}
	}
	return resp.Data, nil
}

func (c *Client) CreateVersion(ctx context.Context, in domain.VersionInput) (string, error) {
	return c.create(ctx, "/evaluations/versions", in)
}

func (c *Client) UpdateVersion(ctx context.Context, id string, patch Patch) error {
	return c.do(ctx, http.MethodPatch, "/evaluations/versions/"+url.PathEscape(id), patch, nil)
}

func (c *Client) DeleteVersion(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/evaluations/versions/"+url.PathEscape(id), nil, nil)
}

func (c *Client) DuplicateVersion(ctx context.Context, id string) (string, error) {
	return c.create(ctx, "/evaluations/versions/"+url.PathEscape(id)+"/duplicate", struct{}{})
}

func (c *Client) CreateContext(ctx context.Context, in domain.ContextInput) (string, error) {
	return c.create(ctx, "/evaluations/contexts", in)
}

func (c *Client) UpdateContext(ctx context.Context, id string, patch Patch) error {
	return c.do(ctx, http.MethodPatch, "/evaluations/contexts/"+url.PathEscape(id), patch, nil)
}

func (c *Client) DeleteContext(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/evaluations/contexts/"+url.PathEscape(id), nil, nil)
}

func (c *Client) CreateCase(ctx context.Context, in domain.CaseInput) (string, error) {
	return c.create(ctx, "/evaluations/cases", in)
}

func (c *Client) UpdateCase(ctx context.Context, id string, patch Patch) error {
	return c.do(ctx, http.MethodPatch, "/evaluations/cases/"+url.PathEscape(id), patch, nil)
}

func (c *Client) DeleteCase(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/evaluations/cases/"+url.PathEscape(id), nil, nil)
}

// Run queues a run.
func (c *Client) Run(ctx context.Context, req domain.RunRequest) (*domain.RunTicket, error) {
	var resp struct {
		Data domain.RunTicket `json:"data"`
	}
	if err := c.do(ctx, http.MethodPost, "/evaluations/run", req, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// RunResults lists the results of one run.
func (c *Client) RunResults(ctx context.Context, runID string) ([]domain.Result, error) {
	var resp struct {
		Data []domain.Result `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/evaluations/runs/"+url.PathEscape(runID)+"/results", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// Upload sends one file as multipart form data. kind is "image" or "file".
func (c *Client) Upload(ctx context.Context, kind, filename string, body io.Reader) (*Upload, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("type", kind); err != nil {
		return nil, err
	}
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, body); err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/uploads", &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	var out Upload
	if err := c.send(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
