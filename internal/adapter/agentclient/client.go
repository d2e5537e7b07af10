// Package agentclient provides an HTTP client for the chat-completion agent's SSE stream.
package agentclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/domusnext/eval/internal/domain"
)

// StreamPath is the agent's streaming chat-completion endpoint.
const StreamPath = "/agent/v1/chat/completion/stream"

// doneSentinel terminates a stream early.
const doneSentinel = "[DONE]"

// SSEEvent represents a parsed SSE event.
type SSEEvent struct {
	Event string
	Data  string
}

// EventHandler is called for each SSE event from the agent.
type EventHandler func(event SSEEvent) error

// StatusError is returned when the agent answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("agent returned status %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the failure may succeed on a later attempt.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// AgentError is an error event emitted inside the stream.
type AgentError struct {
	Code    string
	Message string
}

func (e *AgentError) Error() string {
	if e.Code == "" {
		return "agent error: " + e.Message
	}
	return fmt.Sprintf("agent error %s: %s", e.Code, e.Message)
}

// Request is the body posted to the agent: the context params plus the message history.
type Request struct {
	Params         map[string]any
	RecentMessages []domain.UserMessage
}

// MarshalJSON flattens params next to recent_messages.
func (r Request) MarshalJSON() ([]byte, error) {
	body := make(map[string]any, len(r.Params)+1)
	for k, v := range r.Params {
		body[k] = v
	}
	messages := r.RecentMessages
	if messages == nil {
		messages = []domain.UserMessage{}
	}
	body["recent_messages"] = messages
	return json.Marshal(body)
}

// Client is an HTTP client for invoking the agent.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a new agent client.
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 5 * time.Minute, // Long timeout for streaming
		},
	}
}

// NewClientWithHTTP creates a client around an existing http.Client.
func NewClientWithHTTP(httpClient *http.Client) *Client {
	return &Client{httpClient: httpClient}
}

// Stream posts req to the agent at baseURL and calls handler for every SSE event.
func (c *Client) Stream(ctx context.Context, baseURL string, req Request, headers map[string]string, handler EventHandler) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := strings.TrimRight(baseURL, "/") + StreamPath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to invoke agent: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(bodyBytes)}
	}

	return parseSSE(resp.Body, handler)
}

// Completion is the accumulated outcome of one streamed call.
type Completion struct {
	Text   string
	Raw    string
	Events int
}

// Collect streams a call and accumulates the text deltas.
// An error event in the stream is returned as *AgentError.
func (c *Client) Collect(ctx context.Context, baseURL string, req Request, headers map[string]string) (*Completion, error) {
	var text, raw strings.Builder
	completion := &Completion{}
	err := c.Stream(ctx, baseURL, req, headers, func(event SSEEvent) error {
		completion.Events++
		if raw.Len() > 0 {
			raw.WriteString("\n")
		}
		raw.WriteString(event.Data)

		switch event.Event {
		case "error":
			errEvt, err := ParseErrorEvent(event.Data)
			if err != nil {
				return &AgentError{Message: event.Data}
			}
			return &AgentError{Code: errEvt.Code, Message: errEvt.Message}
		case "done":
			return nil
		default:
			delta, err := ParseDeltaEvent(event.Data)
			if err != nil {
				// Plain-text data lines are taken verbatim.
				text.WriteString(event.Data)
				return nil
			}
			text.WriteString(delta.Chunk())
			return nil
		}
	})
	completion.Text = text.String()
	completion.Raw = raw.String()
	if err != nil {
		return completion, err
	}
	return completion, nil
}

// parseSSE parses an SSE stream and calls the handler for each event.
func parseSSE(reader io.Reader, handler EventHandler) error {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	var event SSEEvent

	for scanner.Scan() {
		line := scanner.Text()

		// Empty line marks end of event
		if line == "" {
			if event.Event != "" || event.Data != "" {
				if event.Data == doneSentinel {
					return nil
				}
				if err := handler(event); err != nil {
					return err
				}
				event = SSEEvent{}
			}
			continue
		}

		if strings.HasPrefix(line, "event:") {
			event.Event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		} else if strings.HasPrefix(line, "data:") {
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if event.Data != "" {
				event.Data += "\n" + data
			} else {
				event.Data = data
			}
		}
		// Ignore comments (lines starting with :) and other fields
	}

	if event.Event != "" || event.Data != "" {
		if event.Data == doneSentinel {
			return nil
		}
		if err := handler(event); err != nil {
			return err
		}
	}

	return scanner.Err()
}

// ParseDeltaEvent parses a delta event data.
func ParseDeltaEvent(data string) (*domain.DeltaEventData, error) {
	var delta domain.DeltaEventData
	if err := json.Unmarshal([]byte(data), &delta); err != nil {
		return nil, fmt.Errorf("failed to parse delta event: %w", err)
	}
	return &delta, nil
}

// ParseErrorEvent parses an error event data.
func ParseErrorEvent(data string) (*domain.ErrorEventData, error) {
	var errEvt domain.ErrorEventData
	if err := json.Unmarshal([]byte(data), &errEvt); err != nil {
		return nil, fmt.Errorf("failed to parse error event: %w", err)
	}
	return &errEvt, nil
}
