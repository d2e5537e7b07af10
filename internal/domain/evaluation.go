package domain

import (
	"encoding/json"
	"time"
)

// Version is the root of an evaluation tree.
type Version struct {
	ID           string    `json:"id"`
	Label        string    `json:"label"`
	Notes        *string   `json:"notes,omitempty"`
	AgentBaseURL *string   `json:"agentBaseUrl,omitempty"`
	CreatedBy    *string   `json:"createdBy,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	Contexts     []Context `json:"contexts"`
}

// Context is a reusable parameter/header bundle and its cases.
// Contexts are shared by every version.
type Context struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description *string           `json:"description,omitempty"`
	Params      map[string]any    `json:"params"`
	Headers     map[string]string `json:"headers"`
	OrderIndex  int64             `json:"orderIndex"`
	CreatedAt   time.Time         `json:"-"`
	UpdatedAt   time.Time         `json:"-"`
	Cases       []Case            `json:"cases"`
}

// Case is a single prompt and its expected answer.
type Case struct {
	ID               string            `json:"id"`
	ContextID        string            `json:"contextId"`
	Title            string            `json:"title"`
	Description      *string           `json:"description,omitempty"`
	UserMessage      UserMessage       `json:"userMessage"`
	AssistantMessage *AssistantMessage `json:"assistantMessage,omitempty"`
	Metadata         map[string]any    `json:"metadata"`
	OrderIndex       int64             `json:"orderIndex"`
	CreatedAt        time.Time         `json:"-"`
	UpdatedAt        time.Time         `json:"-"`
	LastRunSummary   *RunSummary       `json:"lastRunSummary,omitempty"`
}

// RunSummary is the newest result of a case for one version.
type RunSummary struct {
	RunID       string       `json:"runId"`
	Status      ResultStatus `json:"status"`
	DurationMs  *int64       `json:"durationMs,omitempty"`
	CompletedAt *time.Time   `json:"completedAt,omitempty"`
	Error       *string      `json:"error,omitempty"`
}

// Result is one execution record for a (version, case) pair.
type Result struct {
	ID             string          `json:"id"`
	VersionID      string          `json:"versionId"`
	ContextID      string          `json:"contextId"`
	CaseID         string          `json:"caseId"`
	RunID          string          `json:"runId"`
	Status         ResultStatus    `json:"status"`
	RequestPayload json.RawMessage `json:"requestPayload,omitempty"`
	ResponseJSON   json.RawMessage `json:"responseJson,omitempty"`
	LatencyMs      *int64          `json:"latencyMs,omitempty"`
	StartedAt      *time.Time      `json:"startedAt,omitempty"`
	CompletedAt    *time.Time      `json:"completedAt,omitempty"`
	Error          *string         `json:"error,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// Summary converts the result into the summary surfaced on a case.
func (r *Result) Summary() *RunSummary {
	return &RunSummary{
		RunID:       r.RunID,
		Status:      r.Status,
		DurationMs:  r.LatencyMs,
		CompletedAt: r.CompletedAt,
		Error:       r.Error,
	}
}
