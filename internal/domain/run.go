package domain

import "time"

// RunRequest scopes a run to a version and an optional subset of contexts and cases.
type RunRequest struct {
	VersionID          string   `json:"versionId"`
	ContextIDs         []string `json:"contextIds,omitempty"`
	CaseIDs            []string `json:"caseIds,omitempty"`
	MaxCasesPerRun     int      `json:"maxCasesPerRun,omitempty"`
	ConcurrentRequests int      `json:"concurrentRequests,omitempty"`
}

// RunTicket is returned once a run has been queued.
type RunTicket struct {
	RunID     string `json:"runId"`
	CaseCount int    `json:"caseCount"`
}

// RunTarget is one case selected for a run, together with its owning context.
type RunTarget struct {
	Context *Context
	Case    *Case
}

// RequestPayload is the payload recorded for each result.
type RequestPayload struct {
	Params      map[string]any    `json:"params"`
	Headers     map[string]string `json:"headers"`
	UserMessage UserMessage       `json:"userMessage"`
}

// ResponsePayload is the response recorded for each result.
type ResponsePayload struct {
	AssistantMessage AssistantMessage `json:"assistantMessage"`
}

// FeedEvent is pushed to feed subscribers of a version.
type FeedEvent struct {
	Type      FeedEventType `json:"type"`
	VersionID string        `json:"versionId"`
	RunID     string        `json:"runId"`
	CaseID    string        `json:"caseId,omitempty"`
	Status    ResultStatus  `json:"status,omitempty"`
	CaseCount int           `json:"caseCount,omitempty"`
	LatencyMs *int64        `json:"latencyMs,omitempty"`
	Error     string        `json:"error,omitempty"`
	Ts        int64         `json:"ts"`
}

// NewFeedEvent stamps an event with the current time.
func NewFeedEvent(t FeedEventType, versionID, runID string) FeedEvent {
	return FeedEvent{Type: t, VersionID: versionID, RunID: runID, Ts: time.Now().UnixMilli()}
}
