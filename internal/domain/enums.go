// Package domain defines the core domain models for the evaluation service.
package domain

// ResultStatus represents the status of a single evaluation result.
type ResultStatus string

const (
	ResultStatusPending   ResultStatus = "pending"
	ResultStatusRunning   ResultStatus = "running"
	ResultStatusSucceeded ResultStatus = "succeeded"
	ResultStatusFailed    ResultStatus = "failed"
	ResultStatusTimeout   ResultStatus = "timeout"
)

// Terminal reports whether no further transitions are expected.
func (s ResultStatus) Terminal() bool {
	switch s {
	case ResultStatusSucceeded, ResultStatusFailed, ResultStatusTimeout:
		return true
	}
	return false
}

// ExecutorMode selects how queued runs are executed.
type ExecutorMode string

const (
	ExecutorModeSynthetic ExecutorMode = "synthetic"
	ExecutorModeAgent     ExecutorMode = "agent"
)

// FeedEventType represents the type of a run progress event.
type FeedEventType string

const (
	FeedEventRunQueued     FeedEventType = "run.queued"
	FeedEventResultUpdated FeedEventType = "result.updated"
	FeedEventRunCompleted  FeedEventType = "run.completed"
)

// Default labels applied when a create payload omits them.
const (
	DefaultVersionLabel = "New Version"
	DefaultContextName  = "New Context"
	DefaultCaseTitle    = "New Case"
)
