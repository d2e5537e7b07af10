// Package store defines the storage interface and implementations.
package store

import (
	"context"
	"time"

	"github.com/domusnext/eval/internal/domain"
)

// Store defines the interface for data persistence.
type Store interface {
	// Version operations
	CreateVersion(ctx context.Context, version *domain.Version) error
	GetVersion(ctx context.Context, versionID string) (*domain.Version, error)
	ListVersions(ctx context.Context) ([]domain.Version, error)
	UpdateVersion(ctx context.Context, versionID string, patch domain.VersionPatch, updatedAt time.Time) error
	DeleteVersion(ctx context.Context, versionID string) error

	// Context operations
	CreateContext(ctx context.Context, record *ContextRecord) error
	GetContext(ctx context.Context, contextID string) (*ContextRecord, error)
	ListContexts(ctx context.Context) ([]ContextRecord, error)
	UpdateContext(ctx context.Context, contextID string, update ContextUpdate, updatedAt time.Time) error
	DeleteContext(ctx context.Context, contextID string) error

	// Case operations
	CreateCase(ctx context.Context, record *CaseRecord) error
	GetCase(ctx context.Context, caseID string) (*CaseRecord, error)
	ListCasesByContexts(ctx context.Context, contextIDs []string) ([]CaseRecord, error)
	UpdateCase(ctx context.Context, caseID string, update CaseUpdate, updatedAt time.Time) error
	DeleteCase(ctx context.Context, caseID string) error

	// Result operations
	ListResults(ctx context.Context, versionIDs, caseIDs []string) ([]domain.Result, error)
	ListResultsByRun(ctx context.Context, runID string) ([]domain.Result, error)
	ReplaceResults(ctx context.Context, versionID string, results []domain.Result) error
	UpdateResult(ctx context.Context, result *domain.Result) error

	// Lifecycle
	Close() error
}

// ContextRecord is a stored context with its JSON columns left encoded.
type ContextRecord struct {
	ID          string
	Name        string
	Description *string
	ParamsJSON  string
	HeadersJSON string
	OrderIndex  int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CaseRecord is a stored case with its JSON columns left encoded.
type CaseRecord struct {
	ID                   string
	ContextID            string
	Title                string
	Description          *string
	UserMessageJSON      string
	AssistantMessageJSON *string
	MetadataJSON         string
	OrderIndex           int64
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// ContextUpdate lists the context columns to overwrite.
// A null on a NOT NULL column is ignored.
type ContextUpdate struct {
	Name        domain.Field[string]
	Description domain.Field[string]
	ParamsJSON  domain.Field[string]
	HeadersJSON domain.Field[string]
}

// CaseUpdate lists the case columns to overwrite.
type CaseUpdate struct {
	Title                domain.Field[string]
	Description          domain.Field[string]
	UserMessageJSON      domain.Field[string]
	AssistantMessageJSON domain.Field[string]
	MetadataJSON         domain.Field[string]
}
