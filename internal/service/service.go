// Package service implements the evaluation workspace business logic.
package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/domusnext/eval/internal/adapter/blob"
	"github.com/domusnext/eval/internal/config"
	"github.com/domusnext/eval/internal/domain"
	"github.com/domusnext/eval/internal/logging"
	"github.com/domusnext/eval/internal/policy"
	store "github.com/domusnext/eval/internal/repository"
)

// Publisher receives run progress events.
type Publisher interface {
	Publish(versionID string, event domain.FeedEvent)
}

// NopPublisher discards every event.
type NopPublisher struct{}

func (NopPublisher) Publish(string, domain.FeedEvent) {}

// RunPolicy decides whether a run may be queued.
type RunPolicy interface {
	Evaluate(ctx context.Context, input policy.Input) (policy.Decision, error)
}

// Service wires the store, executor and adapters together.
type Service struct {
	store     store.Store
	executor  Executor
	policy    RunPolicy
	publisher Publisher
	bucket    blob.Bucket
	config    *config.Config
	logger    *zap.Logger
	now       func() time.Time
}

// New creates a new service. publisher, bucket and logger may be nil.
func New(st store.Store, executor Executor, runPolicy RunPolicy, publisher Publisher, bucket blob.Bucket, cfg *config.Config, logger *zap.Logger) *Service {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	if cfg == nil {
		cfg = config.Default()
	}
	return &Service{
		store:     st,
		executor:  executor,
		policy:    runPolicy,
		publisher: publisher,
		bucket:    bucket,
		config:    cfg,
		logger:    logging.OrNop(logger),
		now:       time.Now,
	}
}

// Store returns the underlying store.
func (s *Service) Store() store.Store {
	return s.store
}

// Bucket returns the upload bucket, or nil when uploads are disabled.
func (s *Service) Bucket() blob.Bucket {
	return s.bucket
}

// Close waits for in-flight executions to stop.
func (s *Service) Close() error {
	if s.executor == nil {
		return nil
	}
	return s.executor.Close()
}
