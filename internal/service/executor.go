package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/domusnext/eval/internal/adapter/agentclient"
	"github.com/domusnext/eval/internal/config"
	"github.com/domusnext/eval/internal/domain"
	"github.com/domusnext/eval/internal/logging"
	store "github.com/domusnext/eval/internal/repository"
)

// Executor materializes the results of a run.
type Executor interface {
	Mode() domain.ExecutorMode
	// Execute must have replaced the prior results of every targeted case
	// by the time it returns.
	Execute(ctx context.Context, plan RunPlan) error
	Close() error
}

// NewExecutor builds the executor selected by cfg.ExecutorMode.
func NewExecutor(cfg *config.Config, st store.Store, client *agentclient.Client, publisher Publisher, logger *zap.Logger) Executor {
	if domain.ExecutorMode(cfg.ExecutorMode) == domain.ExecutorModeAgent {
		return NewAgentExecutor(st, client, publisher, AgentOptions{
			Timeout:     cfg.AgentTimeout,
			MaxAttempts: cfg.AgentMaxAttempts,
			Backoff:     cfg.AgentRetryBackoff,
		}, logger)
	}
	return NewSyntheticExecutor(st, publisher, logger)
}

// SyntheticExecutor records every case as succeeded without calling the agent.
// The recorded response echoes the case's expected assistant message.
type SyntheticExecutor struct {
	store     store.Store
	publisher Publisher
	logger    *zap.Logger
	now       func() time.Time
	latency   func() time.Duration
}

// NewSyntheticExecutor creates a synthetic executor.
func NewSyntheticExecutor(st store.Store, publisher Publisher, logger *zap.Logger) *SyntheticExecutor {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	return &SyntheticExecutor{
		store:     st,
		publisher: publisher,
		logger:    logging.OrNop(logger),
		now:       time.Now,
		latency:   syntheticLatency,
	}
}

// syntheticLatency is uniform in [500ms, 1700ms).
func syntheticLatency() time.Duration {
	return time.Duration(500+rand.Int64N(1200)) * time.Millisecond
}

func (e *SyntheticExecutor) Mode() domain.ExecutorMode { return domain.ExecutorModeSynthetic }

func (e *SyntheticExecutor) Close() error { return nil }

func (e *SyntheticExecutor) Execute(ctx context.Context, plan RunPlan) error {
	now := e.now()
	results := make([]domain.Result, 0, len(plan.Targets))
	for _, target := range plan.Targets {
		request, err := requestPayload(target)
		if err != nil {
			return err
		}
		assistant := domain.NewAssistantText("")
		if target.Case.AssistantMessage != nil {
			assistant = *target.Case.AssistantMessage
		}
		response, err := json.Marshal(domain.ResponsePayload{AssistantMessage: assistant})
		if err != nil {
			return fmt.Errorf("failed to encode response payload: %w", err)
		}

		latency := e.latency().Milliseconds()
		startedAt := now
		completedAt := startedAt.Add(time.Duration(latency) * time.Millisecond)
		results = append(results, domain.Result{
			ID:             uuid.New().String(),
			VersionID:      plan.Version.ID,
			ContextID:      target.Context.ID,
			CaseID:         target.Case.ID,
			RunID:          plan.RunID,
			Status:         domain.ResultStatusSucceeded,
			RequestPayload: request,
			ResponseJSON:   response,
			LatencyMs:      &latency,
			StartedAt:      &startedAt,
			CompletedAt:    &completedAt,
			CreatedAt:      now,
		})
	}

	if err := e.store.ReplaceResults(ctx, plan.Version.ID, results); err != nil {
		return fmt.Errorf("failed to store results: %w", err)
	}

	queued := domain.NewFeedEvent(domain.FeedEventRunQueued, plan.Version.ID, plan.RunID)
	queued.CaseCount = len(results)
	e.publisher.Publish(plan.Version.ID, queued)
	for i := range results {
		e.publisher.Publish(plan.Version.ID, resultEvent(&results[i]))
	}
	e.publisher.Publish(plan.Version.ID, domain.NewFeedEvent(domain.FeedEventRunCompleted, plan.Version.ID, plan.RunID))
	return nil
}

func requestPayload(target domain.RunTarget) (json.RawMessage, error) {
	data, err := json.Marshal(domain.RequestPayload{
		Params:      target.Context.Params,
		Headers:     target.Context.Headers,
		UserMessage: target.Case.UserMessage,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request payload: %w", err)
	}
	return data, nil
}

func resultEvent(r *domain.Result) domain.FeedEvent {
	event := domain.NewFeedEvent(domain.FeedEventResultUpdated, r.VersionID, r.RunID)
	event.CaseID = r.CaseID
	event.Status = r.Status
	event.LatencyMs = r.LatencyMs
	if r.Error != nil {
		event.Error = *r.Error
	}
	return event
}
