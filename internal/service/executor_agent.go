package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/domusnext/eval/internal/adapter/agentclient"
	"github.com/domusnext/eval/internal/domain"
	"github.com/domusnext/eval/internal/logging"
	store "github.com/domusnext/eval/internal/repository"
)

// ErrExecutorClosed is returned by Execute after Close.
var ErrExecutorClosed = errors.New("executor is closed")

// AgentOptions bounds each agent call.
type AgentOptions struct {
	Timeout     time.Duration
	MaxAttempts int
	Backoff     time.Duration
}

// AgentExecutor sends every case to the configured agent. Execute writes the
// pending rows and returns; the calls run in the background with at most
// plan.Concurrency in flight.
type AgentExecutor struct {
	store     store.Store
	client    *agentclient.Client
	publisher Publisher
	opts      AgentOptions
	logger    *zap.Logger
	now       func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	// mu orders wg.Add in Execute against Close.
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewAgentExecutor creates an agent executor.
func NewAgentExecutor(st store.Store, client *agentclient.Client, publisher Publisher, opts AgentOptions, logger *zap.Logger) *AgentExecutor {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	if client == nil {
		client = agentclient.NewClient()
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &AgentExecutor{
		store:     st,
		client:    client,
		publisher: publisher,
		opts:      opts,
		logger:    logging.OrNop(logger),
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (e *AgentExecutor) Mode() domain.ExecutorMode { return domain.ExecutorModeAgent }

// Close cancels in-flight calls and waits for their results to be recorded.
func (e *AgentExecutor) Close() error {
	e.mu.Lock()
	e.closed = true
	e.cancel()
	e.mu.Unlock()
	e.wg.Wait()
	return nil
}

// acquire registers a background run unless the executor is closed.
func (e *AgentExecutor) acquire() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrExecutorClosed
	}
	e.wg.Add(1)
	return nil
}

// Wait blocks until every background run has finished.
func (e *AgentExecutor) Wait() {
	e.wg.Wait()
}

func (e *AgentExecutor) Execute(ctx context.Context, plan RunPlan) (err error) {
	if err := e.acquire(); err != nil {
		return err
	}
	defer func() {
		if err != nil {
			e.wg.Done()
		}
	}()

	now := e.now()
	results := make([]domain.Result, 0, len(plan.Targets))
	for _, target := range plan.Targets {
		request, err := requestPayload(target)
		if err != nil {
			return err
		}
		results = append(results, domain.Result{
			ID:             uuid.New().String(),
			VersionID:      plan.Version.ID,
			ContextID:      target.Context.ID,
			CaseID:         target.Case.ID,
			RunID:          plan.RunID,
			Status:         domain.ResultStatusPending,
			RequestPayload: request,
			CreatedAt:      now,
		})
	}

	if err := e.store.ReplaceResults(ctx, plan.Version.ID, results); err != nil {
		return fmt.Errorf("failed to store pending results: %w", err)
	}

	queued := domain.NewFeedEvent(domain.FeedEventRunQueued, plan.Version.ID, plan.RunID)
	queued.CaseCount = len(results)
	e.publisher.Publish(plan.Version.ID, queued)

	go func() {
		defer e.wg.Done()
		e.process(plan, results)
	}()
	return nil
}

func (e *AgentExecutor) process(plan RunPlan, results []domain.Result) {
	var g errgroup.Group
	g.SetLimit(max(plan.Concurrency, 1))
	for i := range results {
		result := &results[i]
		target := plan.Targets[i]
		g.Go(func() error {
			e.executeCase(e.ctx, plan, target, result)
			return nil
		})
	}
	_ = g.Wait() // outcomes are recorded per result

	e.publisher.Publish(plan.Version.ID, domain.NewFeedEvent(domain.FeedEventRunCompleted, plan.Version.ID, plan.RunID))
	e.logger.Info("run finished", zap.String("run_id", plan.RunID), zap.Int("case_count", len(results)))
}

func (e *AgentExecutor) executeCase(ctx context.Context, plan RunPlan, target domain.RunTarget, result *domain.Result) {
	// Status writes must land even while shutting down.
	writeCtx := context.WithoutCancel(ctx)

	startedAt := e.now()
	result.Status = domain.ResultStatusRunning
	result.StartedAt = &startedAt
	e.record(writeCtx, result)

	req := agentclient.Request{
		Params:         target.Context.Params,
		RecentMessages: []domain.UserMessage{target.Case.UserMessage},
	}

	var completion *agentclient.Completion
	var callErr error
	status := domain.ResultStatusFailed
	for attempt := 1; attempt <= e.opts.MaxAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
		completion, callErr = e.client.Collect(callCtx, plan.AgentBaseURL, req, target.Context.Headers)
		timedOut := errors.Is(callCtx.Err(), context.DeadlineExceeded)
		cancel()

		if callErr == nil {
			status = domain.ResultStatusSucceeded
			break
		}
		if timedOut {
			status = domain.ResultStatusTimeout
			break
		}
		if ctx.Err() != nil || !retryable(callErr) || attempt == e.opts.MaxAttempts {
			break
		}

		e.logger.Warn("agent call failed, retrying",
			zap.String("run_id", plan.RunID),
			zap.String("case_id", target.Case.ID),
			zap.Int("attempt", attempt),
			zap.Error(callErr))
		select {
		case <-time.After(e.opts.Backoff * time.Duration(attempt)):
		case <-ctx.Done():
		}
	}

	completedAt := e.now()
	latency := completedAt.Sub(startedAt).Milliseconds()
	result.Status = status
	result.CompletedAt = &completedAt
	result.LatencyMs = &latency
	if completion != nil && status == domain.ResultStatusSucceeded {
		if data, err := json.Marshal(domain.ResponsePayload{AssistantMessage: domain.NewAssistantText(completion.Text)}); err == nil {
			result.ResponseJSON = data
		}
	}
	if callErr != nil {
		msg := callErr.Error()
		result.Error = &msg
	}
	e.record(writeCtx, result)
}

func (e *AgentExecutor) record(ctx context.Context, result *domain.Result) {
	if err := e.store.UpdateResult(ctx, result); err != nil {
		e.logger.Error("failed to update result",
			zap.String("result_id", result.ID),
			zap.String("status", string(result.Status)),
			zap.Error(err))
	}
	e.publisher.Publish(result.VersionID, resultEvent(result))
}

func retryable(err error) bool {
	var statusErr *agentclient.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}
	var agentErr *agentclient.AgentError
	if errors.As(err, &agentErr) {
		return false
	}
	return true
}
