package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/domusnext/eval/internal/domain"
	"github.com/domusnext/eval/internal/policy"
)

// RunPlan is everything an executor needs to carry out one run.
type RunPlan struct {
	RunID        string
	Version      *domain.Version
	AgentBaseURL string
	Targets      []domain.RunTarget
	Concurrency  int
}

// QueueRun selects the cases in scope and hands them to the executor.
//
// Selection: contexts are restricted to ContextIDs when given, cases are then
// narrowed to CaseIDs when given, and the list is truncated to MaxCasesPerRun
// when positive. An empty selection returns a ticket with no writes.
func (s *Service) QueueRun(ctx context.Context, req domain.RunRequest) (*domain.RunTicket, error) {
	if strings.TrimSpace(req.VersionID) == "" {
		return nil, domain.ValidationError("Missing versionId")
	}

	version, err := s.store.GetVersion(ctx, req.VersionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load version: %w", err)
	}
	if version == nil {
		return nil, domain.NotFoundError("Version")
	}

	targets, err := s.selectTargets(ctx, req)
	if err != nil {
		return nil, err
	}

	ticket := &domain.RunTicket{RunID: uuid.New().String()}
	if len(targets) == 0 {
		return ticket, nil
	}

	plan := RunPlan{
		RunID:        ticket.RunID,
		Version:      version,
		AgentBaseURL: s.agentBaseURL(version),
		Targets:      targets,
		Concurrency:  req.ConcurrentRequests,
	}
	if plan.Concurrency <= 0 {
		plan.Concurrency = s.config.DefaultConcurrency
	}

	if err := s.checkPolicy(ctx, req, plan); err != nil {
		return nil, err
	}

	if err := s.executor.Execute(ctx, plan); err != nil {
		return nil, fmt.Errorf("failed to execute run: %w", err)
	}

	ticket.CaseCount = len(targets)
	s.logger.Info("run queued",
		zap.String("run_id", ticket.RunID),
		zap.String("version_id", version.ID),
		zap.Int("case_count", ticket.CaseCount),
		zap.String("mode", string(s.executor.Mode())))
	return ticket, nil
}

func (s *Service) selectTargets(ctx context.Context, req domain.RunRequest) ([]domain.RunTarget, error) {
	contextRecords, err := s.store.ListContexts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list contexts: %w", err)
	}
	if len(contextRecords) == 0 {
		return nil, nil
	}

	wantContexts := toSet(req.ContextIDs)
	selected := make(map[string]*domain.Context, len(contextRecords))
	var selectedIDs []string
	for i := range contextRecords {
		r := &contextRecords[i]
		if wantContexts != nil && !wantContexts[r.ID] {
			continue
		}
		c := toContext(r)
		selected[r.ID] = &c
		selectedIDs = append(selectedIDs, r.ID)
	}

	caseRecords, err := s.store.ListCasesByContexts(ctx, selectedIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to list cases: %w", err)
	}

	wantCases := toSet(req.CaseIDs)
	var targets []domain.RunTarget
	for i := range caseRecords {
		r := &caseRecords[i]
		if wantCases != nil && !wantCases[r.ID] {
			continue
		}
		owner, ok := selected[r.ContextID]
		if !ok {
			continue
		}
		kase := toCase(r)
		targets = append(targets, domain.RunTarget{Context: owner, Case: &kase})
		if req.MaxCasesPerRun > 0 && len(targets) == req.MaxCasesPerRun {
			break
		}
	}
	return targets, nil
}

func (s *Service) checkPolicy(ctx context.Context, req domain.RunRequest, plan RunPlan) error {
	if s.policy == nil {
		return nil
	}
	decision, err := s.policy.Evaluate(ctx, policy.Input{
		Mode:               string(s.executor.Mode()),
		VersionID:          plan.Version.ID,
		AgentBaseURL:       plan.AgentBaseURL,
		CaseCount:          len(plan.Targets),
		ConcurrentRequests: req.ConcurrentRequests,
	})
	if err != nil {
		return fmt.Errorf("failed to evaluate run policy: %w", err)
	}
	if !decision.Allowed() {
		s.logger.Warn("run blocked by policy",
			zap.String("version_id", plan.Version.ID),
			zap.String("reason", decision.Reason))
		reason := decision.Reason
		if reason == "" {
			reason = "blocked by policy"
		}
		return domain.ValidationError("Run rejected: %s", reason)
	}
	return nil
}

func (s *Service) agentBaseURL(version *domain.Version) string {
	if version.AgentBaseURL != nil && *version.AgentBaseURL != "" {
		return *version.AgentBaseURL
	}
	return s.config.DefaultAgentBaseURL
}

// ListRunResults returns the results written by one run.
func (s *Service) ListRunResults(ctx context.Context, runID string) ([]domain.Result, error) {
	if runID == "" {
		return nil, domain.ValidationError("Missing runId")
	}
	results, err := s.store.ListResultsByRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list run results: %w", err)
	}
	if results == nil {
		results = []domain.Result{}
	}
	return results, nil
}

func toSet(ids []string) map[string]bool {
	if len(ids) == 0 {
		return nil
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
