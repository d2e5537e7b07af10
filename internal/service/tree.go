package service

import (
	"context"
	"fmt"

	"github.com/domusnext/eval/internal/domain"
	store "github.com/domusnext/eval/internal/repository"
)

// FetchTree loads every version with the shared contexts and cases, each case
// carrying the newest result recorded for that version.
func (s *Service) FetchTree(ctx context.Context) ([]domain.Version, error) {
	versions, err := s.store.ListVersions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	if len(versions) == 0 {
		return []domain.Version{}, nil
	}

	contextRecords, err := s.store.ListContexts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list contexts: %w", err)
	}
	contextIDs := make([]string, len(contextRecords))
	for i, c := range contextRecords {
		contextIDs[i] = c.ID
	}

	caseRecords, err := s.store.ListCasesByContexts(ctx, contextIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to list cases: %w", err)
	}
	caseIDs := make([]string, len(caseRecords))
	for i, c := range caseRecords {
		caseIDs[i] = c.ID
	}

	versionIDs := make([]string, len(versions))
	for i, v := range versions {
		versionIDs[i] = v.ID
	}

	results, err := s.store.ListResults(ctx, versionIDs, caseIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}

	// Results arrive newest first; keep the first per (version, case).
	latest := make(map[string]map[string]*domain.RunSummary, len(versions))
	for i := range results {
		r := &results[i]
		byCase := latest[r.VersionID]
		if byCase == nil {
			byCase = make(map[string]*domain.RunSummary)
			latest[r.VersionID] = byCase
		}
		if _, seen := byCase[r.CaseID]; !seen {
			byCase[r.CaseID] = r.Summary()
		}
	}

	skeleton := buildSkeleton(contextRecords, caseRecords)

	tree := make([]domain.Version, len(versions))
	for i, v := range versions {
		v.Contexts = cloneContexts(skeleton, latest[v.ID])
		tree[i] = v
	}
	return tree, nil
}

// buildSkeleton groups cases under their contexts. Cases whose context is
// missing from the batch are skipped.
func buildSkeleton(contextRecords []store.ContextRecord, caseRecords []store.CaseRecord) []domain.Context {
	contexts := make([]domain.Context, len(contextRecords))
	index := make(map[string]int, len(contextRecords))
	for i := range contextRecords {
		contexts[i] = toContext(&contextRecords[i])
		index[contextRecords[i].ID] = i
	}
	for i := range caseRecords {
		pos, ok := index[caseRecords[i].ContextID]
		if !ok {
			continue
		}
		contexts[pos].Cases = append(contexts[pos].Cases, toCase(&caseRecords[i]))
	}
	return contexts
}

func cloneContexts(skeleton []domain.Context, summaries map[string]*domain.RunSummary) []domain.Context {
	out := make([]domain.Context, len(skeleton))
	for i, c := range skeleton {
		cases := make([]domain.Case, len(c.Cases))
		for j, kase := range c.Cases {
			if summary, ok := summaries[kase.ID]; ok {
				copied := *summary
				kase.LastRunSummary = &copied
			}
			cases[j] = kase
		}
		c.Cases = cases
		out[i] = c
	}
	return out
}

func toContext(r *store.ContextRecord) domain.Context {
	return domain.Context{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Params:      decodeParams(r.ParamsJSON),
		Headers:     decodeHeaders(r.HeadersJSON),
		OrderIndex:  r.OrderIndex,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		Cases:       []domain.Case{},
	}
}

func toCase(r *store.CaseRecord) domain.Case {
	return domain.Case{
		ID:               r.ID,
		ContextID:        r.ContextID,
		Title:            r.Title,
		Description:      r.Description,
		UserMessage:      decodeUserMessage(r.UserMessageJSON),
		AssistantMessage: decodeAssistantMessage(r.AssistantMessageJSON),
		Metadata:         decodeParams(r.MetadataJSON),
		OrderIndex:       r.OrderIndex,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}
