package workspace

import "github.com/domusnext/eval/internal/domain"

// ScopeKind names what a run targets.
type ScopeKind string

const (
	ScopeVersion   ScopeKind = "version"
	ScopeContext   ScopeKind = "context"
	ScopeCase      ScopeKind = "case"
	ScopeSelection ScopeKind = "selection"
)

// RunScope describes which cases of the active version a run covers.
type RunScope struct {
	Kind       ScopeKind
	ContextID  string
	CaseID     string
	ContextIDs []string
	CaseIDs    []string
}

func VersionScope() RunScope { return RunScope{Kind: ScopeVersion} }

func ContextScope(contextID string) RunScope {
	return RunScope{Kind: ScopeContext, ContextID: contextID}
}

func CaseScope(contextID, caseID string) RunScope {
	return RunScope{Kind: ScopeCase, ContextID: contextID, CaseID: caseID}
}

func SelectionScope(contextIDs, caseIDs []string) RunScope {
	return RunScope{Kind: ScopeSelection, ContextIDs: contextIDs, CaseIDs: caseIDs}
}

// CheckedScope builds a selection scope from the checked boxes.
func (s State) CheckedScope() RunScope {
	return SelectionScope(s.CheckedContextIDs(), s.CheckedCaseIDs())
}

// Targets lists the cases of the active version the scope covers, before
// the server applies maxCasesPerRun.
func (s State) Targets(scope RunScope) []domain.Case {
	active := s.ActiveVersion()
	if active == nil {
		return nil
	}

	switch scope.Kind {
	case ScopeVersion:
		var out []domain.Case
		for _, c := range active.Contexts {
			out = append(out, c.Cases...)
		}
		return out
	case ScopeContext:
		if c := findContext(active, scope.ContextID); c != nil {
			return c.Cases
		}
		return nil
	case ScopeCase:
		if k := findCase(findContext(active, scope.ContextID), scope.CaseID); k != nil {
			return []domain.Case{*k}
		}
		return nil
	}

	// Selection: union of the checked contexts' cases and the checked cases.
	seen := map[string]bool{}
	var out []domain.Case
	add := func(k domain.Case) {
		if !seen[k.ID] {
			seen[k.ID] = true
			out = append(out, k)
		}
	}
	for _, id := range scope.ContextIDs {
		if c := findContext(active, id); c != nil {
			for _, k := range c.Cases {
				add(k)
			}
		}
	}
	for _, id := range scope.CaseIDs {
		for _, c := range active.Contexts {
			if k := findCase(&c, id); k != nil {
				add(*k)
			}
		}
	}
	return out
}

// RunRequest builds the request body for scope with the current run config.
func (s State) RunRequest(scope RunScope) domain.RunRequest {
	cfg := s.RunConfig.Clamp()
	req := domain.RunRequest{
		VersionID:          s.ActiveVersionID,
		MaxCasesPerRun:     cfg.MaxCasesPerRun,
		ConcurrentRequests: cfg.ConcurrentRequests,
	}
	switch scope.Kind {
	case ScopeContext:
		req.ContextIDs = []string{scope.ContextID}
	case ScopeCase:
		req.ContextIDs = []string{scope.ContextID}
		req.CaseIDs = []string{scope.CaseID}
	case ScopeSelection:
		if len(scope.ContextIDs) > 0 {
			req.ContextIDs = scope.ContextIDs
		}
		if len(scope.CaseIDs) > 0 {
			req.CaseIDs = scope.CaseIDs
		}
	}
	return req
}
