// Package workspace holds the client-side view of the evaluation tree and the
// operations a user performs on it.
package workspace

import (
	"slices"

	"github.com/domusnext/eval/internal/domain"
)

// NodeKind identifies what the selected node points at.
type NodeKind string

const (
	NodeVersion NodeKind = "version"
	NodeContext NodeKind = "context"
	NodeCase    NodeKind = "case"
)

// SelectedNode is the node shown in the detail pane. ContextID is set for
// context and case nodes, CaseID only for case nodes.
type SelectedNode struct {
	Kind      NodeKind `json:"type"`
	ContextID string   `json:"contextId,omitempty"`
	CaseID    string   `json:"caseId,omitempty"`
}

func VersionNode() SelectedNode { return SelectedNode{Kind: NodeVersion} }

func ContextNode(contextID string) SelectedNode {
	return SelectedNode{Kind: NodeContext, ContextID: contextID}
}

func CaseNode(contextID, caseID string) SelectedNode {
	return SelectedNode{Kind: NodeCase, ContextID: contextID, CaseID: caseID}
}

// RunConfig holds the knobs sent with every run.
type RunConfig struct {
	MaxCasesPerRun     int `json:"maxCasesPerRun"`
	ConcurrentRequests int `json:"concurrentRequests"`
}

// DefaultRunConfig returns the initial run configuration.
func DefaultRunConfig() RunConfig {
	return RunConfig{MaxCasesPerRun: 10, ConcurrentRequests: 4}
}

// Clamp raises every knob to at least 1.
func (c RunConfig) Clamp() RunConfig {
	c.MaxCasesPerRun = max(c.MaxCasesPerRun, 1)
	c.ConcurrentRequests = max(c.ConcurrentRequests, 1)
	return c
}

// State is an immutable snapshot; Reduce returns a new one for each action.
type State struct {
	Tree            []domain.Version
	ActiveVersionID string
	Selected        SelectedNode
	CheckedContexts map[string]bool
	CheckedCases    map[string]bool
	Busy            bool
	RunConfig       RunConfig
}

// NewState returns an empty state with the default run configuration.
func NewState() State {
	return State{
		Selected:        VersionNode(),
		CheckedContexts: map[string]bool{},
		CheckedCases:    map[string]bool{},
		RunConfig:       DefaultRunConfig(),
	}
}

// ActiveVersion returns the active version, or nil.
func (s State) ActiveVersion() *domain.Version {
	for i := range s.Tree {
		if s.Tree[i].ID == s.ActiveVersionID {
			return &s.Tree[i]
		}
	}
	return nil
}

// SelectedContext returns the context of the selected node, or nil.
func (s State) SelectedContext() *domain.Context {
	if s.Selected.Kind == NodeVersion {
		return nil
	}
	return findContext(s.ActiveVersion(), s.Selected.ContextID)
}

// SelectedCase returns the case of the selected node, or nil.
func (s State) SelectedCase() *domain.Case {
	if s.Selected.Kind != NodeCase {
		return nil
	}
	return findCase(s.SelectedContext(), s.Selected.CaseID)
}

// CheckedContextIDs returns the checked context ids in tree order.
func (s State) CheckedContextIDs() []string {
	var ids []string
	if v := s.ActiveVersion(); v != nil {
		for _, c := range v.Contexts {
			if s.CheckedContexts[c.ID] {
				ids = append(ids, c.ID)
			}
		}
	}
	return ids
}

// CheckedCaseIDs returns the checked case ids in tree order.
func (s State) CheckedCaseIDs() []string {
	var ids []string
	if v := s.ActiveVersion(); v != nil {
		for _, c := range v.Contexts {
			for _, k := range c.Cases {
				if s.CheckedCases[k.ID] {
					ids = append(ids, k.ID)
				}
			}
		}
	}
	return ids
}

func findContext(v *domain.Version, contextID string) *domain.Context {
	if v == nil {
		return nil
	}
	for i := range v.Contexts {
		if v.Contexts[i].ID == contextID {
			return &v.Contexts[i]
		}
	}
	return nil
}

func findCase(c *domain.Context, caseID string) *domain.Case {
	if c == nil {
		return nil
	}
	for i := range c.Cases {
		if c.Cases[i].ID == caseID {
			return &c.Cases[i]
		}
	}
	return nil
}

// Action is a state transition.
type Action interface {
	apply(State) State
}

// TreeLoaded replaces the tree after a fetch.
type TreeLoaded struct{ Tree []domain.Version }

// SelectVersion makes a version active.
type SelectVersion struct{ VersionID string }

// SelectNode changes the selected node within the active version.
type SelectNode struct{ Node SelectedNode }

// ToggleContext checks or unchecks a context together with all its cases.
type ToggleContext struct {
	ContextID string
	Checked   bool
}

// ToggleCase checks or unchecks one case.
type ToggleCase struct {
	CaseID  string
	Checked bool
}

// SetBusy marks an operation as in flight.
type SetBusy struct{ Busy bool }

// SetRunConfig replaces the run configuration. Values are clamped.
type SetRunConfig struct{ Config RunConfig }

// Reduce applies action to state.
func Reduce(state State, action Action) State {
	next := state.clone()
	return action.apply(next)
}

func (s State) clone() State {
	s.Tree = slices.Clone(s.Tree)
	s.CheckedContexts = cloneSet(s.CheckedContexts)
	s.CheckedCases = cloneSet(s.CheckedCases)
	return s
}

func cloneSet(in map[string]bool) map[string]bool {
	out := make(map[string]bool, len(in))
	for k, v := range in {
		if v {
			out[k] = true
		}
	}
	return out
}

func (a TreeLoaded) apply(s State) State {
	s.Tree = slices.Clone(a.Tree)

	validContexts := map[string]bool{}
	validCases := map[string]bool{}
	for _, v := range s.Tree {
		for _, c := range v.Contexts {
			validContexts[c.ID] = true
			for _, k := range c.Cases {
				validCases[k.ID] = true
			}
		}
	}
	for id := range s.CheckedContexts {
		if !validContexts[id] {
			delete(s.CheckedContexts, id)
		}
	}
	for id := range s.CheckedCases {
		if !validCases[id] {
			delete(s.CheckedCases, id)
		}
	}
	return s.repairSelection()
}

func (a SelectVersion) apply(s State) State {
	s.ActiveVersionID = a.VersionID
	s.Selected = VersionNode()
	return s.repairSelection()
}

func (a SelectNode) apply(s State) State {
	s.Selected = a.Node
	return s.repairSelection()
}

func (a ToggleContext) apply(s State) State {
	set(s.CheckedContexts, a.ContextID, a.Checked)
	if c := findContext(s.ActiveVersion(), a.ContextID); c != nil {
		for _, k := range c.Cases {
			set(s.CheckedCases, k.ID, a.Checked)
		}
	}
	return s
}

func (a ToggleCase) apply(s State) State {
	set(s.CheckedCases, a.CaseID, a.Checked)
	return s
}

func (a SetBusy) apply(s State) State {
	s.Busy = a.Busy
	return s
}

func (a SetRunConfig) apply(s State) State {
	s.RunConfig = a.Config.Clamp()
	return s
}

func set(m map[string]bool, id string, on bool) {
	if on {
		m[id] = true
		return
	}
	delete(m, id)
}

// repairSelection falls back to the first version when the active one is
// gone, and moves the selected node up the tree until it exists.
func (s State) repairSelection() State {
	active := s.ActiveVersion()
	if active == nil {
		s.ActiveVersionID = ""
		if len(s.Tree) > 0 {
			s.ActiveVersionID = s.Tree[0].ID
		}
		s.Selected = VersionNode()
		return s
	}

	if s.Selected.Kind == NodeVersion || s.Selected.Kind == "" {
		s.Selected = VersionNode()
		return s
	}

	ctx := findContext(active, s.Selected.ContextID)
	if ctx == nil {
		if len(active.Contexts) > 0 {
			s.Selected = ContextNode(active.Contexts[0].ID)
		} else {
			s.Selected = VersionNode()
		}
		return s
	}

	if s.Selected.Kind == NodeCase && findCase(ctx, s.Selected.CaseID) == nil {
		if len(ctx.Cases) > 0 {
			s.Selected = CaseNode(ctx.ID, ctx.Cases[0].ID)
		} else {
			s.Selected = ContextNode(ctx.ID)
		}
	}
	return s
}
