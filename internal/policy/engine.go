// Package policy evaluates run-admission rules with OPA.
package policy

import (
	"context"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/v1/rego"
)

// Actions a policy can return.
const (
	ActionAllow = "allow"
	ActionBlock = "block"
)

// Input is the document the run policy is evaluated against.
type Input struct {
	Mode               string `json:"mode"`
	VersionID          string `json:"versionId"`
	AgentBaseURL       string `json:"agentBaseUrl"`
	CaseCount          int    `json:"caseCount"`
	ConcurrentRequests int    `json:"concurrentRequests"`
}

// Decision is the outcome of a policy evaluation.
type Decision struct {
	Action string
	Reason string
}

// Allowed reports whether the run may proceed.
func (d Decision) Allowed() bool {
	return d.Action != ActionBlock
}

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.run_policy.decision"),
		rego.Module("run_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// NewEngineFromFile loads the policy from path, or the default policy when path is empty.
func NewEngineFromFile(ctx context.Context, path string) (*Engine, error) {
	if path == "" {
		return NewEngine(ctx, DefaultPolicy)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return NewEngine(ctx, string(content))
}

// Evaluate checks whether a run may be queued.
func (e *Engine) Evaluate(ctx context.Context, input Input) (Decision, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return Decision{}, fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return Decision{Action: ActionAllow, Reason: "default"}, nil
	}

	switch val := results[0].Expressions[0].Value.(type) {
	case string:
		return Decision{Action: val}, nil
	case map[string]interface{}:
		d := Decision{Action: ActionAllow}
		if action, ok := val["action"].(string); ok {
			d.Action = action
		}
		if reason, ok := val["reason"].(string); ok {
			d.Reason = reason
		}
		return d, nil
	default:
		return Decision{Action: ActionAllow, Reason: "unexpected return type"}, nil
	}
}

// DefaultPolicy is the built-in run policy.
const DefaultPolicy = `
package run_policy

default decision := {"action": "allow"}

# Real executions need somewhere to send the cases.
decision := {"action": "block", "reason": "agent base URL is not configured for this version"} if {
	input.mode == "agent"
	input.agentBaseUrl == ""
} else := {"action": "block", "reason": "concurrentRequests must not exceed 64"} if {
	input.mode == "agent"
	input.concurrentRequests > 64
}
`
