// Package loadtest drives bursts of streaming chat requests against the agent
// and summarizes their latency.
package loadtest

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Header keys the agent expects on every request.
const (
	FamilyIDHeader = "X-Family-ID"
	UserIDHeader   = "X-User-ID"
	TimezoneHeader = "X-Timezone"
	TraceIDHeader  = "TraceId"
)

// DefaultTargetURL is the agent's local streaming endpoint.
const DefaultTargetURL = "http://localhost:8082/agent/v1/chat/completion/stream"

// Scenario describes one load test run.
type Scenario struct {
	TargetURL       string            `yaml:"target_url"`
	RequestsPerTick int               `yaml:"requests_per_tick"`
	Interval        time.Duration     `yaml:"interval"`
	Duration        time.Duration     `yaml:"duration"`
	Grace           time.Duration     `yaml:"grace"`
	Params          map[string]any    `yaml:"params"`
	Headers         map[string]string `yaml:"headers"`
	Queries         []string          `yaml:"queries"`
}

// DefaultScenario fires 80 requests a second for 20 seconds.
func DefaultScenario() Scenario {
	return Scenario{
		TargetURL:       DefaultTargetURL,
		RequestsPerTick: 80,
		Interval:        time.Second,
		Duration:        20 * time.Second,
		Grace:           5 * time.Second,
		Params:          defaultParams(),
		Headers: map[string]string{
			FamilyIDHeader: "09a097f6-d708-49e4-8ccf-a78cab898ba0",
			UserIDHeader:   "a7a2dfb9-0995-489a-929e-88be06e1bf2f",
			TimezoneHeader: "Asia/Shanghai",
		},
		Queries: append([]string(nil), defaultQueries...),
	}
}

// LoadScenario reads a YAML scenario on top of the defaults.
func LoadScenario(path string) (Scenario, error) {
	s := DefaultScenario()
	data, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("failed to read scenario: %w", err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("failed to parse scenario %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

// Validate rejects scenarios that cannot fire a single request.
func (s Scenario) Validate() error {
	if s.TargetURL == "" {
		return errors.New("scenario target_url is required")
	}
	if s.RequestsPerTick < 1 {
		return fmt.Errorf("requests_per_tick must be positive, got %d", s.RequestsPerTick)
	}
	if s.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", s.Interval)
	}
	if s.Duration < s.Interval {
		return fmt.Errorf("duration %s is shorter than interval %s", s.Duration, s.Interval)
	}
	if s.Grace < 0 {
		return fmt.Errorf("grace must not be negative, got %s", s.Grace)
	}
	if len(s.Queries) == 0 {
		return errors.New("scenario needs at least one query")
	}
	return nil
}

func defaultParams() map[string]any {
	return map[string]any{
		"environment": map[string]any{
			"family_info": map[string]any{
				"family_id": "09a097f6-d708-49e4-8ccf-a78cab898ba0",
				"name":      "Load test family",
				"roles": []any{
					map[string]any{
						"family_role_id": "d822b1c4-ab4e-45fd-82cb-94d90b8fba5b",
						"role_name":      "Emily Wilson (Daughter of Robert & Linda)",
						"user_id":        nil,
						"user_name":      nil,
						"birthday":       "2025-09-23T00:00:00Z",
					},
					map[string]any{
						"family_role_id": "1bbcecb8-6f46-42e7-865c-16723d9c47b6",
						"role_name":      "Sarah Carter (Wife of Michael)",
						"user_id":        nil,
						"user_name":      nil,
						"birthday":       "2025-09-23T00:00:00Z",
					},
				},
			},
			"user_brief": map[string]any{
				"task": map[string]any{
					"task_lists": []any{
						map[string]any{
							"task_list_id": "626726a9-fe42-4607-ae2d-3128d598bf6a",
							"name":         "hello",
							"description":  nil,
						},
					},
				},
			},
			"chat_info": map[string]any{
				"conversation_id":         "89ffae50-7ee6-49af-ba4b-35ceb6a3f5f8",
				"turn_id":                 "9348ee45-7512-4943-81bc-dbbb3a53923a",
				"user_ui_message_id":      "cde621ab-e707-4b5d-9ac4-8de66bd11478",
				"assistant_ui_message_id": "cc5a8f76-21e1-4557-8266-180017d32573",
			},
		},
	}
}

// Blank entries are skipped but still consume a request id.
var defaultQueries = []string{
	"Schedule a dentist appointment for next Monday at 2 PM",
	"Set up a weekly team meeting every Friday at 10 AM",
	"Change my lunch with Sarah from tomorrow noon to 1 PM",
	"Cancel my gym session scheduled for this Thursday evening",
	"What's on my schedule for next Tuesday?",
	"Mark my birthday party on June 15th as an all-day event",
	"I need to extend my meeting next Monday by 30 minutes",
	"",
	"Find a time when all my family members are free this weekend",
	"Create a task to clean the garage this weekend",
	"Add 'pay electricity bill' to my to-do list",
	"Create a new list called 'Home Maintenance'",
	"Mark the dishwasher cleaning task as completed",
	"show me all the uncompleted tasks",
	"",
	"Create a meal plan for Monday with oatmeal for breakfast, chicken salad for lunch, and pasta for dinner",
	"Find a recipe for chocolate chip cookies that's easy to make",
	"What can I make with chicken breast, spinach, and rice?",
	"",
	"Add milk, eggs, and bread to my grocery list",
	"Add 2 avocados to the list, but note they should be firm, not too ripe",
	"What items do I currently have on my grocery list?",
	"What will the weather be like in Kyoto, Japan next week?",
	"Help me plan a dinner party for 8 people this Saturday and suggest a shopping list with quantities.",
	"I want to eat Peking Roasted Duck tomorrow, prepare the grocery list for me",
}
