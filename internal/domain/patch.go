package domain

import (
	"bytes"
	"encoding/json"
)

// Field is a tri-state PATCH value: absent, explicit null, or a value.
type Field[T any] struct {
	Set   bool
	Null  bool
	Value T
}

// Present returns a field holding v.
func Present[T any](v T) Field[T] {
	return Field[T]{Set: true, Value: v}
}

// Cleared returns a field explicitly set to null.
func Cleared[T any]() Field[T] {
	return Field[T]{Set: true, Null: true}
}

// UnmarshalJSON is only invoked when the key is present in the payload.
func (f *Field[T]) UnmarshalJSON(data []byte) error {
	f.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		f.Null = true
		return nil
	}
	return json.Unmarshal(data, &f.Value)
}

// MarshalJSON emits null for cleared or absent fields.
func (f Field[T]) MarshalJSON() ([]byte, error) {
	if !f.Set || f.Null {
		return []byte("null"), nil
	}
	return json.Marshal(f.Value)
}

// HasValue reports whether the field carries a non-null value.
func (f Field[T]) HasValue() bool {
	return f.Set && !f.Null
}

// VersionInput holds the fields accepted when creating a version.
type VersionInput struct {
	Label        *string `json:"label,omitempty"`
	Notes        *string `json:"notes,omitempty"`
	AgentBaseURL *string `json:"agentBaseUrl,omitempty"`
}

// VersionPatch is a partial version update.
type VersionPatch struct {
	Label        Field[string] `json:"label"`
	Notes        Field[string] `json:"notes"`
	AgentBaseURL Field[string] `json:"agentBaseUrl"`
}

// ContextInput holds the fields accepted when creating a context.
type ContextInput struct {
	Name        *string         `json:"name,omitempty"`
	Description *string         `json:"description,omitempty"`
	Params      json.RawMessage `json:"params,omitempty"`
	Headers     json.RawMessage `json:"headers,omitempty"`
}

// ContextPatch is a partial context update.
// Params and Headers hold either a JSON object or a string containing JSON.
type ContextPatch struct {
	Name        Field[string]          `json:"name"`
	Description Field[string]          `json:"description"`
	Params      Field[json.RawMessage] `json:"params"`
	Headers     Field[json.RawMessage] `json:"headers"`
}

// CaseInput holds the fields accepted when creating a case.
type CaseInput struct {
	ContextID        string          `json:"contextId"`
	Title            *string         `json:"title,omitempty"`
	Description      *string         `json:"description,omitempty"`
	UserMessage      json.RawMessage `json:"userMessage,omitempty"`
	AssistantMessage json.RawMessage `json:"assistantMessage,omitempty"`
	Metadata         json.RawMessage `json:"metadata,omitempty"`
}

// CasePatch is a partial case update.
type CasePatch struct {
	Title            Field[string]          `json:"title"`
	Description      Field[string]          `json:"description"`
	UserMessage      Field[json.RawMessage] `json:"userMessage"`
	AssistantMessage Field[json.RawMessage] `json:"assistantMessage"`
	Metadata         Field[json.RawMessage] `json:"metadata"`
}
