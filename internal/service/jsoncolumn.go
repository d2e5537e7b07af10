package service

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/domusnext/eval/internal/domain"
)

const emptyObject = "{}"

// normalizeJSON turns a request value into the text stored in a JSON column.
// A string that itself holds valid JSON is stored as-is rather than double-encoded.
func normalizeJSON(raw json.RawMessage, fallback string) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return fallback, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		if json.Valid([]byte(s)) {
			return s, nil
		}
		return string(raw), nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// objectColumn normalizes a value that must be a JSON object.
func objectColumn(field string, raw json.RawMessage) (string, error) {
	text, err := normalizeJSON(raw, emptyObject)
	if err != nil {
		return "", domain.ValidationError("Invalid %s: %v", field, err)
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err != nil || obj == nil {
		return "", domain.ValidationError("Invalid %s: expected a JSON object", field)
	}
	return text, nil
}

// headersColumn normalizes a value that must be an object of strings.
func headersColumn(raw json.RawMessage) (string, error) {
	text, err := normalizeJSON(raw, emptyObject)
	if err != nil {
		return "", domain.ValidationError("Invalid headers: %v", err)
	}
	var headers map[string]string
	if err := json.Unmarshal([]byte(text), &headers); err != nil || headers == nil {
		return "", domain.ValidationError("Invalid headers: expected an object of strings")
	}
	return text, nil
}

func userMessageColumn(raw json.RawMessage) (string, error) {
	text, err := normalizeJSON(raw, "")
	if err != nil {
		return "", domain.ValidationError("Invalid userMessage: %v", err)
	}
	if text == "" {
		return defaultUserMessageJSON(), nil
	}
	var msg domain.UserMessage
	if err := json.Unmarshal([]byte(text), &msg); err != nil {
		return "", domain.ValidationError("Invalid userMessage: %v", err)
	}
	return text, nil
}

func assistantMessageColumn(raw json.RawMessage) (string, error) {
	text, err := normalizeJSON(raw, "")
	if err != nil {
		return "", domain.ValidationError("Invalid assistantMessage: %v", err)
	}
	var msg domain.AssistantMessage
	if err := json.Unmarshal([]byte(text), &msg); err != nil {
		return "", domain.ValidationError("Invalid assistantMessage: %v", err)
	}
	return text, nil
}

func defaultUserMessageJSON() string {
	data, err := json.Marshal(domain.DefaultUserMessage())
	if err != nil {
		panic(fmt.Sprintf("default user message: %v", err))
	}
	return string(data)
}

// Decoders used on the read path fall back to defaults instead of failing.

func decodeParams(text string) map[string]any {
	var params map[string]any
	if err := json.Unmarshal([]byte(text), &params); err != nil || params == nil {
		return map[string]any{}
	}
	return params
}

func decodeHeaders(text string) map[string]string {
	var headers map[string]string
	if err := json.Unmarshal([]byte(text), &headers); err != nil || headers == nil {
		return map[string]string{}
	}
	return headers
}

func decodeUserMessage(text string) domain.UserMessage {
	var msg domain.UserMessage
	if err := json.Unmarshal([]byte(text), &msg); err != nil {
		return domain.DefaultUserMessage()
	}
	return msg
}

func decodeAssistantMessage(text *string) *domain.AssistantMessage {
	if text == nil || bytes.Equal(bytes.TrimSpace([]byte(*text)), []byte("null")) {
		return nil
	}
	var msg domain.AssistantMessage
	if err := json.Unmarshal([]byte(*text), &msg); err == nil {
		return &msg
	}
	// Valid JSON with unusable content keeps the message but drops its parts.
	var head struct {
		ProviderOptions json.RawMessage `json:"providerOptions"`
	}
	if err := json.Unmarshal([]byte(*text), &head); err != nil {
		return nil
	}
	return &domain.AssistantMessage{Role: "assistant", Content: domain.Parts{}, ProviderOptions: head.ProviderOptions}
}
