package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// PartType discriminates message parts.
type PartType string

const (
	PartTypeText  PartType = "text"
	PartTypeImage PartType = "image"
	PartTypeFile  PartType = "file"
)

// Part is one element of a multi-part message.
type Part interface {
	PartType() PartType
}

// TextPart is a plain text part.
type TextPart struct {
	Text            string          `json:"text"`
	ProviderOptions json.RawMessage `json:"providerOptions,omitempty"`
}

// ImagePart references an image by URL or data URL.
type ImagePart struct {
	URL             string          `json:"url"`
	Alt             string          `json:"alt,omitempty"`
	Detail          string          `json:"detail,omitempty"`
	Key             string          `json:"key,omitempty"`
	Size            int64           `json:"size,omitempty"`
	MimeType        string          `json:"mimeType,omitempty"`
	ProviderOptions json.RawMessage `json:"providerOptions,omitempty"`
}

// FilePart references a file the agent can fetch.
type FilePart struct {
	URL             string          `json:"url"`
	Name            string          `json:"name,omitempty"`
	MimeType        string          `json:"mimeType,omitempty"`
	Size            int64           `json:"size,omitempty"`
	Key             string          `json:"key,omitempty"`
	ProviderOptions json.RawMessage `json:"providerOptions,omitempty"`
}

func (TextPart) PartType() PartType  { return PartTypeText }
func (ImagePart) PartType() PartType { return PartTypeImage }
func (FilePart) PartType() PartType  { return PartTypeFile }

func (p TextPart) MarshalJSON() ([]byte, error) {
	type alias TextPart
	return json.Marshal(struct {
		Type PartType `json:"type"`
		alias
	}{PartTypeText, alias(p)})
}

func (p ImagePart) MarshalJSON() ([]byte, error) {
	type alias ImagePart
	return json.Marshal(struct {
		Type PartType `json:"type"`
		alias
	}{PartTypeImage, alias(p)})
}

func (p FilePart) MarshalJSON() ([]byte, error) {
	type alias FilePart
	return json.Marshal(struct {
		Type PartType `json:"type"`
		alias
	}{PartTypeFile, alias(p)})
}

// Parts is an ordered list of message parts.
type Parts []Part

// MarshalJSON always emits an array, never null.
func (ps Parts) MarshalJSON() ([]byte, error) {
	if ps == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]Part(ps))
}

// UnmarshalJSON decodes each element by its "type" field.
func (ps *Parts) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Parts, 0, len(raw))
	for i, item := range raw {
		part, err := decodePart(item)
		if err != nil {
			return fmt.Errorf("part %d: %w", i, err)
		}
		out = append(out, part)
	}
	*ps = out
	return nil
}

func decodePart(data []byte) (Part, error) {
	var head struct {
		Type PartType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, err
	}
	switch head.Type {
	case PartTypeText:
		var p TextPart
		err := json.Unmarshal(data, &p)
		return p, err
	case PartTypeImage:
		var p ImagePart
		err := json.Unmarshal(data, &p)
		return p, err
	case PartTypeFile:
		var p FilePart
		err := json.Unmarshal(data, &p)
		return p, err
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPartType, head.Type)
	}
}

// Text concatenates the text parts, one per line.
func (ps Parts) Text() string {
	var lines []string
	for _, p := range ps {
		if t, ok := p.(TextPart); ok {
			lines = append(lines, t.Text)
		}
	}
	return strings.Join(lines, "\n")
}

// UserContent is either a plain string or a list of parts.
type UserContent struct {
	text  string
	parts Parts
}

// NewTextContent returns string content.
func NewTextContent(text string) UserContent {
	return UserContent{text: text}
}

// NewPartsContent returns multi-part content.
func NewPartsContent(parts ...Part) UserContent {
	if parts == nil {
		parts = Parts{}
	}
	return UserContent{parts: parts}
}

// IsParts reports whether the content is a part list.
func (c UserContent) IsParts() bool { return c.parts != nil }

// Parts returns the part list, or nil for string content.
func (c UserContent) Parts() Parts { return c.parts }

// Text returns the string content, or the joined text parts.
func (c UserContent) Text() string {
	if c.parts != nil {
		return c.parts.Text()
	}
	return c.text
}

func (c UserContent) MarshalJSON() ([]byte, error) {
	if c.parts != nil {
		return c.parts.MarshalJSON()
	}
	return json.Marshal(c.text)
}

func (c *UserContent) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*c = UserContent{}
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = UserContent{text: s}
		return nil
	case len(data) > 0 && data[0] == '[':
		var ps Parts
		if err := ps.UnmarshalJSON(data); err != nil {
			return err
		}
		*c = UserContent{parts: ps}
		return nil
	default:
		return fmt.Errorf("user content must be a string or an array of parts")
	}
}

// UserMessage is the prompt sent to the agent.
type UserMessage struct {
	Role            string          `json:"role"`
	Content         UserContent     `json:"content"`
	ProviderOptions json.RawMessage `json:"providerOptions,omitempty"`
}

// DefaultUserMessage is applied to new cases.
func DefaultUserMessage() UserMessage {
	return UserMessage{Role: "user", Content: NewTextContent("")}
}

func (m *UserMessage) UnmarshalJSON(data []byte) error {
	type alias UserMessage
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	if a.Role == "" {
		a.Role = "user"
	}
	if a.Role != "user" {
		return fmt.Errorf("user message role must be %q, got %q", "user", a.Role)
	}
	*m = UserMessage(a)
	return nil
}

// AssistantMessage is the expected answer configured on a case.
type AssistantMessage struct {
	Role            string          `json:"role"`
	Content         Parts           `json:"content"`
	ProviderOptions json.RawMessage `json:"providerOptions,omitempty"`
}

// NewAssistantText builds an assistant message holding a single text part.
func NewAssistantText(text string) AssistantMessage {
	content := Parts{}
	if text != "" {
		content = Parts{TextPart{Text: text}}
	}
	return AssistantMessage{Role: "assistant", Content: content}
}

func (m *AssistantMessage) UnmarshalJSON(data []byte) error {
	type alias AssistantMessage
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	if a.Role == "" {
		a.Role = "assistant"
	}
	if a.Role != "assistant" {
		return fmt.Errorf("assistant message role must be %q, got %q", "assistant", a.Role)
	}
	if a.Content == nil {
		a.Content = Parts{}
	}
	*m = AssistantMessage(a)
	return nil
}
