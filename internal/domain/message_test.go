package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserMessageStringContent(t *testing.T) {
	var msg UserMessage
	require.NoError(t, json.Unmarshal([]byte(`{"content":"ping"}`), &msg))
	assert.Equal(t, "user", msg.Role)
	assert.False(t, msg.Content.IsParts())
	assert.Equal(t, "ping", msg.Content.Text())

	data, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"user","content":"ping"}`, string(data))
}

func TestUserMessageParts(t *testing.T) {
	input := `{"role":"user","content":[
		{"type":"text","text":"what is this?"},
		{"type":"image","url":"https://cdn/x.png","alt":"x","size":12,"mimeType":"image/png"},
		{"type":"file","url":"https://cdn/a.pdf","name":"a.pdf"}
	],"providerOptions":{"openai":{"detail":"high"}}}`

	var msg UserMessage
	require.NoError(t, json.Unmarshal([]byte(input), &msg))
	require.True(t, msg.Content.IsParts())

	parts := msg.Content.Parts()
	require.Len(t, parts, 3)
	assert.Equal(t, TextPart{Text: "what is this?"}, parts[0])
	assert.Equal(t, PartTypeImage, parts[1].PartType())
	assert.Equal(t, "a.pdf", parts[2].(FilePart).Name)
	assert.Equal(t, "what is this?", msg.Content.Text())

	data, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"user","content":[
		{"type":"text","text":"what is this?"},
		{"type":"image","url":"https://cdn/x.png","alt":"x","size":12,"mimeType":"image/png"},
		{"type":"file","url":"https://cdn/a.pdf","name":"a.pdf"}
	],"providerOptions":{"openai":{"detail":"high"}}}`, string(data))
}

func TestMessageRejectsInvalidInput(t *testing.T) {
	var user UserMessage
	err := json.Unmarshal([]byte(`{"content":[{"type":"audio"}]}`), &user)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownPartType))

	assert.Error(t, json.Unmarshal([]byte(`{"role":"assistant","content":"x"}`), &user))
	assert.Error(t, json.Unmarshal([]byte(`{"content":42}`), &user))

	var assistant AssistantMessage
	assert.Error(t, json.Unmarshal([]byte(`{"role":"user","content":[]}`), &assistant))
}

func TestAssistantMessageDefaults(t *testing.T) {
	var msg AssistantMessage
	require.NoError(t, json.Unmarshal([]byte(`{}`), &msg))
	assert.Equal(t, "assistant", msg.Role)
	assert.NotNil(t, msg.Content)

	data, err := json.Marshal(NewAssistantText(""))
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"assistant","content":[]}`, string(data))

	data, err = json.Marshal(NewAssistantText("pong"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"assistant","content":[{"type":"text","text":"pong"}]}`, string(data))
}

func TestFieldTriState(t *testing.T) {
	var patch CasePatch
	require.NoError(t, json.Unmarshal([]byte(`{"title":"T","assistantMessage":null}`), &patch))

	assert.True(t, patch.Title.HasValue())
	assert.Equal(t, "T", patch.Title.Value)
	assert.True(t, patch.AssistantMessage.Set)
	assert.True(t, patch.AssistantMessage.Null)
	assert.False(t, patch.UserMessage.Set)
	assert.False(t, patch.Description.Set)
}

func TestErrorsWrapSentinels(t *testing.T) {
	err := NotFoundError("Case")
	assert.Equal(t, "Case not found", err.Error())
	assert.ErrorIs(t, err, ErrNotFound)

	err = ValidationError("Missing %s", "caseId")
	assert.Equal(t, "Missing caseId", err.Error())
	assert.ErrorIs(t, err, ErrValidation)
}
