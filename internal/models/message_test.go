package models

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validMessage() ChatMessage {
	return ChatMessage{
		ID:       uuid.New(),
		ThreadID: uuid.New(),
		Role:     RoleUser,
		Parts: []json.RawMessage{
			json.RawMessage(`{"type":"text","text":"hello"}`),
		},
	}
}

func TestChatMessageValidate(t *testing.T) {
	m := validMessage()
	require.NoError(t, m.Validate())
}

func TestChatMessageValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(m *ChatMessage)
		target error
	}{
		{"missing id", func(m *ChatMessage) { m.ID = uuid.Nil }, ErrInvalidMessage},
		{"missing thread", func(m *ChatMessage) { m.ThreadID = uuid.Nil }, ErrInvalidMessage},
		{"bad role", func(m *ChatMessage) { m.Role = "robot" }, ErrInvalidMessage},
		{"part not object", func(m *ChatMessage) {
			m.Parts = append(m.Parts, json.RawMessage(`"text"`))
		}, ErrInvalidMessage},
		{"part without type", func(m *ChatMessage) {
			m.Parts = append(m.Parts, json.RawMessage(`{"text":"x"}`))
		}, ErrInvalidMessage},
		{"mention without serverId", func(m *ChatMessage) {
			m.Parts = append(m.Parts, json.RawMessage(`{"type":"mention","mention":{"type":"mcpTool","name":"search"}}`))
		}, ErrInvalidMention},
		{"mention without discriminant", func(m *ChatMessage) {
			m.Parts = append(m.Parts, json.RawMessage(`{"type":"mention","mention":{"name":"search","serverId":"s"}}`))
		}, ErrInvalidMention},
		{"bad tool choice", func(m *ChatMessage) {
			m.Annotations = []Annotation{{"toolChoice": "always"}}
		}, ErrInvalidAnnotation},
		{"negative usage", func(m *ChatMessage) {
			m.Annotations = []Annotation{{"usageTokens": float64(-3)}}
		}, ErrInvalidAnnotation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := validMessage()
			tt.mutate(&m)
			require.ErrorIs(t, m.Validate(), tt.target)
		})
	}
}

func TestChatMessageMentions(t *testing.T) {
	m := validMessage()
	m.Parts = append(m.Parts,
		json.RawMessage(`{"type":"mention","mention":{"type":"workflow","name":"deploy","workflowId":"wf-1"}}`),
		json.RawMessage(`{"type":"mention","mention":"{\"type\":\"defaultTool\",\"name\":\"chart\",\"label\":\"Chart\"}"}`),
	)
	require.NoError(t, m.Validate())

	mentions, err := m.Mentions()
	require.NoError(t, err)
	require.Len(t, mentions, 2)
	assert.Equal(t, MentionWorkflow, mentions[0].Type)
	assert.Equal(t, MentionDefaultTool, mentions[1].Type)
}

func TestAnnotationAccessors(t *testing.T) {
	var a Annotation
	require.NoError(t, json.Unmarshal([]byte(`{"usageTokens":120,"toolChoice":"manual","extra":true}`), &a))

	n, ok := a.UsageTokens()
	require.True(t, ok)
	assert.EqualValues(t, 120, n)

	tc, ok := a.ToolChoice()
	require.True(t, ok)
	assert.Equal(t, ToolChoiceManual, tc)
	assert.NoError(t, a.validate())
}
