package models

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

type ToolChoice string

const (
	ToolChoiceAuto   ToolChoice = "auto"
	ToolChoiceNone   ToolChoice = "none"
	ToolChoiceManual ToolChoice = "manual"
)

func (t ToolChoice) Valid() bool {
	switch t {
	case ToolChoiceAuto, ToolChoiceNone, ToolChoiceManual:
		return true
	}
	return false
}

// Annotation is an open JSON object attached to a message. Only
// usageTokens and toolChoice have a fixed meaning.
type Annotation map[string]any

func (a Annotation) UsageTokens() (int64, bool) {
	v, ok := a["usageTokens"]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}

func (a Annotation) ToolChoice() (ToolChoice, bool) {
	v, ok := a["toolChoice"].(string)
	if !ok {
		return "", false
	}
	return ToolChoice(v), true
}

func (a Annotation) validate() error {
	if v, ok := a["usageTokens"]; ok && v != nil {
		n, ok := a.UsageTokens()
		if !ok || n < 0 {
			return fmt.Errorf("%w: usageTokens must be a non-negative number", ErrInvalidAnnotation)
		}
	}
	if v, ok := a["toolChoice"]; ok && v != nil {
		tc, ok := a.ToolChoice()
		if !ok || !tc.Valid() {
			return fmt.Errorf("%w: toolChoice must be one of auto, none, manual", ErrInvalidAnnotation)
		}
	}
	return nil
}

// mentionPart is the only part shape the store looks into.
type mentionPart struct {
	Type    string          `json:"type"`
	Mention json.RawMessage `json:"mention"`
}

// Validate checks identity, role, annotations and every mention part.
// It must pass before a message is written so malformed mention payloads
// never reach stored content.
func (m *ChatMessage) Validate() error {
	if m.ID == uuid.Nil {
		return fmt.Errorf("%w: missing id", ErrInvalidMessage)
	}
	if m.ThreadID == uuid.Nil {
		return fmt.Errorf("%w: missing thread_id", ErrInvalidMessage)
	}
	if !m.Role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidMessage, m.Role)
	}
	for i, raw := range m.Parts {
		if err := validatePart(raw); err != nil {
			return fmt.Errorf("part %d: %w", i, err)
		}
	}
	for i, a := range m.Annotations {
		if err := a.validate(); err != nil {
			return fmt.Errorf("annotation %d: %w", i, err)
		}
	}
	return nil
}

// Mentions returns the mentions embedded in the message parts, in order.
func (m *ChatMessage) Mentions() ([]ChatMention, error) {
	var out []ChatMention
	for _, raw := range m.Parts {
		var p mentionPart
		if err := json.Unmarshal(raw, &p); err != nil || p.Type != "mention" {
			continue
		}
		mention, err := ParseMention(p.Mention)
		if err != nil {
			return nil, err
		}
		out = append(out, *mention)
	}
	return out, nil
}

func validatePart(raw json.RawMessage) error {
	var p mentionPart
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("%w: part is not a JSON object", ErrInvalidMessage)
	}
	if p.Type == "" {
		return fmt.Errorf("%w: part has no type", ErrInvalidMessage)
	}
	if p.Type != "mention" {
		return nil
	}
	_, err := ParseMention(p.Mention)
	return err
}
