package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	ErrInvalidMention    = errors.New("invalid mention")
	ErrInvalidMessage    = errors.New("invalid message")
	ErrInvalidAnnotation = errors.New("invalid annotation")
)

type MentionType string

const (
	MentionMCPTool     MentionType = "mcpTool"
	MentionDefaultTool MentionType = "defaultTool"
	MentionMCPServer   MentionType = "mcpServer"
	MentionWorkflow    MentionType = "workflow"
)

// ChatMention is an inline reference to a tool, a tool server or a
// workflow. Type is the discriminant and decides which other fields are
// required; fields that belong to a different variant are dropped by
// Normalize.
type ChatMention struct {
	Type        MentionType  `json:"type" validate:"required,oneof=mcpTool defaultTool mcpServer workflow"`
	Name        string       `json:"name" validate:"required"`
	Description string       `json:"description,omitempty"`
	ServerName  string       `json:"serverName,omitempty"`
	ServerID    string       `json:"serverId,omitempty" validate:"required_if=Type mcpTool,required_if=Type mcpServer"`
	Label       string       `json:"label,omitempty" validate:"required_if=Type defaultTool"`
	ToolCount   *int         `json:"toolCount,omitempty" validate:"omitempty,min=0"`
	WorkflowID  string       `json:"workflowId,omitempty" validate:"required_if=Type workflow"`
	Icon        *MentionIcon `json:"icon,omitempty"`
}

type MentionIcon struct {
	Type  string            `json:"type" validate:"required,eq=emoji"`
	Value string            `json:"value" validate:"required"`
	Style map[string]string `json:"style,omitempty"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the mention against the rules of its variant.
func (m *ChatMention) Validate() error {
	if m == nil {
		return fmt.Errorf("%w: empty payload", ErrInvalidMention)
	}
	if err := validate.Struct(m); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			e := verrs[0]
			return fmt.Errorf("%w: field %s failed %q", ErrInvalidMention, e.Namespace(), e.Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidMention, err)
	}
	return nil
}

// Normalize clears the fields that don't belong to the mention's variant.
func (m *ChatMention) Normalize() {
	switch m.Type {
	case MentionMCPTool:
		m.Label, m.ToolCount, m.WorkflowID, m.Icon = "", nil, "", nil
	case MentionDefaultTool:
		m.ServerName, m.ServerID, m.ToolCount, m.WorkflowID, m.Icon = "", "", nil, "", nil
	case MentionMCPServer:
		m.ServerName, m.Label, m.WorkflowID, m.Icon = "", "", "", nil
	case MentionWorkflow:
		m.ServerName, m.ServerID, m.Label, m.ToolCount = "", "", "", nil
	}
}

// DisplayLabel is the text the mention renders as inside the input box.
func (m *ChatMention) DisplayLabel() string {
	if m.Type == MentionMCPServer {
		return fmt.Sprintf("mcp(%q)", m.Name)
	}
	return fmt.Sprintf("tool(%q)", m.Name)
}

// ParseMention decodes a mention payload, drops fields foreign to its
// variant and validates the rest. The payload is
// either a JSON object or a JSON string holding one, which is how the rich
// text editor stores it as a node id.
func ParseMention(data []byte) (*ChatMention, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidMention)
	}
	if data[0] == '"' {
		var encoded string
		if err := json.Unmarshal(data, &encoded); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidMention, err)
		}
		data = []byte(strings.TrimSpace(encoded))
	}

	var m ChatMention
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMention, err)
	}
	m.Normalize()
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// EncodeMentionID renders a mention as the opaque id string the editor
// embeds in rich text. Nothing malformed is emitted.
func EncodeMentionID(m *ChatMention) (string, error) {
	if m == nil {
		return "", fmt.Errorf("%w: empty payload", ErrInvalidMention)
	}
	cp := *m
	cp.Normalize()
	if err := cp.Validate(); err != nil {
		return "", err
	}
	raw, err := json.Marshal(&cp)
	if err != nil {
		return "", fmt.Errorf("encode mention: %w", err)
	}
	return string(raw), nil
}
