// Package proto holds the wire-neutral message types exchanged between the
// turn controller, the history store and the model backends.
package proto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Role is the author of a message.
type Role string

// Roles.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolTypeFunction is the only tool call type backends emit.
const ToolTypeFunction = "function"

// Function is the name and raw JSON argument text of a tool call.
type Function struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolCall is a tool invocation requested by the assistant.
type ToolCall struct {
	ID       string   `json:"id"`
	Type     string   `json:"type"`
	Function Function `json:"function"`
}

// Image is an inline image attached to a user message. Images are never
// persisted.
type Image struct {
	MIME string
	Data []byte
}

// Message is a single turn of a conversation.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Images     []Image    `json:"-"`
}

type wireMessage struct {
	Role       Role            `json:"role"`
	Content    json.RawMessage `json:"content"`
	ToolCalls  []ToolCall      `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
}

// MarshalJSON writes an empty assistant content as null when the message
// carries tool calls.
func (m Message) MarshalJSON() ([]byte, error) {
	w := wireMessage{
		Role:       m.Role,
		ToolCalls:  m.ToolCalls,
		ToolCallID: m.ToolCallID,
	}
	if m.Content == "" && len(m.ToolCalls) > 0 {
		w.Content = json.RawMessage("null")
	} else {
		content, err := json.Marshal(m.Content)
		if err != nil {
			return nil, err
		}
		w.Content = content
	}
	return json.Marshal(w)
}

// UnmarshalJSON accepts content as a string, null, or a list of parts, in
// which case only the text parts are kept.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err //nolint:wrapcheck
	}
	content, err := decodeContent(w.Content)
	if err != nil {
		return err
	}
	switch w.Role {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
	default:
		return fmt.Errorf("invalid role %q", w.Role)
	}
	*m = Message{
		Role:       w.Role,
		Content:    content,
		ToolCalls:  w.ToolCalls,
		ToolCallID: w.ToolCallID,
	}
	return nil
}

func decodeContent(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err //nolint:wrapcheck
		}
		return s, nil
	case '[':
		var parts []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}
		if err := json.Unmarshal(raw, &parts); err != nil {
			return "", err //nolint:wrapcheck
		}
		var sb strings.Builder
		for _, p := range parts {
			if p.Type == "text" {
				sb.WriteString(p.Text)
			}
		}
		return sb.String(), nil
	default:
		return "", fmt.Errorf("invalid content: %s", raw)
	}
}

// TextOnly returns a copy of messages without image payloads.
func TextOnly(messages []Message) []Message {
	out := make([]Message, len(messages))
	for i, m := range messages {
		m.Images = nil
		out[i] = m
	}
	return out
}

// String implements fmt.Stringer, rendering a transcript.
func (m Message) String() string {
	var sb strings.Builder
	switch m.Role {
	case RoleSystem:
		sb.WriteString("**System**: ")
	case RoleUser:
		sb.WriteString("**Prompt**: ")
	case RoleAssistant:
		sb.WriteString("**Assistant**: ")
	case RoleTool:
		sb.WriteString("> Tool result (" + m.ToolCallID + "): ")
	}
	sb.WriteString(m.Content)
	for _, call := range m.ToolCalls {
		fmt.Fprintf(&sb, "\n> Tool call: `%s(%s)`", call.Function.Name, call.Function.Arguments)
	}
	return sb.String()
}

// Conversation is a list of messages.
type Conversation []Message

// String renders the conversation as markdown.
func (cc Conversation) String() string {
	var sb strings.Builder
	for _, msg := range cc {
		if msg.Content == "" && len(msg.ToolCalls) == 0 {
			continue
		}
		sb.WriteString(msg.String())
		sb.WriteString("\n\n")
	}
	return strings.TrimSpace(sb.String()) + "\n"
}
