// Package fantasybridge serves conversation requests through
// charm.land/fantasy providers.
package fantasybridge

import (
	"encoding/json"
	"errors"

	"charm.land/fantasy"

	"github.com/dotcommander/lmagent/internal/proto"
	"github.com/dotcommander/lmagent/internal/tools"
)

// toFantasyPrompt converts a request. Consecutive tool turns are folded into
// one tool message.
func toFantasyPrompt(input []proto.Message) fantasy.Prompt {
	messages := make([]fantasy.Message, 0, len(input))

	for _, msg := range input {
		switch msg.Role {
		case proto.RoleSystem:
			messages = append(messages, fantasy.Message{
				Role:    fantasy.MessageRoleSystem,
				Content: []fantasy.MessagePart{fantasy.TextPart{Text: msg.Content}},
			})
		case proto.RoleUser:
			parts := make([]fantasy.MessagePart, 0, 1+len(msg.Images))
			if msg.Content != "" || len(msg.Images) == 0 {
				parts = append(parts, fantasy.TextPart{Text: msg.Content})
			}
			for _, img := range msg.Images {
				parts = append(parts, fantasy.FilePart{Data: img.Data, MediaType: img.MIME})
			}
			messages = append(messages, fantasy.Message{Role: fantasy.MessageRoleUser, Content: parts})
		case proto.RoleAssistant:
			parts := make([]fantasy.MessagePart, 0, 1+len(msg.ToolCalls))
			if msg.Content != "" {
				parts = append(parts, fantasy.TextPart{Text: msg.Content})
			}
			for _, call := range msg.ToolCalls {
				parts = append(parts, fantasy.ToolCallPart{
					ToolCallID: call.ID,
					ToolName:   call.Function.Name,
					Input:      call.Function.Arguments,
				})
			}
			if len(parts) > 0 {
				messages = append(messages, fantasy.Message{
					Role:    fantasy.MessageRoleAssistant,
					Content: parts,
				})
			}
		case proto.RoleTool:
			var output fantasy.ToolResultOutputContent
			if toolFailed(msg.Content) {
				output = fantasy.ToolResultOutputContentError{Error: errors.New(msg.Content)}
			} else {
				output = fantasy.ToolResultOutputContentText{Text: msg.Content}
			}
			part := fantasy.ToolResultPart{ToolCallID: msg.ToolCallID, Output: output}
			if n := len(messages); n > 0 && messages[n-1].Role == fantasy.MessageRoleTool {
				messages[n-1].Content = append(messages[n-1].Content, part)
				continue
			}
			messages = append(messages, fantasy.Message{
				Role:    fantasy.MessageRoleTool,
				Content: []fantasy.MessagePart{part},
			})
		}
	}

	return messages
}

// toolFailed reports whether a tool turn carries an error result.
func toolFailed(content string) bool {
	var r struct {
		Status tools.Status `json:"status"`
	}
	if err := json.Unmarshal([]byte(content), &r); err != nil {
		return false
	}
	return r.Status == tools.StatusError
}

func fromSchemas(schemas []proto.ToolSchema) []fantasy.Tool {
	out := make([]fantasy.Tool, 0, len(schemas))
	for _, s := range schemas {
		out = append(out, fantasy.FunctionTool{
			Name:        s.Name,
			Description: s.Description,
			InputSchema: s.Parameters,
		})
	}
	return out
}

func toolChoiceForRequest(request proto.Request) *fantasy.ToolChoice {
	if len(request.Tools) == 0 {
		return nil
	}
	choice := fantasy.ToolChoiceAuto
	if request.ToolChoice != "" {
		choice = fantasy.ToolChoice(request.ToolChoice)
	}
	return &choice
}
