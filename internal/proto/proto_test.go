package proto

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMessageJSON(t *testing.T) {
	t.Run("assistant with tool calls has null content", func(t *testing.T) {
		msg := Message{
			Role: RoleAssistant,
			ToolCalls: []ToolCall{{
				ID:       "call_1",
				Type:     ToolTypeFunction,
				Function: Function{Name: "view_file", Arguments: `{"file_path":"a.txt"}`},
			}},
		}
		b, err := json.Marshal(msg)
		require.NoError(t, err)
		require.JSONEq(t, `{"role":"assistant","content":null,"tool_calls":[{"id":"call_1","type":"function","function":{"name":"view_file","arguments":"{\"file_path\":\"a.txt\"}"}}]}`, string(b))

		var back Message
		require.NoError(t, json.Unmarshal(b, &back))
		require.Equal(t, msg, back)
	})

	t.Run("images are dropped", func(t *testing.T) {
		b, err := json.Marshal(Message{Role: RoleUser, Content: "look", Images: []Image{{MIME: "image/png", Data: []byte{1}}}})
		require.NoError(t, err)
		require.JSONEq(t, `{"role":"user","content":"look"}`, string(b))
	})

	t.Run("content parts keep text only", func(t *testing.T) {
		var msg Message
		require.NoError(t, json.Unmarshal([]byte(`{"role":"user","content":[{"type":"text","text":"hi "},{"type":"image_url","image_url":{"url":"data:"}},{"type":"text","text":"there"}]}`), &msg))
		require.Equal(t, "hi there", msg.Content)
	})

	t.Run("invalid role", func(t *testing.T) {
		var msg Message
		require.Error(t, json.Unmarshal([]byte(`{"role":"robot","content":"x"}`), &msg))
	})

	t.Run("invalid content", func(t *testing.T) {
		var msg Message
		require.Error(t, json.Unmarshal([]byte(`{"role":"user","content":42}`), &msg))
	})
}

func TestTextOnly(t *testing.T) {
	in := []Message{{Role: RoleUser, Content: "a", Images: []Image{{MIME: "image/png"}}}}
	out := TextOnly(in)
	require.Empty(t, out[0].Images)
	require.Len(t, in[0].Images, 1)
}

func TestUsage(t *testing.T) {
	u := Usage{InputTokens: 10, OutputTokens: 5}.Add(Usage{InputTokens: 1, OutputTokens: 2})
	require.Equal(t, Usage{InputTokens: 11, OutputTokens: 7}, u)
	require.Equal(t, int64(18), u.Total())
}
