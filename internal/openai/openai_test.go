package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dotcommander/lmagent/internal/errs"
	"github.com/dotcommander/lmagent/internal/proto"
	"github.com/dotcommander/lmagent/internal/stream"
)

func sse(w http.ResponseWriter, events ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	for _, e := range events {
		fmt.Fprintf(w, "data: %s\n\n", e)
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
}

func newServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL + "/v1", APIKey: "dummy-key"})
}

func TestStreamToolCalls(t *testing.T) {
	var body map[string]any
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer dummy-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		sse(w,
			`{"choices":[{"index":0,"delta":{"role":"assistant","content":"Let me "}}]}`,
			`{"choices":[{"index":0,"delta":{"content":"check."}}]}`,
			`{"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"view_file","arguments":"{\"file_"}}]}}]}`,
			`{"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"path\":\"a.txt\"}"}}]}}]}`,
			`{"choices":[],"usage":{"prompt_tokens":11,"completion_tokens":7,"total_tokens":18}}`,
		)
	})

	temp, parallel := 0.1, true
	maxTokens := int64(4096)
	st := client.Request(context.Background(), proto.Request{
		Model: "local-model",
		Messages: []proto.Message{
			{Role: proto.RoleSystem, Content: "sys"},
			{Role: proto.RoleUser, Content: "read a.txt"},
		},
		Tools: []proto.ToolSchema{{
			Name:        "view_file",
			Description: "View a file",
			Parameters:  map[string]any{"type": "object"},
		}},
		MaxTokens:         &maxTokens,
		Temperature:       &temp,
		ToolChoice:        "auto",
		ParallelToolCalls: &parallel,
	})

	acc := stream.NewAccumulator()
	var text strings.Builder
	require.NoError(t, stream.Drain(context.Background(), st, acc, func(s string) { text.WriteString(s) }))
	require.Equal(t, "Let me check.", text.String())

	calls := acc.Finalize()
	require.Len(t, calls, 1)
	require.Equal(t, "call_1", calls[0].ID)
	require.Equal(t, "view_file", calls[0].Function.Name)
	require.Equal(t, "a.txt", calls[0].Args["file_path"])

	usage, ok := acc.Usage()
	require.True(t, ok)
	require.Equal(t, proto.Usage{InputTokens: 11, OutputTokens: 7}, usage)

	require.Equal(t, "local-model", body["model"])
	require.Equal(t, true, body["stream"])
	require.Equal(t, "auto", body["tool_choice"])
	require.Equal(t, true, body["parallel_tool_calls"])
	require.EqualValues(t, 4096, body["max_tokens"])
	require.Equal(t, map[string]any{"include_usage": true}, body["stream_options"])
	tools, ok := body["tools"].([]any)
	require.True(t, ok)
	require.Len(t, tools, 1)
}

func TestStreamHTTPError(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"message":"slow down","type":"rate_limit"}}`)
	})

	st := client.Request(context.Background(), proto.Request{Model: "m"})
	err := stream.Drain(context.Background(), st, stream.NewAccumulator(), nil)
	require.ErrorIs(t, err, errs.ErrExternal)

	var apiErr *stream.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	require.Equal(t, "slow down", apiErr.Message)
}

func TestChatMessages(t *testing.T) {
	msgs := chatMessages([]proto.Message{
		{
			Role:    proto.RoleUser,
			Content: "what is this?",
			Images:  []proto.Image{{MIME: "image/png", Data: []byte{1, 2, 3}}},
		},
		{
			Role: proto.RoleAssistant,
			ToolCalls: []proto.ToolCall{{
				ID:       "c1",
				Type:     proto.ToolTypeFunction,
				Function: proto.Function{Name: "view_file", Arguments: `{}`},
			}},
		},
		{Role: proto.RoleTool, ToolCallID: "c1", Content: `{"status":"success"}`},
	})
	require.Len(t, msgs, 3)

	require.Empty(t, msgs[0].Content)
	require.Len(t, msgs[0].MultiContent, 2)
	require.Equal(t, "what is this?", msgs[0].MultiContent[0].Text)
	require.Equal(t, "data:image/png;base64,AQID", msgs[0].MultiContent[1].ImageURL.URL)

	require.Len(t, msgs[1].ToolCalls, 1)
	require.Equal(t, "view_file", msgs[1].ToolCalls[0].Function.Name)
	require.Equal(t, "c1", msgs[2].ToolCallID)
}

func TestCompleteAndModels(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/models":
			_, _ = io.WriteString(w, `{"object":"list","data":[{"id":"qwen2.5-coder"},{"id":"llava"}]}`)
		case "/v1/chat/completions":
			_, _ = io.WriteString(w, `{"choices":[{"index":0,"message":{"role":"assistant","content":"a cat"}}]}`)
		default:
			http.NotFound(w, r)
		}
	})

	models, err := client.Models(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"qwen2.5-coder", "llava"}, models)

	out, err := client.Complete(context.Background(), proto.Request{Model: "llava"})
	require.NoError(t, err)
	require.Equal(t, "a cat", out)
}

func TestConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := New(Config{BaseURL: url + "/v1", APIKey: "k"})
	err := stream.Drain(context.Background(), client.Request(context.Background(), proto.Request{Model: "m"}), stream.NewAccumulator(), nil)
	require.ErrorIs(t, err, errs.ErrExternal)
	require.Contains(t, err.Error(), "connection refused")
}
