package tui

import (
	"testing"
	"time"

	"github.com/charmbracelet/x/exp/golden"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/lmagent/internal/agent"
	"github.com/dotcommander/lmagent/internal/proto"
)

func TestTranscriptGolden(t *testing.T) {
	tr := NewTranscript(asciiStyles(), nil)
	tr.Block("lmagent")
	tr.User("read main.go")
	tr.Text("Sure, ")
	tr.Text("reading it.")
	tr.Notice("[Using view_file...]")
	tr.Text("It prints hello.")
	tr.Usage(agent.Result{
		Primary:   proto.Usage{InputTokens: 120, OutputTokens: 30},
		Followup:  proto.Usage{InputTokens: 200, OutputTokens: 18},
		HasUsage:  true,
		ToolCalls: 1,
		Elapsed:   2 * time.Second,
	})
	golden.RequireEqual(t, []byte(tr.String()))
}

func TestTranscriptLive(t *testing.T) {
	tr := NewTranscript(asciiStyles(), nil)
	require.False(t, tr.HasLive())
	tr.Text("partial")
	require.True(t, tr.HasLive())
	require.Equal(t, "partial\n", tr.String())

	tr.Flush()
	require.False(t, tr.HasLive())
	require.Equal(t, "partial\n\n", tr.String())

	tr.Reset()
	require.Empty(t, tr.String())
}

func TestTranscriptReplay(t *testing.T) {
	tr := NewTranscript(asciiStyles(), nil)
	tr.Replay([]proto.Message{
		{Role: proto.RoleUser, Content: "make a.txt"},
		{Role: proto.RoleAssistant, ToolCalls: []proto.ToolCall{{ID: "1", Type: "function", Function: proto.Function{Name: "create_file"}}}},
		{Role: proto.RoleTool, ToolCallID: "1", Content: `{"status":"success"}`},
		{Role: proto.RoleAssistant, Content: "Done."},
	})
	require.Equal(t, "> make a.txt\n\n[Using create_file...]\nDone.\n\n", tr.String())
}

func TestFormatUsage(t *testing.T) {
	for name, tc := range map[string]struct {
		res  agent.Result
		want string
	}{
		"no usage": {
			res:  agent.Result{Elapsed: 1500 * time.Millisecond},
			want: "1.5s",
		},
		"usage": {
			res: agent.Result{
				Primary:  proto.Usage{InputTokens: 10, OutputTokens: 20},
				HasUsage: true,
				Elapsed:  4 * time.Second,
			},
			want: "10 in, 20 out tokens · 5.0 tok/s · 4s",
		},
		"zero usage": {
			res:  agent.Result{HasUsage: true, Elapsed: 2 * time.Second},
			want: "2s",
		},
		"tools without usage": {
			res:  agent.Result{ToolCalls: 3, Elapsed: time.Second},
			want: "3 tool calls · 1s",
		},
	} {
		t.Run(name, func(t *testing.T) {
			require.Equal(t, tc.want, FormatUsage(tc.res))
		})
	}
}

func TestFormatElapsedClock(t *testing.T) {
	require.Equal(t, "00:00", formatElapsedClock(-time.Second))
	require.Equal(t, "01:05", formatElapsedClock(65*time.Second))
	require.Equal(t, "01:00:01", formatElapsedClock(time.Hour+time.Second))
}
