package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/dotcommander/lmagent/internal/errs"
	"github.com/stretchr/testify/require"
)

func echoTool(name string) Tool {
	return Tool{
		Name:       name,
		Parameters: object(map[string]any{"text": prop("string", "text")}, "text"),
		Handler: func(_ context.Context, args Args) Result {
			text, err := args.String("text")
			if err != nil {
				return Failure(err)
			}
			return Success(map[string]any{"text": text})
		},
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(echoTool("b")))
	require.NoError(t, reg.Register(echoTool("a")))
	require.EqualError(t, reg.Register(echoTool("a")), "tool a already registered")
	require.Error(t, reg.Register(Tool{Name: "nohandler"}))
	require.Error(t, reg.Register(Tool{}))

	require.Equal(t, []string{"b", "a"}, reg.Names())
	require.Equal(t, 2, reg.Len())
	schemas := reg.Schemas()
	require.Len(t, schemas, 2)
	require.Equal(t, "b", schemas[0].Name)

	_, ok := reg.Lookup("a")
	require.True(t, ok)
	_, ok = reg.Lookup("c")
	require.False(t, ok)
}

func TestRegisterBuiltins(t *testing.T) {
	t.Run("without vision", func(t *testing.T) {
		reg := NewRegistry()
		require.NoError(t, RegisterBuiltins(reg, Options{}))
		require.Equal(t, []string{"create_file", "replace_text", "insert_line", "execute_command", "view_file"}, reg.Names())
	})

	t.Run("with vision", func(t *testing.T) {
		reg := NewRegistry()
		require.NoError(t, RegisterBuiltins(reg, Options{Vision: &Vision{Client: &fakeCompleter{}}}))
		require.Equal(t, "describe_image", reg.Names()[5])
	})

	t.Run("insert_line declares an integer", func(t *testing.T) {
		reg := NewRegistry()
		require.NoError(t, RegisterBuiltins(reg, Options{}))
		tool, _ := reg.Lookup("insert_line")
		props := tool.Parameters["properties"].(map[string]any)
		require.Equal(t, "integer", props["line_number"].(map[string]any)["type"])
		require.Equal(t, []string{"file_path", "line_number", "content"}, tool.Parameters["required"])
	})
}

func TestExecutor(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(echoTool("echo")))
	require.NoError(t, reg.Register(Tool{
		Name: "boom",
		Handler: func(context.Context, Args) Result {
			panic("kaboom")
		},
	}))
	exec := NewExecutor(reg, nil)
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		r := exec.Execute(ctx, "echo", `{"text":"hi"}`)
		require.Equal(t, StatusSuccess, r.Status)
		require.JSONEq(t, `{"status":"success","text":"hi"}`, r.String())
	})

	t.Run("malformed arguments name the tool and the text", func(t *testing.T) {
		r := exec.Execute(ctx, "echo", `{"text":`)
		require.Equal(t, StatusError, r.Status)
		require.ErrorIs(t, r.Err, errs.ErrParse)
		require.Contains(t, r.Message, "echo")
		require.Contains(t, r.Message, `{"text":`)
	})

	t.Run("unknown tool", func(t *testing.T) {
		r := exec.Execute(ctx, "nope", `{}`)
		require.Equal(t, StatusError, r.Status)
		require.ErrorIs(t, r.Err, errs.ErrNotFound)
		require.Equal(t, "unknown tool: nope", r.Message)
	})

	t.Run("missing argument", func(t *testing.T) {
		r := exec.Execute(ctx, "echo", ``)
		require.Equal(t, StatusError, r.Status)
		require.ErrorIs(t, r.Err, errs.ErrValidation)
	})

	t.Run("panic is contained", func(t *testing.T) {
		r := exec.Execute(ctx, "boom", `{}`)
		require.Equal(t, StatusError, r.Status)
		require.Contains(t, r.Message, "kaboom")
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		r := exec.Execute(cctx, "echo", `{"text":"hi"}`)
		require.Equal(t, StatusError, r.Status)
		require.True(t, errors.Is(r.Err, context.Canceled))
	})
}

func TestResultJSON(t *testing.T) {
	r := PathNeeded("where?", []string{"a.png", "b.png"})
	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(r.String()), &got))
	require.Equal(t, map[string]any{
		"status":      "path_needed",
		"message":     "where?",
		"suggestions": []any{"a.png", "b.png"},
	}, got)
	require.Equal(t, "where?", r.Display)
	require.False(t, r.OK())
}

func TestArgs(t *testing.T) {
	args := Args{
		"f":    float64(3),
		"frac": 2.5,
		"num":  json.Number("7"),
		"str":  " 9 ",
		"bad":  "x",
		"b":    true,
	}
	for key, want := range map[string]int{"f": 3, "num": 7, "str": 9} {
		got, err := args.Int(key)
		require.NoError(t, err, key)
		require.Equal(t, want, got, key)
	}
	for _, key := range []string{"frac", "bad", "b", "missing"} {
		_, err := args.Int(key)
		require.ErrorIs(t, err, errs.ErrValidation, key)
	}
	_, err := args.String("b")
	require.ErrorIs(t, err, errs.ErrValidation)
}

