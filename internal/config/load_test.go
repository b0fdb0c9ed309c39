package config

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMsg(t *testing.T) {
	const content = "just text"

	t.Run("normal msg", func(t *testing.T) {
		msg, err := LoadMsg(context.Background(), content)
		require.NoError(t, err)
		require.Equal(t, content, msg)
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "foo.txt")
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		msg, err := LoadMsg(context.Background(), "file://"+path)
		require.NoError(t, err)
		require.Equal(t, content, msg)
	})

	t.Run("markdown file strips yaml frontmatter", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "role.md")
		md := "---\nname: helper\nstyle: calm\n---\nYou are concise and direct.\n"
		require.NoError(t, os.WriteFile(path, []byte(md), 0o644))

		msg, err := LoadMsg(context.Background(), "file://"+path)
		require.NoError(t, err)
		require.Equal(t, "You are concise and direct.\n", msg)
	})

	t.Run("markdown file with invalid frontmatter errors", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "role.md")
		md := "---\nname: [broken\n---\ncontent"
		require.NoError(t, os.WriteFile(path, []byte(md), 0o644))

		_, err := LoadMsg(context.Background(), "file://"+path)
		require.Error(t, err)
		require.Contains(t, err.Error(), "invalid markdown frontmatter")
	})
}

func TestLoadMsgHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.Error(w, "nope", http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("remote role"))
	}))
	defer srv.Close()

	msg, err := LoadMsg(context.Background(), srv.URL+"/role")
	require.NoError(t, err)
	require.Equal(t, "remote role", msg)

	_, err = LoadMsg(context.Background(), srv.URL+"/missing")
	require.ErrorContains(t, err, "HTTP 404")
}

func TestSystemMessages(t *testing.T) {
	ctx := context.Background()

	t.Run("built-in prompt names the platform", func(t *testing.T) {
		msgs, err := Default().SystemMessages(ctx)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		require.Contains(t, msgs[0], runtime.GOOS)
		require.NotContains(t, msgs[0], "{{os}}")
	})

	t.Run("system prompt", func(t *testing.T) {
		cfg := Default()
		cfg.System = "be brief"
		msgs, err := cfg.SystemMessages(ctx)
		require.NoError(t, err)
		require.Equal(t, []string{"be brief"}, msgs)
	})

	t.Run("role wins", func(t *testing.T) {
		cfg := Default()
		cfg.System = "be brief"
		cfg.Role = "shell"
		cfg.Roles = map[string][]string{"shell": {"you are a shell expert", "use bash"}}
		msgs, err := cfg.SystemMessages(ctx)
		require.NoError(t, err)
		require.Equal(t, []string{"you are a shell expert", "use bash"}, msgs)
	})

	t.Run("unknown role", func(t *testing.T) {
		cfg := Default()
		cfg.Role = "ghost"
		_, err := cfg.SystemMessages(ctx)
		require.Error(t, err)
	})
}
