package tools

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/dotcommander/lmagent/internal/errs"
	"github.com/dotcommander/lmagent/internal/proto"
	"github.com/dotcommander/lmagent/internal/resolve"
	"github.com/stretchr/testify/require"
)

type fakeCompleter struct {
	reply    string
	err      error
	requests []proto.Request
}

func (f *fakeCompleter) Complete(_ context.Context, req proto.Request) (string, error) {
	f.requests = append(f.requests, req)
	return f.reply, f.err
}

func newImageExecutor(t *testing.T, fc *fakeCompleter, maxBytes int64, history []proto.Message) (*Executor, string) {
	t.Helper()
	dir := t.TempDir()
	reg := NewRegistry()
	require.NoError(t, RegisterBuiltins(reg, Options{
		Resolver: resolve.Resolver{Dir: dir},
		Vision: &Vision{
			Client:   fc,
			Model:    "llava",
			MaxBytes: maxBytes,
			History:  func() []proto.Message { return history },
		},
	}))
	return NewExecutor(reg, nil), dir
}

func TestDescribeImage(t *testing.T) {
	ctx := context.Background()

	t.Run("sends a text only history and the image", func(t *testing.T) {
		fc := &fakeCompleter{reply: "a cat"}
		history := []proto.Message{
			{Role: proto.RoleUser, Content: "earlier", Images: []proto.Image{{MIME: "image/png", Data: []byte("old")}}},
		}
		exec, dir := newImageExecutor(t, fc, 0, history)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "cat.png"), []byte("PNG"), 0o644))

		r := exec.Execute(ctx, "describe_image", `{"image_path":"cat.png"}`)
		require.Equal(t, StatusSuccess, r.Status, r.Message)
		require.Equal(t, "a cat", r.Payload["description"])
		require.Equal(t, "a cat", r.Display)

		require.Len(t, fc.requests, 1)
		req := fc.requests[0]
		require.Equal(t, "llava", req.Model)
		require.Equal(t, int64(600), *req.MaxTokens)
		require.InDelta(t, 0.7, *req.Temperature, 0.0001)
		require.Len(t, req.Messages, 2)
		require.Empty(t, req.Messages[0].Images)
		last := req.Messages[1]
		require.Equal(t, visionPrompt, last.Content)
		require.Equal(t, []proto.Image{{MIME: "image/png", Data: []byte("PNG")}}, last.Images)
		require.Len(t, history[0].Images, 1)
	})

	t.Run("too large fails before any request", func(t *testing.T) {
		fc := &fakeCompleter{}
		exec, dir := newImageExecutor(t, fc, 4, nil)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "big.jpg"), []byte("12345"), 0o644))
		r := exec.Execute(ctx, "describe_image", `{"image_path":"big.jpg"}`)
		require.Equal(t, StatusError, r.Status)
		require.ErrorIs(t, r.Err, errs.ErrValidation)
		require.Empty(t, fc.requests)
	})

	t.Run("not found asks for a path", func(t *testing.T) {
		fc := &fakeCompleter{}
		exec, _ := newImageExecutor(t, fc, 0, nil)
		r := exec.Execute(ctx, "describe_image", `{"image_path":"ghost.png"}`)
		require.Equal(t, StatusPathNeeded, r.Status)
		require.Contains(t, r.Message, "ghost.png")
		require.Empty(t, fc.requests)
	})

	t.Run("suggestions ask for a path", func(t *testing.T) {
		fc := &fakeCompleter{}
		exec, dir := newImageExecutor(t, fc, 0, nil)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "shot1.png"), nil, 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "shot2.png"), nil, 0o644))
		r := exec.Execute(ctx, "describe_image", `{"image_path":"shot"}`)
		require.Equal(t, StatusPathNeeded, r.Status)
		require.Equal(t, []string{filepath.Join(dir, "shot1.png"), filepath.Join(dir, "shot2.png")}, r.Suggestions)
	})

	t.Run("backend failure", func(t *testing.T) {
		fc := &fakeCompleter{err: errors.New("503")}
		exec, dir := newImageExecutor(t, fc, 0, nil)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "a.jpeg"), []byte("x"), 0o644))
		r := exec.Execute(ctx, "describe_image", `{"image_path":"a.jpeg"}`)
		require.Equal(t, StatusError, r.Status)
		require.ErrorIs(t, r.Err, errs.ErrExternal)
	})
}

func TestMIMEType(t *testing.T) {
	require.Equal(t, "image/png", MIMEType("a.PNG"))
	require.Equal(t, "image/jpeg", MIMEType("a.jpeg"))
	require.Equal(t, "image/jpeg", MIMEType("a.bmp"))
	require.Equal(t, "image/webp", MIMEType("a.webp"))
}
