package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dotcommander/lmagent/internal/errs"
	"github.com/dotcommander/lmagent/internal/proto"
	"github.com/dotcommander/lmagent/internal/resolve"
	"github.com/dotcommander/lmagent/internal/stream"
)

// DefaultVisionMaxBytes is the largest image sent for analysis.
const DefaultVisionMaxBytes = 4 << 20

const visionPrompt = "Analyze this image and tell me what you see."

// Vision configures the describe_image tool.
type Vision struct {
	Client   stream.Completer
	Model    string
	MaxBytes int64
	// History returns the conversation so far. Images are stripped before
	// it is sent.
	History func() []proto.Message
}

type images struct {
	resolver resolve.Resolver
	vision   Vision
}

func (im images) tool() Tool {
	return Tool{
		Name:        "describe_image",
		Description: "Analyze and describe the contents of an image using the vision model",
		Parameters: object(map[string]any{
			"image_path": prop("string", "Path to the image file to analyze"),
		}, "image_path"),
		Handler: im.describe,
	}
}

func (im images) describe(ctx context.Context, args Args) Result {
	path, err := args.String("image_path")
	if err != nil {
		return Failure(err)
	}

	m := im.resolver.Resolve(path)
	switch m.Status {
	case resolve.StatusFound:
	case resolve.StatusNotFound:
		return PathNeeded(fmt.Sprintf("Image file not found: %s. Please provide the exact path to the image.", path), nil)
	case resolve.StatusSuggestions:
		return PathNeeded(fmt.Sprintf(
			"Image file not found. Did you mean one of: %s? Please provide the exact path to the image.",
			strings.Join(m.Suggestions, ", "),
		), m.Suggestions)
	default:
		return Failure(fmt.Errorf("error searching for files: %w", m.Err))
	}

	fi, err := os.Stat(m.Path)
	if err != nil {
		return Failure(fmt.Errorf("stat image: %w", err))
	}
	limit := im.vision.MaxBytes
	if limit <= 0 {
		limit = DefaultVisionMaxBytes
	}
	if fi.Size() > limit {
		return Failure(errs.Kind(errs.ErrValidation, errs.UserErrorf(
			"Image file is too large (%.2f MB). Please use an image smaller than %.2f MB.",
			megabytes(fi.Size()), megabytes(limit),
		)))
	}

	data, err := os.ReadFile(m.Path)
	if err != nil {
		return Failure(fmt.Errorf("read image: %w", err))
	}

	var history []proto.Message
	if im.vision.History != nil {
		history = proto.TextOnly(im.vision.History())
	}
	maxTokens := int64(600)
	temperature := 0.7
	req := proto.Request{
		Model: im.vision.Model,
		Messages: append(history, proto.Message{
			Role:    proto.RoleUser,
			Content: visionPrompt,
			Images:  []proto.Image{{MIME: MIMEType(m.Path), Data: data}},
		}),
		MaxTokens:   &maxTokens,
		Temperature: &temperature,
	}
	description, err := im.vision.Client.Complete(ctx, req)
	if err != nil {
		return Failure(errs.Kind(errs.ErrExternal, fmt.Errorf("vision request: %w", err)))
	}

	r := Success(map[string]any{"description": description})
	r.Display = description
	return r
}

// MIMEType guesses an image MIME type from the file extension.
func MIMEType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

func megabytes(n int64) float64 { return float64(n) / (1 << 20) }
