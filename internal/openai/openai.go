// Package openai is a stream.Client for OpenAI compatible chat completion
// servers, LM Studio and Ollama included.
package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	oai "github.com/sashabaranov/go-openai"

	"github.com/dotcommander/lmagent/internal/errs"
	"github.com/dotcommander/lmagent/internal/logging"
	"github.com/dotcommander/lmagent/internal/proto"
	"github.com/dotcommander/lmagent/internal/stream"
)

var (
	_ stream.Client      = &Client{}
	_ stream.Completer   = &Client{}
	_ stream.ModelLister = &Client{}
)

// Config configures the client.
type Config struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Logger     *log.Logger
}

// Client talks to a /v1/chat/completions endpoint.
type Client struct {
	client *oai.Client
	logger *log.Logger
}

// New returns a client for cfg.
func New(cfg Config) *Client {
	c := oai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		c.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	if cfg.HTTPClient != nil {
		c.HTTPClient = cfg.HTTPClient
	}
	return &Client{
		client: oai.NewClientWithConfig(c),
		logger: logging.OrDiscard(cfg.Logger),
	}
}

// Request implements stream.Client.
func (c *Client) Request(ctx context.Context, req proto.Request) stream.Stream {
	body := chatRequest(req)
	body.Stream = true
	body.StreamOptions = &oai.StreamOptions{IncludeUsage: true}

	c.logger.Debug("chat completion", "model", req.Model, "messages", len(req.Messages), "tools", len(req.Tools))
	s := &Stream{}
	st, err := c.client.CreateChatCompletionStream(ctx, body)
	if err != nil {
		s.err = convertErr(err)
		return s
	}
	s.stream = st
	return s
}

// Complete implements stream.Completer.
func (c *Client) Complete(ctx context.Context, req proto.Request) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, chatRequest(req))
	if err != nil {
		return "", convertErr(err)
	}
	if len(resp.Choices) == 0 {
		return "", errs.Kind(errs.ErrExternal, errors.New("response has no choices"))
	}
	return resp.Choices[0].Message.Content, nil
}

// Models implements stream.ModelLister.
func (c *Client) Models(ctx context.Context) ([]string, error) {
	list, err := c.client.ListModels(ctx)
	if err != nil {
		return nil, convertErr(err)
	}
	names := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		names = append(names, m.ID)
	}
	return names, nil
}

// Stream is a stream.Stream over server sent chat completion chunks.
type Stream struct {
	stream   *oai.ChatCompletionStream
	current  proto.Chunk
	err      error
	warnings []string
}

// Next implements stream.Stream.
func (s *Stream) Next() bool {
	if s.err != nil || s.stream == nil {
		return false
	}
	resp, err := s.stream.Recv()
	if errors.Is(err, io.EOF) {
		return false
	}
	if err != nil {
		s.err = convertErr(err)
		return false
	}
	s.current = s.chunk(resp)
	return true
}

// Current implements stream.Stream.
func (s *Stream) Current() (proto.Chunk, error) {
	c := s.current
	if c.Content == "" && len(c.ToolCalls) == 0 && c.Usage == nil {
		return proto.Chunk{}, stream.ErrNoContent
	}
	return c, nil
}

// Err implements stream.Stream.
func (s *Stream) Err() error { return s.err }

// Close implements stream.Stream.
func (s *Stream) Close() error {
	if s.stream == nil {
		return nil
	}
	if err := s.stream.Close(); err != nil {
		return fmt.Errorf("close stream: %w", err)
	}
	return nil
}

// DrainWarnings implements stream.Stream.
func (s *Stream) DrainWarnings() []string {
	w := s.warnings
	s.warnings = nil
	return w
}

func (s *Stream) chunk(resp oai.ChatCompletionStreamResponse) proto.Chunk {
	var chunk proto.Chunk
	if u := resp.Usage; u != nil {
		chunk.Usage = &proto.Usage{
			InputTokens:  int64(u.PromptTokens),
			OutputTokens: int64(u.CompletionTokens),
		}
	}
	if len(resp.Choices) == 0 {
		return chunk
	}
	delta := resp.Choices[0].Delta
	chunk.Content = delta.Content
	if delta.Refusal != "" {
		s.warnings = append(s.warnings, "model refused: "+delta.Refusal)
	}
	for i, tc := range delta.ToolCalls {
		index := i
		if tc.Index != nil {
			index = *tc.Index
		}
		chunk.ToolCalls = append(chunk.ToolCalls, proto.ToolCallDelta{
			Index:     index,
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return chunk
}

func chatRequest(req proto.Request) oai.ChatCompletionRequest {
	out := oai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: chatMessages(req.Messages),
		User:     req.User,
	}
	if req.MaxTokens != nil {
		out.MaxTokens = int(*req.MaxTokens)
	}
	if req.Temperature != nil {
		out.Temperature = float32(*req.Temperature)
	}
	if req.TopP != nil {
		out.TopP = float32(*req.TopP)
	}
	if req.FrequencyPenalty != nil {
		out.FrequencyPenalty = float32(*req.FrequencyPenalty)
	}
	if req.PresencePenalty != nil {
		out.PresencePenalty = float32(*req.PresencePenalty)
	}
	if len(req.Tools) == 0 {
		return out
	}
	for _, t := range req.Tools {
		out.Tools = append(out.Tools, oai.Tool{
			Type: oai.ToolTypeFunction,
			Function: &oai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	if req.ToolChoice != "" {
		out.ToolChoice = req.ToolChoice
	}
	if req.ParallelToolCalls != nil {
		out.ParallelToolCalls = *req.ParallelToolCalls
	}
	return out
}

func chatMessages(in []proto.Message) []oai.ChatCompletionMessage {
	out := make([]oai.ChatCompletionMessage, 0, len(in))
	for _, m := range in {
		msg := oai.ChatCompletionMessage{
			Role:       string(m.Role),
			ToolCallID: m.ToolCallID,
		}
		if len(m.Images) > 0 {
			if m.Content != "" {
				msg.MultiContent = append(msg.MultiContent, oai.ChatMessagePart{
					Type: oai.ChatMessagePartTypeText,
					Text: m.Content,
				})
			}
			for _, img := range m.Images {
				msg.MultiContent = append(msg.MultiContent, oai.ChatMessagePart{
					Type: oai.ChatMessagePartTypeImageURL,
					ImageURL: &oai.ChatMessageImageURL{
						URL:    DataURL(img),
						Detail: oai.ImageURLDetailHigh,
					},
				})
			}
		} else {
			msg.Content = m.Content
		}
		for _, tc := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, oai.ToolCall{
				ID:   tc.ID,
				Type: oai.ToolTypeFunction,
				Function: oai.FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
		out = append(out, msg)
	}
	return out
}

// DataURL encodes img as a base64 data URL.
func DataURL(img proto.Image) string {
	return "data:" + img.MIME + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

func convertErr(err error) error {
	var apiErr *oai.APIError
	if errors.As(err, &apiErr) {
		return &stream.APIError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message, Err: err}
	}
	var reqErr *oai.RequestError
	if errors.As(err, &reqErr) {
		return &stream.APIError{
			StatusCode: reqErr.HTTPStatusCode,
			Message:    strings.TrimSpace(string(reqErr.Body)),
			Err:        reqErr.Err,
		}
	}
	return err
}
