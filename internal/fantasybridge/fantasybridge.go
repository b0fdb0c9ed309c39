package fantasybridge

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"charm.land/fantasy"

	"github.com/dotcommander/lmagent/internal/proto"
	"github.com/dotcommander/lmagent/internal/stream"
)

var (
	_ stream.Client    = &Client{}
	_ stream.Completer = &Client{}
)

const (
	apiAnthropic  = "anthropic"
	apiGoogle     = "google"
	apiOpenAI     = "openai"
	apiAzure      = "azure"
	apiAzureAD    = "azure-ad"
	apiBedrock    = "bedrock"
	apiOpenRouter = "openrouter"
	apiVercel     = "vercel"
)

// Config represents provider configuration used by the fantasy bridge.
type Config struct {
	API            string
	BaseURL        string
	APIKey         string
	HTTPClient     *http.Client
	ThinkingBudget int
}

// Client is a stream.Client backed by charm.land/fantasy.
type Client struct {
	provider fantasy.Provider
	config   Config
}

// New creates a new Fantasy-backed stream client.
func New(cfg Config) (*Client, error) {
	provider, err := newProvider(cfg)
	if err != nil {
		return nil, fmt.Errorf("new %s provider: %w", providerLabel(cfg.API), err)
	}
	return &Client{provider: provider, config: cfg}, nil
}

// Request implements stream.Client. Each request is a single model step;
// tool calls are reported to the caller and never run here.
func (c *Client) Request(ctx context.Context, request proto.Request) stream.Stream {
	streamCtx, cancel := context.WithCancel(ctx)
	s := &Stream{
		ctx:         streamCtx,
		cancel:      cancel,
		request:     request,
		api:         c.config.API,
		config:      c.config,
		toolIndex:   map[string]int{},
		warningSeen: map[string]struct{}{},
	}
	if err := s.start(c.provider); err != nil {
		s.err = err
	}
	return s
}

// Complete implements stream.Completer by draining a stream.
func (c *Client) Complete(ctx context.Context, request proto.Request) (string, error) {
	acc := stream.NewAccumulator()
	if err := stream.Drain(ctx, c.Request(ctx, request), acc, nil); err != nil {
		return "", err
	}
	return acc.Text(), nil
}

// Stream is a stream.Stream implementation backed by fantasy stream events.
type Stream struct {
	ctx     context.Context
	cancel  context.CancelFunc
	request proto.Request
	api     string
	config  Config

	mu sync.Mutex

	partCh  chan fantasy.StreamPart
	current proto.Chunk
	err     error

	// toolIndex maps provider call IDs to accumulator slots.
	toolIndex       map[string]int
	toolArgsSeen    map[string]bool
	warningSeen     map[string]struct{}
	pendingWarnings []string
}

// Next implements stream.Stream.
func (s *Stream) Next() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil || s.partCh == nil {
		return false
	}

	part, ok := <-s.partCh
	if !ok {
		return false
	}

	s.current = s.consumePart(part)
	return s.err == nil
}

// Current implements stream.Stream.
func (s *Stream) Current() (proto.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.current
	if c.Content == "" && len(c.ToolCalls) == 0 && c.Usage == nil {
		return proto.Chunk{}, stream.ErrNoContent
	}
	return c, nil
}

// Close implements stream.Stream.
func (s *Stream) Close() error {
	s.cancel()
	return nil
}

// Err implements stream.Stream.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// DrainWarnings implements stream.Stream.
func (s *Stream) DrainWarnings() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	warnings := append([]string(nil), s.pendingWarnings...)
	s.pendingWarnings = nil
	return warnings
}

func (s *Stream) start(provider fantasy.Provider) error {
	model, err := provider.LanguageModel(s.ctx, s.request.Model)
	if err != nil {
		return fmt.Errorf("fantasy language model: %w", err)
	}

	seq, err := model.Stream(s.ctx, s.buildCall())
	if err != nil {
		return fmt.Errorf("fantasy stream: %w", err)
	}

	s.partCh = make(chan fantasy.StreamPart, 64)
	go func() {
		defer close(s.partCh)
		for part := range seq {
			select {
			case <-s.ctx.Done():
				return
			case s.partCh <- part:
			}
		}
	}()
	return nil
}

func (s *Stream) buildCall() fantasy.Call {
	call := fantasy.Call{
		Prompt:           toFantasyPrompt(s.request.Messages),
		MaxOutputTokens:  s.request.MaxTokens,
		Temperature:      s.request.Temperature,
		TopP:             s.request.TopP,
		FrequencyPenalty: s.request.FrequencyPenalty,
		PresencePenalty:  s.request.PresencePenalty,
		Tools:            fromSchemas(s.request.Tools),
		ToolChoice:       toolChoiceForRequest(s.request),
		ProviderOptions:  fantasy.ProviderOptions{},
	}
	applyProviderOptions(&call, s.api, s.config, s.request)
	return call
}

// slot returns the accumulator index for a provider call ID.
func (s *Stream) slot(id string) (int, bool) {
	if i, ok := s.toolIndex[id]; ok {
		return i, false
	}
	i := len(s.toolIndex)
	s.toolIndex[id] = i
	return i, true
}

func (s *Stream) consumePart(part fantasy.StreamPart) proto.Chunk {
	switch part.Type {
	case fantasy.StreamPartTypeTextDelta:
		return proto.Chunk{Content: part.Delta}
	case fantasy.StreamPartTypeToolInputStart:
		if part.ProviderExecuted {
			return proto.Chunk{}
		}
		i, _ := s.slot(part.ID)
		return proto.Chunk{ToolCalls: []proto.ToolCallDelta{{Index: i, ID: part.ID, Name: part.ToolCallName}}}
	case fantasy.StreamPartTypeToolInputDelta:
		i, ok := s.toolIndex[part.ID]
		if !ok || part.Delta == "" {
			return proto.Chunk{}
		}
		if s.toolArgsSeen == nil {
			s.toolArgsSeen = map[string]bool{}
		}
		s.toolArgsSeen[part.ID] = true
		return proto.Chunk{ToolCalls: []proto.ToolCallDelta{{Index: i, Arguments: part.Delta}}}
	case fantasy.StreamPartTypeToolCall:
		if part.ProviderExecuted || s.toolArgsSeen[part.ID] {
			return proto.Chunk{}
		}
		i, _ := s.slot(part.ID)
		return proto.Chunk{ToolCalls: []proto.ToolCallDelta{{
			Index:     i,
			ID:        part.ID,
			Name:      part.ToolCallName,
			Arguments: part.ToolCallInput,
		}}}
	case fantasy.StreamPartTypeFinish:
		return proto.Chunk{Usage: &proto.Usage{
			InputTokens:  part.Usage.InputTokens,
			OutputTokens: part.Usage.OutputTokens,
		}}
	case fantasy.StreamPartTypeError:
		s.err = part.Error
	case fantasy.StreamPartTypeWarnings:
		s.addWarnings(part.Warnings)
	case fantasy.StreamPartTypeTextStart,
		fantasy.StreamPartTypeTextEnd,
		fantasy.StreamPartTypeReasoningStart,
		fantasy.StreamPartTypeReasoningDelta,
		fantasy.StreamPartTypeReasoningEnd,
		fantasy.StreamPartTypeToolInputEnd,
		fantasy.StreamPartTypeToolResult,
		fantasy.StreamPartTypeSource:
	}
	return proto.Chunk{}
}

func (s *Stream) addWarnings(warnings []fantasy.CallWarning) {
	for _, warning := range warnings {
		text := strings.TrimSpace(warning.Message)
		if text == "" {
			text = strings.TrimSpace(warning.Details)
		}
		if text == "" && warning.Setting != "" {
			text = fmt.Sprintf("unsupported setting: %s", warning.Setting)
		}
		if text == "" {
			text = "provider warning"
		}
		key := string(warning.Type) + ":" + text
		if _, exists := s.warningSeen[key]; exists {
			continue
		}
		s.warningSeen[key] = struct{}{}
		s.pendingWarnings = append(s.pendingWarnings, text)
	}
}
