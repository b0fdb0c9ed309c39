package proto

// ToolSchema describes a callable tool to the backend.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Request is a chat completion request.
type Request struct {
	Model             string
	Messages          []Message
	Tools             []ToolSchema
	MaxTokens         *int64
	Temperature       *float64
	TopP              *float64
	FrequencyPenalty  *float64
	PresencePenalty   *float64
	ToolChoice        string
	ParallelToolCalls *bool
	User              string
}

// ToolCallDelta is a fragment of a tool call keyed by its position in the
// response. Name replaces, Arguments appends.
type ToolCallDelta struct {
	Index     int
	ID        string
	Name      string
	Arguments string
}

// Usage is the token accounting reported by a backend.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// Total returns input plus output tokens.
func (u Usage) Total() int64 { return u.InputTokens + u.OutputTokens }

// Add returns the sum of two usages.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		InputTokens:  u.InputTokens + o.InputTokens,
		OutputTokens: u.OutputTokens + o.OutputTokens,
	}
}

// Chunk is one streamed fragment.
type Chunk struct {
	Content   string
	ToolCalls []ToolCallDelta
	Usage     *Usage
}
