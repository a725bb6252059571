// Package llm exposes a single canonical chat-completion interface over
// heterogeneous LM backends. Providers map the canonical request to their
// native JSON and normalize responses back.
package llm

import (
	"context"
	"strings"
)

// Role of a canonical message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ContentPart is one piece of message content: text or an image by URL.
type ContentPart struct {
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
	MIME     string `json:"mime,omitempty"`
}

// Message is a canonical chat message.
type Message struct {
	Role    Role          `json:"role"`
	Content []ContentPart `json:"content"`

	// ToolCallID links a tool-result message back to the call it answers.
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// Text builds a plain text message.
func Text(role Role, text string) Message {
	return Message{Role: role, Content: []ContentPart{{Text: text}}}
}

// JoinedText flattens the message's text parts.
func (m Message) JoinedText() string {
	parts := make([]string, 0, len(m.Content))
	for _, p := range m.Content {
		if p.Text != "" {
			parts = append(parts, p.Text)
		}
	}
	return strings.Join(parts, " ")
}

// ToolSpec describes one tool offered to the model.
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	JSONSchema  map[string]any `json:"json_schema,omitempty"`
}

// ToolChoice controls whether the model must, may, or must not call tools.
type ToolChoice string

const (
	ToolChoiceAuto     ToolChoice = "auto"
	ToolChoiceRequired ToolChoice = "required"
	ToolChoiceNone     ToolChoice = "none"
)

// ToolCall is a normalized tool invocation emitted by a provider.
type ToolCall struct {
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Usage carries canonical token counters when the provider reports them.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}

// GenerateRequest is the canonical request shape shared by all providers.
type GenerateRequest struct {
	System   string    `json:"system,omitempty"`
	Messages []Message `json:"messages"`

	Tools      []ToolSpec `json:"tools,omitempty"`
	ToolChoice ToolChoice `json:"tool_choice,omitempty"`

	Temperature *float64           `json:"temperature,omitempty"`
	TopP        *float64           `json:"top_p,omitempty"`
	Stop        []string           `json:"stop,omitempty"`
	Seed        *int64             `json:"seed,omitempty"`
	LogitBias   map[string]float64 `json:"logit_bias,omitempty"`

	// ResponseFormat hints the output shape ("json_object" or empty).
	ResponseFormat string `json:"response_format,omitempty"`

	// MaxOutputTokens caps output; providers map it to their own key.
	MaxOutputTokens int `json:"max_output_tokens,omitempty"`

	// Metadata is forwarded as headers, minus the reserved set.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// GenerateResponse is the canonical response shape.
type GenerateResponse struct {
	Text      string     `json:"text"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Usage     *Usage     `json:"usage,omitempty"`

	// Raw holds the provider's JSON for diagnostics.
	Raw map[string]any `json:"raw,omitempty"`
}

// StreamEventKind tags streaming events.
type StreamEventKind string

const (
	EventTextDelta StreamEventKind = "text_delta"
	EventToolDelta StreamEventKind = "tool_delta"
	EventToolCall  StreamEventKind = "tool_call"
	EventUsage     StreamEventKind = "usage"
	EventFinished  StreamEventKind = "finished"
	EventError     StreamEventKind = "error"
)

// StreamEvent is one unit of streamed output.
type StreamEvent struct {
	Kind     StreamEventKind
	Text     string    // TextDelta, ToolDelta
	ToolCall *ToolCall // ToolCall
	Usage    *Usage    // Usage
	Err      string    // Error
}

// EventFunc receives stream events in order.
type EventFunc func(StreamEvent)

// Provider is the canonical generate interface implemented per backend.
type Provider interface {
	Name() string

	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)

	// GenerateStreaming invokes onEvent for each StreamEvent and returns the
	// final response with the concatenated text.
	GenerateStreaming(ctx context.Context, req GenerateRequest, onEvent EventFunc) (*GenerateResponse, error)
}
