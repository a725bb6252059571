package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"codesmith/internal/config"
	"codesmith/internal/llm/llmlog"
	"codesmith/internal/logging"
)

// AnthropicProvider implements Provider for the Anthropic messages API.
type AnthropicProvider struct {
	core      httpCore
	apiKey    string
	baseURL   string
	model     string
	maxTokens int
	temp      float64
	thinking  int // extended-thinking token budget, 0 disables
	log       *llmlog.Logger
}

// NewAnthropicProvider builds the provider from a model config.
func NewAnthropicProvider(cfg config.ModelConfig, log *llmlog.Logger) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic provider requires an API key")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.anthropic.com/v1"
	}
	return &AnthropicProvider{
		core:      newHTTPCore("anthropic", cfg.FirstTokenTimeoutMS, cfg.StallTimeoutMS),
		apiKey:    cfg.APIKey,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		temp:      cfg.Temperature,
		thinking:  cfg.ThinkingBudget,
		log:       log,
	}, nil
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) setHeaders(req *http.Request) {
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")
}

func (p *AnthropicProvider) buildPayload(req GenerateRequest, stream bool) map[string]any {
	messages := make([]map[string]any, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			// The system field carries system text; stray system messages
			// become user turns so ordering survives.
			messages = append(messages, map[string]any{"role": "user", "content": m.JoinedText()})
		case RoleTool:
			messages = append(messages, map[string]any{
				"role": "user",
				"content": []map[string]any{{
					"type":        "tool_result",
					"tool_use_id": m.ToolCallID,
					"content":     m.JoinedText(),
				}},
			})
		default:
			content := make([]map[string]any, 0, len(m.Content))
			for _, part := range m.Content {
				if part.Text != "" {
					content = append(content, map[string]any{"type": "text", "text": part.Text})
				} else if part.ImageURL != "" {
					content = append(content, map[string]any{
						"type":   "image",
						"source": map[string]any{"type": "url", "url": part.ImageURL},
					})
				}
			}
			messages = append(messages, map[string]any{"role": string(m.Role), "content": content})
		}
	}

	maxTokens := req.MaxOutputTokens
	if maxTokens == 0 {
		maxTokens = p.maxTokens
	}
	if maxTokens == 0 {
		maxTokens = defaultMaxOutputTokens
	}

	payload := map[string]any{
		"model":      p.model,
		"max_tokens": maxTokens,
		"messages":   messages,
	}
	if req.System != "" {
		payload["system"] = req.System
	}
	if req.Temperature != nil {
		payload["temperature"] = *req.Temperature
	} else if p.temp > 0 {
		payload["temperature"] = p.temp
	}
	if req.TopP != nil {
		payload["top_p"] = *req.TopP
	}
	if len(req.Stop) > 0 {
		payload["stop_sequences"] = req.Stop
	}
	if len(req.Tools) > 0 {
		tools := make([]map[string]any, 0, len(req.Tools))
		for _, t := range req.Tools {
			schema := t.JSONSchema
			if schema == nil {
				schema = map[string]any{"type": "object"}
			}
			tools = append(tools, map[string]any{
				"name":         t.Name,
				"description":  t.Description,
				"input_schema": schema,
			})
		}
		payload["tools"] = tools
	}
	switch req.ToolChoice {
	case ToolChoiceAuto:
		payload["tool_choice"] = map[string]any{"type": "auto"}
	case ToolChoiceRequired:
		payload["tool_choice"] = map[string]any{"type": "any"}
	case ToolChoiceNone:
		payload["tool_choice"] = map[string]any{"type": "none"}
	}
	if p.thinking > 0 {
		payload["thinking"] = map[string]any{"type": "enabled", "budget_tokens": p.thinking}
	}
	if stream {
		payload["stream"] = true
	}
	return payload
}

// Generate sends a non-streaming messages request.
func (p *AnthropicProvider) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	start := time.Now()
	payload := p.buildPayload(req, false)
	p.log.LogRequest("anthropic", p.model, promptDigest(req))
	logging.APIDebug("[anthropic] generate model=%s messages=%d", p.model, len(req.Messages))

	url := p.baseURL + "/messages"
	status, body, err := p.core.postJSON(ctx, url, payload, p.setHeaders, req.Metadata)
	if err != nil {
		p.log.LogError("anthropic", p.model, err, time.Since(start))
		return nil, err
	}

	// One remap retry when the provider objects to the token-cap field name.
	if status == 400 {
		if retry, ok := remapTokenField(payload, "max_tokens", p.maxTokens, string(body)); ok {
			status, body, err = p.core.postJSON(ctx, url, retry, p.setHeaders, req.Metadata)
			if err != nil {
				p.log.LogError("anthropic", p.model, err, time.Since(start))
				return nil, err
			}
		}
	}
	if status != http.StatusOK {
		perr := mapHTTPError("anthropic", status, string(body))
		p.log.LogError("anthropic", p.model, perr, time.Since(start))
		return nil, perr
	}

	raw, err := decodeJSON("anthropic", body)
	if err != nil {
		return nil, err
	}
	resp := p.parseResponse(raw)
	p.log.LogResponse("anthropic", p.model, resp.Text, time.Since(start))
	return resp, nil
}

func (p *AnthropicProvider) parseResponse(raw map[string]any) *GenerateResponse {
	resp := &GenerateResponse{Raw: raw}

	if content, ok := raw["content"].([]any); ok {
		var texts []string
		for _, block := range content {
			b, ok := block.(map[string]any)
			if !ok {
				continue
			}
			switch b["type"] {
			case "text":
				if t, ok := b["text"].(string); ok {
					texts = append(texts, t)
				}
			case "tool_use":
				call := ToolCall{Arguments: map[string]any{}}
				call.ID, _ = b["id"].(string)
				call.Name, _ = b["name"].(string)
				if input, ok := b["input"].(map[string]any); ok {
					call.Arguments = input
				}
				resp.ToolCalls = append(resp.ToolCalls, call)
			}
		}
		resp.Text = strings.Join(texts, "")
	}

	if u, ok := raw["usage"].(map[string]any); ok {
		usage := &Usage{}
		if v, ok := u["input_tokens"].(float64); ok {
			usage.PromptTokens = int(v)
		}
		if v, ok := u["output_tokens"].(float64); ok {
			usage.CompletionTokens = int(v)
		}
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
		resp.Usage = usage
	}
	return resp
}

// GenerateStreaming streams SSE events from the messages API.
func (p *AnthropicProvider) GenerateStreaming(ctx context.Context, req GenerateRequest, onEvent EventFunc) (*GenerateResponse, error) {
	start := time.Now()
	payload := p.buildPayload(req, true)
	p.log.LogRequest("anthropic", p.model, promptDigest(req))

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/messages", strings.NewReader(string(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	p.setHeaders(httpReq)
	applyMetadata(httpReq, req.Metadata)

	httpResp, err := p.core.client.Do(httpReq)
	if err != nil {
		perr := networkError("anthropic", err)
		p.log.LogError("anthropic", p.model, perr, time.Since(start))
		return nil, perr
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		body := readBodyForError(httpResp)
		perr := mapHTTPError("anthropic", httpResp.StatusCode, body)
		p.log.LogError("anthropic", p.model, perr, time.Since(start))
		return nil, perr
	}

	decoder := NewSSEDecoder()
	var text strings.Builder
	var usage *Usage
	var toolName, toolID string
	var toolArgs strings.Builder
	var calls []ToolCall
	inTool := false

	streamErr := p.core.streamBody(ctx, httpResp.Body, func(chunk []byte) bool {
		delta := false
		for _, payload := range decoder.Push(chunk) {
			var ev map[string]any
			if err := json.Unmarshal([]byte(payload), &ev); err != nil {
				continue
			}
			switch ev["type"] {
			case "content_block_start":
				if cb, ok := ev["content_block"].(map[string]any); ok && cb["type"] == "tool_use" {
					inTool = true
					toolName, _ = cb["name"].(string)
					toolID, _ = cb["id"].(string)
					toolArgs.Reset()
				}
			case "content_block_delta":
				d, _ := ev["delta"].(map[string]any)
				switch d["type"] {
				case "text_delta":
					if t, ok := d["text"].(string); ok {
						text.WriteString(t)
						onEvent(StreamEvent{Kind: EventTextDelta, Text: t})
						delta = true
					}
				case "input_json_delta":
					if t, ok := d["partial_json"].(string); ok {
						toolArgs.WriteString(t)
						onEvent(StreamEvent{Kind: EventToolDelta, Text: t})
						delta = true
					}
				}
			case "content_block_stop":
				if inTool {
					inTool = false
					call := &ToolCall{ID: toolID, Name: toolName, Arguments: map[string]any{}}
					if toolArgs.Len() > 0 {
						json.Unmarshal([]byte(toolArgs.String()), &call.Arguments)
					}
					calls = append(calls, *call)
					onEvent(StreamEvent{Kind: EventToolCall, ToolCall: call})
					delta = true
				}
			case "message_delta":
				if u, ok := ev["usage"].(map[string]any); ok {
					if usage == nil {
						usage = &Usage{}
					}
					if v, ok := u["output_tokens"].(float64); ok {
						usage.CompletionTokens = int(v)
					}
					onEvent(StreamEvent{Kind: EventUsage, Usage: usage})
				}
			case "message_start":
				if msg, ok := ev["message"].(map[string]any); ok {
					if u, ok := msg["usage"].(map[string]any); ok {
						if usage == nil {
							usage = &Usage{}
						}
						if v, ok := u["input_tokens"].(float64); ok {
							usage.PromptTokens = int(v)
						}
					}
				}
			}
		}
		return delta
	})
	if streamErr != nil {
		onEvent(StreamEvent{Kind: EventError, Err: streamErr.Error()})
		p.log.LogError("anthropic", p.model, streamErr, time.Since(start))
		return nil, streamErr
	}

	onEvent(StreamEvent{Kind: EventFinished})
	if usage != nil {
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}
	resp := &GenerateResponse{Text: text.String(), ToolCalls: calls, Usage: usage}
	p.log.LogResponse("anthropic", p.model, resp.Text, time.Since(start))
	return resp, nil
}
