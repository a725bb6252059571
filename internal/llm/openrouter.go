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

// OpenRouterProvider implements Provider for OpenAI-style chat/completions
// endpoints, typically reached through the OpenRouter aggregator.
type OpenRouterProvider struct {
	core      httpCore
	apiKey    string
	baseURL   string
	model     string
	maxTokens int
	temp      float64
	reasoning string // reasoning effort hint, empty disables
	log       *llmlog.Logger
}

// NewOpenRouterProvider builds the provider from a model config.
func NewOpenRouterProvider(cfg config.ModelConfig, log *llmlog.Logger) (*OpenRouterProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openrouter provider requires an API key")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api/v1"
	}
	return &OpenRouterProvider{
		core:      newHTTPCore("openrouter", cfg.FirstTokenTimeoutMS, cfg.StallTimeoutMS),
		apiKey:    cfg.APIKey,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		temp:      cfg.Temperature,
		reasoning: cfg.ReasoningEffort,
		log:       log,
	}, nil
}

func (p *OpenRouterProvider) Name() string { return "openrouter" }

func (p *OpenRouterProvider) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
}

func (p *OpenRouterProvider) buildPayload(req GenerateRequest, stream bool) map[string]any {
	messages := make([]map[string]any, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, map[string]any{"role": "system", "content": req.System})
	}
	for _, m := range req.Messages {
		if m.Role == RoleTool {
			messages = append(messages, map[string]any{
				"role":         "tool",
				"tool_call_id": m.ToolCallID,
				"content":      m.JoinedText(),
			})
			continue
		}
		messages = append(messages, map[string]any{"role": string(m.Role), "content": m.JoinedText()})
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
		"messages":   messages,
		"max_tokens": maxTokens,
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
		payload["stop"] = req.Stop
	}
	if req.Seed != nil {
		payload["seed"] = *req.Seed
	}
	if len(req.LogitBias) > 0 {
		payload["logit_bias"] = req.LogitBias
	}
	if req.ResponseFormat != "" {
		payload["response_format"] = map[string]any{"type": req.ResponseFormat}
	}
	if len(req.Tools) > 0 {
		tools := make([]map[string]any, 0, len(req.Tools))
		for _, t := range req.Tools {
			schema := t.JSONSchema
			if schema == nil {
				schema = map[string]any{"type": "object"}
			}
			tools = append(tools, map[string]any{
				"type": "function",
				"function": map[string]any{
					"name":        t.Name,
					"description": t.Description,
					"parameters":  schema,
				},
			})
		}
		payload["tools"] = tools
	}
	switch req.ToolChoice {
	case ToolChoiceAuto:
		payload["tool_choice"] = "auto"
	case ToolChoiceRequired:
		payload["tool_choice"] = "required"
	case ToolChoiceNone:
		payload["tool_choice"] = "none"
	}
	if p.reasoning != "" {
		payload["reasoning"] = map[string]any{"effort": p.reasoning}
	}
	if stream {
		payload["stream"] = true
	}
	return payload
}

// Generate sends a non-streaming chat/completions request.
func (p *OpenRouterProvider) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	start := time.Now()
	payload := p.buildPayload(req, false)
	p.log.LogRequest("openrouter", p.model, promptDigest(req))
	logging.APIDebug("[openrouter] generate model=%s messages=%d", p.model, len(req.Messages))

	url := p.baseURL + "/chat/completions"
	status, body, err := p.core.postJSON(ctx, url, payload, p.setHeaders, req.Metadata)
	if err != nil {
		p.log.LogError("openrouter", p.model, err, time.Since(start))
		return nil, err
	}

	if status == 400 {
		if retry, ok := remapTokenField(payload, "max_tokens", p.maxTokens, string(body)); ok {
			status, body, err = p.core.postJSON(ctx, url, retry, p.setHeaders, req.Metadata)
			if err != nil {
				p.log.LogError("openrouter", p.model, err, time.Since(start))
				return nil, err
			}
		}
	}
	if status != http.StatusOK {
		perr := mapHTTPError("openrouter", status, string(body))
		p.log.LogError("openrouter", p.model, perr, time.Since(start))
		return nil, perr
	}

	raw, err := decodeJSON("openrouter", body)
	if err != nil {
		return nil, err
	}
	resp := p.parseResponse(raw)
	p.log.LogResponse("openrouter", p.model, resp.Text, time.Since(start))
	return resp, nil
}

func (p *OpenRouterProvider) parseResponse(raw map[string]any) *GenerateResponse {
	resp := &GenerateResponse{Raw: raw}

	choices, _ := raw["choices"].([]any)
	if len(choices) > 0 {
		if choice, ok := choices[0].(map[string]any); ok {
			if msg, ok := choice["message"].(map[string]any); ok {
				if content, ok := msg["content"].(string); ok {
					resp.Text = content
				}
				if calls, ok := msg["tool_calls"].([]any); ok {
					for _, c := range calls {
						cm, ok := c.(map[string]any)
						if !ok {
							continue
						}
						call := ToolCall{Arguments: map[string]any{}}
						call.ID, _ = cm["id"].(string)
						if fn, ok := cm["function"].(map[string]any); ok {
							call.Name, _ = fn["name"].(string)
							if args, ok := fn["arguments"].(string); ok && args != "" {
								json.Unmarshal([]byte(args), &call.Arguments)
							}
						}
						if call.Name != "" {
							resp.ToolCalls = append(resp.ToolCalls, call)
						}
					}
				}
			}
		}
	}

	if u, ok := raw["usage"].(map[string]any); ok {
		usage := &Usage{}
		if v, ok := u["prompt_tokens"].(float64); ok {
			usage.PromptTokens = int(v)
		}
		if v, ok := u["completion_tokens"].(float64); ok {
			usage.CompletionTokens = int(v)
		}
		if v, ok := u["total_tokens"].(float64); ok {
			usage.TotalTokens = int(v)
		}
		resp.Usage = usage
	}
	return resp
}

// GenerateStreaming streams SSE chunks from chat/completions.
func (p *OpenRouterProvider) GenerateStreaming(ctx context.Context, req GenerateRequest, onEvent EventFunc) (*GenerateResponse, error) {
	start := time.Now()
	payload := p.buildPayload(req, true)
	p.log.LogRequest("openrouter", p.model, promptDigest(req))

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", strings.NewReader(string(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	p.setHeaders(httpReq)
	applyMetadata(httpReq, req.Metadata)

	httpResp, err := p.core.client.Do(httpReq)
	if err != nil {
		perr := networkError("openrouter", err)
		p.log.LogError("openrouter", p.model, perr, time.Since(start))
		return nil, perr
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		body := readBodyForError(httpResp)
		perr := mapHTTPError("openrouter", httpResp.StatusCode, body)
		p.log.LogError("openrouter", p.model, perr, time.Since(start))
		return nil, perr
	}

	decoder := NewSSEDecoder()
	var text strings.Builder
	var usage *Usage

	streamErr := p.core.streamBody(ctx, httpResp.Body, func(chunk []byte) bool {
		delta := false
		for _, payload := range decoder.Push(chunk) {
			var ev map[string]any
			if err := json.Unmarshal([]byte(payload), &ev); err != nil {
				continue
			}
			if choices, ok := ev["choices"].([]any); ok && len(choices) > 0 {
				if choice, ok := choices[0].(map[string]any); ok {
					if d, ok := choice["delta"].(map[string]any); ok {
						if content, ok := d["content"].(string); ok && content != "" {
							text.WriteString(content)
							onEvent(StreamEvent{Kind: EventTextDelta, Text: content})
							delta = true
						}
					}
				}
			}
			if u, ok := ev["usage"].(map[string]any); ok {
				usage = &Usage{}
				if v, ok := u["prompt_tokens"].(float64); ok {
					usage.PromptTokens = int(v)
				}
				if v, ok := u["completion_tokens"].(float64); ok {
					usage.CompletionTokens = int(v)
				}
				if v, ok := u["total_tokens"].(float64); ok {
					usage.TotalTokens = int(v)
				}
				onEvent(StreamEvent{Kind: EventUsage, Usage: usage})
			}
		}
		return delta
	})
	if streamErr != nil {
		onEvent(StreamEvent{Kind: EventError, Err: streamErr.Error()})
		p.log.LogError("openrouter", p.model, streamErr, time.Since(start))
		return nil, streamErr
	}

	onEvent(StreamEvent{Kind: EventFinished})
	resp := &GenerateResponse{Text: text.String(), Usage: usage}
	p.log.LogResponse("openrouter", p.model, resp.Text, time.Since(start))
	return resp, nil
}
