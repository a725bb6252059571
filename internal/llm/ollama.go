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

// OllamaProvider implements Provider for a local Ollama server. Streaming is
// newline-delimited JSON rather than SSE.
type OllamaProvider struct {
	core      httpCore
	baseURL   string
	model     string
	maxTokens int
	temp      float64
	log       *llmlog.Logger
}

// NewOllamaProvider builds the provider from a model config. No API key is
// required for local inference.
func NewOllamaProvider(cfg config.ModelConfig, log *llmlog.Logger) (*OllamaProvider, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaProvider{
		core:      newHTTPCore("ollama", cfg.FirstTokenTimeoutMS, cfg.StallTimeoutMS),
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		temp:      cfg.Temperature,
		log:       log,
	}, nil
}

func (p *OllamaProvider) Name() string { return "ollama" }

func (p *OllamaProvider) buildPayload(req GenerateRequest, stream bool) map[string]any {
	messages := make([]map[string]any, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, map[string]any{"role": "system", "content": req.System})
	}
	for _, m := range req.Messages {
		role := string(m.Role)
		if m.Role == RoleTool {
			// Ollama has no tool-result channel; echo as an assistant turn.
			role = "assistant"
		}
		messages = append(messages, map[string]any{"role": role, "content": m.JoinedText()})
	}

	options := map[string]any{}
	if req.Temperature != nil {
		options["temperature"] = *req.Temperature
	} else if p.temp > 0 {
		options["temperature"] = p.temp
	}
	if req.TopP != nil {
		options["top_p"] = *req.TopP
	}
	if len(req.Stop) > 0 {
		options["stop"] = req.Stop
	}
	if req.Seed != nil {
		options["seed"] = *req.Seed
	}
	maxTokens := req.MaxOutputTokens
	if maxTokens == 0 {
		maxTokens = p.maxTokens
	}
	if maxTokens > 0 {
		options["num_predict"] = maxTokens
	}

	payload := map[string]any{
		"model":    p.model,
		"messages": messages,
		"stream":   stream,
	}
	if len(options) > 0 {
		payload["options"] = options
	}
	if req.ResponseFormat == "json_object" {
		payload["format"] = "json"
	}
	return payload
}

// Generate sends a non-streaming /api/chat request.
func (p *OllamaProvider) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	start := time.Now()
	payload := p.buildPayload(req, false)
	p.log.LogRequest("ollama", p.model, promptDigest(req))
	logging.APIDebug("[ollama] generate model=%s messages=%d", p.model, len(req.Messages))

	status, body, err := p.core.postJSON(ctx, p.baseURL+"/api/chat", payload, func(*http.Request) {}, req.Metadata)
	if err != nil {
		p.log.LogError("ollama", p.model, err, time.Since(start))
		return nil, err
	}
	if status != http.StatusOK {
		perr := mapHTTPError("ollama", status, string(body))
		p.log.LogError("ollama", p.model, perr, time.Since(start))
		return nil, perr
	}

	raw, err := decodeJSON("ollama", body)
	if err != nil {
		return nil, err
	}

	resp := &GenerateResponse{Raw: raw}
	if msg, ok := raw["message"].(map[string]any); ok {
		resp.Text, _ = msg["content"].(string)
	}
	if v, ok := raw["prompt_eval_count"].(float64); ok {
		if resp.Usage == nil {
			resp.Usage = &Usage{}
		}
		resp.Usage.PromptTokens = int(v)
	}
	if v, ok := raw["eval_count"].(float64); ok {
		if resp.Usage == nil {
			resp.Usage = &Usage{}
		}
		resp.Usage.CompletionTokens = int(v)
	}
	if resp.Usage != nil {
		resp.Usage.TotalTokens = resp.Usage.PromptTokens + resp.Usage.CompletionTokens
	}
	p.log.LogResponse("ollama", p.model, resp.Text, time.Since(start))
	return resp, nil
}

// GenerateStreaming reads one JSON object per line from /api/chat.
func (p *OllamaProvider) GenerateStreaming(ctx context.Context, req GenerateRequest, onEvent EventFunc) (*GenerateResponse, error) {
	start := time.Now()
	payload := p.buildPayload(req, true)
	p.log.LogRequest("ollama", p.model, promptDigest(req))

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", strings.NewReader(string(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	applyMetadata(httpReq, req.Metadata)

	httpResp, err := p.core.client.Do(httpReq)
	if err != nil {
		perr := networkError("ollama", err)
		p.log.LogError("ollama", p.model, perr, time.Since(start))
		return nil, perr
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		body := readBodyForError(httpResp)
		perr := mapHTTPError("ollama", httpResp.StatusCode, body)
		p.log.LogError("ollama", p.model, perr, time.Since(start))
		return nil, perr
	}

	var text strings.Builder
	var usage *Usage
	var partial strings.Builder

	streamErr := p.core.streamBody(ctx, httpResp.Body, func(chunk []byte) bool {
		partial.Write(chunk)
		s := partial.String()
		delta := false

		startIdx := 0
		for {
			idx := strings.IndexByte(s[startIdx:], '\n')
			if idx < 0 {
				break
			}
			line := strings.TrimSpace(s[startIdx : startIdx+idx])
			startIdx += idx + 1
			if line == "" {
				continue
			}

			var ev map[string]any
			if err := json.Unmarshal([]byte(line), &ev); err != nil {
				logging.APIDebug("[ollama] skipping malformed stream line: %v", err)
				continue
			}
			if msg, ok := ev["message"].(map[string]any); ok {
				if content, ok := msg["content"].(string); ok && content != "" {
					text.WriteString(content)
					onEvent(StreamEvent{Kind: EventTextDelta, Text: content})
					delta = true
				}
			}
			if done, ok := ev["done"].(bool); ok && done {
				usage = &Usage{}
				if v, ok := ev["prompt_eval_count"].(float64); ok {
					usage.PromptTokens = int(v)
				}
				if v, ok := ev["eval_count"].(float64); ok {
					usage.CompletionTokens = int(v)
				}
				usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
				onEvent(StreamEvent{Kind: EventUsage, Usage: usage})
			}
		}

		leftover := s[startIdx:]
		partial.Reset()
		partial.WriteString(leftover)
		return delta
	})
	if streamErr != nil {
		onEvent(StreamEvent{Kind: EventError, Err: streamErr.Error()})
		p.log.LogError("ollama", p.model, streamErr, time.Since(start))
		return nil, streamErr
	}

	onEvent(StreamEvent{Kind: EventFinished})
	resp := &GenerateResponse{Text: text.String(), Usage: usage}
	p.log.LogResponse("ollama", p.model, resp.Text, time.Since(start))
	return resp, nil
}
