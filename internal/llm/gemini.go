package llm

import (
	"context"
	"fmt"
	"time"

	"codesmith/internal/config"
	"codesmith/internal/llm/llmlog"
	"codesmith/internal/logging"

	"google.golang.org/genai"
)

// GeminiProvider implements Provider over the official GenAI SDK. The SDK
// handles transport, so only the canonical mapping lives here; streaming is
// surfaced through the SDK's iterator rather than a raw decoder.
type GeminiProvider struct {
	client    *genai.Client
	model     string
	maxTokens int
	temp      float64
	log       *llmlog.Logger
}

// NewGeminiProvider builds the provider from a model config.
func NewGeminiProvider(cfg config.ModelConfig, log *llmlog.Logger) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini provider requires an API key")
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{APIKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GeminiProvider{
		client:    client,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		temp:      cfg.Temperature,
		log:       log,
	}, nil
}

func (p *GeminiProvider) Name() string { return "gemini" }

func (p *GeminiProvider) buildContents(req GenerateRequest) ([]*genai.Content, *genai.GenerateContentConfig) {
	var contents []*genai.Content
	for _, m := range req.Messages {
		role := genai.Role(genai.RoleUser)
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.JoinedText(), role))
	}

	cfg := &genai.GenerateContentConfig{}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.Temperature != nil {
		t := float32(*req.Temperature)
		cfg.Temperature = &t
	} else if p.temp > 0 {
		t := float32(p.temp)
		cfg.Temperature = &t
	}
	maxTokens := req.MaxOutputTokens
	if maxTokens == 0 {
		maxTokens = p.maxTokens
	}
	if maxTokens > 0 {
		cfg.MaxOutputTokens = int32(maxTokens)
	}
	if len(req.Stop) > 0 {
		cfg.StopSequences = req.Stop
	}
	if req.ResponseFormat == "json_object" {
		cfg.ResponseMIMEType = "application/json"
	}
	return contents, cfg
}

// Generate sends a non-streaming request through the SDK.
func (p *GeminiProvider) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	start := time.Now()
	p.log.LogRequest("gemini", p.model, promptDigest(req))
	logging.APIDebug("[gemini] generate model=%s messages=%d", p.model, len(req.Messages))

	contents, cfg := p.buildContents(req)
	result, err := p.client.Models.GenerateContent(ctx, p.model, contents, cfg)
	if err != nil {
		perr := &ProviderError{Kind: KindProviderOutage, Message: err.Error(), Provider: "gemini"}
		p.log.LogError("gemini", p.model, perr, time.Since(start))
		return nil, perr
	}

	resp := &GenerateResponse{Text: result.Text()}
	if result.UsageMetadata != nil {
		resp.Usage = &Usage{
			PromptTokens:     int(result.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(result.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(result.UsageMetadata.TotalTokenCount),
		}
	}
	p.log.LogResponse("gemini", p.model, resp.Text, time.Since(start))
	return resp, nil
}

// GenerateStreaming iterates the SDK's streaming response.
func (p *GeminiProvider) GenerateStreaming(ctx context.Context, req GenerateRequest, onEvent EventFunc) (*GenerateResponse, error) {
	start := time.Now()
	p.log.LogRequest("gemini", p.model, promptDigest(req))

	contents, cfg := p.buildContents(req)
	var text string
	var usage *Usage

	for result, err := range p.client.Models.GenerateContentStream(ctx, p.model, contents, cfg) {
		if err != nil {
			perr := &ProviderError{Kind: KindProviderOutage, Message: err.Error(), Provider: "gemini"}
			onEvent(StreamEvent{Kind: EventError, Err: perr.Error()})
			p.log.LogError("gemini", p.model, perr, time.Since(start))
			return nil, perr
		}
		if t := result.Text(); t != "" {
			text += t
			onEvent(StreamEvent{Kind: EventTextDelta, Text: t})
		}
		if result.UsageMetadata != nil {
			usage = &Usage{
				PromptTokens:     int(result.UsageMetadata.PromptTokenCount),
				CompletionTokens: int(result.UsageMetadata.CandidatesTokenCount),
				TotalTokens:      int(result.UsageMetadata.TotalTokenCount),
			}
		}
	}
	if usage != nil {
		onEvent(StreamEvent{Kind: EventUsage, Usage: usage})
	}
	onEvent(StreamEvent{Kind: EventFinished})
	resp := &GenerateResponse{Text: text, Usage: usage}
	p.log.LogResponse("gemini", p.model, resp.Text, time.Since(start))
	return resp, nil
}
