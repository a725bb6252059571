package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"codesmith/internal/config"
)

func anthropicForTest(t *testing.T, url string, mutate func(*config.ModelConfig)) *AnthropicProvider {
	t.Helper()
	cfg := config.ModelConfig{
		Provider: "anthropic",
		Model:    "claude-test",
		APIKey:   "test-key",
		BaseURL:  url,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	p, err := NewAnthropicProvider(cfg, nil)
	if err != nil {
		t.Fatalf("NewAnthropicProvider: %v", err)
	}
	return p
}

func TestAnthropicGenerate(t *testing.T) {
	var gotPayload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" {
			t.Error("missing x-api-key header")
		}
		if r.Header.Get("anthropic-version") == "" {
			t.Error("missing anthropic-version header")
		}
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &gotPayload)
		json.NewEncoder(w).Encode(map[string]any{
			"content": []any{
				map[string]any{"type": "text", "text": "Hi "},
				map[string]any{"type": "text", "text": "there"},
			},
			"usage": map[string]any{"input_tokens": 12, "output_tokens": 3},
		})
	}))
	defer srv.Close()

	p := anthropicForTest(t, srv.URL, nil)
	resp, err := p.Generate(context.Background(), GenerateRequest{
		System:   "be terse",
		Messages: []Message{Text(RoleUser, "hello")},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Text != "Hi there" {
		t.Errorf("text blocks not joined: %q", resp.Text)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 15 {
		t.Errorf("usage not parsed: %+v", resp.Usage)
	}
	if gotPayload["system"] != "be terse" {
		t.Errorf("system prompt should use the provider's system field, got %v", gotPayload["system"])
	}
}

func TestAnthropicToolUse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"content": []any{
				map[string]any{
					"type": "tool_use", "id": "tu_1", "name": "read",
					"input": map[string]any{"path": "main.go"},
				},
			},
		})
	}))
	defer srv.Close()

	p := anthropicForTest(t, srv.URL, nil)
	resp, err := p.Generate(context.Background(), GenerateRequest{
		Messages:   []Message{Text(RoleUser, "read main.go")},
		Tools:      []ToolSpec{{Name: "read"}},
		ToolChoice: ToolChoiceRequired,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(resp.ToolCalls))
	}
	call := resp.ToolCalls[0]
	if call.Name != "read" || call.ID != "tu_1" || call.Arguments["path"] != "main.go" {
		t.Errorf("tool call not normalized: %+v", call)
	}
}

func TestAnthropicToolChoiceMapping(t *testing.T) {
	var gotPayload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &gotPayload)
		json.NewEncoder(w).Encode(map[string]any{"content": []any{}})
	}))
	defer srv.Close()

	p := anthropicForTest(t, srv.URL, nil)
	_, err := p.Generate(context.Background(), GenerateRequest{
		Messages:   []Message{Text(RoleUser, "x")},
		Tools:      []ToolSpec{{Name: "t"}},
		ToolChoice: ToolChoiceRequired,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	tc, _ := gotPayload["tool_choice"].(map[string]any)
	if tc["type"] != "any" {
		t.Errorf("Required should map to Anthropic's \"any\", got %v", tc)
	}
}

func TestAnthropicStreaming(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		events := []string{
			`{"type":"message_start","message":{"usage":{"input_tokens":9}}}`,
			`{"type":"content_block_delta","delta":{"type":"text_delta","text":"He"}}`,
			`{"type":"content_block_delta","delta":{"type":"text_delta","text":"y"}}`,
			`{"type":"message_delta","usage":{"output_tokens":2}}`,
			`{"type":"message_stop"}`,
		}
		for _, e := range events {
			io.WriteString(w, "data: "+e+"\n\n")
			flusher.Flush()
		}
	}))
	defer srv.Close()

	p := anthropicForTest(t, srv.URL, nil)
	var text string
	resp, err := p.GenerateStreaming(context.Background(), GenerateRequest{
		Messages: []Message{Text(RoleUser, "hi")},
	}, func(ev StreamEvent) {
		if ev.Kind == EventTextDelta {
			text += ev.Text
		}
	})
	if err != nil {
		t.Fatalf("GenerateStreaming: %v", err)
	}
	if resp.Text != "Hey" || text != "Hey" {
		t.Errorf("text %q / deltas %q, want Hey", resp.Text, text)
	}
	if resp.Usage == nil || resp.Usage.PromptTokens != 9 || resp.Usage.CompletionTokens != 2 {
		t.Errorf("usage not accumulated: %+v", resp.Usage)
	}
}

func TestAnthropicFirstTokenTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.(http.Flusher).Flush()
		<-release
	}))
	defer srv.Close()
	defer close(release)

	p := anthropicForTest(t, srv.URL, func(c *config.ModelConfig) {
		c.FirstTokenTimeoutMS = 50
	})
	_, err := p.GenerateStreaming(context.Background(), GenerateRequest{
		Messages: []Message{Text(RoleUser, "hi")},
	}, func(StreamEvent) {})
	var perr *ProviderError
	if !errors.As(err, &perr) || perr.Kind != KindTimeoutFirstToken {
		t.Fatalf("expected TimeoutFirstToken, got %v", err)
	}
	if perr.Timeout != 50*time.Millisecond {
		t.Errorf("timeout not recorded: %v", perr.Timeout)
	}
}
