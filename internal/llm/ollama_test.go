package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"codesmith/internal/config"
)

func ollamaForTest(t *testing.T, url string) *OllamaProvider {
	t.Helper()
	p, err := NewOllamaProvider(config.ModelConfig{
		Provider: "ollama",
		Model:    "test-model",
		BaseURL:  url,
	}, nil)
	if err != nil {
		t.Fatalf("NewOllamaProvider: %v", err)
	}
	return p
}

func TestOllamaGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"message":           map[string]any{"role": "assistant", "content": "local says hi"},
			"prompt_eval_count": 4,
			"eval_count":        3,
		})
	}))
	defer srv.Close()

	p := ollamaForTest(t, srv.URL)
	resp, err := p.Generate(context.Background(), GenerateRequest{
		Messages: []Message{Text(RoleUser, "hi")},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Text != "local says hi" {
		t.Errorf("got %q", resp.Text)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 7 {
		t.Errorf("usage: %+v", resp.Usage)
	}
}

// Ollama streams one JSON object per line, not SSE.
func TestOllamaStreamingNDJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		lines := []string{
			`{"message":{"content":"a"},"done":false}`,
			`{"message":{"content":"b"},"done":false}`,
			`{"message":{"content":""},"done":true,"prompt_eval_count":2,"eval_count":2}`,
		}
		for _, l := range lines {
			io.WriteString(w, l+"\n")
			flusher.Flush()
		}
	}))
	defer srv.Close()

	p := ollamaForTest(t, srv.URL)
	var deltas int
	resp, err := p.GenerateStreaming(context.Background(), GenerateRequest{
		Messages: []Message{Text(RoleUser, "hi")},
	}, func(ev StreamEvent) {
		if ev.Kind == EventTextDelta {
			deltas++
		}
	})
	if err != nil {
		t.Fatalf("GenerateStreaming: %v", err)
	}
	if resp.Text != "ab" {
		t.Errorf("got %q, want ab", resp.Text)
	}
	if deltas != 2 {
		t.Errorf("expected 2 text deltas, got %d", deltas)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 4 {
		t.Errorf("usage: %+v", resp.Usage)
	}
}

func TestMockProviderCycles(t *testing.T) {
	p := NewMockProvider("one", "two")
	r1, _ := p.Generate(context.Background(), GenerateRequest{})
	r2, _ := p.Generate(context.Background(), GenerateRequest{})
	r3, _ := p.Generate(context.Background(), GenerateRequest{})
	if r1.Text != "one" || r2.Text != "two" || r3.Text != "one" {
		t.Errorf("mock should cycle: %q %q %q", r1.Text, r2.Text, r3.Text)
	}
}
