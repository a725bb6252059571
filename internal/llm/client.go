package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Reserved headers that request metadata may never override.
var reservedHeaders = map[string]bool{
	"authorization":     true,
	"content-type":      true,
	"accept":            true,
	"x-api-key":         true,
	"anthropic-version": true,
}

// applyMetadata copies request metadata onto the HTTP request as headers,
// skipping the reserved set.
func applyMetadata(req *http.Request, metadata map[string]string) {
	for k, v := range metadata {
		if reservedHeaders[strings.ToLower(k)] {
			continue
		}
		req.Header.Set(k, v)
	}
}

const (
	defaultFirstTokenTimeout = 30 * time.Second
	defaultStallTimeout      = 10 * time.Second
	defaultMaxOutputTokens   = 1024
)

// httpCore bundles what every HTTP-backed provider needs.
type httpCore struct {
	provider          string
	client            *http.Client
	firstTokenTimeout time.Duration
	stallTimeout      time.Duration
}

func newHTTPCore(provider string, firstTokenMS, stallMS int) httpCore {
	core := httpCore{
		provider:          provider,
		client:            &http.Client{Timeout: 10 * time.Minute},
		firstTokenTimeout: defaultFirstTokenTimeout,
		stallTimeout:      defaultStallTimeout,
	}
	if firstTokenMS > 0 {
		core.firstTokenTimeout = time.Duration(firstTokenMS) * time.Millisecond
	}
	if stallMS > 0 {
		core.stallTimeout = time.Duration(stallMS) * time.Millisecond
	}
	return core
}

// postJSON sends the payload and returns status and body. Transport failures
// come back as Network errors.
func (c *httpCore) postJSON(ctx context.Context, url string, payload map[string]any, setHeaders func(*http.Request), metadata map[string]string) (int, []byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	setHeaders(req)
	applyMetadata(req, metadata)

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, networkError(c.provider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, networkError(c.provider, err)
	}
	return resp.StatusCode, body, nil
}

// remapTokenField renames the output-token cap field when a 400 body cites
// the alternate name. Returns the adjusted payload and whether a retry is
// warranted. At most one retry is ever attempted at this layer.
func remapTokenField(payload map[string]any, usedField string, maxTokens int, body string) (map[string]any, bool) {
	lower := strings.ToLower(body)

	var wanted string
	switch {
	case strings.Contains(lower, "max_completion_tokens"):
		wanted = "max_completion_tokens"
	case strings.Contains(lower, "max_output_tokens"):
		wanted = "max_output_tokens"
	default:
		return payload, false
	}
	if wanted == usedField {
		return payload, false
	}

	retry := make(map[string]any, len(payload))
	for k, v := range payload {
		retry[k] = v
	}
	v, ok := retry[usedField]
	if !ok {
		v = maxTokens
	}
	delete(retry, usedField)
	retry[wanted] = v
	return retry, true
}

// streamBody reads the response body chunk by chunk, enforcing the
// first-token and stall timeouts. Each chunk is handed to onChunk; the
// callback reports whether a delta was observed (resetting the stall clock).
func (c *httpCore) streamBody(ctx context.Context, body io.Reader, onChunk func([]byte) bool) error {
	type readResult struct {
		data []byte
		err  error
	}

	// A one-slot buffer lets the reader deposit its final result and exit
	// even when the consumer already gave up on a timeout.
	reads := make(chan readResult, 1)
	sawToken := false
	deadline := time.Now().Add(c.firstTokenTimeout)

	// The reader goroutine exits when the body is drained or closed. Chunks
	// are copied before handoff so the consumer never races the next Read.
	go func() {
		defer close(reads)
		buf := make([]byte, 4096)
		for {
			n, err := body.Read(buf)
			var data []byte
			if n > 0 {
				data = append(data, buf[:n]...)
			}
			select {
			case reads <- readResult{data, err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		limit := c.stallTimeout
		if !sawToken {
			limit = c.firstTokenTimeout
		}

		select {
		case <-ctx.Done():
			return networkError(c.provider, ctx.Err())
		case <-time.After(time.Until(deadline)):
			if sawToken {
				return stallTimeout(c.provider, limit)
			}
			return firstTokenTimeout(c.provider, limit)
		case r, ok := <-reads:
			if !ok {
				return nil
			}
			if len(r.data) > 0 {
				if onChunk(r.data) {
					sawToken = true
					deadline = time.Now().Add(c.stallTimeout)
				}
			}
			if r.err == io.EOF {
				return nil
			}
			if r.err != nil {
				return networkError(c.provider, r.err)
			}
		}
	}
}

// promptDigest flattens a request into the text logged to the transcript.
func promptDigest(req GenerateRequest) string {
	var b strings.Builder
	if req.System != "" {
		b.WriteString("[system] ")
		b.WriteString(req.System)
		b.WriteString("\n")
	}
	for _, m := range req.Messages {
		fmt.Fprintf(&b, "[%s] %s\n", m.Role, m.JoinedText())
	}
	return b.String()
}

// readBodyForError drains up to 64 KiB of an error response body.
func readBodyForError(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	return string(body)
}

// decodeJSON parses a provider response body.
func decodeJSON(provider string, body []byte) (map[string]any, error) {
	var v map[string]any
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, &ProviderError{
			Kind:     KindProviderOutage,
			Message:  fmt.Sprintf("invalid JSON response: %v", err),
			Provider: provider,
			Details:  string(body),
		}
	}
	return v, nil
}
