package llm

import "testing"

func TestMapHTTPError(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   ErrorKind
	}{
		{"unauthorized", 401, "bad key", KindAuth},
		{"forbidden", 403, "denied", KindAuth},
		{"rate limited", 429, "slow down", KindRateLimited},
		{"server error", 500, "oops", KindServerError},
		{"bad gateway", 502, "oops", KindServerError},
		{"unsupported param", 400, `{"error":"Unsupported parameter: logit_bias"}`, KindInvalidParams},
		{"invalid body", 400, `{"error":"invalid request"}`, KindInvalidParams},
		{"other 400", 400, `{"error":"something else entirely"}`, KindProviderOutage},
		{"not found", 404, "no such model", KindProviderOutage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mapHTTPError("test", tt.status, tt.body)
			if err.Kind != tt.want {
				t.Errorf("status=%d body=%q: got %s, want %s", tt.status, tt.body, err.Kind, tt.want)
			}
			if err.Status != tt.status {
				t.Errorf("status not preserved: got %d", err.Status)
			}
		})
	}
}

func TestProviderErrorRetryable(t *testing.T) {
	retryable := []ErrorKind{KindRateLimited, KindTimeoutFirstToken, KindTimeoutStall, KindNetwork}
	for _, k := range retryable {
		if !(&ProviderError{Kind: k}).Retryable() {
			t.Errorf("%s should be retryable", k)
		}
	}
	terminal := []ErrorKind{KindAuth, KindInvalidParams, KindModelUnavailable, KindProviderOutage, KindServerError}
	for _, k := range terminal {
		if (&ProviderError{Kind: k}).Retryable() {
			t.Errorf("%s should not be retryable", k)
		}
	}
}

func TestRemapTokenField(t *testing.T) {
	payload := map[string]any{"model": "m", "max_tokens": 512}

	retry, ok := remapTokenField(payload, "max_tokens", 512, `{"error":"use max_output_tokens instead"}`)
	if !ok {
		t.Fatal("expected remap")
	}
	if _, present := retry["max_tokens"]; present {
		t.Error("old field should be removed")
	}
	if retry["max_output_tokens"] != 512 {
		t.Errorf("got %v, want 512", retry["max_output_tokens"])
	}
	// Original payload untouched.
	if payload["max_tokens"] != 512 {
		t.Error("original payload mutated")
	}

	if _, ok := remapTokenField(payload, "max_tokens", 512, `{"error":"model overloaded"}`); ok {
		t.Error("no remap expected for unrelated error body")
	}
	if _, ok := remapTokenField(payload, "max_output_tokens", 512, `{"error":"max_output_tokens"}`); ok {
		t.Error("no remap expected when the cited field is already in use")
	}
}
