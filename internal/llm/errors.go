package llm

import (
	"fmt"
	"strings"
	"time"
)

// ErrorKind classifies provider failures into a closed taxonomy.
type ErrorKind string

const (
	KindInvalidParams     ErrorKind = "invalid_params"
	KindRateLimited       ErrorKind = "rate_limited"
	KindAuth              ErrorKind = "auth"
	KindModelUnavailable  ErrorKind = "model_unavailable"
	KindProviderOutage    ErrorKind = "provider_outage"
	KindServerError       ErrorKind = "server_error"
	KindTimeoutFirstToken ErrorKind = "timeout_first_token"
	KindTimeoutStall      ErrorKind = "timeout_stall"
	KindNetwork           ErrorKind = "network"
)

// ProviderError is the normalized provider-layer error.
type ProviderError struct {
	Kind     ErrorKind
	Message  string
	Status   int    // HTTP status, 0 when not applicable
	Details  string // response body or transport detail
	Provider string

	// RetryAfter is set for rate limits when the provider reports one.
	RetryAfter time.Duration

	// Timeout holds the deadline that fired for the timeout kinds.
	Timeout time.Duration
}

func (e *ProviderError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: %s (%s, status %d)", e.Kind, e.Message, e.Provider, e.Status)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Provider)
}

// Retryable reports whether the error is eligible for a single upstream
// retry by the strategy engine.
func (e *ProviderError) Retryable() bool {
	switch e.Kind {
	case KindRateLimited, KindTimeoutFirstToken, KindTimeoutStall, KindNetwork:
		return true
	}
	return false
}

func networkError(provider string, err error) *ProviderError {
	return &ProviderError{Kind: KindNetwork, Message: err.Error(), Provider: provider}
}

func firstTokenTimeout(provider string, d time.Duration) *ProviderError {
	return &ProviderError{
		Kind:     KindTimeoutFirstToken,
		Message:  fmt.Sprintf("no first token after %s", d),
		Provider: provider,
		Timeout:  d,
	}
}

func stallTimeout(provider string, d time.Duration) *ProviderError {
	return &ProviderError{
		Kind:     KindTimeoutStall,
		Message:  fmt.Sprintf("stream stalled for %s", d),
		Provider: provider,
		Timeout:  d,
	}
}

// mapHTTPError maps an HTTP failure status and body to the taxonomy:
// 401/403 -> Auth; 429 -> RateLimited; >=500 -> ServerError; 400 whose body
// mentions an unsupported or invalid parameter -> InvalidParams; anything
// else -> ProviderOutage.
func mapHTTPError(provider string, status int, body string) *ProviderError {
	lower := strings.ToLower(body)
	switch {
	case status == 401 || status == 403:
		return &ProviderError{
			Kind: KindAuth, Message: "authentication failed",
			Status: status, Details: body, Provider: provider,
		}
	case status == 429:
		return &ProviderError{
			Kind: KindRateLimited, Message: "rate limited",
			Status: status, Details: body, Provider: provider,
		}
	case status >= 500:
		return &ProviderError{
			Kind: KindServerError, Message: "server error",
			Status: status, Details: body, Provider: provider,
		}
	case strings.Contains(lower, "unsupported parameter") || strings.Contains(lower, "invalid"):
		return &ProviderError{
			Kind: KindInvalidParams, Message: "invalid parameters",
			Status: status, Details: body, Provider: provider,
		}
	default:
		return &ProviderError{
			Kind: KindProviderOutage, Message: "provider error",
			Status: status, Details: body, Provider: provider,
		}
	}
}
