package client

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestAPIError_Error(t *testing.T) {
	err := &APIError{
		StatusCode: 503,
		Class:      ErrorClassServer,
		Message:    "503 Service Unavailable",
	}

	msg := err.Error()
	if !strings.Contains(msg, "server") {
		t.Errorf("Error() = %q, want error class in message", msg)
	}
	if !strings.Contains(msg, "503") {
		t.Errorf("Error() = %q, want status code in message", msg)
	}
}

func TestAPIError_Unwrap(t *testing.T) {
	inner := errors.New("connection reset")
	err := &APIError{
		Class:   ErrorClassNetwork,
		Message: "request failed",
		Err:     inner,
	}

	if !errors.Is(err, inner) {
		t.Error("errors.Is should find the wrapped error")
	}
}

func TestPageError_Unwrap(t *testing.T) {
	err := &PageError{
		Page:     7,
		Class:    ErrorClassServer,
		Attempts: 5,
		Err:      fmt.Errorf("%w after 5 attempts", ErrRetryExhausted),
	}

	if !errors.Is(err, ErrRetryExhausted) {
		t.Error("errors.Is should find ErrRetryExhausted through PageError")
	}

	msg := err.Error()
	if !strings.Contains(msg, "page 7") {
		t.Errorf("Error() = %q, want page number in message", msg)
	}
}

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		class    ErrorClass
		expected bool
	}{
		{ErrorClassClient, false},
		{ErrorClassServer, true},
		{ErrorClassRateLimit, true},
		{ErrorClassNetwork, true},
		{"", false},
	}

	for _, tt := range tests {
		if got := shouldRetry(tt.class); got != tt.expected {
			t.Errorf("shouldRetry(%q) = %v, want %v", tt.class, got, tt.expected)
		}
	}
}

func TestClassOf(t *testing.T) {
	apiErr := &APIError{Class: ErrorClassRateLimit, Message: "429"}
	if got := ClassOf(apiErr); got != ErrorClassRateLimit {
		t.Errorf("ClassOf(APIError) = %q, want rate_limit", got)
	}

	wrapped := fmt.Errorf("fetch: %w", apiErr)
	if got := ClassOf(wrapped); got != ErrorClassRateLimit {
		t.Errorf("ClassOf(wrapped APIError) = %q, want rate_limit", got)
	}

	if got := ClassOf(errors.New("dial tcp: timeout")); got != ErrorClassNetwork {
		t.Errorf("ClassOf(plain error) = %q, want network", got)
	}
}
