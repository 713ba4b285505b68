package client

import (
	"errors"
	"fmt"
	"testing"
)

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		name       string
		errorClass ErrorClass
		expected   bool
	}{
		{"client error should not retry", ErrorClassClient, false},
		{"auth error should not retry", ErrorClassAuth, false},
		{"server error should retry", ErrorClassServer, true},
		{"rate limit should retry", ErrorClassRateLimit, true},
		{"network error should retry", ErrorClassNetwork, true},
		{"timeout should retry", ErrorClassTimeout, true},
		{"empty error class should not retry", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := shouldRetry(tt.errorClass); result != tt.expected {
				t.Errorf("shouldRetry(%q) = %v, want %v", tt.errorClass, result, tt.expected)
			}
		})
	}
}

func TestAPIError_Error(t *testing.T) {
	tests := []struct {
		name     string
		apiError *APIError
		expected string
	}{
		{
			name: "error with wrapped error",
			apiError: &APIError{
				StatusCode: 500,
				ErrorClass: ErrorClassServer,
				Message:    "internal server error",
				Err:        errors.New("connection refused"),
			},
			expected: "NR API server error (status 500): internal server error: connection refused",
		},
		{
			name: "error without wrapped error",
			apiError: &APIError{
				StatusCode: 404,
				ErrorClass: ErrorClassClient,
				Message:    "not found",
			},
			expected: "NR API client error (status 404): not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.apiError.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestAPIError_Unwrap(t *testing.T) {
	inner := errors.New("dial tcp: connection refused")
	err := fmt.Errorf("wrapped: %w", &APIError{ErrorClass: ErrorClassNetwork, Err: inner})

	if !errors.Is(err, inner) {
		t.Error("errors.Is should find the wrapped transport error")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatal("errors.As should find *APIError")
	}
	if apiErr.ErrorClass != ErrorClassNetwork {
		t.Errorf("ErrorClass = %q, want network", apiErr.ErrorClass)
	}
}

func TestAPIError_Reason(t *testing.T) {
	tests := []struct {
		err      *APIError
		attempts int
		expected string
	}{
		{&APIError{ErrorClass: ErrorClassTimeout}, 3, "timeout after 3 attempts"},
		{&APIError{ErrorClass: ErrorClassNetwork}, 2, "network error after 2 attempts"},
		{&APIError{ErrorClass: ErrorClassServer, StatusCode: 503}, 3, "server error (status 503) after 3 attempts"},
		{&APIError{ErrorClass: ErrorClassRateLimit, StatusCode: 429}, 4, "rate limited after 4 attempts"},
		{&APIError{ErrorClass: ErrorClassClient, StatusCode: 404}, 1, "not found"},
		{&APIError{ErrorClass: ErrorClassClient, StatusCode: 422}, 1, "client error (status 422)"},
		{&APIError{ErrorClass: ErrorClassClient, StatusCode: 200, Err: ErrPayloadTooLarge}, 1, "payload too large"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.err.Reason(tt.attempts); got != tt.expected {
				t.Errorf("Reason(%d) = %q, want %q", tt.attempts, got, tt.expected)
			}
		})
	}
}

func TestIsFatal(t *testing.T) {
	if !IsFatal(fmt.Errorf("customer C1: %w", &AuthError{StatusCode: 401})) {
		t.Error("wrapped AuthError should be fatal")
	}
	if IsFatal(&APIError{ErrorClass: ErrorClassClient, StatusCode: 404}) {
		t.Error("404 should not be fatal")
	}
	if IsFatal(nil) {
		t.Error("nil should not be fatal")
	}
}
