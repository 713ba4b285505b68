package client

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the run context is cancelled
	// while a fetch is waiting, in flight or backing off.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrPayloadTooLarge is returned when a response body exceeds the
	// configured payload limit.
	ErrPayloadTooLarge = errors.New("payload too large")
)

// ErrorClass represents a classification of fetch errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors other than auth and rate limit.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 Too Many Requests.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents transport errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassTimeout represents an attempt that exceeded its timeout.
	ErrorClassTimeout ErrorClass = "timeout"

	// ErrorClassAuth represents 401/403. It is fatal for the whole run.
	ErrorClassAuth ErrorClass = "auth"
)

// APIError is a per-identifier fetch failure.
type APIError struct {
	StatusCode int
	ErrorClass ErrorClass
	Message    string
	Err        error

	// RetryAfter is the back-off requested by the API, if any.
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("NR API %s error (status %d): %s: %v",
			e.ErrorClass, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("NR API %s error (status %d): %s",
		e.ErrorClass, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// Reason renders the audit reason for a failure after the given attempts.
func (e *APIError) Reason(attempts int) string {
	switch e.ErrorClass {
	case ErrorClassTimeout:
		return fmt.Sprintf("timeout after %d attempts", attempts)
	case ErrorClassNetwork:
		return fmt.Sprintf("network error after %d attempts", attempts)
	case ErrorClassServer:
		return fmt.Sprintf("server error (status %d) after %d attempts", e.StatusCode, attempts)
	case ErrorClassRateLimit:
		return fmt.Sprintf("rate limited after %d attempts", attempts)
	case ErrorClassClient:
		if errors.Is(e.Err, ErrPayloadTooLarge) {
			return "payload too large"
		}
		if e.StatusCode == http.StatusNotFound {
			return "not found"
		}
		return fmt.Sprintf("client error (status %d)", e.StatusCode)
	default:
		return e.Message
	}
}

// AuthError is returned when the API rejects the credentials. It signals
// misconfiguration and invalidates every result of the run.
type AuthError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	return fmt.Sprintf("NR API authentication failed (status %d): %s", e.StatusCode, e.Message)
}

// IsFatal reports whether err must abort the whole run.
func IsFatal(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassClient, ErrorClassAuth:
		// 4xx errors will not change on retry
		return false
	case ErrorClassServer, ErrorClassRateLimit, ErrorClassNetwork, ErrorClassTimeout:
		return true
	default:
		return false
	}
}
