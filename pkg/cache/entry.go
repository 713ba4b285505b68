package cache

import (
	"time"
)

// Entry is a cached NR payload.
type Entry struct {
	// Identifier is the normalized NR identifier the payload belongs to.
	Identifier string `json:"identifier"`

	// Payload is the raw response body.
	Payload []byte `json:"payload"`

	// ContentType of the original response.
	ContentType string `json:"content_type,omitempty"`

	// ETag for conditional requests (If-None-Match).
	ETag string `json:"etag,omitempty"`

	// LastModified for conditional requests (If-Modified-Since).
	LastModified time.Time `json:"last_modified,omitempty"`

	// RetrievedAt is when the payload was last confirmed by the API.
	RetrievedAt time.Time `json:"retrieved_at"`
}

// Age returns how long ago the entry was retrieved, relative to now.
func (e *Entry) Age(now time.Time) time.Duration {
	age := now.Sub(e.RetrievedAt)
	if age < 0 {
		return 0
	}
	return age
}

// CanRevalidate reports whether a conditional request can be built for e.
func (e *Entry) CanRevalidate() bool {
	if e == nil {
		return false
	}
	return e.ETag != "" || !e.LastModified.IsZero()
}
