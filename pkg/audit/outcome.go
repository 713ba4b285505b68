// Package audit holds the per-customer data model of an audit run and the
// aggregation of customer batches into a run result.
//
// Values in this package are immutable once built: fields are unexported and
// accessors hand out copies of any slices they hold.
package audit

import (
	"bytes"
	"time"
)

// Status is the tag of an Outcome.
type Status string

const (
	// StatusValid means the record was retrieved.
	StatusValid Status = "valid"

	// StatusInvalid means the identifier was rejected before any network call.
	StatusInvalid Status = "invalid"

	// StatusFailed means the identifier was valid but could not be retrieved.
	StatusFailed Status = "failed"
)

// Outcome is the result for a single identifier.
type Outcome struct {
	status      Status
	payload     []byte
	retrievedAt time.Time
	reason      string
	attempts    int
}

// Valid builds a successful outcome. The payload is copied.
func Valid(payload []byte, retrievedAt time.Time) Outcome {
	return Outcome{
		status:      StatusValid,
		payload:     bytes.Clone(payload),
		retrievedAt: retrievedAt.UTC(),
	}
}

// Invalid builds an outcome for an identifier that failed validation.
func Invalid(reason string) Outcome {
	return Outcome{status: StatusInvalid, reason: reason}
}

// Failed builds an outcome for an identifier whose retrieval failed after
// the given number of attempts.
func Failed(reason string, attempts int) Outcome {
	return Outcome{status: StatusFailed, reason: reason, attempts: attempts}
}

// Status returns the outcome tag.
func (o Outcome) Status() Status { return o.status }

// Payload returns a copy of the retrieved payload (nil unless valid).
func (o Outcome) Payload() []byte { return bytes.Clone(o.payload) }

// RetrievedAt returns the retrieval time (zero unless valid).
func (o Outcome) RetrievedAt() time.Time { return o.retrievedAt }

// Reason returns the failure or rejection reason ("" when valid).
func (o Outcome) Reason() string { return o.reason }

// Attempts returns the number of fetch attempts made (failed outcomes only).
func (o Outcome) Attempts() int { return o.attempts }

// IsZero reports whether o was never set.
func (o Outcome) IsZero() bool { return o.status == "" }
