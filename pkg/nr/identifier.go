// Package nr validates and normalizes national-registry (NR) identifiers.
//
// An NR identifier is an 11-digit code. The first ten digits are the body and
// the last digit is a check digit computed from the body:
//
//	S     = sum(d[i] * w[i]) for i in 0..9, with w = 1,2,3,4,1,2,3,4,1,2
//	check = (11 - S mod 11) mod 10
//
// Parsing is pure: no I/O, no clock, no globals beyond constant tables. An
// Identifier can only be obtained from Parse (or MustParse in tests), so every
// Identifier handed to the rest of the system is valid by construction.
package nr

import (
	"errors"
	"fmt"
	"strings"
)

// Length is the number of digits in a normalized identifier, check digit included.
const Length = 11

// BodyLength is the number of digits covered by the check digit.
const BodyLength = Length - 1

// Reasons reported for rejected input. They end up verbatim in audit output.
const (
	ReasonMalformed        = "malformed"
	ReasonChecksumMismatch = "checksum mismatch"
)

var (
	// ErrMalformed indicates the input is not an 11-digit sequence.
	ErrMalformed = errors.New("nr: malformed identifier")

	// ErrChecksumMismatch indicates a well-formed identifier whose check digit
	// does not match its body.
	ErrChecksumMismatch = errors.New("nr: checksum mismatch")
)

var weights = [BodyLength]int{1, 2, 3, 4, 1, 2, 3, 4, 1, 2}

// FormatError describes why a raw value was rejected.
type FormatError struct {
	Raw    string
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid NR identifier %q: %s", e.Raw, e.Reason)
}

// Unwrap returns ErrMalformed or ErrChecksumMismatch.
func (e *FormatError) Unwrap() error {
	return e.Err
}

// Identifier is a validated NR identifier.
type Identifier struct {
	value string
}

// Parse validates raw and returns its normalized form. Surrounding whitespace
// is ignored; any other non-digit character makes the value malformed.
func Parse(raw string) (Identifier, error) {
	value := strings.TrimSpace(raw)
	if len(value) != Length || !allDigits(value) {
		return Identifier{}, &FormatError{Raw: raw, Reason: ReasonMalformed, Err: ErrMalformed}
	}

	want := CheckDigit(value[:BodyLength])
	if int(value[BodyLength]-'0') != want {
		return Identifier{}, &FormatError{Raw: raw, Reason: ReasonChecksumMismatch, Err: ErrChecksumMismatch}
	}

	return Identifier{value: value}, nil
}

// MustParse is like Parse but panics on invalid input.
// Use only in tests or with values known to be valid.
func MustParse(raw string) Identifier {
	id, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return id
}

// CheckDigit computes the check digit for a 10-digit body.
// It returns -1 if body is not exactly BodyLength ASCII digits.
func CheckDigit(body string) int {
	if len(body) != BodyLength || !allDigits(body) {
		return -1
	}
	sum := 0
	for i := 0; i < BodyLength; i++ {
		sum += int(body[i]-'0') * weights[i]
	}
	return (11 - sum%11) % 10
}

// Reason returns the audit reason for a Parse error, or "" for nil.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	var fe *FormatError
	if errors.As(err, &fe) {
		return fe.Reason
	}
	return ReasonMalformed
}

// String returns the canonical 11-digit form.
func (id Identifier) String() string {
	return id.value
}

// Body returns the first ten digits.
func (id Identifier) Body() string {
	if id.IsZero() {
		return ""
	}
	return id.value[:BodyLength]
}

// CheckDigit returns the trailing check digit, or -1 for the zero value.
func (id Identifier) CheckDigit() int {
	if id.IsZero() {
		return -1
	}
	return int(id.value[BodyLength] - '0')
}

// IsZero reports whether id is the zero value.
func (id Identifier) IsZero() bool {
	return id.value == ""
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
