package ratelimit

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// MaxRetryAfter caps the back-off honoured from a Retry-After header.
const MaxRetryAfter = 5 * time.Minute

// RetryAfter parses the Retry-After header of a rate-limited response.
// Both delta-seconds and HTTP-date forms are accepted. It returns false when
// the header is absent or unparsable. The result is capped at MaxRetryAfter.
func RetryAfter(headers http.Header, now time.Time) (time.Duration, bool) {
	v := strings.TrimSpace(headers.Get("Retry-After"))
	if v == "" {
		return 0, false
	}

	var d time.Duration
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0, false
		}
		d = time.Duration(secs) * time.Second
	} else {
		at, err := http.ParseTime(v)
		if err != nil {
			return 0, false
		}
		d = at.Sub(now)
		if d < 0 {
			d = 0
		}
	}

	if d > MaxRetryAfter {
		d = MaxRetryAfter
	}
	return d, true
}
