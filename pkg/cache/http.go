package cache

import (
	"fmt"
	"net/http"
	"time"
)

// ResponseToEntry builds an entry from a successful API response whose body
// has already been read.
func ResponseToEntry(identifier string, resp *http.Response, body []byte, retrievedAt time.Time) (*Entry, error) {
	if resp == nil {
		return nil, fmt.Errorf("response cannot be nil")
	}

	entry := &Entry{
		Identifier:  identifier,
		Payload:     body,
		ContentType: resp.Header.Get("Content-Type"),
		ETag:        resp.Header.Get("ETag"),
		RetrievedAt: retrievedAt.UTC(),
	}

	if lastModStr := resp.Header.Get("Last-Modified"); lastModStr != "" {
		if lastMod, err := http.ParseTime(lastModStr); err == nil {
			entry.LastModified = lastMod
		}
	}

	return entry, nil
}

// AddConditionalHeaders adds If-None-Match (ETag) or If-Modified-Since headers
// to req when entry supports revalidation.
func AddConditionalHeaders(req *http.Request, entry *Entry) {
	if entry == nil || req == nil {
		return
	}

	// Prefer ETag over Last-Modified (more accurate)
	if entry.ETag != "" {
		req.Header.Set("If-None-Match", entry.ETag)
	} else if !entry.LastModified.IsZero() {
		req.Header.Set("If-Modified-Since", entry.LastModified.UTC().Format(http.TimeFormat))
	}
}
