// Package offline implements the offline caching strategy: versioned
// cache generations populated with the application shell at install
// time, and a fetch handler that applies cache-first or network-first
// policies per request. It plays the service worker's role as a gateway
// in front of the API server.
package offline

import (
	"net/http"
	"time"
)

// Entry is a stored response: status, headers and body, the full value
// kept under a request key inside a cache bucket.
type Entry struct {
	Status   int
	Header   http.Header
	Body     []byte
	StoredAt time.Time
}

// Clone returns an independent copy so one stored entry can serve the
// cache and the caller without sharing mutable state.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	c := &Entry{
		Status:   e.Status,
		Header:   make(http.Header, len(e.Header)),
		Body:     append([]byte(nil), e.Body...),
		StoredAt: e.StoredAt,
	}
	for k, vs := range e.Header {
		c.Header[k] = append([]string(nil), vs...)
	}
	return c
}

// Key builds the bucket key for a request. Only GETs are ever cached,
// so method plus URL (path and query) identifies a response.
func Key(method, rawURL string) string {
	return method + " " + rawURL
}
