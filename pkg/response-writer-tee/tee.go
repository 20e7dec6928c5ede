package tee

import (
	"net/http"
	"time"
)

// ResponseSaver wraps an http.ResponseWriter and remembers what was written through it
// (status and body size) without buffering the body.
type ResponseSaver struct {
	rw           http.ResponseWriter
	status       int
	written      int64
	wroteHeaders bool
	CreatedAt    time.Time
}

// Implementation of http.ResponseWriter
func (t *ResponseSaver) Header() http.Header {
	return t.rw.Header()
}

// Implementation of http.ResponseWriter
func (t *ResponseSaver) WriteHeader(statusCode int) {
	if t.wroteHeaders {
		return
	}
	t.wroteHeaders = true
	t.status = statusCode
	t.rw.WriteHeader(statusCode)
}

// Implementation of http.ResponseWriter
func (t *ResponseSaver) Write(b []byte) (int, error) {
	if !t.wroteHeaders {
		t.WriteHeader(http.StatusOK)
	}
	n, err := t.rw.Write(b)
	t.written += int64(n)
	return n, err
}

// Flush lets streamed responses through as they arrive.
func (t *ResponseSaver) Flush() {
	if f, ok := t.rw.(http.Flusher); ok {
		f.Flush()
	}
}

// StatusCode returns the status code of the response, 0 if nothing was written.
func (t *ResponseSaver) StatusCode() int {
	return t.status
}

// BytesWritten returns the number of body bytes passed to the underlying writer.
func (t *ResponseSaver) BytesWritten() int64 {
	return t.written
}

// Duration returns the time since the saver was created.
func (t *ResponseSaver) Duration() time.Duration {
	return time.Since(t.CreatedAt)
}

// NewResponseSaver returns a new ResponseSaver writing through to w.
func NewResponseSaver(w http.ResponseWriter) *ResponseSaver {
	return &ResponseSaver{
		CreatedAt: time.Now(),
		rw:        w,
	}
}
