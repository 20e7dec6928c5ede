package tee

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRecordsStatusAndSize(t *testing.T) {
	rr := httptest.NewRecorder()
	rs := NewResponseSaver(rr)
	rs.Header().Set("Content-Type", "text/plain")
	rs.WriteHeader(http.StatusCreated)
	rs.WriteHeader(http.StatusInternalServerError)
	rs.Write([]byte("Hello world"))

	if rs.StatusCode() != http.StatusCreated || rr.Code != http.StatusCreated {
		t.Fatalf("Status is %d (recorder %d)", rs.StatusCode(), rr.Code)
	}
	if rs.BytesWritten() != 11 || rr.Body.String() != "Hello world" {
		t.Fatalf("Wrote %d bytes: %s", rs.BytesWritten(), rr.Body.String())
	}
	if rr.Header().Get("Content-Type") != "text/plain" {
		t.Fatalf("Header not passed through")
	}
}

func TestImplicitOK(t *testing.T) {
	rr := httptest.NewRecorder()
	rs := NewResponseSaver(rr)
	rs.Write([]byte("x"))
	rs.Flush()
	if rs.StatusCode() != http.StatusOK {
		t.Fatalf("Status is %d", rs.StatusCode())
	}
	if !rr.Flushed {
		t.Fatalf("Flush not passed through")
	}
}
