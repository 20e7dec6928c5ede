package offlinecache

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsNavigation(t *testing.T) {
	tests := []struct {
		name   string
		method string
		header map[string]string
		want   bool
	}{
		{"fetch metadata navigate", "GET", map[string]string{"Sec-Fetch-Mode": "navigate"}, true},
		{"fetch metadata cors wins over accept", "GET", map[string]string{"Sec-Fetch-Mode": "cors", "Accept": "text/html"}, false},
		{"browser document accept", "GET", map[string]string{"Accept": "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"}, true},
		{"html only as a fallback", "GET", map[string]string{"Accept": "application/json, text/html;q=0.5"}, false},
		{"html tied for best", "GET", map[string]string{"Accept": "application/json, text/html"}, true},
		{"wildcard", "GET", map[string]string{"Accept": "*/*"}, false},
		{"html refused", "GET", map[string]string{"Accept": "text/html;q=0"}, false},
		{"no headers", "GET", nil, false},
		{"not a GET", "POST", map[string]string{"Accept": "text/html"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(tt.method, "https://app.example/lessons", nil)
			for k, v := range tt.header {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, isNavigation(r))
		})
	}
}

func TestDestination(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "https://app.example/assets/app.CSS", nil)
	assert.Equal(t, "style", destination(r))
	assert.True(t, isSubresource(r))

	r = httptest.NewRequest(http.MethodGet, "https://app.example/modules/figure", nil)
	r.Header.Set("Sec-Fetch-Dest", "image")
	assert.Equal(t, "image", destination(r))

	r = httptest.NewRequest(http.MethodGet, "https://app.example/modules/algebra.json", nil)
	assert.False(t, isSubresource(r))
}
