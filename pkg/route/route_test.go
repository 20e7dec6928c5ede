package route

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestClassify(t *testing.T) {
	scope := mustParse(t, "https://app.example")
	tests := []struct {
		method string
		url    string
		want   Decision
	}{
		{"GET", "https://app.example/api/lessons", Decision{NetworkFirst, Dynamic}},
		{"GET", "https://app.example/modules/algebra.json", Decision{CacheFirst, Learning}},
		{"POST", "https://app.example/api/lessons", Decision{Strategy: PassThrough}},
		{"DELETE", "https://app.example/styles/app.css", Decision{Strategy: PassThrough}},
		{"GET", "https://app.example/courses/learning/intro", Decision{CacheFirst, Learning}},
		{"GET", "https://app.example/assets/app.js", Decision{CacheFirst, Static}},
		{"GET", "https://app.example/fonts/inter.WOFF2", Decision{CacheFirst, Static}},
		{"GET", "https://app.example/icons/icon.svg", Decision{CacheFirst, Static}},
		{"GET", "https://app.example/modules/diagram.png", Decision{CacheFirst, Learning}},
		{"GET", "https://app.example/dashboard", Decision{StaleWhileRevalidate, Dynamic}},
		{"GET", "https://app.example/", Decision{StaleWhileRevalidate, Dynamic}},
		{"GET", "https://app.example/manifest.json", Decision{StaleWhileRevalidate, Dynamic}},
		{"GET", "https://app.example/apix/lessons", Decision{StaleWhileRevalidate, Dynamic}},
		{"GET", "https://app.example:443/api/me", Decision{NetworkFirst, Dynamic}},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.url, func(t *testing.T) {
			u := mustParse(t, tt.url)
			got := Classify(tt.method, u, scope)
			assert.Equal(t, tt.want, got)
			// pure: a second run yields the same answer
			assert.Equal(t, got, Classify(tt.method, u, scope))
		})
	}
}

func TestClassifyCrossOriginAlwaysPassesThrough(t *testing.T) {
	scope := mustParse(t, "https://app.example")
	for _, raw := range []string{
		"https://api.openai.example/api/chat",
		"https://cdn.example/modules/lib.js",
		"http://app.example/api/lessons",
		"https://app.example:8443/app.css",
		"https://supabase.example/learning/x",
	} {
		got := Classify("GET", mustParse(t, raw), scope)
		assert.Equal(t, PassThrough, got.Strategy, raw)
	}
}

func TestNames(t *testing.T) {
	names := NewNames("v2")
	assert.Equal(t, []string{"static-v2", "dynamic-v2", "learning-v2"}, names.All())
	assert.Equal(t, "learning-v2", names.For(Learning))
	assert.Equal(t, "static-v2", names.For(Static))
	assert.Equal(t, "dynamic-v2", names.For(Dynamic))
}

func TestStrategyString(t *testing.T) {
	assert.Equal(t, "stale-while-revalidate", StaleWhileRevalidate.String())
	assert.Equal(t, "pass-through", PassThrough.String())
	assert.Equal(t, "learning", Learning.String())
}
