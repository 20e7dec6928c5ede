package rfc9211

import "testing"

func TestCacheStatusString(t *testing.T) {
	tests := []struct {
		build func(*CacheStatus)
		want  string
	}{
		{func(cs *CacheStatus) { cs.Hit() }, "OfflineCache; hit"},
		{func(cs *CacheStatus) {
			cs.Forward(FwdReasonUriMiss)
			cs.FwdStatus = 200
			cs.Stored = true
		}, "OfflineCache; fwd=uri-miss; fwd-status=200; stored"},
		{func(cs *CacheStatus) {
			cs.Forward(FwdReasonMiss)
			cs.Detail("offline-fallback")
		}, "OfflineCache; fwd=miss; detail=offline-fallback"},
		{func(cs *CacheStatus) {
			cs.Cache = "Edge"
			cs.Forward(FwdReasonMethod)
		}, "Edge; fwd=method"},
	}
	for _, tt := range tests {
		cs := CacheStatus{}
		tt.build(&cs)
		if got := cs.String(); got != tt.want {
			t.Fatalf("Cache-Status is %q, expected %q", got, tt.want)
		}
	}
}
