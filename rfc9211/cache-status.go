package rfc9211

import (
	"fmt"
	"strings"
)

// HeaderName is the response header field defined by RFC 9211.
const HeaderName = "Cache-Status"

type FwdReason string

const (
	// The cache was configured to not handle this request.
	FwdReasonBypass FwdReason = "bypass"
	// The request method's semantics require the request to be forwarded.
	FwdReasonMethod FwdReason = "method"
	// The cache did not contain any responses that matched the request URI.
	FwdReasonUriMiss FwdReason = "uri-miss"
	// The cache did not contain any responses that could be used to satisfy this request.
	FwdReasonMiss FwdReason = "miss"
	// The cache was able to select a response for the request, but it was stale.
	FwdReasonStale FwdReason = "stale"
	// The cache was able to select a fresh response for the request, but the
	// request's semantics did not allow its use.
	FwdReasonRequest FwdReason = "request"
)

// CacheStatus collects the parameters of one Cache-Status list member.
type CacheStatus struct {
	Cache     string
	Status    string
	FwdReason FwdReason
	FwdStatus int
	Stored    bool
	detail    string
}

func (cs *CacheStatus) Hit() {
	cs.Status = "hit"
	cs.FwdReason = ""
}

func (cs *CacheStatus) Forward(reason FwdReason) {
	cs.Status = "fwd"
	cs.FwdReason = reason
}

// Detail sets the implementation-specific detail parameter.
func (cs *CacheStatus) Detail(detail string) {
	cs.detail = detail
}

func (cs CacheStatus) String() string {
	name := cs.Cache
	if name == "" {
		name = "OfflineCache"
	}
	parts := []string{name}
	if cs.Status == "hit" {
		parts = append(parts, "hit")
	} else if cs.FwdReason != "" {
		parts = append(parts, "fwd="+string(cs.FwdReason))
		if cs.FwdStatus != 0 {
			parts = append(parts, fmt.Sprintf("fwd-status=%d", cs.FwdStatus))
		}
	}
	if cs.Stored {
		parts = append(parts, "stored")
	}
	if cs.detail != "" {
		parts = append(parts, "detail="+cs.detail)
	}
	return strings.Join(parts, "; ")
}
