package httputil

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP resolves the originating client address of a request. The
// stream rate limiter keys its per-client caps on this value, so a
// spoofable source would let one client open unlimited streams: proxy
// headers (X-Forwarded-For first entry, then X-Real-IP) are only
// honored when trustProxy is set, meaning the service sits behind a
// reverse proxy that overwrites them.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			// Leftmost entry is the original client.
			if i := strings.IndexByte(forwarded, ','); i > 0 {
				forwarded = forwarded[:i]
			}
			if ip := strings.TrimSpace(forwarded); ip != "" {
				return ip
			}
		}
		if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
			return strings.TrimSpace(realIP)
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
