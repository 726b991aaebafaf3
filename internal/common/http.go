package common

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP returns the caller's address without the port. Behind a proxy it
// relies on chi's RealIP middleware having rewritten RemoteAddr.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
