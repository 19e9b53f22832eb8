package security

import (
	"net"
	"net/http"
	"strings"
)

// GetClientIP extracts the real client IP address from the request.
// Supports X-Forwarded-For and X-Real-IP headers when behind a proxy.
//
// Only enable trustProxy when fronted by a trusted reverse proxy.
// trustedProxyCount specifies how many proxies to trust from the right of
// the X-Forwarded-For list, which prevents spoofing in multi-proxy setups.
func GetClientIP(r *http.Request, trustProxy bool, trustedProxyCount int) string {
	if trustProxy {
		if ip := clientIPFromXFF(r.Header.Get("X-Forwarded-For"), trustedProxyCount); ip != "" {
			return ip
		}
		if ip := r.Header.Get("X-Real-IP"); net.ParseIP(ip) != nil {
			return ip
		}
	}
	return ipFromRemoteAddr(r.RemoteAddr)
}

// clientIPFromXFF picks the client IP out of an X-Forwarded-For list.
// The list reads "client, proxy1, proxy2, ..." with our own trusted proxies
// rightmost, so the client sits trustedProxyCount+1 from the end.
func clientIPFromXFF(xff string, trustedProxyCount int) string {
	if xff == "" {
		return ""
	}

	ips := strings.Split(xff, ",")

	proxyCount := trustedProxyCount
	if proxyCount == 0 {
		proxyCount = 1
	}
	idx := len(ips) - proxyCount - 1
	if idx < 0 {
		idx = 0
	}

	candidate := strings.TrimSpace(ips[idx])
	if net.ParseIP(candidate) != nil {
		return candidate
	}
	return ""
}

// ipFromRemoteAddr strips the port from a direct connection's address.
func ipFromRemoteAddr(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
