package interceptors

import (
	"context"
	"net"
	"strings"

	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
)

// UnknownOrigin is reported when no client address can be determined.
const UnknownOrigin = "unknown"

// ClientIP returns the client IP from gRPC metadata (x-forwarded-for, x-real-ip) or the peer
// address, or UnknownOrigin. Values that do not parse as an IP are ignored.
func ClientIP(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if vals := md.Get("x-forwarded-for"); len(vals) > 0 {
			s := vals[0]
			if i := strings.Index(s, ","); i >= 0 {
				s = s[:i]
			}
			if ip := parseIP(s); ip != "" {
				return ip
			}
		}
		if vals := md.Get("x-real-ip"); len(vals) > 0 {
			if ip := parseIP(vals[0]); ip != "" {
				return ip
			}
		}
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		host := p.Addr.String()
		if h, _, err := net.SplitHostPort(host); err == nil {
			host = h
		}
		if ip := parseIP(host); ip != "" {
			return ip
		}
	}
	return UnknownOrigin
}

// UserAgent returns the caller's user agent from gRPC metadata, or "".
func UserAgent(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if vals := md.Get("x-client-user-agent"); len(vals) > 0 && vals[0] != "" {
		return vals[0]
	}
	if vals := md.Get("user-agent"); len(vals) > 0 {
		return vals[0]
	}
	return ""
}

func parseIP(s string) string {
	ip := net.ParseIP(strings.TrimSpace(s))
	if ip == nil {
		return ""
	}
	return ip.String()
}
