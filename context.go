package authcore

import "context"

type clientIPContextKey struct{}
type userAgentContextKey struct{}
type locationContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. The Engine uses
// it for rate limiting, audit records, and session activity updates.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithUserAgent attaches the HTTP User-Agent string to ctx. Refresh
// recomputes the device fingerprint from it, so callers that omit it
// will fail device binding.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, userAgentContextKey{}, userAgent)
}

// WithLocation attaches a coarse location label to ctx. Refresh writes
// it into the session's activity record when present.
func WithLocation(ctx context.Context, location string) context.Context {
	return context.WithValue(ctx, locationContextKey{}, location)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

func userAgentFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	userAgent, _ := ctx.Value(userAgentContextKey{}).(string)
	return userAgent
}

func locationFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	location, ok := ctx.Value(locationContextKey{}).(string)
	return location, ok && location != ""
}
