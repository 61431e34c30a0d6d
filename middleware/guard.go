package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/skillbridge/authcore"
)

type authResultContextKey struct{}

// AuthResultFromContext returns the validated claims a Guard stored for
// this request.
func AuthResultFromContext(ctx context.Context) (*authcore.AuthResult, bool) {
	res, ok := ctx.Value(authResultContextKey{}).(*authcore.AuthResult)
	return res, ok
}

// Guard validates the Authorization bearer token on every request and
// rejects with 401 on any failure. Suspended accounts read as
// unauthorized like everything else; the guard never explains why.
func Guard(engine *authcore.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := WithClientContext(r.Context(), r)
			res, err := engine.ValidateToken(ctx, token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx = context.WithValue(ctx, authResultContextKey{}, res)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithClientContext copies the request's client IP and User-Agent into
// the context the engine reads. Use it on unauthenticated routes too,
// such as login and refresh handlers.
func WithClientContext(ctx context.Context, r *http.Request) context.Context {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		ctx = authcore.WithClientIP(ctx, host)
	} else if r.RemoteAddr != "" {
		ctx = authcore.WithClientIP(ctx, r.RemoteAddr)
	}
	if ua := r.UserAgent(); ua != "" {
		ctx = authcore.WithUserAgent(ctx, ua)
	}
	return ctx
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
