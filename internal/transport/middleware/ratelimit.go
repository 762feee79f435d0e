package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"

	limiterlib "github.com/ulule/limiter/v3"

	errors "github.com/frahmantamala/client-portal/internal"
	"github.com/frahmantamala/client-portal/internal/transport"
	"github.com/frahmantamala/client-portal/pkg/logger"
)

// RateLimit counts requests per route and client IP. When the limiter store
// fails the request is let through.
func RateLimit(lim *limiterlib.Limiter, route string, base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := route + ":" + ClientIP(r)

			result, err := lim.Get(r.Context(), key)
			if err != nil {
				logger.FromOr(r.Context(), base).Error("rate limiter unavailable", "route", route, "error", err)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.Reset, 10))

			if result.Reached {
				logger.FromOr(r.Context(), base).Warn("rate limit reached", "route", route, "key", key)
				transport.NewBaseHandler(base).HandleError(w, errors.NewRateLimitedError("too many requests, try again later"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the peer address.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first := strings.TrimSpace(strings.Split(fwd, ",")[0]); first != "" {
			return first
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
