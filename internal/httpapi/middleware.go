package httpapi

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/MrWong99/greffier/internal/observe"
	"github.com/MrWong99/greffier/pkg/llmerr"
)

// requestID copies the chi request id into the context key read by
// observe.Logger.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := chimw.GetReqID(r.Context()); id != "" {
			w.Header().Set(chimw.RequestIDHeader, id)
			r = r.WithContext(observe.WithRequestID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

// rateLimit admits requests through the per-caller limiter. Without a
// limiter it is a no-op.
func (s *server) rateLimit(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if s.deps.Limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, remaining := s.deps.Limiter.Allow(route + "|" + clientKey(r))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			if !allowed {
				s.deps.Metrics.RecordRateLimited(r.Context(), route)
				w.Header().Set("Retry-After", "60")
				writeError(w, http.StatusTooManyRequests, apiError{
					Code:      string(llmerr.RateLimited),
					Message:   "Trop de requêtes. Réessayez dans une minute.",
					Retryable: true,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientKey identifies the caller: the first X-Forwarded-For hop when
// present, otherwise the remote host.
func clientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func retryAfterSeconds(s float64) string {
	return strconv.Itoa(int(math.Ceil(s)))
}
