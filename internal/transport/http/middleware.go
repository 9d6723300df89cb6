package httptransport

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/mssola/useragent"

	"medigate/pkg/requestcontext"
)

// Device parses the User-Agent header into a short human-readable device
// label and stashes it in the request context for audit events.
func Device(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.UserAgent()
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}
		ua := useragent.New(raw)
		name, version := ua.Browser()
		parts := make([]string, 0, 3)
		if os := ua.OS(); os != "" {
			parts = append(parts, os)
		}
		if name != "" {
			if version != "" {
				name += " " + version
			}
			parts = append(parts, name)
		}
		label := strings.Join(parts, " / ")
		if label == "" {
			label = raw
		}
		ctx := requestcontext.WithDevice(r.Context(), label)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Correlate copies the chi request id into the context accessor the services
// read, so audit events carry the correlation id without the session core
// importing chi.
func Correlate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := chimw.GetReqID(r.Context()); id != "" {
			r = r.WithContext(requestcontext.WithRequestID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

// RequestLogger logs one line per request with the chi request id.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if logger == nil {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.InfoContext(r.Context(), "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", chimw.GetReqID(r.Context()),
			)
		})
	}
}
