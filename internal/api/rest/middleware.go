package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/serviceline/ticket-analytics-backend/internal/domain/errors"
	"github.com/serviceline/ticket-analytics-backend/internal/infrastructure/cache"
	"github.com/serviceline/ticket-analytics-backend/internal/metrics"
)

// Middleware wraps an http.Handler with additional behavior
type Middleware func(http.Handler) http.Handler

type contextKey string

const (
	contextKeyRequestID contextKey = "request_id"
	contextKeyUserID    contextKey = "user_id"
	contextKeyRole      contextKey = "role"
)

// requestIDFromContext returns the request ID, empty when absent
func requestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(contextKeyRequestID).(string)
	return id
}

// requestIDMiddleware assigns every request a unique ID, honoring one the
// caller already sent
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		w.Header().Set("X-Request-ID", requestID)
		ctx := context.WithValue(r.Context(), contextKeyRequestID, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// loggingMiddleware logs all HTTP requests
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &statusResponseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		slog.InfoContext(r.Context(), "http_request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"remote_addr", r.RemoteAddr,
			"request_id", requestIDFromContext(r.Context()),
		)
	})
}

// metricsMiddleware records API request duration and counts
func metricsMiddleware(registry *metrics.Registry) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if registry == nil {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			wrapped := &statusResponseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(wrapped, r)
			registry.RecordAPIRequest(r.Context(),
				float64(time.Since(start).Milliseconds()),
				r.Method, r.URL.Path, wrapped.status)
		})
	}
}

// writeMiddlewareError emits the uniform error envelope from outside the
// handler layer
func writeMiddlewareError(w http.ResponseWriter, r *http.Request, appErr *apperrors.AppError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.StatusCode)
	json.NewEncoder(w).Encode(errorResponse{
		Error: errorBody{
			Code:      appErr.Code,
			Message:   appErr.Message,
			Details:   appErr.Details,
			Retryable: appErr.Retryable,
			RequestID: requestIDFromContext(r.Context()),
			Timestamp: time.Now().UTC(),
		},
	})
}

// recoveryMiddleware recovers from panics and returns 500 errors
func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				slog.ErrorContext(r.Context(), "panic recovered",
					"error", err,
					"stack", string(debug.Stack()),
					"path", r.URL.Path,
				)

				writeMiddlewareError(w, r, apperrors.NewInternalError("An internal error occurred"))
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// corsMiddleware adds CORS headers for cross-origin requests
func corsMiddleware(allowedOrigins []string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigin(r, allowedOrigins))
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
			w.Header().Set("Access-Control-Max-Age", "86400")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func allowedOrigin(r *http.Request, allowed []string) string {
	if len(allowed) == 0 {
		return "*"
	}
	origin := r.Header.Get("Origin")
	for _, a := range allowed {
		if origin == a {
			return origin
		}
	}
	return allowed[0]
}

// timeoutMiddleware enforces a per-request deadline
func timeoutMiddleware(timeout time.Duration) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			r = r.WithContext(ctx)
			done := make(chan struct{})
			go func() {
				defer close(done)
				next.ServeHTTP(w, r)
			}()

			select {
			case <-done:
			case <-ctx.Done():
				if ctx.Err() == context.DeadlineExceeded {
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusGatewayTimeout)
					w.Write([]byte(`{"error":{"code":"REQUEST_TIMEOUT","message":"Request timed out"}}`))
				}
			}
		})
	}
}

// RateLimiterMiddleware enforces per-client request limits backed by the
// shared Redis sliding window
type RateLimiterMiddleware struct {
	limiter cache.RateLimiter
	limit   int
	window  time.Duration
}

// NewRateLimiterMiddleware creates a rate limiting middleware
func NewRateLimiterMiddleware(limiter cache.RateLimiter, limit int, window time.Duration) *RateLimiterMiddleware {
	if limit <= 0 {
		limit = 100
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiterMiddleware{limiter: limiter, limit: limit, window: window}
}

// Middleware returns the rate limiting handler wrapper
func (m *RateLimiterMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.limiter == nil {
			next.ServeHTTP(w, r)
			return
		}

		key := m.rateLimitKey(r)
		allowed, err := m.limiter.Allow(r.Context(), key, m.limit, m.window)
		if err != nil {
			// Limiter outages never block traffic.
			slog.WarnContext(r.Context(), "rate limiter unavailable", "error", err)
			next.ServeHTTP(w, r)
			return
		}

		if !allowed {
			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", m.limit))
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(m.window.Seconds())))
			writeMiddlewareError(w, r, apperrors.NewRateLimitError("Too many requests"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// rateLimitKey identifies the caller: authenticated user when present,
// client IP otherwise, plus the endpoint so heavy routes get their own
// budget.
func (m *RateLimiterMiddleware) rateLimitKey(r *http.Request) string {
	var parts []string
	if userID, ok := r.Context().Value(contextKeyUserID).(string); ok && userID != "" {
		parts = append(parts, "user:"+userID)
	} else {
		parts = append(parts, "ip:"+getClientIP(r))
	}
	parts = append(parts, "endpoint:"+r.Method+":"+r.URL.Path)
	return strings.Join(parts, ":")
}

// getClientIP extracts the client IP, honoring proxy headers
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.Index(xff, ","); i >= 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// statusResponseWriter wraps http.ResponseWriter to capture the status code
type statusResponseWriter struct {
	http.ResponseWriter
	status  int
	written bool
}

func (rw *statusResponseWriter) WriteHeader(status int) {
	if !rw.written {
		rw.status = status
		rw.written = true
		rw.ResponseWriter.WriteHeader(status)
	}
}

func (rw *statusResponseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}
