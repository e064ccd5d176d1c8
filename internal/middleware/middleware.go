// Package middleware provides HTTP middleware for the workspace panel.
package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	apierrors "github.com/devrev/workspace-panel/internal/errors"
)

// ContextKey is a type for context keys.
type ContextKey string

const (
	// RequestIDKey is the context key for request ID.
	RequestIDKey ContextKey = "request_id"

	requestIDHeader = "X-Request-ID"
)

// RequestIDFromContext returns the request id stored by RequestID, if any.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}

// RequestID adds a unique request ID to each request.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		w.Header().Set(requestIDHeader, requestID)
		r.Header.Set(requestIDHeader, requestID)

		ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Logging logs HTTP request details.
func Logging(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rw.statusCode),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", r.Header.Get(requestIDHeader)),
				zap.String("remote_addr", r.RemoteAddr),
			}
			if rw.statusCode >= http.StatusInternalServerError {
				logger.Warn("HTTP request", fields...)
				return
			}
			logger.Info("HTTP request", fields...)
		})
	}
}

// Recovery recovers from panics and returns a 500 error.
func Recovery(errorHandler *apierrors.Handler, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}
					requestID := r.Header.Get(requestIDHeader)
					logger.Error("panic recovered",
						zap.Any("error", err),
						zap.String("request_id", requestID),
						zap.String("path", r.URL.Path),
						zap.Stack("stack"),
					)
					errorHandler.WriteErrorResponse(w, http.StatusInternalServerError,
						apierrors.ErrorCodeInternalError, "internal server error", requestID)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// CORS adds CORS headers to responses.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			allowed := false
			for _, o := range allowedOrigins {
				if o == "*" || o == origin {
					allowed = true
					break
				}
			}

			if allowed && origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
				w.Header().Set("Access-Control-Max-Age", "86400")
				w.Header().Add("Vary", "Origin")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimiter limits requests per client address.
type RateLimiter struct {
	mu           sync.Mutex
	limiters     map[string]*clientLimiter
	limit        rate.Limit
	burst        int
	idleTTL      time.Duration
	lastSweep    time.Time
	errorHandler *apierrors.Handler
	logger       *zap.Logger
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a new rate limiter middleware.
func NewRateLimiter(requestsPerSecond float64, burstSize int, errorHandler *apierrors.Handler, logger *zap.Logger) *RateLimiter {
	return &RateLimiter{
		limiters:     make(map[string]*clientLimiter),
		limit:        rate.Limit(requestsPerSecond),
		burst:        burstSize,
		idleTTL:      10 * time.Minute,
		lastSweep:    time.Now(),
		errorHandler: errorHandler,
		logger:       logger,
	}
}

// Limit applies rate limiting to requests.
func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := clientAddress(r)
		if !rl.allow(client, time.Now()) {
			requestID := r.Header.Get(requestIDHeader)
			rl.logger.Warn("rate limit exceeded",
				zap.String("request_id", requestID),
				zap.String("path", r.URL.Path),
				zap.String("client", client),
			)
			w.Header().Set("Retry-After", "1")
			rl.errorHandler.WriteRateLimitedError(w, requestID)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) allow(client string, now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastSweep) > rl.idleTTL {
		for key, cl := range rl.limiters {
			if now.Sub(cl.lastSeen) > rl.idleTTL {
				delete(rl.limiters, key)
			}
		}
		rl.lastSweep = now
	}

	cl, ok := rl.limiters[client]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[client] = cl
	}
	cl.lastSeen = now
	return cl.limiter.AllowN(now, 1)
}

func clientAddress(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code.
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Chain chains multiple middleware functions.
func Chain(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}
