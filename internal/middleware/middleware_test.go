package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	apierrors "github.com/devrev/workspace-panel/internal/errors"
	"github.com/devrev/workspace-panel/internal/middleware"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequestIDMiddleware(t *testing.T) {
	t.Run("generates request ID if not present", func(t *testing.T) {
		var seen string
		handler := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = middleware.RequestIDFromContext(r.Context())
			assert.Equal(t, seen, r.Header.Get("X-Request-ID"))
			w.WriteHeader(http.StatusOK)
		}))

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/workspaces", nil))

		assert.NotEmpty(t, seen)
		assert.Equal(t, seen, w.Header().Get("X-Request-ID"))
	})

	t.Run("preserves existing request ID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/workspaces", nil)
		req.Header.Set("X-Request-ID", "my-custom-id-123")
		w := httptest.NewRecorder()

		middleware.RequestID(okHandler()).ServeHTTP(w, req)

		assert.Equal(t, "my-custom-id-123", w.Header().Get("X-Request-ID"))
	})

	t.Run("empty context", func(t *testing.T) {
		assert.Empty(t, middleware.RequestIDFromContext(context.Background()))
	})
}

func TestLoggingMiddleware_CapturesStatus(t *testing.T) {
	handler := middleware.Logging(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	logger := zap.NewNop()
	errorHandler := apierrors.NewHandler(logger)

	t.Run("recovers from panic", func(t *testing.T) {
		handler := middleware.Recovery(errorHandler, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("unexpected error")
		}))

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Contains(t, w.Body.String(), "INTERNAL_ERROR")
	})

	t.Run("passes through normal requests", func(t *testing.T) {
		w := httptest.NewRecorder()
		middleware.Recovery(errorHandler, logger)(okHandler()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestCORSMiddleware(t *testing.T) {
	t.Run("adds CORS headers for allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Origin", "https://panel.example.com")
		w := httptest.NewRecorder()

		middleware.CORS([]string{"https://panel.example.com"})(okHandler()).ServeHTTP(w, req)

		assert.Equal(t, "https://panel.example.com", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "PUT")
	})

	t.Run("handles OPTIONS preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/test", nil)
		req.Header.Set("Origin", "https://panel.example.com")
		w := httptest.NewRecorder()

		middleware.CORS([]string{"*"})(okHandler()).ServeHTTP(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
	})

	t.Run("does not add headers for disallowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set("Origin", "https://not-allowed.com")
		w := httptest.NewRecorder()

		middleware.CORS([]string{"https://allowed.com"})(okHandler()).ServeHTTP(w, req)

		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestRateLimiterMiddleware(t *testing.T) {
	logger := zap.NewNop()
	errorHandler := apierrors.NewHandler(logger)

	t.Run("allows requests under limit", func(t *testing.T) {
		handler := middleware.NewRateLimiter(10, 5, errorHandler, logger).Limit(okHandler())

		for i := 0; i < 5; i++ {
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
			assert.Equal(t, http.StatusOK, w.Code)
		}
	})

	t.Run("blocks requests over limit", func(t *testing.T) {
		handler := middleware.NewRateLimiter(0.1, 1, errorHandler, logger).Limit(okHandler())

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
		assert.Equal(t, http.StatusOK, w.Code)

		w = httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, "1", w.Header().Get("Retry-After"))
		assert.Contains(t, w.Body.String(), "RATE_LIMITED")
	})

	t.Run("limits clients independently", func(t *testing.T) {
		handler := middleware.NewRateLimiter(0.1, 1, errorHandler, logger).Limit(okHandler())

		for _, client := range []string{"10.0.0.1", "10.0.0.2"} {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			req.Header.Set("X-Forwarded-For", client)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			assert.Equal(t, http.StatusOK, w.Code, client)
		}
	})
}

func TestChain_Order(t *testing.T) {
	var order []string
	mark := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	middleware.Chain(mark("first"), mark("second"))(okHandler()).
		ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"first", "second"}, order)
}
