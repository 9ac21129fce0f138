// Package middleware contains the HTTP middleware stack wrapped around the
// router's mux.
//
// Middlewares execute in the order they were added: the first added is the
// outermost wrapper. Apply is read-only and safe for concurrent use.
package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/darkone23/langnet-web/internal/logging"
	"github.com/darkone23/langnet-web/internal/views"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// Middleware represents a single middleware function
type Middleware func(http.Handler) http.Handler

// MiddlewareChain manages the HTTP middleware stack.
type MiddlewareChain struct {
	logger      logging.Logger
	middlewares []Middleware
}

// NewMiddlewareChain builds the default stack: request id, logging, panic
// recovery and the path traversal guard.
func NewMiddlewareChain(logger logging.Logger) *MiddlewareChain {
	if logger == nil {
		logger = logging.Discard()
	}
	chain := &MiddlewareChain{
		logger:      logger.WithComponent("http"),
		middlewares: make([]Middleware, 0, 4),
	}
	chain.AddMiddleware(RequestID())
	chain.AddMiddleware(Logging(chain.logger))
	chain.AddMiddleware(Recovery(chain.logger))
	chain.AddMiddleware(TraversalGuard())
	return chain
}

// AddMiddleware appends a middleware; it runs inside the ones added before it.
func (mc *MiddlewareChain) AddMiddleware(middleware Middleware) {
	mc.middlewares = append(mc.middlewares, middleware)
}

// Len returns the number of middlewares in the chain.
func (mc *MiddlewareChain) Len() int {
	return len(mc.middlewares)
}

// Apply wraps handler with every middleware in the chain.
func (mc *MiddlewareChain) Apply(handler http.Handler) http.Handler {
	if handler == nil {
		panic("MiddlewareChain.Apply: handler cannot be nil")
	}

	wrapped := handler
	for i := len(mc.middlewares) - 1; i >= 0; i-- {
		middleware := mc.middlewares[i]
		if middleware == nil {
			panic(fmt.Sprintf("MiddlewareChain.Apply: middleware at index %d is nil", i))
		}
		wrapped = middleware(wrapped)
	}
	return wrapped
}

// RequestID propagates an incoming X-Request-ID or assigns a new UUID, and
// stores it in the request context for the logger.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get(RequestIDHeader))
			if id == "" || len(id) > 128 {
				id = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, id)
			next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), id)))
		})
	}
}

// statusRecorder captures the status code written by the handler.
type statusRecorder struct {
	http.ResponseWriter
	status  int
	written int64
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.written += int64(n)
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer, which the
// websocket upgrade needs for hijacking.
func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// Logging logs one line per request.
func Logging(logger logging.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}

			next.ServeHTTP(rec, r)

			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			logger.Info(r.Context(), "request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", rec.written,
				"duration", time.Since(start),
			)
		})
	}
}

// Recovery turns a handler panic into a 500 response. The connection stays
// usable and the panic is logged with its stack.
func Recovery(logger logging.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Error(r.Context(), fmt.Errorf("panic: %v", rec), "handler panicked",
					"path", r.URL.Path,
					"stack", string(debug.Stack()),
				)
				Fail(w, r, http.StatusInternalServerError, "internal_error", "internal server error")
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// TraversalGuard answers 404 for any path containing a ".." segment, before
// the mux gets a chance to clean and redirect it.
func TraversalGuard() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if HasDotDot(r.URL.Path) {
				Fail(w, r, http.StatusNotFound, "not_found", "not found")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// HasDotDot reports whether p has a ".." element, with either separator.
func HasDotDot(p string) bool {
	if !strings.Contains(p, "..") {
		return false
	}
	for _, seg := range strings.FieldsFunc(p, func(r rune) bool { return r == '/' || r == '\\' }) {
		if seg == ".." {
			return true
		}
	}
	return false
}

// IsAPI reports whether the request targets the JSON API.
func IsAPI(r *http.Request) bool {
	return r.URL.Path == "/api" || strings.HasPrefix(r.URL.Path, "/api/")
}

// Fail writes an error response in the request's convention: a JSON object
// under /api/ and the HTML error page everywhere else.
func Fail(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	if !IsAPI(r) {
		views.WriteErrorPage(w, r, status, message)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code, "message": message})
}
