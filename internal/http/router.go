// Package http owns the listening socket: route registration, the
// middleware-wrapped mux and the server lifecycle.
package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/darkone23/langnet-web/internal/config"
)

const (
	readHeaderTimeout = 10 * time.Second
	idleTimeout       = 120 * time.Second
	shutdownTimeout   = 30 * time.Second
)

// Handlers is everything the router dispatches to.
type Handlers interface {
	HandleIndex(w http.ResponseWriter, r *http.Request)
	HandleIcon(w http.ResponseWriter, r *http.Request)
	HandleAssets(w http.ResponseWriter, r *http.Request)

	HandleHello(w http.ResponseWriter, r *http.Request)
	HandleHelloPost(w http.ResponseWriter, r *http.Request)
	HandleHelloHTMX(w http.ResponseWriter, r *http.Request)
	HandleMainContent(w http.ResponseWriter, r *http.Request)
	HandleHealth(w http.ResponseWriter, r *http.Request)
	HandleDBExample(w http.ResponseWriter, r *http.Request)
	HandleProductsExample(w http.ResponseWriter, r *http.Request)

	HandleLiveReload(w http.ResponseWriter, r *http.Request)
	HandleNotFound(w http.ResponseWriter, r *http.Request)
}

// MiddlewareProvider interface for middleware chain injection
type MiddlewareProvider interface {
	Apply(handler http.Handler) http.Handler
}

// Router handles HTTP server lifecycle and route registration.
type Router struct {
	settings   *config.Settings
	mux        *http.ServeMux
	handlers   Handlers
	httpServer *http.Server

	serverMutex sync.RWMutex
	listener    net.Listener
	isShutdown  bool
}

// NewRouter registers every route and wraps the mux with middleware.
// A nil middleware provider leaves the mux unwrapped.
func NewRouter(settings *config.Settings, handlers Handlers, middlewareProvider MiddlewareProvider) *Router {
	if settings == nil {
		panic("Router: settings cannot be nil")
	}
	if handlers == nil {
		panic("Router: handlers cannot be nil")
	}

	router := &Router{
		settings: settings,
		mux:      http.NewServeMux(),
		handlers: handlers,
	}
	router.registerRoutes()

	var handler http.Handler = router.mux
	if middlewareProvider != nil {
		handler = middlewareProvider.Apply(handler)
	}
	router.httpServer = &http.Server{
		Addr:              settings.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
	}
	return router
}

// registerRoutes binds the fixed route table. Exact paths use method
// patterns; /assets/ is a prefix mount; /api/ and / catch the rest.
func (r *Router) registerRoutes() {
	r.mux.HandleFunc("GET /{$}", r.handlers.HandleIndex)
	r.mux.HandleFunc("GET /vite.svg", r.handlers.HandleIcon)
	r.mux.HandleFunc("GET /assets/", r.handlers.HandleAssets)

	r.mux.HandleFunc("GET /api/hello", r.handlers.HandleHello)
	r.mux.HandleFunc("POST /api/hello", r.handlers.HandleHelloPost)
	r.mux.HandleFunc("GET /api/hello-htmx", r.handlers.HandleHelloHTMX)
	r.mux.HandleFunc("GET /api/main-content", r.handlers.HandleMainContent)
	r.mux.HandleFunc("GET /api/health", r.handlers.HandleHealth)
	r.mux.HandleFunc("GET /api/duckdb-example", r.handlers.HandleDBExample)
	r.mux.HandleFunc("GET /api/polars-example", r.handlers.HandleProductsExample)

	if r.settings.LiveReload {
		r.mux.HandleFunc("GET /ws", r.handlers.HandleLiveReload)
	}

	r.mux.HandleFunc("/api/", r.handlers.HandleNotFound)
	r.mux.HandleFunc("/", r.handlers.HandleNotFound)
}

// Handler returns the middleware-wrapped mux.
func (r *Router) Handler() http.Handler {
	return r.httpServer.Handler
}

// RegisterOnShutdown runs f when Shutdown starts, e.g. to close hijacked
// websocket connections the server no longer tracks.
func (r *Router) RegisterOnShutdown(f func()) {
	r.httpServer.RegisterOnShutdown(f)
}

// Listen binds the configured address. Port 0 picks a free port; Addr
// reports the result. Start calls Listen itself when needed.
func (r *Router) Listen() error {
	r.serverMutex.Lock()
	defer r.serverMutex.Unlock()

	if r.isShutdown {
		return errors.New("Router.Listen: router has been shut down")
	}
	if r.listener != nil {
		return nil
	}
	ln, err := net.Listen("tcp", r.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("Router.Listen: %w", err)
	}
	r.listener = ln
	return nil
}

// Start serves until ctx is cancelled or the server fails. Cancellation
// triggers a graceful shutdown and Start returns its result.
func (r *Router) Start(ctx context.Context) error {
	if err := r.Listen(); err != nil {
		return err
	}

	r.serverMutex.RLock()
	ln := r.listener
	r.serverMutex.RUnlock()

	errChan := make(chan error, 1)
	go func() {
		if err := r.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("Router: server error: %w", err)
			return
		}
		errChan <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := r.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-errChan
	case err := <-errChan:
		return err
	}
}

// Shutdown gracefully stops the server. Calling it again is a no-op.
func (r *Router) Shutdown(ctx context.Context) error {
	r.serverMutex.Lock()
	defer r.serverMutex.Unlock()

	if r.isShutdown {
		return nil
	}
	r.isShutdown = true

	err := r.httpServer.Shutdown(ctx)
	if r.listener != nil {
		// Serve closes it too; this covers a router that listened but never served.
		_ = r.listener.Close()
	}
	if err != nil {
		return fmt.Errorf("Router.Shutdown: server shutdown failed: %w", err)
	}
	return nil
}

// Addr returns the bound address once listening, the configured one before.
func (r *Router) Addr() string {
	r.serverMutex.RLock()
	defer r.serverMutex.RUnlock()

	if r.listener != nil {
		return r.listener.Addr().String()
	}
	return r.httpServer.Addr
}

// IsShutdown returns whether the router has been shut down
func (r *Router) IsShutdown() bool {
	r.serverMutex.RLock()
	defer r.serverMutex.RUnlock()
	return r.isShutdown
}
