// Package server implements the HTTP handlers: static frontend files, the
// JSON API, HTMX fragments rendered from the template cache, and the demo
// database endpoints.
//
// Handlers hold no state of their own. Everything they touch is injected
// through New and is safe for concurrent use.
package server

import (
	"context"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/html"

	"github.com/darkone23/langnet-web/internal/config"
	apperrors "github.com/darkone23/langnet-web/internal/errors"
	"github.com/darkone23/langnet-web/internal/logging"
	"github.com/darkone23/langnet-web/internal/renderer"
	"github.com/darkone23/langnet-web/internal/websocket"
)

// Template names rendered by the HTMX endpoints.
const (
	TemplateHelloHTMX   = "hello_htmx"
	TemplateMainContent = "main_content"
)

// Server implements the router's Handlers interface.
type Server struct {
	settings  *config.Settings
	templates *renderer.TemplateCache
	logger    logging.Logger
	reload    *websocket.Manager
	minifier  *minify.M
}

// Option configures a Server.
type Option func(*Server)

// WithLiveReload serves /ws from m.
func WithLiveReload(m *websocket.Manager) Option {
	return func(s *Server) {
		s.reload = m
	}
}

// WithMinifiedHTML minifies rendered HTML fragments before sending them.
func WithMinifiedHTML() Option {
	return func(s *Server) {
		s.minifier = NewHTMLMinifier()
	}
}

// New wires a Server. Settings and the template cache are required; their
// absence is a startup bug and reported as MissingGlobals.
func New(settings *config.Settings, templates *renderer.TemplateCache, logger logging.Logger, opts ...Option) (*Server, error) {
	if settings == nil {
		return nil, apperrors.NewMissingGlobals("settings")
	}
	if templates == nil {
		return nil, apperrors.NewMissingGlobals("template cache")
	}
	if logger == nil {
		logger = logging.Discard()
	}

	s := &Server{
		settings:  settings,
		templates: templates,
		logger:    logger.WithComponent("server"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Settings returns the configuration the server was built with.
func (s *Server) Settings() *config.Settings {
	return s.settings
}

// NewHTMLMinifier returns a minifier for text/html that keeps end tags and
// attribute quotes, so fragments stay valid when swapped into a page.
func NewHTMLMinifier() *minify.M {
	m := minify.New()
	m.Add("text/html", &html.Minifier{
		KeepEndTags: true,
		KeepQuotes:  true,
	})
	return m
}

func (s *Server) minifyHTML(ctx context.Context, out string) string {
	if s.minifier == nil {
		return out
	}
	min, err := s.minifier.String("text/html", out)
	if err != nil {
		s.logger.Warn(ctx, err, "minify failed, sending original")
		return out
	}
	return min
}
