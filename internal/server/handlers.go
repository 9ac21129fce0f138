package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/unicode/norm"

	apperrors "github.com/darkone23/langnet-web/internal/errors"
	"github.com/darkone23/langnet-web/internal/middleware"
	"github.com/darkone23/langnet-web/internal/store"
)

// maxGreetingBody bounds what POST /api/hello will read.
const maxGreetingBody = 1 << 20

// DefaultGreetingName is used when the POST body carries no name.
const DefaultGreetingName = "world"

// HandleHello answers GET /api/hello.
func (s *Server) HandleHello(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Hello from Go API!"})
}

// HandleHelloPost answers POST /api/hello with a greeting for the name in
// the body.
func (s *Server) HandleHelloPost(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxGreetingBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "bad_request", "could not read request body")
		return
	}

	name := GreetingName(r.Header.Get("Content-Type"), body)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Hello, " + name + "!"})
}

// GreetingName extracts the name to greet from a POST body. When the
// content type is JSON and the body decodes, its string "name" field is
// used, and a missing field counts as empty. Any other body is taken as the
// raw name. The result is trimmed and NFC normalized, and falls back to
// DefaultGreetingName when empty.
func GreetingName(contentType string, body []byte) string {
	raw := string(body)
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil && mediaType == "application/json" {
		var payload struct {
			Name *string `json:"name"`
		}
		if json.Unmarshal(body, &payload) == nil {
			raw = ""
			if payload.Name != nil {
				raw = *payload.Name
			}
		}
	}

	name := strings.TrimSpace(norm.NFC.String(raw))
	if name == "" {
		return DefaultGreetingName
	}
	return name
}

// HandleHealth answers GET /api/health.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleHelloHTMX renders the hello_htmx fragment.
func (s *Server) HandleHelloHTMX(w http.ResponseWriter, r *http.Request) {
	s.renderFragment(w, r, TemplateHelloHTMX, map[string]any{
		"message":   "Hello from HTMX!",
		"server":    "Go",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// mainFeatures are the cards in the main_content fragment. Template lookups
// are by key, so the rows are maps rather than structs.
var mainFeatures = []map[string]string{
	{"name": "HTMX", "description": "Server-rendered fragments swapped into the page"},
	{"name": "Go API", "description": "JSON endpoints under /api"},
	{"name": "SQLite", "description": "Embedded database behind the demo endpoint"},
}

// HandleMainContent renders the main_content fragment.
func (s *Server) HandleMainContent(w http.ResponseWriter, r *http.Request) {
	s.renderFragment(w, r, TemplateMainContent, map[string]any{
		"title":    "Main Content",
		"subtitle": "Loaded from the server with HTMX",
		"features": mainFeatures,
	})
}

func (s *Server) renderFragment(w http.ResponseWriter, r *http.Request, name string, data any) {
	out, err := s.templates.Render(s.settings.TemplatePath(name), data)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeHTML(w, http.StatusOK, s.minifyHTML(r.Context(), out))
}

// usersResponse is the body of a successful database demo.
type usersResponse struct {
	Status string       `json:"status"`
	Users  []store.User `json:"users"`
}

// HandleDBExample rewrites the demo users table and returns its rows.
func (s *Server) HandleDBExample(w http.ResponseWriter, r *http.Request) {
	users, err := store.ResetDemoUsers(r.Context(), s.settings.DBPath)
	if err != nil {
		s.databaseFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, usersResponse{Status: "ok", Users: users})
}

// HandleProductsExample computes the product summary on a separate
// goroutine and waits for it before responding.
func (s *Server) HandleProductsExample(w http.ResponseWriter, r *http.Request) {
	var totals []store.ProductTotal
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		totals, err = store.ProductTotals(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		s.databaseFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, totals)
}

// databaseFailure reports a failed database step as
// {"error":"<step>_failed","message":...}.
func (s *Server) databaseFailure(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	op := apperrors.OpOf(err)
	if op == "" {
		op = "database"
	}
	message := err.Error()
	var ae *apperrors.AppError
	if errors.As(err, &ae) {
		message = ae.Message
		if ae.Cause != nil {
			message += ": " + ae.Cause.Error()
		}
	}
	s.logger.Error(r.Context(), err, "database demo failed", "op", op)
	writeError(w, http.StatusInternalServerError, op+"_failed", message)
}

// HandleLiveReload upgrades /ws when live reload is enabled.
func (s *Server) HandleLiveReload(w http.ResponseWriter, r *http.Request) {
	if s.reload == nil {
		s.HandleNotFound(w, r)
		return
	}
	s.reload.HandleWebSocket(w, r)
}

// HandleNotFound answers every unmatched path.
func (s *Server) HandleNotFound(w http.ResponseWriter, r *http.Request) {
	middleware.Fail(w, r, http.StatusNotFound, "not_found", "not found")
}
