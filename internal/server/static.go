package server

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/darkone23/langnet-web/internal/errors"
	"github.com/darkone23/langnet-web/internal/middleware"
)

// HandleIndex serves the frontend entry page.
func (s *Server) HandleIndex(w http.ResponseWriter, r *http.Request) {
	s.serveFile(w, r, s.settings.IndexFile(), "text/html; charset=utf-8")
}

// HandleIcon serves the favicon.
func (s *Server) HandleIcon(w http.ResponseWriter, r *http.Request) {
	s.serveFile(w, r, s.settings.IconFile(), "image/svg+xml")
}

func (s *Server) serveFile(w http.ResponseWriter, r *http.Request, path, contentType string) {
	body, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.fail(w, r, apperrors.NewNotFoundError(path, err))
			return
		}
		s.fail(w, r, apperrors.NewInternalError("read", "read static file", err).WithLocation(path, 0, 0))
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// HandleAssets serves files under AssetsDir for /assets/<path>. Paths that
// would leave the directory, directories and missing files are all 404.
func (s *Server) HandleAssets(w http.ResponseWriter, r *http.Request) {
	target, ok := resolveAsset(s.settings.AssetsDir(), strings.TrimPrefix(r.URL.Path, "/assets/"))
	if !ok {
		s.HandleNotFound(w, r)
		return
	}

	f, err := os.Open(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.HandleNotFound(w, r)
			return
		}
		s.fail(w, r, apperrors.NewInternalError("open", "open asset", err).WithLocation(target, 0, 0))
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		s.fail(w, r, apperrors.NewInternalError("stat", "stat asset", err).WithLocation(target, 0, 0))
		return
	}
	if info.IsDir() {
		s.HandleNotFound(w, r)
		return
	}

	w.Header().Set("X-Content-Type-Options", "nosniff")
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

// resolveAsset maps a request path below /assets/ to a file under root.
func resolveAsset(root, rel string) (string, bool) {
	if rel == "" || middleware.HasDotDot(rel) || strings.ContainsRune(rel, 0) {
		return "", false
	}
	target := filepath.Join(root, filepath.FromSlash(rel))
	if !isWithin(root, target) || filepath.Clean(root) == target {
		return "", false
	}
	return target, true
}

func isWithin(base, target string) bool {
	baseAbs, err := filepath.Abs(base)
	if err != nil {
		return false
	}
	targetAbs, err := filepath.Abs(target)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(baseAbs, targetAbs)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	return rel != ".." && !strings.HasPrefix(rel, "../")
}
