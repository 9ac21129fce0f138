package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	apperrors "github.com/darkone23/langnet-web/internal/errors"
	"github.com/darkone23/langnet-web/internal/middleware"
)

// errorBody is the JSON shape of every API error.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	if strings.TrimSpace(message) == "" {
		message = http.StatusText(status)
	}
	writeJSON(w, status, errorBody{Error: code, Message: message})
}

func writeHTML(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

// fail maps err to a status and writes it in the request's convention.
// Details of 500s stay in the log.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	code := "internal_error"
	message := http.StatusText(status)

	var ae *apperrors.AppError
	if errors.As(err, &ae) {
		code = string(ae.Type)
	}
	if status == http.StatusNotFound {
		code = "not_found"
		message = "not found"
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error(r.Context(), err, "request failed", "path", r.URL.Path)
	} else {
		s.logger.Debug(r.Context(), "request failed", "path", r.URL.Path, "error", err.Error())
	}
	middleware.Fail(w, r, status, code, message)
}
