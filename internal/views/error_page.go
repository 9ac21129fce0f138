// Package views contains the HTML components rendered directly by the
// server, outside the mustache fragments.
package views

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/a-h/templ"
)

// ErrorPage renders a minimal HTML document for an error status. message is
// escaped; an empty message falls back to the status text.
func ErrorPage(status int, message string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		title := strconv.Itoa(status) + " " + http.StatusText(status)
		if message == "" {
			message = http.StatusText(status)
		}

		_, err := io.WriteString(w, `<!DOCTYPE html><html lang="en"><head><meta charset="utf-8"><title>`+
			templ.EscapeString(title)+
			`</title></head><body><main class="error"><h1>`+
			templ.EscapeString(title)+
			`</h1><p>`+
			templ.EscapeString(message)+
			`</p><p><a href="/">Back to home</a></p></main></body></html>`)
		return err
	})
}

// WriteErrorPage sends ErrorPage with the given status.
func WriteErrorPage(w http.ResponseWriter, r *http.Request, status int, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = ErrorPage(status, message).Render(r.Context(), w)
}
