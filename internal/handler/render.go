// Package handler contains HTTP request handlers for the chat application.
//
// HANDLER RESPONSIBILITIES:
// 1. Parse the incoming HTTP request (form fields, URL params, uploads)
// 2. Call the service layer (identity, invites, access predicates)
// 3. Write the HTTP response (page, redirect, plain-text error or JSON)
//
// Handlers hold no business rules; AccessService decides who may do what.
package handler

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
)

// Page names. Each one is a file in the templates directory that defines a
// "content" block rendered inside base.html.
const (
	PageLogin   = "login"
	PageChat    = "chat"
	PageBlocked = "blocked"
	PageAdmin   = "admin"
)

// Renderer holds parsed templates so they are not re-parsed on every request.
//
// TEMPLATE COMPOSITION:
// Every page is parsed together with base.html into its own template set.
// base.html calls {{template "content" .}}; each page file fills in
// {{define "content"}}. Parsing pages separately keeps their "content"
// definitions from overwriting one another.
type Renderer struct {
	pages  map[string]*template.Template
	logger *slog.Logger
}

// NewRenderer parses base.html and every page from fsys, which must contain
// a templates/ directory (see web.Templates).
func NewRenderer(fsys fs.FS, logger *slog.Logger) (*Renderer, error) {
	r := &Renderer{pages: make(map[string]*template.Template), logger: logger}
	for _, page := range []string{PageLogin, PageChat, PageBlocked, PageAdmin} {
		tmpl, err := template.ParseFS(fsys, "templates/base.html", "templates/"+page+".html")
		if err != nil {
			return nil, fmt.Errorf("parsing %s template: %w", page, err)
		}
		r.pages[page] = tmpl
	}
	return r, nil
}

// Render executes the named page into a buffer first so a template error
// still produces a clean 500 instead of a half-written page.
func (r *Renderer) Render(w http.ResponseWriter, status int, page string, data any) {
	tmpl, ok := r.pages[page]
	if !ok {
		r.logger.Error("unknown page", slog.String("page", page))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base", data); err != nil {
		r.logger.Error("failed to render template",
			slog.String("page", page),
			slog.String("error", err.Error()),
		)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}
