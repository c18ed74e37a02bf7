package view

import (
	"embed"
	"fmt"
	"html/template"
	"io"
)

//go:embed templates/*.html
var templateFS embed.FS

// Renderer writes pages and fragments. It is safe for concurrent use.
type Renderer struct {
	tmpl *template.Template
}

func NewRenderer() (*Renderer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

// Page writes the full HTML document.
func (r *Renderer) Page(w io.Writer, p Page) error {
	return r.exec(w, "page", p)
}

// App writes the #app fragment swapped in after most interactions.
func (r *Renderer) App(w io.Writer, p Page) error {
	return r.exec(w, "app", p)
}

// Results writes the #results fragment: banner and table.
func (r *Renderer) Results(w io.Writer, p Page) error {
	return r.exec(w, "results", p)
}

// Confirm writes a standalone confirmation page.
func (r *Renderer) Confirm(w io.Writer, p ConfirmPage) error {
	return r.exec(w, "confirm", p)
}

func (r *Renderer) exec(w io.Writer, name string, data any) error {
	if err := r.tmpl.ExecuteTemplate(w, name, data); err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}
	return nil
}
