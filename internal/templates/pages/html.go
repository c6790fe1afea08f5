// Package pages holds the shared page chrome (layout, error and landing
// pages) and the small HTML writer plugin views are built with.
package pages

import (
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"

	"github.com/keyxmakerx/crescendo/internal/templates/layouts"
)

// HTML writes view markup to an io.Writer and remembers the first error so
// views can chain calls and check once at the end.
type HTML struct {
	w   io.Writer
	err error
}

// NewHTML wraps w.
func NewHTML(w io.Writer) *HTML {
	return &HTML{w: w}
}

// Raw writes trusted markup as-is.
func (h *HTML) Raw(s string) *HTML {
	if h.err == nil {
		_, h.err = io.WriteString(h.w, s)
	}
	return h
}

// Text writes s HTML-escaped.
func (h *HTML) Text(s string) *HTML {
	return h.Raw(templ.EscapeString(s))
}

// Textf formats and writes the result HTML-escaped.
func (h *HTML) Textf(format string, args ...any) *HTML {
	return h.Text(fmt.Sprintf(format, args...))
}

// Attr writes ` name="value"` with the value escaped.
func (h *HTML) Attr(name, value string) *HTML {
	return h.Raw(" " + name + `="`).Text(value).Raw(`"`)
}

// Component renders a nested component.
func (h *HTML) Component(ctx context.Context, c templ.Component) *HTML {
	if h.err == nil && c != nil {
		h.err = c.Render(ctx, h.w)
	}
	return h
}

// Err returns the first write error.
func (h *HTML) Err() error {
	return h.err
}

// View adapts a rendering function to templ.Component.
func View(fn func(ctx context.Context, h *HTML)) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := NewHTML(w)
		fn(ctx, h)
		return h.Err()
	})
}

// CSRFField writes the hidden CSRF input every form must carry.
func CSRFField(ctx context.Context, h *HTML) {
	h.Raw(`<input type="hidden" name="csrf_token"`).Attr("value", layouts.GetCSRFToken(ctx)).Raw(">")
}

// Alert writes a notice box. kind is "error", "success" or "info".
func Alert(h *HTML, kind, msg string) {
	if msg == "" {
		return
	}
	h.Raw(`<div role="alert"`).Attr("class", "alert alert-"+kind).Raw(">").Text(msg).Raw("</div>")
}
