package templates

import (
	"fmt"
	"io"
	"strings"

	"github.com/valyala/fasttemplate"
)

const (
	startTag = "{{"
	endTag   = "}}"
)

// Renderer substitutes {{ booking.field }} placeholders.
// The "booking." prefix is optional, filters after "|" are ignored
// and unknown fields render as an empty string.
type Renderer struct{}

func NewRenderer() *Renderer {
	return &Renderer{}
}

func (r *Renderer) Render(tmpl string, fields map[string]string) (string, error) {
	if !strings.Contains(tmpl, startTag) {
		return tmpl, nil
	}

	t, err := fasttemplate.NewTemplate(tmpl, startTag, endTag)
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}

	return t.ExecuteFuncStringWithErr(func(w io.Writer, tag string) (int, error) {
		return io.WriteString(w, fields[fieldName(tag)])
	})
}

func fieldName(tag string) string {
	name := strings.TrimSpace(tag)
	if i := strings.Index(name, "|"); i >= 0 {
		name = strings.TrimSpace(name[:i])
	}
	return strings.TrimPrefix(name, "booking.")
}
