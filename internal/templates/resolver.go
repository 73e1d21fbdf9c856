package templates

import (
	"context"
	"fmt"
	"strings"

	"termin/internal/domain"
)

// Resolver looks up the active template for a key and renders it.
type Resolver struct {
	repo     domain.TemplateRepository
	renderer domain.TemplateRenderer
}

func NewResolver(repo domain.TemplateRepository, renderer domain.TemplateRenderer) *Resolver {
	if renderer == nil {
		renderer = NewRenderer()
	}
	return &Resolver{repo: repo, renderer: renderer}
}

// Resolve returns ok=false when no active template exists for key; callers
// then use their own fallback text. err is only set for storage or parse failures.
func (r *Resolver) Resolve(ctx context.Context, key string, fields map[string]string) (subject, body string, ok bool, err error) {
	tmpl, err := r.repo.GetActiveTemplate(ctx, key)
	if err != nil {
		return "", "", false, fmt.Errorf("lookup template %s: %w", key, err)
	}
	if tmpl == nil || !tmpl.IsActive {
		return "", "", false, nil
	}

	subject, err = r.renderer.Render(tmpl.Subject, fields)
	if err != nil {
		return "", "", false, fmt.Errorf("render %s subject: %w", key, err)
	}
	body, err = r.renderer.Render(tmpl.Body, fields)
	if err != nil {
		return "", "", false, fmt.Errorf("render %s body: %w", key, err)
	}

	return strings.TrimSpace(subject), body, true, nil
}
