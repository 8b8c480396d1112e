package render

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"text/template"

	"github.com/orrn/printflow/internal/core"
	"github.com/orrn/printflow/internal/db"
)

// TemplateRenderer expands stored templates with submission data. Template
// bodies use Go template syntax and are parsed on every render; templates
// change rarely enough that caching is not worth the invalidation plumbing.
type TemplateRenderer struct {
	templates *db.TemplateStore
}

func NewTemplateRenderer(templates *db.TemplateStore) *TemplateRenderer {
	return &TemplateRenderer{templates: templates}
}

// Render looks up a template by name and executes it against data.
func (r *TemplateRenderer) Render(ctx context.Context, templateRef string, data map[string]any) ([]byte, error) {
	stored, err := r.templates.GetByName(ctx, templateRef)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", core.ErrTemplateMissing, templateRef)
		}
		return nil, err
	}

	tmpl, err := template.New(stored.Name).Option("missingkey=error").Parse(stored.Body)
	if err != nil {
		return nil, fmt.Errorf("parse template %s: %w", stored.Name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("execute template %s: %w", stored.Name, err)
	}
	return buf.Bytes(), nil
}
