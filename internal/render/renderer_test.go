package render

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/orrn/printflow/internal/core"
	"github.com/orrn/printflow/internal/db"
)

func newRenderer(t *testing.T) (*TemplateRenderer, *db.Store) {
	t.Helper()

	store, err := db.Open(db.Config{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewTemplateRenderer(store.Templates), store
}

func TestRenderExpandsStoredTemplate(t *testing.T) {
	r, store := newRenderer(t)
	ctx := context.Background()

	err := store.Templates.Create(ctx, &db.PrintTemplate{
		Name:       "receipt-header",
		Body:       "Order {{.order}} for {{.customer}}",
		DataFormat: "escpos",
	})
	if err != nil {
		t.Fatalf("create template: %v", err)
	}

	out, err := r.Render(ctx, "receipt-header", map[string]any{
		"order":    "A-100",
		"customer": "Ada",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if string(out) != "Order A-100 for Ada" {
		t.Fatalf("output = %q", out)
	}
}

func TestRenderUnknownTemplate(t *testing.T) {
	r, _ := newRenderer(t)

	_, err := r.Render(context.Background(), "missing", nil)
	if !errors.Is(err, core.ErrTemplateMissing) {
		t.Fatalf("err = %v, want ErrTemplateMissing", err)
	}
}

func TestRenderMissingKeyFails(t *testing.T) {
	r, store := newRenderer(t)
	ctx := context.Background()

	store.Templates.Create(ctx, &db.PrintTemplate{
		Name:       "strict",
		Body:       "{{.required}}",
		DataFormat: "escpos",
	})

	if _, err := r.Render(ctx, "strict", map[string]any{}); err == nil {
		t.Fatal("expected error for missing key")
	}
}
