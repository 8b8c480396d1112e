package core

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/orrn/printflow/internal/db"
)

func newTestStore(t *testing.T) *db.Store {
	t.Helper()

	store, err := db.Open(db.Config{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func addPrinter(t *testing.T, store *db.Store, p *db.Printer) *db.Printer {
	t.Helper()

	if p.PaperSize == "" {
		p.PaperSize = "a4"
	}
	if p.Orientation == "" {
		p.Orientation = "portrait"
	}
	if p.Quality == "" {
		p.Quality = "normal"
	}
	if p.SystemID == "" {
		p.SystemID = "sys-" + p.Name
	}
	if err := store.Printers.Create(context.Background(), p); err != nil {
		t.Fatalf("create printer %s: %v", p.Name, err)
	}
	return p
}

func TestSelectPrinterPrefersLocationOverPriority(t *testing.T) {
	store := newTestStore(t)
	registry := NewRegistry(store)
	ctx := context.Background()

	addPrinter(t, store, &db.Printer{
		Name: "hq-receipt", CapabilityType: "receipt",
		LocationRef: "hq", Priority: 1, Active: true,
	})
	addPrinter(t, store, &db.Printer{
		Name: "warehouse-receipt", CapabilityType: "receipt",
		LocationRef: "warehouse", Priority: 500, Active: true,
	})

	p, err := registry.SelectPrinter(ctx, SelectionRequest{
		CapabilityType: CapabilityReceipt,
		LocationRef:    "hq",
	})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if p == nil || p.Name != "hq-receipt" {
		t.Fatalf("selected %v, want hq-receipt", p)
	}
}

func TestSelectPrinterDefaultFlagOutranksEverything(t *testing.T) {
	store := newTestStore(t)
	registry := NewRegistry(store)
	ctx := context.Background()

	addPrinter(t, store, &db.Printer{
		Name: "matched", CapabilityType: "receipt",
		LocationRef: "hq", Department: "sales", Priority: 999, Active: true,
	})
	addPrinter(t, store, &db.Printer{
		Name: "fallback-default", CapabilityType: "receipt",
		IsDefault: true, Priority: 0, Active: true,
	})

	p, err := registry.SelectPrinter(ctx, SelectionRequest{
		CapabilityType: CapabilityReceipt,
		LocationRef:    "hq",
		Department:     "sales",
	})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if p == nil || p.Name != "fallback-default" {
		t.Fatalf("selected %v, want fallback-default", p)
	}
}

func TestSelectPrinterTieBreaksOnLowestID(t *testing.T) {
	store := newTestStore(t)
	registry := NewRegistry(store)
	ctx := context.Background()

	first := addPrinter(t, store, &db.Printer{
		Name: "first", CapabilityType: "receipt", Priority: 10, Active: true,
	})
	addPrinter(t, store, &db.Printer{
		Name: "second", CapabilityType: "receipt", Priority: 10, Active: true,
	})

	p, err := registry.SelectPrinter(ctx, SelectionRequest{CapabilityType: CapabilityReceipt})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if p == nil || p.ID != first.ID {
		t.Fatalf("selected %v, want id %d", p, first.ID)
	}
}

func TestSelectPrinterEmptySetIsNotAnError(t *testing.T) {
	store := newTestStore(t)
	registry := NewRegistry(store)

	p, err := registry.SelectPrinter(context.Background(), SelectionRequest{
		CapabilityType: CapabilityLabel,
	})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if p != nil {
		t.Fatalf("selected %v, want nil", p)
	}
}

func TestSelectPrinterSkipsInactive(t *testing.T) {
	store := newTestStore(t)
	registry := NewRegistry(store)
	ctx := context.Background()

	p := addPrinter(t, store, &db.Printer{
		Name: "only", CapabilityType: "receipt", Priority: 10, Active: true,
	})
	if err := store.Printers.SetActive(ctx, p.ID, false); err != nil {
		t.Fatalf("set active: %v", err)
	}

	got, err := registry.SelectPrinter(ctx, SelectionRequest{CapabilityType: CapabilityReceipt})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if got != nil {
		t.Fatalf("selected %v, want nil", got)
	}
}

func TestExplicitReferenceBypassesScoring(t *testing.T) {
	store := newTestStore(t)
	registry := NewRegistry(store)
	ctx := context.Background()

	addPrinter(t, store, &db.Printer{
		Name: "shiny-default", CapabilityType: "receipt", IsDefault: true, Active: true,
	})
	target := addPrinter(t, store, &db.Printer{
		Name: "old-corner", CapabilityType: "receipt", Priority: 0, Active: true,
	})

	p, err := registry.SelectPrinter(ctx, SelectionRequest{PrinterID: target.ID})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if p.ID != target.ID {
		t.Fatalf("selected %s, want old-corner", p.Name)
	}

	p, err = registry.SelectPrinter(ctx, SelectionRequest{PrinterName: "old-corner"})
	if err != nil {
		t.Fatalf("select by name: %v", err)
	}
	if p.ID != target.ID {
		t.Fatalf("selected %s, want old-corner", p.Name)
	}
}

func TestExplicitReferenceToInactivePrinterFails(t *testing.T) {
	store := newTestStore(t)
	registry := NewRegistry(store)
	ctx := context.Background()

	p := addPrinter(t, store, &db.Printer{
		Name: "dormant", CapabilityType: "receipt", Active: true,
	})
	store.Printers.SetActive(ctx, p.ID, false)

	_, err := registry.SelectPrinter(ctx, SelectionRequest{PrinterID: p.ID})
	if !errors.Is(err, ErrPrinterNotFound) {
		t.Fatalf("err = %v, want ErrPrinterNotFound", err)
	}

	_, err = registry.SelectPrinter(ctx, SelectionRequest{PrinterID: 12345})
	if !errors.Is(err, ErrPrinterNotFound) {
		t.Fatalf("unknown id err = %v, want ErrPrinterNotFound", err)
	}
}

func TestScorePrinterFallbackBonuses(t *testing.T) {
	tests := []struct {
		name        string
		printer     db.Printer
		locationRef string
		department  string
		want        int
	}{
		{
			name:        "full match",
			printer:     db.Printer{LocationRef: "hq", Department: "sales", Priority: 7},
			locationRef: "hq",
			department:  "sales",
			want:        1000 + 500 + 7,
		},
		{
			name:        "agnostic printer",
			printer:     db.Printer{Priority: 3},
			locationRef: "hq",
			department:  "sales",
			want:        100 + 50 + 3,
		},
		{
			name:       "wrong location gets nothing",
			printer:    db.Printer{LocationRef: "warehouse", Department: ""},
			department: "sales",
			want:       50,
		},
		{
			name:    "default flag dominates",
			printer: db.Printer{IsDefault: true, LocationRef: "hq"},
			want:    10000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := scorePrinter(&tt.printer, tt.locationRef, tt.department)
			if got != tt.want {
				t.Fatalf("score = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSyncDiscoveredCreatesAndReactivates(t *testing.T) {
	store := newTestStore(t)
	registry := NewRegistry(store)
	ctx := context.Background()

	existing := addPrinter(t, store, &db.Printer{
		Name: "zebra-dock", CapabilityType: "label", SystemID: "zebra-dock", Active: true,
	})
	store.Printers.SetActive(ctx, existing.ID, false)

	result, err := registry.SyncDiscovered(ctx, []string{"zebra-dock", "EPSON TM-T88V"})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if len(result.Updated) != 1 || result.Updated[0] != "zebra-dock" {
		t.Fatalf("updated = %v, want [zebra-dock]", result.Updated)
	}
	if len(result.Created) != 1 {
		t.Fatalf("created = %v, want one entry", result.Created)
	}

	reactivated, err := store.Printers.GetByID(ctx, existing.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !reactivated.Active {
		t.Fatal("expected existing printer to be reactivated")
	}

	created, err := store.Printers.GetBySystemID(ctx, "EPSON TM-T88V")
	if err != nil {
		t.Fatalf("get created: %v", err)
	}
	if created.CapabilityType != "receipt" {
		t.Fatalf("capability = %s, want receipt", created.CapabilityType)
	}
}

func TestDetectCapabilityType(t *testing.T) {
	tests := []struct {
		name string
		want CapabilityType
	}{
		{"EPSON TM-T88V", CapabilityReceipt},
		{"Zebra ZD420", CapabilityLabel},
		{"HP LaserJet Pro", CapabilityDocument},
		{"Mystery Device 9000", CapabilityOther},
	}
	for _, tt := range tests {
		if got := DetectCapabilityType(tt.name); got != tt.want {
			t.Fatalf("DetectCapabilityType(%q) = %s, want %s", tt.name, got, tt.want)
		}
	}
}
