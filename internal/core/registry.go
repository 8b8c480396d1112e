package core

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/orrn/printflow/internal/db"
)

// Selection scoring. The values are load-bearing: changing them reorders
// selection for existing deployments.
const (
	scoreDefaultFlag     = 10000
	scoreLocationMatch   = 1000
	scoreDepartmentMatch = 500
	scoreNoLocation      = 100
	scoreNoDepartment    = 50
)

// Registry answers "which printer should serve this request" against the
// current printer table. Selection is a pure read; it never mutates state.
type Registry struct {
	store *db.Store
}

func NewRegistry(store *db.Store) *Registry {
	return &Registry{store: store}
}

type SelectionRequest struct {
	CapabilityType CapabilityType
	PrinterID      int64
	PrinterName    string
	LocationRef    string
	Department     string
}

// SelectPrinter resolves a printer for the request. An explicit reference
// (id or unique name) bypasses scoring entirely and must resolve to an
// active printer. Without one, active printers matching the capability type
// are scored and the highest total wins, lowest id breaking ties.
//
// An empty candidate set returns (nil, nil): "no printer available" is a
// normal outcome for callers, not an error path.
func (r *Registry) SelectPrinter(ctx context.Context, req SelectionRequest) (*db.Printer, error) {
	if req.PrinterID > 0 || req.PrinterName != "" {
		return r.resolveExplicit(ctx, req)
	}

	candidates, err := r.store.Printers.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	var best *db.Printer
	var bestScore int
	for _, p := range candidates {
		if req.CapabilityType != "" && p.CapabilityType != string(req.CapabilityType) {
			continue
		}
		score := scorePrinter(p, req.LocationRef, req.Department)
		if best == nil || score > bestScore || (score == bestScore && p.ID < best.ID) {
			best = p
			bestScore = score
		}
	}

	if best != nil {
		log.Printf("[registry] selected printer %s (type=%s, score=%d)", best.Name, best.CapabilityType, bestScore)
	}
	return best, nil
}

func (r *Registry) resolveExplicit(ctx context.Context, req SelectionRequest) (*db.Printer, error) {
	var p *db.Printer
	var err error
	if req.PrinterID > 0 {
		p, err = r.store.Printers.GetByID(ctx, req.PrinterID)
	} else {
		p, err = r.store.Printers.GetByName(ctx, req.PrinterName)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPrinterNotFound
		}
		return nil, err
	}
	if !p.Active {
		return nil, fmt.Errorf("%w: printer %s is not active", ErrPrinterNotFound, p.Name)
	}
	return p, nil
}

func scorePrinter(p *db.Printer, locationRef, department string) int {
	score := 0

	if p.IsDefault {
		score += scoreDefaultFlag
	}

	if locationRef != "" && p.LocationRef == locationRef {
		score += scoreLocationMatch
	} else if p.LocationRef == "" {
		// Location-agnostic printers stay selectable as a catch-all without
		// outranking an exact location match.
		score += scoreNoLocation
	}

	if department != "" && p.Department == department {
		score += scoreDepartmentMatch
	} else if p.Department == "" {
		score += scoreNoDepartment
	}

	score += p.Priority
	return score
}

type SyncResult struct {
	Created []string `json:"created"`
	Updated []string `json:"updated"`
}

// SyncDiscovered reconciles a list of system printer names reported by the
// local agent. Known system ids are reactivated; unknown ones get a new
// record with a capability type guessed from the name.
func (r *Registry) SyncDiscovered(ctx context.Context, names []string) (*SyncResult, error) {
	result := &SyncResult{}

	for _, name := range names {
		existing, err := r.store.Printers.GetBySystemID(ctx, name)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}

		if existing != nil {
			if !existing.Active {
				if err := r.store.Printers.SetActive(ctx, existing.ID, true); err != nil {
					return nil, err
				}
			}
			result.Updated = append(result.Updated, existing.Name)
			continue
		}

		p := &db.Printer{
			Name:           name,
			SystemID:       name,
			CapabilityType: string(DetectCapabilityType(name)),
			PaperSize:      "a4",
			Orientation:    "portrait",
			Quality:        "normal",
			Priority:       10,
			SupportsPDF:    true,
			SupportsHTML:   true,
			Active:         true,
		}
		if err := r.store.Printers.Create(ctx, p); err != nil {
			return nil, err
		}
		result.Created = append(result.Created, p.Name)
	}

	log.Printf("[registry] discovery sync: %d created, %d updated", len(result.Created), len(result.Updated))
	return result, nil
}

var capabilityKeywords = map[CapabilityType][]string{
	CapabilityReceipt:  {"receipt", "pos", "thermal", "tm-", "epson"},
	CapabilityLabel:    {"label", "zebra", "zpl", "barcode"},
	CapabilityDocument: {"laser", "inkjet", "office", "hp", "canon", "brother"},
}

// DetectCapabilityType guesses a capability type from a system printer name.
func DetectCapabilityType(name string) CapabilityType {
	lower := strings.ToLower(name)
	for _, ct := range []CapabilityType{CapabilityReceipt, CapabilityLabel, CapabilityDocument} {
		for _, keyword := range capabilityKeywords[ct] {
			if strings.Contains(lower, keyword) {
				return ct
			}
		}
	}
	return CapabilityOther
}
