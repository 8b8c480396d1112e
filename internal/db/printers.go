package db

import (
	"context"
	"database/sql"
	"fmt"
)

type PrinterStore struct {
	db *sql.DB
}

func (o *PrinterStore) Create(ctx context.Context, p *Printer) error {
	result, err := o.db.ExecContext(ctx, InsertPrinter,
		p.Name, p.CapabilityType, p.SystemID, p.PaperSize, p.Orientation,
		p.Quality, p.Priority, p.IsDefault, p.LocationRef, p.Department,
		p.SupportsPDF, p.SupportsHTML, p.SupportsESCPOS, p.SupportsZPL, p.Active)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: printer %s", ErrDuplicateName, p.Name)
		}
		return fmt.Errorf("failed to create printer: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get printer id: %w", err)
	}
	p.ID = id
	return nil
}

func (o *PrinterStore) GetByID(ctx context.Context, id int64) (*Printer, error) {
	return o.scanOne(o.db.QueryRowContext(ctx, GetPrinterByID, id))
}

func (o *PrinterStore) GetByName(ctx context.Context, name string) (*Printer, error) {
	return o.scanOne(o.db.QueryRowContext(ctx, GetPrinterByName, name))
}

func (o *PrinterStore) GetBySystemID(ctx context.Context, systemID string) (*Printer, error) {
	return o.scanOne(o.db.QueryRowContext(ctx, GetPrinterBySystemID, systemID))
}

func (o *PrinterStore) List(ctx context.Context) ([]*Printer, error) {
	return o.list(ctx, ListPrinters)
}

// ListActive returns active printers ordered by priority (highest first)
// with id as the stable tie-break. This is the drain sweep order.
func (o *PrinterStore) ListActive(ctx context.Context) ([]*Printer, error) {
	return o.list(ctx, ListActivePrinters)
}

func (o *PrinterStore) Update(ctx context.Context, p *Printer) error {
	_, err := o.db.ExecContext(ctx, UpdatePrinter,
		p.Name, p.CapabilityType, p.SystemID, p.PaperSize, p.Orientation,
		p.Quality, p.Priority, p.IsDefault, p.LocationRef, p.Department,
		p.SupportsPDF, p.SupportsHTML, p.SupportsESCPOS, p.SupportsZPL, p.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: printer %s", ErrDuplicateName, p.Name)
		}
		return fmt.Errorf("failed to update printer: %w", err)
	}
	return nil
}

// SetActive flips the soft-lifecycle flag. Printers are never hard-deleted
// so historical jobs keep a valid reference.
func (o *PrinterStore) SetActive(ctx context.Context, id int64, active bool) error {
	result, err := o.db.ExecContext(ctx, SetPrinterActive, active, id)
	if err != nil {
		return fmt.Errorf("failed to set printer active: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (o *PrinterStore) list(ctx context.Context, query string, args ...interface{}) ([]*Printer, error) {
	rows, err := o.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list printers: %w", err)
	}
	defer rows.Close()

	var printers []*Printer
	for rows.Next() {
		p, err := scanPrinter(rows)
		if err != nil {
			return nil, err
		}
		printers = append(printers, p)
	}
	return printers, rows.Err()
}

func (o *PrinterStore) scanOne(row *sql.Row) (*Printer, error) {
	p := &Printer{}
	err := row.Scan(
		&p.ID, &p.Name, &p.CapabilityType, &p.SystemID, &p.PaperSize,
		&p.Orientation, &p.Quality, &p.Priority, &p.IsDefault, &p.LocationRef,
		&p.Department, &p.SupportsPDF, &p.SupportsHTML, &p.SupportsESCPOS,
		&p.SupportsZPL, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to get printer: %w", err)
	}
	return p, nil
}

func scanPrinter(rows *sql.Rows) (*Printer, error) {
	p := &Printer{}
	if err := rows.Scan(
		&p.ID, &p.Name, &p.CapabilityType, &p.SystemID, &p.PaperSize,
		&p.Orientation, &p.Quality, &p.Priority, &p.IsDefault, &p.LocationRef,
		&p.Department, &p.SupportsPDF, &p.SupportsHTML, &p.SupportsESCPOS,
		&p.SupportsZPL, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to scan printer: %w", err)
	}
	return p, nil
}
