package db

import (
	"context"
	"database/sql"
	"fmt"
)

type TemplateStore struct {
	db *sql.DB
}

func (o *TemplateStore) Create(ctx context.Context, t *PrintTemplate) error {
	result, err := o.db.ExecContext(ctx, InsertTemplate,
		t.Name, t.Description, t.Body, t.DataFormat)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: template %s", ErrDuplicateName, t.Name)
		}
		return fmt.Errorf("failed to create template: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get template id: %w", err)
	}
	t.ID = id
	return nil
}

func (o *TemplateStore) GetByID(ctx context.Context, id int64) (*PrintTemplate, error) {
	return o.scanOne(o.db.QueryRowContext(ctx, GetTemplateByID, id))
}

func (o *TemplateStore) GetByName(ctx context.Context, name string) (*PrintTemplate, error) {
	return o.scanOne(o.db.QueryRowContext(ctx, GetTemplateByName, name))
}

func (o *TemplateStore) List(ctx context.Context) ([]*PrintTemplate, error) {
	rows, err := o.db.QueryContext(ctx, ListTemplates)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	var templates []*PrintTemplate
	for rows.Next() {
		t := &PrintTemplate{}
		if err := rows.Scan(
			&t.ID, &t.Name, &t.Description, &t.Body, &t.DataFormat,
			&t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

func (o *TemplateStore) Update(ctx context.Context, t *PrintTemplate) error {
	_, err := o.db.ExecContext(ctx, UpdateTemplate,
		t.Name, t.Description, t.Body, t.DataFormat, t.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: template %s", ErrDuplicateName, t.Name)
		}
		return fmt.Errorf("failed to update template: %w", err)
	}
	return nil
}

func (o *TemplateStore) Delete(ctx context.Context, id int64) error {
	_, err := o.db.ExecContext(ctx, DeleteTemplate, id)
	if err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}
	return nil
}

func (o *TemplateStore) scanOne(row *sql.Row) (*PrintTemplate, error) {
	t := &PrintTemplate{}
	err := row.Scan(
		&t.ID, &t.Name, &t.Description, &t.Body, &t.DataFormat,
		&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	return t, nil
}
