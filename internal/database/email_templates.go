package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"termin/internal/models"
)

const templateColumns = `id, key, description, subject, body, is_active, updated_at`

func scanTemplate(row rowScanner) (*models.EmailTemplate, error) {
	var t models.EmailTemplate
	err := row.Scan(&t.ID, &t.Key, &t.Description, &t.Subject, &t.Body, &t.IsActive, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetActiveTemplate returns nil without error when the key has no active row.
func (db *DB) GetActiveTemplate(ctx context.Context, key string) (*models.EmailTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM email_templates WHERE key = ? AND is_active = 1`
	t, err := scanTemplate(db.QueryRowContext(ctx, query, key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get active template %s: %w", key, err)
	}
	return t, nil
}

func (db *DB) GetTemplate(ctx context.Context, key string) (*models.EmailTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM email_templates WHERE key = ?`
	t, err := scanTemplate(db.QueryRowContext(ctx, query, key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get template %s: %w", key, err)
	}
	return t, nil
}

func (db *DB) ListTemplates(ctx context.Context) ([]*models.EmailTemplate, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+templateColumns+` FROM email_templates ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	var templates []*models.EmailTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

// UpsertTemplate inserts the template or overwrites the row with the same key.
func (db *DB) UpsertTemplate(ctx context.Context, tmpl *models.EmailTemplate) error {
	query := `INSERT INTO email_templates (key, description, subject, body, is_active, updated_at)
              VALUES (?, ?, ?, ?, ?, ?)
              ON CONFLICT(key) DO UPDATE SET
                  description = excluded.description,
                  subject = excluded.subject,
                  body = excluded.body,
                  is_active = excluded.is_active,
                  updated_at = excluded.updated_at`
	now := time.Now()
	_, err := db.ExecContext(ctx, query, tmpl.Key, tmpl.Description, tmpl.Subject, tmpl.Body, tmpl.IsActive, now)
	if err != nil {
		return fmt.Errorf("failed to upsert template %s: %w", tmpl.Key, err)
	}

	// LastInsertId is unreliable for the update branch
	if err := db.QueryRowContext(ctx, `SELECT id FROM email_templates WHERE key = ?`, tmpl.Key).Scan(&tmpl.ID); err != nil {
		return fmt.Errorf("failed to read template id: %w", err)
	}
	tmpl.UpdatedAt = now
	return nil
}
