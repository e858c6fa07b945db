package data

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/anthropics/chat-autopilot/internal/biz/domain"
	"github.com/anthropics/chat-autopilot/internal/biz/repo"

	_ "modernc.org/sqlite"
)

// templateRepo implements the template store on SQLite. Attachment blobs live
// in a side table keyed by template id.
type templateRepo struct {
	db *sql.DB
}

// NewTemplateRepo creates a new template repository.
func NewTemplateRepo(dbPath string) (repo.TemplateRepo, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS templates (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			content TEXT NOT NULL,
			attachment_name TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create templates table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS attachments (
			template_id TEXT PRIMARY KEY,
			file_name TEXT NOT NULL,
			mime_type TEXT NOT NULL,
			data BLOB NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create attachments table: %w", err)
	}

	return &templateRepo{db: db}, nil
}

// Create stores a new template.
func (r *templateRepo) Create(ctx context.Context, tpl *domain.Template) error {
	now := time.Now()
	if tpl.CreatedAt.IsZero() {
		tpl.CreatedAt = now
	}
	tpl.UpdatedAt = now
	tpl.Variables = domain.ExtractVariables(tpl.Content)

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO templates (id, name, content, attachment_name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, tpl.ID, tpl.Name, tpl.Content, tpl.AttachmentName, tpl.CreatedAt.Unix(), tpl.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert template: %w", err)
	}
	return nil
}

// Update replaces a template's fields.
func (r *templateRepo) Update(ctx context.Context, tpl *domain.Template) error {
	tpl.UpdatedAt = time.Now()
	tpl.Variables = domain.ExtractVariables(tpl.Content)

	res, err := r.db.ExecContext(ctx, `
		UPDATE templates SET name = ?, content = ?, attachment_name = ?, updated_at = ? WHERE id = ?
	`, tpl.Name, tpl.Content, tpl.AttachmentName, tpl.UpdatedAt.Unix(), tpl.ID)
	if err != nil {
		return fmt.Errorf("failed to update template: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("template %s not found", tpl.ID)
	}
	return nil
}

// Delete removes a template and any attachment blob.
func (r *templateRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM attachments WHERE template_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete attachment: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM templates WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}
	return nil
}

// GetAll lists all templates, newest first.
func (r *templateRepo) GetAll(ctx context.Context) ([]*domain.Template, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, content, attachment_name, created_at, updated_at
		FROM templates
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	var templates []*domain.Template
	for rows.Next() {
		tpl, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, tpl)
	}
	return templates, rows.Err()
}

// GetByID gets one template, nil if absent.
func (r *templateRepo) GetByID(ctx context.Context, id string) (*domain.Template, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, content, attachment_name, created_at, updated_at
		FROM templates
		WHERE id = ?
	`, id)

	tpl, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return tpl, err
}

// SaveAttachment stores the attachment blob for a template.
func (r *templateRepo) SaveAttachment(ctx context.Context, templateID, fileName string, data []byte) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO attachments (template_id, file_name, mime_type, data)
		VALUES (?, ?, ?, ?)
	`, templateID, fileName, domain.MimeTypeFor(fileName), data)
	if err != nil {
		return fmt.Errorf("failed to save attachment: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		UPDATE templates SET attachment_name = ?, updated_at = ? WHERE id = ?
	`, fileName, time.Now().Unix(), templateID)
	if err != nil {
		return fmt.Errorf("failed to record attachment name: %w", err)
	}
	return nil
}

// GetAttachment loads a template's attachment, nil if none.
func (r *templateRepo) GetAttachment(ctx context.Context, templateID string) (*domain.Media, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT file_name, mime_type, data FROM attachments WHERE template_id = ?
	`, templateID)

	var media domain.Media
	err := row.Scan(&media.FileName, &media.MimeType, &media.Data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query attachment: %w", err)
	}
	return &media, nil
}

// Close closes the database connection.
func (r *templateRepo) Close() error {
	return r.db.Close()
}

func scanTemplate(row rowScanner) (*domain.Template, error) {
	var tpl domain.Template
	var createdAt, updatedAt int64
	err := row.Scan(&tpl.ID, &tpl.Name, &tpl.Content, &tpl.AttachmentName, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan template: %w", err)
	}
	tpl.Variables = domain.ExtractVariables(tpl.Content)
	tpl.CreatedAt = time.Unix(createdAt, 0)
	tpl.UpdatedAt = time.Unix(updatedAt, 0)
	return &tpl, nil
}
