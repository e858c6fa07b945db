package repo

import (
	"context"

	"github.com/anthropics/chat-autopilot/internal/biz/domain"
)

// TemplateRepo is the template store adapter interface.
// Responsible for template persistence plus attachment blob storage keyed by
// template id.
type TemplateRepo interface {
	// Create stores a new template.
	Create(ctx context.Context, tpl *domain.Template) error

	// Update replaces a template's fields.
	Update(ctx context.Context, tpl *domain.Template) error

	// Delete removes a template and any attachment blob.
	Delete(ctx context.Context, id string) error

	// GetAll lists all templates, newest first.
	GetAll(ctx context.Context) ([]*domain.Template, error)

	// GetByID gets one template, nil if absent.
	GetByID(ctx context.Context, id string) (*domain.Template, error)

	// SaveAttachment stores the attachment blob for a template.
	SaveAttachment(ctx context.Context, templateID, fileName string, data []byte) error

	// GetAttachment loads a template's attachment, nil if none.
	GetAttachment(ctx context.Context, templateID string) (*domain.Media, error)

	// Close closes the underlying store.
	Close() error
}
