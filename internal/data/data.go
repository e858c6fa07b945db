package data

import (
	"path/filepath"

	"github.com/anthropics/chat-autopilot/internal/biz/repo"
)

// Repositories contains all persisted stores.
type Repositories struct {
	Rules     repo.RuleRepo
	Templates repo.TemplateRepo
}

// NewRepositories opens all stores under dataDir.
func NewRepositories(dataDir string) (*Repositories, error) {
	ruleRepo, err := NewRuleRepo(filepath.Join(dataDir, "rules.db"))
	if err != nil {
		return nil, err
	}

	templateRepo, err := NewTemplateRepo(filepath.Join(dataDir, "templates.db"))
	if err != nil {
		ruleRepo.Close()
		return nil, err
	}

	return &Repositories{
		Rules:     ruleRepo,
		Templates: templateRepo,
	}, nil
}

// Close closes all stores.
func (r *Repositories) Close() {
	if r.Rules != nil {
		_ = r.Rules.Close()
	}
	if r.Templates != nil {
		_ = r.Templates.Close()
	}
}
