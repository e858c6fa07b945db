package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/anthropics/chat-autopilot/internal/biz/domain"
)

// Mock implementations shared by the usecase tests.

type mockTemplateRepo struct {
	templates   map[string]*domain.Template
	attachments map[string]*domain.Media
	failGet     bool
}

func newMockTemplateRepo() *mockTemplateRepo {
	return &mockTemplateRepo{
		templates:   make(map[string]*domain.Template),
		attachments: make(map[string]*domain.Media),
	}
}

func (m *mockTemplateRepo) Create(ctx context.Context, tpl *domain.Template) error {
	m.templates[tpl.ID] = tpl
	return nil
}

func (m *mockTemplateRepo) Update(ctx context.Context, tpl *domain.Template) error {
	m.templates[tpl.ID] = tpl
	return nil
}

func (m *mockTemplateRepo) Delete(ctx context.Context, id string) error {
	delete(m.templates, id)
	return nil
}

func (m *mockTemplateRepo) GetAll(ctx context.Context) ([]*domain.Template, error) {
	var out []*domain.Template
	for _, tpl := range m.templates {
		out = append(out, tpl)
	}
	return out, nil
}

func (m *mockTemplateRepo) GetByID(ctx context.Context, id string) (*domain.Template, error) {
	if m.failGet {
		return nil, errors.New("store unavailable")
	}
	return m.templates[id], nil
}

func (m *mockTemplateRepo) SaveAttachment(ctx context.Context, templateID, fileName string, data []byte) error {
	m.attachments[templateID] = &domain.Media{FileName: fileName, MimeType: domain.MimeTypeFor(fileName), Data: data}
	return nil
}

func (m *mockTemplateRepo) GetAttachment(ctx context.Context, templateID string) (*domain.Media, error) {
	return m.attachments[templateID], nil
}

func (m *mockTemplateRepo) Close() error { return nil }

type mockRuleRepo struct {
	rules   []*domain.AutoReplyRule
	stats   map[string]int64
	failAll bool
}

func newMockRuleRepo(rules ...*domain.AutoReplyRule) *mockRuleRepo {
	return &mockRuleRepo{rules: rules, stats: make(map[string]int64)}
}

func (m *mockRuleRepo) Create(ctx context.Context, rule *domain.AutoReplyRule) error {
	m.rules = append(m.rules, rule)
	return nil
}

func (m *mockRuleRepo) Update(ctx context.Context, rule *domain.AutoReplyRule) error {
	for i, r := range m.rules {
		if r.ID == rule.ID {
			m.rules[i] = rule
			return nil
		}
	}
	return errors.New("rule not found")
}

func (m *mockRuleRepo) Delete(ctx context.Context, id string) error {
	for i, r := range m.rules {
		if r.ID == id {
			m.rules = append(m.rules[:i], m.rules[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *mockRuleRepo) GetAll(ctx context.Context, accountID string) ([]*domain.AutoReplyRule, error) {
	if m.failAll {
		return nil, errors.New("store unavailable")
	}
	var out []*domain.AutoReplyRule
	for _, r := range m.rules {
		if accountID == "" || r.AccountID == accountID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockRuleRepo) GetByID(ctx context.Context, id string) (*domain.AutoReplyRule, error) {
	for _, r := range m.rules {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, nil
}

func (m *mockRuleRepo) ToggleActive(ctx context.Context, id string, active bool) error {
	for _, r := range m.rules {
		if r.ID == id {
			r.IsActive = active
			return nil
		}
	}
	return errors.New("rule not found")
}

func (m *mockRuleRepo) IncrementTriggered(ctx context.Context, id string, at time.Time) error {
	m.stats[id]++
	return nil
}

func (m *mockRuleRepo) GetStats(ctx context.Context, accountID string) ([]domain.RuleStats, error) {
	var out []domain.RuleStats
	for _, r := range m.rules {
		if accountID == "" || r.AccountID == accountID {
			out = append(out, domain.RuleStats{RuleID: r.ID, TriggeredCount: m.stats[r.ID]})
		}
	}
	return out, nil
}

func (m *mockRuleRepo) ReplaceAll(ctx context.Context, accountID string, rules []*domain.AutoReplyRule) error {
	kept := m.rules[:0]
	for _, r := range m.rules {
		if r.AccountID != accountID {
			kept = append(kept, r)
		}
	}
	m.rules = append(kept, rules...)
	return nil
}

func (m *mockRuleRepo) Close() error { return nil }
