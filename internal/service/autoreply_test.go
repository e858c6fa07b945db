package service

import (
	"context"
	"testing"

	"github.com/anthropics/chat-autopilot/internal/biz/domain"
	"github.com/anthropics/chat-autopilot/internal/biz/usecase"
	"github.com/anthropics/chat-autopilot/internal/transport"
)

type mockTemplateRepo struct {
	templates map[string]*domain.Template
}

func (m *mockTemplateRepo) Create(ctx context.Context, tpl *domain.Template) error { return nil }
func (m *mockTemplateRepo) Update(ctx context.Context, tpl *domain.Template) error { return nil }
func (m *mockTemplateRepo) Delete(ctx context.Context, id string) error            { return nil }

func (m *mockTemplateRepo) GetAll(ctx context.Context) ([]*domain.Template, error) {
	return nil, nil
}

func (m *mockTemplateRepo) GetByID(ctx context.Context, id string) (*domain.Template, error) {
	return m.templates[id], nil
}

func (m *mockTemplateRepo) SaveAttachment(ctx context.Context, templateID, fileName string, data []byte) error {
	return nil
}

func (m *mockTemplateRepo) GetAttachment(ctx context.Context, templateID string) (*domain.Media, error) {
	return nil, nil
}

func (m *mockTemplateRepo) Close() error { return nil }

// TestAutoReply_EndToEnd wires the full inbound path: driver event ->
// registry -> rule engine -> dispatch -> driver send.
func TestAutoReply_EndToEnd(t *testing.T) {
	net := transport.NewMemoryNetwork()
	reg := connectedRegistry(t, net, "acc1")

	templates := &mockTemplateRepo{templates: map[string]*domain.Template{
		"t1": {ID: "t1", Name: "Greeting", Content: "Hello! How can we help?"},
	}}
	rules := newMockRuleRepo(&domain.AutoReplyRule{
		ID: "r1", AccountID: "acc1", Name: "greet", IsActive: true,
		Trigger: domain.Trigger{Kind: domain.TriggerKeywords, Pattern: "hello"}, TemplateID: "t1",
	})

	uc := usecase.NewAutoReplyUsecase(rules, usecase.NewComposerUsecase(templates))
	dispatcher := NewDispatcher(reg, rules, DispatchConfig{})
	svc := NewAutoReplyService(uc, dispatcher)
	reg.SetInboundProcessor(svc)

	var sentRule string
	svc.OnReplySent(func(accountID string, rule *domain.AutoReplyRule, result SendResult) {
		sentRule = rule.ID
	})

	net.Driver("acc1").Deliver("555@c.us", "hello there")

	sent := net.Driver("acc1").Sent()
	if len(sent) != 1 {
		t.Fatalf("Expected one auto-reply, got %d", len(sent))
	}
	if sent[0].ChatID != "555@c.us" || sent[0].Text != "Hello! How can we help?" {
		t.Errorf("Unexpected reply: %+v", sent[0])
	}
	if rules.triggered["r1"] != 1 {
		t.Errorf("Expected rule stats bumped, got %d", rules.triggered["r1"])
	}
	if sentRule != "r1" {
		t.Errorf("Expected reply-sent notification for r1, got %q", sentRule)
	}
}

func TestAutoReply_NoMatchIsSilent(t *testing.T) {
	net := transport.NewMemoryNetwork()
	reg := connectedRegistry(t, net, "acc1")

	templates := &mockTemplateRepo{templates: map[string]*domain.Template{
		"t1": {ID: "t1", Name: "Greeting", Content: "Hello!"},
	}}
	rules := newMockRuleRepo(&domain.AutoReplyRule{
		ID: "r1", AccountID: "acc1", Name: "greet", IsActive: true,
		Trigger: domain.Trigger{Kind: domain.TriggerKeywords, Pattern: "price"}, TemplateID: "t1",
	})

	uc := usecase.NewAutoReplyUsecase(rules, usecase.NewComposerUsecase(templates))
	svc := NewAutoReplyService(uc, NewDispatcher(reg, rules, DispatchConfig{}))
	reg.SetInboundProcessor(svc)

	net.Driver("acc1").Deliver("555@c.us", "unrelated chatter")

	if sent := net.Driver("acc1").Sent(); len(sent) != 0 {
		t.Errorf("Expected no reply, got %v", sent)
	}
}

// TestAutoReply_MenuConversation walks a full menu exchange: trigger word,
// numbered menu back, numeric answer, option content back.
func TestAutoReply_MenuConversation(t *testing.T) {
	net := transport.NewMemoryNetwork()
	reg := connectedRegistry(t, net, "acc1")

	templates := &mockTemplateRepo{templates: map[string]*domain.Template{
		"intro": {ID: "intro", Name: "Menu intro", Content: "Welcome!"},
		"hours": {ID: "hours", Name: "Opening hours", Content: "We open 9-5."},
	}}
	rules := newMockRuleRepo(&domain.AutoReplyRule{
		ID: "menu", AccountID: "acc1", Name: "menu", IsActive: true,
		Trigger: domain.Trigger{Kind: domain.TriggerKeywords, Pattern: "menu"}, TemplateID: "intro",
		Options: []domain.NumberedOption{{Number: 1, ResponseTemplateID: "hours"}},
	})

	uc := usecase.NewAutoReplyUsecase(rules, usecase.NewComposerUsecase(templates))
	svc := NewAutoReplyService(uc, NewDispatcher(reg, rules, DispatchConfig{}))
	reg.SetInboundProcessor(svc)

	net.Driver("acc1").Deliver("555@c.us", "menu please")
	net.Driver("acc1").Deliver("555@c.us", "1")

	sent := net.Driver("acc1").Sent()
	if len(sent) != 2 {
		t.Fatalf("Expected menu and option replies, got %d", len(sent))
	}
	if sent[0].Text != "Welcome!\n\nPlease select an option:\n1. Opening hours" {
		t.Errorf("Unexpected menu text: %q", sent[0].Text)
	}
	if sent[1].Text != "We open 9-5." {
		t.Errorf("Unexpected option reply: %q", sent[1].Text)
	}
}
