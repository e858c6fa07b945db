package usecase

import (
	"context"
	"testing"

	"github.com/anthropics/chat-autopilot/internal/biz/domain"
)

func TestComposeReply_PlainTemplate(t *testing.T) {
	templates := newMockTemplateRepo()
	templates.templates["t1"] = &domain.Template{ID: "t1", Name: "Greeting", Content: "Hello there!"}

	uc := NewComposerUsecase(templates)
	rule := &domain.AutoReplyRule{ID: "r1", TemplateID: "t1"}

	composed, err := uc.ComposeReply(context.Background(), rule)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if composed.Text != "Hello there!" {
		t.Errorf("Expected template content verbatim, got %q", composed.Text)
	}
	if composed.Media != nil {
		t.Error("Expected no media")
	}
}

func TestComposeReply_MenuFormat(t *testing.T) {
	templates := newMockTemplateRepo()
	templates.templates["t1"] = &domain.Template{ID: "t1", Name: "Menu intro", Content: "Welcome to our store!"}
	templates.templates["t2"] = &domain.Template{ID: "t2", Name: "Opening hours", Content: "We open 9-5."}
	templates.templates["t3"] = &domain.Template{ID: "t3", Name: "Price list", Content: "See attached."}

	uc := NewComposerUsecase(templates)
	rule := &domain.AutoReplyRule{
		ID:         "menu",
		TemplateID: "t1",
		Options: []domain.NumberedOption{
			{Number: 1, ResponseTemplateID: "t2"},
			{Number: 2, ResponseTemplateID: "t3"},
		},
	}

	composed, err := uc.ComposeReply(context.Background(), rule)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	want := "Welcome to our store!\n\nPlease select an option:\n1. Opening hours\n2. Price list"
	if composed.Text != want {
		t.Errorf("Menu text mismatch:\n got: %q\nwant: %q", composed.Text, want)
	}
}

func TestComposeReply_MissingTemplate(t *testing.T) {
	uc := NewComposerUsecase(newMockTemplateRepo())
	rule := &domain.AutoReplyRule{ID: "r1", TemplateID: "nope"}

	if _, err := uc.ComposeReply(context.Background(), rule); err == nil {
		t.Error("Expected error for missing template")
	}
}

func TestComposeReply_MissingOptionTemplate(t *testing.T) {
	templates := newMockTemplateRepo()
	templates.templates["t1"] = &domain.Template{ID: "t1", Name: "Menu intro", Content: "Pick one"}

	uc := NewComposerUsecase(templates)
	rule := &domain.AutoReplyRule{
		ID:         "menu",
		TemplateID: "t1",
		Options:    []domain.NumberedOption{{Number: 1, ResponseTemplateID: "ghost"}},
	}

	if _, err := uc.ComposeReply(context.Background(), rule); err == nil {
		t.Error("Expected error for option referencing missing template")
	}
}

func TestComposeReply_WithAttachment(t *testing.T) {
	templates := newMockTemplateRepo()
	templates.templates["t1"] = &domain.Template{ID: "t1", Name: "Catalog", Content: "Here you go", AttachmentName: "catalog.pdf"}
	templates.attachments["t1"] = &domain.Media{FileName: "catalog.pdf", MimeType: "application/pdf", Data: []byte("%PDF")}

	uc := NewComposerUsecase(templates)
	composed, err := uc.ComposeReply(context.Background(), &domain.AutoReplyRule{ID: "r1", TemplateID: "t1"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if composed.Media == nil || composed.Media.FileName != "catalog.pdf" {
		t.Errorf("Expected attachment to be resolved, got %+v", composed.Media)
	}
}

func TestComposeMenuSelection(t *testing.T) {
	templates := newMockTemplateRepo()
	templates.templates["t2"] = &domain.Template{ID: "t2", Name: "Opening hours", Content: "We open 9-5."}

	uc := NewComposerUsecase(templates)
	rule := &domain.AutoReplyRule{
		ID:      "menu",
		Options: []domain.NumberedOption{{Number: 1, ResponseTemplateID: "t2"}},
	}

	composed, err := uc.ComposeMenuSelection(context.Background(), rule, 1)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if composed.Text != "We open 9-5." {
		t.Errorf("Expected option template content, got %q", composed.Text)
	}

	if _, err := uc.ComposeMenuSelection(context.Background(), rule, 2); err == nil {
		t.Error("Expected error for out-of-range selection")
	}
	if _, err := uc.ComposeMenuSelection(context.Background(), rule, 0); err == nil {
		t.Error("Expected error for selection 0")
	}
}

func TestDetectMenuSelection(t *testing.T) {
	menu := &domain.AutoReplyRule{
		ID:       "menu",
		IsActive: true,
		Options: []domain.NumberedOption{
			{Number: 1, ResponseTemplateID: "t2"},
			{Number: 2, ResponseTemplateID: "t3"},
		},
	}
	plain := &domain.AutoReplyRule{ID: "plain", IsActive: true}
	rules := []*domain.AutoReplyRule{plain, menu}

	if rule, n, ok := DetectMenuSelection(rules, " 2 "); !ok || rule.ID != "menu" || n != 2 {
		t.Errorf("Expected menu selection 2, got rule=%v n=%d ok=%v", rule, n, ok)
	}
	if _, _, ok := DetectMenuSelection(rules, "3"); ok {
		t.Error("Expected no detection for out-of-range number")
	}
	if _, _, ok := DetectMenuSelection(rules, "two"); ok {
		t.Error("Expected no detection for non-numeric body")
	}
	if _, _, ok := DetectMenuSelection(rules, "0"); ok {
		t.Error("Expected no detection for zero")
	}
	if _, _, ok := DetectMenuSelection(rules, "-1"); ok {
		t.Error("Expected no detection for negative number")
	}
}

func TestDetectMenuSelection_SkipsInactive(t *testing.T) {
	inactive := &domain.AutoReplyRule{
		ID:      "off",
		Options: []domain.NumberedOption{{Number: 1, ResponseTemplateID: "t2"}},
	}
	if _, _, ok := DetectMenuSelection([]*domain.AutoReplyRule{inactive}, "1"); ok {
		t.Error("Expected inactive menu rule to be ignored")
	}
}

func TestDetectMenuSelection_FirstMenuWins(t *testing.T) {
	first := &domain.AutoReplyRule{
		ID: "first", IsActive: true,
		Options: []domain.NumberedOption{{Number: 1, ResponseTemplateID: "a"}},
	}
	second := &domain.AutoReplyRule{
		ID: "second", IsActive: true,
		Options: []domain.NumberedOption{{Number: 1, ResponseTemplateID: "b"}, {Number: 2, ResponseTemplateID: "c"}},
	}

	rule, _, ok := DetectMenuSelection([]*domain.AutoReplyRule{first, second}, "1")
	if !ok || rule.ID != "first" {
		t.Errorf("Expected earlier rule to win, got %v", rule)
	}

	// The number only fits the later menu.
	rule, _, ok = DetectMenuSelection([]*domain.AutoReplyRule{first, second}, "2")
	if !ok || rule.ID != "second" {
		t.Errorf("Expected later rule for selection 2, got %v", rule)
	}
}
