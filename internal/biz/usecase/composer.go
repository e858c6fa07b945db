package usecase

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/anthropics/chat-autopilot/internal/biz/domain"
	"github.com/anthropics/chat-autopilot/internal/biz/repo"
)

// MenuHeader introduces the numbered options of a menu-mode reply.
const MenuHeader = "Please select an option:"

// ComposerUsecase resolves a firing rule to final outbound content.
type ComposerUsecase struct {
	templates repo.TemplateRepo
}

// NewComposerUsecase creates a new composer usecase.
func NewComposerUsecase(templates repo.TemplateRepo) *ComposerUsecase {
	return &ComposerUsecase{templates: templates}
}

// Composed is the final outbound content for one reply.
type Composed struct {
	Text  string
	Media *domain.Media
}

// ComposeReply builds the outbound text for a firing rule: the template
// content verbatim, plus the numbered-option enumeration when the rule is in
// menu mode. An option's label is the name of its response template.
func (uc *ComposerUsecase) ComposeReply(ctx context.Context, rule *domain.AutoReplyRule) (*Composed, error) {
	tpl, err := uc.templates.GetByID(ctx, rule.TemplateID)
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	if tpl == nil {
		return nil, fmt.Errorf("template %s not found", rule.TemplateID)
	}

	media, err := uc.resolveAttachment(ctx, tpl)
	if err != nil {
		return nil, err
	}

	if !rule.IsMenu() {
		return &Composed{Text: tpl.Content, Media: media}, nil
	}

	var b strings.Builder
	b.WriteString(tpl.Content)
	b.WriteString("\n\n")
	b.WriteString(MenuHeader)
	for _, opt := range rule.Options {
		label, err := uc.optionLabel(ctx, opt)
		if err != nil {
			return nil, err
		}
		b.WriteString(fmt.Sprintf("\n%d. %s", opt.Number, label))
	}
	return &Composed{Text: b.String(), Media: media}, nil
}

// ComposeMenuSelection builds the reply for a selected option.
func (uc *ComposerUsecase) ComposeMenuSelection(ctx context.Context, rule *domain.AutoReplyRule, selection int) (*Composed, error) {
	if selection < 1 || selection > len(rule.Options) {
		return nil, fmt.Errorf("selection %d out of range 1..%d", selection, len(rule.Options))
	}
	opt := rule.Options[selection-1]
	tpl, err := uc.templates.GetByID(ctx, opt.ResponseTemplateID)
	if err != nil {
		return nil, fmt.Errorf("get response template: %w", err)
	}
	if tpl == nil {
		return nil, fmt.Errorf("response template %s not found", opt.ResponseTemplateID)
	}
	media, err := uc.resolveAttachment(ctx, tpl)
	if err != nil {
		return nil, err
	}
	return &Composed{Text: tpl.Content, Media: media}, nil
}

func (uc *ComposerUsecase) optionLabel(ctx context.Context, opt domain.NumberedOption) (string, error) {
	tpl, err := uc.templates.GetByID(ctx, opt.ResponseTemplateID)
	if err != nil {
		return "", fmt.Errorf("get option template: %w", err)
	}
	if tpl == nil {
		return "", fmt.Errorf("option %d references missing template %s", opt.Number, opt.ResponseTemplateID)
	}
	return tpl.Name, nil
}

func (uc *ComposerUsecase) resolveAttachment(ctx context.Context, tpl *domain.Template) (*domain.Media, error) {
	if tpl.AttachmentName == "" {
		return nil, nil
	}
	media, err := uc.templates.GetAttachment(ctx, tpl.ID)
	if err != nil {
		return nil, fmt.Errorf("get attachment: %w", err)
	}
	return media, nil
}

// DetectMenuSelection checks whether an inbound body is a numeric answer to a
// pending menu. It returns the first active menu-mode rule, in rule order,
// whose option count admits the number.
//
// Selection is re-derived per message instead of tracking per-conversation
// state, so two open menus with overlapping option ranges are ambiguous and
// the earlier rule wins.
func DetectMenuSelection(rules []*domain.AutoReplyRule, body string) (*domain.AutoReplyRule, int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(body))
	if err != nil || n < 1 {
		return nil, 0, false
	}
	for _, r := range rules {
		if r.IsActive && r.IsMenu() && n <= len(r.Options) {
			return r, n, true
		}
	}
	return nil, 0, false
}
