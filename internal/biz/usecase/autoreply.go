package usecase

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/anthropics/chat-autopilot/internal/biz/domain"
	"github.com/anthropics/chat-autopilot/internal/biz/repo"
)

// AutoReplyUsecase decides whether, what and with which rule to reply to an
// inbound message. It reads a fresh rule snapshot per message.
type AutoReplyUsecase struct {
	rules    repo.RuleRepo
	composer *ComposerUsecase
}

// NewAutoReplyUsecase creates a new auto-reply usecase.
func NewAutoReplyUsecase(rules repo.RuleRepo, composer *ComposerUsecase) *AutoReplyUsecase {
	return &AutoReplyUsecase{rules: rules, composer: composer}
}

// ReplyDecision is a resolved reply for one inbound message.
type ReplyDecision struct {
	Rule          *domain.AutoReplyRule
	Composed      *Composed
	MenuSelection int // 0 for a normal trigger match
}

// Decide evaluates the account's active rules against msg. At most one rule
// fires; menu-answer detection runs first and short-circuits normal
// evaluation. A nil decision means no reply.
//
// Failures never escape as errors that would stall the message loop: store
// read failures fail closed (no rule matches), per-rule config problems skip
// only that rule.
func (uc *AutoReplyUsecase) Decide(ctx context.Context, msg *domain.Message, now time.Time) *ReplyDecision {
	all, err := uc.rules.GetAll(ctx, msg.AccountID)
	if err != nil {
		log.Printf("[AutoReply] rule snapshot failed for %s, failing closed: %v", msg.AccountID, err)
		return nil
	}

	active := all[:0:0]
	for _, r := range all {
		if r.IsActive {
			active = append(active, r)
		}
	}
	if len(active) == 0 {
		return nil
	}

	// Menu answers take priority over normal trigger evaluation. A menu rule
	// whose selected option cannot be composed (missing template, say) is
	// skipped for this message and the remaining rules evaluate normally.
	var menuSkipped *domain.AutoReplyRule
	if rule, n, ok := DetectMenuSelection(active, msg.Body); ok {
		composed, err := uc.composer.ComposeMenuSelection(ctx, rule, n)
		if err == nil {
			return &ReplyDecision{Rule: rule, Composed: composed, MenuSelection: n}
		}
		log.Printf("[AutoReply] rule %q menu selection %d skipped: %v", rule.Name, n, err)
		menuSkipped = rule
	}

	for _, rule := range active {
		if rule == menuSkipped {
			continue
		}
		fire, err := Evaluate(rule, msg, now)
		if err != nil {
			log.Printf("[AutoReply] rule %q skipped: %v", rule.Name, err)
			continue
		}
		if !fire {
			continue
		}
		composed, err := uc.composer.ComposeReply(ctx, rule)
		if err != nil {
			log.Printf("[AutoReply] rule %q skipped: %v", rule.Name, err)
			continue
		}
		return &ReplyDecision{Rule: rule, Composed: composed}
	}
	return nil
}

// ValidateRule checks a rule before it is persisted.
func ValidateRule(rule *domain.AutoReplyRule) error {
	if problems := rule.Validate(); len(problems) > 0 {
		return fmt.Errorf("invalid rule: %s", problems[0])
	}
	return nil
}
