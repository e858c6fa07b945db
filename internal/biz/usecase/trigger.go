package usecase

import (
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/chat-autopilot/internal/biz/domain"
)

// Evaluate is the pure trigger decision: it reports whether rule fires for an
// inbound message at the given time. Checks short-circuit in order: time
// window, day of week, trigger condition. A returned error marks the rule as
// misconfigured for this message (the caller skips it, never the message
// loop).
func Evaluate(rule *domain.AutoReplyRule, msg *domain.Message, now time.Time) (bool, error) {
	if rule.Window != nil {
		ok, err := rule.Window.Contains(now)
		if err != nil {
			return false, fmt.Errorf("time window: %w", err)
		}
		if !ok {
			return false, nil
		}
	}

	if !rule.MatchesDay(now) {
		return false, nil
	}

	switch rule.Trigger.Kind {
	case domain.TriggerAll:
		return true, nil

	case domain.TriggerKeywords:
		keywords := rule.Trigger.Keywords()
		if len(keywords) == 0 {
			return false, fmt.Errorf("keyword trigger with empty pattern")
		}
		body := strings.ToLower(msg.Body)
		for _, k := range keywords {
			if strings.Contains(body, k) {
				return true, nil
			}
		}
		return false, nil

	case domain.TriggerSpecificUser:
		want := domain.DigitsOnly(rule.Trigger.Pattern)
		if want == "" {
			return false, fmt.Errorf("specific user trigger with empty phone pattern")
		}
		sender := domain.StripSuffix(msg.Sender)
		if sender == rule.Trigger.Pattern {
			return true, nil
		}
		return strings.Contains(domain.DigitsOnly(sender), want), nil

	default:
		return false, fmt.Errorf("unknown trigger kind %q", rule.Trigger.Kind)
	}
}
