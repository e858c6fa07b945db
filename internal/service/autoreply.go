package service

import (
	"context"
	"log"
	"time"

	"github.com/anthropics/chat-autopilot/internal/biz/domain"
	"github.com/anthropics/chat-autopilot/internal/biz/usecase"
)

// AutoReplyService glues the rule engine to the dispatch pipeline. The
// registry hands it every inbound message; it decides and, when a rule fires,
// dispatches the reply.
type AutoReplyService struct {
	uc         *usecase.AutoReplyUsecase
	dispatcher *Dispatcher

	// Optional notification after a successful auto-reply.
	onSent func(accountID string, rule *domain.AutoReplyRule, result SendResult)
}

// NewAutoReplyService creates a new auto-reply service.
func NewAutoReplyService(uc *usecase.AutoReplyUsecase, dispatcher *Dispatcher) *AutoReplyService {
	return &AutoReplyService{uc: uc, dispatcher: dispatcher}
}

// OnReplySent registers the quick-reply-sent subscriber.
func (s *AutoReplyService) OnReplySent(fn func(accountID string, rule *domain.AutoReplyRule, result SendResult)) {
	s.onSent = fn
}

// HandleInbound implements registry.InboundProcessor. It never panics or
// blocks indefinitely: one bad message must not stall the account's stream.
func (s *AutoReplyService) HandleInbound(ctx context.Context, msg *domain.Message) {
	dec := s.uc.Decide(ctx, msg, time.Now())
	if dec == nil {
		return
	}

	res := s.dispatcher.SendQuickReply(ctx, msg.AccountID, msg.Sender, dec)
	if !res.Success {
		log.Printf("[AutoReply] rule %q reply to %s failed: %s", dec.Rule.Name, msg.Sender, res.Error)
		return
	}
	if dec.MenuSelection > 0 {
		log.Printf("[AutoReply] rule %q menu option %d sent to %s", dec.Rule.Name, dec.MenuSelection, msg.Sender)
	} else {
		log.Printf("[AutoReply] rule %q sent to %s", dec.Rule.Name, msg.Sender)
	}
	if s.onSent != nil {
		s.onSent(msg.AccountID, dec.Rule, res)
	}
}
