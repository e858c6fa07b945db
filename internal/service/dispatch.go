package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/anthropics/chat-autopilot/internal/biz/domain"
	"github.com/anthropics/chat-autopilot/internal/biz/repo"
	"github.com/anthropics/chat-autopilot/internal/biz/usecase"
	"github.com/anthropics/chat-autopilot/internal/registry"
)

// SendResult is the structured outcome of one send attempt. Failures are
// reported, never retried here; the caller decides whether to retry.
type SendResult struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
	Recipient string `json:"recipient,omitempty"`
	AccountID string `json:"account_id,omitempty"`
}

// DispatchConfig tunes the pipeline's pacing.
type DispatchConfig struct {
	// NetworkSuffix is appended to digits-only recipients ("@c.us").
	NetworkSuffix string
	// BulkDelay paces successive recipients of a bulk send.
	BulkDelay time.Duration
	// AccountDelay paces successive accounts of a multi-account send.
	AccountDelay time.Duration
}

// Dispatcher serializes outbound sends per account and reports structured
// results upward.
type Dispatcher struct {
	reg   *registry.Registry
	rules repo.RuleRepo
	cfg   DispatchConfig
}

// NewDispatcher creates a new dispatch pipeline.
func NewDispatcher(reg *registry.Registry, rules repo.RuleRepo, cfg DispatchConfig) *Dispatcher {
	if cfg.NetworkSuffix == "" {
		cfg.NetworkSuffix = "@c.us"
	}
	return &Dispatcher{reg: reg, rules: rules, cfg: cfg}
}

// Send delivers one message to one recipient through one account.
func (d *Dispatcher) Send(ctx context.Context, accountID, to, text string, media *domain.Media) SendResult {
	chatID := domain.NormalizeRecipient(to, d.cfg.NetworkSuffix)
	msgID, err := d.reg.Send(ctx, accountID, chatID, text, media)
	if err != nil {
		return SendResult{Success: false, Error: err.Error(), Recipient: to, AccountID: accountID}
	}
	return SendResult{Success: true, MessageID: msgID, Recipient: to, AccountID: accountID}
}

// SendBulk delivers the same content to each recipient sequentially, pausing
// between recipients to avoid provider throttling. A failed recipient is
// recorded and the batch continues; results has one entry per recipient.
func (d *Dispatcher) SendBulk(ctx context.Context, accountID string, recipients []string, text string, media *domain.Media) []SendResult {
	results := make([]SendResult, 0, len(recipients))
	for i, to := range recipients {
		if i > 0 {
			if err := sleepCtx(ctx, d.cfg.BulkDelay); err != nil {
				results = append(results, SendResult{Success: false, Error: err.Error(), Recipient: to, AccountID: accountID})
				continue
			}
		}
		results = append(results, d.Send(ctx, accountID, to, text, media))
	}
	return results
}

// SendMultiAccount delivers the same content to one recipient from several
// accounts sequentially, with a longer pause between accounts. Partial
// failures are collected per account.
func (d *Dispatcher) SendMultiAccount(ctx context.Context, accountIDs []string, to, text string, media *domain.Media) []SendResult {
	results := make([]SendResult, 0, len(accountIDs))
	for i, accountID := range accountIDs {
		if i > 0 {
			if err := sleepCtx(ctx, d.cfg.AccountDelay); err != nil {
				results = append(results, SendResult{Success: false, Error: err.Error(), Recipient: to, AccountID: accountID})
				continue
			}
		}
		results = append(results, d.Send(ctx, accountID, to, text, media))
	}
	return results
}

// SendQuickReply applies the rule's configured delay, sends the composed
// reply back to the sender, and on success bumps the rule's statistics.
func (d *Dispatcher) SendQuickReply(ctx context.Context, accountID, to string, dec *usecase.ReplyDecision) SendResult {
	if delay := time.Duration(dec.Rule.DelaySeconds) * time.Second; delay > 0 {
		if err := sleepCtx(ctx, delay); err != nil {
			return SendResult{Success: false, Error: err.Error(), Recipient: to, AccountID: accountID}
		}
	}

	res := d.Send(ctx, accountID, to, dec.Composed.Text, dec.Composed.Media)
	if res.Success {
		if err := d.rules.IncrementTriggered(ctx, dec.Rule.ID, time.Now()); err != nil {
			log.Printf("[Dispatch] stats update for rule %s: %v", dec.Rule.ID, err)
		}
	}
	return res
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("dispatch cancelled: %w", ctx.Err())
	case <-t.C:
		return nil
	}
}
