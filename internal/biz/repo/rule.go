package repo

import (
	"context"
	"time"

	"github.com/anthropics/chat-autopilot/internal/biz/domain"
)

// RuleRepo is the auto-reply rule store adapter interface.
// Responsible for rule persistence and per-rule trigger statistics (SQLite).
type RuleRepo interface {
	// Create stores a new rule at the end of its account's evaluation order.
	Create(ctx context.Context, rule *domain.AutoReplyRule) error

	// Update replaces a rule's fields, keeping its evaluation position.
	Update(ctx context.Context, rule *domain.AutoReplyRule) error

	// Delete removes a rule and its options.
	Delete(ctx context.Context, id string) error

	// GetAll lists an account's rules in evaluation (creation) order. An
	// empty accountID lists every account's rules.
	GetAll(ctx context.Context, accountID string) ([]*domain.AutoReplyRule, error)

	// GetByID gets one rule, nil if absent.
	GetByID(ctx context.Context, id string) (*domain.AutoReplyRule, error)

	// ToggleActive flips a rule's active flag.
	ToggleActive(ctx context.Context, id string, active bool) error

	// IncrementTriggered bumps the rule's trigger counter and records when.
	IncrementTriggered(ctx context.Context, id string, at time.Time) error

	// GetStats returns per-rule trigger statistics for an account, or for
	// every account when accountID is empty.
	GetStats(ctx context.Context, accountID string) ([]domain.RuleStats, error)

	// ReplaceAll swaps an account's whole rule set (import).
	ReplaceAll(ctx context.Context, accountID string, rules []*domain.AutoReplyRule) error

	// Close closes the underlying store.
	Close() error
}
