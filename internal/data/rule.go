package data

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/anthropics/chat-autopilot/internal/biz/domain"
	"github.com/anthropics/chat-autopilot/internal/biz/repo"

	_ "modernc.org/sqlite"
)

// ruleRepo implements the rule store on SQLite.
type ruleRepo struct {
	db *sql.DB
}

// NewRuleRepo creates a new rule repository.
func NewRuleRepo(dbPath string) (repo.RuleRepo, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS rules (
			id TEXT PRIMARY KEY,
			account_id TEXT NOT NULL,
			name TEXT NOT NULL,
			is_active INTEGER NOT NULL DEFAULT 1,
			trigger_kind TEXT NOT NULL,
			trigger_pattern TEXT NOT NULL DEFAULT '',
			template_id TEXT NOT NULL,
			delay_seconds INTEGER NOT NULL DEFAULT 0,
			time_from TEXT NOT NULL DEFAULT '',
			time_to TEXT NOT NULL DEFAULT '',
			days_of_week TEXT NOT NULL DEFAULT '',
			position INTEGER NOT NULL,
			triggered_count INTEGER NOT NULL DEFAULT 0,
			last_triggered_at INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create rules table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS rule_options (
			rule_id TEXT NOT NULL,
			number INTEGER NOT NULL,
			response_template_id TEXT NOT NULL,
			PRIMARY KEY (rule_id, number)
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create rule_options table: %w", err)
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_rules_account_position ON rules(account_id, position)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	return &ruleRepo{db: db}, nil
}

// Create stores a new rule at the end of its account's evaluation order.
func (r *ruleRepo) Create(ctx context.Context, rule *domain.AutoReplyRule) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	var maxPos sql.NullInt64
	err = tx.QueryRowContext(ctx, `SELECT MAX(position) FROM rules WHERE account_id = ?`, rule.AccountID).Scan(&maxPos)
	if err != nil {
		return fmt.Errorf("failed to query max position: %w", err)
	}
	rule.Position = int(maxPos.Int64) + 1

	now := time.Now()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	if err := insertRule(ctx, tx, rule); err != nil {
		return err
	}
	if err := insertOptions(ctx, tx, rule); err != nil {
		return err
	}
	return tx.Commit()
}

// Update replaces a rule's fields, keeping its evaluation position.
func (r *ruleRepo) Update(ctx context.Context, rule *domain.AutoReplyRule) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	from, to := windowColumns(rule.Window)
	res, err := tx.ExecContext(ctx, `
		UPDATE rules SET name = ?, is_active = ?, trigger_kind = ?, trigger_pattern = ?,
			template_id = ?, delay_seconds = ?, time_from = ?, time_to = ?, days_of_week = ?, updated_at = ?
		WHERE id = ?
	`,
		rule.Name, boolToInt(rule.IsActive), string(rule.Trigger.Kind), rule.Trigger.Pattern,
		rule.TemplateID, rule.DelaySeconds, from, to, encodeDays(rule.Days), time.Now().Unix(),
		rule.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("rule %s not found", rule.ID)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM rule_options WHERE rule_id = ?`, rule.ID); err != nil {
		return fmt.Errorf("failed to clear options: %w", err)
	}
	if err := insertOptions(ctx, tx, rule); err != nil {
		return err
	}
	return tx.Commit()
}

// Delete removes a rule and its options.
func (r *ruleRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM rule_options WHERE rule_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete options: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM rules WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	return nil
}

// GetAll lists an account's rules in evaluation (creation) order. An empty
// accountID lists every account's rules.
func (r *ruleRepo) GetAll(ctx context.Context, accountID string) ([]*domain.AutoReplyRule, error) {
	query := `
		SELECT id, account_id, name, is_active, trigger_kind, trigger_pattern,
			template_id, delay_seconds, time_from, time_to, days_of_week, position, created_at, updated_at
		FROM rules`
	var args []any
	if accountID != "" {
		query += ` WHERE account_id = ?`
		args = append(args, accountID)
	}
	query += ` ORDER BY account_id ASC, position ASC`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var rules []*domain.AutoReplyRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rules: %w", err)
	}

	for _, rule := range rules {
		if err := r.loadOptions(ctx, rule); err != nil {
			return nil, err
		}
	}
	return rules, nil
}

// GetByID gets one rule, nil if absent.
func (r *ruleRepo) GetByID(ctx context.Context, id string) (*domain.AutoReplyRule, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, account_id, name, is_active, trigger_kind, trigger_pattern,
			template_id, delay_seconds, time_from, time_to, days_of_week, position, created_at, updated_at
		FROM rules
		WHERE id = ?
	`, id)

	rule, err := scanRule(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadOptions(ctx, rule); err != nil {
		return nil, err
	}
	return rule, nil
}

// ToggleActive flips a rule's active flag.
func (r *ruleRepo) ToggleActive(ctx context.Context, id string, active bool) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE rules SET is_active = ?, updated_at = ? WHERE id = ?
	`, boolToInt(active), time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to toggle rule: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("rule %s not found", id)
	}
	return nil
}

// IncrementTriggered bumps the rule's trigger counter and records when.
func (r *ruleRepo) IncrementTriggered(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE rules SET triggered_count = triggered_count + 1, last_triggered_at = ? WHERE id = ?
	`, at.Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to update stats: %w", err)
	}
	return nil
}

// GetStats returns per-rule trigger statistics for an account, or for every
// account when accountID is empty.
func (r *ruleRepo) GetStats(ctx context.Context, accountID string) ([]domain.RuleStats, error) {
	query := `
		SELECT id, triggered_count, last_triggered_at
		FROM rules`
	var args []any
	if accountID != "" {
		query += ` WHERE account_id = ?`
		args = append(args, accountID)
	}
	query += ` ORDER BY account_id ASC, position ASC`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query stats: %w", err)
	}
	defer rows.Close()

	var stats []domain.RuleStats
	for rows.Next() {
		var s domain.RuleStats
		var last int64
		if err := rows.Scan(&s.RuleID, &s.TriggeredCount, &last); err != nil {
			return nil, fmt.Errorf("failed to scan stats: %w", err)
		}
		if last > 0 {
			s.LastTriggeredAt = time.Unix(last, 0)
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// ReplaceAll swaps an account's whole rule set (import).
func (r *ruleRepo) ReplaceAll(ctx context.Context, accountID string, rules []*domain.AutoReplyRule) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM rule_options WHERE rule_id IN (SELECT id FROM rules WHERE account_id = ?)
	`, accountID); err != nil {
		return fmt.Errorf("failed to clear options: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM rules WHERE account_id = ?`, accountID); err != nil {
		return fmt.Errorf("failed to clear rules: %w", err)
	}

	now := time.Now()
	for i, rule := range rules {
		rule.AccountID = accountID
		rule.Position = i + 1
		if rule.CreatedAt.IsZero() {
			rule.CreatedAt = now
		}
		rule.UpdatedAt = now
		if err := insertRule(ctx, tx, rule); err != nil {
			return err
		}
		if err := insertOptions(ctx, tx, rule); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Close closes the database connection.
func (r *ruleRepo) Close() error {
	return r.db.Close()
}

func (r *ruleRepo) loadOptions(ctx context.Context, rule *domain.AutoReplyRule) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT number, response_template_id
		FROM rule_options
		WHERE rule_id = ?
		ORDER BY number ASC
	`, rule.ID)
	if err != nil {
		return fmt.Errorf("failed to load options: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var opt domain.NumberedOption
		if err := rows.Scan(&opt.Number, &opt.ResponseTemplateID); err != nil {
			return fmt.Errorf("failed to scan option: %w", err)
		}
		rule.Options = append(rule.Options, opt)
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*domain.AutoReplyRule, error) {
	var rule domain.AutoReplyRule
	var active int
	var kind, from, to, days string
	var createdAt, updatedAt int64
	err := row.Scan(
		&rule.ID, &rule.AccountID, &rule.Name, &active, &kind, &rule.Trigger.Pattern,
		&rule.TemplateID, &rule.DelaySeconds, &from, &to, &days, &rule.Position, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan rule: %w", err)
	}
	rule.IsActive = active != 0
	rule.Trigger.Kind = domain.TriggerKind(kind)
	if from != "" && to != "" {
		rule.Window = &domain.TimeWindow{From: from, To: to}
	}
	rule.Days = decodeDays(days)
	rule.CreatedAt = time.Unix(createdAt, 0)
	rule.UpdatedAt = time.Unix(updatedAt, 0)
	return &rule, nil
}

func insertRule(ctx context.Context, tx *sql.Tx, rule *domain.AutoReplyRule) error {
	from, to := windowColumns(rule.Window)
	_, err := tx.ExecContext(ctx, `
		INSERT INTO rules (id, account_id, name, is_active, trigger_kind, trigger_pattern,
			template_id, delay_seconds, time_from, time_to, days_of_week, position, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rule.ID, rule.AccountID, rule.Name, boolToInt(rule.IsActive), string(rule.Trigger.Kind), rule.Trigger.Pattern,
		rule.TemplateID, rule.DelaySeconds, from, to, encodeDays(rule.Days), rule.Position,
		rule.CreatedAt.Unix(), rule.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert rule: %w", err)
	}
	return nil
}

func insertOptions(ctx context.Context, tx *sql.Tx, rule *domain.AutoReplyRule) error {
	for _, opt := range rule.Options {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO rule_options (rule_id, number, response_template_id)
			VALUES (?, ?, ?)
		`, rule.ID, opt.Number, opt.ResponseTemplateID)
		if err != nil {
			return fmt.Errorf("failed to insert option %d: %w", opt.Number, err)
		}
	}
	return nil
}

func windowColumns(w *domain.TimeWindow) (string, string) {
	if w == nil {
		return "", ""
	}
	return w.From, w.To
}

func encodeDays(days []time.Weekday) string {
	if len(days) == 0 {
		return ""
	}
	parts := make([]string, len(days))
	for i, d := range days {
		parts[i] = strconv.Itoa(int(d))
	}
	return strings.Join(parts, ",")
}

func decodeDays(s string) []time.Weekday {
	if s == "" {
		return nil
	}
	var days []time.Weekday
	for _, p := range strings.Split(s, ",") {
		if n, err := strconv.Atoi(strings.TrimSpace(p)); err == nil {
			days = append(days, time.Weekday(n))
		}
	}
	return days
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
