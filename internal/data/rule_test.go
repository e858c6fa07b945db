package data

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/anthropics/chat-autopilot/internal/biz/domain"
	"github.com/anthropics/chat-autopilot/internal/biz/repo"
)

func newTestRuleRepo(t *testing.T) repo.RuleRepo {
	t.Helper()
	r, err := NewRuleRepo(filepath.Join(t.TempDir(), "rules.db"))
	if err != nil {
		t.Fatalf("Failed to open repo: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func sampleRule(id, accountID string) *domain.AutoReplyRule {
	return &domain.AutoReplyRule{
		ID:         id,
		AccountID:  accountID,
		Name:       "Rule " + id,
		IsActive:   true,
		Trigger:    domain.Trigger{Kind: domain.TriggerKeywords, Pattern: "price, hours"},
		TemplateID: "t1",
	}
}

func TestRuleRepo_CreateAndGet(t *testing.T) {
	r := newTestRuleRepo(t)
	ctx := context.Background()

	rule := sampleRule("r1", "acc1")
	rule.DelaySeconds = 15
	rule.Window = &domain.TimeWindow{From: "09:00", To: "17:00"}
	rule.Days = []time.Weekday{time.Monday, time.Friday}
	rule.Options = []domain.NumberedOption{
		{Number: 1, ResponseTemplateID: "t2"},
		{Number: 2, ResponseTemplateID: "t3"},
	}

	if err := r.Create(ctx, rule); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := r.GetByID(ctx, "r1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got == nil {
		t.Fatal("Expected rule, got nil")
	}
	if got.Name != "Rule r1" || got.AccountID != "acc1" {
		t.Errorf("Unexpected rule fields: %+v", got)
	}
	if got.Trigger.Kind != domain.TriggerKeywords || got.Trigger.Pattern != "price, hours" {
		t.Errorf("Trigger not preserved: %+v", got.Trigger)
	}
	if got.DelaySeconds != 15 {
		t.Errorf("Expected delay 15, got %d", got.DelaySeconds)
	}
	if got.Window == nil || got.Window.From != "09:00" || got.Window.To != "17:00" {
		t.Errorf("Window not preserved: %+v", got.Window)
	}
	if len(got.Days) != 2 || got.Days[0] != time.Monday || got.Days[1] != time.Friday {
		t.Errorf("Days not preserved: %v", got.Days)
	}
	if len(got.Options) != 2 || got.Options[0].ResponseTemplateID != "t2" || got.Options[1].Number != 2 {
		t.Errorf("Options not preserved: %v", got.Options)
	}
}

func TestRuleRepo_NilWindowRoundTrip(t *testing.T) {
	r := newTestRuleRepo(t)
	ctx := context.Background()

	if err := r.Create(ctx, sampleRule("r1", "acc1")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	got, err := r.GetByID(ctx, "r1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Window != nil {
		t.Errorf("Expected nil window, got %+v", got.Window)
	}
	if got.Days != nil {
		t.Errorf("Expected no day filter, got %v", got.Days)
	}
}

func TestRuleRepo_GetByID_Absent(t *testing.T) {
	r := newTestRuleRepo(t)

	got, err := r.GetByID(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("Expected nil for absent rule, got %+v", got)
	}
}

func TestRuleRepo_PositionsAssignedInOrder(t *testing.T) {
	r := newTestRuleRepo(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := r.Create(ctx, sampleRule(id, "acc1")); err != nil {
			t.Fatalf("Create %s failed: %v", id, err)
		}
	}
	// Other accounts get their own position sequence.
	if err := r.Create(ctx, sampleRule("z", "acc2")); err != nil {
		t.Fatalf("Create z failed: %v", err)
	}

	rules, err := r.GetAll(ctx, "acc1")
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if len(rules) != 3 {
		t.Fatalf("Expected 3 rules, got %d", len(rules))
	}
	for i, id := range []string{"a", "b", "c"} {
		if rules[i].ID != id {
			t.Errorf("Position %d: expected %s, got %s", i, id, rules[i].ID)
		}
		if rules[i].Position != i+1 {
			t.Errorf("Rule %s: expected position %d, got %d", id, i+1, rules[i].Position)
		}
	}
}

func TestRuleRepo_UpdateKeepsPosition(t *testing.T) {
	r := newTestRuleRepo(t)
	ctx := context.Background()

	first := sampleRule("a", "acc1")
	second := sampleRule("b", "acc1")
	if err := r.Create(ctx, first); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := r.Create(ctx, second); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	first.Name = "Renamed"
	first.Options = []domain.NumberedOption{{Number: 1, ResponseTemplateID: "t9"}}
	if err := r.Update(ctx, first); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	rules, err := r.GetAll(ctx, "acc1")
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if rules[0].ID != "a" || rules[0].Name != "Renamed" {
		t.Errorf("Expected updated rule to keep first position, got %+v", rules[0])
	}
	if len(rules[0].Options) != 1 || rules[0].Options[0].ResponseTemplateID != "t9" {
		t.Errorf("Expected options replaced, got %v", rules[0].Options)
	}
}

func TestRuleRepo_UpdateAbsent(t *testing.T) {
	r := newTestRuleRepo(t)
	if err := r.Update(context.Background(), sampleRule("ghost", "acc1")); err == nil {
		t.Error("Expected error updating absent rule")
	}
}

func TestRuleRepo_Delete(t *testing.T) {
	r := newTestRuleRepo(t)
	ctx := context.Background()

	rule := sampleRule("r1", "acc1")
	rule.Options = []domain.NumberedOption{{Number: 1, ResponseTemplateID: "t2"}}
	if err := r.Create(ctx, rule); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := r.Delete(ctx, "r1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	got, err := r.GetByID(ctx, "r1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got != nil {
		t.Error("Expected rule gone after delete")
	}
}

func TestRuleRepo_ToggleActive(t *testing.T) {
	r := newTestRuleRepo(t)
	ctx := context.Background()

	if err := r.Create(ctx, sampleRule("r1", "acc1")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := r.ToggleActive(ctx, "r1", false); err != nil {
		t.Fatalf("ToggleActive failed: %v", err)
	}

	got, _ := r.GetByID(ctx, "r1")
	if got.IsActive {
		t.Error("Expected rule deactivated")
	}

	if err := r.ToggleActive(ctx, "ghost", true); err == nil {
		t.Error("Expected error toggling absent rule")
	}
}

func TestRuleRepo_GetAllEveryAccount(t *testing.T) {
	r := newTestRuleRepo(t)
	ctx := context.Background()

	for _, spec := range []struct{ id, account string }{
		{"r1", "acc1"}, {"r2", "acc2"}, {"r3", "acc1"},
	} {
		if err := r.Create(ctx, sampleRule(spec.id, spec.account)); err != nil {
			t.Fatalf("Create %s failed: %v", spec.id, err)
		}
	}

	rules, err := r.GetAll(ctx, "")
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if len(rules) != 3 {
		t.Fatalf("Expected every account's rules, got %d", len(rules))
	}
	// Grouped per account, evaluation order within each.
	if rules[0].ID != "r1" || rules[1].ID != "r3" || rules[2].ID != "r2" {
		t.Errorf("Unexpected order: %s, %s, %s", rules[0].ID, rules[1].ID, rules[2].ID)
	}

	stats, err := r.GetStats(ctx, "")
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	if len(stats) != 3 {
		t.Errorf("Expected stats for every account, got %d", len(stats))
	}
}

func TestRuleRepo_Stats(t *testing.T) {
	r := newTestRuleRepo(t)
	ctx := context.Background()

	if err := r.Create(ctx, sampleRule("r1", "acc1")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := r.Create(ctx, sampleRule("r2", "acc1")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	at := time.Now().Truncate(time.Second)
	if err := r.IncrementTriggered(ctx, "r1", at); err != nil {
		t.Fatalf("IncrementTriggered failed: %v", err)
	}
	if err := r.IncrementTriggered(ctx, "r1", at); err != nil {
		t.Fatalf("IncrementTriggered failed: %v", err)
	}

	stats, err := r.GetStats(ctx, "acc1")
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("Expected stats for 2 rules, got %d", len(stats))
	}
	if stats[0].RuleID != "r1" || stats[0].TriggeredCount != 2 {
		t.Errorf("Expected r1 triggered twice, got %+v", stats[0])
	}
	if stats[0].LastTriggeredAt.IsZero() {
		t.Error("Expected last triggered timestamp recorded")
	}
	if stats[1].TriggeredCount != 0 {
		t.Errorf("Expected r2 untouched, got %+v", stats[1])
	}
	if !stats[1].LastTriggeredAt.IsZero() {
		t.Error("Expected zero timestamp for never-triggered rule")
	}
}

func TestRuleRepo_ReplaceAll(t *testing.T) {
	r := newTestRuleRepo(t)
	ctx := context.Background()

	if err := r.Create(ctx, sampleRule("old1", "acc1")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := r.Create(ctx, sampleRule("keep", "acc2")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	imported := []*domain.AutoReplyRule{sampleRule("new1", "acc1"), sampleRule("new2", "acc1")}
	imported[1].Options = []domain.NumberedOption{{Number: 1, ResponseTemplateID: "t2"}}
	if err := r.ReplaceAll(ctx, "acc1", imported); err != nil {
		t.Fatalf("ReplaceAll failed: %v", err)
	}

	rules, err := r.GetAll(ctx, "acc1")
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if len(rules) != 2 || rules[0].ID != "new1" || rules[1].ID != "new2" {
		t.Errorf("Expected imported set in order, got %v", rules)
	}
	if len(rules[1].Options) != 1 {
		t.Errorf("Expected imported options, got %v", rules[1].Options)
	}

	// Other accounts untouched.
	other, err := r.GetAll(ctx, "acc2")
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if len(other) != 1 || other[0].ID != "keep" {
		t.Errorf("Expected acc2 rules untouched, got %v", other)
	}
}
