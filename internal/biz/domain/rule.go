package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TriggerKind is the closed set of trigger variants.
type TriggerKind string

const (
	TriggerAll          TriggerKind = "all"
	TriggerKeywords     TriggerKind = "keywords"
	TriggerSpecificUser TriggerKind = "specific_user"
)

// Valid reports whether the kind is a known variant.
func (k TriggerKind) Valid() bool {
	switch k {
	case TriggerAll, TriggerKeywords, TriggerSpecificUser:
		return true
	}
	return false
}

// Trigger is the condition part of a rule. Pattern holds comma-separated
// keywords for TriggerKeywords and a phone identifier for TriggerSpecificUser;
// it is unused for TriggerAll.
type Trigger struct {
	Kind    TriggerKind `json:"kind"`
	Pattern string      `json:"pattern,omitempty"`
}

// Keywords returns the trimmed, lower-cased, non-empty keywords of the
// pattern.
func (t Trigger) Keywords() []string {
	var out []string
	for _, k := range strings.Split(t.Pattern, ",") {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			out = append(out, k)
		}
	}
	return out
}

// TimeWindow restricts a rule to a daily interval. From and To are "HH:MM"
// strings; a From later than To describes an overnight window. A nil window
// on the rule means unrestricted.
type TimeWindow struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// MinuteOfDay parses an "HH:MM" string into minutes since midnight.
func MinuteOfDay(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h*60 + m, nil
}

// Contains reports whether t falls inside the window. Boundaries are
// inclusive on both ends; an overnight window (From > To) matches times at or
// after From and times at or before To.
func (w *TimeWindow) Contains(t time.Time) (bool, error) {
	from, err := MinuteOfDay(w.From)
	if err != nil {
		return false, err
	}
	to, err := MinuteOfDay(w.To)
	if err != nil {
		return false, err
	}
	cur := t.Hour()*60 + t.Minute()
	if from <= to {
		return cur >= from && cur <= to, nil
	}
	return cur >= from || cur <= to, nil
}

// NumberedOption is one entry of a menu-mode rule. Selecting Number sends the
// content of ResponseTemplateID.
type NumberedOption struct {
	Number             int    `json:"number"`
	ResponseTemplateID string `json:"response_template_id"`
}

// MaxDelaySeconds bounds the per-rule reply delay.
const MaxDelaySeconds = 300

// AutoReplyRule is a stored condition-to-response mapping evaluated against
// each inbound message of its account. Rules are independent of each other;
// a non-empty Options list puts the rule into menu mode.
type AutoReplyRule struct {
	ID           string           `json:"id"`
	AccountID    string           `json:"account_id"`
	Name         string           `json:"name"`
	IsActive     bool             `json:"is_active"`
	Trigger      Trigger          `json:"trigger"`
	TemplateID   string           `json:"template_id"`
	DelaySeconds int              `json:"delay_seconds"`
	Window       *TimeWindow      `json:"window,omitempty"` // nil => unrestricted
	Days         []time.Weekday   `json:"days,omitempty"`   // empty => unrestricted
	Options      []NumberedOption `json:"options,omitempty"`
	Position     int              `json:"position"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// IsMenu reports whether the rule is in menu mode.
func (r *AutoReplyRule) IsMenu() bool {
	return len(r.Options) > 0
}

// MatchesDay reports whether the day filter admits t.
func (r *AutoReplyRule) MatchesDay(t time.Time) bool {
	if len(r.Days) == 0 {
		return true
	}
	for _, d := range r.Days {
		if d == t.Weekday() {
			return true
		}
	}
	return false
}

// Validate returns the list of problems that make the rule unusable.
// An empty result means the rule is well-formed.
func (r *AutoReplyRule) Validate() []string {
	var problems []string
	if strings.TrimSpace(r.Name) == "" {
		problems = append(problems, "rule name is required")
	}
	if r.TemplateID == "" {
		problems = append(problems, "template is required")
	}
	if !r.Trigger.Kind.Valid() {
		problems = append(problems, fmt.Sprintf("unknown trigger kind %q", r.Trigger.Kind))
	}
	if r.Trigger.Kind == TriggerKeywords && len(r.Trigger.Keywords()) == 0 {
		problems = append(problems, "keywords are required for keyword trigger")
	}
	if r.Trigger.Kind == TriggerSpecificUser && DigitsOnly(r.Trigger.Pattern) == "" {
		problems = append(problems, "user phone number is required for specific user trigger")
	}
	if r.DelaySeconds < 0 || r.DelaySeconds > MaxDelaySeconds {
		problems = append(problems, fmt.Sprintf("delay must be between 0 and %d seconds", MaxDelaySeconds))
	}
	if r.Window != nil {
		if _, err := MinuteOfDay(r.Window.From); err != nil {
			problems = append(problems, err.Error())
		}
		if _, err := MinuteOfDay(r.Window.To); err != nil {
			problems = append(problems, err.Error())
		}
	}
	for i, opt := range r.Options {
		if opt.Number != i+1 {
			problems = append(problems, fmt.Sprintf("option %d is numbered %d, options must be 1..n in order", i+1, opt.Number))
		}
		if opt.ResponseTemplateID == "" {
			problems = append(problems, fmt.Sprintf("option %d has no response template", opt.Number))
		}
	}
	for _, d := range r.Days {
		if d < time.Sunday || d > time.Saturday {
			problems = append(problems, fmt.Sprintf("invalid day of week %d", d))
		}
	}
	return problems
}

// RuleStats tracks how often a rule has fired. TriggeredCount only ever
// increments, once per successful dispatch attributable to the rule.
type RuleStats struct {
	RuleID          string    `json:"rule_id"`
	TriggeredCount  int64     `json:"triggered_count"`
	LastTriggeredAt time.Time `json:"last_triggered_at"`
}

// StatsSummary aggregates an account's rule set.
type StatsSummary struct {
	Total    int `json:"total"`
	Active   int `json:"active"`
	Inactive int `json:"inactive"`
}

// Summarize builds a StatsSummary over a rule set.
func Summarize(rules []*AutoReplyRule) StatsSummary {
	s := StatsSummary{Total: len(rules)}
	for _, r := range rules {
		if r.IsActive {
			s.Active++
		} else {
			s.Inactive++
		}
	}
	return s
}
