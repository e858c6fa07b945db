package domain

import (
	"strings"
	"sync"
	"time"
)

// Direction marks a message as inbound or outbound relative to the account.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// Message represents a message entity. Immutable once recorded.
type Message struct {
	ID        string    `json:"id"`
	AccountID string    `json:"account_id"`
	Sender    string    `json:"sender"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
	Direction Direction `json:"direction"`
}

// SenderDigits returns the sender identifier with the network suffix removed
// and all non-digit characters stripped. Used for tolerant phone comparison.
func (m *Message) SenderDigits() string {
	return DigitsOnly(StripSuffix(m.Sender))
}

// StripSuffix removes the network address suffix ("123@c.us" -> "123").
func StripSuffix(id string) string {
	if i := strings.IndexByte(id, '@'); i >= 0 {
		return id[:i]
	}
	return id
}

// DigitsOnly strips every non-digit character from s.
func DigitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeRecipient formats a raw recipient for the transport: non-digits are
// stripped and the network suffix appended. Input that already carries a
// suffix is passed through unchanged.
func NormalizeRecipient(raw, suffix string) string {
	if strings.ContainsRune(raw, '@') {
		return raw
	}
	return DigitsOnly(raw) + suffix
}

// MessageLog is a bounded in-memory log of messages for the registry's
// lifetime. When capacity is exceeded the oldest entries are dropped.
type MessageLog struct {
	mu  sync.RWMutex
	cap int
	buf []Message
}

// NewMessageLog creates a log holding at most capacity messages.
func NewMessageLog(capacity int) *MessageLog {
	if capacity <= 0 {
		capacity = 1000
	}
	return &MessageLog{cap: capacity}
}

// Append records a message.
func (l *MessageLog) Append(msg Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf = append(l.buf, msg)
	if len(l.buf) > l.cap {
		l.buf = l.buf[len(l.buf)-l.cap:]
	}
}

// Recent returns up to limit most recent messages, oldest first. A limit of 0
// returns everything retained.
func (l *MessageLog) Recent(limit int) []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	start := 0
	if limit > 0 && len(l.buf) > limit {
		start = len(l.buf) - limit
	}
	out := make([]Message, len(l.buf)-start)
	copy(out, l.buf[start:])
	return out
}

// RecentFor returns up to limit most recent messages of one account, oldest
// first. An empty accountID matches every account.
func (l *MessageLog) RecentFor(accountID string, limit int) []Message {
	if accountID == "" {
		return l.Recent(limit)
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Message
	for _, m := range l.buf {
		if m.AccountID == accountID {
			out = append(out, m)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// Len returns the number of retained messages.
func (l *MessageLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.buf)
}
