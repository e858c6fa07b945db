// Package transport provides an in-process transport driver implementing the
// repo.Driver contract. It backs tests and the demo entrypoint; production
// deployments plug in a real network driver instead.
package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/anthropics/chat-autopilot/internal/biz/domain"
	"github.com/anthropics/chat-autopilot/internal/biz/repo"
)

// MemoryNetwork is a hub of in-process drivers keyed by account id. It lets
// callers reach into an account's driver to script inbound traffic and
// failures.
type MemoryNetwork struct {
	mu      sync.Mutex
	drivers map[string]*MemoryDriver

	// AutoApprove makes Connect emit ready right after the pairing token.
	// When false the flow parks in awaiting_scan until Scan is called.
	AutoApprove bool

	// FailAuth lists accounts whose pairing is rejected.
	FailAuth map[string]bool
}

// NewMemoryNetwork creates a hub whose accounts authenticate immediately.
func NewMemoryNetwork() *MemoryNetwork {
	return &MemoryNetwork{
		drivers:     make(map[string]*MemoryDriver),
		AutoApprove: true,
		FailAuth:    make(map[string]bool),
	}
}

// Factory returns the repo.DriverFactory creating drivers on this hub.
func (n *MemoryNetwork) Factory() repo.DriverFactory {
	return func(accountID string, handler repo.DriverHandler) (repo.Driver, error) {
		d := &MemoryDriver{
			net:       n,
			accountID: accountID,
			handler:   handler,
			failSend:  make(map[string]string),
			history:   make(map[string][]repo.InboundMessage),
		}
		n.mu.Lock()
		n.drivers[accountID] = d
		n.mu.Unlock()
		return d, nil
	}
}

// Driver returns the live driver of an account, nil if absent.
func (n *MemoryNetwork) Driver(accountID string) *MemoryDriver {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.drivers[accountID]
}

// SentMessage records one outbound send observed by the fake network.
type SentMessage struct {
	ID     string
	ChatID string
	Text   string
	Media  *domain.Media
}

// MemoryDriver is one account's fake transport handle.
type MemoryDriver struct {
	net       *MemoryNetwork
	accountID string
	handler   repo.DriverHandler

	mu        sync.Mutex
	connected bool
	sent      []SentMessage
	failSend  map[string]string // chatID -> injected error
	chats     []repo.Chat
	history   map[string][]repo.InboundMessage
}

// Connect runs the scripted authentication flow.
func (d *MemoryDriver) Connect(ctx context.Context) error {
	token := fmt.Sprintf("pair-%s-%s", d.accountID, uuid.NewString()[:8])
	d.handler.OnQR(token)

	if d.net.FailAuth[d.accountID] {
		d.handler.OnAuthFailure("pairing rejected")
		return nil
	}
	if d.net.AutoApprove {
		d.markReady()
	}
	return nil
}

// Scan simulates the user scanning the pairing token.
func (d *MemoryDriver) Scan() {
	d.markReady()
}

func (d *MemoryDriver) markReady() {
	d.mu.Lock()
	d.connected = true
	d.mu.Unlock()
	d.handler.OnReady()
}

// SendMessage implements repo.Driver.
func (d *MemoryDriver) SendMessage(ctx context.Context, chatID, text string, media *domain.Media) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		return "", fmt.Errorf("transport handle for %s is gone", d.accountID)
	}
	if reason, ok := d.failSend[chatID]; ok {
		return "", fmt.Errorf("%s", reason)
	}
	id := uuid.NewString()
	d.sent = append(d.sent, SentMessage{ID: id, ChatID: chatID, Text: text, Media: media})
	d.rememberChat(chatID)
	return id, nil
}

// GetChats implements repo.Driver.
func (d *MemoryDriver) GetChats(ctx context.Context) ([]repo.Chat, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		return nil, fmt.Errorf("transport handle for %s is gone", d.accountID)
	}
	out := make([]repo.Chat, len(d.chats))
	copy(out, d.chats)
	return out, nil
}

// FetchMessages implements repo.Driver.
func (d *MemoryDriver) FetchMessages(ctx context.Context, chatID string, limit int) ([]repo.InboundMessage, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		return nil, fmt.Errorf("transport handle for %s is gone", d.accountID)
	}
	msgs := d.history[chatID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]repo.InboundMessage, len(msgs))
	copy(out, msgs)
	return out, nil
}

// Destroy implements repo.Driver.
func (d *MemoryDriver) Destroy(ctx context.Context) error {
	d.mu.Lock()
	d.connected = false
	d.mu.Unlock()
	d.net.mu.Lock()
	delete(d.net.drivers, d.accountID)
	d.net.mu.Unlock()
	return nil
}

// Deliver injects an inbound message from the network, as if sender had
// written to this account.
func (d *MemoryDriver) Deliver(sender, body string) string {
	msg := repo.InboundMessage{
		ID:        uuid.NewString(),
		ChatID:    sender,
		Sender:    sender,
		Body:      body,
		Timestamp: time.Now(),
	}
	d.Inject(msg)
	return msg.ID
}

// Inject delivers a fully specified inbound message, duplicate ids included.
func (d *MemoryDriver) Inject(msg repo.InboundMessage) {
	d.mu.Lock()
	d.history[msg.ChatID] = append(d.history[msg.ChatID], msg)
	d.rememberChat(msg.ChatID)
	d.mu.Unlock()
	d.handler.OnMessage(msg)
}

// Drop simulates a network-side disconnect.
func (d *MemoryDriver) Drop(reason string) {
	d.mu.Lock()
	d.connected = false
	d.mu.Unlock()
	d.handler.OnDisconnected(reason)
}

// FailSendsTo injects a send error for one chat.
func (d *MemoryDriver) FailSendsTo(chatID, reason string) {
	d.mu.Lock()
	d.failSend[chatID] = reason
	d.mu.Unlock()
}

// Sent returns a copy of the outbound messages observed so far.
func (d *MemoryDriver) Sent() []SentMessage {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]SentMessage, len(d.sent))
	copy(out, d.sent)
	return out
}

func (d *MemoryDriver) rememberChat(chatID string) {
	for _, c := range d.chats {
		if c.ID == chatID {
			return
		}
	}
	d.chats = append(d.chats, repo.Chat{ID: chatID, Name: domain.StripSuffix(chatID)})
}
