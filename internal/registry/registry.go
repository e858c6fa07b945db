// Package registry owns the collection of account sessions: it creates and
// destroys them, routes commands and transport events by account id, and
// keeps the in-memory message log. It is the only writer of the account map.
package registry

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/anthropics/chat-autopilot/internal/biz/domain"
	"github.com/anthropics/chat-autopilot/internal/biz/repo"
)

// InboundProcessor consumes inbound messages for auto-reply handling. It is
// invoked inline on the account's event goroutine, so processing for one
// account stays strictly ordered.
type InboundProcessor interface {
	HandleInbound(ctx context.Context, msg *domain.Message)
}

// Registry is the session registry. All exported methods are safe for
// concurrent use; the account map mutex is never held across transport calls.
type Registry struct {
	factory repo.DriverFactory
	msgLog  *domain.MessageLog

	mu       sync.RWMutex
	accounts map[string]*domain.Account // known accounts, survives eviction
	sessions map[string]*accountSession // live transport handles
	order    []string                   // account creation order

	// Inbound dedup cache, pruned lazily.
	seenMu   sync.Mutex
	seenMsgs map[string]time.Time

	autoReplyEnabled atomic.Bool
	processor        InboundProcessor

	// At most one subscriber per event kind.
	onStatusChanged func(accountID string, state domain.ConnState)
	onQRCodeIssued  func(accountID, token string)
	onMessage       func(accountID string, msg domain.Message)
}

const seenTTL = 10 * time.Minute

// New creates a registry using factory to build transport handles.
func New(factory repo.DriverFactory, logCapacity int) *Registry {
	r := &Registry{
		factory:  factory,
		msgLog:   domain.NewMessageLog(logCapacity),
		accounts: make(map[string]*domain.Account),
		sessions: make(map[string]*accountSession),
		seenMsgs: make(map[string]time.Time),
	}
	r.autoReplyEnabled.Store(true)
	return r
}

// OnStatusChanged registers the statusChanged subscriber.
func (r *Registry) OnStatusChanged(fn func(accountID string, state domain.ConnState)) {
	r.onStatusChanged = fn
}

// OnQRCodeIssued registers the qrCodeIssued subscriber.
func (r *Registry) OnQRCodeIssued(fn func(accountID, token string)) {
	r.onQRCodeIssued = fn
}

// OnMessage registers the messageReceived subscriber.
func (r *Registry) OnMessage(fn func(accountID string, msg domain.Message)) {
	r.onMessage = fn
}

// SetInboundProcessor wires the auto-reply consumer.
func (r *Registry) SetInboundProcessor(p InboundProcessor) {
	r.processor = p
}

// SetAutoReplyEnabled flips the global auto-reply switch.
func (r *Registry) SetAutoReplyEnabled(enabled bool) {
	r.autoReplyEnabled.Store(enabled)
}

// AutoReplyEnabled reports the global auto-reply switch.
func (r *Registry) AutoReplyEnabled() bool {
	return r.autoReplyEnabled.Load()
}

// Connect creates the account (if absent) and starts its authentication flow.
// Connecting an already-live account is a no-op returning success; the
// asynchronous outcome of a new flow arrives via statusChanged, not here.
func (r *Registry) Connect(ctx context.Context, accountID, name string) error {
	if accountID == "" {
		return fmt.Errorf("account id is required")
	}

	r.mu.Lock()
	if _, live := r.sessions[accountID]; live {
		// Connected or mid-authentication: one handle per id, never two.
		r.mu.Unlock()
		return nil
	}

	acc, known := r.accounts[accountID]
	if !known {
		if name == "" {
			name = "Account " + accountID
		}
		acc = &domain.Account{ID: accountID, Name: name}
		r.accounts[accountID] = acc
		r.order = append(r.order, accountID)
	} else if name != "" {
		acc.Name = name
	}

	sess := newAccountSession(r, accountID)
	driver, err := r.factory(accountID, sess)
	if err != nil {
		r.mu.Unlock()
		return fmt.Errorf("create transport for %s: %w", accountID, err)
	}
	sess.driver = driver
	r.sessions[accountID] = sess
	acc.State = domain.StateAuthenticating
	r.mu.Unlock()

	r.emitStatus(accountID, domain.StateAuthenticating)

	// The flow outlives this call; cancelling the caller's context (an HTTP
	// request finishing, say) must not abort a pairing still waiting for the
	// user to scan. Its outcome arrives via statusChanged.
	flowCtx := context.WithoutCancel(ctx)
	go func() {
		if err := driver.Connect(flowCtx); err != nil {
			log.Printf("[Registry] connect failed for %s: %v", accountID, err)
			sess.fail()
		}
	}()
	return nil
}

// Disconnect tears down one session, or every session when accountID is
// empty. It always succeeds; individual teardown errors are logged so one
// faulty session cannot block the rest.
func (r *Registry) Disconnect(ctx context.Context, accountID string) {
	var targets []*accountSession
	r.mu.Lock()
	if accountID == "" {
		for _, s := range r.sessions {
			targets = append(targets, s)
		}
	} else if s, ok := r.sessions[accountID]; ok {
		targets = append(targets, s)
	}
	for _, s := range targets {
		delete(r.sessions, s.accountID)
		if acc, ok := r.accounts[s.accountID]; ok {
			acc.State = domain.StateDisconnected
		}
	}
	r.mu.Unlock()

	for _, s := range targets {
		if err := s.driver.Destroy(ctx); err != nil {
			log.Printf("[Registry] destroy %s: %v", s.accountID, err)
		}
		r.emitStatus(s.accountID, domain.StateDisconnected)
	}
}

// Shutdown disconnects everything.
func (r *Registry) Shutdown(ctx context.Context) {
	r.Disconnect(ctx, "")
}

// Status returns one account's connection state.
func (r *Registry) Status(accountID string) domain.ConnState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if acc, ok := r.accounts[accountID]; ok {
		return acc.State
	}
	return domain.StateDisconnected
}

// Statuses returns the state of every known account.
func (r *Registry) Statuses() map[string]domain.ConnState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]domain.ConnState, len(r.accounts))
	for id, acc := range r.accounts {
		out[id] = acc.State
	}
	return out
}

// ListAccounts returns account snapshots in creation order.
func (r *Registry) ListAccounts() []domain.AccountInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.AccountInfo, 0, len(r.order))
	for _, id := range r.order {
		acc := r.accounts[id]
		state := acc.State
		if state == "" {
			state = domain.StateDisconnected
		}
		out = append(out, domain.AccountInfo{
			ID:        id,
			Name:      acc.Name,
			State:     string(state),
			Connected: state.Connected(),
		})
	}
	return out
}

// Send delivers text (and optional media) through one account's transport
// handle. Sends on the same account are strictly FIFO.
func (r *Registry) Send(ctx context.Context, accountID, chatID, text string, media *domain.Media) (string, error) {
	r.mu.RLock()
	sess, ok := r.sessions[accountID]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("account %s not connected", accountID)
	}

	msgID, err := sess.send(ctx, chatID, text, media)
	if err != nil {
		return "", err
	}

	r.msgLog.Append(domain.Message{
		ID:        msgID,
		AccountID: accountID,
		Sender:    chatID,
		Body:      text,
		Timestamp: time.Now(),
		Direction: domain.DirectionOut,
	})
	return msgID, nil
}

// GetChats lists chats of one account, or of every connected account when
// accountID is empty.
func (r *Registry) GetChats(ctx context.Context, accountID string) ([]repo.Chat, error) {
	r.mu.RLock()
	var sessions []*accountSession
	if accountID != "" {
		if s, ok := r.sessions[accountID]; ok {
			sessions = append(sessions, s)
		}
	} else {
		for _, id := range r.order {
			if s, ok := r.sessions[id]; ok {
				sessions = append(sessions, s)
			}
		}
	}
	r.mu.RUnlock()

	if accountID != "" && len(sessions) == 0 {
		return nil, fmt.Errorf("account %s not connected", accountID)
	}

	var chats []repo.Chat
	for _, s := range sessions {
		if !s.state().Connected() {
			continue
		}
		cs, err := s.driver.GetChats(ctx)
		if err != nil {
			log.Printf("[Registry] get chats for %s: %v", s.accountID, err)
			continue
		}
		chats = append(chats, cs...)
	}
	return chats, nil
}

// ChatHistory fetches recent messages of a chat from the first connected
// account that knows it.
func (r *Registry) ChatHistory(ctx context.Context, chatID string, limit int) ([]repo.InboundMessage, error) {
	r.mu.RLock()
	var sessions []*accountSession
	for _, id := range r.order {
		if s, ok := r.sessions[id]; ok {
			sessions = append(sessions, s)
		}
	}
	r.mu.RUnlock()

	for _, s := range sessions {
		if !s.state().Connected() {
			continue
		}
		msgs, err := s.driver.FetchMessages(ctx, chatID, limit)
		if err != nil {
			log.Printf("[Registry] fetch messages for %s: %v", s.accountID, err)
			continue
		}
		if len(msgs) > 0 {
			return msgs, nil
		}
	}
	return nil, nil
}

// Messages returns up to limit most recent logged messages, optionally
// restricted to one account.
func (r *Registry) Messages(accountID string, limit int) []domain.Message {
	return r.msgLog.RecentFor(accountID, limit)
}

// evict drops a session after a terminal transport event, keeping the account
// record so the id stays listed. A later Connect starts a brand-new flow.
func (r *Registry) evict(accountID string, state domain.ConnState) {
	r.mu.Lock()
	delete(r.sessions, accountID)
	if acc, ok := r.accounts[accountID]; ok {
		acc.State = state
	}
	r.mu.Unlock()
	r.emitStatus(accountID, state)
}

func (r *Registry) setState(accountID string, state domain.ConnState) {
	r.mu.Lock()
	if acc, ok := r.accounts[accountID]; ok {
		acc.State = state
	}
	r.mu.Unlock()
	r.emitStatus(accountID, state)
}

func (r *Registry) emitStatus(accountID string, state domain.ConnState) {
	if r.onStatusChanged != nil {
		r.onStatusChanged(accountID, state)
	}
}

// seen reports (and records) whether a transport message id was already
// processed.
func (r *Registry) seen(msgID string) bool {
	if msgID == "" {
		return false
	}
	now := time.Now()
	r.seenMu.Lock()
	defer r.seenMu.Unlock()
	if _, dup := r.seenMsgs[msgID]; dup {
		return true
	}
	r.seenMsgs[msgID] = now
	if len(r.seenMsgs) > 1024 {
		for id, at := range r.seenMsgs {
			if now.Sub(at) > seenTTL {
				delete(r.seenMsgs, id)
			}
		}
	}
	return false
}
