package registry

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/anthropics/chat-autopilot/internal/biz/domain"
	"github.com/anthropics/chat-autopilot/internal/biz/repo"
)

// accountSession is one live transport handle plus its state machine:
// disconnected -> authenticating -> awaiting_scan -> connected ->
// (disconnected | auth_failed | error). Transitions are driven only by
// transport events; it implements repo.DriverHandler.
type accountSession struct {
	reg       *Registry
	accountID string
	driver    repo.Driver

	mu       sync.Mutex
	curState domain.ConnState
	qrToken  string // pending pairing token, cleared on connected

	// Serializes outbound sends: per-account FIFO ordering.
	sendMu sync.Mutex
}

func newAccountSession(reg *Registry, accountID string) *accountSession {
	return &accountSession{
		reg:       reg,
		accountID: accountID,
		curState:  domain.StateAuthenticating,
	}
}

func (s *accountSession) state() domain.ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.curState
}

func (s *accountSession) send(ctx context.Context, chatID, text string, media *domain.Media) (string, error) {
	if !s.state().Connected() {
		return "", fmt.Errorf("account %s is %s", s.accountID, s.state())
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	msgID, err := s.driver.SendMessage(ctx, chatID, text, media)
	if err != nil {
		return "", fmt.Errorf("send via %s: %w", s.accountID, err)
	}
	return msgID, nil
}

// fail marks a failed connect attempt and evicts the session.
func (s *accountSession) fail() {
	s.mu.Lock()
	s.curState = domain.StateError
	s.qrToken = ""
	s.mu.Unlock()
	s.reg.evict(s.accountID, domain.StateError)
}

// OnQR implements repo.DriverHandler.
func (s *accountSession) OnQR(token string) {
	s.mu.Lock()
	s.curState = domain.StateAwaitingScan
	s.qrToken = token
	s.mu.Unlock()

	log.Printf("[Session] %s awaiting scan", s.accountID)
	s.reg.setState(s.accountID, domain.StateAwaitingScan)
	if s.reg.onQRCodeIssued != nil {
		s.reg.onQRCodeIssued(s.accountID, token)
	}
}

// OnReady implements repo.DriverHandler.
func (s *accountSession) OnReady() {
	s.mu.Lock()
	s.curState = domain.StateConnected
	s.qrToken = ""
	s.mu.Unlock()

	log.Printf("[Session] %s connected", s.accountID)
	s.reg.setState(s.accountID, domain.StateConnected)
}

// OnMessage implements repo.DriverHandler. Events for one account arrive on
// one goroutine, so message handling (including any auto-reply delay) keeps
// arrival order per account.
func (s *accountSession) OnMessage(in repo.InboundMessage) {
	if s.reg.seen(in.ID) {
		return
	}

	direction := domain.DirectionIn
	if in.FromMe {
		direction = domain.DirectionOut
	}
	ts := in.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	msg := domain.Message{
		ID:        in.ID,
		AccountID: s.accountID,
		Sender:    in.Sender,
		Body:      in.Body,
		Timestamp: ts,
		Direction: direction,
	}

	s.reg.msgLog.Append(msg)
	if s.reg.onMessage != nil {
		s.reg.onMessage(s.accountID, msg)
	}

	if direction == domain.DirectionIn && s.reg.AutoReplyEnabled() && s.reg.processor != nil {
		s.reg.processor.HandleInbound(context.Background(), &msg)
	}
}

// OnDisconnected implements repo.DriverHandler. A network drop evicts the
// session; reconnecting starts a brand-new authentication flow.
func (s *accountSession) OnDisconnected(reason string) {
	s.mu.Lock()
	s.curState = domain.StateDisconnected
	s.qrToken = ""
	s.mu.Unlock()

	log.Printf("[Session] %s disconnected: %s", s.accountID, reason)
	s.reg.evict(s.accountID, domain.StateDisconnected)
}

// OnAuthFailure implements repo.DriverHandler. Terminal for this attempt.
func (s *accountSession) OnAuthFailure(reason string) {
	s.mu.Lock()
	s.curState = domain.StateAuthFailed
	s.qrToken = ""
	s.mu.Unlock()

	log.Printf("[Session] %s authentication failed: %s", s.accountID, reason)
	s.reg.evict(s.accountID, domain.StateAuthFailed)
}
