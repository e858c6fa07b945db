package repo

import (
	"context"
	"time"

	"github.com/anthropics/chat-autopilot/internal/biz/domain"
)

// InboundMessage is a raw message delivered by the transport driver.
type InboundMessage struct {
	ID        string
	ChatID    string
	Sender    string
	Body      string
	Timestamp time.Time
	FromMe    bool
}

// Chat describes a conversation known to the transport.
type Chat struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	IsGroup bool   `json:"is_group"`
}

// DriverHandler receives the transport's lifecycle events for one account.
// The driver must deliver events for an account one at a time, in order.
type DriverHandler interface {
	// OnQR is emitted when the network wants a pairing token scanned.
	OnQR(token string)

	// OnReady is emitted when the account is authenticated and usable.
	OnReady()

	// OnMessage is emitted for every message the account observes.
	OnMessage(msg InboundMessage)

	// OnDisconnected is emitted when the network drops the session.
	OnDisconnected(reason string)

	// OnAuthFailure is emitted when pairing is rejected or times out.
	// Terminal for the current connect attempt.
	OnAuthFailure(reason string)
}

// Driver is the opaque transport handle for one account. The core never
// implements network details; it only consumes this contract.
type Driver interface {
	// Connect starts the authentication flow. Outcomes arrive via the
	// handler, not the return value; Connect fails only on setup errors.
	Connect(ctx context.Context) error

	// SendMessage sends text (and optional media) to a chat and returns the
	// transport's message id.
	SendMessage(ctx context.Context, chatID, text string, media *domain.Media) (string, error)

	// GetChats lists the account's conversations.
	GetChats(ctx context.Context) ([]Chat, error)

	// FetchMessages loads up to limit recent messages of a chat.
	FetchMessages(ctx context.Context, chatID string, limit int) ([]InboundMessage, error)

	// Destroy tears the session down and releases the handle.
	Destroy(ctx context.Context) error
}

// DriverFactory creates the transport handle for an account. The handler is
// bound for the driver's whole lifetime.
type DriverFactory func(accountID string, handler DriverHandler) (Driver, error)
