package domain

// ConnState is an account's connection state. States advance disconnected ->
// authenticating -> awaiting_scan -> connected; auth_failed and error are
// terminal for the attempt.
type ConnState string

const (
	StateDisconnected   ConnState = "disconnected"
	StateAuthenticating ConnState = "authenticating"
	StateAwaitingScan   ConnState = "awaiting_scan"
	StateConnected      ConnState = "connected"
	StateAuthFailed     ConnState = "auth_failed"
	StateError          ConnState = "error"
)

// Connected reports whether the account can send and receive.
func (s ConnState) Connected() bool {
	return s == StateConnected
}

// Terminal reports whether the state ends the current connect attempt.
func (s ConnState) Terminal() bool {
	switch s {
	case StateDisconnected, StateAuthFailed, StateError:
		return true
	}
	return false
}

// Account is one managed chat-network identity. The registry is its only
// writer.
type Account struct {
	ID    string
	Name  string
	State ConnState
}

// AccountInfo is the externally visible account snapshot.
type AccountInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	State     string `json:"state"`
	Connected bool   `json:"connected"`
}
