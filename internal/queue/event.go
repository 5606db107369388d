// Package queue carries auth lifecycle events over RabbitMQ.
package queue

import "time"

// Event types published after a successful auth operation.
const (
	EventUserRegistered = "user.registered"
	EventUserLoggedIn   = "user.logged_in"
	EventUserLoggedOut  = "user.logged_out"
	EventTokenRefreshed = "token.refreshed"
)

// DefaultQueue is the durable queue auth events are routed to.
const DefaultQueue = "auth.events"

// AuthEvent is published once an auth operation has committed.  It carries
// no secrets: never a password, hash or token.
type AuthEvent struct {
	Type       string    `json:"type"`
	UserID     uint64    `json:"user_id"`
	Email      string    `json:"email"`
	Roles      []string  `json:"roles,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewAuthEvent stamps an event with the current UTC time.
func NewAuthEvent(typ string, userID uint64, email string) AuthEvent {
	return AuthEvent{Type: typ, UserID: userID, Email: email, OccurredAt: time.Now().UTC()}
}
