// Package queue defines the account events exchanged over the message broker
// and the consumer that records them.
package queue

import (
	"fmt"
	"time"

	"github.com/iliyamo/members-area/internal/model"
)

// Event types.
const (
	UserRegistered  = "user.registered"
	UserRoleChanged = "user.role_changed"
)

// AccountEvent is published after a change to a user account.  It carries
// enough for an audit trail without querying the users table; the password
// hash is never part of it.
type AccountEvent struct {
	Type       string     `json:"type"`
	UserID     string     `json:"user_id"`
	Email      string     `json:"email"`
	Role       model.Role `json:"role"`
	ActorID    string     `json:"actor_id,omitempty"` // admin who changed the role
	OccurredAt time.Time  `json:"occurred_at"`
}

// Registered builds the event for a new signup.
func Registered(u model.User) AccountEvent {
	return AccountEvent{Type: UserRegistered, UserID: u.ID, Email: u.Email, Role: u.Role, OccurredAt: time.Now().UTC()}
}

// RoleChanged builds the event for a promote or demote performed by actorID.
func RoleChanged(u model.User, actorID string) AccountEvent {
	return AccountEvent{Type: UserRoleChanged, UserID: u.ID, Email: u.Email, Role: u.Role, ActorID: actorID, OccurredAt: time.Now().UTC()}
}

// Line renders the event as one audit log line.
func (e AccountEvent) Line() string {
	line := fmt.Sprintf("[%s] %s | user_id=%s | email=%q | role=%s",
		e.OccurredAt.UTC().Format(time.RFC3339), e.Type, e.UserID, e.Email, e.Role)
	if e.ActorID != "" {
		line += " | actor_id=" + e.ActorID
	}
	return line + "\n"
}
