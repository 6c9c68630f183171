package session

import (
	"context"
	"time"

	"github.com/riskibarqy/porras-fc/internal/domain/user"
)

// Session is an authenticated context attached to one access token.
type Session struct {
	ID        string
	Principal user.Principal
}

func (s Session) UserID() string {
	return s.Principal.UserID
}

type EventKind string

const (
	// EventSignedOut ends a session. An empty SessionID signs out every session of the user.
	EventSignedOut EventKind = "signed_out"
	// EventLeaguesChanged reports that the user's league list changed.
	EventLeaguesChanged EventKind = "leagues_changed"
)

type Event struct {
	Kind      EventKind `json:"kind"`
	UserID    string    `json:"user_id"`
	SessionID string    `json:"session_id,omitempty"`
	LeagueID  string    `json:"league_id,omitempty"`
	At        time.Time `json:"at"`
}

// Affects reports whether the event concerns the given session.
func (e Event) Affects(s Session) bool {
	if e.UserID != s.UserID() {
		return false
	}
	return e.SessionID == "" || e.SessionID == s.ID
}

type Handler func(Event)

// Subscription is released by calling Unsubscribe; it is safe to call more than once.
type Subscription interface {
	Unsubscribe()
}

// Notifier delivers session change events to per-user subscribers.
type Notifier interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(userID string, handler Handler) Subscription
}
