package proto

import (
	"euphoria.io/scope"

	"cosmicwatch.io/sector/proto/snowflake"
)

// A Log holds the ordered backlog of a sector.
type Log interface {
	// Listing returns every message, oldest first.
	Listing(ctx scope.Context) ([]Message, error)
}

// A Backend is the durable message store behind the hub. All mutations
// of canonical state pass through it; each method is atomic with
// respect to the message it touches. Broadcasting is the hub's
// concern, never the backend's.
type Backend interface {
	Log

	// Send validates and appends a new message. The message arrives
	// with its id, timestamp, and sender already assigned by the hub.
	Send(ctx scope.Context, msg Message) (Message, error)

	// Get returns the message with the given id, or nil if no such
	// message exists. A missing message is not an error.
	Get(ctx scope.Context, id snowflake.Snowflake) (*Message, error)

	// AddReply validates and appends a reply to the identified
	// message, returning the updated record. It returns nil, nil if
	// the message no longer exists.
	AddReply(ctx scope.Context, id snowflake.Snowflake, reply Reply) (*Message, error)

	// ToggleReaction applies toggle semantics for sender's emoji on
	// the identified message, returning the updated record. It
	// returns nil, nil if the message no longer exists.
	ToggleReaction(ctx scope.Context, id snowflake.Snowflake, sender *UserView, emoji string) (*Message, error)

	// Delete removes the identified message and everything nested
	// under it, provided sender is its author. It reports whether a
	// deletion took place; a missing message or a non-author sender
	// yields false with no error.
	Delete(ctx scope.Context, id snowflake.Snowflake, sender UserID) (bool, error)

	Version() string
	Close()
}

// A Session is one client's connection to the hub. Send enqueues a
// packet for asynchronous delivery; it must not block the hub.
type Session interface {
	ID() string
	Identity() Identity
	Send(ctx scope.Context, ptype PacketType, payload interface{}) error
	Close()
}
