package proto

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	"cosmicwatch.io/sector/proto/snowflake"
)

// MaxBodyLength is the maximum length of a message or reply body,
// in code points.
const MaxBodyLength = 1000

// A Message is a node in the sector's communication log. It is created
// by the hub in response to a send command, and thereafter mutated only
// by appending replies and toggling reactions, until its author deletes
// it.
type Message struct {
	ID         snowflake.Snowflake `json:"id"`
	UnixTime   Time                `json:"time"`
	Sender     *UserView           `json:"sender"`
	Body       string              `json:"body,omitempty"`
	Attachment string              `json:"attachment,omitempty"`
	Reference  *ReferenceObject    `json:"reference,omitempty"`
	Reactions  []Reaction          `json:"reactions"`
	Replies    []Reply             `json:"replies"`
}

func (msg *Message) Encode() ([]byte, error) { return json.Marshal(msg) }

// A Reply is nested under exactly one Message. Replies are append-only;
// their position in the Replies array is their authoritative order. A
// reply cannot itself be replied to or reacted to.
type Reply struct {
	ID         snowflake.Snowflake `json:"id"`
	UnixTime   Time                `json:"time"`
	Sender     *UserView           `json:"sender"`
	Body       string              `json:"body,omitempty"`
	Attachment string              `json:"attachment,omitempty"`
	Reference  *ReferenceObject    `json:"reference,omitempty"`
}

// A Reaction marks one user's emoji on a Message. A message holds at
// most one reaction per sender; see ToggleReaction.
type Reaction struct {
	Sender *UserView `json:"sender"`
	Emoji  string    `json:"emoji"`
}

// A ReferenceObject is an opaque domain payload attached to a message
// or reply, such as an asteroid telemetry snapshot. The hub stores and
// relays it verbatim; only ReferenceID is required.
type ReferenceObject struct {
	ReferenceID string          `json:"reference_id"`
	Data        json.RawMessage `json:"data,omitempty"`
	AddedAt     Time            `json:"added_at,omitempty"`
}

// NormalizeBody trims surrounding whitespace and enforces MaxBodyLength.
func NormalizeBody(body string) (string, error) {
	body = strings.TrimSpace(body)
	if utf8.RuneCountInString(body) > MaxBodyLength {
		return "", ErrBodyTooLong
	}
	return body, nil
}

// Validate reports whether the message is acceptable for appending:
// a sender must be present, the reference (if any) must carry its id,
// and at least one of body, attachment, or reference must be present.
func (msg *Message) Validate() error {
	if msg.Sender == nil || msg.Sender.ID == "" {
		return ErrInvalidMessage
	}
	if msg.Body == "" && msg.Attachment == "" && msg.Reference == nil {
		return ErrInvalidMessage
	}
	if msg.Reference != nil && msg.Reference.ReferenceID == "" {
		return ErrInvalidMessage
	}
	return nil
}

// Validate applies the same rules as Message.Validate to a reply.
func (reply *Reply) Validate() error {
	if reply.Sender == nil || reply.Sender.ID == "" {
		return ErrInvalidMessage
	}
	if reply.Body == "" && reply.Attachment == "" && reply.Reference == nil {
		return ErrInvalidMessage
	}
	if reply.Reference != nil && reply.Reference.ReferenceID == "" {
		return ErrInvalidMessage
	}
	return nil
}

// ToggleReaction applies toggle semantics for one sender to a reaction
// list: a new emoji from a sender with no reaction is added, a
// different emoji replaces the sender's previous one, and the same
// emoji resubmitted removes it. The returned list preserves the order
// of the surviving reactions.
func ToggleReaction(reactions []Reaction, sender *UserView, emoji string) []Reaction {
	for i, r := range reactions {
		if r.Sender != nil && r.Sender.ID == sender.ID {
			if r.Emoji == emoji {
				return append(reactions[:i:i], reactions[i+1:]...)
			}
			updated := make([]Reaction, len(reactions))
			copy(updated, reactions)
			updated[i].Emoji = emoji
			return updated
		}
	}
	return append(reactions[:len(reactions):len(reactions)], Reaction{Sender: sender, Emoji: emoji})
}
