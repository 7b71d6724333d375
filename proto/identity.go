package proto

type UserID string

func (uid UserID) String() string { return string(uid) }

// An Identity is the authenticated user bound to a session. Issuing
// identities (login, signup) is the auth service's concern; the hub
// consumes them opaquely.
type Identity interface {
	ID() UserID
	Name() string
	View() *UserView
}

// A UserView is the display-friendly summary of an identity that is
// embedded in messages, replies, and reactions. It never carries
// credentials or other sensitive account fields.
type UserView struct {
	ID     UserID `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}
