package proto

import (
	"encoding/json"
	"fmt"
	"reflect"

	"cosmicwatch.io/sector/proto/snowflake"
)

type PacketType string

func (c PacketType) Event() PacketType { return c + "-event" }
func (c PacketType) Reply() PacketType { return c + "-reply" }

var (
	SendType      = PacketType("send")
	SendEventType = SendType.Event()
	SendReplyType = SendType.Reply()

	AddReplyType      = PacketType("add-reply")
	AddReplyReplyType = AddReplyType.Reply()

	ReactType      = PacketType("react")
	ReactReplyType = ReactType.Reply()

	DeleteType      = PacketType("delete")
	DeleteEventType = DeleteType.Event()
	DeleteReplyType = DeleteType.Reply()

	UpdateEventType   = PacketType("update").Event()
	SnapshotEventType = PacketType("snapshot").Event()

	ErrorReplyType = PacketType("error").Reply()

	payloadMap = map[PacketType]reflect.Type{
		SendType:      reflect.TypeOf(SendCommand{}),
		SendReplyType: reflect.TypeOf(SendReply{}),
		SendEventType: reflect.TypeOf(SendEvent{}),

		AddReplyType:      reflect.TypeOf(AddReplyCommand{}),
		AddReplyReplyType: reflect.TypeOf(AddReplyReply{}),

		ReactType:      reflect.TypeOf(ReactCommand{}),
		ReactReplyType: reflect.TypeOf(ReactReply{}),

		DeleteType:      reflect.TypeOf(DeleteCommand{}),
		DeleteEventType: reflect.TypeOf(DeleteEvent{}),
		DeleteReplyType: reflect.TypeOf(DeleteReply{}),

		UpdateEventType:   reflect.TypeOf(UpdateEvent{}),
		SnapshotEventType: reflect.TypeOf(SnapshotEvent{}),
	}
)

func PacketsByType() map[PacketType]string {
	templates := map[PacketType]string{}
	for name, templateType := range payloadMap {
		templates[name] = templateType.Name()
	}
	return templates
}

type ErrorReply struct {
	Error string `json:"error"`
}

// The `send` command posts a message to the sector log. The sender is
// the session's authenticated identity; at least one of body,
// attachment, or reference must be given. The resulting message is
// broadcast to every connected session, including the caller's.
type SendCommand struct {
	Body       string           `json:"body,omitempty"`       // plain text content, up to 1000 code points
	Attachment string           `json:"attachment,omitempty"` // opaque url of an uploaded image
	Reference  *ReferenceObject `json:"reference,omitempty"`  // opaque attached domain object
}

// A `send-event` carries a newly created message to every session.
type SendEvent Message

// `send-reply` returns the message that was posted, including the
// hub-assigned id and timestamp.
type SendReply SendEvent

// The `add-reply` command appends a threaded reply to an existing
// message. If the target message no longer exists the command is a
// silent no-op: the reply packet is empty and nothing is broadcast.
type AddReplyCommand struct {
	MessageID  snowflake.Snowflake `json:"message_id"`
	Body       string              `json:"body,omitempty"`
	Attachment string              `json:"attachment,omitempty"`
	Reference  *ReferenceObject    `json:"reference,omitempty"`
}

// `add-reply-reply` returns the updated message, or nothing if the
// target was already gone.
type AddReplyReply struct {
	Message *Message `json:"message,omitempty"`
}

// The `react` command toggles the caller's reaction on a message. A
// first reaction adds the emoji, a different emoji replaces it, and
// the same emoji removes it. A message holds at most one reaction per
// user.
type ReactCommand struct {
	MessageID snowflake.Snowflake `json:"message_id"`
	Emoji     string              `json:"emoji"`
}

// `react-reply` returns the updated message, or nothing if the target
// was already gone.
type ReactReply struct {
	Message *Message `json:"message,omitempty"`
}

// The `delete` command removes a message along with all of its replies
// and reactions. Only the message's author may delete it; any other
// caller receives the same empty reply as a successful delete, and
// nothing is broadcast.
type DeleteCommand struct {
	MessageID snowflake.Snowflake `json:"message_id"`
}

// `delete-reply` confirms that the delete command was processed. It is
// identical whether or not a deletion took place.
type DeleteReply struct{}

// A `delete-event` announces that a message was removed. Only the bare
// id is sent; clients drop the message from their view.
type DeleteEvent struct {
	ID snowflake.Snowflake `json:"id"`
}

// An `update-event` carries the full canonical record of a message
// after a reply was appended or a reaction toggled. Clients replace
// their copy of the message wholesale.
type UpdateEvent Message

// A `snapshot-event` is sent once per connection, immediately after the
// session joins. It carries the full ordered backlog.
type SnapshotEvent struct {
	SessionID string    `json:"session_id"` // the globally unique id of this session
	Identity  UserID    `json:"identity"`   // the id of the user bound to this session
	Version   string    `json:"version"`    // the server's version identifier
	Log       []Message `json:"log"`        // all messages in the sector, oldest first
}

type Packet struct {
	ID    string          `json:"id,omitempty"`    // client-generated id for associating replies with commands
	Type  PacketType      `json:"type"`            // the name of the command, reply, or event
	Data  json.RawMessage `json:"data,omitempty"`  // the payload of the command, reply, or event
	Error string          `json:"error,omitempty"` // this field appears in replies if a command fails
}

func (cmd *Packet) Payload() (interface{}, error) {
	if cmd.Error != "" {
		return &ErrorReply{Error: cmd.Error}, nil
	}
	payloadType, ok := payloadMap[cmd.Type]
	if !ok {
		return nil, fmt.Errorf("invalid command type: %s", cmd.Type)
	}
	payload := reflect.New(payloadType).Interface()
	if payload != nil && payloadType.NumField() > 0 && len(cmd.Data) > 0 {
		if err := json.Unmarshal(cmd.Data, payload); err != nil {
			return nil, err
		}
	}
	return payload, nil
}

func (cmd *Packet) Encode() ([]byte, error) { return json.Marshal(cmd) }

func MakeResponse(refID string, msgType PacketType, payload interface{}) (*Packet, error) {
	packet := &Packet{
		ID:   refID,
		Type: msgType.Reply(),
	}

	if err, ok := payload.(error); ok {
		packet.Type = ErrorReplyType
		packet.Error = err.Error()
		payload = nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	if err := packet.Data.UnmarshalJSON(data); err != nil {
		return nil, err
	}

	return packet, nil
}

func MakeEvent(eventType PacketType, payload interface{}) (*Packet, error) {
	if _, ok := payloadMap[eventType]; !ok {
		return nil, fmt.Errorf("invalid event type: %s", eventType)
	}

	packet := &Packet{Type: eventType}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	if err := packet.Data.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return packet, nil
}

func ParseRequest(data []byte) (*Packet, error) {
	cmd := &Packet{}
	if err := json.Unmarshal(data, cmd); err != nil {
		return nil, err
	}
	return cmd, nil
}
