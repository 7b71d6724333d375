package psql

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/lib/pq"

	"cosmicwatch.io/sector/proto"
)

type Message struct {
	ID             string
	Posted         time.Time
	SenderID       string `db:"sender_id"`
	SenderName     string `db:"sender_name"`
	SenderAvatar   string `db:"sender_avatar"`
	Body           string
	Attachment     sql.NullString
	ReferenceID    sql.NullString `db:"reference_id"`
	ReferenceData  []byte         `db:"reference_data"`
	ReferenceAdded pq.NullTime    `db:"reference_added"`
}

func NewMessage(msg *proto.Message) *Message {
	row := &Message{
		ID:     msg.ID.String(),
		Posted: msg.ID.Time(),
		Body:   msg.Body,
	}
	setSender(&row.SenderID, &row.SenderName, &row.SenderAvatar, msg.Sender)
	setAttachment(&row.Attachment, msg.Attachment)
	setReference(&row.ReferenceID, &row.ReferenceData, &row.ReferenceAdded, msg.Reference)
	return row
}

func (m *Message) ToBackend() proto.Message {
	msg := proto.Message{
		UnixTime: proto.Time(m.Posted),
		Sender: &proto.UserView{
			ID:     proto.UserID(m.SenderID),
			Name:   m.SenderName,
			Avatar: m.SenderAvatar,
		},
		Body:      m.Body,
		Reactions: []proto.Reaction{},
		Replies:   []proto.Reply{},
	}

	// ignore id parsing errors
	_ = msg.ID.FromString(m.ID)
	if m.Attachment.Valid {
		msg.Attachment = m.Attachment.String
	}
	msg.Reference = getReference(m.ReferenceID, m.ReferenceData, m.ReferenceAdded)

	return msg
}

type Reply struct {
	MessageID      string `db:"message_id"`
	ID             string
	Posted         time.Time
	SenderID       string `db:"sender_id"`
	SenderName     string `db:"sender_name"`
	SenderAvatar   string `db:"sender_avatar"`
	Body           string
	Attachment     sql.NullString
	ReferenceID    sql.NullString `db:"reference_id"`
	ReferenceData  []byte         `db:"reference_data"`
	ReferenceAdded pq.NullTime    `db:"reference_added"`
}

func NewReply(messageID string, reply *proto.Reply) *Reply {
	row := &Reply{
		MessageID: messageID,
		ID:        reply.ID.String(),
		Posted:    reply.ID.Time(),
		Body:      reply.Body,
	}
	setSender(&row.SenderID, &row.SenderName, &row.SenderAvatar, reply.Sender)
	setAttachment(&row.Attachment, reply.Attachment)
	setReference(&row.ReferenceID, &row.ReferenceData, &row.ReferenceAdded, reply.Reference)
	return row
}

func (r *Reply) ToBackend() proto.Reply {
	reply := proto.Reply{
		UnixTime: proto.Time(r.Posted),
		Sender: &proto.UserView{
			ID:     proto.UserID(r.SenderID),
			Name:   r.SenderName,
			Avatar: r.SenderAvatar,
		},
		Body: r.Body,
	}

	_ = reply.ID.FromString(r.ID)
	if r.Attachment.Valid {
		reply.Attachment = r.Attachment.String
	}
	reply.Reference = getReference(r.ReferenceID, r.ReferenceData, r.ReferenceAdded)

	return reply
}

type Reaction struct {
	MessageID    string `db:"message_id"`
	SenderID     string `db:"sender_id"`
	SenderName   string `db:"sender_name"`
	SenderAvatar string `db:"sender_avatar"`
	Emoji        string
	Posted       time.Time
}

func (r *Reaction) ToBackend() proto.Reaction {
	return proto.Reaction{
		Sender: &proto.UserView{
			ID:     proto.UserID(r.SenderID),
			Name:   r.SenderName,
			Avatar: r.SenderAvatar,
		},
		Emoji: r.Emoji,
	}
}

func setSender(id, name, avatar *string, view *proto.UserView) {
	if view == nil {
		return
	}
	*id = string(view.ID)
	*name = view.Name
	*avatar = view.Avatar
}

func setAttachment(col *sql.NullString, attachment string) {
	if attachment != "" {
		*col = sql.NullString{String: attachment, Valid: true}
	}
}

func setReference(id *sql.NullString, data *[]byte, added *pq.NullTime, ref *proto.ReferenceObject) {
	if ref == nil {
		return
	}
	*id = sql.NullString{String: ref.ReferenceID, Valid: true}
	if len(ref.Data) > 0 {
		*data = []byte(ref.Data)
	}
	if !ref.AddedAt.StdTime().IsZero() {
		*added = pq.NullTime{Time: ref.AddedAt.StdTime(), Valid: true}
	}
}

func getReference(id sql.NullString, data []byte, added pq.NullTime) *proto.ReferenceObject {
	if !id.Valid {
		return nil
	}
	ref := &proto.ReferenceObject{ReferenceID: id.String}
	if len(data) > 0 {
		ref.Data = json.RawMessage(data)
	}
	if added.Valid {
		ref.AddedAt = proto.Time(added.Time)
	}
	return ref
}
