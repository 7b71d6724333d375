package psql

import (
	"database/sql"
	"fmt"
	"log"
	"net/url"

	"euphoria.io/scope"
	_ "github.com/lib/pq"
	"gopkg.in/gorp.v1"

	"cosmicwatch.io/sector/proto"
	"cosmicwatch.io/sector/proto/snowflake"
)

var schema = []struct {
	Name       string
	Table      interface{}
	PrimaryKey []string
}{
	{"message", Message{}, []string{"ID"}},
	{"reply", Reply{}, []string{"ID"}},
	{"reaction", Reaction{}, []string{"MessageID", "SenderID"}},
}

// Backend is the postgres proto.Backend. Author views are denormalized
// into each row at write time, so reads never join against an account
// table and never see credential fields.
type Backend struct {
	*sql.DB
	*gorp.DbMap

	dsn     string
	version string
}

func NewBackend(dsn, version string) (*Backend, error) {
	parsedDSN, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("url.Parse: %s", err)
	}
	if parsedDSN.User != nil {
		parsedDSN.User = url.UserPassword(parsedDSN.User.Username(), "xxxxxx")
	}
	log.Printf("psql backend %s on %s", version, parsedDSN.String())

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %s", err)
	}

	b := &Backend{
		DB:      db,
		dsn:     dsn,
		version: version,
	}

	b.DbMap = &gorp.DbMap{Db: db, Dialect: gorp.PostgresDialect{}}
	for _, item := range schema {
		b.DbMap.AddTableWithName(item.Table, item.Name).SetKeys(false, item.PrimaryKey...)
	}
	if err := b.DbMap.CreateTablesIfNotExists(); err != nil {
		return nil, fmt.Errorf("create tables: %s", err)
	}

	return b, nil
}

func (b *Backend) Version() string { return b.version }

func (b *Backend) Close() { b.DB.Close() }

func (b *Backend) Listing(ctx scope.Context) ([]proto.Message, error) {
	var rows []Message
	if _, err := b.Select(&rows, "SELECT * FROM message ORDER BY id ASC"); err != nil {
		return nil, err
	}

	msgs := make([]proto.Message, len(rows))
	index := map[string]int{}
	for i, row := range rows {
		msgs[i] = row.ToBackend()
		index[row.ID] = i
	}

	var replies []Reply
	if _, err := b.Select(&replies, "SELECT * FROM reply ORDER BY id ASC"); err != nil {
		return nil, err
	}
	for _, row := range replies {
		if i, ok := index[row.MessageID]; ok {
			msgs[i].Replies = append(msgs[i].Replies, row.ToBackend())
		}
	}

	var reactions []Reaction
	if _, err := b.Select(&reactions, "SELECT * FROM reaction ORDER BY posted ASC"); err != nil {
		return nil, err
	}
	for _, row := range reactions {
		if i, ok := index[row.MessageID]; ok {
			msgs[i].Reactions = append(msgs[i].Reactions, row.ToBackend())
		}
	}

	return msgs, nil
}

func (b *Backend) Send(ctx scope.Context, msg proto.Message) (proto.Message, error) {
	body, err := proto.NormalizeBody(msg.Body)
	if err != nil {
		return proto.Message{}, err
	}
	msg.Body = body
	if err := msg.Validate(); err != nil {
		return proto.Message{}, err
	}
	msg.Reactions = []proto.Reaction{}
	msg.Replies = []proto.Reply{}

	if err := b.Insert(NewMessage(&msg)); err != nil {
		return proto.Message{}, fmt.Errorf("insert message: %s", err)
	}
	return msg, nil
}

func (b *Backend) Get(ctx scope.Context, id snowflake.Snowflake) (*proto.Message, error) {
	return b.get(b.DbMap, id)
}

// get assembles a message and its nested rows through any gorp
// executor, so callers inside a transaction observe their own writes.
func (b *Backend) get(db gorp.SqlExecutor, id snowflake.Snowflake) (*proto.Message, error) {
	row, err := db.Get(Message{}, id.String())
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}

	msg := row.(*Message).ToBackend()

	var replies []Reply
	if _, err := db.Select(
		&replies, "SELECT * FROM reply WHERE message_id = $1 ORDER BY id ASC", id.String()); err != nil {
		return nil, err
	}
	for _, r := range replies {
		msg.Replies = append(msg.Replies, r.ToBackend())
	}

	var reactions []Reaction
	if _, err := db.Select(
		&reactions, "SELECT * FROM reaction WHERE message_id = $1 ORDER BY posted ASC", id.String()); err != nil {
		return nil, err
	}
	for _, r := range reactions {
		msg.Reactions = append(msg.Reactions, r.ToBackend())
	}

	return &msg, nil
}

func (b *Backend) AddReply(ctx scope.Context, id snowflake.Snowflake, reply proto.Reply) (
	*proto.Message, error) {

	body, err := proto.NormalizeBody(reply.Body)
	if err != nil {
		return nil, err
	}
	reply.Body = body
	if err := reply.Validate(); err != nil {
		return nil, err
	}

	t, err := b.DbMap.Begin()
	if err != nil {
		return nil, err
	}

	n, err := t.SelectInt("SELECT COUNT(*) FROM message WHERE id = $1", id.String())
	if err != nil {
		rollback(t, err)
		return nil, err
	}
	if n == 0 {
		rollback(t, nil)
		return nil, nil
	}

	if err := t.Insert(NewReply(id.String(), &reply)); err != nil {
		rollback(t, err)
		return nil, fmt.Errorf("insert reply: %s", err)
	}

	msg, err := b.get(t, id)
	if err != nil {
		rollback(t, err)
		return nil, err
	}

	if err := t.Commit(); err != nil {
		return nil, err
	}
	return msg, nil
}

func (b *Backend) ToggleReaction(
	ctx scope.Context, id snowflake.Snowflake, sender *proto.UserView, emoji string) (
	*proto.Message, error) {

	t, err := b.DbMap.Begin()
	if err != nil {
		return nil, err
	}

	n, err := t.SelectInt("SELECT COUNT(*) FROM message WHERE id = $1", id.String())
	if err != nil {
		rollback(t, err)
		return nil, err
	}
	if n == 0 {
		rollback(t, nil)
		return nil, nil
	}

	var existing []Reaction
	if _, err := t.Select(
		&existing, "SELECT * FROM reaction WHERE message_id = $1 AND sender_id = $2",
		id.String(), string(sender.ID)); err != nil {
		rollback(t, err)
		return nil, err
	}

	switch {
	case len(existing) == 0:
		row := &Reaction{
			MessageID:    id.String(),
			SenderID:     string(sender.ID),
			SenderName:   sender.Name,
			SenderAvatar: sender.Avatar,
			Emoji:        emoji,
			Posted:       snowflake.Clock(),
		}
		if err := t.Insert(row); err != nil {
			rollback(t, err)
			return nil, fmt.Errorf("insert reaction: %s", err)
		}
	case existing[0].Emoji == emoji:
		if _, err := t.Delete(&existing[0]); err != nil {
			rollback(t, err)
			return nil, fmt.Errorf("delete reaction: %s", err)
		}
	default:
		// replacing the emoji keeps the reaction's original position
		existing[0].Emoji = emoji
		if _, err := t.Update(&existing[0]); err != nil {
			rollback(t, err)
			return nil, fmt.Errorf("update reaction: %s", err)
		}
	}

	msg, err := b.get(t, id)
	if err != nil {
		rollback(t, err)
		return nil, err
	}

	if err := t.Commit(); err != nil {
		return nil, err
	}
	return msg, nil
}

func (b *Backend) Delete(ctx scope.Context, id snowflake.Snowflake, sender proto.UserID) (
	bool, error) {

	t, err := b.DbMap.Begin()
	if err != nil {
		return false, err
	}

	row, err := t.Get(Message{}, id.String())
	if err != nil {
		rollback(t, err)
		return false, err
	}
	if row == nil || row.(*Message).SenderID != string(sender) {
		rollback(t, nil)
		return false, nil
	}

	for _, query := range []string{
		"DELETE FROM reaction WHERE message_id = $1",
		"DELETE FROM reply WHERE message_id = $1",
		"DELETE FROM message WHERE id = $1",
	} {
		if _, err := t.Exec(query, id.String()); err != nil {
			rollback(t, err)
			return false, fmt.Errorf("cascade delete: %s", err)
		}
	}

	if err := t.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

func rollback(t *gorp.Transaction, cause error) {
	if err := t.Rollback(); err != nil && cause == nil {
		log.Printf("rollback error: %s", err)
	}
}
