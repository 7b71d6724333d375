package mock

import (
	"sync"

	"euphoria.io/scope"

	"cosmicwatch.io/sector/proto"
	"cosmicwatch.io/sector/proto/snowflake"
)

// TestBackend is an in-memory proto.Backend. It backs unit tests and
// the dev-mode server.
type TestBackend struct {
	sync.Mutex
	version string
	msgs    []*proto.Message
}

func NewBackend(version string) *TestBackend { return &TestBackend{version: version} }

func (b *TestBackend) Version() string { return b.version }
func (b *TestBackend) Close()          {}

// clone detaches the nested slices so callers never alias canonical
// state.
func clone(msg *proto.Message) *proto.Message {
	copied := *msg
	copied.Reactions = append([]proto.Reaction{}, msg.Reactions...)
	copied.Replies = append([]proto.Reply{}, msg.Replies...)
	return &copied
}

func (b *TestBackend) locate(id snowflake.Snowflake) int {
	for i, msg := range b.msgs {
		if msg.ID == id {
			return i
		}
	}
	return -1
}

func (b *TestBackend) Listing(ctx scope.Context) ([]proto.Message, error) {
	b.Lock()
	defer b.Unlock()

	listing := make([]proto.Message, len(b.msgs))
	for i, msg := range b.msgs {
		listing[i] = *clone(msg)
	}
	return listing, nil
}

func (b *TestBackend) Send(ctx scope.Context, msg proto.Message) (proto.Message, error) {
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

	b.Lock()
	defer b.Unlock()

	b.msgs = append(b.msgs, clone(&msg))
	return msg, nil
}

func (b *TestBackend) Get(ctx scope.Context, id snowflake.Snowflake) (*proto.Message, error) {
	b.Lock()
	defer b.Unlock()

	i := b.locate(id)
	if i < 0 {
		return nil, nil
	}
	return clone(b.msgs[i]), nil
}

func (b *TestBackend) AddReply(ctx scope.Context, id snowflake.Snowflake, reply proto.Reply) (
	*proto.Message, error) {

	body, err := proto.NormalizeBody(reply.Body)
	if err != nil {
		return nil, err
	}
	reply.Body = body
	if err := reply.Validate(); err != nil {
		return nil, err
	}

	b.Lock()
	defer b.Unlock()

	i := b.locate(id)
	if i < 0 {
		return nil, nil
	}
	b.msgs[i].Replies = append(b.msgs[i].Replies, reply)
	return clone(b.msgs[i]), nil
}

func (b *TestBackend) ToggleReaction(
	ctx scope.Context, id snowflake.Snowflake, sender *proto.UserView, emoji string) (
	*proto.Message, error) {

	b.Lock()
	defer b.Unlock()

	i := b.locate(id)
	if i < 0 {
		return nil, nil
	}
	b.msgs[i].Reactions = proto.ToggleReaction(b.msgs[i].Reactions, sender, emoji)
	return clone(b.msgs[i]), nil
}

func (b *TestBackend) Delete(ctx scope.Context, id snowflake.Snowflake, sender proto.UserID) (
	bool, error) {

	b.Lock()
	defer b.Unlock()

	i := b.locate(id)
	if i < 0 {
		return false, nil
	}
	if b.msgs[i].Sender == nil || b.msgs[i].Sender.ID != sender {
		return false, nil
	}
	b.msgs = append(b.msgs[:i], b.msgs[i+1:]...)
	return true, nil
}
