package backend

import (
	"sync"

	"euphoria.io/scope"

	"cosmicwatch.io/sector/proto"
	"cosmicwatch.io/sector/proto/logging"
	"cosmicwatch.io/sector/proto/snowflake"
)

// mutationStripes bounds the number of messages that can be mutated
// concurrently. Mutations of the same message always share a stripe,
// so they never interleave and their broadcasts leave in apply order.
const mutationStripes = 64

// The Hub is the synchronization authority over the sector log. It
// holds the set of live sessions, serializes mutation intents per
// message, applies them to the backend, and fans the canonical result
// out to every session, including the intent's own.
//
// A broadcast is only ever issued after the backend write returns, so
// no session sees a record that a concurrent backlog fetch would not
// also return.
type Hub struct {
	m       sync.Mutex
	b       proto.Backend
	live    map[string]proto.Session
	stripes [mutationStripes]sync.Mutex
}

func NewHub(b proto.Backend) *Hub {
	return &Hub{
		b:    b,
		live: map[string]proto.Session{},
	}
}

func (h *Hub) Version() string { return h.b.Version() }

func (h *Hub) stripe(id snowflake.Snowflake) *sync.Mutex {
	return &h.stripes[uint64(id)%mutationStripes]
}

// Listing returns the full backlog. Reads are not serialized against
// writes; a stale snapshot is acceptable because every write is
// followed by a broadcast that all live sessions receive.
func (h *Hub) Listing(ctx scope.Context) ([]proto.Message, error) { return h.b.Listing(ctx) }

func (h *Hub) Join(ctx scope.Context, session proto.Session) {
	h.m.Lock()
	defer h.m.Unlock()

	h.live[session.ID()] = session
	sessionGauge.Set(float64(len(h.live)))
}

func (h *Hub) Part(ctx scope.Context, session proto.Session) {
	h.m.Lock()
	defer h.m.Unlock()

	delete(h.live, session.ID())
	sessionGauge.Set(float64(len(h.live)))
}

// Send creates a message from the session's identity and the given
// content, persists it, and broadcasts a send-event.
func (h *Hub) Send(ctx scope.Context, session proto.Session, cmd *proto.SendCommand) (
	proto.Message, error) {

	id, err := snowflake.New()
	if err != nil {
		return proto.Message{}, err
	}

	msg := proto.Message{
		ID:         id,
		UnixTime:   proto.Time(id.Time()),
		Sender:     session.Identity().View(),
		Body:       cmd.Body,
		Attachment: cmd.Attachment,
		Reference:  cmd.Reference,
	}

	lock := h.stripe(id)
	lock.Lock()
	defer lock.Unlock()

	msg, err = h.b.Send(ctx, msg)
	if err != nil {
		droppedCounter.WithLabelValues("invalid").Inc()
		return proto.Message{}, err
	}

	sentCounter.Inc()
	h.broadcast(ctx, proto.SendEventType, proto.SendEvent(msg))
	return msg, nil
}

// AddReply appends a reply to an existing message and broadcasts an
// update-event with the full canonical record. A missing target is a
// benign race with a delete: nil is returned and nothing is broadcast.
func (h *Hub) AddReply(ctx scope.Context, session proto.Session, cmd *proto.AddReplyCommand) (
	*proto.Message, error) {

	id, err := snowflake.New()
	if err != nil {
		return nil, err
	}

	reply := proto.Reply{
		ID:         id,
		UnixTime:   proto.Time(id.Time()),
		Sender:     session.Identity().View(),
		Body:       cmd.Body,
		Attachment: cmd.Attachment,
		Reference:  cmd.Reference,
	}

	lock := h.stripe(cmd.MessageID)
	lock.Lock()
	defer lock.Unlock()

	msg, err := h.b.AddReply(ctx, cmd.MessageID, reply)
	if err != nil {
		droppedCounter.WithLabelValues("invalid").Inc()
		return nil, err
	}
	if msg == nil {
		droppedCounter.WithLabelValues("missing").Inc()
		logging.Logger(ctx).Printf("reply to %s dropped: message gone", cmd.MessageID)
		return nil, nil
	}

	replyCounter.Inc()
	h.broadcast(ctx, proto.UpdateEventType, proto.UpdateEvent(*msg))
	return msg, nil
}

// ToggleReaction applies the session's reaction toggle and broadcasts
// an update-event with the full canonical record.
func (h *Hub) ToggleReaction(ctx scope.Context, session proto.Session, cmd *proto.ReactCommand) (
	*proto.Message, error) {

	lock := h.stripe(cmd.MessageID)
	lock.Lock()
	defer lock.Unlock()

	msg, err := h.b.ToggleReaction(ctx, cmd.MessageID, session.Identity().View(), cmd.Emoji)
	if err != nil {
		droppedCounter.WithLabelValues("invalid").Inc()
		return nil, err
	}
	if msg == nil {
		droppedCounter.WithLabelValues("missing").Inc()
		logging.Logger(ctx).Printf("reaction on %s dropped: message gone", cmd.MessageID)
		return nil, nil
	}

	reactionCounter.Inc()
	h.broadcast(ctx, proto.UpdateEventType, proto.UpdateEvent(*msg))
	return msg, nil
}

// Delete removes the message if the session's identity is its author,
// then broadcasts a delete-event carrying the bare id. Unauthorized
// and missing targets are indistinguishable to the caller.
func (h *Hub) Delete(ctx scope.Context, session proto.Session, id snowflake.Snowflake) (
	bool, error) {

	lock := h.stripe(id)
	lock.Lock()
	defer lock.Unlock()

	deleted, err := h.b.Delete(ctx, id, session.Identity().ID())
	if err != nil {
		return false, err
	}
	if !deleted {
		droppedCounter.WithLabelValues("denied").Inc()
		logging.Logger(ctx).Printf("delete of %s dropped: missing or not owner", id)
		return false, nil
	}

	deleteCounter.Inc()
	h.broadcast(ctx, proto.DeleteEventType, proto.DeleteEvent{ID: id})
	return true, nil
}

func (h *Hub) broadcast(ctx scope.Context, ptype proto.PacketType, payload interface{}) {
	h.m.Lock()
	defer h.m.Unlock()

	for _, session := range h.live {
		if err := session.Send(ctx, ptype, payload); err != nil {
			logging.Logger(ctx).Printf("broadcast to %s failed: %s", session.ID(), err)
		}
	}
}
