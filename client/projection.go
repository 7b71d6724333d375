package client

import (
	"sync"
	"time"

	"cosmicwatch.io/sector/proto"
	"cosmicwatch.io/sector/proto/snowflake"
)

// A Projection is a client's ordered, deduplicated view of the sector
// log, derived entirely from hub events. It never mutates canonical
// state; it only replays what the hub broadcast. Two projections fed
// the same event sequence end up identical.
type Projection struct {
	m    sync.Mutex
	msgs []proto.Message
}

func NewProjection() *Projection { return &Projection{msgs: []proto.Message{}} }

// Apply routes a hub packet into the projection. Packets that carry no
// log state, such as command replies, are ignored.
func (p *Projection) Apply(packet *proto.Packet) error {
	payload, err := packet.Payload()
	if err != nil {
		return err
	}

	switch event := payload.(type) {
	case *proto.SnapshotEvent:
		p.ApplySnapshot(event.Log)
	case *proto.SendEvent:
		p.ApplyCreated(proto.Message(*event))
	case *proto.UpdateEvent:
		p.ApplyUpdated(proto.Message(*event))
	case *proto.DeleteEvent:
		p.ApplyDeleted(event.ID)
	}
	return nil
}

// ApplySnapshot replaces the view wholesale with the backlog.
func (p *Projection) ApplySnapshot(log []proto.Message) {
	p.m.Lock()
	defer p.m.Unlock()

	p.msgs = append([]proto.Message{}, log...)
}

// ApplyCreated appends a new message to the tail. If the id is already
// present, as happens when a broadcast races the connect-time
// snapshot, the existing copy is replaced in place instead.
func (p *Projection) ApplyCreated(msg proto.Message) {
	p.m.Lock()
	defer p.m.Unlock()

	if i := p.locate(msg.ID); i >= 0 {
		p.msgs[i] = msg
		return
	}
	p.msgs = append(p.msgs, msg)
}

// ApplyUpdated replaces the identified message wholesale with the
// canonical record. An unknown id is ignored; the message was deleted
// before this client ever saw it.
func (p *Projection) ApplyUpdated(msg proto.Message) {
	p.m.Lock()
	defer p.m.Unlock()

	if i := p.locate(msg.ID); i >= 0 {
		p.msgs[i] = msg
	}
}

func (p *Projection) ApplyDeleted(id snowflake.Snowflake) {
	p.m.Lock()
	defer p.m.Unlock()

	if i := p.locate(id); i >= 0 {
		p.msgs = append(p.msgs[:i], p.msgs[i+1:]...)
	}
}

// locate is an O(n) scan; fine at this scale.
func (p *Projection) locate(id snowflake.Snowflake) int {
	for i, msg := range p.msgs {
		if msg.ID == id {
			return i
		}
	}
	return -1
}

// Messages returns a copy of the current view, oldest first.
func (p *Projection) Messages() []proto.Message {
	p.m.Lock()
	defer p.m.Unlock()

	return append([]proto.Message{}, p.msgs...)
}

// A Run is a consecutive stretch of messages by one sender. Rendering
// shows the sender and timestamp label once per run.
type Run struct {
	Sender   *proto.UserView
	Messages []proto.Message
}

// Runs groups the view into author-consecutive runs. A gap longer than
// window breaks a run even for the same sender, so the timestamp label
// resurfaces. It is a pure function of its input.
func Runs(msgs []proto.Message, window time.Duration) []Run {
	runs := []Run{}
	for _, msg := range msgs {
		if n := len(runs); n > 0 {
			last := &runs[n-1]
			prev := last.Messages[len(last.Messages)-1]
			sameSender := last.Sender != nil && msg.Sender != nil && last.Sender.ID == msg.Sender.ID
			if sameSender && msg.UnixTime.StdTime().Sub(prev.UnixTime.StdTime()) <= window {
				last.Messages = append(last.Messages, msg)
				continue
			}
		}
		runs = append(runs, Run{Sender: msg.Sender, Messages: []proto.Message{msg}})
	}
	return runs
}
