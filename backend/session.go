package backend

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"euphoria.io/scope"
	"github.com/gorilla/websocket"

	"cosmicwatch.io/sector/proto"
	"cosmicwatch.io/sector/proto/logging"
	"cosmicwatch.io/sector/proto/snowflake"
)

const MaxKeepAliveMisses = 3

var (
	KeepAlive       = 20 * time.Second
	ErrUnresponsive = fmt.Errorf("connection unresponsive")
	ErrSlowConsumer = fmt.Errorf("outgoing queue overflowed")
)

// A session is one client's channel to the hub. A read pump feeds
// inbound packets into incoming; the serve loop multiplexes commands,
// hub broadcasts, and keepalive pings onto the single connection.
type session struct {
	ctx      scope.Context
	conn     *websocket.Conn
	identity proto.Identity
	hub      *Hub
	id       string
	version  string

	incoming chan *proto.Packet
	outgoing chan *proto.Packet

	outstandingPings uint32
}

func newSession(
	ctx scope.Context, hub *Hub, conn *websocket.Conn, identity proto.Identity,
	version string) (*session, error) {

	sf, err := snowflake.New()
	if err != nil {
		return nil, err
	}
	id := fmt.Sprintf("%s-%s", identity.ID(), sf)

	s := &session{
		ctx:      logging.LoggingContext(ctx.Fork(), logWriter, fmt.Sprintf("[%s] ", id)),
		conn:     conn,
		identity: identity,
		hub:      hub,
		id:       id,
		version:  version,

		incoming: make(chan *proto.Packet),
		outgoing: make(chan *proto.Packet, 100),
	}

	conn.SetPongHandler(s.handlePong)
	return s, nil
}

func (s *session) ID() string               { return s.id }
func (s *session) Identity() proto.Identity { return s.identity }
func (s *session) Close()                   { s.ctx.Cancel() }

// Send enqueues a packet for delivery. It never blocks: a session
// whose buffer is full is terminated instead, and the client recovers
// by reconnecting for a fresh snapshot.
func (s *session) Send(ctx scope.Context, ptype proto.PacketType, payload interface{}) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	cmd := &proto.Packet{
		Type: ptype,
		Data: encoded,
	}

	select {
	case s.outgoing <- cmd:
		return nil
	default:
		s.Close()
		return ErrSlowConsumer
	}
}

func (s *session) handlePong(string) error {
	atomic.StoreUint32(&s.outstandingPings, 0)
	return nil
}

func (s *session) serve() error {
	go s.readMessages()

	logger := logging.Logger(s.ctx)
	logger.Printf("client connected")

	if err := s.sendSnapshot(); err != nil {
		logger.Printf("error: snapshot: %s", err)
		return err
	}

	keepalive := time.NewTimer(KeepAlive)
	defer keepalive.Stop()

	for {
		select {

		case <-s.ctx.Done():
			// connection forced to close
			return s.ctx.Err()

		case <-keepalive.C:
			// keepalive expired
			if pings := atomic.AddUint32(&s.outstandingPings, 1); pings > MaxKeepAliveMisses {
				logger.Printf("connection timed out")
				return ErrUnresponsive
			}

			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
			keepalive.Reset(KeepAlive)

		case cmd := <-s.incoming:
			keepalive.Stop()

			reply, err := s.handleCommand(cmd)
			if err != nil {
				logger.Printf("error: handleCommand: %s", err)
				reply = err
			}

			resp, err := proto.MakeResponse(cmd.ID, cmd.Type, reply)
			if err != nil {
				logger.Printf("error: MakeResponse: %s", err)
				return err
			}

			if err := s.writePacket(resp); err != nil {
				logger.Printf("error: write message: %s", err)
				return err
			}

			keepalive.Reset(KeepAlive)

		case cmd := <-s.outgoing:
			if err := s.writePacket(cmd); err != nil {
				logger.Printf("error: write message: %s", err)
				return err
			}
		}
	}
}

func (s *session) writePacket(packet *proto.Packet) error {
	data, err := packet.Encode()
	if err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *session) readMessages() {
	logger := logging.Logger(s.ctx)
	defer s.Close()

	for s.ctx.Err() == nil {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Printf("client disconnected")
				return
			}
			logger.Printf("error: read message: %s", err)
			return
		}

		switch messageType {
		case websocket.TextMessage:
			cmd, err := proto.ParseRequest(data)
			if err != nil {
				logger.Printf("error: ParseRequest: %s", err)
				return
			}
			s.incoming <- cmd
		default:
			logger.Printf("error: unsupported message type: %v", messageType)
			return
		}
	}
}

// handleCommand resolves an intent against the hub. Intents that race
// with a delete resolve to an empty reply rather than an error; the
// same empty reply is returned for an unauthorized delete, so the
// channel reveals nothing about what exists or who owns it.
func (s *session) handleCommand(cmd *proto.Packet) (interface{}, error) {
	payload, err := cmd.Payload()
	if err != nil {
		return nil, fmt.Errorf("payload: %s", err)
	}

	switch msg := payload.(type) {
	case *proto.SendCommand:
		sent, err := s.hub.Send(s.ctx, s, msg)
		if err != nil {
			return nil, err
		}
		return proto.SendReply(sent), nil
	case *proto.AddReplyCommand:
		updated, err := s.hub.AddReply(s.ctx, s, msg)
		if err != nil {
			return nil, err
		}
		return &proto.AddReplyReply{Message: updated}, nil
	case *proto.ReactCommand:
		updated, err := s.hub.ToggleReaction(s.ctx, s, msg)
		if err != nil {
			return nil, err
		}
		return &proto.ReactReply{Message: updated}, nil
	case *proto.DeleteCommand:
		if _, err := s.hub.Delete(s.ctx, s, msg.MessageID); err != nil {
			return nil, err
		}
		return &proto.DeleteReply{}, nil
	default:
		return nil, fmt.Errorf("command type %T not implemented", payload)
	}
}

func (s *session) sendSnapshot() error {
	msgs, err := s.hub.Listing(s.ctx)
	if err != nil {
		return err
	}

	snapshot := &proto.SnapshotEvent{
		SessionID: s.id,
		Identity:  s.identity.ID(),
		Version:   s.version,
		Log:       msgs,
	}

	event, err := proto.MakeEvent(proto.SnapshotEventType, snapshot)
	if err != nil {
		return err
	}
	s.outgoing <- event
	return nil
}
