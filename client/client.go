package client

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"

	"euphoria.io/scope"
	"github.com/gorilla/websocket"

	"cosmicwatch.io/sector/proto"
	"cosmicwatch.io/sector/proto/logging"
	"cosmicwatch.io/sector/proto/snowflake"
)

// A Client maintains one session channel to the hub and feeds every
// inbound event into its Projection. Intents are fire-and-forget: a
// lost connection loses whatever was in flight, and reconnecting
// replaces the projection with a fresh snapshot.
type Client struct {
	ctx        scope.Context
	conn       *websocket.Conn
	projection *Projection
	updates    chan struct{}

	seq uint64
}

// Dial connects to a hub's websocket endpoint. Any cookies, in
// particular the identity cookie minted by the auth service, are
// supplied through the request header.
func Dial(ctx scope.Context, url string, header http.Header) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		return nil, fmt.Errorf("dial: %s", err)
	}

	c := &Client{
		ctx:        ctx,
		conn:       conn,
		projection: NewProjection(),
		updates:    make(chan struct{}, 1),
	}
	return c, nil
}

func (c *Client) Projection() *Projection { return c.projection }

func (c *Client) Messages() []proto.Message { return c.projection.Messages() }

// Updates signals after each applied event. The channel is coalescing:
// a slow reader sees at least one signal for any burst of events.
func (c *Client) Updates() <-chan struct{} { return c.updates }

func (c *Client) Close() error {
	c.ctx.Cancel()
	return c.conn.Close()
}

// Run reads events until the connection drops. It returns the read
// error; the caller decides whether to reconnect.
func (c *Client) Run() error {
	logger := logging.Logger(c.ctx)

	for c.ctx.Err() == nil {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return err
		}

		packet, err := proto.ParseRequest(data)
		if err != nil {
			logger.Printf("error: ParseRequest: %s", err)
			continue
		}

		if err := c.projection.Apply(packet); err != nil {
			logger.Printf("error: apply %s: %s", packet.Type, err)
			continue
		}

		select {
		case c.updates <- struct{}{}:
		default:
		}
	}
	return c.ctx.Err()
}

func (c *Client) command(ptype proto.PacketType, payload interface{}) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	packet := &proto.Packet{
		ID:   strconv.FormatUint(atomic.AddUint64(&c.seq, 1), 10),
		Type: ptype,
		Data: encoded,
	}

	data, err := packet.Encode()
	if err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) Send(body, attachment string, ref *proto.ReferenceObject) error {
	return c.command(proto.SendType, &proto.SendCommand{
		Body:       body,
		Attachment: attachment,
		Reference:  ref,
	})
}

func (c *Client) Reply(id snowflake.Snowflake, body, attachment string, ref *proto.ReferenceObject) error {
	return c.command(proto.AddReplyType, &proto.AddReplyCommand{
		MessageID:  id,
		Body:       body,
		Attachment: attachment,
		Reference:  ref,
	})
}

func (c *Client) React(id snowflake.Snowflake, emoji string) error {
	return c.command(proto.ReactType, &proto.ReactCommand{MessageID: id, Emoji: emoji})
}

func (c *Client) Delete(id snowflake.Snowflake) error {
	return c.command(proto.DeleteType, &proto.DeleteCommand{MessageID: id})
}
