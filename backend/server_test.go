package backend

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"euphoria.io/scope"
	"github.com/gorilla/websocket"

	"cosmicwatch.io/sector/backend/mock"
	"cosmicwatch.io/sector/proto"

	. "github.com/smartystreets/goconvey/convey"
)

func TestCheckOrigin(t *testing.T) {
	tc := func(host, origin string) *http.Request {
		return &http.Request{
			Header: http.Header{"Origin": []string{origin}},
			Host:   host,
		}
	}

	Convey("CheckOrigin", t, func() {
		Convey("Accept if no origin is given", func() {
			So(checkOrigin(&http.Request{Host: "sector"}), ShouldBeTrue)
		})

		Convey("Accept if origin host matches request host", func() {
			So(checkOrigin(tc("sector", "http://sector/ws")), ShouldBeTrue)
		})

		Convey("Accept if www. plus origin host matches request host", func() {
			So(checkOrigin(tc("sector", "http://www.sector/ws")), ShouldBeTrue)
		})

		Convey("Reject if origin host fails to match request host", func() {
			So(checkOrigin(tc("sector", "http://ftp.sector/ws")), ShouldBeFalse)
			So(checkOrigin(tc("sector", "http://sector2/ws")), ShouldBeFalse)
		})

		Convey("Reject if origin is not a valid URL", func() {
			So(checkOrigin(tc("sector", "http://sector/%")), ShouldBeFalse)
		})
	})
}

type testConn struct {
	*websocket.Conn
}

func (tc *testConn) expect(t *testing.T, ptype proto.PacketType) *proto.Packet {
	t.Helper()
	for {
		_, data, err := tc.ReadMessage()
		if err != nil {
			t.Fatalf("read: %s", err)
		}
		packet, err := proto.ParseRequest(data)
		if err != nil {
			t.Fatalf("parse: %s", err)
		}
		if packet.Type == ptype {
			return packet
		}
	}
}

func (tc *testConn) command(t *testing.T, id string, ptype proto.PacketType, payload interface{}) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	packet := &proto.Packet{ID: id, Type: ptype, Data: data}
	encoded, err := packet.Encode()
	if err != nil {
		t.Fatal(err)
	}
	if err := tc.WriteMessage(websocket.TextMessage, encoded); err != nil {
		t.Fatal(err)
	}
}

func dialAs(t *testing.T, server *Server, ts *httptest.Server, view proto.UserView) *testConn {
	t.Helper()
	ic := &identityCredentials{ID: string(view.ID), Name: view.Name, Avatar: view.Avatar}
	cookie, err := ic.Cookie(server.sc)
	if err != nil {
		t.Fatal(err)
	}

	headers := http.Header{}
	headers.Add("Cookie", cookie.String())
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, headers)
	if err != nil {
		t.Fatalf("dial: %s", err)
	}
	return &testConn{conn}
}

func TestServer(t *testing.T) {
	ctx := scope.New()
	defer ctx.Cancel()

	key := make([]byte, 32)
	server := NewServer(ctx, mock.NewBackend("testver"), key, "testver")
	ts := httptest.NewServer(server)
	defer ts.Close()

	Convey("Connecting yields a snapshot of the backlog", t, func() {
		conn := dialAs(t, server, ts, proto.UserView{ID: "u1", Name: "commander"})
		defer conn.Close()

		packet := conn.expect(t, proto.SnapshotEventType)
		payload, err := packet.Payload()
		So(err, ShouldBeNil)
		snapshot := payload.(*proto.SnapshotEvent)
		So(snapshot.Identity, ShouldEqual, proto.UserID("u1"))
		So(snapshot.Version, ShouldEqual, "testver")
		So(snapshot.Log, ShouldResemble, []proto.Message{})
	})

	Convey("A send is acked and broadcast to all connections", t, func() {
		c1 := dialAs(t, server, ts, proto.UserView{ID: "u1", Name: "commander"})
		defer c1.Close()
		c2 := dialAs(t, server, ts, proto.UserView{ID: "u2", Name: "navigator"})
		defer c2.Close()
		c1.expect(t, proto.SnapshotEventType)
		c2.expect(t, proto.SnapshotEventType)

		c1.command(t, "1", proto.SendType, &proto.SendCommand{Body: "hello"})

		reply := c1.expect(t, proto.SendReplyType)
		So(reply.ID, ShouldEqual, "1")
		payload, err := reply.Payload()
		So(err, ShouldBeNil)
		sent := proto.Message(*payload.(*proto.SendReply))
		So(sent.Sender.ID, ShouldEqual, proto.UserID("u1"))
		So(sent.Body, ShouldEqual, "hello")

		for _, conn := range []*testConn{c1, c2} {
			event := conn.expect(t, proto.SendEventType)
			payload, err := event.Payload()
			So(err, ShouldBeNil)
			So(proto.Message(*payload.(*proto.SendEvent)), ShouldResemble, sent)
		}

		Convey("and the REST backlog returns the same record", func() {
			resp, err := http.Get(ts.URL + "/api/messages")
			So(err, ShouldBeNil)
			defer resp.Body.Close()
			So(resp.Header.Get("X-Sector-Version"), ShouldEqual, "testver")

			msgs := []proto.Message{}
			So(json.NewDecoder(resp.Body).Decode(&msgs), ShouldBeNil)
			found := false
			for _, msg := range msgs {
				if msg.ID == sent.ID {
					found = true
				}
			}
			So(found, ShouldBeTrue)
		})

		Convey("and a reconnecting client finds it in the snapshot", func() {
			c3 := dialAs(t, server, ts, proto.UserView{ID: "u3", Name: "observer"})
			defer c3.Close()

			packet := c3.expect(t, proto.SnapshotEventType)
			payload, err := packet.Payload()
			So(err, ShouldBeNil)
			snapshot := payload.(*proto.SnapshotEvent)
			found := false
			for _, msg := range snapshot.Log {
				if msg.ID == sent.ID {
					found = true
				}
			}
			So(found, ShouldBeTrue)
		})
	})

	Convey("An invalid send produces an error reply and no broadcast", t, func() {
		c1 := dialAs(t, server, ts, proto.UserView{ID: "u1", Name: "commander"})
		defer c1.Close()
		c1.expect(t, proto.SnapshotEventType)

		c1.command(t, "2", proto.SendType, &proto.SendCommand{})
		reply := c1.expect(t, proto.ErrorReplyType)
		So(reply.Error, ShouldEqual, "invalid message")
	})

	Convey("The probe endpoint responds", t, func() {
		req, err := http.NewRequest("OPTIONS", ts.URL+"/", nil)
		So(err, ShouldBeNil)
		resp, err := http.DefaultClient.Do(req)
		So(err, ShouldBeNil)
		resp.Body.Close()
		So(resp.StatusCode, ShouldEqual, http.StatusOK)
	})
}
