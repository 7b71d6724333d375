package mock

import (
	"testing"

	"euphoria.io/scope"

	"cosmicwatch.io/sector/proto"
	"cosmicwatch.io/sector/proto/snowflake"

	. "github.com/smartystreets/goconvey/convey"
)

func newTestMessage(t *testing.T, sender *proto.UserView, body string) proto.Message {
	id, err := snowflake.New()
	if err != nil {
		t.Fatal(err)
	}
	return proto.Message{
		ID:       id,
		UnixTime: proto.Time(id.Time()),
		Sender:   sender,
		Body:     body,
	}
}

func TestBackendSend(t *testing.T) {
	ctx := scope.New()
	u1 := &proto.UserView{ID: "u1", Name: "commander"}

	Convey("Sent messages appear in the listing in send order", t, func() {
		b := NewBackend("dev")
		first, err := b.Send(ctx, newTestMessage(t, u1, "hello"))
		So(err, ShouldBeNil)
		So(first.Body, ShouldEqual, "hello")
		So(first.Reactions, ShouldResemble, []proto.Reaction{})
		So(first.Replies, ShouldResemble, []proto.Reply{})

		second, err := b.Send(ctx, newTestMessage(t, u1, "world"))
		So(err, ShouldBeNil)

		listing, err := b.Listing(ctx)
		So(err, ShouldBeNil)
		So(listing, ShouldResemble, []proto.Message{first, second})
	})

	Convey("Invalid messages are rejected", t, func() {
		b := NewBackend("dev")
		_, err := b.Send(ctx, newTestMessage(t, u1, "   "))
		So(err, ShouldEqual, proto.ErrInvalidMessage)

		_, err = b.Send(ctx, newTestMessage(t, nil, "hello"))
		So(err, ShouldEqual, proto.ErrInvalidMessage)

		listing, err := b.Listing(ctx)
		So(err, ShouldBeNil)
		So(listing, ShouldResemble, []proto.Message{})
	})

	Convey("A reference alone is enough", t, func() {
		b := NewBackend("dev")
		msg := newTestMessage(t, u1, "")
		msg.Reference = &proto.ReferenceObject{ReferenceID: "2099 AX3"}
		sent, err := b.Send(ctx, msg)
		So(err, ShouldBeNil)
		So(sent.Reference.ReferenceID, ShouldEqual, "2099 AX3")
	})
}

func TestBackendReplies(t *testing.T) {
	ctx := scope.New()
	u1 := &proto.UserView{ID: "u1", Name: "commander"}
	u2 := &proto.UserView{ID: "u2", Name: "navigator"}

	Convey("Replies append in order", t, func() {
		b := NewBackend("dev")
		msg, err := b.Send(ctx, newTestMessage(t, u1, "hello"))
		So(err, ShouldBeNil)

		updated, err := b.AddReply(ctx, msg.ID, proto.Reply{Sender: u2, Body: "ack"})
		So(err, ShouldBeNil)
		So(updated, ShouldNotBeNil)
		So(len(updated.Replies), ShouldEqual, 1)

		updated, err = b.AddReply(ctx, msg.ID, proto.Reply{Sender: u1, Body: "copy"})
		So(err, ShouldBeNil)
		So(updated.Replies[0].Body, ShouldEqual, "ack")
		So(updated.Replies[1].Body, ShouldEqual, "copy")
	})

	Convey("Replying to a missing message is a silent no-op", t, func() {
		b := NewBackend("dev")
		updated, err := b.AddReply(ctx, snowflake.Snowflake(12345), proto.Reply{Sender: u2, Body: "ack"})
		So(err, ShouldBeNil)
		So(updated, ShouldBeNil)
	})

	Convey("Invalid replies are rejected", t, func() {
		b := NewBackend("dev")
		msg, err := b.Send(ctx, newTestMessage(t, u1, "hello"))
		So(err, ShouldBeNil)

		_, err = b.AddReply(ctx, msg.ID, proto.Reply{Sender: u2})
		So(err, ShouldEqual, proto.ErrInvalidMessage)
	})
}

func TestBackendReactions(t *testing.T) {
	ctx := scope.New()
	u1 := &proto.UserView{ID: "u1", Name: "commander"}
	u2 := &proto.UserView{ID: "u2", Name: "navigator"}

	Convey("Reactions toggle per sender", t, func() {
		b := NewBackend("dev")
		msg, err := b.Send(ctx, newTestMessage(t, u1, "hello"))
		So(err, ShouldBeNil)

		updated, err := b.ToggleReaction(ctx, msg.ID, u1, "🚀")
		So(err, ShouldBeNil)
		So(updated.Reactions, ShouldResemble, []proto.Reaction{{Sender: u1, Emoji: "🚀"}})

		updated, err = b.ToggleReaction(ctx, msg.ID, u1, "🚀")
		So(err, ShouldBeNil)
		So(updated.Reactions, ShouldResemble, []proto.Reaction{})

		updated, err = b.ToggleReaction(ctx, msg.ID, u1, "☄️")
		So(err, ShouldBeNil)
		updated, err = b.ToggleReaction(ctx, msg.ID, u1, "🚀")
		So(err, ShouldBeNil)
		So(updated.Reactions, ShouldResemble, []proto.Reaction{{Sender: u1, Emoji: "🚀"}})
	})

	Convey("Different senders react independently", t, func() {
		b := NewBackend("dev")
		msg, err := b.Send(ctx, newTestMessage(t, u1, "hello"))
		So(err, ShouldBeNil)

		_, err = b.ToggleReaction(ctx, msg.ID, u1, "🚀")
		So(err, ShouldBeNil)
		updated, err := b.ToggleReaction(ctx, msg.ID, u2, "☄️")
		So(err, ShouldBeNil)
		So(updated.Reactions, ShouldResemble, []proto.Reaction{
			{Sender: u1, Emoji: "🚀"},
			{Sender: u2, Emoji: "☄️"},
		})
	})

	Convey("Reacting to a missing message is a silent no-op", t, func() {
		b := NewBackend("dev")
		updated, err := b.ToggleReaction(ctx, snowflake.Snowflake(12345), u1, "🚀")
		So(err, ShouldBeNil)
		So(updated, ShouldBeNil)
	})
}

func TestBackendDelete(t *testing.T) {
	ctx := scope.New()
	u1 := &proto.UserView{ID: "u1", Name: "commander"}
	u2 := &proto.UserView{ID: "u2", Name: "navigator"}

	Convey("Only the author may delete, and deletion cascades", t, func() {
		b := NewBackend("dev")
		msg, err := b.Send(ctx, newTestMessage(t, u1, "hello"))
		So(err, ShouldBeNil)
		_, err = b.AddReply(ctx, msg.ID, proto.Reply{Sender: u2, Body: "ack"})
		So(err, ShouldBeNil)
		_, err = b.ToggleReaction(ctx, msg.ID, u2, "🚀")
		So(err, ShouldBeNil)

		deleted, err := b.Delete(ctx, msg.ID, "u2")
		So(err, ShouldBeNil)
		So(deleted, ShouldBeFalse)

		found, err := b.Get(ctx, msg.ID)
		So(err, ShouldBeNil)
		So(found, ShouldNotBeNil)

		deleted, err = b.Delete(ctx, msg.ID, "u1")
		So(err, ShouldBeNil)
		So(deleted, ShouldBeTrue)

		found, err = b.Get(ctx, msg.ID)
		So(err, ShouldBeNil)
		So(found, ShouldBeNil)

		listing, err := b.Listing(ctx)
		So(err, ShouldBeNil)
		So(listing, ShouldResemble, []proto.Message{})
	})

	Convey("Deleting a missing message reports false", t, func() {
		b := NewBackend("dev")
		deleted, err := b.Delete(ctx, snowflake.Snowflake(12345), "u1")
		So(err, ShouldBeNil)
		So(deleted, ShouldBeFalse)
	})

	Convey("Listing copies do not alias canonical state", t, func() {
		b := NewBackend("dev")
		msg, err := b.Send(ctx, newTestMessage(t, u1, "hello"))
		So(err, ShouldBeNil)

		listing, err := b.Listing(ctx)
		So(err, ShouldBeNil)
		listing[0].Reactions = append(listing[0].Reactions, proto.Reaction{Sender: u2, Emoji: "🚀"})

		found, err := b.Get(ctx, msg.ID)
		So(err, ShouldBeNil)
		So(found.Reactions, ShouldResemble, []proto.Reaction{})
	})
}
