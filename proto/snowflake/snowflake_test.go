package snowflake

import (
	"encoding/json"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestSnowflake(t *testing.T) {
	Convey("Generated ids are unique and ascending", t, func() {
		a, err := New()
		So(err, ShouldBeNil)
		b, err := New()
		So(err, ShouldBeNil)
		So(a.Before(b), ShouldBeTrue)
		So(a.String(), ShouldNotEqual, b.String())
	})

	Convey("String form round-trips", t, func() {
		s, err := New()
		So(err, ShouldBeNil)
		parsed, err := NewFromString(s.String())
		So(err, ShouldBeNil)
		So(parsed, ShouldEqual, s)
	})

	Convey("Zero marshals as empty string", t, func() {
		var s Snowflake
		So(s.IsZero(), ShouldBeTrue)
		data, err := json.Marshal(s)
		So(err, ShouldBeNil)
		So(string(data), ShouldEqual, `""`)

		var parsed Snowflake
		So(json.Unmarshal(data, &parsed), ShouldBeNil)
		So(parsed.IsZero(), ShouldBeTrue)
	})

	Convey("Lexicographic order agrees with numeric order", t, func() {
		So(Snowflake(1).String() < Snowflake(2).String(), ShouldBeTrue)
		So(Snowflake(35).String() < Snowflake(36).String(), ShouldBeTrue)
	})
}
