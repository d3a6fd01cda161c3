package converter

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type point struct {
	X int    `json:"x" msgpack:"x" bson:"x"`
	Y int    `json:"y" msgpack:"y" bson:"y"`
	L string `json:"l" msgpack:"l" bson:"l"`
}

func TestRoundTrip(t *testing.T) {
	values := []point{{}, {X: 1, Y: -2, L: "a"}, {X: 1 << 20, L: "中文"}}
	converters := map[string]Converter{
		"json":    NewJSONConverter[point](),
		"msgpack": NewMsgPackConverter[point](),
		"bson":    NewBSONConverter[point](),
	}

	for name, c := range converters {
		for _, v := range values {
			db, err := c.ToDB(v)
			require.NoError(t, err, name)
			back, err := c.FromDB(db)
			require.NoError(t, err, name)
			assert.Equal(t, v, back, name)
		}
	}
}

func TestNilPassThrough(t *testing.T) {
	for _, c := range []Converter{
		NewJSONConverter[any](), NewMsgPackConverter[any](), NewBSONConverter[map[string]any](),
		NewProtoConverter(&wrapperspb.StringValue{}), Identity{}, Func{},
	} {
		v, err := c.ToDB(nil)
		assert.NoError(t, err)
		assert.Nil(t, v)
		v, err = c.FromDB(nil)
		assert.NoError(t, err)
		assert.Nil(t, v)
	}
}

func TestProtoConverter(t *testing.T) {
	Convey("ProtoConverter", t, func() {
		c := NewProtoConverter(&wrapperspb.StringValue{})

		db, err := c.ToDB(wrapperspb.String("hello"))
		So(err, ShouldBeNil)
		So(db, ShouldHaveSameTypeAs, []byte{})

		back, err := c.FromDB(db)
		So(err, ShouldBeNil)
		So(proto.Equal(back.(proto.Message), wrapperspb.String("hello")), ShouldBeTrue)

		_, err = c.ToDB("not a message")
		So(err, ShouldNotBeNil)
		_, err = c.FromDB(12)
		So(err, ShouldNotBeNil)
	})
}

func TestJSONConverter(t *testing.T) {
	Convey("JSONConverter", t, func() {
		c := NewJSONConverter[map[string]any]()

		Convey("存储为字符串", func() {
			db, err := c.ToDB(map[string]any{"a": "b"})
			So(err, ShouldBeNil)
			So(db, ShouldEqual, `{"a":"b"}`)
		})

		Convey("读取时接受 []byte", func() {
			v, err := c.FromDB([]byte(`{"n":1}`))
			So(err, ShouldBeNil)
			So(v, ShouldResemble, map[string]any{"n": float64(1)})
		})

		Convey("非法内容", func() {
			_, err := c.FromDB("{")
			So(err, ShouldNotBeNil)
		})
	})
}

func TestChain(t *testing.T) {
	Convey("Chain 转换顺序", t, func() {
		double := Func{
			To:   func(v any) (any, error) { return v.(int) * 2, nil },
			From: func(v any) (any, error) { return v.(int) / 2, nil },
		}
		inc := Func{
			To:   func(v any) (any, error) { return v.(int) + 1, nil },
			From: func(v any) (any, error) { return v.(int) - 1, nil },
		}

		c := Chain(double, inc)
		db, err := c.ToDB(3)
		So(err, ShouldBeNil)
		So(db, ShouldEqual, 7)

		v, err := c.FromDB(7)
		So(err, ShouldBeNil)
		So(v, ShouldEqual, 3)

		So(Chain(nil, nil), ShouldResemble, Identity{})
		single, err := Chain(double, nil).ToDB(3)
		So(err, ShouldBeNil)
		So(single, ShouldEqual, 6)
	})
}

func TestRegistry(t *testing.T) {
	Convey("转换器注册表", t, func() {
		for _, name := range []string{"identity", "json", "msgpack", "bson"} {
			c, err := Lookup(name)
			So(err, ShouldBeNil)
			So(c, ShouldNotBeNil)
		}

		_, err := Lookup("nope")
		So(err, ShouldNotBeNil)

		So(Register("json", Identity{}), ShouldNotBeNil)
		So(Register("", Identity{}), ShouldNotBeNil)
		So(Register("upper-test", Func{}), ShouldBeNil)
		So(func() { MustRegister("upper-test", Func{}) }, ShouldPanic)
	})
}
