package handler

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestStructObject(t *testing.T) {
	type user struct {
		Name  string
		Age   *int
		Score float64
		Extra map[string]string `rdb:"extra,sparse"`
		skip  int
	}

	Convey("StructObject", t, func() {
		u := &user{Name: "tom"}
		o, err := NewStructObject(u)
		So(err, ShouldBeNil)
		So(o.Fields(), ShouldResemble, []string{"Name", "Age", "Score"})

		v, ok := o.Get("Name")
		So(ok, ShouldBeTrue)
		So(v, ShouldEqual, "tom")

		v, ok = o.Get("Age")
		So(ok, ShouldBeTrue)
		So(v, ShouldBeNil)

		So(o.Set("Age", int64(3)), ShouldBeNil)
		So(*u.Age, ShouldEqual, 3)
		So(o.Set("Score", 2), ShouldBeNil)
		So(u.Score, ShouldEqual, 2.0)
		So(o.Set("Name", 1), ShouldNotBeNil)

		So(o.Set("color", "red"), ShouldBeNil)
		So(u.Extra, ShouldResemble, map[string]string{"color": "red"})
		So(o.Fields(), ShouldResemble, []string{"Name", "Age", "Score", "color"})
		v, ok = o.Get("color")
		So(ok, ShouldBeTrue)
		So(v, ShouldEqual, "red")

		_, ok = o.Get("missing")
		So(ok, ShouldBeFalse)
		So(o.Interface(), ShouldEqual, u)
		_ = u.skip
	})

	Convey("参数检查", t, func() {
		_, err := NewStructObject(user{})
		So(err, ShouldNotBeNil)

		type bad struct {
			Extra []string `rdb:",sparse"`
		}
		_, err = NewStructObject(&bad{})
		So(err, ShouldNotBeNil)
	})
}

func TestAsObject(t *testing.T) {
	Convey("AsObject", t, func() {
		o, err := AsObject(map[string]any{"a": 1})
		So(err, ShouldBeNil)
		So(o, ShouldResemble, MapObject{"a": 1})

		m := MapObject{}
		o, err = AsObject(m)
		So(err, ShouldBeNil)
		So(o.Set("b", 2), ShouldBeNil)
		So(m["b"], ShouldEqual, 2)

		_, err = AsObject(nil)
		So(err, ShouldNotBeNil)
		_, err = AsObject(3)
		So(err, ShouldNotBeNil)
	})
}
