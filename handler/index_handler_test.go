package handler

import (
	"testing"

	"github.com/hatlonely/tablekit/mapping"
	"github.com/hatlonely/tablekit/meta"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func indexTable(t *testing.T) *meta.TableMetadata {
	return mustTable(t, meta.NewTableMetadataBuilder().
		Database("test").Table("idx").
		AddColumn(meta.NewColumn("id", "INT")).
		AddColumn(meta.NewColumn("x", "INT")).
		AddColumn(meta.NewColumn("y", "INT")).
		AddColumn(meta.NewColumn("z", "INT")).
		AddColumn(meta.NewColumn("a", "INT")).
		AddColumn(meta.NewColumn("b", "VARCHAR(16)")).
		PrimaryKey("id").
		AddIndex("idx_xyz", false, "x", "y", "z").
		AddIndex("uk_ab", true, "a", "b"))
}

func TestChooseIndex(t *testing.T) {
	Convey("索引选择", t, func() {
		before := testutil.ToFloat64(indexHandlersCreated)
		h := New(indexTable(t), nil)
		So(h.Err(), ShouldBeNil)
		So(len(h.IndexHandlers()), ShouldEqual, 5)
		So(testutil.ToFloat64(indexHandlersCreated), ShouldEqual, before+5)

		Convey("标量键使用主键", func() {
			ih, err := h.ChooseIndex(7, true, true)
			So(err, ShouldBeNil)
			So(ih.IsPrimaryKey(), ShouldBeTrue)
			So(ih.SingleColumn().Name, ShouldEqual, "id")

			values, err := ih.GetColumns(7)
			So(err, ShouldBeNil)
			So(values, ShouldResemble, []any{7})
		})

		Convey("主键字段", func() {
			ih, err := h.UniqueIndexHandler(map[string]any{"id": 1, "x": 2})
			So(err, ShouldBeNil)
			So(ih.IsPrimaryKey(), ShouldBeTrue)
		})

		Convey("唯一索引", func() {
			keys := map[string]any{"a": 1, "b": "k"}
			ih, err := h.IndexHandler(keys)
			So(err, ShouldBeNil)
			So(ih.Index().Name, ShouldEqual, "uk_ab")
			So(ih.IsUnique(), ShouldBeTrue)
			So(ih.IsUsable(Masks{Used: h.ColumnMaskForField("a"), Equal: h.ColumnMaskForField("a")}), ShouldBeFalse)

			values, err := ih.GetColumns(keys)
			So(err, ShouldBeNil)
			So(values, ShouldResemble, []any{1, "k"})
			So(ih.Fields()[1].Name, ShouldEqual, "b")
			So(ih.SingleColumn(), ShouldBeNil)
		})

		Convey("nil 值只算用到", func() {
			ih, err := h.UniqueIndexHandler(map[string]any{"a": 1, "b": nil})
			So(err, ShouldBeNil)
			So(ih, ShouldBeNil)

			ih, err = h.IndexHandler(map[string]any{"a": 1, "b": nil})
			So(err, ShouldBeNil)
			So(ih.Index().Name, ShouldEqual, "uk_ab")
			So(ih.IsOrdered(), ShouldBeTrue)
			So(ih.IsUnique(), ShouldBeFalse)
		})

		Convey("有序索引打分", func() {
			masks := NewMasks(h.NumberOfColumns())
			masks.Used.Set(1)
			masks.Equal.Set(1)
			ih := h.ChooseOrderedIndex(masks)
			So(ih.Index().Name, ShouldEqual, "idx_xyz")
			So(ih.Score(masks), ShouldEqual, 2)

			masks.Used.Set(2)
			So(ih.Score(masks), ShouldEqual, 3)

			// z 用到但 y 没有用到时在 y 处停止
			masks = NewMasks(h.NumberOfColumns())
			masks.Used.Set(1).Set(3)
			masks.Equal.Set(1).Set(3)
			So(ih.Score(masks), ShouldEqual, 2)
		})

		Convey("首列没有用到", func() {
			ih, err := h.OrderedIndexHandler(map[string]any{"y": 1, "z": 2})
			So(err, ShouldBeNil)
			So(ih, ShouldBeNil)

			ih, err = h.IndexHandler(map[string]any{"unknown": 1})
			So(err, ShouldBeNil)
			So(ih, ShouldBeNil)
		})

		Convey("结构体键跳过 nil 指针字段", func() {
			type key struct {
				X *int
				A *int
				B *string
			}
			type idKey struct {
				ID int
			}
			type abKey struct {
				A int
				B string
			}
			tm := mapping.NewTableMapping("test.idx")
			tm.MapField(mapping.Field("ID").Column("id"))
			tm.MapField(mapping.Field("X").Column("x"))
			tm.MapField(mapping.Field("A").Column("a"))
			tm.MapField(mapping.Field("B").Column("b"))
			h := New(indexTable(t), tm)
			So(h.Err(), ShouldBeNil)

			x, a, b := 3, 1, "k"
			ih, err := h.IndexHandler(key{X: &x})
			So(err, ShouldBeNil)
			So(ih.Index().Name, ShouldEqual, "idx_xyz")

			ih, err = h.IndexHandler(&key{A: &a, B: &b})
			So(err, ShouldBeNil)
			So(ih.Index().Name, ShouldEqual, "uk_ab")
			So(ih.IsUnique(), ShouldBeTrue)

			ih, err = h.ChooseIndex(idKey{ID: 0}, true, true)
			So(err, ShouldBeNil)
			So(ih.IsPrimaryKey(), ShouldBeTrue)

			ih, err = h.UniqueIndexHandler(abKey{})
			So(err, ShouldBeNil)
			So(ih.Index().Name, ShouldEqual, "uk_ab")

			_, err = h.IndexHandler([]int{1})
			So(err, ShouldNotBeNil)
		})

		Convey("不允许任何索引", func() {
			ih, err := h.ChooseIndex(1, false, false)
			So(err, ShouldBeNil)
			So(ih, ShouldBeNil)
		})
	})
}
