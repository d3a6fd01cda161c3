package mapping

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hatlonely/tablekit/converter"
	. "github.com/smartystreets/goconvey/convey"
)

func TestTableMapping(t *testing.T) {
	Convey("TableMapping", t, func() {
		tm := NewTableMapping("db.person")
		So(tm.Database, ShouldEqual, "db")
		So(tm.Table, ShouldEqual, "person")
		So(tm.MapAllColumns, ShouldBeTrue)

		tm.MapField(Field("name").Column("full_name")).
			MapField(Field("address").Columns("street", "city")).
			MapField(Field("first").Column("names").AsShared()).
			MapField(Field("friends").AsRelationship()).
			MapSparseFields("doc", "secret").
			ExcludeFields("cache")

		So(tm.Validate(), ShouldBeNil)
		So(tm.FieldMapping("name").ColumnName, ShouldEqual, "full_name")
		So(tm.FieldMapping("cache").Persistent, ShouldBeFalse)
		So(tm.IsExcluded("secret"), ShouldBeTrue)
		So(tm.IsExcluded("cache"), ShouldBeTrue)
		So(tm.FieldMapping("nope"), ShouldBeNil)

		Convey("同名字段替换", func() {
			tm.MapField(Field("name").Column("nick"))
			So(tm.FieldMapping("name").ColumnName, ShouldEqual, "nick")
			So(len(tm.Fields), ShouldEqual, 5)
		})

		Convey("Clone 互不影响", func() {
			c := tm.Clone()
			c.FieldMapping("address").ToManyColumns[0] = "x"
			c.SparseContainer.ColumnName = "other"
			So(tm.FieldMapping("address").ToManyColumns[0], ShouldEqual, "street")
			So(tm.SparseContainer.ColumnName, ShouldEqual, "doc")
		})

		Convey("String", func() {
			So(tm.FieldMapping("address").String(), ShouldEqual, "address -> [street,city]")
			So(tm.FieldMapping("first").String(), ShouldEqual, "first -> names shared")
		})
	})
}

func TestValidate(t *testing.T) {
	Convey("Validate 累积所有错误", t, func() {
		tm := &TableMapping{Table: "t"}
		tm.Fields = append(tm.Fields,
			Field("a"),
			Field("a"),
			Field("b").Column("x").Columns("y", "z"),
			Field("c").AsRelationship().Column("c"),
			Field(""),
		)
		err := tm.Validate()
		So(err, ShouldNotBeNil)
		So(err.Error(), ShouldContainSubstring, "duplicate field mapping a")
		So(err.Error(), ShouldContainSubstring, "mutually exclusive")
		So(err.Error(), ShouldContainSubstring, "relationship field cannot map to columns")
		So(err.Error(), ShouldContainSubstring, "has no field name")
	})
}

type person struct {
	ID      int            `rdb:"id,primary"`
	Name    string         `rdb:"full_name"`
	Address map[string]any `rdb:",columns=street|city"`
	First   string         `rdb:"names,shared"`
	Last    string         `rdb:"names,shared"`
	Friends []person       `rdb:",relationship"`
	Profile map[string]any `rdb:"profile,converter=json"`
	Cache   string         `rdb:"-"`
	Extra   map[string]any `rdb:"doc,sparse"`
}

func TestFromStruct(t *testing.T) {
	Convey("FromStruct", t, func() {
		tm, err := FromStruct(&person{})
		So(err, ShouldBeNil)
		So(tm.Table, ShouldEqual, "person")
		So(tm.MapAllColumns, ShouldBeFalse)
		So(tm.FieldMapping("ID").ColumnName, ShouldEqual, "id")
		So(tm.FieldMapping("Address").ToManyColumns, ShouldResemble, []string{"street", "city"})
		So(tm.FieldMapping("First").Shared, ShouldBeTrue)
		So(tm.FieldMapping("Friends").Relationship, ShouldBeTrue)
		So(tm.FieldMapping("Profile").Converter, ShouldNotBeNil)
		So(tm.FieldMapping("Cache").Persistent, ShouldBeFalse)
		So(tm.FieldMapping("Extra"), ShouldBeNil)
		So(tm.SparseContainer.ColumnName, ShouldEqual, "doc")
		So(tm.IsExcluded("Extra"), ShouldBeTrue)
	})

	Convey("未注册的转换器", t, func() {
		type bad struct {
			A string `rdb:"a,converter=nope"`
		}
		_, err := FromStruct(bad{})
		So(err, ShouldNotBeNil)
	})

	Convey("稀疏容器必须是 map", t, func() {
		type bad struct {
			A string `rdb:"a,sparse"`
		}
		_, err := FromStruct(bad{})
		So(err, ShouldNotBeNil)
	})
}

func TestLoadFile(t *testing.T) {
	Convey("LoadFile", t, func() {
		dir := t.TempDir()

		Convey("yaml", func() {
			path := filepath.Join(dir, "person.yaml")
			So(os.WriteFile(path, []byte(`
table: person
database: db
mapAllColumns: false
fields:
  - name: name
    column: full_name
  - name: address
    columns: [street, city]
  - name: profile
    converter: json
  - name: cache
    persistent: false
sparse:
  column: doc
  converter: json
  excluded: [secret]
columnConverters:
  blob: msgpack
`), 0644), ShouldBeNil)

			tm, err := LoadFile(path)
			So(err, ShouldBeNil)
			So(tm.QualifiedName(), ShouldEqual, "db.person")
			So(tm.MapAllColumns, ShouldBeFalse)
			So(tm.FieldMapping("name").ColumnName, ShouldEqual, "full_name")
			So(tm.FieldMapping("address").ToManyColumns, ShouldResemble, []string{"street", "city"})
			So(tm.FieldMapping("name").ToManyColumns, ShouldBeNil)
			So(tm.FieldMapping("cache").Persistent, ShouldBeFalse)
			So(tm.FieldMapping("profile").Persistent, ShouldBeTrue)
			So(tm.SparseContainer.Converter, ShouldNotBeNil)
			So(tm.IsExcluded("secret"), ShouldBeTrue)

			blob, _ := converter.Lookup("msgpack")
			So(tm.ColumnConverters["blob"], ShouldEqual, blob)
		})

		Convey("json 默认映射全部列", func() {
			path := filepath.Join(dir, "t.json")
			So(os.WriteFile(path, []byte(`{"table":"t","fields":[{"name":"a"}]}`), 0644), ShouldBeNil)
			tm, err := LoadFile(path)
			So(err, ShouldBeNil)
			So(tm.MapAllColumns, ShouldBeTrue)
		})

		Convey("缺少表名", func() {
			path := filepath.Join(dir, "bad.yaml")
			So(os.WriteFile(path, []byte("fields: []\n"), 0644), ShouldBeNil)
			_, err := LoadFile(path)
			So(err, ShouldNotBeNil)
		})

		Convey("column 与 columns 同时出现", func() {
			path := filepath.Join(dir, "bad2.yaml")
			So(os.WriteFile(path, []byte("table: t\nfields:\n  - name: a\n    column: x\n    columns: [y]\n"), 0644), ShouldBeNil)
			_, err := LoadFile(path)
			So(err, ShouldNotBeNil)
		})
	})
}

func TestWatch(t *testing.T) {
	Convey("Watch 文件变化后重新加载", t, func() {
		dir := t.TempDir()
		path := filepath.Join(dir, "m.yaml")
		So(os.WriteFile(path, []byte("table: a\n"), 0644), ShouldBeNil)

		ch := make(chan *TableMapping, 4)
		w, err := Watch(path, func(tm *TableMapping, err error) {
			if err == nil {
				ch <- tm
			}
		}, WithDebounce(10*time.Millisecond))
		So(err, ShouldBeNil)
		defer w.Close()

		// 同目录其他文件不触发
		So(os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("table: x\n"), 0644), ShouldBeNil)
		So(os.WriteFile(path, []byte("table: b\n"), 0644), ShouldBeNil)

		select {
		case tm := <-ch:
			So(tm.Table, ShouldEqual, "b")
		case <-time.After(3 * time.Second):
			So("timeout", ShouldBeEmpty)
		}

		So(w.Close(), ShouldBeNil)
		So(w.Close(), ShouldBeNil)

		_, err = Watch(path, nil)
		So(err, ShouldNotBeNil)
	})
}
