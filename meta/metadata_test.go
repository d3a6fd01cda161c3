package meta

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/stretchr/testify/assert"
)

func TestParseColumnType(t *testing.T) {
	cases := []struct {
		typ       string
		integral  bool
		unsigned  bool
		intSize   int
		length    int
		precision int
		scale     int
		binary    bool
		lob       bool
	}{
		{typ: "INT", integral: true, intSize: 4},
		{typ: "int(11) unsigned", integral: true, unsigned: true, intSize: 4},
		{typ: "BIGINT UNSIGNED", integral: true, unsigned: true, intSize: 8},
		{typ: "tinyint(1)", integral: true, intSize: 1},
		{typ: "VARCHAR(64)", length: 64},
		{typ: "decimal(10,2)", precision: 10, scale: 2},
		{typ: "VARBINARY(16)", length: 16, binary: true},
		{typ: "BLOB", binary: true, lob: true},
		{typ: "TEXT", lob: true},
		{typ: "DOUBLE PRECISION"},
		{typ: "DATETIME"},
	}
	for _, c := range cases {
		col := NewColumn("c", c.typ)
		assert.Equal(t, c.typ, col.ColumnType)
		assert.Equal(t, c.integral, col.IsIntegral, c.typ)
		assert.Equal(t, c.unsigned, col.IsUnsigned, c.typ)
		assert.Equal(t, c.intSize, col.IntSize, c.typ)
		assert.Equal(t, c.length, col.Length, c.typ)
		assert.Equal(t, c.precision, col.Precision, c.typ)
		assert.Equal(t, c.scale, col.Scale, c.typ)
		assert.Equal(t, c.binary, col.IsBinary, c.typ)
		assert.Equal(t, c.lob, col.IsLob, c.typ)
	}
}

func TestTableMetadataBuilder(t *testing.T) {
	Convey("TableMetadataBuilder", t, func() {
		Convey("主键是 0 号索引，唯一索引拆成两条", func() {
			tm, err := NewTableMetadataBuilder().
				Database("db").Table("t").
				AddColumn(NewColumn("id", "INT")).
				AddColumn(NewColumn("a", "INT")).
				AddColumn(NewColumn("b", "VARCHAR(10)")).
				PrimaryKey("id").
				AddIndex("uk_ab", true, "a", "b").
				AddIndex("idx_b", false, "b").
				Build()
			So(err, ShouldBeNil)
			So(tm.QualifiedName(), ShouldEqual, "db.t")
			So(tm.Column("b").ColumnNumber, ShouldEqual, 2)
			So(tm.Column("id").IsInPrimaryKey, ShouldBeTrue)
			So(tm.Column("id").IsNullable, ShouldBeFalse)
			So(tm.PartitionKey, ShouldResemble, []int{0})

			So(len(tm.Indexes), ShouldEqual, 5)
			So(tm.PrimaryKey().IsPrimaryKey, ShouldBeTrue)
			So(tm.PrimaryKey().IsUnique, ShouldBeTrue)
			So(tm.Indexes[1].IsOrdered, ShouldBeTrue)
			So(tm.Indexes[1].IsPrimaryKey, ShouldBeFalse)
			So(tm.Indexes[2].IsUnique, ShouldBeTrue)
			So(tm.Indexes[2].ColumnNumbers, ShouldResemble, []int{1, 2})
			So(tm.Indexes[3].IsOrdered, ShouldBeTrue)
			So(tm.Indexes[3].IsUnique, ShouldBeFalse)
			So(tm.Indexes[4].Name, ShouldEqual, "idx_b")
		})

		Convey("没有主键", func() {
			_, err := NewTableMetadataBuilder().Table("t").AddColumn(NewColumn("a", "INT")).Build()
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "no primary key")
		})

		Convey("索引引用不存在的列", func() {
			_, err := NewTableMetadataBuilder().Table("t").
				AddColumn(NewColumn("a", "INT")).PrimaryKey("a").
				AddIndex("idx", false, "zzz").Build()
			So(err, ShouldNotBeNil)
		})

		Convey("与主键同列的唯一索引被忽略", func() {
			tm, err := NewTableMetadataBuilder().Table("t").
				AddColumn(NewColumn("a", "INT")).PrimaryKey("a").
				AddIndex("sqlite_autoindex_t_1", true, "a").Build()
			So(err, ShouldBeNil)
			So(len(tm.Indexes), ShouldEqual, 2)
		})
	})
}

func TestValidate(t *testing.T) {
	Convey("Validate", t, func() {
		tm := &TableMetadata{
			Name:    "t",
			Columns: []*ColumnMetadata{{Name: "a", ColumnNumber: 0}},
			Indexes: []*IndexMetadata{{Name: "PRIMARY", IsPrimaryKey: true, IsUnique: true, ColumnNumbers: []int{0}}},
		}
		So(tm.Validate(), ShouldBeNil)

		tm.Columns[0].ColumnNumber = 1
		So(tm.Validate(), ShouldNotBeNil)
		tm.Columns[0].ColumnNumber = 0

		tm.Indexes = append(tm.Indexes, &IndexMetadata{Name: "x", IsOrdered: true, ColumnNumbers: []int{3}})
		So(tm.Validate(), ShouldNotBeNil)
		tm.Indexes = tm.Indexes[:1]

		tm.SparseContainer = "doc"
		So(tm.Validate(), ShouldNotBeNil)
		tm.SparseContainer = ""

		tm.Indexes = nil
		So(tm.Validate(), ShouldNotBeNil)
	})
}

type user struct {
	ID        int64          `rdb:"id,primary,autoincrement"`
	Email     string         `rdb:"email,size=128,unique,required"`
	First     string         `rdb:"first,index=idx_name"`
	Last      string         `rdb:"last,index=idx_name"`
	Price     float64        `rdb:"price,type=DECIMAL(10,2)"`
	Avatar    []byte         `rdb:"avatar"`
	CreatedAt time.Time      `rdb:"created_at,default=CURRENT_TIMESTAMP"`
	Address   string         `rdb:",columns=street|city"`
	Friends   []user         `rdb:",relationship"`
	Extra     map[string]any `rdb:"doc,sparse"`
	Ignored   string         `rdb:"-"`
	internal  int
}

func (user) TableName() string { return "users" }

func TestFromStruct(t *testing.T) {
	Convey("FromStruct", t, func() {
		tm, err := NewTableMetadataBuilder().Database("app").FromStruct(&user{})
		So(err, ShouldBeNil)
		So(tm.Name, ShouldEqual, "users")
		So(tm.SparseContainer, ShouldEqual, "doc")

		var names []string
		for _, c := range tm.Columns {
			names = append(names, c.Name)
		}
		So(names, ShouldResemble, []string{"id", "email", "first", "last", "price", "avatar", "created_at", "street", "city", "doc"})

		So(tm.Column("id").IsAutoincrement, ShouldBeTrue)
		So(tm.Column("id").ColumnType, ShouldEqual, "BIGINT")
		So(tm.Column("email").ColumnType, ShouldEqual, "VARCHAR(128)")
		So(tm.Column("email").IsNullable, ShouldBeFalse)
		So(tm.Column("price").Precision, ShouldEqual, 10)
		So(tm.Column("price").Scale, ShouldEqual, 2)
		So(tm.Column("avatar").IsBinary, ShouldBeTrue)
		So(tm.Column("created_at").HasDefault, ShouldBeTrue)
		So(tm.Column("doc").IsLob, ShouldBeTrue)

		// PRIMARY x2, uk_email x2, idx_name x1
		So(len(tm.Indexes), ShouldEqual, 5)
		So(tm.Indexes[2].Name, ShouldEqual, "uk_email")
		So(tm.Indexes[4].Name, ShouldEqual, "idx_name")
		So(tm.Indexes[4].ColumnNumbers, ShouldResemble, []int{2, 3})
	})

	Convey("非结构体", t, func() {
		_, err := NewTableMetadataBuilder().FromStruct(1)
		So(err, ShouldNotBeNil)
	})

	Convey("未知标签选项", t, func() {
		type bad struct {
			A int `rdb:"a,primary,bogus"`
		}
		_, err := NewTableMetadataBuilder().FromStruct(bad{})
		So(err, ShouldNotBeNil)
	})
}

type product struct {
	ID    uint   `gorm:"primaryKey"`
	Code  string `gorm:"size:32;uniqueIndex:uk_code"`
	Name  string `gorm:"index:idx_name_price"`
	Price int32  `gorm:"index:idx_name_price"`
	Note  string `gorm:"-"`
}

func TestFromGormModel(t *testing.T) {
	Convey("FromGormModel", t, func() {
		tm, err := FromGormModel(&product{})
		So(err, ShouldBeNil)
		So(tm.Name, ShouldEqual, "products")
		So(len(tm.Columns), ShouldEqual, 4)
		So(tm.Column("id").IsInPrimaryKey, ShouldBeTrue)
		So(tm.Column("id").IsUnsigned, ShouldBeTrue)
		So(tm.Column("code").ColumnType, ShouldEqual, "VARCHAR(32)")
		So(tm.Column("price").ColumnType, ShouldEqual, "INT")

		var unique, ordered []string
		for _, idx := range tm.Indexes[1:] {
			if idx.IsUnique {
				unique = append(unique, idx.Name)
			}
			if idx.IsOrdered {
				ordered = append(ordered, idx.Name)
			}
		}
		So(unique, ShouldContain, "uk_code")
		So(ordered, ShouldContain, "idx_name_price")
		So(ordered, ShouldContain, "PRIMARY")
	})
}
