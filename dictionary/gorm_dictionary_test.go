package dictionary

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
)

type product struct {
	ID    uint   `gorm:"primaryKey"`
	Code  string `gorm:"size:32;uniqueIndex:uk_code"`
	Name  string `gorm:"index:idx_name_price"`
	Price int32  `gorm:"index:idx_name_price"`
}

func TestGormDictionary(t *testing.T) {
	Convey("GormDictionary sqlite", t, func() {
		ctx := context.Background()
		d, err := NewGormDictionaryWithOptions(&GormDictionaryOptions{Driver: "sqlite", DSN: ":memory:"})
		So(err, ShouldBeNil)
		defer d.Close()

		So(d.CreateTableFromModel(ctx, &product{}), ShouldBeNil)

		Convey("ListTables", func() {
			tables, err := d.ListTables(ctx, "")
			So(err, ShouldBeNil)
			So(tables, ShouldResemble, []string{"products"})
		})

		Convey("GetTableMetadata", func() {
			tm, err := d.GetTableMetadata(ctx, "", "products")
			So(err, ShouldBeNil)
			So(len(tm.Columns), ShouldEqual, 4)
			So(tm.Column("id").IsInPrimaryKey, ShouldBeTrue)

			var unique, ordered []string
			for _, idx := range tm.Indexes[2:] {
				if idx.IsUnique {
					unique = append(unique, idx.Name)
				}
				if idx.IsOrdered {
					ordered = append(ordered, idx.Name)
				}
			}
			So(unique, ShouldContain, "uk_code")
			So(ordered, ShouldContain, "idx_name_price")
		})

		Convey("表不存在", func() {
			_, err := d.GetTableMetadata(ctx, "", "missing")
			So(errors.Is(err, ErrTableNotFound), ShouldBeTrue)
		})

		Convey("只能访问当前库", func() {
			_, err := d.ListTables(ctx, "other")
			So(err, ShouldNotBeNil)
		})

		Convey("DropTable", func() {
			So(d.DropTable(ctx, "", "products"), ShouldBeNil)
			tables, err := d.ListTables(ctx, "")
			So(err, ShouldBeNil)
			So(tables, ShouldBeEmpty)
		})
	})

	Convey("不支持的驱动", t, func() {
		_, err := NewGormDictionaryWithOptions(&GormDictionaryOptions{Driver: "oracle", DSN: "x"})
		So(err, ShouldNotBeNil)
		_, err = NewGormDictionaryWithOptions(nil)
		So(err, ShouldNotBeNil)
	})
}
