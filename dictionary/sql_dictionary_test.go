package dictionary

import (
	"context"
	"database/sql"
	"math"
	"testing"

	. "github.com/bytedance/mockey"
	"github.com/hatlonely/tablekit/meta"
	"github.com/hatlonely/tablekit/query"
	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/stretchr/testify/assert"
)

func usersTable() *meta.TableMetadata {
	id := meta.NewColumn("id", "BIGINT")
	id.IsAutoincrement = true
	email := meta.NewColumn("email", "VARCHAR(128)")
	email.IsNullable = false
	name := meta.NewColumn("name", "VARCHAR(64)")
	name.HasDefault = true
	name.DefaultValue = "anon"
	createdAt := meta.NewColumn("created_at", "DATETIME")
	createdAt.HasDefault = true
	createdAt.DefaultValue = "CURRENT_TIMESTAMP"

	tm, err := meta.NewTableMetadataBuilder().
		Table("users").
		AddColumn(id).
		AddColumn(email).
		AddColumn(name).
		AddColumn(createdAt).
		PrimaryKey("id").
		AddIndex("uk_email", true, "email").
		AddIndex("idx_name", false, "name").
		Build()
	if err != nil {
		panic(err)
	}
	return tm
}

func ordersTable() *meta.TableMetadata {
	tm, err := meta.NewTableMetadataBuilder().
		Table("orders").
		AddColumn(meta.NewColumn("user_id", "BIGINT")).
		AddColumn(meta.NewColumn("seq", "INT")).
		AddColumn(meta.NewColumn("amount", "DECIMAL(10,2)")).
		PrimaryKey("user_id", "seq").
		AddForeignKey(&meta.ForeignKeyMetadata{
			Name:              "fk_orders_user",
			ColumnNames:       []string{"user_id"},
			TargetTable:       "users",
			TargetColumnNames: []string{"id"},
		}).
		Build()
	if err != nil {
		panic(err)
	}
	return tm
}

func newSQLiteDictionary() *SQLDictionary {
	d, err := NewSQLDictionaryWithOptions(&SQLDictionaryOptions{
		Driver:       "sqlite3",
		MaxOpenConns: 10,
		MaxIdleConns: 2,
	})
	So(err, ShouldBeNil)
	return d
}

func TestSQLDictionarySQLite(t *testing.T) {
	Convey("SQLDictionary sqlite", t, func() {
		ctx := context.Background()
		d := newSQLiteDictionary()
		defer d.Close()

		So(d.CreateTable(ctx, usersTable()), ShouldBeNil)
		So(d.CreateTable(ctx, ordersTable()), ShouldBeNil)

		Convey("重复建表不报错", func() {
			So(d.CreateTable(ctx, usersTable()), ShouldBeNil)
		})

		Convey("ListTables", func() {
			tables, err := d.ListTables(ctx, "")
			So(err, ShouldBeNil)
			So(tables, ShouldResemble, []string{"orders", "users"})
		})

		Convey("GetTableMetadata 读取列和索引", func() {
			tm, err := d.GetTableMetadata(ctx, "", "users")
			So(err, ShouldBeNil)
			So(tm.QualifiedName(), ShouldEqual, "main.users")
			So(len(tm.Columns), ShouldEqual, 4)

			id := tm.Column("id")
			So(id.IsInPrimaryKey, ShouldBeTrue)
			So(id.IsAutoincrement, ShouldBeTrue)
			So(id.IsIntegral, ShouldBeTrue)
			So(tm.Column("email").IsNullable, ShouldBeFalse)
			So(tm.Column("email").Length, ShouldEqual, 128)
			So(tm.Column("name").HasDefault, ShouldBeTrue)
			So(tm.Column("name").DefaultValue, ShouldEqual, "'anon'")
			So(tm.Column("created_at").DefaultValue, ShouldEqual, "CURRENT_TIMESTAMP")

			var unique, ordered []string
			for _, idx := range tm.Indexes[2:] {
				if idx.IsUnique {
					unique = append(unique, idx.Name)
				}
				if idx.IsOrdered {
					ordered = append(ordered, idx.Name)
				}
			}
			So(unique, ShouldResemble, []string{"uk_email"})
			So(ordered, ShouldContain, "uk_email")
			So(ordered, ShouldContain, "idx_name")
		})

		Convey("GetTableMetadata 读取复合主键和外键", func() {
			tm, err := d.GetTableMetadata(ctx, "main", "orders")
			So(err, ShouldBeNil)
			So(tm.PrimaryKey().ColumnNumbers, ShouldResemble, []int{0, 1})
			So(tm.Column("user_id").IsAutoincrement, ShouldBeFalse)
			So(tm.Column("amount").Precision, ShouldEqual, 10)

			So(len(tm.ForeignKeys), ShouldEqual, 1)
			fk := tm.ForeignKeys[0]
			So(fk.Name, ShouldEqual, "fk_orders_0")
			So(fk.ColumnNames, ShouldResemble, []string{"user_id"})
			So(fk.TargetDatabase, ShouldEqual, "main")
			So(fk.TargetTable, ShouldEqual, "users")
			So(fk.TargetColumnNames, ShouldResemble, []string{"id"})
		})

		Convey("表不存在", func() {
			_, err := d.GetTableMetadata(ctx, "", "missing")
			So(errors.Is(err, ErrTableNotFound), ShouldBeTrue)
		})

		Convey("DropTable", func() {
			So(d.DropTable(ctx, "", "orders"), ShouldBeNil)
			So(d.DropTable(ctx, "", "orders"), ShouldBeNil)
			tables, err := d.ListTables(ctx, "main")
			So(err, ShouldBeNil)
			So(tables, ShouldResemble, []string{"users"})

			_, err = d.GetTableMetadata(ctx, "", "orders")
			So(errors.Is(err, ErrTableNotFound), ShouldBeTrue)
		})

		Convey("CreateTable 校验元数据", func() {
			So(d.CreateTable(ctx, nil), ShouldNotBeNil)
			So(d.CreateTable(ctx, &meta.TableMetadata{Name: "bad"}), ShouldNotBeNil)
		})
	})
}

func TestSQLDictionaryQueryError(t *testing.T) {
	PatchConvey("查询失败", t, func() {
		d := newSQLiteDictionary()
		defer d.Close()

		Mock((*sql.DB).QueryContext).Return(nil, errors.New("database is locked")).Build()

		_, err := d.ListTables(context.Background(), "")
		So(err, ShouldNotBeNil)
		So(err.Error(), ShouldContainSubstring, "database is locked")

		_, err = d.GetTableMetadata(context.Background(), "", "users")
		So(err, ShouldNotBeNil)
		So(errors.Is(err, ErrTableNotFound), ShouldBeFalse)
	})
}

func TestNewSQLDictionary(t *testing.T) {
	Convey("NewSQLDictionary", t, func() {
		_, err := NewSQLDictionary(nil, "mysql")
		So(err, ShouldNotBeNil)

		db, err := sql.Open("sqlite3", ":memory:")
		So(err, ShouldBeNil)
		defer db.Close()

		_, err = NewSQLDictionary(db, "oracle")
		So(err, ShouldNotBeNil)

		d, err := NewSQLDictionary(db, "sqlite")
		So(err, ShouldBeNil)
		So(d.DB(), ShouldEqual, db)
		// 外部传入的连接不由 Close 关闭
		So(d.Close(), ShouldBeNil)
		So(db.Ping(), ShouldBeNil)

		_, err = NewSQLDictionaryWithOptions(nil)
		So(err, ShouldNotBeNil)
	})
}

func TestFormatDSN(t *testing.T) {
	dsn, err := (&SQLDictionaryOptions{
		Driver:   "mysql",
		Host:     "db.local",
		Port:     3307,
		Database: "app",
		Username: "root",
		Password: "secret",
		Charset:  "utf8mb4",
	}).FormatDSN()
	assert.NoError(t, err)
	assert.Contains(t, dsn, "root:secret@tcp(db.local:3307)/app?")
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "charset=utf8mb4")

	dsn, err = (&SQLDictionaryOptions{Driver: "mysql", DSN: "u:p@/x"}).FormatDSN()
	assert.NoError(t, err)
	assert.Equal(t, "u:p@/x", dsn)

	dsn, err = (&SQLDictionaryOptions{Driver: "sqlite3"}).FormatDSN()
	assert.NoError(t, err)
	assert.Equal(t, ":memory:", dsn)

	dsn, err = (&SQLDictionaryOptions{Driver: "sqlite3", Database: "/tmp/a.db"}).FormatDSN()
	assert.NoError(t, err)
	assert.Equal(t, "/tmp/a.db", dsn)

	_, err = (&SQLDictionaryOptions{Driver: "postgres"}).FormatDSN()
	assert.Error(t, err)
}

func TestMySQLCreateTable(t *testing.T) {
	d := &mysqlDialect{engine: "InnoDB"}

	users := usersTable()
	users.Database = "app"
	users.Column("email").CharsetName = "utf8mb4"
	stmts, err := d.createTable(users)
	assert.NoError(t, err)
	assert.Len(t, stmts, 1)
	assert.Equal(t, "CREATE TABLE IF NOT EXISTS `app`.`users` (\n"+
		"  `id` BIGINT NOT NULL AUTO_INCREMENT,\n"+
		"  `email` VARCHAR(128) NOT NULL CHARACTER SET utf8mb4,\n"+
		"  `name` VARCHAR(64) DEFAULT 'anon',\n"+
		"  `created_at` DATETIME DEFAULT CURRENT_TIMESTAMP,\n"+
		"  PRIMARY KEY (`id`),\n"+
		"  UNIQUE KEY `uk_email` (`email`),\n"+
		"  KEY `idx_name` (`name`)\n"+
		") ENGINE=InnoDB", stmts[0])

	stmts, err = d.createTable(ordersTable())
	assert.NoError(t, err)
	assert.Contains(t, stmts[0], "PRIMARY KEY (`user_id`,`seq`)")
	assert.Contains(t, stmts[0], "CONSTRAINT `fk_orders_user` FOREIGN KEY (`user_id`) REFERENCES `users` (`id`)")

	assert.Equal(t, "DROP TABLE IF EXISTS `app`.`users`", d.dropTable("app", "users"))
	assert.Equal(t, "DROP TABLE IF EXISTS `users`", d.dropTable("", "users"))
	assert.Equal(t, "`a``b`", d.quote("a`b"))
}

func TestSQLiteCreateTable(t *testing.T) {
	stmts, err := sqliteDialect{}.createTable(usersTable())
	assert.NoError(t, err)
	assert.Equal(t, []string{
		"CREATE TABLE IF NOT EXISTS \"main\".\"users\" (\n" +
			"  \"id\" INTEGER PRIMARY KEY AUTOINCREMENT,\n" +
			"  \"email\" VARCHAR(128) NOT NULL,\n" +
			"  \"name\" VARCHAR(64) DEFAULT 'anon',\n" +
			"  \"created_at\" DATETIME DEFAULT CURRENT_TIMESTAMP\n" +
			")",
		"CREATE UNIQUE INDEX IF NOT EXISTS \"main\".\"uk_email\" ON \"users\" (\"email\")",
		"CREATE INDEX IF NOT EXISTS \"main\".\"idx_name\" ON \"users\" (\"name\")",
	}, stmts)
}

func TestDefaultLiteral(t *testing.T) {
	for _, c := range []struct {
		dialect query.Dialect
		v       any
		want    string
	}{
		{query.ANSI, nil, "NULL"},
		{query.ANSI, "null", "NULL"},
		{query.ANSI, "CURRENT_TIMESTAMP", "CURRENT_TIMESTAMP"},
		{query.ANSI, "'x'", "'x'"},
		{query.ANSI, "'it''s'", "'it''s'"},
		{query.ANSI, "it's", "'it''s'"},
		{query.ANSI, 0, "0"},
		{query.ANSI, `'a'); DROP TABLE users; --'`, `'''a''); DROP TABLE users; --'''`},
		{query.MySQL, "'x'", "'x'"},
		{query.MySQL, `'x\'`, `'''x\\'''`},
		{query.MySQL, `x\' OR 1=1 -- `, `'x\\'' OR 1=1 -- '`},
	} {
		got, err := defaultLiteral(c.dialect, c.v)
		assert.NoError(t, err)
		assert.Equal(t, c.want, got, "%v %v", c.dialect, c.v)
	}

	_, err := defaultLiteral(query.MySQL, math.NaN())
	assert.True(t, errors.Is(err, query.ErrInvalidLiteral))
}

func TestCreateTableInvalidDefault(t *testing.T) {
	users := usersTable()
	users.Column("name").DefaultValue = math.Inf(1)

	_, err := (&mysqlDialect{}).createTable(users)
	assert.True(t, errors.Is(err, query.ErrInvalidLiteral))
	_, err = sqliteDialect{}.createTable(users)
	assert.True(t, errors.Is(err, query.ErrInvalidLiteral))
}
