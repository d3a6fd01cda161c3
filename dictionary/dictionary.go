package dictionary

import (
	"context"

	"github.com/hatlonely/tablekit/meta"
	"github.com/pkg/errors"
)

var (
	ErrTableNotFound = errors.New("table not found")
	ErrClosed        = errors.New("dictionary closed")
)

// Dictionary 数据库数据字典，读取表结构
type Dictionary interface {
	// ListTables 列出库中的表名，database 为空时使用连接的默认库
	ListTables(ctx context.Context, database string) ([]string, error)
	// GetTableMetadata 读取表元数据，表不存在时返回 ErrTableNotFound
	GetTableMetadata(ctx context.Context, database, table string) (*meta.TableMetadata, error)
}

// Migrator 可以按元数据建表和删表的数据字典
type Migrator interface {
	Dictionary
	CreateTable(ctx context.Context, table *meta.TableMetadata) error
	DropTable(ctx context.Context, database, table string) error
}

// tableDescription 方言读到的原始表结构
type tableDescription struct {
	columns     []*meta.ColumnMetadata
	primaryKey  []string
	indexes     []indexDescription
	foreignKeys []*meta.ForeignKeyMetadata
}

type indexDescription struct {
	name    string
	unique  bool
	columns []string
}

func (d *tableDescription) addIndexColumn(name string, unique bool, column string) {
	for i := range d.indexes {
		if d.indexes[i].name == name {
			d.indexes[i].columns = append(d.indexes[i].columns, column)
			return
		}
	}
	d.indexes = append(d.indexes, indexDescription{name: name, unique: unique, columns: []string{column}})
}

func (d *tableDescription) build(database, table string) (*meta.TableMetadata, error) {
	if len(d.columns) == 0 {
		return nil, errors.Wrapf(ErrTableNotFound, "%s", qualifiedName(database, table))
	}
	b := meta.NewTableMetadataBuilder().Database(database).Table(table).PrimaryKey(d.primaryKey...)
	for _, c := range d.columns {
		b.AddColumn(c)
	}
	for _, idx := range d.indexes {
		b.AddIndex(idx.name, idx.unique, idx.columns...)
	}
	for _, fk := range d.foreignKeys {
		b.AddForeignKey(fk)
	}
	return b.Build()
}

func qualifiedName(database, table string) string {
	if database == "" {
		return table
	}
	return database + "." + table
}
