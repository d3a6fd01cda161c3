package meta

import (
	"fmt"
	"slices"
	"strings"

	"github.com/pkg/errors"
)

type indexSpec struct {
	name    string
	unique  bool
	columns []string
}

// TableMetadataBuilder 表元数据构建器，负责列编号、主键、索引拆分等约定
type TableMetadataBuilder struct {
	database    string
	table       string
	columns     []*ColumnMetadata
	primaryKey  []string
	indexes     []indexSpec
	foreignKeys []*ForeignKeyMetadata
	sparse      string
}

// NewTableMetadataBuilder 创建新的表元数据构建器
func NewTableMetadataBuilder() *TableMetadataBuilder {
	return &TableMetadataBuilder{}
}

func (b *TableMetadataBuilder) Database(name string) *TableMetadataBuilder {
	b.database = name
	return b
}

func (b *TableMetadataBuilder) Table(name string) *TableMetadataBuilder {
	b.table = name
	return b
}

// AddColumn 追加列，列号由位置决定
func (b *TableMetadataBuilder) AddColumn(c *ColumnMetadata) *TableMetadataBuilder {
	b.columns = append(b.columns, c)
	return b
}

// PrimaryKey 设置主键列，重复调用会追加
func (b *TableMetadataBuilder) PrimaryKey(columns ...string) *TableMetadataBuilder {
	b.primaryKey = append(b.primaryKey, columns...)
	return b
}

// AddIndex 添加二级索引：唯一索引生成唯一与有序两条记录，普通索引只生成有序记录
func (b *TableMetadataBuilder) AddIndex(name string, unique bool, columns ...string) *TableMetadataBuilder {
	b.indexes = append(b.indexes, indexSpec{name: name, unique: unique, columns: columns})
	return b
}

func (b *TableMetadataBuilder) AddForeignKey(fk *ForeignKeyMetadata) *TableMetadataBuilder {
	b.foreignKeys = append(b.foreignKeys, fk)
	return b
}

func (b *TableMetadataBuilder) SparseContainer(column string) *TableMetadataBuilder {
	b.sparse = column
	return b
}

// Build 生成表元数据
func (b *TableMetadataBuilder) Build() (*TableMetadata, error) {
	t := &TableMetadata{
		Database:        b.database,
		Name:            b.table,
		ForeignKeys:     b.foreignKeys,
		SparseContainer: b.sparse,
	}
	if b.table == "" {
		return nil, errors.Wrap(ErrInvalidMetadata, "table name is empty")
	}
	if len(b.columns) == 0 {
		return nil, errors.Wrapf(ErrInvalidMetadata, "table %s has no columns", t.QualifiedName())
	}
	if len(b.primaryKey) == 0 {
		return nil, errors.Wrapf(ErrNoPrimaryKey, "table %s", t.QualifiedName())
	}

	numbers := make(map[string]int, len(b.columns))
	for i, c := range b.columns {
		c.ColumnNumber = i
		numbers[c.Name] = i
		t.Columns = append(t.Columns, c)
	}
	resolve := func(index string, names []string) ([]int, error) {
		result := make([]int, 0, len(names))
		for _, name := range names {
			n, ok := numbers[name]
			if !ok {
				return nil, errors.Wrapf(ErrInvalidMetadata, "index %s references unknown column %s", index, name)
			}
			result = append(result, n)
		}
		return result, nil
	}

	pk, err := resolve("PRIMARY", b.primaryKey)
	if err != nil {
		return nil, err
	}
	for _, n := range pk {
		c := t.Columns[n]
		c.IsInPrimaryKey = true
		c.IsInPartitionKey = true
		c.IsNullable = false
	}
	t.PartitionKey = pk
	t.Indexes = append(t.Indexes,
		&IndexMetadata{Name: "PRIMARY", IsPrimaryKey: true, IsUnique: true, ColumnNumbers: pk},
		&IndexMetadata{Name: "PRIMARY", IsOrdered: true, ColumnNumbers: pk},
	)

	for _, spec := range b.indexes {
		columns, err := resolve(spec.name, spec.columns)
		if err != nil {
			return nil, err
		}
		if len(columns) == 0 {
			return nil, errors.Wrapf(ErrInvalidMetadata, "index %s has no columns", spec.name)
		}
		// sqlite/mysql 会为主键再报告一个同列的唯一索引
		if spec.unique && slices.Equal(columns, pk) {
			continue
		}
		if spec.unique {
			t.Indexes = append(t.Indexes, &IndexMetadata{Name: spec.name, IsUnique: true, ColumnNumbers: columns})
		}
		t.Indexes = append(t.Indexes, &IndexMetadata{Name: spec.name, IsOrdered: true, ColumnNumbers: columns})
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// defaultIndexName 未命名索引的默认名字
func defaultIndexName(unique bool, column string) string {
	if unique {
		return fmt.Sprintf("uk_%s", strings.ToLower(column))
	}
	return fmt.Sprintf("idx_%s", strings.ToLower(column))
}
