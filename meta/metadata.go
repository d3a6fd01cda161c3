package meta

import (
	"fmt"

	"github.com/pkg/errors"
)

// TableMetadata 表结构元数据，交付后不可修改
type TableMetadata struct {
	Database        string
	Name            string
	Columns         []*ColumnMetadata
	Indexes         []*IndexMetadata // Indexes[0] 始终是主键
	ForeignKeys     []*ForeignKeyMetadata
	PartitionKey    []int
	SparseContainer string
}

// ColumnMetadata 列元数据
type ColumnMetadata struct {
	Name             string
	ColumnNumber     int
	ColumnType       string
	IsNullable       bool
	IsInPrimaryKey   bool
	IsInPartitionKey bool
	DefaultValue     any
	HasDefault       bool

	// 数值类型
	IsIntegral      bool
	IsUnsigned      bool
	IntSize         int
	Precision       int
	Scale           int
	IsAutoincrement bool

	// 字符类型
	Length      int
	IsBinary    bool
	IsLob       bool
	CharsetName string
}

// IndexMetadata 索引元数据，既唯一又有序的物理索引拆成两条记录
type IndexMetadata struct {
	Name          string
	IsPrimaryKey  bool
	IsUnique      bool
	IsOrdered     bool
	ColumnNumbers []int
}

// ForeignKeyMetadata 外键元数据
type ForeignKeyMetadata struct {
	Name              string
	ColumnNames       []string
	TargetDatabase    string
	TargetTable       string
	TargetColumnNames []string
}

var (
	ErrInvalidMetadata = errors.New("invalid table metadata")
	ErrNoPrimaryKey    = errors.New("table has no primary key")
)

// QualifiedName database.table，database 为空时只返回表名
func (t *TableMetadata) QualifiedName() string {
	if t.Database == "" {
		return t.Name
	}
	return t.Database + "." + t.Name
}

// Column 按名字查找列
func (t *TableMetadata) Column(name string) *ColumnMetadata {
	for _, c := range t.Columns {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// PrimaryKey 主键索引
func (t *TableMetadata) PrimaryKey() *IndexMetadata {
	if len(t.Indexes) == 0 {
		return nil
	}
	return t.Indexes[0]
}

// Validate 校验元数据的结构约束
func (t *TableMetadata) Validate() error {
	if t.Name == "" {
		return errors.Wrap(ErrInvalidMetadata, "table name is empty")
	}
	if len(t.Columns) == 0 {
		return errors.Wrapf(ErrInvalidMetadata, "table %s has no columns", t.QualifiedName())
	}
	seen := map[string]bool{}
	for i, c := range t.Columns {
		if c == nil {
			return errors.Wrapf(ErrInvalidMetadata, "table %s column %d is nil", t.QualifiedName(), i)
		}
		if c.ColumnNumber != i {
			return errors.Wrapf(ErrInvalidMetadata, "column %s has number %d at position %d", c.Name, c.ColumnNumber, i)
		}
		if seen[c.Name] {
			return errors.Wrapf(ErrInvalidMetadata, "duplicate column %s", c.Name)
		}
		seen[c.Name] = true
	}

	pk := t.PrimaryKey()
	if pk == nil || !pk.IsPrimaryKey || len(pk.ColumnNumbers) == 0 {
		return errors.Wrapf(ErrNoPrimaryKey, "table %s", t.QualifiedName())
	}
	for _, idx := range t.Indexes {
		if len(idx.ColumnNumbers) == 0 {
			return errors.Wrapf(ErrInvalidMetadata, "index %s has no columns", idx.Name)
		}
		for _, n := range idx.ColumnNumbers {
			if n < 0 || n >= len(t.Columns) {
				return errors.Wrapf(ErrInvalidMetadata, "index %s column number %d out of range", idx.Name, n)
			}
		}
	}
	for _, n := range t.PartitionKey {
		if n < 0 || n >= len(t.Columns) {
			return errors.Wrapf(ErrInvalidMetadata, "partition key column number %d out of range", n)
		}
	}
	if t.SparseContainer != "" && t.Column(t.SparseContainer) == nil {
		return errors.Wrapf(ErrInvalidMetadata, "sparse container column %s does not exist", t.SparseContainer)
	}
	return nil
}

func (i *IndexMetadata) String() string {
	kind := "ordered"
	if i.IsUnique {
		kind = "unique"
	}
	if i.IsPrimaryKey {
		kind = "primary"
	}
	return fmt.Sprintf("%s(%s)%v", i.Name, kind, i.ColumnNumbers)
}
