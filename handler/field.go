package handler

import (
	"github.com/hatlonely/tablekit/bitmask"
	"github.com/hatlonely/tablekit/mapping"
)

// Field 解析后的字段
type Field struct {
	Name    string
	Mapping *mapping.FieldMapping
	// ColumnMask 字段涉及的列，关联字段为空
	ColumnMask *bitmask.BitMask
	// ColumnNumber 只映射到一列时为该列序号，否则为 -1
	ColumnNumber int
	// ColumnName 只映射到一列时为该列名
	ColumnName string

	ncol int
}

func newField(fm *mapping.FieldMapping, width int) *Field {
	return &Field{Name: fm.FieldName, Mapping: fm, ColumnMask: bitmask.New(width), ColumnNumber: -1}
}

func (f *Field) mapToColumn(c *Column) {
	f.ColumnMask.Set(c.Number)
	f.ncol++
	if f.ncol == 1 {
		f.ColumnNumber = c.Number
		f.ColumnName = c.Name
	} else {
		f.ColumnNumber = -1
		f.ColumnName = ""
	}
}

// IsRelationship 是否是关联字段
func (f *Field) IsRelationship() bool {
	return f.Mapping.Relationship
}

// IsMultiColumn 字段是否跨多列
func (f *Field) IsMultiColumn() bool {
	return f.ncol > 1
}
