package mapping

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/hatlonely/tablekit/converter"
	"github.com/pkg/errors"
)

var ErrInvalidMapping = errors.New("invalid table mapping")

// FieldMapping 逻辑字段到物理列的映射
type FieldMapping struct {
	FieldName string
	// ColumnName 显式指定的列名，为空时按字段名匹配
	ColumnName string
	// Persistent 为 false 时字段不落库
	Persistent bool
	// ToManyColumns 字段跨多列（partial）
	ToManyColumns []string
	// Relationship 关联字段，只支持 IsNull/IsNotNull
	Relationship bool
	Converter    converter.Converter
	// Shared 允许多个字段写入同一列
	Shared bool
}

// Field 创建持久化字段映射
func Field(name string) *FieldMapping {
	return &FieldMapping{FieldName: name, Persistent: true}
}

func (f *FieldMapping) Column(name string) *FieldMapping {
	f.ColumnName = name
	return f
}

func (f *FieldMapping) Columns(names ...string) *FieldMapping {
	f.ToManyColumns = names
	return f
}

func (f *FieldMapping) WithConverter(c converter.Converter) *FieldMapping {
	f.Converter = c
	return f
}

func (f *FieldMapping) AsShared() *FieldMapping {
	f.Shared = true
	return f
}

func (f *FieldMapping) AsRelationship() *FieldMapping {
	f.Relationship = true
	return f
}

func (f *FieldMapping) NotPersistent() *FieldMapping {
	f.Persistent = false
	return f
}

func (f *FieldMapping) clone() *FieldMapping {
	c := *f
	c.ToManyColumns = slices.Clone(f.ToManyColumns)
	return &c
}

func (f *FieldMapping) String() string {
	var sb strings.Builder
	sb.WriteString(f.FieldName)
	switch {
	case len(f.ToManyColumns) > 0:
		fmt.Fprintf(&sb, " -> [%s]", strings.Join(f.ToManyColumns, ","))
	case f.ColumnName != "":
		fmt.Fprintf(&sb, " -> %s", f.ColumnName)
	}
	if f.Shared {
		sb.WriteString(" shared")
	}
	if f.Relationship {
		sb.WriteString(" relationship")
	}
	if !f.Persistent {
		sb.WriteString(" transient")
	}
	return sb.String()
}

// SparseContainer 稀疏容器列，收纳没有映射到其他列的字段
type SparseContainer struct {
	ColumnName string
	Converter  converter.Converter
}

// TableMapping 表级映射规格
type TableMapping struct {
	Table    string
	Database string
	// MapAllColumns 为 true 时，未被字段引用的列按列名映射为同名字段
	MapAllColumns   bool
	Fields          []*FieldMapping
	SparseContainer *SparseContainer
	// ExcludedFieldNames 永远不会写入稀疏容器的字段
	ExcludedFieldNames []string
	// ColumnConverters 列级转换器，按列名
	ColumnConverters map[string]converter.Converter
}

// NewTableMapping 创建默认映射全部列的表映射
func NewTableMapping(table string) *TableMapping {
	tm := &TableMapping{MapAllColumns: true}
	tm.Database, tm.Table = splitTableName(table)
	return tm
}

func splitTableName(name string) (string, string) {
	if db, table, ok := strings.Cut(name, "."); ok {
		return db, table
	}
	return "", name
}

// MapField 添加字段映射，同名字段会被替换
func (m *TableMapping) MapField(fm *FieldMapping) *TableMapping {
	for i, f := range m.Fields {
		if f.FieldName == fm.FieldName {
			m.Fields[i] = fm
			return m
		}
	}
	m.Fields = append(m.Fields, fm)
	return m
}

// MapSparseFields 指定稀疏容器列及不得写入容器的字段
func (m *TableMapping) MapSparseFields(column string, excluded ...string) *TableMapping {
	m.SparseContainer = &SparseContainer{ColumnName: column}
	m.ExcludedFieldNames = append(m.ExcludedFieldNames, excluded...)
	return m
}

// ExcludeFields 这些字段不持久化，也不写入稀疏容器
func (m *TableMapping) ExcludeFields(names ...string) *TableMapping {
	for _, name := range names {
		m.MapField(Field(name).NotPersistent())
		if !slices.Contains(m.ExcludedFieldNames, name) {
			m.ExcludedFieldNames = append(m.ExcludedFieldNames, name)
		}
	}
	return m
}

// MapColumnConverter 设置列级转换器
func (m *TableMapping) MapColumnConverter(column string, c converter.Converter) *TableMapping {
	if m.ColumnConverters == nil {
		m.ColumnConverters = map[string]converter.Converter{}
	}
	m.ColumnConverters[column] = c
	return m
}

// FieldMapping 按字段名查找
func (m *TableMapping) FieldMapping(name string) *FieldMapping {
	for _, f := range m.Fields {
		if f.FieldName == name {
			return f
		}
	}
	return nil
}

// IsExcluded 字段是否在稀疏容器的排除列表中
func (m *TableMapping) IsExcluded(name string) bool {
	return slices.Contains(m.ExcludedFieldNames, name)
}

// Clone 深拷贝，转换器共享
func (m *TableMapping) Clone() *TableMapping {
	c := *m
	c.Fields = make([]*FieldMapping, len(m.Fields))
	for i, f := range m.Fields {
		c.Fields[i] = f.clone()
	}
	if m.SparseContainer != nil {
		sc := *m.SparseContainer
		c.SparseContainer = &sc
	}
	c.ExcludedFieldNames = slices.Clone(m.ExcludedFieldNames)
	c.ColumnConverters = maps.Clone(m.ColumnConverters)
	return &c
}

// QualifiedName database.table
func (m *TableMapping) QualifiedName() string {
	if m.Database == "" {
		return m.Table
	}
	return m.Database + "." + m.Table
}

// Validate 校验映射规格本身，与具体表结构无关的错误在这里发现
func (m *TableMapping) Validate() error {
	var errs []string
	if m.Table == "" {
		errs = append(errs, "table name is empty")
	}

	seen := map[string]bool{}
	for i, f := range m.Fields {
		if f == nil {
			errs = append(errs, fmt.Sprintf("field mapping %d is nil", i))
			continue
		}
		if f.FieldName == "" {
			errs = append(errs, fmt.Sprintf("field mapping %d has no field name", i))
			continue
		}
		if seen[f.FieldName] {
			errs = append(errs, fmt.Sprintf("duplicate field mapping %s", f.FieldName))
		}
		seen[f.FieldName] = true

		if f.ColumnName != "" && len(f.ToManyColumns) > 0 {
			errs = append(errs, fmt.Sprintf("field %s: columnName and toManyColumns are mutually exclusive", f.FieldName))
		}
		if f.Relationship && (f.ColumnName != "" || len(f.ToManyColumns) > 0) {
			errs = append(errs, fmt.Sprintf("field %s: relationship field cannot map to columns", f.FieldName))
		}
		if f.Shared && len(f.ToManyColumns) > 0 {
			errs = append(errs, fmt.Sprintf("field %s: shared field must map to a single column", f.FieldName))
		}
		for _, c := range f.ToManyColumns {
			if c == "" {
				errs = append(errs, fmt.Sprintf("field %s: empty column name in toManyColumns", f.FieldName))
			}
		}
	}

	if m.SparseContainer != nil && m.SparseContainer.ColumnName == "" {
		errs = append(errs, "sparse container column name is empty")
	}

	if len(errs) > 0 {
		return errors.Wrap(ErrInvalidMapping, strings.Join(errs, "; "))
	}
	return nil
}
