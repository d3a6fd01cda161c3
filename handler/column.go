package handler

import (
	"fmt"

	"github.com/hatlonely/tablekit/converter"
	"github.com/hatlonely/tablekit/mapping"
	"github.com/hatlonely/tablekit/meta"
	"github.com/pkg/errors"
)

// Shape 列的映射形态
type Shape int

const (
	// ShapeUnmapped 没有字段映射，读写都被忽略
	ShapeUnmapped Shape = iota
	// ShapePlain 一个字段对应一列
	ShapePlain
	// ShapeShared 多个字段写同一列，中间值以字段名为键
	ShapeShared
	// ShapePartial 一个字段跨多列，中间值以列名为键
	ShapePartial
	// ShapeSparse 稀疏容器，收纳对象上其余的字段
	ShapeSparse
)

func (s Shape) String() string {
	switch s {
	case ShapePlain:
		return "plain"
	case ShapeShared:
		return "shared"
	case ShapePartial:
		return "partial"
	case ShapeSparse:
		return "sparse"
	}
	return "unmapped"
}

// Column 解析后的列
type Column struct {
	Name     string
	Number   int
	Metadata *meta.ColumnMetadata
	Shape    Shape
	// FieldNames 写入该列的字段，只有 shared 才会多于一个
	FieldNames []string
	// IsFirst/IsLast partial 列在字段列序中的位置
	IsFirst bool
	IsLast  bool

	fieldConverters []converter.Converter
	typeConverter   converter.Converter
	// partial 字段的全部成员列
	partialColumns []string
	// sparse 不写入容器的字段
	excluded map[string]bool
}

func newColumn(number int, md *meta.ColumnMetadata, c converter.Converter) *Column {
	return &Column{Name: md.Name, Number: number, Metadata: md, typeConverter: c}
}

// addFieldMapping 返回非空字符串表示映射冲突
func (c *Column) addFieldMapping(fm *mapping.FieldMapping) string {
	switch c.Shape {
	case ShapeSparse:
		c.FieldNames = append(c.FieldNames, fm.FieldName)
		c.fieldConverters = append(c.fieldConverters, fm.Converter)
		return ""
	case ShapePartial:
		return fmt.Sprintf("Column %s is part of field %s and cannot also be mapped by field %s", c.Name, c.FieldNames[0], fm.FieldName)
	}

	if fm.Shared {
		c.Shape = ShapeShared
	}
	c.FieldNames = append(c.FieldNames, fm.FieldName)
	c.fieldConverters = append(c.fieldConverters, fm.Converter)
	if len(c.FieldNames) > 1 && c.Shape != ShapeShared {
		return fmt.Sprintf("Column %s is used by multiple fields but field %s does not mark it as shared", c.Name, fm.FieldName)
	}
	if c.Shape == ShapeUnmapped {
		c.Shape = ShapePlain
	}
	return ""
}

func (c *Column) mapPartial(fm *mapping.FieldMapping, n int, members []string) string {
	if c.Shape != ShapeUnmapped {
		return fmt.Sprintf("Column %s is part of field %s but is already mapped by %v", c.Name, fm.FieldName, c.FieldNames)
	}
	c.Shape = ShapePartial
	c.IsFirst = n == 0
	c.IsLast = n == len(members)-1
	c.partialColumns = members
	c.FieldNames = []string{fm.FieldName}
	c.fieldConverters = []converter.Converter{fm.Converter}
	return ""
}

func (c *Column) setSparse(sc *mapping.SparseContainer, excluded map[string]bool) {
	c.Shape = ShapeSparse
	c.excluded = excluded
	switch {
	case sc != nil && sc.Converter != nil:
		c.typeConverter = sc.Converter
	case c.typeConverter == nil:
		c.typeConverter = converter.NewJSONConverter[map[string]any]()
	}
}

// IsMapped 列是否参与读写
func (c *Column) IsMapped() bool {
	return c.Shape != ShapeUnmapped
}

// HasConverter 列或字段上是否有转换器
func (c *Column) HasConverter() bool {
	return c.typeConverter != nil || (len(c.fieldConverters) > 0 && c.fieldConverters[0] != nil)
}

func (c *Column) toDB(v any) (any, error) {
	if c.typeConverter == nil {
		return v, nil
	}
	return c.typeConverter.ToDB(v)
}

func (c *Column) fromDB(v any) (any, error) {
	if c.typeConverter == nil {
		return v, nil
	}
	return c.typeConverter.FromDB(v)
}

func fieldToDB(fc converter.Converter, v any) (any, error) {
	if fc == nil {
		return v, nil
	}
	return fc.ToDB(v)
}

func fieldFromDB(fc converter.Converter, v any) (any, error) {
	if fc == nil {
		return v, nil
	}
	return fc.FromDB(v)
}

// get 取列值，第二个返回值为 false 表示未定义
func (c *Column) get(obj Object) (any, bool, error) {
	switch c.Shape {
	case ShapePlain:
		v, ok := obj.Get(c.FieldNames[0])
		if !ok {
			return nil, false, nil
		}
		v, err := fieldToDB(c.fieldConverters[0], v)
		if err != nil {
			return nil, false, err
		}
		v, err = c.toDB(v)
		return v, err == nil, err

	case ShapeShared:
		intermediate := make(map[string]any, len(c.FieldNames))
		for i, name := range c.FieldNames {
			v, ok := obj.Get(name)
			if !ok {
				continue
			}
			v, err := fieldToDB(c.fieldConverters[i], v)
			if err != nil {
				return nil, false, err
			}
			intermediate[name] = v
		}
		v, err := c.toDB(intermediate)
		return v, err == nil, err

	case ShapePartial:
		v, ok := obj.Get(c.FieldNames[0])
		if !ok {
			return nil, false, nil
		}
		var intermediate map[string]any
		if pv, pending := v.(*partialValue); pending {
			intermediate = pv.values
		} else {
			converted, err := fieldToDB(c.fieldConverters[0], v)
			if err != nil {
				return nil, false, err
			}
			if intermediate, ok = converted.(map[string]any); !ok {
				// 中间值类型不对时视为未定义
				return nil, false, nil
			}
		}
		part, ok := intermediate[c.Name]
		if !ok {
			return nil, false, nil
		}
		part, err := c.toDB(part)
		return part, err == nil, err

	case ShapeSparse:
		intermediate := map[string]any{}
		for _, name := range obj.Fields() {
			if c.excluded[name] {
				continue
			}
			v, ok := obj.Get(name)
			if !ok {
				continue
			}
			v, err := fieldToDB(c.sparseConverter(name), v)
			if err != nil {
				return nil, false, err
			}
			intermediate[name] = v
		}
		v, err := c.toDB(intermediate)
		return v, err == nil, err
	}
	return nil, false, nil
}

// set 把数据库值写回对象
func (c *Column) set(obj Object, value any) error {
	switch c.Shape {
	case ShapePlain:
		v, err := c.fromDB(value)
		if err != nil {
			return err
		}
		if v, err = fieldFromDB(c.fieldConverters[0], v); err != nil {
			return err
		}
		return obj.Set(c.FieldNames[0], v)

	case ShapeShared:
		v, err := c.fromDB(value)
		if err != nil {
			return err
		}
		intermediate, err := asIntermediate(c.Name, v)
		if err != nil || intermediate == nil {
			return err
		}
		for i, name := range c.FieldNames {
			fv, err := fieldFromDB(c.fieldConverters[i], intermediate[name])
			if err != nil {
				return err
			}
			if err := obj.Set(name, fv); err != nil {
				return err
			}
		}
		return nil

	case ShapePartial:
		v, err := c.fromDB(value)
		if err != nil {
			return err
		}
		name := c.FieldNames[0]
		cur, _ := obj.Get(name)
		pv, ok := cur.(*partialValue)
		if !ok {
			pv = &partialValue{values: make(map[string]any, len(c.partialColumns))}
		}
		pv.values[c.Name] = v
		if len(pv.values) < len(c.partialColumns) {
			return obj.Set(name, pv)
		}
		composite, err := fieldFromDB(c.fieldConverters[0], pv.values)
		if err != nil {
			return err
		}
		return obj.Set(name, composite)

	case ShapeSparse:
		v, err := c.fromDB(value)
		if err != nil {
			return err
		}
		intermediate, err := asIntermediate(c.Name, v)
		if err != nil {
			return err
		}
		for name, fv := range intermediate {
			if fv, err = fieldFromDB(c.sparseConverter(name), fv); err != nil {
				return err
			}
			if err := obj.Set(name, fv); err != nil {
				return err
			}
		}
		return nil
	}
	return nil
}

// sparseConverter 显式路由到稀疏容器的字段可以带自己的转换器
func (c *Column) sparseConverter(name string) converter.Converter {
	for i, n := range c.FieldNames {
		if n == name {
			return c.fieldConverters[i]
		}
	}
	return nil
}

func asIntermediate(column string, v any) (map[string]any, error) {
	switch m := v.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return m, nil
	case MapObject:
		return m, nil
	}
	return nil, errors.Errorf("column %s: expected map[string]any, got %T", column, v)
}
