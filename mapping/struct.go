package mapping

import (
	"reflect"

	"github.com/hatlonely/tablekit/converter"
	"github.com/hatlonely/tablekit/meta"
	"github.com/pkg/errors"
)

// FromStruct 根据 rdb 标签生成表映射，字段名为 Go 字段名
// 结构体只映射声明的字段（MapAllColumns=false），`rdb:"doc,sparse"` 的 map 字段指定稀疏容器
func FromStruct(v any) (*TableMapping, error) {
	rt := reflect.TypeOf(v)
	for rt != nil && rt.Kind() == reflect.Ptr {
		rt = rt.Elem()
	}
	if rt == nil || rt.Kind() != reflect.Struct {
		return nil, errors.Errorf("expected struct, got %T", v)
	}

	tm := NewTableMapping(meta.TableNameOf(v))
	tm.MapAllColumns = false

	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		tag, err := meta.ParseTag(field)
		if err != nil {
			return nil, err
		}

		if tag.Sparse {
			if tm.SparseContainer != nil {
				return nil, errors.Errorf("field %s: only one sparse container is allowed", field.Name)
			}
			if field.Type.Kind() != reflect.Map || field.Type.Key().Kind() != reflect.String {
				return nil, errors.Errorf("field %s: sparse container must be map[string]T", field.Name)
			}
			tm.SparseContainer = &SparseContainer{ColumnName: tag.Column}
			tm.ExcludedFieldNames = append(tm.ExcludedFieldNames, field.Name)
			continue
		}

		fm := Field(field.Name)
		switch {
		case tag.Skip:
			fm.NotPersistent()
			tm.ExcludedFieldNames = append(tm.ExcludedFieldNames, field.Name)
		case tag.Relationship:
			fm.AsRelationship()
		case len(tag.Columns) > 0:
			fm.Columns(tag.Columns...)
		default:
			fm.Column(tag.Column)
		}
		if tag.Shared {
			fm.AsShared()
		}
		if tag.Converter != "" {
			c, err := converter.Lookup(tag.Converter)
			if err != nil {
				return nil, errors.WithMessagef(err, "field %s", field.Name)
			}
			fm.WithConverter(c)
		}
		tm.MapField(fm)
	}

	if err := tm.Validate(); err != nil {
		return nil, err
	}
	return tm, nil
}
