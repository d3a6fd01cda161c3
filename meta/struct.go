package meta

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var (
	timeType  = reflect.TypeOf(time.Time{})
	bytesType = reflect.TypeOf([]byte(nil))
)

// FromStruct 从结构体的 rdb 标签构建表元数据
// 表名取 `table:"name"` 标签或 TableName() 方法，默认是结构体名的小写形式
func (b *TableMetadataBuilder) FromStruct(v any) (*TableMetadata, error) {
	rt := reflect.TypeOf(v)
	for rt != nil && rt.Kind() == reflect.Ptr {
		rt = rt.Elem()
	}
	if rt == nil || rt.Kind() != reflect.Struct {
		return nil, errors.Errorf("expected struct, got %T", v)
	}

	if b.table == "" {
		b.table = TableNameOf(v)
	}

	added := map[string]bool{}
	addColumn := func(name string, tag Tag, ft reflect.Type) {
		if added[name] {
			return
		}
		added[name] = true
		columnType := tag.Type
		if columnType == "" {
			columnType = inferColumnType(ft, tag.Size)
		}
		c := NewColumn(name, columnType)
		c.IsNullable = !tag.Required && !tag.Primary
		c.IsAutoincrement = tag.AutoIncrement
		if tag.HasDefault {
			c.DefaultValue = tag.Default
			c.HasDefault = true
		}
		b.AddColumn(c)
	}

	indexes := map[string]*indexSpec{}
	var indexOrder []string

	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		tag, err := ParseTag(field)
		if err != nil {
			return nil, err
		}
		if tag.Skip || tag.Relationship {
			continue
		}

		if len(tag.Columns) > 0 {
			for _, name := range tag.Columns {
				addColumn(name, Tag{Type: tag.Type, Size: tag.Size, Required: tag.Required}, reflect.TypeOf(""))
			}
			continue
		}

		addColumn(tag.Column, tag, field.Type)
		if tag.Sparse {
			b.sparse = tag.Column
		}
		if tag.Primary {
			b.PrimaryKey(tag.Column)
		}
		for _, idx := range tag.Indexes {
			spec, ok := indexes[idx.Name]
			if !ok {
				spec = &indexSpec{name: idx.Name, unique: idx.Unique}
				indexes[idx.Name] = spec
				indexOrder = append(indexOrder, idx.Name)
			}
			spec.columns = append(spec.columns, tag.Column)
		}
	}

	for _, name := range indexOrder {
		b.indexes = append(b.indexes, *indexes[name])
	}
	return b.Build()
}

// TableNameOf 结构体对应的表名
func TableNameOf(v any) string {
	if n, ok := v.(interface{ TableName() string }); ok {
		return n.TableName()
	}
	rt := reflect.TypeOf(v)
	for rt != nil && rt.Kind() == reflect.Ptr {
		rt = rt.Elem()
	}
	if rt == nil || rt.Kind() != reflect.Struct {
		return ""
	}
	for i := 0; i < rt.NumField(); i++ {
		if name := rt.Field(i).Tag.Get("table"); name != "" {
			return name
		}
	}
	return strings.ToLower(rt.Name())
}

// inferColumnType 从 Go 类型推断 SQL 类型
func inferColumnType(t reflect.Type, size int) string {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == timeType {
		return "DATETIME"
	}
	if t == bytesType {
		if size > 0 {
			return fmt.Sprintf("VARBINARY(%d)", size)
		}
		return "BLOB"
	}

	switch t.Kind() {
	case reflect.String:
		if size <= 0 {
			size = 255
		}
		return fmt.Sprintf("VARCHAR(%d)", size)
	case reflect.Bool:
		return "BOOLEAN"
	case reflect.Int8:
		return "TINYINT"
	case reflect.Int16:
		return "SMALLINT"
	case reflect.Int32:
		return "INT"
	case reflect.Int, reflect.Int64:
		return "BIGINT"
	case reflect.Uint8:
		return "TINYINT UNSIGNED"
	case reflect.Uint16:
		return "SMALLINT UNSIGNED"
	case reflect.Uint32:
		return "INT UNSIGNED"
	case reflect.Uint, reflect.Uint64:
		return "BIGINT UNSIGNED"
	case reflect.Float32:
		return "FLOAT"
	case reflect.Float64:
		return "DOUBLE"
	}
	return "JSON"
}
