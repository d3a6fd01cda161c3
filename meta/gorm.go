package meta

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"gorm.io/gorm/schema"
)

var gormSchemaCache sync.Map

// FromGormModel 通过 gorm 的 schema 解析模型生成表元数据
func FromGormModel(model any) (*TableMetadata, error) {
	s, err := schema.Parse(model, &gormSchemaCache, schema.NamingStrategy{})
	if err != nil {
		return nil, errors.Wrap(err, "gorm schema.Parse failed")
	}

	b := NewTableMetadataBuilder().Table(s.Table)
	for _, f := range s.Fields {
		// 关联字段与忽略字段没有 DBName
		if f.DBName == "" {
			continue
		}
		c := NewColumn(f.DBName, gormColumnType(f))
		c.IsNullable = !f.NotNull && !f.PrimaryKey
		c.IsAutoincrement = f.AutoIncrement
		if f.HasDefaultValue && f.DefaultValue != "" {
			c.DefaultValue = f.DefaultValue
			c.HasDefault = true
		}
		b.AddColumn(c)
		if f.Unique {
			b.AddIndex(defaultIndexName(true, f.DBName), true, f.DBName)
		}
	}
	b.PrimaryKey(s.PrimaryFieldDBNames...)

	for _, idx := range s.ParseIndexes() {
		columns := make([]string, 0, len(idx.Fields))
		for _, opt := range idx.Fields {
			if opt.Field == nil {
				continue
			}
			columns = append(columns, opt.DBName)
		}
		b.AddIndex(idx.Name, strings.EqualFold(idx.Class, "UNIQUE"), columns...)
	}
	return b.Build()
}

func gormColumnType(f *schema.Field) string {
	if t, ok := f.TagSettings["TYPE"]; ok && t != "" {
		return t
	}
	switch f.DataType {
	case schema.Bool:
		return "BOOLEAN"
	case schema.Int:
		if f.Size > 0 && f.Size <= 32 {
			return "INT"
		}
		return "BIGINT"
	case schema.Uint:
		if f.Size > 0 && f.Size <= 32 {
			return "INT UNSIGNED"
		}
		return "BIGINT UNSIGNED"
	case schema.Float:
		return "DOUBLE"
	case schema.String:
		size := f.Size
		if size == 0 {
			size = 255
		}
		return fmt.Sprintf("VARCHAR(%d)", size)
	case schema.Time:
		return "DATETIME"
	case schema.Bytes:
		return "BLOB"
	}
	return string(f.DataType)
}
