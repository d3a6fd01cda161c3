package mapping

import (
	"github.com/hatlonely/tablekit/config"
	"github.com/hatlonely/tablekit/converter"
	"github.com/pkg/errors"
)

// Options 映射文件的配置结构，转换器按名字从 converter 注册表中查找
type Options struct {
	Table    string `cfg:"table" validate:"required"`
	Database string `cfg:"database"`
	// 默认 true
	MapAllColumns    *bool             `cfg:"mapAllColumns"`
	Fields           []FieldOptions    `cfg:"fields" validate:"dive"`
	Sparse           *SparseOptions    `cfg:"sparse"`
	ExcludedFields   []string          `cfg:"excludedFields"`
	ColumnConverters map[string]string `cfg:"columnConverters"`
}

// FieldOptions 字段映射配置
type FieldOptions struct {
	Name         string   `cfg:"name" validate:"required"`
	Column       string   `cfg:"column" validate:"excluded_with=Columns"`
	Columns      []string `cfg:"columns"`
	Persistent   *bool    `cfg:"persistent"`
	Relationship bool     `cfg:"relationship"`
	Converter    string   `cfg:"converter"`
	Shared       bool     `cfg:"shared"`
}

// SparseOptions 稀疏容器配置
type SparseOptions struct {
	Column    string   `cfg:"column" validate:"required"`
	Converter string   `cfg:"converter"`
	Excluded  []string `cfg:"excluded"`
}

// NewTableMappingWithOptions 根据配置创建表映射
func NewTableMappingWithOptions(options *Options) (*TableMapping, error) {
	if options == nil {
		return nil, errors.New("options cannot be nil")
	}

	tm := &TableMapping{
		Table:              options.Table,
		Database:           options.Database,
		MapAllColumns:      options.MapAllColumns == nil || *options.MapAllColumns,
		ExcludedFieldNames: append([]string(nil), options.ExcludedFields...),
	}

	for _, f := range options.Fields {
		fm := Field(f.Name).Column(f.Column).Columns(f.Columns...)
		if f.Persistent != nil && !*f.Persistent {
			fm.NotPersistent()
		}
		if f.Relationship {
			fm.AsRelationship()
		}
		if f.Shared {
			fm.AsShared()
		}
		if f.Converter != "" {
			c, err := converter.Lookup(f.Converter)
			if err != nil {
				return nil, errors.WithMessagef(err, "field %s", f.Name)
			}
			fm.WithConverter(c)
		}
		if len(fm.ToManyColumns) == 0 {
			fm.ToManyColumns = nil
		}
		tm.Fields = append(tm.Fields, fm)
	}

	if options.Sparse != nil {
		tm.MapSparseFields(options.Sparse.Column, options.Sparse.Excluded...)
		if options.Sparse.Converter != "" {
			c, err := converter.Lookup(options.Sparse.Converter)
			if err != nil {
				return nil, errors.WithMessage(err, "sparse container")
			}
			tm.SparseContainer.Converter = c
		}
	}

	for column, name := range options.ColumnConverters {
		c, err := converter.Lookup(name)
		if err != nil {
			return nil, errors.WithMessagef(err, "column %s", column)
		}
		tm.MapColumnConverter(column, c)
	}

	if err := tm.Validate(); err != nil {
		return nil, err
	}
	return tm, nil
}

// LoadFile 从 yaml/json/toml/ini 文件加载表映射
func LoadFile(path string) (*TableMapping, error) {
	var options Options
	if err := config.Load(path, &options); err != nil {
		return nil, err
	}
	return NewTableMappingWithOptions(&options)
}
