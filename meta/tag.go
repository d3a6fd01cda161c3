package meta

import (
	"reflect"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// TagName 结构体标签名
const TagName = "rdb"

// Tag 解析后的 rdb 标签
// 支持的格式：
// - `rdb:"column_name,type=VARCHAR(64),size=64,default=x,required,primary,autoincrement"`
// - `rdb:",index"`、`rdb:",unique"`、`rdb:",index=idx_name"`、`rdb:",unique=uk_name"`
// - `rdb:",columns=a|b|c"` 一个字段对应多列
// - `rdb:",shared"` 多个字段写同一列
// - `rdb:",relationship"` 关联字段，不落库
// - `rdb:",converter=json"` 字段级转换器
// - `rdb:"doc,sparse"` map 字段作为稀疏容器列
// - `rdb:"-"` 忽略字段
type Tag struct {
	Column        string
	Skip          bool
	Type          string
	Size          int
	Default       string
	HasDefault    bool
	Required      bool
	Primary       bool
	AutoIncrement bool
	Sparse        bool
	Shared        bool
	Relationship  bool
	Columns       []string
	Converter     string
	Indexes       []IndexTag
}

// IndexTag 字段声明的索引
type IndexTag struct {
	Name   string
	Unique bool
}

// ParseTag 解析字段的 rdb 标签，未指定列名时使用字段名
func ParseTag(field reflect.StructField) (Tag, error) {
	tag := Tag{Column: field.Name}
	value, ok := field.Tag.Lookup(TagName)
	if !ok || value == "" {
		return tag, nil
	}
	if value == "-" {
		tag.Skip = true
		return tag, nil
	}

	parts := splitTag(value)
	if parts[0] != "" && !strings.Contains(parts[0], "=") {
		tag.Column = parts[0]
		parts = parts[1:]
	} else if parts[0] == "" {
		parts = parts[1:]
	}

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, val, hasValue := strings.Cut(part, "=")
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)

		switch key {
		case "type":
			tag.Type = val
		case "size":
			size, err := strconv.Atoi(val)
			if err != nil {
				return tag, errors.Wrapf(err, "field %s: invalid size %q", field.Name, val)
			}
			tag.Size = size
		case "default":
			tag.Default = val
			tag.HasDefault = true
		case "required", "not_null":
			tag.Required = true
		case "primary", "pk":
			tag.Primary = true
		case "autoincrement", "auto_increment":
			tag.AutoIncrement = true
		case "sparse":
			tag.Sparse = true
		case "shared":
			tag.Shared = true
		case "relationship":
			tag.Relationship = true
		case "columns":
			for _, c := range strings.Split(val, "|") {
				if c = strings.TrimSpace(c); c != "" {
					tag.Columns = append(tag.Columns, c)
				}
			}
			if len(tag.Columns) == 0 {
				return tag, errors.Errorf("field %s: empty columns option", field.Name)
			}
		case "converter":
			tag.Converter = val
		case "index", "unique":
			name := val
			if !hasValue || name == "" {
				name = defaultIndexName(key == "unique", tag.Column)
			}
			tag.Indexes = append(tag.Indexes, IndexTag{Name: name, Unique: key == "unique"})
		default:
			return tag, errors.Errorf("field %s: unknown rdb tag option %q", field.Name, key)
		}
	}
	return tag, nil
}

// splitTag 按逗号切分，括号内的逗号保留，如 type=DECIMAL(10,2)
func splitTag(s string) []string {
	var parts []string
	depth, start := 0, 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}
