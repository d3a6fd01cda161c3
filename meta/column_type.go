package meta

import (
	"regexp"
	"strconv"
	"strings"
)

var columnTypeRegex = regexp.MustCompile(`(?i)^\s*([A-Za-z ]+?)\s*(?:\(\s*(\d+)\s*(?:,\s*(\d+)\s*)?\))?\s*((?:unsigned|signed|zerofill|\s)*)$`)

var intSizes = map[string]int{
	"TINYINT":   1,
	"BOOL":      1,
	"BOOLEAN":   1,
	"SMALLINT":  2,
	"MEDIUMINT": 3,
	"INT":       4,
	"INTEGER":   4,
	"BIGINT":    8,
}

// ParseColumnType 解析 SQL 类型字符串，如 "VARCHAR(255)"、"DECIMAL(10,2)"、"INT UNSIGNED"，
// 把类型相关的属性写入列元数据
func ParseColumnType(c *ColumnMetadata, columnType string) {
	c.ColumnType = columnType
	m := columnTypeRegex.FindStringSubmatch(strings.TrimSpace(columnType))
	if m == nil {
		return
	}

	base := strings.ToUpper(strings.TrimSpace(m[1]))
	first, _ := strconv.Atoi(m[2])
	second, _ := strconv.Atoi(m[3])
	c.IsUnsigned = strings.Contains(strings.ToLower(m[4]), "unsigned")

	if size, ok := intSizes[base]; ok {
		c.IsIntegral = true
		c.IntSize = size
		return
	}

	switch base {
	case "DECIMAL", "NUMERIC", "DEC", "FIXED":
		c.Precision = first
		c.Scale = second
	case "FLOAT", "DOUBLE", "REAL", "DOUBLE PRECISION":
		c.Precision = first
		c.Scale = second
	case "CHAR", "VARCHAR", "CHARACTER", "CHARACTER VARYING", "NCHAR", "NVARCHAR":
		c.Length = first
	case "BINARY", "VARBINARY":
		c.Length = first
		c.IsBinary = true
	case "BIT":
		c.Length = first
		c.IsBinary = true
	case "BLOB", "TINYBLOB", "MEDIUMBLOB", "LONGBLOB":
		c.Length = first
		c.IsBinary = true
		c.IsLob = true
	case "TEXT", "TINYTEXT", "MEDIUMTEXT", "LONGTEXT", "CLOB", "JSON":
		c.Length = first
		c.IsLob = true
	}
}

// NewColumn 创建列并解析类型
func NewColumn(name, columnType string) *ColumnMetadata {
	c := &ColumnMetadata{Name: name, IsNullable: true}
	ParseColumnType(c, columnType)
	return c
}
