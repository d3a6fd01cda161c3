package dictionary

import (
	"strings"

	"github.com/hatlonely/tablekit/meta"
	"github.com/hatlonely/tablekit/query"
)

// secondaryIndexes 合并唯一与有序两条记录，跳过主键
func secondaryIndexes(table *meta.TableMetadata) []*meta.IndexMetadata {
	pk := table.PrimaryKey()
	var result []*meta.IndexMetadata
	byName := map[string]*meta.IndexMetadata{}
	for _, idx := range table.Indexes {
		if idx.IsPrimaryKey || idx.Name == pk.Name {
			continue
		}
		if merged, ok := byName[idx.Name]; ok {
			merged.IsUnique = merged.IsUnique || idx.IsUnique
			continue
		}
		merged := &meta.IndexMetadata{Name: idx.Name, IsUnique: idx.IsUnique, IsOrdered: true, ColumnNumbers: idx.ColumnNumbers}
		byName[idx.Name] = merged
		result = append(result, merged)
	}
	return result
}

var rawDefaults = map[string]bool{
	"NULL":              true,
	"CURRENT_TIMESTAMP": true,
	"CURRENT_DATE":      true,
	"CURRENT_TIME":      true,
}

// defaultLiteral 数据字典读到的默认值已经是 SQL 文本，其余按方言转义
func defaultLiteral(d query.Dialect, v any) (string, error) {
	if s, ok := v.(string); ok {
		if rawDefaults[strings.ToUpper(s)] {
			return s, nil
		}
		if isQuotedLiteral(d, s) {
			return s, nil
		}
	}
	return d.FormatLiteral(v)
}

// isQuotedLiteral 首尾是单引号，中间的单引号都已加倍，mysql 下不含反斜杠
func isQuotedLiteral(d query.Dialect, s string) bool {
	if len(s) < 2 || s[0] != '\'' || s[len(s)-1] != '\'' {
		return false
	}
	inner := s[1 : len(s)-1]
	if d == query.MySQL && strings.ContainsAny(inner, "\\\x00") {
		return false
	}
	return !strings.Contains(strings.ReplaceAll(inner, "''", ""), "'")
}
