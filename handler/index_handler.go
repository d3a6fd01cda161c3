package handler

import (
	"fmt"
	"reflect"
	"time"

	"github.com/hatlonely/tablekit/bitmask"
	"github.com/hatlonely/tablekit/meta"
)

// Masks 谓词或键涉及的列：Used 所有用到的列，Equal 被等值条件固定的列
type Masks struct {
	Used  *bitmask.BitMask
	Equal *bitmask.BitMask
}

func NewMasks(width int) Masks {
	return Masks{Used: bitmask.New(width), Equal: bitmask.New(width)}
}

// IndexHandler 封装一个物理索引，列序号是表处理器中的序号
type IndexHandler struct {
	table         *TableHandler
	index         *meta.IndexMetadata
	columnNumbers []int
	columnMask    *bitmask.BitMask
	fields        []*Field
	singleColumn  *meta.ColumnMetadata
}

func newIndexHandler(h *TableHandler, idx *meta.IndexMetadata) *IndexHandler {
	indexHandlersCreated.Inc()

	ih := &IndexHandler{table: h, index: idx, columnMask: bitmask.New(len(h.columns))}
	seen := map[string]bool{}
	for _, tableColumn := range idx.ColumnNumbers {
		n := h.columnByName[h.table.Columns[tableColumn].Name]
		ih.columnNumbers = append(ih.columnNumbers, n)
		ih.columnMask.Set(n)
		for _, name := range h.columns[n].FieldNames {
			if !seen[name] {
				seen[name] = true
				ih.fields = append(ih.fields, h.fields[name])
			}
		}
	}
	if len(ih.columnNumbers) == 1 {
		ih.singleColumn = h.columns[ih.columnNumbers[0]].Metadata
	}
	return ih
}

func (ih *IndexHandler) Index() *meta.IndexMetadata {
	return ih.index
}

func (ih *IndexHandler) IsPrimaryKey() bool { return ih.index.IsPrimaryKey }
func (ih *IndexHandler) IsUnique() bool     { return ih.index.IsUnique }
func (ih *IndexHandler) IsOrdered() bool    { return ih.index.IsOrdered }

// ColumnNumbers 索引列在表处理器中的序号，按索引顺序
func (ih *IndexHandler) ColumnNumbers() []int {
	return append([]int(nil), ih.columnNumbers...)
}

func (ih *IndexHandler) ColumnMask() *bitmask.BitMask {
	return ih.columnMask.Clone()
}

// Fields 索引列对应的字段
func (ih *IndexHandler) Fields() []*Field {
	return append([]*Field(nil), ih.fields...)
}

// SingleColumn 单列索引的列元数据，多列索引返回 nil
func (ih *IndexHandler) SingleColumn() *meta.ColumnMetadata {
	return ih.singleColumn
}

// IsUsable 唯一索引要求所有列都被等值固定；有序索引要求首列被用到
func (ih *IndexHandler) IsUsable(m Masks) bool {
	if ih.index.IsUnique {
		return ih.columnMask.IsSubsetOf(m.Equal)
	}
	if ih.index.IsOrdered {
		return m.Used.IsSet(ih.columnNumbers[0])
	}
	return false
}

// Score 按索引列顺序计分：每个连续被用到的列 +1，若同时是等值列再 +1，遇到第一个未用到的列停止
func (ih *IndexHandler) Score(m Masks) int {
	score := 0
	for _, n := range ih.columnNumbers {
		if !m.Used.IsSet(n) {
			break
		}
		score++
		if m.Equal.IsSet(n) {
			score++
		}
	}
	return score
}

// GetColumns 按索引列顺序取键值；标量视为单列键，[]any 视为已排好序的键值
func (ih *IndexHandler) GetColumns(keys any) ([]any, error) {
	if err := ih.table.check(); err != nil {
		return nil, err
	}
	if isScalar(keys) {
		return []any{keys}, nil
	}
	if values, ok := keys.([]any); ok {
		return append([]any(nil), values...), nil
	}
	obj, err := AsObject(keys)
	if err != nil {
		return nil, err
	}
	result := make([]any, len(ih.columnNumbers))
	for i, n := range ih.columnNumbers {
		v, _, err := ih.table.Get(obj, n)
		if err != nil {
			return nil, err
		}
		result[i] = v
	}
	return result, nil
}

func (ih *IndexHandler) String() string {
	kind := ""
	if ih.index.IsUnique {
		kind += " unique"
	}
	if ih.index.IsOrdered {
		kind += " ordered"
	}
	return fmt.Sprintf("IndexHandler for%s index %s with %d field(s) over column(s) %v",
		kind, ih.index.Name, len(ih.fields), ih.columnNumbers)
}

var (
	timeType  = reflect.TypeOf(time.Time{})
	bytesType = reflect.TypeOf([]byte(nil))
)

// isScalar 字符串、数值、布尔、[]byte、time.Time 视为标量主键
func isScalar(v any) bool {
	if v == nil {
		return false
	}
	rt := reflect.TypeOf(v)
	if rt == timeType || rt == bytesType {
		return true
	}
	switch rt.Kind() {
	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
