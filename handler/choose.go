package handler

import (
	"reflect"

	"github.com/pkg/errors"
)

// ChooseIndex 根据键选择访问路径：先找被等值完全覆盖的唯一索引，再给有序索引打分
// keys 为标量时固定主键首列；为 map/Object/结构体时按字段名合并列掩码，值为 nil 的字段只算用到不算等值
// 没有可用索引时返回 nil
func (h *TableHandler) ChooseIndex(keys any, allowUnique, allowScan bool) (*IndexHandler, error) {
	if err := h.check(); err != nil {
		return nil, err
	}
	masks, err := h.keyMasks(keys)
	if err != nil {
		return nil, err
	}

	var ih *IndexHandler
	if allowUnique {
		ih = h.ChooseUniqueIndex(masks)
	}
	if allowScan && ih == nil {
		ih = h.ChooseOrderedIndex(masks)
	}
	h.logger.Debug("index chosen", "table", h.tableName(), "used", masks.Used.String(),
		"equal", masks.Equal.String(), "index", indexName(ih))
	return ih, nil
}

// IndexHandler 唯一索引或有序索引
func (h *TableHandler) IndexHandler(keys any) (*IndexHandler, error) {
	return h.ChooseIndex(keys, true, true)
}

// UniqueIndexHandler 只考虑唯一索引
func (h *TableHandler) UniqueIndexHandler(keys any) (*IndexHandler, error) {
	return h.ChooseIndex(keys, true, false)
}

// OrderedIndexHandler 只考虑有序索引
func (h *TableHandler) OrderedIndexHandler(keys any) (*IndexHandler, error) {
	return h.ChooseIndex(keys, false, true)
}

// ChooseUniqueIndex 按枚举顺序返回第一个列被等值掩码完全覆盖的唯一索引，主键是 0 号索引因而优先
func (h *TableHandler) ChooseUniqueIndex(m Masks) *IndexHandler {
	for _, ih := range h.indexHandlers {
		if ih.index.IsUnique && ih.IsUsable(m) {
			return ih
		}
	}
	return nil
}

// ChooseOrderedIndex 返回得分最高且大于 0 的有序索引，同分取先出现的
func (h *TableHandler) ChooseOrderedIndex(m Masks) *IndexHandler {
	var best *IndexHandler
	highScore := 0
	for _, ih := range h.indexHandlers {
		if !ih.index.IsOrdered {
			continue
		}
		if score := ih.Score(m); score > highScore {
			highScore = score
			best = ih
		}
	}
	return best
}

func (h *TableHandler) keyMasks(keys any) (Masks, error) {
	masks := NewMasks(len(h.columns))

	if isScalar(keys) {
		for _, ih := range h.indexHandlers {
			if ih.index.IsPrimaryKey {
				masks.Used.Set(ih.columnNumbers[0])
				masks.Equal.Set(ih.columnNumbers[0])
				break
			}
		}
		return masks, nil
	}

	values, err := keyValues(keys)
	if err != nil {
		return masks, err
	}
	for name, v := range values {
		mask := h.ColumnMaskForField(name)
		if mask == nil {
			continue
		}
		masks.Used.OrWith(mask)
		if v != nil {
			masks.Equal.OrWith(mask)
		}
	}
	return masks, nil
}

// keyValues 结构体键跳过 nil 指针和 nil 接口字段，零值照常参与索引选择
func keyValues(keys any) (map[string]any, error) {
	switch k := keys.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return k, nil
	case MapObject:
		return k, nil
	case *StructObject:
		return structKeyValues(k.rv), nil
	case Object:
		values := map[string]any{}
		for _, name := range k.Fields() {
			if v, ok := k.Get(name); ok {
				values[name] = v
			}
		}
		return values, nil
	}

	rv := reflect.ValueOf(keys)
	for rv.Kind() == reflect.Ptr && !rv.IsNil() {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, errors.Errorf("unsupported key type %T", keys)
	}
	return structKeyValues(rv), nil
}

func structKeyValues(rv reflect.Value) map[string]any {
	values := map[string]any{}
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		if !rt.Field(i).IsExported() {
			continue
		}
		f := rv.Field(i)
		switch f.Kind() {
		case reflect.Ptr, reflect.Interface:
			if f.IsNil() {
				continue
			}
			values[rt.Field(i).Name] = f.Elem().Interface()
		default:
			values[rt.Field(i).Name] = f.Interface()
		}
	}
	return values
}

func indexName(ih *IndexHandler) string {
	if ih == nil {
		return ""
	}
	return ih.index.Name
}
