package handler

import (
	"github.com/hatlonely/tablekit/bitmask"
	"github.com/pkg/errors"
)

// Get 取对象在第 n 列上的值，第二个返回值为 false 表示对象上没有定义该列的值
func (h *TableHandler) Get(obj Object, n int) (any, bool, error) {
	if err := h.check(); err != nil {
		return nil, false, err
	}
	c := h.Column(n)
	if c == nil {
		return nil, false, errors.Errorf("column number %d out of range", n)
	}
	v, defined, err := c.get(obj)
	if err != nil {
		return nil, false, errors.WithMessagef(err, "get column %s", c.Name)
	}
	if defined && v != nil && c.Metadata.IsBinary {
		if _, ok := v.([]byte); !ok {
			return nil, false, &ValueError{Column: c.Name, SQLState: "22000", Message: "value for binary column must be []byte"}
		}
	}
	return v, defined, nil
}

// GetColumns 全部列的值，未定义的列为 nil
func (h *TableHandler) GetColumns(obj Object) ([]any, error) {
	values := make([]any, len(h.columns))
	for i := range h.columns {
		v, _, err := h.Get(obj, i)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}

// DefinedColumns 对象上定义了值的列
func (h *TableHandler) DefinedColumns(obj Object) (*bitmask.BitMask, error) {
	mask := bitmask.New(len(h.columns))
	for i := range h.columns {
		_, defined, err := h.Get(obj, i)
		if err != nil {
			return nil, err
		}
		if defined {
			mask.Set(i)
		}
	}
	return mask, nil
}

// Set 把第 n 列的数据库值写回对象
func (h *TableHandler) Set(obj Object, n int, value any) error {
	if err := h.check(); err != nil {
		return err
	}
	c := h.Column(n)
	if c == nil {
		return errors.Errorf("column number %d out of range", n)
	}
	return errors.WithMessagef(c.set(obj, value), "set column %s", c.Name)
}

// SetFields 按列名写回多个列值，values 中没有的列跳过
func (h *TableHandler) SetFields(obj Object, values map[string]any) error {
	if err := h.check(); err != nil {
		return err
	}
	for _, c := range h.columns {
		v, ok := values[c.Name]
		if !ok {
			continue
		}
		if err := h.Set(obj, c.Number, v); err != nil {
			return err
		}
	}
	return nil
}

// NewResultObject 用构造函数创建结果对象，并按列名写入 values
func (h *TableHandler) NewResultObject(values map[string]any) (Object, error) {
	if err := h.check(); err != nil {
		return nil, err
	}
	obj := h.newObject()
	resultObjectsCreated.Inc()
	if values != nil {
		if err := h.SetFields(obj, values); err != nil {
			return nil, err
		}
	}
	return obj, nil
}

// NewResultObjectFromRow 从行中依次读取键字段与非键字段，row[offset] 是第一个键字段的值
func (h *TableHandler) NewResultObjectFromRow(row []any, offset int, keyFields, nonKeyFields []*Field) (Object, error) {
	if err := h.check(); err != nil {
		return nil, err
	}
	if offset < 0 || offset+len(keyFields)+len(nonKeyFields) > len(row) {
		return nil, errors.Errorf("row of %d values is too short for offset %d and %d fields",
			len(row), offset, len(keyFields)+len(nonKeyFields))
	}

	obj := h.newObject()
	resultObjectsCreated.Inc()
	for i, f := range append(append([]*Field(nil), keyFields...), nonKeyFields...) {
		if f.ColumnNumber < 0 {
			return nil, errors.Errorf("field %s is not mapped to a single column", f.Name)
		}
		if err := h.Set(obj, f.ColumnNumber, row[offset+i]); err != nil {
			return nil, err
		}
	}
	return obj, nil
}

// SetAutoincrement 把数据库生成的自增值写回对象，没有自增列时忽略
func (h *TableHandler) SetAutoincrement(obj Object, value any) error {
	if err := h.check(); err != nil {
		return err
	}
	if h.autoIncColumn < 0 || h.autoIncField == "" {
		return nil
	}
	h.logger.Debug("set autoincrement", "field", h.autoIncField, "value", value)
	return obj.Set(h.autoIncField, value)
}
