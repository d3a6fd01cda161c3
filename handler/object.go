package handler

import (
	"reflect"
	"sort"

	"github.com/hatlonely/tablekit/meta"
	"github.com/pkg/errors"
)

// Object 领域对象，按字段名读写
type Object interface {
	Get(name string) (any, bool)
	Set(name string, v any) error
	// Fields 对象自身的全部字段名，稀疏容器据此收集未映射字段
	Fields() []string
}

// partialValue 跨多列字段尚未凑齐时的中间值，键为列名
type partialValue struct {
	values map[string]any
}

// MapObject 以 map 作为领域对象
type MapObject map[string]any

func (m MapObject) Get(name string) (any, bool) {
	v, ok := m[name]
	return v, ok
}

func (m MapObject) Set(name string, v any) error {
	m[name] = v
	return nil
}

func (m MapObject) Fields() []string {
	names := make([]string, 0, len(m))
	for k, v := range m {
		if _, pending := v.(*partialValue); pending {
			continue
		}
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// StructObject 基于反射的结构体对象，字段名为 Go 字段名
// `rdb:",sparse"` 标记的 map[string]T 字段接收结构体上没有的字段
type StructObject struct {
	rv     reflect.Value
	fields map[string]int
	names  []string
	sparse int
	extra  map[string]any
}

// NewStructObject v 必须是非 nil 的结构体指针
func NewStructObject(v any) (*StructObject, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return nil, errors.Errorf("expected non-nil pointer to struct, got %T", v)
	}
	rv = rv.Elem()
	rt := rv.Type()

	o := &StructObject{rv: rv, fields: map[string]int{}, sparse: -1}
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		tag, err := meta.ParseTag(field)
		if err != nil {
			return nil, err
		}
		if tag.Skip {
			continue
		}
		if tag.Sparse {
			if field.Type.Kind() != reflect.Map || field.Type.Key().Kind() != reflect.String {
				return nil, errors.Errorf("field %s: sparse container must be map[string]T", field.Name)
			}
			o.sparse = i
			continue
		}
		o.fields[field.Name] = i
		o.names = append(o.names, field.Name)
	}
	return o, nil
}

// Interface 返回底层结构体指针
func (o *StructObject) Interface() any {
	return o.rv.Addr().Interface()
}

func (o *StructObject) Get(name string) (any, bool) {
	if v, ok := o.extra[name]; ok {
		return v, true
	}
	if i, ok := o.fields[name]; ok {
		f := o.rv.Field(i)
		if f.Kind() == reflect.Ptr {
			if f.IsNil() {
				return nil, true
			}
			return f.Elem().Interface(), true
		}
		return f.Interface(), true
	}
	if o.sparse >= 0 {
		m := o.rv.Field(o.sparse)
		if v := m.MapIndex(reflect.ValueOf(name).Convert(m.Type().Key())); v.IsValid() {
			return v.Interface(), true
		}
	}
	return nil, false
}

func (o *StructObject) Set(name string, v any) error {
	if pv, ok := v.(*partialValue); ok {
		o.setExtra(name, pv)
		return nil
	}
	delete(o.extra, name)

	if i, ok := o.fields[name]; ok {
		return errors.WithMessagef(assign(o.rv.Field(i), v), "field %s", name)
	}
	if o.sparse >= 0 {
		m := o.rv.Field(o.sparse)
		if m.IsNil() {
			m.Set(reflect.MakeMap(m.Type()))
		}
		elem := reflect.New(m.Type().Elem()).Elem()
		if err := assign(elem, v); err != nil {
			return errors.WithMessagef(err, "sparse field %s", name)
		}
		m.SetMapIndex(reflect.ValueOf(name).Convert(m.Type().Key()), elem)
		return nil
	}
	o.setExtra(name, v)
	return nil
}

func (o *StructObject) setExtra(name string, v any) {
	if o.extra == nil {
		o.extra = map[string]any{}
	}
	o.extra[name] = v
}

func (o *StructObject) Fields() []string {
	names := append([]string(nil), o.names...)
	var more []string
	if o.sparse >= 0 {
		iter := o.rv.Field(o.sparse).MapRange()
		for iter.Next() {
			more = append(more, iter.Key().String())
		}
	}
	for k, v := range o.extra {
		if _, pending := v.(*partialValue); !pending {
			more = append(more, k)
		}
	}
	sort.Strings(more)
	return append(names, more...)
}

// assign 把 v 写入 dst，支持指针字段与数值类型间的转换
func assign(dst reflect.Value, v any) error {
	if v == nil {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}
	src := reflect.ValueOf(v)
	if src.Type().AssignableTo(dst.Type()) {
		dst.Set(src)
		return nil
	}
	if dst.Kind() == reflect.Ptr {
		elem := reflect.New(dst.Type().Elem())
		if err := assign(elem.Elem(), v); err != nil {
			return err
		}
		dst.Set(elem)
		return nil
	}
	if convertible(src, dst.Type()) {
		dst.Set(src.Convert(dst.Type()))
		return nil
	}
	return errors.Errorf("cannot assign %T to %v", v, dst.Type())
}

// convertible 排除 int -> string 这类语义不同的转换
func convertible(src reflect.Value, dst reflect.Type) bool {
	if !src.Type().ConvertibleTo(dst) {
		return false
	}
	srcNumeric, dstNumeric := isNumeric(src.Kind()), isNumeric(dst.Kind())
	if srcNumeric || dstNumeric {
		return srcNumeric && dstNumeric
	}
	return src.Kind() == dst.Kind()
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// AsObject 把 map、结构体指针等适配为 Object
func AsObject(v any) (Object, error) {
	switch o := v.(type) {
	case Object:
		return o, nil
	case map[string]any:
		return MapObject(o), nil
	case nil:
		return nil, errors.New("object is nil")
	}
	return NewStructObject(v)
}
