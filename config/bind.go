package config

import (
	"encoding/json"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var (
	durationType = reflect.TypeOf(time.Duration(0))
	timeType     = reflect.TypeOf(time.Time{})
)

var timeFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// bind 将通用树中的值转换为目标类型
func bind(src any, dst reflect.Value) error {
	srcValue := reflect.ValueOf(src)
	if !srcValue.IsValid() {
		return nil
	}

	if dst.Kind() == reflect.Ptr {
		if dst.IsNil() {
			dst.Set(reflect.New(dst.Type().Elem()))
		}
		return bind(src, dst.Elem())
	}

	for srcValue.Kind() == reflect.Ptr || srcValue.Kind() == reflect.Interface {
		if srcValue.IsNil() {
			return nil
		}
		srcValue = srcValue.Elem()
	}

	if n, ok := srcValue.Interface().(json.Number); ok {
		return bindNumber(n, dst)
	}

	switch dst.Type() {
	case durationType:
		return bindDuration(srcValue, dst)
	case timeType:
		return bindTime(srcValue, dst)
	}

	if srcValue.Type().AssignableTo(dst.Type()) {
		dst.Set(srcValue)
		return nil
	}

	switch dst.Kind() {
	case reflect.Map:
		return bindMap(srcValue, dst)
	case reflect.Slice:
		return bindSlice(srcValue, dst)
	case reflect.Struct:
		return bindStruct(srcValue, dst)
	case reflect.Interface:
		if dst.Type().NumMethod() == 0 {
			dst.Set(srcValue)
			return nil
		}
	case reflect.String:
		// ini 会把纯数字的字符串解析为数值
		if srcValue.Kind() != reflect.String {
			dst.SetString(stringify(srcValue))
			return nil
		}
	case reflect.Bool:
		if srcValue.Kind() == reflect.String {
			b, err := strconv.ParseBool(srcValue.String())
			if err != nil {
				return errors.Wrapf(err, "cannot convert %q to bool", srcValue.String())
			}
			dst.SetBool(b)
			return nil
		}
	}

	if isNumber(srcValue.Kind()) && isNumber(dst.Kind()) {
		dst.Set(srcValue.Convert(dst.Type()))
		return nil
	}
	if srcValue.Kind() == reflect.String && isNumber(dst.Kind()) {
		return bindNumber(json.Number(srcValue.String()), dst)
	}

	return errors.Errorf("cannot convert %v to %v", srcValue.Type(), dst.Type())
}

func isNumber(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func stringify(v reflect.Value) string {
	switch {
	case v.CanInt():
		return strconv.FormatInt(v.Int(), 10)
	case v.CanUint():
		return strconv.FormatUint(v.Uint(), 10)
	case v.CanFloat():
		return strconv.FormatFloat(v.Float(), 'f', -1, 64)
	case v.Kind() == reflect.Bool:
		return strconv.FormatBool(v.Bool())
	}
	return v.String()
}

func bindNumber(n json.Number, dst reflect.Value) error {
	switch dst.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if dst.Type() == durationType {
			return bindDuration(reflect.ValueOf(string(n)), dst)
		}
		i, err := strconv.ParseInt(string(n), 10, dst.Type().Bits())
		if err != nil {
			return errors.Wrapf(err, "cannot convert %s to %v", n, dst.Type())
		}
		dst.SetInt(i)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(string(n), 10, dst.Type().Bits())
		if err != nil {
			return errors.Wrapf(err, "cannot convert %s to %v", n, dst.Type())
		}
		dst.SetUint(u)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(string(n), dst.Type().Bits())
		if err != nil {
			return errors.Wrapf(err, "cannot convert %s to %v", n, dst.Type())
		}
		dst.SetFloat(f)
	case reflect.String:
		dst.SetString(string(n))
	case reflect.Interface:
		if i, err := n.Int64(); err == nil {
			dst.Set(reflect.ValueOf(i))
		} else if f, err := n.Float64(); err == nil {
			dst.Set(reflect.ValueOf(f))
		} else {
			dst.Set(reflect.ValueOf(string(n)))
		}
	default:
		return errors.Errorf("cannot convert number %s to %v", n, dst.Type())
	}
	return nil
}

// bindDuration 字符串按 time.ParseDuration 解析，整数视为纳秒，浮点数视为秒
func bindDuration(src, dst reflect.Value) error {
	switch {
	case src.Kind() == reflect.String:
		s := src.String()
		d, err := time.ParseDuration(s)
		if err != nil {
			ns, numErr := strconv.ParseInt(s, 10, 64)
			if numErr != nil {
				return errors.Wrapf(err, "failed to parse duration %q", s)
			}
			d = time.Duration(ns)
		}
		dst.SetInt(int64(d))
	case src.CanInt():
		dst.SetInt(src.Int())
	case src.CanUint():
		dst.SetInt(int64(src.Uint()))
	case src.CanFloat():
		dst.SetInt(int64(src.Float() * float64(time.Second)))
	default:
		return errors.Errorf("cannot convert %v to time.Duration", src.Type())
	}
	return nil
}

// bindTime 字符串尝试多种格式，数值视为 unix 秒
func bindTime(src, dst reflect.Value) error {
	switch {
	case src.Kind() == reflect.String:
		for _, format := range timeFormats {
			if t, err := time.Parse(format, src.String()); err == nil {
				dst.Set(reflect.ValueOf(t))
				return nil
			}
		}
		return errors.Errorf("failed to parse time %q", src.String())
	case src.CanInt():
		dst.Set(reflect.ValueOf(time.Unix(src.Int(), 0)))
	case src.CanFloat():
		sec := int64(src.Float())
		dst.Set(reflect.ValueOf(time.Unix(sec, int64((src.Float()-float64(sec))*1e9))))
	case src.Type() == timeType:
		dst.Set(src)
	default:
		return errors.Errorf("cannot convert %v to time.Time", src.Type())
	}
	return nil
}

func bindMap(src, dst reflect.Value) error {
	if src.Kind() != reflect.Map {
		return errors.Errorf("cannot convert %v to %v", src.Type(), dst.Type())
	}
	if dst.IsNil() {
		dst.Set(reflect.MakeMapWithSize(dst.Type(), src.Len()))
	}

	keyType := dst.Type().Key()
	iter := src.MapRange()
	for iter.Next() {
		key := iter.Key()
		for key.Kind() == reflect.Interface {
			key = key.Elem()
		}
		if !key.Type().AssignableTo(keyType) {
			if !key.Type().ConvertibleTo(keyType) {
				return errors.Errorf("cannot convert key %v to %v", key.Type(), keyType)
			}
			key = key.Convert(keyType)
		}

		value := reflect.New(dst.Type().Elem()).Elem()
		if err := bind(iter.Value().Interface(), value); err != nil {
			return errors.WithMessagef(err, "key %v", key.Interface())
		}
		dst.SetMapIndex(key, value)
	}
	return nil
}

func bindSlice(src, dst reflect.Value) error {
	// 单个值绑定到切片视为只有一个元素
	if src.Kind() != reflect.Slice && src.Kind() != reflect.Array {
		item := reflect.New(dst.Type().Elem()).Elem()
		if err := bind(src.Interface(), item); err != nil {
			return err
		}
		dst.Set(reflect.Append(reflect.MakeSlice(dst.Type(), 0, 1), item))
		return nil
	}

	n := src.Len()
	dst.Set(reflect.MakeSlice(dst.Type(), n, n))
	for i := 0; i < n; i++ {
		if err := bind(src.Index(i).Interface(), dst.Index(i)); err != nil {
			return errors.WithMessagef(err, "index %d", i)
		}
	}
	return nil
}

func bindStruct(src, dst reflect.Value) error {
	if src.Kind() != reflect.Map {
		return errors.Errorf("cannot convert %v to %v", src.Type(), dst.Type())
	}

	keys := make(map[string]reflect.Value, src.Len())
	iter := src.MapRange()
	for iter.Next() {
		keys[keyString(iter.Key())] = iter.Value()
	}

	dstType := dst.Type()
	for i := 0; i < dstType.NumField(); i++ {
		field := dstType.Field(i)
		fieldValue := dst.Field(i)
		if !fieldValue.CanSet() {
			continue
		}

		name := FieldName(field)
		if name == "-" {
			continue
		}
		value, ok := keys[name]
		if !ok {
			// 退而求其次：忽略大小写匹配
			for k, v := range keys {
				if strings.EqualFold(k, name) {
					value, ok = v, true
					break
				}
			}
		}
		if !ok {
			continue
		}
		if err := bind(value.Interface(), fieldValue); err != nil {
			return errors.WithMessagef(err, "field %s", name)
		}
	}
	return nil
}

func keyString(k reflect.Value) string {
	for k.Kind() == reflect.Interface {
		k = k.Elem()
	}
	if k.Kind() == reflect.String {
		return k.String()
	}
	return stringify(k)
}

// FieldName 结构体字段在配置中的名字，依次取 cfg/json/yaml/toml/ini 标签，最后是字段名
func FieldName(field reflect.StructField) string {
	for _, tag := range []string{"cfg", "json", "yaml", "toml", "ini"} {
		if value, ok := field.Tag.Lookup(tag); ok {
			if name := strings.Split(value, ",")[0]; name != "" {
				return name
			}
		}
	}
	return field.Name
}
