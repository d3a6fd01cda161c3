package converter

import (
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
	"go.mongodb.org/mongo-driver/bson"
	"google.golang.org/protobuf/proto"
)

// Converter 在对象值与数据库值之间转换
type Converter interface {
	// ToDB 对象值 -> 数据库值
	ToDB(v any) (any, error)
	// FromDB 数据库值 -> 对象值
	FromDB(v any) (any, error)
}

var ErrConverterNotFound = errors.New("converter not found")

// Identity 原样传递
type Identity struct{}

func (Identity) ToDB(v any) (any, error)   { return v, nil }
func (Identity) FromDB(v any) (any, error) { return v, nil }

// Func 用函数组合出的转换器，未设置的方向原样传递
type Func struct {
	To   func(any) (any, error)
	From func(any) (any, error)
}

func (f Func) ToDB(v any) (any, error) {
	if f.To == nil {
		return v, nil
	}
	return f.To(v)
}

func (f Func) FromDB(v any) (any, error) {
	if f.From == nil {
		return v, nil
	}
	return f.From(v)
}

// JSONConverter 对象值序列化为 JSON 字符串存储
type JSONConverter[T any] struct{}

func NewJSONConverter[T any]() *JSONConverter[T] {
	return &JSONConverter[T]{}
}

func (c *JSONConverter[T]) ToDB(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	buf, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "json.Marshal failed")
	}
	return string(buf), nil
}

func (c *JSONConverter[T]) FromDB(v any) (any, error) {
	buf, ok, err := asBytes(v)
	if !ok || err != nil {
		return nil, err
	}
	var result T
	if err := json.Unmarshal(buf, &result); err != nil {
		return nil, errors.Wrap(err, "json.Unmarshal failed")
	}
	return result, nil
}

// MsgPackConverter 对象值序列化为 msgpack 二进制存储
type MsgPackConverter[T any] struct{}

func NewMsgPackConverter[T any]() *MsgPackConverter[T] {
	return &MsgPackConverter[T]{}
}

func (c *MsgPackConverter[T]) ToDB(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	buf, err := msgpack.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "msgpack.Marshal failed")
	}
	return buf, nil
}

func (c *MsgPackConverter[T]) FromDB(v any) (any, error) {
	buf, ok, err := asBytes(v)
	if !ok || err != nil {
		return nil, err
	}
	var result T
	if err := msgpack.Unmarshal(buf, &result); err != nil {
		return nil, errors.Wrap(err, "msgpack.Unmarshal failed")
	}
	return result, nil
}

// BSONConverter 对象值序列化为 bson 文档存储，T 需是文档类型（结构体或 map）
type BSONConverter[T any] struct{}

func NewBSONConverter[T any]() *BSONConverter[T] {
	return &BSONConverter[T]{}
}

func (c *BSONConverter[T]) ToDB(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	buf, err := bson.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "bson.Marshal failed")
	}
	return buf, nil
}

func (c *BSONConverter[T]) FromDB(v any) (any, error) {
	buf, ok, err := asBytes(v)
	if !ok || err != nil {
		return nil, err
	}
	var result T
	if err := bson.Unmarshal(buf, &result); err != nil {
		return nil, errors.Wrap(err, "bson.Unmarshal failed")
	}
	return result, nil
}

// ProtoConverter protobuf 消息序列化为二进制存储
type ProtoConverter struct {
	prototype proto.Message
}

// NewProtoConverter prototype 决定 FromDB 返回的消息类型
func NewProtoConverter(prototype proto.Message) *ProtoConverter {
	return &ProtoConverter{prototype: prototype}
}

func (c *ProtoConverter) ToDB(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	m, ok := v.(proto.Message)
	if !ok {
		return nil, errors.Errorf("value of type %T is not a proto.Message", v)
	}
	buf, err := proto.Marshal(m)
	if err != nil {
		return nil, errors.Wrap(err, "proto.Marshal failed")
	}
	return buf, nil
}

func (c *ProtoConverter) FromDB(v any) (any, error) {
	buf, ok, err := asBytes(v)
	if !ok || err != nil {
		return nil, err
	}
	m := c.prototype.ProtoReflect().New().Interface()
	if err := proto.Unmarshal(buf, m); err != nil {
		return nil, errors.Wrap(err, "proto.Unmarshal failed")
	}
	return m, nil
}

// asBytes 数据库返回的 string/[]byte；nil 返回 ok=false
func asBytes(v any) ([]byte, bool, error) {
	switch b := v.(type) {
	case nil:
		return nil, false, nil
	case []byte:
		return b, true, nil
	case string:
		return []byte(b), true, nil
	}
	return nil, false, errors.Errorf("cannot decode value of type %T", v)
}

type chain struct {
	field  Converter
	column Converter
}

// Chain 组合字段级与列级转换器：ToDB 先字段后列，FromDB 反之；任意一方可为 nil
func Chain(field, column Converter) Converter {
	switch {
	case field == nil && column == nil:
		return Identity{}
	case field == nil:
		return column
	case column == nil:
		return field
	}
	return &chain{field: field, column: column}
}

func (c *chain) ToDB(v any) (any, error) {
	v, err := c.field.ToDB(v)
	if err != nil {
		return nil, err
	}
	return c.column.ToDB(v)
}

func (c *chain) FromDB(v any) (any, error) {
	v, err := c.column.FromDB(v)
	if err != nil {
		return nil, err
	}
	return c.field.FromDB(v)
}

var (
	mu       sync.RWMutex
	registry = map[string]Converter{}
)

func init() {
	MustRegister("identity", Identity{})
	MustRegister("json", NewJSONConverter[any]())
	MustRegister("msgpack", NewMsgPackConverter[any]())
	MustRegister("bson", NewBSONConverter[map[string]any]())
}

// Register 按名字注册转换器，重复注册返回错误
func Register(name string, c Converter) error {
	if name == "" || c == nil {
		return errors.New("converter name and value are required")
	}
	mu.Lock()
	defer mu.Unlock()
	if _, ok := registry[name]; ok {
		return errors.Errorf("converter %s already registered", name)
	}
	registry[name] = c
	return nil
}

func MustRegister(name string, c Converter) {
	if err := Register(name, c); err != nil {
		panic(err)
	}
}

// Lookup 按名字查找转换器
func Lookup(name string) (Converter, error) {
	mu.RLock()
	defer mu.RUnlock()
	c, ok := registry[name]
	if !ok {
		return nil, errors.Wrapf(ErrConverterNotFound, "converter %q", name)
	}
	return c, nil
}
