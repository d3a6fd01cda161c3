package store

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
	"go.mongodb.org/mongo-driver/bson"
)

// Serializer 键值与字节之间的编解码
type Serializer[T any] interface {
	Serialize(from T) ([]byte, error)
	Deserialize(to []byte) (T, error)
}

type JSONSerializer[T any] struct{}

func (s JSONSerializer[T]) Serialize(from T) ([]byte, error) {
	return json.Marshal(from)
}

func (s JSONSerializer[T]) Deserialize(to []byte) (T, error) {
	var result T
	err := json.Unmarshal(to, &result)
	return result, err
}

type MsgPackSerializer[T any] struct{}

func (s MsgPackSerializer[T]) Serialize(from T) ([]byte, error) {
	return msgpack.Marshal(from)
}

func (s MsgPackSerializer[T]) Deserialize(to []byte) (T, error) {
	var result T
	err := msgpack.Unmarshal(to, &result)
	return result, err
}

// BSONSerializer T 需是文档类型（结构体、结构体指针或 map）
type BSONSerializer[T any] struct{}

func (s BSONSerializer[T]) Serialize(from T) ([]byte, error) {
	return bson.Marshal(from)
}

func (s BSONSerializer[T]) Deserialize(to []byte) (T, error) {
	var result T
	err := bson.Unmarshal(to, &result)
	return result, err
}

// NewSerializer 按名字创建序列化器，空名字使用 msgpack
func NewSerializer[T any](name string) (Serializer[T], error) {
	switch name {
	case "", "msgpack":
		return MsgPackSerializer[T]{}, nil
	case "json":
		return JSONSerializer[T]{}, nil
	case "bson":
		return BSONSerializer[T]{}, nil
	}
	return nil, errors.Errorf("unsupported serializer %q", name)
}

type codec[K, V any] struct {
	keySerializer Serializer[K]
	valSerializer Serializer[V]
}

func newCodec[K, V any](keySerializer, valSerializer string) (codec[K, V], error) {
	ks, err := NewSerializer[K](keySerializer)
	if err != nil {
		return codec[K, V]{}, errors.WithMessage(err, "key serializer")
	}
	vs, err := NewSerializer[V](valSerializer)
	if err != nil {
		return codec[K, V]{}, errors.WithMessage(err, "value serializer")
	}
	return codec[K, V]{keySerializer: ks, valSerializer: vs}, nil
}

func (c codec[K, V]) encode(key K, value V) ([]byte, []byte, error) {
	keyBytes, err := c.keySerializer.Serialize(key)
	if err != nil {
		return nil, nil, errors.Wrap(err, "marshal key failed")
	}
	valBytes, err := c.valSerializer.Serialize(value)
	if err != nil {
		return nil, nil, errors.Wrap(err, "marshal value failed")
	}
	return keyBytes, valBytes, nil
}

func (c codec[K, V]) encodeKey(key K) ([]byte, error) {
	keyBytes, err := c.keySerializer.Serialize(key)
	if err != nil {
		return nil, errors.Wrap(err, "marshal key failed")
	}
	return keyBytes, nil
}

func (c codec[K, V]) decodeValue(data []byte) (V, error) {
	value, err := c.valSerializer.Deserialize(data)
	if err != nil {
		var zero V
		return zero, errors.Wrap(err, "unmarshal value failed")
	}
	return value, nil
}
