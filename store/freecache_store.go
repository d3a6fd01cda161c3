package store

import (
	"context"
	"time"

	"github.com/coocood/freecache"
	"github.com/pkg/errors"
)

type FreeCacheStoreOptions struct {
	// 缓存大小，字节
	Size          int           `cfg:"size" def:"33554432"`
	DefaultTTL    time.Duration `cfg:"defaultTTL"`
	KeySerializer string        `cfg:"keySerializer" validate:"omitempty,oneof=json msgpack bson"`
	ValSerializer string        `cfg:"valSerializer" validate:"omitempty,oneof=json msgpack bson"`
}

type FreeCacheStore[K, V any] struct {
	codec[K, V]
	cache      *freecache.Cache
	defaultTTL time.Duration
}

func NewFreeCacheStoreWithOptions[K, V any](options *FreeCacheStoreOptions) (*FreeCacheStore[K, V], error) {
	if options == nil {
		return nil, errors.New("options cannot be nil")
	}
	c, err := newCodec[K, V](options.KeySerializer, options.ValSerializer)
	if err != nil {
		return nil, err
	}

	return &FreeCacheStore[K, V]{
		codec:      c,
		cache:      freecache.NewCache(options.Size),
		defaultTTL: options.DefaultTTL,
	}, nil
}

func (s *FreeCacheStore[K, V]) Set(ctx context.Context, key K, value V, opts ...setOption) error {
	options := newSetOptions(opts)

	keyBytes, valBytes, err := s.encode(key, value)
	if err != nil {
		return err
	}

	if options.IfNotExist {
		if _, err := s.cache.Get(keyBytes); err == nil {
			return ErrConditionFailed
		}
	}

	expiration := options.Expiration
	if expiration == 0 && s.defaultTTL > 0 {
		expiration = s.defaultTTL
	}
	// freecache 以秒为单位，不足一秒按一秒
	expireSeconds := int((expiration + time.Second - 1) / time.Second)
	if err := s.cache.Set(keyBytes, valBytes, expireSeconds); err != nil {
		return errors.Wrap(err, "freecache.Set failed")
	}
	return nil
}

func (s *FreeCacheStore[K, V]) Get(ctx context.Context, key K) (V, error) {
	var zero V

	keyBytes, err := s.encodeKey(key)
	if err != nil {
		return zero, err
	}

	valBytes, err := s.cache.Get(keyBytes)
	if errors.Is(err, freecache.ErrNotFound) {
		return zero, ErrKeyNotFound
	}
	if err != nil {
		return zero, errors.Wrap(err, "freecache.Get failed")
	}
	return s.decodeValue(valBytes)
}

func (s *FreeCacheStore[K, V]) Del(ctx context.Context, key K) error {
	keyBytes, err := s.encodeKey(key)
	if err != nil {
		return err
	}
	s.cache.Del(keyBytes)
	return nil
}

func (s *FreeCacheStore[K, V]) Close() error {
	s.cache.Clear()
	return nil
}
